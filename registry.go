package rtmp

import (
	"sync"

	cmap "github.com/orcaman/concurrent-map"
	"go.uber.org/zap"
)

// FrameHandler receives the decoded frames of every publishing connection.
type FrameHandler func(streamKey string, conn *Conn, frame DecodedFrame)

// Registry keeps track of the live publisher of every stream key. It implements SessionObserver: a connection that
// starts publishing a stream key replaces (and stops) the connection that was publishing it before.
type Registry struct {
	logger *zap.SugaredLogger
	// Serializes replacements and removals, lookups go straight to publishers
	mu         sync.Mutex
	publishers cmap.ConcurrentMap
	onFrame    FrameHandler
}

// NewRegistry returns an empty registry. onFrame may be nil.
func NewRegistry(logger *zap.Logger, onFrame FrameHandler) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:     logger.Sugar(),
		publishers: cmap.New(),
		onFrame:    onFrame,
	}
}

func (r *Registry) OnPublishStart(streamKey string) {
	r.logger.Infof("[registry] publish started, %d live streams", r.publishers.Count())
}

func (r *Registry) OnClientReady(conn *Conn) {
	streamKey := conn.StreamKey()
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.publishers.Get(streamKey); ok {
		if old := v.(*Conn); old != conn {
			r.logger.Infof("[registry] connection %s replaces %s", conn.ID(), old.ID())
			// Stop waits for the old connection's goroutine, which may be calling into the registry itself
			go old.Stop()
		}
	}
	r.publishers.Set(streamKey, conn)
}

func (r *Registry) OnFrame(conn *Conn, frame DecodedFrame) {
	if r.onFrame != nil {
		r.onFrame(conn.StreamKey(), conn, frame)
	}
}

func (r *Registry) OnClientDisconnected(conn *Conn) {
	streamKey := conn.StreamKey()
	if streamKey == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// Only remove the connection if it hasn't been replaced
	if v, ok := r.publishers.Get(streamKey); ok && v.(*Conn) == conn {
		r.publishers.Remove(streamKey)
		r.logger.Infof("[registry] connection %s removed", conn.ID())
	}
}

// Lookup returns the connection publishing streamKey.
func (r *Registry) Lookup(streamKey string) (*Conn, bool) {
	v, ok := r.publishers.Get(streamKey)
	if !ok {
		return nil, false
	}
	return v.(*Conn), true
}

// Count returns the number of live streams.
func (r *Registry) Count() int {
	return r.publishers.Count()
}

// StreamKeys returns the stream keys being published.
func (r *Registry) StreamKeys() []string {
	return r.publishers.Keys()
}
