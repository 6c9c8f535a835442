package rtmp

// Authorizer decides which stream keys may be published. It is queried from connection goroutines concurrently.
type Authorizer interface {
	IsStreamKeyAuthorized(streamKey string) bool
}

// StreamKeySet authorizes a fixed set of stream keys, matched exactly. It is read-only once created and can be shared
// by every connection.
type StreamKeySet map[string]struct{}

func NewStreamKeySet(keys ...string) StreamKeySet {
	set := make(StreamKeySet, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	return set
}

func (s StreamKeySet) IsStreamKeyAuthorized(streamKey string) bool {
	_, ok := s[streamKey]
	return ok
}

// SessionObserver is notified of the lifecycle of publishing connections. Every method is called from the goroutine of
// the connection and must not block. OnFrame receives the frames reported by the connection's decoder.
type SessionObserver interface {
	OnPublishStart(streamKey string)
	OnClientReady(conn *Conn)
	OnFrame(conn *Conn, frame DecodedFrame)
	OnClientDisconnected(conn *Conn)
}

type nopObserver struct{}

func (nopObserver) OnPublishStart(string)       {}
func (nopObserver) OnClientReady(*Conn)         {}
func (nopObserver) OnFrame(*Conn, DecodedFrame) {}
func (nopObserver) OnClientDisconnected(*Conn)  {}
