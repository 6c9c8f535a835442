package rtmp

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/config"
	"github.com/torresjeff/rtmp-ingest/video"
	"go.uber.org/zap"
)

// Size of the buffer of every read from the transport
const readSize = 32 * 1024

// ConnConfig holds the settings and collaborators of a connection. A nil Logger, Observer or Decoder is replaced by a
// no-op; a nil Authorizer rejects every stream key.
type ConnConfig struct {
	// Zero fields take their default value
	Config config.Config
	Logger     *zap.Logger
	Authorizer Authorizer
	Observer   SessionObserver
	Decoder    Decoder
}

type readResult struct {
	data []byte
	err  error
}

// Conn is the server side of one RTMP publisher connection. A single goroutine (the one running Serve) owns all of
// its state: bytes read from the transport and decoder callbacks are both delivered to it in order.
type Conn struct {
	id       string
	logger   *zap.SugaredLogger
	cfg      config.Config
	auth     Authorizer
	observer SessionObserver
	decoder  Decoder

	out          WriteFlusher
	writer       *ChunkWriter
	handshake    *handshake
	reassembler  *ChunkReassembler
	depacketizer *video.Depacketizer

	state     commandState
	streamKey string
	// Copy of streamKey readable from any goroutine
	publishedKey atomic.Value
	session      decodeSession

	// Bytes received since the beginning of the connection (wraps around at 32 bits)
	bytesReceived uint32
	// Value of bytesReceived when the last Acknowledgement was sent
	lastAck uint32
	// Window Acknowledgement Size announced by the peer, 0 if none
	peerWindowAckSize uint32

	mailbox  *mailbox
	stopOnce sync.Once
	stopCh   chan struct{}
	stopped  int32
	serving  int32
	loopDone chan struct{}
}

// NewConn returns a connection that writes its responses to w. Call Serve to start processing.
func NewConn(id string, w io.Writer, cc ConnConfig) (*Conn, error) {
	cc.Config = cc.Config.WithDefaults()
	out, err := NewWriter(w, cc.Config.BufferSize)
	if err != nil {
		return nil, err
	}
	logger := cc.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Conn{
		id:           id,
		logger:       logger.Sugar().With("conn", id),
		cfg:          cc.Config,
		auth:         cc.Authorizer,
		observer:     cc.Observer,
		decoder:      cc.Decoder,
		out:          out,
		writer:       NewChunkWriter(out),
		handshake:    newHandshake(),
		reassembler:  NewChunkReassembler(cc.Config.MaxChunkStreams),
		depacketizer: video.NewDepacketizer(),
		mailbox:      newMailbox(),
		stopCh:       make(chan struct{}),
		loopDone:     make(chan struct{}),
	}
	if c.auth == nil {
		c.auth = NewStreamKeySet()
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if c.decoder == nil {
		c.decoder = nopDecoder{}
	}
	c.publishedKey.Store("")
	return c, nil
}

func (c *Conn) ID() string {
	return c.id
}

// StreamKey returns the stream key being published, or an empty string before a successful publish.
func (c *Conn) StreamKey() string {
	return c.publishedKey.Load().(string)
}

// Serve reads the connection from r until it ends, fails, ctx is done or Stop is called. It returns nil when the
// client closed the connection (io.EOF), ctx was canceled or the connection was stopped. Serve must be called once.
func (c *Conn) Serve(ctx context.Context, r io.Reader) error {
	if r == nil {
		return ErrNilReader
	}
	if !atomic.CompareAndSwapInt32(&c.serving, 0, 1) {
		return errors.New("conn: Serve called more than once")
	}
	defer close(c.loopDone)

	c.logger.Debugf("[conn] serving")
	reads := make(chan readResult)
	go c.read(r, reads)
	err := c.loop(ctx, reads)

	c.markStopped()
	c.stopDecodeSession()
	c.observer.OnClientDisconnected(c)
	if err != nil {
		c.logger.Errorf("[conn] closed with error: %v", err)
	} else {
		c.logger.Infof("[conn] closed")
	}
	return err
}

// Stop halts the connection: no message is processed after Stop returns, the decode session is stopped and decoder
// callbacks that arrive later are dropped. It is safe to call Stop more than once and from any goroutine except the
// one running Serve (SessionObserver callbacks of this connection included).
func (c *Conn) Stop() {
	c.markStopped()
	if atomic.LoadInt32(&c.serving) == 1 {
		<-c.loopDone
	}
}

func (c *Conn) markStopped() {
	c.stopOnce.Do(func() {
		atomic.StoreInt32(&c.stopped, 1)
		close(c.stopCh)
	})
}

func (c *Conn) isStopped() bool {
	return atomic.LoadInt32(&c.stopped) == 1
}

// post queues e to run on the connection's goroutine. Events posted after stop are dropped.
func (c *Conn) post(e event) {
	if c.isStopped() {
		return
	}
	c.mailbox.post(e)
}

// read forwards everything read from r, and finally the error that ended reading, in order.
func (c *Conn) read(r io.Reader, reads chan<- readResult) {
	for {
		buf := make([]byte, readSize)
		n, err := r.Read(buf)
		if n == 0 && err == nil {
			continue
		}
		select {
		case reads <- readResult{data: buf[:n], err: err}:
		case <-c.stopCh:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *Conn) loop(ctx context.Context, reads <-chan readResult) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		case <-c.mailbox.notify:
			c.runEvents()
		case res := <-reads:
			if len(res.data) > 0 {
				if err := c.process(res.data); err != nil {
					if err == errStopped {
						return nil
					}
					return err
				}
			}
			if res.err == io.EOF {
				return nil
			}
			if res.err != nil {
				return errors.Wrap(res.err, "conn: read")
			}
		}
	}
}

func (c *Conn) runEvents() {
	for _, e := range c.mailbox.drain() {
		if c.isStopped() {
			return
		}
		e(c)
	}
}

// process handles bytes received from the transport: handshake first, then the chunk stream.
func (c *Conn) process(data []byte) error {
	c.bytesReceived += uint32(len(data))

	if !c.handshake.done() {
		n, response, err := c.handshake.feed(data)
		if response != nil {
			if werr := c.writeRaw(response); werr != nil {
				return werr
			}
		}
		if err != nil {
			if IsFatal(err) {
				return err
			}
			c.logger.Warnf("[conn] %v", err)
		}
		data = data[n:]
		if !c.handshake.done() {
			return nil
		}
		c.logger.Debugf("[conn] handshake completed")
	}

	if err := c.reassembler.Feed(data, c.handleMessage); err != nil {
		return err
	}
	return c.acknowledge()
}

// acknowledge sends an Acknowledgement every time the peer's window of bytes has been received.
func (c *Conn) acknowledge() error {
	if c.peerWindowAckSize == 0 || c.bytesReceived-c.lastAck < c.peerWindowAckSize {
		return nil
	}
	c.lastAck = c.bytesReceived
	return c.send(newAckMessage(c.bytesReceived))
}

func (c *Conn) send(msg *Message) error {
	return c.writer.WriteMessage(msg)
}

func (c *Conn) writeRaw(p []byte) error {
	if _, err := c.out.Write(p); err != nil {
		return errors.Wrap(err, "conn: write")
	}
	return errors.Wrap(c.out.Flush(), "conn: flush")
}

func (c *Conn) setStreamKey(streamKey string) {
	c.streamKey = streamKey
	c.publishedKey.Store(streamKey)
}
