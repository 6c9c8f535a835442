package rtmp

import (
	"bufio"
	"context"
	"net"
	"sync"

	cmap "github.com/orcaman/concurrent-map"
	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/config"
	"github.com/torresjeff/rtmp-ingest/rand"
	"go.uber.org/zap"
)

// ErrServerClosed is returned by Listen and Serve after a call to Close.
var ErrServerClosed = errors.New("rtmp: server closed")

// Server represents the RTMP ingest server, where a client/app can publish a stream to. The server listens for incoming
// connections and serves each one with a Conn.
type Server struct {
	// Address to listen on, Config.Addr is used when empty
	Addr string
	// Settings of every connection, zero fields take their default value and config.Default() is used when nil
	Config *config.Config
	Logger *zap.Logger
	// Defaults to the stream keys of Config
	Authorizer Authorizer
	Observer   SessionObserver
	// NewDecoder returns the decoder of a new connection. Connections have no decoder when nil.
	NewDecoder func(connID string) Decoder

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	conns    cmap.ConcurrentMap
	initOnce sync.Once
}

// serverConn is a live connection and the transport it reads from.
type serverConn struct {
	conn    *Conn
	netConn net.Conn
}

func (s *Server) init() {
	s.initOnce.Do(func() {
		s.conns = cmap.New()
		if s.Logger == nil {
			s.Logger = zap.NewNop()
		}
		cfg := config.Default()
		if s.Config != nil {
			cfg = s.Config.WithDefaults()
		}
		s.Config = &cfg
		if s.Authorizer == nil {
			s.Authorizer = NewStreamKeySet(s.Config.StreamKeys...)
		}
	})
}

// Listen starts the server and listens for any incoming connections. If no Addr (host:port) has been assigned to the
// server, the configured address is used.
func (s *Server) Listen() error {
	s.init()
	if s.Addr == "" {
		s.Addr = s.Config.Addr
	}

	tcpAddress, err := net.ResolveTCPAddr("tcp", s.Addr)
	if err != nil {
		return errors.Errorf("[server] error resolving tcp address: %s", err)
	}

	listener, err := net.ListenTCP("tcp", tcpAddress)
	if err != nil {
		return err
	}
	s.Logger.Sugar().Infof("[server] Listening on %s", listener.Addr())
	return s.Serve(listener)
}

// Serve accepts incoming connections on l until Close is called or l fails. l is closed when Serve returns.
func (s *Server) Serve(l net.Listener) error {
	s.init()
	logger := s.Logger.Sugar()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		netConn, err := l.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				logger.Errorf("[server] Error accepting incoming connection: %v", err)
				continue
			}
			return errors.Wrap(err, "[server] accept")
		}

		logger.Infof("[server] Accepted incoming connection from %s", netConn.RemoteAddr())
		go s.serveConn(ctx, netConn)
	}
}

func (s *Server) serveConn(ctx context.Context, netConn net.Conn) {
	defer netConn.Close()
	logger := s.Logger.Sugar()

	id := rand.GenerateUuid()
	var decoder Decoder
	if s.NewDecoder != nil {
		decoder = s.NewDecoder(id)
	}
	socketr := bufio.NewReaderSize(netConn, s.Config.BufferSize)
	socketw := bufio.NewWriterSize(netConn, s.Config.BufferSize)
	conn, err := NewConn(id, socketw, ConnConfig{
		Config:     *s.Config,
		Logger:     s.Logger,
		Authorizer: s.Authorizer,
		Observer:   s.Observer,
		Decoder:    decoder,
	})
	if err != nil {
		logger.Errorf("[server] Error creating connection %s: %v", id, err)
		return
	}

	s.conns.Set(id, &serverConn{conn: conn, netConn: netConn})
	defer s.conns.Remove(id)
	// Close may have missed the connection
	if s.isClosed() {
		return
	}

	logger.Infof("[server] Starting connection %s", id)
	if err := conn.Serve(ctx, socketr); err != nil {
		logger.Errorf("[server] Connection %s ended with an error: %v", id, err)
	} else {
		logger.Infof("[server] Connection %s ended", id)
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ConnCount returns the number of connections being served.
func (s *Server) ConnCount() int {
	s.init()
	return s.conns.Count()
}

// Close stops accepting connections and stops every live connection. Transports are closed first, so a connection
// blocked writing to a peer that stopped reading doesn't hold Close up.
func (s *Server) Close() error {
	s.init()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	l := s.listener
	s.mu.Unlock()

	var err error
	if l != nil {
		err = l.Close()
	}
	var wg sync.WaitGroup
	for item := range s.conns.IterBuffered() {
		sc := item.Val.(*serverConn)
		sc.netConn.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			sc.conn.Stop()
		}()
	}
	wg.Wait()
	return err
}
