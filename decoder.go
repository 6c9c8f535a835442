package rtmp

import (
	"time"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/video"
)

// DecodedFrame is the output of a Decoder for one access unit.
type DecodedFrame struct {
	// Decoder specific output (raw pixels, a re-framed bitstream...)
	Data          []byte
	Width, Height int
	PTS           time.Duration
	Duration      time.Duration
	KeyFrame      bool
}

// Decoder is the video decode session of a connection. Every method is called from the connection's goroutine.
// Results are reported asynchronously to the DecodeSink given to StartSession.
type Decoder interface {
	StartSession(format *video.FormatDescription, sink DecodeSink) error
	StopSession()
	SubmitAccessUnit(au *video.AccessUnit)
	// InvalidateOnFormatChange is called before the session is restarted with a new format.
	InvalidateOnFormatChange()
}

// DecodeSink receives the results of a Decoder. Its methods may be called from any goroutine.
type DecodeSink interface {
	FormatChanged(format *video.FormatDescription)
	FrameDecoded(frame DecodedFrame)
	DecodeFailed(err error)
	// SessionInvalidated tells the connection the session can't decode anymore. It is restarted with the decoder
	// configuration already received on the next access unit.
	SessionInvalidated()
}

type sessionState uint8

const (
	sessionUninitialized sessionState = iota
	sessionReady
	sessionInvalidated
)

func (s sessionState) String() string {
	switch s {
	case sessionUninitialized:
		return "uninitialized"
	case sessionReady:
		return "ready"
	case sessionInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// decodeSession tracks the decode session of a connection.
type decodeSession struct {
	state sessionState
	// Format the session was started with (ready) or last started with (invalidated)
	format *video.FormatDescription
	// Incremented every time a session is started, callbacks of older sessions are dropped
	generation uint64
}

// sessionSink forwards the callbacks of one decode session into the connection's mailbox.
type sessionSink struct {
	conn       *Conn
	generation uint64
}

func (s *sessionSink) FormatChanged(format *video.FormatDescription) {
	s.conn.post(func(c *Conn) {
		if c.session.generation == s.generation {
			c.logger.Infof("[conn] decoder output format %dx%d", format.Width(), format.Height())
		}
	})
}

func (s *sessionSink) FrameDecoded(frame DecodedFrame) {
	s.conn.post(func(c *Conn) {
		if c.session.generation == s.generation {
			c.observer.OnFrame(c, frame)
		}
	})
}

func (s *sessionSink) DecodeFailed(err error) {
	s.conn.post(func(c *Conn) {
		if c.session.generation == s.generation {
			c.logger.Warnf("[conn] %v", newError(CodecError, errors.Wrap(err, "frame dropped")))
		}
	})
}

func (s *sessionSink) SessionInvalidated() {
	s.conn.post(func(c *Conn) {
		if c.session.generation == s.generation && c.session.state == sessionReady {
			c.logger.Infof("[conn] decode session invalidated")
			c.session.state = sessionInvalidated
		}
	})
}

// startDecodeSession (re)starts the decode session with format. A running session is invalidated and stopped first.
func (c *Conn) startDecodeSession(format *video.FormatDescription) {
	if c.session.state == sessionReady {
		c.decoder.InvalidateOnFormatChange()
	}
	if c.session.state != sessionUninitialized {
		c.decoder.StopSession()
	}
	c.session.generation++
	c.session.format = format
	sink := &sessionSink{conn: c, generation: c.session.generation}
	if err := c.decoder.StartSession(format, sink); err != nil {
		c.logger.Warnf("[conn] %v", newError(CodecError, errors.Wrap(err, "starting decode session")))
		c.session.state = sessionUninitialized
		return
	}
	c.session.state = sessionReady
	c.logger.Infof("[conn] decode session started, %dx%d", format.Width(), format.Height())
}

func (c *Conn) stopDecodeSession() {
	if c.session.state != sessionUninitialized {
		c.decoder.StopSession()
	}
	c.session.state = sessionUninitialized
	c.session.format = nil
}

// onFormat handles a new decoder configuration record.
func (c *Conn) onFormat(format *video.FormatDescription) {
	if c.session.state == sessionReady && c.session.format.Equal(format) {
		c.logger.Debugf("[conn] decoder configuration unchanged")
		return
	}
	c.startDecodeSession(format)
}

// submitAccessUnit hands au to the decode session, restarting the session first if it isn't ready.
func (c *Conn) submitAccessUnit(au *video.AccessUnit) {
	if c.session.state != sessionReady {
		c.logger.Debugf("[conn] decode session %s, restarting it", c.session.state)
		c.startDecodeSession(c.depacketizer.Format())
		if c.session.state != sessionReady {
			c.logger.Debugf("[conn] no decode session, access unit at %s dropped", au.DTS)
			return
		}
	}
	c.decoder.SubmitAccessUnit(au)
}

type nopDecoder struct{}

func (nopDecoder) StartSession(*video.FormatDescription, DecodeSink) error { return nil }
func (nopDecoder) StopSession()                                            {}
func (nopDecoder) SubmitAccessUnit(*video.AccessUnit)                      {}
func (nopDecoder) InvalidateOnFormatChange()                               {}
