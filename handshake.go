package rtmp

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/rand"
)

var ErrUnsupportedRTMPVersion = errors.New("The version of RTMP is not supported")
var ErrWrongC2Message = errors.New("server handshake: s1 and c2 handshake messages do not match")

const RtmpVersion3 = 3

const handshakeMessageLength = 1536

type handshakeStage uint8

const (
	waitingForC0C1 handshakeStage = iota
	waitingForC2
	handshakeDone
)

// handshake runs the server side of the simple RTMP handshake over bytes pushed as they arrive:
// C0+C1 are answered with S0+S1+S2, then C2 is read. Whatever follows C2 belongs to the chunk stream.
type handshake struct {
	stage handshakeStage
	buf   []byte
	s1    []byte
}

func newHandshake() *handshake {
	return &handshake{buf: make([]byte, 0, 1+handshakeMessageLength)}
}

func (h *handshake) done() bool {
	return h.stage == handshakeDone
}

// feed consumes handshake bytes from p. It returns how many bytes were consumed and, once C0+C1 are complete, the
// S0+S1+S2 response that must be sent to the client. The returned error is ErrWrongC2Message (wrapped) when C2 doesn't
// echo S1, which callers may treat as a warning: the handshake is done anyway.
func (h *handshake) feed(p []byte) (n int, response []byte, err error) {
	switch h.stage {
	case waitingForC0C1:
		if len(h.buf) == 0 && len(p) > 0 && p[0] != RtmpVersion3 {
			return 0, nil, violation(errors.Wrapf(ErrUnsupportedRTMPVersion, "version %d", p[0]))
		}
		n = h.fill(p, 1+handshakeMessageLength)
		if len(h.buf) < 1+handshakeMessageLength {
			return n, nil, nil
		}
		response, err = h.s0s1s2(h.buf[1:])
		if err != nil {
			return n, nil, err
		}
		h.buf = h.buf[:0]
		h.stage = waitingForC2
		// C2 may have arrived with C0+C1
		m, _, err := h.feed(p[n:])
		return n + m, response, err
	case waitingForC2:
		n = h.fill(p, handshakeMessageLength)
		if len(h.buf) < handshakeMessageLength {
			return n, nil, nil
		}
		h.stage = handshakeDone
		c2 := h.buf
		h.buf = nil
		if !bytes.Equal(c2, h.s1) {
			return n, nil, newError(DecodeWarning, ErrWrongC2Message)
		}
		return n, nil, nil
	default:
		return 0, nil, nil
	}
}

func (h *handshake) fill(p []byte, size int) int {
	n := size - len(h.buf)
	if n > len(p) {
		n = len(p)
	}
	h.buf = append(h.buf, p[:n]...)
	return n
}

// s0s1s2 generates the s0, s1, and s2 sequence for the given c1 message
func (h *handshake) s0s1s2(c1 []byte) ([]byte, error) {
	s0s1s2 := make([]byte, 1+2*handshakeMessageLength)
	// s0 message is stored in byte 0
	s0s1s2[0] = RtmpVersion3
	// s1 message is stored in bytes 1-1536: time (4 bytes) and zero (4 bytes) are left at 0, the rest is random data
	s1 := s0s1s2[1 : 1+handshakeMessageLength]
	if err := rand.GenerateCryptoSafeRandomData(s1[8:]); err != nil {
		return nil, errors.Wrap(err, "server handshake: generating s1")
	}
	h.s1 = append([]byte(nil), s1...)
	// s2 message is stored in bytes 1537-3073, it echoes c1
	copy(s0s1s2[1+handshakeMessageLength:], c1)
	return s0s1s2, nil
}
