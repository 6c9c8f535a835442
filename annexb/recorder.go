// Package annexb implements a Decoder that records the published H.264 stream as an Annex B elementary stream (the
// format of .h264/.264 files), which most players and ffmpeg read directly.
package annexb

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	rtmp "github.com/torresjeff/rtmp-ingest"
	"github.com/torresjeff/rtmp-ingest/video"
	"go.uber.org/zap"
)

var (
	ErrMalformedAccessUnit = errors.New("annexb: malformed access unit")
	ErrNoSession           = errors.New("annexb: no session")
)

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// Number of access units waiting to be written before SubmitAccessUnit blocks
const queueSize = 64

// Recorder writes each access unit in Annex B format to the writer returned by open. The writer is opened when a
// session starts and closed when it stops. The parameter sets are written at the start of every session and before
// every key frame, so the output can be decoded from any key frame.
type Recorder struct {
	open   func() (io.WriteCloser, error)
	logger *zap.SugaredLogger

	mu      sync.Mutex
	session *session
}

type session struct {
	format *video.FormatDescription
	sink   rtmp.DecodeSink
	w      io.WriteCloser
	queue  chan *video.AccessUnit
	done   chan struct{}
}

func NewRecorder(open func() (io.WriteCloser, error), logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{open: open, logger: logger.Sugar()}
}

// NewFileRecorder returns a recorder that appends to the file at path, creating it if needed.
func NewFileRecorder(path string, logger *zap.Logger) *Recorder {
	return NewRecorder(func() (io.WriteCloser, error) {
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	}, logger)
}

func (r *Recorder) StartSession(format *video.FormatDescription, sink rtmp.DecodeSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		r.stop()
	}
	w, err := r.open()
	if err != nil {
		return errors.Wrap(err, "annexb: open")
	}
	s := &session{
		format: format,
		sink:   sink,
		w:      w,
		queue:  make(chan *video.AccessUnit, queueSize),
		done:   make(chan struct{}),
	}
	if _, err := w.Write(parameterSets(format)); err != nil {
		w.Close()
		return errors.Wrap(err, "annexb: write parameter sets")
	}
	r.session = s
	go r.run(s)
	sink.FormatChanged(format)
	r.logger.Debugf("[annexb] session started, %dx%d", format.Width(), format.Height())
	return nil
}

func (r *Recorder) StopSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stop()
}

func (r *Recorder) stop() {
	s := r.session
	if s == nil {
		return
	}
	r.session = nil
	close(s.queue)
	<-s.done
	if err := s.w.Close(); err != nil {
		r.logger.Warnf("[annexb] close: %v", err)
	}
	r.logger.Debugf("[annexb] session stopped")
}

func (r *Recorder) SubmitAccessUnit(au *video.AccessUnit) {
	r.mu.Lock()
	s := r.session
	r.mu.Unlock()
	if s == nil {
		r.logger.Debugf("[annexb] %v, access unit dropped", ErrNoSession)
		return
	}
	s.queue <- au
}

// InvalidateOnFormatChange drops the access units waiting to be written: they belong to the old format.
func (r *Recorder) InvalidateOnFormatChange() {
	r.mu.Lock()
	s := r.session
	r.mu.Unlock()
	if s == nil {
		return
	}
	for {
		select {
		case <-s.queue:
		default:
			return
		}
	}
}

// run writes the access units of s until its queue is closed. After a write error nothing else is written and the
// session is reported as invalidated.
func (r *Recorder) run(s *session) {
	defer close(s.done)
	failed := false
	for au := range s.queue {
		if failed {
			continue
		}
		data, err := Convert(au.Data, s.format.NALULengthSize())
		if err != nil {
			s.sink.DecodeFailed(err)
			continue
		}
		if au.KeyFrame {
			data = append(parameterSets(s.format), data...)
		}
		if _, err := s.w.Write(data); err != nil {
			failed = true
			s.sink.DecodeFailed(errors.Wrap(err, "annexb: write"))
			s.sink.SessionInvalidated()
			continue
		}
		s.sink.FrameDecoded(rtmp.DecodedFrame{
			Data:     data,
			Width:    s.format.Width(),
			Height:   s.format.Height(),
			PTS:      au.PTS,
			Duration: au.Duration,
			KeyFrame: au.KeyFrame,
		})
	}
}

// Convert replaces the big-endian length prefix (lengthSize bytes) of every NAL unit of data with a start code.
func Convert(data []byte, lengthSize int) ([]byte, error) {
	out := make([]byte, 0, len(data)+len(startCode))
	for len(data) > 0 {
		if len(data) < lengthSize {
			return nil, errors.Wrapf(ErrMalformedAccessUnit, "%d trailing bytes", len(data))
		}
		var n int
		switch lengthSize {
		case 1:
			n = int(data[0])
		case 2:
			n = int(binary.BigEndian.Uint16(data))
		case 4:
			n = int(binary.BigEndian.Uint32(data))
		default:
			return nil, errors.Wrapf(ErrMalformedAccessUnit, "invalid NAL unit length size %d", lengthSize)
		}
		data = data[lengthSize:]
		if n == 0 || n > len(data) {
			return nil, errors.Wrapf(ErrMalformedAccessUnit, "NAL unit of %d bytes, %d available", n, len(data))
		}
		out = append(out, startCode...)
		out = append(out, data[:n]...)
		data = data[n:]
	}
	return out, nil
}

func parameterSets(format *video.FormatDescription) []byte {
	sps, pps := format.SPS(), format.PPS()
	out := make([]byte, 0, 2*len(startCode)+len(sps)+len(pps))
	out = append(out, startCode...)
	out = append(out, sps...)
	out = append(out, startCode...)
	return append(out, pps...)
}
