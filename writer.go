package rtmp

import (
	"bufio"
	"io"
)

type WriteFlusher interface {
	io.Writer
	Flusher
}

type Flusher interface {
	Flush() error
}

// NewWriter returns w itself if it already knows how to flush (for example a *bufio.Writer), otherwise w is wrapped in
// a buffered writer of size bytes.
func NewWriter(w io.Writer, size int) (WriteFlusher, error) {
	if w == nil {
		return nil, ErrNilWriter
	}
	if wf, ok := w.(WriteFlusher); ok {
		return wf, nil
	}
	return bufio.NewWriterSize(w, size), nil
}
