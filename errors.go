package rtmp

import (
	"fmt"

	"github.com/pkg/errors"
)

var ErrNilWriter = errors.New("Expected a non-nil writer, but got a nil value")
var ErrNilReader = errors.New("Expected a non-nil reader, but got a nil value")

// errStopped is returned internally to unwind message processing once the connection has been stopped.
var errStopped = errors.New("conn: stopped")

// ErrorKind classifies the errors produced while processing a connection.
type ErrorKind uint8

const (
	// ProtocolViolation errors (malformed chunks, wrong-length control messages, unsupported video) close the connection.
	ProtocolViolation ErrorKind = iota + 1
	// AuthorizationFailure errors (wrong tcUrl path, unknown stream key) close the connection.
	AuthorizationFailure
	// DecodeWarning errors are logged and processing continues.
	DecodeWarning
	// CodecError errors are reported by the decoder for a single access unit. The frame is dropped.
	CodecError
)

func (k ErrorKind) String() string {
	switch k {
	case ProtocolViolation:
		return "protocol violation"
	case AuthorizationFailure:
		return "authorization failure"
	case DecodeWarning:
		return "decode warning"
	case CodecError:
		return "codec error"
	default:
		return "unknown"
	}
}

// Error is an error tagged with its ErrorKind.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

// Cause returns the underlying error, so errors.Cause reaches the original sentinel.
func (e *Error) Cause() error {
	return e.Err
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind of the first *Error in err's chain, or 0 if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsFatal reports whether err must close the connection. Errors that don't carry a kind are fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case DecodeWarning, CodecError:
		return false
	default:
		return true
	}
}

func newError(kind ErrorKind, err error) error {
	return &Error{Kind: kind, Err: err}
}

func violation(err error) error {
	return newError(ProtocolViolation, err)
}

func violationf(format string, args ...interface{}) error {
	return newError(ProtocolViolation, errors.New(fmt.Sprintf(format, args...)))
}

func unauthorizedf(format string, args ...interface{}) error {
	return newError(AuthorizationFailure, errors.New(fmt.Sprintf(format, args...)))
}

func warningf(format string, args ...interface{}) error {
	return newError(DecodeWarning, errors.New(fmt.Sprintf(format, args...)))
}
