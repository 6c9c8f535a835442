package rtmp

import (
	"testing"

	"github.com/pkg/errors"
)

func TestErrorKinds(t *testing.T) {
	errCause := errors.New("cause")

	kindTests := []struct {
		name  string
		err   error
		kind  ErrorKind
		fatal bool
	}{
		{"nil", nil, 0, false},
		{"untagged", errCause, 0, true},
		{"violation", violation(errCause), ProtocolViolation, true},
		{"unauthorized", unauthorizedf("stream key %q", "x"), AuthorizationFailure, true},
		{"warning", warningf("unknown command"), DecodeWarning, false},
		{"codec", newError(CodecError, errCause), CodecError, false},
		{"wrapped", errors.Wrap(warningf("unknown command"), "dispatch"), DecodeWarning, false},
	}

	for _, tt := range kindTests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf got %s, want %s", got, tt.kind)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal got %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestError_Cause(t *testing.T) {
	errCause := errors.New("cause")
	err := violation(errors.Wrap(errCause, "context"))
	if errors.Cause(err) != errCause {
		t.Errorf("errors.Cause got %v, want %v", errors.Cause(err), errCause)
	}
	if !errors.Is(err, errCause) {
		t.Error("errors.Is doesn't find the cause")
	}
	if err.Error() != "protocol violation: context: cause" {
		t.Errorf("got message %q", err.Error())
	}
}
