package audio

import (
	"testing"

	"github.com/pkg/errors"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want Header
	}{
		{"aacSequenceHeader", []byte{0xAF, 0x00, 0x12, 0x10}, Header{AAC, Rate44KHz, Size16Bit, Stereo, AACSequenceHeader}},
		{"aacRaw", []byte{0xAF, 0x01, 0x21}, Header{AAC, Rate44KHz, Size16Bit, Stereo, AACRaw}},
		{"mp3Mono", []byte{0x26, 0xFF}, Header{MP3, Rate11KHz, Size16Bit, Mono, 0}},
		{"speex", []byte{0xB2}, Header{Speex, Rate5p5KHz, Size16Bit, Mono, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHeader(tt.in)
			if err != nil {
				t.Fatalf("ParseHeader returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseHeader_Errors(t *testing.T) {
	if _, err := ParseHeader(nil); err != ErrEmptyMessage {
		t.Errorf("got error %v, want %v", err, ErrEmptyMessage)
	}
	if _, err := ParseHeader([]byte{0xAF}); errors.Cause(err) != ErrEmptyMessage {
		t.Errorf("got error %v, want %v", err, ErrEmptyMessage)
	}
}
