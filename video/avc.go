package video

import (
	"bytes"

	"github.com/nareix/joy4/codec/h264parser"
	"github.com/pkg/errors"
)

var ErrInvalidDecoderConfiguration = errors.New("video: invalid AVC decoder configuration record")

// FormatDescription describes the codec parameters a decoder needs before it can decode access units. It is built from
// the AVC decoder configuration record sent in the sequence header.
type FormatDescription struct {
	codec h264parser.CodecData
}

// ParseDecoderConfigurationRecord parses an AVCDecoderConfigurationRecord (ISO/IEC 14496-15), including the first SPS.
func ParseDecoderConfigurationRecord(record []byte) (*FormatDescription, error) {
	codec, err := h264parser.NewCodecDataFromAVCDecoderConfRecord(record)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidDecoderConfiguration, err.Error())
	}
	return &FormatDescription{codec: codec}, nil
}

func (f *FormatDescription) Width() int {
	return f.codec.Width()
}

func (f *FormatDescription) Height() int {
	return f.codec.Height()
}

// SPS returns the first sequence parameter set of the record.
func (f *FormatDescription) SPS() []byte {
	return f.codec.SPS()
}

// PPS returns the first picture parameter set of the record.
func (f *FormatDescription) PPS() []byte {
	return f.codec.PPS()
}

// NALULengthSize is the number of bytes (1, 2 or 4) of the big-endian length that prefixes each NAL unit of an access
// unit.
func (f *FormatDescription) NALULengthSize() int {
	return int(f.codec.RecordInfo.LengthSizeMinusOne) + 1
}

// Record returns the raw decoder configuration record.
func (f *FormatDescription) Record() []byte {
	return f.codec.AVCDecoderConfRecordBytes()
}

// Equal reports whether both descriptions carry the same decoder configuration.
func (f *FormatDescription) Equal(other *FormatDescription) bool {
	if f == nil || other == nil {
		return f == other
	}
	return bytes.Equal(f.Record(), other.Record())
}
