package audio

import "github.com/pkg/errors"

// As defined in the FLV spec: https://www.adobe.com/content/dam/acom/en/devnet/flv/video_file_format_spec_v10_1.pdf

type Format uint8

const (
	LinearPCMPlatformEndian Format = 0
	ADPCM                   Format = 1
	MP3                     Format = 2
	LinearPCMLittleEndian   Format = 3
	Nellymoser16KHzMono     Format = 4
	Nellymoser8KHzMono      Format = 5
	Nellymoser              Format = 6
	G711AlawLogPCM          Format = 7
	G711MulawLogPCM         Format = 8
	AAC                     Format = 10
	Speex                   Format = 11
	MP38KHz                 Format = 14
	DeviceSpecificSound     Format = 15
)

type SampleRate uint8

const (
	Rate5p5KHz SampleRate = 0
	Rate11KHz  SampleRate = 1
	Rate22KHz  SampleRate = 2
	Rate44KHz  SampleRate = 3
)

type SampleSize uint8

const (
	Size8Bit  SampleSize = 0
	Size16Bit SampleSize = 1
)

type Channel uint8

const (
	Mono   Channel = 0
	Stereo Channel = 1
)

type AACPacketType uint8

const (
	AACSequenceHeader AACPacketType = 0
	AACRaw            AACPacketType = 1
)

var ErrEmptyMessage = errors.New("audio: empty message")

// Header is the first byte of an FLV audio tag (plus the AAC packet type for AAC audio).
type Header struct {
	Format     Format
	SampleRate SampleRate
	SampleSize SampleSize
	Channel    Channel
	// Only meaningful when Format is AAC
	AACPacketType AACPacketType
}

// ParseHeader reads the audio tag header at the start of an audio message payload.
func ParseHeader(payload []byte) (Header, error) {
	if len(payload) == 0 {
		return Header{}, ErrEmptyMessage
	}
	// bits 7-4 => sound format, bits 3-2 => sample rate, bit 1 => sample size, bit 0 => channels
	h := Header{
		Format:     Format(payload[0] >> 4),
		SampleRate: SampleRate((payload[0] >> 2) & 0x03),
		SampleSize: SampleSize((payload[0] >> 1) & 0x01),
		Channel:    Channel(payload[0] & 0x01),
	}
	if h.Format == AAC {
		if len(payload) < 2 {
			return h, errors.Wrap(ErrEmptyMessage, "missing AAC packet type")
		}
		h.AACPacketType = AACPacketType(payload[1])
	}
	return h, nil
}
