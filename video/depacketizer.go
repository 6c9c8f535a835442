package video

import (
	"time"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/internal/binary24"
)

var (
	ErrMessageTooShort             = errors.New("video: message too short")
	ErrReservedFrameType           = errors.New("video: reserved frame type")
	ErrUnsupportedCodec            = errors.New("video: unsupported codec, only AVC is supported")
	ErrUnsupportedPacketType       = errors.New("video: unsupported AVC packet type")
	ErrMissingDecoderConfiguration = errors.New("video: NAL unit received before a decoder configuration record")
)

// AccessUnit is one complete coded frame: length-prefixed NAL units with the video tag header stripped.
type AccessUnit struct {
	Data     []byte
	PTS      time.Duration
	DTS      time.Duration
	Duration time.Duration
	KeyFrame bool
}

// Packet is the result of depacketizing one video message. Exactly one of Format and AccessUnit is set, depending on
// Type.
type Packet struct {
	Type       AVCPacketType
	Format     *FormatDescription
	AccessUnit *AccessUnit
}

// Depacketizer turns RTMP video messages into format descriptions and access units. It keeps the per connection state
// needed to do so: the last decoder configuration and the running presentation clock.
type Depacketizer struct {
	format *FormatDescription

	hasZero bool
	// First absolute timestamp seen, every absolute timestamp is measured from it
	zero uint32
	// Running decode clock in milliseconds
	clock int64
}

func NewDepacketizer() *Depacketizer {
	return &Depacketizer{}
}

// Format returns the last successfully parsed decoder configuration, or nil if none has been received yet.
func (d *Depacketizer) Format() *FormatDescription {
	return d.format
}

// Depacketize parses the video message payload. When absolute is true timestamp is the absolute message timestamp
// (the message started with a type 0 chunk), otherwise it's the timestamp delta carried by the chunk header.
func (d *Depacketizer) Depacketize(payload []byte, timestamp uint32, absolute bool) (Packet, error) {
	if len(payload) < MinMessageSize {
		return Packet{}, errors.Wrapf(ErrMessageTooShort, "%d bytes", len(payload))
	}
	// byte 0 => frame type (4 bits) + codec ID (4 bits)
	frameType := FrameType(payload[0] >> 4)
	if frameType&reservedFrameTypeBit != 0 {
		return Packet{}, errors.Wrapf(ErrReservedFrameType, "frame type %d", frameType)
	}
	codec := Codec(payload[0] & 0x0F)
	if codec != H264 {
		return Packet{}, errors.Wrapf(ErrUnsupportedCodec, "codec %d (%s)", codec, codec)
	}

	packetType := AVCPacketType(payload[1])
	switch packetType {
	case AVCSequenceHeader:
		format, err := ParseDecoderConfigurationRecord(payload[TagHeaderSize:])
		if err != nil {
			return Packet{}, err
		}
		d.format = format
		return Packet{Type: AVCSequenceHeader, Format: format}, nil
	case AVCNALU:
		if d.format == nil {
			return Packet{}, ErrMissingDecoderConfiguration
		}
		// bytes 2-4 => composition time offset in milliseconds (signed)
		compositionTime := int64(binary24.BigEndian.Int24(payload[2:5]))
		duration := d.advance(timestamp, absolute)
		au := &AccessUnit{
			Data:     payload[TagHeaderSize:],
			PTS:      time.Duration(d.clock+compositionTime) * time.Millisecond,
			DTS:      time.Duration(d.clock) * time.Millisecond,
			Duration: time.Duration(duration) * time.Millisecond,
			KeyFrame: frameType&0x7 == KeyFrame,
		}
		return Packet{Type: AVCNALU, AccessUnit: au}, nil
	default:
		return Packet{}, errors.Wrapf(ErrUnsupportedPacketType, "packet type %d", packetType)
	}
}

// advance moves the running clock forward and returns the duration of the frame, both in milliseconds.
func (d *Depacketizer) advance(timestamp uint32, absolute bool) int64 {
	if !absolute {
		d.clock += int64(timestamp)
		return int64(timestamp)
	}
	if !d.hasZero {
		d.zero = timestamp
		d.hasZero = true
	}
	// 32-bit subtraction so that a timestamp that wrapped around is still measured from the zero reference
	elapsed := int64(timestamp - d.zero)
	duration := elapsed - d.clock
	d.clock = elapsed
	return duration
}
