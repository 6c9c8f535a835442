package video

// As defined in the FLV spec: https://www.adobe.com/content/dam/acom/en/devnet/flv/video_file_format_spec_v10_1.pdf

type FrameType uint8

const (
	KeyFrame             FrameType = 1
	InterFrame           FrameType = 2
	DisposableInterFrame FrameType = 3
	GeneratedKeyFrame    FrameType = 4
	// Video info/command frame
	CommandFrame FrameType = 5
)

// Frame types with this bit set are reserved (enhanced RTMP uses it to signal an extended header)
const reservedFrameTypeBit = 0x8

type Codec uint8

const (
	SorensonH263    Codec = 2
	ScreenVideo     Codec = 3
	VP6             Codec = 4
	VP6AlphaChannel Codec = 5
	ScreenVideoV2   Codec = 6
	H264            Codec = 7
)

func (c Codec) String() string {
	switch c {
	case SorensonH263:
		return "Sorenson H.263"
	case ScreenVideo:
		return "Screen video"
	case VP6:
		return "On2 VP6"
	case VP6AlphaChannel:
		return "On2 VP6 with alpha channel"
	case ScreenVideoV2:
		return "Screen video version 2"
	case H264:
		return "AVC"
	default:
		return "unknown"
	}
}

type AVCPacketType uint8

const (
	AVCSequenceHeader AVCPacketType = 0
	AVCNALU           AVCPacketType = 1
	AVCEndOfSequence  AVCPacketType = 2
)

const (
	// Size of the FLV video tag header of an AVC packet: control byte (frame type + codec), AVC packet type and 3 bytes
	// of composition time. The payload starts right after it.
	TagHeaderSize = 5
	// Video messages shorter than this can't carry a decodable payload
	MinMessageSize = 12
)
