package rtmp

import "strconv"

type MessageType uint8

const (
	SetChunkSize MessageType = 1 + iota
	AbortMessage
	Acknowledgement
	UserControlMessage
	WindowAcknowledgementSize
	SetPeerBandwidth

	AudioMessage MessageType = 8
	VideoMessage MessageType = 9

	DataMessageAMF3         MessageType = 15
	SharedObjectMessageAMF3 MessageType = 16
	CommandMessageAMF3      MessageType = 17

	DataMessageAMF0         MessageType = 18
	SharedObjectMessageAMF0 MessageType = 19
	CommandMessageAMF0      MessageType = 20

	AggregateMessage MessageType = 22
)

func (t MessageType) String() string {
	switch t {
	case SetChunkSize:
		return "SetChunkSize"
	case AbortMessage:
		return "Abort"
	case Acknowledgement:
		return "Acknowledgement"
	case UserControlMessage:
		return "UserControl"
	case WindowAcknowledgementSize:
		return "WindowAcknowledgementSize"
	case SetPeerBandwidth:
		return "SetPeerBandwidth"
	case AudioMessage:
		return "Audio"
	case VideoMessage:
		return "Video"
	case DataMessageAMF3:
		return "DataAMF3"
	case SharedObjectMessageAMF3:
		return "SharedObjectAMF3"
	case CommandMessageAMF3:
		return "CommandAMF3"
	case DataMessageAMF0:
		return "DataAMF0"
	case SharedObjectMessageAMF0:
		return "SharedObjectAMF0"
	case CommandMessageAMF0:
		return "CommandAMF0"
	case AggregateMessage:
		return "Aggregate"
	default:
		return "MessageType(" + strconv.Itoa(int(t)) + ")"
	}
}

// Message is a complete RTMP message, reassembled from one or more chunks.
// Timestamps can be either the 24-bit or the 32-bit (extended) value, the chunk layer encodes/decodes them properly.
type Message struct {
	Type          MessageType
	ChunkStreamID uint32
	StreamID      uint32
	// Absolute timestamp of the message: the last type 0 timestamp plus every delta since (wraps around at 32 bits)
	Timestamp uint32
	// Delta carried by the header that started the message. For a type 0 header it's the absolute timestamp.
	TimestampDelta uint32
	// True if the message came in a single type 0 chunk (absolute timestamp), type 3 continuations clear it
	Absolute bool
	Payload  []byte
}
