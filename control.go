package rtmp

import (
	"encoding/binary"
	"strconv"

	"github.com/torresjeff/rtmp-ingest/config"
)

// User control event types
const (
	EventStreamBegin      uint16 = 0
	EventStreamEOF        uint16 = 1
	EventStreamDry        uint16 = 2
	EventSetBufferLength  uint16 = 3
	EventStreamIsRecorded uint16 = 4
	EventPingRequest      uint16 = 6
	EventPingResponse     uint16 = 7
)

// handleControlMessage handles the protocol control messages (types 1, 2, 3, 5 and 6).
func (c *Conn) handleControlMessage(msg *Message) error {
	switch msg.Type {
	case SetChunkSize:
		size, err := controlUint32(msg)
		if err != nil {
			return err
		}
		// The most significant bit must be 0, and a chunk must carry at least one byte
		if size == 0 || size > config.MaxChunkSize {
			return violationf("set chunk size: invalid chunk size %d", size)
		}
		c.logger.Debugf("[conn] peer chunk size set to %d", size)
		c.reassembler.SetChunkSize(size)
	case AbortMessage:
		csid, err := controlUint32(msg)
		if err != nil {
			return err
		}
		c.logger.Debugf("[conn] abort message on chunk stream %d", csid)
		c.reassembler.Abort(csid)
	case Acknowledgement:
		sequenceNumber, err := controlUint32(msg)
		if err != nil {
			return err
		}
		c.logger.Debugf("[conn] peer acknowledged %d bytes", sequenceNumber)
	case WindowAcknowledgementSize:
		size, err := controlUint32(msg)
		if err != nil {
			return err
		}
		c.logger.Debugf("[conn] peer window acknowledgement size set to %d", size)
		c.peerWindowAckSize = size
	case SetPeerBandwidth:
		if len(msg.Payload) != 5 {
			return violationf("set peer bandwidth: payload must be 5 bytes, got %d", len(msg.Payload))
		}
		c.logger.Debugf("[conn] peer bandwidth %d, limit type %d", binary.BigEndian.Uint32(msg.Payload[:4]), msg.Payload[4])
	}
	return nil
}

func (c *Conn) handleUserControlMessage(msg *Message) error {
	if len(msg.Payload) < 2 {
		return warningf("user control message of %d bytes", len(msg.Payload))
	}
	// First 2 bytes of payload contain event type
	event := binary.BigEndian.Uint16(msg.Payload[:2])
	c.logger.Debugf("[conn] user control event %s (%d bytes of event data)", userControlEventName(event), len(msg.Payload)-2)
	return nil
}

func userControlEventName(event uint16) string {
	switch event {
	case EventStreamBegin:
		return "StreamBegin"
	case EventStreamEOF:
		return "StreamEOF"
	case EventStreamDry:
		return "StreamDry"
	case EventSetBufferLength:
		return "SetBufferLength"
	case EventStreamIsRecorded:
		return "StreamIsRecorded"
	case EventPingRequest:
		return "PingRequest"
	case EventPingResponse:
		return "PingResponse"
	default:
		return strconv.Itoa(int(event))
	}
}

func controlUint32(msg *Message) (uint32, error) {
	if len(msg.Payload) != 4 {
		return 0, violationf("%s: payload must be 4 bytes, got %d", msg.Type, len(msg.Payload))
	}
	return binary.BigEndian.Uint32(msg.Payload), nil
}

// Control messages MUST have message stream ID 0 and be sent in chunk stream ID 2
func newControlMessage(messageType MessageType, payload []byte) *Message {
	return &Message{
		Type:          messageType,
		ChunkStreamID: ProtocolChannel,
		Payload:       payload,
	}
}

func newWindowAckSizeMessage(size uint32) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, size)
	return newControlMessage(WindowAcknowledgementSize, payload)
}

// The limit type is hard = 0, soft = 1 or dynamic = 2. As defined in the RTMP specification:
// 0 - Hard: The peer SHOULD limit its output bandwidth to the indicated window size.
// 1 - Soft: The peer SHOULD limit its output bandwidth to the the window indicated in this message or the limit already in effect, whichever is smaller.
// 2 - Dynamic: If the previous Limit Type was Hard, treat this message as though it was marked Hard, otherwise ignore this message.
func newSetPeerBandwidthMessage(size uint32, limitType uint8) *Message {
	payload := make([]byte, 5)
	binary.BigEndian.PutUint32(payload, size)
	payload[4] = limitType
	return newControlMessage(SetPeerBandwidth, payload)
}

func newSetChunkSizeMessage(size uint32) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, size)
	return newControlMessage(SetChunkSize, payload)
}

func newAckMessage(sequenceNumber uint32) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, sequenceNumber)
	return newControlMessage(Acknowledgement, payload)
}
