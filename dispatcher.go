package rtmp

import (
	"github.com/torresjeff/rtmp-ingest/amf/amf0"
	"github.com/torresjeff/rtmp-ingest/audio"
	"github.com/torresjeff/rtmp-ingest/video"
)

// handleMessage is called by the reassembler for every complete message. Errors that aren't fatal are logged here and
// processing goes on.
func (c *Conn) handleMessage(msg *Message) error {
	if c.isStopped() {
		return errStopped
	}
	err := c.dispatch(msg)
	if err != nil && !IsFatal(err) {
		c.logger.Warnf("[conn] %v", err)
		return nil
	}
	return err
}

func (c *Conn) dispatch(msg *Message) error {
	switch msg.Type {
	case CommandMessageAMF0:
		return c.handleCommandMessage(msg)
	case DataMessageAMF0:
		return c.handleDataMessage(msg)
	case SetChunkSize, AbortMessage, Acknowledgement, WindowAcknowledgementSize, SetPeerBandwidth:
		return c.handleControlMessage(msg)
	case UserControlMessage:
		return c.handleUserControlMessage(msg)
	case VideoMessage:
		return c.handleVideoMessage(msg)
	case AudioMessage:
		return c.handleAudioMessage(msg)
	case DataMessageAMF3, SharedObjectMessageAMF3, CommandMessageAMF3:
		return warningf("%s message dropped, AMF3 is not supported", msg.Type)
	case SharedObjectMessageAMF0, AggregateMessage:
		return warningf("%s message dropped, not supported", msg.Type)
	default:
		return warningf("unknown message type %d dropped", uint8(msg.Type))
	}
}

// Data messages (@setDataFrame, onMetaData...) have no effect on the connection.
func (c *Conn) handleDataMessage(msg *Message) error {
	name, err := amf0.NewDecoder(msg.Payload).DecodeString()
	if err != nil {
		return warningf("data message without a name: %v", err)
	}
	c.logger.Debugf("[conn] data message %s ignored (%d bytes)", name, len(msg.Payload))
	return nil
}

// Audio is accepted and dropped.
func (c *Conn) handleAudioMessage(msg *Message) error {
	h, err := audio.ParseHeader(msg.Payload)
	if err != nil {
		return warningf("audio message: %v", err)
	}
	c.logger.Debugf("[conn] audio message ignored: format %d, %d bytes, timestamp %d", h.Format, len(msg.Payload), msg.Timestamp)
	return nil
}

func (c *Conn) handleVideoMessage(msg *Message) error {
	if c.state != publishing {
		return violationf("video message received while %s", c.state)
	}
	// The timestamp used for an absolute header is the message timestamp itself, the delta otherwise
	timestamp := msg.TimestampDelta
	if msg.Absolute {
		timestamp = msg.Timestamp
	}
	pkt, err := c.depacketizer.Depacketize(msg.Payload, timestamp, msg.Absolute)
	if err != nil {
		return violation(err)
	}
	switch pkt.Type {
	case video.AVCSequenceHeader:
		c.logger.Debugf("[conn] AVC sequence header, %dx%d", pkt.Format.Width(), pkt.Format.Height())
		c.onFormat(pkt.Format)
	case video.AVCNALU:
		c.submitAccessUnit(pkt.AccessUnit)
	}
	return nil
}
