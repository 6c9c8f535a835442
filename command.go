package rtmp

import (
	"net/url"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/amf/amf0"
	"github.com/torresjeff/rtmp-ingest/config"
)

const NetConnectionSuccess = "NetConnection.Connect.Success"
const NetStreamPublishStart = "NetStream.Publish.Start"

// Command names
const (
	commandConnect       = "connect"
	commandReleaseStream = "releaseStream"
	commandFCPublish     = "FCPublish"
	commandFCUnpublish   = "FCUnpublish"
	commandCreateStream  = "createStream"
	commandDeleteStream  = "deleteStream"
	commandPublish       = "publish"
)

// Stages of the publish handshake
type commandState uint8

const (
	awaitingConnect commandState = iota
	connected
	streamCreated
	publishing
)

func (s commandState) String() string {
	switch s {
	case awaitingConnect:
		return "awaiting connect"
	case connected:
		return "connected"
	case streamCreated:
		return "stream created"
	case publishing:
		return "publishing"
	default:
		return "unknown"
	}
}

// command is a decoded AMF0 command message.
type command struct {
	name          string
	transactionID float64
	object        map[string]interface{}
	// First optional argument, nil if the message didn't carry one
	argument    interface{}
	hasArgument bool
}

// decodeCommand decodes the command name, transaction ID, command object and first argument of an AMF0 command.
func decodeCommand(payload []byte) (command, error) {
	var cmd command
	d := amf0.NewDecoder(payload)
	var err error
	if cmd.name, err = d.DecodeString(); err != nil {
		return cmd, violation(errors.Wrap(err, "command name"))
	}
	if cmd.transactionID, err = d.DecodeNumber(); err != nil {
		return cmd, violation(errors.Wrapf(err, "%s: transaction ID", cmd.name))
	}
	object, err := d.Decode()
	if err != nil {
		return cmd, violation(errors.Wrapf(err, "%s: command object", cmd.name))
	}
	switch o := object.(type) {
	case map[string]interface{}:
		cmd.object = o
	case amf0.ECMAArray:
		cmd.object = o
	case nil:
	default:
		return cmd, violationf("%s: command object of type %T", cmd.name, object)
	}
	if d.Len() > 0 {
		if cmd.argument, err = d.Decode(); err != nil {
			return cmd, violation(errors.Wrapf(err, "%s: argument", cmd.name))
		}
		cmd.hasArgument = true
	}
	return cmd, nil
}

func (c *Conn) handleCommandMessage(msg *Message) error {
	cmd, err := decodeCommand(msg.Payload)
	if err != nil {
		return err
	}
	c.logger.Debugf("[conn] received command %s, transaction ID %v", cmd.name, cmd.transactionID)

	switch cmd.name {
	case commandConnect:
		return c.onConnect(msg, cmd)
	case commandReleaseStream, commandFCPublish, commandFCUnpublish, commandDeleteStream:
		// Legacy commands, nothing to do
		return nil
	case commandCreateStream:
		return c.onCreateStream(msg, cmd)
	case commandPublish:
		return c.onPublish(msg, cmd)
	default:
		return warningf("unknown command %q ignored", cmd.name)
	}
}

func (c *Conn) onConnect(msg *Message, cmd command) error {
	if c.state != awaitingConnect {
		return violationf("connect received while %s", c.state)
	}
	tcURL, ok := cmd.object["tcUrl"].(string)
	if !ok {
		return unauthorizedf("connect: missing tcUrl")
	}
	u, err := url.Parse(tcURL)
	if err != nil {
		return newError(AuthorizationFailure, errors.Wrapf(err, "connect: tcUrl %q", tcURL))
	}
	if u.Path != c.cfg.IngestPath {
		return unauthorizedf("connect: tcUrl path %q doesn't match %q", u.Path, c.cfg.IngestPath)
	}
	c.state = connected
	c.logger.Infof("[conn] connect accepted, tcUrl %s", tcURL)

	if err := c.send(newWindowAckSizeMessage(c.cfg.WindowAckSize)); err != nil {
		return err
	}
	if err := c.send(newSetPeerBandwidthMessage(c.cfg.PeerBandwidth, LimitDynamic)); err != nil {
		return err
	}
	if err := c.send(newSetChunkSizeMessage(c.cfg.ChunkSize)); err != nil {
		return err
	}
	c.writer.SetChunkSize(c.cfg.ChunkSize)

	properties := map[string]interface{}{
		"fmsVer":       config.FlashMediaServerVersion,
		"capabilities": config.Capabilities,
		"mode":         config.Mode,
	}
	information := map[string]interface{}{
		"level":       "status",
		"code":        NetConnectionSuccess,
		"description": "Connection succeeded.",
		"data": map[string]interface{}{
			"version": "3,5,7,7009",
		},
		"objectEncoding": 0, // AMFVersion0
	}
	return c.sendCommand(msg, "_result", cmd.transactionID, properties, information)
}

func (c *Conn) onCreateStream(msg *Message, cmd command) error {
	if c.state == awaitingConnect {
		return violationf("createStream received before connect")
	}
	if c.state == connected {
		c.state = streamCreated
	}
	return c.sendCommand(msg, "_result", cmd.transactionID, nil, config.DefaultStreamID)
}

func (c *Conn) onPublish(msg *Message, cmd command) error {
	switch c.state {
	case awaitingConnect, connected:
		return violationf("publish received while %s", c.state)
	case publishing:
		return violationf("publish received while already publishing %q", c.streamKey)
	}
	if !cmd.hasArgument {
		return unauthorizedf("publish: missing stream key")
	}
	streamKey, ok := cmd.argument.(string)
	if !ok {
		return unauthorizedf("publish: stream key is a %T, not a string", cmd.argument)
	}
	if !c.auth.IsStreamKeyAuthorized(streamKey) {
		return unauthorizedf("publish: stream key not authorized")
	}
	c.setStreamKey(streamKey)
	c.state = publishing
	c.logger.Infof("[conn] publishing stream")

	c.observer.OnPublishStart(streamKey)
	c.observer.OnClientReady(c)

	status := map[string]interface{}{
		"level":       "status",
		"code":        NetStreamPublishStart,
		"description": "Start publishing.",
	}
	return c.sendCommand(msg, "onStatus", cmd.transactionID, nil, status)
}

// sendCommand replies to msg on the chunk stream and message stream it came in.
func (c *Conn) sendCommand(msg *Message, name string, transactionID float64, commandObject interface{}, args ...interface{}) error {
	body, err := amf0.EncodeCommand(name, transactionID, commandObject, args...)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", name)
	}
	return c.send(&Message{
		Type:          CommandMessageAMF0,
		ChunkStreamID: msg.ChunkStreamID,
		StreamID:      msg.StreamID,
		Payload:       body,
	})
}
