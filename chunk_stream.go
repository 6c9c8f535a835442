package rtmp

// ChunkStream holds the state of one chunk stream ID: the header fields later chunks inherit and the payload of the
// message being reassembled.
type ChunkStream struct {
	id uint32
	// Peer's maximum chunk size, shared by every chunk stream of the connection
	chunkSize *uint32

	// False until the first header for this chunk stream has been read
	hasHeader bool
	// True from the header that starts a message until its last payload byte
	pending bool

	messageType   MessageType
	messageLength uint32
	streamID      uint32
	timestamp     uint32
	delta         uint32
	// True if the last non type 3 header carried an extended timestamp (type 3 chunks then carry one too)
	extended bool
	// True while every chunk of the current message came with a type 0 header. Any type 3 chunk clears it.
	absolute bool

	buf []byte
}

func newChunkStream(id uint32, chunkSize *uint32) *ChunkStream {
	return &ChunkStream{id: id, chunkSize: chunkSize}
}

// HandleType0 starts a new message with an absolute timestamp.
func (cs *ChunkStream) HandleType0(messageType MessageType, length, streamID, timestamp uint32, extended bool) (int, error) {
	if cs.pending {
		return 0, cs.incomplete(ChunkType0)
	}
	cs.hasHeader = true
	cs.messageType = messageType
	cs.messageLength = length
	cs.streamID = streamID
	cs.timestamp = timestamp
	// A type 3 header that follows repeats this header, so its delta is the timestamp itself
	cs.delta = timestamp
	cs.extended = extended
	return cs.start(true), nil
}

// HandleType1 starts a new message on the same message stream, the timestamp is a delta from the previous message.
func (cs *ChunkStream) HandleType1(messageType MessageType, length, delta uint32, extended bool) (int, error) {
	if err := cs.checkNewMessage(ChunkType1); err != nil {
		return 0, err
	}
	cs.messageType = messageType
	cs.messageLength = length
	cs.advance(delta, extended)
	return cs.start(false), nil
}

// HandleType2 starts a new message with the same type and length as the previous one.
func (cs *ChunkStream) HandleType2(delta uint32, extended bool) (int, error) {
	if err := cs.checkNewMessage(ChunkType2); err != nil {
		return 0, err
	}
	cs.advance(delta, extended)
	return cs.start(false), nil
}

// HandleType3 either continues the message in progress or, when there is none, starts a new message that repeats the
// previous header (and its delta). Both switch the chunk stream to delta mode, so a type 0 message that spans several
// chunks is timed by its delta.
func (cs *ChunkStream) HandleType3() (int, error) {
	if !cs.hasHeader {
		return 0, violationf("chunk stream %d: type 3 chunk without a previous header", cs.id)
	}
	if cs.pending {
		cs.absolute = false
		return cs.owed(), nil
	}
	cs.timestamp += cs.delta
	return cs.start(false), nil
}

// HandleData appends chunk payload to the message in progress. When the message is complete it's returned and the
// chunk stream is ready for the next header.
func (cs *ChunkStream) HandleData(p []byte) (*Message, error) {
	if !cs.pending {
		return nil, violationf("chunk stream %d: payload without a header", cs.id)
	}
	if uint64(len(cs.buf))+uint64(len(p)) > uint64(cs.messageLength) {
		return nil, violationf("chunk stream %d: %d payload bytes overflow message length %d",
			cs.id, len(cs.buf)+len(p), cs.messageLength)
	}
	cs.buf = append(cs.buf, p...)
	if uint32(len(cs.buf)) < cs.messageLength {
		return nil, nil
	}
	msg := &Message{
		Type:           cs.messageType,
		ChunkStreamID:  cs.id,
		StreamID:       cs.streamID,
		Timestamp:      cs.timestamp,
		TimestampDelta: cs.delta,
		Absolute:       cs.absolute,
		Payload:        cs.buf,
	}
	if msg.Payload == nil {
		msg.Payload = []byte{}
	}
	// The payload now belongs to the message, start the next one on a new buffer
	cs.buf = nil
	cs.pending = false
	return msg, nil
}

// Abort discards the partially received message.
func (cs *ChunkStream) Abort() {
	cs.buf = nil
	cs.pending = false
}

// Pending reports whether a message is being reassembled.
func (cs *ChunkStream) Pending() bool {
	return cs.pending
}

// Extended reports whether type 3 chunks of this chunk stream carry an extended timestamp.
func (cs *ChunkStream) Extended() bool {
	return cs.extended
}

func (cs *ChunkStream) checkNewMessage(chunkType ChunkType) error {
	if !cs.hasHeader {
		return violationf("chunk stream %d: type %d chunk without a previous header", cs.id, chunkType)
	}
	if cs.pending {
		return cs.incomplete(chunkType)
	}
	return nil
}

func (cs *ChunkStream) incomplete(chunkType ChunkType) error {
	return violationf("chunk stream %d: type %d header while a message is incomplete (%d of %d bytes)",
		cs.id, chunkType, len(cs.buf), cs.messageLength)
}

func (cs *ChunkStream) advance(delta uint32, extended bool) {
	// Wraps around at 32 bits
	cs.timestamp += delta
	cs.delta = delta
	cs.extended = extended
}

func (cs *ChunkStream) start(absolute bool) int {
	cs.absolute = absolute
	cs.pending = true
	cs.buf = nil
	return cs.owed()
}

// owed returns the payload bytes of the current chunk: the rest of the message, capped by the chunk size.
func (cs *ChunkStream) owed() int {
	remaining := cs.messageLength - uint32(len(cs.buf))
	if remaining > *cs.chunkSize {
		return int(*cs.chunkSize)
	}
	return int(remaining)
}
