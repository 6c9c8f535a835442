package rtmp

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/internal/binary24"
)

// ChunkWriter splits outgoing messages into chunks of at most chunkSize payload bytes: a type 0 chunk followed by as
// many type 3 chunks as needed. Every message is flushed as a whole.
type ChunkWriter struct {
	w         WriteFlusher
	chunkSize uint32
	buf       []byte
}

func NewChunkWriter(w WriteFlusher) *ChunkWriter {
	return &ChunkWriter{w: w, chunkSize: DefaultMaximumChunkSize}
}

// SetChunkSize changes the chunk size of the messages written from now on. The peer must have been told with a Set
// Chunk Size message first.
func (cw *ChunkWriter) SetChunkSize(size uint32) {
	cw.chunkSize = size
}

func (cw *ChunkWriter) ChunkSize() uint32 {
	return cw.chunkSize
}

// WriteMessage frames msg on chunk stream msg.ChunkStreamID and flushes it.
func (cw *ChunkWriter) WriteMessage(msg *Message) error {
	csid := msg.ChunkStreamID
	if csid < minChunkStreamID || csid > maxChunkStreamID {
		return errors.Errorf("chunk writer: invalid chunk stream ID %d", csid)
	}
	if len(msg.Payload) > 0xFFFFFF {
		return errors.Errorf("chunk writer: message of %d bytes is too long", len(msg.Payload))
	}

	extended := msg.Timestamp >= extendedTimestamp
	var header [11]byte
	if extended {
		binary24.BigEndian.PutUint24(header[:3], extendedTimestamp)
	} else {
		binary24.BigEndian.PutUint24(header[:3], msg.Timestamp)
	}
	binary24.BigEndian.PutUint24(header[3:6], uint32(len(msg.Payload)))
	header[6] = byte(msg.Type)
	// NOTE: message stream ID is stored in little endian format
	binary.LittleEndian.PutUint32(header[7:], msg.StreamID)

	b := appendBasicHeader(cw.buf[:0], ChunkType0, csid)
	b = append(b, header[:]...)
	b = cw.appendExtendedTimestamp(b, extended, msg.Timestamp)

	payload := msg.Payload
	for {
		n := len(payload)
		if n > int(cw.chunkSize) {
			n = int(cw.chunkSize)
		}
		b = append(b, payload[:n]...)
		payload = payload[n:]
		if len(payload) == 0 {
			break
		}
		// Continuation chunk: type 3 header on the same chunk stream
		b = appendBasicHeader(b, ChunkType3, csid)
		b = cw.appendExtendedTimestamp(b, extended, msg.Timestamp)
	}
	cw.buf = b

	if _, err := cw.w.Write(b); err != nil {
		return errors.Wrap(err, "chunk writer: write")
	}
	return errors.Wrap(cw.w.Flush(), "chunk writer: flush")
}

func (cw *ChunkWriter) appendExtendedTimestamp(b []byte, extended bool, timestamp uint32) []byte {
	if !extended {
		return b
	}
	var ts [extendedTimestampLength]byte
	binary.BigEndian.PutUint32(ts[:], timestamp)
	return append(b, ts[:]...)
}
