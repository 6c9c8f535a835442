package rtmp

import (
	"encoding/binary"

	"github.com/torresjeff/rtmp-ingest/internal/binary24"
)

// Largest header: 3 byte basic header + 11 byte message header + extended timestamp
const maxChunkHeaderLength = 3 + 11 + extendedTimestampLength

// ChunkReassembler parses the chunk stream of a connection and reassembles messages. Bytes are pushed with Feed as
// they arrive; chunk headers and payloads may be split at any byte.
type ChunkReassembler struct {
	chunkSize  uint32
	maxStreams int
	streams    map[uint32]*ChunkStream

	// Header bytes received so far, while a chunk header is incomplete
	header []byte
	// Chunk stream of the chunk whose payload is being read, nil while reading a header
	current *ChunkStream
	// Payload bytes of the current chunk not received yet
	owed int
}

func NewChunkReassembler(maxStreams int) *ChunkReassembler {
	return &ChunkReassembler{
		chunkSize:  DefaultMaximumChunkSize,
		maxStreams: maxStreams,
		streams:    make(map[uint32]*ChunkStream),
		header:     make([]byte, 0, maxChunkHeaderLength),
	}
}

// SetChunkSize changes the maximum chunk size used by the peer. It applies from the next chunk header.
func (r *ChunkReassembler) SetChunkSize(size uint32) {
	r.chunkSize = size
}

func (r *ChunkReassembler) ChunkSize() uint32 {
	return r.chunkSize
}

// Abort discards the partial message of chunk stream csid. Unknown chunk streams are ignored.
func (r *ChunkReassembler) Abort(csid uint32) {
	if cs, ok := r.streams[csid]; ok {
		cs.Abort()
	}
}

// Feed consumes p, calling emit with every message completed, in order. If emit returns an error, parsing stops and
// the error is returned. Any other error is a ProtocolViolation and the reassembler must not be used anymore.
func (r *ChunkReassembler) Feed(p []byte, emit func(*Message) error) error {
	for len(p) > 0 {
		if r.current == nil {
			n, err := r.readHeader(p)
			p = p[n:]
			if err != nil {
				return err
			}
			if r.current == nil {
				// Header still incomplete
				return nil
			}
			if r.owed == 0 {
				// Zero length message
				if err := r.data(nil, emit); err != nil {
					return err
				}
			}
			continue
		}
		n := r.owed
		if n > len(p) {
			n = len(p)
		}
		err := r.data(p[:n], emit)
		p = p[n:]
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *ChunkReassembler) data(p []byte, emit func(*Message) error) error {
	cs := r.current
	r.owed -= len(p)
	if r.owed == 0 {
		r.current = nil
	}
	msg, err := cs.HandleData(p)
	if err != nil {
		return err
	}
	if msg != nil {
		return emit(msg)
	}
	return nil
}

// readHeader accumulates header bytes from p and returns how many were consumed. Once the header is complete it's
// applied to its chunk stream and r.current is set.
func (r *ChunkReassembler) readHeader(p []byte) (int, error) {
	consumed := 0
	for {
		need := r.headerLength()
		if len(r.header) == need {
			break
		}
		take := need - len(r.header)
		if take > len(p)-consumed {
			take = len(p) - consumed
		}
		r.header = append(r.header, p[consumed:consumed+take]...)
		consumed += take
		if len(r.header) < need {
			return consumed, nil
		}
	}
	err := r.applyHeader()
	r.header = r.header[:0]
	return consumed, err
}

// headerLength returns the length of the chunk header being read, as far as it can be known from the bytes received.
func (r *ChunkReassembler) headerLength() int {
	if len(r.header) == 0 {
		return 1
	}
	basic := basicHeaderLength(r.header[0])
	if len(r.header) < basic {
		return basic
	}
	chunkType, csid := parseBasicHeader(r.header)
	length := basic + messageHeaderLength[chunkType]
	if len(r.header) < length {
		return length
	}
	if chunkType == ChunkType3 {
		if cs, ok := r.streams[csid]; ok && cs.Extended() {
			length += extendedTimestampLength
		}
	} else if binary24.BigEndian.Uint24(r.header[basic:basic+3]) == extendedTimestamp {
		length += extendedTimestampLength
	}
	return length
}

func (r *ChunkReassembler) applyHeader() error {
	h := r.header
	basic := basicHeaderLength(h[0])
	chunkType, csid := parseBasicHeader(h)

	cs, ok := r.streams[csid]
	if !ok {
		if len(r.streams) >= r.maxStreams {
			return violationf("too many chunk streams (limit %d), rejecting chunk stream %d", r.maxStreams, csid)
		}
		cs = newChunkStream(csid, &r.chunkSize)
		r.streams[csid] = cs
	}

	mh := h[basic:]
	var timestamp uint32
	extended := false
	if chunkType != ChunkType3 {
		//0                   1                   2                   3
		//0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
		//+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
		//|                   timestamp                   |message length |
		//+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
		//|     message length (cont)     |message type id| msg stream id |
		//+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
		//|           message stream id (cont)            |
		//+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
		// Type 1 stops after the message type ID, type 2 after the timestamp (delta)
		timestamp = binary24.BigEndian.Uint24(mh[:3])
		if timestamp == extendedTimestamp {
			extended = true
			off := messageHeaderLength[chunkType]
			timestamp = binary.BigEndian.Uint32(mh[off : off+extendedTimestampLength])
		}
	}

	var err error
	switch chunkType {
	case ChunkType0:
		length := binary24.BigEndian.Uint24(mh[3:6])
		// NOTE: message stream ID is stored in little endian format
		streamID := binary.LittleEndian.Uint32(mh[7:11])
		r.owed, err = cs.HandleType0(MessageType(mh[6]), length, streamID, timestamp, extended)
	case ChunkType1:
		r.owed, err = cs.HandleType1(MessageType(mh[6]), binary24.BigEndian.Uint24(mh[3:6]), timestamp, extended)
	case ChunkType2:
		r.owed, err = cs.HandleType2(timestamp, extended)
	case ChunkType3:
		// The extended timestamp of a type 3 chunk (if any) repeats the one of the previous header
		r.owed, err = cs.HandleType3()
	}
	if err != nil {
		return err
	}
	r.current = cs
	return nil
}
