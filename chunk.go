package rtmp

type ChunkType uint8

const (
	ChunkType0 ChunkType = iota
	ChunkType1
	ChunkType2
	ChunkType3
)

// Message header length of each chunk type. Type 3 chunks don't carry a message header.
var messageHeaderLength = [...]int{11, 7, 3, 0}

const (
	// Timestamp field value that announces a 4 byte extended timestamp after the message header
	extendedTimestamp       = 0xFFFFFF
	extendedTimestampLength = 4

	DefaultMaximumChunkSize = 128

	// Chunk stream IDs 0 and 1 are reserved to signal the 2 and 3 byte forms of the basic header
	minChunkStreamID = 2
	maxChunkStreamID = 65599
)

// Chunk stream ID reserved for protocol control messages. Command replies are sent on the chunk stream of the request.
const ProtocolChannel uint32 = 2

const (
	LimitHard    uint8 = 0
	LimitSoft    uint8 = 1
	LimitDynamic uint8 = 2
)

// basicHeaderLength returns the length of the basic header that starts with b.
func basicHeaderLength(b byte) int {
	switch b & 0x3F {
	case 0:
		return 2
	case 1:
		return 3
	default:
		return 1
	}
}

// parseBasicHeader decodes a complete basic header (see basicHeaderLength).
func parseBasicHeader(h []byte) (ChunkType, uint32) {
	chunkType := ChunkType(h[0] >> 6)
	switch h[0] & 0x3F {
	case 0:
		// 2 byte form: ID - 64 in the second byte
		return chunkType, uint32(h[1]) + 64
	case 1:
		// 3 byte form: ID - 64 in the last 2 bytes, least significant byte first
		return chunkType, uint32(h[2])*256 + uint32(h[1]) + 64
	default:
		return chunkType, uint32(h[0] & 0x3F)
	}
}

// appendBasicHeader appends the shortest basic header for the chunk stream ID csid.
func appendBasicHeader(b []byte, chunkType ChunkType, csid uint32) []byte {
	first := byte(chunkType) << 6
	switch {
	case csid < 64:
		return append(b, first|byte(csid))
	case csid < 64+256:
		return append(b, first, byte(csid-64))
	default:
		id := csid - 64
		return append(b, first|1, byte(id), byte(id>>8))
	}
}
