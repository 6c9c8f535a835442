package rtmp

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
)

const testMaxStreams = 64

func putTimestamp(b []byte, timestamp uint32) (extended []byte) {
	if timestamp >= extendedTimestamp {
		b[0], b[1], b[2] = 0xFF, 0xFF, 0xFF
		extended = make([]byte, 4)
		binary.BigEndian.PutUint32(extended, timestamp)
		return extended
	}
	b[0], b[1], b[2] = byte(timestamp>>16), byte(timestamp>>8), byte(timestamp)
	return nil
}

func type0Header(csid, timestamp uint32, length int, messageType MessageType, streamID uint32) []byte {
	h := appendBasicHeader(nil, ChunkType0, csid)
	mh := make([]byte, 11)
	extended := putTimestamp(mh, timestamp)
	mh[3], mh[4], mh[5] = byte(length>>16), byte(length>>8), byte(length)
	mh[6] = byte(messageType)
	binary.LittleEndian.PutUint32(mh[7:], streamID)
	return append(append(h, mh...), extended...)
}

func type1Header(csid, delta uint32, length int, messageType MessageType) []byte {
	h := appendBasicHeader(nil, ChunkType1, csid)
	mh := make([]byte, 7)
	extended := putTimestamp(mh, delta)
	mh[3], mh[4], mh[5] = byte(length>>16), byte(length>>8), byte(length)
	mh[6] = byte(messageType)
	return append(append(h, mh...), extended...)
}

func type2Header(csid, delta uint32) []byte {
	h := appendBasicHeader(nil, ChunkType2, csid)
	mh := make([]byte, 3)
	extended := putTimestamp(mh, delta)
	return append(append(h, mh...), extended...)
}

func type3Header(csid uint32) []byte {
	return appendBasicHeader(nil, ChunkType3, csid)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func payloadOf(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i)
	}
	return p
}

// feedAll feeds data to a new reassembler in pieces of at most step bytes and returns the messages emitted.
func feedAll(t *testing.T, data []byte, step int) []*Message {
	t.Helper()
	r := NewChunkReassembler(testMaxStreams)
	var messages []*Message
	emit := func(msg *Message) error {
		messages = append(messages, msg)
		return nil
	}
	for len(data) > 0 {
		n := step
		if n > len(data) {
			n = len(data)
		}
		if err := r.Feed(data[:n], emit); err != nil {
			t.Fatalf("Feed returned error: %v", err)
		}
		data = data[n:]
	}
	return messages
}

func TestChunkReassembler_SingleChunk(t *testing.T) {
	payload := []byte("hello")
	messages := feedAll(t, concat(type0Header(3, 1000, len(payload), CommandMessageAMF0, 1), payload), 4096)
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
	msg := messages[0]
	if msg.Type != CommandMessageAMF0 || msg.ChunkStreamID != 3 || msg.StreamID != 1 {
		t.Errorf("got type %s, csid %d, stream ID %d", msg.Type, msg.ChunkStreamID, msg.StreamID)
	}
	if msg.Timestamp != 1000 || !msg.Absolute {
		t.Errorf("got timestamp %d (absolute %v), want 1000 (absolute)", msg.Timestamp, msg.Absolute)
	}
	if !bytes.Equal(msg.Payload, payload) {
		t.Errorf("got payload %q, want %q", msg.Payload, payload)
	}
}

func TestChunkReassembler_MultipleChunks(t *testing.T) {
	payload := payloadOf(300)
	data := concat(
		type0Header(4, 0, len(payload), VideoMessage, 1), payload[:128],
		type3Header(4), payload[128:256],
		type3Header(4), payload[256:],
	)
	messages := feedAll(t, data, len(data))
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
	if !bytes.Equal(messages[0].Payload, payload) {
		t.Errorf("payload not reassembled")
	}
}

func TestChunkReassembler_ContinuationIsDeltaMode(t *testing.T) {
	payload := payloadOf(200)
	data := concat(
		type0Header(4, 1000, len(payload), VideoMessage, 1), payload[:128],
		type3Header(4), payload[128:],
		type0Header(4, 1033, 1, VideoMessage, 1), []byte{1},
	)
	messages := feedAll(t, data, len(data))
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if msg := messages[0]; msg.Absolute || msg.Timestamp != 1000 || msg.TimestampDelta != 1000 {
		t.Errorf("multi chunk message got timestamp %d, delta %d, absolute %v, want 1000, 1000, false",
			msg.Timestamp, msg.TimestampDelta, msg.Absolute)
	}
	if !messages[1].Absolute {
		t.Error("single chunk type 0 message not absolute")
	}
}

func TestChunkReassembler_InterleavedChunkStreams(t *testing.T) {
	video := payloadOf(200)
	audio := []byte{0xAF, 0x01, 0x02}
	data := concat(
		type0Header(6, 10, len(video), VideoMessage, 1), video[:128],
		type0Header(4, 11, len(audio), AudioMessage, 1), audio,
		type3Header(6), video[128:],
	)
	messages := feedAll(t, data, len(data))
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].Type != AudioMessage || !bytes.Equal(messages[0].Payload, audio) {
		t.Errorf("first message got %s % x", messages[0].Type, messages[0].Payload)
	}
	if messages[1].Type != VideoMessage || !bytes.Equal(messages[1].Payload, video) {
		t.Errorf("second message got %s of %d bytes", messages[1].Type, len(messages[1].Payload))
	}
}

func TestChunkReassembler_SplitInvariance(t *testing.T) {
	var stream bytes.Buffer
	w, _ := NewWriter(&stream, 4096)
	cw := NewChunkWriter(w)
	sizes := []int{0, 1, 127, 128, 129, 1000}
	for i, size := range sizes {
		msg := &Message{
			Type:          VideoMessage,
			ChunkStreamID: uint32(3 + i%3*100),
			StreamID:      1,
			Timestamp:     uint32(i) * 33,
			Payload:       payloadOf(size),
		}
		if i == len(sizes)-1 {
			msg.Timestamp = 0x01000000
		}
		if err := cw.WriteMessage(msg); err != nil {
			t.Fatalf("WriteMessage returned error: %v", err)
		}
	}
	data := stream.Bytes()

	want := feedAll(t, data, len(data))
	if len(want) != len(sizes) {
		t.Fatalf("got %d messages, want %d", len(want), len(sizes))
	}
	for _, step := range []int{1, 2, 3, 7, 11, 64, 500} {
		got := feedAll(t, data, step)
		if len(got) != len(want) {
			t.Fatalf("step %d: got %d messages, want %d", step, len(got), len(want))
		}
		for i := range got {
			if got[i].Type != want[i].Type || got[i].ChunkStreamID != want[i].ChunkStreamID ||
				got[i].Timestamp != want[i].Timestamp || !bytes.Equal(got[i].Payload, want[i].Payload) {
				t.Errorf("step %d: message %d differs", step, i)
			}
		}
	}
}

func TestChunkReassembler_ExtendedTimestamp(t *testing.T) {
	const timestamp = 0x01000000
	payload := payloadOf(200)
	ext := []byte{0x01, 0x00, 0x00, 0x00}
	// The type 3 continuation repeats the extended timestamp
	data := concat(
		type0Header(4, timestamp, len(payload), VideoMessage, 1), payload[:128],
		type3Header(4), ext, payload[128:],
	)
	for _, step := range []int{1, len(data)} {
		messages := feedAll(t, data, step)
		if len(messages) != 1 {
			t.Fatalf("got %d messages, want 1", len(messages))
		}
		if messages[0].Timestamp != timestamp {
			t.Errorf("got timestamp %#x, want %#x", messages[0].Timestamp, timestamp)
		}
		if !bytes.Equal(messages[0].Payload, payload) {
			t.Errorf("payload not reassembled")
		}
	}
}

func TestChunkReassembler_BasicHeaderForms(t *testing.T) {
	basicHeaderTests := []struct {
		name   string
		header []byte
		csid   uint32
	}{
		{"oneByte", []byte{0x03}, 3},
		{"oneByteMax", []byte{0x3F}, 63},
		{"twoBytes", []byte{0x00, 0x00}, 64},
		{"twoBytesMax", []byte{0x00, 0xFF}, 319},
		{"threeBytes", []byte{0x01, 0x00, 0x01}, 320},
		{"threeBytesMax", []byte{0x01, 0xFF, 0xFF}, 65599},
	}

	for _, tt := range basicHeaderTests {
		t.Run(tt.name, func(t *testing.T) {
			if got := appendBasicHeader(nil, ChunkType0, tt.csid); !bytes.Equal(got, tt.header) {
				t.Errorf("appendBasicHeader got % x, want % x", got, tt.header)
			}
			// Message header of a 1 byte message
			data := concat(tt.header, []byte{0, 0, 0, 0, 0, 1, byte(AudioMessage), 1, 0, 0, 0}, []byte{0xAF})
			messages := feedAll(t, data, 1)
			if len(messages) != 1 {
				t.Fatalf("got %d messages, want 1", len(messages))
			}
			if messages[0].ChunkStreamID != tt.csid {
				t.Errorf("got csid %d, want %d", messages[0].ChunkStreamID, tt.csid)
			}
		})
	}
}

func TestChunkReassembler_Timestamps(t *testing.T) {
	data := concat(
		type0Header(4, 100, 1, VideoMessage, 1), []byte{1},
		type1Header(4, 33, 2, VideoMessage), []byte{2, 2},
		type2Header(4, 34), []byte{3, 3},
		type3Header(4), []byte{4, 4},
	)
	messages := feedAll(t, data, len(data))
	want := []struct {
		timestamp, delta uint32
		absolute         bool
		length           int
	}{
		{100, 100, true, 1},
		{133, 33, false, 2},
		{167, 34, false, 2},
		{201, 34, false, 2},
	}
	if len(messages) != len(want) {
		t.Fatalf("got %d messages, want %d", len(messages), len(want))
	}
	for i, w := range want {
		msg := messages[i]
		if msg.Timestamp != w.timestamp || msg.TimestampDelta != w.delta || msg.Absolute != w.absolute {
			t.Errorf("message %d: got timestamp %d, delta %d, absolute %v, want %d, %d, %v",
				i, msg.Timestamp, msg.TimestampDelta, msg.Absolute, w.timestamp, w.delta, w.absolute)
		}
		if len(msg.Payload) != w.length || msg.StreamID != 1 || msg.Type != VideoMessage {
			t.Errorf("message %d: got %s of %d bytes on stream %d", i, msg.Type, len(msg.Payload), msg.StreamID)
		}
	}
}

func TestChunkReassembler_Type3AfterType0(t *testing.T) {
	data := concat(
		type0Header(4, 100, 1, AudioMessage, 1), []byte{1},
		type3Header(4), []byte{2},
	)
	messages := feedAll(t, data, len(data))
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[1].Timestamp != 200 || messages[1].Absolute {
		t.Errorf("got timestamp %d (absolute %v), want 200", messages[1].Timestamp, messages[1].Absolute)
	}
}

func TestChunkReassembler_ZeroLengthMessage(t *testing.T) {
	data := concat(type0Header(4, 0, 0, DataMessageAMF0, 1), type0Header(4, 5, 1, DataMessageAMF0, 1), []byte{9})
	messages := feedAll(t, data, 1)
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].Payload == nil || len(messages[0].Payload) != 0 {
		t.Errorf("got payload %v, want an empty payload", messages[0].Payload)
	}
}

func TestChunkReassembler_SetChunkSize(t *testing.T) {
	r := NewChunkReassembler(testMaxStreams)
	r.SetChunkSize(4096)
	if r.ChunkSize() != 4096 {
		t.Errorf("got chunk size %d, want 4096", r.ChunkSize())
	}
	payload := payloadOf(3000)
	var messages []*Message
	err := r.Feed(concat(type0Header(4, 0, len(payload), VideoMessage, 1), payload), func(msg *Message) error {
		messages = append(messages, msg)
		return nil
	})
	if err != nil {
		t.Fatalf("Feed returned error: %v", err)
	}
	if len(messages) != 1 || !bytes.Equal(messages[0].Payload, payload) {
		t.Errorf("message of 3000 bytes not received in a single chunk")
	}
}

func TestChunkReassembler_Abort(t *testing.T) {
	r := NewChunkReassembler(testMaxStreams)
	var messages []*Message
	emit := func(msg *Message) error {
		messages = append(messages, msg)
		return nil
	}
	if err := r.Feed(concat(type0Header(4, 0, 200, VideoMessage, 1), payloadOf(128)), emit); err != nil {
		t.Fatalf("Feed returned error: %v", err)
	}
	r.Abort(4)
	r.Abort(99)
	if err := r.Feed(concat(type0Header(4, 10, 2, VideoMessage, 1), []byte{1, 2}), emit); err != nil {
		t.Fatalf("Feed after abort returned error: %v", err)
	}
	if len(messages) != 1 || !bytes.Equal(messages[0].Payload, []byte{1, 2}) {
		t.Errorf("got %d messages, want the message sent after the abort", len(messages))
	}
}

func TestChunkReassembler_Errors(t *testing.T) {
	errorTests := []struct {
		name       string
		maxStreams int
		data       []byte
	}{
		{"type1WithoutHeader", testMaxStreams, type1Header(4, 10, 1, VideoMessage)},
		{"type2WithoutHeader", testMaxStreams, type2Header(4, 10)},
		{"type3WithoutHeader", testMaxStreams, type3Header(4)},
		{"type0WhileIncomplete", testMaxStreams, concat(
			type0Header(4, 0, 200, VideoMessage, 1), payloadOf(128),
			type0Header(4, 0, 1, VideoMessage, 1), []byte{1},
		)},
		{"type1WhileIncomplete", testMaxStreams, concat(
			type0Header(4, 0, 200, VideoMessage, 1), payloadOf(128),
			type1Header(4, 0, 1, VideoMessage), []byte{1},
		)},
		{"tooManyChunkStreams", 2, concat(
			type0Header(3, 0, 1, AudioMessage, 1), []byte{1},
			type0Header(4, 0, 1, AudioMessage, 1), []byte{1},
			type0Header(5, 0, 1, AudioMessage, 1), []byte{1},
		)},
	}

	for _, tt := range errorTests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewChunkReassembler(tt.maxStreams)
			err := r.Feed(tt.data, func(*Message) error { return nil })
			if KindOf(err) != ProtocolViolation {
				t.Errorf("got error %v, want a protocol violation", err)
			}
		})
	}
}

func TestChunkReassembler_EmitError(t *testing.T) {
	errEmit := errors.New("emit failed")
	r := NewChunkReassembler(testMaxStreams)
	calls := 0
	data := concat(
		type0Header(4, 0, 1, AudioMessage, 1), []byte{1},
		type0Header(4, 0, 1, AudioMessage, 1), []byte{2},
	)
	err := r.Feed(data, func(*Message) error {
		calls++
		return errEmit
	})
	if err != errEmit {
		t.Errorf("got error %v, want %v", err, errEmit)
	}
	if calls != 1 {
		t.Errorf("emit called %d times, want 1", calls)
	}
}
