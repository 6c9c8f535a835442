package binary24

import "testing"

func TestBigEndian_Int24(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		out  int32
	}{
		{"zero", []byte{0x00, 0x00, 0x00}, 0},
		{"positive", []byte{0x00, 0x00, 0x42}, 66},
		{"largestPositive", []byte{0x7F, 0xFF, 0xFF}, 8388607},
		{"minusOne", []byte{0xFF, 0xFF, 0xFF}, -1},
		{"minusForty", []byte{0xFF, 0xFF, 0xD8}, -40},
		{"smallestNegative", []byte{0x80, 0x00, 0x00}, -8388608},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BigEndian.Int24(tt.in); got != tt.out {
				t.Errorf("got %d, want %d", got, tt.out)
			}
			var b [3]byte
			BigEndian.PutInt24(b[:], tt.out)
			if b != [3]byte{tt.in[0], tt.in[1], tt.in[2]} {
				t.Errorf("PutInt24(%d) = %x, want %x", tt.out, b, tt.in)
			}
		})
	}
}

func TestBigEndian_Uint24(t *testing.T) {
	b := make([]byte, 3)
	BigEndian.PutUint24(b, 0xABCDEF)
	if b[0] != 0xAB || b[1] != 0xCD || b[2] != 0xEF {
		t.Fatalf("unexpected encoding %x", b)
	}
	if v := BigEndian.Uint24(b); v != 0xABCDEF {
		t.Errorf("got %#x, want %#x", v, 0xABCDEF)
	}
}
