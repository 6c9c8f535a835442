package amf0

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/pkg/errors"
)

// Decoder reads successive AMF0 values from a byte slice. RTMP command messages are a plain concatenation of values
// (command name, transaction ID, command object, arguments...), so the decoder keeps track of the read offset.
type Decoder struct {
	b   []byte
	off int
}

func NewDecoder(b []byte) *Decoder {
	return &Decoder{b: b}
}

// Len returns the number of bytes that haven't been decoded yet.
func (d *Decoder) Len() int {
	return len(d.b) - d.off
}

// Decode returns the next value in the buffer.
// Possible return types: float64, bool, string, map[string]interface{}, nil, Undefined, ECMAArray, StrictArray, time.Time
func (d *Decoder) Decode() (interface{}, error) {
	return d.decodeValue(0)
}

// DecodeString decodes the next value and fails if it isn't a string (or long string).
func (d *Decoder) DecodeString() (string, error) {
	v, err := d.Decode()
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Errorf("amf0: expected string, got %T", v)
	}
	return s, nil
}

// DecodeNumber decodes the next value and fails if it isn't a number.
func (d *Decoder) DecodeNumber() (float64, error) {
	v, err := d.Decode()
	if err != nil {
		return 0, err
	}
	n, ok := v.(float64)
	if !ok {
		return 0, errors.Errorf("amf0: expected number, got %T", v)
	}
	return n, nil
}

// Decode returns the first value encoded in b.
func Decode(b []byte) (interface{}, error) {
	return NewDecoder(b).Decode()
}

func (d *Decoder) next(n int) ([]byte, error) {
	if n < 0 || d.Len() < n {
		return nil, ErrShortBuffer
	}
	p := d.b[d.off : d.off+n]
	d.off += n
	return p, nil
}

func (d *Decoder) decodeValue(depth int) (interface{}, error) {
	marker, err := d.next(1)
	if err != nil {
		return nil, err
	}
	switch marker[0] {
	case TypeNumber:
		return d.decodeNumber()
	case TypeBoolean:
		b, err := d.next(1)
		if err != nil {
			return nil, err
		}
		return b[0] != 0, nil
	case TypeString:
		return d.decodeString()
	case TypeLongString:
		return d.decodeLongString()
	case TypeObject:
		if depth >= maxNestingDepth {
			return nil, ErrNestingTooDeep
		}
		return d.decodeProperties(depth + 1)
	case TypeNull:
		return nil, nil
	case TypeUndefined:
		return Undefined{}, nil
	case TypeECMAArray:
		if depth >= maxNestingDepth {
			return nil, ErrNestingTooDeep
		}
		// The associative count is only a hint, the array is terminated with an object end marker like an object
		if _, err := d.next(4); err != nil {
			return nil, err
		}
		props, err := d.decodeProperties(depth + 1)
		if err != nil {
			return nil, err
		}
		return ECMAArray(props), nil
	case TypeStrictArray:
		if depth >= maxNestingDepth {
			return nil, ErrNestingTooDeep
		}
		return d.decodeStrictArray(depth + 1)
	case TypeDate:
		return d.decodeDate()
	case TypeAVMPlus:
		return nil, errors.Wrap(ErrUnsupportedType, "amf0: AMF3 values are not supported")
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "marker 0x%02x", marker[0])
	}
}

func (d *Decoder) decodeNumber() (float64, error) {
	b, err := d.next(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (d *Decoder) decodeString() (string, error) {
	l, err := d.next(2)
	if err != nil {
		return "", err
	}
	s, err := d.next(int(binary.BigEndian.Uint16(l)))
	if err != nil {
		return "", err
	}
	return string(s), nil
}

func (d *Decoder) decodeLongString() (string, error) {
	l, err := d.next(4)
	if err != nil {
		return "", err
	}
	length := binary.BigEndian.Uint32(l)
	if uint64(length) > uint64(d.Len()) {
		return "", ErrShortBuffer
	}
	s, err := d.next(int(length))
	if err != nil {
		return "", err
	}
	return string(s), nil
}

func (d *Decoder) isObjectEnd() bool {
	return d.Len() >= 3 && d.b[d.off] == 0x00 && d.b[d.off+1] == 0x00 && d.b[d.off+2] == TypeObjectEnd
}

// decodeProperties decodes key/value pairs until an object end marker (0x00 0x00 0x09) is found.
func (d *Decoder) decodeProperties(depth int) (map[string]interface{}, error) {
	m := make(map[string]interface{})
	for {
		if d.isObjectEnd() {
			d.off += 3
			return m, nil
		}
		if d.Len() < 3 {
			// Not even room for an empty key followed by a marker
			return nil, ErrMissingObjectEnd
		}
		// Keys are always short strings without the type marker
		key, err := d.decodeString()
		if err != nil {
			return nil, err
		}
		val, err := d.decodeValue(depth)
		if err != nil {
			return nil, errors.Wrapf(err, "amf0: property %q", key)
		}
		m[key] = val
	}
}

func (d *Decoder) decodeStrictArray(depth int) (StrictArray, error) {
	c, err := d.next(4)
	if err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(c)
	// Every value takes at least one byte, so a count larger than the remaining buffer is always truncated
	if uint64(count) > uint64(d.Len()) {
		return nil, ErrShortBuffer
	}
	arr := make(StrictArray, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := d.decodeValue(depth)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	return arr, nil
}

func (d *Decoder) decodeDate() (time.Time, error) {
	// 8 bytes of milliseconds since epoch (as a double) followed by a 2 byte time zone that must be ignored
	b, err := d.next(10)
	if err != nil {
		return time.Time{}, err
	}
	milliseconds := math.Float64frombits(binary.BigEndian.Uint64(b[:8]))
	return time.Unix(0, int64(milliseconds)*int64(time.Millisecond)).UTC(), nil
}
