package amf0

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// Encode returns the AMF0 representation of v.
// Supported types: float64, int, uint32, bool, string, map[string]interface{}, nil, Undefined, ECMAArray, StrictArray,
// []interface{}, time.Time
func Encode(v interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := encodeValue(buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeCommand encodes the body of a command message: the command name, the transaction ID, the command object
// (nil encodes as null) and any additional arguments, one after the other.
func EncodeCommand(name string, transactionID float64, commandObject interface{}, args ...interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	writeString(buf, name)
	writeNumber(buf, transactionID)
	if err := encodeValue(buf, commandObject); err != nil {
		return nil, errors.Wrap(err, "amf0: command object")
	}
	for i, arg := range args {
		if err := encodeValue(buf, arg); err != nil {
			return nil, errors.Wrapf(err, "amf0: command argument %d", i)
		}
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case float64:
		writeNumber(buf, val)
	case int:
		writeNumber(buf, float64(val))
	case uint32:
		writeNumber(buf, float64(val))
	case bool:
		buf.WriteByte(TypeBoolean)
		if val {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case string:
		writeString(buf, val)
	case map[string]interface{}:
		buf.WriteByte(TypeObject)
		return writeProperties(buf, val)
	case nil:
		buf.WriteByte(TypeNull)
	case Undefined:
		buf.WriteByte(TypeUndefined)
	case ECMAArray:
		buf.WriteByte(TypeECMAArray)
		var count [4]byte
		binary.BigEndian.PutUint32(count[:], uint32(len(val)))
		buf.Write(count[:])
		return writeProperties(buf, val)
	case StrictArray:
		return writeStrictArray(buf, val)
	case []interface{}:
		return writeStrictArray(buf, val)
	case time.Time:
		var date [11]byte
		date[0] = TypeDate
		milliseconds := float64(val.UnixNano() / int64(time.Millisecond))
		binary.BigEndian.PutUint64(date[1:9], math.Float64bits(milliseconds))
		// Last 2 bytes are time zone (which should stay with a value of 0 as defined by the AMF0 specification)
		buf.Write(date[:])
	default:
		return errors.Errorf("amf0: cannot encode type %T", v)
	}
	return nil
}

func writeNumber(buf *bytes.Buffer, number float64) {
	var b [9]byte
	b[0] = TypeNumber
	binary.BigEndian.PutUint64(b[1:], math.Float64bits(number))
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	if len(s) < maxShortStringLength {
		// byte 0 => string type (TypeString)
		// bytes 1-2 => string length
		// bytes 3-end => string content
		buf.WriteByte(TypeString)
		writeKey(buf, s)
		return
	}
	// Strings that require more than 65535 bytes should use TypeLongString
	var header [5]byte
	header[0] = TypeLongString
	binary.BigEndian.PutUint32(header[1:], uint32(len(s)))
	buf.Write(header[:])
	buf.WriteString(s)
}

// writeKey writes a property name: a short string without its type marker.
func writeKey(buf *bytes.Buffer, key string) {
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(key)))
	buf.Write(length[:])
	buf.WriteString(key)
}

func writeProperties(buf *bytes.Buffer, m map[string]interface{}) error {
	// Sort the keys so that the same object always produces the same bytes
	keys := make([]string, 0, len(m))
	for key := range m {
		if len(key) >= maxShortStringLength {
			return errors.Errorf("amf0: property name of %d bytes is too long", len(key))
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		writeKey(buf, key)
		if err := encodeValue(buf, m[key]); err != nil {
			return errors.Wrapf(err, "amf0: property %q", key)
		}
	}
	buf.Write([]byte{0x00, 0x00, TypeObjectEnd})
	return nil
}

func writeStrictArray(buf *bytes.Buffer, arr []interface{}) error {
	buf.WriteByte(TypeStrictArray)
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(arr)))
	buf.Write(count[:])
	for _, v := range arr {
		if err := encodeValue(buf, v); err != nil {
			return err
		}
	}
	return nil
}
