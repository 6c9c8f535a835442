package amf0

import "github.com/pkg/errors"

// ECMAArray is an associative array. It is decoded and encoded like an object, with an additional associative count.
type ECMAArray map[string]interface{}

// StrictArray is an ordered list of values.
type StrictArray []interface{}

// Undefined represents the AMF0 undefined marker. It is distinct from null (nil).
type Undefined struct{}

const (
	TypeNumber      byte = 0x00
	TypeBoolean     byte = 0x01
	TypeString      byte = 0x02
	TypeObject      byte = 0x03
	TypeMovieClip   byte = 0x04 // reserved, not supported
	TypeNull        byte = 0x05
	TypeUndefined   byte = 0x06
	TypeReference   byte = 0x07
	TypeECMAArray   byte = 0x08
	TypeObjectEnd   byte = 0x09
	TypeStrictArray byte = 0x0A
	TypeDate        byte = 0x0B
	TypeLongString  byte = 0x0C
	TypeUnsupported byte = 0x0D
	TypeRecordSet   byte = 0x0E // reserved, not supported
	TypeXMLDocument byte = 0x0F
	TypeTypedObject byte = 0x10
	// Switches the rest of the value to AMF3, which is not supported
	TypeAVMPlus byte = 0x11
)

// Strings longer than this are encoded as long strings
const maxShortStringLength = 65535

// Objects, ECMA arrays and strict arrays nested deeper than this are rejected by the decoder
const maxNestingDepth = 32

var (
	ErrShortBuffer      = errors.New("amf0: unexpected end of buffer")
	ErrUnsupportedType  = errors.New("amf0: unsupported type marker")
	ErrNestingTooDeep   = errors.New("amf0: values nested too deeply")
	ErrMissingObjectEnd = errors.New("amf0: object end marker expected")
)
