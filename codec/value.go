package codec

import (
	"encoding/binary"
	"math"

	"github.com/bacgopher/bacstack/bacerr"
)

// CharacterStringANSI is the required character-string encoding byte
// value; every other encoding byte decodes but is forwarded opaquely.
const CharacterStringANSI byte = 0

// CharacterString carries the informational encoding byte alongside the
// raw string bytes, since only the ANSI X3.4 encoding is safe to treat as
// Go text.
type CharacterString struct {
	Encoding byte
	Bytes    []byte
}

// AsASCII returns the string contents and true only when Encoding is the
// required ANSI X3.4 byte; any other encoding is left opaque.
func (c CharacterString) AsASCII() (string, bool) {
	if c.Encoding != CharacterStringANSI {
		return "", false
	}
	return string(c.Bytes), true
}

func NewASCIIString(s string) CharacterString {
	return CharacterString{Encoding: CharacterStringANSI, Bytes: []byte(s)}
}

func (c CharacterString) Equal(o CharacterString) bool {
	if c.Encoding != o.Encoding || len(c.Bytes) != len(o.Bytes) {
		return false
	}
	for i := range c.Bytes {
		if c.Bytes[i] != o.Bytes[i] {
			return false
		}
	}
	return true
}

// Value is the tagged union over the BACnet Application Value primitives.
// Exactly one of the typed fields is meaningful, selected by Tag.
// Context-tagged variants additionally carry ContextNumber.
type Value struct {
	Tag     uint32
	Context bool
	// ContextNumber is the 0-254 context number when Context is true;
	// meaningless otherwise.
	ContextNumber uint32

	Boolean  bool
	Unsigned uint64
	Signed   int64
	Real     float32
	Double   float64
	Octets   []byte
	Str      CharacterString
	Bits     BitString
	Enum     uint32
	Date     Date
	Time     Time
	ObjectID ObjectIdentifier
}

func Null() Value                 { return Value{Tag: uint32(TagNull)} }
func Bool(v bool) Value           { return Value{Tag: uint32(TagBoolean), Boolean: v} }
func Unsigned64(v uint64) Value   { return Value{Tag: uint32(TagUnsigned), Unsigned: v} }
func Signed64(v int64) Value      { return Value{Tag: uint32(TagSignedInt), Signed: v} }
func Real32(v float32) Value      { return Value{Tag: uint32(TagReal), Real: v} }
func Double64(v float64) Value    { return Value{Tag: uint32(TagDouble), Double: v} }
func Octets_(v []byte) Value      { return Value{Tag: uint32(TagOctetString), Octets: v} }
func ASCIIString(s string) Value  { return Value{Tag: uint32(TagCharacterString), Str: NewASCIIString(s)} }
func Bits_(b BitString) Value     { return Value{Tag: uint32(TagBitString), Bits: b} }
func Enumerated(v uint32) Value   { return Value{Tag: uint32(TagEnumerated), Enum: v} }
func DateValue(d Date) Value      { return Value{Tag: uint32(TagDate), Date: d} }
func TimeValue(t Time) Value      { return Value{Tag: uint32(TagTime), Time: t} }
func ObjectIDValue(o ObjectIdentifier) Value {
	return Value{Tag: uint32(TagObjectIdentifier), ObjectID: o}
}

// AsContext returns a copy of v tagged as a context construct with the
// given context number, for embedding inside a service's context-tagged
// argument list.
func (v Value) AsContext(contextNumber uint32) Value {
	v.Context = true
	v.ContextNumber = contextNumber
	return v
}

// Equal compares two values for the round-trip invariant decode(encode(v))
// == v.
func (v Value) Equal(o Value) bool {
	if v.Tag != o.Tag || v.Context != o.Context {
		return false
	}
	if v.Context && v.ContextNumber != o.ContextNumber {
		return false
	}
	switch uint8(v.Tag) {
	case TagNull:
		return true
	case TagBoolean:
		return v.Boolean == o.Boolean
	case TagUnsigned:
		return v.Unsigned == o.Unsigned
	case TagSignedInt:
		return v.Signed == o.Signed
	case TagReal:
		return v.Real == o.Real
	case TagDouble:
		return v.Double == o.Double
	case TagOctetString:
		return bytesEqual(v.Octets, o.Octets)
	case TagCharacterString:
		return v.Str.Equal(o.Str)
	case TagBitString:
		return v.Bits.UnusedBits == o.Bits.UnusedBits && bytesEqual(v.Bits.Bytes, o.Bits.Bytes)
	case TagEnumerated:
		return v.Enum == o.Enum
	case TagDate:
		return v.Date == o.Date
	case TagTime:
		return v.Time == o.Time
	case TagObjectIdentifier:
		return v.ObjectID == o.ObjectID
	}
	return false
}

// Encode appends the wire encoding of v to buf: an application tag if
// !v.Context, a context tag carrying v.ContextNumber otherwise.
func Encode(buf []byte, v Value) []byte {
	number := v.Tag
	if v.Context {
		number = v.ContextNumber
	}
	body := encodeBody(v)

	// Application-tagged booleans pack their value into the length field
	// itself rather than a data octet (ASHRAE 135 encoding rule); context
	// tagged booleans always carry one data byte.
	if uint8(v.Tag) == TagBoolean && !v.Context {
		lvt := uint32(0)
		if v.Boolean {
			lvt = 1
		}
		return append(buf, tagOctet(number, false, lvt))
	}

	buf = EncodeTagHeader(buf, number, v.Context, uint32(len(body)))
	return append(buf, body...)
}

func encodeBody(v Value) []byte {
	switch uint8(v.Tag) {
	case TagNull:
		return nil
	case TagBoolean:
		if v.Boolean {
			return []byte{1}
		}
		return []byte{0}
	case TagUnsigned:
		return trimLeadingZeros(uint64ToBytes(v.Unsigned))
	case TagSignedInt:
		return encodeSigned(v.Signed)
	case TagReal:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, math.Float32bits(v.Real))
		return b
	case TagDouble:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, math.Float64bits(v.Double))
		return b
	case TagOctetString:
		return append([]byte{}, v.Octets...)
	case TagCharacterString:
		return append([]byte{v.Str.Encoding}, v.Str.Bytes...)
	case TagBitString:
		return append([]byte{v.Bits.UnusedBits}, v.Bits.Bytes...)
	case TagEnumerated:
		return trimLeadingZeros(uint64ToBytes(uint64(v.Enum)))
	case TagDate:
		return encodeDate(v.Date)
	case TagTime:
		return []byte{v.Time.Hour, v.Time.Minute, v.Time.Second, v.Time.Hundredths}
	case TagObjectIdentifier:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, v.ObjectID.Pack())
		return b
	}
	return nil
}

func encodeDate(d Date) []byte {
	yearByte := Wildcard
	if !d.YearWild {
		yearByte = byte(int(d.Year) - 1900)
	}
	return []byte{yearByte, d.Month, d.Day, d.Weekday}
}

func decodeDate(b []byte) Date {
	d := Date{Month: b[1], Day: b[2], Weekday: b[3]}
	if b[0] == Wildcard {
		d.YearWild = true
	} else {
		d.Year = uint16(int(b[0]) + 1900)
	}
	return d
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func trimLeadingZeros(b []byte) []byte {
	i := 0
	for i < len(b)-1 && b[i] == 0 {
		i++
	}
	return b[i:]
}

func encodeSigned(v int64) []byte {
	// Smallest two's-complement encoding that round-trips: grow until the
	// sign bit of the leading byte matches the value's sign.
	full := make([]byte, 8)
	binary.BigEndian.PutUint64(full, uint64(v))
	i := 0
	for i < 7 {
		b := full[i]
		next := full[i+1]
		if b == 0x00 && next&0x80 == 0 {
			i++
			continue
		}
		if b == 0xFF && next&0x80 != 0 {
			i++
			continue
		}
		break
	}
	return full[i:]
}

func decodeSigned(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	var v int64
	if b[0]&0x80 != 0 {
		v = -1
	}
	for _, by := range b {
		v = (v << 8) | int64(by)
	}
	return v
}

// Decode parses one application- or context-tagged value (as identified by
// DecodeTagHeader) from buf and returns it, along with the number of bytes
// consumed. It never allocates more than one destination object per call.
func Decode(buf []byte) (Value, int, error) {
	h, headerLen, err := DecodeTagHeader(buf)
	if err != nil {
		return Value{}, 0, err
	}
	if h.Opening || h.Closing {
		return Value{}, 0, bacerr.New(bacerr.UnexpectedType, "expected a value, found open/close tag")
	}
	v := Value{Tag: h.Number, Context: h.Context, ContextNumber: h.Number}

	// An application-tagged boolean packs its value into the length field
	// with no data bytes; a context-tagged boolean always carries one.
	if !h.Context && h.Number == uint32(TagBoolean) {
		v.Boolean = h.Length == 1
		return v, headerLen, nil
	}

	body := buf[headerLen : headerLen+int(h.Length)]
	total := headerLen + int(h.Length)

	tagForType := h.Number
	if h.Context {
		// Context-tagged primitives carry no type information on the
		// wire; the caller (a service decoder) must supply the expected
		// type. DecodeAs below handles that case.
		return v, total, nil
	}

	if err := decodeBody(&v, uint8(tagForType), body); err != nil {
		return Value{}, 0, err
	}
	return v, total, nil
}

// DecodeAs parses the body of a context-tagged primitive whose type is
// known from the service definition rather than the wire (context tags
// carry no type nibble). header must be a non-opening, non-closing
// TagHeader already produced by DecodeTagHeader.
func DecodeAs(header TagHeader, buf []byte, tag uint8) (Value, error) {
	if uint64(header.Length) > uint64(len(buf)) {
		return Value{}, bacerr.New(bacerr.InvalidPDULength, "context value shorter than declared length")
	}
	v := Value{Tag: uint32(tag), Context: header.Context, ContextNumber: header.Number}
	if err := decodeBody(&v, tag, buf[:header.Length]); err != nil {
		return Value{}, err
	}
	return v, nil
}

func decodeBody(v *Value, tag uint8, body []byte) error {
	switch tag {
	case TagNull:
		return nil
	case TagBoolean:
		v.Boolean = len(body) > 0 && body[0] != 0
		return nil
	case TagUnsigned:
		var u uint64
		for _, b := range body {
			u = (u << 8) | uint64(b)
		}
		v.Unsigned = u
		return nil
	case TagSignedInt:
		v.Signed = decodeSigned(body)
		return nil
	case TagReal:
		if len(body) < 4 {
			return bacerr.New(bacerr.InvalidPDULength, "real requires 4 bytes")
		}
		v.Real = math.Float32frombits(binary.BigEndian.Uint32(body))
		return nil
	case TagDouble:
		if len(body) < 8 {
			return bacerr.New(bacerr.InvalidPDULength, "double requires 8 bytes")
		}
		v.Double = math.Float64frombits(binary.BigEndian.Uint64(body))
		return nil
	case TagOctetString:
		v.Octets = append([]byte{}, body...)
		return nil
	case TagCharacterString:
		if len(body) < 1 {
			return bacerr.New(bacerr.InvalidPDULength, "character string requires an encoding byte")
		}
		v.Str = CharacterString{Encoding: body[0], Bytes: append([]byte{}, body[1:]...)}
		return nil
	case TagBitString:
		if len(body) < 1 {
			return bacerr.New(bacerr.InvalidPDULength, "bit string requires an unused-bits byte")
		}
		v.Bits = BitString{UnusedBits: body[0], Bytes: append([]byte{}, body[1:]...)}
		return nil
	case TagEnumerated:
		var u uint32
		for _, b := range body {
			u = (u << 8) | uint32(b)
		}
		v.Enum = u
		return nil
	case TagDate:
		if len(body) < 4 {
			return bacerr.New(bacerr.InvalidPDULength, "date requires 4 bytes")
		}
		v.Date = decodeDate(body[:4])
		return nil
	case TagTime:
		if len(body) < 4 {
			return bacerr.New(bacerr.InvalidPDULength, "time requires 4 bytes")
		}
		v.Time = Time{Hour: body[0], Minute: body[1], Second: body[2], Hundredths: body[3]}
		return nil
	case TagObjectIdentifier:
		if len(body) < 4 {
			return bacerr.New(bacerr.InvalidPDULength, "object identifier requires 4 bytes")
		}
		v.ObjectID = UnpackObjectIdentifier(binary.BigEndian.Uint32(body))
		return nil
	default:
		return bacerr.New(bacerr.UnexpectedType, "unknown application tag")
	}
}
