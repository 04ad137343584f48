package bacstack

import (
	"github.com/bacgopher/bacstack/bacerr"
	"github.com/bacgopher/bacstack/codec"
)

// cursor is a small forward-only reader over an APDU service-argument
// byte slice, used to walk the context-tagged sequences ASHRAE 135
// defines for each service, composed here at the service-decoding layer
// that sits above apdu's PDU framing.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor { return &cursor{buf: buf} }

func (c *cursor) done() bool { return c.pos >= len(c.buf) }

func (c *cursor) peekHeader() (codec.TagHeader, error) {
	h, _, err := codec.DecodeTagHeader(c.buf[c.pos:])
	return h, err
}

// expectOpening consumes a context opening tag with the given number.
func (c *cursor) expectOpening(number uint32) error {
	h, n, err := codec.DecodeTagHeader(c.buf[c.pos:])
	if err != nil {
		return err
	}
	if !h.Opening || h.Number != number {
		return bacerr.New(bacerr.InvalidTag, "expected opening tag")
	}
	c.pos += n
	return nil
}

// expectClosing consumes a context closing tag with the given number.
func (c *cursor) expectClosing(number uint32) error {
	h, n, err := codec.DecodeTagHeader(c.buf[c.pos:])
	if err != nil {
		return err
	}
	if !h.Closing || h.Number != number {
		return bacerr.New(bacerr.InvalidTag, "expected closing tag")
	}
	c.pos += n
	return nil
}

// readContext reads a single context-tagged primitive of the given
// application type, expecting context number `number`, and returns false
// if the next tag doesn't match (so callers can treat it as absent,
// matching ASHRAE 135's "optional parameter" convention).
func (c *cursor) readContext(number uint32, appTag uint8) (codec.Value, bool, error) {
	if c.done() {
		return codec.Value{}, false, nil
	}
	h, n, err := codec.DecodeTagHeader(c.buf[c.pos:])
	if err != nil {
		return codec.Value{}, false, err
	}
	if !h.Context || h.Opening || h.Closing || h.Number != number {
		return codec.Value{}, false, nil
	}
	v, err := codec.DecodeAs(h, c.buf[c.pos+n:], appTag)
	if err != nil {
		return codec.Value{}, false, err
	}
	c.pos += n + int(h.Length)
	return v, true, nil
}

// readApplication reads the next application-tagged primitive
// unconditionally (used for IAm, whose fields are application-tagged,
// not context-tagged, per ASHRAE 135).
func (c *cursor) readApplication() (codec.Value, error) {
	v, n, err := codec.Decode(c.buf[c.pos:])
	if err != nil {
		return codec.Value{}, err
	}
	c.pos += n
	return v, nil
}

func appendContext(buf []byte, number uint32, v codec.Value) []byte {
	return codec.Encode(buf, v.AsContext(number))
}

// --- Who-Is / I-Am ---------------------------------------------------

type whoIsArgs struct {
	HasRange bool
	Low      uint32
	High     uint32
}

func decodeWhoIs(data []byte) (whoIsArgs, error) {
	if len(data) == 0 {
		return whoIsArgs{}, nil
	}
	c := newCursor(data)
	low, okLow, err := c.readContext(0, codec.TagUnsigned)
	if err != nil || !okLow {
		return whoIsArgs{}, err
	}
	high, okHigh, err := c.readContext(1, codec.TagUnsigned)
	if err != nil || !okHigh {
		return whoIsArgs{}, err
	}
	return whoIsArgs{HasRange: true, Low: uint32(low.Unsigned), High: uint32(high.Unsigned)}, nil
}

func encodeIAm(deviceInstance uint32, maxAPDU uint16, segmentation uint32, vendorID uint32) []byte {
	var buf []byte
	buf = codec.Encode(buf, codec.ObjectIDValue(codec.ObjectIdentifier{Type: 8, Instance: deviceInstance}))
	buf = codec.Encode(buf, codec.Unsigned64(uint64(maxAPDU)))
	buf = codec.Encode(buf, codec.Enumerated(segmentation))
	buf = codec.Encode(buf, codec.Unsigned64(uint64(vendorID)))
	return buf
}

func decodeIAm(data []byte) (deviceInstance uint32, maxAPDU uint16, err error) {
	c := newCursor(data)
	idVal, err := c.readApplication()
	if err != nil {
		return 0, 0, err
	}
	maxVal, err := c.readApplication()
	if err != nil {
		return 0, 0, err
	}
	return idVal.ObjectID.Instance, uint16(maxVal.Unsigned), nil
}

// --- ReadProperty ------------------------------------------------------

type readPropertyArgs struct {
	ObjectType uint16
	Instance   uint32
	Property   uint32
	ArrayIndex uint32
	HasIndex   bool
}

func decodeReadProperty(data []byte) (readPropertyArgs, error) {
	c := newCursor(data)
	objVal, ok, err := c.readContext(0, codec.TagObjectIdentifier)
	if err != nil || !ok {
		return readPropertyArgs{}, bacerr.New(bacerr.InvalidTag, "read-property: missing object identifier")
	}
	propVal, ok, err := c.readContext(1, codec.TagEnumerated)
	if err != nil || !ok {
		return readPropertyArgs{}, bacerr.New(bacerr.InvalidTag, "read-property: missing property identifier")
	}
	args := readPropertyArgs{
		ObjectType: objVal.ObjectID.Type,
		Instance:   objVal.ObjectID.Instance,
		Property:   propVal.Enum,
		ArrayIndex: codec.ArrayAll,
	}
	if idxVal, ok, _ := c.readContext(2, codec.TagUnsigned); ok {
		args.ArrayIndex = uint32(idxVal.Unsigned)
		args.HasIndex = true
	}
	return args, nil
}

func encodeReadPropertyRequest(objType uint16, instance uint32, prop uint32, arrayIndex uint32) []byte {
	var buf []byte
	buf = appendContext(buf, 0, codec.ObjectIDValue(codec.ObjectIdentifier{Type: objType, Instance: instance}))
	buf = appendContext(buf, 1, codec.Enumerated(prop))
	if arrayIndex != codec.ArrayAll {
		buf = appendContext(buf, 2, codec.Unsigned64(uint64(arrayIndex)))
	}
	return buf
}

func encodeReadPropertyACK(objType uint16, instance uint32, prop uint32, arrayIndex uint32, values []codec.Value) []byte {
	var buf []byte
	buf = appendContext(buf, 0, codec.ObjectIDValue(codec.ObjectIdentifier{Type: objType, Instance: instance}))
	buf = appendContext(buf, 1, codec.Enumerated(prop))
	if arrayIndex != codec.ArrayAll {
		buf = appendContext(buf, 2, codec.Unsigned64(uint64(arrayIndex)))
	}
	buf = codec.EncodeOpeningTag(buf, 3)
	for _, v := range values {
		buf = codec.Encode(buf, v)
	}
	buf = codec.EncodeClosingTag(buf, 3)
	return buf
}

func decodeReadPropertyACK(data []byte) (prop uint32, values []codec.Value, err error) {
	c := newCursor(data)
	if _, ok, err := c.readContext(0, codec.TagObjectIdentifier); err != nil || !ok {
		return 0, nil, bacerr.New(bacerr.InvalidTag, "read-property ack: missing object identifier")
	}
	propVal, ok, err := c.readContext(1, codec.TagEnumerated)
	if err != nil || !ok {
		return 0, nil, bacerr.New(bacerr.InvalidTag, "read-property ack: missing property identifier")
	}
	c.readContext(2, codec.TagUnsigned) // optional array index, unused by callers so far
	if err := c.expectOpening(3); err != nil {
		return 0, nil, err
	}
	for {
		h, err := c.peekHeader()
		if err != nil {
			return 0, nil, err
		}
		if h.Closing && h.Number == 3 {
			break
		}
		v, n, err := codec.Decode(c.buf[c.pos:])
		if err != nil {
			return 0, nil, err
		}
		c.pos += n
		values = append(values, v)
	}
	return propVal.Enum, values, nil
}

// --- WriteProperty -------------------------------------------------------

type writePropertyArgs struct {
	ObjectType uint16
	Instance   uint32
	Property   uint32
	ArrayIndex uint32
	HasIndex   bool
	Values     []codec.Value
	Priority   uint8
	HasPriority bool
}

func decodeWriteProperty(data []byte) (writePropertyArgs, error) {
	c := newCursor(data)
	objVal, ok, err := c.readContext(0, codec.TagObjectIdentifier)
	if err != nil || !ok {
		return writePropertyArgs{}, bacerr.New(bacerr.InvalidTag, "write-property: missing object identifier")
	}
	propVal, ok, err := c.readContext(1, codec.TagEnumerated)
	if err != nil || !ok {
		return writePropertyArgs{}, bacerr.New(bacerr.InvalidTag, "write-property: missing property identifier")
	}
	args := writePropertyArgs{ObjectType: objVal.ObjectID.Type, Instance: objVal.ObjectID.Instance, Property: propVal.Enum, ArrayIndex: codec.ArrayAll}
	if idxVal, ok, _ := c.readContext(2, codec.TagUnsigned); ok {
		args.ArrayIndex = uint32(idxVal.Unsigned)
		args.HasIndex = true
	}
	if err := c.expectOpening(3); err != nil {
		return writePropertyArgs{}, err
	}
	for {
		h, err := c.peekHeader()
		if err != nil {
			return writePropertyArgs{}, err
		}
		if h.Closing && h.Number == 3 {
			break
		}
		v, n, err := codec.Decode(c.buf[c.pos:])
		if err != nil {
			return writePropertyArgs{}, err
		}
		c.pos += n
		args.Values = append(args.Values, v)
	}
	if err := c.expectClosing(3); err != nil {
		return writePropertyArgs{}, err
	}
	if prioVal, ok, _ := c.readContext(4, codec.TagUnsigned); ok {
		args.Priority = uint8(prioVal.Unsigned)
		args.HasPriority = true
	}
	return args, nil
}

// --- ReadPropertyMultiple --------------------------------------------------

type rpmPropertySpec struct {
	Property   uint32
	ArrayIndex uint32
}

type rpmObjectSpec struct {
	ObjectType uint16
	Instance   uint32
	Properties []rpmPropertySpec
}

func decodeReadPropertyMultiple(data []byte) ([]rpmObjectSpec, error) {
	c := newCursor(data)
	var out []rpmObjectSpec
	for !c.done() {
		objVal, ok, err := c.readContext(0, codec.TagObjectIdentifier)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		spec := rpmObjectSpec{ObjectType: objVal.ObjectID.Type, Instance: objVal.ObjectID.Instance}
		if err := c.expectOpening(1); err != nil {
			return nil, err
		}
		for {
			h, err := c.peekHeader()
			if err != nil {
				return nil, err
			}
			if h.Closing && h.Number == 1 {
				break
			}
			propVal, ok, err := c.readContext(2, codec.TagEnumerated)
			if err != nil || !ok {
				return nil, bacerr.New(bacerr.InvalidTag, "read-property-multiple: malformed property reference")
			}
			ps := rpmPropertySpec{Property: propVal.Enum, ArrayIndex: codec.ArrayAll}
			if idxVal, ok, _ := c.readContext(3, codec.TagUnsigned); ok {
				ps.ArrayIndex = uint32(idxVal.Unsigned)
			}
			spec.Properties = append(spec.Properties, ps)
		}
		if err := c.expectClosing(1); err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

// decodeCOVNotification parses a Confirmed/UnconfirmedCOVNotification body
// into the reporting object and its changed property values.
func decodeCOVNotification(data []byte) (objType uint16, instance uint32, values map[uint32]codec.Value, err error) {
	c := newCursor(data)
	if _, ok, err := c.readContext(0, codec.TagUnsigned); err != nil || !ok {
		return 0, 0, nil, bacerr.New(bacerr.InvalidTag, "cov-notification: missing process id")
	}
	if _, ok, err := c.readContext(1, codec.TagObjectIdentifier); err != nil || !ok {
		return 0, 0, nil, bacerr.New(bacerr.InvalidTag, "cov-notification: missing initiating device")
	}
	objVal, ok, err := c.readContext(2, codec.TagObjectIdentifier)
	if err != nil || !ok {
		return 0, 0, nil, bacerr.New(bacerr.InvalidTag, "cov-notification: missing monitored object")
	}
	if _, ok, err := c.readContext(3, codec.TagUnsigned); err != nil || !ok {
		return 0, 0, nil, bacerr.New(bacerr.InvalidTag, "cov-notification: missing time remaining")
	}
	if err := c.expectOpening(4); err != nil {
		return 0, 0, nil, err
	}
	values = make(map[uint32]codec.Value)
	for {
		h, err := c.peekHeader()
		if err != nil {
			return 0, 0, nil, err
		}
		if h.Closing && h.Number == 4 {
			break
		}
		propVal, ok, err := c.readContext(0, codec.TagEnumerated)
		if err != nil || !ok {
			return 0, 0, nil, bacerr.New(bacerr.InvalidTag, "cov-notification: malformed property value")
		}
		if err := c.expectOpening(2); err != nil {
			return 0, 0, nil, err
		}
		v, n, err := codec.Decode(c.buf[c.pos:])
		if err != nil {
			return 0, 0, nil, err
		}
		c.pos += n
		if err := c.expectClosing(2); err != nil {
			return 0, 0, nil, err
		}
		values[propVal.Enum] = v
	}
	return objVal.ObjectID.Type, objVal.ObjectID.Instance, values, nil
}

// --- SubscribeCOV -----------------------------------------------------

type subscribeCOVArgs struct {
	ProcessID     uint32
	ObjectType    uint16
	Instance      uint32
	Cancel        bool
	Confirmed     bool
	LifetimeSec   int
}

func encodeSubscribeCOVRequest(processID uint32, objType uint16, instance uint32, cancel, confirmed bool, lifetimeSec int) []byte {
	var buf []byte
	buf = appendContext(buf, 0, codec.Unsigned64(uint64(processID)))
	buf = appendContext(buf, 1, codec.ObjectIDValue(codec.ObjectIdentifier{Type: objType, Instance: instance}))
	if cancel {
		return buf
	}
	buf = appendContext(buf, 2, codec.Bool(confirmed))
	buf = appendContext(buf, 3, codec.Unsigned64(uint64(lifetimeSec)))
	return buf
}

func decodeSubscribeCOV(data []byte) (subscribeCOVArgs, error) {
	c := newCursor(data)
	pidVal, ok, err := c.readContext(0, codec.TagUnsigned)
	if err != nil || !ok {
		return subscribeCOVArgs{}, bacerr.New(bacerr.InvalidTag, "subscribe-cov: missing process id")
	}
	objVal, ok, err := c.readContext(1, codec.TagObjectIdentifier)
	if err != nil || !ok {
		return subscribeCOVArgs{}, bacerr.New(bacerr.InvalidTag, "subscribe-cov: missing object identifier")
	}
	args := subscribeCOVArgs{ProcessID: uint32(pidVal.Unsigned), ObjectType: objVal.ObjectID.Type, Instance: objVal.ObjectID.Instance}
	confVal, hasConf, _ := c.readContext(2, codec.TagBoolean)
	lifeVal, hasLife, _ := c.readContext(3, codec.TagUnsigned)
	if !hasConf && !hasLife {
		args.Cancel = true
		return args, nil
	}
	args.Confirmed = confVal.Boolean
	if hasLife {
		args.LifetimeSec = int(lifeVal.Unsigned)
	}
	return args, nil
}
