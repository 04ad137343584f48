package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	buf := Encode(nil, v)
	got, n, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	return got
}

func TestRoundTripPrimitives(t *testing.T) {
	cases := []Value{
		Null(),
		Bool(true),
		Bool(false),
		Unsigned64(0),
		Unsigned64(1476),
		Unsigned64(1<<40 + 7),
		Signed64(-1),
		Signed64(-129),
		Signed64(123456789),
		Real32(85.5),
		Double64(-12.25),
		Octets_([]byte{1, 2, 3}),
		ASCIIString("AnalogInput"),
		Bits_(NewBitString(true, false, true)),
		Enumerated(3),
		TimeValue(Time{Hour: 13, Minute: 5, Second: 0, Hundredths: 0}),
		TimeValue(Time{Hour: Wildcard, Minute: Wildcard, Second: Wildcard, Hundredths: Wildcard}),
		ObjectIDValue(ObjectIdentifier{Type: 0, Instance: 123}),
	}
	for _, v := range cases {
		got := roundTrip(t, v)
		require.True(t, v.Equal(got), "round-trip mismatch for tag %d: want %+v got %+v", v.Tag, v, got)
	}
}

func TestRoundTripWildcardDate(t *testing.T) {
	d := Date{YearWild: true, Month: Wildcard, Day: Wildcard, Weekday: Wildcard}
	v := roundTrip(t, DateValue(d))
	require.True(t, v.Date.IsWildcard())
}

func TestRoundTripConcreteDate(t *testing.T) {
	d := NewDate(2026, 3, 5) // a Thursday
	require.Equal(t, byte(4), d.Weekday)
	v := roundTrip(t, DateValue(d))
	require.Equal(t, d, v.Date)
}

func TestDecodeRefusesTruncatedLength(t *testing.T) {
	// Application tag 2 (Unsigned), claims 4 bytes, only 1 present.
	_, _, err := Decode([]byte{0x24, 0x01})
	require.Error(t, err)
}

func TestContextOpenCloseTags(t *testing.T) {
	buf := EncodeOpeningTag(nil, 3)
	buf = Encode(buf, ObjectIDValue(ObjectIdentifier{Type: 2, Instance: 1}).AsContext(0))
	buf = EncodeClosingTag(buf, 3)

	h, n, err := DecodeTagHeader(buf)
	require.NoError(t, err)
	require.True(t, h.Opening)
	require.Equal(t, uint32(3), h.Number)
	buf = buf[n:]

	h2, n2, err := DecodeTagHeader(buf)
	require.NoError(t, err)
	require.True(t, h2.Context)
	require.False(t, h2.Opening || h2.Closing)
	val, err := DecodeAs(h2, buf[n2:], TagObjectIdentifier)
	require.NoError(t, err)
	require.Equal(t, uint32(2), uint32(val.ObjectID.Type))
	buf = buf[n2+int(h2.Length):]

	h3, _, err := DecodeTagHeader(buf)
	require.NoError(t, err)
	require.True(t, h3.Closing)
	require.Equal(t, uint32(3), h3.Number)
}

func TestBitStringStatusFlags(t *testing.T) {
	sf := StatusFlags{InAlarm: true, Fault: false, Overridden: true, OutOfService: false}
	bs := sf.BitString()
	got := StatusFlagsFromBitString(bs)
	require.Equal(t, sf, got)
}
