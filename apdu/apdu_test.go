package apdu

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bacgopher/bacstack/bacerr"
	"github.com/bacgopher/bacstack/codec"
)

func TestMaxAPDULengthAccepted(t *testing.T) {
	require.Equal(t, 50, MaxAPDULengthAccepted(0))
	require.Equal(t, 1476, MaxAPDULengthAccepted(5))
	require.Equal(t, 1476, MaxAPDULengthAccepted(15), "reserved nibbles clamp to the largest defined size")
}

func TestEncodeDecodeConfirmedRequestRoundTrips(t *testing.T) {
	pdu := EncodeConfirmedRequest(7, 2, 5, ServiceReadProperty, true, []byte{0xaa, 0xbb})
	r, err := DecodeConfirmedRequest(pdu)
	require.NoError(t, err)
	require.Equal(t, byte(7), r.InvokeID)
	require.Equal(t, byte(2), r.MaxSegments)
	require.Equal(t, byte(5), r.MaxAPDU)
	require.Equal(t, ServiceReadProperty, r.Service)
	require.True(t, r.SegmentedRespOK)
	require.False(t, r.Segmented)
	require.Equal(t, []byte{0xaa, 0xbb}, r.Data)
}

func TestDecodeConfirmedRequestRejectsATruncatedHeader(t *testing.T) {
	_, err := DecodeConfirmedRequest([]byte{0, 0})
	require.Error(t, err)
}

func TestEncodeDecodeUnconfirmedRequestRoundTrips(t *testing.T) {
	pdu := EncodeUnconfirmedRequest(ServiceWhoIs, []byte{1, 2, 3})
	r, err := DecodeUnconfirmedRequest(pdu)
	require.NoError(t, err)
	require.Equal(t, ServiceWhoIs, r.Service)
	require.Equal(t, []byte{1, 2, 3}, r.Data)
}

func TestDecodeACKDistinguishesSimpleFromComplex(t *testing.T) {
	simple, err := DecodeACK(EncodeSimpleACK(4, ServiceWriteProperty))
	require.NoError(t, err)
	require.False(t, simple.Complex)
	require.Nil(t, simple.Data)

	complexACK, err := DecodeACK(EncodeComplexACK(4, ServiceReadProperty, []byte{9}))
	require.NoError(t, err)
	require.True(t, complexACK.Complex)
	require.Equal(t, []byte{9}, complexACK.Data)
}

func TestEncodeDecodeErrorRoundTrips(t *testing.T) {
	pdu := EncodeError(3, ServiceReadProperty, codec.Value{}, 2, 31)
	e, err := DecodeError(pdu)
	require.NoError(t, err)
	require.Equal(t, byte(3), e.InvokeID)
	require.Equal(t, uint32(2), e.Class)
	require.Equal(t, uint32(31), e.Code)
}

func TestEncodeDecodeRejectAndAbortRoundTrip(t *testing.T) {
	reject, err := DecodeReject(EncodeReject(5, RejectUndefinedEnumeration))
	require.NoError(t, err)
	require.Equal(t, RejectUndefinedEnumeration, reject.Reason)

	abort, err := DecodeAbort(EncodeAbort(6, true, AbortSegmentationNotSupported))
	require.NoError(t, err)
	require.True(t, abort.FromServer)
	require.Equal(t, AbortSegmentationNotSupported, abort.Reason)
}

func TestDispatchConfirmedRejectsAnUnregisteredService(t *testing.T) {
	d := NewDispatcher()
	reply := d.DispatchConfirmed(codec.Address{}, ConfirmedRequest{InvokeID: 1, Service: ServiceReadProperty})
	pduType, err := DecodePDUType(reply)
	require.NoError(t, err)
	require.Equal(t, PDUReject, pduType)
}

func TestDispatchConfirmedBuildsSimpleOrComplexACKFromAHandler(t *testing.T) {
	d := NewDispatcher()
	d.HandleConfirmed(ServiceWriteProperty, func(codec.Address, ConfirmedRequest) ([]byte, error) { return nil, nil })
	reply := d.DispatchConfirmed(codec.Address{}, ConfirmedRequest{InvokeID: 2, Service: ServiceWriteProperty})
	pduType, _ := DecodePDUType(reply)
	require.Equal(t, PDUSimpleACK, pduType)

	d.HandleConfirmed(ServiceReadProperty, func(codec.Address, ConfirmedRequest) ([]byte, error) { return []byte{1}, nil })
	reply = d.DispatchConfirmed(codec.Address{}, ConfirmedRequest{InvokeID: 2, Service: ServiceReadProperty})
	pduType, _ = DecodePDUType(reply)
	require.Equal(t, PDUComplexACK, pduType)
}

func TestDispatchConfirmedTurnsAnAbortErrorIntoAnAbortPDU(t *testing.T) {
	d := NewDispatcher()
	d.HandleConfirmed(ServiceReadPropertyMultiple, func(codec.Address, ConfirmedRequest) ([]byte, error) {
		return nil, &AbortError{Reason: AbortSegmentationNotSupported}
	})
	reply := d.DispatchConfirmed(codec.Address{}, ConfirmedRequest{InvokeID: 9, Service: ServiceReadPropertyMultiple})
	pduType, err := DecodePDUType(reply)
	require.NoError(t, err)
	require.Equal(t, PDUAbort, pduType)
	abort, err := DecodeAbort(reply)
	require.NoError(t, err)
	require.Equal(t, AbortSegmentationNotSupported, abort.Reason)
}

func TestDispatchConfirmedTurnsAClassCodeErrorIntoAnErrorPDU(t *testing.T) {
	d := NewDispatcher()
	d.HandleConfirmed(ServiceWriteProperty, func(codec.Address, ConfirmedRequest) ([]byte, error) {
		return nil, bacerr.New(bacerr.WriteAccessDenied, "read-only").WithClassCode(1, 40)
	})
	reply := d.DispatchConfirmed(codec.Address{}, ConfirmedRequest{InvokeID: 9, Service: ServiceWriteProperty})
	pduType, _ := DecodePDUType(reply)
	require.Equal(t, PDUError, pduType)
	errPDU, err := DecodeError(reply)
	require.NoError(t, err)
	require.Equal(t, uint32(1), errPDU.Class)
	require.Equal(t, uint32(40), errPDU.Code)
}
