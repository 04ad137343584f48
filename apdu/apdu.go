// Package apdu implements the Application Protocol Data Unit dispatcher:
// it classifies an inbound APDU by PDU type, routes confirmed and
// unconfirmed service requests to registered handlers, and builds the
// ACK/Error/Reject/Abort replies a handler returns. The PDU-type and
// service-choice byte tables and the `apduType&0xF0` dispatch switch
// follow common BACnet stack convention, generalized from a fixed,
// compile-time set of recognized services into an open handler registry.
package apdu

import (
	"github.com/bacgopher/bacstack/bacerr"
	"github.com/bacgopher/bacstack/baclog"
	"github.com/bacgopher/bacstack/codec"
)

// PDUType is the high nibble of the first APDU octet.
type PDUType byte

const (
	PDUConfirmedRequest   PDUType = 0x00
	PDUUnconfirmedRequest PDUType = 0x10
	PDUSimpleACK          PDUType = 0x20
	PDUComplexACK         PDUType = 0x30
	PDUSegmentACK         PDUType = 0x40
	PDUError              PDUType = 0x50
	PDUReject             PDUType = 0x60
	PDUAbort              PDUType = 0x70
)

const pduTypeMask = 0xF0

// maxAPDULengthAcceptedByA is ASHRAE 135 clause 20.1.2.4's table mapping
// the 4-bit max-APDU-length-accepted field to an actual octet count.
var maxAPDULengthAcceptedByA = [...]int{50, 128, 206, 480, 1024, 1476}

// MaxAPDULengthAccepted decodes a Confirmed-Request-PDU's packed
// max-APDU-length-accepted nibble into the octet count it names. Values
// 6-15 are reserved by ASHRAE 135 and resolve to the largest defined size.
func MaxAPDULengthAccepted(nibble byte) int {
	if int(nibble) < len(maxAPDULengthAcceptedByA) {
		return maxAPDULengthAcceptedByA[nibble]
	}
	return maxAPDULengthAcceptedByA[len(maxAPDULengthAcceptedByA)-1]
}

// Confirmed-request control bits, packed into the low nibble of byte 0
// alongside the PDU type.
const (
	ctrlSegmentedRequest      byte = 0x08
	ctrlMoreFollows           byte = 0x04
	ctrlSegmentedResponseOK   byte = 0x02
)

// Confirmed service choices (ASHRAE 135 clause 21).
type ConfirmedService byte

const (
	ServiceAcknowledgeAlarm       ConfirmedService = 0
	ServiceConfirmedCOVNotification ConfirmedService = 1
	ServiceConfirmedEventNotification ConfirmedService = 2
	ServiceGetAlarmSummary        ConfirmedService = 3
	ServiceGetEnrollmentSummary   ConfirmedService = 4
	ServiceSubscribeCOV           ConfirmedService = 5
	ServiceAtomicReadFile         ConfirmedService = 6
	ServiceAtomicWriteFile        ConfirmedService = 7
	ServiceAddListElement         ConfirmedService = 8
	ServiceRemoveListElement      ConfirmedService = 9
	ServiceCreateObject           ConfirmedService = 10
	ServiceDeleteObject           ConfirmedService = 11
	ServiceReadProperty           ConfirmedService = 12
	ServiceReadPropertyConditional ConfirmedService = 13
	ServiceReadPropertyMultiple   ConfirmedService = 14
	ServiceWriteProperty          ConfirmedService = 15
	ServiceWritePropertyMultiple  ConfirmedService = 16
	ServiceDeviceCommunicationControl ConfirmedService = 17
	ServiceConfirmedPrivateTransfer ConfirmedService = 18
	ServiceConfirmedTextMessage   ConfirmedService = 19
	ServiceReinitializeDevice     ConfirmedService = 20
	ServiceVTOpen                 ConfirmedService = 21
	ServiceVTClose                ConfirmedService = 22
	ServiceVTData                 ConfirmedService = 23
	ServiceReadRange              ConfirmedService = 26
	ServiceLifeSafetyOperation    ConfirmedService = 27
	ServiceSubscribeCOVProperty   ConfirmedService = 28
	ServiceGetEventInformation    ConfirmedService = 29
)

// Unconfirmed service choices.
type UnconfirmedService byte

const (
	ServiceIAm                     UnconfirmedService = 0
	ServiceIHave                   UnconfirmedService = 1
	ServiceUnconfirmedCOVNotification UnconfirmedService = 2
	ServiceUnconfirmedEventNotification UnconfirmedService = 3
	ServiceUnconfirmedPrivateTransfer UnconfirmedService = 4
	ServiceUnconfirmedTextMessage  UnconfirmedService = 5
	ServiceTimeSynchronization     UnconfirmedService = 6
	ServiceWhoHas                  UnconfirmedService = 7
	ServiceWhoIs                   UnconfirmedService = 8
	ServiceUTCTimeSynchronization  UnconfirmedService = 9
)

// RejectReason (ASHRAE 135 clause 21).
type RejectReason byte

const (
	RejectOther                   RejectReason = 0
	RejectBufferOverflow          RejectReason = 1
	RejectInconsistentParameters  RejectReason = 2
	RejectInvalidParameterDataType RejectReason = 3
	RejectInvalidTag             RejectReason = 4
	RejectMissingRequiredParameter RejectReason = 5
	RejectParameterOutOfRange     RejectReason = 6
	RejectTooManyArguments        RejectReason = 7
	RejectUndefinedEnumeration    RejectReason = 8
	RejectUnrecognizedService     RejectReason = 9
	RejectInvalidPDU              RejectReason = 10
)

// AbortReason (ASHRAE 135 clause 21).
type AbortReason byte

const (
	AbortOther                  AbortReason = 0
	AbortBufferOverflow         AbortReason = 1
	AbortInvalidAPDUInThisState AbortReason = 2
	AbortPreemptedByHigherPriorityTask AbortReason = 3
	AbortSegmentationNotSupported AbortReason = 4
)

// ConfirmedRequest is a decoded confirmed-service-request header: PDU
// type, segmentation control bits, invoke-id, optional sequence/window
// for segmented requests, the service choice, and the undecoded
// service-specific bytes that follow.
type ConfirmedRequest struct {
	Segmented        bool
	MoreFollows      bool
	SegmentedRespOK  bool
	MaxSegments      byte
	MaxAPDU          byte
	InvokeID         byte
	SequenceNumber   byte
	ProposedWindow   byte
	Service          ConfirmedService
	Data             []byte
}

// UnconfirmedRequest is a decoded unconfirmed-service-request header.
type UnconfirmedRequest struct {
	Service UnconfirmedService
	Data    []byte
}

// ACK carries a Simple-ACK or Complex-ACK's invoke-id/service/payload.
type ACK struct {
	InvokeID byte
	Service  ConfirmedService
	Complex  bool
	Data     []byte
}

// ErrorPDU, RejectPDU and AbortPDU mirror the three negative-outcome PDUs.
type ErrorPDU struct {
	InvokeID byte
	Service  ConfirmedService
	Class    uint32
	Code     uint32
}

type RejectPDU struct {
	InvokeID byte
	Reason   RejectReason
}

type AbortPDU struct {
	InvokeID byte
	FromServer bool
	Reason     AbortReason
}

// DecodePDUType reads only the first byte's high nibble.
func DecodePDUType(apdu []byte) (PDUType, error) {
	if len(apdu) < 1 {
		return 0, bacerr.New(bacerr.InvalidPDULength, "apdu: empty PDU")
	}
	return PDUType(apdu[0] & pduTypeMask), nil
}

// DecodeConfirmedRequest parses a Confirmed-Request-PDU header.
// Segmented requests carry two extra header bytes
// (sequence-number, proposed-window-size) that non-segmented requests
// omit.
func DecodeConfirmedRequest(pdu []byte) (ConfirmedRequest, error) {
	if len(pdu) < 4 {
		return ConfirmedRequest{}, bacerr.New(bacerr.InvalidPDULength, "apdu: truncated confirmed-request header")
	}
	ctrl := pdu[0]
	r := ConfirmedRequest{
		Segmented:       ctrl&ctrlSegmentedRequest != 0,
		MoreFollows:     ctrl&ctrlMoreFollows != 0,
		SegmentedRespOK: ctrl&ctrlSegmentedResponseOK != 0,
		MaxSegments:     pdu[1] >> 4,
		MaxAPDU:         pdu[1] & 0x0F,
		InvokeID:        pdu[2],
	}
	pos := 3
	if r.Segmented {
		if len(pdu) < pos+2 {
			return ConfirmedRequest{}, bacerr.New(bacerr.InvalidPDULength, "apdu: truncated segmented header")
		}
		r.SequenceNumber = pdu[pos]
		r.ProposedWindow = pdu[pos+1]
		pos += 2
	}
	if len(pdu) < pos+1 {
		return ConfirmedRequest{}, bacerr.New(bacerr.InvalidPDULength, "apdu: missing service choice")
	}
	r.Service = ConfirmedService(pdu[pos])
	r.Data = pdu[pos+1:]
	return r, nil
}

// EncodeConfirmedRequest builds a non-segmented Confirmed-Request-PDU.
func EncodeConfirmedRequest(invokeID byte, maxSegments, maxAPDU byte, service ConfirmedService, segmentedRespOK bool, data []byte) []byte {
	ctrl := byte(PDUConfirmedRequest)
	if segmentedRespOK {
		ctrl |= ctrlSegmentedResponseOK
	}
	buf := []byte{ctrl, (maxSegments << 4) | (maxAPDU & 0x0F), invokeID, byte(service)}
	return append(buf, data...)
}

// DecodeUnconfirmedRequest parses an Unconfirmed-Request-PDU.
func DecodeUnconfirmedRequest(pdu []byte) (UnconfirmedRequest, error) {
	if len(pdu) < 2 {
		return UnconfirmedRequest{}, bacerr.New(bacerr.InvalidPDULength, "apdu: truncated unconfirmed-request")
	}
	return UnconfirmedRequest{Service: UnconfirmedService(pdu[1]), Data: pdu[2:]}, nil
}

// EncodeUnconfirmedRequest builds an Unconfirmed-Request-PDU.
func EncodeUnconfirmedRequest(service UnconfirmedService, data []byte) []byte {
	buf := []byte{byte(PDUUnconfirmedRequest), byte(service)}
	return append(buf, data...)
}

// EncodeSimpleACK / EncodeComplexACK build the two positive-ACK PDUs.
func EncodeSimpleACK(invokeID byte, service ConfirmedService) []byte {
	return []byte{byte(PDUSimpleACK), invokeID, byte(service)}
}

func EncodeComplexACK(invokeID byte, service ConfirmedService, data []byte) []byte {
	buf := []byte{byte(PDUComplexACK), invokeID, byte(service)}
	return append(buf, data...)
}

// DecodeACK parses a Simple-ACK or Complex-ACK PDU.
func DecodeACK(pdu []byte) (ACK, error) {
	if len(pdu) < 3 {
		return ACK{}, bacerr.New(bacerr.InvalidPDULength, "apdu: truncated ack")
	}
	t := PDUType(pdu[0] & pduTypeMask)
	a := ACK{InvokeID: pdu[1], Service: ConfirmedService(pdu[2]), Complex: t == PDUComplexACK}
	if a.Complex {
		a.Data = pdu[3:]
	}
	return a, nil
}

// EncodeError / DecodeError build and parse an Error-PDU.
func EncodeError(invokeID byte, service ConfirmedService, v codec.Value, class, code uint32) []byte {
	_ = v
	classV := codec.Enumerated(class)
	codeV := codec.Enumerated(code)
	buf := []byte{byte(PDUError), invokeID, byte(service)}
	buf = codec.Encode(buf, classV)
	buf = codec.Encode(buf, codeV)
	return buf
}

func DecodeError(pdu []byte) (ErrorPDU, error) {
	if len(pdu) < 3 {
		return ErrorPDU{}, bacerr.New(bacerr.InvalidPDULength, "apdu: truncated error pdu")
	}
	e := ErrorPDU{InvokeID: pdu[1], Service: ConfirmedService(pdu[2])}
	rest := pdu[3:]
	classV, n, err := codec.Decode(rest)
	if err != nil {
		return ErrorPDU{}, err
	}
	e.Class = classV.Enum
	rest = rest[n:]
	codeV, _, err := codec.Decode(rest)
	if err != nil {
		return ErrorPDU{}, err
	}
	e.Code = codeV.Enum
	return e, nil
}

// EncodeReject / EncodeAbort build the two abnormal-termination PDUs.
func EncodeReject(invokeID byte, reason RejectReason) []byte {
	return []byte{byte(PDUReject), invokeID, byte(reason)}
}

func DecodeReject(pdu []byte) (RejectPDU, error) {
	if len(pdu) < 3 {
		return RejectPDU{}, bacerr.New(bacerr.InvalidPDULength, "apdu: truncated reject")
	}
	return RejectPDU{InvokeID: pdu[1], Reason: RejectReason(pdu[2])}, nil
}

func EncodeAbort(invokeID byte, fromServer bool, reason AbortReason) []byte {
	ctrl := byte(PDUAbort)
	if fromServer {
		ctrl |= 0x01
	}
	return []byte{ctrl, invokeID, byte(reason)}
}

func DecodeAbort(pdu []byte) (AbortPDU, error) {
	if len(pdu) < 3 {
		return AbortPDU{}, bacerr.New(bacerr.InvalidPDULength, "apdu: truncated abort")
	}
	return AbortPDU{InvokeID: pdu[1], FromServer: pdu[0]&0x01 != 0, Reason: AbortReason(pdu[2])}, nil
}

// ConfirmedHandler processes a confirmed-service request and returns the
// bytes of a Simple-ACK payload (nil body) or Complex-ACK payload
// (non-nil body), or an error to be turned into Error/Reject/Abort.
type ConfirmedHandler func(src codec.Address, req ConfirmedRequest) (complexACKData []byte, err error)

// AbortError is a ConfirmedHandler's way of forcing an Abort-PDU reply
// instead of Simple-ACK/Complex-ACK/Error/Reject — used when a handler
// discovers its response cannot fit within the requester's negotiated
// max-APDU and segmentation isn't available to split it.
type AbortError struct {
	Reason AbortReason
}

func (e *AbortError) Error() string { return "apdu: aborted" }

// UnconfirmedHandler processes an unconfirmed-service request.
type UnconfirmedHandler func(src codec.Address, req UnconfirmedRequest)

// Dispatcher routes inbound APDUs to registered handlers, rejecting
// anything unregistered with UNRECOGNIZED_SERVICE.
type Dispatcher struct {
	confirmed   map[ConfirmedService]ConfirmedHandler
	unconfirmed map[UnconfirmedService]UnconfirmedHandler
}

// NewDispatcher creates an empty registry.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		confirmed:   make(map[ConfirmedService]ConfirmedHandler),
		unconfirmed: make(map[UnconfirmedService]UnconfirmedHandler),
	}
}

// HandleConfirmed registers the handler for a confirmed service choice.
func (d *Dispatcher) HandleConfirmed(service ConfirmedService, h ConfirmedHandler) {
	d.confirmed[service] = h
}

// HandleUnconfirmed registers the handler for an unconfirmed service choice.
func (d *Dispatcher) HandleUnconfirmed(service UnconfirmedService, h UnconfirmedHandler) {
	d.unconfirmed[service] = h
}

// DispatchConfirmed runs the registered handler, if any, and builds the
// appropriate reply PDU. An unregistered service produces a Reject PDU
// with UNRECOGNIZED_SERVICE.
func (d *Dispatcher) DispatchConfirmed(src codec.Address, req ConfirmedRequest) []byte {
	h, ok := d.confirmed[req.Service]
	if !ok {
		baclog.WithFields(baclog.Fields{"service": req.Service}).Debug("apdu: unregistered confirmed service")
		return EncodeReject(req.InvokeID, RejectUnrecognizedService)
	}
	data, err := h(src, req)
	if err != nil {
		if ae, ok := err.(*AbortError); ok {
			return EncodeAbort(req.InvokeID, true, ae.Reason)
		}
		if be, ok := err.(*bacerr.Error); ok && be.HasClassCode {
			return EncodeError(req.InvokeID, req.Service, codec.Value{}, be.Class, be.Code)
		}
		return EncodeReject(req.InvokeID, RejectOther)
	}
	if data == nil {
		return EncodeSimpleACK(req.InvokeID, req.Service)
	}
	return EncodeComplexACK(req.InvokeID, req.Service, data)
}

// DispatchUnconfirmed runs the registered handler, if any; unregistered
// unconfirmed services are silently ignored per ASHRAE 135 (no reply
// path exists for them).
func (d *Dispatcher) DispatchUnconfirmed(src codec.Address, req UnconfirmedRequest) {
	h, ok := d.unconfirmed[req.Service]
	if !ok {
		baclog.WithFields(baclog.Fields{"service": req.Service}).Debug("apdu: unregistered unconfirmed service, ignored")
		return
	}
	h(src, req)
}
