// Package bacerr defines the error taxonomy shared by every layer of the
// protocol stack: codec, transport, protocol and transaction failures all
// resolve to one kind-carrying error type so callers can test with
// errors.Is/As instead of string matching.
package bacerr

import "fmt"

// Kind identifies one entry of the error taxonomy.
type Kind int

const (
	// Codec
	InvalidTag Kind = iota
	InvalidPDULength
	UnexpectedType
	ValueOutOfRange

	// Transport
	SendFailed
	ReceiveTimeout
	BufferOverflow

	// Protocol
	UnrecognizedService
	SegmentationNotSupported
	UnknownObject
	UnknownProperty
	PropertyIsNotAnArray
	InvalidArrayIndex
	WriteAccessDenied
	InvalidDataType
	DuplicateName
	CharacterSetNotSupported
	PasswordFailure
	CommunicationDisabled
	InvalidTimeStamp
	InvalidEventState

	// Transaction
	APDUTimeout
	Abort
	Reject
)

var names = map[Kind]string{
	InvalidTag:                "INVALID_TAG",
	InvalidPDULength:          "INVALID_PDU_LENGTH",
	UnexpectedType:            "UNEXPECTED_TYPE",
	ValueOutOfRange:           "VALUE_OUT_OF_RANGE",
	SendFailed:                "SEND_FAILED",
	ReceiveTimeout:            "RECEIVE_TIMEOUT",
	BufferOverflow:            "BUFFER_OVERFLOW",
	UnrecognizedService:       "UNRECOGNIZED_SERVICE",
	SegmentationNotSupported:  "SEGMENTATION_NOT_SUPPORTED",
	UnknownObject:             "UNKNOWN_OBJECT",
	UnknownProperty:           "UNKNOWN_PROPERTY",
	PropertyIsNotAnArray:      "PROPERTY_IS_NOT_AN_ARRAY",
	InvalidArrayIndex:         "INVALID_ARRAY_INDEX",
	WriteAccessDenied:         "WRITE_ACCESS_DENIED",
	InvalidDataType:           "INVALID_DATA_TYPE",
	DuplicateName:             "DUPLICATE_NAME",
	CharacterSetNotSupported:  "CHARACTER_SET_NOT_SUPPORTED",
	PasswordFailure:           "PASSWORD_FAILURE",
	CommunicationDisabled:     "COMMUNICATION_DISABLED",
	InvalidTimeStamp:          "INVALID_TIME_STAMP",
	InvalidEventState:         "INVALID_EVENT_STATE",
	APDUTimeout:               "APDU_TIMEOUT",
	Abort:                     "ABORT",
	Reject:                    "REJECT",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return "UNKNOWN_ERROR_KIND"
}

// Error is the one error type every package in the stack raises. It carries
// the taxonomy Kind plus an optional wrapped cause and an optional BACnet
// wire-level error-class/error-code pair (set only when the failure must be
// reported to a peer as an Error APDU).
type Error struct {
	Kind  Kind
	Msg   string
	Cause error

	// HasClassCode is set when this error must be encoded as a BACnet
	// Error-PDU {error-class, error-code} rather than merely logged.
	HasClassCode bool
	Class        uint32
	Code         uint32
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// WithClassCode attaches the BACnet error-class/error-code pair used when
// this error must be delivered to a peer as a Error-PDU.
func (e *Error) WithClassCode(class, code uint32) *Error {
	e.HasClassCode = true
	e.Class = class
	e.Code = code
	return e
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, so callers can
// write errors.Is(err, bacerr.New(bacerr.APDUTimeout, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Of reports whether err (or anything it wraps) carries the given Kind.
func Of(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if be, ok := err.(*Error); ok {
			e = be
			if e.Kind == kind {
				return true
			}
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
