package bacstack

import (
	"time"

	"github.com/bacgopher/bacstack/apdu"
	"github.com/bacgopher/bacstack/bacerr"
	"github.com/bacgopher/bacstack/codec"
	"github.com/bacgopher/bacstack/npdu"
	"github.com/bacgopher/bacstack/tsm"
)

// awaitResult drives ReceiveAndDispatch in short steps until the given
// transaction completes or timeoutMs elapses. Stack's own contract is
// tick-driven; this gives the example commands a synchronous
// request/response call on top of that loop.
func (s *Stack) awaitResult(done <-chan tsm.Result, timeoutMs int) (tsm.Result, error) {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for {
		select {
		case r := <-done:
			return r, nil
		default:
		}
		remaining := int(time.Until(deadline).Milliseconds())
		if remaining <= 0 {
			return tsm.Result{}, bacerr.New(bacerr.APDUTimeout, "request timed out")
		}
		step := remaining
		if step > 200 {
			step = 200
		}
		_ = s.ReceiveAndDispatch(step)
	}
}

// ReadProperty issues a confirmed ReadProperty request and blocks for the
// reply.
func (s *Stack) ReadProperty(dest codec.Address, objType uint16, instance uint32, prop uint32, arrayIndex uint32, timeoutMs int) ([]codec.Value, error) {
	body := encodeReadPropertyRequest(objType, instance, prop, arrayIndex)
	pdu := apdu.EncodeConfirmedRequest(0, 0, 0, apdu.ServiceReadProperty, false, body)
	done := make(chan tsm.Result, 1)
	if _, err := s.tsm.Alloc(dest, npdu.Meta{ExpectingReply: true}, pdu, func(r tsm.Result) { done <- r }); err != nil {
		return nil, err
	}
	result, err := s.awaitResult(done, timeoutMs)
	if err != nil {
		return nil, err
	}
	switch result.Kind {
	case tsm.ResultComplexACK:
		_, values, err := decodeReadPropertyACK(result.Payload)
		return values, err
	case tsm.ResultTimeout:
		return nil, bacerr.New(bacerr.APDUTimeout, "read-property timed out")
	default:
		if result.Reason != nil {
			return nil, result.Reason
		}
		return nil, bacerr.New(bacerr.Abort, "read-property failed")
	}
}

// SubscribeCOV issues a confirmed SubscribeCOV request and blocks for the
// Simple-ACK.
func (s *Stack) SubscribeCOV(dest codec.Address, processID uint32, objType uint16, instance uint32, confirmed bool, lifetimeSec int, timeoutMs int) error {
	body := encodeSubscribeCOVRequest(processID, objType, instance, false, confirmed, lifetimeSec)
	pdu := apdu.EncodeConfirmedRequest(0, 0, 0, apdu.ServiceSubscribeCOV, false, body)
	done := make(chan tsm.Result, 1)
	if _, err := s.tsm.Alloc(dest, npdu.Meta{ExpectingReply: true}, pdu, func(r tsm.Result) { done <- r }); err != nil {
		return err
	}
	result, err := s.awaitResult(done, timeoutMs)
	if err != nil {
		return err
	}
	if result.Kind == tsm.ResultSimpleACK {
		return nil
	}
	if result.Reason != nil {
		return result.Reason
	}
	return bacerr.New(bacerr.Abort, "subscribe-cov failed")
}

// OnCOVNotification registers a callback fired for every inbound COV
// notification, confirmed or unconfirmed, used by subscriber-side example
// commands to print updates as they arrive.
func (s *Stack) OnCOVNotification(fn func(objType uint16, instance uint32, values map[uint32]codec.Value)) {
	s.dispatch.HandleUnconfirmed(apdu.ServiceUnconfirmedCOVNotification, func(src codec.Address, req apdu.UnconfirmedRequest) {
		objType, instance, values, err := decodeCOVNotification(req.Data)
		if err != nil {
			return
		}
		fn(objType, instance, values)
	})
	s.dispatch.HandleConfirmed(apdu.ServiceConfirmedCOVNotification, func(src codec.Address, req apdu.ConfirmedRequest) ([]byte, error) {
		objType, instance, values, err := decodeCOVNotification(req.Data)
		if err != nil {
			return nil, err
		}
		fn(objType, instance, values)
		return nil, nil
	})
}
