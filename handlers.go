package bacstack

import (
	"github.com/bacgopher/bacstack/alarm"
	"github.com/bacgopher/bacstack/apdu"
	"github.com/bacgopher/bacstack/bacerr"
	"github.com/bacgopher/bacstack/baclog"
	"github.com/bacgopher/bacstack/codec"
	"github.com/bacgopher/bacstack/cov"
	"github.com/bacgopher/bacstack/npdu"
	"github.com/bacgopher/bacstack/objects"
	"github.com/bacgopher/bacstack/tsm"
)

// registerDefaultHandlers wires the confirmed/unconfirmed services the
// object/property dispatch table and COV engine need to be reachable over
// the wire.
func (s *Stack) registerDefaultHandlers() {
	s.dispatch.HandleUnconfirmed(apdu.ServiceWhoIs, s.handleWhoIs)
	s.dispatch.HandleUnconfirmed(apdu.ServiceIAm, s.handleIAm)
	s.dispatch.HandleConfirmed(apdu.ServiceReadProperty, s.handleReadProperty)
	s.dispatch.HandleConfirmed(apdu.ServiceReadPropertyMultiple, s.handleReadPropertyMultiple)
	s.dispatch.HandleConfirmed(apdu.ServiceWriteProperty, s.handleWriteProperty)
	s.dispatch.HandleConfirmed(apdu.ServiceSubscribeCOV, s.handleSubscribeCOV)
	s.dispatch.HandleConfirmed(apdu.ServiceDeviceCommunicationControl, s.handleDCC)
}

func (s *Stack) handleWhoIs(src codec.Address, req apdu.UnconfirmedRequest) {
	args, err := decodeWhoIs(req.Data)
	if err != nil {
		return
	}
	if !args.HasRange || (s.opts.DeviceInstance >= args.Low && s.opts.DeviceInstance <= args.High) {
		payload := encodeIAm(s.opts.DeviceInstance, uint16(maxAPDUForLink()), uint32(s.segmentation), s.vendorID)
		pdu := apdu.EncodeUnconfirmedRequest(apdu.ServiceIAm, payload)
		if err := s.sendRaw(src, npdu.Meta{}, pdu); err != nil {
			baclog.WithFields(baclog.Fields{"error": err}).Warn("bacstack: i-am reply failed")
		}
	}
	if s.router == nil {
		return
	}
	for _, d := range s.router.Devices() {
		if args.HasRange && (d.Instance < args.Low || d.Instance > args.High) {
			continue
		}
		payload := encodeIAm(d.Instance, uint16(maxAPDUForLink()), uint32(s.segmentation), s.vendorID)
		pdu := apdu.EncodeUnconfirmedRequest(apdu.ServiceIAm, payload)
		if err := s.sendFrom(d.Address, src, npdu.Meta{}, pdu); err != nil {
			baclog.WithFields(baclog.Fields{"error": err, "instance": d.Instance}).Warn("bacstack: routed i-am reply failed")
		}
	}
}

func (s *Stack) handleIAm(src codec.Address, req apdu.UnconfirmedRequest) {
	instance, maxAPDU, err := decodeIAm(req.Data)
	if err != nil {
		return
	}
	s.binding.Add(instance, maxAPDU, src, s.opts.BindingCacheTTLSeconds, false)
	if s.onIAm != nil {
		s.onIAm(instance, src)
	}
}

func maxAPDUForLink() int { return 1476 } // BACnet/IP over Ethernet, ASHRAE 135 table 6-1

func (s *Stack) handleReadProperty(src codec.Address, req apdu.ConfirmedRequest) ([]byte, error) {
	args, err := decodeReadProperty(req.Data)
	if err != nil {
		return nil, bacerr.New(bacerr.InvalidTag, "malformed read-property").WithClassCode(2, 9)
	}
	values, err := s.objects.ReadProperty(objects.ObjectType(args.ObjectType), args.Instance, objects.PropertyID(args.Property), args.ArrayIndex)
	if err != nil {
		return nil, toClassCode(err)
	}
	return encodeReadPropertyACK(args.ObjectType, args.Instance, args.Property, args.ArrayIndex, values), nil
}

func (s *Stack) handleWriteProperty(src codec.Address, req apdu.ConfirmedRequest) ([]byte, error) {
	args, err := decodeWriteProperty(req.Data)
	if err != nil {
		return nil, bacerr.New(bacerr.InvalidTag, "malformed write-property").WithClassCode(2, 9)
	}
	if err := s.objects.WriteProperty(objects.ObjectType(args.ObjectType), args.Instance, objects.PropertyID(args.Property), args.Values, args.ArrayIndex, args.Priority, args.HasPriority); err != nil {
		return nil, toClassCode(err)
	}
	s.evaluateCOVAfterWrite(args.ObjectType, args.Instance)
	return nil, nil
}

func (s *Stack) handleReadPropertyMultiple(src codec.Address, req apdu.ConfirmedRequest) ([]byte, error) {
	specs, err := decodeReadPropertyMultiple(req.Data)
	if err != nil {
		return nil, bacerr.New(bacerr.InvalidTag, "malformed read-property-multiple").WithClassCode(2, 9)
	}
	var buf []byte
	for _, spec := range specs {
		props := make([]objects.PropertyID, len(spec.Properties))
		for i, p := range spec.Properties {
			props[i] = objects.PropertyID(p.Property)
		}
		results, err := s.objects.ReadPropertyMultiple(objects.ReadPropertyMultipleSelector{
			ObjectType: objects.ObjectType(spec.ObjectType), Instance: spec.Instance, Properties: props,
		})
		if err != nil {
			return nil, toClassCode(err)
		}
		buf = appendContext(buf, 0, codec.ObjectIDValue(codec.ObjectIdentifier{Type: spec.ObjectType, Instance: spec.Instance}))
		buf = codec.EncodeOpeningTag(buf, 1)
		for _, r := range results {
			buf = appendContext(buf, 2, codec.Enumerated(uint32(r.Property)))
			if r.Err != nil {
				buf = codec.EncodeOpeningTag(buf, 5)
				buf = codec.Encode(buf, codec.Enumerated(2))
				buf = codec.Encode(buf, codec.Enumerated(uint32(errorCodeFor(r.Err))))
				buf = codec.EncodeClosingTag(buf, 5)
				continue
			}
			buf = codec.EncodeOpeningTag(buf, 4)
			for _, v := range r.Values {
				buf = codec.Encode(buf, v)
			}
			buf = codec.EncodeClosingTag(buf, 4)
		}
		buf = codec.EncodeClosingTag(buf, 1)
	}
	if !req.SegmentedRespOK {
		// Complex-ACK headers run 3 bytes (type/invoke-id/service); leave
		// that much headroom against the requester's negotiated limit.
		if limit := apdu.MaxAPDULengthAccepted(req.MaxAPDU); len(buf)+3 > limit {
			return nil, &apdu.AbortError{Reason: apdu.AbortSegmentationNotSupported}
		}
	}
	return buf, nil
}

func (s *Stack) handleSubscribeCOV(src codec.Address, req apdu.ConfirmedRequest) ([]byte, error) {
	args, err := decodeSubscribeCOV(req.Data)
	if err != nil {
		return nil, bacerr.New(bacerr.InvalidTag, "malformed subscribe-cov").WithClassCode(2, 9)
	}
	if !s.objects.Valid(objects.ObjectType(args.ObjectType), args.Instance) {
		return nil, bacerr.New(bacerr.UnknownObject, "subscribe-cov: no such object").WithClassCode(1, 31)
	}
	key := cov.Key{Subscriber: src, ProcessID: args.ProcessID, ObjectType: args.ObjectType, ObjectInstance: args.Instance}
	if args.Cancel {
		s.cov.Cancel(key)
		return nil, nil
	}
	s.cov.Subscribe(key, args.Confirmed, args.LifetimeSec)
	return nil, nil
}

func (s *Stack) handleDCC(src codec.Address, req apdu.ConfirmedRequest) ([]byte, error) {
	c := newCursor(req.Data)
	durVal, _, _ := c.readContext(0, codec.TagUnsigned)
	enableVal, ok, err := c.readContext(1, codec.TagEnumerated)
	if err != nil || !ok {
		return nil, bacerr.New(bacerr.InvalidTag, "malformed device-communication-control").WithClassCode(2, 9)
	}
	switch enableVal.Enum {
	case 0:
		s.dcc.Enable()
	case 1:
		s.dcc.Disable(false, int(durVal.Unsigned))
	case 2:
		s.dcc.Disable(true, int(durVal.Unsigned))
	}
	return nil, nil
}

// toClassCode maps a *bacerr.Error to the ASHRAE 135 {error-class,
// error-code} pair an Error-PDU needs. Only the kinds listed in
// errorClassFor and errorCodeFor get a specific class or code; every
// other kind falls back to class 0 (device) and code 0 (other).
func toClassCode(err error) *bacerr.Error {
	be, ok := err.(*bacerr.Error)
	if !ok {
		be = bacerr.Wrap(bacerr.UnexpectedType, err, "internal error")
	}
	return be.WithClassCode(errorClassFor(be), errorCodeFor(be))
}

func errorClassFor(err *bacerr.Error) uint32 {
	switch err.Kind {
	case bacerr.UnknownObject, bacerr.UnknownProperty, bacerr.PropertyIsNotAnArray, bacerr.InvalidArrayIndex:
		return 1 // object
	case bacerr.WriteAccessDenied, bacerr.InvalidDataType, bacerr.ValueOutOfRange:
		return 2 // property
	default:
		return 0 // device
	}
}

func errorCodeFor(err *bacerr.Error) uint32 {
	switch err.Kind {
	case bacerr.UnknownObject:
		return 31
	case bacerr.UnknownProperty:
		return 32
	case bacerr.WriteAccessDenied:
		return 40
	case bacerr.InvalidDataType:
		return 47
	case bacerr.InvalidArrayIndex:
		return 42
	case bacerr.ValueOutOfRange:
		return 37
	default:
		return 0
	}
}

// deliverCOVNotification sends one COV notification, confirmed or
// unconfirmed per the subscription.
func (s *Stack) deliverCOVNotification(sub cov.Subscription, values map[uint32]codec.Value) {
	var body []byte
	body = appendContext(body, 0, codec.Unsigned64(uint64(sub.ProcessID)))
	body = appendContext(body, 1, codec.ObjectIDValue(codec.ObjectIdentifier{Type: 8, Instance: s.opts.DeviceInstance}))
	body = appendContext(body, 2, codec.ObjectIDValue(codec.ObjectIdentifier{Type: sub.ObjectType, Instance: sub.ObjectInstance}))
	body = appendContext(body, 3, codec.Unsigned64(uint64(sub.RemainingSec)))
	body = codec.EncodeOpeningTag(body, 4)
	for propID, v := range values {
		body = appendContext(body, 0, codec.Enumerated(propID))
		body = codec.EncodeOpeningTag(body, 2)
		body = codec.Encode(body, v)
		body = codec.EncodeClosingTag(body, 2)
	}
	body = codec.EncodeClosingTag(body, 4)

	if !sub.Confirmed {
		pdu := apdu.EncodeUnconfirmedRequest(apdu.ServiceUnconfirmedCOVNotification, body)
		if err := s.sendRaw(sub.Subscriber, npdu.Meta{}, pdu); err != nil {
			baclog.WithFields(baclog.Fields{"error": err}).Warn("bacstack: unconfirmed cov notification failed")
		}
		return
	}
	pdu := apdu.EncodeConfirmedRequest(0, 0, 0, apdu.ServiceConfirmedCOVNotification, false, body)
	if _, err := s.tsm.Alloc(sub.Subscriber, npdu.Meta{ExpectingReply: true}, pdu, func(tsm.Result) {}); err != nil {
		baclog.WithFields(baclog.Fields{"error": err}).Warn("bacstack: confirmed cov notification failed")
	}
}

// deliverEventNotification fans an intrinsic reporting transition out to
// every recipient the object's notification class lists.
func (s *Stack) deliverEventNotification(notifyClass uint32, key alarm.ObjectKey, fromState, toState alarm.EventState, ackRequired bool) {
	for _, r := range s.classes.Recipients(notifyClass, toState) {
		var body []byte
		body = appendContext(body, 0, codec.Unsigned64(uint64(r.ProcessID)))
		body = appendContext(body, 1, codec.ObjectIDValue(codec.ObjectIdentifier{Type: 8, Instance: s.opts.DeviceInstance}))
		body = appendContext(body, 2, codec.ObjectIDValue(codec.ObjectIdentifier{Type: key.ObjectType, Instance: key.Instance}))
		body = appendContext(body, 5, codec.Enumerated(notifyClass))
		body = appendContext(body, 8, codec.Enumerated(uint32(toState)))
		if !r.ConfirmedNotifications {
			pdu := apdu.EncodeUnconfirmedRequest(apdu.ServiceUnconfirmedEventNotification, body)
			_ = s.sendRaw(r.Address, npdu.Meta{}, pdu)
			continue
		}
		pdu := apdu.EncodeConfirmedRequest(0, 0, 0, apdu.ServiceConfirmedEventNotification, false, body)
		if _, err := s.tsm.Alloc(r.Address, npdu.Meta{ExpectingReply: true}, pdu, func(tsm.Result) {}); err != nil {
			baclog.WithFields(baclog.Fields{"error": err}).Warn("bacstack: confirmed event notification failed")
		}
	}
}

// evaluateCOVAfterWrite re-checks COV subscribers for (objType, instance)
// right after a successful write, since Present_Value/Status_Flags may
// have just changed and a subscriber shouldn't have to wait for the next
// periodic sampling tick to find out.
func (s *Stack) evaluateCOVAfterWrite(objType uint16, instance uint32) {
	sample, ok := s.objects.COVSample(objects.ObjectType(objType), instance)
	if !ok {
		return
	}
	s.cov.Evaluate(uint16(sample.ObjectType), sample.Instance, sample.COVIncrement, sample.Changes)
}
