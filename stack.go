// Package bacstack is the root orchestrator: it owns every subsystem —
// binding cache, transaction state machine, COV table, object/property
// dispatch table, intrinsic reporting engine, dispatcher, and
// (optionally) the virtual router and BBMD roles — behind one Stack
// value, and exposes the maintenance-tick methods a host program drives
// on its own schedule. A single owning type holds this state rather than
// package-level globals, which a package-global invoke-id manager would
// otherwise invite.
package bacstack

import (
	"github.com/bacgopher/bacstack/alarm"
	"github.com/bacgopher/bacstack/apdu"
	"github.com/bacgopher/bacstack/bacerr"
	"github.com/bacgopher/bacstack/baclog"
	"github.com/bacgopher/bacstack/bbmd"
	"github.com/bacgopher/bacstack/binding"
	"github.com/bacgopher/bacstack/codec"
	"github.com/bacgopher/bacstack/config"
	"github.com/bacgopher/bacstack/cov"
	"github.com/bacgopher/bacstack/datalink"
	"github.com/bacgopher/bacstack/npdu"
	"github.com/bacgopher/bacstack/objects"
	"github.com/bacgopher/bacstack/router"
	"github.com/bacgopher/bacstack/tsm"
)

// DeviceSegmentation mirrors ASHRAE 135's Segmentation_Supported
// enumeration, reported in I-Am and used to decide whether a
// confirmed request may be segmented.
type DeviceSegmentation uint32

const (
	SegmentationBoth DeviceSegmentation = iota
	SegmentationTransmit
	SegmentationReceive
	SegmentationNone
)

// Stack is the single owning value for one BACnet device's runtime state.
type Stack struct {
	opts *config.Options

	link       datalink.DataLink
	myAddr     codec.Address
	broadcast  codec.Address

	binding *binding.Cache
	tsm     *tsm.Table
	objects *objects.Table
	cov     *cov.Table
	alarm   *alarm.Engine
	classes *alarm.Classes
	dispatch *apdu.Dispatcher

	router *router.Router
	bbmdClient *bbmd.ForeignDeviceClient
	bbmdServer *bbmd.BBMD

	vendorID     uint32
	segmentation DeviceSegmentation
	dcc          *dccState

	onIAm func(instance uint32, addr codec.Address)
}

// New wires every subsystem together against the given DataLink and
// configuration, registering the default Who-Is/I-Am/ReadProperty/
// ReadPropertyMultiple/WriteProperty/SubscribeCOV handlers.
func New(link datalink.DataLink, opts *config.Options) *Stack {
	s := &Stack{
		opts:         opts,
		link:         link,
		myAddr:       link.GetMyAddress(),
		broadcast:    link.GetBroadcastAddress(),
		binding:      binding.New(64),
		objects:      objects.NewTable(),
		vendorID:     0,
		segmentation: SegmentationNone,
		dcc:          newDCCState(),
	}
	s.tsm = tsm.NewTable(s.sendRaw, opts.APDUTimeoutMS, opts.APDURetries, opts.InvokeIDHint)
	s.cov = cov.NewTable(s.deliverCOVNotification)
	s.alarm = alarm.NewEngine(s.deliverEventNotification)
	s.classes = alarm.NewClasses()
	s.dispatch = apdu.NewDispatcher()
	s.registerDefaultHandlers()
	return s
}

// EnableRouting installs the virtual router role over the given locally
// attached networks.
func (s *Stack) EnableRouting(localDNETs ...uint16) {
	s.router = router.New(s.sendNetworkMessage, localDNETs...)
}

// RegisterRoutedDevice adds a logical device reachable only through the
// virtual router, so Who-Is is answered on its behalf the same way it
// would be for a locally hosted device. Panics if routing isn't enabled.
func (s *Stack) RegisterRoutedDevice(d router.RoutedDevice) {
	s.router.AddDevice(d)
}

// EnableForeignDeviceRegistration registers this device with a remote
// BBMD.
func (s *Stack) EnableForeignDeviceRegistration(bbmdAddr codec.Address) {
	s.bbmdClient = bbmd.NewForeignDeviceClient(bbmdAddr, s.opts.BBMDTTL, s.sendBVLC)
}

// EnableBBMD installs the Broadcast Distribution Master role with the
// given static BDT.
func (s *Stack) EnableBBMD(bdt []bbmd.BDTEntry) {
	s.bbmdServer = bbmd.NewBBMD(bdt, s.sendBVLC)
}

// Objects exposes the object/property dispatch table for the host
// program to register fixture object sets into.
func (s *Stack) Objects() *objects.Table { return s.objects }

// COVSubscriptions exposes the COV table, mostly for tests.
func (s *Stack) COVSubscriptions() *cov.Table { return s.cov }

// Alarms exposes the intrinsic reporting engine, mostly for tests.
func (s *Stack) Alarms() *alarm.Engine { return s.alarm }

// NotificationClasses exposes the notification-class registry.
func (s *Stack) NotificationClasses() *alarm.Classes { return s.classes }

// OnIAm registers a callback fired whenever an I-Am is received and added
// to the binding cache, for host programs (e.g. a discovery CLI) that want
// to observe devices as they answer rather than polling the cache.
func (s *Stack) OnIAm(fn func(instance uint32, addr codec.Address)) { s.onIAm = fn }

// SendUnconfirmed transmits an already-encoded unconfirmed-request APDU,
// subject to the current Device Communication Control state.
func (s *Stack) SendUnconfirmed(dest codec.Address, meta npdu.Meta, pdu []byte) error {
	return s.sendRaw(dest, meta, pdu)
}

func (s *Stack) sendRaw(dest codec.Address, meta npdu.Meta, pdu []byte) error {
	return s.sendFrom(s.myAddr, dest, meta, pdu)
}

// sendFrom sends an APDU with an explicit NPDU source address, used when
// answering on behalf of a routed device whose address is not this
// Stack's own.
func (s *Stack) sendFrom(src, dest codec.Address, meta npdu.Meta, pdu []byte) error {
	if s.dcc.blocks(meta) {
		return nil
	}
	header := npdu.Encode(dest, src, meta)
	_, err := s.link.Send(dest, meta, append(header, pdu...))
	return err
}

func (s *Stack) sendNetworkMessage(dest codec.Address, meta npdu.Meta, payload []byte) error {
	header := npdu.Encode(dest, s.myAddr, meta)
	_, err := s.link.Send(dest, meta, append(header, payload...))
	return err
}

func (s *Stack) sendBVLC(dest codec.Address, payload []byte) error {
	_, err := s.link.Send(dest, npdu.Meta{}, payload)
	return err
}

// ReceiveAndDispatch implements the primary tick: pull one inbound frame
// (blocking up to timeoutMs), parse the NPDU header, and hand the
// remainder either to the network-message handler (router) or the APDU
// dispatcher.
func (s *Stack) ReceiveAndDispatch(timeoutMs int) error {
	src, payload, err := s.link.Receive(timeoutMs)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	header, n, err := npdu.Decode(payload)
	if err != nil {
		baclog.WithFields(baclog.Fields{"error": err}).Debug("bacstack: dropping frame with bad npdu header")
		return nil
	}
	body := payload[n:]
	effectiveSrc := src
	if header.HasSource {
		effectiveSrc = header.SourceAddress()
	}

	if header.IsNetworkMessage {
		s.handleNetworkMessage(effectiveSrc, header, body)
		return nil
	}

	if header.HasDestination && s.router != nil && !s.router.IsLocal(header.DNET) {
		return nil // not ours to answer; a real relay would forward here
	}

	return s.handleAPDU(effectiveSrc, body)
}

func (s *Stack) handleNetworkMessage(src codec.Address, header npdu.Header, body []byte) {
	if s.router == nil {
		return
	}
	switch header.NetworkMessage {
	case npdu.WhoIsRouterToNetwork:
		dnet, ok := npdu.DecodeWhoIsRouterToNetwork(body)
		s.router.HandleWhoIsRouterToNetwork(src, dnet, ok)
	}
}

func (s *Stack) handleAPDU(src codec.Address, body []byte) error {
	pduType, err := apdu.DecodePDUType(body)
	if err != nil {
		return nil
	}
	switch pduType {
	case apdu.PDUConfirmedRequest:
		req, err := apdu.DecodeConfirmedRequest(body)
		if err != nil {
			return nil
		}
		reply := s.dispatch.DispatchConfirmed(src, req)
		return s.sendRaw(src, npdu.Meta{}, reply)
	case apdu.PDUUnconfirmedRequest:
		req, err := apdu.DecodeUnconfirmedRequest(body)
		if err != nil {
			return nil
		}
		s.dispatch.DispatchUnconfirmed(src, req)
		return nil
	case apdu.PDUSimpleACK:
		ack, err := apdu.DecodeACK(body)
		if err != nil {
			return nil
		}
		s.tsm.HandleInboundACK(ack.InvokeID, src, tsm.ResultSimpleACK, nil, nil)
		return nil
	case apdu.PDUComplexACK:
		ack, err := apdu.DecodeACK(body)
		if err != nil {
			return nil
		}
		s.tsm.HandleInboundACK(ack.InvokeID, src, tsm.ResultComplexACK, ack.Data, nil)
		return nil
	case apdu.PDUError:
		e, err := apdu.DecodeError(body)
		if err != nil {
			return nil
		}
		s.tsm.HandleInboundACK(e.InvokeID, src, tsm.ResultError, nil, bacerr.New(bacerr.Abort, "error pdu").WithClassCode(e.Class, e.Code))
		return nil
	case apdu.PDUReject:
		r, err := apdu.DecodeReject(body)
		if err != nil {
			return nil
		}
		s.tsm.HandleInboundACK(r.InvokeID, src, tsm.ResultReject, nil, bacerr.New(bacerr.Reject, "reject pdu"))
		return nil
	case apdu.PDUAbort:
		a, err := apdu.DecodeAbort(body)
		if err != nil {
			return nil
		}
		s.tsm.HandleInboundACK(a.InvokeID, src, tsm.ResultAbort, nil, bacerr.New(bacerr.Abort, "abort pdu"))
		return nil
	}
	return nil
}

// --- maintenance ticks --------------------------------------------------

// TSMTimerMilliseconds drives transaction retry/timeout.
func (s *Stack) TSMTimerMilliseconds(elapsedMs int) { s.tsm.TimerMilliseconds(elapsedMs) }

// AddressCacheTimer ages the binding cache.
func (s *Stack) AddressCacheTimer(elapsedSeconds int) { s.binding.Timer(elapsedSeconds) }

// COVTimerSeconds ages COV subscription lifetimes.
func (s *Stack) COVTimerSeconds(elapsedSeconds int) { s.cov.TimerSeconds(elapsedSeconds) }

// COVTask samples every registered object's COV-reportable properties and
// runs them through the COV engine's change detection, so a subscriber
// also sees a change picked up by polling, not only one triggered by a
// WriteProperty request.
func (s *Stack) COVTask() {
	for _, sample := range s.objects.AllCOVSamples() {
		s.cov.Evaluate(uint16(sample.ObjectType), sample.Instance, sample.COVIncrement, sample.Changes)
	}
}

// IntrinsicReportingTimer re-evaluates every alarm-capable object's
// candidate event state and feeds it through the intrinsic reporting
// engine's time-delay debounce.
func (s *Stack) IntrinsicReportingTimer(elapsedSeconds int) {
	for _, c := range s.objects.IntrinsicCandidates() {
		key := alarm.ObjectKey{ObjectType: uint16(c.ObjectType), Instance: c.Instance}
		s.alarm.EnsureRegistered(key, c.TimeDelaySec, c.NotifyClass, c.AckRequired)
		s.alarm.Evaluate(key, c.Candidate, elapsedSeconds)
	}
}

// DCCTimerSeconds ages an active Device-Communication-Control duration.
func (s *Stack) DCCTimerSeconds(elapsedSeconds int) { s.dcc.tick(elapsedSeconds) }

// ForeignDeviceTimerSeconds drives foreign-device re-registration and
// BBMD foreign-device-table aging, when those roles are enabled.
func (s *Stack) ForeignDeviceTimerSeconds(elapsedSeconds int) {
	if s.bbmdClient != nil {
		s.bbmdClient.TimerSeconds(elapsedSeconds)
	}
	if s.bbmdServer != nil {
		s.bbmdServer.TimerSeconds(elapsedSeconds)
	}
}

// RouterMaintenanceTick clears the virtual router's burst-suppression
// table.
func (s *Stack) RouterMaintenanceTick() {
	if s.router != nil {
		s.router.MaintenanceTick()
	}
}
