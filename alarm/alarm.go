// Package alarm implements Intrinsic Reporting: a per-object event-state
// machine (NORMAL/HIGH_LIMIT/LOW_LIMIT/FAULT/OFFNORMAL), time-delay
// debounce before a transition is confirmed, acknowledgement bookkeeping
// with stale-timestamp rejection, and the Notification Class object that
// fans a transition out to its recipient list. A client-only library never
// evaluates alarm conditions at all, so this package has no direct
// counterpart to adapt; it is built from the property names and state
// semantics a conforming device's alarming support requires.
package alarm

import (
	"github.com/bacgopher/bacstack/bacerr"
	"github.com/bacgopher/bacstack/baclog"
)

var (
	errUnknownObject  = bacerr.New(bacerr.UnknownObject, "alarm: no such monitored object or transition")
	errStaleTimeStamp = bacerr.New(bacerr.InvalidTimeStamp, "alarm: acknowledgement timestamp does not match current transition")
)

// EventState is one node of the intrinsic-reporting state diagram.
type EventState int

const (
	EventNormal EventState = iota
	EventHighLimit
	EventLowLimit
	EventFault
	EventOffnormal
)

func (s EventState) String() string {
	switch s {
	case EventNormal:
		return "NORMAL"
	case EventHighLimit:
		return "HIGH_LIMIT"
	case EventLowLimit:
		return "LOW_LIMIT"
	case EventFault:
		return "FAULT"
	case EventOffnormal:
		return "OFFNORMAL"
	}
	return "UNKNOWN"
}

// Transition is the ack-tracking record kept per direction (to-offnormal,
// to-fault, to-normal).
type Transition struct {
	State      EventState
	TimeStamp  uint64 // engine counter bumped once per transition, for stale-ack rejection
	Acked      bool
}

// ObjectKey identifies one monitored object.
type ObjectKey struct {
	ObjectType uint16
	Instance   uint32
}

// Monitor is the per-object intrinsic reporting state.
type Monitor struct {
	Key             ObjectKey
	State           EventState
	PendingState    EventState
	PendingSince    int // seconds the candidate state has been held
	TimeDelaySec    int
	NotifyClass     uint32
	ToOffnormal     Transition
	ToFault         Transition
	ToNormal        Transition
	AckRequired     bool
}

// NotificationSender delivers one event notification to every recipient
// of a notification class, confirmed or not depending on the recipient
// list entry.
type NotificationSender func(notifyClass uint32, key ObjectKey, fromState, toState EventState, ackRequired bool)

// Engine is the intrinsic reporting singleton, owned by a Stack value.
type Engine struct {
	monitors map[ObjectKey]*Monitor
	send     NotificationSender
	clock    uint64
}

// NewEngine creates an empty engine.
func NewEngine(send NotificationSender) *Engine {
	return &Engine{monitors: make(map[ObjectKey]*Monitor), send: send}
}

// Register starts tracking one object with the given time-delay and
// notification-class.
func (e *Engine) Register(key ObjectKey, timeDelaySec int, notifyClass uint32, ackRequired bool) {
	e.monitors[key] = &Monitor{
		Key:          key,
		State:        EventNormal,
		PendingState: EventNormal,
		TimeDelaySec: timeDelaySec,
		NotifyClass:  notifyClass,
		AckRequired:  ackRequired,
	}
}

// EnsureRegistered registers key only if it has no monitor yet, leaving an
// existing monitor's State/PendingState/transition history untouched. Safe
// to call on every periodic tick, unlike Register, which always resets an
// object back to NORMAL.
func (e *Engine) EnsureRegistered(key ObjectKey, timeDelaySec int, notifyClass uint32, ackRequired bool) {
	if _, ok := e.monitors[key]; ok {
		return
	}
	e.Register(key, timeDelaySec, notifyClass, ackRequired)
}

// Evaluate feeds one tick's candidate state for key through the
// time-delay debounce: a candidate state must persist for TimeDelaySec
// before the transition is confirmed and notified. elapsedSeconds is how
// much wall time has passed since the previous call.
func (e *Engine) Evaluate(key ObjectKey, candidate EventState, elapsedSeconds int) {
	m, ok := e.monitors[key]
	if !ok {
		return
	}
	if candidate == m.State {
		m.PendingState = candidate
		m.PendingSince = 0
		return
	}
	if candidate != m.PendingState {
		m.PendingState = candidate
		m.PendingSince = 0
	}
	m.PendingSince += elapsedSeconds
	if m.PendingSince < m.TimeDelaySec {
		return
	}
	e.transition(m, candidate)
}

func (e *Engine) transition(m *Monitor, to EventState) {
	from := m.State
	e.clock++
	m.State = to
	m.PendingSince = 0

	switch to {
	case EventOffnormal, EventHighLimit, EventLowLimit:
		m.ToOffnormal = Transition{State: to, TimeStamp: e.clock, Acked: !m.AckRequired}
	case EventFault:
		m.ToFault = Transition{State: to, TimeStamp: e.clock, Acked: !m.AckRequired}
	case EventNormal:
		m.ToNormal = Transition{State: to, TimeStamp: e.clock, Acked: !m.AckRequired}
	}

	baclog.WithFields(baclog.Fields{
		"object_type": m.Key.ObjectType, "instance": m.Key.Instance,
		"from": from.String(), "to": to.String(),
	}).Info("alarm: event state transition")

	if e.send != nil {
		e.send(m.NotifyClass, m.Key, from, to, m.AckRequired)
	}
}

// Acknowledge implements AcknowledgeAlarm: acking a transition whose
// recorded timestamp does not match ackTimeStamp is rejected as stale,
// since a newer transition may have since occurred.
func (e *Engine) Acknowledge(key ObjectKey, which EventState, ackTimeStamp uint64) error {
	m, ok := e.monitors[key]
	if !ok {
		return errUnknownObject
	}
	var t *Transition
	switch which {
	case EventOffnormal, EventHighLimit, EventLowLimit:
		t = &m.ToOffnormal
	case EventFault:
		t = &m.ToFault
	case EventNormal:
		t = &m.ToNormal
	default:
		return errUnknownObject
	}
	if t.TimeStamp != ackTimeStamp {
		return errStaleTimeStamp
	}
	t.Acked = true
	return nil
}

// State returns the current confirmed event state for key.
func (e *Engine) State(key ObjectKey) (EventState, bool) {
	m, ok := e.monitors[key]
	if !ok {
		return EventNormal, false
	}
	return m.State, true
}
