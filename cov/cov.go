// Package cov implements the Change-of-Value engine: a subscription table
// keyed by (subscriber address, subscriber process id, monitored object),
// lifetime/cancellation handling, per-property change detection, and
// confirmed/unconfirmed notification delivery. A client-only COV
// implementation only ever sends SubscribeCOV and parses the resulting
// notifications; this package turns that logic inside out into the
// server-side engine a device actually needs.
package cov

import (
	"github.com/bacgopher/bacstack/baclog"
	"github.com/bacgopher/bacstack/codec"
)

// Key identifies one subscription.
type Key struct {
	Subscriber   codec.Address
	ProcessID    uint32
	ObjectType   uint16
	ObjectInstance uint32
}

// Subscription is one row of the COV subscription table.
type Subscription struct {
	Key
	Confirmed     bool
	LifetimeSec   int // 0 means indefinite
	RemainingSec  int
	LastValues    map[uint32]codec.Value // last notified value per property id, for change detection
}

// Notifier delivers one COV notification, confirmed or not, to a
// subscriber. The embedder wires this to the dispatcher/tsm pair:
// confirmed notifications go through tsm.Alloc, unconfirmed ones through a
// direct unconfirmed-request send.
type Notifier func(sub Subscription, values map[uint32]codec.Value)

// Table is the COV engine singleton, owned by a Stack value.
type Table struct {
	subs     map[Key]*Subscription
	notify   Notifier
}

// NewTable creates an empty subscription table.
func NewTable(notify Notifier) *Table {
	return &Table{subs: make(map[Key]*Subscription), notify: notify}
}

// Subscribe implements SubscribeCOV: lifetimeSec of 0 means indefinite. A
// second SubscribeCOV for the same key replaces the first rather than
// creating a duplicate row.
func (t *Table) Subscribe(key Key, confirmed bool, lifetimeSec int) {
	t.subs[key] = &Subscription{
		Key:          key,
		Confirmed:    confirmed,
		LifetimeSec:  lifetimeSec,
		RemainingSec: lifetimeSec,
		LastValues:   make(map[uint32]codec.Value),
	}
}

// Cancel implements SubscribeCOV-with-cancellation-bit semantics: a
// SubscribeCOV carrying no lifetime/confirmed parameters cancels an
// existing subscription outright.
func (t *Table) Cancel(key Key) {
	delete(t.subs, key)
}

// Lookup returns every subscription monitoring (objType, instance), for
// the notify-on-write path.
func (t *Table) Lookup(objType uint16, instance uint32) []*Subscription {
	var out []*Subscription
	for _, s := range t.subs {
		if s.ObjectType == objType && s.ObjectInstance == instance {
			out = append(out, s)
		}
	}
	return out
}

// ChangeKind distinguishes the two change-detection rules.
type ChangeKind int

const (
	ChangeReal ChangeKind = iota
	ChangeDiscrete
)

// ShouldNotify applies the per-property change-detection rule: a
// real/double property changes when it moves by at least covIncrement,
// everything else (including Status_Flags) changes on any inequality.
func ShouldNotify(kind ChangeKind, old, new codec.Value, covIncrement float32) bool {
	switch kind {
	case ChangeReal:
		delta := new.Real - old.Real
		if delta < 0 {
			delta = -delta
		}
		return delta >= covIncrement
	default:
		return !old.Equal(new)
	}
}

// PropertyChange is one property's freshly observed value, used to build
// the notification's value list and update LastValues.
type PropertyChange struct {
	PropertyID uint32
	Value      codec.Value
	Kind       ChangeKind
}

// Evaluate checks every tracked property against its last-notified value
// and fires a notification to each subscriber on (objType, instance) if
// any property changed enough to warrant one; Status_Flags is always
// included in the notification once any property triggers it.
func (t *Table) Evaluate(objType uint16, instance uint32, covIncrement float32, current []PropertyChange) {
	subs := t.Lookup(objType, instance)
	if len(subs) == 0 {
		return
	}
	for _, s := range subs {
		changed := false
		values := make(map[uint32]codec.Value, len(current))
		for _, pc := range current {
			old, seen := s.LastValues[pc.PropertyID]
			values[pc.PropertyID] = pc.Value
			if !seen || ShouldNotify(pc.Kind, old, pc.Value, covIncrement) {
				changed = true
			}
		}
		if !changed {
			continue
		}
		for k, v := range values {
			s.LastValues[k] = v
		}
		baclog.WithFields(baclog.Fields{
			"subscriber": s.Subscriber.String(), "process_id": s.ProcessID,
		}).Debug("cov: notifying subscriber")
		t.notify(*s, values)
	}
}

// TimerSeconds ages every subscription's remaining lifetime by
// elapsedSeconds and drops any that expire. Indefinite subscriptions
// (LifetimeSec == 0) are exempt.
func (t *Table) TimerSeconds(elapsedSeconds int) {
	for k, s := range t.subs {
		if s.LifetimeSec == 0 {
			continue
		}
		s.RemainingSec -= elapsedSeconds
		if s.RemainingSec <= 0 {
			delete(t.subs, k)
			baclog.WithFields(baclog.Fields{"subscriber": s.Subscriber.String()}).Debug("cov: subscription expired")
		}
	}
}

// Len reports the number of live subscriptions, mostly for tests.
func (t *Table) Len() int { return len(t.subs) }
