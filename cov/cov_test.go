package cov

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bacgopher/bacstack/codec"
)

func subscriber() codec.Address { return codec.Address{Mac: []byte{9}} }

func TestEvaluateNotifiesOnlyWhenChangeExceedsIncrement(t *testing.T) {
	var notified []map[uint32]codec.Value
	table := NewTable(func(sub Subscription, values map[uint32]codec.Value) {
		notified = append(notified, values)
	})
	key := Key{Subscriber: subscriber(), ProcessID: 1, ObjectType: 2, ObjectInstance: 3}
	table.Subscribe(key, false, 60)

	table.Evaluate(2, 3, 1.0, []PropertyChange{
		{PropertyID: 85, Value: codec.Real32(10), Kind: ChangeReal},
	})
	require.Len(t, notified, 1, "first sample always notifies, there is no prior LastValues entry")

	table.Evaluate(2, 3, 1.0, []PropertyChange{
		{PropertyID: 85, Value: codec.Real32(10.5), Kind: ChangeReal},
	})
	require.Len(t, notified, 1, "a sub-increment change must not trigger a second notification")

	table.Evaluate(2, 3, 1.0, []PropertyChange{
		{PropertyID: 85, Value: codec.Real32(11.2), Kind: ChangeReal},
	})
	require.Len(t, notified, 2, "a change at or beyond the increment must notify")
}

func TestEvaluateDiscreteNotifiesOnAnyInequality(t *testing.T) {
	var calls int
	table := NewTable(func(Subscription, map[uint32]codec.Value) { calls++ })
	key := Key{Subscriber: subscriber(), ProcessID: 1, ObjectType: 5, ObjectInstance: 1}
	table.Subscribe(key, false, 0)

	table.Evaluate(5, 1, 0, []PropertyChange{{PropertyID: 111, Value: codec.Enumerated(1), Kind: ChangeDiscrete}})
	require.Equal(t, 1, calls)
	table.Evaluate(5, 1, 0, []PropertyChange{{PropertyID: 111, Value: codec.Enumerated(1), Kind: ChangeDiscrete}})
	require.Equal(t, 1, calls, "an unchanged discrete value must not renotify")
	table.Evaluate(5, 1, 0, []PropertyChange{{PropertyID: 111, Value: codec.Enumerated(0), Kind: ChangeDiscrete}})
	require.Equal(t, 2, calls)
}

func TestTimerSecondsExpiresFiniteLifetimeSubscriptions(t *testing.T) {
	table := NewTable(func(Subscription, map[uint32]codec.Value) {})
	finite := Key{Subscriber: subscriber(), ProcessID: 1, ObjectType: 2, ObjectInstance: 1}
	indefinite := Key{Subscriber: subscriber(), ProcessID: 2, ObjectType: 2, ObjectInstance: 1}
	table.Subscribe(finite, false, 10)
	table.Subscribe(indefinite, false, 0)

	table.TimerSeconds(9)
	require.Equal(t, 2, table.Len())
	table.TimerSeconds(1)
	require.Equal(t, 1, table.Len(), "the finite subscription expires once RemainingSec reaches zero")
	require.Len(t, table.Lookup(2, 1), 1, "the indefinite subscription survives")
}

func TestCancelRemovesTheSubscription(t *testing.T) {
	table := NewTable(func(Subscription, map[uint32]codec.Value) {})
	key := Key{Subscriber: subscriber(), ProcessID: 7, ObjectType: 2, ObjectInstance: 1}
	table.Subscribe(key, false, 60)
	require.Equal(t, 1, table.Len())
	table.Cancel(key)
	require.Equal(t, 0, table.Len())
}
