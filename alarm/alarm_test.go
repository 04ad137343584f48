package alarm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluateDebouncesBeforeTransitioning(t *testing.T) {
	var transitions []EventState
	engine := NewEngine(func(notifyClass uint32, key ObjectKey, from, to EventState, ackRequired bool) {
		transitions = append(transitions, to)
	})
	key := ObjectKey{ObjectType: 2, Instance: 1}
	engine.Register(key, 10, 1, true)

	engine.Evaluate(key, EventHighLimit, 4)
	require.Empty(t, transitions, "a candidate held under the time delay must not transition yet")
	state, _ := engine.State(key)
	require.Equal(t, EventNormal, state)

	engine.Evaluate(key, EventHighLimit, 4)
	require.Empty(t, transitions, "8 of 10 seconds elapsed, still below the delay")

	engine.Evaluate(key, EventHighLimit, 3)
	require.Equal(t, []EventState{EventHighLimit}, transitions)
	state, _ = engine.State(key)
	require.Equal(t, EventHighLimit, state)
}

func TestEvaluateResetsPendingOnCandidateChange(t *testing.T) {
	var transitions []EventState
	engine := NewEngine(func(_ uint32, _ ObjectKey, _, to EventState, _ bool) { transitions = append(transitions, to) })
	key := ObjectKey{ObjectType: 2, Instance: 1}
	engine.Register(key, 10, 1, true)

	engine.Evaluate(key, EventHighLimit, 8)
	engine.Evaluate(key, EventLowLimit, 8) // a different candidate restarts the debounce window
	require.Empty(t, transitions)
	engine.Evaluate(key, EventLowLimit, 8)
	require.Equal(t, []EventState{EventLowLimit}, transitions)
}

func TestAcknowledgeRejectsStaleTimestamp(t *testing.T) {
	engine := NewEngine(func(uint32, ObjectKey, EventState, EventState, bool) {})
	key := ObjectKey{ObjectType: 2, Instance: 1}
	engine.Register(key, 0, 1, true)
	engine.Evaluate(key, EventOffnormal, 0)

	err := engine.Acknowledge(key, EventOffnormal, 9999)
	require.ErrorIs(t, err, errStaleTimeStamp)

	m := engine.monitors[key]
	err = engine.Acknowledge(key, EventOffnormal, m.ToOffnormal.TimeStamp)
	require.NoError(t, err)
	require.True(t, m.ToOffnormal.Acked)
}

func TestEnsureRegisteredDoesNotResetAnExistingMonitor(t *testing.T) {
	engine := NewEngine(func(uint32, ObjectKey, EventState, EventState, bool) {})
	key := ObjectKey{ObjectType: 2, Instance: 1}
	engine.Register(key, 0, 1, true)
	engine.Evaluate(key, EventOffnormal, 0)

	state, _ := engine.State(key)
	require.Equal(t, EventOffnormal, state)

	engine.EnsureRegistered(key, 5, 2, false)
	state, _ = engine.State(key)
	require.Equal(t, EventOffnormal, state, "EnsureRegistered must not reset an already-registered monitor")

	unknown := ObjectKey{ObjectType: 2, Instance: 2}
	engine.EnsureRegistered(unknown, 5, 2, false)
	state, ok := engine.State(unknown)
	require.True(t, ok)
	require.Equal(t, EventNormal, state)
}
