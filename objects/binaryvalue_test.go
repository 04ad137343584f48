package objects

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bacgopher/bacstack/alarm"
	"github.com/bacgopher/bacstack/bacerr"
	"github.com/bacgopher/bacstack/codec"
)

func TestBinaryValuesWritePresentValueAtPriorityOverridesTheRelinquishDefault(t *testing.T) {
	bv := NewBinaryValues()
	bv.Add(1, "bv-1", false)
	f := bv.Functions()

	err := f.WriteProperty(1, PropPresentValue, []codec.Value{codec.Enumerated(1)}, ArrayAll, 5, true)
	require.NoError(t, err)

	got, ok := bv.EffectivePresentValue(1)
	require.True(t, ok)
	require.True(t, got)

	vals, err := f.ReadProperty(1, PropPresentValue, ArrayAll)
	require.NoError(t, err)
	require.Equal(t, uint32(1), vals[0].Enum)
}

func TestBinaryValuesWritePresentValueRejectsNonEnumeratedValue(t *testing.T) {
	bv := NewBinaryValues()
	bv.Add(1, "bv-1", false)
	f := bv.Functions()

	err := f.WriteProperty(1, PropPresentValue, []codec.Value{codec.Real32(1)}, ArrayAll, 0, false)
	require.True(t, bacerr.Of(err, bacerr.InvalidDataType))
}

func TestBinaryValuesAlarmCandidateFiresOffnormalWhenPresentValueMatchesAlarmValue(t *testing.T) {
	bv := NewBinaryValues()
	bv.Add(1, "bv-1", false) // alarmValue defaults to true, so this starts NORMAL
	f := bv.Functions()

	candidate, _, _, _, _ := f.AlarmCandidate(1)
	require.Equal(t, alarm.EventNormal, candidate)

	require.NoError(t, f.WriteProperty(1, PropPresentValue, []codec.Value{codec.Enumerated(1)}, ArrayAll, 0, false))
	candidate, _, _, _, _ = f.AlarmCandidate(1)
	require.Equal(t, alarm.EventOffnormal, candidate)

	require.NoError(t, f.WriteProperty(1, PropOutOfService, []codec.Value{codec.Bool(true)}, ArrayAll, 0, false))
	candidate, _, _, _, _ = f.AlarmCandidate(1)
	require.Equal(t, alarm.EventFault, candidate, "out-of-service takes precedence over the alarm-value match")
}

func TestBinaryValuesPriorityArrayRejectsAnyWriteArrayIndex(t *testing.T) {
	bv := NewBinaryValues()
	bv.Add(1, "bv-1", false)
	f := bv.Functions()

	err := f.WriteProperty(1, PropPriorityArray, []codec.Value{codec.Enumerated(1)}, 4, 0, false)
	require.True(t, bacerr.Of(err, bacerr.PropertyIsNotAnArray))
}

func TestBinaryValuesCOVSampleReflectsTheEffectivePresentValue(t *testing.T) {
	bv := NewBinaryValues()
	bv.Add(1, "bv-1", true)
	f := bv.Functions()

	_, changes, ok := f.COVSample(1)
	require.True(t, ok)
	require.Equal(t, uint32(1), changes[0].Value.Enum)
}
