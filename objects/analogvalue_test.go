package objects

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bacgopher/bacstack/alarm"
	"github.com/bacgopher/bacstack/bacerr"
	"github.com/bacgopher/bacstack/codec"
)

func TestAnalogValuesReadPresentValueDefaultsToTheRelinquishDefault(t *testing.T) {
	av := NewAnalogValues()
	av.Add(1, "av-1", 21.5)
	f := av.Functions()

	vals, err := f.ReadProperty(1, PropPresentValue, ArrayAll)
	require.NoError(t, err)
	require.Equal(t, float32(21.5), vals[0].Real)
}

func TestAnalogValuesWritePresentValueAtPriorityWinsOverRelinquishDefault(t *testing.T) {
	av := NewAnalogValues()
	av.Add(1, "av-1", 21.5)
	f := av.Functions()

	err := f.WriteProperty(1, PropPresentValue, []codec.Value{codec.Real32(99)}, ArrayAll, 8, true)
	require.NoError(t, err)

	vals, err := f.ReadProperty(1, PropPresentValue, ArrayAll)
	require.NoError(t, err)
	require.Equal(t, float32(99), vals[0].Real)

	got, ok := av.EffectivePresentValue(1)
	require.True(t, ok)
	require.Equal(t, float32(99), got)
}

func TestAnalogValuesWritePresentValueRejectsAnOutOfRangePriority(t *testing.T) {
	av := NewAnalogValues()
	av.Add(1, "av-1", 0)
	f := av.Functions()

	err := f.WriteProperty(1, PropPresentValue, []codec.Value{codec.Real32(1)}, ArrayAll, 17, true)
	require.True(t, bacerr.Of(err, bacerr.ValueOutOfRange))
}

func TestAnalogValuesPriorityArrayIsTheOnlyPropertyThatAcceptsAnArrayIndex(t *testing.T) {
	av := NewAnalogValues()
	av.Add(1, "av-1", 0)
	f := av.Functions()

	_, err := f.ReadProperty(1, PropPresentValue, 3)
	require.True(t, bacerr.Of(err, bacerr.PropertyIsNotAnArray))

	vals, err := f.ReadProperty(1, PropPriorityArray, 16)
	require.NoError(t, err)
	require.Equal(t, uint32(codec.TagNull), vals[0].Tag, "an unset priority slot reads back as NULL")

	_, err = f.ReadProperty(1, PropPriorityArray, 17)
	require.True(t, bacerr.Of(err, bacerr.InvalidArrayIndex))
}

func TestAnalogValuesWriteRejectsAnyArrayIndexEvenOnPriorityArray(t *testing.T) {
	av := NewAnalogValues()
	av.Add(1, "av-1", 0)
	f := av.Functions()

	err := f.WriteProperty(1, PropPriorityArray, []codec.Value{codec.Real32(1)}, 3, 0, false)
	require.True(t, bacerr.Of(err, bacerr.PropertyIsNotAnArray))
}

func TestAnalogValuesAlarmCandidateAppliesOutOfRangeThenOutOfService(t *testing.T) {
	av := NewAnalogValues()
	av.Add(1, "av-1", 50)
	f := av.Functions()

	candidate, _, _, ok, _ := f.AlarmCandidate(1)
	require.True(t, ok)
	require.Equal(t, alarm.EventNormal, candidate, "limits start disabled so no out-of-range condition applies")

	require.NoError(t, f.WriteProperty(1, PropHighLimit, []codec.Value{codec.Real32(40)}, ArrayAll, 0, false))
	av.instances[1].limitEnable = codec.NewBitString(false, true)
	candidate, _, _, _, _ = f.AlarmCandidate(1)
	require.Equal(t, alarm.EventHighLimit, candidate)

	require.NoError(t, f.WriteProperty(1, PropOutOfService, []codec.Value{codec.Bool(true)}, ArrayAll, 0, false))
	candidate, _, _, _, _ = f.AlarmCandidate(1)
	require.Equal(t, alarm.EventFault, candidate, "out-of-service takes precedence over a limit violation")
}

func TestAnalogValuesCOVSampleReportsPresentValueAndIncrement(t *testing.T) {
	av := NewAnalogValues()
	av.Add(1, "av-1", 10)
	f := av.Functions()

	increment, changes, ok := f.COVSample(1)
	require.True(t, ok)
	require.Equal(t, float32(1.0), increment)
	require.Len(t, changes, 2)
	require.Equal(t, float32(10), changes[0].Value.Real)
}
