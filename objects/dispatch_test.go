package objects

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bacgopher/bacstack/alarm"
	"github.com/bacgopher/bacstack/bacerr"
	"github.com/bacgopher/bacstack/codec"
	"github.com/bacgopher/bacstack/cov"
)

// fakeObject is a minimal Functions-backed fixture for exercising Table's
// generic dispatch without pulling in a real object type's internals.
type fakeObject struct {
	names map[uint32]string
}

func (f *fakeObject) functions() *Functions {
	return &Functions{
		Count:           func() int { return len(f.names) },
		IndexToInstance: func(i int) (uint32, bool) { return uint32(i) + 1, i < len(f.names) },
		ValidInstance:   func(instance uint32) bool { _, ok := f.names[instance]; return ok },
		ObjectName:      func(instance uint32) (string, bool) { n, ok := f.names[instance]; return n, ok },
		ReadProperty: func(instance uint32, prop PropertyID, arrayIndex uint32) ([]codec.Value, error) {
			if prop == PropPresentValue {
				return []codec.Value{codec.Real32(42)}, nil
			}
			return nil, bacerr.New(bacerr.UnknownProperty, "objects: property not supported")
		},
		WriteProperty: func(instance uint32, prop PropertyID, values []codec.Value, arrayIndex uint32, priority uint8, hasPriority bool) error {
			if prop == PropPresentValue {
				return nil
			}
			return bacerr.New(bacerr.WriteAccessDenied, "objects: property not writable")
		},
		PropertyList: func(uint32) []PropertyID { return []PropertyID{PropPresentValue} },
		AlarmCandidate: func(instance uint32) (alarm.EventState, int, uint32, bool, bool) {
			return alarm.EventNormal, 5, 1, true, true
		},
		COVSample: func(instance uint32) (float32, []cov.PropertyChange, bool) {
			return 1.0, []cov.PropertyChange{{PropertyID: uint32(PropPresentValue), Value: codec.Real32(42), Kind: cov.ChangeReal}}, true
		},
	}
}

func newTableWithOneFake() (*Table, ObjectType) {
	table := NewTable()
	const ot ObjectType = 100
	table.Register(ot, (&fakeObject{names: map[uint32]string{1: "fake-1"}}).functions())
	return table, ot
}

func TestReadPropertySpecialPropertiesAreAnsweredGenerically(t *testing.T) {
	table, ot := newTableWithOneFake()

	vals, err := table.ReadProperty(ot, 1, PropObjectIdentifier, ArrayAll)
	require.NoError(t, err)
	require.Equal(t, codec.ObjectIdentifier{Type: uint16(ot), Instance: 1}, vals[0].ObjectID)

	vals, err = table.ReadProperty(ot, 1, PropObjectName, ArrayAll)
	require.NoError(t, err)
	name, ok := vals[0].Str.AsASCII()
	require.True(t, ok)
	require.Equal(t, "fake-1", name)

	vals, err = table.ReadProperty(ot, 1, PropPropertyList, ArrayAll)
	require.NoError(t, err)
	require.Len(t, vals, 4, "3 always-present specials plus the one type-specific property")
}

func TestReadPropertyRejectsAnArrayIndexOnAScalarSpecialProperty(t *testing.T) {
	table, ot := newTableWithOneFake()
	_, err := table.ReadProperty(ot, 1, PropObjectName, 0)
	require.True(t, bacerr.Of(err, bacerr.PropertyIsNotAnArray))
}

func TestReadPropertyReportsUnknownObject(t *testing.T) {
	table, ot := newTableWithOneFake()
	_, err := table.ReadProperty(ot, 99, PropPresentValue, ArrayAll)
	require.True(t, bacerr.Of(err, bacerr.UnknownObject))
}

func TestWritePropertyRejectsSpecialPropertiesAndReservedPriority(t *testing.T) {
	table, ot := newTableWithOneFake()

	err := table.WriteProperty(ot, 1, PropObjectName, nil, ArrayAll, 0, false)
	require.True(t, bacerr.Of(err, bacerr.WriteAccessDenied))

	err = table.WriteProperty(ot, 1, PropPresentValue, []codec.Value{codec.Real32(1)}, ArrayAll, ReservedWritePriority, true)
	require.True(t, bacerr.Of(err, bacerr.WriteAccessDenied), "priority 6 is reserved and must always be rejected")

	err = table.WriteProperty(ot, 1, PropPresentValue, []codec.Value{codec.Real32(1)}, ArrayAll, 8, true)
	require.NoError(t, err)
}

func TestReadPropertyMultipleExpandsAllIntoRequiredPlusTypeSpecific(t *testing.T) {
	table, ot := newTableWithOneFake()
	results, err := table.ReadPropertyMultiple(ReadPropertyMultipleSelector{
		ObjectType: ot, Instance: 1, Properties: []PropertyID{PropAll},
	})
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, r := range results {
		require.Nil(t, r.Err)
	}
}

func TestReadPropertyMultipleCollectsPerPropertyErrorsInsteadOfFailingTheWholeRequest(t *testing.T) {
	table, ot := newTableWithOneFake()
	results, err := table.ReadPropertyMultiple(ReadPropertyMultipleSelector{
		ObjectType: ot, Instance: 1, Properties: []PropertyID{PropPresentValue, PropUnits},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Nil(t, results[0].Err)
	require.NotNil(t, results[1].Err)
	require.Equal(t, bacerr.UnknownProperty, results[1].Err.Kind)
}

func TestIntrinsicCandidatesAndCOVSamplesEnumerateRegisteredInstances(t *testing.T) {
	table, ot := newTableWithOneFake()

	candidates := table.IntrinsicCandidates()
	require.Len(t, candidates, 1)
	require.Equal(t, ot, candidates[0].ObjectType)
	require.Equal(t, uint32(1), candidates[0].Instance)

	samples := table.AllCOVSamples()
	require.Len(t, samples, 1)
	require.Equal(t, float32(1.0), samples[0].COVIncrement)

	sample, ok := table.COVSample(ot, 1)
	require.True(t, ok)
	require.Len(t, sample.Changes, 1)

	_, ok = table.COVSample(ot, 99)
	require.False(t, ok)
}
