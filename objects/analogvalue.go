package objects

import (
	"fmt"
	"sort"

	"github.com/bacgopher/bacstack/alarm"
	"github.com/bacgopher/bacstack/bacerr"
	"github.com/bacgopher/bacstack/codec"
	"github.com/bacgopher/bacstack/cov"
)

// analogValueInstance is the conformance fixture's per-object state:
// Present_Value, Out_Of_Service, Units, COV_Increment, the priority
// array, and the four intrinsic-reporting limit properties.
type analogValueInstance struct {
	name          string
	presentValue  float32
	outOfService  bool
	units         uint32
	covIncrement  float32
	priorityArray [16]*float32
	statusFlags   codec.StatusFlags
	highLimit     float32
	lowLimit      float32
	deadband      float32
	limitEnable   codec.BitString
	eventEnable   codec.BitString
	notifyClass   uint32
	timeDelay     uint32
}

// AnalogValues is the in-memory Analog Value object set backing the
// fixture Table registration.
type AnalogValues struct {
	instances map[uint32]*analogValueInstance
	order     []uint32
}

// NewAnalogValues creates an empty Analog Value object set.
func NewAnalogValues() *AnalogValues {
	return &AnalogValues{instances: make(map[uint32]*analogValueInstance)}
}

// Add creates instance number id with the given name and initial present
// value; Functions returns the set to register under TypeAnalogValue.
func (a *AnalogValues) Add(id uint32, name string, initial float32) {
	a.instances[id] = &analogValueInstance{
		name:         name,
		presentValue: initial,
		units:        95, // no-units, ASHRAE 135 table 21-1
		covIncrement: 1.0,
		highLimit:    100,
		lowLimit:     0,
		deadband:     1,
		limitEnable:  codec.NewBitString(false, false),
		eventEnable:  codec.NewBitString(true, true, true),
	}
	a.order = append(a.order, id)
	sort.Slice(a.order, func(i, j int) bool { return a.order[i] < a.order[j] })
}

// effectivePresentValue returns the effective present value: the highest-priority
// non-nil priority-array slot, or the relinquish-default (presentValue)
// if the array is empty, matching ASHRAE 135's commandable-property
// resolution.
func (inst *analogValueInstance) effectivePresentValue() float32 {
	for _, v := range inst.priorityArray {
		if v != nil {
			return *v
		}
	}
	return inst.presentValue
}

// Functions returns the Functions struct wiring this object set's
// methods into a Table.
func (a *AnalogValues) Functions() *Functions {
	return &Functions{
		Count:           func() int { return len(a.order) },
		IndexToInstance: func(index int) (uint32, bool) {
			if index < 0 || index >= len(a.order) {
				return 0, false
			}
			return a.order[index], true
		},
		ValidInstance: func(instance uint32) bool {
			_, ok := a.instances[instance]
			return ok
		},
		ObjectName: func(instance uint32) (string, bool) {
			inst, ok := a.instances[instance]
			if !ok {
				return "", false
			}
			return inst.name, true
		},
		ReadProperty:  a.readProperty,
		WriteProperty: a.writeProperty,
		PropertyList: func(instance uint32) []PropertyID {
			return []PropertyID{
				PropPresentValue, PropStatusFlags, PropOutOfService, PropUnits,
				PropCOVIncrement, PropPriorityArray, PropHighLimit, PropLowLimit,
				PropDeadband, PropLimitEnable, PropEventEnable, PropEventState,
				PropNotificationClass, PropTimeDelay, PropReliability,
			}
		},
		AlarmCandidate: a.alarmCandidate,
		COVSample:      a.covSample,
	}
}

// alarmCandidate applies the OutOfRange algorithm: out-of-service forces
// FAULT, otherwise the effective present value is compared against
// whichever of high-limit/low-limit their enable bit turns on.
func (a *AnalogValues) alarmCandidate(instance uint32) (alarm.EventState, int, uint32, bool, bool) {
	inst, ok := a.instances[instance]
	if !ok {
		return alarm.EventNormal, 0, 0, false, false
	}
	candidate := alarm.EventNormal
	value := inst.effectivePresentValue()
	switch {
	case inst.outOfService:
		candidate = alarm.EventFault
	case inst.limitEnable.Bit(1) && value >= inst.highLimit:
		candidate = alarm.EventHighLimit
	case inst.limitEnable.Bit(0) && value <= inst.lowLimit:
		candidate = alarm.EventLowLimit
	}
	return candidate, int(inst.timeDelay), inst.notifyClass, true, true
}

// covSample reports present-value (REAL, compared against COV_Increment)
// and status-flags (compared on any inequality) for the periodic COV tick.
func (a *AnalogValues) covSample(instance uint32) (float32, []cov.PropertyChange, bool) {
	inst, ok := a.instances[instance]
	if !ok {
		return 0, nil, false
	}
	changes := []cov.PropertyChange{
		{PropertyID: uint32(PropPresentValue), Value: codec.Real32(inst.effectivePresentValue()), Kind: cov.ChangeReal},
		{PropertyID: uint32(PropStatusFlags), Value: codec.Bits_(inst.statusFlags.BitString()), Kind: cov.ChangeDiscrete},
	}
	return inst.covIncrement, changes, true
}

func (a *AnalogValues) readProperty(instance uint32, prop PropertyID, arrayIndex uint32) ([]codec.Value, error) {
	inst, ok := a.instances[instance]
	if !ok {
		return nil, bacerr.New(bacerr.UnknownObject, "analog-value: no such instance")
	}
	if prop != PropPriorityArray && arrayIndex != ArrayAll {
		return nil, bacerr.New(bacerr.PropertyIsNotAnArray, "analog-value: property is not an array")
	}
	switch prop {
	case PropPresentValue:
		return []codec.Value{codec.Real32(inst.effectivePresentValue())}, nil
	case PropStatusFlags:
		return []codec.Value{codec.Bits_(inst.statusFlags.BitString())}, nil
	case PropOutOfService:
		return []codec.Value{codec.Bool(inst.outOfService)}, nil
	case PropUnits:
		return []codec.Value{codec.Enumerated(inst.units)}, nil
	case PropCOVIncrement:
		return []codec.Value{codec.Real32(inst.covIncrement)}, nil
	case PropHighLimit:
		return []codec.Value{codec.Real32(inst.highLimit)}, nil
	case PropLowLimit:
		return []codec.Value{codec.Real32(inst.lowLimit)}, nil
	case PropDeadband:
		return []codec.Value{codec.Real32(inst.deadband)}, nil
	case PropLimitEnable:
		return []codec.Value{codec.Bits_(inst.limitEnable)}, nil
	case PropEventEnable:
		return []codec.Value{codec.Bits_(inst.eventEnable)}, nil
	case PropNotificationClass:
		return []codec.Value{codec.Unsigned64(uint64(inst.notifyClass))}, nil
	case PropTimeDelay:
		return []codec.Value{codec.Unsigned64(uint64(inst.timeDelay))}, nil
	case PropReliability:
		return []codec.Value{codec.Enumerated(0)}, nil // no-fault-detected
	case PropPriorityArray:
		if arrayIndex != ArrayAll {
			idx := int(arrayIndex)
			if idx < 1 || idx > 16 {
				return nil, bacerr.New(bacerr.InvalidArrayIndex, "analog-value: priority-array index out of range")
			}
			if inst.priorityArray[idx-1] == nil {
				return []codec.Value{codec.Null()}, nil
			}
			return []codec.Value{codec.Real32(*inst.priorityArray[idx-1])}, nil
		}
		out := make([]codec.Value, 16)
		for i, v := range inst.priorityArray {
			if v == nil {
				out[i] = codec.Null()
			} else {
				out[i] = codec.Real32(*v)
			}
		}
		return out, nil
	default:
		return nil, bacerr.New(bacerr.UnknownProperty, fmt.Sprintf("analog-value: unsupported property %d", prop))
	}
}

func (a *AnalogValues) writeProperty(instance uint32, prop PropertyID, values []codec.Value, arrayIndex uint32, priority uint8, hasPriority bool) error {
	inst, ok := a.instances[instance]
	if !ok {
		return bacerr.New(bacerr.UnknownObject, "analog-value: no such instance")
	}
	if len(values) != 1 {
		return bacerr.New(bacerr.InvalidDataType, "analog-value: expected exactly one value")
	}
	if arrayIndex != ArrayAll {
		return bacerr.New(bacerr.PropertyIsNotAnArray, "analog-value: property is not an array")
	}
	v := values[0]
	switch prop {
	case PropPresentValue:
		idx := 16
		if hasPriority {
			if priority < 1 || priority > 16 {
				return bacerr.New(bacerr.ValueOutOfRange, "analog-value: priority out of range")
			}
			idx = int(priority)
		}
		if v.Tag == uint32(codec.TagNull) {
			inst.priorityArray[idx-1] = nil
			return nil
		}
		if v.Tag != uint32(codec.TagReal) {
			return bacerr.New(bacerr.InvalidDataType, "analog-value: present-value must be REAL")
		}
		val := v.Real
		inst.priorityArray[idx-1] = &val
		return nil
	case PropOutOfService:
		if v.Tag != uint32(codec.TagBoolean) {
			return bacerr.New(bacerr.InvalidDataType, "analog-value: out-of-service must be BOOLEAN")
		}
		inst.outOfService = v.Boolean
		return nil
	case PropCOVIncrement:
		if v.Tag != uint32(codec.TagReal) {
			return bacerr.New(bacerr.InvalidDataType, "analog-value: cov-increment must be REAL")
		}
		inst.covIncrement = v.Real
		return nil
	case PropHighLimit:
		if v.Tag != uint32(codec.TagReal) {
			return bacerr.New(bacerr.InvalidDataType, "analog-value: high-limit must be REAL")
		}
		inst.highLimit = v.Real
		return nil
	case PropLowLimit:
		if v.Tag != uint32(codec.TagReal) {
			return bacerr.New(bacerr.InvalidDataType, "analog-value: low-limit must be REAL")
		}
		inst.lowLimit = v.Real
		return nil
	default:
		return bacerr.New(bacerr.WriteAccessDenied, "analog-value: property not writable")
	}
}

// EffectivePresentValue exposes the resolved present value to the COV
// and intrinsic-reporting engines without going through the full
// ReadProperty codec round trip.
func (a *AnalogValues) EffectivePresentValue(instance uint32) (float32, bool) {
	inst, ok := a.instances[instance]
	if !ok {
		return 0, false
	}
	return inst.effectivePresentValue(), true
}

// StatusFlags exposes the live status flags struct for mutation by the
// intrinsic-reporting engine, which sets In-Alarm/Fault there.
func (a *AnalogValues) StatusFlags(instance uint32) *codec.StatusFlags {
	inst, ok := a.instances[instance]
	if !ok {
		return nil
	}
	return &inst.statusFlags
}

// Limits exposes the alarm-relevant fields read-only, for the intrinsic
// reporting engine's OutOfRange algorithm.
func (a *AnalogValues) Limits(instance uint32) (high, low, deadband float32, ok bool) {
	inst, found := a.instances[instance]
	if !found {
		return 0, 0, 0, false
	}
	return inst.highLimit, inst.lowLimit, inst.deadband, true
}

// COVIncrement exposes the configured COV increment for the COV engine's
// change-detection rule.
func (a *AnalogValues) COVIncrement(instance uint32) (float32, bool) {
	inst, ok := a.instances[instance]
	if !ok {
		return 0, false
	}
	return inst.covIncrement, true
}
