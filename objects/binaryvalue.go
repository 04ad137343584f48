package objects

import (
	"fmt"
	"sort"

	"github.com/bacgopher/bacstack/alarm"
	"github.com/bacgopher/bacstack/bacerr"
	"github.com/bacgopher/bacstack/codec"
	"github.com/bacgopher/bacstack/cov"
)

// binaryValueInstance mirrors analogValueInstance's shape for a discrete
// (active/inactive) point: a boolean present-value and the simpler
// two-state alarming rule where discrete objects alarm on equality
// against Alarm_Value, not a high/low band.
type binaryValueInstance struct {
	name          string
	presentValue  bool
	outOfService  bool
	polarity      bool
	priorityArray [16]*bool
	statusFlags   codec.StatusFlags
	alarmValue    bool
	timeDelay     uint32
	notifyClass   uint32
	eventEnable   codec.BitString
}

// BinaryValues is the in-memory Binary Value object set.
type BinaryValues struct {
	instances map[uint32]*binaryValueInstance
	order     []uint32
}

func NewBinaryValues() *BinaryValues {
	return &BinaryValues{instances: make(map[uint32]*binaryValueInstance)}
}

func (bv *BinaryValues) Add(id uint32, name string, initial bool) {
	bv.instances[id] = &binaryValueInstance{
		name:         name,
		presentValue: initial,
		alarmValue:   true,
		eventEnable:  codec.NewBitString(true, true, true),
	}
	bv.order = append(bv.order, id)
	sort.Slice(bv.order, func(i, j int) bool { return bv.order[i] < bv.order[j] })
}

func (inst *binaryValueInstance) effectivePresentValue() bool {
	for _, v := range inst.priorityArray {
		if v != nil {
			return *v
		}
	}
	return inst.presentValue
}

func (bv *BinaryValues) Functions() *Functions {
	return &Functions{
		Count: func() int { return len(bv.order) },
		IndexToInstance: func(index int) (uint32, bool) {
			if index < 0 || index >= len(bv.order) {
				return 0, false
			}
			return bv.order[index], true
		},
		ValidInstance: func(instance uint32) bool {
			_, ok := bv.instances[instance]
			return ok
		},
		ObjectName: func(instance uint32) (string, bool) {
			inst, ok := bv.instances[instance]
			if !ok {
				return "", false
			}
			return inst.name, true
		},
		ReadProperty:  bv.readProperty,
		WriteProperty: bv.writeProperty,
		PropertyList: func(instance uint32) []PropertyID {
			return []PropertyID{
				PropPresentValue, PropStatusFlags, PropOutOfService, PropPriorityArray,
				PropEventEnable, PropEventState, PropNotificationClass, PropTimeDelay,
				PropReliability,
			}
		},
		AlarmCandidate: bv.alarmCandidate,
		COVSample:      bv.covSample,
	}
}

// alarmCandidate fires OFFNORMAL when the effective present value equals
// the configured alarm value, out-of-service forces FAULT.
func (bv *BinaryValues) alarmCandidate(instance uint32) (alarm.EventState, int, uint32, bool, bool) {
	inst, ok := bv.instances[instance]
	if !ok {
		return alarm.EventNormal, 0, 0, false, false
	}
	candidate := alarm.EventNormal
	switch {
	case inst.outOfService:
		candidate = alarm.EventFault
	case inst.effectivePresentValue() == inst.alarmValue:
		candidate = alarm.EventOffnormal
	}
	return candidate, int(inst.timeDelay), inst.notifyClass, true, true
}

// covSample reports present-value (compared on any inequality) and
// status-flags for the periodic COV tick.
func (bv *BinaryValues) covSample(instance uint32) (float32, []cov.PropertyChange, bool) {
	inst, ok := bv.instances[instance]
	if !ok {
		return 0, nil, false
	}
	changes := []cov.PropertyChange{
		{PropertyID: uint32(PropPresentValue), Value: codec.Enumerated(boolToEnum(inst.effectivePresentValue())), Kind: cov.ChangeDiscrete},
		{PropertyID: uint32(PropStatusFlags), Value: codec.Bits_(inst.statusFlags.BitString()), Kind: cov.ChangeDiscrete},
	}
	return 0, changes, true
}

func (bv *BinaryValues) readProperty(instance uint32, prop PropertyID, arrayIndex uint32) ([]codec.Value, error) {
	inst, ok := bv.instances[instance]
	if !ok {
		return nil, bacerr.New(bacerr.UnknownObject, "binary-value: no such instance")
	}
	if prop != PropPriorityArray && arrayIndex != ArrayAll {
		return nil, bacerr.New(bacerr.PropertyIsNotAnArray, "binary-value: property is not an array")
	}
	switch prop {
	case PropPresentValue:
		return []codec.Value{codec.Enumerated(boolToEnum(inst.effectivePresentValue()))}, nil
	case PropStatusFlags:
		return []codec.Value{codec.Bits_(inst.statusFlags.BitString())}, nil
	case PropOutOfService:
		return []codec.Value{codec.Bool(inst.outOfService)}, nil
	case PropEventEnable:
		return []codec.Value{codec.Bits_(inst.eventEnable)}, nil
	case PropNotificationClass:
		return []codec.Value{codec.Unsigned64(uint64(inst.notifyClass))}, nil
	case PropTimeDelay:
		return []codec.Value{codec.Unsigned64(uint64(inst.timeDelay))}, nil
	case PropReliability:
		return []codec.Value{codec.Enumerated(0)}, nil
	case PropPriorityArray:
		if arrayIndex != ArrayAll {
			idx := int(arrayIndex)
			if idx < 1 || idx > 16 {
				return nil, bacerr.New(bacerr.InvalidArrayIndex, "binary-value: priority-array index out of range")
			}
			if inst.priorityArray[idx-1] == nil {
				return []codec.Value{codec.Null()}, nil
			}
			return []codec.Value{codec.Enumerated(boolToEnum(*inst.priorityArray[idx-1]))}, nil
		}
		out := make([]codec.Value, 16)
		for i, v := range inst.priorityArray {
			if v == nil {
				out[i] = codec.Null()
			} else {
				out[i] = codec.Enumerated(boolToEnum(*v))
			}
		}
		return out, nil
	default:
		return nil, bacerr.New(bacerr.UnknownProperty, fmt.Sprintf("binary-value: unsupported property %d", prop))
	}
}

func (bv *BinaryValues) writeProperty(instance uint32, prop PropertyID, values []codec.Value, arrayIndex uint32, priority uint8, hasPriority bool) error {
	inst, ok := bv.instances[instance]
	if !ok {
		return bacerr.New(bacerr.UnknownObject, "binary-value: no such instance")
	}
	if len(values) != 1 {
		return bacerr.New(bacerr.InvalidDataType, "binary-value: expected exactly one value")
	}
	if arrayIndex != ArrayAll {
		return bacerr.New(bacerr.PropertyIsNotAnArray, "binary-value: property is not an array")
	}
	v := values[0]
	switch prop {
	case PropPresentValue:
		idx := 16
		if hasPriority {
			if priority < 1 || priority > 16 {
				return bacerr.New(bacerr.ValueOutOfRange, "binary-value: priority out of range")
			}
			idx = int(priority)
		}
		if v.Tag == uint32(codec.TagNull) {
			inst.priorityArray[idx-1] = nil
			return nil
		}
		if v.Tag != uint32(codec.TagEnumerated) {
			return bacerr.New(bacerr.InvalidDataType, "binary-value: present-value must be ENUMERATED")
		}
		val := v.Enum != 0
		inst.priorityArray[idx-1] = &val
		return nil
	case PropOutOfService:
		if v.Tag != uint32(codec.TagBoolean) {
			return bacerr.New(bacerr.InvalidDataType, "binary-value: out-of-service must be BOOLEAN")
		}
		inst.outOfService = v.Boolean
		return nil
	default:
		return bacerr.New(bacerr.WriteAccessDenied, "binary-value: property not writable")
	}
}

func boolToEnum(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// EffectivePresentValue and StatusFlags mirror AnalogValues' accessors for
// the cov/alarm engines.
func (bv *BinaryValues) EffectivePresentValue(instance uint32) (bool, bool) {
	inst, ok := bv.instances[instance]
	if !ok {
		return false, false
	}
	return inst.effectivePresentValue(), true
}

func (bv *BinaryValues) StatusFlags(instance uint32) *codec.StatusFlags {
	inst, ok := bv.instances[instance]
	if !ok {
		return nil
	}
	return &inst.statusFlags
}

// AlarmValue exposes the configured alarm-triggering value for the
// intrinsic reporting engine's equality check.
func (bv *BinaryValues) AlarmValue(instance uint32) (bool, bool) {
	inst, ok := bv.instances[instance]
	if !ok {
		return false, false
	}
	return inst.alarmValue, true
}
