// Package objects implements the Object/Property Dispatch Table: a
// registry of object types, each exposing count/index-to-
// instance/valid-instance/name/read-property/write-property/property-list
// operations, plus the special properties (OBJECT_IDENTIFIER,
// OBJECT_NAME, OBJECT_TYPE, PROPERTY_LIST) every object type answers
// identically. The property-id table and the count/index/valid/read/write
// per-object function-set split follow common BACnet stack convention
// (see DESIGN.md).
package objects

// PropertyID enumerates ASHRAE 135 clause 21 property identifiers used by
// the two conformance fixture object types this package ships.
type PropertyID uint32

const (
	PropAckedTransitions   PropertyID = 0
	PropAckRequired        PropertyID = 1
	PropDescription        PropertyID = 28
	PropDeviceType         PropertyID = 31
	PropEventEnable        PropertyID = 35
	PropEventState         PropertyID = 36
	PropNotificationClass  PropertyID = 17
	PropCOVIncrement       PropertyID = 22
	PropHighLimit          PropertyID = 45
	PropLowLimit           PropertyID = 59
	PropLimitEnable        PropertyID = 52
	PropObjectIdentifier   PropertyID = 75
	PropObjectList         PropertyID = 76
	PropObjectName         PropertyID = 77
	PropObjectType         PropertyID = 79
	PropOutOfService       PropertyID = 81
	PropPresentValue       PropertyID = 85
	PropPriorityArray      PropertyID = 87
	PropPropertyList       PropertyID = 371
	PropReliability        PropertyID = 103
	PropStatusFlags        PropertyID = 111
	PropTimeDelay          PropertyID = 113
	PropUnits              PropertyID = 117
	PropAll                PropertyID = 8
	PropRequired           PropertyID = 105
	PropOptional           PropertyID = 80
)

// ObjectType enumerates ASHRAE 135 clause 21 object types; only a subset
// is named here, and of those this package implements just the two
// fixtures (Analog Value, Binary Value).
type ObjectType uint16

const (
	TypeAnalogInput  ObjectType = 0
	TypeAnalogOutput ObjectType = 1
	TypeAnalogValue  ObjectType = 2
	TypeBinaryInput  ObjectType = 3
	TypeBinaryOutput ObjectType = 4
	TypeBinaryValue  ObjectType = 5
	TypeDevice       ObjectType = 8
	TypeNotificationClass ObjectType = 15
)
