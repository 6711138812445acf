// Package valuefmt renders arbitrary runtime values as display text.
//
// Values are described by the Value variant, built by hand or derived from Go
// values with Reflect, and rendered by Format.
package valuefmt

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies a Value.
type Kind uint8

const (
	Invalid Kind = iota
	Bool
	Int
	Uint
	Float
	String
	Enum
	Struct
	Sequence
	Set
	Map
	Object
	Pointer
)

var kindNames = [...]string{
	Invalid:  "Property",
	Bool:     "Bool",
	Int:      "Int",
	Uint:     "Uint",
	Float:    "Float",
	String:   "String",
	Enum:     "Enum",
	Struct:   "Struct",
	Sequence: "Array",
	Set:      "Set",
	Map:      "Map",
	Object:   "Object",
	Pointer:  "Pointer",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Property"
}

// ObjectFlavor selects the sentinel printed for an absent object reference.
type ObjectFlavor uint8

const (
	HardRef ObjectFlavor = iota
	SoftRef
	InterfaceRef
)

// Named is implemented by host objects that have a display name.
type Named interface {
	DisplayName() string
}

// Value is a self-describing runtime value.
type Value struct {
	Kind Kind

	// Name is the field or container name; TypeName the struct or enum type.
	Name     string
	TypeName string

	Bool  bool
	Int   int64
	Uint  uint64
	Float float64
	Str   string

	// Bits is the precision of Float: 32 or 64. Zero means 64.
	Bits int

	// Member is the display name of an enum value. Empty means no metadata.
	Member string

	// Fields holds struct fields or container elements.
	Fields  []Value
	Entries []Entry

	Ref    Named
	Flavor ObjectFlavor

	// Elem is the pointee of a Pointer. Nil means a null pointer.
	Elem *Value

	// Native carries the Go value of time, duration and GUID aggregates.
	Native any
}

// Entry is one key/value pair of a Map.
type Entry struct {
	Key Value
	Val Value
}

func BoolValue(name string, b bool) Value      { return Value{Kind: Bool, Name: name, Bool: b} }
func IntValue(name string, i int64) Value      { return Value{Kind: Int, Name: name, Int: i} }
func UintValue(name string, u uint64) Value    { return Value{Kind: Uint, Name: name, Uint: u} }
func FloatValue(name string, f float64) Value  { return Value{Kind: Float, Name: name, Float: f} }
func StringValue(name, s string) Value         { return Value{Kind: String, Name: name, Str: s} }
func NilPointer(name string) Value             { return Value{Kind: Pointer, Name: name} }
func ObjectValue(name string, obj Named) Value { return Value{Kind: Object, Name: name, Ref: obj} }

// Float32Value keeps float32 precision when formatted.
func Float32Value(name string, f float32) Value {
	return Value{Kind: Float, Name: name, Float: float64(f), Bits: 32}
}

// EnumValue builds an enum with metadata.
func EnumValue(name, enumType, member string, raw int64) Value {
	return Value{Kind: Enum, Name: name, TypeName: enumType, Member: member, Int: raw}
}

// RawEnum builds an enum whose metadata is unavailable.
func RawEnum(name string, raw int64) Value {
	return Value{Kind: Enum, Name: name, Int: raw}
}

func StructValue(name, typeName string, fields ...Value) Value {
	return Value{Kind: Struct, Name: name, TypeName: typeName, Fields: fields}
}

func SequenceValue(name string, elems ...Value) Value {
	return Value{Kind: Sequence, Name: name, Fields: elems}
}

func SetValue(name string, elems ...Value) Value {
	return Value{Kind: Set, Name: name, Fields: elems}
}

func MapValue(name string, entries ...Entry) Value {
	return Value{Kind: Map, Name: name, Entries: entries}
}

func PointerTo(name string, v Value) Value {
	return Value{Kind: Pointer, Name: name, Elem: &v}
}

func DateTimeValue(name string, t time.Time) Value {
	return Value{Kind: Struct, Name: name, TypeName: TypeDateTime, Native: t}
}

func TimespanValue(name string, d time.Duration) Value {
	return Value{Kind: Struct, Name: name, TypeName: TypeTimespan, Native: d}
}

func GUIDValue(name string, id uuid.UUID) Value {
	return Value{Kind: Struct, Name: name, TypeName: TypeGUID, Native: id}
}

// field returns the struct field called name.
func (v Value) field(name string) (Value, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Value{}, false
}

// number reads a numeric field as float64.
func (v Value) number(name string) (float64, bool) {
	f, ok := v.field(name)
	if !ok {
		return 0, false
	}
	switch f.Kind {
	case Float:
		return f.Float, true
	case Int, Enum:
		return float64(f.Int), true
	case Uint:
		return float64(f.Uint), true
	}
	return 0, false
}

// integer reads an integral field as int64.
func (v Value) integer(name string) (int64, bool) {
	f, ok := v.field(name)
	if !ok {
		return 0, false
	}
	switch f.Kind {
	case Int, Enum:
		return f.Int, true
	case Uint:
		return int64(f.Uint), true
	case Float:
		return int64(f.Float), true
	}
	return 0, false
}
