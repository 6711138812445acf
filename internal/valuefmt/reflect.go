package valuefmt

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxDepth bounds how deep Reflect descends. Deeper values render as "Invalid Recursion".
const MaxDepth = 16

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
	uuidType     = reflect.TypeOf(uuid.UUID{})
	namedType    = reflect.TypeOf((*Named)(nil)).Elem()
	stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
)

// Reflect describes x as a Value using Go reflection.
//
// Struct fields may be renamed with an `als:"name"` tag or skipped with `als:"-"`.
// Integer types implementing fmt.Stringer are treated as enums.
func Reflect(x any) Value {
	if v, ok := x.(Value); ok {
		return v
	}
	if x == nil {
		return NilPointer("")
	}
	rv := reflect.ValueOf(x)
	return reflectValue(rv.Type().Name(), rv, 0)
}

// FormatAny is shorthand for Format(Reflect(x)).
func FormatAny(x any) string {
	return Format(Reflect(x))
}

// Properties returns the exported fields of the struct x points to, in declaration order.
// It returns nil when x is not a struct or a non-nil pointer to one.
func Properties(x any) []Value {
	rv := reflect.ValueOf(x)
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() || rv.Kind() != reflect.Struct {
		return nil
	}
	return reflectStruct(rv.Type().Name(), rv, 1).Fields
}

// Sprint concatenates its arguments. Strings are copied verbatim, everything
// else goes through FormatAny.
func Sprint(args ...any) string {
	var b strings.Builder
	for _, a := range args {
		if s, ok := a.(string); ok {
			b.WriteString(s)
			continue
		}
		b.WriteString(FormatAny(a))
	}
	return b.String()
}

func reflectValue(name string, rv reflect.Value, depth int) Value {
	if depth > MaxDepth {
		return Value{Kind: Invalid, Name: name, TypeName: "Recursion"}
	}
	if !rv.IsValid() {
		return NilPointer(name)
	}

	t := rv.Type()

	switch t {
	case timeType:
		return DateTimeValue(name, rv.Interface().(time.Time))
	case durationType:
		return TimespanValue(name, time.Duration(rv.Int()))
	case uuidType:
		return GUIDValue(name, rv.Interface().(uuid.UUID))
	}

	if t.Implements(namedType) && rv.CanInterface() {
		if isNil(rv) {
			return Value{Kind: Object, Name: name}
		}
		return ObjectValue(name, rv.Interface().(Named))
	}

	if t.Implements(errorType) && rv.CanInterface() && !isNil(rv) {
		return StringValue(name, rv.Interface().(error).Error())
	}

	switch t.Kind() {
	case reflect.Bool:
		return BoolValue(name, rv.Bool())

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if member, ok := enumMember(rv); ok {
			return EnumValue(name, t.Name(), member, rv.Int())
		}
		return IntValue(name, rv.Int())

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if member, ok := enumMember(rv); ok {
			return EnumValue(name, t.Name(), member, int64(rv.Uint()))
		}
		return UintValue(name, rv.Uint())

	case reflect.Float32:
		return Float32Value(name, float32(rv.Float()))
	case reflect.Float64:
		return FloatValue(name, rv.Float())

	case reflect.String:
		return StringValue(name, rv.String())

	case reflect.Struct:
		return reflectStruct(name, rv, depth)

	case reflect.Slice, reflect.Array:
		out := Value{Kind: Sequence, Name: name}
		for i := 0; i < rv.Len(); i++ {
			out.Fields = append(out.Fields, reflectValue(name, rv.Index(i), depth+1))
		}
		return out

	case reflect.Map:
		return reflectMap(name, rv, depth)

	case reflect.Pointer:
		if rv.IsNil() {
			return NilPointer(name)
		}
		return PointerTo(name, reflectValue(name, rv.Elem(), depth+1))

	case reflect.Interface:
		if rv.IsNil() {
			return NilPointer(name)
		}
		return reflectValue(name, rv.Elem(), depth+1)
	}

	return Value{Kind: Invalid, Name: name, TypeName: capitalize(t.Kind().String())}
}

func reflectStruct(name string, rv reflect.Value, depth int) Value {
	t := rv.Type()
	out := Value{Kind: Struct, Name: name, TypeName: t.Name()}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		fieldName := sf.Name
		if tag, ok := sf.Tag.Lookup("als"); ok {
			if tag == "-" {
				continue
			}
			if tag != "" {
				fieldName = tag
			}
		}
		out.Fields = append(out.Fields, reflectValue(fieldName, rv.Field(i), depth+1))
	}
	return out
}

func reflectMap(name string, rv reflect.Value, depth int) Value {
	t := rv.Type()
	isSet := t.Elem().Kind() == reflect.Struct && t.Elem().NumField() == 0

	type pair struct {
		key  Value
		val  Value
		text string
	}
	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := reflectValue(name, iter.Key(), depth+1)
		p := pair{key: k, text: Format(k)}
		if !isSet {
			p.val = reflectValue(name, iter.Value(), depth+1)
		}
		pairs = append(pairs, p)
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].text < pairs[j].text })

	if isSet {
		out := Value{Kind: Set, Name: name}
		for _, p := range pairs {
			out.Fields = append(out.Fields, p.key)
		}
		return out
	}
	out := Value{Kind: Map, Name: name}
	for _, p := range pairs {
		out.Entries = append(out.Entries, Entry{Key: p.key, Val: p.val})
	}
	return out
}

// enumMember returns the String() of integer types that implement fmt.Stringer.
func enumMember(rv reflect.Value) (string, bool) {
	if !rv.CanInterface() || rv.Type().Name() == "" || !rv.Type().Implements(stringerType) {
		return "", false
	}
	s, ok := rv.Interface().(fmt.Stringer)
	if !ok {
		return "", false
	}
	return s.String(), true
}

func isNil(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
