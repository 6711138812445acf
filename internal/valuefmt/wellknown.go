package valuefmt

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type names with a compact rendering.
const (
	TypeVector          = "Vector"
	TypeVector2D        = "Vector2D"
	TypeVector4         = "Vector4"
	TypeRotator         = "Rotator"
	TypeQuat            = "Quat"
	TypeTransform       = "Transform"
	TypeLinearColor     = "LinearColor"
	TypeColor           = "Color"
	TypeIntPoint        = "IntPoint"
	TypeIntVector       = "IntVector"
	TypeIntVector2      = "IntVector2"
	TypeIntVector4      = "IntVector4"
	TypeUintVector2     = "UintVector2"
	TypeUintVector3     = "UintVector3"
	TypeUintVector4     = "UintVector4"
	TypeIntRect         = "IntRect"
	TypeBoxSphereBounds = "BoxSphereBounds"
	TypeFloatRange      = "FloatRange"
	TypeIntRange        = "IntRange"
	TypeGameplayTag     = "GameplayTag"
	TypeTagContainer    = "GameplayTagContainer"
	TypeDateTime        = "DateTime"
	TypeTimespan        = "Timespan"
	TypeGUID            = "Guid"
)

type inlineFormatter func(v Value) (string, bool)

var wellKnown map[string]inlineFormatter

func init() {
	wellKnown = map[string]inlineFormatter{
		TypeVector:          floats("X: %.2f, Y: %.2f, Z: %.2f", "X", "Y", "Z"),
		TypeVector2D:        floats("X: %.2f, Y: %.2f", "X", "Y"),
		TypeVector4:         floats("X: %.2f, Y: %.2f, Z: %.2f, W: %.2f", "X", "Y", "Z", "W"),
		TypeRotator:         floats("P: %.6f, Y: %.6f, R: %.6f", "Pitch", "Yaw", "Roll"),
		TypeQuat:            floats("X: %.6f, Y: %.6f, Z: %.6f, W: %.6f", "X", "Y", "Z", "W"),
		TypeLinearColor:     floats("R: %.2f, G: %.2f, B: %.2f, A: %.2f", "R", "G", "B", "A"),
		TypeColor:           ints("R: %d, G: %d, B: %d, A: %d", "R", "G", "B", "A"),
		TypeIntPoint:        ints("X: %d, Y: %d", "X", "Y"),
		TypeIntVector:       ints("X: %d, Y: %d, Z: %d", "X", "Y", "Z"),
		TypeIntVector2:      ints("X: %d, Y: %d", "X", "Y"),
		TypeIntVector4:      ints("X: %d, Y: %d, Z: %d, W: %d", "X", "Y", "Z", "W"),
		TypeUintVector2:     ints("X: %d, Y: %d", "X", "Y"),
		TypeUintVector3:     ints("X: %d, Y: %d, Z: %d", "X", "Y", "Z"),
		TypeUintVector4:     ints("X: %d, Y: %d, Z: %d, W: %d", "X", "Y", "Z", "W"),
		TypeFloatRange:      floats("[%.3f – %.3f]", "Lower", "Upper"),
		TypeIntRange:        ints("[%d – %d]", "Lower", "Upper"),
		TypeTransform:       formatTransform,
		TypeIntRect:         formatIntRect,
		TypeBoxSphereBounds: formatBounds,
		TypeGameplayTag:     formatTag,
		TypeTagContainer:    formatTagContainer,
		TypeDateTime:        formatDateTime,
		TypeTimespan:        formatTimespan,
		TypeGUID:            formatGUID,
	}
}

func floats(layout string, names ...string) inlineFormatter {
	return func(v Value) (string, bool) {
		args, ok := collect(v, names, func(v Value, n string) (any, bool) { return v.number(n) })
		if !ok {
			return "", false
		}
		return fmt.Sprintf(layout, args...), true
	}
}

func ints(layout string, names ...string) inlineFormatter {
	return func(v Value) (string, bool) {
		args, ok := collect(v, names, func(v Value, n string) (any, bool) { return v.integer(n) })
		if !ok {
			return "", false
		}
		return fmt.Sprintf(layout, args...), true
	}
}

func collect(v Value, names []string, get func(Value, string) (any, bool)) ([]any, bool) {
	args := make([]any, 0, len(names))
	for _, n := range names {
		x, ok := get(v, n)
		if !ok {
			return nil, false
		}
		args = append(args, x)
	}
	return args, true
}

// nested collects numeric fields of a struct-valued field.
func nested(v Value, field string, names ...string) ([]any, bool) {
	sub, ok := v.field(field)
	if !ok {
		return nil, false
	}
	if sub.Kind == Pointer && sub.Elem != nil {
		sub = *sub.Elem
	}
	return collect(sub, names, func(v Value, n string) (any, bool) { return v.number(n) })
}

func formatTransform(v Value) (string, bool) {
	loc, ok1 := nested(v, "Location", "X", "Y", "Z")
	rot, ok2 := nested(v, "Rotation", "Pitch", "Yaw", "Roll")
	scale, ok3 := nested(v, "Scale", "X", "Y", "Z")
	if !ok1 || !ok2 || !ok3 {
		return "", false
	}
	args := append(append(loc, rot...), scale...)
	return fmt.Sprintf("[Location] X: %.3f, Y: %.3f, Z: %.3f -- [Rotation] P: %.6f, Y: %.6f, R: %.6f -- [Scale] X: %.3f, Y: %.3f, Z: %.3f", args...), true
}

func formatIntRect(v Value) (string, bool) {
	lo, ok1 := nested(v, "Min", "X", "Y")
	hi, ok2 := nested(v, "Max", "X", "Y")
	if !ok1 || !ok2 {
		return "", false
	}
	return fmt.Sprintf("Min:(%d,%d)  Max:(%d,%d)",
		int64(lo[0].(float64)), int64(lo[1].(float64)), int64(hi[0].(float64)), int64(hi[1].(float64))), true
}

func formatBounds(v Value) (string, bool) {
	origin, ok1 := nested(v, "Origin", "X", "Y", "Z")
	extent, ok2 := nested(v, "BoxExtent", "X", "Y", "Z")
	radius, ok3 := v.number("SphereRadius")
	if !ok1 || !ok2 || !ok3 {
		return "", false
	}
	args := append(append(origin, extent...), radius)
	return fmt.Sprintf("Origin:[%.2f %.2f %.2f]  Extent:[%.2f %.2f %.2f]  Radius:%.2f", args...), true
}

func formatTag(v Value) (string, bool) {
	name, ok := v.field("Name")
	if !ok || name.Kind != String {
		return "", false
	}
	if name.Str == "" {
		return "Invalid GameplayTag", true
	}
	return name.Str, true
}

func formatTagContainer(v Value) (string, bool) {
	tags, ok := v.field("Tags")
	if !ok {
		return "", false
	}
	names := make([]string, 0, len(tags.Fields))
	for _, t := range tags.Fields {
		if s, ok := formatTag(t); ok && s != "Invalid GameplayTag" {
			names = append(names, s)
		}
	}
	if len(names) == 0 {
		return "Empty TagContainer", true
	}
	return strings.Join(names, ", "), true
}

func formatDateTime(v Value) (string, bool) {
	t, ok := v.Native.(time.Time)
	if !ok {
		return "", false
	}
	if t.IsZero() {
		return "0001.01.01-00.00.00", true
	}
	return t.Format("02-01-06 15:04:05.000"), true
}

func formatTimespan(v Value) (string, bool) {
	d, ok := v.Native.(time.Duration)
	if !ok {
		return "", false
	}
	if d == 0 {
		return "+00:00:00.000", true
	}
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%s%d - %02d:%02d:%02d.%03d", sign, days, h, m, s, ms), true
}

func formatGUID(v Value) (string, bool) {
	id, ok := v.Native.(uuid.UUID)
	if !ok {
		return "", false
	}
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")), true
}
