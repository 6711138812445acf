package valuefmt

import (
	"strconv"
	"strings"
)

// Format renders v. It never fails: compositions it cannot render produce an
// "Invalid <Kind>" placeholder. Format is safe for concurrent use.
func Format(v Value) string {
	var b strings.Builder
	write(&b, v)
	return b.String()
}

func write(b *strings.Builder, v Value) {
	switch v.Kind {
	case Bool:
		if v.Bool {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case Int:
		b.WriteString(strconv.FormatInt(v.Int, 10))
	case Uint:
		b.WriteString(strconv.FormatUint(v.Uint, 10))
	case Float:
		b.WriteString(formatFloat(v.Float, v.Bits))
	case String:
		b.WriteString(v.Str)
	case Enum:
		writeEnum(b, v)
	case Struct:
		writeStruct(b, v)
	case Sequence, Set:
		writeElems(b, v)
	case Map:
		writeMap(b, v)
	case Object:
		writeObject(b, v)
	case Pointer:
		if v.Elem == nil {
			b.WriteString("Null Pointer")
			return
		}
		write(b, *v.Elem)
	default:
		writeInvalid(b, v)
	}
}

func writeEnum(b *strings.Builder, v Value) {
	if v.TypeName == "" || v.Member == "" {
		b.WriteString(strconv.FormatInt(v.Int, 10))
		return
	}
	b.WriteString(v.TypeName)
	b.WriteString("::")
	b.WriteString(v.Member)
}

func writeStruct(b *strings.Builder, v Value) {
	if f, ok := wellKnown[v.TypeName]; ok {
		s, ok := f(v)
		if !ok {
			b.WriteString("Invalid Struct")
			return
		}
		b.WriteString(s)
		return
	}

	if len(v.Fields) == 0 {
		b.WriteString("Unable to convert ")
		b.WriteString(v.TypeName)
		b.WriteString(", Try to Break the struct & Print each property")
		return
	}

	for _, f := range v.Fields {
		b.WriteString("\n")
		b.WriteString(f.Name)
		b.WriteString(":- ")
		write(b, f)
	}
}

func writeElems(b *strings.Builder, v Value) {
	if len(v.Fields) == 0 {
		b.WriteString("No Valid Elements In ")
		b.WriteString(v.Name)
		return
	}
	for i, e := range v.Fields {
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(i))
		b.WriteString(" -> ")
		write(b, e)
	}
}

func writeMap(b *strings.Builder, v Value) {
	if len(v.Entries) == 0 {
		b.WriteString("No Valid Elements In ")
		b.WriteString(v.Name)
		return
	}
	for i, e := range v.Entries {
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(i))
		b.WriteString(" -> [K: ")
		write(b, e.Key)
		b.WriteString(", V: ")
		write(b, e.Val)
		b.WriteString("]")
	}
}

func writeObject(b *strings.Builder, v Value) {
	if v.Ref != nil {
		if name := safeDisplayName(v.Ref); name != "" {
			b.WriteString(name)
			return
		}
	}
	switch v.Flavor {
	case SoftRef:
		b.WriteString("null_soft_object")
	case InterfaceRef:
		b.WriteString("null_interface")
	default:
		b.WriteString("null_object")
	}
}

// safeDisplayName treats a panicking resolver as an absent object.
func safeDisplayName(n Named) (name string) {
	defer func() {
		if recover() != nil {
			name = ""
		}
	}()
	return n.DisplayName()
}

func writeInvalid(b *strings.Builder, v Value) {
	if v.TypeName == "" {
		b.WriteString("[Invalid Property]")
		return
	}
	b.WriteString("Invalid ")
	b.WriteString(v.TypeName)
}

// formatFloat uses fixed notation and always keeps a fractional part.
// bits selects the shortest representation that round-trips at that precision.
func formatFloat(f float64, bits int) string {
	if bits != 32 {
		bits = 64
	}
	s := strconv.FormatFloat(f, 'f', -1, bits)
	if strings.ContainsAny(s, ".NI") {
		return s
	}
	return s + ".0"
}
