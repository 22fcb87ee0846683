package blue

import (
	"fmt"
	"strings"
)

// Kind selects the shape of a FieldSpec node.
type Kind uint8

const (
	KindScalar Kind = iota
	KindBytes
	KindArray
	KindNested
)

// FieldSpec describes the on-disk shape of one field. Specs form a tree:
// arrays point at their element spec and nested fields at a whole Schema.
type FieldSpec struct {
	Kind   Kind
	Type   TypeCode   // KindScalar
	Len    int        // KindBytes
	Elem   *FieldSpec // KindArray
	Count  int        // KindArray
	Schema *Schema    // KindNested
}

func Scalar(t TypeCode) FieldSpec { return FieldSpec{Kind: KindScalar, Type: t} }

func FixedBytes(n int) FieldSpec { return FieldSpec{Kind: KindBytes, Len: n} }

func ArrayOf(elem FieldSpec, n int) FieldSpec {
	return FieldSpec{Kind: KindArray, Elem: &elem, Count: n}
}

func Nested(s *Schema) FieldSpec { return FieldSpec{Kind: KindNested, Schema: s} }

// Size returns the byte width of the field.
func (f FieldSpec) Size() int {
	switch f.Kind {
	case KindScalar:
		return f.Type.Size()
	case KindBytes:
		return f.Len
	case KindArray:
		if f.Elem == nil {
			return 0
		}
		return f.Elem.Size() * f.Count
	case KindNested:
		if f.Schema == nil {
			return 0
		}
		return f.Schema.Size
	default:
		return 0
	}
}

func (f FieldSpec) String() string {
	switch f.Kind {
	case KindScalar:
		return f.Type.String()
	case KindBytes:
		return fmt.Sprintf("bytes[%d]", f.Len)
	case KindArray:
		return fmt.Sprintf("%s[%d]", f.Elem, f.Count)
	case KindNested:
		return f.Schema.Name
	default:
		return "invalid"
	}
}

// Field is a named FieldSpec at a byte offset within its record.
type Field struct {
	Name   string
	Offset int
	Spec   FieldSpec
}

// At is shorthand for a Field literal.
func At(name string, offset int, spec FieldSpec) Field {
	return Field{Name: name, Offset: offset, Spec: spec}
}

// Schema is a fixed-layout binary record.
type Schema struct {
	Name   string
	Fields []Field
	Size   int
}

// NewSchema builds a schema from fields with explicit offsets. A size of 0
// takes the end of the last field; a larger size pads the record.
func NewSchema(name string, size int, fields ...Field) *Schema {
	s := &Schema{Name: name, Fields: fields}
	end := 0
	for _, f := range fields {
		end = max(end, f.Offset+f.Spec.Size())
	}
	s.Size = max(size, end)
	return s
}

// Sequential builds a schema laying fields out back to back; the offsets
// given on fields are ignored.
func Sequential(name string, fields ...Field) *Schema {
	off := 0
	out := make([]Field, len(fields))
	for i, f := range fields {
		f.Offset = off
		off += f.Spec.Size()
		out[i] = f
	}
	return &Schema{Name: name, Fields: out, Size: off}
}

// Lookup returns the field with the given name, case-insensitively.
func (s *Schema) Lookup(name string) (Field, bool) {
	for _, f := range s.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// Truncate returns the schema that fits in n bytes. Fields lying wholly
// inside n are kept; the field straddling n keeps as many whole array
// elements or bytes as fit (a nested field is truncated recursively and a
// scalar is dropped); fields past n are dropped.
func (s *Schema) Truncate(n int) *Schema {
	if n >= s.Size {
		return s
	}
	out := &Schema{Name: s.Name, Size: max(n, 0)}
	for _, f := range s.Fields {
		end := f.Offset + f.Spec.Size()
		if end <= n {
			out.Fields = append(out.Fields, f)
			continue
		}
		if f.Offset >= n {
			continue
		}
		avail := n - f.Offset
		switch f.Spec.Kind {
		case KindArray:
			if es := f.Spec.Elem.Size(); es > 0 && avail/es > 0 {
				out.Fields = append(out.Fields, At(f.Name, f.Offset, ArrayOf(*f.Spec.Elem, avail/es)))
			}
		case KindBytes:
			out.Fields = append(out.Fields, At(f.Name, f.Offset, FixedBytes(avail)))
		case KindNested:
			if sub := f.Spec.Schema.Truncate(avail); len(sub.Fields) > 0 {
				out.Fields = append(out.Fields, At(f.Name, f.Offset, Nested(sub)))
			}
		}
	}
	return out
}

// Values holds decoded field values by field name.
type Values map[string]any
