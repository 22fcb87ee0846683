package blue

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// StringPolicy controls how fixed-width strings are trimmed on decode.
type StringPolicy struct {
	// StripTrailingNulls removes trailing NUL bytes.
	StripTrailingNulls bool
	// RawStrings disables all trimming, returning the stored bytes verbatim.
	RawStrings bool
}

// DefaultStringPolicy strips trailing spaces and NULs.
var DefaultStringPolicy = StringPolicy{StripTrailingNulls: true}

func (p StringPolicy) trim(b []byte) string {
	if p.RawStrings {
		return string(b)
	}
	cut := " "
	if p.StripTrailingNulls {
		cut = " \x00"
	}
	return strings.TrimRight(string(b), cut)
}

// Pack encodes values according to schema. Missing values encode as zero
// or blank, strings are space-padded to their width, and nested schemas
// are encoded recursively.
func Pack(schema *Schema, values Values, order binary.ByteOrder) ([]byte, error) {
	buf := make([]byte, schema.Size)
	if err := packInto(buf, schema, values, order); err != nil {
		return nil, err
	}
	return buf, nil
}

func packInto(buf []byte, schema *Schema, values Values, order binary.ByteOrder) error {
	for _, f := range schema.Fields {
		v, ok := values[f.Name]
		if !ok {
			v = nil
		}
		if err := packField(buf[f.Offset:f.Offset+f.Spec.Size()], f.Spec, v, order); err != nil {
			return fmt.Errorf("%s.%s: %w", schema.Name, f.Name, err)
		}
	}
	return nil
}

func packField(dst []byte, spec FieldSpec, v any, order binary.ByteOrder) error {
	switch spec.Kind {
	case KindScalar:
		return putScalar(dst, spec.Type, v, order)
	case KindBytes:
		var s []byte
		switch t := v.(type) {
		case nil:
		case string:
			s = []byte(t)
		case []byte:
			s = t
		default:
			return fmt.Errorf("%w: cannot encode %T as %s", ErrUnsupportedValue, v, spec)
		}
		n := copy(dst, s)
		for i := n; i < len(dst); i++ {
			dst[i] = ' '
		}
		return nil
	case KindArray:
		return packArray(dst, spec, v, order)
	case KindNested:
		var sub Values
		switch t := v.(type) {
		case nil:
		case Values:
			sub = t
		case map[string]any:
			sub = t
		default:
			return fmt.Errorf("%w: cannot encode %T as %s", ErrUnsupportedValue, v, spec)
		}
		return packInto(dst, spec.Schema, sub, order)
	default:
		return fmt.Errorf("%w: field kind %d", ErrUnrecognizedFormat, spec.Kind)
	}
}

func packArray(dst []byte, spec FieldSpec, v any, order binary.ByteOrder) error {
	elem := *spec.Elem
	es := elem.Size()
	if v == nil {
		return packArrayItems(dst, elem, es, spec.Count, func(int) any { return nil }, order)
	}
	switch items := v.(type) {
	case []string:
		return packArrayItems(dst, elem, es, min(len(items), spec.Count), func(i int) any { return items[i] }, order)
	case []Values:
		return packArrayItems(dst, elem, es, min(len(items), spec.Count), func(i int) any { return items[i] }, order)
	case []any:
		return packArrayItems(dst, elem, es, min(len(items), spec.Count), func(i int) any { return items[i] }, order)
	}
	if elem.Kind == KindScalar {
		b, err := encodeSlice(elem.Type, v, order)
		if err != nil {
			return err
		}
		copy(dst, b)
		return nil
	}
	return fmt.Errorf("%w: cannot encode %T as %s", ErrUnsupportedValue, v, spec)
}

func packArrayItems(dst []byte, elem FieldSpec, es, n int, item func(int) any, order binary.ByteOrder) error {
	total := len(dst) / max(es, 1)
	for i := range total {
		var v any
		if i < n {
			v = item(i)
		}
		if err := packField(dst[i*es:(i+1)*es], elem, v, order); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}

// Unpack decodes b according to schema. A buffer shorter than the schema
// decodes the fields of schema.Truncate(len(b)), so short legacy records
// never fail.
func Unpack(b []byte, schema *Schema, order binary.ByteOrder, policy StringPolicy) (Values, error) {
	if len(b) < schema.Size {
		schema = schema.Truncate(len(b))
	}
	out := make(Values, len(schema.Fields))
	for _, f := range schema.Fields {
		v, err := unpackField(b[f.Offset:f.Offset+f.Spec.Size()], f.Spec, order, policy)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", schema.Name, f.Name, err)
		}
		out[f.Name] = v
	}
	return out, nil
}

func unpackField(b []byte, spec FieldSpec, order binary.ByteOrder, policy StringPolicy) (any, error) {
	switch spec.Kind {
	case KindScalar:
		if !spec.Type.Numeric() {
			return nil, fmt.Errorf("%w: scalar %s", ErrUnrecognizedFormat, spec.Type)
		}
		return decodeScalar(spec.Type, b, order), nil
	case KindBytes:
		return policy.trim(b), nil
	case KindArray:
		elem := *spec.Elem
		es := elem.Size()
		switch elem.Kind {
		case KindScalar:
			return decodeSlice(elem.Type, b[:es*spec.Count], order)
		case KindBytes:
			out := make([]string, spec.Count)
			for i := range out {
				out[i] = policy.trim(b[i*es : (i+1)*es])
			}
			return out, nil
		case KindNested:
			out := make([]Values, spec.Count)
			for i := range out {
				v, err := Unpack(b[i*es:(i+1)*es], elem.Schema, order, policy)
				if err != nil {
					return nil, fmt.Errorf("[%d]: %w", i, err)
				}
				out[i] = v
			}
			return out, nil
		default:
			out := make([]any, spec.Count)
			for i := range out {
				v, err := unpackField(b[i*es:(i+1)*es], elem, order, policy)
				if err != nil {
					return nil, fmt.Errorf("[%d]: %w", i, err)
				}
				out[i] = v
			}
			return out, nil
		}
	case KindNested:
		return Unpack(b, spec.Schema, order, policy)
	default:
		return nil, fmt.Errorf("%w: field kind %d", ErrUnrecognizedFormat, spec.Kind)
	}
}
