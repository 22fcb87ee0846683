package blue

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
)

// decodeScalar reads one scalar of type t from the front of b.
func decodeScalar(t TypeCode, b []byte, order binary.ByteOrder) any {
	switch t {
	case TypeInt8:
		return int8(b[0])
	case TypeUint8:
		return b[0]
	case TypeInt16:
		return int16(order.Uint16(b))
	case TypeUint16:
		return order.Uint16(b)
	case TypeInt32:
		return int32(order.Uint32(b))
	case TypeUint32:
		return order.Uint32(b)
	case TypeInt64:
		return int64(order.Uint64(b))
	case TypeFloat32:
		return math.Float32frombits(order.Uint32(b))
	case TypeFloat64:
		return math.Float64frombits(order.Uint64(b))
	default:
		return nil
	}
}

// decodeSlice decodes len(b)/size scalars of numeric type t into a typed slice.
func decodeSlice(t TypeCode, b []byte, order binary.ByteOrder) (any, error) {
	size := t.Size()
	if !t.Numeric() || size == 0 {
		return nil, fmt.Errorf("%w: %s is not numeric", ErrUnrecognizedFormat, t)
	}
	dst := makeSlice(t, len(b)/size)
	decodeInto(dst, 0, b, order)
	return dst, nil
}

// makeSlice allocates the typed slice that holds n scalars of type t. Bits
// decode to one uint8 per bit and ASCII atoms to strings.
func makeSlice(t TypeCode, n int) any {
	switch t {
	case TypeInt8:
		return make([]int8, n)
	case TypeUint8, TypeBit:
		return make([]uint8, n)
	case TypeInt16:
		return make([]int16, n)
	case TypeUint16:
		return make([]uint16, n)
	case TypeInt32:
		return make([]int32, n)
	case TypeUint32:
		return make([]uint32, n)
	case TypeInt64:
		return make([]int64, n)
	case TypeFloat32:
		return make([]float32, n)
	case TypeFloat64:
		return make([]float64, n)
	case TypeASCII:
		return make([]string, n)
	default:
		return nil
	}
}

// decodeInto decodes the whole scalars in b into the numeric slice dst
// starting at index at, and returns how many were written.
func decodeInto(dst any, at int, b []byte, order binary.ByteOrder) int {
	switch d := dst.(type) {
	case []int8:
		n := min(len(b), len(d)-at)
		for i := range n {
			d[at+i] = int8(b[i])
		}
		return n
	case []uint8:
		return copy(d[at:], b)
	case []int16:
		n := min(len(b)/2, len(d)-at)
		for i := range n {
			d[at+i] = int16(order.Uint16(b[i*2:]))
		}
		return n
	case []uint16:
		n := min(len(b)/2, len(d)-at)
		for i := range n {
			d[at+i] = order.Uint16(b[i*2:])
		}
		return n
	case []int32:
		n := min(len(b)/4, len(d)-at)
		for i := range n {
			d[at+i] = int32(order.Uint32(b[i*4:]))
		}
		return n
	case []uint32:
		n := min(len(b)/4, len(d)-at)
		for i := range n {
			d[at+i] = order.Uint32(b[i*4:])
		}
		return n
	case []int64:
		n := min(len(b)/8, len(d)-at)
		for i := range n {
			d[at+i] = int64(order.Uint64(b[i*8:]))
		}
		return n
	case []float32:
		n := min(len(b)/4, len(d)-at)
		for i := range n {
			d[at+i] = math.Float32frombits(order.Uint32(b[i*4:]))
		}
		return n
	case []float64:
		n := min(len(b)/8, len(d)-at)
		for i := range n {
			d[at+i] = math.Float64frombits(order.Uint64(b[i*8:]))
		}
		return n
	default:
		return 0
	}
}

// putScalar encodes v as type t at the front of dst, converting between
// numeric Go types as needed.
func putScalar(dst []byte, t TypeCode, v any, order binary.ByteOrder) error {
	switch t {
	case TypeFloat32, TypeFloat64:
		f, ok := toFloat64(v)
		if !ok {
			return fmt.Errorf("%w: cannot encode %T as %s", ErrUnsupportedValue, v, t)
		}
		if t == TypeFloat32 {
			order.PutUint32(dst, math.Float32bits(float32(f)))
		} else {
			order.PutUint64(dst, math.Float64bits(f))
		}
		return nil
	}
	i, ok := toInt64(v)
	if !ok {
		return fmt.Errorf("%w: cannot encode %T as %s", ErrUnsupportedValue, v, t)
	}
	switch t {
	case TypeInt8, TypeUint8:
		dst[0] = byte(i)
	case TypeInt16, TypeUint16:
		order.PutUint16(dst, uint16(i))
	case TypeInt32, TypeUint32:
		order.PutUint32(dst, uint32(i))
	case TypeInt64:
		order.PutUint64(dst, uint64(i))
	default:
		return fmt.Errorf("%w: %s is not numeric", ErrUnrecognizedFormat, t)
	}
	return nil
}

// encodeSlice encodes every element of the slice v as type t.
func encodeSlice(t TypeCode, v any, order binary.ByteOrder) ([]byte, error) {
	size := t.Size()
	if !t.Numeric() {
		return nil, fmt.Errorf("%w: %s is not numeric", ErrUnrecognizedFormat, t)
	}
	// Fast paths for slices already in the target representation.
	switch s := v.(type) {
	case []float32:
		if t == TypeFloat32 {
			out := make([]byte, 4*len(s))
			for i, f := range s {
				order.PutUint32(out[i*4:], math.Float32bits(f))
			}
			return out, nil
		}
	case []float64:
		if t == TypeFloat64 {
			out := make([]byte, 8*len(s))
			for i, f := range s {
				order.PutUint64(out[i*8:], math.Float64bits(f))
			}
			return out, nil
		}
	case []byte:
		if t == TypeUint8 || t == TypeInt8 {
			return append([]byte(nil), s...), nil
		}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		out := make([]byte, size)
		if err := putScalar(out, t, v, order); err != nil {
			return nil, err
		}
		return out, nil
	}
	out := make([]byte, size*rv.Len())
	for i := range rv.Len() {
		if err := putScalar(out[i*size:], t, rv.Index(i).Interface(), order); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return out, nil
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, true
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	case float32:
		return int64(t), true
	case float64:
		return int64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case uint64:
		return float64(t), true
	default:
		i, ok := toInt64(v)
		return float64(i), ok
	}
}

// sliceLen returns the length of a slice value, or -1 for non-slices.
func sliceLen(v any) int {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return -1
	}
	return rv.Len()
}
