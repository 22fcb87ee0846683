package blue

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"reflect"
)

// Array is the decoded data of a class 1 or 2 file. Data is a flat typed
// slice in element-major order: []float32, []int16 and so on for numeric
// types, []uint8 holding 0 or 1 per bit for 'P', and []string for 'A'.
// Shape is (elements[, atoms per frame][, scalars per atom]).
type Array struct {
	Format Format
	Shape  []int
	Data   any
}

// Len returns the number of elements.
func (a *Array) Len() int {
	if len(a.Shape) == 0 {
		return 0
	}
	return a.Shape[0]
}

// stride is the number of scalars per element.
func (a *Array) stride() int {
	n := 1
	for _, d := range a.Shape[1:] {
		n *= d
	}
	return n
}

// Frame returns element i as a sub-slice of Data. For class 2 this is one
// frame; for class 1 it is one atom.
func (a *Array) Frame(i int) any {
	per := a.stride()
	return reflect.ValueOf(a.Data).Slice(i*per, (i+1)*per).Interface()
}

// Float64s converts numeric data to float64. It returns nil for ASCII data.
func (a *Array) Float64s() []float64 {
	rv := reflect.ValueOf(a.Data)
	if rv.Kind() != reflect.Slice {
		return nil
	}
	out := make([]float64, rv.Len())
	for i := range out {
		f, ok := toFloat64(rv.Index(i).Interface())
		if !ok {
			return nil
		}
		out[i] = f
	}
	return out
}

// Data is the decoded data section. Exactly one field is set, by class:
// Array for 1 and 2, Rows for 3, 5 and 6, Records for 4.
type Data struct {
	Array   *Array
	Rows    []Values
	Records []Keywords
}

// window is the part of the data section a read returns: count elements
// from first (0-based), and atoms f0..f0+keep of each element.
type window struct {
	first, count int64
	f0, keep     int
}

// blockBytes rounds the block size down to a whole scalar of t.
func blockBytes(n int, t TypeCode) int {
	size := max(t.Size(), 1)
	return max(n/size*size, size)
}

// blockDecoder decodes consecutive data blocks into one output slice.
type blockDecoder struct {
	dst    any
	at     int
	t      TypeCode
	order  binary.ByteOrder
	policy StringPolicy
}

func (d *blockDecoder) decode(b []byte) {
	switch d.t {
	case TypeBit:
		bits := d.dst.([]uint8)
		for _, c := range b {
			for k := 7; k >= 0 && d.at < len(bits); k-- {
				bits[d.at] = (c >> k) & 1
				d.at++
			}
		}
	case TypeASCII:
		s := d.dst.([]string)
		for off := 0; off+asciiWidth <= len(b) && d.at < len(s); off += asciiWidth {
			s[d.at] = d.policy.trim(b[off : off+asciiWidth])
			d.at++
		}
	default:
		d.at += decodeInto(d.dst, d.at, b, d.order)
	}
}

// readArray streams the class 1/2 elements selected by w from r, where base
// is the byte offset of the data section.
func readArray(r io.ReaderAt, base int64, h *Header, w window, o *options) (*Array, error) {
	order, err := h.DataRep.ByteOrder()
	if err != nil {
		return nil, err
	}
	t := h.Format.Type()
	sbits, err := t.Bits()
	if err != nil {
		return nil, err
	}
	atomBits := int64(h.SPA * sbits)
	stride := int64(h.APE) * atomBits
	skip := int64(w.f0) * atomBits
	keep := int64(w.keep) * atomBits
	if h.Packetized {
		stride += packetHeaderSize * 8
		skip += packetHeaderSize * 8
	}
	contiguous := skip == 0 && keep == stride
	if t == TypeBit {
		aligned := stride%8 == 0 && skip%8 == 0 && keep%8 == 0
		if contiguous {
			aligned = (w.first*stride)%8 == 0 && (w.count*stride)%8 == 0
		}
		if !aligned {
			return nil, fmt.Errorf("%w: elements %d..%d of %d bits", ErrBitAlignment, w.first+1, w.first+w.count, stride)
		}
	}

	dec := &blockDecoder{
		dst:    makeSlice(t, int(w.count)*w.keep*h.SPA),
		t:      t,
		order:  order,
		policy: o.policy,
	}
	total := w.count * keep / 8
	buf := make([]byte, min(int64(blockBytes(o.blockSize, t)), max(total, 1)))
	if contiguous {
		err = readRun(r, base+w.first*stride/8, total, buf, dec)
	} else {
		for i := w.first; i < w.first+w.count && err == nil; i++ {
			err = readRun(r, base+(i*stride+skip)/8, keep/8, buf, dec)
		}
	}
	if err != nil {
		return nil, err
	}

	shape := []int{int(w.count)}
	if h.Class == 2 {
		shape = append(shape, w.keep)
	}
	if h.SPA > 1 {
		shape = append(shape, h.SPA)
	}
	return &Array{Format: h.Format, Shape: shape, Data: dec.dst}, nil
}

// readRun reads n bytes at off in chunks of len(buf).
func readRun(r io.ReaderAt, off, n int64, buf []byte, dec *blockDecoder) error {
	for n > 0 {
		chunk := buf[:min(int64(len(buf)), n)]
		got, err := r.ReadAt(chunk, off)
		if got < len(chunk) {
			return fmt.Errorf("read data at byte %d: %w", off, shortRead(err))
		}
		dec.decode(chunk)
		off += int64(got)
		n -= int64(got)
	}
	return nil
}

// writeArray encodes class 1/2 data at off and returns the number of bytes
// written. Numeric input of any Go type is converted to the header's type.
func writeArray(w io.WriterAt, off int64, h *Header, data any, o *options) (int64, error) {
	if h.Packetized {
		return 0, fmt.Errorf("%w: writing packetized type %d", errors.ErrUnsupported, h.Type)
	}
	order, err := h.DataRep.ByteOrder()
	if err != nil {
		return 0, err
	}
	rv, err := flattenData(data)
	if err != nil {
		return 0, err
	}
	n := rv.Len()
	if per := h.APE * h.SPA; per > 0 && n%per != 0 {
		return 0, fmt.Errorf("%w: %d scalars is not a whole number of %d-scalar elements", ErrUnsupportedValue, n, per)
	}

	t := h.Format.Type()
	switch t {
	case TypeBit:
		if n%8 != 0 {
			return 0, fmt.Errorf("%w: %d bits", ErrBitAlignment, n)
		}
		b, err := packBits(rv)
		if err != nil {
			return 0, err
		}
		_, err = w.WriteAt(b, off)
		return int64(len(b)), err
	case TypeASCII:
		return writeChunks(w, off, n, o.blockSize/asciiWidth, func(i, j int) ([]byte, error) {
			return encodeASCII(rv.Slice(i, j))
		})
	default:
		if !t.Numeric() {
			return 0, fmt.Errorf("%w: format %s", ErrUnrecognizedFormat, h.Format)
		}
		return writeChunks(w, off, n, o.blockSize/t.Size(), func(i, j int) ([]byte, error) {
			return encodeSlice(t, rv.Slice(i, j).Interface(), order)
		})
	}
}

func writeChunks(w io.WriterAt, off int64, n, per int, encode func(i, j int) ([]byte, error)) (int64, error) {
	per = max(per, 1)
	var written int64
	for i := 0; i < n; i += per {
		b, err := encode(i, min(i+per, n))
		if err != nil {
			return written, fmt.Errorf("scalars %d..%d: %w", i, min(i+per, n)-1, err)
		}
		if _, err := w.WriteAt(b, off+written); err != nil {
			return written, err
		}
		written += int64(len(b))
	}
	return written, nil
}

// flattenData accepts an *Array, a flat slice, or a slice of per-frame
// slices, and returns one flat slice.
func flattenData(data any) (reflect.Value, error) {
	switch d := data.(type) {
	case nil:
		return reflect.ValueOf([]float64{}), nil
	case *Array:
		return flattenData(d.Data)
	case Array:
		return flattenData(d.Data)
	}
	rv := reflect.ValueOf(data)
	if rv.Kind() != reflect.Slice {
		return reflect.Value{}, fmt.Errorf("%w: data of type %T", ErrUnsupportedValue, data)
	}
	if rv.Type().Elem().Kind() != reflect.Slice {
		return rv, nil
	}
	out := reflect.MakeSlice(rv.Type().Elem(), 0, 0)
	for i := range rv.Len() {
		out = reflect.AppendSlice(out, rv.Index(i))
	}
	return out, nil
}

func packBits(rv reflect.Value) ([]byte, error) {
	out := make([]byte, rv.Len()/8)
	for i := range rv.Len() {
		v, ok := toInt64(rv.Index(i).Interface())
		if !ok {
			return nil, fmt.Errorf("%w: bit %d of type %s", ErrUnsupportedValue, i, rv.Index(i).Type())
		}
		if v != 0 {
			out[i/8] |= 0x80 >> (i % 8)
		}
	}
	return out, nil
}

// encodeASCII space-pads each string to the fixed ASCII width.
func encodeASCII(rv reflect.Value) ([]byte, error) {
	out := bytes.Repeat([]byte{' '}, asciiWidth*rv.Len())
	for i := range rv.Len() {
		dst := out[i*asciiWidth : (i+1)*asciiWidth]
		switch s := rv.Index(i).Interface().(type) {
		case string:
			copy(dst, s)
		case []byte:
			copy(dst, s)
		default:
			return nil, fmt.Errorf("%w: %T as ASCII", ErrUnsupportedValue, s)
		}
	}
	return out, nil
}
