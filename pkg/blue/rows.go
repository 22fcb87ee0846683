package blue

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// rowSchema lays out one class 3, 5 or 6 record from the header's field
// descriptors. Field names are lowercased. With derive set, class 6 offsets
// are summed from the field widths instead of taken from SUBREC_DEF.
func rowSchema(h *Header, derive bool) (*Schema, error) {
	if h.RecordLength <= 0 {
		return nil, fmt.Errorf("%w: class %d record length %d", ErrCorruptHeader, h.Class, h.RecordLength)
	}
	var fields []Field
	switch h.Class {
	case 3, 6:
		if h.Class == 6 && len(h.Subrecords) == 0 {
			return nil, fmt.Errorf("%w: class 6 file without %s", ErrCorruptHeader, keywordSubrecDef)
		}
		off := 0
		for _, s := range h.Subrecords {
			count := 1
			if h.Class == 6 {
				count = int(max(s.NumElts, 1))
			}
			spec, err := recordFieldSpec(s.Format, count)
			if err != nil {
				return nil, fmt.Errorf("subrecord %s: %w", s.Name, err)
			}
			at := s.Offset
			if derive && h.Class == 6 {
				at = off
			}
			off = at + spec.Size()
			fields = append(fields, At(strings.ToLower(s.Name), at, spec))
		}
	case 5:
		for _, c := range h.Components {
			spec, err := recordFieldSpec(c.Format, 1)
			if err != nil {
				return nil, fmt.Errorf("component %s: %w", c.Name, err)
			}
			fields = append(fields, At(strings.ToLower(c.Name), c.Offset, spec))
		}
	default:
		return nil, fmt.Errorf("%w: class %d has no row layout", ErrCorruptHeader, h.Class)
	}
	s := NewSchema(fmt.Sprintf("record%d", h.Class), int(h.RecordLength), fields...)
	if s.Size > int(h.RecordLength) {
		return nil, fmt.Errorf("%w: fields end at byte %d past record length %d", ErrCorruptHeader, s.Size, h.RecordLength)
	}
	return s, nil
}

// recordFieldSpec maps count atoms of format f to a field shape. One scalar
// decodes as a scalar, more as a typed slice. Bit fields stay packed as raw
// bytes.
func recordFieldSpec(f Format, count int) (FieldSpec, error) {
	spa, err := f.Mode().Scalars()
	if err != nil {
		return FieldSpec{}, err
	}
	t := f.Type()
	if t == TypeBit {
		size, err := f.AtomSize()
		if err != nil {
			return FieldSpec{}, err
		}
		return ArrayOf(Scalar(TypeUint8), size*count), nil
	}
	elem := Scalar(t)
	switch {
	case t == TypeASCII:
		elem = FixedBytes(asciiWidth)
	case !t.Numeric():
		return FieldSpec{}, fmt.Errorf("%w: format %s", ErrUnrecognizedFormat, f)
	}
	if n := spa * count; n > 1 {
		return ArrayOf(elem, n), nil
	}
	return elem, nil
}

// encodeSubrecDef packs class 6 descriptors into the SUBREC_DEF layout.
func encodeSubrecDef(subs []Subrecord, order binary.ByteOrder) ([]byte, error) {
	out := make([]byte, 0, len(subs)*subr6Schema.Size)
	for _, s := range subs {
		b, err := Pack(subr6Schema, Values{
			"name":     s.Name,
			"minval":   s.MinVal,
			"maxval":   s.MaxVal,
			"offset":   int32(s.Offset),
			"num_elts": s.NumElts,
			"units":    s.Units,
			"format":   string(s.Format),
		}, order)
		if err != nil {
			return nil, fmt.Errorf("subrecord %s: %w", s.Name, err)
		}
		out = append(out, b...)
	}
	return out, nil
}

func decodeSubrecDef(b []byte, order binary.ByteOrder, policy StringPolicy) ([]Subrecord, error) {
	if len(b)%subr6Schema.Size != 0 {
		return nil, fmt.Errorf("%w: %s of %d bytes", ErrCorruptKeywords, keywordSubrecDef, len(b))
	}
	var out []Subrecord
	for off := 0; off < len(b); off += subr6Schema.Size {
		v, err := Unpack(b[off:off+subr6Schema.Size], subr6Schema, order, policy)
		if err != nil {
			return nil, err
		}
		out = append(out, Subrecord{
			Name:    str(v, "name"),
			Format:  Format(str(v, "format")),
			Offset:  int(i32(v, "offset")),
			MinVal:  f64(v, "minval"),
			MaxVal:  f64(v, "maxval"),
			Units:   i32(v, "units"),
			NumElts: i32(v, "num_elts"),
		})
	}
	return out, nil
}

// readRows decodes the records selected by w. Whole records are read a
// block at a time.
func readRows(r io.ReaderAt, base int64, h *Header, w window, o *options) ([]Values, error) {
	schema, err := rowSchema(h, o.deriveT6)
	if err != nil {
		return nil, err
	}
	order, err := h.DataRep.ByteOrder()
	if err != nil {
		return nil, err
	}
	rl := int64(h.RecordLength)
	perBlock := max(int64(o.blockSize)/rl, 1)
	buf := make([]byte, min(perBlock, max(w.count, 1))*rl)
	rows := make([]Values, 0, w.count)
	for i := w.first; i < w.first+w.count; i += perBlock {
		n := min(perBlock, w.first+w.count-i)
		chunk := buf[:n*rl]
		if got, err := r.ReadAt(chunk, base+i*rl); got < len(chunk) {
			return nil, fmt.Errorf("read record %d: %w", i+1, shortRead(err))
		}
		for j := range n {
			v, err := Unpack(chunk[j*rl:(j+1)*rl], schema, order, o.policy)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i+j+1, err)
			}
			rows = append(rows, v)
		}
	}
	return rows, nil
}

// writeRows packs rows at off and returns the number of bytes written. Row
// keys match field names case-insensitively; missing fields encode as zero.
func writeRows(w io.WriterAt, off int64, h *Header, data any, o *options) (int64, error) {
	rows, err := rowValues(data)
	if err != nil {
		return 0, err
	}
	schema, err := rowSchema(h, false)
	if err != nil {
		return 0, err
	}
	order, err := h.DataRep.ByteOrder()
	if err != nil {
		return 0, err
	}
	rl := int(h.RecordLength)
	perBlock := max(o.blockSize/rl, 1)
	var written int64
	for i := 0; i < len(rows); i += perBlock {
		end := min(i+perBlock, len(rows))
		buf := make([]byte, 0, (end-i)*rl)
		for j := i; j < end; j++ {
			b, err := Pack(schema, lowerKeys(rows[j]), order)
			if err != nil {
				return written, fmt.Errorf("record %d: %w", j+1, err)
			}
			buf = append(buf, b...)
		}
		if _, err := w.WriteAt(buf, off+written); err != nil {
			return written, err
		}
		written += int64(len(buf))
	}
	return written, nil
}

func rowValues(data any) ([]Values, error) {
	switch d := data.(type) {
	case nil:
		return nil, nil
	case []Values:
		return d, nil
	case []map[string]any:
		out := make([]Values, len(d))
		for i, m := range d {
			out[i] = m
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: row data of type %T", ErrUnsupportedValue, data)
	}
}

func lowerKeys(v Values) Values {
	out := make(Values, len(v))
	for k, x := range v {
		out[strings.ToLower(k)] = x
	}
	return out
}
