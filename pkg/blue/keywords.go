package blue

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Keyword record layout (current revision), all in header byte order:
//
//	[0]  int32  lkey   total record length, a multiple of 8
//	[4]  int16  lext   lkey minus the data length (header + tag + padding)
//	[6]  int8   ltag   tag length
//	[7]  byte   type   value type code
//	[8]  data   lkey-lext bytes
//	[..] tag    ltag bytes
//	[..] zero padding up to lkey
//
// The earliest revision used three int32 fields (lkey, ltag, ldata) and
// stored ASCII values only. Its second word never exceeds maxLegacyTag,
// while the current layout's second word always does.
const (
	keywordHeaderSize       = 8
	legacyKeywordHeaderSize = 12
	keywordAlign            = 8
	maxLegacyTag            = 128
	maxTagLength            = math.MaxInt8
)

// Keyword is one tag/value pair of the extended header. Values decode as
// int8, uint8, int16, uint16, int32, uint32, int64, float32, float64, string
// or a slice of one of the numeric types. In structured mode a value may
// also be map[string]any, []any, Keywords or nil.
type Keyword struct {
	Tag   string
	Value any
}

// Keywords is an ordered keyword list; duplicate tags are allowed.
type Keywords []Keyword

// Get returns the value of the first keyword with the given tag.
func (k Keywords) Get(tag string) (any, bool) {
	for _, kw := range k {
		if kw.Tag == tag {
			return kw.Value, true
		}
	}
	return nil, false
}

// Set replaces the first keyword with the given tag, or appends one.
func (k *Keywords) Set(tag string, value any) {
	for i := range *k {
		if (*k)[i].Tag == tag {
			(*k)[i].Value = value
			return
		}
	}
	*k = append(*k, Keyword{Tag: tag, Value: value})
}

// Delete removes every keyword with the given tag.
func (k *Keywords) Delete(tag string) {
	out := (*k)[:0]
	for _, kw := range *k {
		if kw.Tag != tag {
			out = append(out, kw)
		}
	}
	*k = out
}

// Tags returns the tags in order.
func (k Keywords) Tags() []string {
	out := make([]string, len(k))
	for i, kw := range k {
		out[i] = kw.Tag
	}
	return out
}

// Dict folds the list into a map; later duplicates win.
func (k Keywords) Dict() map[string]any {
	out := make(map[string]any, len(k))
	for _, kw := range k {
		out[kw.Tag] = kw.Value
	}
	return out
}

// keywordHeader is the per-record framing, in either of its two layouts.
type keywordHeader interface {
	length() int
	data() (start, end int)
	tag() (start, end int)
	typeCode() TypeCode
}

type legacyKeywordHeader struct {
	lkey, ltag, ldata int
}

func (h legacyKeywordHeader) length() int        { return h.lkey }
func (h legacyKeywordHeader) data() (int, int)   { return legacyKeywordHeaderSize, legacyKeywordHeaderSize + h.ldata }
func (h legacyKeywordHeader) typeCode() TypeCode { return TypeASCII }
func (h legacyKeywordHeader) tag() (int, int) {
	s := legacyKeywordHeaderSize + h.ldata
	return s, s + h.ltag
}

type currentKeywordHeader struct {
	lkey, lext, ltag int
	typ              TypeCode
}

func (h currentKeywordHeader) length() int        { return h.lkey }
func (h currentKeywordHeader) data() (int, int)   { return keywordHeaderSize, h.lkey - h.lext + keywordHeaderSize }
func (h currentKeywordHeader) typeCode() TypeCode { return h.typ }
func (h currentKeywordHeader) tag() (int, int) {
	s := h.lkey - h.lext + keywordHeaderSize
	return s, s + h.ltag
}

// readKeywordHeader selects and validates the record framing at the front
// of b, which holds the rest of the keyword buffer.
func readKeywordHeader(b []byte, order binary.ByteOrder) (keywordHeader, error) {
	if len(b) < keywordHeaderSize {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptKeywords, len(b))
	}
	lkey := int(int32(order.Uint32(b)))
	second := int32(order.Uint32(b[4:]))
	var h keywordHeader
	if second >= 0 && second <= maxLegacyTag {
		if len(b) < legacyKeywordHeaderSize {
			return nil, fmt.Errorf("%w: short legacy record", ErrCorruptKeywords)
		}
		h = legacyKeywordHeader{lkey: lkey, ltag: int(second), ldata: int(int32(order.Uint32(b[8:])))}
	} else {
		h = currentKeywordHeader{
			lkey: lkey,
			lext: int(int16(order.Uint16(b[4:]))),
			ltag: int(int8(b[6])),
			typ:  TypeCode(b[7]),
		}
	}
	ds, de := h.data()
	ts, te := h.tag()
	switch {
	case lkey < keywordHeaderSize || lkey > len(b):
		return nil, fmt.Errorf("%w: record length %d with %d bytes left", ErrCorruptKeywords, lkey, len(b))
	case de < ds || ts < 0 || te < ts || te > lkey:
		return nil, fmt.Errorf("%w: record fields overrun length %d", ErrCorruptKeywords, lkey)
	}
	return h, nil
}

// PackKeywords encodes kw. In structured mode maps, lists, Keywords and nil
// values are wrapped in open/size/close marker records; otherwise they are
// rejected.
func PackKeywords(kw Keywords, order binary.ByteOrder, structured bool) ([]byte, error) {
	var out []byte
	for _, k := range kw {
		var (
			rec []byte
			err error
		)
		if structured {
			rec, err = packStructured(k.Tag, k.Value, order)
		} else {
			rec, err = packKeyword(k.Tag, k.Value, order)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec...)
	}
	return out, nil
}

// UnpackKeywords decodes a keyword buffer. In structured mode marker
// records are folded back into nested values; a flat read returns them as
// ordinary keywords.
func UnpackKeywords(b []byte, order binary.ByteOrder, structured bool) (Keywords, error) {
	flat, err := unpackFlat(b, order)
	if err != nil {
		return nil, err
	}
	if !structured {
		return flat, nil
	}
	out, next, err := foldStructured(flat, 0, "")
	if err != nil {
		return nil, err
	}
	if next != len(flat) {
		return nil, fmt.Errorf("%w: unexpected %q", ErrCorruptKeywords, flat[next].Tag)
	}
	return out, nil
}

func unpackFlat(b []byte, order binary.ByteOrder) (Keywords, error) {
	var out Keywords
	for off := 0; off < len(b); {
		// Zero padding after the last record ends the list.
		if allZero(b[off:]) {
			break
		}
		h, err := readKeywordHeader(b[off:], order)
		if err != nil {
			return nil, fmt.Errorf("keyword %d at offset %d: %w", len(out), off, err)
		}
		rec := b[off : off+h.length()]
		ds, de := h.data()
		ts, te := h.tag()
		v, err := decodeKeywordValue(h.typeCode(), rec[ds:de], order)
		if err != nil {
			return nil, fmt.Errorf("keyword %q: %w", string(rec[ts:te]), err)
		}
		out = append(out, Keyword{Tag: string(rec[ts:te]), Value: v})
		off += h.length()
	}
	return out, nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func packKeyword(tag string, v any, order binary.ByteOrder) ([]byte, error) {
	if len(tag) > maxTagLength {
		return nil, fmt.Errorf("%w: tag %q longer than %d bytes", ErrUnsupportedValue, tag, maxTagLength)
	}
	typ, data, err := encodeKeywordValue(v, order)
	if err != nil {
		return nil, fmt.Errorf("keyword %q: %w", tag, err)
	}
	unpadded := keywordHeaderSize + len(data) + len(tag)
	lkey := (unpadded + keywordAlign - 1) / keywordAlign * keywordAlign
	lext := lkey - len(data)
	if lext > math.MaxInt16 || lkey > math.MaxInt32 {
		return nil, fmt.Errorf("%w: keyword %q too large", ErrUnsupportedValue, tag)
	}
	rec := make([]byte, lkey)
	order.PutUint32(rec, uint32(lkey))
	order.PutUint16(rec[4:], uint16(lext))
	rec[6] = byte(len(tag))
	rec[7] = byte(typ)
	copy(rec[keywordHeaderSize:], data)
	copy(rec[keywordHeaderSize+len(data):], tag)
	return rec, nil
}

// encodeKeywordValue classifies v. Untyped integers take 4 bytes when they
// fit in 32 bits and 8 otherwise; sized Go types keep their width.
func encodeKeywordValue(v any, order binary.ByteOrder) (TypeCode, []byte, error) {
	switch t := v.(type) {
	case string:
		return TypeASCII, []byte(t), nil
	case []byte:
		return TypeASCII, t, nil
	case bool:
		b, err := encodeSlice(TypeInt32, t, order)
		return TypeInt32, b, err
	case int:
		return encodeInteger(int64(t), order)
	case uint:
		return encodeUnsigned(uint64(t), order)
	case uint64:
		return encodeUnsigned(t, order)
	case []int:
		typ := TypeInt32
		for _, i := range t {
			if i < math.MinInt32 || i > math.MaxInt32 {
				typ = TypeInt64
			}
		}
		b, err := encodeSlice(typ, t, order)
		return typ, b, err
	}
	typ, ok := keywordType(v)
	if !ok {
		return 0, nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
	b, err := encodeSlice(typ, v, order)
	return typ, b, err
}

// encodeUnsigned stores u as a signed integer; the keyword types have no
// unsigned 64-bit code.
func encodeUnsigned(u uint64, order binary.ByteOrder) (TypeCode, []byte, error) {
	if u > math.MaxInt64 {
		return 0, nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, u)
	}
	return encodeInteger(int64(u), order)
}

func encodeInteger(i int64, order binary.ByteOrder) (TypeCode, []byte, error) {
	typ := TypeInt32
	if i < math.MinInt32 || i > math.MaxInt32 {
		typ = TypeInt64
	}
	b, err := encodeSlice(typ, i, order)
	return typ, b, err
}

func keywordType(v any) (TypeCode, bool) {
	switch v.(type) {
	case int8, []int8:
		return TypeInt8, true
	case uint8:
		return TypeUint8, true
	case int16, []int16:
		return TypeInt16, true
	case uint16, []uint16:
		return TypeUint16, true
	case int32, []int32:
		return TypeInt32, true
	case uint32, []uint32:
		return TypeUint32, true
	case int64, []int64:
		return TypeInt64, true
	case float32, []float32:
		return TypeFloat32, true
	case float64, []float64:
		return TypeFloat64, true
	default:
		return 0, false
	}
}

func decodeKeywordValue(t TypeCode, data []byte, order binary.ByteOrder) (any, error) {
	if t == TypeASCII {
		return string(data), nil
	}
	if !t.Numeric() {
		return nil, fmt.Errorf("%w: type code %q", ErrCorruptKeywords, rune(t))
	}
	if len(data)%t.Size() != 0 {
		return nil, fmt.Errorf("%w: %d data bytes for %s", ErrCorruptKeywords, len(data), t)
	}
	if len(data) == t.Size() {
		return decodeScalar(t, data, order), nil
	}
	return decodeSlice(t, data, order)
}

// keywordString renders a keyword value for display.
func keywordString(v any) string {
	switch t := v.(type) {
	case nil:
		return structNull
	case string:
		return strings.TrimRight(t, "\x00")
	default:
		return fmt.Sprint(v)
	}
}

// String renders one TAG=VALUE line per keyword.
func (k Keywords) String() string {
	var sb strings.Builder
	for i, kw := range k {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(kw.Tag)
		sb.WriteByte('=')
		sb.WriteString(keywordString(kw.Value))
	}
	return sb.String()
}
