package blue

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Class 4 records are keyword blocks, each framed by
//
//	[0] int32  block length, including this header
//	[4] int32  valid length, including this header
//	[8] flat keyword records
//
// in data byte order. Blocks are stored in one of three ways, selected by
// vrecord_length: fixed slots of that many bytes (> 0), blocks located by
// the T4INDEX keyword (< 0), or blocks packed back to back (== 0).
const (
	vrbHeaderSize = 8
	// minVRBSize is the smallest plausible average record size.
	minVRBSize = 8
)

// recordOffsets lists the byte offsets of the class 4 records selected by
// w, relative to the data start.
func recordOffsets(r io.ReaderAt, base int64, h *Header, w window, order binary.ByteOrder) ([]int64, error) {
	switch {
	case h.VRecordLength > 0:
		out := make([]int64, w.count)
		for i := range out {
			out[i] = (w.first + int64(i)) * int64(h.VRecordLength)
		}
		return out, nil
	case h.VRecordLength < 0:
		v, ok := h.Keywords.Get(keywordT4Index)
		if !ok {
			return nil, fmt.Errorf("%w: keyword-indexed class 4 file without %s", ErrCorruptHeader, keywordT4Index)
		}
		index, ok := int64s(v)
		if !ok {
			return nil, fmt.Errorf("%w: %s of type %T", ErrCorruptKeywords, keywordT4Index, v)
		}
		return index, nil
	default:
		var out []int64
		var hdr [vrbHeaderSize]byte
		for off := int64(0); off < int64(h.DataSize); {
			if got, err := r.ReadAt(hdr[:], base+off); got < len(hdr) {
				return nil, fmt.Errorf("read record %d: %w", len(out)+1, shortRead(err))
			}
			n := int64(int32(order.Uint32(hdr[:])))
			if n < vrbHeaderSize {
				return nil, fmt.Errorf("%w: record %d has block length %d", ErrCorruptHeader, len(out)+1, n)
			}
			out = append(out, off)
			off += n
		}
		return out, nil
	}
}

// readRecords decodes class 4 records. The offset list is checked against
// data_size before any record is read.
func readRecords(r io.ReaderAt, base int64, h *Header, w window, o *options) ([]Keywords, error) {
	order, err := h.DataRep.ByteOrder()
	if err != nil {
		return nil, err
	}
	offsets, err := recordOffsets(r, base, h, w, order)
	if err != nil {
		return nil, err
	}
	n := len(offsets)
	if n == 0 && h.DataSize > 0 || n > 0 && h.DataSize/float64(n) < minVRBSize {
		return nil, fmt.Errorf("%w: %d class 4 records in %.0f data bytes", ErrCorruptHeader, n, h.DataSize)
	}

	out := make([]Keywords, 0, n)
	var hdr [vrbHeaderSize]byte
	for i, off := range offsets {
		if off < 0 || float64(off) >= h.DataSize {
			return nil, fmt.Errorf("%w: record %d at byte %d outside data", ErrCorruptHeader, i+1, off)
		}
		if got, err := r.ReadAt(hdr[:], base+off); got < len(hdr) {
			return nil, fmt.Errorf("read record %d: %w", i+1, shortRead(err))
		}
		block := int64(int32(order.Uint32(hdr[:])))
		valid := int64(int32(order.Uint32(hdr[4:])))
		if valid < vrbHeaderSize || valid > block || float64(off+block) > h.DataSize {
			return nil, fmt.Errorf("%w: record %d lengths %d/%d", ErrCorruptHeader, i+1, block, valid)
		}
		body := make([]byte, valid-vrbHeaderSize)
		if got, err := r.ReadAt(body, base+off+vrbHeaderSize); got < len(body) {
			return nil, fmt.Errorf("read record %d: %w", i+1, shortRead(err))
		}
		kw, err := UnpackKeywords(body, order, o.structured)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		out = append(out, kw)
	}
	return out, nil
}

// writeRecords writes class 4 records at byte at of the data section
// starting at base, and returns the number of bytes written. Keyword-indexed
// files get their T4INDEX keyword rebuilt.
func writeRecords(w io.WriterAt, base, at int64, h *Header, data any, o *options) (int64, error) {
	records, ok := data.([]Keywords)
	if !ok && data != nil {
		return 0, fmt.Errorf("%w: record data of type %T", ErrUnsupportedValue, data)
	}
	order, err := h.DataRep.ByteOrder()
	if err != nil {
		return 0, err
	}
	slot := int(h.VRecordLength)
	var (
		written int64
		index   []int64
	)
	for i, rec := range records {
		body, err := PackKeywords(rec, order, o.structured)
		if err != nil {
			return written, fmt.Errorf("record %d: %w", i+1, err)
		}
		if slot > 0 && vrbHeaderSize+len(body) > slot {
			kept, b, err := fitRecord(rec, slot-vrbHeaderSize, order, o.structured)
			if err != nil {
				return written, fmt.Errorf("record %d: %w", i+1, err)
			}
			o.log.Warn("class 4 record truncated to its slot",
				"record", i+1, "slot", slot, "dropped", len(rec)-kept)
			body = b
		}
		size := vrbHeaderSize + len(body)
		if slot > 0 {
			size = slot
		} else {
			size = (size + keywordAlign - 1) / keywordAlign * keywordAlign
		}
		if size > math.MaxInt32 {
			return written, fmt.Errorf("%w: record %d of %d bytes", ErrUnsupportedValue, i+1, size)
		}
		block := make([]byte, size)
		order.PutUint32(block, uint32(size))
		order.PutUint32(block[4:], uint32(vrbHeaderSize+len(body)))
		copy(block[vrbHeaderSize:], body)
		if _, err := w.WriteAt(block, base+at+written); err != nil {
			return written, err
		}
		index = append(index, at+written)
		written += int64(size)
	}
	if h.VRecordLength < 0 {
		h.Keywords.Set(keywordT4Index, index)
	}
	return written, nil
}

// fitRecord drops trailing keywords from rec until it packs into limit
// bytes, and returns how many were kept.
func fitRecord(rec Keywords, limit int, order binary.ByteOrder, structured bool) (int, []byte, error) {
	for n := len(rec) - 1; n >= 0; n-- {
		b, err := PackKeywords(rec[:n], order, structured)
		if err != nil {
			return 0, nil, err
		}
		if len(b) <= limit {
			return n, b, nil
		}
	}
	return 0, nil, nil
}

func int64s(v any) ([]int64, bool) {
	switch t := v.(type) {
	case []int64:
		return t, true
	case int64:
		return []int64{t}, true
	case []int32:
		out := make([]int64, len(t))
		for i, x := range t {
			out[i] = int64(x)
		}
		return out, true
	case int32:
		return []int64{int64(t)}, true
	default:
		return nil, false
	}
}

// errAppendIndexed rejects appends to keyword-indexed class 4 files, whose
// index lives in the extended header being preserved.
var errAppendIndexed = fmt.Errorf("%w: append to keyword-indexed class 4 file", errors.ErrUnsupported)
