package blue

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ReadHeader reads the header of the BLUE file at path. The extended header
// is returned for WithExtendedHeader. DetachName is set when the data is
// detached and its path can be resolved; an unresolvable external storage
// area is logged and leaves DetachName empty.
func ReadHeader(path string, opts ...Option) (*Header, error) {
	o := newOptions(opts)
	h, err := readHeaderFile(path, o)
	if err != nil {
		return nil, err
	}
	if err := resolveDetached(path, h, o); err != nil {
		if !errors.Is(err, ErrUnresolvedDetachedPath) {
			return nil, err
		}
		o.log.Warn("detached data path not resolved", "path", path, "detached", h.Detached, "error", err)
	}
	return h, nil
}

// ReadHeaderFrom reads a header from r. Detached data cannot be located
// from a stream, so DetachName is only set by WithDetachName.
func ReadHeaderFrom(r io.ReaderAt, opts ...Option) (*Header, error) {
	o := newOptions(opts)
	h, err := readHeader(r, o)
	if err != nil {
		return nil, err
	}
	if h.Detached != 0 {
		h.DetachName = o.detachName
	}
	return h, nil
}

// Read reads the header and data of the BLUE file at path. The returned
// header describes the returned data: trimming with WithRange or WithFrames
// advances its abscissa start and shrinks its size.
func Read(path string, opts ...Option) (*Header, *Data, error) {
	o := newOptions(opts)
	h, err := readHeaderFile(path, o)
	if err != nil {
		return nil, nil, err
	}
	dataPath := path
	if h.Detached != 0 {
		if err := resolveDetached(path, h, o); err != nil {
			return nil, nil, err
		}
		dataPath = h.DetachName
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	unlock, err := lockFile(f, false)
	if err != nil {
		return nil, nil, fmt.Errorf("lock %s: %w", dataPath, err)
	}
	defer unlock()
	return readData(f, h, o)
}

// ReadFrom reads the header and embedded data from r. Detached data is
// rejected with ErrUnresolvedDetachedPath.
func ReadFrom(r io.ReaderAt, opts ...Option) (*Header, *Data, error) {
	o := newOptions(opts)
	h, err := readHeader(r, o)
	if err != nil {
		return nil, nil, err
	}
	if h.Detached != 0 {
		return nil, nil, fmt.Errorf("%w: detached=%d data is not in the stream", ErrUnresolvedDetachedPath, h.Detached)
	}
	return readData(r, h, o)
}

func readHeaderFile(path string, o *options) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	unlock, err := lockFile(f, false)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	defer unlock()
	h, err := readHeader(f, o)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

func resolveDetached(path string, h *Header, o *options) error {
	p, err := detachedPath(path, h, o)
	if err != nil {
		return err
	}
	h.DetachName = p
	return nil
}

// readHeader parses the fixed header and, when the caller or the data
// section needs it, the extended header.
func readHeader(r io.ReaderAt, o *options) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if n, err := r.ReadAt(buf, 0); n < HeaderSize {
		return nil, fmt.Errorf("%w: %d of %d header bytes: %w", ErrCorruptHeader, n, HeaderSize, shortRead(err))
	}
	h, err := parseHeader(buf, o.policy)
	if err != nil {
		return nil, err
	}
	needed := h.Class == 6 || h.Class == 4 && h.VRecordLength < 0
	if o.ext == ExtNone && !needed {
		return h, nil
	}
	kw, err := readExtended(r, h, o.ext == ExtStructured)
	if err != nil {
		return nil, err
	}
	h.Keywords = kw
	if err := applyDataKeywords(h, o.policy); err != nil {
		return nil, err
	}
	if o.ext == ExtNone {
		h.Keywords = dataKeywords(h.Keywords)
	}
	return h, nil
}

// dataKeywords keeps only the keywords the data section is decoded with.
func dataKeywords(kw Keywords) Keywords {
	var out Keywords
	for _, k := range kw {
		if k.Tag == keywordSubrecDef || k.Tag == keywordT4Index {
			out = append(out, k)
		}
	}
	return out
}

// readExtended reads and decodes the extended header after checking that
// it lies past the header and the embedded data.
func readExtended(r io.ReaderAt, h *Header, structured bool) (Keywords, error) {
	if h.ExtSize == 0 {
		return nil, nil
	}
	off := int64(h.ExtStart) * BlockSize
	dataEnd := int64(HeaderSize)
	if h.Detached == 0 {
		dataEnd = max(dataEnd, int64(h.DataStart+h.DataSize))
	}
	if off < dataEnd {
		return nil, fmt.Errorf("%w: extended header at byte %d overlaps data ending at %d", ErrCorruptHeader, off, dataEnd)
	}
	buf := make([]byte, h.ExtSize)
	if n, err := r.ReadAt(buf, off); n < len(buf) {
		return nil, fmt.Errorf("%w: extended header has %d of %d bytes: %w", ErrCorruptHeader, n, len(buf), shortRead(err))
	}
	order, err := h.Order()
	if err != nil {
		return nil, err
	}
	return UnpackKeywords(buf, order, structured)
}

// applyDataKeywords moves keywords that describe the data section into
// header fields.
func applyDataKeywords(h *Header, policy StringPolicy) error {
	switch {
	case h.Class == 6:
		v, ok := h.Keywords.Get(keywordSubrecDef)
		if !ok {
			return nil
		}
		def, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: %s of type %T", ErrCorruptKeywords, keywordSubrecDef, v)
		}
		order, err := h.Order()
		if err != nil {
			return err
		}
		subs, err := decodeSubrecDef([]byte(def), order, policy)
		if err != nil {
			return err
		}
		h.Subrecords = subs
	case h.Class == 4 && h.VRecordLength < 0:
		if v, ok := h.Keywords.Get(keywordT4Index); ok {
			if index, ok := int64s(v); ok {
				h.Size = int64(len(index))
			}
		}
	}
	return nil
}

// readData decodes the data section of h from r.
func readData(r io.ReaderAt, h *Header, o *options) (*Header, *Data, error) {
	out, w, err := trim(h, o)
	if err != nil {
		return nil, nil, err
	}
	base := int64(h.DataStart)
	d := &Data{}
	switch h.Class {
	case 1, 2:
		d.Array, err = readArray(r, base, h, w, o)
	case 3, 5, 6:
		d.Rows, err = readRows(r, base, h, w, o)
	case 4:
		d.Records, err = readRecords(r, base, h, w, o)
		if err == nil && h.VRecordLength <= 0 {
			out.Size = int64(len(d.Records))
		}
	}
	if err != nil {
		return nil, nil, err
	}
	return out, d, nil
}

// trim selects the elements a read returns and derives the header that
// describes them. Ranges are 1-based and inclusive; an end of 0 means the
// last element or atom.
func trim(h *Header, o *options) (*Header, window, error) {
	out := h.Clone()
	w := window{count: h.Size, keep: h.APE}
	if !o.hasRange && !o.hasFrames {
		return out, w, nil
	}
	if h.Class == 4 && h.VRecordLength <= 0 {
		return nil, w, fmt.Errorf("%w: class 4 records without a fixed length cannot be trimmed", ErrTrimRange)
	}
	if o.hasRange {
		end := o.end
		if end == 0 {
			end = h.Size
		}
		if o.start < 1 || o.start > h.Size || end < o.start || end > h.Size {
			return nil, w, fmt.Errorf("%w: elements %d..%d of %d", ErrTrimRange, o.start, end, h.Size)
		}
		w.first, w.count = o.start-1, end-o.start+1
		shift := float64(w.first)
		switch h.Class {
		case 1:
			out.XStart += shift * h.XDelta
		case 2:
			out.YStart += shift * h.YDelta
		case 3, 6:
			out.RStart += shift * h.RDelta
		case 4:
			out.VRStart += shift * h.VRDelta
		case 5:
			out.TStart += shift * h.TDelta
		}
	}
	if o.hasFrames {
		if h.Class != 2 {
			return nil, w, fmt.Errorf("%w: frame trimming needs a class 2 file, have class %d", ErrTrimRange, h.Class)
		}
		fend := o.fend
		if fend == 0 {
			fend = h.APE
		}
		if o.fstart < 1 || o.fstart > h.APE || fend < o.fstart || fend > h.APE {
			return nil, w, fmt.Errorf("%w: frame atoms %d..%d of %d", ErrTrimRange, o.fstart, fend, h.APE)
		}
		w.f0, w.keep = o.fstart-1, fend-o.fstart+1
		out.XStart += float64(w.f0) * h.XDelta
		out.Subsize = int32(w.keep)
		if err := out.deriveInternals(); err != nil {
			return nil, w, err
		}
	}
	stride := out.BPE
	if out.Packetized {
		stride += packetHeaderSize
	}
	out.DataSize = float64(w.count) * stride
	out.Size = w.count
	return out, w, nil
}

// shortRead reports a read that returned fewer bytes than asked.
func shortRead(err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
