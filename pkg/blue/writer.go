package blue

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// WriteHeader writes h to path, replacing its extended header with
// h.Keywords. An existing file is edited in place and its data bytes are
// left alone; otherwise a new file holding only the header is created.
func WriteHeader(path string, h *Header, opts ...Option) (err error) {
	o := newOptions(opts)
	hdr, err := prepareHeader(h)
	if err != nil {
		return err
	}
	ext, err := packExtended(hdr, o)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close()) }()
	unlock, err := lockFile(f, true)
	if err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer unlock()

	end, err := placeExtended(f, hdr, ext)
	if err != nil {
		return err
	}
	if err := writeMainHeader(f, hdr); err != nil {
		return err
	}
	return finishFile(f, end, o)
}

// Write writes h and data to path. Data is an *Array or slice for classes
// 1 and 2, []Values or []map[string]any for 3, 5 and 6, and []Keywords for
// 4; a *Data is unpacked by class.
//
// With WithAppend the data is added to the existing file at path and h may
// be nil; a non-nil h must match the file's type and format. The header's
// offset and size fields are patched on every exit path, so a failed write
// leaves a header that describes the bytes actually written.
func Write(path string, h *Header, data any, opts ...Option) error {
	o := newOptions(opts)
	if o.appendData {
		return appendFile(path, h, data, o)
	}
	if h == nil {
		return fmt.Errorf("%w: nil header", ErrCorruptHeader)
	}
	return createFile(path, h, data, o)
}

func createFile(path string, h *Header, data any, o *options) error {
	hdr, err := prepareHeader(h)
	if err != nil {
		return err
	}
	// Keywords that cannot be encoded fail before anything is written.
	// Class 4 indexes are added while writing, so the extended header is
	// packed again once the data is down.
	if _, err := packExtended(hdr, o); err != nil {
		return err
	}
	hdr.DataSize = 0
	hdr.ExtStart, hdr.ExtSize = 0, 0
	if hdr.Detached != 0 {
		dataPath, err := detachedPath(path, hdr, o)
		if err != nil {
			return err
		}
		hdr.DetachName = dataPath
		hdr.DataStart = 0
		n, err := writeDetached(dataPath, 0, hdr, data, o)
		if err != nil {
			return err
		}
		hdr.DataSize = float64(n)
	} else if hdr.DataStart < HeaderSize {
		hdr.DataStart = HeaderSize
	}

	f, unlock, err := openLocked(path, os.O_RDWR|os.O_CREATE)
	if err != nil {
		return err
	}
	if err := writeMainHeader(f, hdr); err != nil {
		return errors.Join(err, unlock(), f.Close())
	}
	// From here on the header exists, so the cleanup patches it to match
	// whatever reached the file.
	err = func() (err error) {
		defer func() {
			err = errors.Join(err, patchOffsets(f, hdr), unlock(), f.Close())
		}()
		if hdr.Detached == 0 {
			n, err := writeData(f, int64(hdr.DataStart), 0, hdr, data, o)
			hdr.DataSize = float64(n)
			if err != nil {
				return err
			}
		}
		ext, err := packExtended(hdr, o)
		if err != nil {
			return err
		}
		end, err := placeExtended(f, hdr, ext)
		if err != nil {
			return err
		}
		if err := writeMainHeader(f, hdr); err != nil {
			return err
		}
		return finishFile(f, end, o)
	}()
	return err
}

// appendFile adds data after the last element of an existing file, or over
// it from WithStartElement. The extended header is carried over verbatim
// and only the offset and size fields of the main header are rewritten.
//
// Detached data is written with the header file closed, so at most one
// file lock is held at a time.
func appendFile(path string, h *Header, data any, o *options) error {
	f, unlock, err := openLocked(path, os.O_RDWR)
	if err != nil {
		return err
	}
	hdr, ext, at, err := readAppendTarget(f, h, o)
	if err != nil {
		return errors.Join(err, unlock(), f.Close())
	}

	if hdr.Detached == 0 {
		n, werr := writeData(f, int64(hdr.DataStart), at, hdr, data, o)
		setAppendSize(hdr, at, n, o)
		return errors.Join(finishAppend(f, hdr, ext, werr, o), unlock(), f.Close())
	}

	if err := errors.Join(unlock(), f.Close()); err != nil {
		return err
	}
	if err := resolveDetached(path, hdr, o); err != nil {
		return err
	}
	n, werr := writeDetached(hdr.DetachName, at, hdr, data, o)
	if n == 0 && werr != nil {
		return werr
	}
	setAppendSize(hdr, at, n, o)
	f, unlock, err = openLocked(path, os.O_RDWR)
	if err != nil {
		return errors.Join(werr, err)
	}
	return errors.Join(finishAppend(f, hdr, ext, werr, o), unlock(), f.Close())
}

func openLocked(path string, flag int) (*os.File, func() error, error) {
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, nil, err
	}
	unlock, err := lockFile(f, true)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("lock %s: %w", path, err), f.Close())
	}
	return f, unlock, nil
}

// readAppendTarget reads the header being appended to and checks that h,
// when given, describes the same kind of data.
func readAppendTarget(f *os.File, h *Header, o *options) (*Header, []byte, int64, error) {
	hdr, ext, err := readForAppend(f, o)
	if err != nil {
		return nil, nil, 0, err
	}
	if h != nil && (h.Type != hdr.Type || h.Format != hdr.Format) {
		return nil, nil, 0, fmt.Errorf("%w: appending type %d/%s to file of type %d/%s",
			ErrUnrecognizedFormat, h.Type, h.Format, hdr.Type, hdr.Format)
	}
	if hdr.Class == 4 && hdr.VRecordLength < 0 {
		return nil, nil, 0, errAppendIndexed
	}
	at, err := appendOffset(hdr, o)
	if err != nil {
		return nil, nil, 0, err
	}
	return hdr, ext, at, nil
}

func setAppendSize(h *Header, at, n int64, o *options) {
	size := at + n
	if o.noTruncate {
		size = max(size, int64(h.DataSize))
	}
	h.DataSize = float64(size)
}

// finishAppend puts the extended header back past the new data end and
// patches the offsets. It runs after a failed write too, since the data
// may already have overwritten the old extended header.
func finishAppend(f *os.File, h *Header, ext []byte, werr error, o *options) error {
	end, err := placeExtended(f, h, ext)
	if err != nil {
		h.ExtStart, h.ExtSize = 0, 0
	}
	err = errors.Join(werr, err, patchOffsets(f, h))
	if err != nil {
		return err
	}
	return finishFile(f, end, o)
}

// readForAppend reads the header and the raw extended header bytes, which
// the new data may overwrite.
func readForAppend(f *os.File, o *options) (*Header, []byte, error) {
	hdr, err := readHeader(f, &options{policy: o.policy, log: o.log})
	if err != nil {
		return nil, nil, err
	}
	if hdr.ExtSize == 0 {
		return hdr, nil, nil
	}
	ext := make([]byte, hdr.ExtSize)
	if n, err := f.ReadAt(ext, int64(hdr.ExtStart)*BlockSize); n < len(ext) {
		return nil, nil, fmt.Errorf("%w: extended header has %d of %d bytes: %w", ErrCorruptHeader, n, len(ext), shortRead(err))
	}
	return hdr, ext, nil
}

// appendOffset returns the byte offset within the data section where
// appended data starts.
func appendOffset(h *Header, o *options) (int64, error) {
	if o.atElement == 0 {
		return int64(h.DataSize), nil
	}
	if h.BPE <= 0 || h.Packetized {
		return 0, fmt.Errorf("%w: start element on a file without fixed-size elements", errors.ErrUnsupported)
	}
	if o.atElement < 1 || o.atElement > h.Size+1 {
		return 0, fmt.Errorf("%w: start element %d of %d", ErrTrimRange, o.atElement, h.Size)
	}
	return int64(float64(o.atElement-1) * h.BPE), nil
}

// writeDetached writes data into the detached data file at byte at.
func writeDetached(path string, at int64, h *Header, data any, o *options) (n int64, err error) {
	flag := os.O_RDWR | os.O_CREATE
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return 0, err
	}
	defer func() { err = errors.Join(err, f.Close()) }()
	unlock, err := lockFile(f, true)
	if err != nil {
		return 0, fmt.Errorf("lock %s: %w", path, err)
	}
	defer unlock()
	n, err = writeData(f, 0, at, h, data, o)
	if err != nil {
		return n, err
	}
	if !o.noTruncate {
		err = f.Truncate(at + n)
	}
	return n, err
}

// writeData dispatches to the class codec. base is the byte offset of the
// data section and at the offset within it.
func writeData(w io.WriterAt, base, at int64, h *Header, data any, o *options) (int64, error) {
	if d, ok := data.(*Data); ok {
		switch h.Class {
		case 1, 2:
			data = d.Array
		case 4:
			data = d.Records
		default:
			data = d.Rows
		}
	}
	switch h.Class {
	case 1, 2:
		return writeArray(w, base+at, h, data, o)
	case 3, 5, 6:
		return writeRows(w, base+at, h, data, o)
	default:
		return writeRecords(w, base, at, h, data, o)
	}
}

// prepareHeader copies h for writing and stores descriptors that live in
// the extended header.
func prepareHeader(h *Header) (*Header, error) {
	hdr := h.Clone()
	if hdr.Version == "" {
		hdr.Version = MagicBLUE
	}
	if err := hdr.deriveInternals(); err != nil {
		return nil, err
	}
	if hdr.Class == 6 {
		order, err := hdr.Order()
		if err != nil {
			return nil, err
		}
		def, err := encodeSubrecDef(hdr.Subrecords, order)
		if err != nil {
			return nil, err
		}
		hdr.Keywords.Set(keywordSubrecDef, string(def))
	}
	return hdr, nil
}

func packExtended(h *Header, o *options) ([]byte, error) {
	order, err := h.Order()
	if err != nil {
		return nil, err
	}
	return PackKeywords(h.Keywords, order, o.structured)
}

// placeExtended writes ext at the first block boundary after the data,
// zero-padded to a whole block, records its position in h, and returns
// the end of the file.
func placeExtended(w io.WriterAt, h *Header, ext []byte) (int64, error) {
	dataEnd := int64(HeaderSize)
	if h.Detached == 0 {
		dataEnd = max(dataEnd, int64(h.DataStart+h.DataSize))
	}
	start := (dataEnd + BlockSize - 1) / BlockSize
	if start > math.MaxInt32 || len(ext) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: extended header at block %d", ErrCorruptHeader, start)
	}
	h.ExtStart, h.ExtSize = int32(start), int32(len(ext))
	if len(ext) == 0 {
		return dataEnd, nil
	}
	padded := make([]byte, (len(ext)+BlockSize-1)/BlockSize*BlockSize)
	copy(padded, ext)
	if _, err := w.WriteAt(padded, start*BlockSize); err != nil {
		return 0, err
	}
	return start*BlockSize + int64(len(padded)), nil
}

func writeMainHeader(w io.WriterAt, h *Header) error {
	b, err := packHeader(h)
	if err != nil {
		return err
	}
	_, err = w.WriteAt(b, 0)
	return err
}

// patchOffsets rewrites ext_start, ext_size, data_start and data_size.
func patchOffsets(w io.WriterAt, h *Header) error {
	order, err := h.Order()
	if err != nil {
		return err
	}
	var b [dataStartOffset - extStartOffset + 16]byte
	order.PutUint32(b[0:], uint32(h.ExtStart))
	order.PutUint32(b[4:], uint32(h.ExtSize))
	putFloat64(b[8:], h.DataStart, order)
	putFloat64(b[16:], h.DataSize, order)
	_, err = w.WriteAt(b[:], extStartOffset)
	return err
}

func putFloat64(b []byte, f float64, order binary.ByteOrder) {
	order.PutUint64(b, math.Float64bits(f))
}

func finishFile(f *os.File, end int64, o *options) error {
	if o.noTruncate {
		return nil
	}
	return f.Truncate(end)
}
