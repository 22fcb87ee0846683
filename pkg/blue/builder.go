package blue

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/samcharles93/bluefile/internal/logger"
)

// AppendOffset places a new subrecord at the current end of the record.
const AppendOffset = -1

const (
	maxShortName = 4
	maxLongName  = 24
)

// Builder assembles a record-oriented header. Appends mutate a private copy;
// Build hands out an independent Header with its internals derived.
type Builder struct {
	h   *Header
	log logger.Logger
}

// NewBuilder starts from a copy of h. A nil log discards warnings.
func NewBuilder(h *Header, log *slog.Logger) *Builder {
	return &Builder{h: h.Clone(), log: logger.FromSlog(log)}
}

// AddSubrecord appends a class 3 subrecord at offset, or at the end of the
// record for AppendOffset.
func (b *Builder) AddSubrecord(name, format string, offset int) error {
	f, err := b.check(3, name, format, maxShortName, len(b.h.Subrecords), maxType3Subrecords)
	if err != nil {
		return err
	}
	width, err := f.AtomSize()
	if err != nil {
		return err
	}
	off := b.place(name, f, offset)
	b.h.Subrecords = append(b.h.Subrecords, Subrecord{Name: name, Format: f, Offset: off})
	return b.grow(off+width, f.Type())
}

// AddComponent appends a class 5 component after the existing ones.
func (b *Builder) AddComponent(name, format string, typ, units int8) error {
	f, err := b.check(5, name, format, maxShortName, len(b.h.Components), maxType5Components)
	if err != nil {
		return err
	}
	width, err := f.AtomSize()
	if err != nil {
		return err
	}
	off := b.place(name, f, AppendOffset)
	b.h.Components = append(b.h.Components, Component{Name: name, Format: f, Type: typ, Units: units, Offset: off})
	return b.grow(off+width, f.Type())
}

// AddExtendedSubrecord appends a class 6 subrecord. NumElts below 1 is
// stored as 1. Class 6 has no slot ceiling.
func (b *Builder) AddExtendedSubrecord(s Subrecord) error {
	f, err := b.check(6, s.Name, string(s.Format), maxLongName, len(b.h.Subrecords), -1)
	if err != nil {
		return err
	}
	width, err := f.AtomSize()
	if err != nil {
		return err
	}
	s.Format = f
	s.NumElts = max(s.NumElts, 1)
	s.Offset = b.place(s.Name, f, s.Offset)
	b.h.Subrecords = append(b.h.Subrecords, s)
	return b.grow(s.Offset+width*int(s.NumElts), f.Type())
}

// Build returns the completed header.
func (b *Builder) Build() (*Header, error) {
	h := b.h.Clone()
	if err := h.deriveInternals(); err != nil {
		return nil, err
	}
	return h, nil
}

func (b *Builder) check(class int, name, format string, maxName, count, limit int) (Format, error) {
	if got := int(b.h.Type / 1000); got != class {
		return "", fmt.Errorf("%w: %q requires a class %d header, have class %d", ErrInvalidSubrecord, name, class, got)
	}
	if name == "" || len(name) > maxName {
		return "", fmt.Errorf("%w: name %q must be 1-%d characters", ErrInvalidSubrecord, name, maxName)
	}
	if len(format) != 2 {
		return "", fmt.Errorf("%w: %s format %q must be two characters", ErrInvalidSubrecord, name, format)
	}
	f, err := ParseFormat(strings.ToUpper(format))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidSubrecord, name, err)
	}
	if f == FormatMixed {
		return "", fmt.Errorf("%w: %s cannot use %s", ErrInvalidSubrecord, name, f)
	}
	if f.Type() == TypeBit && class != 6 {
		return "", fmt.Errorf("%w: %s: bit-packed fields need an explicit byte layout", ErrInvalidSubrecord, name)
	}
	for _, existing := range b.names() {
		if strings.EqualFold(existing, name) {
			return "", fmt.Errorf("%w: duplicate name %q", ErrInvalidSubrecord, name)
		}
	}
	if limit >= 0 && count >= limit {
		return "", fmt.Errorf("%w: class %d holds at most %d fields", ErrInvalidSubrecord, class, limit)
	}
	return f, nil
}

func (b *Builder) names() []string {
	var out []string
	for _, s := range b.h.Subrecords {
		out = append(out, s.Name)
	}
	for _, c := range b.h.Components {
		out = append(out, c.Name)
	}
	return out
}

// place resolves AppendOffset and warns about unaligned offsets.
func (b *Builder) place(name string, f Format, offset int) int {
	if offset < 0 {
		offset = int(b.h.RecordLength)
	}
	if size := f.Type().Size(); size > 1 && offset%size != 0 {
		b.log.Warn("field is not naturally aligned",
			"name", name, "format", string(f), "offset", offset, "alignment", size)
	}
	return offset
}

// grow extends record_length to end and recomputes the record format.
func (b *Builder) grow(end int, t TypeCode) error {
	b.h.RecordLength = max(b.h.RecordLength, int32(end))
	format := Format([]byte{byte(ModeRecord), byte(t)})
	for _, s := range b.h.Subrecords {
		if s.Format.Type() != t {
			format = FormatMixed
		}
	}
	for _, c := range b.h.Components {
		if c.Format.Type() != t {
			format = FormatMixed
		}
	}
	b.h.Format = format
	return b.h.deriveInternals()
}
