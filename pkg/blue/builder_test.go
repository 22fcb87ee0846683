package blue

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuilderSubrecordsSetLengthAndFormat(t *testing.T) {
	t.Parallel()

	base := NewHeader(3000, "")
	b := NewBuilder(base, nil)
	if err := b.AddSubrecord("TIME", "SD", 0); err != nil {
		t.Fatalf("add TIME: %v", err)
	}
	h := mustBuild(t, b)
	if h.Format != "ND" || h.RecordLength != 8 {
		t.Fatalf("after one field: format %q length %d, want ND 8", h.Format, h.RecordLength)
	}

	if err := b.AddSubrecord("FREQ", "sf", AppendOffset); err != nil {
		t.Fatalf("add FREQ: %v", err)
	}
	h = mustBuild(t, b)
	if h.Format != FormatMixed || h.RecordLength != 12 || h.BPE != 12 {
		t.Fatalf("after two fields: format %q length %d bpe %v, want NH 12 12", h.Format, h.RecordLength, h.BPE)
	}
	want := []Subrecord{{Name: "TIME", Format: "SD", Offset: 0}, {Name: "FREQ", Format: "SF", Offset: 8}}
	if diff := cmp.Diff(want, h.Subrecords); diff != "" {
		t.Fatalf("subrecords mismatch (-want +got):\n%s", diff)
	}
	if len(base.Subrecords) != 0 {
		t.Fatal("builder mutated the header it was given")
	}
}

func TestBuilderRejections(t *testing.T) {
	t.Parallel()

	full := NewBuilder(NewHeader(3000, ""), nil)
	for i := range maxType3Subrecords {
		name := string([]byte{'F', byte('A' + i)})
		if err := full.AddSubrecord(name, "SB", AppendOffset); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}

	tests := []struct {
		name string
		add  func() error
	}{
		{"wrong class", func() error { return NewBuilder(NewHeader(1000, "SF"), nil).AddSubrecord("A", "SF", 0) }},
		{"long name", func() error { return NewBuilder(NewHeader(3000, ""), nil).AddSubrecord("TOOLONG", "SF", 0) }},
		{"one-char format", func() error { return NewBuilder(NewHeader(3000, ""), nil).AddSubrecord("A", "F", 0) }},
		{"unknown format", func() error { return NewBuilder(NewHeader(3000, ""), nil).AddSubrecord("A", "SZ", 0) }},
		{"bits in class 3", func() error { return NewBuilder(NewHeader(3000, ""), nil).AddSubrecord("A", "SP", 0) }},
		{"bits in class 5", func() error { return NewBuilder(NewHeader(5000, ""), nil).AddComponent("A", "8P", 0, 0) }},
		{"duplicate", func() error {
			b := NewBuilder(NewHeader(5000, ""), nil)
			if err := b.AddComponent("POS", "VD", 0, 0); err != nil {
				return err
			}
			return b.AddComponent("pos", "VF", 0, 0)
		}},
		{"slot ceiling", func() error { return full.AddSubrecord("ZZ", "SB", AppendOffset) }},
	}
	for _, tt := range tests {
		if err := tt.add(); !errors.Is(err, ErrInvalidSubrecord) {
			t.Fatalf("%s: err = %v, want ErrInvalidSubrecord", tt.name, err)
		}
	}
}

func TestBuilderExtendedSubrecordsHaveNoCeiling(t *testing.T) {
	t.Parallel()

	b := NewBuilder(NewHeader(6000, ""), nil)
	for i := range 40 {
		s := Subrecord{Name: "FIELD_" + string([]byte{byte('A' + i/26), byte('A' + i%26)}), Format: "SL", Offset: AppendOffset}
		if err := b.AddExtendedSubrecord(s); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	h := mustBuild(t, b)
	if len(h.Subrecords) != 40 || h.RecordLength != 160 || h.Format != "NL" {
		t.Fatalf("got %d subrecords length %d format %q", len(h.Subrecords), h.RecordLength, h.Format)
	}
	if h.Subrecords[0].NumElts != 1 {
		t.Fatalf("NumElts = %d, want 1", h.Subrecords[0].NumElts)
	}
}

func TestBuilderWarnsOnUnalignedField(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	b := NewBuilder(NewHeader(3000, ""), slog.New(slog.NewTextHandler(&buf, nil)))
	if err := b.AddSubrecord("FLAG", "SB", 0); err != nil {
		t.Fatalf("add FLAG: %v", err)
	}
	if err := b.AddSubrecord("GAIN", "SD", AppendOffset); err != nil {
		t.Fatalf("unaligned field must not fail: %v", err)
	}
	if !strings.Contains(buf.String(), "not naturally aligned") || !strings.Contains(buf.String(), "name=GAIN") {
		t.Fatalf("expected alignment warning for GAIN, got: %s", buf.String())
	}
	h := mustBuild(t, b)
	if h.RecordLength != 9 {
		t.Fatalf("record length = %d, want 9", h.RecordLength)
	}
}
