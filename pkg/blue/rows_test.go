package blue

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSubrecordRows(t *testing.T) {
	t.Parallel()

	b := NewBuilder(NewHeader(3000, ""), nil)
	if err := b.AddSubrecord("TIME", "SD", 0); err != nil {
		t.Fatalf("add TIME: %v", err)
	}
	if err := b.AddSubrecord("FREQ", "SF", 8); err != nil {
		t.Fatalf("add FREQ: %v", err)
	}
	rows := []Values{
		{"time": 1.5, "freq": float32(10)},
		{"TIME": 2.5, "Freq": 20},
	}
	path := writeFile(t, mustBuild(t, b), rows)

	h, d := readFile(t, path)
	if h.RecordLength != 12 || h.Size != 2 {
		t.Fatalf("record length %d size %d, want 12 2", h.RecordLength, h.Size)
	}
	want := []Values{
		{"time": 1.5, "freq": float32(10)},
		{"time": 2.5, "freq": float32(20)},
	}
	if diff := cmp.Diff(want, d.Rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}

	h, d = readFile(t, path, WithRange(2, 2))
	if diff := cmp.Diff(want[1:], d.Rows); diff != "" {
		t.Fatalf("trimmed rows mismatch (-want +got):\n%s", diff)
	}
	if h.RStart != 1 {
		t.Fatalf("rstart = %v, want 1", h.RStart)
	}
}

func TestComponentRows(t *testing.T) {
	t.Parallel()

	b := NewBuilder(NewHeader(5000, ""), nil)
	if err := b.AddComponent("POS", "VD", 1, 2); err != nil {
		t.Fatalf("add POS: %v", err)
	}
	if err := b.AddComponent("VEL", "VF", 1, 3); err != nil {
		t.Fatalf("add VEL: %v", err)
	}
	hdr := mustBuild(t, b)
	hdr.TStart, hdr.TDelta = 10, 2
	rows := []map[string]any{
		{"pos": []float64{1, 2, 3}, "vel": []float32{4, 5, 6}},
		{"pos": []float64{7, 8, 9}},
		{"pos": []int{0, 0, 1}, "vel": []float32{-1, -2, -3}},
	}
	path := writeFile(t, hdr, rows, WithBlockSize(40))

	h, d := readFile(t, path, WithRange(2, 3), WithBlockSize(40))
	if h.TStart != 12 || h.Size != 2 {
		t.Fatalf("tstart %v size %d, want 12 2", h.TStart, h.Size)
	}
	want := []Values{
		{"pos": []float64{7, 8, 9}, "vel": []float32{0, 0, 0}},
		{"pos": []float64{0, 0, 1}, "vel": []float32{-1, -2, -3}},
	}
	if diff := cmp.Diff(want, d.Rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	wantComps := []Component{
		{Name: "POS", Format: "VD", Type: 1, Units: 2, Offset: 0},
		{Name: "VEL", Format: "VF", Type: 1, Units: 3, Offset: 24},
	}
	if diff := cmp.Diff(wantComps, h.Components); diff != "" {
		t.Fatalf("components mismatch (-want +got):\n%s", diff)
	}
}

func extendedHeader(t *testing.T, samplesOffset int) *Header {
	t.Helper()
	b := NewBuilder(NewHeader(6000, ""), nil)
	if err := b.AddExtendedSubrecord(Subrecord{Name: "TIMESTAMP", Format: "SD", Offset: AppendOffset, MaxVal: 10, Units: 1}); err != nil {
		t.Fatalf("add TIMESTAMP: %v", err)
	}
	if err := b.AddExtendedSubrecord(Subrecord{Name: "SAMPLES", Format: "SI", Offset: samplesOffset, NumElts: 2}); err != nil {
		t.Fatalf("add SAMPLES: %v", err)
	}
	return mustBuild(t, b)
}

func TestExtendedSubrecordRows(t *testing.T) {
	t.Parallel()

	hdr := extendedHeader(t, AppendOffset)
	rows := []Values{
		{"timestamp": 1.0, "samples": []int16{1, 2}},
		{"timestamp": 2.0, "samples": []int16{3, 4}},
	}
	path := writeFile(t, hdr, rows)

	h, d := readFile(t, path)
	if diff := cmp.Diff(hdr.Subrecords, h.Subrecords); diff != "" {
		t.Fatalf("subrecords mismatch (-want +got):\n%s", diff)
	}
	if h.RecordLength != 12 || h.Size != 2 {
		t.Fatalf("record length %d size %d, want 12 2", h.RecordLength, h.Size)
	}
	if diff := cmp.Diff(rows, d.Rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	if _, ok := h.Keywords.Get(keywordSubrecDef); !ok {
		t.Fatalf("%s missing from returned keywords", keywordSubrecDef)
	}
}

func TestExtendedSubrecordOffsetsStoredOrDerived(t *testing.T) {
	t.Parallel()

	// SAMPLES is stored after a four-byte gap; derived offsets ignore the gap.
	hdr := extendedHeader(t, 12)
	if hdr.RecordLength != 16 {
		t.Fatalf("record length = %d, want 16", hdr.RecordLength)
	}
	path := writeFile(t, hdr, []Values{{"timestamp": 3.0, "samples": []int16{7, 8}}})

	_, d := readFile(t, path)
	if diff := cmp.Diff([]int16{7, 8}, d.Rows[0]["samples"]); diff != "" {
		t.Fatalf("stored offsets mismatch (-want +got):\n%s", diff)
	}
	_, d = readFile(t, path, WithDerivedSubrecordOffsets())
	if diff := cmp.Diff([]int16{0, 0}, d.Rows[0]["samples"]); diff != "" {
		t.Fatalf("derived offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestExtendedRowsNeedDefinition(t *testing.T) {
	t.Parallel()

	path := writeFile(t, extendedHeader(t, AppendOffset), []Values{{"timestamp": 1.0}})
	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	h.Subrecords = nil
	h.Keywords = nil
	if _, _, err := readData(nil, h, newOptions(nil)); !errors.Is(err, ErrCorruptHeader) {
		t.Fatalf("err = %v, want ErrCorruptHeader", err)
	}
}

func TestSubrecDefLayout(t *testing.T) {
	t.Parallel()

	hdr := extendedHeader(t, AppendOffset)
	order, _ := hdr.Order()
	b, err := encodeSubrecDef(hdr.Subrecords, order)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(b) != 2*subr6Schema.Size {
		t.Fatalf("encoded %d bytes, want %d", len(b), 2*subr6Schema.Size)
	}
	if got := string(b[subr6Schema.Size+52 : subr6Schema.Size+54]); got != "SI" {
		t.Fatalf("second format = %q, want SI", got)
	}
	if _, err := decodeSubrecDef(b[:50], order, DefaultStringPolicy); !errors.Is(err, ErrCorruptKeywords) {
		t.Fatalf("short definition: err = %v, want ErrCorruptKeywords", err)
	}
}
