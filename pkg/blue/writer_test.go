package blue

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtendedHeaderModes(t *testing.T) {
	t.Parallel()

	h := NewHeader(1000, "SD")
	h.Keywords = Keywords{
		{Tag: "NOTE", Value: "calibrated"},
		{Tag: "META", Value: map[string]any{"rate": 2.5, "chans": []any{"a", "b"}}},
	}
	path := writeFile(t, h, []float64{1, 2, 3}, WithStructuredKeywords())

	got, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if got.Keywords != nil {
		t.Fatalf("keywords returned without being asked for: %v", got.Keywords)
	}

	got, _ = readFile(t, path, WithExtendedHeader(ExtStructured))
	if diff := cmp.Diff(h.Keywords, got.Keywords); diff != "" {
		t.Fatalf("structured keywords mismatch (-want +got):\n%s", diff)
	}

	got, _ = readFile(t, path, WithExtendedHeader(ExtFlat))
	if got.Keywords[1].Tag != structTableOpen || got.Keywords[1].Value != "META" {
		t.Fatalf("flat read hides structure markers: %v", got.Keywords.Tags())
	}

	if got.ExtStart != 2 || got.ExtSize <= 0 {
		t.Fatalf("ext start %d size %d, want block 2", got.ExtStart, got.ExtSize)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Size()%BlockSize != 0 {
		t.Fatalf("file size %d not padded to %d", st.Size(), BlockSize)
	}
}

func TestWriteHeaderEditsInPlace(t *testing.T) {
	t.Parallel()

	in := ramp(200)
	path := writeFile(t, NewHeader(1000, "SF"), in)

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	h.XStart = 42
	h.Keywords = Keywords{{Tag: "EDITED", Value: int32(1)}}
	h.MainKeywords = Keywords{{Tag: "IO", Value: "bluefile"}}
	if err := WriteHeader(path, h); err != nil {
		t.Fatalf("write header: %v", err)
	}

	got, d := readFile(t, path, WithExtendedHeader(ExtFlat))
	if got.XStart != 42 {
		t.Fatalf("xstart = %v, want 42", got.XStart)
	}
	if diff := cmp.Diff(h.Keywords, got.Keywords); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(h.MainKeywords, got.MainKeywords); diff != "" {
		t.Fatalf("main keywords mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(in, d.Array.Data); diff != "" {
		t.Fatalf("data changed (-want +got):\n%s", diff)
	}
}

func TestWriteHeaderCreatesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "new.tmp")
	if err := WriteHeader(path, NewHeader(1000, "SF")); err != nil {
		t.Fatalf("write header: %v", err)
	}
	h, d := readFile(t, path)
	if h.Size != 0 || d.Array.Len() != 0 {
		t.Fatalf("size %d len %d, want an empty file", h.Size, d.Array.Len())
	}
}

func TestWriteFailureMidData(t *testing.T) {
	t.Parallel()

	src := NewHeader(1000, "SD")
	src.Keywords = Keywords{{Tag: "NOTE", Value: "stale"}}
	in := make([]float64, 1000)
	h, err := ReadHeader(writeFile(t, src, in), WithExtendedHeader(ExtFlat))
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if h.ExtStart == 0 || h.ExtSize == 0 {
		t.Fatalf("source header has no extended header")
	}

	path := filepath.Join(t.TempDir(), "partial.tmp")
	if err := Write(path, h, []any{1.0, 2.0, 3.0, 4.0, "x"}, WithBlockSize(8)); err == nil {
		t.Fatalf("write of a string into SD succeeded")
	}
	got, d := readFile(t, path, WithExtendedHeader(ExtFlat))
	if got.Size != 4 {
		t.Fatalf("size = %d, want the 4 elements written", got.Size)
	}
	if diff := cmp.Diff([]float64{1, 2, 3, 4}, d.Array.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	if got.ExtStart != 0 || got.ExtSize != 0 || len(got.Keywords) != 0 {
		t.Fatalf("ext start %d size %d keywords %v after a failed write", got.ExtStart, got.ExtSize, got.Keywords)
	}
}

func TestWriteBadKeywordKeepsFile(t *testing.T) {
	t.Parallel()

	src := NewHeader(1000, "SF")
	src.Keywords = Keywords{{Tag: "NOTE", Value: "kept"}}
	in := ramp(1000)
	path := writeFile(t, src, in)

	h, err := ReadHeader(path, WithExtendedHeader(ExtFlat))
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	h.Keywords = append(h.Keywords, Keyword{Tag: "BAD", Value: struct{}{}})
	if err := Write(path, h, ramp(1000)); !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("overwrite: err = %v, want ErrUnsupportedValue", err)
	}
	got, d := readFile(t, path, WithExtendedHeader(ExtFlat))
	if diff := cmp.Diff(src.Keywords, got.Keywords); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(in, d.Array.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}

	other := filepath.Join(t.TempDir(), "other.tmp")
	if err := Write(other, h, ramp(1000)); !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("new file: err = %v, want ErrUnsupportedValue", err)
	}
	if _, err := os.Stat(other); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("failed write left a file behind: %v", err)
	}
}

func TestAppend(t *testing.T) {
	t.Parallel()

	h := NewHeader(1000, "SF")
	h.Keywords = Keywords{{Tag: "NOTE", Value: "kept"}}
	in := ramp(10)
	path := writeFile(t, h, in)

	if err := Write(path, nil, []float32{100, 101, 102, 103, 104}, WithAppend()); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, d := readFile(t, path, WithExtendedHeader(ExtFlat))
	want := append(append([]float32(nil), in...), 100, 101, 102, 103, 104)
	if diff := cmp.Diff(want, d.Array.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	if got.Size != 15 {
		t.Fatalf("size = %d, want 15", got.Size)
	}
	if diff := cmp.Diff(h.Keywords, got.Keywords); diff != "" {
		t.Fatalf("keywords lost on append (-want +got):\n%s", diff)
	}

	if err := Write(path, NewHeader(1000, "SD"), []float64{1}, WithAppend()); !errors.Is(err, ErrUnrecognizedFormat) {
		t.Fatalf("mismatched append: err = %v, want ErrUnrecognizedFormat", err)
	}
}

func TestAppendAtStartElement(t *testing.T) {
	t.Parallel()

	in := ramp(10)

	path := writeFile(t, NewHeader(1000, "SF"), in)
	if err := Write(path, nil, []float32{-1, -2}, WithAppend(), WithStartElement(3), WithNoTruncate()); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	_, d := readFile(t, path)
	want := append([]float32(nil), in...)
	want[2], want[3] = -1, -2
	if diff := cmp.Diff(want, d.Array.Data); diff != "" {
		t.Fatalf("no-truncate overwrite mismatch (-want +got):\n%s", diff)
	}

	path = writeFile(t, NewHeader(1000, "SF"), in)
	if err := Write(path, nil, []float32{-1, -2}, WithAppend(), WithStartElement(3)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	_, d = readFile(t, path)
	if diff := cmp.Diff([]float32{in[0], in[1], -1, -2}, d.Array.Data); diff != "" {
		t.Fatalf("truncating overwrite mismatch (-want +got):\n%s", diff)
	}

	if err := Write(path, nil, []float32{1}, WithAppend(), WithStartElement(9)); !errors.Is(err, ErrTrimRange) {
		t.Fatalf("start past end: err = %v, want ErrTrimRange", err)
	}
}

func TestAppendRows(t *testing.T) {
	t.Parallel()

	hdr := extendedHeader(t, AppendOffset)
	path := writeFile(t, hdr, []Values{{"timestamp": 1.0, "samples": []int16{1, 2}}})
	if err := Write(path, nil, []Values{{"timestamp": 2.0, "samples": []int16{3, 4}}}, WithAppend()); err != nil {
		t.Fatalf("append: %v", err)
	}
	_, d := readFile(t, path)
	want := []Values{
		{"timestamp": 1.0, "samples": []int16{1, 2}},
		{"timestamp": 2.0, "samples": []int16{3, 4}},
	}
	if diff := cmp.Diff(want, d.Rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestDetachedSibling(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sig.tmp")
	h := NewHeader(1000, "SF")
	h.Detached = 1
	in := ramp(20)
	if err := Write(path, h, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat header: %v", err)
	}
	if st.Size() != HeaderSize {
		t.Fatalf("header file is %d bytes, want %d", st.Size(), HeaderSize)
	}
	det := filepath.Join(dir, "sig.det")
	st, err = os.Stat(det)
	if err != nil {
		t.Fatalf("stat data: %v", err)
	}
	if st.Size() != 80 {
		t.Fatalf("data file is %d bytes, want 80", st.Size())
	}

	got, d := readFile(t, path)
	if got.DetachName != det || got.DataStart != 0 {
		t.Fatalf("detach name %q data start %v", got.DetachName, got.DataStart)
	}
	if diff := cmp.Diff(in, d.Array.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}

	if err := Write(path, nil, []float32{7}, WithAppend()); err != nil {
		t.Fatalf("append: %v", err)
	}
	_, d = readFile(t, path)
	if d.Array.Len() != 21 {
		t.Fatalf("len after append = %d, want 21", d.Array.Len())
	}
}

func TestDetachedStorageArea(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "area.tmp")
	dataPath := filepath.Join(dir, "elsewhere.bin")
	h := NewHeader(1000, "SF")
	h.Detached = 3

	if err := Write(path, h, ramp(4)); !errors.Is(err, ErrUnresolvedDetachedPath) {
		t.Fatalf("write without a name: err = %v, want ErrUnresolvedDetachedPath", err)
	}
	if err := Write(path, h, ramp(4), WithDetachName(dataPath)); err != nil {
		t.Fatalf("write: %v", err)
	}

	var buf bytes.Buffer
	got, err := ReadHeader(path, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	if err != nil {
		t.Fatalf("unresolved header read must not fail: %v", err)
	}
	if got.DetachName != "" || !strings.Contains(buf.String(), "not resolved") {
		t.Fatalf("detach name %q, log %q", got.DetachName, buf.String())
	}
	if _, _, err := Read(path); !errors.Is(err, ErrUnresolvedDetachedPath) {
		t.Fatalf("read: err = %v, want ErrUnresolvedDetachedPath", err)
	}

	resolver := ResolverFunc(func(headerPath string, detached int32) (string, error) {
		if detached != 3 {
			return "", errors.New("unknown area")
		}
		return dataPath, nil
	})
	_, d, err := Read(path, WithDetachedResolver(resolver))
	if err != nil {
		t.Fatalf("read with resolver: %v", err)
	}
	if diff := cmp.Diff(ramp(4), d.Array.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestSiblingPath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"/data/run.tmp": "/data/run.det",
		"run":           "run.det",
		"a.b/c.prm":     "a.b/c.det",
	}
	for in, want := range tests {
		if got := SiblingPath(in); got != want {
			t.Fatalf("SiblingPath(%q) = %q, want %q", in, got, want)
		}
	}
}
