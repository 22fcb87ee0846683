package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/bluefile/internal/logger"
	"github.com/samcharles93/bluefile/pkg/blue"
)

func writeSource(t *testing.T) (string, []float64) {
	t.Helper()
	h := blue.NewHeader(1000, "SD")
	h.XStart, h.XDelta = 5, 0.25
	h.Keywords = blue.Keywords{{Tag: "NOTE", Value: "source"}, {Tag: "GAIN", Value: int32(3)}}
	data := []float64{1, 2, 3, 4, 5, 6}
	path := filepath.Join(t.TempDir(), "src.tmp")
	if err := blue.Write(path, h, data); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path, data
}

func TestCopyFile(t *testing.T) {
	t.Run("byte order switch keeps values", func(t *testing.T) {
		src, data := writeSource(t)
		dst := filepath.Join(t.TempDir(), "dst.tmp")

		req := copyRequest{HeadRep: blue.RepIEEE, DataRep: blue.RepIEEE}
		if err := copyFile(src, dst, req, logger.Discard()); err != nil {
			t.Fatalf("copyFile returned error: %v", err)
		}

		h, d, err := blue.Read(dst, blue.WithExtendedHeader(blue.ExtFlat))
		if err != nil {
			t.Fatalf("read copy: %v", err)
		}
		if h.HeadRep != blue.RepIEEE || h.DataRep != blue.RepIEEE {
			t.Fatalf("unexpected reps: head %s data %s", h.HeadRep, h.DataRep)
		}
		if diff := cmp.Diff(data, d.Array.Data); diff != "" {
			t.Fatalf("data mismatch (-want +got):\n%s", diff)
		}
		want := blue.Keywords{{Tag: "NOTE", Value: "source"}, {Tag: "GAIN", Value: int32(3)}}
		if diff := cmp.Diff(want, h.Keywords); diff != "" {
			t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("range trims and shifts xstart", func(t *testing.T) {
		src, data := writeSource(t)
		dst := filepath.Join(t.TempDir(), "dst.tmp")

		req := copyRequest{Range: true, Start: 3, End: 4}
		if err := copyFile(src, dst, req, logger.Discard()); err != nil {
			t.Fatalf("copyFile returned error: %v", err)
		}
		h, d, err := blue.Read(dst)
		if err != nil {
			t.Fatalf("read copy: %v", err)
		}
		if h.XStart != 5.5 || h.Size != 2 {
			t.Fatalf("unexpected xstart %v size %d", h.XStart, h.Size)
		}
		if diff := cmp.Diff(data[2:4], d.Array.Data); diff != "" {
			t.Fatalf("data mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("bad rep leaves nothing behind", func(t *testing.T) {
		src, _ := writeSource(t)
		dir := t.TempDir()
		dst := filepath.Join(dir, "dst.tmp")

		if err := copyFile(src, dst, copyRequest{DataRep: "VAX"}, logger.Discard()); err == nil {
			t.Fatalf("expected error for unknown rep")
		}
		ents, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("readdir: %v", err)
		}
		if len(ents) != 0 {
			t.Fatalf("expected empty directory, found %d entries", len(ents))
		}
	})
}

func TestTempPath(t *testing.T) {
	a, b := tempPath("/data/out.tmp"), tempPath("/data/out.tmp")
	if a == b {
		t.Fatalf("temp paths collide: %q", a)
	}
	if filepath.Dir(a) != "/data" || !strings.HasPrefix(filepath.Base(a), ".out.tmp.") || !strings.HasSuffix(a, ".tmp") {
		t.Fatalf("unexpected temp path %q", a)
	}
}
