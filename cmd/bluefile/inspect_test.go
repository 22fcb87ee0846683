package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/bluefile/pkg/blue"
)

func TestPrintSummary(t *testing.T) {
	h := blue.NewHeader(2000, "CF")
	h.Subsize = 8
	h.XDelta = 0.5
	h.MainKeywords = blue.Keywords{{Tag: "IO", Value: "x"}}
	s := summarize("frames.tmp", h)

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := printSummary(&buf, s, "json"); err != nil {
			t.Fatalf("printSummary returned error: %v", err)
		}
		var got map[string]any
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got["format"] != "CF" || got["class"] != 2.0 {
			t.Fatalf("unexpected summary: %v", got)
		}
		adj, _ := got["adjunct"].(map[string]any)
		if adj["subsize"] != 8.0 || adj["xdelta"] != 0.5 {
			t.Fatalf("unexpected adjunct: %v", adj)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := printSummary(&buf, s, "yaml"); err != nil {
			t.Fatalf("printSummary returned error: %v", err)
		}
		var got headerSummary
		if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != 2000 || got.MainKeywords["IO"] != "x" {
			t.Fatalf("unexpected summary: %+v", got)
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := printSummary(&buf, s, "text"); err != nil {
			t.Fatalf("printSummary returned error: %v", err)
		}
		for _, want := range []string{"Type:        2000 (class 2) format CF", "subsize", "IO=x"} {
			if !strings.Contains(buf.String(), want) {
				t.Fatalf("output missing %q:\n%s", want, buf.String())
			}
		}
	})
}
