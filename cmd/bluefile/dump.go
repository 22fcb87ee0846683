package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/bluefile/pkg/blue"
)

func dumpCmd() *cli.Command {
	var (
		format     string
		start, end int64
		fstart     int64
		fend       int64
	)

	return &cli.Command{
		Name:      "dump",
		Usage:     "Print the data section of a BLUE file",
		ArgsUsage: "FILE",
		Flags: withCommonFlags(
			&cli.StringFlag{
				Name:        "format",
				Aliases:     []string{"f"},
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &format,
			},
			&cli.Int64Flag{Name: "start", Usage: "first element, 1-based", Destination: &start},
			&cli.Int64Flag{Name: "end", Usage: "last element, inclusive (0 = last)", Destination: &end},
			&cli.Int64Flag{Name: "fstart", Usage: "first atom of each class 2 frame, 1-based", Destination: &fstart},
			&cli.Int64Flag{Name: "fend", Usage: "last atom of each class 2 frame (0 = last)", Destination: &fend},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			log := setup(c)
			path := c.Args().First()
			if path == "" {
				return cli.Exit("error: FILE is required", 1)
			}
			opts := codecOptions(log)
			if c.IsSet("start") || c.IsSet("end") {
				opts = append(opts, blue.WithRange(max(start, 1), end))
			}
			if c.IsSet("fstart") || c.IsSet("fend") {
				opts = append(opts, blue.WithFrames(int(max(fstart, 1)), int(fend)))
			}
			if structured {
				opts = append(opts, blue.WithStructuredKeywords())
			}
			h, d, err := blue.Read(path, opts...)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			return printData(os.Stdout, h, d, format)
		},
	}
}

// dumpJSON is the JSON form of a dump.
type dumpJSON struct {
	Type    int32            `json:"type"`
	Format  string           `json:"format"`
	Start   float64          `json:"start"`
	Delta   float64          `json:"delta"`
	Shape   []int            `json:"shape,omitempty"`
	Data    any              `json:"data,omitempty"`
	Rows    []blue.Values    `json:"rows,omitempty"`
	Records [][]keywordEntry `json:"records,omitempty"`
}

// abscissa returns the start and delta of the element axis.
func abscissa(h *blue.Header) (float64, float64) {
	switch h.Class {
	case 1:
		return h.XStart, h.XDelta
	case 2:
		return h.YStart, h.YDelta
	case 3, 6:
		return h.RStart, h.RDelta
	case 4:
		return h.VRStart, h.VRDelta
	case 5:
		return h.TStart, h.TDelta
	}
	return 0, 1
}

func printData(w io.Writer, h *blue.Header, d *blue.Data, format string) error {
	start, delta := abscissa(h)
	switch format {
	case "json":
		out := dumpJSON{Type: h.Type, Format: string(h.Format), Start: start, Delta: delta, Rows: d.Rows}
		if d.Array != nil {
			out.Shape, out.Data = d.Array.Shape, d.Array.Data
		}
		for _, rec := range d.Records {
			entries := make([]keywordEntry, len(rec))
			for i, k := range rec {
				entries[i] = keywordEntry{Tag: k.Tag, Value: k.Value}
			}
			out.Records = append(out.Records, entries)
		}
		return json.NewEncoder(w).Encode(out)
	case "text":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	at := func(i int) float64 { return start + float64(i)*delta }
	switch {
	case d.Array != nil:
		for i := range d.Array.Len() {
			fmt.Fprintf(w, "%-14g %v\n", at(i), d.Array.Frame(i))
		}
	case d.Rows != nil:
		for i, row := range d.Rows {
			fmt.Fprintf(w, "%-14g", at(i))
			for _, k := range sortedKeys(row) {
				fmt.Fprintf(w, " %s=%v", k, row[k])
			}
			fmt.Fprintln(w)
		}
	default:
		for i, rec := range d.Records {
			fmt.Fprintf(w, "%-14g", at(i))
			for _, k := range rec {
				fmt.Fprintf(w, " %s=%s", k.Tag, formatValue(k.Value))
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}
