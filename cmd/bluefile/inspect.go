package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/bluefile/pkg/blue"
)

// headerSummary is the printable view of a header.
type headerSummary struct {
	Path         string            `json:"path" yaml:"path"`
	Version      string            `json:"version" yaml:"version"`
	HeadRep      string            `json:"head_rep" yaml:"head_rep"`
	DataRep      string            `json:"data_rep" yaml:"data_rep"`
	Detached     int32             `json:"detached" yaml:"detached"`
	DetachName   string            `json:"detach_name,omitempty" yaml:"detach_name,omitempty"`
	Type         int32             `json:"type" yaml:"type"`
	Class        int               `json:"class" yaml:"class"`
	Format       string            `json:"format" yaml:"format"`
	DataStart    float64           `json:"data_start" yaml:"data_start"`
	DataSize     float64           `json:"data_size" yaml:"data_size"`
	ExtStart     int32             `json:"ext_start" yaml:"ext_start"`
	ExtSize      int32             `json:"ext_size" yaml:"ext_size"`
	Size         int64             `json:"size" yaml:"size"`
	BPE          float64           `json:"bytes_per_element" yaml:"bytes_per_element"`
	APE          int               `json:"atoms_per_element" yaml:"atoms_per_element"`
	Packetized   bool              `json:"packetized,omitempty" yaml:"packetized,omitempty"`
	Adjunct      map[string]any    `json:"adjunct" yaml:"adjunct"`
	Fields       []fieldSummary    `json:"fields,omitempty" yaml:"fields,omitempty"`
	MainKeywords map[string]string `json:"main_keywords,omitempty" yaml:"main_keywords,omitempty"`
	Keywords     int               `json:"keywords" yaml:"keywords"`
}

// fieldSummary describes one subrecord or component.
type fieldSummary struct {
	Name    string `json:"name" yaml:"name"`
	Format  string `json:"format" yaml:"format"`
	Offset  int    `json:"offset" yaml:"offset"`
	NumElts int32  `json:"num_elts,omitempty" yaml:"num_elts,omitempty"`
}

func inspectCmd() *cli.Command {
	var format string

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the header of a BLUE file",
		ArgsUsage: "FILE",
		Flags: withCommonFlags(
			&cli.StringFlag{
				Name:        "format",
				Aliases:     []string{"f"},
				Usage:       "output format (text, json, yaml)",
				Value:       "text",
				Destination: &format,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			log := setup(c)
			path := c.Args().First()
			if path == "" {
				return cli.Exit("error: FILE is required", 1)
			}
			h, err := blue.ReadHeader(path, append(codecOptions(log), blue.WithExtendedHeader(extMode()))...)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			return printSummary(os.Stdout, summarize(path, h), format)
		},
	}
}

func summarize(path string, h *blue.Header) headerSummary {
	s := headerSummary{
		Path:       path,
		Version:    h.Version,
		HeadRep:    string(h.HeadRep),
		DataRep:    string(h.DataRep),
		Detached:   h.Detached,
		DetachName: h.DetachName,
		Type:       h.Type,
		Class:      h.Class,
		Format:     string(h.Format),
		DataStart:  h.DataStart,
		DataSize:   h.DataSize,
		ExtStart:   h.ExtStart,
		ExtSize:    h.ExtSize,
		Size:       h.Size,
		BPE:        h.BPE,
		APE:        h.APE,
		Packetized: h.Packetized,
		Adjunct:    adjunctFields(h),
		Keywords:   len(h.Keywords),
	}
	for _, sr := range h.Subrecords {
		s.Fields = append(s.Fields, fieldSummary{Name: sr.Name, Format: string(sr.Format), Offset: sr.Offset, NumElts: sr.NumElts})
	}
	for _, c := range h.Components {
		s.Fields = append(s.Fields, fieldSummary{Name: c.Name, Format: string(c.Format), Offset: c.Offset})
	}
	if len(h.MainKeywords) > 0 {
		s.MainKeywords = make(map[string]string, len(h.MainKeywords))
		for _, kw := range h.MainKeywords {
			s.MainKeywords[kw.Tag] = fmt.Sprint(kw.Value)
		}
	}
	return s
}

// adjunctFields returns the adjunct fields stored for the header's class.
func adjunctFields(h *blue.Header) map[string]any {
	switch h.Class {
	case 1:
		return map[string]any{"xstart": h.XStart, "xdelta": h.XDelta, "xunits": h.XUnits}
	case 2:
		return map[string]any{
			"xstart": h.XStart, "xdelta": h.XDelta, "xunits": h.XUnits, "subsize": h.Subsize,
			"ystart": h.YStart, "ydelta": h.YDelta, "yunits": h.YUnits,
		}
	case 3, 6:
		return map[string]any{
			"rstart": h.RStart, "rdelta": h.RDelta, "runits": h.RUnits,
			"r2start": h.R2Start, "r2delta": h.R2Delta, "r2units": h.R2Units,
			"record_length": h.RecordLength,
		}
	case 4:
		return map[string]any{
			"vrstart": h.VRStart, "vrdelta": h.VRDelta, "vrunits": h.VRUnits,
			"nrkey": h.NRKey, "vrecord_length": h.VRecordLength,
		}
	case 5:
		return map[string]any{
			"tstart": h.TStart, "tdelta": h.TDelta, "tunits": h.TUnits,
			"t2start": h.T2Start, "t2delta": h.T2Delta, "t2units": h.T2Units,
			"record_length": h.RecordLength,
		}
	}
	return nil
}

func printSummary(w io.Writer, s headerSummary, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	case "text":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	fmt.Fprintf(w, "File:        %s\n", s.Path)
	fmt.Fprintf(w, "Version:     %s (head %s, data %s)\n", s.Version, s.HeadRep, s.DataRep)
	fmt.Fprintf(w, "Type:        %d (class %d) format %s\n", s.Type, s.Class, s.Format)
	fmt.Fprintf(w, "Data:        start %g size %g\n", s.DataStart, s.DataSize)
	if s.Detached != 0 {
		name := s.DetachName
		if name == "" {
			name = "unresolved"
		}
		fmt.Fprintf(w, "Detached:    %d (%s)\n", s.Detached, name)
	}
	fmt.Fprintf(w, "Elements:    %d x %g bytes", s.Size, s.BPE)
	if s.Packetized {
		fmt.Fprint(w, " packetized")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Extended:    block %d, %d bytes, %d keywords\n", s.ExtStart, s.ExtSize, s.Keywords)

	keys := sortedKeys(s.Adjunct)
	if len(keys) > 0 {
		fmt.Fprintln(w, "Adjunct:")
		for _, k := range keys {
			fmt.Fprintf(w, "  %-15s %v\n", k, s.Adjunct[k])
		}
	}
	if len(s.Fields) > 0 {
		fmt.Fprintln(w, "Fields:")
		for _, f := range s.Fields {
			line := fmt.Sprintf("  %-8s %s @%d", f.Name, f.Format, f.Offset)
			if f.NumElts > 1 {
				line += fmt.Sprintf(" x%d", f.NumElts)
			}
			fmt.Fprintln(w, strings.TrimRight(line, " "))
		}
	}
	if len(s.MainKeywords) > 0 {
		fmt.Fprintln(w, "Main keywords:")
		for _, k := range sortedKeys(s.MainKeywords) {
			fmt.Fprintf(w, "  %s=%s\n", k, s.MainKeywords[k])
		}
	}
	return nil
}
