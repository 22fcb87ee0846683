package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/bluefile/pkg/blue"
)

type keywordEntry struct {
	Tag   string `json:"tag"`
	Value any    `json:"value"`
}

func keywordsCmd() *cli.Command {
	var format string

	return &cli.Command{
		Name:      "keywords",
		Aliases:   []string{"kw"},
		Usage:     "List or edit the extended header keywords of a BLUE file",
		ArgsUsage: "FILE",
		Flags: withCommonFlags(
			&cli.StringFlag{
				Name:        "format",
				Aliases:     []string{"f"},
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &format,
			},
			&cli.StringSliceFlag{
				Name:  "set",
				Usage: "set TAG=VALUE, replacing the first keyword with that tag",
			},
			&cli.StringSliceFlag{
				Name:  "delete",
				Usage: "delete every keyword with this tag",
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			log := setup(c)
			path := c.Args().First()
			if path == "" {
				return cli.Exit("error: FILE is required", 1)
			}
			opts := append(codecOptions(log), blue.WithExtendedHeader(extMode()))
			h, err := blue.ReadHeader(path, opts...)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			sets, dels := c.StringSlice("set"), c.StringSlice("delete")
			if len(sets) == 0 && len(dels) == 0 {
				return printKeywords(os.Stdout, h.Keywords, format)
			}
			if err := editKeywords(&h.Keywords, sets, dels); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if structured {
				opts = append(opts, blue.WithStructuredKeywords())
			}
			if err := blue.WriteHeader(path, h, opts...); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Info("keywords updated", "path", path, "set", len(sets), "deleted", len(dels))
			return nil
		},
	}
}

func editKeywords(kw *blue.Keywords, sets, dels []string) error {
	for _, tag := range dels {
		kw.Delete(tag)
	}
	for _, s := range sets {
		tag, value, ok := strings.Cut(s, "=")
		if !ok || tag == "" {
			return fmt.Errorf("--set %q: want TAG=VALUE", s)
		}
		kw.Set(tag, parseValue(value))
	}
	return nil
}

// parseValue types a command-line keyword value: integers become int32 or
// int64, other numbers float64 and everything else a string.
func parseValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		if int64(int32(i)) == i {
			return int32(i)
		}
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func printKeywords(w io.Writer, kw blue.Keywords, format string) error {
	switch format {
	case "json":
		entries := make([]keywordEntry, len(kw))
		for i, k := range kw {
			entries[i] = keywordEntry{Tag: k.Tag, Value: k.Value}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "text":
		for _, k := range kw {
			fmt.Fprintf(w, "%s=%s\n", k.Tag, formatValue(k.Value))
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// formatValue renders nested keyword values on one line.
func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case map[string]any:
		parts := make([]string, 0, len(v))
		for _, k := range sortedKeys(v) {
			parts = append(parts, k+": "+formatValue(v[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = formatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case blue.Keywords:
		parts := make([]string, len(v))
		for i, k := range v {
			parts[i] = k.Tag + ": " + formatValue(k.Value)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		return fmt.Sprint(v)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
