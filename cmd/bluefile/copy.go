package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/bluefile/internal/logger"
	"github.com/samcharles93/bluefile/pkg/blue"
)

func copyCmd() *cli.Command {
	var (
		headRep    string
		dataRep    string
		start, end int64
	)

	return &cli.Command{
		Name:      "copy",
		Aliases:   []string{"cp"},
		Usage:     "Re-encode a BLUE file, optionally changing byte order or trimming it",
		ArgsUsage: "SRC DST",
		Flags: withCommonFlags(
			&cli.StringFlag{Name: "head-rep", Usage: "header byte order of the copy (IEEE, EEEI)", Destination: &headRep},
			&cli.StringFlag{Name: "data-rep", Usage: "data byte order of the copy (IEEE, EEEI)", Destination: &dataRep},
			&cli.Int64Flag{Name: "start", Usage: "first element to copy, 1-based", Destination: &start},
			&cli.Int64Flag{Name: "end", Usage: "last element to copy, inclusive (0 = last)", Destination: &end},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			log := setup(c)
			if c.Args().Len() != 2 {
				return cli.Exit("error: SRC and DST are required", 1)
			}
			src, dst := c.Args().Get(0), c.Args().Get(1)

			req := copyRequest{HeadRep: blue.Rep(strings.ToUpper(headRep)), DataRep: blue.Rep(strings.ToUpper(dataRep))}
			if c.IsSet("start") || c.IsSet("end") {
				req.Range, req.Start, req.End = true, max(start, 1), end
			}
			if err := copyFile(src, dst, req, log); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Info("copied", "src", src, "dst", dst)
			return nil
		},
	}
}

type copyRequest struct {
	HeadRep    blue.Rep
	DataRep    blue.Rep
	Range      bool
	Start, End int64
}

// copyFile decodes src and writes it to dst through a temporary sibling
// that is renamed into place. The copy always embeds its data.
func copyFile(src, dst string, req copyRequest, log logger.Logger) (err error) {
	for _, r := range []blue.Rep{req.HeadRep, req.DataRep} {
		if r == "" {
			continue
		}
		if _, err := r.ByteOrder(); err != nil {
			return err
		}
	}

	opts := codecOptions(log)
	opts = append(opts, blue.WithExtendedHeader(extMode()))
	if req.Range {
		opts = append(opts, blue.WithRange(req.Start, req.End))
	}
	h, d, err := blue.Read(src, opts...)
	if err != nil {
		return err
	}
	if req.HeadRep != "" {
		h.HeadRep = req.HeadRep
	}
	if req.DataRep != "" {
		h.DataRep = req.DataRep
	}
	h.Detached, h.DetachName = 0, ""
	h.DataStart = blue.HeaderSize

	tmp := tempPath(dst)
	defer func() {
		if err != nil {
			err = errors.Join(err, removeIfExists(tmp))
		}
	}()
	wopts := codecOptions(log)
	if structured {
		wopts = append(wopts, blue.WithStructuredKeywords())
	}
	if err := blue.Write(tmp, h, d, wopts...); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

// tempPath returns a unique hidden sibling of path.
func tempPath(path string) string {
	dir, base := filepath.Split(path)
	return filepath.Join(dir, "."+base+"."+uuid.NewString()+".tmp")
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
