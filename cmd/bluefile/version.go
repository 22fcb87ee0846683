package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/samcharles93/bluefile/internal/version"
	"github.com/samcharles93/bluefile/pkg/blue"

	"github.com/urfave/cli/v3"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information and the supported file layouts",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			printVersion(os.Stdout, version.Resolve())
			return nil
		},
	}
}

func printVersion(w io.Writer, info version.Info) {
	fmt.Fprintf(w, "bluefile:   %s\n", info.Version)
	if info.Commit != "" {
		fmt.Fprintf(w, "commit:     %s\n", info.Commit)
	}
	if info.BuildTime != "" {
		fmt.Fprintf(w, "build time: %s\n", info.BuildTime)
	}
	fmt.Fprintf(w, "header:     %s (%d bytes, extended in %d-byte blocks)\n", blue.MagicBLUE, blue.HeaderSize, blue.BlockSize)
	fmt.Fprintf(w, "byte order: %s, %s (writes %s)\n", blue.RepIEEE, blue.RepEEEI, blue.NativeRep)
	fmt.Fprintln(w, "classes:    1 2 3 4 5 6")
}
