package main

import (
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/bluefile/internal/logger"
	"github.com/samcharles93/bluefile/pkg/blue"
)

var (
	logLevel   string
	logFormat  string
	debug      bool
	blockSize  int64
	stripNulls bool
	rawStrings bool
	structured bool
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func codecFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "block-size",
			Usage:       "bytes read or written per block",
			Value:       blue.DefaultBlockSize,
			Destination: &blockSize,
		},
		&cli.BoolFlag{
			Name:        "strip-nulls",
			Usage:       "strip trailing NULs from fixed-width strings",
			Value:       true,
			Destination: &stripNulls,
		},
		&cli.BoolFlag{
			Name:        "raw-strings",
			Usage:       "return fixed-width strings untrimmed",
			Destination: &rawStrings,
		},
		&cli.BoolFlag{
			Name:        "structured",
			Usage:       "fold structured keywords into nested values",
			Destination: &structured,
		},
	}
}

func withCommonFlags(flags ...cli.Flag) []cli.Flag {
	out := append(flags, codecFlags()...)
	return append(out, loggingFlags()...)
}

// setup applies the config file to flags the user did not set and returns
// the command logger.
func setup(c *cli.Command) logger.Logger {
	cfg, err := LoadConfig()
	applyConfig(c, cfg)

	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	log := logger.ForFormat(os.Stderr, logFormat, level)
	if err != nil {
		log.Warn("config file ignored", "path", configPath(), "error", err)
	}
	return log
}

// codecOptions returns the read/write options selected by the codec flags.
func codecOptions(log logger.Logger) []blue.Option {
	return []blue.Option{
		blue.WithBlockSize(int(blockSize)),
		blue.WithStringPolicy(blue.StringPolicy{StripTrailingNulls: stripNulls, RawStrings: rawStrings}),
		blue.WithLogger(logger.Slog(log)),
	}
}

func extMode() blue.ExtendedHeaderMode {
	if structured {
		return blue.ExtStructured
	}
	return blue.ExtFlat
}
