package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the bluefile configuration file
// (~/.config/bluefile/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	BlockSize          *int64 `yaml:"block_size"`
	StripNulls         *bool  `yaml:"strip_nulls"`
	RawStrings         *bool  `yaml:"raw_strings"`
	StructuredKeywords *bool  `yaml:"structured_keywords"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "bluefile", "config.yaml")
}

type flagSetter interface {
	IsSet(name string) bool
}

// applyConfig applies config file defaults to flag variables the user did
// not set explicitly.
func applyConfig(c flagSetter, cfg Config) {
	if cfg.BlockSize != nil && !c.IsSet("block-size") {
		blockSize = *cfg.BlockSize
	}
	if cfg.StripNulls != nil && !c.IsSet("strip-nulls") {
		stripNulls = *cfg.StripNulls
	}
	if cfg.RawStrings != nil && !c.IsSet("raw-strings") {
		rawStrings = *cfg.RawStrings
	}
	if cfg.StructuredKeywords != nil && !c.IsSet("structured") {
		structured = *cfg.StructuredKeywords
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// LoadConfig reads the config file. A missing file yields a zero Config
// and no error.
func LoadConfig() (Config, error) {
	path := configPath()
	if path == "" {
		return Config{}, nil
	}
	return loadConfigFile(path)
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
