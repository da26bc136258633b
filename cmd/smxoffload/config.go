package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the config file (~/.config/smxoffload/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	// Link
	Port    string         `yaml:"port"`
	Baud    *int64         `yaml:"baud"`
	Timeout *time.Duration `yaml:"timeout"`
	Settle  *time.Duration `yaml:"settle"`

	// Offload
	PadValue *float64 `yaml:"pad_value"`
	MaxRows  *int64   `yaml:"max_rows"`
	Strict   *bool    `yaml:"strict"`
	Fallback *bool    `yaml:"fallback"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "smxoffload", "config.yaml")
}

// LoadConfig reads the config file at path, or the default location when
// path is empty. A missing default file yields a zero Config; a missing
// explicit file or a malformed one is an error.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = configPath()
		if path == "" {
			return Config{}, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// applyLoggingConfig applies config defaults to the root logging flags.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyPortConfig applies config defaults to the link flags when the
// corresponding flag (or its env var) was not set.
func applyPortConfig(c *cli.Command, cfg Config) {
	if cfg.Port != "" && !c.IsSet("port") {
		portPath = cfg.Port
	}
	if cfg.Baud != nil && !c.IsSet("baud") {
		baud = *cfg.Baud
	}
	if cfg.Timeout != nil && !c.IsSet("timeout") {
		timeout = *cfg.Timeout
	}
	if cfg.Settle != nil && !c.IsSet("settle") {
		settle = *cfg.Settle
	}
}

// applyOffloadConfig applies config defaults to the offload flags.
func applyOffloadConfig(c *cli.Command, cfg Config) {
	applyPortConfig(c, cfg)
	if cfg.PadValue != nil && !c.IsSet("pad") {
		padValue = *cfg.PadValue
	}
	if cfg.MaxRows != nil && !c.IsSet("max-rows") {
		maxRows = *cfg.MaxRows
	}
	if cfg.Strict != nil && !c.IsSet("strict") {
		strict = *cfg.Strict
	}
	if cfg.Fallback != nil && !c.IsSet("fallback") {
		fallback = *cfg.Fallback
	}
}

// applyServeConfig applies config defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	applyOffloadConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
