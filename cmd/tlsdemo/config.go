package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/kolkov/threadlocal/threadlocal"
)

// Config controls one demo run.
type Config struct {
	Workers    int    `koanf:"workers"`
	Iterations int    `koanf:"iterations"`
	Backend    string `koanf:"backend"`
	Pin        bool   `koanf:"pin"`
}

var (
	errUnsupportedFormat = errors.New("unsupported config format")
	errInvalidConfig     = errors.New("invalid config")
)

func defaultConfig() Config {
	return Config{
		Workers:    4,
		Iterations: 20,
		Backend:    threadlocal.KindNative.String(),
	}
}

// loadConfigFile overlays the YAML or JSON file at path onto cfg.
func loadConfigFile(path string, cfg *Config) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("%w: %s", errUnsupportedFormat, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return loadConfigBytes(data, parser, cfg)
}

func loadConfigBytes(data []byte, parser koanf.Parser, cfg *Config) error {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// validate checks cfg and returns the selected backend.
func (c Config) validate() (threadlocal.Kind, error) {
	if c.Workers < 1 {
		return 0, fmt.Errorf("%w: workers must be at least 1, got %d", errInvalidConfig, c.Workers)
	}
	if c.Iterations < 0 {
		return 0, fmt.Errorf("%w: iterations must not be negative, got %d", errInvalidConfig, c.Iterations)
	}
	kind, err := threadlocal.ParseKind(c.Backend)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errInvalidConfig, err)
	}
	return kind, nil
}
