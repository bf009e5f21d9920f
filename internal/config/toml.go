// Package config provides configuration helpers and config file parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileConfig represents the configuration file. Every value is a pointer
// so that unset keys leave flag defaults alone.
type FileConfig struct {
	Record   RecordConfig   `toml:"record" yaml:"record"`
	Binner   BinnerConfig   `toml:"binner" yaml:"binner"`
	Practice PracticeConfig `toml:"practice" yaml:"practice"`
	Serve    ServeConfig    `toml:"serve" yaml:"serve"`
	Log      LogConfig      `toml:"log" yaml:"log"`
}

// RecordConfig maps recorder settings. Bounds are in milliseconds.
type RecordConfig struct {
	ScaleFactor *float64 `toml:"scale-factor" yaml:"scale-factor"`
	MinGapMs    *float64 `toml:"min-gap-ms" yaml:"min-gap-ms"`
	MaxGapMs    *float64 `toml:"max-gap-ms" yaml:"max-gap-ms"`
	MinHoldMs   *float64 `toml:"min-hold-ms" yaml:"min-hold-ms"`
	MaxHoldMs   *float64 `toml:"max-hold-ms" yaml:"max-hold-ms"`
}

// BinnerConfig maps partition parameters.
type BinnerConfig struct {
	TempBins     *int   `toml:"temp-bins" yaml:"temp-bins"`
	Window       *int   `toml:"window" yaml:"window"`
	Coarse       *int   `toml:"coarse" yaml:"coarse"`
	Fine         *int   `toml:"fine" yaml:"fine"`
	DefaultWidth *int64 `toml:"default-width" yaml:"default-width"`
}

// PracticeConfig maps terminal prompt settings.
type PracticeConfig struct {
	Words    *int     `toml:"words" yaml:"words"`
	CapsPct  *float64 `toml:"caps" yaml:"caps"`
	PunctPct *float64 `toml:"punct" yaml:"punct"`
	PunctSet *string  `toml:"punct-set" yaml:"punct-set"`
	WordList *string  `toml:"wordlist" yaml:"wordlist"`
	Keys     *string  `toml:"keys" yaml:"keys"`
	MaxLen   *int     `toml:"max-word-len" yaml:"max-word-len"`
	Save     *bool    `toml:"save" yaml:"save"`
}

// ServeConfig maps HTTP API settings.
type ServeConfig struct {
	Addr        *string  `toml:"addr" yaml:"addr"`
	CORSOrigins []string `toml:"cors-origins" yaml:"cors-origins"`
	MaxBodyKB   *int     `toml:"max-body-kb" yaml:"max-body-kb"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level  *string `toml:"level" yaml:"level"`
	Format *string `toml:"format" yaml:"format"`
}

// LoadConfig reads a config file from the given path. The format follows
// the extension: .yaml and .yml are YAML, anything else is TOML. Missing
// file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err := os.ReadFile(path)
		if err != nil {
			return FileConfig{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	return cfg, nil
}
