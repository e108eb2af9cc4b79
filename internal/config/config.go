// Package config loads regdelta configuration from YAML with environment
// overrides, following a defaults -> file -> env precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/regdelta/regdelta/internal/mapper"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (REGDELTA_*). A missing file is not an
// error; defaults apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// REGDELTA_MAPPING_THRESHOLD_HIGH -> mapping.threshold_high, etc.
	if err := k.Load(env.Provider("REGDELTA_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "REGDELTA_"))
		return strings.Replace(s, "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration before any stage runs; a config that
// fails here is rejected outright rather than partially processed.
func (c *Config) Validate() error {
	if c.Storage.AuditFile == "" {
		return fmt.Errorf("storage.audit_file is required")
	}
	if c.Storage.Database == "" {
		return fmt.Errorf("storage.database is required")
	}
	if c.Lexicon.File == "" {
		return fmt.Errorf("lexicon.file is required")
	}
	if len(c.Controls.Catalogs) == 0 {
		return fmt.Errorf("controls.catalogs must list at least one pattern")
	}
	if err := c.MapperOptions().Validate(); err != nil {
		return fmt.Errorf("mapping: %w", err)
	}
	if c.Ingest.MaxRetries < 0 {
		return fmt.Errorf("ingest.max_retries must be non-negative")
	}
	switch c.Reviewer.Identity {
	case "", "prompt", "static":
	default:
		return fmt.Errorf("reviewer.identity must be prompt or static, got %q", c.Reviewer.Identity)
	}
	return nil
}

// MapperOptions converts the mapping section into mapper options.
func (c *Config) MapperOptions() mapper.Options {
	return mapper.Options{
		CosineWeight:  c.Mapping.CosineWeight,
		LexicalWeight: c.Mapping.LexicalWeight,
		ThresholdHigh: c.Mapping.ThresholdHigh,
		ThresholdLow:  c.Mapping.ThresholdLow,
		TopK:          c.Mapping.TopK,
	}
}
