// Package config loads `.whogitit.toml` (layered with an uncommitted
// `.whogitit.local.toml` override and `WHOGITIT_*` environment variables)
// via github.com/spf13/viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/dotsetlabs/whogitit/internal/paths"
	"github.com/dotsetlabs/whogitit/redact"
)

// RedactPatternConfig is one user-supplied custom redaction pattern from
// [redact].custom_patterns.
type RedactPatternConfig struct {
	Name    string `mapstructure:"name"`
	Pattern string `mapstructure:"pattern"`
}

// Config is the fully-resolved `.whogitit.toml` document plus defaults.
type Config struct {
	General struct {
		Enabled            bool   `mapstructure:"enabled"`
		LogLevel           string `mapstructure:"log_level"`
		MaxPendingAgeHours int    `mapstructure:"max_pending_age_hours"`
	} `mapstructure:"general"`

	Analyzer struct {
		SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	} `mapstructure:"analyzer"`

	Notes struct {
		WarnSizeBytes int `mapstructure:"warn_size_bytes"`
		MaxSizeBytes  int `mapstructure:"max_size_bytes"`
	} `mapstructure:"notes"`

	Retention struct {
		MaxAgeDays int      `mapstructure:"max_age_days"`
		MinCommits int      `mapstructure:"min_commits"`
		RetainRefs []string `mapstructure:"retain_refs"`
	} `mapstructure:"retention"`

	Redact struct {
		CustomPatterns []RedactPatternConfig `mapstructure:"custom_patterns"`
	} `mapstructure:"redact"`

	Telemetry struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"telemetry"`
}

// defaults is the configuration every layer overrides.
func defaults() Config {
	var c Config
	c.General.Enabled = true
	c.General.LogLevel = "info"
	c.General.MaxPendingAgeHours = 24
	c.Analyzer.SimilarityThreshold = 0.6
	c.Notes.WarnSizeBytes = 512 * 1024
	c.Notes.MaxSizeBytes = 4 * 1024 * 1024
	c.Retention.MaxAgeDays = 90
	c.Retention.MinCommits = 50
	c.Retention.RetainRefs = []string{"refs/heads/main"}
	c.Telemetry.Enabled = false
	return c
}

// Load resolves the layered configuration: project `.whogitit.toml`, then
// `.whogitit.local.toml`, then `WHOGITIT_*` environment variables, with the
// documented defaults underneath all three. Absence of either TOML file is
// not an error; the defaults (and any env overrides) still apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	applyDefaults(v, defaults())

	v.SetEnvPrefix("WHOGITIT")
	v.AutomaticEnv()

	if p, statErr := paths.AbsPath(paths.ConfigFile); statErr == nil {
		v.SetConfigFile(p)
		if err := v.ReadInConfig(); err != nil {
			if !isNotFound(err) {
				return nil, fmt.Errorf("reading %s: %w", paths.ConfigFile, err)
			}
		}
	}

	local := viper.New()
	local.SetConfigType("toml")
	if p, statErr := paths.AbsPath(paths.LocalConfigFile); statErr == nil {
		local.SetConfigFile(p)
		if err := local.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(local.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging %s: %w", paths.LocalConfigFile, err)
			}
		} else if !isNotFound(err) {
			return nil, fmt.Errorf("reading %s: %w", paths.LocalConfigFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper, d Config) {
	v.SetDefault("general.enabled", d.General.Enabled)
	v.SetDefault("general.log_level", d.General.LogLevel)
	v.SetDefault("general.max_pending_age_hours", d.General.MaxPendingAgeHours)
	v.SetDefault("analyzer.similarity_threshold", d.Analyzer.SimilarityThreshold)
	v.SetDefault("notes.warn_size_bytes", d.Notes.WarnSizeBytes)
	v.SetDefault("notes.max_size_bytes", d.Notes.MaxSizeBytes)
	v.SetDefault("retention.max_age_days", d.Retention.MaxAgeDays)
	v.SetDefault("retention.min_commits", d.Retention.MinCommits)
	v.SetDefault("retention.retain_refs", d.Retention.RetainRefs)
	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
}

// settableKeys is the closed set of scalar keys `config set` accepts.
// List-valued keys (retention.retain_refs, redact.custom_patterns) are
// edited in the file directly.
var settableKeys = map[string]bool{
	"general.enabled":               true,
	"general.log_level":             true,
	"general.max_pending_age_hours": true,
	"analyzer.similarity_threshold": true,
	"notes.warn_size_bytes":         true,
	"notes.max_size_bytes":          true,
	"retention.max_age_days":        true,
	"retention.min_commits":         true,
	"telemetry.enabled":             true,
}

// Set writes key = value into the project `.whogitit.toml`, preserving
// every other key already in the file. The value string is coerced to
// bool/int/float where it parses as one, so `config set telemetry.enabled
// true` writes a TOML boolean rather than the string "true".
func Set(key, value string) error {
	if !settableKeys[key] {
		keys := make([]string, 0, len(settableKeys))
		for k := range settableKeys {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown config key %q (settable keys: %s)", key, strings.Join(keys, ", "))
	}

	p, err := paths.AbsPath(paths.ConfigFile)
	if err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigFile(p)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
		return fmt.Errorf("reading %s: %w", paths.ConfigFile, err)
	}

	v.Set(key, coerceValue(value))
	if err := v.WriteConfigAs(p); err != nil {
		return fmt.Errorf("writing %s: %w", paths.ConfigFile, err)
	}
	return nil
}

func coerceValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func isNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	if errors.As(err, &nf) {
		return true
	}
	// os-level not-exist surfaces here when SetConfigFile points at a path
	// viper didn't itself discover.
	return errors.Is(err, os.ErrNotExist)
}

// ValidateRedactPatterns compiles every custom pattern and reports the
// offending pattern's name for any that fail, instead of only discovering
// the problem at first redact call. Invalid patterns are never fatal:
// callers log the returned names and proceed with the rest.
func ValidateRedactPatterns(patterns []RedactPatternConfig) (valid []redact.CustomPattern, invalidNames []string) {
	r := redact.New(toCustomPatterns(patterns), func(name, _ string, _ error) {
		invalidNames = append(invalidNames, name)
	})
	_ = r // constructing the Redactor is itself the validation pass
	for _, p := range patterns {
		skip := false
		for _, bad := range invalidNames {
			if bad == p.Name {
				skip = true
				break
			}
		}
		if !skip {
			valid = append(valid, redact.CustomPattern{Name: p.Name, Pattern: p.Pattern})
		}
	}
	return valid, invalidNames
}

// BuildRedactor constructs a *redact.Redactor from this config's custom
// patterns, logging and skipping any that fail to compile.
func (c *Config) BuildRedactor(onInvalid func(name, pattern string, err error)) *redact.Redactor {
	return redact.New(toCustomPatterns(c.Redact.CustomPatterns), onInvalid)
}

func toCustomPatterns(patterns []RedactPatternConfig) []redact.CustomPattern {
	out := make([]redact.CustomPattern, len(patterns))
	for i, p := range patterns {
		out[i] = redact.CustomPattern{Name: p.Name, Pattern: p.Pattern}
	}
	return out
}
