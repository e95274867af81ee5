// Package config loads and validates the engine's config.yaml: parse,
// overlay onto a defaulted value, validate.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxHistory is the hard cap on total index entries applied
	// when settings.max_history is unset or zero.
	DefaultMaxHistory = 100
	// DefaultMaxFileSize is the per-file byte ceiling applied when
	// settings.max_file_size is unset or zero.
	DefaultMaxFileSize = 30 * 1024 * 1024
	// DefaultMaxQuota is the total referenced-bytes ceiling applied when
	// settings.max_quota is unset or zero.
	DefaultMaxQuota = 1024 * 1024 * 1024
	// DefaultScanInterval is the periodic full-scan period, in seconds,
	// applied when settings.scan_interval is unset or zero.
	DefaultScanInterval = 30
	// DefaultCleanInterval is the periodic trim/GC period, in seconds,
	// applied when settings.clean_interval is unset or zero.
	DefaultCleanInterval = 60

	// MinScanInterval is the floor enforced on settings.scan_interval.
	MinScanInterval = 2
	// MinCleanInterval is the floor enforced on settings.clean_interval.
	MinCleanInterval = 2
)

// DefaultPatterns is the include-extension list applied when watch.patterns
// is omitted entirely.
var DefaultPatterns = []string{
	"*.txt", "*.md", "*.go", "*.rs", "*.py", "*.js", "*.ts", "*.json", "*.yaml", "*.yml",
}

// DefaultExcludes is the exclude-glob list applied when watch.exclude is
// omitted entirely.
var DefaultExcludes = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/target/**",
}

// Watch holds the path-matcher configuration.
type Watch struct {
	Patterns []string `yaml:"patterns"`
	Exclude  []string `yaml:"exclude"`
}

// Settings holds the numeric engine tunables.
type Settings struct {
	MaxHistory    int   `yaml:"max_history"`
	MaxFileSize   int64 `yaml:"max_file_size"`
	MaxQuota      int64 `yaml:"max_quota"`
	ScanInterval  int   `yaml:"scan_interval"`
	CleanInterval int   `yaml:"clean_interval"`
}

// Config is the parsed, defaulted, validated config.yaml.
type Config struct {
	Watch    Watch    `yaml:"watch"`
	Settings Settings `yaml:"settings"`
}

// Default returns a Config with every field set to its documented default.
func Default() *Config {
	return &Config{
		Watch: Watch{
			Patterns: append([]string(nil), DefaultPatterns...),
			Exclude:  append([]string(nil), DefaultExcludes...),
		},
		Settings: Settings{
			MaxHistory:    DefaultMaxHistory,
			MaxFileSize:   DefaultMaxFileSize,
			MaxQuota:      DefaultMaxQuota,
			ScanInterval:  DefaultScanInterval,
			CleanInterval: DefaultCleanInterval,
		},
	}
}

// Load reads and parses the YAML file at path, applying defaults for any
// zero-valued field and validating the result. A missing file is not an
// error: Default() is returned instead, matching first-checkout behavior.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save serializes cfg as YAML and writes it to path, via a temp-file +
// rename so a reader never observes a partially written file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("config: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if len(c.Watch.Patterns) == 0 {
		c.Watch.Patterns = append([]string(nil), DefaultPatterns...)
	}
	if c.Settings.MaxHistory == 0 {
		c.Settings.MaxHistory = DefaultMaxHistory
	}
	if c.Settings.MaxFileSize == 0 {
		c.Settings.MaxFileSize = DefaultMaxFileSize
	}
	if c.Settings.MaxQuota == 0 {
		c.Settings.MaxQuota = DefaultMaxQuota
	}
	if c.Settings.ScanInterval == 0 {
		c.Settings.ScanInterval = DefaultScanInterval
	}
	if c.Settings.CleanInterval == 0 {
		c.Settings.CleanInterval = DefaultCleanInterval
	}
}

// Validate enforces the hard floors and positivity constraints on the
// numeric tunables.
func (c *Config) Validate() error {
	if c.Settings.MaxHistory < 1 {
		return fmt.Errorf("config: settings.max_history must be >= 1")
	}
	if c.Settings.MaxQuota <= 0 {
		return fmt.Errorf("config: settings.max_quota must be > 0")
	}
	if c.Settings.ScanInterval < MinScanInterval {
		return fmt.Errorf("config: settings.scan_interval must be >= %d", MinScanInterval)
	}
	if c.Settings.CleanInterval < MinCleanInterval {
		return fmt.Errorf("config: settings.clean_interval must be >= %d", MinCleanInterval)
	}
	return nil
}
