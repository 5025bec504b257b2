package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/scipunch/backlog/fetcher/types"
	"github.com/scipunch/backlog/parser"
)

const baseCfgPath = "backlog/config.toml"

type Config struct {
	DatabaseURL   string                  `toml:"database_url"`   // Overridden by BACKLOG_DATABASE_URL / SQLDB_CONNECTION
	Migrate       bool                    `toml:"migrate"`        // Apply the embedded schema on startup
	Schedule      string                  `toml:"schedule"`       // Cron spec with seconds field
	Concurrency   int                     `toml:"concurrency"`    // Sources crawled in parallel, 1 = sequential
	SourceTimeout Duration                `toml:"source_timeout"` // Upper bound for fetch+parse+persist of one source
	LogLevel      string                  `toml:"log_level"`
	LogFormat     string                  `toml:"log_format"`   // "console" or "json"
	MetricsAddr   string                  `toml:"metrics_addr"` // Empty disables the metrics listener
	UserAgent     string                  `toml:"user_agent"`
	MaxFeedBytes  int64                   `toml:"max_feed_bytes"`
	Formats       map[string]FormatConfig `toml:"formats"`
	Filters       map[string]Filter       `toml:"filters"`       // Named filters
	ApplyFilters  []string                `toml:"apply_filters"` // Filters applied to every source, in order
}

// FormatConfig holds per-format parser settings
type FormatConfig struct {
	NormalizeToUTC *bool `toml:"normalize_to_utc"`
}

// Filter defines rules for dropping articles before they are stored
type Filter struct {
	MinLength       int      `toml:"min_length"`       // Minimum character count (0 = no limit)
	MinWords        int      `toml:"min_words"`        // Minimum word count (0 = no limit)
	ExcludePatterns []string `toml:"exclude_patterns"` // Regex patterns to exclude
	RequireImage    bool     `toml:"require_image"`    // Drop articles without an image
}

// Duration decodes "90s" style strings
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// defaultNormalizeToUTC keeps the historical behavior: syndication dates are
// stored in UTC, structured feed dates as published
var defaultNormalizeToUTC = map[types.Format]bool{
	types.Generic:    true,
	types.Structured: false,
}

// ParserOptions returns settings for every supported format
func (c Config) ParserOptions() map[types.Format]parser.Options {
	opts := make(map[types.Format]parser.Options, len(defaultNormalizeToUTC))
	for format, utc := range defaultNormalizeToUTC {
		if fc, ok := c.Formats[format]; ok && fc.NormalizeToUTC != nil {
			utc = *fc.NormalizeToUTC
		}
		opts[format] = parser.Options{NormalizeToUTC: utc}
	}
	return opts
}

// Validate reports every problem in the config at once
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, fmt.Errorf("database url is empty, set %s", EnvDatabaseURL))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", c.Concurrency))
	}
	if c.SourceTimeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("source_timeout must be positive, got %s", c.SourceTimeout))
	}
	if c.Schedule == "" {
		errs = append(errs, errors.New("schedule is empty"))
	}
	for format := range c.Formats {
		if !types.IsKnownFormat(format) {
			errs = append(errs, fmt.Errorf("unknown format section: %s", format))
		}
	}
	for _, name := range c.ApplyFilters {
		if _, ok := c.Filters[name]; !ok {
			errs = append(errs, fmt.Errorf("apply_filters references undefined filter: %s", name))
		}
	}
	return errors.Join(errs...)
}

func Read(path string) (Config, error) {
	conf := Default()
	dat, err := os.ReadFile(path)
	if err != nil {
		return conf, err
	}
	_, err = toml.Decode(string(dat), &conf)
	if err != nil {
		return conf, fmt.Errorf("failed to decode config at %s with %w", path, err)
	}
	return conf, nil
}

func Write(cfgPath string, cfg Config) error {
	blob, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config with %w", err)
	}
	basePath := path.Dir(cfgPath)
	err = os.MkdirAll(basePath, os.ModePerm)
	if err != nil {
		return fmt.Errorf("failed to create base config directory at '%s' with %w", basePath, err)
	}
	// database_url may carry a password
	err = os.WriteFile(cfgPath, blob, 0600)
	if err != nil {
		return fmt.Errorf("failed to write into config file at '%s' with %w", cfgPath, err)
	}
	return nil
}

func Default() Config {
	var dbBase = path.Join(os.Getenv("HOME"), ".local/share/backlog")
	return Config{
		DatabaseURL:   path.Join(dbBase, "backlog.db"),
		Migrate:       true,
		Schedule:      "0 */1 * * * *",
		Concurrency:   1,
		SourceTimeout: Duration{2 * time.Minute},
		LogLevel:      "info",
		LogFormat:     "console",
		MaxFeedBytes:  10 << 20,
		Formats:       map[string]FormatConfig{},
		Filters:       map[string]Filter{},
	}
}

func DefaultPath() string {
	var xdgHome = os.Getenv("XDG_CONFIG_HOME")
	if xdgHome != "" {
		return path.Join(xdgHome, baseCfgPath)
	}

	var home = os.Getenv("HOME")
	if home != "" {
		return path.Join(home, ".config", baseCfgPath)
	}

	return "config.toml"
}
