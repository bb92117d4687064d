package solo

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override of Config.
const EnvPrefix = "SOLO_"

// Config is the file and environment configuration of a solo deployment.
type Config struct {
	// Phase is "authoring" or "packaged".
	Phase string `toml:"phase" env:"PHASE"`

	// ContentDir is the root of authored content.
	ContentDir string `toml:"content_dir" env:"CONTENT_DIR"`

	// StorePath is the SQLite file backing the authoring store.
	StorePath string `toml:"store_path" env:"STORE_PATH"`

	// TableName is the base artifact name of the baked table.
	TableName string `toml:"table_name" env:"TABLE_NAME"`

	// ShippedManifest is the content-relative path of the shipped set.
	ShippedManifest string `toml:"shipped_manifest" env:"SHIPPED_MANIFEST"`

	// AssetPatterns are doublestar globs selecting content documents.
	AssetPatterns []string `toml:"asset_patterns" env:"ASSET_PATTERNS" envSeparator:","`

	// WatchDebounce is how long to wait for more changes before importing.
	WatchDebounce string `toml:"watch_debounce" env:"WATCH_DEBOUNCE"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `toml:"log_level" env:"LOG_LEVEL"`

	// MetricsNamespace prefixes Prometheus metric names.
	MetricsNamespace string `toml:"metrics_namespace" env:"METRICS_NAMESPACE"`

	// Types declares singleton types known only by key.
	Types []TypeConfig `toml:"types"`
}

// TypeConfig declares a key-only singleton type.
type TypeConfig struct {
	Key                 string `toml:"key"`
	Category            string `toml:"category"`
	IncludeUnreferenced *bool  `toml:"include_unreferenced"`
	Persistent          bool   `toml:"persistent"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Phase:            Authoring.String(),
		ContentDir:       "content",
		StorePath:        "solo.db",
		TableName:        DefaultTableName,
		ShippedManifest:  "shipped.toml",
		AssetPatterns:    []string{"**/*.asset.toml", "**/*.asset.yaml"},
		WatchDebounce:    "500ms",
		LogLevel:         "info",
		MetricsNamespace: "solo",
	}
}

// LoadConfig reads the TOML file at path (skipped when path is empty) over
// the defaults, then applies SOLO_* environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %q: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated fields.
func (c Config) Validate() error {
	var errs []error
	if _, ok := ParsePhase(c.Phase); !ok {
		errs = append(errs, fmt.Errorf("invalid phase %q", c.Phase))
	}
	if _, ok := parseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.LogLevel))
	}
	if _, err := time.ParseDuration(c.WatchDebounce); c.WatchDebounce != "" && err != nil {
		errs = append(errs, fmt.Errorf("invalid watch debounce %q", c.WatchDebounce))
	}
	for _, t := range c.Types {
		if strings.TrimSpace(t.Key) == "" {
			errs = append(errs, errors.New("type key is required"))
		}
		if _, ok := ParseCategory(t.Category); !ok {
			errs = append(errs, fmt.Errorf("type %q: invalid category %q", t.Key, t.Category))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Debounce returns the watch debounce delay, defaulting to 500ms.
func (c Config) Debounce() time.Duration {
	d, err := time.ParseDuration(c.WatchDebounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// Level returns the slog level of LogLevel.
func (c Config) Level() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

// RegisterTypes registers the key-only types declared in the config.
func (c Config) RegisterTypes(r *Registry) error {
	var errs []error
	for _, t := range c.Types {
		category, ok := ParseCategory(t.Category)
		if !ok {
			errs = append(errs, fmt.Errorf("type %q: invalid category %q", t.Key, t.Category))
			continue
		}
		opts := []Option{WithPersistent(t.Persistent)}
		if t.IncludeUnreferenced != nil {
			opts = append(opts, WithIncludeUnreferenced(*t.IncludeUnreferenced))
		}
		if _, err := r.RegisterKey(t.Key, category, opts...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func parseLevel(raw string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
