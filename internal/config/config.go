// Package config loads the CLI's runtime configuration via viper, following
// the defaults-then-ReadInConfig-then-Unmarshal-then-Validate shape from
// rogeecn-any-hub/internal/config/loader.go. It replaces the teacher's
// bare yaml.Unmarshal loader now that the surface has grown past a single
// Exclude list.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration surface for the buildcache CLI.
type Config struct {
	ManagedPaths  []string `mapstructure:"managed_paths"`
	CacheLocation string   `mapstructure:"cache_location"`
	Version       string   `mapstructure:"version"`
	MaxAgeMs      int64    `mapstructure:"max_age_ms"`
	HashOnBuild   bool     `mapstructure:"hash_on_build"`
	Workers       int      `mapstructure:"workers"`
	Exclude       []string `mapstructure:"exclude"`

	LogLevel      string `mapstructure:"log_level"`
	LogFilePath   string `mapstructure:"log_file_path"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
	LogCompress   bool   `mapstructure:"log_compress"`
}

const defaultMaxAge = int64(2 * 24 * time.Hour / time.Millisecond)

// DefaultExclude carries over the teacher's own exclusion list unchanged;
// walker.shouldExclude still matches against it glob-by-glob.
var DefaultExclude = []string{
	".git/",
	".svn/",
	"node_modules/",
	"vendor/",
	"__pycache__/",
	"*.o",
	"*.so",
	"*.exe",
	"bin/",
	"dist/",
	"*.tmp",
	"*.swp",
	"*.log",
	".DS_Store",
	"Thumbs.db",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache_location", ".buildcache/cache")
	v.SetDefault("version", "dev")
	v.SetDefault("max_age_ms", defaultMaxAge)
	v.SetDefault("hash_on_build", false)
	v.SetDefault("workers", 8)
	v.SetDefault("exclude", DefaultExclude)
	// Matched by basename anywhere in a walked path (internal/managedpath),
	// not as an absolute-path prefix, so this relative default still folds
	// node_modules trees found under any walk root.
	v.SetDefault("managed_paths", []string{"node_modules"})

	v.SetDefault("log_level", "info")
	v.SetDefault("log_file_path", "")
	v.SetDefault("log_max_size_mb", 100)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("log_compress", true)
}

// Load reads path, layering it over built-in defaults, and validates the
// result. A missing path is not an error: viper's own defaults carry the
// config, matching the teacher's DefaultConfig-on-ENOENT behavior.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(cfg.CacheLocation)
	if err != nil {
		return nil, fmt.Errorf("config: resolve cache_location: %w", err)
	}
	cfg.CacheLocation = abs

	return &cfg, nil
}

// Validate enforces the invariants callers depend on: a version tag must be
// set (spec.md §3 makes it part of the pack's identity), Workers must be
// positive, and max_age_ms must not be negative.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("config: version must not be empty")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive, got %d", c.Workers)
	}
	if c.MaxAgeMs < 0 {
		return fmt.Errorf("config: max_age_ms must not be negative, got %d", c.MaxAgeMs)
	}
	return nil
}
