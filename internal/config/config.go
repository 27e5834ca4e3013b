// Package config loads and validates mirror configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/JakeFAU/wayback-mirror/internal/archive"
)

// AppName names the XDG config directory and the default user agent.
const AppName = "wayback-mirror"

// EnvPrefix is prepended to every environment override, e.g.
// WAYBACK_HTTP_TIMEOUT=30s.
const EnvPrefix = "WAYBACK"

// Storage providers.
const (
	ProviderLocal  = "local"
	ProviderGCS    = "gcs"
	ProviderMemory = "memory"
)

// Config captures every configuration knob loaded via Viper.
type Config struct {
	Archive ArchiveConfig `mapstructure:"archive"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Mirror  MirrorConfig  `mapstructure:"mirror"`
	Storage StorageConfig `mapstructure:"storage"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ArchiveConfig controls the snapshot lookup.
type ArchiveConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// HTTPConfig controls resource fetching.
type HTTPConfig struct {
	UserAgent           string        `mapstructure:"user_agent"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
	Delay               time.Duration `mapstructure:"delay"`
	MaxBodyBytes        int           `mapstructure:"max_body_bytes"`
	StoreErrorResponses bool          `mapstructure:"store_error_responses"`
}

// MirrorConfig governs the crawl itself.
type MirrorConfig struct {
	OutputDir         string `mapstructure:"output_dir"`
	Timestamp         string `mapstructure:"timestamp"`
	CrossOriginAssets bool   `mapstructure:"cross_origin_assets"`
	MaxItems          int    `mapstructure:"max_items"`
	MaxDepth          int    `mapstructure:"max_depth"`
	Manifest          string `mapstructure:"manifest"`
}

// StorageConfig selects where mirrored files are written.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig enables the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// New returns a Viper instance with defaults and environment overrides wired.
// CLI flags may be bound onto it before calling LoadFrom.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load builds a Config from defaults, the environment and an optional file.
func Load(path string) (Config, error) {
	return LoadFrom(New(), path)
}

// LoadFrom reads the config file into v and decodes the result. With an
// explicit path the file must exist; otherwise config.yaml is looked up in the
// working directory and the XDG config directory, and its absence is fine.
func LoadFrom(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, AppName))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("archive.endpoint", archive.DefaultEndpoint)
	v.SetDefault("archive.max_attempts", 3)
	v.SetDefault("archive.retry_delay", time.Second)
	v.SetDefault("http.user_agent", AppName+"/1.0 (+https://github.com/JakeFAU/wayback-mirror)")
	v.SetDefault("http.timeout", 10*time.Second)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.retry_delay", time.Second)
	v.SetDefault("http.delay", time.Duration(0))
	v.SetDefault("http.max_body_bytes", 50*1024*1024)
	v.SetDefault("http.store_error_responses", false)
	v.SetDefault("mirror.output_dir", "website_backup")
	v.SetDefault("mirror.timestamp", "")
	v.SetDefault("mirror.cross_origin_assets", true)
	v.SetDefault("mirror.max_items", 0)
	v.SetDefault("mirror.max_depth", 0)
	v.SetDefault("mirror.manifest", "")
	v.SetDefault("storage.provider", ProviderLocal)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Archive.MaxAttempts < 1 {
		errs = append(errs, errors.New("archive.max_attempts must be >= 1"))
	}
	if c.Archive.RetryDelay < 0 {
		errs = append(errs, errors.New("archive.retry_delay must be >= 0"))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http.timeout must be > 0"))
	}
	if c.HTTP.MaxAttempts < 1 {
		errs = append(errs, errors.New("http.max_attempts must be >= 1"))
	}
	if c.HTTP.RetryDelay < 0 || c.HTTP.Delay < 0 {
		errs = append(errs, errors.New("http.retry_delay and http.delay must be >= 0"))
	}
	if c.HTTP.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("http.max_body_bytes must be >= 0"))
	}
	if err := archive.ValidateTimestamp(c.Mirror.Timestamp); err != nil {
		errs = append(errs, fmt.Errorf("mirror.timestamp: %w", err))
	}
	if c.Mirror.MaxItems < 0 || c.Mirror.MaxDepth < 0 {
		errs = append(errs, errors.New("mirror.max_items and mirror.max_depth must be >= 0"))
	}
	switch c.Storage.Provider {
	case ProviderLocal:
		if strings.TrimSpace(c.Mirror.OutputDir) == "" {
			errs = append(errs, errors.New("mirror.output_dir is required for the local store"))
		}
	case ProviderGCS:
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("storage.gcs_bucket is required for the gcs store"))
		}
	case ProviderMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.provider %q must be one of local, gcs, memory", c.Storage.Provider))
	}
	return errors.Join(errs...)
}
