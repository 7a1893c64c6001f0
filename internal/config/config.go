package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/threatlex/internal/models"
)

const (
	// DefaultCacheDuration is how long a snapshot is servable.
	DefaultCacheDuration = time.Hour

	// DefaultRefreshInterval is the background re-fetch threshold.
	DefaultRefreshInterval = 30 * time.Minute

	// DefaultMinTermLength is the index's minimum name length.
	DefaultMinTermLength = 4
)

// Config holds all configuration for threatlex.
type Config struct {
	Platforms []PlatformConfig `mapstructure:"platforms"`
	Cache     CacheConfig      `mapstructure:"cache"`
	Index     IndexConfig      `mapstructure:"index"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	API       APIConfig        `mapstructure:"api"`
}

// PlatformConfig describes one remote platform connection.
type PlatformConfig struct {
	ID      string `mapstructure:"id"`
	Kind    string `mapstructure:"kind"`
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

// PlatformKind returns the typed kind.
func (p PlatformConfig) PlatformKind() models.PlatformKind {
	return models.PlatformKind(p.Kind)
}

// String returns a safe representation with the token masked.
func (p PlatformConfig) String() string {
	return fmt.Sprintf("PlatformConfig{ID:%s, Kind:%s, BaseURL:%s, Token:%s}", p.ID, p.Kind, p.BaseURL, maskToken(p.Token))
}

func maskToken(token string) string {
	const visible = 4
	if len(token) <= visible*2 {
		return "***"
	}
	return token[:visible] + "****" + token[len(token)-visible:]
}

// CacheConfig holds staleness and refresh settings.
type CacheConfig struct {
	Duration        time.Duration `mapstructure:"duration"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	Concurrency     int           `mapstructure:"concurrency"`
}

// IndexConfig holds name-index filtering settings.
type IndexConfig struct {
	MinTermLength int      `mapstructure:"min_term_length"`
	StopTerms     []string `mapstructure:"stop_terms"`
}

// StorageConfig holds key-value persistence settings.
type StorageConfig struct {
	Path       string `mapstructure:"path"`
	QuotaBytes int64  `mapstructure:"quota_bytes"` // 0 = unlimited
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	AuthToken  string `mapstructure:"auth_token"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("cache.duration", DefaultCacheDuration)
	v.SetDefault("cache.refresh_interval", DefaultRefreshInterval)
	v.SetDefault("cache.concurrency", 4)

	v.SetDefault("index.min_term_length", DefaultMinTermLength)

	v.SetDefault("storage.path", filepath.Join(homeDir(), ".threatlex", "cache.db"))
	v.SetDefault("storage.quota_bytes", int64(10<<20))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("api.listen_addr", ":8085")
	v.SetDefault("api.auth_token", "")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(homeDir(), ".threatlex"))
	v.AddConfigPath(".")

	// Environment variables
	v.SetEnvPrefix("THREATLEX")
	v.AutomaticEnv()

	_ = v.BindEnv("storage.path", "THREATLEX_STORAGE_PATH")
	_ = v.BindEnv("api.listen_addr", "THREATLEX_API_LISTEN_ADDR")
	_ = v.BindEnv("api.auth_token", "THREATLEX_API_AUTH_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK — use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are set and
// consistent.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Platforms))
	for i, p := range c.Platforms {
		if p.ID == "" {
			return fmt.Errorf("platforms[%d].id must not be empty", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("platforms[%d].id %q is duplicated", i, p.ID)
		}
		seen[p.ID] = true
		if !p.PlatformKind().IsValid() {
			return fmt.Errorf("platforms[%d].kind %q is not recognized", i, p.Kind)
		}
		if p.BaseURL == "" {
			return fmt.Errorf("platforms[%d].base_url must not be empty", i)
		}
	}
	if c.Cache.Duration <= 0 {
		return fmt.Errorf("cache.duration must be greater than 0")
	}
	if c.Cache.RefreshInterval <= 0 {
		return fmt.Errorf("cache.refresh_interval must be greater than 0")
	}
	if c.Cache.RefreshInterval > c.Cache.Duration {
		return fmt.Errorf("cache.refresh_interval (%s) must not exceed cache.duration (%s)", c.Cache.RefreshInterval, c.Cache.Duration)
	}
	if c.Cache.Concurrency <= 0 {
		return fmt.Errorf("cache.concurrency must be greater than 0")
	}
	if c.Index.MinTermLength <= 0 {
		return fmt.Errorf("index.min_term_length must be greater than 0")
	}
	if c.Storage.QuotaBytes < 0 {
		return fmt.Errorf("storage.quota_bytes must be >= 0")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty")
	}
	return nil
}

// PlatformIDs returns the configured platform ids in order.
func (c *Config) PlatformIDs() []string {
	ids := make([]string, 0, len(c.Platforms))
	for _, p := range c.Platforms {
		ids = append(ids, p.ID)
	}
	return ids
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
