package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreCSV      = "csv"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Promotion modes accepted by PROMOTION_MODE.
const (
	ModeFlag       = "flag"
	ModeRemoveHead = "remove-head"
)

// Config holds all runtime configuration, read from an optional .env file
// and the process environment. Environment variables win over the file.
type Config struct {
	// Server
	HTTPPort        string        `mapstructure:"HTTP_PORT"`
	ReadTimeout     time.Duration `mapstructure:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `mapstructure:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	MaxRequestBytes int64         `mapstructure:"MAX_REQUEST_BYTES"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`

	// Durable queue
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	CSVPath     string `mapstructure:"CSV_PATH"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// Content-management backend
	CMSBaseURL     string        `mapstructure:"CMS_BASE_URL"`
	CMSUser        string        `mapstructure:"CMS_USER"`
	CMSAppPassword string        `mapstructure:"CMS_APP_PASSWORD"`
	CMSTimeout     time.Duration `mapstructure:"CMS_TIMEOUT"`

	// Social posting service
	SocialWebhookURL string        `mapstructure:"SOCIAL_WEBHOOK_URL"`
	SocialToken      string        `mapstructure:"SOCIAL_TOKEN"`
	SocialTimeout    time.Duration `mapstructure:"SOCIAL_TIMEOUT"`

	// Media resolution
	MediaFetchTimeout time.Duration `mapstructure:"MEDIA_FETCH_TIMEOUT"`
	MediaMaxBytes     int64         `mapstructure:"MEDIA_MAX_BYTES"`

	// Pipeline stage toggles
	ResolveMedia bool `mapstructure:"PIPELINE_RESOLVE_MEDIA"`
	UniqueSlug   bool `mapstructure:"PIPELINE_UNIQUE_SLUG"`

	// Redis is optional; when empty the category cache and the
	// cross-restart fire guard are disabled.
	RedisAddr        string        `mapstructure:"REDIS_ADDR"`
	CategoryCacheTTL time.Duration `mapstructure:"CATEGORY_CACHE_TTL"`

	// Outbound requests per second, per target (backend, social).
	RateLimit int `mapstructure:"RATE_LIMIT"`

	// Promotion schedule
	PromoteAt     string `mapstructure:"PROMOTE_AT"`
	PromoteTZ     string `mapstructure:"PROMOTE_TZ"`
	PromotionMode string `mapstructure:"PROMOTION_MODE"`
}

// Load reads configuration from .env in the working directory (if present)
// and the environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	// The file is optional; production deployments configure through the environment.
	_ = v.ReadInConfig()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("READ_TIMEOUT", 15*time.Second)
	v.SetDefault("WRITE_TIMEOUT", 60*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 30*time.Second)
	v.SetDefault("MAX_REQUEST_BYTES", 64<<20)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("STORE_DRIVER", StoreCSV)
	v.SetDefault("CSV_PATH", "entries.csv")
	v.SetDefault("SQLITE_PATH", "entries.db")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_CONNS", 5)
	v.SetDefault("DB_MIN_CONNS", 1)

	v.SetDefault("CMS_BASE_URL", "")
	v.SetDefault("CMS_USER", "")
	v.SetDefault("CMS_APP_PASSWORD", "")
	v.SetDefault("CMS_TIMEOUT", 30*time.Second)

	v.SetDefault("SOCIAL_WEBHOOK_URL", "")
	v.SetDefault("SOCIAL_TOKEN", "")
	v.SetDefault("SOCIAL_TIMEOUT", 15*time.Second)

	v.SetDefault("MEDIA_FETCH_TIMEOUT", 10*time.Second)
	v.SetDefault("MEDIA_MAX_BYTES", 10<<20)

	v.SetDefault("PIPELINE_RESOLVE_MEDIA", true)
	v.SetDefault("PIPELINE_UNIQUE_SLUG", true)

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("CATEGORY_CACHE_TTL", 10*time.Minute)

	v.SetDefault("RATE_LIMIT", 5)

	v.SetDefault("PROMOTE_AT", "23:00")
	v.SetDefault("PROMOTE_TZ", "Local")
	v.SetDefault("PROMOTION_MODE", ModeFlag)
}

func (c *Config) validate() error {
	if c.CMSBaseURL == "" {
		return fmt.Errorf("CMS_BASE_URL is required")
	}
	if c.SocialWebhookURL == "" {
		return fmt.Errorf("SOCIAL_WEBHOOK_URL is required")
	}

	switch c.StoreDriver {
	case StoreCSV, StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.PromotionMode {
	case ModeFlag, ModeRemoveHead:
	default:
		return fmt.Errorf("unknown PROMOTION_MODE %q", c.PromotionMode)
	}

	if _, err := time.Parse("15:04", c.PromoteAt); err != nil {
		return fmt.Errorf("PROMOTE_AT must be HH:MM: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("PROMOTE_TZ: %w", err)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT must be positive")
	}
	return nil
}

// Location resolves PromoteTZ.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.PromoteTZ)
}
