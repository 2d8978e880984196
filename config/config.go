// Package config loads portal settings from defaults, an optional YAML file
// and PORTAL_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Authorization AuthorizationConfig `mapstructure:"authorization"`
	Redis         RedisConfig         `mapstructure:"redis"`
	RateLimit     RateLimitConfig     `mapstructure:"ratelimit"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Catalog       CatalogConfig       `mapstructure:"catalog"`
	Log           LogConfig           `mapstructure:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	TrustedProxies []string      `mapstructure:"trusted_proxies"` // IPs or CIDRs allowed to set X-Forwarded-For
}

// DatabaseConfig holds GORM connection settings.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres or sqlite
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	RunMigration    bool          `mapstructure:"run_migration"`
}

// AuthConfig holds token and session settings.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	Issuer        string        `mapstructure:"issuer"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	CookieName    string        `mapstructure:"cookie_name"`
	CookieSecure  bool          `mapstructure:"cookie_secure"`
	ActivationTTL time.Duration `mapstructure:"activation_ttl"`
}

// AuthorizationConfig controls access to endpoints without an explicit permission.
type AuthorizationConfig struct {
	Mode   string `mapstructure:"mode"`
	Strict bool   `mapstructure:"strict"`
}

// RedisConfig holds redis settings. When disabled the portal runs without
// caching, rate limiting or stream publishing.
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	EventStream string        `mapstructure:"event_stream"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// RateLimitConfig limits login attempts per client IP.
type RateLimitConfig struct {
	LoginLimit  int           `mapstructure:"login_limit"`
	LoginWindow time.Duration `mapstructure:"login_window"`
}

// StorageConfig holds document blob storage settings.
type StorageConfig struct {
	DocumentsDir   string `mapstructure:"documents_dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

// AuditConfig selects the audit sink. An empty ServiceURL stores audit logs
// in the portal database.
type AuditConfig struct {
	ServiceURL string `mapstructure:"service_url"`
}

// WorkerConfig holds outbox worker settings.
type WorkerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

// CatalogConfig points at the workflow, document and assessment catalog.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "chitfund_portal")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "chitfund_portal.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.run_migration", false)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "chitfund-portal")
	v.SetDefault("auth.token_ttl", 8*time.Hour)
	v.SetDefault("auth.cookie_name", "portal_session")
	v.SetDefault("auth.cookie_secure", true)
	v.SetDefault("auth.activation_ttl", 72*time.Hour)

	v.SetDefault("authorization.mode", "fail_closed")
	v.SetDefault("authorization.strict", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.event_stream", "chitfund:events")
	v.SetDefault("redis.cache_ttl", 15*time.Minute)

	v.SetDefault("ratelimit.login_limit", 10)
	v.SetDefault("ratelimit.login_window", time.Minute)

	v.SetDefault("storage.documents_dir", "data/documents")
	v.SetDefault("storage.max_upload_bytes", int64(10<<20))

	v.SetDefault("audit.service_url", "")

	v.SetDefault("worker.enabled", true)
	v.SetDefault("worker.poll_interval", 10*time.Second)
	v.SetDefault("worker.batch_size", 10)

	v.SetDefault("catalog.path", "config/catalog.yaml")

	v.SetDefault("log.level", "info")
}

// Load reads configuration from file and env. Env var overrides use prefix
// PORTAL_, e.g. PORTAL_DATABASE_HOST. An empty path looks for config.yaml in
// the working directory and ./config; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("config")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid database driver %q: expected postgres or sqlite", c.Database.Driver)
	}
	if c.Storage.MaxUploadBytes <= 0 {
		return fmt.Errorf("storage.max_upload_bytes must be positive")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	return nil
}

// ValidateSecrets checks settings the HTTP server cannot start without.
// The CLI only needs the database, so this is kept out of Validate.
func (c *Config) ValidateSecrets() error {
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters (set PORTAL_AUTH_JWT_SECRET)")
	}
	return nil
}
