package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Token   TokenConfig   `mapstructure:"token"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Policy  PolicyConfig  `mapstructure:"policy"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	API     APIConfig     `mapstructure:"api"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	APIPort     int    `mapstructure:"api_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "bolt", "redis" or "sqlite"
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	KeyPrefix    string `mapstructure:"key_prefix"`
	LockTTL      string `mapstructure:"lock_ttl"`
}

// TokenConfig defines the token ledger backend
type TokenConfig struct {
	Backend         string            `mapstructure:"backend"` // "redis" or "memory"
	Prefix          string            `mapstructure:"prefix"`
	InitialBalances map[string]uint64 `mapstructure:"initial_balances"`
}

// AuthConfig defines JWT settings
type AuthConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret"`
	Issuer          string `mapstructure:"issuer"`
	TokenExpiration string `mapstructure:"token_expiration"`
}

// PolicyConfig defines where authorization policies are loaded from
type PolicyConfig struct {
	Dir string `mapstructure:"dir"` // empty uses the embedded policy
}

// AuditConfig defines the event sink
type AuditConfig struct {
	Sink   string `mapstructure:"sink"` // "log" or "redis"
	Stream string `mapstructure:"stream"`
	MaxLen int64  `mapstructure:"max_len"`
}

// CatalogConfig defines the package read cache
type CatalogConfig struct {
	CacheSize int    `mapstructure:"cache_size"`
	CacheTTL  string `mapstructure:"cache_ttl"`
}

// APIConfig defines HTTP API limits
type APIConfig struct {
	RateLimit       int    `mapstructure:"rate_limit"`
	RateLimitWindow string `mapstructure:"rate_limit_window"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("ACCESSTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.api_port", 8080)
	v.SetDefault("server.metrics_port", 9090)

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/accesstime/accesstime.bolt")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")
	v.SetDefault("storage.redis.key_prefix", "accesstime")
	v.SetDefault("storage.redis.lock_ttl", "10s")

	// Token ledger defaults
	v.SetDefault("token.backend", "memory")
	v.SetDefault("token.prefix", "accesstime:ledger")

	// Auth defaults; the secret has no usable default but must be a known
	// key for ACCESSTIME_AUTH_JWT_SECRET to be picked up.
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "accesstime")
	v.SetDefault("auth.token_expiration", "24h")

	// Policy defaults
	v.SetDefault("policy.dir", "")

	// Audit defaults
	v.SetDefault("audit.sink", "log")
	v.SetDefault("audit.stream", "accesstime:events")
	v.SetDefault("audit.max_len", 10000)

	// Catalog cache defaults
	v.SetDefault("catalog.cache_size", 256)
	v.SetDefault("catalog.cache_ttl", "5m")

	// API defaults
	v.SetDefault("api.rate_limit", 100)
	v.SetDefault("api.rate_limit_window", "1m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if err := validatePort("API", cfg.Server.APIPort); err != nil {
		return err
	}
	if err := validatePort("metrics", cfg.Server.MetricsPort); err != nil {
		return err
	}

	switch cfg.Storage.Type {
	case "bolt", "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required for %s storage", cfg.Storage.Type)
		}
		// Ensure storage directory exists
		storageDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required for redis storage")
		}
		if _, err := time.ParseDuration(cfg.Storage.Redis.LockTTL); err != nil {
			return fmt.Errorf("invalid storage.redis.lock_ttl: %w", err)
		}
	default:
		return fmt.Errorf("unsupported storage type: %q", cfg.Storage.Type)
	}

	switch cfg.Token.Backend {
	case "memory":
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required for the redis token ledger")
		}
	default:
		return fmt.Errorf("unsupported token backend: %q", cfg.Token.Backend)
	}

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if _, err := time.ParseDuration(cfg.Auth.TokenExpiration); err != nil {
		return fmt.Errorf("invalid auth.token_expiration: %w", err)
	}

	switch cfg.Audit.Sink {
	case "log", "redis":
	default:
		return fmt.Errorf("unsupported audit sink: %q", cfg.Audit.Sink)
	}

	if cfg.Catalog.CacheSize < 0 {
		return fmt.Errorf("catalog.cache_size must not be negative")
	}
	if _, err := time.ParseDuration(cfg.Catalog.CacheTTL); err != nil {
		return fmt.Errorf("invalid catalog.cache_ttl: %w", err)
	}

	if cfg.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative")
	}

	return nil
}

func validatePort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid %s port: %d", name, port)
	}
	return nil
}

// ParseDuration parses a duration string, falling back to def when the
// string is empty or malformed.
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// Defaults returns the configuration used when no file or environment
// overrides are present.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// UnknownKeys reads the file at configPath and reports keys that no
// configuration field consumes.
func UnknownKeys(configPath string) ([]string, error) {
	file := viper.New()
	file.SetConfigFile(configPath)
	if err := file.ReadInConfig(); err != nil {
		return nil, err
	}

	known := viper.New()
	setDefaults(known)
	valid := make(map[string]bool)
	for _, key := range known.AllKeys() {
		valid[key] = true
	}
	valid["storage.redis.password"] = true

	var unknown []string
	for _, key := range file.AllKeys() {
		if valid[key] || strings.HasPrefix(key, "token.initial_balances.") {
			continue
		}
		unknown = append(unknown, key)
	}
	sort.Strings(unknown)
	return unknown, nil
}
