package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goodtune/accesstime/internal/audit"
	"github.com/goodtune/accesstime/internal/auth"
	"github.com/goodtune/accesstime/internal/clock"
	"github.com/goodtune/accesstime/internal/config"
	"github.com/goodtune/accesstime/internal/policy"
	"github.com/goodtune/accesstime/internal/service"
	"github.com/goodtune/accesstime/internal/storage"
	"github.com/goodtune/accesstime/internal/storage/bolt"
	redisstore "github.com/goodtune/accesstime/internal/storage/redis"
	"github.com/goodtune/accesstime/internal/storage/sqlite"
	"github.com/goodtune/accesstime/internal/token"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ledger is a token ledger that can also mint, which both backends do.
type ledger interface {
	token.Ledger
	token.Minter
}

// app holds the components shared by the server and the CLI commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	client *redis.Client
	store  storage.Store
	ledger ledger
	authz  *policy.Authorizer
	auth   *auth.Service
	svc    *service.Service
}

// newApp loads the configuration and builds every component. Logs go to out.
func newApp(out io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: setupLogger(cfg.Logging, out),
	}

	if usesRedis(cfg) {
		a.client, err = redisstore.Connect(cfg.Storage.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	a.store, err = openStorage(cfg.Storage, a.client)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.logger.Debug().Str("type", cfg.Storage.Type).Msg("Storage initialized")

	switch cfg.Token.Backend {
	case "redis":
		a.ledger = token.NewRedisLedger(a.client, cfg.Token.Prefix)
	default:
		a.ledger = token.NewMemoryLedger(cfg.Token.InitialBalances)
	}

	a.authz, err = policy.NewAuthorizer(cfg.Policy.Dir, a.logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize policy: %w", err)
	}

	var sink audit.Sink = audit.NewLogSink(a.logger)
	if cfg.Audit.Sink == "redis" {
		sink = audit.NewStreamSink(a.client, cfg.Audit.Stream, cfg.Audit.MaxLen)
	}

	a.auth = auth.NewService(
		cfg.Auth.JWTSecret,
		cfg.Auth.Issuer,
		config.ParseDuration(cfg.Auth.TokenExpiration, 24*time.Hour),
	)

	a.svc = service.New(service.Dependencies{
		Store:      a.store,
		Ledger:     a.ledger,
		Authorizer: a.authz,
		Clock:      clock.RealClock{},
		Sink:       sink,
	}, service.Config{
		CacheSize: cfg.Catalog.CacheSize,
		CacheTTL:  config.ParseDuration(cfg.Catalog.CacheTTL, service.DefaultCacheTTL),
	}, a.logger)

	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close storage")
		}
	}
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close redis client")
		}
	}
}

func usesRedis(cfg *config.Config) bool {
	return cfg.Storage.Type == "redis" || cfg.Token.Backend == "redis" || cfg.Audit.Sink == "redis"
}

func openStorage(cfg config.StorageConfig, client *redis.Client) (storage.Store, error) {
	switch cfg.Type {
	case "bolt":
		return bolt.Open(cfg.Path)
	case "sqlite":
		return sqlite.Open(cfg.Path)
	case "redis":
		lockTTL := config.ParseDuration(cfg.Redis.LockTTL, 10*time.Second)
		return redisstore.New(client, cfg.Redis.KeyPrefix, lockTTL), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if out == nil {
		out = os.Stdout
	}
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(out).With().Timestamp().Logger()
}
