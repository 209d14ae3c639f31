package main

import (
	"context"
	"io"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"secureapi/internal/auth"
	"secureapi/internal/config"
	"secureapi/internal/ratelimit"
	"secureapi/internal/repository"
	"secureapi/internal/repository/postgres"
	"secureapi/internal/repository/sqlite"
)

// stores bundles the repositories with the handle that backs them.
type stores struct {
	users repository.UserRepository
	txs   repository.TransactionRepository
	close func()
}

func loadConfig(cmd *cobra.Command) (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, newLogger(cfg, cmd.ErrOrStderr()), nil
}

func newLogger(cfg config.Config, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	if cfg.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

func openStores(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*stores, error) {
	var s stores

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.ConnectAttempts)
		if err != nil {
			return nil, err
		}
		s.users = postgres.NewUserRepository(pool)
		s.txs = postgres.NewTransactionRepository(pool)
		s.close = pool.Close
	default:
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, oops.Code("DB_OPEN_FAILED").With("path", cfg.Database.Path).Wrap(err)
		}
		s.users = sqlite.NewUserRepository(db)
		s.txs = sqlite.NewTransactionRepository(db)
		s.close = func() { _ = db.Close() }
	}

	if err := s.users.Init(ctx); err != nil {
		s.close()
		return nil, oops.Code("DB_INIT_FAILED").With("table", "users").Wrap(err)
	}
	if err := s.txs.Init(ctx); err != nil {
		s.close()
		return nil, oops.Code("DB_INIT_FAILED").With("table", "transactions").Wrap(err)
	}

	logger.WithField("driver", cfg.Database.Driver).Info("identity store ready")
	return &s, nil
}

// openLimiter returns the login limiter and a function releasing it.
func openLimiter(ctx context.Context, cfg config.Config, logger *logrus.Logger) (ratelimit.Limiter, func(), error) {
	switch cfg.RateLimit.Backend {
	case config.BackendRedis:
		client, err := ratelimit.OpenRedis(ctx, cfg.Redis.URL, cfg.Redis.ConnectAttempts)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using redis login rate limiter")
		limiter := ratelimit.NewRedisLimiter(client, "login", cfg.RateLimit.LoginLimit, cfg.RateLimitWindow())
		return limiter, func() { _ = client.Close() }, nil
	default:
		limiter := ratelimit.NewMemoryLimiter(cfg.RateLimit.LoginLimit, cfg.RateLimitWindow())
		return limiter, func() { _ = limiter.Close() }, nil
	}
}

func newTokenCodec(cfg config.Config) (*auth.TokenCodec, error) {
	return auth.NewTokenCodec(cfg.Auth.JWTSecret, auth.WithDefaultTTL(cfg.TokenTTL()))
}
