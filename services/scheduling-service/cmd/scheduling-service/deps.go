package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/config"
	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/libs/runtime"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/storage"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/migrations"
	"github.com/redis/go-redis/v9"
)

type store struct {
	repo  storage.Repository
	ready runtime.ReadyCheck
	close func()
}

// openStore picks the appointment repository from STORAGE_BACKEND (memory or postgres).
func openStore(ctx context.Context, logger *slog.Logger) (store, error) {
	backend := strings.ToLower(config.String("STORAGE_BACKEND", "memory"))
	switch backend {
	case "memory":
		logger.Warn("using in-memory appointment storage; data is lost on restart")
		return store{
			repo:  storage.NewMemoryRepository(),
			ready: runtime.ReadyCheck{Name: "storage"},
			close: func() {},
		}, nil
	case "postgres":
	default:
		return store{}, fmt.Errorf("STORAGE_BACKEND must be memory or postgres (got %q)", backend)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return store{}, err
	}
	maxConns, err := config.Int("DB_MAX_CONNS", 10)
	if err != nil {
		return store{}, err
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(maxConns)})
	if err != nil {
		return store{}, fmt.Errorf("db connection: %w", err)
	}

	migrate, err := config.Bool("MIGRATE_ON_START", true)
	if err != nil {
		pool.Close()
		return store{}, err
	}
	if migrate {
		applied, err := db.Migrate(ctx, pool, migrations.FS)
		if err != nil {
			pool.Close()
			return store{}, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", "names", applied)
		}
	}

	return store{
		repo:  storage.NewPostgresRepository(pool),
		ready: runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		close: pool.Close,
	}, nil
}

type rateLimiter struct {
	limiter  httpx.Limiter
	failOpen bool
	ready    runtime.ReadyCheck
	close    func()
}

// openLimiter shares the request budget through Redis when REDIS_URL is set and falls back
// to a per-process limiter otherwise.
func openLimiter(ctx context.Context, logger *slog.Logger) (rateLimiter, error) {
	limit, err := config.Int("RATE_LIMIT_REQUESTS", 120)
	if err != nil {
		return rateLimiter{}, err
	}
	window, err := config.Duration("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return rateLimiter{}, err
	}
	failOpen, err := config.Bool("RATE_LIMIT_FAIL_OPEN", true)
	if err != nil {
		return rateLimiter{}, err
	}

	redisURL := config.String("REDIS_URL", "")
	if redisURL == "" {
		return rateLimiter{
			limiter:  httpx.NewMemoryLimiter(limit, window),
			failOpen: failOpen,
			ready:    runtime.ReadyCheck{Name: "redis"},
			close:    func() {},
		}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return rateLimiter{}, fmt.Errorf("REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		// The middleware fails open or closed per RATE_LIMIT_FAIL_OPEN; readiness reports the outage.
		logger.Warn("redis ping failed", "err", err)
	}
	return rateLimiter{
		limiter:  httpx.NewRedisLimiter(rdb, limit, window, "clinicdesk:rl"),
		failOpen: failOpen,
		ready:    runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)},
		close: func() {
			if err := rdb.Close(); err != nil {
				logger.Error("redis close failed", "err", err)
			}
		},
	}, nil
}
