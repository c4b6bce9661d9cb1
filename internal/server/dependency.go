package server

import (
	"context"
	"fmt"
	"log/slog"

	"devserver/internal/config"

	"github.com/redis/go-redis/v9"
)

// Dependency holds the optional infrastructure the server runs against.
type Dependency struct {
	Redis  *redis.Client
	Logger *slog.Logger
}

// InitDeps connects to Redis when an address is configured. Without one the
// server runs purely in memory.
func InitDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependency, error) {
	deps := &Dependency{Logger: logger}
	if cfg.Redis.Addr == "" {
		return deps, nil
	}

	redis.SetLogger(newRedisLogger(logger))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("redis ping (%s): %w", cfg.Redis.Addr, err)
	}
	deps.Redis = redisClient
	return deps, nil
}

func (d *Dependency) Close() {
	if d.Redis != nil {
		d.Redis.Close()
	}
}

// redisLogger routes go-redis internal logging into slog.
type redisLogger struct {
	l *slog.Logger
}

func newRedisLogger(l *slog.Logger) *redisLogger {
	return &redisLogger{l: l.With("component", "redis")}
}

func (r *redisLogger) Printf(ctx context.Context, format string, v ...any) {
	r.l.WarnContext(ctx, fmt.Sprintf(format, v...))
}
