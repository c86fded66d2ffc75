package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

type Config struct {
	Provider              string
	APIBaseURL            string
	RedisConnectionString string
	DatabaseURL           string
	HTTPClient            *http.Client
	Logger                *slog.Logger
}

func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryStore(), nil
	case "rest":
		return NewRESTStore(cfg.APIBaseURL, cfg.HTTPClient)
	case "redis":
		return NewRedisStore(cfg.RedisConnectionString, cfg.Logger)
	case "postgres":
		pool, err := Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pgStore, err := NewPostgresStore(ctx, pool, cfg.Logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return pgStore, nil
	default:
		return nil, fmt.Errorf("unsupported store provider: %s", cfg.Provider)
	}
}
