package cache

import (
	"context"
	"time"
)

// BytesCache хранит готовые JSON-снимки. Ошибки кэша не должны ломать чтение из БД.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Limiter считает попытки в фиксированном окне.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}
