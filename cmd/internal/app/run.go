package app

import (
	"context"
	"fmt"

	"glowlogy/cmd/internal/cache"
)

// Serve builds the App from cfg and runs it until ctx is done.
func Serve(ctx context.Context, cfg Config, log Logger) error {
	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// PurgeCache removes expired and corrupt entries from the durable cache file
// without starting the server. It returns how many entries were removed.
func PurgeCache(ctx context.Context, cfg Config) (int, error) {
	if cfg.CachePath == "" {
		return 0, fmt.Errorf("GLOWLOGY_CACHE_PATH is not set")
	}
	kv, err := cache.OpenSQLiteKV(ctx, cfg.CachePath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = kv.Close() }()

	c := cache.New(kv, cache.WithKeyPrefix(cfg.CacheKeyPrefix))
	return c.ClearExpired(ctx)
}
