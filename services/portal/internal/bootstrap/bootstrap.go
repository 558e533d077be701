// Package bootstrap opens the shared backends named by the portal config.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"campuscanvas/pkg/media"
	"campuscanvas/pkg/store"
	"campuscanvas/services/portal/internal/config"
)

// OpenStore returns the configured document store and a close func.
func OpenStore(cfg config.FileConfig) (store.Store, func() error, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return store.NewMemoryStore(), func() error { return nil }, nil
	case config.StorePostgres:
		s, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres store: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// OpenRedis connects to redisAddr and verifies the connection.
func OpenRedis(ctx context.Context, cfg config.FileConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// OpenSessions builds the API token store. Logged-out tokens are kept on a
// Redis revocation list under revocationPrefix.
func OpenSessions(cfg config.FileConfig, client *redis.Client) (*store.JWTSessionStore, error) {
	ttl, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	leeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		return nil, err
	}
	return store.NewJWTSessionStore(cfg.JWTSecret, ttl, store.NewRedisRevocationList(client, cfg.RevocationPrefix), store.JWTOptions{
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   leeway,
	})
}

// Limits maps the config media bounds. Zero values select the defaults.
func Limits(cfg config.FileConfig) media.Limits {
	return media.Limits{
		MaxFiles:      cfg.MaxImages,
		MaxTotalBytes: cfg.MaxGalleryBytes,
	}
}
