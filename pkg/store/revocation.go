package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRevocationPrefix namespaces logged-out token IDs in Redis.
const DefaultRevocationPrefix = "campuscanvas:portal:revoked:"

// RevocationList remembers logged-out access tokens by JWT ID. An entry must
// outlive the last instant at which its token could still verify.
type RevocationList interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// MemoryRevocationList is a process-local RevocationList for the CLI and tests.
type MemoryRevocationList struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{until: make(map[string]time.Time), now: time.Now}
}

// Revoke records jti until the given instant. Past instants are ignored.
// Lapsed entries are swept on every call.
func (l *MemoryRevocationList) Revoke(_ context.Context, jti string, until time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for id, t := range l.until {
		if !t.After(now) {
			delete(l.until, id)
		}
	}
	if until.After(now) {
		l.until[jti] = until
	}
	return nil
}

func (l *MemoryRevocationList) IsRevoked(_ context.Context, jti string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	until, ok := l.until[jti]
	return ok && until.After(l.now()), nil
}

// RedisRevocationList shares revocations across portal replicas. Keys expire
// on their own when the token would have expired.
type RedisRevocationList struct {
	client *redis.Client
	prefix string
}

// NewRedisRevocationList builds a list on a shared client. An empty prefix
// selects DefaultRevocationPrefix.
func NewRedisRevocationList(client *redis.Client, prefix string) *RedisRevocationList {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultRevocationPrefix
	}
	return &RedisRevocationList{client: client, prefix: prefix}
}

func (l *RedisRevocationList) key(jti string) string {
	return l.prefix + jti
}

func (l *RedisRevocationList) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return l.client.Set(ctx, l.key(jti), until.UTC().Format(time.RFC3339), ttl).Err()
}

func (l *RedisRevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
