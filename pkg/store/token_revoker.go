package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRevokedKeyPrefix namespaces revoked session ids in Redis.
const DefaultRevokedKeyPrefix = "murojaat:revoked"

// TokenRevoker remembers logged-out JWT sessions by jti until the token
// would have expired anyway.
type TokenRevoker interface {
	Revoke(jti string, until time.Time) error
	IsRevoked(jti string) (bool, error)
}

// MemoryTokenRevoker is the single-instance revoker. Expired entries are
// swept whenever a new one is added.
type MemoryTokenRevoker struct {
	now func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewMemoryTokenRevoker() *MemoryTokenRevoker {
	return &MemoryTokenRevoker{
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}
}

func (r *MemoryTokenRevoker) Revoke(jti string, until time.Time) error {
	now := r.now()
	if jti == "" || !until.After(now) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, exp := range r.revoked {
		if !exp.After(now) {
			delete(r.revoked, id)
		}
	}
	r.revoked[jti] = until
	return nil
}

func (r *MemoryTokenRevoker) IsRevoked(jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.revoked[jti]
	return ok && until.After(r.now()), nil
}

// Len reports how many revocations are held, expired ones included until the
// next sweep.
func (r *MemoryTokenRevoker) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.revoked)
}

// RedisTokenRevoker shares revocations between desk instances. Keys expire
// on their own when the token would have.
type RedisTokenRevoker struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenRevoker connects to addr. An empty prefix uses
// DefaultRevokedKeyPrefix.
func NewRedisTokenRevoker(addr, password, prefix string) *RedisTokenRevoker {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultRevokedKeyPrefix
	}
	return &RedisTokenRevoker{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
	}
}

func (r *RedisTokenRevoker) Revoke(jti string, until time.Time) error {
	ttl := time.Until(until)
	if jti == "" || ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return r.client.Set(ctx, r.key(jti), "1", ttl).Err()
}

func (r *RedisTokenRevoker) IsRevoked(jti string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	n, err := r.client.Exists(ctx, r.key(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisTokenRevoker) Close() error {
	return r.client.Close()
}

func (r *RedisTokenRevoker) key(jti string) string {
	return r.prefix + ":" + jti
}
