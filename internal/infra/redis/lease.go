package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const leaseKeyPrefix = "lease:"

// RedisLease grants short-lived exclusive claims on a key. The scheduler uses
// it so a due workflow is published once per lease window even when several
// scheduler replicas scan at the same time.
type RedisLease struct {
	client *redis.Client
	prefix string
}

func NewRedisLease(client *redis.Client, namespace string) *RedisLease {
	prefix := leaseKeyPrefix
	if ns := strings.TrimSpace(namespace); ns != "" {
		prefix += ns + ":"
	}
	return &RedisLease{client: client, prefix: prefix}
}

// Acquire reports whether the caller now holds the lease for key.
func (l *RedisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("lease key is required")
	}
	if ttl <= 0 {
		return false, fmt.Errorf("lease ttl must be positive")
	}

	ok, err := l.client.SetNX(ctx, l.prefix+key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	return ok, nil
}

// Release drops the lease early so the key can be claimed again.
func (l *RedisLease) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.prefix+strings.TrimSpace(key)).Err(); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}
