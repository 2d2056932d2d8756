package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "replay:jti:"

// RedisGuard is the multi-instance guard. Admission is a single SET NX with
// a TTL equal to the token's remaining lifetime, so the check-and-set is
// atomic across all service instances and entries expire on their own.
type RedisGuard struct {
	client *redis.Client
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) Admit(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// already expired; admit and let the token's own expiry check reject it
		return true, nil
	}

	ok, err := g.client.SetNX(ctx, keyPrefix+jti, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("replay admission failed: %w", err)
	}
	return ok, nil
}
