package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const guardKeyPrefix = "webhook:lock:"

// releaseScript deletes the lock only while it still holds the caller's token, so a
// holder whose TTL lapsed cannot free a lock taken by a later delivery.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DeliveryGuard keeps two concurrent deliveries of the same webhook from being handled at
// once. A guard without a Redis client admits every delivery.
type DeliveryGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDeliveryGuard creates a guard. client may be nil.
func NewDeliveryGuard(client *redis.Client, ttl time.Duration) *DeliveryGuard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &DeliveryGuard{client: client, ttl: ttl}
}

// Acquire takes the lock for key. When another holder owns it, acquired is false.
// The returned release func is always safe to call.
func (g *DeliveryGuard) Acquire(ctx context.Context, key string) (acquired bool, release func(), err error) {
	noop := func() {}
	if g == nil || g.client == nil {
		return true, noop, nil
	}
	redisKey := guardKeyPrefix + key
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, redisKey, token, g.ttl).Result()
	if err != nil {
		return false, noop, fmt.Errorf("events: acquire delivery lock: %w", err)
	}
	if !ok {
		return false, noop, nil
	}
	return true, func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), g.client, []string{redisKey}, token).Err()
	}, nil
}
