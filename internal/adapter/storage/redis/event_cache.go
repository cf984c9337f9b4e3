package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-service/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// EventCache implements ports.EventCache using Redis.
// It only short-circuits redeliveries; the webhook_events table stays authoritative.
type EventCache struct {
	client *goredis.Client
	prefix string
}

// NewEventCache creates a new Redis-backed event cache.
func NewEventCache(client *goredis.Client) *EventCache {
	return &EventCache{
		client: client,
		prefix: "webhook-event:",
	}
}

// Lookup returns the remembered outcome for an event key, or "" if unknown.
func (c *EventCache) Lookup(ctx context.Context, key string) (domain.EventOutcome, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis event cache get: %w", err)
	}
	return domain.EventOutcome(val), nil
}

// Remember stores a final outcome for an event key. An existing entry is kept.
func (c *EventCache) Remember(ctx context.Context, key string, outcome domain.EventOutcome, ttl time.Duration) error {
	err := c.client.SetArgs(ctx, c.prefix+key, string(outcome), goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Err()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("redis event cache set: %w", err)
	}
	return nil
}
