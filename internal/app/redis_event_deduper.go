/**
 * @description
 * Redis-backed fast-path duplicate filter for entitlement webhook deliveries.
 * This sits in front of the authoritative database event marker: a Redis
 * outage only costs the fast path, never correctness, so every operation here
 * degrades to "not seen".
 */

package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEventDeduper implements EventDeduper using plain keys with a TTL.
// Keys are written only after the database has committed the event, so a
// crash between the two never suppresses a legitimate retry.
type RedisEventDeduper struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisEventDeduper creates a deduper. An empty prefix falls back to the
// service default; a non-positive TTL falls back to 24 hours.
func NewRedisEventDeduper(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisEventDeduper {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "pantrychef:entitlement_events"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisEventDeduper{
		client: client,
		prefix: trimmedPrefix,
		ttl:    ttl,
	}
}

func (d *RedisEventDeduper) key(eventID string) string {
	return fmt.Sprintf("%s:%s", d.prefix, eventID)
}

// Seen reports whether the event ID was recently processed.
func (d *RedisEventDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	if d == nil || d.client == nil {
		return false, nil
	}
	count, err := d.client.Exists(ctx, d.key(eventID)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkSeen records the event ID for the configured TTL.
func (d *RedisEventDeduper) MarkSeen(ctx context.Context, eventID string) error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Set(ctx, d.key(eventID), 1, d.ttl).Err()
}
