package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	processedTTL = 24 * time.Hour
	attemptTTL   = time.Hour
)

// DeliveryTracker remembers which envelopes a queue has already applied and
// how many times each one has been attempted.
//
// Key format:
//
//	delivery:done:<queue>:<event_id>
//	delivery:attempts:<queue>:<event_id>
type DeliveryTracker struct {
	client *redis.Client
}

// NewDeliveryTracker creates a DeliveryTracker wrapping the given Redis client.
func NewDeliveryTracker(client *redis.Client) *DeliveryTracker {
	return &DeliveryTracker{client: client}
}

// IsProcessed reports whether eventID was already applied on queue.
func (t *DeliveryTracker) IsProcessed(ctx context.Context, queue, eventID string) (bool, error) {
	n, err := t.client.Exists(ctx, t.doneKey(queue, eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("delivery check: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed records that eventID was applied on queue (expires after processedTTL).
func (t *DeliveryTracker) MarkProcessed(ctx context.Context, queue, eventID string) error {
	if err := t.client.Set(ctx, t.doneKey(queue, eventID), "1", processedTTL).Err(); err != nil {
		return fmt.Errorf("delivery mark: %w", err)
	}
	return nil
}

// Attempt increments and returns the attempt counter for eventID on queue.
func (t *DeliveryTracker) Attempt(ctx context.Context, queue, eventID string) (int64, error) {
	key := t.attemptsKey(queue, eventID)
	pipe := t.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, attemptTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("delivery attempt: %w", err)
	}
	return incr.Val(), nil
}

// Forget drops the attempt counter once eventID is settled.
func (t *DeliveryTracker) Forget(ctx context.Context, queue, eventID string) error {
	return t.client.Del(ctx, t.attemptsKey(queue, eventID)).Err()
}

func (t *DeliveryTracker) doneKey(queue, eventID string) string {
	return fmt.Sprintf("delivery:done:%s:%s", queue, eventID)
}

func (t *DeliveryTracker) attemptsKey(queue, eventID string) string {
	return fmt.Sprintf("delivery:attempts:%s:%s", queue, eventID)
}
