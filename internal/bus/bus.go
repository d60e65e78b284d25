// Package bus is the at-least-once delivery transport between the
// submission side and the background consumers. It is a thin layer over
// Redis lists: RPUSH to publish, BLPOP to consume, RPUSH again to requeue.
// Consumers must deduplicate — the bus never promises exactly-once.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/examflow/examflow-backend/internal/model"
)

// ErrEmpty is returned by Pop when the queue had nothing within the timeout.
var ErrEmpty = errors.New("queue empty")

// Bus connects producers and consumers through Redis.
type Bus struct {
	rdb *redis.Client
}

// New creates a Bus over the given Redis client.
func New(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb}
}

// Publish appends an envelope to the queue.
func (b *Bus) Publish(ctx context.Context, queue string, env model.EventEnvelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.rdb.RPush(ctx, queue, raw).Err()
}

// Pop blocks up to timeout for the next envelope. Returns ErrEmpty on an
// idle queue so worker loops can poll without treating it as a failure.
func (b *Bus) Pop(ctx context.Context, queue string, timeout time.Duration) (model.EventEnvelope, error) {
	item, err := b.rdb.BLPop(ctx, timeout, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.EventEnvelope{}, ErrEmpty
		}
		return model.EventEnvelope{}, err
	}
	if len(item) < 2 {
		return model.EventEnvelope{}, ErrEmpty
	}

	var env model.EventEnvelope
	if err := json.Unmarshal([]byte(item[1]), &env); err != nil {
		return model.EventEnvelope{}, err
	}
	return env, nil
}

// Requeue puts an envelope back for a later retry.
func (b *Bus) Requeue(ctx context.Context, queue string, env model.EventEnvelope) error {
	return b.Publish(ctx, queue, env)
}

// Announce broadcasts an envelope on a pub/sub channel. Fire-and-forget:
// live watchers are a convenience, the durable path is the queue.
func (b *Bus) Announce(ctx context.Context, channel string, env model.EventEnvelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel, raw).Err()
}

// Subscribe returns a pub/sub subscription for a channel. The caller owns
// closing it.
func (b *Bus) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return b.rdb.Subscribe(ctx, channel)
}
