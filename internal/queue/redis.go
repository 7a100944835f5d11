package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const receiveBlock = 5 * time.Second

// RedisQueue is a reliable Redis list queue. Enqueued messages wait on the
// main list; Receive moves one onto a pending list and records its
// visibility deadline in a sorted set; RequeueExpired returns timed-out
// messages to the main list, which makes delivery at-least-once.
type RedisQueue struct {
	rdb               *redis.Client
	name              string
	visibilityTimeout time.Duration
}

func NewRedisQueue(rdb *redis.Client, name string, visibilityTimeout time.Duration) *RedisQueue {
	return &RedisQueue{rdb: rdb, name: name, visibilityTimeout: visibilityTimeout}
}

func (q *RedisQueue) queueKey() string    { return q.name }
func (q *RedisQueue) pendingKey() string  { return q.name + ":pending" }
func (q *RedisQueue) inflightKey() string { return q.name + ":inflight" }
func (q *RedisQueue) dlqKey() string      { return q.name + ":dlq" }

func (q *RedisQueue) Enqueue(ctx context.Context, body []byte) error {
	raw, err := encode(Message{ID: uuid.NewString(), Body: body})
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, q.queueKey(), raw).Err(); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

func (q *RedisQueue) Receive(ctx context.Context) (*Delivery, error) {
	for {
		raw, err := q.rdb.BLMove(ctx, q.queueKey(), q.pendingKey(), "RIGHT", "LEFT", receiveBlock).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("receive: %w", err)
		}

		deadline := time.Now().Add(q.visibilityTimeout).Unix()
		if err := q.rdb.ZAdd(ctx, q.inflightKey(), redis.Z{Score: float64(deadline), Member: raw}).Err(); err != nil {
			// Without a deadline the sweeper would never see this message;
			// push it back rather than stranding it on the pending list.
			q.rdb.LMove(ctx, q.pendingKey(), q.queueKey(), "LEFT", "RIGHT")
			return nil, fmt.Errorf("receive: track in-flight: %w", err)
		}

		var m Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			// Not one of our envelopes; park it rather than redelivering it
			// forever.
			_ = q.park(ctx, raw)
			continue
		}
		return &Delivery{Messages: []Message{m}}, nil
	}
}

func (q *RedisQueue) Ack(ctx context.Context, m Message) error {
	raw, err := encode(m)
	if err != nil {
		return err
	}
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.pendingKey(), 1, raw)
	pipe.ZRem(ctx, q.inflightKey(), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack %s: %w", m.ID, err)
	}
	return nil
}

func (q *RedisQueue) DeadLetter(ctx context.Context, m Message) error {
	raw, err := encode(m)
	if err != nil {
		return err
	}
	if err := q.park(ctx, raw); err != nil {
		return fmt.Errorf("dead-letter %s: %w", m.ID, err)
	}
	return nil
}

// RequeueExpired moves messages whose visibility deadline has passed back
// onto the main queue for redelivery. It returns the number requeued; a
// sweeper calls it periodically.
func (q *RedisQueue) RequeueExpired(ctx context.Context, now time.Time) (int, error) {
	raws, err := q.rdb.ZRangeByScore(ctx, q.inflightKey(), &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now.Unix(), 10), Offset: 0, Count: 100,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("requeue expired: %w", err)
	}
	if len(raws) == 0 {
		return 0, nil
	}

	pipe := q.rdb.TxPipeline()
	for _, raw := range raws {
		pipe.LRem(ctx, q.pendingKey(), 1, raw)
		pipe.ZRem(ctx, q.inflightKey(), raw)
		pipe.LPush(ctx, q.queueKey(), raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("requeue expired: %w", err)
	}
	return len(raws), nil
}

// park removes a raw entry from the pending list and in-flight set and
// pushes it onto the dead-letter list.
func (q *RedisQueue) park(ctx context.Context, raw string) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.pendingKey(), 1, raw)
	pipe.ZRem(ctx, q.inflightKey(), raw)
	pipe.LPush(ctx, q.dlqKey(), raw)
	_, err := pipe.Exec(ctx)
	return err
}

// encode marshals a message envelope. Marshaling is deterministic for a
// given message, so the result matches the list entry written by Enqueue and
// can be used with LREM/ZREM.
func encode(m Message) (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	return string(raw), nil
}
