package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one JSON record per contact id. The record's expiry is
// mirrored onto the key itself, so Redis garbage-collects for us.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) key(contactID string) string { return "job:" + contactID }

func (s *RedisStore) PutQueued(ctx context.Context, contactID string) (*Record, error) {
	rec := &Record{
		ContactID:  contactID,
		Status:     StatusQueued,
		ExpiryTime: time.Now().Add(s.ttl).Unix(),
	}
	if err := s.set(ctx, s.rdb, rec); err != nil {
		return nil, fmt.Errorf("put queued %s: %w", contactID, err)
	}
	return rec, nil
}

func (s *RedisStore) PutTerminal(ctx context.Context, rec *Record) (*Record, error) {
	if !rec.Status.Terminal() {
		return nil, fmt.Errorf("put terminal %s: status %q is not terminal", rec.ContactID, rec.Status)
	}

	key := s.key(rec.ContactID)
	var stored Record

	// WATCH the key so a racing duplicate delivery cannot slip its outcome
	// in between our read and write.
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var current Record
			if jerr := json.Unmarshal(data, &current); jerr == nil && current.Status.Terminal() {
				// Keep the first recorded outcome.
				stored = current
				return nil
			}
		case !errors.Is(err, redis.Nil):
			return err
		}

		stored = *rec
		stored.ExpiryTime = time.Now().Add(s.ttl).Unix()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.set(ctx, pipe, &stored)
		})
		return err
	}

	const retries = 3
	for i := 0; i < retries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return &stored, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, fmt.Errorf("put terminal %s: %w", rec.ContactID, err)
	}
	return nil, fmt.Errorf("put terminal %s: %w", rec.ContactID, redis.TxFailedErr)
}

func (s *RedisStore) Get(ctx context.Context, contactID string) (*Record, error) {
	data, err := s.rdb.Get(ctx, s.key(contactID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", contactID, err)
	}
	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", contactID, err)
	}
	return rec, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) set(ctx context.Context, c redis.Cmdable, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.SetArgs(ctx, s.key(rec.ContactID), data, redis.SetArgs{
		ExpireAt: time.Unix(rec.ExpiryTime, 0),
	}).Err()
}
