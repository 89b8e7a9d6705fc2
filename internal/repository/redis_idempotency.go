package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/GoPolymarket/solvergate/internal/middleware"
	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyStore keeps one JSON record per key; Redis expiry enforces the TTL.
type RedisIdempotencyStore struct {
	client *RedisClient
	ttl    time.Duration
	prefix string
}

func NewRedisIdempotencyStore(client *RedisClient, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl, prefix: "solvergate:idem:"}
}

func (s *RedisIdempotencyStore) GetOrLock(ctx context.Context, key, fingerprint string) (*middleware.IdempotencyRecord, bool, error) {
	lock, err := encodeIdemRecord(middleware.IdempotencyRecord{
		Fingerprint: fingerprint,
		Processing:  true,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, false, err
	}
	locked, err := s.client.Client.SetNX(ctx, s.prefix+key, lock, s.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock idempotency key: %w", err)
	}
	if locked {
		return nil, false, nil
	}
	raw, err := s.client.Client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; the next attempt will lock it
		return &middleware.IdempotencyRecord{Fingerprint: fingerprint, Processing: true}, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read idempotency key: %w", err)
	}
	rec, err := decodeIdemRecord(raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode idempotency record: %w", err)
	}
	return rec, true, nil
}

func (s *RedisIdempotencyStore) Save(ctx context.Context, key string, rec middleware.IdempotencyRecord) error {
	rec.CreatedAt = time.Now().UTC()
	payload, err := encodeIdemRecord(rec)
	if err != nil {
		return err
	}
	return s.client.Client.Set(ctx, s.prefix+key, payload, s.ttl).Err()
}

func (s *RedisIdempotencyStore) Unlock(ctx context.Context, key string) error {
	return s.client.Client.Del(ctx, s.prefix+key).Err()
}

// idemWire is the stored JSON form; []byte bodies marshal as base64.
type idemWire struct {
	Fingerprint string `json:"fp"`
	Status      int    `json:"status"`
	Body        []byte `json:"body,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	Processing  bool   `json:"processing"`
}

func encodeIdemRecord(rec middleware.IdempotencyRecord) (string, error) {
	data, err := json.Marshal(idemWire{
		Fingerprint: rec.Fingerprint,
		Status:      rec.Status,
		Body:        rec.Body,
		CreatedAt:   rec.CreatedAt.Unix(),
		Processing:  rec.Processing,
	})
	return string(data), err
}

func decodeIdemRecord(raw string) (*middleware.IdempotencyRecord, error) {
	var wire idemWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, err
	}
	return &middleware.IdempotencyRecord{
		Fingerprint: wire.Fingerprint,
		Status:      wire.Status,
		Body:        wire.Body,
		CreatedAt:   time.Unix(wire.CreatedAt, 0).UTC(),
		Processing:  wire.Processing,
	}, nil
}

var _ middleware.IdempotencyStore = (*RedisIdempotencyStore)(nil)
