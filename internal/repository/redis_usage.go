package repository

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/GoPolymarket/solvergate/internal/policy"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

const usageWatchRetries = 5

// RedisUsageRepo keeps one hash per signer and UTC day with fields orders and volume.
// volume is a decimal string; HINCRBYFLOAT would lose precision above 2^53.
type RedisUsageRepo struct {
	client *RedisClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisUsageRepo(client *RedisClient) *RedisUsageRepo {
	return &RedisUsageRepo{
		client: client,
		prefix: "usage",
		ttl:    48 * time.Hour,
		now:    time.Now,
	}
}

func (r *RedisUsageRepo) GetDailyUsage(ctx context.Context, signer common.Address) (int, *big.Int, error) {
	vals, err := r.client.Client.HMGet(ctx, r.makeKey(signer), "orders", "volume").Result()
	if err != nil {
		return 0, nil, err
	}
	return parseUsage(vals)
}

func (r *RedisUsageRepo) AddDailyUsage(ctx context.Context, signer common.Address, orders int, amount *big.Int) error {
	key := r.makeKey(signer)
	if amount == nil {
		amount = new(big.Int)
	}
	txf := func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, "volume").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		vol, err := decodeAmount(cur)
		if err != nil {
			return err
		}
		vol.Add(vol, amount)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "volume", vol.String())
			pipe.HIncrBy(ctx, key, "orders", int64(orders))
			pipe.Expire(ctx, key, r.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < usageWatchRetries; i++ {
		err := r.client.Client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("usage update for %s contended", signer.Hex())
}

func (r *RedisUsageRepo) makeKey(signer common.Address) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, signer.Hex(), policy.DayKey(r.now()))
}

// parseUsage decodes an HMGET reply of [orders, volume]; missing fields count as zero.
func parseUsage(vals []interface{}) (int, *big.Int, error) {
	orders := 0
	vol := new(big.Int)
	if len(vals) != 2 {
		return 0, nil, fmt.Errorf("unexpected usage reply of %d fields", len(vals))
	}
	if s, ok := vals[0].(string); ok && s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, nil, fmt.Errorf("invalid stored order count %q", s)
		}
		orders = n
	}
	if s, ok := vals[1].(string); ok {
		v, err := decodeAmount(s)
		if err != nil {
			return 0, nil, err
		}
		vol = v
	}
	return orders, vol, nil
}

var _ policy.UsageRepo = (*RedisUsageRepo)(nil)
