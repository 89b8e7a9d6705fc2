package repository

import (
	"context"
	"encoding/json"

	"github.com/GoPolymarket/solvergate/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisAuditRepo keeps the newest audit entries in a capped list. Queries scan
// a window of the list head, so old entries age out rather than being searchable.
type RedisAuditRepo struct {
	client  *RedisClient
	listKey string
	listMax int
}

func NewRedisAuditRepo(client *RedisClient, listKey string, listMax int) *RedisAuditRepo {
	if listKey == "" {
		listKey = "solvergate:audit_logs"
	}
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisAuditRepo{client: client, listKey: listKey, listMax: listMax}
}

func (r *RedisAuditRepo) Insert(ctx context.Context, entry *model.AuditLog) error {
	if entry == nil {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = r.client.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.listKey, payload)
		pipe.LTrim(ctx, r.listKey, 0, int64(r.listMax-1))
		return nil
	})
	return err
}

func (r *RedisAuditRepo) List(ctx context.Context, q model.AuditQuery) ([]*model.AuditLog, error) {
	window := q.PageSize() * 5
	if q.Caller == "" && q.Digest == "" && q.From == nil && q.To == nil {
		window = q.PageSize()
	}
	if window > r.listMax {
		window = r.listMax
	}
	items, err := r.client.Client.LRange(ctx, r.listKey, 0, int64(window-1)).Result()
	if err != nil {
		return nil, err
	}
	return filterAudit(items, q), nil
}

// filterAudit decodes newest-first entries and keeps those q matches.
func filterAudit(items []string, q model.AuditQuery) []*model.AuditLog {
	limit := q.PageSize()
	out := make([]*model.AuditLog, 0, limit)
	for _, raw := range items {
		var entry model.AuditLog
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		if !q.Matches(&entry) {
			continue
		}
		out = append(out, &entry)
		if len(out) >= limit {
			break
		}
	}
	return out
}
