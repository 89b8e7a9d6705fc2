package repository

import (
	"context"
	"encoding/json"

	"github.com/GoPolymarket/solvergate/internal/settlement"
	"github.com/redis/go-redis/v9"
)

// RedisEventStream appends settlement events to a capped Redis stream.
type RedisEventStream struct {
	client *RedisClient
	stream string
	maxLen int64
}

func NewRedisEventStream(client *RedisClient, stream string, maxLen int64) *RedisEventStream {
	if stream == "" {
		stream = "solvergate:events"
	}
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &RedisEventStream{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisEventStream) Publish(ctx context.Context, ev settlement.Event) error {
	values, err := streamValues(ev)
	if err != nil {
		return err
	}
	return s.client.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err()
}

// streamValues flattens ev into stream fields: kind and identity for consumers
// that filter, plus the full JSON payload.
func streamValues(ev settlement.Event) (map[string]interface{}, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"kind":     string(ev.Kind),
		"identity": ev.Identity.Hex(),
		"payload":  string(payload),
	}, nil
}

var _ settlement.Publisher = (*RedisEventStream)(nil)
