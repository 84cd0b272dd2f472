package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/commonpurse/commonpurse/internal/activity"
	"github.com/commonpurse/commonpurse/internal/treasury"
)

// maxStreamLen bounds the stream; consumers needing full history read the
// activities table.
const maxStreamLen = 10_000

// Publisher appends activities to a Redis stream.
type Publisher struct {
	rdb    *redis.Client
	stream string
}

func NewPublisher(url, stream string) (*Publisher, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	return &Publisher{rdb: redis.NewClient(opt), stream: stream}, nil
}

func (p *Publisher) Publish(ctx context.Context, a *treasury.Activity) error {
	values, err := streamValues(a)
	if err != nil {
		return err
	}

	_, err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("adding activity to stream: %w", err)
	}

	return nil
}

func (p *Publisher) Close() error {
	return p.rdb.Close()
}

func streamValues(a *treasury.Activity) (map[string]any, error) {
	payload, err := json.Marshal(activity.NewEvent(a))
	if err != nil {
		return nil, fmt.Errorf("encoding activity: %w", err)
	}

	return map[string]any{
		"kind":         string(a.Kind),
		"community_id": a.CommunityID.String(),
		"payload":      string(payload),
	}, nil
}
