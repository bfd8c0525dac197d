package feed

import (
	"context"
	"fmt"
	"strconv"

	sonic "github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/impact"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
)

const (
	DefaultStreamName = "fantasy.impacts"
	DefaultMaxLen     = 10000
)

// RedisStreamPublisher appends every attributed impact to a Redis stream so
// downstream consumers can follow the feed with XREAD.
type RedisStreamPublisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
	logger *logging.Logger
}

func NewRedisStreamPublisher(client redis.UniversalClient, stream string, maxLen int64, logger *logging.Logger) *RedisStreamPublisher {
	if stream == "" {
		stream = DefaultStreamName
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen, logger: logger}
}

// Publish writes one stream entry per impact in a single pipeline. It has the
// impact subscriber signature.
func (p *RedisStreamPublisher) Publish(ctx context.Context, impacts []impact.FantasyImpact) error {
	if len(impacts) == 0 {
		return nil
	}

	pipe := p.client.Pipeline()
	for _, in := range impacts {
		values, err := streamValues(in)
		if err != nil {
			return err
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Approx: true,
			Values: values,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %d impacts to stream=%s: %w", len(impacts), p.stream, err)
	}

	p.logger.DebugContext(ctx, "impacts published", "stream", p.stream, "count", len(impacts))
	return nil
}

func (p *RedisStreamPublisher) Stream() string {
	return p.stream
}

func streamValues(in impact.FantasyImpact) (map[string]any, error) {
	data, err := sonic.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal impact event_id=%s league_id=%s: %w", in.Event.ID, in.LeagueID, err)
	}
	return map[string]any{
		"data":      string(data),
		"league_id": in.LeagueID,
		"event_id":  in.Event.ID,
		"kind":      string(in.Kind),
		"points":    strconv.FormatFloat(in.Points, 'f', 2, 64),
		"timestamp": in.Event.DetectedAt.Unix(),
	}, nil
}
