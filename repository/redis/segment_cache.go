package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/segments/domain"
	"github.com/fastygo/segments/repository"
)

// fillScript stores the segment only while the generation key still holds
// the token the reader saw before it went to the database.
var fillScript = redislib.NewScript(`
local current = redis.call('GET', KEYS[2])
if (current or '') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

type segmentCache struct {
	client        *redislib.Client
	prefix        string
	ttl           time.Duration
	generationTTL time.Duration
}

// NewSegmentCache creates a Redis-backed read-through cache for segments.
// Each segment has a generation key next to its value. Invalidate rotates
// the generation, so a fill computed from a read that predates a write is
// refused.
func NewSegmentCache(client *redislib.Client, ttl time.Duration) repository.SegmentCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	generationTTL := 24 * time.Hour
	if generationTTL < 2*ttl {
		generationTTL = 2 * ttl
	}
	return &segmentCache{
		client:        client,
		prefix:        "segment:",
		ttl:           ttl,
		generationTTL: generationTTL,
	}
}

func (c *segmentCache) Get(ctx context.Context, id int64) (*domain.Segment, string, error) {
	values, err := c.client.MGet(ctx, c.key(id), c.generationKey(id)).Result()
	if err != nil {
		return nil, "", err
	}

	generation, _ := values[1].(string)
	raw, ok := values[0].(string)
	if !ok {
		return nil, generation, nil
	}

	var segment domain.Segment
	if err := json.Unmarshal([]byte(raw), &segment); err != nil {
		return nil, generation, err
	}
	return &segment, generation, nil
}

func (c *segmentCache) Set(ctx context.Context, segment *domain.Segment, generation string) (bool, error) {
	if segment == nil || segment.ID <= 0 {
		return false, domain.ErrInvalidPayload
	}
	payload, err := json.Marshal(segment)
	if err != nil {
		return false, err
	}
	stored, err := fillScript.Run(ctx, c.client,
		[]string{c.key(segment.ID), c.generationKey(segment.ID)},
		generation, payload, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

func (c *segmentCache) Invalidate(ctx context.Context, id int64) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redislib.Pipeliner) error {
		pipe.Del(ctx, c.key(id))
		pipe.Set(ctx, c.generationKey(id), uuid.NewString(), c.generationTTL)
		return nil
	})
	return err
}

func (c *segmentCache) key(id int64) string {
	return fmt.Sprintf("%s%d", c.prefix, id)
}

func (c *segmentCache) generationKey(id int64) string {
	return fmt.Sprintf("%s%d:generation", c.prefix, id)
}
