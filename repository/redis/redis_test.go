package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/segments/domain"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redislib.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redislib.NewClient(&redislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestSegmentCacheRoundTrip(t *testing.T) {
	mr, client := setupTestRedis(t)
	cache := NewSegmentCache(client, time.Minute)
	ctx := context.Background()

	miss, generation, err := cache.Get(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, miss)
	assert.Empty(t, generation)

	desc := "weekly actives"
	segment := &domain.Segment{
		ID:          3,
		TableID:     1,
		CreatorID:   7,
		Name:        "Active Users",
		Description: &desc,
		Definition:  domain.Definition{"filter": []any{"=", "status", "active"}},
		IsActive:    true,
	}
	stored, err := cache.Set(ctx, segment, generation)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, time.Minute, mr.TTL("segment:3"))

	hit, _, err := cache.Get(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "Active Users", hit.Name)
	assert.Equal(t, "weekly actives", *hit.Description)
	assert.Equal(t, segment.Definition, hit.Definition)

	require.NoError(t, cache.Invalidate(ctx, 3))
	miss, generation, err = cache.Get(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, miss)
	assert.NotEmpty(t, generation)
	assert.True(t, mr.Exists("segment:3:generation"))

	_, err = cache.Set(ctx, &domain.Segment{}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestSegmentCacheRefusesFillAfterInvalidate(t *testing.T) {
	mr, client := setupTestRedis(t)
	cache := NewSegmentCache(client, time.Minute)
	ctx := context.Background()

	_, before, err := cache.Get(ctx, 5)
	require.NoError(t, err)

	// A write commits and invalidates while the reader holds the old row.
	require.NoError(t, cache.Invalidate(ctx, 5))

	stale := &domain.Segment{ID: 5, Name: "old", Definition: domain.Definition{"a": "b"}, IsActive: true}
	stored, err := cache.Set(ctx, stale, before)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.False(t, mr.Exists("segment:5"))

	_, after, err := cache.Get(ctx, 5)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	fresh := &domain.Segment{ID: 5, Name: "new", Definition: domain.Definition{"a": "b"}}
	stored, err = cache.Set(ctx, fresh, after)
	require.NoError(t, err)
	assert.True(t, stored)

	hit, _, err := cache.Get(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "new", hit.Name)
}

func TestSegmentCacheExpires(t *testing.T) {
	mr, client := setupTestRedis(t)
	cache := NewSegmentCache(client, time.Second)
	ctx := context.Background()

	stored, err := cache.Set(ctx, &domain.Segment{ID: 1, Name: "a", Definition: domain.Definition{"a": "b"}}, "")
	require.NoError(t, err)
	require.True(t, stored)
	mr.FastForward(2 * time.Second)

	miss, _, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestSegmentCacheReportsConnectionErrors(t *testing.T) {
	mr, client := setupTestRedis(t)
	cache := NewSegmentCache(client, time.Minute)
	mr.Close()

	_, _, err := cache.Get(context.Background(), 1)
	assert.Error(t, err)
}

func TestEventChannelPublishes(t *testing.T) {
	_, client := setupTestRedis(t)
	channel := NewEventChannel(client, "")
	assert.Equal(t, DefaultEventChannel, channel.Channel())
	ctx := context.Background()

	sub := client.Subscribe(ctx, channel.Channel())
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, channel.SendRaw(ctx, []byte(`{"name":"segment-create"}`)))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, `{"name":"segment-create"}`, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}
