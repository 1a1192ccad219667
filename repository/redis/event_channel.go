package redis

import (
	"context"

	redislib "github.com/redis/go-redis/v9"
)

// DefaultEventChannel is the pub/sub channel segment events are relayed to.
const DefaultEventChannel = "segments.events"

// EventChannel publishes committed segment events on a Redis pub/sub channel
// so other services (permission caches, audit pipelines) can react.
type EventChannel struct {
	client  *redislib.Client
	channel string
}

func NewEventChannel(client *redislib.Client, channel string) *EventChannel {
	if channel == "" {
		channel = DefaultEventChannel
	}
	return &EventChannel{client: client, channel: channel}
}

// SendRaw publishes an already encoded event.
func (c *EventChannel) SendRaw(ctx context.Context, payload []byte) error {
	return c.client.Publish(ctx, c.channel, payload).Err()
}

func (c *EventChannel) Channel() string {
	return c.channel
}
