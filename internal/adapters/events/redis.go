package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dkeye/Stage/internal/core"
)

const DefaultChannel = "stage:room_updates"

// RedisSink publishes room events to a pub/sub channel, for presence dashboards.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Emit(ctx context.Context, e core.RoomEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal room event: %w", err)
	}
	return s.client.Publish(ctx, s.channel, data).Err()
}
