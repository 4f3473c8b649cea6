package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Stage/internal/core"
)

var (
	_ core.EventSink = (*KafkaSink)(nil)
	_ core.EventSink = (*RedisSink)(nil)
	_ core.EventSink = LogSink{}
	_ core.EventSink = Multi{}
)

func TestRedisSinkPublishes(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sub := client.Subscribe(ctx, DefaultChannel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	sink := NewRedisSink(client, "")
	require.NoError(t, sink.Emit(ctx, core.RoomEvent{Type: core.EventViewerCount, RoomID: "room-1", ViewerCount: 3}))

	select {
	case msg := <-sub.Channel():
		var got core.RoomEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, core.EventViewerCount, got.Type)
		assert.Equal(t, 3, got.ViewerCount)
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}
}

type failingSink struct{ calls int }

func (f *failingSink) Emit(context.Context, core.RoomEvent) error {
	f.calls++
	return errors.New("down")
}

func TestMultiCallsEverySink(t *testing.T) {
	a, b := &failingSink{}, &failingSink{}
	err := Multi{a, LogSink{}, b}.Emit(context.Background(), core.RoomEvent{Type: core.EventRoomOpened})
	assert.Error(t, err)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)

	assert.NoError(t, Multi{}.Emit(context.Background(), core.RoomEvent{}))
}
