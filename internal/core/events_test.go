package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Stage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []RoomEvent
}

func (s *recordingSink) Emit(_ context.Context, e RoomEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) types() []RoomEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RoomEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

func TestRegistryEmitsLifecycleEvents(t *testing.T) {
	sink := &recordingSink{}
	n := NewNotifier(sink, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = n.Run(ctx)
		close(done)
	}()

	reg := NewRegistry(RegistryConfig{PINs: &seqPINs{pins: []domain.PIN{"1111"}}, Events: n})
	_, err := reg.JoinAsOperator(ctx, "room-1", "u1", "op1", &fakeConn{})
	require.NoError(t, err)
	_, err = reg.JoinAsViewer(ctx, domain.ByPIN("1111"), "v1", &fakeConn{})
	require.NoError(t, err)
	_, err = reg.JoinAsOperator(ctx, "room-1", "u2", "op2", &fakeConn{})
	require.NoError(t, err)
	require.NoError(t, reg.Close("room-1"))

	want := []RoomEventType{
		EventRoomOpened,
		EventOperatorJoined,
		EventViewerCount,
		EventOperatorEvicted,
		EventOperatorJoined,
		EventRoomClosed,
	}
	assert.Eventually(t, func() bool { return len(sink.types()) == len(want) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, sink.types())

	cancel()
	<-done
}

func TestOperatorRejoinEmitsNoLeave(t *testing.T) {
	sink := &recordingSink{}
	n := NewNotifier(sink, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = n.Run(ctx)
		close(done)
	}()

	reg := NewRegistry(RegistryConfig{PINs: &seqPINs{pins: []domain.PIN{"1111"}}, Events: n})
	op := &fakeConn{}
	_, err := reg.JoinAsOperator(ctx, "room-1", "u1", "op1", op)
	require.NoError(t, err)
	_, err = reg.JoinAsOperator(ctx, "room-1", "u1", "op1", op)
	require.NoError(t, err)

	want := []RoomEventType{
		EventRoomOpened,
		EventOperatorJoined,
		EventOperatorJoined,
	}
	assert.Eventually(t, func() bool { return len(sink.types()) == len(want) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, sink.types())
	assert.NotContains(t, sink.types(), EventOperatorLeft)

	role, room := reg.RoleOf("op1")
	assert.Equal(t, domain.RoleOperator, role)
	assert.Equal(t, domain.RoomID("room-1"), room)

	cancel()
	<-done
}

func TestNotifierDropsWhenFull(t *testing.T) {
	n := NewNotifier(&recordingSink{}, 1)
	n.Notify(RoomEvent{Type: EventRoomOpened})
	n.Notify(RoomEvent{Type: EventRoomClosed})
	assert.Len(t, n.ch, 1)

	var nilNotifier *Notifier
	assert.NotPanics(t, func() { nilNotifier.Notify(RoomEvent{}) })
}

func TestNanoPINGenerator(t *testing.T) {
	_, err := NewNanoPINGenerator(2)
	assert.Error(t, err)

	g, err := NewNanoPINGenerator(6)
	require.NoError(t, err)
	pin, err := g.Generate()
	require.NoError(t, err)
	assert.Len(t, string(pin), 6)
	assert.Regexp(t, `^[0-9]{6}$`, string(pin))
}
