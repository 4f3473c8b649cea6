package orch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Stage/internal/app"
	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	mu     sync.Mutex
	sent   int
	full   bool
	closed bool
}

func (c *mockConn) TrySend(core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return errors.New("backpressure")
	}
	c.sent++
	return nil
}

func (c *mockConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *mockConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fixedPIN domain.PIN

func (p fixedPIN) Generate() (domain.PIN, error) { return domain.PIN(p), nil }

func newOrchestrator() *Orchestrator {
	rooms := core.NewRegistry(core.RegistryConfig{PINs: fixedPIN("1234")})
	return &Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    rooms,
		Relay:    core.NewRelay(rooms),
		Policy:   app.SimplePolicy{},
	}
}

func TestSlowViewerIsKicked(t *testing.T) {
	o := newOrchestrator()
	ctx := context.Background()
	op, slow, fast := &mockConn{}, &mockConn{}, &mockConn{}

	var canceled bool
	o.Connect("op", "u1", op, func() {})
	o.Connect("slow", "u2", slow, func() { canceled = true })
	o.Connect("fast", "u3", fast, func() {})

	_, err := o.JoinOperator(ctx, "op", "room-1", "u1")
	require.NoError(t, err)
	_, err = o.JoinViewer(ctx, "slow", domain.ByPIN("1234"))
	require.NoError(t, err)
	_, err = o.JoinViewer(ctx, "fast", domain.ByPIN("1234"))
	require.NoError(t, err)

	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	res, err := o.Publish("op", domain.StateUpdate{RoomID: "room-1", Kind: domain.KindQuickText, QuickSlideText: "hi"})
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectionID{"slow"}, res.Dropped)

	assert.True(t, canceled)
	assert.True(t, slow.isClosed())
	assert.False(t, fast.isClosed())
	n, err := o.Rooms.ViewerCount("room-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDisconnectKeepsOperatorRoom(t *testing.T) {
	o := newOrchestrator()
	ctx := context.Background()

	o.Connect("op", "u1", &mockConn{}, nil)
	_, err := o.JoinOperator(ctx, "op", "room-1", "u1")
	require.NoError(t, err)
	_, err = o.Publish("op", domain.StateUpdate{RoomID: "room-1", Kind: domain.KindBackground, BackgroundImage: "a.png"})
	require.NoError(t, err)

	o.OnDisconnect("op")
	_, ok := o.Registry.GetSession("op")
	assert.False(t, ok)

	o.Connect("v", "u2", &mockConn{}, nil)
	res, err := o.JoinViewer(ctx, "v", domain.ByPIN("1234"))
	require.NoError(t, err)
	assert.Equal(t, "a.png", res.Snapshot.State.BackgroundImage)

	_, err = o.Publish("op", domain.StateUpdate{RoomID: "room-1", Kind: domain.KindBackground})
	assert.ErrorIs(t, err, domain.ErrNotOperator)
}

func TestJoinRequiresSession(t *testing.T) {
	o := newOrchestrator()
	_, err := o.JoinOperator(context.Background(), "ghost", "room-1", "u")
	assert.ErrorIs(t, err, domain.ErrConnectionUnavailable)
	_, err = o.JoinViewer(context.Background(), "ghost", domain.ByPIN("1234"))
	assert.ErrorIs(t, err, domain.ErrConnectionUnavailable)
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	o := newOrchestrator()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.RunSweeper(ctx, 10*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
