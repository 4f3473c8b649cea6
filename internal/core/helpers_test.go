package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Stage/internal/domain"
	"github.com/dkeye/Stage/internal/protocol"
	"github.com/stretchr/testify/require"
)

var errFull = errors.New("full")

type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errFull
	}
	c.frames = append(c.frames, append(Frame(nil), f...))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) messages(t *testing.T) []protocol.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Message, 0, len(c.frames))
	for _, f := range c.frames {
		m, err := protocol.Decode(f)
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func messagesOf[M protocol.Message](t *testing.T, c *fakeConn) []M {
	t.Helper()
	var out []M
	for _, m := range c.messages(t) {
		if typed, ok := m.(M); ok {
			out = append(out, typed)
		}
	}
	return out
}

type seqPINs struct {
	mu   sync.Mutex
	pins []domain.PIN
	next int
}

func (g *seqPINs) Generate() (domain.PIN, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	if g.next <= len(g.pins) {
		return g.pins[g.next-1], nil
	}
	return domain.PIN(fmt.Sprintf("%04d", g.next)), nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeDirectory struct {
	slugs map[domain.Slug]domain.RoomID
}

func (d fakeDirectory) ResolveSlug(_ context.Context, slug domain.Slug) (domain.RoomID, error) {
	if id, ok := d.slugs[slug]; ok {
		return id, nil
	}
	return "", domain.ErrRoomNotFound
}

func (d fakeDirectory) SlugOf(_ context.Context, id domain.RoomID) (domain.Slug, error) {
	for s, rid := range d.slugs {
		if rid == id {
			return s, nil
		}
	}
	return "", nil
}

type fixture struct {
	reg   *Registry
	relay *Relay
	clock *fakeClock
}

func newFixture(pins ...domain.PIN) *fixture {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	reg := NewRegistry(RegistryConfig{
		PINs:        &seqPINs{pins: pins},
		GracePeriod: time.Minute,
		Now:         clock.Now,
	})
	return &fixture{reg: reg, relay: NewRelay(reg), clock: clock}
}

func slideUpdate(room domain.RoomID, idx int) domain.StateUpdate {
	return domain.StateUpdate{RoomID: room, Kind: domain.KindSlide, Slide: &domain.Slide{SongID: "song", SlideIndex: idx}}
}
