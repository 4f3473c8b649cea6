package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Stage/internal/domain"
	"github.com/dkeye/Stage/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var (
	errDial   = errors.New("dial refused")
	errClosed = errors.New("closed")
	errBroken = errors.New("broken pipe")
)

// fakeConn is the client end of an in-memory socket.
type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written []protocol.Message
	broken  bool
	onWrite func(c *fakeConn, m protocol.Message)
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 64), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-c.in:
		return websocket.TextMessage, b, nil
	case <-c.closed:
		return 0, nil, errClosed
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return errClosed
	default:
	}
	msg, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.broken {
		c.mu.Unlock()
		return errBroken
	}
	c.written = append(c.written, msg)
	hook := c.onWrite
	c.mu.Unlock()
	if hook != nil {
		hook(c, msg)
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// breakWrites makes later writes fail while reads keep blocking.
func (c *fakeConn) breakWrites() {
	c.mu.Lock()
	c.broken = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// push delivers a server message to the client.
func (c *fakeConn) push(t *testing.T, m protocol.Message) {
	t.Helper()
	b, err := protocol.Encode(m)
	require.NoError(t, err)
	c.in <- b
}

func (c *fakeConn) sent() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Message(nil), c.written...)
}

// sentExceptPing filters out heartbeats.
func (c *fakeConn) sentExceptPing() []protocol.Message {
	var out []protocol.Message
	for _, m := range c.sent() {
		if _, ok := m.(protocol.Ping); !ok {
			out = append(out, m)
		}
	}
	return out
}

type fakeDialer struct {
	mu      sync.Mutex
	fail    int
	failAll bool
	gate    chan struct{}
	dials   int
	onWrite func(c *fakeConn, m protocol.Message)
	conns   chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) DialContext(ctx context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAll || d.fail > 0 {
		d.fail--
		return nil, errDial
	}
	c := newFakeConn()
	c.onWrite = d.onWrite
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection dialed")
		return nil
	}
}

func testOptions(d *fakeDialer) Options {
	return Options{
		URL:               "ws://stage.test/api/ws",
		ReconnectAttempts: 3,
		ReconnectDelay:    time.Millisecond,
		ReconnectDelayMax: 4 * time.Millisecond,
		ConnectTimeout:    time.Second,
		HeartbeatInterval: time.Hour,
		Dialer:            d,
	}
}

// statusLog records observed statuses with consecutive duplicates removed.
type statusLog struct {
	mu      sync.Mutex
	changes []StatusChange
}

func (l *statusLog) observe(c StatusChange) {
	l.mu.Lock()
	l.changes = append(l.changes, c)
	l.mu.Unlock()
}

func (l *statusLog) statuses() []domain.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Status
	for _, c := range l.changes {
		if len(out) > 0 && out[len(out)-1] == c.Status {
			continue
		}
		out = append(out, c.Status)
	}
	return out
}

func (l *statusLog) last() StatusChange {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.changes) == 0 {
		return StatusChange{}
	}
	return l.changes[len(l.changes)-1]
}

func waitStatus(t *testing.T, m *Manager, s domain.Status) {
	t.Helper()
	require.Eventually(t, func() bool { return m.Status() == s }, 2*time.Second, time.Millisecond,
		"status never became %s", s)
}
