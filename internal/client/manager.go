package client

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Stage/internal/domain"
	"github.com/dkeye/Stage/internal/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// StatusChange is delivered to observers on every status transition and on
// every latency measurement. Err is set when reconnection was exhausted.
type StatusChange struct {
	Status  domain.Status
	Latency time.Duration
	Err     error
}

type notification struct {
	change  StatusChange
	targets []func(StatusChange)
}

// Manager owns one logical connection to the sync server. It reconnects with
// capped exponential backoff, keeps a heartbeat and defers sends made while
// the transport is down.
//
// Observers, hooks and message handlers run on the manager's goroutines and
// must not call Disconnect.
type Manager struct {
	opts Options

	mu         sync.Mutex
	id         domain.ConnectionID
	status     domain.Status
	latency    time.Duration
	lastPingAt time.Time
	lastErr    error
	conn       Conn
	cancel     context.CancelFunc
	done       chan struct{}

	pending   []protocol.Message
	replaying bool

	nextSub   int
	observers map[int]func(StatusChange)
	hooks     map[int]func()
	handlers  map[protocol.Type]map[int]func(protocol.Message)

	queue    []notification
	flushing bool

	writeMu sync.Mutex
}

func NewManager(opts Options) *Manager {
	return &Manager{
		opts:      opts.withDefaults(),
		observers: make(map[int]func(StatusChange)),
		hooks:     make(map[int]func()),
		handlers:  make(map[protocol.Type]map[int]func(protocol.Message)),
	}
}

func (m *Manager) ID() domain.ConnectionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

func (m *Manager) Status() domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Latency is the last measured heartbeat round trip.
func (m *Manager) Latency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latency
}

func (m *Manager) LastPingAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPingAt
}

// Connect starts the connection loop and returns its id. While a connection is
// active (including connecting and reconnecting) it returns the same id.
func (m *Manager) Connect() domain.ConnectionID {
	m.mu.Lock()
	if m.cancel != nil {
		id := m.id
		m.mu.Unlock()
		return id
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.id = domain.ConnectionID(uuid.NewString())
	m.cancel = cancel
	m.done = done
	m.lastErr = nil
	m.latency = 0
	m.setStatusLocked(domain.StatusConnecting, nil)
	id := m.id
	m.mu.Unlock()
	m.flush()

	log.Info().Str("module", "client").Str("conn", string(id)).Str("url", m.opts.URL).Msg("connecting")
	go m.run(ctx, cancel, done)
	return id
}

// Disconnect tears the connection down immediately, drops deferred sends and
// waits for the connection loop to exit. Later sends fail with
// ErrConnectionUnavailable until Connect is called again.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel, done, conn := m.cancel, m.done, m.conn
	m.cancel = nil
	m.conn = nil
	m.pending = nil
	m.replaying = false
	m.lastErr = nil
	m.setStatusLocked(domain.StatusDisconnected, nil)
	m.mu.Unlock()
	m.flush()

	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-done
	log.Info().Str("module", "client").Msg("disconnected")
}

// Send writes msg now when connected. While connecting or reconnecting the
// message is deferred: one pending message per kind, latest wins, replayed
// once after the next successful connect.
func (m *Manager) Send(msg protocol.Message) error {
	m.mu.Lock()
	if m.cancel == nil {
		err := m.lastErr
		m.mu.Unlock()
		if err == nil {
			err = domain.ErrConnectionUnavailable
		}
		return err
	}
	conn := m.conn
	if conn == nil || m.status != domain.StatusConnected || m.replaying {
		m.deferLocked(msg)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.write(conn, msg); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("type", string(msg.Type())).Msg("send failed, deferring")
		m.mu.Lock()
		if m.cancel != nil {
			m.deferLocked(msg)
		}
		m.mu.Unlock()
	}
	return nil
}

// OnConnectionStatusChange registers cb and invokes it once with the current
// status. The returned func unsubscribes.
func (m *Manager) OnConnectionStatusChange(cb func(StatusChange)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.observers[id] = cb
	m.queue = append(m.queue, notification{
		change:  m.currentLocked(),
		targets: []func(StatusChange){cb},
	})
	m.mu.Unlock()
	m.flush()

	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

// OnConnected registers fn to run after every successful connect, before
// deferred sends are replayed. Role adapters use it to rejoin their room.
func (m *Manager) OnConnected(fn func()) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.hooks[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.hooks, id)
		m.mu.Unlock()
	}
}

func (m *Manager) subscribe(t protocol.Type, fn func(protocol.Message)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	if m.handlers[t] == nil {
		m.handlers[t] = make(map[int]func(protocol.Message))
	}
	m.handlers[t][id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.handlers[t], id)
		m.mu.Unlock()
	}
}

// On subscribes fn to every inbound message of type M.
func On[M protocol.Message](m *Manager, fn func(M)) func() {
	var zero M
	return m.subscribe(zero.Type(), func(msg protocol.Message) {
		if typed, ok := msg.(M); ok {
			fn(typed)
		}
	})
}

func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()

	attempt := 0
	for {
		if attempt > 0 {
			if !sleep(ctx, Backoff(attempt, m.opts.ReconnectDelay, m.opts.ReconnectDelayMax)) {
				return
			}
		}
		conn, err := m.dial(ctx)
		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		if err != nil {
			log.Warn().Err(err).Str("module", "client").Int("attempt", attempt).Msg("dial failed")
			if attempt >= m.opts.ReconnectAttempts {
				m.exhausted(done)
				return
			}
			attempt++
			continue
		}

		if !m.attach(done, conn) {
			_ = conn.Close()
			return
		}
		err = m.session(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Str("module", "client").Msg("connection lost")
		if !m.detach(done) {
			return
		}
		attempt = 1
	}
}

func (m *Manager) dial(ctx context.Context) (Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()
	return m.opts.Dialer.DialContext(dctx, m.opts.URL)
}

// session runs hooks, replays deferred sends and reads until the transport fails.
func (m *Manager) session(ctx context.Context, conn Conn) error {
	m.runHooks()
	m.replay(conn)

	hbCtx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.heartbeat(hbCtx, conn)
	}()
	defer wg.Wait()
	defer stop()

	return m.readLoop(conn)
}

func (m *Manager) attach(done chan struct{}, conn Conn) bool {
	m.mu.Lock()
	if m.done != done || m.cancel == nil {
		m.mu.Unlock()
		return false
	}
	m.conn = conn
	m.replaying = true
	m.setStatusLocked(domain.StatusConnected, nil)
	m.mu.Unlock()
	m.flush()
	log.Info().Str("module", "client").Str("conn", string(m.ID())).Msg("connected")
	return true
}

func (m *Manager) detach(done chan struct{}) bool {
	m.mu.Lock()
	if m.done != done || m.cancel == nil {
		m.mu.Unlock()
		return false
	}
	m.conn = nil
	m.replaying = false
	m.setStatusLocked(domain.StatusReconnecting, nil)
	m.mu.Unlock()
	m.flush()
	return true
}

func (m *Manager) exhausted(done chan struct{}) {
	m.mu.Lock()
	if m.done != done || m.cancel == nil {
		m.mu.Unlock()
		return
	}
	m.cancel = nil
	m.conn = nil
	m.pending = nil
	m.replaying = false
	m.lastErr = domain.ErrReconnectExhausted
	m.setStatusLocked(domain.StatusDisconnected, domain.ErrReconnectExhausted)
	m.mu.Unlock()
	m.flush()
	log.Error().Str("module", "client").Int("attempts", m.opts.ReconnectAttempts).Msg("reconnect attempts exhausted")
}

func (m *Manager) runHooks() {
	m.mu.Lock()
	hooks := make([]func(), 0, len(m.hooks))
	for id := 0; id < m.nextSub; id++ {
		if fn, ok := m.hooks[id]; ok {
			hooks = append(hooks, fn)
		}
	}
	m.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// replay drains pending in order. Sends arriving meanwhile join the queue.
func (m *Manager) replay(conn Conn) {
	for {
		m.mu.Lock()
		if m.conn != conn {
			m.mu.Unlock()
			return
		}
		if len(m.pending) == 0 {
			m.replaying = false
			m.mu.Unlock()
			return
		}
		msg := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		if err := m.write(conn, msg); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("type", string(msg.Type())).Msg("replay failed")
			m.mu.Lock()
			if m.cancel != nil {
				m.requeueLocked(msg)
			}
			if m.conn == conn {
				m.replaying = false
			}
			m.mu.Unlock()
			// A socket that cannot write is dead; the read loop fails next and
			// the session reconnects.
			_ = conn.Close()
			return
		}
	}
}

func (m *Manager) readLoop(conn Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("bad frame")
			continue
		}
		if pong, ok := msg.(protocol.Pong); ok {
			m.observeLatency(pong)
		}
		m.dispatch(msg)
	}
}

func (m *Manager) dispatch(msg protocol.Message) {
	m.mu.Lock()
	subs := m.handlers[msg.Type()]
	fns := make([]func(protocol.Message), 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

func (m *Manager) heartbeat(ctx context.Context, conn Conn) {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := m.opts.Now()
			m.mu.Lock()
			m.lastPingAt = now
			m.mu.Unlock()
			if err := m.write(conn, protocol.Ping{SentAt: now.UnixMilli()}); err != nil {
				log.Debug().Err(err).Str("module", "client").Msg("ping failed")
			}
		}
	}
}

func (m *Manager) observeLatency(p protocol.Pong) {
	rtt := m.opts.Now().Sub(time.UnixMilli(p.SentAt))
	if rtt < 0 {
		rtt = 0
	}
	m.mu.Lock()
	m.latency = rtt
	m.queue = append(m.queue, notification{change: m.currentLocked(), targets: m.observersLocked()})
	m.mu.Unlock()
	m.flush()
}

func (m *Manager) write(conn Conn, msg protocol.Message) error {
	b, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(m.opts.WriteWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (m *Manager) deferLocked(msg protocol.Message) {
	for i, p := range m.pending {
		if p.Type() == msg.Type() {
			m.pending[i] = msg
			return
		}
	}
	if !isJoin(msg) {
		m.pending = append(m.pending, msg)
		return
	}
	// Joins go ahead of updates so replayed updates find the role in place.
	i := 0
	for i < len(m.pending) && isJoin(m.pending[i]) {
		i++
	}
	m.pending = append(m.pending, nil)
	copy(m.pending[i+1:], m.pending[i:])
	m.pending[i] = msg
}

// requeueLocked puts msg back at the head unless a newer message of its kind
// was deferred meanwhile.
func (m *Manager) requeueLocked(msg protocol.Message) {
	for _, p := range m.pending {
		if p.Type() == msg.Type() {
			return
		}
	}
	m.pending = append([]protocol.Message{msg}, m.pending...)
}

func isJoin(msg protocol.Message) bool {
	switch msg.(type) {
	case protocol.OperatorJoin, protocol.ViewerJoin, protocol.Leave:
		return true
	}
	return false
}

func (m *Manager) setStatusLocked(s domain.Status, err error) {
	if m.status == s && err == nil {
		return
	}
	m.status = s
	m.queue = append(m.queue, notification{
		change:  StatusChange{Status: s, Latency: m.latency, Err: err},
		targets: m.observersLocked(),
	})
}

func (m *Manager) currentLocked() StatusChange {
	return StatusChange{Status: m.status, Latency: m.latency, Err: m.lastErr}
}

func (m *Manager) observersLocked() []func(StatusChange) {
	out := make([]func(StatusChange), 0, len(m.observers))
	for id := 0; id < m.nextSub; id++ {
		if cb, ok := m.observers[id]; ok {
			out = append(out, cb)
		}
	}
	return out
}

// flush delivers queued notifications in order. Only one goroutine drains at
// a time; others leave their entries to it.
func (m *Manager) flush() {
	m.mu.Lock()
	if m.flushing {
		m.mu.Unlock()
		return
	}
	m.flushing = true
	for len(m.queue) > 0 {
		n := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		for _, cb := range n.targets {
			cb(n.change)
		}
		m.mu.Lock()
	}
	m.flushing = false
	m.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
