package client

import (
	"errors"
	"sync"

	"github.com/dkeye/Stage/internal/domain"
	"github.com/dkeye/Stage/internal/protocol"
)

type ViewerPhase uint8

const (
	PhaseIdle ViewerPhase = iota
	PhaseJoining
	PhaseLive
	PhaseReconnecting
	PhaseOffline
	PhaseClosed
)

func (p ViewerPhase) String() string {
	switch p {
	case PhaseJoining:
		return "joining"
	case PhaseLive:
		return "live"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseOffline:
		return "offline"
	case PhaseClosed:
		return "closed"
	}
	return "idle"
}

type ViewerHandlers struct {
	State func(domain.PresentationState, uint64)
	Phase func(ViewerPhase)
	Error func(error)
}

// Viewer follows one room's presentation state. Updates at or below the last
// applied sequence are ignored, so redelivery is harmless.
type Viewer struct {
	m *Manager
	h ViewerHandlers

	mu      sync.Mutex
	key     domain.RoomKey
	room    domain.RoomID
	active  bool
	joining bool
	state   domain.PresentationState
	applied uint64
	phase   ViewerPhase
	unsubs  []func()
}

func NewViewer(m *Manager, h ViewerHandlers) *Viewer {
	v := &Viewer{m: m, h: h}
	v.unsubs = []func(){
		m.OnConnected(v.rejoin),
		On(m, v.onJoined),
		On(m, func(msg protocol.SlideUpdated) { v.Apply(msg.Update()) }),
		On(m, func(msg protocol.BackgroundUpdated) { v.Apply(msg.Update()) }),
		On(m, func(msg protocol.QuickSlideTextUpdated) { v.Apply(msg.Update()) }),
		On(m, v.onClosed),
		On(m, v.onError),
		m.OnConnectionStatusChange(v.onStatus),
	}
	return v
}

func (v *Viewer) Detach() {
	for _, fn := range v.unsubs {
		fn()
	}
}

// Join follows the room behind key. The snapshot arrives through Handlers.State.
func (v *Viewer) Join(key domain.RoomKey) error {
	if key.IsZero() {
		return domain.ErrBadPayload
	}
	v.mu.Lock()
	v.key = key
	v.room = ""
	v.active = true
	v.joining = true
	v.state = domain.PresentationState{}
	v.applied = 0
	v.mu.Unlock()
	v.setPhase(PhaseJoining)
	return v.m.Send(protocol.JoinFor(key))
}

func (v *Viewer) Leave() error {
	v.mu.Lock()
	v.active = false
	v.joining = false
	v.mu.Unlock()
	v.setPhase(PhaseIdle)
	return v.m.Send(protocol.Leave{})
}

func (v *Viewer) State() (domain.PresentationState, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.Clone(), v.applied
}

func (v *Viewer) Phase() ViewerPhase {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.phase
}

func (v *Viewer) Room() domain.RoomID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.room
}

// Apply merges u into the local state. It reports false when u belongs to
// another room or is not newer than what was already applied.
func (v *Viewer) Apply(u domain.StateUpdate) bool {
	v.mu.Lock()
	if !v.active || u.RoomID != v.room || u.Sequence <= v.applied {
		v.mu.Unlock()
		return false
	}
	v.state = v.state.Apply(u)
	v.applied = u.Sequence
	state, seq := v.state.Clone(), v.applied
	v.mu.Unlock()

	if v.h.State != nil {
		v.h.State(state, seq)
	}
	return true
}

func (v *Viewer) rejoin() {
	v.mu.Lock()
	active, key := v.active, v.key
	if active {
		v.joining = true
	}
	v.mu.Unlock()
	if active {
		_ = v.m.Send(protocol.JoinFor(key))
	}
}

// onJoined replaces local state with the snapshot, even an older one: the
// room may have been reopened while we were away.
func (v *Viewer) onJoined(msg protocol.ViewerJoined) {
	v.mu.Lock()
	if !v.active {
		v.mu.Unlock()
		return
	}
	v.joining = false
	v.room = msg.RoomID
	v.state = msg.Snapshot.State.Clone()
	v.applied = msg.Snapshot.Sequence
	state, seq := v.state.Clone(), v.applied
	v.mu.Unlock()

	v.setPhase(PhaseLive)
	if v.h.State != nil {
		v.h.State(state, seq)
	}
}

func (v *Viewer) onClosed(msg protocol.RoomClosed) {
	v.mu.Lock()
	if !v.active || msg.RoomID != v.room {
		v.mu.Unlock()
		return
	}
	v.active = false
	v.mu.Unlock()
	v.setPhase(PhaseClosed)
}

// onError ends an outstanding join that found no room. A rejoin after a
// reconnect lands here when the room closed while we were away.
func (v *Viewer) onError(msg protocol.Error) {
	err := msg.Err()
	if errors.Is(err, domain.ErrRoomNotFound) {
		v.mu.Lock()
		ended := v.active && v.joining
		next := PhaseIdle
		if ended {
			v.active = false
			v.joining = false
			if v.room != "" {
				next = PhaseClosed
			}
		}
		v.mu.Unlock()
		if ended {
			v.setPhase(next)
		}
	}
	if v.h.Error != nil {
		v.h.Error(err)
	}
}

func (v *Viewer) onStatus(c StatusChange) {
	v.mu.Lock()
	active, current := v.active, v.phase
	v.mu.Unlock()

	next := current
	switch c.Status {
	case domain.StatusConnected:
		if active && current != PhaseLive {
			next = PhaseJoining
		}
	case domain.StatusConnecting:
		if active {
			next = PhaseJoining
		}
	case domain.StatusReconnecting:
		if active {
			next = PhaseReconnecting
		}
	case domain.StatusDisconnected:
		if current != PhaseClosed && current != PhaseIdle {
			next = PhaseOffline
		}
	}
	v.setPhase(next)
}

func (v *Viewer) setPhase(p ViewerPhase) {
	v.mu.Lock()
	if v.phase == p {
		v.mu.Unlock()
		return
	}
	v.phase = p
	v.mu.Unlock()
	if v.h.Phase != nil {
		v.h.Phase(p)
	}
}
