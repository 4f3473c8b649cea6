package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Stage/internal/domain"
	"github.com/dkeye/Stage/internal/protocol"
	"github.com/rs/zerolog/log"
)

const (
	DefaultGracePeriod = 30 * time.Minute
	pinAttempts        = 16
)

var (
	errPINSpaceExhausted = errors.New("no free pin")
	errStillActive       = errors.New("room still active")
)

type RegistryConfig struct {
	Directory   Directory
	PINs        PINGenerator
	Events      *Notifier
	GracePeriod time.Duration
	Now         func() time.Time
}

// Registry is the arena of live rooms. Its own lock only guards the index maps;
// all room work happens under the room's lock. Lock order is room, then registry.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[domain.RoomID]*room
	pins    map[domain.PIN]domain.RoomID
	slugs   map[domain.Slug]domain.RoomID
	members map[domain.ConnectionID]domain.RoomID

	dir    Directory
	pinGen PINGenerator
	events *Notifier
	grace  time.Duration
	now    func() time.Time
}

func NewRegistry(cfg RegistryConfig) *Registry {
	r := &Registry{
		rooms:   make(map[domain.RoomID]*room),
		pins:    make(map[domain.PIN]domain.RoomID),
		slugs:   make(map[domain.Slug]domain.RoomID),
		members: make(map[domain.ConnectionID]domain.RoomID),
		dir:     cfg.Directory,
		pinGen:  cfg.PINs,
		events:  cfg.Events,
		grace:   cfg.GracePeriod,
		now:     cfg.Now,
	}
	if r.pinGen == nil {
		r.pinGen = &NanoPINGenerator{length: DefaultPINLength}
	}
	if r.grace <= 0 {
		r.grace = DefaultGracePeriod
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

func (r *Registry) lookup(id domain.RoomID) *room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[id]
}

// open returns the live room for id, creating it with a fresh PIN when absent.
func (r *Registry) open(ctx context.Context, id domain.RoomID, owner domain.UserID, slug domain.Slug) (*room, error) {
	if rm := r.lookup(id); rm != nil {
		return rm, nil
	}
	if slug == "" && r.dir != nil {
		s, err := r.dir.SlugOf(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("module", "core.registry").Str("room", string(id)).Msg("slug lookup failed")
		}
		slug = s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[id]; ok {
		return rm, nil
	}
	pin, err := r.allocatePINLocked()
	if err != nil {
		return nil, err
	}
	rm := newRoom(domain.Room{ID: id, PIN: pin, Slug: slug, OwnerID: owner}, r.now())
	r.rooms[id] = rm
	r.pins[pin] = id
	if slug != "" {
		r.slugs[slug] = id
	}
	log.Info().Str("module", "core.registry").Str("room", string(id)).Str("slug", string(slug)).Msg("room opened")
	r.events.Notify(RoomEvent{Type: EventRoomOpened, RoomID: id, UserID: owner})
	return rm, nil
}

func (r *Registry) allocatePINLocked() (domain.PIN, error) {
	for i := 0; i < pinAttempts; i++ {
		pin, err := r.pinGen.Generate()
		if err != nil {
			return "", err
		}
		if _, taken := r.pins[pin]; !taken {
			return pin, nil
		}
	}
	return "", errPINSpaceExhausted
}

// resolve is the single lookup path for both key kinds. A slug known to the
// directory opens an empty room when nobody is live yet; a PIN never does.
func (r *Registry) resolve(ctx context.Context, key domain.RoomKey) (*room, error) {
	if pin, ok := key.PIN(); ok {
		r.mu.RLock()
		id, found := r.pins[pin]
		rm := r.rooms[id]
		r.mu.RUnlock()
		if !found || rm == nil {
			return nil, fmt.Errorf("%s: %w", key, domain.ErrRoomNotFound)
		}
		return rm, nil
	}

	slug, ok := key.Slug()
	if !ok {
		return nil, domain.ErrBadPayload
	}
	r.mu.RLock()
	id, live := r.slugs[slug]
	rm := r.rooms[id]
	r.mu.RUnlock()
	if live && rm != nil {
		return rm, nil
	}
	if r.dir == nil {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrRoomNotFound)
	}
	id, err := r.dir.ResolveSlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return r.open(ctx, id, "", slug)
}

func (r *Registry) setMembership(conn domain.ConnectionID, id domain.RoomID) {
	r.mu.Lock()
	r.members[conn] = id
	r.mu.Unlock()
}

func (r *Registry) clearMembership(conn domain.ConnectionID, id domain.RoomID) {
	r.mu.Lock()
	if cur, ok := r.members[conn]; ok && cur == id {
		delete(r.members, conn)
	}
	r.mu.Unlock()
}

// JoinAsOperator attaches conn as the operator of roomID, opening the room if needed.
// A different live operator is evicted and told so.
func (r *Registry) JoinAsOperator(ctx context.Context, roomID domain.RoomID, user domain.UserID, connID domain.ConnectionID, conn SignalConnection) (OperatorJoin, error) {
	// The sitting operator rejoining its own room keeps its seat.
	if role, id := r.RoleOf(connID); role != domain.RoleOperator || id != roomID {
		r.Leave(connID)
	}

	// A concurrent close can discard the room between open and lock; retry once.
	for attempt := 0; attempt < 2; attempt++ {
		rm, err := r.open(ctx, roomID, user, "")
		if err != nil {
			return OperatorJoin{}, err
		}

		rm.mu.Lock()
		if rm.closed {
			rm.mu.Unlock()
			continue
		}
		var evicted *operatorSlot
		if rm.operator != nil && rm.operator.id != connID {
			evicted = rm.operator
			if err := rm.send(evicted.conn, protocol.OperatorEvicted{RoomID: roomID}); err != nil {
				log.Warn().Err(err).Str("module", "core.registry").Str("room", string(roomID)).Str("conn", string(evicted.id)).Msg("eviction notice failed")
			}
			r.clearMembership(evicted.id, roomID)
		}
		rm.operator = &operatorSlot{id: connID, user: user, conn: conn}
		rm.lastActivityAt = r.now()
		if rm.info.OwnerID == "" {
			rm.info.OwnerID = user
		}
		res := OperatorJoin{Room: rm.info, Snapshot: rm.snapshot(), ViewerCount: len(rm.viewers)}
		if evicted != nil {
			res.Evicted = evicted.id
		}
		rm.sendOperator(protocol.OperatorJoined{
			RoomID:      rm.info.ID,
			PIN:         rm.info.PIN,
			Slug:        rm.info.Slug,
			Snapshot:    res.Snapshot,
			ViewerCount: res.ViewerCount,
		})
		r.setMembership(connID, roomID)
		rm.mu.Unlock()

		if evicted != nil {
			log.Info().Str("module", "core.registry").Str("room", string(roomID)).Str("evicted", string(evicted.id)).Str("conn", string(connID)).Msg("operator evicted")
			r.events.Notify(RoomEvent{Type: EventOperatorEvicted, RoomID: roomID, UserID: evicted.user})
		}
		log.Info().Str("module", "core.registry").Str("room", string(roomID)).Str("conn", string(connID)).Str("user", string(user)).Msg("operator joined")
		r.events.Notify(RoomEvent{Type: EventOperatorJoined, RoomID: roomID, UserID: user, ViewerCount: res.ViewerCount})
		return res, nil
	}
	return OperatorJoin{}, fmt.Errorf("%s: %w", roomID, domain.ErrRoomNotFound)
}

// JoinAsViewer resolves key and adds conn to the viewer set. The snapshot is
// queued to conn under the room lock, so it precedes every later relay.
func (r *Registry) JoinAsViewer(ctx context.Context, key domain.RoomKey, connID domain.ConnectionID, conn SignalConnection) (ViewerJoin, error) {
	r.Leave(connID)

	for attempt := 0; attempt < 2; attempt++ {
		rm, err := r.resolve(ctx, key)
		if err != nil {
			return ViewerJoin{}, err
		}

		rm.mu.Lock()
		if rm.closed {
			rm.mu.Unlock()
			continue
		}
		rm.viewers[connID] = conn
		rm.lastActivityAt = r.now()
		res := ViewerJoin{Room: rm.info, Snapshot: rm.snapshot(), ViewerCount: len(rm.viewers)}
		if err := rm.send(conn, protocol.ViewerJoined{RoomID: rm.info.ID, Snapshot: res.Snapshot}); err != nil {
			log.Warn().Err(err).Str("module", "core.registry").Str("room", string(rm.info.ID)).Str("conn", string(connID)).Msg("snapshot send failed")
		}
		rm.sendViewerCount()
		r.setMembership(connID, rm.info.ID)
		rm.mu.Unlock()

		log.Info().Str("module", "core.registry").Str("room", string(res.Room.ID)).Str("conn", string(connID)).Str("key", key.String()).Uint64("seq", res.Snapshot.Sequence).Msg("viewer joined")
		r.events.Notify(RoomEvent{Type: EventViewerCount, RoomID: res.Room.ID, ViewerCount: res.ViewerCount})
		return res, nil
	}
	return ViewerJoin{}, fmt.Errorf("%s: %w", key, domain.ErrRoomNotFound)
}

// Leave detaches conn from whatever room it occupies. A departing operator
// leaves the room and its snapshot in place.
func (r *Registry) Leave(connID domain.ConnectionID) bool {
	r.mu.RLock()
	id, ok := r.members[connID]
	rm := r.rooms[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if rm == nil {
		r.clearMembership(connID, id)
		return false
	}

	rm.mu.Lock()
	var (
		left     bool
		operator *operatorSlot
	)
	if rm.isOperator(connID) {
		operator = rm.operator
		rm.operator = nil
		left = true
	} else if _, ok := rm.viewers[connID]; ok {
		delete(rm.viewers, connID)
		rm.sendViewerCount()
		left = true
	}
	rm.lastActivityAt = r.now()
	count := len(rm.viewers)
	r.clearMembership(connID, id)
	rm.mu.Unlock()

	if !left {
		return false
	}
	if operator != nil {
		log.Info().Str("module", "core.registry").Str("room", string(id)).Str("conn", string(connID)).Msg("operator left")
		r.events.Notify(RoomEvent{Type: EventOperatorLeft, RoomID: id, UserID: operator.user, ViewerCount: count})
	} else {
		log.Info().Str("module", "core.registry").Str("room", string(id)).Str("conn", string(connID)).Msg("viewer left")
		r.events.Notify(RoomEvent{Type: EventViewerCount, RoomID: id, ViewerCount: count})
	}
	return true
}

// Close tells every member the room is gone and discards it.
func (r *Registry) Close(roomID domain.RoomID) error {
	return r.close(roomID, ReasonExplicit, nil)
}

func (r *Registry) close(roomID domain.RoomID, reason string, check func(*room) error) error {
	rm := r.lookup(roomID)
	if rm == nil {
		return fmt.Errorf("%s: %w", roomID, domain.ErrRoomNotFound)
	}

	rm.mu.Lock()
	if rm.closed {
		rm.mu.Unlock()
		return fmt.Errorf("%s: %w", roomID, domain.ErrRoomNotFound)
	}
	if check != nil {
		if err := check(rm); err != nil {
			rm.mu.Unlock()
			return err
		}
	}
	rm.closed = true
	msg := protocol.RoomClosed{RoomID: roomID}
	rm.broadcast(msg)
	rm.sendOperator(msg)
	count := len(rm.viewers)

	r.mu.Lock()
	if r.rooms[roomID] == rm {
		delete(r.rooms, roomID)
	}
	if r.pins[rm.info.PIN] == roomID {
		delete(r.pins, rm.info.PIN)
	}
	if rm.info.Slug != "" && r.slugs[rm.info.Slug] == roomID {
		delete(r.slugs, rm.info.Slug)
	}
	for id := range rm.viewers {
		if r.members[id] == roomID {
			delete(r.members, id)
		}
	}
	if rm.operator != nil && r.members[rm.operator.id] == roomID {
		delete(r.members, rm.operator.id)
	}
	r.mu.Unlock()
	rm.mu.Unlock()

	log.Info().Str("module", "core.registry").Str("room", string(roomID)).Str("reason", reason).Int("viewers", count).Msg("room closed")
	r.events.Notify(RoomEvent{Type: EventRoomClosed, RoomID: roomID, ViewerCount: count, Reason: reason})
	return nil
}

func (r *Registry) ViewerCount(roomID domain.RoomID) (int, error) {
	rm := r.lookup(roomID)
	if rm == nil {
		return 0, fmt.Errorf("%s: %w", roomID, domain.ErrRoomNotFound)
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.viewers), nil
}

// RoleOf reports the role conn currently holds and in which room.
func (r *Registry) RoleOf(connID domain.ConnectionID) (domain.Role, domain.RoomID) {
	r.mu.RLock()
	id, ok := r.members[connID]
	rm := r.rooms[id]
	r.mu.RUnlock()
	if !ok || rm == nil {
		return domain.RoleUnassigned, ""
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	switch {
	case rm.isOperator(connID):
		return domain.RoleOperator, id
	case rm.viewers[connID] != nil:
		return domain.RoleViewer, id
	}
	return domain.RoleUnassigned, ""
}

// RegeneratePIN replaces the room's PIN. Only the operator may do it.
func (r *Registry) RegeneratePIN(connID domain.ConnectionID, roomID domain.RoomID) (domain.PIN, error) {
	rm := r.lookup(roomID)
	if rm == nil {
		return "", domain.ErrNotOperator
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed || !rm.isOperator(connID) {
		return "", domain.ErrNotOperator
	}

	r.mu.Lock()
	pin, err := r.allocatePINLocked()
	if err != nil {
		r.mu.Unlock()
		return "", err
	}
	delete(r.pins, rm.info.PIN)
	r.pins[pin] = roomID
	r.mu.Unlock()

	rm.info.PIN = pin
	rm.lastActivityAt = r.now()
	rm.sendOperator(protocol.PINChanged{RoomID: roomID, PIN: pin})
	log.Info().Str("module", "core.registry").Str("room", string(roomID)).Msg("pin regenerated")
	return pin, nil
}

func (r *Registry) liveRooms() []*room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, rm)
	}
	return out
}

func (r *Registry) List() []domain.RoomSummary {
	rooms := r.liveRooms()
	out := make([]domain.RoomSummary, 0, len(rooms))
	for _, rm := range rooms {
		rm.mu.Lock()
		if !rm.closed {
			out = append(out, rm.summary())
		}
		rm.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sweep closes rooms that have had no operator and no activity for the grace period.
func (r *Registry) Sweep(now time.Time) []domain.RoomID {
	idle := func(rm *room) error {
		if rm.operator != nil || now.Sub(rm.lastActivityAt) < r.grace {
			return errStillActive
		}
		return nil
	}

	var closed []domain.RoomID
	for _, rm := range r.liveRooms() {
		rm.mu.Lock()
		id := rm.info.ID
		candidate := !rm.closed && idle(rm) == nil
		rm.mu.Unlock()
		if !candidate {
			continue
		}
		if err := r.close(id, ReasonTimeout, idle); err == nil {
			closed = append(closed, id)
		}
	}
	return closed
}
