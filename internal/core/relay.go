package core

import (
	"errors"
	"fmt"

	"github.com/dkeye/Stage/internal/domain"
	"github.com/dkeye/Stage/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Relay is the only writer of a room's sequence and state.
type Relay struct {
	rooms *Registry
}

func NewRelay(rooms *Registry) *Relay {
	return &Relay{rooms: rooms}
}

// Publish applies u on behalf of conn and fans it out to the room's viewers.
// Sequence assignment, state mutation and fan-out share one room lock, so every
// viewer queue sees updates in publish order.
func (rl *Relay) Publish(connID domain.ConnectionID, u domain.StateUpdate) (PublishResult, error) {
	if err := u.Validate(); err != nil {
		return PublishResult{}, err
	}
	if u.Kind == domain.KindClose {
		return PublishResult{}, rl.close(connID, u.RoomID)
	}

	rm := rl.rooms.lookup(u.RoomID)
	if rm == nil {
		return PublishResult{}, domain.ErrNotOperator
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed || !rm.isOperator(connID) {
		return PublishResult{}, domain.ErrNotOperator
	}

	rm.sequence++
	u.Sequence = rm.sequence
	msg, ok := protocol.Relay(u)
	if !ok {
		rm.sequence--
		return PublishResult{}, domain.ErrBadPayload
	}
	rm.state = rm.state.Apply(u)
	rm.lastActivityAt = rl.rooms.now()

	res := rm.broadcast(msg)
	res.Sequence = u.Sequence
	log.Debug().Str("module", "core.relay").Str("room", string(u.RoomID)).Str("kind", string(u.Kind)).Uint64("seq", u.Sequence).Msg("published")
	return res, nil
}

func (rl *Relay) close(connID domain.ConnectionID, roomID domain.RoomID) error {
	err := rl.rooms.close(roomID, ReasonExplicit, func(rm *room) error {
		if !rm.isOperator(connID) {
			return domain.ErrNotOperator
		}
		return nil
	})
	if errors.Is(err, domain.ErrRoomNotFound) {
		return fmt.Errorf("%s: %w", roomID, domain.ErrNotOperator)
	}
	return err
}
