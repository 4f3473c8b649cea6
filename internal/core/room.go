package core

import (
	"sync"
	"time"

	"github.com/dkeye/Stage/internal/domain"
	"github.com/dkeye/Stage/internal/protocol"
	"github.com/rs/zerolog/log"
)

type operatorSlot struct {
	id   domain.ConnectionID
	user domain.UserID
	conn SignalConnection
}

// room is one unit of serialization. Every field is guarded by mu.
// It never closes adapter-owned resources.
type room struct {
	mu             sync.Mutex
	info           domain.Room
	operator       *operatorSlot
	viewers        map[domain.ConnectionID]SignalConnection
	state          domain.PresentationState
	sequence       uint64
	lastActivityAt time.Time
	closed         bool
}

func newRoom(info domain.Room, now time.Time) *room {
	return &room{
		info:           info,
		viewers:        make(map[domain.ConnectionID]SignalConnection),
		lastActivityAt: now,
	}
}

func (r *room) snapshot() domain.Snapshot {
	return domain.Snapshot{State: r.state.Clone(), Sequence: r.sequence}
}

func (r *room) isOperator(id domain.ConnectionID) bool {
	return r.operator != nil && r.operator.id == id
}

func (r *room) summary() domain.RoomSummary {
	return domain.RoomSummary{
		Room:           r.info,
		HasOperator:    r.operator != nil,
		ViewerCount:    len(r.viewers),
		Sequence:       r.sequence,
		LastActivityAt: r.lastActivityAt,
	}
}

func (r *room) send(conn SignalConnection, m protocol.Message) error {
	b, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return conn.TrySend(b)
}

func (r *room) sendOperator(m protocol.Message) {
	if r.operator == nil {
		return
	}
	if err := r.send(r.operator.conn, m); err != nil {
		log.Warn().Err(err).Str("module", "core.room").Str("room", string(r.info.ID)).Str("conn", string(r.operator.id)).Str("type", string(m.Type())).Msg("operator send failed")
	}
}

func (r *room) sendViewerCount() {
	r.sendOperator(protocol.ViewerCount{RoomID: r.info.ID, Count: len(r.viewers)})
}

// broadcast encodes m once and offers it to every viewer.
func (r *room) broadcast(m protocol.Message) PublishResult {
	res := PublishResult{}
	b, err := protocol.Encode(m)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("room", string(r.info.ID)).Msg("broadcast encode")
		return res
	}
	for id, conn := range r.viewers {
		if err := conn.TrySend(b); err != nil {
			res.Dropped = append(res.Dropped, id)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.info.ID)).Str("type", string(m.Type())).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
