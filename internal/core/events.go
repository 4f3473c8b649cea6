package core

import (
	"context"
	"time"

	"github.com/dkeye/Stage/internal/domain"
	"github.com/rs/zerolog/log"
)

type RoomEventType string

const (
	EventRoomOpened      RoomEventType = "room_opened"
	EventRoomClosed      RoomEventType = "room_closed"
	EventOperatorJoined  RoomEventType = "operator_joined"
	EventOperatorEvicted RoomEventType = "operator_evicted"
	EventOperatorLeft    RoomEventType = "operator_left"
	EventViewerCount     RoomEventType = "viewer_count"
)

// Close reasons.
const (
	ReasonExplicit = "explicit"
	ReasonTimeout  = "timeout"
)

// RoomEvent is a lifecycle fact about a live room, published for external observers.
type RoomEvent struct {
	Type        RoomEventType `json:"type"`
	RoomID      domain.RoomID `json:"room_id"`
	UserID      domain.UserID `json:"user_id,omitempty"`
	ViewerCount int           `json:"viewer_count"`
	Reason      string        `json:"reason,omitempty"`
	Timestamp   int64         `json:"timestamp"`
}

type EventSink interface {
	Emit(ctx context.Context, e RoomEvent) error
}

// Notifier decouples room mutations from event sinks that may do network I/O.
// Notify never blocks; events are dropped when the buffer is full.
type Notifier struct {
	sink EventSink
	ch   chan RoomEvent
}

func NewNotifier(sink EventSink, buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	return &Notifier{sink: sink, ch: make(chan RoomEvent, buffer)}
}

func (n *Notifier) Notify(e RoomEvent) {
	if n == nil {
		return
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
	select {
	case n.ch <- e:
	default:
		log.Warn().Str("module", "core.events").Str("type", string(e.Type)).Str("room", string(e.RoomID)).Msg("event buffer full, dropping")
	}
}

// Run drains events into the sink until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-n.ch:
			if err := n.sink.Emit(ctx, e); err != nil {
				log.Error().Err(err).Str("module", "core.events").Str("type", string(e.Type)).Str("room", string(e.RoomID)).Msg("emit failed")
			}
		}
	}
}
