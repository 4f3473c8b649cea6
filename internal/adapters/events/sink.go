package events

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Stage/internal/core"
)

// LogSink writes events to the log. Used when no broker is configured.
type LogSink struct{}

func (LogSink) Emit(_ context.Context, e core.RoomEvent) error {
	log.Debug().Str("module", "adapters.events").
		Str("type", string(e.Type)).
		Str("room", string(e.RoomID)).
		Str("user", string(e.UserID)).
		Int("viewers", e.ViewerCount).
		Str("reason", e.Reason).
		Msg("room event")
	return nil
}

// Multi fans an event out to every sink and joins their errors.
type Multi []core.EventSink

func (m Multi) Emit(ctx context.Context, e core.RoomEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
