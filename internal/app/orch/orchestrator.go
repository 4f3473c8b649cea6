package orch

import (
	"context"
	"time"

	"github.com/dkeye/Stage/internal/app"
	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/domain"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *core.Registry
	Relay    *core.Relay
	Policy   app.Policy
}

func (o *Orchestrator) Connect(id domain.ConnectionID, user domain.UserID, conn core.SignalConnection, cancel context.CancelFunc) {
	o.Registry.BindSignal(id, user, conn, cancel)
}

// OnDisconnect releases the connection's room role. An operator's room stays.
func (o *Orchestrator) OnDisconnect(id domain.ConnectionID) {
	o.Rooms.Leave(id)
	o.Registry.Unbind(id)
}

func (o *Orchestrator) KickBySID(id domain.ConnectionID) {
	o.Rooms.Leave(id)
	o.Registry.Cancel(id)
}

func (o *Orchestrator) Publish(id domain.ConnectionID, u domain.StateUpdate) (core.PublishResult, error) {
	res, err := o.Relay.Publish(id, u)
	if err != nil {
		return res, err
	}
	if o.Policy == nil {
		return res, nil
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(u.RoomID, slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("room", string(u.RoomID)).Str("conn", string(slow)).Msg("kicking slow viewer")
			o.KickBySID(slow)
		case app.DropFrame, app.NoAction:
		}
	}
	return res, nil
}

// RunSweeper closes idle rooms every interval until ctx is done.
func (o *Orchestrator) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if closed := o.Rooms.Sweep(now); len(closed) > 0 {
				log.Info().Str("module", "orch").Int("rooms", len(closed)).Msg("swept idle rooms")
			}
		}
	}
}

func (o *Orchestrator) Shutdown() {
	o.Registry.CancelAll()
}
