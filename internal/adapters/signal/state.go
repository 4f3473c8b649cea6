package signal

import (
	"github.com/dkeye/Stage/internal/domain"
	"github.com/dkeye/Stage/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleUpdate(
	id domain.ConnectionID,
	conn *WsSignalConn,
	m protocol.Message,
) {
	u, ok := protocol.UpdateOf(m)
	if !ok {
		ctl.sendError(conn, domain.ErrBadPayload)
		return
	}
	if _, err := ctl.Orch.Publish(id, u); err != nil {
		log.Info().Err(err).Str("module", "signal").Str("conn", string(id)).Str("room", string(u.RoomID)).Str("kind", string(u.Kind)).Msg("publish rejected")
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleRegeneratePIN(
	id domain.ConnectionID,
	conn *WsSignalConn,
	m protocol.RegeneratePIN,
) {
	if _, err := ctl.Orch.RegeneratePIN(id, m.RoomID); err != nil {
		ctl.sendError(conn, err)
	}
}
