package signal

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Stage/internal/domain"
	"github.com/dkeye/Stage/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleOperatorJoin(
	ctx context.Context,
	id domain.ConnectionID,
	conn *WsSignalConn,
	m protocol.OperatorJoin,
) {
	roomID, err := domain.ParseRoomID(string(m.RoomID))
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	user, err := domain.ParseUserID(string(m.UserID))
	if errors.Is(err, domain.ErrUserIDEmpty) {
		user, _ = ctl.Orch.Registry.UserOf(id)
	} else if err != nil {
		ctl.sendError(conn, fmt.Errorf("%w: %v", domain.ErrBadPayload, err))
		return
	}

	res, err := ctl.Orch.JoinOperator(ctx, id, roomID, user)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Str("room", string(roomID)).Msg("operator join rejected")
		ctl.sendError(conn, err)
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("room", string(roomID)).Str("pin", string(res.Room.PIN)).Msg("operator join")
}

func (ctl *SignalWSController) handleViewerJoin(
	ctx context.Context,
	id domain.ConnectionID,
	conn *WsSignalConn,
	m protocol.ViewerJoin,
) {
	if ctl.Joins != nil && !ctl.Joins.Allow(conn.remote) {
		ctl.sendError(conn, domain.ErrRateLimited)
		return
	}
	key, err := m.Key()
	if err != nil {
		ctl.sendError(conn, err)
		return
	}

	res, err := ctl.Orch.JoinViewer(ctx, id, key)
	if err != nil {
		log.Info().Err(err).Str("module", "signal").Str("conn", string(id)).Str("key", key.String()).Msg("viewer join rejected")
		ctl.sendError(conn, err)
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("room", string(res.Room.ID)).Msg("viewer join")
}

// handleLeave detaches from the current room; the socket stays open.
func (ctl *SignalWSController) handleLeave(id domain.ConnectionID) {
	log.Info().Str("module", "signal").Str("conn", string(id)).Msg("leave")
	ctl.Orch.Leave(id)
}
