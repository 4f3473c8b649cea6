package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/domain"
)

func (o *Orchestrator) JoinOperator(ctx context.Context, id domain.ConnectionID, roomID domain.RoomID, user domain.UserID) (core.OperatorJoin, error) {
	conn, ok := o.Registry.GetSession(id)
	if !ok {
		return core.OperatorJoin{}, fmt.Errorf("%s: %w", id, domain.ErrConnectionUnavailable)
	}
	return o.Rooms.JoinAsOperator(ctx, roomID, user, id, conn)
}

func (o *Orchestrator) JoinViewer(ctx context.Context, id domain.ConnectionID, key domain.RoomKey) (core.ViewerJoin, error) {
	conn, ok := o.Registry.GetSession(id)
	if !ok {
		return core.ViewerJoin{}, fmt.Errorf("%s: %w", id, domain.ErrConnectionUnavailable)
	}
	return o.Rooms.JoinAsViewer(ctx, key, id, conn)
}

func (o *Orchestrator) Leave(id domain.ConnectionID) bool {
	return o.Rooms.Leave(id)
}

func (o *Orchestrator) RegeneratePIN(id domain.ConnectionID, roomID domain.RoomID) (domain.PIN, error) {
	return o.Rooms.RegeneratePIN(id, roomID)
}

