package core

import (
	"context"

	"github.com/dkeye/Stage/internal/domain"
)

// Frame is one encoded wire message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	Sequence uint64
	SendTo   int
	Dropped  []domain.ConnectionID
}

// Directory resolves persistent slugs owned by the surrounding application.
type Directory interface {
	// ResolveSlug returns domain.ErrRoomNotFound for unknown slugs.
	ResolveSlug(ctx context.Context, slug domain.Slug) (domain.RoomID, error)
	// SlugOf returns "" when the room has no slug.
	SlugOf(ctx context.Context, id domain.RoomID) (domain.Slug, error)
}

type PINGenerator interface {
	Generate() (domain.PIN, error)
}

// OperatorJoin is the result of a successful operator join.
type OperatorJoin struct {
	Room        domain.Room
	Snapshot    domain.Snapshot
	ViewerCount int
	Evicted     domain.ConnectionID
}

// ViewerJoin is the result of a successful viewer join.
type ViewerJoin struct {
	Room        domain.Room
	Snapshot    domain.Snapshot
	ViewerCount int
}
