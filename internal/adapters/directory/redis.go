package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dkeye/Stage/internal/domain"
)

// Redis reads the slug index the room CRUD service maintains.
//
// Keys:
//
//	{prefix}:slugs   HASH<slug, room_id>
//	{prefix}:rooms   HASH<room_id, slug>
type Redis struct {
	client *redis.Client
	slugs  string
	rooms  string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "stage"
	}
	return &Redis{
		client: client,
		slugs:  prefix + ":slugs",
		rooms:  prefix + ":rooms",
	}
}

// Put writes both directions in one transaction.
func (r *Redis) Put(ctx context.Context, slug domain.Slug, id domain.RoomID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.slugs, string(slug), string(id))
		pipe.HSet(ctx, r.rooms, string(id), string(slug))
		return nil
	})
	if err != nil {
		return fmt.Errorf("put slug %q: %w", slug, err)
	}
	return nil
}

func (r *Redis) ResolveSlug(ctx context.Context, slug domain.Slug) (domain.RoomID, error) {
	id, err := r.client.HGet(ctx, r.slugs, string(slug)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("slug %q: %w", slug, domain.ErrRoomNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("resolve slug %q: %w", slug, err)
	}
	return domain.RoomID(id), nil
}

func (r *Redis) SlugOf(ctx context.Context, id domain.RoomID) (domain.Slug, error) {
	slug, err := r.client.HGet(ctx, r.rooms, string(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("slug of %q: %w", id, err)
	}
	return domain.Slug(slug), nil
}
