// Package directory resolves persistent room slugs owned by the surrounding application.
package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/Stage/internal/domain"
)

type Memory struct {
	mu     sync.RWMutex
	bySlug map[domain.Slug]domain.RoomID
	byRoom map[domain.RoomID]domain.Slug
}

func NewMemory(seed map[string]string) *Memory {
	m := &Memory{
		bySlug: make(map[domain.Slug]domain.RoomID),
		byRoom: make(map[domain.RoomID]domain.Slug),
	}
	for slug, id := range seed {
		m.Put(domain.Slug(slug), domain.RoomID(id))
	}
	return m
}

func (m *Memory) Put(slug domain.Slug, id domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.byRoom[id]; ok {
		delete(m.bySlug, old)
	}
	m.bySlug[slug] = id
	m.byRoom[id] = slug
}

func (m *Memory) ResolveSlug(_ context.Context, slug domain.Slug) (domain.RoomID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.bySlug[slug]
	if !ok {
		return "", fmt.Errorf("slug %q: %w", slug, domain.ErrRoomNotFound)
	}
	return id, nil
}

func (m *Memory) SlugOf(_ context.Context, id domain.RoomID) (domain.Slug, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byRoom[id], nil
}
