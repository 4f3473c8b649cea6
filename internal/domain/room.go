package domain

import (
	"strings"
	"time"
)

const (
	MaxRoomIDLen = 64
	MaxSlugLen   = 96
)

type (
	RoomID string
	PIN    string
	Slug   string
)

// Room is the addressable part of a live room. State lives in the registry.
type Room struct {
	ID      RoomID `json:"id"`
	PIN     PIN    `json:"pin"`
	Slug    Slug   `json:"slug,omitempty"`
	OwnerID UserID `json:"ownerId,omitempty"`
}

// ParseRoomID trims and validates a room id coming off the wire.
func ParseRoomID(raw string) (RoomID, error) {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > MaxRoomIDLen {
		return "", ErrBadPayload
	}
	return RoomID(id), nil
}

type keyKind uint8

const (
	keyNone keyKind = iota
	keyPIN
	keySlug
)

// RoomKey addresses a room by exactly one of PIN or slug.
type RoomKey struct {
	kind  keyKind
	value string
}

func ByPIN(p PIN) RoomKey   { return RoomKey{kind: keyPIN, value: string(p)} }
func BySlug(s Slug) RoomKey { return RoomKey{kind: keySlug, value: string(s)} }

// NewRoomKey builds a key from the raw join fields. Exactly one must be set.
func NewRoomKey(pin, slug string) (RoomKey, error) {
	pin = strings.TrimSpace(pin)
	slug = strings.ToLower(strings.TrimSpace(slug))
	switch {
	case pin != "" && slug != "":
		return RoomKey{}, ErrBadPayload
	case pin != "":
		return ByPIN(PIN(pin)), nil
	case slug != "" && len(slug) <= MaxSlugLen:
		return BySlug(Slug(slug)), nil
	default:
		return RoomKey{}, ErrBadPayload
	}
}

func (k RoomKey) PIN() (PIN, bool)   { return PIN(k.value), k.kind == keyPIN }
func (k RoomKey) Slug() (Slug, bool) { return Slug(k.value), k.kind == keySlug }
func (k RoomKey) IsZero() bool       { return k.kind == keyNone }

func (k RoomKey) String() string {
	switch k.kind {
	case keyPIN:
		return "pin:" + k.value
	case keySlug:
		return "slug:" + k.value
	}
	return ""
}

// RoomSummary is a read-only view of a live room.
type RoomSummary struct {
	Room
	HasOperator    bool      `json:"hasOperator"`
	ViewerCount    int       `json:"viewerCount"`
	Sequence       uint64    `json:"sequence"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}
