// Package protocol is the wire catalog shared by the relay server and its clients.
package protocol

import "github.com/dkeye/Stage/internal/domain"

type Type string

// Client to server.
const (
	TypeOperatorJoin         Type = "operator:join"
	TypeViewerJoin           Type = "viewer:join"
	TypeUpdateSlide          Type = "operator:updateSlide"
	TypeUpdateBackground     Type = "operator:updateBackground"
	TypeUpdateQuickSlideText Type = "operator:updateQuickSlideText"
	TypeCloseRoom            Type = "operator:closeRoom"
	TypeRegeneratePIN        Type = "operator:regeneratePin"
	TypeLeave                Type = "room:leave"
	TypePing                 Type = "ping"
)

// Server to client.
const (
	TypeOperatorJoined  Type = "operator:joined"
	TypeViewerJoined    Type = "viewer:joined"
	TypeSlideUpdated    Type = "slide:update"
	TypeBackground      Type = "background:update"
	TypeQuickSlideText  Type = "quickSlideText:update"
	TypeViewerCount     Type = "room:viewerCount"
	TypeRoomClosed      Type = "room:closed"
	TypeOperatorEvicted Type = "operator:evicted"
	TypePINChanged      Type = "operator:pin"
	TypePong            Type = "pong"
	TypeError           Type = "error"
)

// Message is implemented only by the types in this file.
type Message interface {
	Type() Type
	sealed()
}

type OperatorJoin struct {
	UserID domain.UserID `json:"userId"`
	RoomID domain.RoomID `json:"roomId"`
}

type ViewerJoin struct {
	PIN  domain.PIN  `json:"pin,omitempty"`
	Slug domain.Slug `json:"slug,omitempty"`
}

// Key resolves the join fields into a single room key.
func (m ViewerJoin) Key() (domain.RoomKey, error) {
	return domain.NewRoomKey(string(m.PIN), string(m.Slug))
}

// JoinFor builds the viewer join message for a key.
func JoinFor(k domain.RoomKey) ViewerJoin {
	if pin, ok := k.PIN(); ok {
		return ViewerJoin{PIN: pin}
	}
	slug, _ := k.Slug()
	return ViewerJoin{Slug: slug}
}

type UpdateSlide struct {
	RoomID      domain.RoomID `json:"roomId"`
	SongID      string        `json:"songId"`
	SlideIndex  int           `json:"slideIndex"`
	DisplayMode string        `json:"displayMode"`
	IsBlank     bool          `json:"isBlank"`
}

type UpdateBackground struct {
	RoomID          domain.RoomID `json:"roomId"`
	BackgroundImage string        `json:"backgroundImage"`
}

type UpdateQuickSlideText struct {
	RoomID         domain.RoomID `json:"roomId"`
	QuickSlideText string        `json:"quickSlideText"`
}

type CloseRoom struct {
	RoomID domain.RoomID `json:"roomId"`
}

type RegeneratePIN struct {
	RoomID domain.RoomID `json:"roomId"`
}

type Leave struct{}

type Ping struct {
	SentAt int64 `json:"sentAt"`
}

type OperatorJoined struct {
	RoomID      domain.RoomID   `json:"roomId"`
	PIN         domain.PIN      `json:"pin"`
	Slug        domain.Slug     `json:"slug,omitempty"`
	Snapshot    domain.Snapshot `json:"snapshot"`
	ViewerCount int             `json:"viewerCount"`
}

type ViewerJoined struct {
	RoomID   domain.RoomID   `json:"roomId"`
	Snapshot domain.Snapshot `json:"snapshot"`
}

type SlideUpdated struct {
	RoomID   domain.RoomID `json:"roomId"`
	Slide    domain.Slide  `json:"slide"`
	Sequence uint64        `json:"sequence"`
}

type BackgroundUpdated struct {
	RoomID          domain.RoomID `json:"roomId"`
	BackgroundImage string        `json:"backgroundImage"`
	Sequence        uint64        `json:"sequence"`
}

type QuickSlideTextUpdated struct {
	RoomID         domain.RoomID `json:"roomId"`
	QuickSlideText string        `json:"quickSlideText"`
	Sequence       uint64        `json:"sequence"`
}

type ViewerCount struct {
	RoomID domain.RoomID `json:"roomId"`
	Count  int           `json:"count"`
}

type RoomClosed struct {
	RoomID domain.RoomID `json:"roomId"`
}

type OperatorEvicted struct {
	RoomID domain.RoomID `json:"roomId"`
}

type PINChanged struct {
	RoomID domain.RoomID `json:"roomId"`
	PIN    domain.PIN    `json:"pin"`
}

type Pong struct {
	SentAt int64 `json:"sentAt"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e Error) Error() string { return e.Code + ": " + e.Message }

// Err returns the domain sentinel for the code, falling back to e itself.
func (e Error) Err() error {
	if err := domain.FromCode(e.Code); err != nil {
		return err
	}
	return e
}

func NewError(err error) Error {
	return Error{Code: domain.Code(err), Message: err.Error()}
}

func (OperatorJoin) Type() Type          { return TypeOperatorJoin }
func (ViewerJoin) Type() Type            { return TypeViewerJoin }
func (UpdateSlide) Type() Type           { return TypeUpdateSlide }
func (UpdateBackground) Type() Type      { return TypeUpdateBackground }
func (UpdateQuickSlideText) Type() Type  { return TypeUpdateQuickSlideText }
func (CloseRoom) Type() Type             { return TypeCloseRoom }
func (RegeneratePIN) Type() Type         { return TypeRegeneratePIN }
func (Leave) Type() Type                 { return TypeLeave }
func (Ping) Type() Type                  { return TypePing }
func (OperatorJoined) Type() Type        { return TypeOperatorJoined }
func (ViewerJoined) Type() Type          { return TypeViewerJoined }
func (SlideUpdated) Type() Type          { return TypeSlideUpdated }
func (BackgroundUpdated) Type() Type     { return TypeBackground }
func (QuickSlideTextUpdated) Type() Type { return TypeQuickSlideText }
func (ViewerCount) Type() Type           { return TypeViewerCount }
func (RoomClosed) Type() Type            { return TypeRoomClosed }
func (OperatorEvicted) Type() Type       { return TypeOperatorEvicted }
func (PINChanged) Type() Type            { return TypePINChanged }
func (Pong) Type() Type                  { return TypePong }
func (Error) Type() Type                 { return TypeError }

func (OperatorJoin) sealed()          {}
func (ViewerJoin) sealed()            {}
func (UpdateSlide) sealed()           {}
func (UpdateBackground) sealed()      {}
func (UpdateQuickSlideText) sealed()  {}
func (CloseRoom) sealed()             {}
func (RegeneratePIN) sealed()         {}
func (Leave) sealed()                 {}
func (Ping) sealed()                  {}
func (OperatorJoined) sealed()        {}
func (ViewerJoined) sealed()          {}
func (SlideUpdated) sealed()          {}
func (BackgroundUpdated) sealed()     {}
func (QuickSlideTextUpdated) sealed() {}
func (ViewerCount) sealed()           {}
func (RoomClosed) sealed()            {}
func (OperatorEvicted) sealed()       {}
func (PINChanged) sealed()            {}
func (Pong) sealed()                  {}
func (Error) sealed()                 {}
