package client

import (
	"errors"
	"sync"

	"github.com/dkeye/Stage/internal/domain"
	"github.com/dkeye/Stage/internal/protocol"
)

// OperatorHandlers are optional callbacks. They run on the manager's read goroutine.
type OperatorHandlers struct {
	Joined      func(protocol.OperatorJoined)
	ViewerCount func(int)
	PINChanged  func(domain.PIN)
	Evicted     func()
	Closed      func()
	Error       func(error)
}

// Operator drives one room over a Manager. It rejoins after every reconnect
// until it is evicted, closes the room or leaves.
type Operator struct {
	m    *Manager
	user domain.UserID
	h    OperatorHandlers

	mu     sync.Mutex
	room   domain.RoomID
	pin    domain.PIN
	role   domain.Role
	active bool
	unsubs []func()

	// last slide sent or, before any, the one the join snapshot carried
	slide    domain.Slide
	hasSlide bool
}

func NewOperator(m *Manager, user domain.UserID, h OperatorHandlers) *Operator {
	o := &Operator{m: m, user: user, h: h}
	o.unsubs = []func(){
		m.OnConnected(o.rejoin),
		On(m, o.onJoined),
		On(m, o.onViewerCount),
		On(m, o.onPINChanged),
		On(m, o.onEvicted),
		On(m, o.onClosed),
		On(m, o.onError),
	}
	return o
}

// Detach removes the operator's subscriptions from the manager.
func (o *Operator) Detach() {
	for _, fn := range o.unsubs {
		fn()
	}
}

func (o *Operator) Role() domain.Role {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.role
}

func (o *Operator) PIN() domain.PIN {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pin
}

func (o *Operator) Room() domain.RoomID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.room
}

// Join claims roomID. The ack arrives through Handlers.Joined.
func (o *Operator) Join(roomID domain.RoomID) error {
	o.mu.Lock()
	o.room = roomID
	o.pin = ""
	o.role = domain.RoleUnassigned
	o.active = true
	o.slide = domain.Slide{}
	o.hasSlide = false
	o.mu.Unlock()
	return o.m.Send(protocol.OperatorJoin{UserID: o.user, RoomID: roomID})
}

func (o *Operator) Leave() error {
	o.reset()
	return o.m.Send(protocol.Leave{})
}

func (o *Operator) UpdateSlide(s domain.Slide) error {
	room, err := o.target()
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.slide = s
	o.hasSlide = true
	o.mu.Unlock()
	return o.m.Send(protocol.UpdateSlide{
		RoomID:      room,
		SongID:      s.SongID,
		SlideIndex:  s.SlideIndex,
		DisplayMode: s.DisplayMode,
		IsBlank:     s.IsBlank,
	})
}

// Blank hides or shows the current slide without moving off it.
func (o *Operator) Blank(on bool) error {
	o.mu.Lock()
	s := o.slide
	o.mu.Unlock()
	s.IsBlank = on
	return o.UpdateSlide(s)
}

// Slide is the slide the room shows as far as this operator knows.
func (o *Operator) Slide() domain.Slide {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.slide
}

func (o *Operator) UpdateBackground(image string) error {
	room, err := o.target()
	if err != nil {
		return err
	}
	return o.m.Send(protocol.UpdateBackground{RoomID: room, BackgroundImage: image})
}

func (o *Operator) UpdateQuickSlideText(text string) error {
	room, err := o.target()
	if err != nil {
		return err
	}
	return o.m.Send(protocol.UpdateQuickSlideText{RoomID: room, QuickSlideText: text})
}

func (o *Operator) RegeneratePIN() error {
	room, err := o.target()
	if err != nil {
		return err
	}
	return o.m.Send(protocol.RegeneratePIN{RoomID: room})
}

// CloseRoom ends the room for every member. The operator does not rejoin afterwards.
func (o *Operator) CloseRoom() error {
	room, err := o.target()
	if err != nil {
		return err
	}
	o.reset()
	return o.m.Send(protocol.CloseRoom{RoomID: room})
}

// target is the room updates go to. Updates made before the ack are allowed
// since the join is replayed ahead of them.
func (o *Operator) target() (domain.RoomID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.active {
		return "", domain.ErrNotOperator
	}
	return o.room, nil
}

func (o *Operator) reset() {
	o.mu.Lock()
	o.active = false
	o.role = domain.RoleUnassigned
	o.mu.Unlock()
}

func (o *Operator) rejoin() {
	o.mu.Lock()
	active, room := o.active, o.room
	o.mu.Unlock()
	if active {
		_ = o.m.Send(protocol.OperatorJoin{UserID: o.user, RoomID: room})
	}
}

func (o *Operator) onJoined(msg protocol.OperatorJoined) {
	o.mu.Lock()
	if !o.active || msg.RoomID != o.room {
		o.mu.Unlock()
		return
	}
	o.role = domain.RoleOperator
	o.pin = msg.PIN
	if !o.hasSlide && msg.Snapshot.State.Slide != nil {
		o.slide = *msg.Snapshot.State.Slide
		o.hasSlide = true
	}
	o.mu.Unlock()
	if o.h.Joined != nil {
		o.h.Joined(msg)
	}
}

func (o *Operator) onViewerCount(msg protocol.ViewerCount) {
	if o.h.ViewerCount != nil && msg.RoomID == o.Room() {
		o.h.ViewerCount(msg.Count)
	}
}

func (o *Operator) onPINChanged(msg protocol.PINChanged) {
	o.mu.Lock()
	if msg.RoomID != o.room {
		o.mu.Unlock()
		return
	}
	o.pin = msg.PIN
	o.mu.Unlock()
	if o.h.PINChanged != nil {
		o.h.PINChanged(msg.PIN)
	}
}

func (o *Operator) onEvicted(msg protocol.OperatorEvicted) {
	if msg.RoomID != o.Room() {
		return
	}
	o.reset()
	if o.h.Evicted != nil {
		o.h.Evicted()
	}
}

func (o *Operator) onClosed(msg protocol.RoomClosed) {
	if msg.RoomID != o.Room() {
		return
	}
	o.reset()
	if o.h.Closed != nil {
		o.h.Closed()
	}
}

func (o *Operator) onError(msg protocol.Error) {
	err := msg.Err()
	if errors.Is(err, domain.ErrNotOperator) {
		o.reset()
	}
	if o.h.Error != nil {
		o.h.Error(err)
	}
}
