package protocol

import "github.com/dkeye/Stage/internal/domain"

// Relayed is a server-to-client state update stamped with a sequence.
type Relayed interface {
	Message
	Update() domain.StateUpdate
}

// UpdateOf converts an operator request into the state update it asks for.
func UpdateOf(m Message) (domain.StateUpdate, bool) {
	switch m := m.(type) {
	case UpdateSlide:
		return domain.StateUpdate{
			RoomID: m.RoomID,
			Kind:   domain.KindSlide,
			Slide: &domain.Slide{
				SongID:      m.SongID,
				SlideIndex:  m.SlideIndex,
				DisplayMode: m.DisplayMode,
				IsBlank:     m.IsBlank,
			},
		}, true
	case UpdateBackground:
		return domain.StateUpdate{RoomID: m.RoomID, Kind: domain.KindBackground, BackgroundImage: m.BackgroundImage}, true
	case UpdateQuickSlideText:
		return domain.StateUpdate{RoomID: m.RoomID, Kind: domain.KindQuickText, QuickSlideText: m.QuickSlideText}, true
	case CloseRoom:
		return domain.StateUpdate{RoomID: m.RoomID, Kind: domain.KindClose}, true
	}
	return domain.StateUpdate{}, false
}

// RequestFor is the inverse of UpdateOf.
func RequestFor(u domain.StateUpdate) (Message, bool) {
	switch u.Kind {
	case domain.KindSlide:
		if u.Slide == nil {
			return nil, false
		}
		return UpdateSlide{
			RoomID:      u.RoomID,
			SongID:      u.Slide.SongID,
			SlideIndex:  u.Slide.SlideIndex,
			DisplayMode: u.Slide.DisplayMode,
			IsBlank:     u.Slide.IsBlank,
		}, true
	case domain.KindBackground:
		return UpdateBackground{RoomID: u.RoomID, BackgroundImage: u.BackgroundImage}, true
	case domain.KindQuickText:
		return UpdateQuickSlideText{RoomID: u.RoomID, QuickSlideText: u.QuickSlideText}, true
	case domain.KindClose:
		return CloseRoom{RoomID: u.RoomID}, true
	}
	return nil, false
}

// Relay builds the fan-out message for a stamped update. Close has none.
func Relay(u domain.StateUpdate) (Relayed, bool) {
	switch u.Kind {
	case domain.KindSlide:
		if u.Slide == nil {
			return nil, false
		}
		return SlideUpdated{RoomID: u.RoomID, Slide: *u.Slide, Sequence: u.Sequence}, true
	case domain.KindBackground:
		return BackgroundUpdated{RoomID: u.RoomID, BackgroundImage: u.BackgroundImage, Sequence: u.Sequence}, true
	case domain.KindQuickText:
		return QuickSlideTextUpdated{RoomID: u.RoomID, QuickSlideText: u.QuickSlideText, Sequence: u.Sequence}, true
	}
	return nil, false
}

func (m SlideUpdated) Update() domain.StateUpdate {
	sl := m.Slide
	return domain.StateUpdate{RoomID: m.RoomID, Kind: domain.KindSlide, Slide: &sl, Sequence: m.Sequence}
}

func (m BackgroundUpdated) Update() domain.StateUpdate {
	return domain.StateUpdate{RoomID: m.RoomID, Kind: domain.KindBackground, BackgroundImage: m.BackgroundImage, Sequence: m.Sequence}
}

func (m QuickSlideTextUpdated) Update() domain.StateUpdate {
	return domain.StateUpdate{RoomID: m.RoomID, Kind: domain.KindQuickText, QuickSlideText: m.QuickSlideText, Sequence: m.Sequence}
}
