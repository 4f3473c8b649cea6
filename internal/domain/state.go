package domain

// UpdateKind selects which part of the presentation state an update replaces.
type UpdateKind string

const (
	KindSlide      UpdateKind = "slideUpdate"
	KindBackground UpdateKind = "backgroundUpdate"
	KindQuickText  UpdateKind = "quickTextUpdate"
	KindClose      UpdateKind = "close"
)

type Slide struct {
	SongID      string `json:"songId"`
	SlideIndex  int    `json:"slideIndex"`
	DisplayMode string `json:"displayMode"`
	IsBlank     bool   `json:"isBlank"`
}

// PresentationState is what a viewer renders. Each field is updated independently.
type PresentationState struct {
	Slide           *Slide `json:"slide,omitempty"`
	BackgroundImage string `json:"backgroundImage,omitempty"`
	QuickSlideText  string `json:"quickSlideText,omitempty"`
}

// Clone returns a copy that shares no memory with s.
func (s PresentationState) Clone() PresentationState {
	if s.Slide != nil {
		sl := *s.Slide
		s.Slide = &sl
	}
	return s
}

// Apply returns s with the field selected by u.Kind replaced.
// Close and unknown kinds leave the state untouched.
func (s PresentationState) Apply(u StateUpdate) PresentationState {
	out := s.Clone()
	switch u.Kind {
	case KindSlide:
		if u.Slide != nil {
			sl := *u.Slide
			out.Slide = &sl
		}
	case KindBackground:
		out.BackgroundImage = u.BackgroundImage
	case KindQuickText:
		out.QuickSlideText = u.QuickSlideText
	}
	return out
}

// StateUpdate is one operator change. Sequence is zero until the relay stamps it.
type StateUpdate struct {
	RoomID          RoomID
	Kind            UpdateKind
	Slide           *Slide
	BackgroundImage string
	QuickSlideText  string
	Sequence        uint64
}

func (u StateUpdate) Validate() error {
	if u.RoomID == "" {
		return ErrBadPayload
	}
	switch u.Kind {
	case KindSlide:
		if u.Slide == nil || u.Slide.SlideIndex < 0 {
			return ErrBadPayload
		}
	case KindBackground, KindQuickText, KindClose:
	default:
		return ErrBadPayload
	}
	return nil
}

// Snapshot is a room's current state plus the sequence it reflects.
type Snapshot struct {
	State    PresentationState `json:"state"`
	Sequence uint64            `json:"sequence"`
}
