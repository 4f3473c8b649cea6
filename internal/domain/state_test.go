package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyUpdatesOnlyOwnField(t *testing.T) {
	base := PresentationState{
		Slide:           &Slide{SongID: "s1", SlideIndex: 1, DisplayMode: "lyrics"},
		BackgroundImage: "bg.png",
		QuickSlideText:  "welcome",
	}

	tests := []struct {
		name   string
		update StateUpdate
		want   PresentationState
	}{
		{
			name:   "slide",
			update: StateUpdate{Kind: KindSlide, Slide: &Slide{SongID: "s2", SlideIndex: 4, IsBlank: true}},
			want: PresentationState{
				Slide:           &Slide{SongID: "s2", SlideIndex: 4, IsBlank: true},
				BackgroundImage: "bg.png",
				QuickSlideText:  "welcome",
			},
		},
		{
			name:   "background",
			update: StateUpdate{Kind: KindBackground, BackgroundImage: "night.jpg"},
			want: PresentationState{
				Slide:           &Slide{SongID: "s1", SlideIndex: 1, DisplayMode: "lyrics"},
				BackgroundImage: "night.jpg",
				QuickSlideText:  "welcome",
			},
		},
		{
			name:   "quick text cleared",
			update: StateUpdate{Kind: KindQuickText},
			want: PresentationState{
				Slide:           &Slide{SongID: "s1", SlideIndex: 1, DisplayMode: "lyrics"},
				BackgroundImage: "bg.png",
			},
		},
		{
			name:   "close leaves state",
			update: StateUpdate{Kind: KindClose},
			want:   base,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := base.Apply(tt.update)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyDoesNotAlias(t *testing.T) {
	sl := &Slide{SlideIndex: 2}
	got := PresentationState{}.Apply(StateUpdate{Kind: KindSlide, Slide: sl})
	sl.SlideIndex = 9
	require.NotNil(t, got.Slide)
	assert.Equal(t, 2, got.Slide.SlideIndex)

	clone := got.Clone()
	clone.Slide.SlideIndex = 7
	assert.Equal(t, 2, got.Slide.SlideIndex)
}

func TestStateUpdateValidate(t *testing.T) {
	assert.NoError(t, StateUpdate{RoomID: "r", Kind: KindSlide, Slide: &Slide{}}.Validate())
	assert.NoError(t, StateUpdate{RoomID: "r", Kind: KindClose}.Validate())
	assert.ErrorIs(t, StateUpdate{Kind: KindClose}.Validate(), ErrBadPayload)
	assert.ErrorIs(t, StateUpdate{RoomID: "r", Kind: KindSlide}.Validate(), ErrBadPayload)
	assert.ErrorIs(t, StateUpdate{RoomID: "r", Kind: KindSlide, Slide: &Slide{SlideIndex: -1}}.Validate(), ErrBadPayload)
	assert.ErrorIs(t, StateUpdate{RoomID: "r", Kind: "other"}.Validate(), ErrBadPayload)
}
