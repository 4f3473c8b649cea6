package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownType = errors.New("unknown message type")

type envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	return json.Marshal(envelope{Type: m.Type(), Data: data})
}

// Decode parses one frame into its concrete message type.
func Decode(b []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case TypeOperatorJoin:
		return decodeAs[OperatorJoin](env)
	case TypeViewerJoin:
		return decodeAs[ViewerJoin](env)
	case TypeUpdateSlide:
		return decodeAs[UpdateSlide](env)
	case TypeUpdateBackground:
		return decodeAs[UpdateBackground](env)
	case TypeUpdateQuickSlideText:
		return decodeAs[UpdateQuickSlideText](env)
	case TypeCloseRoom:
		return decodeAs[CloseRoom](env)
	case TypeRegeneratePIN:
		return decodeAs[RegeneratePIN](env)
	case TypeLeave:
		return decodeAs[Leave](env)
	case TypePing:
		return decodeAs[Ping](env)
	case TypeOperatorJoined:
		return decodeAs[OperatorJoined](env)
	case TypeViewerJoined:
		return decodeAs[ViewerJoined](env)
	case TypeSlideUpdated:
		return decodeAs[SlideUpdated](env)
	case TypeBackground:
		return decodeAs[BackgroundUpdated](env)
	case TypeQuickSlideText:
		return decodeAs[QuickSlideTextUpdated](env)
	case TypeViewerCount:
		return decodeAs[ViewerCount](env)
	case TypeRoomClosed:
		return decodeAs[RoomClosed](env)
	case TypeOperatorEvicted:
		return decodeAs[OperatorEvicted](env)
	case TypePINChanged:
		return decodeAs[PINChanged](env)
	case TypePong:
		return decodeAs[Pong](env)
	case TypeError:
		return decodeAs[Error](env)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

func decodeAs[M Message](env envelope) (Message, error) {
	var m M
	if len(env.Data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(env.Data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return m, nil
}
