package domain

import "errors"

var (
	ErrRoomNotFound          = errors.New("room not found")
	ErrNotOperator           = errors.New("not the room operator")
	ErrConnectionUnavailable = errors.New("no connection")
	ErrReconnectExhausted    = errors.New("reconnect attempts exhausted")
	ErrBadPayload            = errors.New("bad payload")
	ErrRateLimited           = errors.New("rate limited")
)

// Wire error codes.
const (
	CodeRoomNotFound          = "ROOM_NOT_FOUND"
	CodeNotOperator           = "NOT_OPERATOR"
	CodeConnectionUnavailable = "CONNECTION_UNAVAILABLE"
	CodeReconnectExhausted    = "RECONNECT_EXHAUSTED"
	CodeBadPayload            = "BAD_PAYLOAD"
	CodeRateLimited           = "RATE_LIMITED"
	CodeInternal              = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrRoomNotFound, CodeRoomNotFound},
	{ErrNotOperator, CodeNotOperator},
	{ErrConnectionUnavailable, CodeConnectionUnavailable},
	{ErrReconnectExhausted, CodeReconnectExhausted},
	{ErrBadPayload, CodeBadPayload},
	{ErrRateLimited, CodeRateLimited},
}

// Code maps err to its wire code.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// FromCode is the inverse of Code. Unknown codes yield nil.
func FromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
