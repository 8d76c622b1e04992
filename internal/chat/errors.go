package chat

import (
	"errors"

	"schoolbus/internal/api"
)

var (
	// ErrEmptyMessage is returned when sending without text or an image.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoTripContext is returned when sending without an active trip.
	ErrNoTripContext = errors.New("no active trip")
)

const (
	MessageEmpty     = "Please enter a message or attach an image."
	MessageNoContext = "No active trip. Chat is unavailable."
)

// UserMessage maps a Send error to the text shown to the user.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return MessageEmpty
	case errors.Is(err, ErrNoTripContext):
		return MessageNoContext
	default:
		return api.UserMessage(err)
	}
}
