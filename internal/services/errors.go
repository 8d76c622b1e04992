package services

import "errors"

var (
	// ErrForbidden is returned when the caller may not see the record.
	ErrForbidden = errors.New("forbidden")

	// ErrRoomNotFound is returned when no trip matches the bus and trip ids.
	ErrRoomNotFound = errors.New("chat room not found")

	// ErrInvalidMessage is returned for a message without text or image.
	ErrInvalidMessage = errors.New("message requires text or an image")
)
