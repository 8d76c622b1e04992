package api

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// ErrUpload marks failures of the image upload step of a send.
var ErrUpload = errors.New("image upload failed")

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// IsForbidden reports whether err is a 403 response.
func IsForbidden(err error) bool {
	return StatusCode(err) == http.StatusForbidden
}

const (
	MessageServerError   = "Server error, please try again later."
	MessageRoomNotFound  = "Chat room not found. Please refresh and try again."
	MessageInvalidFormat = "Invalid message format."
	MessageRetry         = "Failed to send message. Please try again."
	MessageUploadFailed  = "Failed to upload image. Please try again."
)

// UserMessage maps a send or upload failure to the text shown to the user.
func UserMessage(err error) string {
	if errors.Is(err, ErrUpload) {
		return MessageUploadFailed
	}
	switch StatusCode(err) {
	case http.StatusInternalServerError:
		return MessageServerError
	case http.StatusNotFound:
		return MessageRoomNotFound
	case http.StatusBadRequest:
		return MessageInvalidFormat
	default:
		return MessageRetry
	}
}
