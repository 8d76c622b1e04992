package services

import (
	"context"
	"strings"

	"schoolbus/internal/database"
	"schoolbus/internal/models"
)

// HistoryLimit caps the messages returned for a room.
const HistoryLimit = 200

// ChatService guards trip chat rooms and persists their messages.
type ChatService struct {
	db    database.Database
	trips *TripService
}

func NewChatService(db database.Database, trips *TripService) *ChatService {
	return &ChatService{db: db, trips: trips}
}

// CanUserAccessRoom reports whether user takes part in the trip of the room:
// its driver, a booked student, a parent of one, or an admin. It returns
// ErrRoomNotFound when the room does not exist.
func (s *ChatService) CanUserAccessRoom(ctx context.Context, user models.User, busID, tripID string) (bool, error) {
	trip, err := s.trips.ResolveRoom(ctx, busID, tripID)
	if err != nil {
		return false, err
	}

	switch user.Role {
	case models.RoleAdmin:
		return true, nil
	case models.RoleDriver:
		if trip.DriverID == user.ID {
			return true, nil
		}
		bus, err := s.db.GetBus(ctx, trip.BusID)
		return err == nil && bus.Driver.Key() == user.ID, nil
	case models.RoleStudent:
		return s.booked(ctx, user.ID, trip.ID)
	case models.RoleParent:
		children, err := s.db.ListChildren(ctx, user.ID)
		if err != nil {
			return false, err
		}
		for _, c := range children {
			ok, err := s.booked(ctx, c.ID, trip.ID)
			if err != nil || ok {
				return ok, err
			}
		}
	}
	return false, nil
}

func (s *ChatService) booked(ctx context.Context, studentID, tripID string) (bool, error) {
	bookings, err := s.db.ListBookingsByStudent(ctx, studentID)
	if err != nil {
		return false, err
	}
	for _, b := range bookings {
		if b.TripID == tripID {
			return true, nil
		}
	}
	return false, nil
}

func (s *ChatService) authorize(ctx context.Context, user models.User, busID, tripID string) error {
	ok, err := s.CanUserAccessRoom(ctx, user, busID, tripID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// History returns the recent messages of a room, oldest first.
func (s *ChatService) History(ctx context.Context, user models.User, busID, tripID string) ([]models.ChatMessage, error) {
	if err := s.authorize(ctx, user, busID, tripID); err != nil {
		return nil, err
	}
	return s.db.LoadRecentMessages(ctx, busID, tripID, HistoryLimit)
}

// PostMessage stores a message from user. The sender fields come from the
// authenticated user, not the request.
func (s *ChatService) PostMessage(ctx context.Context, user models.User, busID, tripID string, req models.SendMessageRequest) (*models.ChatMessage, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" && req.ImageURL == "" {
		return nil, ErrInvalidMessage
	}
	if err := s.authorize(ctx, user, busID, tripID); err != nil {
		return nil, err
	}

	name := user.Name
	if name == "" {
		name = req.SenderName
	}
	msg := &models.ChatMessage{
		BusID:      busID,
		TripID:     tripID,
		SenderID:   user.ID,
		SenderRole: user.Role,
		SenderName: name,
		Message:    text,
		ImageURL:   req.ImageURL,
	}
	if err := s.db.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
