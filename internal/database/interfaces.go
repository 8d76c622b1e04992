package database

import (
	"context"
	"errors"

	"schoolbus/internal/models"
)

var ErrNotFound = errors.New("record not found")

// Account is a user row together with its credentials.
type Account struct {
	models.User
	PasswordHash string
	ParentID     string
}

type Trip struct {
	ID       string
	BusID    string
	DriverID string
	RouteID  string
	Date     string // YYYY-MM-DD
	Status   models.TripStatus
}

type Booking struct {
	ID        string
	StudentID string
	TripID    string
	Status    models.TripStatus
}

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*Account, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListChildren(ctx context.Context, parentID string) ([]models.User, error)
	ListUsersByRole(ctx context.Context, role models.Role) ([]models.User, error)
}

type TripRepository interface {
	GetTrip(ctx context.Context, id string) (*Trip, error)
	// ListTripsByDriver returns the trips of a driver on date; an empty date
	// matches every day.
	ListTripsByDriver(ctx context.Context, driverID, date string) ([]Trip, error)
	ListBookingsByStudent(ctx context.Context, studentID string) ([]Booking, error)
}

type FleetRepository interface {
	// GetBus looks a bus up by id or bus number.
	GetBus(ctx context.Context, id string) (*models.Bus, error)
	GetRoute(ctx context.Context, id string) (*models.Route, error)
}

type MessageRepository interface {
	// SaveMessage persists msg, filling in its id, creation time and status
	// when missing.
	SaveMessage(ctx context.Context, msg *models.ChatMessage) error
	LoadRecentMessages(ctx context.Context, busID, tripID string, limit int) ([]models.ChatMessage, error)
}

type Database interface {
	UserRepository
	TripRepository
	FleetRepository
	MessageRepository
	Close() error
}
