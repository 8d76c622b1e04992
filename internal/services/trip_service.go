package services

import (
	"context"
	"errors"
	"fmt"

	"schoolbus/internal/database"
	"schoolbus/internal/models"
	"schoolbus/pkg/logger"
)

// TripService answers the trip, fleet and user lookups of the client.
type TripService struct {
	db database.Database
}

func NewTripService(db database.Database) *TripService {
	return &TripService{db: db}
}

func (s *TripService) Children(ctx context.Context, caller models.User, parentID string) ([]models.User, error) {
	if caller.ID != parentID && caller.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	return s.db.ListChildren(ctx, parentID)
}

// StudentBookings lists the bookings of a student with the trip, bus and
// driver embedded the way the mobile backend returns them.
func (s *TripService) StudentBookings(ctx context.Context, caller models.User, studentID string) ([]models.TripCandidate, error) {
	if err := s.canSeeStudent(ctx, caller, studentID); err != nil {
		return nil, err
	}

	bookings, err := s.db.ListBookingsByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	out := make([]models.TripCandidate, 0, len(bookings))
	for _, b := range bookings {
		trip, err := s.db.GetTrip(ctx, b.TripID)
		if err != nil {
			logger.Warn("Booking %s references missing trip %s: %v", b.ID, b.TripID, err)
			continue
		}
		status := trip.Status
		if !status.InProgress() && b.Status != "" {
			status = b.Status
		}
		out = append(out, models.TripCandidate{
			ID:     b.ID,
			TripID: s.embedTrip(ctx, trip),
			Status: status,
			Date:   trip.Date,
		})
	}
	return out, nil
}

func (s *TripService) canSeeStudent(ctx context.Context, caller models.User, studentID string) error {
	switch caller.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleStudent:
		if caller.ID == studentID {
			return nil
		}
	case models.RoleParent:
		children, err := s.db.ListChildren(ctx, caller.ID)
		if err != nil {
			return err
		}
		for _, c := range children {
			if c.ID == studentID {
				return nil
			}
		}
	}
	return ErrForbidden
}

func (s *TripService) embedTrip(ctx context.Context, trip *database.Trip) models.Ref {
	ref := models.Ref{ObjectID: trip.ID, Embedded: true}
	bus := models.Ref{ObjectID: trip.BusID, Embedded: true}
	if trip.DriverID != "" {
		driver := s.embedDriver(ctx, trip.DriverID)
		bus.Driver = &driver
		ref.Driver = &driver
	}
	ref.Bus = &bus
	return ref
}

func (s *TripService) embedDriver(ctx context.Context, id string) models.Ref {
	u, err := s.db.GetUserByID(ctx, id)
	if err != nil {
		return models.NewRef(id)
	}
	return models.Ref{ObjectID: u.ID, Embedded: true, Name: u.Name, Phone: u.Phone}
}

// DriverTrips lists the trips of a driver on date (YYYY-MM-DD, empty for
// every day) with bare bus and driver ids.
func (s *TripService) DriverTrips(ctx context.Context, caller models.User, driverID, date string) ([]models.TripCandidate, error) {
	if driverID == "" {
		driverID = caller.ID
	}
	if caller.ID != driverID && caller.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}

	trips, err := s.db.ListTripsByDriver(ctx, driverID, date)
	if err != nil {
		return nil, err
	}
	out := make([]models.TripCandidate, 0, len(trips))
	for _, t := range trips {
		out = append(out, models.TripCandidate{
			ID:       t.ID,
			BusID:    models.NewRef(t.BusID),
			DriverID: models.NewRef(t.DriverID),
			Status:   t.Status,
			Date:     t.Date,
		})
	}
	return out, nil
}

func (s *TripService) Drivers(ctx context.Context) ([]models.User, error) {
	return s.db.ListUsersByRole(ctx, models.RoleDriver)
}

// User returns a user record. Only the user itself and admins may read it.
func (s *TripService) User(ctx context.Context, caller models.User, id string) (*models.User, error) {
	if caller.ID != id && caller.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	return s.db.GetUserByID(ctx, id)
}

// Bus returns the bus with its driver embedded and its route as a bare id.
func (s *TripService) Bus(ctx context.Context, id string) (*models.Bus, error) {
	bus, err := s.db.GetBus(ctx, id)
	if err != nil {
		return nil, err
	}
	if driverID := bus.Driver.Key(); driverID != "" {
		bus.Driver = s.embedDriver(ctx, driverID)
	}
	return bus, nil
}

func (s *TripService) Route(ctx context.Context, id string) (*models.Route, error) {
	return s.db.GetRoute(ctx, id)
}

// ResolveRoom finds the trip behind a chat room. busID may be a bus id or
// number.
func (s *TripService) ResolveRoom(ctx context.Context, busID, tripID string) (*database.Trip, error) {
	trip, err := s.db.GetTrip(ctx, tripID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trip: %w", err)
	}
	if trip.BusID == busID {
		return trip, nil
	}
	if bus, err := s.db.GetBus(ctx, busID); err == nil && bus.Key() == trip.BusID {
		return trip, nil
	}
	return nil, ErrRoomNotFound
}
