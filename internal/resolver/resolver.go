// Package resolver decides which trip the current user is in.
package resolver

import (
	"context"
	"strings"
	"time"

	"schoolbus/internal/api"
	"schoolbus/internal/metrics"
	"schoolbus/internal/models"
	"schoolbus/pkg/logger"
)

// PlaceholderDriverName is shown when no driver details can be found.
const PlaceholderDriverName = "Driver"

// API is the subset of the backend the resolver reads from.
type API interface {
	Children(ctx context.Context, parentID string) ([]models.User, error)
	StudentBookings(ctx context.Context, studentID string) ([]models.TripCandidate, error)
	DriverTrips(ctx context.Context, driverID string, day time.Time) ([]models.TripCandidate, error)
	Drivers(ctx context.Context) ([]models.User, error)
	Bus(ctx context.Context, busID string) (*models.Bus, error)
	User(ctx context.Context, id string) (*models.User, error)
}

type Resolver struct {
	api     API
	metrics *metrics.Collector
	now     func() time.Time
}

func New(a API, m *metrics.Collector) *Resolver {
	return &Resolver{api: a, metrics: m, now: time.Now}
}

// Select applies the priority rule: the first started or active candidate,
// then for parents the first pending one, then the first candidate.
func Select(role models.Role, candidates []models.TripCandidate) *models.TripCandidate {
	if len(candidates) == 0 {
		return nil
	}
	for i := range candidates {
		if candidates[i].Status.InProgress() {
			c := candidates[i]
			return &c
		}
	}
	if role == models.RoleParent {
		for i := range candidates {
			if candidates[i].Status == models.TripStatusPending {
				c := candidates[i]
				return &c
			}
		}
	}
	c := candidates[0]
	return &c
}

// Resolve returns the active trip context of user, or nil when there is none.
// Failures are logged and never returned.
func (r *Resolver) Resolve(ctx context.Context, user models.User) *models.ActiveTripContext {
	tc := r.resolve(ctx, user)
	if r.metrics != nil {
		outcome := "none"
		if tc != nil {
			outcome = "active"
		}
		r.metrics.Resolutions.WithLabelValues(outcome).Inc()
	}
	return tc
}

func (r *Resolver) resolve(ctx context.Context, user models.User) *models.ActiveTripContext {
	candidates, ok := r.candidates(ctx, user)
	if !ok {
		return nil
	}

	selected := Select(user.Role, candidates)
	if selected == nil {
		logger.Info("No trip candidates for %s %s", user.Role, user.ID)
		return nil
	}

	busID, tripID := selected.BusKey(), selected.TripKey()
	if busID == "" || tripID == "" {
		logger.Warn("Selected trip has no usable ids (bus=%q trip=%q) for %s %s", busID, tripID, user.Role, user.ID)
		return nil
	}

	return &models.ActiveTripContext{
		BusID:     busID,
		TripID:    tripID,
		Driver:    r.driverInfo(ctx, user, *selected),
		Candidate: *selected,
	}
}

func (r *Resolver) candidates(ctx context.Context, user models.User) ([]models.TripCandidate, bool) {
	if user.ID == "" {
		logger.Warn("Cannot resolve a trip without a user id")
		return nil, false
	}

	switch user.Role {
	case models.RoleParent:
		children, err := r.api.Children(ctx, user.ID)
		if err != nil {
			logger.Error("Error loading children of %s: %v", user.ID, err)
			return nil, false
		}
		var all []models.TripCandidate
		for _, child := range children {
			bookings, err := r.api.StudentBookings(ctx, child.ID)
			if err != nil {
				logger.Error("Error loading bookings of child %s: %v", child.ID, err)
				continue
			}
			for _, b := range bookings {
				if child.Name != "" {
					b.SubjectName = child.Name
				}
				all = append(all, b)
			}
		}
		return all, true

	case models.RoleStudent:
		bookings, err := r.api.StudentBookings(ctx, user.ID)
		if err != nil {
			logger.Error("Error loading bookings of student %s: %v", user.ID, err)
			return nil, false
		}
		for i := range bookings {
			if bookings[i].SubjectName == "" {
				bookings[i].SubjectName = user.Name
			}
		}
		return bookings, true

	case models.RoleDriver:
		today := r.now()
		trips, err := r.api.DriverTrips(ctx, user.ID, today)
		if err != nil {
			logger.Error("Error loading trips of driver %s: %v", user.ID, err)
			return nil, false
		}
		return filterDriverTrips(trips, user.ID, today.Format("2006-01-02")), true

	default:
		logger.Info("Role %q has no trip context", user.Role)
		return nil, false
	}
}

// filterDriverTrips keeps the trips of driverID dated day. Records without a
// driver or a date are kept.
func filterDriverTrips(trips []models.TripCandidate, driverID, day string) []models.TripCandidate {
	out := trips[:0]
	for _, t := range trips {
		if id := t.DriverKey(); id != "" && id != driverID {
			continue
		}
		if t.Date != "" && !strings.HasPrefix(t.Date, day) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// driverInfo resolves the display details of the trip's driver: embedded
// details first, then the drivers list, the bus record and finally the user
// record. Every lookup is best effort.
func (r *Resolver) driverInfo(ctx context.Context, user models.User, c models.TripCandidate) models.DriverInfo {
	if info, ok := embeddedDriver(c); ok {
		return info
	}

	driverID := c.DriverKey()
	if user.Role == models.RoleDriver && (driverID == "" || driverID == user.ID) {
		return models.DriverInfo{ID: user.ID, Name: nameOr(user.Name), Phone: user.Phone}
	}

	if driverID != "" {
		drivers, err := r.api.Drivers(ctx)
		if err != nil {
			logger.Debug("Drivers list unavailable: %v", err)
		}
		for _, d := range drivers {
			if d.ID == driverID && d.Name != "" {
				return models.DriverInfo{ID: d.ID, Name: d.Name, Phone: d.Phone}
			}
		}
	}

	if busID := c.BusKey(); busID != "" {
		bus, err := r.api.Bus(ctx, busID)
		if err != nil {
			logger.Debug("Bus %s lookup failed: %v", busID, err)
		} else {
			if bus.Driver.Name != "" && (driverID == "" || bus.Driver.Key() == driverID) {
				return models.DriverInfo{ID: bus.Driver.Key(), Name: bus.Driver.Name, Phone: bus.Driver.Phone}
			}
			if driverID == "" {
				driverID = bus.Driver.Key()
			}
		}
	}

	if driverID != "" {
		u, err := r.api.User(ctx, driverID)
		switch {
		case api.IsForbidden(err):
			// non-privileged callers may not read user records
		case err != nil:
			logger.Debug("Driver %s lookup failed: %v", driverID, err)
		case u.Name != "":
			return models.DriverInfo{ID: driverID, Name: u.Name, Phone: u.Phone}
		}
	}

	return models.DriverInfo{ID: driverID, Name: PlaceholderDriverName}
}

func embeddedDriver(c models.TripCandidate) (models.DriverInfo, bool) {
	for _, ref := range []*models.Ref{&c.DriverID, c.BusID.Driver} {
		if ref != nil && ref.Embedded && strings.TrimSpace(ref.Name) != "" {
			return models.DriverInfo{ID: ref.Key(), Name: ref.Name, Phone: ref.Phone}, true
		}
	}
	return models.DriverInfo{}, false
}

func nameOr(name string) string {
	if name == "" {
		return PlaceholderDriverName
	}
	return name
}
