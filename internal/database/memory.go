package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"schoolbus/internal/models"
	"schoolbus/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MemoryDB keeps every record in process memory.
type MemoryDB struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	byEmail  map[string]string
	trips    map[string]*Trip
	bookings []Booking
	buses    map[string]*models.Bus
	routes   map[string]*models.Route
	messages map[string][]models.ChatMessage
	now      func() time.Time
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		accounts: make(map[string]*Account),
		byEmail:  make(map[string]string),
		trips:    make(map[string]*Trip),
		buses:    make(map[string]*models.Bus),
		routes:   make(map[string]*models.Route),
		messages: make(map[string][]models.ChatMessage),
		now:      time.Now,
	}
}

// Load adds the records of seed, hashing the seeded passwords.
func (db *MemoryDB) Load(seed *Seed) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := db.now()
	for _, u := range seed.Users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		db.accounts[u.ID] = &Account{
			User: models.User{
				ID:    u.ID,
				Name:  u.Name,
				Email: u.Email,
				Phone: u.Phone,
				Role:  models.ParseRole(u.Role),
			},
			PasswordHash: string(hash),
			ParentID:     u.Parent,
		}
		db.byEmail[strings.ToLower(u.Email)] = u.ID
	}
	for _, r := range seed.Routes {
		route := &models.Route{ID: r.ID, Name: r.Name}
		for _, s := range r.Stops {
			route.Stops = append(route.Stops, models.Stop{
				Name:     s.Name,
				Location: models.Location{Latitude: s.Lat, Longitude: s.Lng},
			})
		}
		db.routes[r.ID] = route
	}
	for _, b := range seed.Buses {
		db.buses[b.ID] = &models.Bus{
			ObjectID: b.ID,
			Number:   b.Number,
			Driver:   models.NewRef(b.Driver),
			RouteRef: models.NewRef(b.Route),
		}
	}
	for _, t := range seed.Trips {
		trip := seed.tripFor(t, now)
		db.trips[t.ID] = &trip
	}
	for _, b := range seed.Bookings {
		db.bookings = append(db.bookings, Booking{
			ID:        b.ID,
			StudentID: b.Student,
			TripID:    b.Trip,
			Status:    tripStatus(b.Status),
		})
	}

	logger.Info("Seeded %d users, %d buses, %d trips, %d bookings",
		len(seed.Users), len(seed.Buses), len(seed.Trips), len(seed.Bookings))
	return nil
}

func (db *MemoryDB) Close() error { return nil }

func (db *MemoryDB) GetUserByEmail(ctx context.Context, email string) (*Account, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	id, ok := db.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	acc := *db.accounts[id]
	return &acc, nil
}

func (db *MemoryDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	acc, ok := db.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	user := acc.User
	return &user, nil
}

func (db *MemoryDB) ListChildren(ctx context.Context, parentID string) ([]models.User, error) {
	return db.listUsers(func(a *Account) bool { return a.ParentID == parentID }), nil
}

func (db *MemoryDB) ListUsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	return db.listUsers(func(a *Account) bool { return a.Role == role }), nil
}

func (db *MemoryDB) listUsers(match func(*Account) bool) []models.User {
	db.mu.RLock()
	defer db.mu.RUnlock()

	users := []models.User{}
	for _, acc := range db.accounts {
		if match(acc) {
			users = append(users, acc.User)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users
}

func (db *MemoryDB) GetTrip(ctx context.Context, id string) (*Trip, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	t, ok := db.trips[id]
	if !ok {
		return nil, ErrNotFound
	}
	trip := *t
	return &trip, nil
}

func (db *MemoryDB) ListTripsByDriver(ctx context.Context, driverID, date string) ([]Trip, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	trips := []Trip{}
	for _, t := range db.trips {
		if t.DriverID == driverID && (date == "" || t.Date == date) {
			trips = append(trips, *t)
		}
	}
	sort.Slice(trips, func(i, j int) bool { return trips[i].ID < trips[j].ID })
	return trips, nil
}

func (db *MemoryDB) ListBookingsByStudent(ctx context.Context, studentID string) ([]Booking, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	bookings := []Booking{}
	for _, b := range db.bookings {
		if b.StudentID == studentID {
			bookings = append(bookings, b)
		}
	}
	return bookings, nil
}

func (db *MemoryDB) GetBus(ctx context.Context, id string) (*models.Bus, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if b, ok := db.buses[id]; ok {
		bus := *b
		return &bus, nil
	}
	for _, b := range db.buses {
		if b.Matches(id) {
			bus := *b
			return &bus, nil
		}
	}
	return nil, ErrNotFound
}

func (db *MemoryDB) GetRoute(ctx context.Context, id string) (*models.Route, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	r, ok := db.routes[id]
	if !ok {
		return nil, ErrNotFound
	}
	route := *r
	route.Stops = append([]models.Stop(nil), r.Stops...)
	return &route, nil
}

func (db *MemoryDB) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	fillMessage(msg, db.now)

	db.mu.Lock()
	defer db.mu.Unlock()
	key := models.RoomKey(msg.BusID, msg.TripID)
	db.messages[key] = append(db.messages[key], *msg)
	return nil
}

func (db *MemoryDB) LoadRecentMessages(ctx context.Context, busID, tripID string, limit int) ([]models.ChatMessage, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	all := db.messages[models.RoomKey(busID, tripID)]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]models.ChatMessage{}, all...), nil
}

func fillMessage(msg *models.ChatMessage, now func() time.Time) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now().UTC()
	}
	if msg.Status == "" {
		msg.Status = models.MessageStatusSent
	}
}

func tripStatus(s string) models.TripStatus {
	return models.TripStatus(strings.ToLower(strings.TrimSpace(s)))
}
