package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"schoolbus/internal/models"
	"schoolbus/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/crypto/bcrypt"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	phone         TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	parent_id     TEXT REFERENCES users(id)
);
CREATE TABLE IF NOT EXISTS routes (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS route_stops (
	route_id  TEXT NOT NULL REFERENCES routes(id),
	position  INT NOT NULL,
	name      TEXT NOT NULL,
	latitude  DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (route_id, position)
);
CREATE TABLE IF NOT EXISTS buses (
	id         TEXT PRIMARY KEY,
	bus_number TEXT NOT NULL UNIQUE,
	driver_id  TEXT REFERENCES users(id),
	route_id   TEXT REFERENCES routes(id)
);
CREATE TABLE IF NOT EXISTS trips (
	id        TEXT PRIMARY KEY,
	bus_id    TEXT NOT NULL REFERENCES buses(id),
	driver_id TEXT REFERENCES users(id),
	route_id  TEXT REFERENCES routes(id),
	trip_date DATE,
	status    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS bookings (
	id         TEXT PRIMARY KEY,
	student_id TEXT NOT NULL REFERENCES users(id),
	trip_id    TEXT NOT NULL REFERENCES trips(id),
	status     TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	bus_id      TEXT NOT NULL,
	trip_id     TEXT NOT NULL,
	sender_id   TEXT NOT NULL,
	sender_role TEXT NOT NULL,
	sender_name TEXT NOT NULL,
	message     TEXT NOT NULL,
	image_url   TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_room_idx ON messages (bus_id, trip_id, created_at);
`

// PostgresDB is the Postgres store. Queries go through database/sql on top
// of a pgx connection pool.
type PostgresDB struct {
	pool *pgxpool.Pool
	db   *sql.DB
	now  func() time.Time
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	db := newPostgresDB(stdlib.OpenDBFromPool(pool))
	db.pool = pool
	return db, nil
}

func newPostgresDB(db *sql.DB) *PostgresDB {
	return &PostgresDB{db: db, now: time.Now}
}

func (db *PostgresDB) Close() error {
	err := db.db.Close()
	if db.pool != nil {
		db.pool.Close()
	}
	return err
}

// Migrate creates the schema when it does not exist yet.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// Load inserts the records of seed in one transaction. Existing rows are
// left alone.
func (db *PostgresDB) Load(ctx context.Context, seed *Seed) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, u := range seed.Users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, name, email, phone, role, password_hash)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			u.ID, u.Name, u.Email, u.Phone, u.Role, string(hash)); err != nil {
			return fmt.Errorf("failed to seed user %s: %w", u.ID, err)
		}
	}
	// parents are linked once every user exists
	for _, u := range seed.Users {
		if u.Parent == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET parent_id = $2 WHERE id = $1`, u.ID, u.Parent); err != nil {
			return fmt.Errorf("failed to link user %s: %w", u.ID, err)
		}
	}
	for _, r := range seed.Routes {
		if _, err := tx.ExecContext(ctx, `INSERT INTO routes (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, r.ID, r.Name); err != nil {
			return fmt.Errorf("failed to seed route %s: %w", r.ID, err)
		}
		for i, s := range r.Stops {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO route_stops (route_id, position, name, latitude, longitude)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (route_id, position) DO NOTHING`,
				r.ID, i, s.Name, s.Lat, s.Lng); err != nil {
				return fmt.Errorf("failed to seed stop %s/%d: %w", r.ID, i, err)
			}
		}
	}
	for _, b := range seed.Buses {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO buses (id, bus_number, driver_id, route_id)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
			ON CONFLICT (id) DO NOTHING`,
			b.ID, b.Number, b.Driver, b.Route); err != nil {
			return fmt.Errorf("failed to seed bus %s: %w", b.ID, err)
		}
	}
	now := db.now()
	for _, t := range seed.Trips {
		trip := seed.tripFor(t, now)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO trips (id, bus_id, driver_id, route_id, trip_date, status)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, '')::date, $6)
			ON CONFLICT (id) DO NOTHING`,
			trip.ID, trip.BusID, trip.DriverID, trip.RouteID, trip.Date, string(trip.Status)); err != nil {
			return fmt.Errorf("failed to seed trip %s: %w", t.ID, err)
		}
	}
	for _, b := range seed.Bookings {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bookings (id, student_id, trip_id, status)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING`,
			b.ID, b.Student, b.Trip, string(tripStatus(b.Status))); err != nil {
			return fmt.Errorf("failed to seed booking %s: %w", b.ID, err)
		}
	}
	return tx.Commit()
}

// User Repository Implementation
func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*Account, error) {
	query := `SELECT id, name, email, phone, role, password_hash, COALESCE(parent_id, '') FROM users WHERE lower(email) = lower($1)`

	acc := &Account{}
	var role string
	err := db.db.QueryRowContext(ctx, query, email).Scan(
		&acc.ID, &acc.Name, &acc.Email, &acc.Phone, &role, &acc.PasswordHash, &acc.ParentID,
	)
	if err != nil {
		return nil, notFound(err)
	}
	acc.Role = models.ParseRole(role)
	return acc, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, name, email, phone, role FROM users WHERE id = $1`

	user := &models.User{}
	var role string
	err := db.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Name, &user.Email, &user.Phone, &role)
	if err != nil {
		return nil, notFound(err)
	}
	user.Role = models.ParseRole(role)
	return user, nil
}

func (db *PostgresDB) ListChildren(ctx context.Context, parentID string) ([]models.User, error) {
	return db.queryUsers(ctx, `SELECT id, name, email, phone, role FROM users WHERE parent_id = $1 ORDER BY name`, parentID)
}

func (db *PostgresDB) ListUsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	return db.queryUsers(ctx, `SELECT id, name, email, phone, role FROM users WHERE role = $1 ORDER BY name`, string(role))
}

func (db *PostgresDB) queryUsers(ctx context.Context, query string, args ...interface{}) ([]models.User, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		var role string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &role); err != nil {
			return nil, err
		}
		u.Role = models.ParseRole(role)
		users = append(users, u)
	}
	return users, rows.Err()
}

// Trip Repository Implementation
const tripColumns = `id, bus_id, COALESCE(driver_id, ''), COALESCE(route_id, ''), COALESCE(to_char(trip_date, 'YYYY-MM-DD'), ''), status`

func (db *PostgresDB) GetTrip(ctx context.Context, id string) (*Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`

	t := &Trip{}
	var status string
	err := db.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.BusID, &t.DriverID, &t.RouteID, &t.Date, &status)
	if err != nil {
		return nil, notFound(err)
	}
	t.Status = tripStatus(status)
	return t, nil
}

func (db *PostgresDB) ListTripsByDriver(ctx context.Context, driverID, date string) ([]Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE driver_id = $1 AND ($2 = '' OR to_char(trip_date, 'YYYY-MM-DD') = $2)
		ORDER BY id`

	rows, err := db.db.QueryContext(ctx, query, driverID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trips := []Trip{}
	for rows.Next() {
		var t Trip
		var status string
		if err := rows.Scan(&t.ID, &t.BusID, &t.DriverID, &t.RouteID, &t.Date, &status); err != nil {
			return nil, err
		}
		t.Status = tripStatus(status)
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

func (db *PostgresDB) ListBookingsByStudent(ctx context.Context, studentID string) ([]Booking, error) {
	query := `SELECT id, student_id, trip_id, status FROM bookings WHERE student_id = $1 ORDER BY id`

	rows, err := db.db.QueryContext(ctx, query, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := []Booking{}
	for rows.Next() {
		var b Booking
		var status string
		if err := rows.Scan(&b.ID, &b.StudentID, &b.TripID, &status); err != nil {
			return nil, err
		}
		b.Status = tripStatus(status)
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// Fleet Repository Implementation
func (db *PostgresDB) GetBus(ctx context.Context, id string) (*models.Bus, error) {
	query := `SELECT id, bus_number, COALESCE(driver_id, ''), COALESCE(route_id, '') FROM buses WHERE id = $1 OR bus_number = $1`

	var busID, number, driverID, routeID string
	if err := db.db.QueryRowContext(ctx, query, id).Scan(&busID, &number, &driverID, &routeID); err != nil {
		return nil, notFound(err)
	}
	return &models.Bus{
		ObjectID: busID,
		Number:   number,
		Driver:   models.NewRef(driverID),
		RouteRef: models.NewRef(routeID),
	}, nil
}

func (db *PostgresDB) GetRoute(ctx context.Context, id string) (*models.Route, error) {
	route := &models.Route{}
	if err := db.db.QueryRowContext(ctx, `SELECT id, name FROM routes WHERE id = $1`, id).Scan(&route.ID, &route.Name); err != nil {
		return nil, notFound(err)
	}

	rows, err := db.db.QueryContext(ctx, `SELECT name, latitude, longitude FROM route_stops WHERE route_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s models.Stop
		if err := rows.Scan(&s.Name, &s.Location.Latitude, &s.Location.Longitude); err != nil {
			return nil, err
		}
		route.Stops = append(route.Stops, s)
	}
	return route, rows.Err()
}

// Message Repository Implementation
func (db *PostgresDB) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	fillMessage(msg, db.now)

	query := `
		INSERT INTO messages (id, bus_id, trip_id, sender_id, sender_role, sender_name, message, image_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := db.db.ExecContext(ctx, query,
		msg.ID, msg.BusID, msg.TripID, msg.SenderID, string(msg.SenderRole), msg.SenderName,
		msg.Message, msg.ImageURL, string(msg.Status), msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (db *PostgresDB) LoadRecentMessages(ctx context.Context, busID, tripID string, limit int) ([]models.ChatMessage, error) {
	query := `
		SELECT id, bus_id, trip_id, sender_id, sender_role, sender_name, message, image_url, status, created_at
		FROM messages
		WHERE bus_id = $1 AND trip_id = $2
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := db.db.QueryContext(ctx, query, busID, tripID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		var role, status string
		if err := rows.Scan(&m.ID, &m.BusID, &m.TripID, &m.SenderID, &role, &m.SenderName,
			&m.Message, &m.ImageURL, &status, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.SenderRole = models.ParseRole(role)
		m.Status = models.MessageStatus(status)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
