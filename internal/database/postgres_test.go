package database

import (
	"context"
	"testing"
	"time"

	"schoolbus/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockDB(t *testing.T) (*PostgresDB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return newPostgresDB(db), mock
}

func TestPostgresDB_GetUserByEmail(t *testing.T) {
	pg, mock := newMockDB(t)

	mock.ExpectQuery("SELECT id, name, email, phone, role, password_hash").
		WithArgs("dana@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone", "role", "password_hash", "parent_id"}).
			AddRow("d1", "Dana", "dana@example.com", "555", "Driver", "hash", ""))
	mock.ExpectQuery("SELECT id, name, email, phone, role, password_hash").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone", "role", "password_hash", "parent_id"}))

	acc, err := pg.GetUserByEmail(context.Background(), "dana@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if acc.ID != "d1" || acc.Role != models.RoleDriver || acc.PasswordHash != "hash" {
		t.Errorf("account = %+v", acc)
	}

	if _, err := pg.GetUserByEmail(context.Background(), "nobody@example.com"); err != ErrNotFound {
		t.Errorf("missing row error = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresDB_ListTripsByDriver(t *testing.T) {
	pg, mock := newMockDB(t)

	mock.ExpectQuery("FROM trips").
		WithArgs("d1", "2025-03-04").
		WillReturnRows(sqlmock.NewRows([]string{"id", "bus_id", "driver_id", "route_id", "trip_date", "status"}).
			AddRow("t1", "b1", "d1", "r1", "2025-03-04", "STARTED"))

	trips, err := pg.ListTripsByDriver(context.Background(), "d1", "2025-03-04")
	if err != nil {
		t.Fatalf("ListTripsByDriver() error = %v", err)
	}
	if len(trips) != 1 || trips[0].BusID != "b1" || trips[0].Status != models.TripStatusStarted {
		t.Errorf("trips = %+v", trips)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresDB_GetRoute(t *testing.T) {
	pg, mock := newMockDB(t)

	mock.ExpectQuery("SELECT id, name FROM routes").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("r1", "North loop"))
	mock.ExpectQuery("FROM route_stops").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "latitude", "longitude"}).
			AddRow("Depot", 52.1, 4.3).
			AddRow("School", 52.2, 4.4))

	route, err := pg.GetRoute(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetRoute() error = %v", err)
	}
	if route.Name != "North loop" || len(route.Stops) != 2 || route.Stops[1].Name != "School" {
		t.Errorf("route = %+v", route)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresDB_SaveMessage(t *testing.T) {
	pg, mock := newMockDB(t)
	now := time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC)
	pg.now = func() time.Time { return now }

	mock.ExpectExec("INSERT INTO messages").
		WithArgs(sqlmock.AnyArg(), "b1", "t1", "d1", "driver", "Dana", "On my way", "", "sent", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	msg := &models.ChatMessage{BusID: "b1", TripID: "t1", SenderID: "d1", SenderRole: models.RoleDriver, SenderName: "Dana", Message: "On my way"}
	if err := pg.SaveMessage(context.Background(), msg); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}
	if msg.ID == "" {
		t.Error("message id not assigned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresDB_LoadRecentMessagesOldestFirst(t *testing.T) {
	pg, mock := newMockDB(t)
	t0 := time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC)

	cols := []string{"id", "bus_id", "trip_id", "sender_id", "sender_role", "sender_name", "message", "image_url", "status", "created_at"}
	mock.ExpectQuery("FROM messages").
		WithArgs("b1", "t1", 50).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("m2", "b1", "t1", "p1", "parent", "Pat", "thanks", "", "sent", t0.Add(time.Minute)).
			AddRow("m1", "b1", "t1", "d1", "driver", "Dana", "On my way", "", "sent", t0))

	msgs, err := pg.LoadRecentMessages(context.Background(), "b1", "t1", 50)
	if err != nil {
		t.Fatalf("LoadRecentMessages() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("messages = %+v", msgs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
