package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"schoolbus/internal/models"
)

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, staticToken("tok"), 5*time.Second)
}

func TestClient_StudentBookings(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bookings/student/s1" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{"data":[{"_id":"bk1","tripId":"t1","busId":{"_id":"b1"},"status":"active"},null]}`)
	})

	got, err := c.StudentBookings(context.Background(), "s1")
	if err != nil {
		t.Fatalf("StudentBookings() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d bookings, want null entries dropped", len(got))
	}
	if got[0].TripKey() != "t1" || got[0].BusKey() != "b1" {
		t.Errorf("booking = %+v", got[0])
	}
}

func TestClient_DriverTrips(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 9, 2, 15, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("driverId") != "d1" || r.URL.Query().Get("date") != "2024-09-02" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `[{"_id":"trip-1","busId":"b1","status":"scheduled"}]`)
	})

	got, err := c.DriverTrips(context.Background(), "d1", day)
	if err != nil {
		t.Fatalf("DriverTrips() error = %v", err)
	}
	if len(got) != 1 || got[0].TripKey() != "trip-1" {
		t.Errorf("trip id not taken from record: %+v", got)
	}
}

func TestClient_StatusError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})

	_, err := c.User(context.Background(), "d1")
	if !IsForbidden(err) {
		t.Fatalf("expected 403, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Path != "/users/d1" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestClient_SendMessage(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chats/b1/t1" {
			http.NotFound(w, r)
			return
		}
		var req models.SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Message != "On my way" || req.SenderRole != models.RoleDriver {
			t.Errorf("request = %+v", req)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"_id":"m1","message":"On my way"}`)
	})

	msg, err := c.SendMessage(context.Background(), "b1", "t1", models.SendMessageRequest{
		SenderID: "d1", SenderRole: models.RoleDriver, SenderName: "Sam", Message: "On my way",
	})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if msg.ID != "m1" {
		t.Errorf("ID = %q", msg.ID)
	}
}

func TestClient_Upload(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"url", `{"url":"https://cdn/x.png","path":"/p"}`, "https://cdn/x.png"},
		{"path", `{"path":"/files/x.png"}`, "/files/x.png"},
		{"imageUrl", `{"imageUrl":"https://img/x.png"}`, "https://img/x.png"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				f, hdr, err := r.FormFile("file")
				if err != nil {
					t.Errorf("FormFile: %v", err)
					http.Error(w, "bad", http.StatusBadRequest)
					return
				}
				defer f.Close()
				data, _ := io.ReadAll(f)
				if hdr.Filename != "photo.png" || string(data) != "PNG" {
					t.Errorf("file = %s %q", hdr.Filename, data)
				}
				fmt.Fprint(w, tc.body)
			})
			got, err := c.Upload(context.Background(), "/tmp/photo.png", strings.NewReader("PNG"))
			if err != nil {
				t.Fatalf("Upload() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("Upload() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{&StatusError{Status: 500}, MessageServerError},
		{fmt.Errorf("send: %w", &StatusError{Status: 404}), MessageRoomNotFound},
		{&StatusError{Status: 400}, MessageInvalidFormat},
		{&StatusError{Status: 502}, MessageRetry},
		{errors.New("dial tcp: refused"), MessageRetry},
		{fmt.Errorf("%w: timeout", ErrUpload), MessageUploadFailed},
	}
	for _, tc := range cases {
		if got := UserMessage(tc.err); got != tc.want {
			t.Errorf("UserMessage(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
