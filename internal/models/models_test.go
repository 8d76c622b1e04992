package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRef_UnmarshalShapes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		key  string
	}{
		{"bare string", `"bus-1"`, "bus-1"},
		{"number", `42`, "42"},
		{"embedded _id", `{"_id":"a1","id":"b1"}`, "a1"},
		{"embedded id", `{"id":"b1"}`, "b1"},
		{"null", `null`, ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var r Ref
			if err := json.Unmarshal([]byte(tc.in), &r); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := r.Key(); got != tc.key {
				t.Errorf("Key() = %q, want %q", got, tc.key)
			}
		})
	}
}

func TestTripCandidate_LiftsEmbeddedTripRefs(t *testing.T) {
	t.Parallel()

	raw := `{
		"_id": "booking-1",
		"status": "Pending",
		"tripId": {"_id": "trip-9", "busId": {"id": "bus-3", "driverId": {"_id": "drv-1", "name": "Sam"}}}
	}`
	var c TripCandidate
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.TripKey() != "trip-9" {
		t.Errorf("TripKey() = %q", c.TripKey())
	}
	if c.BusKey() != "bus-3" {
		t.Errorf("BusKey() = %q", c.BusKey())
	}
	if c.DriverKey() != "drv-1" {
		t.Errorf("DriverKey() = %q, want driver embedded in bus", c.DriverKey())
	}
	if c.Status != TripStatusPending {
		t.Errorf("Status = %q", c.Status)
	}
}

func TestChatMessage_CreatedAtForms(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC)
	inputs := []string{
		`{"_id":"m1","createdAt":"2024-05-01T07:30:00.000Z"}`,
		`{"id":"m1","createdAt":1714548600000}`,
		`{"id":"m1","createdAt":"1714548600000"}`,
	}
	for _, in := range inputs {
		var m ChatMessage
		if err := json.Unmarshal([]byte(in), &m); err != nil {
			t.Fatalf("unmarshal %s: %v", in, err)
		}
		if m.ID != "m1" {
			t.Errorf("%s: ID = %q", in, m.ID)
		}
		if !m.CreatedAt.Equal(want) {
			t.Errorf("%s: CreatedAt = %v, want %v", in, m.CreatedAt, want)
		}
	}
}

func TestChatMessage_SenderRef(t *testing.T) {
	t.Parallel()

	var m ChatMessage
	in := `{"_id":"m2","senderId":{"_id":"u1","name":"Ana"},"senderRole":"Parent","message":"hi"}`
	if err := json.Unmarshal([]byte(in), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.SenderID != "u1" || m.SenderName != "Ana" || m.SenderRole != RoleParent {
		t.Errorf("unexpected sender fields: %+v", m)
	}
}

func TestBus_RouteShapes(t *testing.T) {
	t.Parallel()

	var embedded Bus
	in := `{"busNumber":"B12","routeId":{"_id":"r1","stops":[{"name":"A","lat":1,"lng":2},{"name":"B","location":{"latitude":3,"longitude":4}}]}}`
	if err := json.Unmarshal([]byte(in), &embedded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if embedded.Key() != "B12" || !embedded.Matches("B12") {
		t.Errorf("bus identity = %q", embedded.Key())
	}
	if embedded.Route == nil || len(embedded.Route.Stops) != 2 {
		t.Fatalf("route not decoded: %+v", embedded.Route)
	}
	if got := embedded.Route.Stops[1].Location; got.Latitude != 3 || got.Longitude != 4 {
		t.Errorf("stop location = %+v", got)
	}
	if embedded.RouteRef.Key() != "r1" {
		t.Errorf("route ref = %q", embedded.RouteRef.Key())
	}

	var bare Bus
	if err := json.Unmarshal([]byte(`{"_id":"b1","routeId":"r2"}`), &bare); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if bare.Route != nil || bare.RouteRef.Key() != "r2" {
		t.Errorf("bare route ref: %+v", bare)
	}
}

func TestActiveTripContext_Valid(t *testing.T) {
	t.Parallel()

	var nilCtx *ActiveTripContext
	if nilCtx.Valid() {
		t.Error("nil context reported valid")
	}
	if (&ActiveTripContext{BusID: "b"}).Valid() {
		t.Error("context without trip reported valid")
	}
	a := &ActiveTripContext{BusID: "b", TripID: "t"}
	if !a.Valid() || a.RoomKey() != "b:t" {
		t.Errorf("RoomKey() = %q", a.RoomKey())
	}
	if !a.Same(&ActiveTripContext{BusID: "b", TripID: "t"}) {
		t.Error("equal contexts not Same")
	}
}

func TestDecodeUserID(t *testing.T) {
	t.Parallel()

	if got := DecodeUserID(json.RawMessage(`"u7"`)); got != "u7" {
		t.Errorf("bare = %q", got)
	}
	if got := DecodeUserID(json.RawMessage(`{"userId":"u8"}`)); got != "u8" {
		t.Errorf("object = %q", got)
	}
}
