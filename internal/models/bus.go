package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Location is a coordinate pair. Both latitude/longitude and lat/lng keys are
// accepted on input.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (l *Location) UnmarshalJSON(data []byte) error {
	var aux struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Lat       *float64 `json:"lat"`
		Lng       *float64 `json:"lng"`
		Lon       *float64 `json:"lon"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*l = Location{}
	switch {
	case aux.Latitude != nil:
		l.Latitude = *aux.Latitude
	case aux.Lat != nil:
		l.Latitude = *aux.Lat
	}
	switch {
	case aux.Longitude != nil:
		l.Longitude = *aux.Longitude
	case aux.Lng != nil:
		l.Longitude = *aux.Lng
	case aux.Lon != nil:
		l.Longitude = *aux.Lon
	}
	return nil
}

// Stop is one waypoint of a route.
type Stop struct {
	Name     string   `json:"name"`
	Location Location `json:"location"`
}

func (s *Stop) UnmarshalJSON(data []byte) error {
	var aux struct {
		Name     string    `json:"name"`
		Location *Location `json:"location"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Name = aux.Name
	if aux.Location != nil {
		s.Location = *aux.Location
		return nil
	}
	// flat form: {"name": ..., "latitude": ..., "longitude": ...}
	return json.Unmarshal(data, &s.Location)
}

type Route struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Stops []Stop `json:"stops"`
}

func (r *Route) UnmarshalJSON(data []byte) error {
	var aux struct {
		ObjectID flexString `json:"_id"`
		AltID    flexString `json:"id"`
		Name     string     `json:"name"`
		Stops    []Stop     `json:"stops"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Route{ID: string(aux.ObjectID), Name: aux.Name, Stops: aux.Stops}
	if r.ID == "" {
		r.ID = string(aux.AltID)
	}
	return nil
}

// Bus is a bus record. A bus is identified by any of its three identity
// fields: _id, id or busNumber.
type Bus struct {
	ObjectID string `json:"_id,omitempty"`
	ID       string `json:"id,omitempty"`
	Number   string `json:"busNumber,omitempty"`
	Driver   Ref    `json:"driverId"`
	RouteRef Ref    `json:"routeId"`
	Route    *Route `json:"-"`
}

func (b *Bus) UnmarshalJSON(data []byte) error {
	var aux struct {
		ObjectID flexString      `json:"_id"`
		AltID    flexString      `json:"id"`
		Number   flexString      `json:"busNumber"`
		Driver   Ref             `json:"driverId"`
		RouteID  json.RawMessage `json:"routeId"`
		Route    *Route          `json:"route"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*b = Bus{
		ObjectID: string(aux.ObjectID),
		ID:       string(aux.AltID),
		Number:   string(aux.Number),
		Driver:   aux.Driver,
		Route:    aux.Route,
	}
	raw := bytes.TrimSpace(aux.RouteID)
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &b.RouteRef); err != nil {
		return err
	}
	if raw[0] == '{' && b.Route == nil {
		var route Route
		if err := json.Unmarshal(raw, &route); err != nil {
			return err
		}
		b.Route = &route
	}
	return nil
}

// Key returns the primary identity of the bus.
func (b Bus) Key() string {
	switch {
	case b.ObjectID != "":
		return b.ObjectID
	case b.ID != "":
		return b.ID
	default:
		return b.Number
	}
}

// Matches compares id against the three identity fields.
func (b Bus) Matches(id string) bool {
	if id == "" {
		return false
	}
	return b.ObjectID == id || b.ID == id || b.Number == id
}

// BusPosition is the tracked position of one bus.
type BusPosition struct {
	BusID         string    `json:"busId"`
	WaypointIndex int       `json:"waypointIndex"`
	Location      Location  `json:"location"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// LocationUpdate is the payload of the busLocationUpdate event.
type LocationUpdate struct {
	BusID           string   `json:"busId"`
	CurrentLocation Location `json:"currentLocation"`
}

func (u *LocationUpdate) UnmarshalJSON(data []byte) error {
	var aux struct {
		BusID           Ref      `json:"busId"`
		CurrentLocation Location `json:"currentLocation"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	u.BusID = aux.BusID.Key()
	u.CurrentLocation = aux.CurrentLocation
	return nil
}
