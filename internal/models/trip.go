package models

import (
	"encoding/json"
	"strings"
)

type Role string

const (
	RoleParent  Role = "parent"
	RoleStudent Role = "student"
	RoleDriver  Role = "driver"
	RoleAdmin   Role = "admin"
)

// ParseRole normalizes a role string from a token or user record.
func ParseRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

type TripStatus string

const (
	TripStatusScheduled TripStatus = "scheduled"
	TripStatusStarted   TripStatus = "started"
	TripStatusActive    TripStatus = "active"
	TripStatusPending   TripStatus = "pending"
	TripStatusEnded     TripStatus = "ended"
	TripStatusCancelled TripStatus = "cancelled"
)

// InProgress reports whether the trip is currently running.
func (s TripStatus) InProgress() bool {
	return s == TripStatusStarted || s == TripStatusActive
}

// User is the authenticated user or one of a parent's dependents.
type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Role  Role   `json:"role"`
}

func (u *User) UnmarshalJSON(data []byte) error {
	var aux struct {
		ObjectID flexString `json:"_id"`
		AltID    flexString `json:"id"`
		Name     string     `json:"name"`
		FullName string     `json:"fullName"`
		Email    string     `json:"email"`
		Phone    string     `json:"phone"`
		Role     string     `json:"role"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*u = User{
		ID:    string(aux.ObjectID),
		Name:  aux.Name,
		Email: aux.Email,
		Phone: aux.Phone,
		Role:  ParseRole(aux.Role),
	}
	if u.ID == "" {
		u.ID = string(aux.AltID)
	}
	if u.Name == "" {
		u.Name = aux.FullName
	}
	return nil
}

// TripCandidate is a booking or trip visible to the current user, considered
// while resolving the active trip.
type TripCandidate struct {
	ID          string     `json:"_id,omitempty"`
	TripID      Ref        `json:"tripId"`
	BusID       Ref        `json:"busId"`
	DriverID    Ref        `json:"driverId"`
	Status      TripStatus `json:"status"`
	Date        string     `json:"date,omitempty"`
	SubjectName string     `json:"subjectName,omitempty"`
}

func (c *TripCandidate) UnmarshalJSON(data []byte) error {
	var aux struct {
		ObjectID    flexString `json:"_id"`
		AltID       flexString `json:"id"`
		TripID      Ref        `json:"tripId"`
		BusID       Ref        `json:"busId"`
		DriverID    Ref        `json:"driverId"`
		Status      string     `json:"status"`
		Date        string     `json:"date"`
		SubjectName string     `json:"subjectName"`
		StudentName string     `json:"studentName"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = TripCandidate{
		ID:          string(aux.ObjectID),
		TripID:      aux.TripID,
		BusID:       aux.BusID,
		DriverID:    aux.DriverID,
		Status:      TripStatus(strings.ToLower(strings.TrimSpace(aux.Status))),
		Date:        aux.Date,
		SubjectName: aux.SubjectName,
	}
	if c.ID == "" {
		c.ID = string(aux.AltID)
	}
	if c.SubjectName == "" {
		c.SubjectName = aux.StudentName
	}
	c.normalize()
	return nil
}

// normalize lifts bus and driver refs out of an embedded trip document when
// the booking does not carry them at top level.
func (c *TripCandidate) normalize() {
	if c.BusID.IsZero() && c.TripID.Bus != nil {
		c.BusID = *c.TripID.Bus
	}
	if c.DriverID.IsZero() && c.TripID.Driver != nil {
		c.DriverID = *c.TripID.Driver
	}
}

// BusKey returns the bus id of the candidate, or "" when none can be found.
func (c TripCandidate) BusKey() string {
	return c.BusID.Key()
}

// TripKey returns the trip id of the candidate.
func (c TripCandidate) TripKey() string {
	return c.TripID.Key()
}

// DriverKey resolves the driver id: the driver ref itself, then the driver
// embedded in the bus document.
func (c TripCandidate) DriverKey() string {
	if id := c.DriverID.Key(); id != "" {
		return id
	}
	if c.BusID.Driver != nil {
		return c.BusID.Driver.Key()
	}
	return ""
}

// DriverInfo is the display information of the driver of the active trip.
type DriverInfo struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// ActiveTripContext scopes chat and tracking to one (bus, trip) pair.
type ActiveTripContext struct {
	BusID     string
	TripID    string
	Driver    DriverInfo
	Candidate TripCandidate
}

// Valid reports whether both ids are present. Chat and tracking stay
// disabled for an invalid context.
func (c *ActiveTripContext) Valid() bool {
	return c != nil && c.BusID != "" && c.TripID != ""
}

// RoomKey identifies the chat room of the context.
func (c *ActiveTripContext) RoomKey() string {
	if !c.Valid() {
		return ""
	}
	return RoomKey(c.BusID, c.TripID)
}

// Same reports whether two contexts scope the same room.
func (c *ActiveTripContext) Same(other *ActiveTripContext) bool {
	if !c.Valid() || !other.Valid() {
		return !c.Valid() && !other.Valid()
	}
	return c.BusID == other.BusID && c.TripID == other.TripID
}

func RoomKey(busID, tripID string) string {
	return busID + ":" + tripID
}
