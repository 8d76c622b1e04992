package database

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Seed is the fixture file loaded into a fresh store.
type Seed struct {
	Users    []SeedUser    `yaml:"users" validate:"dive"`
	Routes   []SeedRoute   `yaml:"routes" validate:"dive"`
	Buses    []SeedBus     `yaml:"buses" validate:"dive"`
	Trips    []SeedTrip    `yaml:"trips" validate:"dive"`
	Bookings []SeedBooking `yaml:"bookings" validate:"dive"`
}

type SeedUser struct {
	ID       string `yaml:"id" validate:"required"`
	Name     string `yaml:"name" validate:"required"`
	Email    string `yaml:"email" validate:"required,email"`
	Phone    string `yaml:"phone"`
	Role     string `yaml:"role" validate:"required,oneof=parent student driver admin"`
	Password string `yaml:"password" validate:"required"`
	Parent   string `yaml:"parent"`
}

type SeedRoute struct {
	ID    string     `yaml:"id" validate:"required"`
	Name  string     `yaml:"name"`
	Stops []SeedStop `yaml:"stops" validate:"dive"`
}

type SeedStop struct {
	Name string  `yaml:"name" validate:"required"`
	Lat  float64 `yaml:"lat" validate:"latitude"`
	Lng  float64 `yaml:"lng" validate:"longitude"`
}

type SeedBus struct {
	ID     string `yaml:"id" validate:"required"`
	Number string `yaml:"number" validate:"required"`
	Driver string `yaml:"driver"`
	Route  string `yaml:"route"`
}

type SeedTrip struct {
	ID     string `yaml:"id" validate:"required"`
	Bus    string `yaml:"bus" validate:"required"`
	Driver string `yaml:"driver"`
	Route  string `yaml:"route"`
	// Date is YYYY-MM-DD or "today".
	Date   string `yaml:"date"`
	Status string `yaml:"status" validate:"required,oneof=scheduled started active pending ended cancelled"`
}

type SeedBooking struct {
	ID      string `yaml:"id" validate:"required"`
	Student string `yaml:"student" validate:"required"`
	Trip    string `yaml:"trip" validate:"required"`
	Status  string `yaml:"status"`
}

var validate = validator.New()

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates a YAML fixture, checking that every
// reference points at a declared record.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	if err := validate.Struct(&seed); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	if err := seed.checkRefs(); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	return &seed, nil
}

func (s *Seed) checkRefs() error {
	users := map[string]bool{}
	for _, u := range s.Users {
		users[u.ID] = true
	}
	routes := map[string]bool{}
	for _, r := range s.Routes {
		routes[r.ID] = true
	}
	buses := map[string]bool{}
	for _, b := range s.Buses {
		buses[b.ID] = true
	}
	trips := map[string]bool{}
	for _, t := range s.Trips {
		trips[t.ID] = true
	}

	for _, u := range s.Users {
		if u.Parent != "" && !users[u.Parent] {
			return fmt.Errorf("user %s: unknown parent %s", u.ID, u.Parent)
		}
	}
	for _, b := range s.Buses {
		if b.Driver != "" && !users[b.Driver] {
			return fmt.Errorf("bus %s: unknown driver %s", b.ID, b.Driver)
		}
		if b.Route != "" && !routes[b.Route] {
			return fmt.Errorf("bus %s: unknown route %s", b.ID, b.Route)
		}
	}
	for _, t := range s.Trips {
		if !buses[t.Bus] {
			return fmt.Errorf("trip %s: unknown bus %s", t.ID, t.Bus)
		}
		if t.Driver != "" && !users[t.Driver] {
			return fmt.Errorf("trip %s: unknown driver %s", t.ID, t.Driver)
		}
		if t.Date != "" && t.Date != "today" {
			if _, err := time.Parse("2006-01-02", t.Date); err != nil {
				return fmt.Errorf("trip %s: bad date %q", t.ID, t.Date)
			}
		}
	}
	for _, b := range s.Bookings {
		if !users[b.Student] {
			return fmt.Errorf("booking %s: unknown student %s", b.ID, b.Student)
		}
		if !trips[b.Trip] {
			return fmt.Errorf("booking %s: unknown trip %s", b.ID, b.Trip)
		}
	}
	return nil
}

// tripDate resolves the "today" placeholder against now.
func tripDate(date string, now time.Time) string {
	if date == "today" {
		return now.Format("2006-01-02")
	}
	return date
}

// tripFor fills in the bus defaults of a seeded trip.
func (s *Seed) tripFor(t SeedTrip, now time.Time) Trip {
	trip := Trip{
		ID:       t.ID,
		BusID:    t.Bus,
		DriverID: t.Driver,
		RouteID:  t.Route,
		Date:     tripDate(t.Date, now),
		Status:   tripStatus(t.Status),
	}
	for _, b := range s.Buses {
		if b.ID != t.Bus {
			continue
		}
		if trip.DriverID == "" {
			trip.DriverID = b.Driver
		}
		if trip.RouteID == "" {
			trip.RouteID = b.Route
		}
	}
	return trip
}
