// Package relay forwards vehicle positions published on NATS to the
// connected chat clients as busLocationUpdate events.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"schoolbus/internal/database"
	"schoolbus/internal/models"
	"schoolbus/pkg/logger"
)

var errNoBus = errors.New("position names no known bus")

// PositionMessage is one vehicle fix as published on <route>.<trip>.
// BusID is optional; the trip's bus is used when it is absent.
type PositionMessage struct {
	BusID     string    `json:"busId,omitempty"`
	TripID    string    `json:"tripId"`
	RouteID   string    `json:"routeId"`
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Bearing   float64   `json:"bearing"`
	Progress  float64   `json:"progress"`
	SpeedMps  float64   `json:"speedMps"`
}

// Broadcaster reaches every connected client.
type Broadcaster interface {
	BroadcastAll(event models.EventName, payload interface{})
}

type TripLookup interface {
	GetTrip(ctx context.Context, id string) (*database.Trip, error)
}

type Relay struct {
	nc    *nats.Conn
	sub   *nats.Subscription
	out   Broadcaster
	trips TripLookup
}

func New(out Broadcaster, trips TripLookup) *Relay {
	return &Relay{out: out, trips: trips}
}

// Connect dials the NATS server and subscribes to subject.
func (r *Relay) Connect(url, subject string) error {
	nc, err := nats.Connect(url,
		nats.Name("schoolbus-devserver"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected to %s", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}

	sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
		if err := r.forward(m.Data); err != nil {
			logger.Debug("Skipping position on %s: %v", m.Subject, err)
		}
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	r.nc, r.sub = nc, sub
	logger.Info("Relaying NATS positions from %s (%s)", url, subject)
	return nil
}

func (r *Relay) forward(data []byte) error {
	var pm PositionMessage
	if err := json.Unmarshal(data, &pm); err != nil {
		return fmt.Errorf("invalid position: %w", err)
	}

	busID := pm.BusID
	if busID == "" && pm.TripID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		trip, err := r.trips.GetTrip(ctx, pm.TripID)
		cancel()
		if err == nil {
			busID = trip.BusID
		}
	}
	if busID == "" {
		return errNoBus
	}

	r.out.BroadcastAll(models.EventBusLocationUpdate, models.LocationUpdate{
		BusID:           busID,
		CurrentLocation: models.Location{Latitude: pm.Lat, Longitude: pm.Lon},
	})
	return nil
}

func (r *Relay) Close() {
	if r.sub != nil {
		r.sub.Unsubscribe()
	}
	if r.nc != nil {
		r.nc.Drain()
		r.nc.Close()
	}
}
