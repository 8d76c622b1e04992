// Package session ties trip resolution to the chat stream and the position
// feed of the signed-in user.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"schoolbus/internal/models"
	"schoolbus/internal/tracking"
	"schoolbus/pkg/logger"
)

type Resolver interface {
	Resolve(ctx context.Context, user models.User) *models.ActiveTripContext
}

type FleetAPI interface {
	Bus(ctx context.Context, busID string) (*models.Bus, error)
	Route(ctx context.Context, routeID string) (*models.Route, error)
}

type Chat interface {
	SetUser(user models.User)
	Open(ctx context.Context, tc *models.ActiveTripContext) error
	Close()
}

type Tracker interface {
	SetFleet(buses []models.Bus)
	Start(ctx context.Context, mode tracking.Mode) error
	Stop()
}

type Options struct {
	Mode tracking.Mode
	// Live starts the position feed as soon as a trip is active.
	Live bool
	// OnContext runs after the active trip context changes; nil means no
	// active trip.
	OnContext func(tc *models.ActiveTripContext)
}

// Session is the per-user orchestration of resolver, chat and tracker.
type Session struct {
	resolver Resolver
	fleet    FleetAPI
	chat     Chat
	tracker  Tracker
	opts     Options

	mu      sync.Mutex
	user    models.User
	hasUser bool
	active  *models.ActiveTripContext
	live    bool

	// connected is set once chat.Open succeeded for active.
	connected bool
}

func New(r Resolver, fleet FleetAPI, c Chat, t Tracker, opts Options) *Session {
	if opts.Mode == "" {
		opts.Mode = tracking.ModeAuto
	}
	return &Session{
		resolver: r,
		fleet:    fleet,
		chat:     c,
		tracker:  t,
		opts:     opts,
		live:     opts.Live,
	}
}

// SetUser switches the session to user. The trip is re-resolved only when
// the user id or role changed.
func (s *Session) SetUser(ctx context.Context, user models.User) error {
	s.mu.Lock()
	same := s.hasUser && s.user.ID == user.ID && s.user.Role == user.Role
	s.user, s.hasUser = user, true
	s.mu.Unlock()

	if same {
		return nil
	}
	s.chat.SetUser(user)
	return s.Refresh(ctx)
}

// Refresh re-resolves the active trip unconditionally. The feed started on
// ctx runs until ctx is done.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	user, ok := s.user, s.hasUser
	s.mu.Unlock()
	if !ok {
		return errors.New("session has no user")
	}

	tc := s.resolver.Resolve(ctx, user)
	return s.apply(ctx, tc)
}

func (s *Session) apply(ctx context.Context, tc *models.ActiveTripContext) error {
	s.mu.Lock()
	prev := s.active
	s.active = tc
	live := s.live
	connected := s.connected
	s.mu.Unlock()

	if tc.Valid() && tc.Same(prev) && connected {
		logger.Debug("Trip %s unchanged", tc.RoomKey())
		s.notify(tc)
		return nil
	}

	s.setConnected(false)
	s.chat.Close()
	s.tracker.Stop()
	s.notify(tc)

	if !tc.Valid() {
		s.tracker.SetFleet(nil)
		logger.Info("No active trip")
		return nil
	}
	logger.Info("Active trip %s, driver %s", tc.RoomKey(), tc.Driver.Name)

	s.tracker.SetFleet(s.loadFleet(ctx, tc.BusID))

	var errs []error
	if err := s.chat.Open(ctx, tc); err != nil {
		errs = append(errs, err)
	} else {
		s.setConnected(true)
	}
	if live {
		if err := s.tracker.Start(ctx, s.opts.Mode); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) setConnected(on bool) {
	s.mu.Lock()
	s.connected = on
	s.mu.Unlock()
}

// loadFleet fetches the bus of the trip and its route when the bus record
// only references it.
func (s *Session) loadFleet(ctx context.Context, busID string) []models.Bus {
	bus, err := s.fleet.Bus(ctx, busID)
	if err != nil {
		logger.Warn("Error loading bus %s: %v", busID, err)
		return []models.Bus{{ObjectID: busID}}
	}
	if bus.Key() == "" {
		bus.ObjectID = busID
	}
	if bus.Route == nil {
		if routeID := bus.RouteRef.Key(); routeID != "" {
			route, err := s.fleet.Route(ctx, routeID)
			if err != nil {
				logger.Warn("Error loading route %s: %v", routeID, err)
			} else {
				bus.Route = route
			}
		}
	}
	return []models.Bus{*bus}
}

// SetLiveTracking starts or stops the position feed. The feed only runs
// while a trip is active.
func (s *Session) SetLiveTracking(ctx context.Context, on bool) error {
	s.mu.Lock()
	s.live = on
	active := s.active.Valid()
	s.mu.Unlock()

	if !on {
		s.tracker.Stop()
		return nil
	}
	if !active {
		return nil
	}
	if err := s.tracker.Start(ctx, s.opts.Mode); err != nil {
		return fmt.Errorf("start tracking: %w", err)
	}
	return nil
}

// Active returns the active trip context, or nil when there is none.
func (s *Session) Active() *models.ActiveTripContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	tc := *s.active
	return &tc
}

func (s *Session) User() models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Close releases the chat channel and stops the feed.
func (s *Session) Close() {
	s.setConnected(false)
	s.chat.Close()
	s.tracker.Stop()
}

func (s *Session) notify(tc *models.ActiveTripContext) {
	if s.opts.OnContext != nil {
		s.opts.OnContext(tc)
	}
}
