// Package tracking drives bus positions from the live feed or a local
// waypoint simulation and notifies on waypoint transitions.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"schoolbus/internal/metrics"
	"schoolbus/internal/models"
	"schoolbus/internal/realtime"
	"schoolbus/pkg/logger"
)

// DefaultTickInterval is the simulated movement step.
const DefaultTickInterval = 2500 * time.Millisecond

type Mode string

const (
	ModeAuto      Mode = "auto"
	ModeServer    Mode = "server"
	ModeSimulated Mode = "simulated"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAuto, ModeServer, ModeSimulated:
		return m, nil
	case "":
		return ModeAuto, nil
	default:
		return "", fmt.Errorf("unknown tracking mode %q", s)
	}
}

type Options struct {
	TickInterval time.Duration
	// OnUpdate runs after a bus position changes.
	OnUpdate func(pos models.BusPosition)
	Metrics  *metrics.Collector
}

type trackedBus struct {
	bus        models.Bus
	stops      []models.Stop
	index      int // -1 until a waypoint is known
	pos        models.BusPosition
	positioned bool
}

// Tracker is the position feed driver. It is stopped until Start.
type Tracker struct {
	dialer   realtime.Dialer
	notifier Notifier
	watcher  *WaypointWatcher
	opts     Options
	now      func() time.Time

	life    sync.Mutex // serializes Start and Stop
	running bool
	active  Mode
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu    sync.Mutex
	buses map[string]*trackedBus
	order []string
}

func NewTracker(d realtime.Dialer, n Notifier, opts Options) *Tracker {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if n == nil {
		n = NotifierFunc(func() {})
	}
	return &Tracker{
		dialer:   d,
		notifier: n,
		watcher:  NewWaypointWatcher(),
		opts:     opts,
		now:      time.Now,
		buses:    make(map[string]*trackedBus),
	}
}

// SetFleet replaces the known buses. Positions of buses that stay in the
// fleet are kept.
func (t *Tracker) SetFleet(buses []models.Bus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make(map[string]*trackedBus, len(buses))
	order := make([]string, 0, len(buses))
	for _, b := range buses {
		key := b.Key()
		if key == "" {
			continue
		}
		if _, dup := next[key]; dup {
			continue
		}
		tb := &trackedBus{bus: b, index: -1, pos: models.BusPosition{BusID: key}}
		if b.Route != nil {
			tb.stops = b.Route.Stops
		}
		if prev, ok := t.buses[key]; ok {
			tb.pos, tb.positioned = prev.pos, prev.positioned
			if prev.index < len(tb.stops) {
				tb.index = prev.index
			}
		}
		next[key] = tb
		order = append(order, key)
	}
	t.buses, t.order = next, order

	if t.opts.Metrics != nil {
		t.opts.Metrics.TrackedBuses.Set(float64(len(order)))
	}
}

// Start moves the feed from stopped to running and plays the start cue.
// ModeAuto uses the live feed when it connects and the simulation otherwise.
// The feed runs until Stop or until ctx is done. Starting a running feed is a
// no-op.
func (t *Tracker) Start(ctx context.Context, mode Mode) error {
	t.life.Lock()
	defer t.life.Unlock()
	if t.running {
		return nil
	}

	var sock realtime.Socket
	if mode == ModeServer || mode == ModeAuto {
		s, err := t.dialer.Dial(ctx)
		switch {
		case err == nil:
			sock = s
		case mode == ModeServer:
			return fmt.Errorf("open position feed: %w", err)
		default:
			logger.Warn("Live position feed unavailable, simulating: %v", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.running = true
	t.notifier.Chime()

	if sock != nil {
		t.active = ModeServer
		sock.On(models.EventBusLocationUpdate, t.handleLocation)
		sock.Listen()
		t.wg.Add(1)
		go t.watchFeed(runCtx, sock, mode == ModeAuto)
	} else {
		t.active = ModeSimulated
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.simulate(runCtx)
		}()
	}
	logger.Info("Tracking started (%s)", t.active)
	return nil
}

// Stop moves the feed to stopped. When it returns no further updates or
// notifications happen.
func (t *Tracker) Stop() {
	t.life.Lock()
	defer t.life.Unlock()
	if !t.running {
		return
	}
	t.cancel()
	t.wg.Wait()
	t.running = false
	t.active = ""
	logger.Info("Tracking stopped")
}

func (t *Tracker) Running() bool {
	t.life.Lock()
	defer t.life.Unlock()
	return t.running
}

// Mode returns the mode in effect while running.
func (t *Tracker) Mode() Mode {
	t.life.Lock()
	defer t.life.Unlock()
	return t.active
}

// watchFeed owns the live socket. When the feed drops in auto mode the
// simulation takes over.
func (t *Tracker) watchFeed(ctx context.Context, sock realtime.Socket, fallback bool) {
	defer t.wg.Done()
	select {
	case <-ctx.Done():
		sock.Close()
	case <-sock.Done():
		sock.Close()
		if !fallback || ctx.Err() != nil {
			logger.Warn("Live position feed closed")
			return
		}
		logger.Warn("Live position feed closed, simulating")
		t.simulate(ctx)
	}
}

func (t *Tracker) simulate(ctx context.Context) {
	tick := time.NewTicker(t.opts.TickInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			t.Step()
		}
	}
}

// Step advances every bus with a non-empty route by one waypoint, wrapping at
// the end of the route. The first step lands on waypoint 0.
func (t *Tracker) Step() {
	now := t.now()
	t.mu.Lock()
	updated := make([]models.BusPosition, 0, len(t.order))
	for _, key := range t.order {
		tb := t.buses[key]
		n := len(tb.stops)
		if n == 0 {
			continue
		}
		next := 0
		if tb.index >= 0 {
			next = (tb.index + 1) % n
		}
		tb.index = next
		tb.pos.WaypointIndex = next
		tb.pos.Location = tb.stops[next].Location
		tb.pos.UpdatedAt = now
		tb.positioned = true
		updated = append(updated, tb.pos)
	}
	t.mu.Unlock()

	if t.opts.Metrics != nil {
		t.opts.Metrics.SimulationTicks.Inc()
	}
	for _, pos := range updated {
		t.apply(pos, true)
	}
}

func (t *Tracker) handleLocation(data json.RawMessage) {
	var u models.LocationUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		logger.Warn("Dropping malformed location update: %v", err)
		return
	}

	t.mu.Lock()
	tb := t.match(u.BusID)
	if tb == nil {
		t.mu.Unlock()
		return
	}
	idx := nearestStop(tb.stops, u.CurrentLocation)
	if idx >= 0 {
		tb.index = idx
		tb.pos.WaypointIndex = idx
	}
	tb.pos.Location = u.CurrentLocation
	tb.pos.UpdatedAt = t.now()
	tb.positioned = true
	pos := tb.pos
	t.mu.Unlock()

	if t.opts.Metrics != nil {
		t.opts.Metrics.LocationUpdates.Inc()
	}
	t.apply(pos, idx >= 0)
}

// match finds the bus whose _id, id or busNumber equals id.
func (t *Tracker) match(id string) *trackedBus {
	if tb, ok := t.buses[id]; ok {
		return tb
	}
	for _, key := range t.order {
		if tb := t.buses[key]; tb.bus.Matches(id) {
			return tb
		}
	}
	return nil
}

func (t *Tracker) apply(pos models.BusPosition, hasWaypoint bool) {
	if hasWaypoint {
		t.watcher.Observe(pos.BusID, pos.WaypointIndex, func() {
			t.notifier.Chime()
			if t.opts.Metrics != nil {
				t.opts.Metrics.WaypointNotifications.Inc()
			}
		})
	}
	if t.opts.OnUpdate != nil {
		t.opts.OnUpdate(pos)
	}
}

// Positions returns the positions of buses that have one, in fleet order.
func (t *Tracker) Positions() []models.BusPosition {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.BusPosition, 0, len(t.order))
	for _, key := range t.order {
		if tb := t.buses[key]; tb.positioned {
			out = append(out, tb.pos)
		}
	}
	return out
}
