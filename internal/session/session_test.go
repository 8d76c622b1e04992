package session

import (
	"context"
	"errors"
	"testing"

	"schoolbus/internal/models"
	"schoolbus/internal/tracking"
)

type mockResolver struct {
	next  *models.ActiveTripContext
	calls int
}

func (m *mockResolver) Resolve(ctx context.Context, user models.User) *models.ActiveTripContext {
	m.calls++
	if m.next == nil {
		return nil
	}
	tc := *m.next
	return &tc
}

type mockFleet struct {
	bus        *models.Bus
	busErr     error
	route      *models.Route
	busCalls   int
	routeCalls int
}

func (m *mockFleet) Bus(ctx context.Context, busID string) (*models.Bus, error) {
	m.busCalls++
	if m.busErr != nil {
		return nil, m.busErr
	}
	b := *m.bus
	return &b, nil
}

func (m *mockFleet) Route(ctx context.Context, routeID string) (*models.Route, error) {
	m.routeCalls++
	return m.route, nil
}

type mockChat struct {
	opened  []*models.ActiveTripContext
	closes  int
	users   []models.User
	openErr error
}

func (m *mockChat) SetUser(user models.User) { m.users = append(m.users, user) }

func (m *mockChat) Open(ctx context.Context, tc *models.ActiveTripContext) error {
	m.opened = append(m.opened, tc)
	return m.openErr
}

func (m *mockChat) Close() { m.closes++ }

type mockTracker struct {
	fleet    []models.Bus
	starts   []tracking.Mode
	stops    int
	startErr error
}

func (m *mockTracker) SetFleet(buses []models.Bus) { m.fleet = buses }

func (m *mockTracker) Start(ctx context.Context, mode tracking.Mode) error {
	m.starts = append(m.starts, mode)
	return m.startErr
}

func (m *mockTracker) Stop() { m.stops++ }

type fixture struct {
	resolver *mockResolver
	fleet    *mockFleet
	chat     *mockChat
	tracker  *mockTracker
	contexts []*models.ActiveTripContext
	session  *Session
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		resolver: &mockResolver{next: &models.ActiveTripContext{BusID: "b1", TripID: "t1", Driver: models.DriverInfo{Name: "Dana"}}},
		fleet: &mockFleet{
			bus:   &models.Bus{ObjectID: "b1", RouteRef: models.NewRef("r1")},
			route: &models.Route{ID: "r1", Stops: []models.Stop{{Name: "Depot"}, {Name: "School"}}},
		},
		chat:    &mockChat{},
		tracker: &mockTracker{},
	}
	opts.OnContext = func(tc *models.ActiveTripContext) { f.contexts = append(f.contexts, tc) }
	f.session = New(f.resolver, f.fleet, f.chat, f.tracker, opts)
	return f
}

var parent = models.User{ID: "p1", Role: models.RoleParent, Name: "Pat"}

func TestSetUser_ResolvesOncePerIdentity(t *testing.T) {
	t.Parallel()
	f := newFixture(Options{})
	ctx := context.Background()

	if err := f.session.SetUser(ctx, parent); err != nil {
		t.Fatalf("SetUser() error = %v", err)
	}
	renamed := parent
	renamed.Name = "Patricia"
	f.session.SetUser(ctx, renamed)
	if f.resolver.calls != 1 {
		t.Errorf("resolutions = %d after same id/role, want 1", f.resolver.calls)
	}

	f.session.SetUser(ctx, models.User{ID: "p1", Role: models.RoleDriver})
	if f.resolver.calls != 2 {
		t.Errorf("resolutions = %d after role change, want 2", f.resolver.calls)
	}
	if len(f.chat.users) != 2 {
		t.Errorf("chat users = %+v", f.chat.users)
	}
}

func TestRefresh_OpensChatAndLoadsFleet(t *testing.T) {
	t.Parallel()
	f := newFixture(Options{})
	ctx := context.Background()

	if err := f.session.SetUser(ctx, parent); err != nil {
		t.Fatalf("SetUser() error = %v", err)
	}
	if len(f.chat.opened) != 1 || f.chat.opened[0].RoomKey() != "b1:t1" {
		t.Fatalf("chat opened = %+v", f.chat.opened)
	}
	if f.fleet.routeCalls != 1 || len(f.tracker.fleet) != 1 || len(f.tracker.fleet[0].Route.Stops) != 2 {
		t.Errorf("fleet = %+v, route calls %d", f.tracker.fleet, f.fleet.routeCalls)
	}
	if len(f.tracker.starts) != 0 {
		t.Errorf("tracker started without live tracking: %v", f.tracker.starts)
	}
	if active := f.session.Active(); active == nil || active.Driver.Name != "Dana" {
		t.Errorf("Active() = %+v", active)
	}

	// same trip on refresh keeps the channel
	f.session.Refresh(ctx)
	if f.resolver.calls != 2 || len(f.chat.opened) != 1 {
		t.Errorf("resolutions %d, opens %d after unchanged refresh", f.resolver.calls, len(f.chat.opened))
	}

	// a new trip replaces the channel
	f.resolver.next = &models.ActiveTripContext{BusID: "b1", TripID: "t2"}
	closes := f.chat.closes
	f.session.Refresh(ctx)
	if f.chat.closes != closes+1 || len(f.chat.opened) != 2 || f.chat.opened[1].TripID != "t2" {
		t.Errorf("closes %d -> %d, opened %+v", closes, f.chat.closes, f.chat.opened)
	}
}

func TestRefresh_NoActiveTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(Options{Live: true})
	ctx := context.Background()
	f.session.SetUser(ctx, parent)

	f.resolver.next = nil
	if err := f.session.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if f.session.Active() != nil {
		t.Error("Active() should be nil")
	}
	if len(f.chat.opened) != 1 || f.chat.closes < 1 || f.tracker.stops < 1 {
		t.Errorf("opens %d closes %d stops %d", len(f.chat.opened), f.chat.closes, f.tracker.stops)
	}
	if f.tracker.fleet != nil {
		t.Errorf("fleet not cleared: %+v", f.tracker.fleet)
	}
	if last := f.contexts[len(f.contexts)-1]; last != nil {
		t.Errorf("last OnContext = %+v, want nil", last)
	}

	if err := f.session.SetLiveTracking(ctx, true); err != nil || len(f.tracker.starts) != 1 {
		t.Errorf("SetLiveTracking without trip: err=%v starts=%v", err, f.tracker.starts)
	}
}

func TestLiveTracking(t *testing.T) {
	t.Parallel()
	f := newFixture(Options{Mode: tracking.ModeSimulated})
	ctx := context.Background()
	f.session.SetUser(ctx, parent)

	if err := f.session.SetLiveTracking(ctx, true); err != nil {
		t.Fatalf("SetLiveTracking(on) error = %v", err)
	}
	if len(f.tracker.starts) != 1 || f.tracker.starts[0] != tracking.ModeSimulated {
		t.Errorf("starts = %v", f.tracker.starts)
	}
	stops := f.tracker.stops
	f.session.SetLiveTracking(ctx, false)
	if f.tracker.stops != stops+1 {
		t.Errorf("stops %d -> %d", stops, f.tracker.stops)
	}

	f.tracker.startErr = errors.New("refused")
	if err := f.session.SetLiveTracking(ctx, true); err == nil {
		t.Error("expected start error")
	}
}

func TestRefresh_ReportsChatAndTrackerErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(Options{Live: true, Mode: tracking.ModeServer})
	f.chat.openErr = errors.New("dial failed")
	f.tracker.startErr = errors.New("feed refused")

	err := f.session.SetUser(context.Background(), parent)
	if err == nil || !errors.Is(err, f.chat.openErr) || !errors.Is(err, f.tracker.startErr) {
		t.Errorf("SetUser() error = %v", err)
	}
	if f.session.Active() == nil {
		t.Error("context should stay active after channel errors")
	}
}

func TestRefresh_RetriesAfterFailedOpen(t *testing.T) {
	t.Parallel()
	f := newFixture(Options{})
	ctx := context.Background()
	f.chat.openErr = errors.New("dial failed")

	if err := f.session.SetUser(ctx, parent); err == nil {
		t.Fatal("SetUser() error = nil, want dial failure")
	}

	f.chat.openErr = nil
	if err := f.session.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(f.chat.opened) != 2 {
		t.Fatalf("opens = %d, want a retry on the unchanged trip", len(f.chat.opened))
	}

	// once connected, the unchanged trip keeps the channel
	f.session.Refresh(ctx)
	if len(f.chat.opened) != 2 {
		t.Errorf("opens = %d after connected refresh, want 2", len(f.chat.opened))
	}
}

func TestLoadFleet_BusFailureKeepsBusID(t *testing.T) {
	t.Parallel()
	f := newFixture(Options{})
	f.fleet.busErr = errors.New("404")

	f.session.SetUser(context.Background(), parent)
	if len(f.tracker.fleet) != 1 || f.tracker.fleet[0].Key() != "b1" || f.fleet.routeCalls != 0 {
		t.Errorf("fleet = %+v", f.tracker.fleet)
	}
}

func TestRefresh_WithoutUser(t *testing.T) {
	t.Parallel()
	f := newFixture(Options{})
	if err := f.session.Refresh(context.Background()); err == nil {
		t.Error("expected error without user")
	}
}
