package tracking

import (
	"fmt"
	"io"
	"math"
	"sync"

	"schoolbus/internal/models"
)

// Notifier plays the one-shot waypoint notification.
type Notifier interface {
	Chime()
}

type NotifierFunc func()

func (f NotifierFunc) Chime() { f() }

// Bell writes the terminal bell character.
type Bell struct {
	W io.Writer
}

func (b Bell) Chime() { fmt.Fprint(b.W, "\a") }

// WaypointWatcher remembers the last waypoint index recorded per bus.
type WaypointWatcher struct {
	mu   sync.Mutex
	last map[string]int
}

func NewWaypointWatcher() *WaypointWatcher {
	return &WaypointWatcher{last: make(map[string]int)}
}

// Observe calls fire when index differs from the last index recorded for
// busID (or none was recorded), then records index. It reports whether fire
// was called.
func (w *WaypointWatcher) Observe(busID string, index int, fire func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if last, ok := w.last[busID]; ok && last == index {
		return false
	}
	if fire != nil {
		fire()
	}
	w.last[busID] = index
	return true
}

func (w *WaypointWatcher) Last(busID string) (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok := w.last[busID]
	return i, ok
}

// nearestStop returns the index of the stop closest to loc, or -1.
func nearestStop(stops []models.Stop, loc models.Location) int {
	best, bestDist := -1, math.MaxFloat64
	for i, s := range stops {
		d := distanceMeters(loc.Latitude, loc.Longitude, s.Location.Latitude, s.Location.Longitude)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func distanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := (math.Sin(dLat/2) * math.Sin(dLat/2)) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
