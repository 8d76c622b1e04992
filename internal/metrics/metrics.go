package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schoolbus/pkg/logger"
)

type Collector struct {
	reg *prometheus.Registry

	MessagesReceived  prometheus.Counter
	DuplicatesDropped prometheus.Counter
	HistoryLoads      prometheus.Counter

	Sends   *prometheus.CounterVec // result label: ok|failed
	Uploads *prometheus.CounterVec // result label: ok|failed

	Resolutions *prometheus.CounterVec // outcome label: active|none

	WaypointNotifications prometheus.Counter
	SimulationTicks       prometheus.Counter
	LocationUpdates       prometheus.Counter
	TrackedBuses          prometheus.Gauge

	SocketsOpen prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busclient_chat_messages_received_total",
			Help: "Total chat messages received over the real-time channel.",
		}),
		DuplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busclient_chat_duplicates_dropped_total",
			Help: "Total incoming chat messages dropped as duplicates.",
		}),
		HistoryLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busclient_chat_history_loads_total",
			Help: "Total chat history loads applied.",
		}),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busclient_chat_sends_total",
			Help: "Chat sends by result.",
		}, []string{"result"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busclient_uploads_total",
			Help: "Image uploads by result.",
		}, []string{"result"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "busclient_trip_resolutions_total",
			Help: "Trip resolutions by outcome.",
		}, []string{"outcome"}),
		WaypointNotifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busclient_waypoint_notifications_total",
			Help: "Total waypoint transition notifications fired.",
		}),
		SimulationTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busclient_simulation_ticks_total",
			Help: "Total simulated movement ticks.",
		}),
		LocationUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "busclient_location_updates_total",
			Help: "Total server-fed bus location updates applied.",
		}),
		TrackedBuses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "busclient_tracked_buses",
			Help: "Number of buses known to the position feed.",
		}),
		SocketsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "busclient_sockets_open",
			Help: "Number of open real-time channels.",
		}),
	}

	reg.MustRegister(
		c.MessagesReceived, c.DuplicatesDropped, c.HistoryLoads,
		c.Sends, c.Uploads, c.Resolutions,
		c.WaypointNotifications, c.SimulationTicks, c.LocationUpdates, c.TrackedBuses,
		c.SocketsOpen,
	)
	return c
}

// Result returns the label value for an outcome.
func Result(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error: %v", err)
		}
	}()
	logger.Info("metrics listening on %s", addr)
	return srv
}
