package surface

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ticksTotal counts simulation ticks across all surfaces
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forcegraph_surface_ticks_total",
		Help: "Total simulation ticks emitted",
	})

	// restartsTotal counts simulation restarts by kind (cold, warm)
	restartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forcegraph_surface_restarts_total",
		Help: "Total simulation restarts by kind",
	}, []string{"kind"})

	// droppedLinksTotal counts links discarded for naming unknown nodes
	droppedLinksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forcegraph_surface_dropped_links_total",
		Help: "Total links dropped because an endpoint was missing",
	})

	// tickDuration tracks time spent inside one tick
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forcegraph_surface_tick_duration_seconds",
		Help:    "Simulation tick duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14), // 10µs to ~80ms
	})

	// persistErrors counts failed mutation requests by operation
	persistErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forcegraph_surface_persist_errors_total",
		Help: "Total failed persistence requests by operation",
	}, []string{"operation"})
)
