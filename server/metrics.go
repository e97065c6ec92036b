package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forcegraph_http_requests_total",
		Help: "Total HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	openSurfaces = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forcegraph_open_surfaces",
		Help: "Number of graph surfaces held by the hub",
	})

	streamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forcegraph_stream_clients",
		Help: "Number of connected frame stream clients",
	})

	droppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forcegraph_stream_dropped_frames_total",
		Help: "Frames replaced before a slow client received them",
	})
)

// routePattern returns the matched chi pattern, not the raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
