// Package server hosts graph surfaces over HTTP: graph CRUD, rendered
// frames, viewport gestures and a websocket frame stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/TFMV/forcegraph/ingest"
	"github.com/TFMV/forcegraph/models"
	"github.com/TFMV/forcegraph/render"
	"github.com/TFMV/forcegraph/store"
	"github.com/TFMV/forcegraph/surface"
	"github.com/TFMV/forcegraph/viewport"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// maxBodySize caps request bodies.
const maxBodySize = 10 << 20

// Config holds the listener settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		AllowedOrigins:  []string{"*"},
	}
}

// Server serves the hub's surfaces.
type Server struct {
	config   Config
	hub      *Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader
	streams  *streamRegistry
	handler  http.Handler
}

// New creates a server over hub.
func New(config Config, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		config:   config,
		hub:      hub,
		logger:   logger,
		upgrader: newUpgrader(config.AllowedOrigins),
		streams:  newStreamRegistry(),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(s.logger))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/healthz", s.healthCheck)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/graphs", func(r chi.Router) {
		r.Get("/", s.listGraphs)
		r.Post("/", s.createGraph)
		r.Route("/{graphID}", func(r chi.Router) {
			r.Get("/", s.renderGraph("json"))
			r.Get("/svg", s.renderGraph("svg"))
			r.Get("/ascii", s.renderGraph("ascii"))
			r.Get("/dot", s.renderGraph("dot"))
			r.Get("/data", s.graphData)
			r.Post("/nodes", s.addNode)
			r.Post("/links", s.addLink)
			r.Post("/gestures", s.applyGestures)
			r.Get("/stream", s.stream)
		})
	})

	return router
}

// Run listens on the configured address until ctx is done, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.closeStreams()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeStreams()
	<-errCh
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) closeStreams() {
	s.streams.closeAll()
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"surfaces": s.hub.Len(),
	})
}

// GraphSummary is one entry of the graph list.
type GraphSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Nodes int    `json:"nodes"`
	Links int    `json:"links"`
}

func (s *Server) listGraphs(w http.ResponseWriter, r *http.Request) {
	graphs, err := s.hub.List(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	out := make([]GraphSummary, 0, len(graphs))
	for _, g := range graphs {
		out = append(out, GraphSummary{ID: g.ID, Name: g.Name, Nodes: len(g.Data.Nodes), Links: len(g.Data.Links)})
	}
	s.respondJSON(w, http.StatusOK, out)
}

// CreateGraphRequest names the graph; the same body carries the nodes and
// links in any form the JSON ingester accepts.
type CreateGraphRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

func (s *Server) createGraph(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.respondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	var req CreateGraphRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	data, err := (&ingest.JSONProcessor{}).ProcessData(body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, sf, err := s.hub.Create(r.Context(), req.Name, data)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, GraphSummary{
		ID:    id,
		Name:  req.Name,
		Nodes: len(sf.Data().Nodes),
		Links: len(sf.Data().Links),
	})
}

func (s *Server) surfaceFor(w http.ResponseWriter, r *http.Request) (*surface.Surface, bool) {
	sf, err := s.hub.Get(r.Context(), chi.URLParam(r, "graphID"))
	if err != nil {
		s.respondFailure(w, err)
		return nil, false
	}
	return sf, true
}

var contentTypes = map[string]string{
	"json":  "application/json",
	"svg":   "image/svg+xml",
	"ascii": "text/plain; charset=utf-8",
	"dot":   "text/vnd.graphviz",
}

func (s *Server) renderGraph(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sf, ok := s.surfaceFor(w, r)
		if !ok {
			return
		}
		opts, err := outputOptions(format, r)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		out, err := render.Generate(sf.Frame(), opts)
		if err != nil {
			s.respondFailure(w, err)
			return
		}
		w.Header().Set("Content-Type", contentTypes[format])
		w.WriteHeader(http.StatusOK)
		w.Write(out)
	}
}

// outputOptions reads width, height, labels and scheme from the query.
func outputOptions(format string, r *http.Request) (*render.OutputOptions, error) {
	opts := render.NewDefaultOptions(format)
	q := r.URL.Query()
	for key, dst := range map[string]*float64{"width": &opts.Width, "height": &opts.Height} {
		if v := q.Get(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f <= 0 || f > 10000 {
				return nil, fmt.Errorf("invalid %s %q", key, v)
			}
			*dst = f
		}
	}
	if v := q.Get("labels"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid labels %q", v)
		}
		opts.ShowLabels = b
	}
	if v := q.Get("scheme"); v != "" {
		opts.ColorScheme = v
	}
	if q.Get("timestamp") == "false" {
		opts.Timestamp = false
	}
	return opts, nil
}

func (s *Server) graphData(w http.ResponseWriter, r *http.Request) {
	sf, ok := s.surfaceFor(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, sf.Data())
}

// AddNodeRequest is the body of POST /nodes.
type AddNodeRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

func (s *Server) addNode(w http.ResponseWriter, r *http.Request) {
	var req AddNodeRequest
	if !s.decode(w, r, &req) {
		return
	}
	sf, ok := s.surfaceFor(w, r)
	if !ok {
		return
	}
	id, err := sf.AddNode(r.Context(), req.Name)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": id, "name": req.Name})
}

// AddLinkRequest is the body of POST /links. Ids may be strings or
// numbers.
type AddLinkRequest struct {
	Source models.FlexID `json:"source" validate:"required"`
	Target models.FlexID `json:"target" validate:"required"`
}

func (s *Server) addLink(w http.ResponseWriter, r *http.Request) {
	var req AddLinkRequest
	if !s.decode(w, r, &req) {
		return
	}
	sf, ok := s.surfaceFor(w, r)
	if !ok {
		return
	}
	id, err := sf.AddLink(r.Context(), req.Source.String(), req.Target.String())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{
		"id":     id,
		"source": req.Source.String(),
		"target": req.Target.String(),
	})
}

// applyGestures accepts one viewport event or an array of them and
// answers with the resulting viewport state.
func (s *Server) applyGestures(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.respondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	var events []viewport.Event
	if err := json.Unmarshal(body, &events); err != nil {
		var one viewport.Event
		if err := json.Unmarshal(body, &one); err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
		events = []viewport.Event{one}
	}

	sf, ok := s.surfaceFor(w, r)
	if !ok {
		return
	}
	for i, e := range events {
		if err := sf.Viewport().Apply(e); err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("event %d: %v", i, err))
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"state":     sf.Viewport().State(),
		"transform": sf.Viewport().Transform(),
	})
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	sf, ok := s.surfaceFor(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr))
		return
	}
	if !s.streams.add(conn) {
		conn.Close()
		return
	}
	defer s.streams.remove(conn)

	client := newStreamClient(conn, sf, s.logger)
	client.logger.Info("Stream client connected", zap.String("remoteAddr", r.RemoteAddr))
	client.run()
}

var validate = validator.New()

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, "Validation error: "+err.Error())
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]any{
		"error":   true,
		"message": message,
		"code":    status,
	})
}

// respondFailure maps domain errors to status codes.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrGraphNotFound), errors.Is(err, store.ErrInvalidID):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNodeNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrEmptyName), errors.Is(err, models.ErrDuplicateNode),
		errors.Is(err, viewport.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.Is(err, surface.ErrClosed), errors.Is(err, ErrHubClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
