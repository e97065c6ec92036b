package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/TFMV/forcegraph/models"
	"github.com/TFMV/forcegraph/store"
	"github.com/TFMV/forcegraph/surface"
	"go.uber.org/zap"
)

// ErrHubClosed is returned once the hub has shut down.
var ErrHubClosed = errors.New("hub closed")

// GraphStore is the persistence the hub needs. *store.Store implements it.
type GraphStore interface {
	surface.Persister
	CreateGraph(ctx context.Context, name string, data models.GraphData) (int64, error)
	GetGraph(ctx context.Context, id int64) (store.StoredGraph, error)
	ListGraphs(ctx context.Context) ([]store.StoredGraph, error)
}

// Hub owns the open surfaces, keyed by graph id. Surfaces are opened from
// the store on first use and closed with the hub.
type Hub struct {
	store   GraphStore
	opts    []surface.Option
	breaker *surface.BreakerConfig
	logger  *zap.Logger

	mu       sync.Mutex
	surfaces map[string]*surface.Surface
	closed   bool
}

// NewHub creates a hub. opts are applied to every surface it opens.
func NewHub(st GraphStore, logger *zap.Logger, opts ...surface.Option) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		store:    st,
		opts:     opts,
		logger:   logger,
		surfaces: make(map[string]*surface.Surface),
	}
}

// WithBreaker guards store mutations of every surface with a circuit
// breaker.
func (h *Hub) WithBreaker(config surface.BreakerConfig) *Hub {
	h.breaker = &config
	return h
}

// Get returns the surface for id, opening it from the store if needed.
// The store read happens outside the lock.
func (h *Hub) Get(ctx context.Context, id string) (*surface.Surface, error) {
	if s, err := h.lookup(id); s != nil || err != nil {
		return s, err
	}
	if h.store == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrGraphNotFound, id)
	}

	rowID, err := store.ParseGraphID(id)
	if err != nil {
		return nil, err
	}
	stored, err := h.store.GetGraph(ctx, rowID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	if s, ok := h.surfaces[stored.ID]; ok {
		return s, nil
	}
	return h.open(ctx, stored.ID, stored.Name, stored.Data, true)
}

func (h *Hub) lookup(id string) (*surface.Surface, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	return h.surfaces[id], nil
}

// Create persists a new graph and opens its surface.
func (h *Hub) Create(ctx context.Context, name string, data models.GraphData) (string, *surface.Surface, error) {
	if h.store == nil {
		return "", nil, errors.New("no store configured")
	}
	rowID, err := h.store.CreateGraph(ctx, name, data)
	if err != nil {
		return "", nil, err
	}
	// Reload so the surface sees row ids, not the caller's ids.
	stored, err := h.store.GetGraph(ctx, rowID)
	if err != nil {
		return "", nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", nil, ErrHubClosed
	}
	if s, ok := h.surfaces[stored.ID]; ok {
		return stored.ID, s, nil
	}
	s, err := h.open(ctx, stored.ID, stored.Name, stored.Data, true)
	if err != nil {
		return "", nil, err
	}
	return stored.ID, s, nil
}

// Attach serves an in-memory graph under id. Mutations on it are not
// persisted.
func (h *Hub) Attach(ctx context.Context, id, name string, data models.GraphData) (*surface.Surface, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	if s, ok := h.surfaces[id]; ok {
		if err := s.SetGraphData(ctx, data); err != nil {
			return nil, err
		}
		return s, nil
	}
	return h.open(ctx, id, name, data, false)
}

// open must be called with mu held.
func (h *Hub) open(ctx context.Context, id, name string, data models.GraphData, persist bool) (*surface.Surface, error) {
	opts := append([]surface.Option{}, h.opts...)
	opts = append(opts, surface.WithGraph(id, name), surface.WithLogger(h.logger))
	if persist {
		opts = append(opts, surface.WithPersister(h.store))
		if h.breaker != nil {
			cfg := *h.breaker
			cfg.Name = cfg.Name + "-" + id
			opts = append(opts, surface.WithCircuitBreaker(cfg))
		}
	}
	s := surface.New(opts...)
	if err := s.SetGraphData(ctx, data); err != nil {
		s.Close()
		return nil, err
	}
	h.surfaces[id] = s
	openSurfaces.Set(float64(len(h.surfaces)))
	h.logger.Info("Surface opened",
		zap.String("graph", id),
		zap.Int("nodes", len(data.Nodes)),
		zap.Bool("persisted", persist))
	return s, nil
}

// List returns the stored graphs plus any attached in-memory ones.
func (h *Hub) List(ctx context.Context) ([]store.StoredGraph, error) {
	var graphs []store.StoredGraph
	if h.store != nil {
		var err error
		if graphs, err = h.store.ListGraphs(ctx); err != nil {
			return nil, err
		}
	}
	seen := make(map[string]bool, len(graphs))
	for _, g := range graphs {
		seen[g.ID] = true
	}

	h.mu.Lock()
	var extra []store.StoredGraph
	for id, s := range h.surfaces {
		if !seen[id] {
			extra = append(extra, store.StoredGraph{ID: id, Name: s.Name(), Data: s.Data()})
		}
	}
	h.mu.Unlock()

	sort.Slice(extra, func(i, j int) bool { return extra[i].ID < extra[j].ID })
	graphs = append(graphs, extra...)
	if graphs == nil {
		graphs = []store.StoredGraph{}
	}
	return graphs, nil
}

// Len returns the number of open surfaces.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.surfaces)
}

// Close closes every surface. Later calls to Get fail with ErrHubClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	surfaces := h.surfaces
	h.surfaces = make(map[string]*surface.Surface)
	h.mu.Unlock()

	var errs []error
	for id, s := range surfaces {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close surface %s: %w", id, err))
		}
	}
	openSurfaces.Set(0)
	h.logger.Info("Hub closed", zap.Int("surfaces", len(surfaces)))
	return errors.Join(errs...)
}
