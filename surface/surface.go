// Package surface wires a graph, its force simulation, the viewport and the
// projector into one owned object. Mutations go through the persister,
// update the graph and warm-restart the simulation; rendered positions only
// change through tick callbacks.
package surface

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TFMV/forcegraph/models"
	"github.com/TFMV/forcegraph/physics"
	"github.com/TFMV/forcegraph/render"
	"github.com/TFMV/forcegraph/viewport"
	"go.uber.org/zap"
)

// ErrClosed is returned by operations on a closed surface.
var ErrClosed = errors.New("surface closed")

// TickListener is called with the frame produced by each tick.
type TickListener func(render.Frame)

type settings struct {
	graphID   string
	name      string
	logger    *zap.Logger
	persister Persister
	breaker   *BreakerConfig
	simOpts   physics.Options
	limits    viewport.Limits
	width     float64
	height    float64
	padding   float64
	interval  time.Duration
	manual    bool
}

// Option configures a Surface.
type Option func(*settings)

// WithGraph names the graph the surface shows; the id is passed to the
// persister with every mutation.
func WithGraph(id, name string) Option {
	return func(s *settings) { s.graphID, s.name = id, name }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithPersister sends mutation requests to p. Without one, ids are
// generated locally.
func WithPersister(p Persister) Option {
	return func(s *settings) { s.persister = p }
}

// WithCircuitBreaker guards the persister with a circuit breaker.
func WithCircuitBreaker(config BreakerConfig) Option {
	return func(s *settings) { s.breaker = &config }
}

// WithSimulation overrides the simulation parameters.
func WithSimulation(opts physics.Options) Option {
	return func(s *settings) { s.simOpts = opts }
}

// WithViewportLimits overrides the zoom range.
func WithViewportLimits(limits viewport.Limits) Option {
	return func(s *settings) { s.limits = limits }
}

// WithCanvas sets the canvas size used for the default window and the
// viewport origin.
func WithCanvas(width, height float64) Option {
	return func(s *settings) { s.width, s.height = width, height }
}

// WithPadding sets the projector padding.
func WithPadding(padding float64) Option {
	return func(s *settings) { s.padding = padding }
}

// WithInterval sets the tick interval of the loop.
func WithInterval(d time.Duration) Option {
	return func(s *settings) { s.interval = d }
}

// WithManualTicks disables the loop; the caller drives the simulation
// with Tick.
func WithManualTicks() Option {
	return func(s *settings) { s.manual = true }
}

// Surface is one interactive graph view.
type Surface struct {
	graphID   string
	logger    *zap.Logger
	persister Persister
	simOpts   physics.Options
	projector render.Projector
	view      *viewport.Viewport
	loop      *physics.Loop
	manual    bool

	mu        sync.Mutex
	graph     *models.Graph
	sim       *physics.Simulation
	last      physics.Snapshot
	listeners map[uint64]TickListener
	nextID    uint64
	closed    bool
}

// New creates a surface with an empty graph.
func New(opts ...Option) *Surface {
	cfg := settings{
		logger:   zap.NewNop(),
		simOpts:  physics.DefaultOptions(),
		limits:   viewport.DefaultLimits(),
		width:    800,
		height:   600,
		padding:  render.DefaultPadding,
		interval: physics.DefaultInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	s := &Surface{
		graphID: cfg.graphID,
		logger:  cfg.logger.With(zap.String("graph", cfg.graphID)),
		simOpts: cfg.simOpts,
		projector: render.Projector{
			Padding:       cfg.padding,
			DefaultWidth:  cfg.width,
			DefaultHeight: cfg.height,
		},
		view:   viewport.New(cfg.width, cfg.height, cfg.limits),
		loop:   physics.NewLoop(cfg.interval),
		manual: cfg.manual,
		graph:  models.NewGraph(cfg.name),

		listeners: make(map[uint64]TickListener),
	}
	if cfg.graphID != "" {
		s.graph.ID = cfg.graphID
	}
	s.persister = cfg.persister
	if s.persister != nil && cfg.breaker != nil {
		s.persister = newBreakerPersister(s.persister, *cfg.breaker, s.logger)
	}
	s.sim = physics.NewSimulation(s.simOpts, s.logger)
	s.sim.Initialize(nil, nil)
	s.last = s.sim.Snapshot()
	return s
}

// GraphID returns the id passed to the persister.
func (s *Surface) GraphID() string {
	return s.graphID
}

// Name returns the graph name.
func (s *Surface) Name() string {
	return s.graphName()
}

// SetGraphData replaces the whole graph. Links naming unknown nodes are
// dropped and logged. The running simulation is stopped and a fresh one
// starts from alpha 1.
func (s *Surface) SetGraphData(ctx context.Context, data models.GraphData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g, dropped, err := models.FromData(s.graphName(), data, s.logger)
	if err != nil {
		return fmt.Errorf("failed to load graph data: %w", err)
	}
	if s.graphID != "" {
		g.ID = s.graphID
	}

	// The loop must be stopped without holding mu: an in-flight tick
	// needs it to finish.
	s.loop.Stop()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.sim.Stop()
	s.sim = physics.NewSimulation(s.simOpts, s.logger)
	s.graph = g
	s.sim.Initialize(g.Nodes, g.Links)
	s.last = s.sim.Snapshot()
	s.mu.Unlock()

	droppedLinksTotal.Add(float64(len(dropped)))
	restartsTotal.WithLabelValues("cold").Inc()
	s.logger.Info("Graph data set",
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("links", len(g.Links)),
		zap.Int("dropped_links", len(dropped)))

	s.startLoop()
	return nil
}

// AddNode requests a new node from the persister, appends it and warm
// restarts the simulation. It returns the new node's id.
func (s *Surface) AddNode(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", models.ErrEmptyName
	}
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	id := ""
	if s.persister != nil {
		var err error
		id, err = s.persister.CreateNode(ctx, s.graphID, name)
		if err != nil {
			persistErrors.WithLabelValues("create_node").Inc()
			return "", fmt.Errorf("failed to persist node: %w", err)
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	node, err := s.graph.AddNode(models.NewNode(id, name))
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.sim.Restart(s.graph.Nodes, s.graph.Links)
	s.last = s.sim.Snapshot()
	s.mu.Unlock()

	restartsTotal.WithLabelValues("warm").Inc()
	s.logger.Debug("Node added", zap.String("node", node.ID), zap.String("name", name))
	s.startLoop()
	return node.ID, nil
}

// AddLink requests a new link from the persister, appends it and warm
// restarts the simulation. Unknown endpoints fail with
// models.ErrNodeNotFound before anything is persisted.
func (s *Surface) AddLink(ctx context.Context, sourceID, targetID string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	for _, id := range []string{sourceID, targetID} {
		if !s.graph.HasNode(id) {
			s.mu.Unlock()
			return "", fmt.Errorf("link endpoint %s: %w", id, models.ErrNodeNotFound)
		}
	}
	s.mu.Unlock()

	link := models.NewLink(sourceID, targetID)
	if s.persister != nil {
		id, err := s.persister.CreateLink(ctx, s.graphID, sourceID, targetID)
		if err != nil {
			persistErrors.WithLabelValues("create_link").Inc()
			return "", fmt.Errorf("failed to persist link: %w", err)
		}
		link.ID = id
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	if err := s.graph.AddLink(link); err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.sim.Restart(s.graph.Nodes, s.graph.Links)
	s.last = s.sim.Snapshot()
	s.mu.Unlock()

	restartsTotal.WithLabelValues("warm").Inc()
	s.logger.Debug("Link added", zap.String("source", sourceID), zap.String("target", targetID))
	s.startLoop()
	return link.ID, nil
}

// OnTick registers fn to receive every frame a tick produces. Listeners
// run on the ticking goroutine and must not block. The returned function
// unregisters fn.
func (s *Surface) OnTick(fn TickListener) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Tick advances the simulation one step and notifies listeners. It
// reports whether the simulation wants more ticks.
func (s *Surface) Tick() bool {
	start := time.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	snap, ok := s.sim.Step()
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.last = snap
	frame := s.frame(snap)
	listeners := make([]TickListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	active := s.sim.Active()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(frame)
	}
	ticksTotal.Inc()
	tickDuration.Observe(time.Since(start).Seconds())
	return active
}

// Frame returns the latest snapshot with its window and the current
// viewport transform.
func (s *Surface) Frame() render.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame(s.last)
}

func (s *Surface) frame(snap physics.Snapshot) render.Frame {
	return render.NewFrame(snap, s.projector, s.view.Transform())
}

// Data returns the graph as an input snapshot.
func (s *Surface) Data() models.GraphData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Data()
}

// Viewport returns the gesture entry point.
func (s *Surface) Viewport() *viewport.Viewport {
	return s.view
}

// Projector returns the projector frames are built with.
func (s *Surface) Projector() render.Projector {
	return s.projector
}

// Active reports whether the simulation is still moving.
func (s *Surface) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim.Active()
}

// Close stops the simulation and waits for the loop to exit. Closing
// twice is a no-op.
func (s *Surface) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.sim.Stop()
	s.mu.Unlock()

	s.loop.Stop()
	s.logger.Debug("Surface closed")
	return nil
}

func (s *Surface) startLoop() {
	if s.manual {
		return
	}
	s.loop.Start(s.Tick)
}

func (s *Surface) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Surface) graphName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Name
}
