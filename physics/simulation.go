// Package physics implements the force-directed layout engine: a set of
// composable forces, an alpha-driven integrator with warm restart, and a
// scheduler that ticks it.
package physics

import (
	"fmt"
	"math"

	"github.com/TFMV/forcegraph/models"
	opensimplex "github.com/ojrac/opensimplex-go"
	"go.uber.org/zap"
)

// State is the lifecycle state of a simulation.
type State int

const (
	Uninitialized State = iota
	Running
	Settling
	Resting
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Running:
		return "running"
	case Settling:
		return "settling"
	case Resting:
		return "resting"
	default:
		return "unknown"
	}
}

// MarshalText lets snapshots carry the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Uninitialized, Running, Settling, Resting} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown simulation state %q", b)
}

// Options parameterizes the forces and the integrator.
type Options struct {
	LinkDistance    float64
	ChargeStrength  float64
	Theta           float64
	CollideRadius   float64
	CenterX         float64
	CenterY         float64
	CenterStrength  float64
	AlphaMin        float64
	AlphaDecay      float64
	AlphaTarget     float64
	VelocityDecay   float64
	WarmAlpha       float64
	SettleThreshold float64
	Seed            int64
}

// DefaultOptions returns the parameters the layout was tuned with.
func DefaultOptions() Options {
	alphaMin := 0.001
	return Options{
		LinkDistance:    100,
		ChargeStrength:  -300,
		Theta:           0.9,
		CollideRadius:   20,
		CenterStrength:  0.1,
		AlphaMin:        alphaMin,
		AlphaDecay:      1 - math.Pow(alphaMin, 1.0/300),
		VelocityDecay:   0.4,
		WarmAlpha:       0.3,
		SettleThreshold: 0.05,
		Seed:            1234567890,
	}
}

const (
	initialRadius = 10
	goldenAngle   = math.Pi * (3 - 2.23606797749979) // π(3-√5)
)

// Simulation owns the node and link sets and advances them one tick at a
// time. It is not safe for concurrent use; callers serialize Step with
// mutations.
type Simulation struct {
	opts   Options
	logger *zap.Logger

	nodes  []*models.Node
	links  []*models.Link
	forces []Force

	alpha   float64
	state   State
	tick    uint64
	stopped bool

	rng   xorshift
	noise opensimplex.Noise
}

// NewSimulation creates an uninitialized simulation.
func NewSimulation(opts Options, logger *zap.Logger) *Simulation {
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := uint32(opts.Seed)
	if seed == 0 {
		seed = 1234567890
	}
	s := &Simulation{
		opts:   opts,
		logger: logger,
		rng:    xorshift(seed),
		noise:  opensimplex.New(opts.Seed),
	}
	s.forces = []Force{
		NewLinkForce(opts.LinkDistance),
		NewChargeForce(opts.ChargeStrength, opts.Theta),
		NewCenterForce(opts.CenterX, opts.CenterY, opts.CenterStrength),
		NewCollideForce(opts.CollideRadius),
	}
	return s
}

// Initialize replaces the node and link sets and starts from alpha 1.
// Nodes without coordinates are laid out on a phyllotaxis spiral.
func (s *Simulation) Initialize(nodes []*models.Node, links []*models.Link) {
	s.nodes = nodes
	s.links = links
	s.tick = 0
	s.stopped = false

	for i, n := range s.nodes {
		if n.Placed() {
			continue
		}
		r := initialRadius * math.Sqrt(0.5+float64(i))
		a := float64(i) * goldenAngle
		n.SetPosition(s.opts.CenterX+r*math.Cos(a), s.opts.CenterY+r*math.Sin(a))
		n.VX, n.VY = 0, 0
	}
	s.initForces()

	if len(s.nodes) == 0 {
		s.alpha = 0
		s.state = Uninitialized
		return
	}
	s.alpha = 1
	s.state = Running
	s.logger.Debug("Simulation initialized",
		zap.Int("nodes", len(s.nodes)),
		zap.Int("links", len(s.links)))
}

// Restart swaps in updated node and link sets without discarding layout.
// Nodes already known keep their position and velocity; new nodes are
// placed near their linked neighbours or just outside the current layout.
// Alpha is raised to the warm value so the graph relaxes instead of
// reshuffling. An uninitialized simulation is initialized instead.
func (s *Simulation) Restart(nodes []*models.Node, links []*models.Link) {
	if s.state == Uninitialized {
		s.Initialize(nodes, links)
		return
	}

	prev := make(map[string]*models.Node, len(s.nodes))
	for _, n := range s.nodes {
		prev[n.ID] = n
	}
	var fresh []*models.Node
	for _, n := range nodes {
		if old, ok := prev[n.ID]; ok && old != n && !n.Placed() {
			n.SetPosition(old.X, old.Y)
			n.VX, n.VY = old.VX, old.VY
		}
		if !n.Placed() {
			fresh = append(fresh, n)
		}
	}

	s.nodes = nodes
	s.links = links
	s.stopped = false
	s.place(fresh)
	s.initForces()

	if len(s.nodes) == 0 {
		s.alpha = 0
		s.state = Resting
		return
	}
	s.alpha = math.Max(s.alpha, s.opts.WarmAlpha)
	s.state = Running
	s.logger.Debug("Simulation warm restart",
		zap.Int("nodes", len(s.nodes)),
		zap.Int("links", len(s.links)),
		zap.Int("new_nodes", len(fresh)),
		zap.Float64("alpha", s.alpha))
}

// Step advances the simulation by one tick. It returns the snapshot taken
// after the tick and true, or a zero snapshot and false when the
// simulation is resting or stopped. An empty node set yields an empty
// snapshot and performs no work.
func (s *Simulation) Step() (Snapshot, bool) {
	if s.stopped || s.state == Resting {
		return Snapshot{}, false
	}
	if len(s.nodes) == 0 {
		return s.Snapshot(), true
	}

	s.alpha += (s.opts.AlphaTarget - s.alpha) * s.opts.AlphaDecay
	for _, f := range s.forces {
		f.Apply(s.alpha)
	}
	s.integrate()
	s.tick++

	switch {
	case s.alpha < s.opts.AlphaMin:
		s.state = Resting
		s.logger.Debug("Simulation resting", zap.Uint64("tick", s.tick))
	case s.alpha < s.opts.SettleThreshold:
		s.state = Settling
	default:
		s.state = Running
	}
	return s.Snapshot(), true
}

// Active reports whether further Step calls will do work.
func (s *Simulation) Active() bool {
	return !s.stopped && len(s.nodes) > 0 && (s.state == Running || s.state == Settling)
}

// Stop halts the simulation; Step returns false until the next Initialize
// or Restart. Stopping twice, or stopping a simulation that never ran, is a
// no-op.
func (s *Simulation) Stop() {
	s.stopped = true
}

// Alpha returns the current alpha.
func (s *Simulation) Alpha() float64 { return s.alpha }

// State returns the current lifecycle state.
func (s *Simulation) State() State { return s.state }

// Ticks returns the number of ticks since the last Initialize.
func (s *Simulation) Ticks() uint64 { return s.tick }

// Nodes returns the live node slice. Callers must not resize it.
func (s *Simulation) Nodes() []*models.Node { return s.nodes }

func (s *Simulation) initForces() {
	for _, f := range s.forces {
		f.Initialize(s.nodes, s.links, s.rng.float)
	}
}

func (s *Simulation) integrate() {
	keep := 1 - s.opts.VelocityDecay
	for _, n := range s.nodes {
		n.VX *= keep
		n.VY *= keep
		x, y := n.X+n.VX, n.Y+n.VY
		if !finite(x) || !finite(y) {
			s.logger.Warn("Discarding non-finite node update",
				zap.String("node", n.ID),
				zap.Uint64("tick", s.tick))
			n.VX, n.VY = 0, 0
			continue
		}
		n.X, n.Y = x, y
	}
}

// place positions nodes added by a warm restart.
func (s *Simulation) place(fresh []*models.Node) {
	if len(fresh) == 0 {
		return
	}
	isFresh := make(map[*models.Node]bool, len(fresh))
	for _, n := range fresh {
		isFresh[n] = true
	}

	var cx, cy, count float64
	for _, n := range s.nodes {
		if isFresh[n] {
			continue
		}
		cx += n.X
		cy += n.Y
		count++
	}
	if count == 0 {
		cx, cy = s.opts.CenterX, s.opts.CenterY
	} else {
		cx /= count
		cy /= count
	}
	var reach float64
	for _, n := range s.nodes {
		if !isFresh[n] {
			reach = math.Max(reach, math.Hypot(n.X-cx, n.Y-cy))
		}
	}

	for i, n := range fresh {
		// Organic angular jitter so successive additions do not line up.
		jitter := s.noise.Eval2(float64(s.tick)*0.01, float64(i)*0.7) * math.Pi / 6
		angle := float64(len(s.nodes)+i)*goldenAngle + jitter

		if nx, ny, ok := s.neighbourCentroid(n, isFresh); ok {
			r := s.opts.LinkDistance / 2
			n.SetPosition(nx+r*math.Cos(angle), ny+r*math.Sin(angle))
		} else {
			r := reach + 2*s.opts.CollideRadius
			n.SetPosition(cx+r*math.Cos(angle), cy+r*math.Sin(angle))
		}
		n.VX, n.VY = 0, 0
		isFresh[n] = false
	}
}

// neighbourCentroid averages the placed nodes linked to n.
func (s *Simulation) neighbourCentroid(n *models.Node, fresh map[*models.Node]bool) (float64, float64, bool) {
	var x, y, count float64
	for _, l := range s.links {
		var other *models.Node
		switch {
		case l.Source == n:
			other = l.Target
		case l.Target == n:
			other = l.Source
		}
		if other == nil || other == n || fresh[other] {
			continue
		}
		x += other.X
		y += other.Y
		count++
	}
	if count == 0 {
		return 0, 0, false
	}
	return x / count, y / count, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// xorshift is a small deterministic generator in [0, 1).
type xorshift uint32

func (r *xorshift) float() float64 {
	x := uint32(*r)
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	*r = xorshift(x)
	return float64(x) / 4294967296.0
}
