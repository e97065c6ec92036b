package physics

import (
	"math"

	"github.com/TFMV/forcegraph/models"
	"gonum.org/v1/gonum/spatial/barneshut"
	"gonum.org/v1/gonum/spatial/r2"
)

// Force is one independent contribution to node velocities.
// Initialize is called whenever the node or link set changes; Apply once
// per tick with the current alpha.
type Force interface {
	Initialize(nodes []*models.Node, links []*models.Link, random func() float64)
	Apply(alpha float64)
}

// jiggle returns a tiny non-zero offset used to separate coincident nodes.
func jiggle(random func() float64) float64 {
	return (random() - 0.5) * 1e-6
}

// LinkForce pulls the endpoints of each link toward Distance.
type LinkForce struct {
	Distance   float64
	Iterations int

	links     []*models.Link
	strengths []float64
	bias      []float64
	random    func() float64
}

// NewLinkForce creates a link force with the given rest length.
func NewLinkForce(distance float64) *LinkForce {
	return &LinkForce{Distance: distance, Iterations: 1}
}

// Initialize implements Force.
func (f *LinkForce) Initialize(nodes []*models.Node, links []*models.Link, random func() float64) {
	f.random = random
	f.links = f.links[:0]
	count := make(map[*models.Node]int, len(nodes))
	for _, l := range links {
		if !l.Resolved() || l.Source == l.Target {
			continue
		}
		f.links = append(f.links, l)
		count[l.Source]++
		count[l.Target]++
	}

	f.strengths = make([]float64, len(f.links))
	f.bias = make([]float64, len(f.links))
	for i, l := range f.links {
		cs, ct := float64(count[l.Source]), float64(count[l.Target])
		f.strengths[i] = 1 / math.Min(cs, ct)
		f.bias[i] = cs / (cs + ct)
	}
}

// Apply implements Force.
func (f *LinkForce) Apply(alpha float64) {
	iterations := max(f.Iterations, 1)
	for k := 0; k < iterations; k++ {
		for i, l := range f.links {
			source, target := l.Source, l.Target
			x := target.X + target.VX - source.X - source.VX
			if x == 0 {
				x = jiggle(f.random)
			}
			y := target.Y + target.VY - source.Y - source.VY
			if y == 0 {
				y = jiggle(f.random)
			}
			d := math.Sqrt(x*x + y*y)
			d = (d - f.Distance) / d * alpha * f.strengths[i]
			x *= d
			y *= d

			b := f.bias[i]
			target.VX -= x * b
			target.VY -= y * b
			source.VX += x * (1 - b)
			source.VY += y * (1 - b)
		}
	}
}

// ChargeForce is a many-body force between all node pairs. A negative
// Strength repels. With Theta > 0 the sum is approximated with a
// Barnes-Hut quadtree; Theta == 0 computes the exact O(n²) sum.
type ChargeForce struct {
	Strength    float64
	Theta       float64
	DistanceMin float64
	DistanceMax float64

	nodes  []*models.Node
	bodies []barneshut.Particle2
	random func() float64
}

// NewChargeForce creates a many-body force with d3's default shape.
func NewChargeForce(strength, theta float64) *ChargeForce {
	return &ChargeForce{
		Strength:    strength,
		Theta:       theta,
		DistanceMin: 1,
		DistanceMax: math.Inf(1),
	}
}

// body is the quadtree's view of a node, frozen for the duration of a tick
// so velocity updates do not move particles under the tree.
type body struct {
	pos r2.Vec
}

func (b *body) Coord2() r2.Vec { return b.pos }
func (b *body) Mass() float64  { return 1 }

// Initialize implements Force.
func (f *ChargeForce) Initialize(nodes []*models.Node, _ []*models.Link, random func() float64) {
	f.nodes = nodes
	f.random = random
	f.bodies = make([]barneshut.Particle2, len(nodes))
	for i := range nodes {
		f.bodies[i] = &body{}
	}
}

// Apply implements Force.
func (f *ChargeForce) Apply(alpha float64) {
	if len(f.nodes) < 2 {
		return
	}

	seen := make(map[r2.Vec]struct{}, len(f.nodes))
	for i, n := range f.nodes {
		p := r2.Vec{X: n.X, Y: n.Y}
		// Coincident particles cannot be separated by the quadtree.
		for {
			if _, dup := seen[p]; !dup {
				break
			}
			p.X += jiggle(f.random)
			p.Y += jiggle(f.random)
		}
		seen[p] = struct{}{}
		f.bodies[i].(*body).pos = p
	}

	pair := f.pairForce(alpha)
	plane, err := barneshut.NewPlane(f.bodies)
	if err != nil {
		f.applyExact(pair)
		return
	}
	for i, n := range f.nodes {
		v := plane.ForceOn(f.bodies[i], f.Theta, pair)
		n.VX += v.X
		n.VY += v.Y
	}
}

// applyExact is the O(n²) fallback used when the plane cannot be built.
func (f *ChargeForce) applyExact(pair barneshut.Force2) {
	for i, n := range f.nodes {
		var v r2.Vec
		pi := f.bodies[i]
		for j, pj := range f.bodies {
			if i == j {
				continue
			}
			v = r2.Add(v, pair(pi, pj, 1, 1, r2.Sub(pj.Coord2(), pi.Coord2())))
		}
		n.VX += v.X
		n.VY += v.Y
	}
}

// pairForce returns the velocity change on p1 due to mass m2 at offset v.
func (f *ChargeForce) pairForce(alpha float64) barneshut.Force2 {
	minSq := f.DistanceMin * f.DistanceMin
	maxSq := f.DistanceMax * f.DistanceMax
	return func(p1, p2 barneshut.Particle2, _, m2 float64, v r2.Vec) r2.Vec {
		l := r2.Norm2(v)
		if l == 0 {
			if p2 == nil || p2 == p1 {
				return r2.Vec{}
			}
			v = r2.Vec{X: jiggle(f.random), Y: jiggle(f.random)}
			l = r2.Norm2(v)
		}
		if l >= maxSq {
			return r2.Vec{}
		}
		if l < minSq {
			l = math.Sqrt(minSq * l)
		}
		return r2.Scale(f.Strength*m2*alpha/l, v)
	}
}

// CenterForce translates the node set so its centroid approaches
// (X, Y). Strength 1 snaps the centroid each tick.
type CenterForce struct {
	X, Y     float64
	Strength float64

	nodes []*models.Node
}

// NewCenterForce creates a centering force toward (x, y).
func NewCenterForce(x, y, strength float64) *CenterForce {
	return &CenterForce{X: x, Y: y, Strength: strength}
}

// Initialize implements Force.
func (f *CenterForce) Initialize(nodes []*models.Node, _ []*models.Link, _ func() float64) {
	f.nodes = nodes
}

// Apply implements Force.
func (f *CenterForce) Apply(float64) {
	n := len(f.nodes)
	if n == 0 {
		return
	}
	var sx, sy float64
	for _, node := range f.nodes {
		sx += node.X
		sy += node.Y
	}
	sx = (sx/float64(n) - f.X) * f.Strength
	sy = (sy/float64(n) - f.Y) * f.Strength
	for _, node := range f.nodes {
		node.X -= sx
		node.Y -= sy
	}
}

// CollideForce keeps node centers at least 2*Radius apart. Checks every
// pair, O(n²); fine for the tens of nodes a conversation graph holds.
type CollideForce struct {
	Radius   float64
	Strength float64

	nodes  []*models.Node
	random func() float64
}

// NewCollideForce creates a collision force with a uniform node radius.
func NewCollideForce(radius float64) *CollideForce {
	return &CollideForce{Radius: radius, Strength: 1}
}

// Initialize implements Force.
func (f *CollideForce) Initialize(nodes []*models.Node, _ []*models.Link, random func() float64) {
	f.nodes = nodes
	f.random = random
}

// Apply implements Force. Collision is not scaled by alpha.
func (f *CollideForce) Apply(float64) {
	ri := f.Radius
	rj := f.Radius
	r := ri + rj
	share := (rj * rj) / (ri*ri + rj*rj)
	for i, a := range f.nodes {
		xi := a.X + a.VX
		yi := a.Y + a.VY
		for _, b := range f.nodes[i+1:] {
			x := xi - (b.X + b.VX)
			y := yi - (b.Y + b.VY)
			l := x*x + y*y
			if l >= r*r {
				continue
			}
			if x == 0 {
				x = jiggle(f.random)
				l += x * x
			}
			if y == 0 {
				y = jiggle(f.random)
				l += y * y
			}
			l = math.Sqrt(l)
			l = (r - l) / l * f.Strength
			x *= l
			y *= l
			a.VX += x * share
			a.VY += y * share
			b.VX -= x * (1 - share)
			b.VY -= y * (1 - share)
		}
	}
}
