package physics

// NodePosition is a copied-out node position.
type NodePosition struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	VX   float64 `json:"vx"`
	VY   float64 `json:"vy"`
}

// LinkPosition is a copied-out link with both endpoint coordinates taken
// in the same tick as the nodes.
type LinkPosition struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	X1     float64 `json:"x1"`
	Y1     float64 `json:"y1"`
	X2     float64 `json:"x2"`
	Y2     float64 `json:"y2"`
}

// Snapshot is an immutable copy of the layout after a tick. Renderers read
// snapshots, never the simulation's live nodes.
type Snapshot struct {
	Tick  uint64         `json:"tick"`
	Alpha float64        `json:"alpha"`
	State State          `json:"state"`
	Nodes []NodePosition `json:"nodes"`
	Links []LinkPosition `json:"links"`
}

// Snapshot copies the current layout.
func (s *Simulation) Snapshot() Snapshot {
	snap := Snapshot{
		Tick:  s.tick,
		Alpha: s.alpha,
		State: s.state,
		Nodes: make([]NodePosition, 0, len(s.nodes)),
		Links: make([]LinkPosition, 0, len(s.links)),
	}
	for _, n := range s.nodes {
		snap.Nodes = append(snap.Nodes, NodePosition{
			ID: n.ID, Name: n.Name, X: n.X, Y: n.Y, VX: n.VX, VY: n.VY,
		})
	}
	for _, l := range s.links {
		if !l.Resolved() {
			continue
		}
		snap.Links = append(snap.Links, LinkPosition{
			Source: l.Source.ID,
			Target: l.Target.ID,
			X1:     l.Source.X,
			Y1:     l.Source.Y,
			X2:     l.Target.X,
			Y2:     l.Target.Y,
		})
	}
	return snap
}

// Node returns the position of id, if present.
func (s Snapshot) Node(id string) (NodePosition, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodePosition{}, false
}

// Settle steps sim until it rests or maxTicks have run, returning the last
// snapshot and the number of ticks taken.
func Settle(sim *Simulation, maxTicks int) (Snapshot, int) {
	last := sim.Snapshot()
	ticks := 0
	for ticks < maxTicks && sim.Active() {
		snap, ok := sim.Step()
		if !ok {
			break
		}
		last = snap
		ticks++
	}
	return last, ticks
}
