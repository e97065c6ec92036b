package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NewNode creates an unplaced node. An empty id gets a generated one.
func NewNode(id, name string) *Node {
	if id == "" {
		id = uuid.New().String()
	}
	return &Node{ID: id, Name: name}
}

// NewPlacedNode creates a node with fixed initial coordinates.
func NewPlacedNode(id, name string, x, y float64) *Node {
	n := NewNode(id, name)
	n.SetPosition(x, y)
	return n
}

// SetPosition sets the position of a node and marks it placed.
func (n *Node) SetPosition(x, y float64) {
	n.X = x
	n.Y = y
	n.placed = true
}

// NewLink creates an unresolved link between two node ids.
func NewLink(sourceID, targetID string) *Link {
	return &Link{
		ID:       uuid.New().String(),
		SourceID: sourceID,
		TargetID: targetID,
	}
}

// NewGraph creates an empty graph with a unique ID and timestamps.
func NewGraph(name string) *Graph {
	now := time.Now()
	return &Graph{
		ID:        uuid.New().String(),
		Name:      name,
		Nodes:     []*Node{},
		Links:     []*Link{},
		CreatedAt: now,
		UpdatedAt: now,
		index:     make(map[string]*Node),
	}
}

// FromData builds a graph from an input snapshot and resolves its links.
// Links naming unknown nodes are dropped and logged; they are returned so
// callers can account for them.
func FromData(name string, data GraphData, logger *zap.Logger) (*Graph, []*Link, error) {
	g := NewGraph(name)
	for _, nd := range data.Nodes {
		if _, err := g.AddNode(NewNode(nd.ID.String(), nd.Name)); err != nil {
			return nil, nil, fmt.Errorf("load node %q: %w", nd.ID, err)
		}
	}
	for _, ld := range data.Links {
		g.Links = append(g.Links, NewLink(ld.Source.String(), ld.Target.String()))
	}
	dropped := g.Resolve(logger)
	return g, dropped, nil
}

// AddNode appends a node. The node keeps its identity; duplicate ids are
// rejected.
func (g *Graph) AddNode(node *Node) (*Node, error) {
	if node.ID == "" {
		node.ID = uuid.New().String()
	}
	g.ensureIndex()
	if _, exists := g.index[node.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, node.ID)
	}
	g.Nodes = append(g.Nodes, node)
	g.index[node.ID] = node
	g.UpdatedAt = time.Now()
	return node, nil
}

// AddLink appends a link after resolving its endpoints against the node
// index. Unknown endpoints are an error here, since the caller asked for
// this specific link.
func (g *Graph) AddLink(link *Link) error {
	source, err := g.FindNodeByID(link.SourceID)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	target, err := g.FindNodeByID(link.TargetID)
	if err != nil {
		return fmt.Errorf("target: %w", err)
	}
	link.Source = source
	link.Target = target
	g.Links = append(g.Links, link)
	g.UpdatedAt = time.Now()
	return nil
}

// Resolve points every link at the node records in the index. Links with a
// missing endpoint are removed from the graph, logged at warn level and
// returned.
func (g *Graph) Resolve(logger *zap.Logger) []*Link {
	if logger == nil {
		logger = zap.NewNop()
	}
	g.ensureIndex()

	kept := g.Links[:0]
	var dropped []*Link
	for _, l := range g.Links {
		source, sok := g.index[l.SourceID]
		target, tok := g.index[l.TargetID]
		if !sok || !tok {
			logger.Warn("Dropping unresolved link",
				zap.String("graph", g.ID),
				zap.String("source", l.SourceID),
				zap.String("target", l.TargetID),
				zap.Bool("source_found", sok),
				zap.Bool("target_found", tok))
			dropped = append(dropped, l)
			continue
		}
		l.Source = source
		l.Target = target
		kept = append(kept, l)
	}
	for i := len(kept); i < len(g.Links); i++ {
		g.Links[i] = nil
	}
	g.Links = kept
	return dropped
}

// Data returns the graph as an input snapshot.
func (g *Graph) Data() GraphData {
	data := GraphData{
		Nodes: make([]NodeData, 0, len(g.Nodes)),
		Links: make([]LinkData, 0, len(g.Links)),
	}
	for _, n := range g.Nodes {
		data.Nodes = append(data.Nodes, NodeData{ID: FlexID(n.ID), Name: n.Name})
	}
	for _, l := range g.Links {
		data.Links = append(data.Links, LinkData{Source: FlexID(l.SourceID), Target: FlexID(l.TargetID)})
	}
	return data
}

func (g *Graph) ensureIndex() {
	if g.index != nil && len(g.index) == len(g.Nodes) {
		return
	}
	g.index = make(map[string]*Node, len(g.Nodes))
	for _, n := range g.Nodes {
		g.index[n.ID] = n
	}
}
