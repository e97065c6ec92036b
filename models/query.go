package models

import "fmt"

// FindNodeByID returns a node by its ID
func (g *Graph) FindNodeByID(id string) (*Node, error) {
	g.ensureIndex()
	if n, ok := g.index[id]; ok {
		return n, nil
	}
	return nil, fmt.Errorf("node %s: %w", id, ErrNodeNotFound)
}

// HasNode reports whether id names a node in the graph.
func (g *Graph) HasNode(id string) bool {
	g.ensureIndex()
	_, ok := g.index[id]
	return ok
}
