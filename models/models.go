// Package models provides the graph data structures for forcegraph.
// It defines the node/link model shared by the simulation, the projector and
// the persistence collaborator.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNodeNotFound is returned when an id does not name a node in the graph.
	ErrNodeNotFound = errors.New("node not found")
	// ErrEmptyName is returned when a node is created without a name.
	ErrEmptyName = errors.New("node name is empty")
	// ErrDuplicateNode is returned when a node id is already taken.
	ErrDuplicateNode = errors.New("duplicate node id")
)

// Node represents a node in the graph.
// X, Y, VX and VY are owned by the simulation; ID and Name by the graph.
type Node struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	VX   float64 `json:"vx"`
	VY   float64 `json:"vy"`

	placed bool
}

// Placed reports whether the node has been given coordinates.
func (n *Node) Placed() bool {
	return n.placed
}

// Link connects two nodes. Before resolution only SourceID and TargetID
// are set; Resolve replaces them with pointers into the node index.
type Link struct {
	ID       string `json:"id,omitempty"`
	SourceID string `json:"source"`
	TargetID string `json:"target"`
	Source   *Node  `json:"-"`
	Target   *Node  `json:"-"`
}

// Resolved reports whether both endpoints point at nodes.
func (l *Link) Resolved() bool {
	return l.Source != nil && l.Target != nil
}

// Graph is the canonical in-memory graph. Nodes are held by pointer so
// links, the index and the simulation all share the same records.
type Graph struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Nodes     []*Node   `json:"nodes"`
	Links     []*Link   `json:"links"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	index map[string]*Node
}

// FlexID accepts either a JSON string or a JSON number, matching the
// persistence layer which hands out integer row ids.
type FlexID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = FlexID(n.String())
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler for scalar ids.
func (f *FlexID) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("id must be a scalar, line %d", value.Line)
	}
	*f = FlexID(value.Value)
	return nil
}

// String returns the id as a string.
func (f FlexID) String() string {
	return string(f)
}

// NodeData is one node of the input graph format.
type NodeData struct {
	ID   FlexID `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// LinkData is one link of the input graph format.
type LinkData struct {
	Source FlexID `json:"source" yaml:"source"`
	Target FlexID `json:"target" yaml:"target"`
}

// GraphData is the {nodes, links} snapshot exchanged with the persistence
// collaborator.
type GraphData struct {
	Nodes []NodeData `json:"nodes" yaml:"nodes"`
	Links []LinkData `json:"links" yaml:"links"`
}
