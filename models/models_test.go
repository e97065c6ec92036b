package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"
)

func sampleData() GraphData {
	return GraphData{
		Nodes: []NodeData{{ID: "1", Name: "A"}, {ID: "2", Name: "B"}, {ID: "3", Name: "C"}, {ID: "4", Name: "D"}},
		Links: []LinkData{{Source: "1", Target: "2"}, {Source: "2", Target: "3"}},
	}
}

func TestFromDataResolvesLinksToSharedNodes(t *testing.T) {
	g, dropped, err := FromData("g", sampleData(), nil)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	require.Len(t, g.Links, 2)

	n1, err := g.FindNodeByID("1")
	require.NoError(t, err)
	assert.Same(t, n1, g.Links[0].Source)
	assert.True(t, g.Links[0].Resolved())

	// Mutating through the link is visible through the index.
	g.Links[0].Source.X = 42
	assert.Equal(t, 42.0, n1.X)
}

func TestFromDataDropsDanglingLink(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	data := sampleData()
	data.Links = append(data.Links, LinkData{Source: "99", Target: "1"})

	g, dropped, err := FromData("g", data, zap.New(core))
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	assert.Equal(t, "99", dropped[0].SourceID)
	assert.Len(t, g.Links, 2)
	for _, l := range g.Links {
		assert.True(t, l.Resolved())
	}
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Dropping unresolved link", logs.All()[0].Message)
}

func TestFromDataRejectsDuplicateIDs(t *testing.T) {
	data := GraphData{Nodes: []NodeData{{ID: "1"}, {ID: "1"}}}
	_, _, err := FromData("g", data, nil)
	assert.ErrorIs(t, err, ErrDuplicateNode)
}

func TestAddLinkUnknownEndpoint(t *testing.T) {
	g, _, err := FromData("g", sampleData(), nil)
	require.NoError(t, err)

	err = g.AddLink(NewLink("1", "42"))
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.Len(t, g.Links, 2)

	require.NoError(t, g.AddLink(NewLink("4", "1")))
	assert.Len(t, g.Links, 3)
	assert.Same(t, g.Links[2].Source, g.Nodes[3])
	assert.True(t, g.HasNode("4"))
	assert.False(t, g.HasNode("42"))
}

func TestFlexIDAcceptsStringsAndNumbers(t *testing.T) {
	var data GraphData
	raw := `{"nodes":[{"id":1,"name":"A"},{"id":"2","name":"B"}],"links":[{"source":1,"target":"2"}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	assert.Equal(t, FlexID("1"), data.Nodes[0].ID)
	assert.Equal(t, FlexID("2"), data.Nodes[1].ID)
	assert.Equal(t, FlexID("1"), data.Links[0].Source)

	var fromYAML GraphData
	doc := "nodes:\n  - id: 7\n    name: X\nlinks:\n  - source: 7\n    target: \"8\"\n"
	require.NoError(t, yaml.Unmarshal([]byte(doc), &fromYAML))
	assert.Equal(t, FlexID("7"), fromYAML.Nodes[0].ID)
	assert.Equal(t, FlexID("8"), fromYAML.Links[0].Target)
}
