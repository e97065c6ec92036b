package store

import (
	"context"
	"fmt"

	"github.com/TFMV/forcegraph/models"
	"go.uber.org/zap"
)

// SeedGraph is a named graph to load into an empty database.
type SeedGraph struct {
	Name string
	Data models.GraphData
}

// SeedGraphs are the demo conversations.
var SeedGraphs = []SeedGraph{
	{
		Name: "Conversation 1",
		Data: models.GraphData{
			Nodes: []models.NodeData{{ID: "1", Name: "Node A1"}, {ID: "2", Name: "Node B1"}},
			Links: []models.LinkData{{Source: "1", Target: "2"}},
		},
	},
	{
		Name: "Conversation 2",
		Data: models.GraphData{
			Nodes: []models.NodeData{{ID: "1", Name: "Node A2"}, {ID: "2", Name: "Node B2"}},
			Links: []models.LinkData{{Source: "1", Target: "2"}},
		},
	},
	{
		Name: "Conversation 3",
		Data: models.GraphData{
			Nodes: []models.NodeData{
				{ID: "1", Name: "Node A3"},
				{ID: "2", Name: "Node B3"},
				{ID: "3", Name: "Node C3"},
				{ID: "4", Name: "Node D3"},
			},
			Links: []models.LinkData{{Source: "1", Target: "2"}, {Source: "2", Target: "3"}},
		},
	},
}

// Seed loads SeedGraphs when the database has no conversations, or always
// after clearing it when reseed is set. It returns the ids of the
// conversations now in the database.
func (s *Store) Seed(ctx context.Context, reseed bool) ([]int64, error) {
	if reseed {
		if err := s.DeleteAll(ctx); err != nil {
			return nil, err
		}
	}

	n, err := s.Count(ctx, ConversationTable)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		s.logger.Info("Database already seeded", zap.Int("conversations", n))
		graphs, err := s.ListGraphs(ctx)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, 0, len(graphs))
		for _, g := range graphs {
			id, err := ParseGraphID(g.ID)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	}

	ids := make([]int64, 0, len(SeedGraphs))
	for _, g := range SeedGraphs {
		id, err := s.CreateGraph(ctx, g.Name, g.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to seed %q: %w", g.Name, err)
		}
		ids = append(ids, id)
	}
	s.logger.Info("Database seeded", zap.Int("conversations", len(ids)))
	return ids, nil
}
