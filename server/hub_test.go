package server

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/TFMV/forcegraph/models"
	"github.com/TFMV/forcegraph/store"
	"github.com/TFMV/forcegraph/surface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// gatedStore holds GetGraph calls until release is closed.
type gatedStore struct {
	*store.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) GetGraph(ctx context.Context, id int64) (store.StoredGraph, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.Store.GetGraph(ctx, id)
}

func TestHubGetDoesNotHoldLockAcrossStoreRead(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "graph.db"), zap.NewNop())
	require.NoError(t, err)
	defer st.Close()
	_, err = st.Seed(ctx, false)
	require.NoError(t, err)

	gated := &gatedStore{Store: st, entered: make(chan struct{}), release: make(chan struct{})}
	hub := NewHub(gated, zap.NewNop(), surface.WithManualTicks())
	defer hub.Close()

	_, err = hub.Attach(ctx, "mem", "mem", models.GraphData{
		Nodes: []models.NodeData{{ID: "a", Name: "A"}},
	})
	require.NoError(t, err)

	type result struct {
		s   *surface.Surface
		err error
	}
	loads := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			s, err := hub.Get(ctx, "2")
			loads <- result{s, err}
		}()
	}
	<-gated.entered

	got := make(chan error, 1)
	go func() {
		_, err := hub.Get(ctx, "mem")
		got <- err
	}()
	select {
	case err := <-got:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("lookup of an open graph waited on a store read")
	}

	close(gated.release)
	first, second := <-loads, <-loads
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	assert.Same(t, first.s, second.s, "concurrent loads share one surface")
	assert.Equal(t, 2, hub.Len())
}
