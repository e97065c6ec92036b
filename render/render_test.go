package render

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/TFMV/forcegraph/models"
	"github.com/TFMV/forcegraph/physics"
	"github.com/TFMV/forcegraph/viewport"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoNodeSnapshot() physics.Snapshot {
	return physics.Snapshot{
		Tick:  7,
		State: physics.Resting,
		Nodes: []physics.NodePosition{
			{ID: "1", Name: "alpha", X: 0, Y: 0},
			{ID: "2", Name: "beta", X: 100, Y: 0},
		},
		Links: []physics.LinkPosition{{Source: "1", Target: "2", X1: 0, Y1: 0, X2: 100, Y2: 0}},
	}
}

func quietOptions(format string) *OutputOptions {
	opts := NewDefaultOptions(format)
	opts.Timestamp = false
	opts.ShowLabels = false
	return opts
}

func TestViewBoxPadsBoundingBox(t *testing.T) {
	p := NewProjector(800, 600)
	snap := physics.Snapshot{Nodes: []physics.NodePosition{
		{ID: "a", X: -10, Y: 20},
		{ID: "b", X: 90, Y: -30},
		{ID: "c", X: 40, Y: 5},
	}}
	got := p.ViewBox(snap)
	want := ViewBox{MinX: -60, MinY: -80, Width: 200, Height: 150}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ViewBox mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "-60 -80 200 150", got.String())
}

func TestViewBoxEmptyUsesDefaultWindow(t *testing.T) {
	p := NewProjector(1024, 768)
	assert.Equal(t, ViewBox{Width: 1024, Height: 768}, p.ViewBox(physics.Snapshot{}))

	nan := physics.Snapshot{Nodes: []physics.NodePosition{{ID: "x", X: math.NaN(), Y: 1}}}
	assert.Equal(t, ViewBox{Width: 1024, Height: 768}, p.ViewBox(nan))
}

func TestViewBoxSingleNode(t *testing.T) {
	p := NewProjector(800, 600)
	vb := p.ViewBox(physics.Snapshot{Nodes: []physics.NodePosition{{ID: "a", X: 5, Y: 5}}})
	assert.Equal(t, ViewBox{MinX: -45, MinY: -45, Width: 100, Height: 100}, vb)
}

func TestSettledLayoutIsContained(t *testing.T) {
	data := models.GraphData{
		Nodes: []models.NodeData{{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}, {ID: "5"}},
		Links: []models.LinkData{{Source: "1", Target: "2"}, {Source: "2", Target: "3"}},
	}
	g, _, err := models.FromData("contained", data, nil)
	require.NoError(t, err)
	sim := physics.NewSimulation(physics.DefaultOptions(), nil)
	sim.Initialize(g.Nodes, g.Links)
	snap, _ := physics.Settle(sim, 10_000)

	p := NewProjector(800, 600)
	vb := p.ViewBox(snap)
	for _, n := range snap.Nodes {
		assert.True(t, vb.Contains(n.X, n.Y), "node %s outside %s", n.ID, vb)
		assert.GreaterOrEqual(t, n.X-vb.MinX, p.Padding-1e-9)
		assert.GreaterOrEqual(t, vb.MinY+vb.Height-n.Y, p.Padding-1e-9)
	}
}

func TestFitMeetsAndCenters(t *testing.T) {
	p := NewProjector(800, 600)
	m := p.Fit(ViewBox{MinX: -50, MinY: -50, Width: 200, Height: 100}, 800, 600)
	assert.InDelta(t, 4, m.Scale, 1e-9)

	x, y := m.Project(-50, -50)
	assert.InDelta(t, 0, x, 1e-9)
	assert.InDelta(t, 100, y, 1e-9)
	x, y = m.Project(150, 50)
	assert.InDelta(t, 800, x, 1e-9)
	assert.InDelta(t, 500, y, 1e-9)

	degenerate := p.Fit(ViewBox{MinX: 3, MinY: 4}, 800, 600)
	assert.Equal(t, 1.0, degenerate.Scale)
}

func TestGetRenderer(t *testing.T) {
	for _, format := range []string{"svg", "SVG", "ascii", "json", "dot"} {
		r, err := GetRenderer(format)
		require.NoError(t, err, format)
		assert.NotEmpty(t, r.Name())
		assert.NotEmpty(t, r.Description())
	}
	_, err := GetRenderer("webgl")
	assert.Error(t, err)

	_, err = Generate(Frame{}, quietOptions("png"))
	assert.Error(t, err)
}

func TestSVGRendererCarriesViewBoxAndTransform(t *testing.T) {
	tr := viewport.Transform{Scale: 2, TX: 10, TY: -5, OX: 400, OY: 300}
	frame := NewFrame(twoNodeSnapshot(), NewProjector(800, 600), tr)
	opts := quietOptions("svg")
	opts.ShowLabels = true

	out, err := Generate(frame, opts)
	require.NoError(t, err)
	svg := string(out)

	assert.True(t, strings.HasPrefix(svg, "<?xml"))
	assert.Contains(t, svg, `viewBox="-50 -50 200 100"`)
	assert.Contains(t, svg, `transform="matrix(2 0 0 2 -390 -305)"`)
	assert.Contains(t, svg, `preserveAspectRatio="xMidYMid meet"`)
	assert.Equal(t, 2, strings.Count(svg, "<circle"))
	assert.Equal(t, 1, strings.Count(svg, "<line"))
	assert.Contains(t, svg, ">alpha</text>")
	assert.True(t, strings.HasSuffix(svg, "</svg>"))
}

func TestSVGRendererEscapesNames(t *testing.T) {
	snap := physics.Snapshot{Nodes: []physics.NodePosition{{ID: "1", Name: "<b>&"}}}
	frame := NewFrame(snap, NewProjector(800, 600), viewport.Identity(400, 300))
	opts := quietOptions("svg")
	opts.ShowLabels = true

	out, err := Generate(frame, opts)
	require.NoError(t, err)
	assert.Contains(t, string(out), "&lt;b&gt;&amp;")
	assert.NotContains(t, string(out), "<b>")
}

func TestASCIIRendererDrawsNodesAndEdges(t *testing.T) {
	frame := NewFrame(twoNodeSnapshot(), NewProjector(800, 600), viewport.Identity(400, 300))
	out, err := Generate(frame, quietOptions("ascii"))
	require.NoError(t, err)

	text := string(out)
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	assert.Len(t, lines, 30)
	assert.Equal(t, 2, strings.Count(text, string(nodeSymbol)))
	assert.Contains(t, text, string(edgeSymbol))
	assert.Contains(t, text, "forcegraph tick 7 resting")
}

func TestASCIIRendererHonorsViewport(t *testing.T) {
	tr := viewport.Transform{Scale: 1, TX: 10_000, OX: 400, OY: 300}
	frame := NewFrame(twoNodeSnapshot(), NewProjector(800, 600), tr)
	out, err := Generate(frame, quietOptions("ascii"))
	require.NoError(t, err)
	assert.Zero(t, strings.Count(string(out), string(nodeSymbol)))
}

func TestJSONRendererIncludesScreenCoordinates(t *testing.T) {
	frame := NewFrame(twoNodeSnapshot(), NewProjector(800, 600), viewport.Identity(400, 300))
	out, err := Generate(frame, quietOptions("json"))
	require.NoError(t, err)

	var decoded struct {
		Tick    uint64  `json:"tick"`
		State   string  `json:"state"`
		ViewBox ViewBox `json:"view_box"`
		Nodes   []struct {
			ID      string  `json:"id"`
			ScreenX float64 `json:"screen_x"`
			ScreenY float64 `json:"screen_y"`
		} `json:"nodes"`
		Links    []physics.LinkPosition `json:"links"`
		Metadata map[string]any         `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, uint64(7), decoded.Tick)
	assert.Equal(t, "resting", decoded.State)
	assert.Equal(t, ViewBox{MinX: -50, MinY: -50, Width: 200, Height: 100}, decoded.ViewBox)
	require.Len(t, decoded.Nodes, 2)
	assert.InDelta(t, 200, decoded.Nodes[0].ScreenX, 1e-9)
	assert.InDelta(t, 300, decoded.Nodes[0].ScreenY, 1e-9)
	assert.InDelta(t, 600, decoded.Nodes[1].ScreenX, 1e-9)
	assert.Len(t, decoded.Links, 1)
	assert.NotContains(t, decoded.Metadata, "timestamp")
}

func TestFrameDecodesBack(t *testing.T) {
	snap := twoNodeSnapshot()
	snap.State = physics.Running
	frame := NewFrame(snap, NewProjector(800, 600), viewport.Identity(400, 300))

	b, err := json.Marshal(frame)
	require.NoError(t, err)
	var got Frame
	require.NoError(t, json.Unmarshal(b, &got))
	if diff := cmp.Diff(frame, got); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONRendererEmptyFrame(t *testing.T) {
	frame := NewFrame(physics.Snapshot{}, NewProjector(800, 600), viewport.Identity(400, 300))
	out, err := Generate(frame, quietOptions("json"))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"links": []`)
	assert.Contains(t, string(out), `"nodes": []`)
}

func TestDOTRenderer(t *testing.T) {
	frame := NewFrame(twoNodeSnapshot(), NewProjector(800, 600), viewport.Identity(400, 300))
	out, err := Generate(frame, quietOptions("dot"))
	require.NoError(t, err)
	dot := string(out)
	assert.True(t, strings.HasPrefix(dot, "graph G {"))
	assert.Contains(t, dot, `"1" -- "2"`)
	assert.Contains(t, dot, `label="beta"`)
}
