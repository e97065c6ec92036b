package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/TFMV/forcegraph/physics"
	"github.com/TFMV/forcegraph/viewport"
)

// Frame is everything a renderer needs for one pass: the snapshot, the
// window derived from it and the viewport transform layered on top.
type Frame struct {
	Snapshot  physics.Snapshot   `json:"snapshot"`
	ViewBox   ViewBox            `json:"view_box"`
	Transform viewport.Transform `json:"transform"`
}

// NewFrame projects snap and attaches the transform.
func NewFrame(snap physics.Snapshot, p Projector, t viewport.Transform) Frame {
	return Frame{Snapshot: snap, ViewBox: p.ViewBox(snap), Transform: t}
}

// OutputOptions defines rendering configuration options
type OutputOptions struct {
	Format      string  // Output format (svg, ascii, json, dot)
	Width       float64 // Canvas width in pixels
	Height      float64 // Canvas height in pixels
	NodeSize    float64 // Node radius in layout units
	EdgeWidth   float64 // Edge stroke width in layout units
	FontSize    float64 // Font size for labels
	ShowLabels  bool    // Show node names
	Timestamp   bool    // Stamp the render time
	ColorScheme string  // default or dark
	Quality     string  // low, medium, high
}

// Renderer is implemented by every output backend.
type Renderer interface {
	// Render draws the frame using the provided options
	Render(frame Frame, options *OutputOptions) ([]byte, error)

	// Name returns the name of the renderer
	Name() string

	// Description returns a description of the renderer
	Description() string
}

// NewDefaultOptions creates a default set of output options
func NewDefaultOptions(format string) *OutputOptions {
	return &OutputOptions{
		Format:      format,
		Width:       800,
		Height:      600,
		NodeSize:    10,
		EdgeWidth:   1.5,
		FontSize:    12,
		ShowLabels:  true,
		Timestamp:   true,
		ColorScheme: "default",
		Quality:     "medium",
	}
}

// GetRenderer returns the renderer for a format name.
func GetRenderer(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "svg":
		return &SVGRenderer{}, nil
	case "ascii":
		return &ASCIIRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	case "dot":
		return &DOTRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// Generate renders frame in options.Format.
func Generate(frame Frame, options *OutputOptions) ([]byte, error) {
	if options == nil {
		options = NewDefaultOptions("svg")
	}
	r, err := GetRenderer(options.Format)
	if err != nil {
		return nil, err
	}
	return r.Render(frame, options)
}

// SVGRenderer outputs SVG format
type SVGRenderer struct{}

// Name returns the name of the renderer
func (r *SVGRenderer) Name() string {
	return "SVG Renderer"
}

// Description returns a description of the renderer
func (r *SVGRenderer) Description() string {
	return "Renders the layout as SVG with the viewport transform applied"
}

// Render creates an SVG document. The outer group carries the viewport
// transform in canvas pixels; the nested svg maps the view box onto the
// canvas.
func (r *SVGRenderer) Render(frame Frame, options *OutputOptions) ([]byte, error) {
	var buf bytes.Buffer
	palette := PaletteFor(options.ColorScheme)
	snap := frame.Snapshot

	fmt.Fprintf(&buf, `<?xml version="1.0" encoding="UTF-8" standalone="no"?>
<svg width="%g" height="%g" viewBox="0 0 %g %g" xmlns="http://www.w3.org/2000/svg">
<rect width="100%%" height="100%%" fill="%s"/>
`, options.Width, options.Height, options.Width, options.Height, palette.Background)

	fmt.Fprintf(&buf, `<g transform="%s">
<svg x="0" y="0" width="%g" height="%g" viewBox="%s" preserveAspectRatio="xMidYMid meet">
`, frame.Transform.SVG(), options.Width, options.Height, frame.ViewBox)

	for _, l := range snap.Links {
		fmt.Fprintf(&buf, `<line x1="%g" y1="%g" x2="%g" y2="%g" stroke="%s" stroke-width="%g"/>
`, l.X1, l.Y1, l.X2, l.Y2, palette.EdgeColor, options.EdgeWidth)
	}

	for i, n := range snap.Nodes {
		if options.Quality == "high" {
			fmt.Fprintf(&buf, `<circle cx="%g" cy="%g" r="%g" fill="rgba(0,0,0,0.1)" transform="translate(2,2)"/>
`, n.X, n.Y, options.NodeSize)
		}
		fmt.Fprintf(&buf, `<circle id="node-%s" cx="%g" cy="%g" r="%g" fill="%s" stroke="rgba(0,0,0,0.3)" stroke-width="0.5"/>
`, html.EscapeString(n.ID), n.X, n.Y, options.NodeSize, palette.NodeColor(i))

		if options.ShowLabels && n.Name != "" {
			fmt.Fprintf(&buf, `<text x="%g" y="%g" font-family="sans-serif" font-size="%g" fill="%s" text-anchor="middle">%s</text>
`, n.X, n.Y+options.NodeSize+options.FontSize, options.FontSize, palette.LabelColor, html.EscapeString(n.Name))
		}
	}
	buf.WriteString("</svg>\n</g>\n")

	if options.Quality == "high" {
		fmt.Fprintf(&buf, `<text x="5" y="15" font-family="sans-serif" font-size="10" fill="#808080">Nodes: %d | Links: %d | %s</text>
`, len(snap.Nodes), len(snap.Links), snap.State)
	}
	if options.Timestamp {
		fmt.Fprintf(&buf, `<text x="5" y="%g" font-family="sans-serif" font-size="8" fill="#808080">%s</text>
`, options.Height-5, time.Now().Format("2006-01-02 15:04:05"))
	}

	buf.WriteString(`</svg>`)
	return buf.Bytes(), nil
}

// ASCIIRenderer outputs ASCII art format
type ASCIIRenderer struct{}

// Name returns the name of the renderer
func (r *ASCIIRenderer) Name() string {
	return "ASCII Renderer"
}

// Description returns a description of the renderer
func (r *ASCIIRenderer) Description() string {
	return "Renders the layout as ASCII art for terminal output"
}

const (
	nodeSymbol = 'O'
	edgeSymbol = '·'
)

// Render creates an ASCII representation of the frame. Nodes pushed off
// screen by the viewport are not drawn.
func (r *ASCIIRenderer) Render(frame Frame, options *OutputOptions) ([]byte, error) {
	width := max(int(options.Width/10), 40)
	height := max(int(options.Height/20), 20)

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = make([]rune, width)
		for j := range grid[i] {
			grid[i][j] = ' '
		}
	}
	for i := 0; i < width; i++ {
		grid[0][i] = '-'
		grid[height-1][i] = '-'
	}
	for i := 0; i < height; i++ {
		grid[i][0] = '|'
		grid[i][width-1] = '|'
	}
	grid[0][0] = '+'
	grid[0][width-1] = '+'
	grid[height-1][0] = '+'
	grid[height-1][width-1] = '+'

	fit := NewProjector(options.Width, options.Height).Fit(frame.ViewBox, options.Width, options.Height)
	cell := func(x, y float64) (int, int) {
		cx, cy := fit.Project(x, y)
		sx, sy := frame.Transform.Apply(cx, cy)
		col := int(sx*float64(width-2)/options.Width) + 1
		row := int(sy*float64(height-2)/options.Height) + 1
		return col, row
	}

	for _, l := range frame.Snapshot.Links {
		x1, y1 := cell(l.X1, l.Y1)
		x2, y2 := cell(l.X2, l.Y2)
		// Keep far off-screen endpoints from making the walk arbitrarily long.
		x1, x2 = clamp(x1, -width, 2*width), clamp(x2, -width, 2*width)
		y1, y2 = clamp(y1, -height, 2*height), clamp(y2, -height, 2*height)
		drawLine(grid, x1, y1, x2, y2)
	}

	for _, n := range frame.Snapshot.Nodes {
		x, y := cell(n.X, n.Y)
		if x < 1 || x > width-2 || y < 1 || y > height-2 {
			continue
		}
		grid[y][x] = nodeSymbol

		if options.ShowLabels && n.Name != "" && y+1 < height-1 {
			label := []rune(n.Name)
			for i := 0; i < len(label) && x+i < width-1; i++ {
				grid[y+1][x+i] = label[i]
			}
		}
	}

	title := fmt.Sprintf("forcegraph tick %d %s", frame.Snapshot.Tick, frame.Snapshot.State)
	if len(title) < width-4 {
		for i, c := range title {
			grid[1][i+2] = c
		}
	}

	if options.Timestamp && height > 4 {
		timeStr := time.Now().Format("2006-01-02 15:04")
		if len(timeStr) < width-4 {
			for i, c := range timeStr {
				grid[height-2][i+2] = c
			}
		}
	}

	var result strings.Builder
	for _, row := range grid {
		result.WriteString(string(row))
		result.WriteRune('\n')
	}
	return []byte(result.String()), nil
}

// JSONRenderer outputs raw JSON format
type JSONRenderer struct{}

// Name returns the name of the renderer
func (r *JSONRenderer) Name() string {
	return "JSON Renderer"
}

// Description returns a description of the renderer
func (r *JSONRenderer) Description() string {
	return "Renders the frame as JSON with layout and screen coordinates"
}

// Render creates a JSON representation of the frame.
func (r *JSONRenderer) Render(frame Frame, options *OutputOptions) ([]byte, error) {
	type jsonNode struct {
		ID      string  `json:"id"`
		Name    string  `json:"name"`
		X       float64 `json:"x"`
		Y       float64 `json:"y"`
		ScreenX float64 `json:"screen_x"`
		ScreenY float64 `json:"screen_y"`
	}

	type jsonGraph struct {
		Tick      uint64                 `json:"tick"`
		Alpha     float64                `json:"alpha"`
		State     physics.State          `json:"state"`
		ViewBox   ViewBox                `json:"view_box"`
		Transform viewport.Transform     `json:"transform"`
		Nodes     []jsonNode             `json:"nodes"`
		Links     []physics.LinkPosition `json:"links"`
		Metadata  map[string]any         `json:"metadata"`
	}

	snap := frame.Snapshot
	fit := NewProjector(options.Width, options.Height).Fit(frame.ViewBox, options.Width, options.Height)
	out := jsonGraph{
		Tick:      snap.Tick,
		Alpha:     snap.Alpha,
		State:     snap.State,
		ViewBox:   frame.ViewBox,
		Transform: frame.Transform,
		Nodes:     make([]jsonNode, 0, len(snap.Nodes)),
		Links:     snap.Links,
		Metadata: map[string]any{
			"width":      options.Width,
			"height":     options.Height,
			"node_count": len(snap.Nodes),
			"link_count": len(snap.Links),
		},
	}
	if out.Links == nil {
		out.Links = []physics.LinkPosition{}
	}
	if options.Timestamp {
		out.Metadata["timestamp"] = time.Now().Format(time.RFC3339)
	}

	for _, n := range snap.Nodes {
		sx, sy := frame.Transform.Apply(fit.Project(n.X, n.Y))
		out.Nodes = append(out.Nodes, jsonNode{
			ID: n.ID, Name: n.Name, X: n.X, Y: n.Y, ScreenX: sx, ScreenY: sy,
		})
	}

	return json.MarshalIndent(out, "", "  ")
}

// DOTRenderer outputs Graphviz DOT format
type DOTRenderer struct{}

// Name returns the name of the renderer
func (r *DOTRenderer) Name() string {
	return "DOT Renderer"
}

// Description returns a description of the renderer
func (r *DOTRenderer) Description() string {
	return "Renders the layout in Graphviz DOT format with pinned positions"
}

// Render creates a DOT representation. Positions are pinned in points, with
// y flipped since DOT's origin is bottom-left.
func (r *DOTRenderer) Render(frame Frame, options *OutputOptions) ([]byte, error) {
	var buf bytes.Buffer
	palette := PaletteFor(options.ColorScheme)

	buf.WriteString("graph G {\n")
	fmt.Fprintf(&buf, "  graph [bgcolor=\"%s\", size=\"%g,%g\"];\n",
		palette.Background, options.Width/72.0, options.Height/72.0)
	fmt.Fprintf(&buf, "  node [shape=circle, fontname=\"Arial\", fontsize=%g];\n", options.FontSize)

	for i, n := range frame.Snapshot.Nodes {
		label := n.Name
		if label == "" {
			label = n.ID
		}
		fmt.Fprintf(&buf, "  %q [label=%q, color=%q, width=%g, pos=\"%g,%g!\"];\n",
			n.ID, label, palette.NodeColor(i), 2*options.NodeSize/72.0, n.X, -n.Y)
	}
	for _, l := range frame.Snapshot.Links {
		fmt.Fprintf(&buf, "  %q -- %q [color=%q];\n", l.Source, l.Target, palette.EdgeColor)
	}

	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// Clamp a value between lo and hi
func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

// Draw a line on the ASCII grid using Bresenham's algorithm. Only blank
// cells are written, so borders and nodes survive.
func drawLine(grid [][]rune, x1, y1, x2, y2 int) {
	dx := abs(x2 - x1)
	dy := -abs(y2 - y1)
	sx := 1
	if x1 >= x2 {
		sx = -1
	}
	sy := 1
	if y1 >= y2 {
		sy = -1
	}
	err := dx + dy

	for {
		if y1 >= 0 && y1 < len(grid) && x1 >= 0 && x1 < len(grid[y1]) && grid[y1][x1] == ' ' {
			grid[y1][x1] = edgeSymbol
		}

		if x1 == x2 && y1 == y2 {
			break
		}

		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x1 += sx
		}
		if e2 <= dx {
			err += dx
			y1 += sy
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
