package render

import (
	"fmt"
	"math"

	"github.com/TFMV/forcegraph/physics"
)

// DefaultPadding is the margin added around the node bounding box.
const DefaultPadding = 50

// ViewBox is the drawable window in layout coordinates.
type ViewBox struct {
	MinX   float64 `json:"min_x"`
	MinY   float64 `json:"min_y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// String formats the box as an SVG viewBox attribute.
func (vb ViewBox) String() string {
	return fmt.Sprintf("%g %g %g %g", vb.MinX, vb.MinY, vb.Width, vb.Height)
}

// Contains reports whether (x, y) lies inside the box, edges included.
func (vb ViewBox) Contains(x, y float64) bool {
	return x >= vb.MinX && x <= vb.MinX+vb.Width &&
		y >= vb.MinY && y <= vb.MinY+vb.Height
}

// Projector derives the window from a snapshot's node positions. With no
// nodes it falls back to a window the size of the canvas at the origin.
type Projector struct {
	Padding       float64
	DefaultWidth  float64
	DefaultHeight float64
}

// NewProjector creates a projector with the default padding.
func NewProjector(width, height float64) Projector {
	return Projector{Padding: DefaultPadding, DefaultWidth: width, DefaultHeight: height}
}

// ViewBox computes the padded bounding box of every node in snap.
// Non-finite positions are ignored.
func (p Projector) ViewBox(snap physics.Snapshot) ViewBox {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, n := range snap.Nodes {
		if !finite(n.X) || !finite(n.Y) {
			continue
		}
		minX = math.Min(minX, n.X)
		minY = math.Min(minY, n.Y)
		maxX = math.Max(maxX, n.X)
		maxY = math.Max(maxY, n.Y)
	}
	if math.IsInf(minX, 1) {
		return ViewBox{Width: p.DefaultWidth, Height: p.DefaultHeight}
	}
	return ViewBox{
		MinX:   minX - p.Padding,
		MinY:   minY - p.Padding,
		Width:  maxX - minX + 2*p.Padding,
		Height: maxY - minY + 2*p.Padding,
	}
}

// Mapping takes layout coordinates to canvas coordinates.
type Mapping struct {
	Scale   float64 `json:"scale"`
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
}

// Project maps a layout point onto the canvas.
func (m Mapping) Project(x, y float64) (float64, float64) {
	return m.OffsetX + m.Scale*x, m.OffsetY + m.Scale*y
}

// Fit scales vb uniformly into a canvas and centers it, the way an SVG
// viewBox with preserveAspectRatio="xMidYMid meet" does.
func (p Projector) Fit(vb ViewBox, width, height float64) Mapping {
	if vb.Width <= 0 || vb.Height <= 0 || width <= 0 || height <= 0 {
		return Mapping{Scale: 1, OffsetX: -vb.MinX, OffsetY: -vb.MinY}
	}
	s := math.Min(width/vb.Width, height/vb.Height)
	return Mapping{
		Scale:   s,
		OffsetX: (width-s*vb.Width)/2 - s*vb.MinX,
		OffsetY: (height-s*vb.Height)/2 - s*vb.MinY,
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
