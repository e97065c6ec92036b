package viewport

import "fmt"

// Transform is an immutable copy of the viewport map
//
//	screen = O + T + Scale*(p - O)
//
// where O is the canvas center and T the translation.
type Transform struct {
	Scale float64 `json:"scale"`
	TX    float64 `json:"tx"`
	TY    float64 `json:"ty"`
	OX    float64 `json:"ox"`
	OY    float64 `json:"oy"`
}

// Identity returns the identity transform about (ox, oy).
func Identity(ox, oy float64) Transform {
	return Transform{Scale: 1, OX: ox, OY: oy}
}

// Apply maps a canvas point to the screen.
func (t Transform) Apply(x, y float64) (float64, float64) {
	return t.OX + t.TX + t.Scale*(x-t.OX), t.OY + t.TY + t.Scale*(y-t.OY)
}

// Invert maps a screen point back to the canvas.
func (t Transform) Invert(x, y float64) (float64, float64) {
	if t.Scale == 0 {
		return x, y
	}
	return t.OX + (x-t.OX-t.TX)/t.Scale, t.OY + (y-t.OY-t.TY)/t.Scale
}

// IsIdentity reports whether the transform leaves points in place.
func (t Transform) IsIdentity() bool {
	return t.Scale == 1 && t.TX == 0 && t.TY == 0
}

// Matrix returns the affine coefficients a, b, c, d, e, f in SVG order.
func (t Transform) Matrix() [6]float64 {
	return [6]float64{
		t.Scale, 0, 0, t.Scale,
		t.OX + t.TX - t.Scale*t.OX,
		t.OY + t.TY - t.Scale*t.OY,
	}
}

// SVG renders the transform as an SVG transform attribute value.
func (t Transform) SVG() string {
	m := t.Matrix()
	return fmt.Sprintf("matrix(%g %g %g %g %g %g)", m[0], m[1], m[2], m[3], m[4], m[5])
}
