// Package viewport holds the pan/zoom transform applied on top of the
// projected layout. Pan and pinch gestures can run at the same time; both
// fold their per-event deltas into one affine map under one mutex.
package viewport

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrInvalidEvent is returned by Apply for events it cannot interpret.
var ErrInvalidEvent = errors.New("invalid viewport event")

// Limits bounds the zoom scale.
type Limits struct {
	MinScale float64 `json:"min_scale" yaml:"min_scale"`
	MaxScale float64 `json:"max_scale" yaml:"max_scale"`
}

// DefaultLimits returns the 0.5x to 4x zoom range.
func DefaultLimits() Limits {
	return Limits{MinScale: 0.5, MaxScale: 4}
}

// Clamp restricts s to the limits.
func (l Limits) Clamp(s float64) float64 {
	return math.Min(math.Max(s, l.MinScale), l.MaxScale)
}

// State is the live and committed transform. Last* hold the values
// committed at the end of the most recent gesture.
type State struct {
	Scale          float64 `json:"scale"`
	TranslateX     float64 `json:"translate_x"`
	TranslateY     float64 `json:"translate_y"`
	LastScale      float64 `json:"last_scale"`
	LastTranslateX float64 `json:"last_translate_x"`
	LastTranslateY float64 `json:"last_translate_y"`
}

// Viewport tracks gestures against a canvas. Scale is applied about the
// canvas center. It is safe for concurrent use.
type Viewport struct {
	mu     sync.Mutex
	limits Limits
	ox, oy float64
	state  State

	panning  bool
	panDX    float64
	panDY    float64
	pinching bool
}

// New creates an identity viewport for a canvas of the given size.
func New(width, height float64, limits Limits) *Viewport {
	if limits.MinScale <= 0 || limits.MaxScale < limits.MinScale {
		limits = DefaultLimits()
	}
	return &Viewport{
		limits: limits,
		ox:     width / 2,
		oy:     height / 2,
		state:  State{Scale: 1, LastScale: 1},
	}
}

// Limits returns the zoom range.
func (v *Viewport) Limits() Limits {
	return v.limits
}

// State returns a copy of the current state.
func (v *Viewport) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Transform returns the current live map.
func (v *Viewport) Transform() Transform {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.transform()
}

func (v *Viewport) transform() Transform {
	return Transform{
		Scale: v.state.Scale,
		TX:    v.state.TranslateX,
		TY:    v.state.TranslateY,
		OX:    v.ox,
		OY:    v.oy,
	}
}

// Resize moves the origin to the center of a new canvas size. Translations
// are adjusted so nothing on screen moves.
func (v *Viewport) Resize(width, height float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	dx := v.ox - width/2
	dy := v.oy - height/2
	v.state.TranslateX += (1 - v.state.Scale) * dx
	v.state.TranslateY += (1 - v.state.Scale) * dy
	v.state.LastTranslateX += (1 - v.state.LastScale) * dx
	v.state.LastTranslateY += (1 - v.state.LastScale) * dy
	v.ox, v.oy = width/2, height/2
}

// Reset returns to the identity transform and abandons any gesture.
func (v *Viewport) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = State{Scale: 1, LastScale: 1}
	v.panning, v.pinching = false, false
	v.panDX, v.panDY = 0, 0
}

// PanStart begins a drag.
func (v *Viewport) PanStart() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.panning = true
	v.panDX, v.panDY = 0, 0
}

// PanUpdate applies the cumulative drag delta since PanStart. Only the part
// not yet applied is added, so a pinch running at the same time keeps its
// own contribution.
func (v *Viewport) PanUpdate(dx, dy float64) {
	if !finite(dx) || !finite(dy) {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.panning {
		v.panning = true
		v.panDX, v.panDY = 0, 0
	}
	v.state.TranslateX += dx - v.panDX
	v.state.TranslateY += dy - v.panDY
	v.panDX, v.panDY = dx, dy
}

// PanEnd commits the translation.
func (v *Viewport) PanEnd() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.panning = false
	v.panDX, v.panDY = 0, 0
	v.state.LastTranslateX = v.state.TranslateX
	v.state.LastTranslateY = v.state.TranslateY
}

// PinchStart begins a zoom gesture from the committed scale.
func (v *Viewport) PinchStart() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pinching = true
}

// PinchUpdate zooms to LastScale*factor, clamped to the limits, keeping the
// content under the focal point (in canvas coordinates) stationary.
func (v *Viewport) PinchUpdate(factor, focalX, focalY float64) {
	if !finite(factor) || factor <= 0 || !finite(focalX) || !finite(focalY) {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pinching = true
	v.zoomTo(v.limits.Clamp(v.state.LastScale*factor), focalX, focalY)
}

// PinchEnd commits scale and the anchor-adjusted translation.
func (v *Viewport) PinchEnd() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pinching = false
	v.commit()
}

// ZoomAt is a discrete zoom, such as a wheel step, about a focal point.
func (v *Viewport) ZoomAt(factor, focalX, focalY float64) {
	if !finite(factor) || factor <= 0 || !finite(focalX) || !finite(focalY) {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.zoomTo(v.limits.Clamp(v.state.Scale*factor), focalX, focalY)
	if !v.pinching {
		v.state.LastScale = v.state.Scale
	}
	if !v.panning && !v.pinching {
		v.state.LastTranslateX = v.state.TranslateX
		v.state.LastTranslateY = v.state.TranslateY
	}
}

// Gesturing reports whether a pan or pinch is in progress.
func (v *Viewport) Gesturing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.panning || v.pinching
}

// zoomTo sets the scale and solves for the translation that maps the
// content point under f back onto f:
//
//	T' = (f - o) - ratio*(f - o - T), ratio = s'/s
func (v *Viewport) zoomTo(scale, fx, fy float64) {
	ratio := scale / v.state.Scale
	rx := fx - v.ox
	ry := fy - v.oy
	v.state.TranslateX = rx - ratio*(rx-v.state.TranslateX)
	v.state.TranslateY = ry - ratio*(ry-v.state.TranslateY)
	v.state.Scale = scale
}

func (v *Viewport) commit() {
	v.state.LastScale = v.state.Scale
	v.state.LastTranslateX = v.state.TranslateX
	v.state.LastTranslateY = v.state.TranslateY
}

// EventKind names a gesture event.
type EventKind string

const (
	PanStartEvent   EventKind = "pan_start"
	PanEvent        EventKind = "pan"
	PanEndEvent     EventKind = "pan_end"
	PinchStartEvent EventKind = "pinch_start"
	PinchEvent      EventKind = "pinch"
	PinchEndEvent   EventKind = "pinch_end"
	ZoomEvent       EventKind = "zoom"
	ResetEvent      EventKind = "reset"
)

// Event is a serialized gesture event.
type Event struct {
	Kind   EventKind `json:"type"`
	DX     float64   `json:"dx,omitempty"`
	DY     float64   `json:"dy,omitempty"`
	Factor float64   `json:"factor,omitempty"`
	FocalX float64   `json:"focal_x,omitempty"`
	FocalY float64   `json:"focal_y,omitempty"`
}

// Apply dispatches an event to the matching gesture method.
func (v *Viewport) Apply(e Event) error {
	switch e.Kind {
	case PanStartEvent:
		v.PanStart()
	case PanEvent:
		v.PanUpdate(e.DX, e.DY)
	case PanEndEvent:
		v.PanEnd()
	case PinchStartEvent:
		v.PinchStart()
	case PinchEvent:
		if e.Factor <= 0 {
			return fmt.Errorf("%w: pinch factor %v", ErrInvalidEvent, e.Factor)
		}
		v.PinchUpdate(e.Factor, e.FocalX, e.FocalY)
	case PinchEndEvent:
		v.PinchEnd()
	case ZoomEvent:
		if e.Factor <= 0 {
			return fmt.Errorf("%w: zoom factor %v", ErrInvalidEvent, e.Factor)
		}
		v.ZoomAt(e.Factor, e.FocalX, e.FocalY)
	case ResetEvent:
		v.Reset()
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Kind)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
