package viewport

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func TestNewViewportIsIdentity(t *testing.T) {
	v := New(800, 600, DefaultLimits())
	tr := v.Transform()
	assert.True(t, tr.IsIdentity())
	assert.Equal(t, 400.0, tr.OX)
	assert.Equal(t, 300.0, tr.OY)

	x, y := tr.Apply(123, 45)
	assert.Equal(t, 123.0, x)
	assert.Equal(t, 45.0, y)
}

func TestInvalidLimitsFallBackToDefaults(t *testing.T) {
	v := New(100, 100, Limits{MinScale: 3, MaxScale: 1})
	assert.Equal(t, DefaultLimits(), v.Limits())
}

func TestPanIsCumulativeDelta(t *testing.T) {
	v := New(800, 600, DefaultLimits())
	v.PanStart()
	v.PanUpdate(10, 5)
	v.PanUpdate(30, -20)
	st := v.State()
	assert.Equal(t, 30.0, st.TranslateX)
	assert.Equal(t, -20.0, st.TranslateY)
	assert.Zero(t, st.LastTranslateX, "not committed before end")
	v.PanEnd()

	v.PanStart()
	v.PanUpdate(5, 5)
	v.PanEnd()
	st = v.State()
	assert.Equal(t, 35.0, st.LastTranslateX)
	assert.Equal(t, -15.0, st.LastTranslateY)
	assert.False(t, v.Gesturing())
}

func TestPinchScaleIsClamped(t *testing.T) {
	tests := []struct {
		name    string
		factors []float64
		want    float64
	}{
		{"within range", []float64{2}, 2},
		{"above max", []float64{10}, 4},
		{"below min", []float64{0.1}, 0.5},
		{"repeated gestures saturate", []float64{3, 3, 3}, 4},
		{"zoom out after max", []float64{10, 0.5}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(800, 600, DefaultLimits())
			for _, f := range tt.factors {
				v.PinchStart()
				v.PinchUpdate(f, 400, 300)
				v.PinchEnd()
			}
			st := v.State()
			assert.InDelta(t, tt.want, st.Scale, eps)
			assert.InDelta(t, tt.want, st.LastScale, eps)
		})
	}
}

func TestPinchUsesLastScaleNotCompounding(t *testing.T) {
	v := New(800, 600, DefaultLimits())
	v.PinchStart()
	v.PinchUpdate(1.5, 400, 300)
	v.PinchUpdate(2, 400, 300)
	assert.InDelta(t, 2.0, v.State().Scale, eps)
}

func TestPinchKeepsFocalPointStationary(t *testing.T) {
	v := New(800, 600, DefaultLimits())
	v.PanStart()
	v.PanUpdate(-120, 40)
	v.PanEnd()

	fx, fy := 610.0, 75.0
	before := v.Transform()
	px, py := before.Invert(fx, fy)

	v.PinchStart()
	for _, f := range []float64{1.1, 1.7, 2.9, 8, 0.3} {
		v.PinchUpdate(f, fx, fy)
		sx, sy := v.Transform().Apply(px, py)
		assert.InDelta(t, fx, sx, 1e-6, "factor %v", f)
		assert.InDelta(t, fy, sy, 1e-6, "factor %v", f)
	}
	v.PinchEnd()
}

func TestPinchAnchoringProperty(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	v := New(1024, 768, DefaultLimits())
	for i := 0; i < 500; i++ {
		fx, fy := r.Float64()*1024, r.Float64()*768
		px, py := v.Transform().Invert(fx, fy)

		v.PinchStart()
		v.PinchUpdate(0.25+r.Float64()*3, fx, fy)
		tr := v.Transform()
		v.PinchEnd()

		require.GreaterOrEqual(t, tr.Scale, 0.5)
		require.LessOrEqual(t, tr.Scale, 4.0)
		sx, sy := tr.Apply(px, py)
		require.InDelta(t, fx, sx, 1e-6)
		require.InDelta(t, fy, sy, 1e-6)
	}
}

func TestSimultaneousPanAndPinch(t *testing.T) {
	v := New(800, 600, DefaultLimits())
	v.PanStart()
	v.PinchStart()

	v.PanUpdate(20, 0)
	v.PinchUpdate(2, 400, 300)
	v.PanUpdate(50, 10)

	st := v.State()
	assert.InDelta(t, 2.0, st.Scale, eps)
	// 20 of pan scaled by the pinch about the center, then 30 more pan.
	assert.InDelta(t, 70.0, st.TranslateX, eps)
	assert.InDelta(t, 10.0, st.TranslateY, eps)

	v.PinchEnd()
	st = v.State()
	assert.InDelta(t, 2.0, st.LastScale, eps)
	assert.InDelta(t, 70.0, st.LastTranslateX, eps)
	assert.True(t, v.Gesturing())

	v.PanUpdate(60, 10)
	v.PanEnd()
	st = v.State()
	assert.InDelta(t, 80.0, st.LastTranslateX, eps)
	assert.False(t, v.Gesturing())
}

func TestZoomAtCommits(t *testing.T) {
	v := New(800, 600, DefaultLimits())
	v.ZoomAt(2, 100, 100)
	v.ZoomAt(2, 100, 100)
	st := v.State()
	assert.InDelta(t, 4.0, st.Scale, eps)
	assert.Equal(t, st.Scale, st.LastScale)
	assert.Equal(t, st.TranslateX, st.LastTranslateX)

	x, y := v.Transform().Apply(100, 100)
	assert.InDelta(t, 100, x, eps)
	assert.InDelta(t, 100, y, eps)
}

func TestResizeKeepsScreenStable(t *testing.T) {
	v := New(800, 600, DefaultLimits())
	v.ZoomAt(2.5, 123, 456)
	v.PanStart()
	v.PanUpdate(-40, 17)
	v.PanEnd()

	before := v.Transform()
	v.Resize(1200, 900)
	after := v.Transform()

	assert.Equal(t, 600.0, after.OX)
	if diff := cmp.Diff(before.Matrix(), after.Matrix(), cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("matrix changed on resize (-before +after):\n%s", diff)
	}
}

func TestResetAndInvalidInput(t *testing.T) {
	v := New(800, 600, DefaultLimits())
	v.ZoomAt(3, 10, 10)
	v.PanStart()
	v.Reset()
	assert.True(t, v.Transform().IsIdentity())
	assert.False(t, v.Gesturing())

	v.PinchUpdate(0, 1, 1)
	v.PinchUpdate(-2, 1, 1)
	v.ZoomAt(0, 1, 1)
	assert.True(t, v.Transform().IsIdentity())
}

func TestApplyEvents(t *testing.T) {
	v := New(800, 600, DefaultLimits())
	events := []Event{
		{Kind: PanStartEvent},
		{Kind: PanEvent, DX: 10, DY: 20},
		{Kind: PanEndEvent},
		{Kind: PinchStartEvent},
		{Kind: PinchEvent, Factor: 2, FocalX: 400, FocalY: 300},
		{Kind: PinchEndEvent},
	}
	for _, e := range events {
		require.NoError(t, v.Apply(e))
	}
	st := v.State()
	assert.InDelta(t, 2.0, st.LastScale, eps)
	assert.InDelta(t, 20.0, st.LastTranslateX, eps)
	assert.InDelta(t, 40.0, st.LastTranslateY, eps)

	assert.ErrorIs(t, v.Apply(Event{Kind: "spin"}), ErrInvalidEvent)
	assert.ErrorIs(t, v.Apply(Event{Kind: PinchEvent}), ErrInvalidEvent)
	assert.ErrorIs(t, v.Apply(Event{Kind: ZoomEvent, Factor: -1}), ErrInvalidEvent)
	require.NoError(t, v.Apply(Event{Kind: ResetEvent}))
	assert.True(t, v.Transform().IsIdentity())
}

func TestTransformRoundTripAndSVG(t *testing.T) {
	tr := Transform{Scale: 2, TX: 10, TY: -5, OX: 400, OY: 300}
	x, y := tr.Apply(100, 50)
	ix, iy := tr.Invert(x, y)
	assert.InDelta(t, 100, ix, eps)
	assert.InDelta(t, 50, iy, eps)

	m := tr.Matrix()
	assert.InDelta(t, x, m[0]*100+m[4], eps)
	assert.InDelta(t, y, m[3]*50+m[5], eps)
	assert.Equal(t, "matrix(2 0 0 2 -390 -305)", tr.SVG())
}

func TestConcurrentGestures(t *testing.T) {
	v := New(800, 600, DefaultLimits())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		v.PanStart()
		for i := 1; i <= 200; i++ {
			v.PanUpdate(float64(i), 0)
		}
		v.PanEnd()
	}()
	go func() {
		defer wg.Done()
		v.PinchStart()
		for i := 1; i <= 200; i++ {
			v.PinchUpdate(1+float64(i)/100, 400, 300)
			_ = v.Transform()
		}
		v.PinchEnd()
	}()
	wg.Wait()

	st := v.State()
	assert.InDelta(t, 3.0, st.Scale, eps)
	assert.False(t, v.Gesturing())
}
