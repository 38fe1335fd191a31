package viewport

import (
	"math/rand"
	"testing"

	"factmap/internal/geo"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeView struct {
	fitted  []orb.Bound
	zoom    float64
	autoFit float64
}

func (f *fakeView) FitBounds(b orb.Bound) { f.fitted = append(f.fitted, b); f.zoom = f.autoFit }
func (f *fakeView) Zoom() float64 { return f.zoom }
func (f *fakeView) SetZoom(z float64) { f.zoom = z }

func TestPaddingFractionClamp(t *testing.T) {
	assert.Equal(t, 0.3, PaddingFraction(1, 2))
	assert.Equal(t, 0.1, PaddingFraction(20, 5))
	assert.InDelta(t, 0.2, PaddingFraction(5, 1), 1e-12)
	assert.Equal(t, 0.1, PaddingFraction(0, 0))
}

func TestPaddingMonotone(t *testing.T) {
	prev := PaddingFraction(0.001, 0)
	for s := 0.01; s < 400; s *= 1.3 {
		p := PaddingFraction(s, s/2)
		assert.LessOrEqual(t, p, prev)
		assert.GreaterOrEqual(t, p, MinPadding)
		assert.LessOrEqual(t, p, MaxPadding)
		prev = p
	}
}

func TestOptimalZoomMonotoneAndBounded(t *testing.T) {
	prev := OptimalZoom(0.0001, 0)
	assert.Equal(t, float64(MaxZoom), prev)
	for s := 0.001; s <= 360; s *= 1.17 {
		z := OptimalZoom(s, 0)
		assert.LessOrEqual(t, z, prev)
		assert.GreaterOrEqual(t, z, float64(MinZoom))
		assert.LessOrEqual(t, z, float64(MaxZoom))
		prev = z
	}
	// log2(360/6)=5.9 → 5+1
	assert.Equal(t, 6.0, OptimalZoom(6, 6))
	assert.Equal(t, 4.0, OptimalZoom(180, 10))
	assert.Equal(t, 10.0, OptimalZoom(0, 0))
}

func TestPadContainsInput(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		sw := geo.LatLng{Lat: r.Float64()*120 - 60, Lng: r.Float64()*300 - 150}
		ne := geo.LatLng{Lat: sw.Lat + r.Float64()*20 + 1e-6, Lng: sw.Lng + r.Float64()*20}
		b := geo.NewBounds(sw, ne)
		p := Pad(b)
		require.True(t, geo.Contains(p, b))
		frac := (b.Min[1] - p.Min[1]) / geo.LatSpan(b)
		assert.InDelta(t, PaddingFraction(geo.LatSpan(b), geo.LngSpan(b)), frac, 1e-6)
	}
}

func TestPadDegeneratePoint(t *testing.T) {
	b := geo.PointBounds(geo.LatLng{Lat: 10, Lng: 20})
	p := Pad(b)
	assert.InDelta(t, 0.001, 10-p.Min[1], 1e-12)
	assert.InDelta(t, 0.001, p.Max[0]-20, 1e-12)
	assert.True(t, geo.Contains(p, b))
}

func TestFitCapsZoom(t *testing.T) {
	b := geo.NewBounds(geo.LatLng{Lat: 1, Lng: 2}, geo.LatLng{Lat: 7, Lng: 8})
	v := &fakeView{autoFit: 9}
	padded, z := Fit(v, b)
	require.Len(t, v.fitted, 1)
	assert.Equal(t, padded, v.fitted[0])
	assert.Equal(t, 6.0, z)

	v = &fakeView{autoFit: 3}
	_, z = Fit(v, b)
	assert.Equal(t, 3.0, z)
}

func TestNewState(t *testing.T) {
	b := geo.NewBounds(geo.LatLng{Lat: 1, Lng: 2}, geo.LatLng{Lat: 7, Lng: 8})
	s := NewState(b, 6)
	assert.Equal(t, geo.LatLng{Lat: 4, Lng: 5}, s.Center)
	assert.Equal(t, geo.LatLng{Lat: 7, Lng: 8}, s.NE)
}
