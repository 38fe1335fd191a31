package mapview

import (
	"math"
	"testing"

	"factmap/internal/geo"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectRoundTrip(t *testing.T) {
	for _, p := range []geo.LatLng{{Lat: 0, Lng: 0}, {Lat: 45.5, Lng: -73.6}, {Lat: -33.9, Lng: 151.2}} {
		q := Unproject(Project(p))
		assert.InDelta(t, p.Lat, q.Lat, 1e-9)
		assert.InDelta(t, p.Lng, q.Lng, 1e-9)
	}
	assert.Equal(t, orb.Point{128, 128}, Project(geo.LatLng{}))
	// 极点截断
	assert.False(t, math.IsInf(Project(geo.LatLng{Lat: 90})[1], 0))
}

func TestFitBoundsContainsBox(t *testing.T) {
	m := New(800, 600)
	assert.False(t, m.Ready())
	_, ok := m.Bounds()
	assert.False(t, ok)

	b := geo.NewBounds(geo.LatLng{Lat: 1, Lng: 2}, geo.LatLng{Lat: 7, Lng: 8})
	m.FitBounds(b)
	require.True(t, m.Ready())
	vis, ok := m.Bounds()
	require.True(t, ok)
	assert.True(t, geo.Contains(vis, b))
	// 再放大一级就装不下
	z := m.Zoom()
	m.SetZoom(z + 1)
	vis, _ = m.Bounds()
	assert.False(t, geo.Contains(vis, b))
}

func TestFitBoundsPointUsesMaxZoom(t *testing.T) {
	m := New(100, 100)
	m.FitBounds(geo.PointBounds(geo.LatLng{Lat: 10, Lng: 20}))
	assert.Equal(t, MaxZoom, m.Zoom())
	c := m.Center()
	assert.InDelta(t, 10, c.Lat, 1e-9)
}

func TestEventsAndUnsubscribe(t *testing.T) {
	m := New(256, 256)
	var zooms []float64
	var bounds int
	stop := m.On(EventZoomChanged, func(ev Event) { zooms = append(zooms, ev.Zoom) })
	m.On(EventBoundsChanged, func(Event) { bounds++ })

	m.SetView(geo.LatLng{}, 5)
	m.SetZoom(5)
	m.SetZoom(1)
	assert.Equal(t, []float64{5, MinZoom}, zooms)
	assert.Equal(t, 2, bounds)

	stop()
	m.SetZoom(8)
	assert.Len(t, zooms, 2)
}

func TestShapesLifecycle(t *testing.T) {
	m := New(256, 256)
	st := Style{StrokeColor: "#7F5539", FillOpacity: 0.35}
	p := m.AddPolygon([]geo.LatLng{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}, st)
	c := m.AddCircle(geo.LatLng{Lat: 1, Lng: 1}, 50000, st)
	mk := m.AddMarker(geo.LatLng{Lat: 1, Lng: 1}, "x")
	require.Len(t, m.Shapes(), 3)

	var clicked []Handle
	m.On(EventClick, func(ev Event) { clicked = append(clicked, ev.Handle) })
	require.NoError(t, m.Click(c))
	assert.Equal(t, []Handle{c}, clicked)

	require.NoError(t, m.SetStyle(p, Style{FillOpacity: 0.6}))
	s, _ := m.Shape(p)
	assert.Equal(t, 0.6, s.Style.FillOpacity)

	mks, _ := m.Shape(mk)
	assert.Equal(t, 0.0, mks.IconScale)

	assert.True(t, m.Remove(p))
	assert.False(t, m.Remove(p))
	assert.ErrorIs(t, m.Click(p), ErrUnknownShape)
	assert.ErrorIs(t, m.SetStyle(p, st), ErrUnknownShape)
	assert.Len(t, m.Shapes(), 2)
}

func TestPixelCenter(t *testing.T) {
	m := New(200, 100)
	m.SetView(geo.LatLng{Lat: 10, Lng: 20}, 6)
	x, y, ok := m.Pixel(geo.LatLng{Lat: 10, Lng: 20})
	require.True(t, ok)
	assert.InDelta(t, 100, x, 1e-9)
	assert.InDelta(t, 50, y, 1e-9)
}
