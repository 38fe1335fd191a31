package engine

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"factmap/internal/geo"
	"factmap/internal/geocode"
	"factmap/internal/mapview"
	"factmap/internal/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGeocoder struct {
	mu    sync.Mutex
	boxes map[string][2]geo.LatLng
	calls map[string]int
	slow  map[string]chan struct{}
}

func newFake() *fakeGeocoder {
	return &fakeGeocoder{
		boxes: map[string][2]geo.LatLng{
			"Huila":     {{Lat: 1, Lng: 2}, {Lat: 3, Lng: 4}},
			"Antioquia": {{Lat: 5, Lng: 6}, {Lat: 7, Lng: 8}},
			"Slow":      {{Lat: 40, Lng: 40}, {Lat: 41, Lng: 41}},
		},
		calls: map[string]int{},
		slow:  map[string]chan struct{}{},
	}
}

func (f *fakeGeocoder) Geocode(ctx context.Context, address string) (geocode.Lookup, error) {
	f.mu.Lock()
	f.calls[address]++
	gate := f.slow[address]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	b, ok := f.boxes[address]
	if !ok {
		return geocode.Lookup{Status: geocode.StatusZeroResults}, nil
	}
	return geocode.Lookup{Status: geocode.StatusOK, SW: b[0], NE: b[1], HasBounds: true}, nil
}

func (f *fakeGeocoder) Nearby(ctx context.Context, at geo.LatLng, radiusM uint) ([]geocode.Place, error) {
	return []geocode.Place{{PlaceID: "p1", Name: "Museo", Location: at}}, nil
}

func (f *fakeGeocoder) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func newEngine(t *testing.T, gc *fakeGeocoder) *Engine {
	t.Helper()
	e, err := New(gc, Options{Width: 800, Height: 600, Base: snapshot.SolidBase{}})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func fact(names ...string) *geo.GeoFact {
	f := &geo.GeoFact{Title: "Coffee", Description: "Coffee production"}
	for _, n := range names {
		f.Regions = append(f.Regions, geo.Region{Name: n, Value: "12%", Color: "#336699"})
	}
	return f
}

func TestNewWithoutGeocoder(t *testing.T) {
	_, err := New(nil, Options{})
	var ce *geo.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, geo.ErrConfiguration)
}

func TestShowDrawsAndFitsUnion(t *testing.T) {
	e := newEngine(t, newFake())
	out, err := e.Show(context.Background(), fact("Huila", "Antioquia"))
	require.NoError(t, err)
	assert.False(t, out.Stale)
	assert.True(t, out.Fitted)
	assert.Len(t, out.Drawn, 2)
	assert.Empty(t, out.Failed)

	assert.Equal(t, geo.LatLng{Lat: 1, Lng: 2}, out.View.SW)
	assert.Equal(t, geo.LatLng{Lat: 7, Lng: 8}, out.View.NE)
	assert.True(t, e.View().Ready())
	// 两个区域各一个多边形与一个文字标记
	assert.Len(t, e.View().Shapes(), 4)
	assert.Equal(t, "Coffee", e.Fact().Title)
}

func TestShowSkipsUnresolvableRegion(t *testing.T) {
	e := newEngine(t, newFake())
	out, err := e.Show(context.Background(), fact("Huila", "Nowhereistan"))
	require.NoError(t, err)
	require.Len(t, out.Failed, 1)
	assert.Equal(t, "Nowhereistan", out.Failed[0].Region.Name)
	assert.ErrorIs(t, out.Failed[0].Err, geo.ErrResolution)
	require.Len(t, out.Drawn, 1)
	assert.Equal(t, "Huila", out.Drawn[0].Region.Name)
	assert.Equal(t, geo.LatLng{Lat: 3, Lng: 4}, out.View.NE)
}

func TestShowAllFailedLeavesViewUntouched(t *testing.T) {
	e := newEngine(t, newFake())
	out, err := e.Show(context.Background(), fact("Nowhereistan"))
	require.NoError(t, err)
	assert.False(t, out.Fitted)
	assert.Empty(t, out.Drawn)
	assert.False(t, e.View().Ready())

	_, err = e.Export(context.Background())
	assert.ErrorIs(t, err, snapshot.ErrNotReady)
}

func TestShowCoordinateRegionSkipsGeocoder(t *testing.T) {
	gc := newFake()
	e := newEngine(t, gc)
	f := &geo.GeoFact{Title: "Peak", Regions: []geo.Region{{
		Value:       "5775 m",
		Color:       "#ff0000",
		Coordinates: &geo.LatLng{Lat: 10.8386, Lng: -73.6869},
	}}}
	out, err := e.Show(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, out.Drawn, 1)
	assert.Equal(t, geo.KindPointRadius, out.Drawn[0].Geometry.Kind)
	assert.InDelta(t, geo.DefaultRadiusMeters, out.Drawn[0].Geometry.RadiusMeters, 1e-9)
	gc.mu.Lock()
	assert.Empty(t, gc.calls)
	gc.mu.Unlock()
}

func TestShowReplacesPreviousFact(t *testing.T) {
	e := newEngine(t, newFake())
	_, err := e.Show(context.Background(), fact("Huila", "Antioquia"))
	require.NoError(t, err)
	out, err := e.Show(context.Background(), fact("Huila"))
	require.NoError(t, err)
	assert.Len(t, out.Drawn, 1)
	assert.Len(t, e.View().Shapes(), 2)
	assert.Equal(t, geo.LatLng{Lat: 1, Lng: 2}, e.State().SW)
}

func TestStaleResultsAreDropped(t *testing.T) {
	gc := newFake()
	gate := make(chan struct{})
	gc.slow["Slow"] = gate
	e := newEngine(t, gc)

	done := make(chan Outcome, 1)
	go func() {
		out, err := e.Show(context.Background(), fact("Slow"))
		assert.NoError(t, err)
		done <- out
	}()
	require.Eventually(t, func() bool { return gc.count("Slow") == 1 }, time.Second, time.Millisecond)

	out, err := e.Show(context.Background(), fact("Huila"))
	require.NoError(t, err)
	assert.Len(t, out.Drawn, 1)

	close(gate)
	old := <-done
	assert.True(t, old.Stale)

	shapes := e.Shapes()
	require.Len(t, shapes, 1)
	assert.Equal(t, "Huila", shapes[0].Region.Name)
	assert.Equal(t, geo.LatLng{Lat: 3, Lng: 4}, e.State().NE)
}

func TestDrawnFollowsInputOrder(t *testing.T) {
	gc := newFake()
	gate := make(chan struct{})
	gc.slow["Slow"] = gate
	e := newEngine(t, gc)

	done := make(chan Outcome, 1)
	go func() {
		out, err := e.Show(context.Background(), fact("Slow", "Huila", "Antioquia"))
		assert.NoError(t, err)
		done <- out
	}()
	// Huila 与 Antioquia 先于 Slow 绘制
	require.Eventually(t, func() bool { return len(e.Shapes()) == 2 }, time.Second, time.Millisecond)
	close(gate)
	out := <-done

	require.Len(t, out.Drawn, 3)
	assert.Equal(t, "Slow", out.Drawn[0].Region.Name)
	assert.Equal(t, "Huila", out.Drawn[1].Region.Name)
	assert.Equal(t, "Antioquia", out.Drawn[2].Region.Name)
}

func TestClickAndReset(t *testing.T) {
	e := newEngine(t, newFake())
	out, err := e.Show(context.Background(), fact("Huila", "Antioquia"))
	require.NoError(t, err)
	full := e.View().Zoom()

	st, ok := e.Click(out.Drawn[1].LabelHandle)
	require.True(t, ok)
	assert.Equal(t, geo.LatLng{Lat: 7, Lng: 8}, st.NE)
	assert.Greater(t, e.View().Zoom(), full)
	hl := 0
	for _, s := range e.Shapes() {
		if s.Highlighted {
			hl++
			assert.Equal(t, "Antioquia", s.Region.Name)
		}
	}
	assert.Equal(t, 1, hl)

	_, ok = e.Reset()
	require.True(t, ok)
	assert.Equal(t, full, e.View().Zoom())
	for _, s := range e.Shapes() {
		assert.False(t, s.Highlighted)
	}
}

func TestExportWithFog(t *testing.T) {
	e := newEngine(t, newFake())
	_, err := e.Export(context.Background())
	require.ErrorIs(t, err, snapshot.ErrNotReady)

	now := time.Now()
	samples := []geo.VisitedSample{
		{Lat: 4.60, Lng: -74.08, Timestamp: now},
		{Lat: 6.24, Lng: -75.58, Timestamp: now.Add(time.Hour)},
	}
	mask := e.ShowFog(samples)
	require.NotNil(t, mask)
	assert.True(t, e.View().Ready())
	assert.Zero(t, mask.Skipped)
	assert.Same(t, mask, e.Fog())

	img, err := e.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 800, 600), img.Bounds())

	e.HideFog()
	assert.Nil(t, e.Fog())
}

func TestShowFogWithoutSamplesCoversWorld(t *testing.T) {
	e := newEngine(t, newFake())
	mask := e.ShowFog(nil)
	require.NotNil(t, mask)
	assert.True(t, e.View().Ready())
	assert.Equal(t, mapview.MinZoom, e.View().Zoom())
	assert.True(t, mask.Opaque())

	img, err := e.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 800, 600), img.Bounds())
}

func TestPlacesAndGeoJSON(t *testing.T) {
	e := newEngine(t, newFake())
	places := e.Places(context.Background(), []geo.VisitedSample{{Lat: 4.6, Lng: -74.08, Timestamp: time.Now()}})
	require.Len(t, places, 1)
	assert.Equal(t, "p1", places[0].PlaceID)

	_, err := e.Show(context.Background(), fact("Huila"))
	require.NoError(t, err)
	fc := e.GeoJSON()
	require.Len(t, fc.Features, 1)
}

func TestCloseIsIdempotent(t *testing.T) {
	e, err := New(newFake(), Options{})
	require.NoError(t, err)
	_, err = e.Show(context.Background(), fact("Huila"))
	require.NoError(t, err)
	e.Close()
	e.Close()
	assert.Empty(t, e.View().Shapes())
	_, err = e.Show(context.Background(), fact("Huila"))
	assert.Error(t, err)
}
