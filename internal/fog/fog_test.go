package fog

import (
	"bytes"
	"image/png"
	"math"
	"math/rand"
	"sync"
	"testing"

	"factmap/internal/geo"
	"factmap/internal/mapview"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readyMap(w, h int, center geo.LatLng, zoom float64) *mapview.Map {
	m := mapview.New(w, h)
	m.SetView(center, zoom)
	return m
}

func TestRadius(t *testing.T) {
	assert.InDelta(t, 10, Radius(10), 1e-12)
	assert.InDelta(t, 15, Radius(11), 1e-12)
	assert.InDelta(t, 10/1.5, Radius(9), 1e-12)
}

func TestEmptySamplesFullyOpaque(t *testing.T) {
	m := readyMap(320, 200, geo.LatLng{Lat: 4, Lng: -74}, 8)
	mask := NewGenerator().Regenerate(nil, m)
	w, h := mask.Size()
	assert.Equal(t, 320, w)
	assert.Equal(t, 200, h)
	assert.True(t, mask.Opaque())
	assert.Equal(t, uint8(242), mask.Alpha(0, 0))
	assert.Equal(t, FogColor, mask.Image().NRGBAAt(100, 100))
	assert.Zero(t, mask.ClearedFraction())
}

func TestEverySampleCleared(t *testing.T) {
	center := geo.LatLng{Lat: 48.85, Lng: 2.35}
	for _, zoom := range []float64{4, 8, 10, 13} {
		m := readyMap(400, 300, center, zoom)
		b, ok := m.Bounds()
		require.True(t, ok)
		r := rand.New(rand.NewSource(int64(zoom)))
		var samples []geo.VisitedSample
		for i := 0; i < 30; i++ {
			samples = append(samples, geo.VisitedSample{
				Lat: b.Min[1] + r.Float64()*geo.LatSpan(b),
				Lng: b.Min[0] + r.Float64()*geo.LngSpan(b),
			})
		}
		mask := NewGenerator().Regenerate(samples, m)
		for _, s := range samples {
			x, y, ok := m.Pixel(s.LatLng())
			require.True(t, ok)
			px, py := int(math.Floor(x)), int(math.Floor(y))
			if px < 0 || py < 0 || px >= 400 || py >= 300 {
				continue
			}
			assert.True(t, mask.Cleared(px, py), "zoom %v sample %v", zoom, s)
		}
		assert.False(t, mask.Opaque())
	}
}

func TestDiskPositionsMatchViewPixels(t *testing.T) {
	m := readyMap(256, 256, geo.LatLng{Lat: 10, Lng: 20}, 10)
	disks, skipped := NewGenerator().Disks([]geo.VisitedSample{{Lat: 10, Lng: 20}}, m)
	assert.Zero(t, skipped)
	require.Len(t, disks, 25)
	// 中心印章（i=0,j=0）位于第 13 个
	c := disks[12]
	assert.InDelta(t, 128, c.X, 1e-6)
	assert.InDelta(t, 128, c.Y, 1e-6)
	assert.InDelta(t, 10, c.R, 1e-12)
	// 经度 +0.001° 的印章在右侧
	assert.Greater(t, disks[13].X, c.X)
	// 纬度 -0.001° 的印章在下方
	assert.Greater(t, disks[7].Y, c.Y)
}

func TestUnreadyViewSkipsStamps(t *testing.T) {
	m := mapview.New(100, 80)
	mask := NewGenerator().Regenerate([]geo.VisitedSample{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}, m)
	assert.Equal(t, 50, mask.Skipped)
	assert.True(t, mask.Opaque())
	w, h := mask.Size()
	assert.Equal(t, 100, w)
	assert.Equal(t, 80, h)
}

// flaky：对部分点投影失败
type flaky struct {
	*mapview.Map
}

func (f flaky) Project(p geo.LatLng) (orb.Point, bool) {
	if p.Lat > 10.0015 && p.Lat < 10.01 {
		return orb.Point{}, false
	}
	return f.Map.Project(p)
}

func TestPartialProjectionFailure(t *testing.T) {
	m := readyMap(200, 200, geo.LatLng{Lat: 10, Lng: 20}, 12)
	mask := NewGenerator().Regenerate([]geo.VisitedSample{{Lat: 10, Lng: 20}}, flaky{m})
	assert.Equal(t, 5, mask.Skipped)
	assert.Equal(t, 20, mask.Disks)
	assert.True(t, mask.Cleared(100, 100))
}

func TestMaskPNG(t *testing.T) {
	m := readyMap(64, 48, geo.LatLng{}, 5)
	mask := NewGenerator().Regenerate([]geo.VisitedSample{{Lat: 0, Lng: 0}}, m)
	var buf bytes.Buffer
	require.NoError(t, mask.PNG(&buf))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
}

func TestLayerFollowsZoom(t *testing.T) {
	m := readyMap(300, 300, geo.LatLng{Lat: 10, Lng: 20}, 10)
	l := NewLayer(m, nil, false)
	defer l.Close()
	assert.Nil(t, l.Current())

	first := l.SetSamples([]geo.VisitedSample{{Lat: 10, Lng: 20}})
	assert.Same(t, first, l.Current())
	assert.Equal(t, 10.0, first.Zoom)

	m.SetZoom(12)
	cur := l.Current()
	require.NotSame(t, first, cur)
	assert.Equal(t, 12.0, cur.Zoom)
	assert.Greater(t, cur.Seq, first.Seq)
	assert.Greater(t, cur.ClearedFraction(), first.ClearedFraction())

	// 平移不触发（未开启 TrackPan）
	m.SetView(geo.LatLng{Lat: 11, Lng: 20}, 12)
	assert.Same(t, cur, l.Current())

	l.Close()
	m.SetZoom(13)
	assert.Same(t, cur, l.Current())
}

func TestLayerTrackPan(t *testing.T) {
	m := readyMap(300, 300, geo.LatLng{Lat: 10, Lng: 20}, 10)
	l := NewLayer(m, nil, true)
	defer l.Close()
	l.SetSamples([]geo.VisitedSample{{Lat: 10, Lng: 20}})
	before := l.Current()
	m.SetView(geo.LatLng{Lat: 10.01, Lng: 20}, 10)
	assert.NotSame(t, before, l.Current())
}

func TestLayerConcurrentRefreshLastWins(t *testing.T) {
	m := readyMap(120, 120, geo.LatLng{}, 6)
	l := NewLayer(m, nil, false)
	defer l.Close()
	l.SetSamples([]geo.VisitedSample{{Lat: 0, Lng: 0}})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Refresh()
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 17, l.Current().Seq)
}

func TestLayerFiltersFarSamples(t *testing.T) {
	m := readyMap(200, 200, geo.LatLng{Lat: 10, Lng: 20}, 10)
	l := NewLayer(m, nil, false)
	defer l.Close()
	mask := l.SetSamples([]geo.VisitedSample{{Lat: 10, Lng: 20}, {Lat: -40, Lng: 100}})
	assert.Equal(t, 25, mask.Disks)
}
