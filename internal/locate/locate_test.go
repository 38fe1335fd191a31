package locate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"factmap/internal/geo"
	"factmap/internal/geocode"

	"github.com/stretchr/testify/assert"
)

type fakeSearcher map[string]string

func (f fakeSearcher) SearchByStr(ip string) (string, error) {
	if r, ok := f[ip]; ok {
		return r, nil
	}
	return "", errors.New("not found")
}

type fakeGeocoder struct{ last string }

func (f *fakeGeocoder) Geocode(ctx context.Context, address string) (geocode.Lookup, error) {
	f.last = address
	if address == "Hangzhou, Zhejiang, China" {
		return geocode.Lookup{Status: geocode.StatusOK, Location: geo.LatLng{Lat: 30.27, Lng: 120.15}}, nil
	}
	return geocode.Lookup{Status: geocode.StatusZeroResults}, nil
}

type fixed struct {
	p  geo.LatLng
	ok bool
}

func (f fixed) Locate(ctx context.Context, ip string) (geo.LatLng, bool) { return f.p, f.ok }

func TestRegionAddress(t *testing.T) {
	assert.Equal(t, "Hangzhou, Zhejiang, China", RegionAddress("China|0|Zhejiang|Hangzhou|ISP"))
	assert.Equal(t, "Singapore", RegionAddress("Singapore|0|Singapore|0|0"))
	assert.Equal(t, "", RegionAddress("0|0|0|内网IP|内网IP"))
}

func TestIP2RegionLocate(t *testing.T) {
	gc := &fakeGeocoder{}
	r := NewIP2Region(fakeSearcher{"1.2.3.4": "China|0|Zhejiang|Hangzhou|ISP"}, gc)
	p, ok := r.Locate(context.Background(), "1.2.3.4")
	assert.True(t, ok)
	assert.Equal(t, 30.27, p.Lat)

	_, ok = r.Locate(context.Background(), "5.6.7.8")
	assert.False(t, ok)
	_, ok = r.Locate(context.Background(), "not-an-ip")
	assert.False(t, ok)
}

func TestChain(t *testing.T) {
	c := Chain{nil, fixed{}, fixed{p: geo.LatLng{Lat: 1, Lng: 2}, ok: true}, fixed{p: geo.LatLng{Lat: 9}, ok: true}}
	p, ok := c.Locate(context.Background(), "1.1.1.1")
	assert.True(t, ok)
	assert.Equal(t, geo.LatLng{Lat: 1, Lng: 2}, p)

	_, ok = Chain{}.Locate(context.Background(), "1.1.1.1")
	assert.False(t, ok)
}

func TestOpenGeoIPRejectsNonDatabase(t *testing.T) {
	p := filepath.Join(t.TempDir(), "city.mmdb")
	assert.NoError(t, os.WriteFile(p, []byte("not a maxmind database"), 0o644))
	_, err := OpenGeoIP(p)
	assert.Error(t, err)

	_, err = OpenGeoIP(filepath.Join(t.TempDir(), "missing.mmdb"))
	assert.Error(t, err)
}
