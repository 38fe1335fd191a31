package amap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"factmap/internal/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRectangle(t *testing.T) {
	a, b, err := ParseRectangle("116.0119343,39.66127144;116.7829835,40.2164962")
	require.NoError(t, err)
	assert.Equal(t, geo.LatLng{Lat: 39.66127144, Lng: 116.0119343}, a)
	assert.Equal(t, geo.LatLng{Lat: 40.2164962, Lng: 116.7829835}, b)

	for _, bad := range []string{"", "1,2", "a,b;c,d", "1,2;3"} {
		_, _, err := ParseRectangle(bad)
		assert.ErrorIs(t, err, ErrNoRectangle, bad)
	}
}

func TestLocate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/ip", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		switch r.URL.Query().Get("ip") {
		case "114.247.50.2":
			_, _ = w.Write([]byte(`{"status":"1","info":"OK","infocode":"10000","province":"北京市","city":"北京市","adcode":"110000","rectangle":"116.0,39.6;117.0,40.2"}`))
		case "8.8.8.8":
			_, _ = w.Write([]byte(`{"status":"1","info":"OK","infocode":"10000","province":[],"city":[],"adcode":[],"rectangle":[]}`))
		default:
			_, _ = w.Write([]byte(`{"status":"0","info":"INVALID_USER_KEY","infocode":"10001"}`))
		}
	}))
	defer srv.Close()

	c := New("k")
	c.BaseURL = srv.URL
	p, ok := c.Locate(context.Background(), "114.247.50.2")
	require.True(t, ok)
	assert.InDelta(t, 39.9, p.Lat, 1e-9)
	assert.InDelta(t, 116.5, p.Lng, 1e-9)

	_, ok = c.Locate(context.Background(), "8.8.8.8")
	assert.False(t, ok)

	_, err := c.QueryIP(context.Background(), "1.1.1.1")
	assert.ErrorContains(t, err, "INVALID_USER_KEY")

	_, ok = New("").Locate(context.Background(), "114.247.50.2")
	assert.False(t, ok)
}
