// 包 locate：按访问者 IP 估算所在位置，用于没有到访样本时迷雾视图的初始中心
package locate

import (
	"context"
	"fmt"
	"net"
	"strings"

	"factmap/internal/geo"
	"factmap/internal/geocode"
	"factmap/internal/logger"

	"github.com/lionsoul2014/ip2region/binding/golang/xdb"
	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"
)

// Locator：IP 到坐标
type Locator interface {
	Locate(ctx context.Context, ip string) (geo.LatLng, bool)
}

// GeoIP：MaxMind City 库
type GeoIP struct {
	db *geoip2.Reader
}

// OpenGeoIP：打开前先校验库类型，ASN/Country 库没有坐标字段
func OpenGeoIP(path string) (*GeoIP, error) {
	if err := checkCityDB(path); err != nil {
		return nil, err
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &GeoIP{db: db}, nil
}

func checkCityDB(path string) error {
	r, err := maxminddb.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	if !strings.Contains(r.Metadata.DatabaseType, "City") {
		return fmt.Errorf("geoip: %s is a %q database, want City", path, r.Metadata.DatabaseType)
	}
	return nil
}

func (g *GeoIP) Close() error { return g.db.Close() }

func (g *GeoIP) Locate(ctx context.Context, ip string) (geo.LatLng, bool) {
	addr := net.ParseIP(strings.TrimSpace(ip))
	if addr == nil {
		return geo.LatLng{}, false
	}
	rec, err := g.db.City(addr)
	if err != nil {
		logger.L().Debug("geoip_lookup_error", "ip", ip, "err", err)
		return geo.LatLng{}, false
	}
	p := geo.LatLng{Lat: rec.Location.Latitude, Lng: rec.Location.Longitude}
	if p == (geo.LatLng{}) || !p.Valid() {
		return geo.LatLng{}, false
	}
	return p, true
}

// Searcher：ip2region 查询能力（xdb.Searcher 满足）
type Searcher interface {
	SearchByStr(ip string) (string, error)
}

// Geocoder：行政区名称到坐标
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geocode.Lookup, error)
}

// 文档注释：ip2region 行政区 + 地理编码
// 背景：ip2region 只给出国家/省/市名称，再经地理编码得到坐标。
type IP2Region struct {
	s  Searcher
	gc Geocoder
}

func OpenIP2Region(path string, gc Geocoder) (*IP2Region, error) {
	s, err := xdb.NewWithFileOnly(xdb.IPv4, path)
	if err != nil {
		return nil, err
	}
	return &IP2Region{s: s, gc: gc}, nil
}

func NewIP2Region(s Searcher, gc Geocoder) *IP2Region { return &IP2Region{s: s, gc: gc} }

// RegionAddress：把 "国家|区域|省份|城市|ISP" 转为地理编码查询文本（由细到粗）
func RegionAddress(region string) string {
	parts := strings.Split(region, "|")
	var keep []string
	for _, i := range []int{3, 2, 0} {
		if i < len(parts) {
			if v := clean(parts[i]); v != "" && !contains(keep, v) {
				keep = append(keep, v)
			}
		}
	}
	return strings.Join(keep, ", ")
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	if s == "0" || strings.EqualFold(s, "unknown") || s == "内网IP" {
		return ""
	}
	return s
}

func (r *IP2Region) Locate(ctx context.Context, ip string) (geo.LatLng, bool) {
	if net.ParseIP(strings.TrimSpace(ip)) == nil {
		return geo.LatLng{}, false
	}
	region, err := r.s.SearchByStr(strings.TrimSpace(ip))
	if err != nil || region == "" {
		return geo.LatLng{}, false
	}
	addr := RegionAddress(region)
	if addr == "" || r.gc == nil {
		return geo.LatLng{}, false
	}
	lk, err := r.gc.Geocode(ctx, addr)
	if err != nil || lk.Status != geocode.StatusOK {
		return geo.LatLng{}, false
	}
	return lk.Location, true
}

// Chain：依次尝试，返回第一个命中
type Chain []Locator

func (c Chain) Locate(ctx context.Context, ip string) (geo.LatLng, bool) {
	for _, l := range c {
		if l == nil {
			continue
		}
		if p, ok := l.Locate(ctx, ip); ok {
			return p, true
		}
	}
	return geo.LatLng{}, false
}
