// 包 geocode：地图服务商的地理编码与周边检索封装，带进程内与 Redis 两级响应缓存
package geocode

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"factmap/internal/config"
	"factmap/internal/geo"
	"factmap/internal/logger"
	"factmap/internal/metrics"

	"github.com/paulmach/orb"
	"github.com/redis/go-redis/v9"
	"googlemaps.github.io/maps"
)

// Status：地理编码状态（与服务商状态码对齐）
type Status string

const (
	StatusOK          Status = "OK"
	StatusZeroResults Status = "ZERO_RESULTS"
	StatusError       Status = "ERROR"
)

const (
	DefaultNearbyRadius = 1000
	placeTypePOI        = maps.PlaceType("point_of_interest")
)

// 文档注释：一次地理编码结果（取首个结果）
// 约束：HasBounds 为 false 时仅 Location 有意义；NE/SW 来自 viewport，缺失时取 bounds。
type Lookup struct {
	Status           Status     `json:"status"`
	FormattedAddress string     `json:"formatted_address,omitempty"`
	Location         geo.LatLng `json:"location"`
	NE               geo.LatLng `json:"ne"`
	SW               geo.LatLng `json:"sw"`
	HasBounds        bool       `json:"has_bounds"`
}

// Bounds：结果包围盒；无范围时退化为定位点
func (l Lookup) Bounds() orb.Bound {
	if !l.HasBounds {
		return geo.PointBounds(l.Location)
	}
	return geo.NewBounds(l.SW, l.NE)
}

// Place：周边兴趣点
type Place struct {
	PlaceID  string     `json:"place_id"`
	Name     string     `json:"name"`
	Location geo.LatLng `json:"location"`
	Types    []string   `json:"types,omitempty"`
	Vicinity string     `json:"vicinity,omitempty"`
}

// Options：客户端构造参数
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	CacheSize  int
	CacheTTL   time.Duration
	Timeout    time.Duration
	Redis      *redis.Client
}

// OptionsFromConfig：由运行配置组装
func OptionsFromConfig(c config.Config, rc *redis.Client) Options {
	return Options{
		APIKey:    c.MapsAPIKey,
		BaseURL:   c.MapsBaseURL,
		CacheSize: c.GeocodeCacheSize,
		CacheTTL:  c.GeocodeCacheTTL,
		Timeout:   c.GeocodeTimeout,
		Redis:     rc,
	}
}

// Client：地理编码客户端
type Client struct {
	mc      *maps.Client
	lru     *LRU
	l2      *RedisCache
	timeout time.Duration
}

// 文档注释：创建客户端
// 返回：缺少 APIKey 时返回 *geo.ConfigurationError，组件应进入静态错误状态。
func New(o Options) (*Client, error) {
	if strings.TrimSpace(o.APIKey) == "" {
		return nil, &geo.ConfigurationError{Key: config.KeyMapsAPIKey}
	}
	opts := []maps.ClientOption{maps.WithAPIKey(o.APIKey)}
	if o.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(o.BaseURL))
	}
	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	opts = append(opts, maps.WithHTTPClient(hc))
	mc, err := maps.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	ttl := o.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Client{mc: mc, lru: NewLRU(o.CacheSize, ttl), timeout: o.Timeout}
	if o.Redis != nil {
		c.l2 = NewRedisCache(o.Redis, ttl)
	}
	return c, nil
}

// NormalizeAddress：缓存键归一化
func NormalizeAddress(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func isZeroResults(err error) bool {
	return err != nil && strings.Contains(err.Error(), string(StatusZeroResults))
}

func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// 文档注释：按地名地理编码
// 背景：仅使用首个结果；优先 viewport，缺失时使用 bounds。
// 返回：零结果为 (StatusZeroResults, nil)；上游错误为 (StatusError, err)；仅缓存成功结果。
func (c *Client) Geocode(ctx context.Context, address string) (Lookup, error) {
	key := NormalizeAddress(address)
	if key == "" {
		return Lookup{Status: StatusZeroResults}, nil
	}
	if v, ok := c.lru.Get(key); ok {
		metrics.GeocodeCacheHitsTotal.WithLabelValues("lru").Inc()
		return v, nil
	}
	if c.l2 != nil {
		if v, ok := c.l2.Get(ctx, key); ok {
			metrics.GeocodeCacheHitsTotal.WithLabelValues("redis").Inc()
			c.lru.Set(key, v)
			return v, nil
		}
	}

	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	t0 := time.Now()
	metrics.GeocodeRequestsTotal.WithLabelValues("geocode").Inc()
	logger.L().Debug("geocode_req", "address", address)
	results, err := c.mc.Geocode(cctx, &maps.GeocodingRequest{Address: address})
	dur := time.Since(t0).Milliseconds()
	metrics.GeocodeDurationMs.WithLabelValues("geocode").Observe(float64(dur))
	if err != nil && !isZeroResults(err) {
		metrics.GeocodeFailTotal.WithLabelValues("geocode").Inc()
		logger.L().Error("geocode_http_error", "address", address, "err", err, "duration_ms", dur)
		return Lookup{Status: StatusError}, err
	}
	if len(results) == 0 {
		metrics.GeocodeFailTotal.WithLabelValues("geocode").Inc()
		logger.L().Debug("geocode_zero_results", "address", address, "duration_ms", dur)
		return Lookup{Status: StatusZeroResults}, nil
	}
	out := fromResult(results[0])
	metrics.GeocodeSuccessTotal.WithLabelValues("geocode").Inc()
	logger.L().Debug("geocode_resp", "address", address, "formatted", out.FormattedAddress, "has_bounds", out.HasBounds, "duration_ms", dur)
	c.lru.Set(key, out)
	if c.l2 != nil {
		c.l2.Set(ctx, key, out)
	}
	return out, nil
}

func fromResult(r maps.GeocodingResult) Lookup {
	out := Lookup{
		Status:           StatusOK,
		FormattedAddress: r.FormattedAddress,
		Location:         geo.LatLng{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
	}
	b := r.Geometry.Viewport
	if isZeroBounds(b) {
		b = r.Geometry.Bounds
	}
	if !isZeroBounds(b) {
		out.HasBounds = true
		out.NE = geo.LatLng{Lat: b.NorthEast.Lat, Lng: b.NorthEast.Lng}
		out.SW = geo.LatLng{Lat: b.SouthWest.Lat, Lng: b.SouthWest.Lng}
	}
	return out
}

func isZeroBounds(b maps.LatLngBounds) bool {
	return b.NorthEast == (maps.LatLng{}) && b.SouthWest == (maps.LatLng{})
}

var ErrNoLocation = errors.New("nearby search needs a valid location")

// 文档注释：周边兴趣点检索
// 背景：类型固定为 point_of_interest；radiusM 为 0 时使用 1000 米。
// 返回：零结果返回空切片与 nil；上游错误原样返回，由批处理方跳过。
func (c *Client) Nearby(ctx context.Context, at geo.LatLng, radiusM uint) ([]Place, error) {
	if !at.Valid() {
		return nil, ErrNoLocation
	}
	if radiusM == 0 {
		radiusM = DefaultNearbyRadius
	}
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	t0 := time.Now()
	metrics.GeocodeRequestsTotal.WithLabelValues("nearby").Inc()
	resp, err := c.mc.NearbySearch(cctx, &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: at.Lat, Lng: at.Lng},
		Radius:   radiusM,
		Type:     placeTypePOI,
	})
	dur := time.Since(t0).Milliseconds()
	metrics.GeocodeDurationMs.WithLabelValues("nearby").Observe(float64(dur))
	if err != nil {
		if isZeroResults(err) {
			return []Place{}, nil
		}
		metrics.GeocodeFailTotal.WithLabelValues("nearby").Inc()
		logger.L().Error("nearby_http_error", "lat", at.Lat, "lng", at.Lng, "err", err)
		return nil, err
	}
	out := make([]Place, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, Place{
			PlaceID:  r.PlaceID,
			Name:     r.Name,
			Location: geo.LatLng{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
			Types:    r.Types,
			Vicinity: r.Vicinity,
		})
	}
	metrics.GeocodeSuccessTotal.WithLabelValues("nearby").Inc()
	logger.L().Debug("nearby_resp", "lat", at.Lat, "lng", at.Lng, "count", len(out), "duration_ms", dur)
	return out, nil
}
