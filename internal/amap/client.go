// 包 amap：高德 Web 服务 IP 定位，作为访问者默认视图中心的在线来源
package amap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"factmap/internal/geo"
	"factmap/internal/logger"
	"factmap/internal/metrics"
)

const DefaultBaseURL = "https://restapi.amap.com"

// 文档注释：高德 IP 定位响应结构
// 背景：只解析省/市与城市矩形；矩形中心作为定位坐标。
// 约束：status/infocode 用于错误判定；城市外 IP（含境外）返回空数组形式的字段，按无结果处理。
type IPResponse struct {
	Status    string          `json:"status"`
	Info      string          `json:"info"`
	Infocode  string          `json:"infocode"`
	Province  json.RawMessage `json:"province"`
	City      json.RawMessage `json:"city"`
	Adcode    json.RawMessage `json:"adcode"`
	Rectangle json.RawMessage `json:"rectangle"`
}

var ErrNoRectangle = errors.New("amap: no rectangle")

// text：字段为字符串时返回其值，空数组等其它形式返回空串
func text(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// 文档注释：解析城市矩形 "lng1,lat1;lng2,lat2"
// 返回：两角构成的包围盒；格式不符时返回 ErrNoRectangle。
func ParseRectangle(s string) (geo.LatLng, geo.LatLng, error) {
	parts := strings.Split(strings.TrimSpace(s), ";")
	if len(parts) != 2 {
		return geo.LatLng{}, geo.LatLng{}, ErrNoRectangle
	}
	var pts [2]geo.LatLng
	for i, p := range parts {
		xy := strings.Split(p, ",")
		if len(xy) != 2 {
			return geo.LatLng{}, geo.LatLng{}, ErrNoRectangle
		}
		lng, err1 := strconv.ParseFloat(strings.TrimSpace(xy[0]), 64)
		lat, err2 := strconv.ParseFloat(strings.TrimSpace(xy[1]), 64)
		if err1 != nil || err2 != nil {
			return geo.LatLng{}, geo.LatLng{}, ErrNoRectangle
		}
		pts[i] = geo.LatLng{Lat: lat, Lng: lng}
	}
	return pts[0], pts[1], nil
}

// 文档注释：高德 IP 定位客户端
// 约束：仅支持国内 IPv4；Key 为空时 Locate 恒返回 false。
type Client struct {
	Key     string
	BaseURL string
	HTTP    *http.Client
}

func New(key string) *Client {
	return &Client{Key: key, BaseURL: DefaultBaseURL, HTTP: &http.Client{Timeout: 4 * time.Second}}
}

// 文档注释：查询单个 IP 的定位信息（REST）
// 返回：status!="1" 时返回错误并附带响应内容以便上层记录。
func (c *Client) QueryIP(ctx context.Context, ip string) (*IPResponse, error) {
	if c.Key == "" {
		return nil, errors.New("amap: missing key")
	}
	q := url.Values{}
	q.Set("key", c.Key)
	if ip != "" {
		q.Set("ip", ip)
	}
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/v3/ip?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	hc := c.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 4 * time.Second}
	}
	t0 := time.Now()
	metrics.GeocodeRequestsTotal.WithLabelValues("amap_ip").Inc()
	resp, err := hc.Do(req)
	if err != nil {
		logger.L().Error("amap_http_error", "err", err)
		metrics.GeocodeFailTotal.WithLabelValues("amap_ip").Inc()
		return nil, &geo.NetworkError{Op: "amap_ip", Err: err}
	}
	defer resp.Body.Close()
	var r IPResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		logger.L().Error("amap_decode_error", "err", err)
		metrics.GeocodeFailTotal.WithLabelValues("amap_ip").Inc()
		return nil, err
	}
	dur := time.Since(t0).Milliseconds()
	metrics.GeocodeDurationMs.WithLabelValues("amap_ip").Observe(float64(dur))
	logger.L().Debug("amap_resp", "ip", ip, "status", r.Status, "infocode", r.Infocode, "city", text(r.City), "duration_ms", dur)
	if r.Status != "1" {
		metrics.GeocodeFailTotal.WithLabelValues("amap_ip").Inc()
		return &r, errors.New("amap: " + r.Info)
	}
	metrics.GeocodeSuccessTotal.WithLabelValues("amap_ip").Inc()
	return &r, nil
}

// Locate：城市矩形中心；无矩形或请求失败返回 false
func (c *Client) Locate(ctx context.Context, ip string) (geo.LatLng, bool) {
	if c.Key == "" {
		return geo.LatLng{}, false
	}
	r, err := c.QueryIP(ctx, ip)
	if err != nil {
		return geo.LatLng{}, false
	}
	a, b, err := ParseRectangle(text(r.Rectangle))
	if err != nil {
		return geo.LatLng{}, false
	}
	return geo.Center(geo.NewBounds(a, b)), true
}
