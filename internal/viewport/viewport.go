// 包 viewport：包围盒留白、最佳缩放级别与视图适配
package viewport

import (
	"math"

	"factmap/internal/geo"

	"github.com/paulmach/orb"
)

const (
	MinPadding = 0.1
	MaxPadding = 0.3
	MinZoom    = 4
	MaxZoom    = 10
	// 单点（两轴跨度均为 0）时使用的名义跨度（度）
	NominalSpan = 0.01
)

// View：适配所需的地图视图能力
type View interface {
	FitBounds(b orb.Bound)
	Zoom() float64
	SetZoom(z float64)
}

// State：视口状态（并集、缩放、中心）
type State struct {
	BoundsUnion orb.Bound  `json:"-"`
	Zoom        float64    `json:"zoom"`
	Center      geo.LatLng `json:"center"`
	NE          geo.LatLng `json:"ne"`
	SW          geo.LatLng `json:"sw"`
}

// NewState：由并集与缩放构造状态
func NewState(union orb.Bound, zoom float64) State {
	return State{BoundsUnion: union, Zoom: zoom, Center: geo.Center(union), NE: geo.NE(union), SW: geo.SW(union)}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// 文档注释：留白比例
// 公式：clamp(1/max(latSpan, lngSpan), 0.1, 0.3)；两轴均为 0 时取 0.1。
func PaddingFraction(latSpan, lngSpan float64) float64 {
	m := math.Max(latSpan, lngSpan)
	if m <= 0 {
		return MinPadding
	}
	return clamp(1/m, MinPadding, MaxPadding)
}

// 文档注释：按留白比例外扩包围盒
// 约束：两轴独立外扩 p*span；单点退化时按名义跨度外扩，避免视图塌缩。
func Pad(b orb.Bound) orb.Bound {
	lat, lng := geo.LatSpan(b), geo.LngSpan(b)
	p := PaddingFraction(lat, lng)
	if lat == 0 && lng == 0 {
		lat, lng = NominalSpan, NominalSpan
	}
	dLat, dLng := p*lat, p*lng
	return orb.Bound{
		Min: orb.Point{b.Min[0] - dLng, b.Min[1] - dLat},
		Max: orb.Point{b.Max[0] + dLng, b.Max[1] + dLat},
	}
}

// 文档注释：最佳缩放上限
// 公式：clamp(floor(log2(360/max)) + 1, 4, 10)；跨度为 0 时取 10。
func OptimalZoom(latSpan, lngSpan float64) float64 {
	m := math.Max(latSpan, lngSpan)
	if m <= 0 {
		return MaxZoom
	}
	return clamp(math.Floor(math.Log2(360/m))+1, MinZoom, MaxZoom)
}

// 文档注释：把视图适配到包围盒
// 背景：先交给地图按外扩后的盒子自行推导缩放，再用最佳缩放封顶，防止小区域过度放大。
// 返回：外扩后的盒子与最终缩放。
func Fit(v View, b orb.Bound) (orb.Bound, float64) {
	padded := Pad(b)
	v.FitBounds(padded)
	z := OptimalZoom(geo.LatSpan(b), geo.LngSpan(b))
	if v.Zoom() > z {
		v.SetZoom(z)
	}
	return padded, v.Zoom()
}
