// 包 geo：坐标、包围盒与地图事实的基础数据结构；包围盒运算统一基于 orb.Bound
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// 米/度换算常量（赤道附近近似），圆形覆盖物的度数半径与像素半径均按此估算
const MetersPerDegree = 111319.9

// LatLng：WGS84 经纬度
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Point：转换为 orb 点（X=经度，Y=纬度）
func (p LatLng) Point() orb.Point { return orb.Point{p.Lng, p.Lat} }

// FromPoint：orb 点转回经纬度
func FromPoint(p orb.Point) LatLng { return LatLng{Lat: p[1], Lng: p[0]} }

// Valid：经纬度均为有限值且在合法范围内
func (p LatLng) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// 文档注释：由西南角与东北角构造包围盒
// 约束：不处理跨越 180° 经线的盒子；传入角点顺序颠倒时自动归一。
func NewBounds(sw, ne LatLng) orb.Bound {
	return orb.Bound{Min: sw.Point(), Max: sw.Point()}.Extend(ne.Point())
}

// PointBounds：单点退化包围盒
func PointBounds(p LatLng) orb.Bound { return orb.Bound{Min: p.Point(), Max: p.Point()} }

func NE(b orb.Bound) LatLng { return LatLng{Lat: b.Max[1], Lng: b.Max[0]} }

func SW(b orb.Bound) LatLng { return LatLng{Lat: b.Min[1], Lng: b.Min[0]} }

func Center(b orb.Bound) LatLng { return FromPoint(b.Center()) }

func LatSpan(b orb.Bound) float64 { return b.Max[1] - b.Min[1] }

func LngSpan(b orb.Bound) float64 { return b.Max[0] - b.Min[0] }

// 文档注释：包围盒四角（多边形顶点顺序）
// 顺序：NE、(NE.lat, SW.lng)、SW、(SW.lat, NE.lng)。
func Corners(b orb.Bound) []LatLng {
	ne, sw := NE(b), SW(b)
	return []LatLng{
		{Lat: ne.Lat, Lng: ne.Lng},
		{Lat: ne.Lat, Lng: sw.Lng},
		{Lat: sw.Lat, Lng: sw.Lng},
		{Lat: sw.Lat, Lng: ne.Lng},
	}
}

// 文档注释：合并多个包围盒
// 返回：并集与是否至少有一个输入；空输入时返回零值与 false。
func Union(bs ...orb.Bound) (orb.Bound, bool) {
	if len(bs) == 0 {
		return orb.Bound{}, false
	}
	out := bs[0]
	for _, b := range bs[1:] {
		out = out.Union(b)
	}
	return out, true
}

// Contains：a 是否完整包含 b（含边界）
func Contains(a, b orb.Bound) bool {
	return a.Min[0] <= b.Min[0] && a.Min[1] <= b.Min[1] && a.Max[0] >= b.Max[0] && a.Max[1] >= b.Max[1]
}
