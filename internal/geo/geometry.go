package geo

import "github.com/paulmach/orb"

// 坐标区域的固定圆半径（米）
const DefaultRadiusMeters = 50000.0

// Kind：解析几何的种类
type Kind string

const (
	KindBBox        Kind = "bbox"
	KindPointRadius Kind = "point-radius"
)

// 文档注释：解析后的区域几何
// 背景：地名解析得到包围盒；显式坐标合成固定半径的圆。首次成功解析后不可变。
// 约束：KindBBox 仅使用 Bounds；KindPointRadius 使用 Center 与 RadiusMeters。
type ResolvedGeometry struct {
	Kind         Kind      `json:"kind"`
	Bounds       orb.Bound `json:"-"`
	Center       LatLng    `json:"center"`
	RadiusMeters float64   `json:"radius_m,omitempty"`
}

// BBoxGeometry：包围盒几何，参考点为盒中心
func BBoxGeometry(b orb.Bound) ResolvedGeometry {
	return ResolvedGeometry{Kind: KindBBox, Bounds: b, Center: Center(b)}
}

// CircleGeometry：点+半径几何
func CircleGeometry(c LatLng, radiusM float64) ResolvedGeometry {
	return ResolvedGeometry{Kind: KindPointRadius, Center: c, RadiusMeters: radiusM}
}

// RadiusDegrees：米换算为近似度数
func RadiusDegrees(radiusM float64) float64 { return radiusM / MetersPerDegree }

// 文档注释：几何的外接包围盒（参与视口并集与适配）
// 约束：圆按 radius/111319.9 度在两轴上同等展开，不做纬度修正。
func (g ResolvedGeometry) Extent() orb.Bound {
	if g.Kind == KindPointRadius {
		d := RadiusDegrees(g.RadiusMeters)
		return orb.Bound{
			Min: orb.Point{g.Center.Lng - d, g.Center.Lat - d},
			Max: orb.Point{g.Center.Lng + d, g.Center.Lat + d},
		}
	}
	return g.Bounds
}

// RefPoint：标签锚点（盒中心或圆心）
func (g ResolvedGeometry) RefPoint() LatLng {
	if g.Kind == KindBBox {
		return Center(g.Bounds)
	}
	return g.Center
}
