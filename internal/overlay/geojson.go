package overlay

import (
	"math"

	"factmap/internal/geo"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// 圆在导出时按多边形近似的顶点数
const circleSegments = 48

// 文档注释：把当前图形导出为 GeoJSON 要素集合
// 背景：前端或其它工具可直接复用绘制结果；属性包含名称、值、颜色与高亮状态。
// 约束：圆按度数半径近似为 48 边形，与快照导出使用同一米/度换算。
func (r *Renderer) GeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range r.Shapes() {
		var g orb.Geometry
		if s.Geometry.Kind == geo.KindBBox {
			g = s.Geometry.Bounds.ToPolygon()
		} else {
			g = circlePolygon(s.Geometry.Center, geo.RadiusDegrees(s.Geometry.RadiusMeters))
		}
		f := geojson.NewFeature(g)
		f.Properties["name"] = s.Region.Name
		f.Properties["value"] = s.Region.Value.String()
		f.Properties["color"] = s.Region.Color
		f.Properties["kind"] = string(s.Geometry.Kind)
		f.Properties["highlighted"] = s.Highlighted
		if s.Geometry.Kind == geo.KindPointRadius {
			f.Properties["radius_m"] = s.Geometry.RadiusMeters
		}
		fc.Append(f)
	}
	return fc
}

func circlePolygon(c geo.LatLng, deg float64) orb.Polygon {
	ring := make(orb.Ring, 0, circleSegments+1)
	for i := 0; i < circleSegments; i++ {
		a := 2 * math.Pi * float64(i) / circleSegments
		ring = append(ring, orb.Point{c.Lng + deg*math.Cos(a), c.Lat + deg*math.Sin(a)})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}
