// 包 mapview：无界面的地图视图（Web 墨卡托投影、视口、图形与事件），供服务端渲染与测试使用
package mapview

import (
	"math"

	"factmap/internal/geo"

	"github.com/paulmach/orb"
)

// 世界坐标的瓦片边长（像素），缩放 z 下世界宽度为 TileSize * 2^z
const TileSize = 256.0

const maxSinLat = 0.9999

// 文档注释：经纬度投影到世界坐标（0..256）
// 约束：纬度正弦截断到 ±0.9999，与常见地图服务的投影一致。
func Project(p geo.LatLng) orb.Point {
	siny := math.Sin(p.Lat * math.Pi / 180)
	siny = math.Min(math.Max(siny, -maxSinLat), maxSinLat)
	return orb.Point{
		TileSize * (0.5 + p.Lng/360),
		TileSize * (0.5 - math.Log((1+siny)/(1-siny))/(4*math.Pi)),
	}
}

// Unproject：世界坐标还原为经纬度
func Unproject(pt orb.Point) geo.LatLng {
	n := math.Pi * (1 - 2*pt[1]/TileSize)
	return geo.LatLng{
		Lat: math.Atan(math.Sinh(n)) * 180 / math.Pi,
		Lng: (pt[0]/TileSize - 0.5) * 360,
	}
}

// Scale：缩放 z 下世界坐标到像素的倍率
func Scale(zoom float64) float64 { return math.Exp2(zoom) }

// 文档注释：能容纳包围盒的最大整数缩放
// 返回：盒子退化为点时返回 maxZoom；结果截断到 [minZoom, maxZoom]。
func ZoomForBounds(b orb.Bound, width, height int, minZoom, maxZoom float64) float64 {
	ne := Project(geo.NE(b))
	sw := Project(geo.SW(b))
	dx := math.Abs(ne[0] - sw[0])
	dy := math.Abs(sw[1] - ne[1])
	if dx == 0 && dy == 0 {
		return maxZoom
	}
	fit := math.Inf(1)
	if dx > 0 {
		fit = float64(width) / dx
	}
	if dy > 0 {
		fit = math.Min(fit, float64(height)/dy)
	}
	z := math.Floor(math.Log2(fit))
	return math.Max(minZoom, math.Min(maxZoom, z))
}
