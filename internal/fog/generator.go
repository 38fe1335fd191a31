// 包 fog：迷雾遮罩生成；视口内整体覆盖深色半透明层，在到访样本周围清出圆形区域
package fog

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"factmap/internal/geo"
	"factmap/internal/logger"
	"factmap/internal/metrics"

	"github.com/paulmach/orb"
	"golang.org/x/image/vector"
)

const (
	// 缩放 10 时的清除半径（像素）
	BaseRadius = 10.0
	// 半径随缩放的指数底
	RadiusGrowth = 1.5
	// 印章网格间距（度）与半宽（格数），共 5×5 个印章
	GridSpacing = 0.001
	GridHalf    = 2
)

// FogColor：rgba(50,50,50,0.95)
var FogColor = color.NRGBA{R: 50, G: 50, B: 50, A: 242}

// kappa：四段三次贝塞尔近似圆的控制点系数
const kappa = 0.5522847498

// Projector：地图服务提供的投影能力
type Projector interface {
	Project(p geo.LatLng) (orb.Point, bool)
	Bounds() (orb.Bound, bool)
	Zoom() float64
	Size() (int, int)
}

// Disk：像素空间中的清除圆
type Disk struct {
	X, Y, R float64
}

// Radius：缩放 z 下的清除半径
func Radius(zoom float64) float64 {
	return BaseRadius * math.Pow(RadiusGrowth, zoom-10)
}

// Generator：迷雾生成器（无状态，可并发使用）
type Generator struct {
	Color   color.NRGBA
	Spacing float64
}

func NewGenerator() *Generator {
	return &Generator{Color: FogColor, Spacing: GridSpacing}
}

// 文档注释：计算全部清除圆
// 背景：每个样本按 5×5 网格偏移盖章，清除区域更自然；像素坐标相对视口东北/西南角的投影点。
// 返回：投影或视口范围不可用时该印章被跳过并计数，不中断整体生成。
func (g *Generator) Disks(samples []geo.VisitedSample, proj Projector) ([]Disk, int) {
	if len(samples) == 0 {
		return nil, 0
	}
	stamps := len(samples) * (2*GridHalf + 1) * (2*GridHalf + 1)
	w, h := proj.Size()
	b, ok := proj.Bounds()
	if !ok || w <= 0 || h <= 0 {
		return nil, stamps
	}
	ne, ok1 := proj.Project(geo.NE(b))
	sw, ok2 := proj.Project(geo.SW(b))
	dx, dy := ne[0]-sw[0], sw[1]-ne[1]
	if !ok1 || !ok2 || dx <= 0 || dy <= 0 {
		return nil, stamps
	}
	r := Radius(proj.Zoom())
	disks := make([]Disk, 0, stamps)
	skipped := 0
	for _, s := range samples {
		for i := -GridHalf; i <= GridHalf; i++ {
			for j := -GridHalf; j <= GridHalf; j++ {
				p := geo.LatLng{Lat: s.Lat + float64(i)*g.Spacing, Lng: s.Lng + float64(j)*g.Spacing}
				pt, ok := proj.Project(p)
				if !ok {
					skipped++
					continue
				}
				x := (pt[0] - sw[0]) / dx * float64(w)
				y := (pt[1] - ne[1]) / dy * float64(h)
				if x < -r || y < -r || x > float64(w)+r || y > float64(h)+r {
					continue
				}
				disks = append(disks, Disk{X: x, Y: y, R: r})
			}
		}
	}
	return disks, skipped
}

// 文档注释：重新生成遮罩（整体替换，不做增量修补）
// 背景：清除圆先在覆盖度图上栅格化，再按 alpha=A×(1−覆盖度) 写入迷雾颜色，等价于擦除合成模式。
func (g *Generator) Regenerate(samples []geo.VisitedSample, proj Projector) *Mask {
	t0 := time.Now()
	w, h := proj.Size()
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	disks, skipped := g.Disks(samples, proj)
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(g.Color), image.Point{}, draw.Src)
	if len(disks) > 0 {
		cov := coverage(w, h, disks)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := cov.AlphaAt(x, y).A
				if c == 0 {
					continue
				}
				i := img.PixOffset(x, y)
				img.Pix[i+3] = uint8(uint32(g.Color.A) * uint32(255-c) / 255)
			}
		}
	}
	if skipped > 0 {
		metrics.FogSkippedStampsTotal.Add(float64(skipped))
		logger.L().Debug("fog_stamps_skipped", "skipped", skipped, "err", geo.ErrRender)
	}
	dur := time.Since(t0)
	metrics.FogRegenerationsTotal.Inc()
	metrics.FogDurationMs.Observe(float64(dur.Milliseconds()))
	logger.L().Debug("fog_regenerate_done", "samples", len(samples), "disks", len(disks), "w", w, "h", h, "zoom", proj.Zoom(), "duration_ms", dur.Milliseconds())
	return &Mask{img: img, Zoom: proj.Zoom(), Disks: len(disks), Skipped: skipped, base: g.Color.A}
}

// coverage：把所有圆栅格化为覆盖度图（非零环绕，重叠处截断为 1）
func coverage(w, h int, disks []Disk) *image.Alpha {
	z := vector.NewRasterizer(w, h)
	for _, d := range disks {
		addCircle(z, float32(d.X), float32(d.Y), float32(d.R))
	}
	cov := image.NewAlpha(image.Rect(0, 0, w, h))
	z.DrawOp = draw.Src
	z.Draw(cov, cov.Bounds(), image.Opaque, image.Point{})
	return cov
}

func addCircle(z *vector.Rasterizer, cx, cy, r float32) {
	k := float32(kappa) * r
	z.MoveTo(cx+r, cy)
	z.CubeTo(cx+r, cy+k, cx+k, cy+r, cx, cy+r)
	z.CubeTo(cx-k, cy+r, cx-r, cy+k, cx-r, cy)
	z.CubeTo(cx-r, cy-k, cx-k, cy-r, cx, cy-r)
	z.CubeTo(cx+k, cy-r, cx+r, cy-k, cx+r, cy)
	z.ClosePath()
}
