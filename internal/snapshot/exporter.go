// 包 snapshot：将当前视口（底图、区域覆盖物、文字标记、迷雾）合成为一张 PNG 图片
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"factmap/internal/fog"
	"factmap/internal/geo"
	"factmap/internal/logger"
	"factmap/internal/mapview"
	"factmap/internal/metrics"

	"github.com/fogleman/gg"
	"github.com/google/uuid"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// ErrNotReady：地图尚未定位，导出为空操作
var ErrNotReady = errors.New("map view not ready")

// View：导出所需的视图能力
type View interface {
	Ready() bool
	Size() (int, int)
	Center() geo.LatLng
	Zoom() float64
	Pixel(p geo.LatLng) (float64, float64, bool)
}

// Frame：一次导出的输入
type Frame struct {
	View   View
	Shapes []mapview.Shape
	Fog    *fog.Mask
	Title  string
}

// Exporter：快照导出器；Base 为空时使用纯色底图
type Exporter struct {
	Base       Base
	LabelColor string
	LabelSize  float64
}

func New(base Base) *Exporter {
	return &Exporter{Base: base, LabelColor: "#000000", LabelSize: 12}
}

// 文档注释：导出快照
// 约束：视图未就绪返回 ErrNotReady；底图失败时退回纯色底图并记录告警，覆盖物照常绘制；迷雾最后合成。
func (e *Exporter) Export(ctx context.Context, f Frame) (image.Image, error) {
	start := time.Now()
	if f.View == nil || !f.View.Ready() {
		metrics.SnapshotExportsTotal.WithLabelValues("not_ready").Inc()
		return nil, ErrNotReady
	}
	w, h := f.View.Size()
	if w <= 0 || h <= 0 {
		metrics.SnapshotExportsTotal.WithLabelValues("not_ready").Inc()
		return nil, ErrNotReady
	}
	base := e.Base
	if base == nil {
		base = SolidBase{}
	}
	bg, err := base.Render(ctx, f.View.Center(), f.View.Zoom(), w, h)
	if err != nil {
		if ctx.Err() != nil {
			metrics.SnapshotExportsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%w: %v", geo.ErrRender, ctx.Err())
		}
		logger.L().Warn("snapshot_base_failed", "error", err)
		bg, _ = SolidBase{}.Render(ctx, f.View.Center(), f.View.Zoom(), w, h)
	}

	dc := gg.NewContext(w, h)
	dc.DrawImageAnchored(bg, w/2, h/2, 0.5, 0.5)

	var markers []mapview.Shape
	for _, s := range f.Shapes {
		switch s.Kind {
		case mapview.ShapePolygon:
			drawPolygon(dc, f.View, s)
		case mapview.ShapeCircle:
			drawCircle(dc, f.View, s)
		case mapview.ShapeMarker:
			markers = append(markers, s)
		}
	}
	// 文字标记压在所有图形之上
	if len(markers) > 0 {
		face, ferr := labelFace(e.LabelSize)
		if ferr != nil {
			logger.L().Warn("snapshot_font_failed", "error", ferr)
		} else {
			dc.SetFontFace(face)
			dc.SetColor(ParseHex(e.LabelColor, 1))
			for _, s := range markers {
				drawLabel(dc, f.View, s, e.LabelSize)
			}
		}
	}
	if f.Title != "" {
		drawTitle(dc, f.Title)
	}
	if f.Fog != nil {
		dc.DrawImage(f.Fog.Image(), 0, 0)
	}

	metrics.SnapshotExportsTotal.WithLabelValues("ok").Inc()
	logger.L().Debug("snapshot_exported",
		"width", w,
		"height", h,
		"shapes", len(f.Shapes),
		"fog", f.Fog != nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return dc.Image(), nil
}

func drawPolygon(dc *gg.Context, v View, s mapview.Shape) {
	if len(s.Path) < 3 {
		return
	}
	dc.NewSubPath()
	for i, p := range s.Path {
		x, y, ok := v.Pixel(p)
		if !ok {
			return
		}
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.ClosePath()
	fillAndStroke(dc, s.Style)
}

// 圆的像素半径：圆心与圆心东移 radius/111319.9 度处的像素距离
func drawCircle(dc *gg.Context, v View, s mapview.Shape) {
	cx, cy, ok := v.Pixel(s.Center)
	if !ok {
		return
	}
	ex, ey, ok := v.Pixel(geo.LatLng{Lat: s.Center.Lat, Lng: s.Center.Lng + geo.RadiusDegrees(s.RadiusMeters)})
	if !ok {
		return
	}
	r := math.Hypot(ex-cx, ey-cy)
	if r <= 0 {
		return
	}
	dc.DrawCircle(cx, cy, r)
	fillAndStroke(dc, s.Style)
}

func fillAndStroke(dc *gg.Context, st mapview.Style) {
	dc.SetColor(ParseHex(st.FillColor, st.FillOpacity))
	dc.FillPreserve()
	dc.SetColor(ParseHex(st.StrokeColor, st.StrokeOpacity))
	dc.SetLineWidth(st.StrokeWeight)
	dc.Stroke()
}

// 多行标签以锚点为中心逐行绘制
func drawLabel(dc *gg.Context, v View, s mapview.Shape, size float64) {
	x, y, ok := v.Pixel(s.Center)
	if !ok || s.Label == "" {
		return
	}
	lines := strings.Split(s.Label, "\n")
	lh := size * 1.2
	top := y - lh*float64(len(lines)-1)/2
	for i, line := range lines {
		dc.DrawStringAnchored(line, x, top+float64(i)*lh, 0.5, 0.5)
	}
}

func drawTitle(dc *gg.Context, title string) {
	face, err := titleFace()
	if err != nil {
		return
	}
	dc.SetFontFace(face)
	tw, th := dc.MeasureString(title)
	dc.SetRGBA(1, 1, 1, 0.8)
	dc.DrawRectangle(8, 8, tw+16, th+12)
	dc.Fill()
	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(title, 16, 14+th/2, 0, 0.5)
}

var (
	fontOnce    sync.Once
	boldFont    *opentype.Font
	regularFont *opentype.Font
	fontErr     error
	faceMu      sync.Mutex
	faceCache   = make(map[string]font.Face)
)

func loadFonts() error {
	fontOnce.Do(func() {
		boldFont, fontErr = opentype.Parse(gobold.TTF)
		if fontErr != nil {
			return
		}
		regularFont, fontErr = opentype.Parse(goregular.TTF)
	})
	return fontErr
}

func face(f *opentype.Font, key string, size float64) (font.Face, error) {
	faceMu.Lock()
	defer faceMu.Unlock()
	k := key + ":" + strconv.FormatFloat(size, 'f', -1, 64)
	if fc, ok := faceCache[k]; ok {
		return fc, nil
	}
	fc, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, err
	}
	faceCache[k] = fc
	return fc, nil
}

func labelFace(size float64) (font.Face, error) {
	if err := loadFonts(); err != nil {
		return nil, err
	}
	return face(boldFont, "bold", size)
}

func titleFace() (font.Face, error) {
	if err := loadFonts(); err != nil {
		return nil, err
	}
	return face(regularFont, "regular", 14)
}

// 文档注释：解析 #rgb / #rrggbb 颜色并附加不透明度
// 约束：非法输入返回中性灰；opacity 截断到 [0,1]。
func ParseHex(s string, opacity float64) color.NRGBA {
	opacity = math.Max(0, math.Min(1, opacity))
	a := uint8(math.Round(opacity * 255))
	gray := color.NRGBA{R: 128, G: 128, B: 128, A: a}
	if !geo.ValidColor(s) {
		return gray
	}
	hex := s[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return gray
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: a}
}

// FileName：快照文件名
func FileName() string {
	return "factmap-" + uuid.New().String() + ".png"
}

// WritePNG：写入文件
func WritePNG(path string, img image.Image) error {
	if err := gg.SavePNG(path, img); err != nil {
		return fmt.Errorf("%w: %v", geo.ErrRender, err)
	}
	return nil
}

// EncodePNG：写入流（HTTP 响应）
func EncodePNG(w io.Writer, img image.Image) error {
	dc := gg.NewContextForImage(img)
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("%w: %v", geo.ErrRender, err)
	}
	return nil
}
