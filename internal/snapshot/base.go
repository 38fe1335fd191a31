package snapshot

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"

	"factmap/internal/geo"

	sm "github.com/flopp/go-staticmaps"
	"github.com/golang/geo/s2"
)

// Base：底图来源
type Base interface {
	Render(ctx context.Context, center geo.LatLng, zoom float64, width, height int) (image.Image, error)
}

// SolidBase：纯色底图（离线与测试）
type SolidBase struct {
	Color color.Color
}

func (b SolidBase) Render(_ context.Context, _ geo.LatLng, _ float64, width, height int) (image.Image, error) {
	c := b.Color
	if c == nil {
		c = color.NRGBA{R: 0xE8, G: 0xE8, B: 0xE8, A: 0xFF}
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img, nil
}

// 文档注释：瓦片底图
// 背景：由 go-staticmaps 拉取瓦片并拼接；缩放取整后与视图中心对齐。
// 约束：URLTemplate 为空时使用库默认瓦片源；模板可用 {s}{z}{x}{y} 占位符，
// 也可直接写 %[1]s %[2]d %[3]d %[4]d 格式串。
type TileBase struct {
	URLTemplate string
	UserAgent   string
}

func (b TileBase) provider() *sm.TileProvider {
	if b.URLTemplate == "" {
		return nil
	}
	shards := []string{}
	if strings.Contains(b.URLTemplate, "{s}") {
		shards = []string{"a", "b", "c"}
	}
	return &sm.TileProvider{
		Name:       "custom",
		TileSize:   256,
		URLPattern: tilePattern(b.URLTemplate),
		Shards:     shards,
	}
}

var tilePlaceholders = strings.NewReplacer("{s}", "%[1]s", "{z}", "%[2]d", "{x}", "%[3]d", "{y}", "%[4]d")

func tilePattern(tmpl string) string { return tilePlaceholders.Replace(tmpl) }

func (b TileBase) Render(ctx context.Context, center geo.LatLng, zoom float64, width, height int) (image.Image, error) {
	mc := sm.NewContext()
	mc.SetSize(width, height)
	mc.SetCenter(s2.LatLngFromDegrees(center.Lat, center.Lng))
	mc.SetZoom(int(math.Round(zoom)))
	if p := b.provider(); p != nil {
		mc.SetTileProvider(p)
	}
	if b.UserAgent != "" {
		mc.SetUserAgent(b.UserAgent)
	}

	type result struct {
		img image.Image
		err error
	}
	ch := make(chan result, 1)
	go func() {
		img, err := mc.Render()
		ch <- result{img, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("render tiles: %w", r.err)
		}
		return r.img, nil
	}
}
