package fog

import (
	"image"
	"image/png"
	"io"
)

// 文档注释：迷雾遮罩
// 约束：尺寸等于生成时视口像素尺寸；不持久化，每次视口变化整体替换。
type Mask struct {
	img     *image.NRGBA
	base    uint8
	Seq     uint64
	Zoom    float64
	Disks   int
	Skipped int
}

func (m *Mask) Image() *image.NRGBA { return m.img }

func (m *Mask) Size() (int, int) {
	b := m.img.Bounds()
	return b.Dx(), b.Dy()
}

// Alpha：像素不透明度；越界返回 0
func (m *Mask) Alpha(x, y int) uint8 {
	if !(image.Point{X: x, Y: y}).In(m.img.Bounds()) {
		return 0
	}
	return m.img.NRGBAAt(x, y).A
}

// Cleared：像素是否被（部分）清除
func (m *Mask) Cleared(x, y int) bool {
	return (image.Point{X: x, Y: y}).In(m.img.Bounds()) && m.Alpha(x, y) < m.base
}

// Opaque：全部像素保持迷雾初始不透明度
func (m *Mask) Opaque() bool {
	for i := 3; i < len(m.img.Pix); i += 4 {
		if m.img.Pix[i] != m.base {
			return false
		}
	}
	return true
}

// ClearedFraction：被清除像素占比
func (m *Mask) ClearedFraction() float64 {
	n := len(m.img.Pix) / 4
	if n == 0 {
		return 0
	}
	c := 0
	for i := 3; i < len(m.img.Pix); i += 4 {
		if m.img.Pix[i] < m.base {
			c++
		}
	}
	return float64(c) / float64(n)
}

func (m *Mask) PNG(w io.Writer) error { return png.Encode(w, m.img) }
