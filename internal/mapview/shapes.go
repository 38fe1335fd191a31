package mapview

import "factmap/internal/geo"

// Handle：图形句柄，0 表示无效
type Handle uint64

// ShapeKind：图形种类
type ShapeKind string

const (
	ShapePolygon ShapeKind = "polygon"
	ShapeCircle  ShapeKind = "circle"
	ShapeMarker  ShapeKind = "marker"
)

// Style：描边与填充样式
type Style struct {
	StrokeColor   string  `json:"stroke_color"`
	StrokeOpacity float64 `json:"stroke_opacity"`
	StrokeWeight  float64 `json:"stroke_weight"`
	FillColor     string  `json:"fill_color"`
	FillOpacity   float64 `json:"fill_opacity"`
}

// 文档注释：地图上的图形
// 约束：Polygon 使用 Path；Circle 使用 Center 与 RadiusMeters；Marker 使用 Center、Label 与 IconScale（0 表示图标不可见，仅显示文字）。
type Shape struct {
	Handle       Handle
	Kind         ShapeKind
	Path         []geo.LatLng
	Center       geo.LatLng
	RadiusMeters float64
	Style        Style
	Label        string
	IconScale    float64
}

func (m *Map) add(s Shape) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextH++
	s.Handle = m.nextH
	m.shapes[s.Handle] = &s
	m.order = append(m.order, s.Handle)
	return s.Handle
}

func (m *Map) AddPolygon(path []geo.LatLng, st Style) Handle {
	return m.add(Shape{Kind: ShapePolygon, Path: append([]geo.LatLng(nil), path...), Style: st})
}

func (m *Map) AddCircle(center geo.LatLng, radiusM float64, st Style) Handle {
	return m.add(Shape{Kind: ShapeCircle, Center: center, RadiusMeters: radiusM, Style: st})
}

// AddMarker：零尺寸图标的文字标记
func (m *Map) AddMarker(at geo.LatLng, label string) Handle {
	return m.add(Shape{Kind: ShapeMarker, Center: at, Label: label, IconScale: 0})
}

func (m *Map) SetStyle(h Handle, st Style) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shapes[h]
	if !ok {
		return ErrUnknownShape
	}
	s.Style = st
	return nil
}

// Remove：移除图形；句柄不存在时返回 false
func (m *Map) Remove(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shapes[h]; !ok {
		return false
	}
	delete(m.shapes, h)
	for i, x := range m.order {
		if x == h {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Shape：按句柄读取图形副本
func (m *Map) Shape(h Handle) (Shape, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shapes[h]
	if !ok {
		return Shape{}, false
	}
	return *s, true
}

// Shapes：按添加顺序返回全部图形副本
func (m *Map) Shapes() []Shape {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Shape, 0, len(m.order))
	for _, h := range m.order {
		out = append(out, *m.shapes[h])
	}
	return out
}

// Click：模拟点击图形
func (m *Map) Click(h Handle) error {
	m.mu.Lock()
	_, ok := m.shapes[h]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownShape
	}
	m.emit(Event{Type: EventClick, Handle: h})
	return nil
}
