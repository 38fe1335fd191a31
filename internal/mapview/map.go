package mapview

import (
	"errors"
	"sync"

	"factmap/internal/geo"

	"github.com/paulmach/orb"
)

const (
	MinZoom = 3.0
	MaxZoom = 21.0
)

var ErrUnknownShape = errors.New("unknown shape handle")

// EventType：视图事件
type EventType string

const (
	EventZoomChanged   EventType = "zoom_changed"
	EventBoundsChanged EventType = "bounds_changed"
	EventClick         EventType = "click"
)

// Event：事件负载；Click 事件携带被点击图形的句柄
type Event struct {
	Type   EventType
	Handle Handle
	Zoom   float64
}

type listener struct {
	id int
	fn func(Event)
}

// 文档注释：无界面地图
// 背景：提供与浏览器地图组件相同的能力面（投影、视口、图形、事件），服务端渲染与测试共用。
// 约束：并发安全；事件在状态变更完成后同步派发，派发时不持有锁，监听器可回调地图方法。
type Map struct {
	mu     sync.Mutex
	width  int
	height int
	center geo.LatLng
	zoom   float64
	ready  bool

	shapes map[Handle]*Shape
	order  []Handle
	nextH  Handle

	nextL     int
	listeners map[EventType][]listener
}

// New：创建指定像素尺寸的地图；首次定位（FitBounds/SetView）之前视图未就绪
func New(width, height int) *Map {
	return &Map{
		width:     width,
		height:    height,
		zoom:      MinZoom,
		shapes:    make(map[Handle]*Shape),
		listeners: make(map[EventType][]listener),
	}
}

// On：订阅事件，返回取消订阅函数
func (m *Map) On(t EventType, fn func(Event)) func() {
	m.mu.Lock()
	m.nextL++
	id := m.nextL
	m.listeners[t] = append(m.listeners[t], listener{id: id, fn: fn})
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		ls := m.listeners[t]
		for i, l := range ls {
			if l.id == id {
				m.listeners[t] = append(ls[:i:i], ls[i+1:]...)
				return
			}
		}
	}
}

func (m *Map) emit(evs ...Event) {
	for _, ev := range evs {
		m.mu.Lock()
		ls := append([]listener(nil), m.listeners[ev.Type]...)
		m.mu.Unlock()
		for _, l := range ls {
			l.fn(ev)
		}
	}
}

func (m *Map) viewEvents(oldZoom float64) []Event {
	evs := []Event{{Type: EventBoundsChanged, Zoom: m.zoom}}
	if oldZoom != m.zoom {
		evs = append(evs, Event{Type: EventZoomChanged, Zoom: m.zoom})
	}
	return evs
}

func clampZoom(z float64) float64 {
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}

// 文档注释：把视图适配到包围盒
// 背景：取能完整容纳盒子的最大整数缩放，中心取投影后的盒子中点。
func (m *Map) FitBounds(b orb.Bound) {
	m.mu.Lock()
	old := m.zoom
	ne, sw := Project(geo.NE(b)), Project(geo.SW(b))
	m.center = Unproject(orb.Point{(ne[0] + sw[0]) / 2, (ne[1] + sw[1]) / 2})
	m.zoom = ZoomForBounds(b, m.width, m.height, MinZoom, MaxZoom)
	m.ready = m.width > 0 && m.height > 0
	evs := m.viewEvents(old)
	m.mu.Unlock()
	m.emit(evs...)
}

// SetView：直接设置中心与缩放（模拟用户平移缩放）
func (m *Map) SetView(center geo.LatLng, zoom float64) {
	m.mu.Lock()
	old := m.zoom
	m.center = center
	m.zoom = clampZoom(zoom)
	m.ready = m.width > 0 && m.height > 0
	evs := m.viewEvents(old)
	m.mu.Unlock()
	m.emit(evs...)
}

func (m *Map) SetZoom(z float64) {
	m.mu.Lock()
	old := m.zoom
	m.zoom = clampZoom(z)
	if old == m.zoom {
		m.mu.Unlock()
		return
	}
	evs := m.viewEvents(old)
	m.mu.Unlock()
	m.emit(evs...)
}

// Resize：修改像素尺寸
func (m *Map) Resize(width, height int) {
	m.mu.Lock()
	m.width, m.height = width, height
	if width <= 0 || height <= 0 {
		m.ready = false
	}
	evs := []Event{{Type: EventBoundsChanged, Zoom: m.zoom}}
	m.mu.Unlock()
	m.emit(evs...)
}

func (m *Map) Zoom() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.zoom
}

func (m *Map) Center() geo.LatLng {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.center
}

func (m *Map) Size() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.width, m.height
}

func (m *Map) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// 文档注释：当前可见经纬度范围
// 返回：视图未就绪时返回 false。
func (m *Map) Bounds() (orb.Bound, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return orb.Bound{}, false
	}
	c := Project(m.center)
	s := Scale(m.zoom)
	hw, hh := float64(m.width)/2/s, float64(m.height)/2/s
	ne := Unproject(orb.Point{c[0] + hw, c[1] - hh})
	sw := Unproject(orb.Point{c[0] - hw, c[1] + hh})
	return geo.NewBounds(sw, ne), true
}

// Project：投影能力；未就绪时返回 false
func (m *Map) Project(p geo.LatLng) (orb.Point, bool) {
	if !m.Ready() {
		return orb.Point{}, false
	}
	return Project(p), true
}

// Pixel：经纬度到视口像素坐标
func (m *Map) Pixel(p geo.LatLng) (float64, float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return 0, 0, false
	}
	c := Project(m.center)
	pt := Project(p)
	s := Scale(m.zoom)
	return (pt[0]-c[0])*s + float64(m.width)/2, (pt[1]-c[1])*s + float64(m.height)/2, true
}
