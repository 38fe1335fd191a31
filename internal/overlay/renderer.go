// 包 overlay：区域覆盖物渲染（多边形/圆、文字标记、点击高亮与视图适配）
package overlay

import (
	"sync"

	"factmap/internal/geo"
	"factmap/internal/logger"
	"factmap/internal/mapview"
	"factmap/internal/viewport"

	"github.com/paulmach/orb"
)

// Surface：渲染器依赖的地图能力
type Surface interface {
	viewport.View
	AddPolygon(path []geo.LatLng, st mapview.Style) mapview.Handle
	AddCircle(center geo.LatLng, radiusM float64, st mapview.Style) mapview.Handle
	AddMarker(at geo.LatLng, label string) mapview.Handle
	SetStyle(h mapview.Handle, st mapview.Style) error
	Remove(h mapview.Handle) bool
	On(t mapview.EventType, fn func(mapview.Event)) func()
}

// 文档注释：覆盖物图形（每个已解析区域一个）
// 约束：仅由 Renderer 持有与修改；事实变更时整体销毁重建。
type Shape struct {
	Region      geo.Region
	Geometry    geo.ResolvedGeometry
	Handle      mapview.Handle
	LabelHandle mapview.Handle
	Highlighted bool
}

// 文档注释：区域覆盖物渲染器
// 背景：图形与标记的点击都触发同一逻辑：取消其它高亮、高亮自身、按自身范围适配视图。
// 约束：视图适配在释放锁后执行，地图事件监听器可安全回调。
type Renderer struct {
	mu       sync.Mutex
	surface  Surface
	shapes   []*Shape
	byHandle map[mapview.Handle]*Shape
	state    viewport.State
	unsub    func()
}

func New(s Surface) *Renderer {
	r := &Renderer{surface: s, byHandle: make(map[mapview.Handle]*Shape)}
	r.unsub = s.On(mapview.EventClick, func(ev mapview.Event) {
		r.Click(ev.Handle)
	})
	return r
}

// 文档注释：为已解析区域创建图形
// 背景：bbox 生成四顶点多边形（NE、NE纬/SW经、SW、SW纬/NE经）；点半径生成圆；参考点放置零尺寸图标的文字标记。
func (r *Renderer) Attach(region geo.Region, g geo.ResolvedGeometry) Shape {
	st := StyleFor(region.Color, false)
	var h mapview.Handle
	if g.Kind == geo.KindBBox {
		h = r.surface.AddPolygon(geo.Corners(g.Bounds), st)
	} else {
		h = r.surface.AddCircle(g.Center, g.RadiusMeters, st)
	}
	lh := r.surface.AddMarker(g.RefPoint(), region.Label())
	s := &Shape{Region: region, Geometry: g, Handle: h, LabelHandle: lh}

	r.mu.Lock()
	r.shapes = append(r.shapes, s)
	r.byHandle[h] = s
	r.byHandle[lh] = s
	r.mu.Unlock()
	logger.L().Debug("overlay_attach", "region", region.DisplayName(), "kind", g.Kind, "handle", h)
	return *s
}

// 文档注释：点击图形或其标记
// 返回：适配后的视口状态；句柄不属于本渲染器时返回 false。
func (r *Renderer) Click(h mapview.Handle) (viewport.State, bool) {
	r.mu.Lock()
	target, ok := r.byHandle[h]
	if !ok {
		r.mu.Unlock()
		return viewport.State{}, false
	}
	for _, s := range r.shapes {
		hl := s == target
		if s.Highlighted != hl || hl {
			_ = r.surface.SetStyle(s.Handle, StyleFor(s.Region.Color, hl))
		}
		s.Highlighted = hl
	}
	extent := target.Geometry.Extent()
	r.mu.Unlock()

	logger.L().Debug("overlay_click", "region", target.Region.DisplayName())
	return r.fit(extent), true
}

// 文档注释：重置视图
// 背景：清除全部高亮，对所有图形范围的并集重新适配。
// 返回：无图形时返回 false，视图不变。
func (r *Renderer) Reset() (viewport.State, bool) {
	r.mu.Lock()
	for _, s := range r.shapes {
		if s.Highlighted {
			_ = r.surface.SetStyle(s.Handle, StyleFor(s.Region.Color, false))
			s.Highlighted = false
		}
	}
	u, ok := r.unionLocked()
	r.mu.Unlock()
	if !ok {
		return viewport.State{}, false
	}
	return r.fit(u), true
}

// FitUnion：对给定并集适配视图（事实全部结算后由引擎调用一次）
func (r *Renderer) FitUnion(u orb.Bound) viewport.State { return r.fit(u) }

func (r *Renderer) fit(b orb.Bound) viewport.State {
	_, z := viewport.Fit(r.surface, b)
	r.mu.Lock()
	u, ok := r.unionLocked()
	if !ok {
		u = b
	}
	r.state = viewport.NewState(u, z)
	st := r.state
	r.mu.Unlock()
	return st
}

// State：最近一次适配后的视口状态；并集始终覆盖当前全部图形
func (r *Renderer) State() viewport.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state
	if u, ok := r.unionLocked(); ok {
		st.BoundsUnion = u
		st.NE, st.SW = geo.NE(u), geo.SW(u)
	}
	return st
}

func (r *Renderer) unionLocked() (orb.Bound, bool) {
	ext := make([]orb.Bound, 0, len(r.shapes))
	for _, s := range r.shapes {
		ext = append(ext, s.Geometry.Extent())
	}
	return geo.Union(ext...)
}

// Union：当前全部图形范围的并集
func (r *Renderer) Union() (orb.Bound, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unionLocked()
}

// Shapes：图形快照（按绘制顺序）
func (r *Renderer) Shapes() []Shape {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Shape, 0, len(r.shapes))
	for _, s := range r.shapes {
		out = append(out, *s)
	}
	return out
}

// 文档注释：移除全部图形
// 约束：幂等；事实变更或组件卸载时调用。
func (r *Renderer) Teardown() {
	r.mu.Lock()
	shapes := r.shapes
	r.shapes = nil
	r.byHandle = make(map[mapview.Handle]*Shape)
	r.state = viewport.State{}
	r.mu.Unlock()
	for _, s := range shapes {
		r.surface.Remove(s.Handle)
		r.surface.Remove(s.LabelHandle)
	}
	if len(shapes) > 0 {
		logger.L().Debug("overlay_teardown", "shapes", len(shapes))
	}
}

// Close：销毁图形并取消点击订阅
func (r *Renderer) Close() {
	r.Teardown()
	r.mu.Lock()
	unsub := r.unsub
	r.unsub = nil
	r.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
