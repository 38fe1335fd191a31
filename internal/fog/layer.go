package fog

import (
	"sync"
	"sync/atomic"

	"factmap/internal/geo"
	"factmap/internal/mapview"
	"factmap/internal/visited"

	"github.com/paulmach/orb"
)

// View：迷雾图层需要的地图能力（投影 + 事件）
type View interface {
	Projector
	On(t mapview.EventType, fn func(mapview.Event)) func()
}

// 文档注释：迷雾图层
// 背景：订阅地图缩放事件（TrackPan 时改为订阅范围变化事件，平移与缩放都会触发），每次事件整体重新生成遮罩。
// 约束：并发触发的重新生成允许竞争，以序号最大者为准；样本先经轨迹 R 树按视口范围筛选。
type Layer struct {
	gen  *Generator
	view View

	mu      sync.Mutex
	track   *visited.Track
	current *Mask
	unsub   func()

	seq atomic.Uint64
}

// NewLayer：创建图层并订阅视图事件；调用方随后用 SetSamples 或 Refresh 触发首次生成
func NewLayer(view View, gen *Generator, trackPan bool) *Layer {
	if gen == nil {
		gen = NewGenerator()
	}
	l := &Layer{gen: gen, view: view, track: visited.NewIndex(nil)}
	ev := mapview.EventZoomChanged
	if trackPan {
		ev = mapview.EventBoundsChanged
	}
	l.unsub = view.On(ev, func(mapview.Event) { l.Refresh() })
	return l
}

// SetSamples：替换样本并立即重新生成
func (l *Layer) SetSamples(samples []geo.VisitedSample) *Mask {
	t := visited.NewIndex(samples)
	l.mu.Lock()
	l.track = t
	l.mu.Unlock()
	return l.Refresh()
}

// Refresh：按当前视口重新生成；返回本次生成的遮罩（未必成为当前遮罩）
func (l *Layer) Refresh() *Mask {
	seq := l.seq.Add(1)
	l.mu.Lock()
	t := l.track
	l.mu.Unlock()
	m := l.gen.Regenerate(l.candidates(t), l.view)
	m.Seq = seq
	l.mu.Lock()
	if l.current == nil || seq > l.current.Seq {
		l.current = m
	}
	l.mu.Unlock()
	return m
}

// candidates：视口范围外扩一个印章网格与清除半径后的样本
func (l *Layer) candidates(t *visited.Track) []geo.VisitedSample {
	b, ok := l.view.Bounds()
	if !ok {
		return t.Samples()
	}
	w, h := l.view.Size()
	if w <= 0 || h <= 0 {
		return t.Samples()
	}
	r := Radius(l.view.Zoom())
	grid := float64(GridHalf) * l.gen.Spacing
	// 墨卡托下纬度方向的像素/度不均匀，纬向余量加倍
	mLng := grid + r*geo.LngSpan(b)/float64(w)
	mLat := grid + 2*r*geo.LatSpan(b)/float64(h)
	wide := orb.Bound{
		Min: orb.Point{b.Min[0] - mLng, b.Min[1] - mLat},
		Max: orb.Point{b.Max[0] + mLng, b.Max[1] + mLat},
	}
	return t.Within(wide)
}

// Current：当前遮罩；尚未生成时为 nil
func (l *Layer) Current() *Mask {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Close：取消事件订阅（幂等）
func (l *Layer) Close() {
	l.mu.Lock()
	unsub := l.unsub
	l.unsub = nil
	l.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
