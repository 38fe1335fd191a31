// 包 visited：到访样本轨迹（时间有序、仅追加、距离去重）及其持久化
package visited

import (
	"math"
	"sort"
	"sync"

	"factmap/internal/geo"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// 与上一条样本在两轴上的差均小于该值（度）时视为重复
const DedupeDegrees = 0.001

const (
	treeDim         = 2
	treeMinChildren = 25
	treeMaxChildren = 50
	pointTolerance  = 1e-9
)

// 样本在 R 树中的包装
type item struct {
	s    geo.VisitedSample
	rect *rtreego.Rect
}

func (it *item) Bounds() *rtreego.Rect { return it.rect }

// 文档注释：到访轨迹
// 背景：迷雾生成只需要当前视口附近的样本，用 R 树按经纬度范围检索。
// 约束：并发安全；时间戳早于末条样本的追加会被拒绝，保持有序。
type Track struct {
	mu      sync.RWMutex
	samples []geo.VisitedSample
	tree    *rtreego.Rtree
	keepAll bool
}

func NewTrack(samples ...geo.VisitedSample) *Track {
	t := &Track{tree: rtreego.NewTree(treeDim, treeMinChildren, treeMaxChildren)}
	t.Append(samples...)
	return t
}

// 文档注释：只读空间索引
// 背景：迷雾需要覆盖每一个输入样本，不做距离去重；输入先按时间排序。
func NewIndex(samples []geo.VisitedSample) *Track {
	t := &Track{tree: rtreego.NewTree(treeDim, treeMinChildren, treeMaxChildren), keepAll: true}
	t.Append(samples...)
	return t
}

func sortedByTime(samples []geo.VisitedSample) []geo.VisitedSample {
	if sort.SliceIsSorted(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) }) {
		return samples
	}
	out := append([]geo.VisitedSample(nil), samples...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// IsDuplicate：b 与 a 在两轴上的差均小于去重阈值
func IsDuplicate(a, b geo.VisitedSample) bool {
	return math.Abs(a.Lat-b.Lat) < DedupeDegrees && math.Abs(a.Lng-b.Lng) < DedupeDegrees
}

// 文档注释：追加样本
// 背景：同一批次内先按时间排序，批内乱序不丢样本。
// 返回：实际写入的样本（去重样本与早于已有末条的样本被丢弃）。
func (t *Track) Append(samples ...geo.VisitedSample) []geo.VisitedSample {
	samples = sortedByTime(samples)
	t.mu.Lock()
	defer t.mu.Unlock()
	var added []geo.VisitedSample
	for _, s := range samples {
		if !s.LatLng().Valid() {
			continue
		}
		if n := len(t.samples); n > 0 && !t.keepAll {
			last := t.samples[n-1]
			if s.Timestamp.Before(last.Timestamp) || IsDuplicate(last, s) {
				continue
			}
		}
		t.samples = append(t.samples, s)
		t.tree.Insert(&item{s: s, rect: rtreego.Point{s.Lat, s.Lng}.ToRect(pointTolerance)})
		added = append(added, s)
	}
	return added
}

func (t *Track) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}

// Samples：全部样本副本（时间有序）
func (t *Track) Samples() []geo.VisitedSample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]geo.VisitedSample(nil), t.samples...)
}

// Last：末条样本
func (t *Track) Last() (geo.VisitedSample, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.samples) == 0 {
		return geo.VisitedSample{}, false
	}
	return t.samples[len(t.samples)-1], true
}

// 文档注释：检索范围内的样本
// 返回：按时间排序；范围退化时在两轴各补一个极小宽度。
func (t *Track) Within(b orb.Bound) []geo.VisitedSample {
	lat, lng := geo.LatSpan(b), geo.LngSpan(b)
	if lat <= 0 {
		lat = pointTolerance
	}
	if lng <= 0 {
		lng = pointTolerance
	}
	rect, err := rtreego.NewRect(rtreego.Point{b.Min[1], b.Min[0]}, []float64{lat, lng})
	if err != nil {
		return nil
	}
	t.mu.RLock()
	hits := t.tree.SearchIntersect(rect)
	t.mu.RUnlock()
	out := make([]geo.VisitedSample, 0, len(hits))
	for _, h := range hits {
		it, ok := h.(*item)
		if !ok {
			continue
		}
		if it.s.Lat >= b.Min[1] && it.s.Lat <= b.Max[1] && it.s.Lng >= b.Min[0] && it.s.Lng <= b.Max[0] {
			out = append(out, it.s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// 文档注释：合并本地样本与外部历史样本
// 背景：两路来源按时间戳归并后，再按与上一条样本的距离阈值去重。
func Merge(local, remote []geo.VisitedSample) []geo.VisitedSample {
	all := make([]geo.VisitedSample, 0, len(local)+len(remote))
	all = append(all, local...)
	all = append(all, remote...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return NewTrack(all...).Samples()
}
