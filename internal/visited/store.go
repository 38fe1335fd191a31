package visited

import (
	"context"

	"factmap/internal/geo"
	"factmap/internal/metrics"
)

// Store：到访样本的可注入持久化
type Store interface {
	Load(ctx context.Context) ([]geo.VisitedSample, error)
	Append(ctx context.Context, samples []geo.VisitedSample) error
}

// MemoryStore：进程内存储（默认）
type MemoryStore struct {
	t *Track
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{t: NewTrack()} }

func (m *MemoryStore) Load(ctx context.Context) ([]geo.VisitedSample, error) {
	return m.t.Samples(), nil
}

func (m *MemoryStore) Append(ctx context.Context, samples []geo.VisitedSample) error {
	added := m.t.Append(samples...)
	metrics.SampleAppendsTotal.WithLabelValues("memory").Add(float64(len(added)))
	return nil
}

// 文档注释：去重后写入
// 背景：持久化存储只保存通过轨迹规则的样本；先读取末条样本作为去重基准。
func filterNew(last *geo.VisitedSample, samples []geo.VisitedSample) []geo.VisitedSample {
	t := NewTrack()
	if last != nil {
		t.Append(*last)
	}
	return t.Append(samples...)
}
