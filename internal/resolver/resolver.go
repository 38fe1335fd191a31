// 包 resolver：把区域的地名或坐标解析为地图几何；同键解析只发起一次网络调用
package resolver

import (
	"context"
	"errors"
	"sync"
	"time"

	"factmap/internal/geo"
	"factmap/internal/geocode"
	"factmap/internal/logger"
	"factmap/internal/metrics"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Geocoder：解析器依赖的地图服务能力
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geocode.Lookup, error)
	Nearby(ctx context.Context, at geo.LatLng, radiusM uint) ([]geocode.Place, error)
}

const (
	DefaultBatchSize  = 5
	DefaultBatchDelay = time.Second
)

// Options：批处理与半径参数，零值使用默认
type Options struct {
	RadiusMeters float64
	BatchSize    int
	BatchDelay   time.Duration
	POIRadiusM   uint
}

// 文档注释：几何解析器
// 背景：缓存生命周期与所属引擎实例一致；失败结果不缓存，用户重试会重新发起查询。
// 约束：并发安全；同一键的在途查询通过 singleflight 合并。
type Resolver struct {
	gc   Geocoder
	opts Options

	mu    sync.RWMutex
	cache map[string]geo.ResolvedGeometry
	sf    singleflight.Group

	sleep func(ctx context.Context, d time.Duration) error
}

func New(gc Geocoder, o Options) *Resolver {
	if o.RadiusMeters <= 0 {
		o.RadiusMeters = geo.DefaultRadiusMeters
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchDelay < 0 {
		o.BatchDelay = 0
	} else if o.BatchDelay == 0 {
		o.BatchDelay = DefaultBatchDelay
	}
	if o.POIRadiusM == 0 {
		o.POIRadiusM = geocode.DefaultNearbyRadius
	}
	return &Resolver{gc: gc, opts: o, cache: make(map[string]geo.ResolvedGeometry), sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Cached：读取已缓存的几何
func (r *Resolver) Cached(region geo.Region) (geo.ResolvedGeometry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.cache[region.Key()]
	return g, ok
}

// 文档注释：解析单个区域
// 背景：带坐标的区域同步合成固定半径的圆，不访问网络；地名区域走地理编码。
// 返回：状态非 OK 或零结果时返回 *geo.ResolutionError，仅影响该区域。
func (r *Resolver) Resolve(ctx context.Context, region geo.Region) (geo.ResolvedGeometry, error) {
	if region.Coordinates != nil {
		return geo.CircleGeometry(*region.Coordinates, r.opts.RadiusMeters), nil
	}
	key := region.Key()
	if g, ok := r.Cached(region); ok {
		metrics.ResolverCacheHitsTotal.Inc()
		return g, nil
	}
	v, err, shared := r.sf.Do(key, func() (any, error) {
		if g, ok := r.Cached(region); ok {
			return g, nil
		}
		metrics.ResolverCacheMissesTotal.Inc()
		lk, err := r.gc.Geocode(ctx, region.Name)
		if err != nil {
			return nil, &geo.ResolutionError{Region: region.Name, Status: string(geocode.StatusError), Err: err}
		}
		if lk.Status != geocode.StatusOK {
			return nil, &geo.ResolutionError{Region: region.Name, Status: string(lk.Status)}
		}
		g := geo.BBoxGeometry(lk.Bounds())
		r.mu.Lock()
		r.cache[key] = g
		r.mu.Unlock()
		return g, nil
	})
	if shared {
		logger.L().Debug("region_resolve_shared", "region", region.Name)
	}
	if err != nil {
		metrics.ResolutionFailuresTotal.Inc()
		return geo.ResolvedGeometry{}, err
	}
	return v.(geo.ResolvedGeometry), nil
}

// Result：单个区域的解析结果
type Result struct {
	Index    int
	Region   geo.Region
	Geometry geo.ResolvedGeometry
	Err      error
}

func (res Result) OK() bool { return res.Err == nil }

// 文档注释：并发解析一组区域（不分批）
// 背景：事实区域通常不超过 7 个，全部同时发起；每个区域结算后立即回调，便于逐个绘制。
// 约束：回调串行执行；返回值按输入顺序排列，且在全部区域结算后才返回。
func (r *Resolver) ResolveAll(ctx context.Context, regions []geo.Region, onSettle func(Result)) []Result {
	out := make([]Result, len(regions))
	var cbMu sync.Mutex
	var g errgroup.Group
	for i, reg := range regions {
		i, reg := i, reg
		g.Go(func() error {
			geom, err := r.Resolve(ctx, reg)
			res := Result{Index: i, Region: reg, Geometry: geom, Err: err}
			if err != nil {
				logger.L().Warn("region_resolve_error", "region", reg.DisplayName(), "err", err)
			}
			out[i] = res
			if onSettle != nil {
				cbMu.Lock()
				onSettle(res)
				cbMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// 文档注释：按到访样本检索周边兴趣点
// 背景：上游有速率限制，每批 BatchSize 个并发请求，整批完成后等待 BatchDelay 再发下一批。
// 返回：按 PlaceID 去重后的兴趣点；单个检索失败被跳过；ctx 取消时返回已收集部分。
func (r *Resolver) DiscoverPlaces(ctx context.Context, samples []geo.VisitedSample) []geocode.Place {
	if len(samples) == 0 {
		logger.L().Debug("discover_places_empty")
		return []geocode.Place{}
	}
	seen := make(map[string]bool)
	var out []geocode.Place
	var mu sync.Mutex
	for start := 0; start < len(samples); start += r.opts.BatchSize {
		end := start + r.opts.BatchSize
		if end > len(samples) {
			end = len(samples)
		}
		var g errgroup.Group
		for _, s := range samples[start:end] {
			s := s
			g.Go(func() error {
				places, err := r.gc.Nearby(ctx, s.LatLng(), r.opts.POIRadiusM)
				if err != nil {
					logger.L().Warn("nearby_lookup_error", "lat", s.Lat, "lng", s.Lng, "err", err)
					return nil
				}
				mu.Lock()
				defer mu.Unlock()
				for _, p := range places {
					if p.Name == "" {
						continue
					}
					k := p.PlaceID
					if k == "" {
						k = p.Name + "@" + geo.Region{Coordinates: &p.Location}.Key()
					}
					if seen[k] {
						continue
					}
					seen[k] = true
					out = append(out, p)
				}
				return nil
			})
		}
		_ = g.Wait()
		if end < len(samples) {
			if err := r.sleep(ctx, r.opts.BatchDelay); err != nil {
				logger.L().Info("discover_places_cancelled", "processed", end, "total", len(samples))
				break
			}
		}
	}
	logger.L().Debug("discover_places_done", "samples", len(samples), "places", len(out))
	if out == nil {
		out = []geocode.Place{}
	}
	return out
}

// IsResolution：是否为单区域解析失败
func IsResolution(err error) bool { return errors.Is(err, geo.ErrResolution) }
