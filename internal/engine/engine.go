// 包 engine：单个地图实例的编排（区域解析、覆盖物绘制、视图适配、迷雾与快照导出）
package engine

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"factmap/internal/config"
	"factmap/internal/fog"
	"factmap/internal/geo"
	"factmap/internal/geocode"
	"factmap/internal/logger"
	"factmap/internal/mapview"
	"factmap/internal/metrics"
	"factmap/internal/overlay"
	"factmap/internal/resolver"
	"factmap/internal/snapshot"
	"factmap/internal/viewport"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrNoFact：尚未展示任何事实
var ErrNoFact = errors.New("no fact shown")

// Options：引擎参数；零值尺寸使用 1024×768
type Options struct {
	Width    int
	Height   int
	Resolver resolver.Options
	Base     snapshot.Base
	// TrackPan 为真时迷雾在平移时也重新生成
	TrackPan bool
}

// OptionsFromConfig：由服务配置构造引擎参数
// 约束：TILE_URL_TEMPLATE 为空时使用纯色底图，为 default 时使用瓦片库默认源。
func OptionsFromConfig(c config.Config) Options {
	o := Options{
		Width:  c.ViewWidth,
		Height: c.ViewHeight,
		Resolver: resolver.Options{
			BatchSize:  c.POIBatchSize,
			BatchDelay: c.POIBatchDelay,
			POIRadiusM: c.POIRadiusM,
		},
	}
	switch c.TileURLTemplate {
	case "":
	case "default":
		o.Base = snapshot.TileBase{UserAgent: "factmap"}
	default:
		o.Base = snapshot.TileBase{URLTemplate: c.TileURLTemplate, UserAgent: "factmap"}
	}
	return o
}

// Failure：解析失败的区域
type Failure struct {
	Region geo.Region
	Err    error
}

// 文档注释：一次事实展示的结果
// 约束：Stale 为真表示期间有更新的事实替换了本次展示，Drawn 与 View 无意义。
type Outcome struct {
	Drawn  []overlay.Shape
	Failed []Failure
	View   viewport.State
	Fitted bool
	Stale  bool
}

// 文档注释：地图引擎
// 背景：一个实例对应一张地图；解析缓存跨事实保留，覆盖物与迷雾随事实或样本整体替换。
// 约束：同一时刻只展示一个事实；展示新事实时代际号递增，旧代际的迟到解析结果被丢弃。
type Engine struct {
	ID string

	view     *mapview.Map
	resolver *resolver.Resolver
	renderer *overlay.Renderer
	fog      *fog.Layer
	exporter *snapshot.Exporter

	mu     sync.Mutex
	gen    uint64
	fact   *geo.GeoFact
	fogOn  bool
	closed bool
}

// 文档注释：创建引擎
// 返回：地图服务未配置时返回 *geo.ConfigurationError，调用方渲染静态错误状态。
func New(gc resolver.Geocoder, o Options) (*Engine, error) {
	if gc == nil {
		return nil, &geo.ConfigurationError{Key: config.KeyMapsAPIKey}
	}
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = 1024, 768
	}
	view := mapview.New(o.Width, o.Height)
	e := &Engine{
		ID:       uuid.NewString(),
		view:     view,
		resolver: resolver.New(gc, o.Resolver),
		renderer: overlay.New(view),
		fog:      fog.NewLayer(view, fog.NewGenerator(), o.TrackPan),
		exporter: snapshot.New(o.Base),
	}
	logger.L().Debug("engine_created", "engine", e.ID, "width", o.Width, "height", o.Height)
	return e, nil
}

// View：底层地图视图
func (e *Engine) View() *mapview.Map { return e.view }

// Resolver：区域解析器（缓存在引擎生命周期内有效）
func (e *Engine) Resolver() *resolver.Resolver { return e.resolver }

func (e *Engine) current(gen uint64) bool {
	return e.gen == gen && !e.closed
}

// 文档注释：展示一个地图事实
// 背景：先销毁上一事实的图形，再并发解析全部区域；每个区域结算即绘制，全部结算后按成功区域的并集适配一次视图。
// 约束：解析失败的区域只记录并跳过；全部失败时视图不变；期间被更新的事实替换则返回 Stale。
func (e *Engine) Show(ctx context.Context, fact *geo.GeoFact) (Outcome, error) {
	if fact == nil {
		return Outcome{}, ErrNoFact
	}
	if err := fact.Validate(); err != nil {
		return Outcome{}, err
	}
	start := time.Now()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Outcome{}, errors.New("engine closed")
	}
	e.gen++
	gen := e.gen
	e.fact = fact
	e.renderer.Teardown()
	e.mu.Unlock()

	var out Outcome
	// 按输入顺序记录已绘制图形，绘制本身按结算顺序进行
	attached := make([]*overlay.Shape, len(fact.Regions))
	results := e.resolver.ResolveAll(ctx, fact.Regions, func(res resolver.Result) {
		if !res.OK() {
			return
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.current(gen) {
			metrics.StaleResultsTotal.Inc()
			return
		}
		sh := e.renderer.Attach(res.Region, res.Geometry)
		if res.Index >= 0 && res.Index < len(attached) {
			attached[res.Index] = &sh
		}
	})

	ext := make([]orb.Bound, 0, len(results))
	for _, res := range results {
		if !res.OK() {
			out.Failed = append(out.Failed, Failure{Region: res.Region, Err: res.Err})
			continue
		}
		ext = append(ext, res.Geometry.Extent())
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.current(gen) {
		out.Stale = true
		logger.L().Info("fact_stale", "engine", e.ID, "title", fact.Title)
		return out, nil
	}
	for _, sh := range attached {
		if sh != nil {
			out.Drawn = append(out.Drawn, *sh)
		}
	}
	if u, ok := geo.Union(ext...); ok {
		out.View = e.renderer.FitUnion(u)
		out.Fitted = true
	}
	logger.L().Info("fact_shown",
		"engine", e.ID,
		"title", fact.Title,
		"regions", len(fact.Regions),
		"drawn", len(out.Drawn),
		"failed", len(out.Failed),
		"zoom", out.View.Zoom,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// Fact：当前事实
func (e *Engine) Fact() *geo.GeoFact {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fact
}

// Click：点击图形或其文字标记
func (e *Engine) Click(h mapview.Handle) (viewport.State, bool) {
	return e.renderer.Click(h)
}

// Reset：清除高亮并重新适配全部图形
func (e *Engine) Reset() (viewport.State, bool) {
	return e.renderer.Reset()
}

// State：当前视口状态
func (e *Engine) State() viewport.State { return e.renderer.State() }

// Shapes：当前图形
func (e *Engine) Shapes() []overlay.Shape { return e.renderer.Shapes() }

// GeoJSON：当前图形导出为 FeatureCollection
func (e *Engine) GeoJSON() *geojson.FeatureCollection { return e.renderer.GeoJSON() }

// 文档注释：展示到访迷雾
// 背景：视图尚未定位（未展示过事实）时，先按样本范围适配视图；没有有效样本时退回全球视图。
func (e *Engine) ShowFog(samples []geo.VisitedSample) *fog.Mask {
	e.mu.Lock()
	e.fogOn = true
	e.mu.Unlock()
	if !e.view.Ready() && len(samples) > 0 {
		ext := make([]orb.Bound, 0, len(samples))
		for _, s := range samples {
			if s.LatLng().Valid() {
				ext = append(ext, geo.PointBounds(s.LatLng()))
			}
		}
		if u, ok := geo.Union(ext...); ok {
			viewport.Fit(e.view, u)
		}
	}
	if !e.view.Ready() {
		// 没有可定位的样本：全球视图下整幅遮盖
		e.view.SetView(geo.LatLng{}, mapview.MinZoom)
	}
	return e.fog.SetSamples(samples)
}

// HideFog：导出时不再合成迷雾
func (e *Engine) HideFog() {
	e.mu.Lock()
	e.fogOn = false
	e.mu.Unlock()
}

// Fog：当前迷雾遮罩；未启用时为 nil
func (e *Engine) Fog() *fog.Mask {
	e.mu.Lock()
	on := e.fogOn
	e.mu.Unlock()
	if !on {
		return nil
	}
	return e.fog.Current()
}

// Places：按到访样本检索周边兴趣点
func (e *Engine) Places(ctx context.Context, samples []geo.VisitedSample) []geocode.Place {
	return e.resolver.DiscoverPlaces(ctx, samples)
}

// Export：导出当前视图快照；视图未就绪时返回 snapshot.ErrNotReady
func (e *Engine) Export(ctx context.Context) (image.Image, error) {
	f := snapshot.Frame{View: e.view, Shapes: e.view.Shapes(), Fog: e.Fog()}
	if fact := e.Fact(); fact != nil {
		f.Title = fact.Title
	}
	return e.exporter.Export(ctx, f)
}

// Close：销毁图形与迷雾订阅（幂等）；进行中的展示结果将被丢弃
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.gen++
	e.mu.Unlock()
	e.renderer.Close()
	e.fog.Close()
	logger.L().Debug("engine_closed", "engine", e.ID)
}
