// 包 api：集中注册 HTTP API 路由以解耦主入口
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"factmap/internal/config"
	"factmap/internal/engine"
	"factmap/internal/geo"
	"factmap/internal/locate"
	"factmap/internal/logger"
	"factmap/internal/metrics"
	"factmap/internal/resolver"
	"factmap/internal/snapshot"
	"factmap/internal/visited"

	"github.com/redis/go-redis/v9"
)

// 请求体上限（字节）
const maxBody = 4 << 20

// 定位成功但没有样本与事实时的初始缩放
const homeZoom = 10

// 文档注释：路由依赖
// 背景：ConfigErr 非空时地图相关端点统一返回 503 静态错误状态，样本读写不受影响。
// 约束：Store 必填；Locator 与 Redis 可为空。
type Deps struct {
	Config    config.Config
	ConfigErr error
	Geocoder  resolver.Geocoder
	Store     visited.Store
	Locator   locate.Locator
	Redis     *redis.Client
}

type server struct {
	Deps
}

// 构建并返回 API 路由：独立 ServeMux 便于在主入口挂载到 API_BASE 前缀
func BuildRoutes(d Deps) *http.ServeMux {
	s := &server{Deps: d}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.instrument("healthz", s.healthz))
	mux.HandleFunc("/render", s.instrument("render", s.requireMap(s.render)))
	mux.HandleFunc("/fog", s.instrument("fog", s.requireMap(s.fog)))
	mux.HandleFunc("/places", s.instrument("places", s.requireMap(s.places)))
	mux.HandleFunc("/home", s.instrument("home", s.home))
	mux.HandleFunc("/samples", s.instrument("samples", s.samples))
	return mux
}

func (s *server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := time.Now()
		metrics.RequestsTotal.WithLabelValues(route).Inc()
		h(w, r)
		metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(t).Milliseconds()))
	}
}

// requireMap：地图服务未配置时返回静态错误状态
func (s *server) requireMap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.ConfigErr != nil || s.Geocoder == nil {
			err := s.ConfigErr
			if err == nil {
				err = &geo.ConfigurationError{Key: config.KeyMapsAPIKey}
			}
			writeJSON(w, http.StatusServiceUnavailable, errorOut{Error: "map unavailable", Detail: err.Error()})
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writePNG(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	img, err := e.Export(r.Context())
	if errors.Is(err, snapshot.ErrNotReady) {
		writeJSON(w, http.StatusUnprocessableEntity, errorOut{Error: "nothing to render"})
		return
	}
	if err != nil {
		logger.L().Error("snapshot_error", "engine", e.ID, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorOut{Error: "render failed"})
		return
	}
	w.Header().Set("content-type", "image/png")
	w.Header().Set("cache-control", "no-store")
	w.Header().Set("content-disposition", `inline; filename="`+snapshot.FileName()+`"`)
	if err := snapshot.EncodePNG(w, img); err != nil {
		logger.L().Warn("snapshot_write_error", "err", err)
	}
}

func (s *server) newEngine() (*engine.Engine, error) {
	return engine.New(s.Geocoder, engine.OptionsFromConfig(s.Config))
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorOut{Error: "method not allowed"})
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"ok": s.ConfigErr == nil}
	if s.ConfigErr != nil {
		out["error"] = s.ConfigErr.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

// 文档注释：渲染地图事实
// 参数：format=png（默认）|json|geojson；focus=区域名称，等同于点击该区域。
// 返回：png 时附带 x-factmap-drawn / x-factmap-failed 头；所有区域都解析失败时返回 422。
func (s *server) render(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	fact, err := geo.DecodeFact(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorOut{Error: "invalid fact", Detail: err.Error()})
		return
	}
	e, err := s.newEngine()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorOut{Error: "map unavailable", Detail: err.Error()})
		return
	}
	defer e.Close()

	out, err := e.Show(r.Context(), fact)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorOut{Error: "render failed", Detail: err.Error()})
		return
	}
	st := e.State()
	if focus := strings.TrimSpace(r.URL.Query().Get("focus")); focus != "" {
		for _, sh := range out.Drawn {
			if strings.EqualFold(sh.Region.Name, focus) {
				st, _ = e.Click(sh.Handle)
				break
			}
		}
	}

	switch r.URL.Query().Get("format") {
	case "json":
		writeJSON(w, http.StatusOK, toRenderResult(fact, out, st))
		return
	case "geojson":
		w.Header().Set("content-type", "application/geo+json")
		_ = json.NewEncoder(w).Encode(e.GeoJSON())
		return
	}
	if !out.Fitted {
		writeJSON(w, http.StatusUnprocessableEntity, toRenderResult(fact, out, st))
		return
	}
	w.Header().Set("x-factmap-drawn", strconv.Itoa(len(out.Drawn)))
	w.Header().Set("x-factmap-failed", strconv.Itoa(len(out.Failed)))
	writePNG(w, r, e)
}

type fogRequest struct {
	Samples []geo.VisitedSample `json:"samples"`
	Center  *geo.LatLng         `json:"center,omitempty"`
	Zoom    float64             `json:"zoom,omitempty"`
}

// 文档注释：渲染到访迷雾
// 背景：请求未携带样本时使用已存储样本；未给出视图时按样本范围适配，无样本时按访问者 IP 定位，
// 仍无法定位时返回全球视图下的整幅迷雾。
func (s *server) fog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req fogRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorOut{Error: "invalid body", Detail: err.Error()})
		return
	}
	samples := req.Samples
	if len(samples) == 0 && s.Store != nil {
		loaded, err := s.Store.Load(r.Context())
		if err != nil {
			logger.L().Warn("samples_load_error", "err", err)
		}
		samples = loaded
	}

	e, err := s.newEngine()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorOut{Error: "map unavailable", Detail: err.Error()})
		return
	}
	defer e.Close()

	switch {
	case req.Center != nil && req.Center.Valid():
		zoom := req.Zoom
		if zoom <= 0 {
			zoom = homeZoom
		}
		e.View().SetView(*req.Center, zoom)
	case len(samples) == 0:
		if c, ok := s.locateHome(r.Context(), r); ok {
			e.View().SetView(c, homeZoom)
		}
	}
	mask := e.ShowFog(samples)
	w.Header().Set("x-fog-skipped", strconv.Itoa(mask.Skipped))
	w.Header().Set("x-fog-disks", strconv.Itoa(mask.Disks))
	writePNG(w, r, e)
}

// places：按样本检索周边兴趣点
func (s *server) places(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req samplesRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorOut{Error: "invalid body", Detail: err.Error()})
		return
	}
	e, err := s.newEngine()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorOut{Error: "map unavailable", Detail: err.Error()})
		return
	}
	defer e.Close()
	writeJSON(w, http.StatusOK, map[string]any{"places": e.Places(r.Context(), req.Samples)})
}

func (s *server) locateHome(ctx context.Context, r *http.Request) (geo.LatLng, bool) {
	if s.Locator == nil {
		return geo.LatLng{}, false
	}
	ip := getClientIP(r)
	c, ok := s.Locator.Locate(ctx, ip)
	logger.L().Debug("home_locate", "ip", ip, "ok", ok)
	return c, ok
}

// home：访问者所在位置（作为默认视图中心）
func (s *server) home(w http.ResponseWriter, r *http.Request) {
	c, ok := s.locateHome(r.Context(), r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorOut{Error: "location unknown"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"center": c, "zoom": homeZoom})
}

// 文档注释：样本读写
// 背景：GET 返回全部样本（时间升序）；POST 追加，短期重复上传经布隆过滤后再交给存储做轨迹去重。
func (s *server) samples(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorOut{Error: "sample store unavailable"})
		return
	}
	switch r.Method {
	case http.MethodGet:
		out, err := s.Store.Load(r.Context())
		if err != nil {
			logger.L().Error("samples_load_error", "err", err)
			writeJSON(w, http.StatusInternalServerError, errorOut{Error: "load failed"})
			return
		}
		if out == nil {
			out = []geo.VisitedSample{}
		}
		writeJSON(w, http.StatusOK, samplesRequest{Samples: out})
	case http.MethodPost:
		var req samplesRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorOut{Error: "invalid body", Detail: err.Error()})
			return
		}
		fresh := dropRecentlySeen(r.Context(), s.Redis, req.Samples)
		if err := s.Store.Append(r.Context(), fresh); err != nil {
			logger.L().Error("samples_append_error", "err", err)
			writeJSON(w, http.StatusInternalServerError, errorOut{Error: "append failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"received": len(req.Samples), "accepted": len(fresh)})
	default:
		methodNotAllowed(w)
	}
}
