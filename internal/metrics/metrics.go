package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var msBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000}

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "factmap_requests_total",
		Help: "Total HTTP API requests by route",
	}, []string{"route"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "factmap_request_duration_ms",
		Help:    "HTTP API request duration in milliseconds",
		Buckets: msBuckets,
	}, []string{"route"})
	GeocodeRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "factmap_geocode_requests_total",
		Help: "Total map provider requests by kind (geocode|nearby)",
	}, []string{"kind"})
	GeocodeSuccessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "factmap_geocode_success_total",
		Help: "Total map provider requests with at least one result",
	}, []string{"kind"})
	GeocodeFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "factmap_geocode_fail_total",
		Help: "Total map provider requests that errored or had zero results",
	}, []string{"kind"})
	GeocodeDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "factmap_geocode_duration_ms",
		Help:    "Map provider call duration in milliseconds",
		Buckets: msBuckets,
	}, []string{"kind"})
	GeocodeCacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "factmap_geocode_cache_hits_total",
		Help: "Geocode response cache hits by tier (lru|redis)",
	}, []string{"tier"})
	ResolverCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "factmap_resolver_cache_hits_total",
		Help: "Region geometry cache hits",
	})
	ResolverCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "factmap_resolver_cache_misses_total",
		Help: "Region geometry cache misses",
	})
	ResolutionFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "factmap_resolution_failures_total",
		Help: "Regions skipped because they could not be resolved",
	})
	StaleResultsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "factmap_stale_results_total",
		Help: "Resolution results dropped because a newer fact replaced them",
	})
	FogRegenerationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "factmap_fog_regenerations_total",
		Help: "Total fog mask regenerations",
	})
	FogDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "factmap_fog_duration_ms",
		Help:    "Fog mask regeneration duration in milliseconds",
		Buckets: msBuckets,
	})
	FogSkippedStampsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "factmap_fog_skipped_stamps_total",
		Help: "Fog stamps skipped because projection was unavailable",
	})
	SnapshotExportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "factmap_snapshot_exports_total",
		Help: "Snapshot exports by status (ok|not_ready|error)",
	}, []string{"status"})
	SampleAppendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "factmap_sample_appends_total",
		Help: "Visited samples appended by store",
	}, []string{"store"})
	HistorySyncTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "factmap_history_sync_total",
		Help: "Location history sync runs by status",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(GeocodeRequestsTotal)
	prometheus.MustRegister(GeocodeSuccessTotal)
	prometheus.MustRegister(GeocodeFailTotal)
	prometheus.MustRegister(GeocodeDurationMs)
	prometheus.MustRegister(GeocodeCacheHitsTotal)
	prometheus.MustRegister(ResolverCacheHitsTotal)
	prometheus.MustRegister(ResolverCacheMissesTotal)
	prometheus.MustRegister(ResolutionFailuresTotal)
	prometheus.MustRegister(StaleResultsTotal)
	prometheus.MustRegister(FogRegenerationsTotal)
	prometheus.MustRegister(FogDurationMs)
	prometheus.MustRegister(FogSkippedStampsTotal)
	prometheus.MustRegister(SnapshotExportsTotal)
	prometheus.MustRegister(SampleAppendsTotal)
	prometheus.MustRegister(HistorySyncTotal)
}

// 文档注释：返回 Prometheus 指标处理器
// 背景：主入口挂载到 /metrics。
func Handler() http.Handler { return promhttp.Handler() }
