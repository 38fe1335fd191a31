// 包 config：集中读取环境变量；数值解析失败时静默回退默认值
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"factmap/internal/geo"
)

const KeyMapsAPIKey = "MAPS_API_KEY"

// 文档注释：运行配置
// 背景：服务与命令行共用；godotenv 在入口处先加载 .env，再由 FromEnv 统一读取。
type Config struct {
	MapsAPIKey      string
	MapsBaseURL     string
	HTTPAddr        string
	APIBase         string
	ViewWidth       int
	ViewHeight      int
	TileURLTemplate string

	GeocodeCacheTTL  time.Duration
	GeocodeCacheSize int
	GeocodeTimeout   time.Duration

	POIBatchSize  int
	POIBatchDelay time.Duration
	POIRadiusM    uint

	SampleStore string

	RedisAddr string
	RedisPass string
	RedisDB   int

	GeoIPPath     string
	IP2RegionPath string
	AMapKey       string

	HistoryToken        string
	HistorySyncInterval time.Duration

	PostgresDSN string

	RateLimitRPS int
	SnapshotDir  string

	TLSEnable   bool
	TLSCertPath string
	TLSKeyPath  string
}

// FromEnv：读取全部配置项
func FromEnv() Config {
	return Config{
		MapsAPIKey:          strings.TrimSpace(os.Getenv(KeyMapsAPIKey)),
		MapsBaseURL:         os.Getenv("MAPS_BASE_URL"),
		HTTPAddr:            str("HTTP_ADDR", ":8080"),
		APIBase:             str("API_BASE", "/api"),
		ViewWidth:           num("VIEW_WIDTH", 1024),
		ViewHeight:          num("VIEW_HEIGHT", 768),
		TileURLTemplate:     os.Getenv("TILE_URL_TEMPLATE"),
		GeocodeCacheTTL:     time.Duration(num("GEOCODE_CACHE_TTL_S", 3600)) * time.Second,
		GeocodeCacheSize:    num("GEOCODE_CACHE_SIZE", 4096),
		GeocodeTimeout:      time.Duration(num("GEOCODE_TIMEOUT_MS", 5000)) * time.Millisecond,
		POIBatchSize:        num("POI_BATCH_SIZE", 5),
		POIBatchDelay:       time.Duration(num("POI_BATCH_DELAY_MS", 1000)) * time.Millisecond,
		POIRadiusM:          uint(num("POI_RADIUS_M", 1000)),
		SampleStore:         strings.ToLower(str("SAMPLE_STORE", "memory")),
		RedisAddr:           redisAddr(),
		RedisPass:           os.Getenv("REDIS_PASS"),
		RedisDB:             num("REDIS_DB", 0),
		GeoIPPath:           os.Getenv("GEOIP_PATH"),
		IP2RegionPath:       os.Getenv("IP2REGION_PATH"),
		AMapKey:             os.Getenv("AMAP_SERVER_KEY"),
		HistoryToken:        os.Getenv("HISTORY_ACCESS_TOKEN"),
		HistorySyncInterval: time.Duration(num("HISTORY_SYNC_INTERVAL_S", 0)) * time.Second,
		RateLimitRPS:        num("RATE_LIMIT_RPS", 0),
		PostgresDSN:         os.Getenv("PG_DSN"),
		SnapshotDir:         str("SNAPSHOT_DIR", "."),
		TLSEnable:           os.Getenv("TLS_ENABLE") == "true",
		TLSCertPath:         str("TLS_CERT_PATH", filepath.Join("data", "certs", "server.crt")),
		TLSKeyPath:          str("TLS_KEY_PATH", filepath.Join("data", "certs", "server.key")),
	}
}

// 文档注释：校验必需项
// 返回：缺少地图凭据时返回 *geo.ConfigurationError；调用方据此进入静态错误状态。
func (c Config) Validate() error {
	if c.MapsAPIKey == "" {
		return &geo.ConfigurationError{Key: KeyMapsAPIKey}
	}
	return nil
}

func redisAddr() string {
	if a := os.Getenv("REDIS_ADDR"); a != "" {
		return a
	}
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return ""
	}
	return host + ":" + str("REDIS_PORT", "6379")
}

func str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func num(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
