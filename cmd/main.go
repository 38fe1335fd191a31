// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"factmap/internal/amap"
	"factmap/internal/api"
	"factmap/internal/config"
	"factmap/internal/geocode"
	"factmap/internal/history"
	"factmap/internal/locate"
	"factmap/internal/logger"
	"factmap/internal/metrics"
	"factmap/internal/middleware"
	"factmap/internal/resolver"
	"factmap/internal/utils"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok")
	c := config.FromEnv()
	l.Debug("config_api_base", "base", c.APIBase)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc := utils.OpenRedis(ctx, c)
	if rc != nil {
		defer rc.Close()
	}
	store, closeStore, err := utils.OpenSampleStore(ctx, c, rc)
	if err != nil {
		l.Error("sample_store_error", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	// 背景：缺少地图凭据时服务照常启动，地图端点返回静态错误状态
	cfgErr := c.Validate()
	var gc resolver.Geocoder
	var client *geocode.Client
	if cfgErr == nil {
		client, cfgErr = geocode.New(geocode.OptionsFromConfig(c, rc))
	}
	if cfgErr != nil {
		l.Error("config_error", "err", cfgErr)
	} else {
		gc = client
		l.Info("geocoder_ready", "base_url", c.MapsBaseURL != "")
	}

	var chain locate.Chain
	if c.GeoIPPath != "" {
		if g, err := locate.OpenGeoIP(c.GeoIPPath); err == nil {
			defer g.Close()
			chain = append(chain, g)
			l.Info("geoip_ready", "path", c.GeoIPPath)
		} else {
			l.Error("geoip_open_error", "err", err)
		}
	}
	if c.IP2RegionPath != "" && client != nil {
		if r, err := locate.OpenIP2Region(c.IP2RegionPath, client); err == nil {
			chain = append(chain, r)
			l.Info("ip2region_ready", "path", c.IP2RegionPath)
		} else {
			l.Error("ip2region_error", "err", err)
		}
	}
	if c.AMapKey != "" {
		chain = append(chain, amap.New(c.AMapKey))
		l.Info("amap_locator_ready")
	}
	var locator locate.Locator
	if len(chain) > 0 {
		locator = chain
	}

	// 文档注释：位置历史后台同步
	// 背景：配置了访问令牌与同步间隔时，周期拉取日历事件地点并追加到样本存储。
	if c.HistoryToken != "" && c.HistorySyncInterval > 0 && client != nil {
		src := &history.Source{Lister: history.CalendarLister{}, Geocoder: client}
		src.Start(ctx, c.HistoryToken, store, c.HistorySyncInterval)
		l.Info("history_sync_enabled", "interval", c.HistorySyncInterval.String())
	}

	apiMux := api.BuildRoutes(api.Deps{
		Config:    c,
		ConfigErr: cfgErr,
		Geocoder:  gc,
		Store:     store,
		Locator:   locator,
		Redis:     rc,
	})
	mux := http.NewServeMux()
	mux.Handle(c.APIBase+"/", http.StripPrefix(c.APIBase, apiMux))
	mux.Handle(c.APIBase+"/metrics", metrics.Handler())

	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler, c.RateLimitRPS)
	s := &http.Server{Addr: c.HTTPAddr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()

	if c.TLSEnable {
		if err := utils.EnsureSelfSignedCert(c.TLSCertPath, c.TLSKeyPath); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", c.HTTPAddr, "cert", c.TLSCertPath)
		err = s.ListenAndServeTLS(c.TLSCertPath, c.TLSKeyPath)
	} else {
		l.Info("listening", "addr", c.HTTPAddr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
	l.Info("server_stopped")
}
