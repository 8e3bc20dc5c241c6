package main

import (
	"fmt"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/signage-cache/internal/cache"
	"github.com/any-hub/signage-cache/internal/config"
	"github.com/any-hub/signage-cache/internal/fetch"
	"github.com/any-hub/signage-cache/internal/metrics"
	"github.com/any-hub/signage-cache/internal/notify"
	"github.com/any-hub/signage-cache/internal/preload"
	"github.com/any-hub/signage-cache/internal/proxy"
	"github.com/any-hub/signage-cache/internal/registry"
	"github.com/any-hub/signage-cache/internal/server"
	"github.com/any-hub/signage-cache/internal/server/routes"
	"github.com/any-hub/signage-cache/internal/strategy"
	"github.com/any-hub/signage-cache/internal/worker"
)

// service 持有进程内共享的组件。
type service struct {
	app      *fiber.App
	worker   *worker.Worker
	hub      *notify.Hub
	registry *registry.Registry
	logger   *logrus.Logger
}

// newService 组装全部组件，但不启动 Worker 也不监听端口。
func newService(cfg *config.Config, logger *logrus.Logger) (*service, error) {
	return newServiceWithBackend(cfg, logger, nil)
}

func newServiceWithBackend(cfg *config.Config, logger *logrus.Logger, backend cache.Backend) (*service, error) {
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(promRegistry)

	if backend == nil {
		var err error
		backend, err = cache.NewBackend(cfg.Global.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
		}
	}
	stores := registry.New(backend, logger)

	origins, err := server.NewOriginTable(cfg)
	if err != nil {
		return nil, fmt.Errorf("构建源站表失败: %w", err)
	}
	origin, err := url.Parse(cfg.Content.Origin)
	if err != nil {
		return nil, err
	}

	network := fetch.NewHTTPFetcher(server.NewUpstreamClient(cfg))
	mediaNetwork := fetch.WithRetry(network, cfg.Global.MaxRetries, cfg.Global.InitialBackoff.DurationValue(), logger)
	hub := notify.NewHub(cfg.Observer.EventBuffer, logger, m)

	dispatcher := strategy.NewDispatcher(strategy.Options{
		Registry:     stores,
		Fetcher:      network,
		MediaFetcher: mediaNetwork,
		Logger:       logger,
		Metrics:      m,
	})
	coordinator := preload.New(preload.Options{
		Registry:         stores,
		Fetcher:          network,
		Broadcaster:      hub,
		Origin:           origin,
		CheckConcurrency: cfg.Observer.PreloadCheckConcurrency,
		Logger:           logger,
		Metrics:          m,
	})
	media, data := cfg.Generation()
	w := worker.New(worker.Options{
		Registry:    stores,
		Fetcher:     network,
		Preloader:   coordinator,
		Origin:      origin,
		Generation:  registry.Generation{MediaVersion: media, DataVersion: data},
		ShellAssets: cfg.Content.ShellAssets,
		Logger:      logger,
	})

	forwarder := proxy.NewForwarder(
		proxy.NewHandler(dispatcher, logger),
		proxy.NewPassthrough(network, logger),
		logger,
	)
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Origins:    origins,
		Proxy:      forwarder,
		Ready:      w.Ready,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}

	routes.RegisterCommandRoutes(app, w, logger)
	routes.RegisterEventRoutes(app, hub, cfg.Observer.EventHeartbeat.DurationValue(), logger)
	routes.RegisterStatusRoutes(app, w, origins, hub)
	if cfg.Global.MetricsEnabled {
		routes.RegisterMetricsRoute(app, promRegistry)
	}

	return &service{
		app:      app,
		worker:   w,
		hub:      hub,
		registry: stores,
		logger:   logger,
	}, nil
}

// close 先结束事件流（SSE 连接会阻塞优雅退出），再停止 HTTP 服务与后台任务。
func (s *service) close(timeout time.Duration) {
	s.hub.Close()
	if err := s.app.ShutdownWithTimeout(timeout); err != nil {
		s.logger.WithError(err).WithField("action", "shutdown").Warn("http shutdown incomplete")
	}
	s.worker.Shutdown()
	s.logger.WithField("action", "shutdown").Info("service stopped")
}
