// Package app wires every gateway component into one running process:
// config, logger, scan pipelines, cache, concurrency manager, backend
// pool, router, and the admin surface. Mirrors the teacher's
// internal/application.App — a dependency-injection container built by a
// sequence of init steps, each returning a wrapped error — generalized
// from an agent runtime to a policy-enforcing proxy.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/sentrygate/gateway/internal/admin"
	"github.com/sentrygate/gateway/internal/backend"
	"github.com/sentrygate/gateway/internal/concurrency"
	"github.com/sentrygate/gateway/internal/config"
	"github.com/sentrygate/gateway/internal/errcatalog"
	"github.com/sentrygate/gateway/internal/eventsink"
	"github.com/sentrygate/gateway/internal/ingress"
	"github.com/sentrygate/gateway/internal/router"
	"github.com/sentrygate/gateway/internal/scan"
	"github.com/sentrygate/gateway/internal/scancache"
	"github.com/sentrygate/gateway/internal/streammediator"
	"github.com/sentrygate/gateway/pkg/safego"
)

// App is the process singleton: every component plus the HTTP server that
// fronts them.
type App struct {
	config *config.Config
	logger *zap.Logger

	filter          *ingress.Filter
	inputPipeline   *scan.Pipeline
	outputPipeline  *scan.Pipeline
	cache           scancache.Backend
	concurrency     *concurrency.Manager
	backends        *backend.Pool
	client          *backend.Client
	sink            eventsink.Sink
	errCatalog      *errcatalog.Catalog
	router          *router.Router
	admin           *admin.Handlers

	engine     *gin.Engine
	httpServer *http.Server

	purgerDone <-chan struct{}
	purgerCtx  context.Context
	purgerStop context.CancelFunc

	configWatcher  *config.Watcher
	tracerProvider *sdktrace.TracerProvider
}

// NewApp builds every component but does not start listening.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{config: cfg, logger: logger}

	if err := app.initTracing(); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	if err := app.initIngress(); err != nil {
		return nil, fmt.Errorf("init ingress: %w", err)
	}
	if err := app.initScanPipelines(); err != nil {
		return nil, fmt.Errorf("init scan pipelines: %w", err)
	}
	if err := app.initCache(); err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	if err := app.initConcurrency(); err != nil {
		return nil, fmt.Errorf("init concurrency: %w", err)
	}
	if err := app.initBackends(); err != nil {
		return nil, fmt.Errorf("init backends: %w", err)
	}
	if err := app.initEventSink(); err != nil {
		return nil, fmt.Errorf("init event sink: %w", err)
	}
	if err := app.initErrorCatalog(); err != nil {
		return nil, fmt.Errorf("init error catalog: %w", err)
	}
	if err := app.initRouter(); err != nil {
		return nil, fmt.Errorf("init router: %w", err)
	}
	if err := app.initAdmin(); err != nil {
		return nil, fmt.Errorf("init admin surface: %w", err)
	}
	if err := app.initHTTPServer(); err != nil {
		return nil, fmt.Errorf("init http server: %w", err)
	}

	return app, nil
}

// initTracing registers a process-wide sdk TracerProvider in place of
// otel's default no-op provider, so internal/router's spans are recorded
// with real span contexts. No span processor or exporter is registered:
// ended spans are neither kept in-process nor exported anywhere.
func (app *App) initTracing() error {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	app.tracerProvider = tp
	return nil
}

func (app *App) initIngress() error {
	filter, err := ingress.NewFilter(app.config.AllowList)
	if err != nil {
		return err
	}
	app.filter = filter
	return nil
}

func (app *App) initScanPipelines() error {
	input, err := pipelineFor(app.config.Input)
	if err != nil {
		return fmt.Errorf("input stage: %w", err)
	}
	output, err := pipelineFor(app.config.Output)
	if err != nil {
		return fmt.Errorf("output stage: %w", err)
	}
	app.inputPipeline = input
	app.outputPipeline = output
	return nil
}

func (app *App) initCache() error {
	cacheCfg := app.config.Cache
	ttl := time.Duration(cacheCfg.TTLSec) * time.Second
	if cacheCfg.Backend == "external" && cacheCfg.RedisAddr != "" {
		app.cache = scancache.NewRedisCache(cacheCfg.RedisAddr, ttl)
		return nil
	}
	maxEntries := cacheCfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	cache, err := scancache.New(maxEntries, ttl)
	if err != nil {
		return err
	}
	app.cache = cache
	return nil
}

func (app *App) initConcurrency() error {
	memGB := concurrency.AvailableMemGB()
	defaultParallel := config.ParallelLimit(app.config.Concurrency.DefaultParallelLimit, memGB)
	mgr := concurrency.NewManager(defaultParallel, app.config.Concurrency.DefaultQueueLimit)

	for _, m := range app.config.Concurrency.Models {
		limit := config.ParallelLimit(m.ParallelLimit, memGB)
		queueLimit := m.QueueLimit
		mgr.Reconfigure(m.Model, &limit, &queueLimit)
	}

	app.concurrency = mgr
	return nil
}

func (app *App) initBackends() error {
	targets := make([]backend.Target, 0, len(app.config.Backends))
	for _, b := range app.config.Backends {
		targets = append(targets, backend.Target{Name: b.Name, BaseURL: b.BaseURL, Weight: b.Weight})
	}
	if len(targets) == 0 {
		return fmt.Errorf("no backends configured")
	}
	app.backends = backend.NewPool(targets)
	app.client = backend.NewClient(32, 90*time.Second)
	return nil
}

func (app *App) initEventSink() error {
	app.sink = eventsink.NewMultiSink(
		eventsink.NewZapEventSink(app.logger),
		eventsink.NewPrometheusEventSink(prometheus.DefaultRegisterer),
	)
	return nil
}

func (app *App) initErrorCatalog() error {
	app.errCatalog = errcatalog.New()
	return nil
}

func (app *App) initRouter() error {
	requestTimeout := time.Duration(app.config.RequestTimeoutSec) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = 300 * time.Second
	}

	app.router = &router.Router{
		Filter:         app.filter,
		InputPipeline:  app.inputPipeline,
		OutputPipeline: app.outputPipeline,
		Cache:          app.cache,
		Concurrency:    app.concurrency,
		Backends:       app.backends,
		Client:         app.client,
		Sink:           app.sink,
		Errors:         app.errCatalog,
		StreamCfg: streammediator.Config{
			ScanBytes:    app.config.Stream.ScanBytes,
			ScanInterval: time.Duration(app.config.Stream.ScanMs) * time.Millisecond,
			MaxBufferBytes: app.config.Stream.MaxBufferBytes,
		},
		LanguageEnabled: app.config.Language.Enabled,
		RequestTimeout:  requestTimeout,
	}
	return nil
}

func (app *App) initAdmin() error {
	app.admin = admin.New(app.concurrency, app.cache, app.backends, app.sink, app.scannerNames)
	return nil
}

func (app *App) scannerNames() []string {
	names := make([]string, 0)
	for _, s := range app.config.Input.Scanners {
		names = append(names, s.Name)
	}
	for _, s := range app.config.Output.Scanners {
		names = append(names, s.Name)
	}
	return names
}

func (app *App) initHTTPServer() error {
	if app.config.Listen.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(app.accessLogMiddleware())

	app.router.RegisterOllamaRoutes(engine)
	app.router.RegisterOpenAIRoutes(engine)
	app.admin.Register(engine)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	app.engine = engine
	addr := fmt.Sprintf("%s:%d", app.config.Listen.Host, app.config.Listen.Port)
	app.httpServer = &http.Server{Addr: addr, Handler: engine}
	return nil
}

func (app *App) accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		app.logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// Start begins serving and the scan-cache purger; it returns right after
// launching the server goroutine, without waiting for the listener to
// bind, and any serve error (including a failed bind) is only logged.
func (app *App) Start(ctx context.Context) error {
	app.purgerCtx, app.purgerStop = context.WithCancel(context.Background())
	if purger, ok := app.cache.(*scancache.Cache); ok {
		app.purgerDone = purger.StartPurger(app.purgerCtx, app.logger, 5*time.Minute)
	}

	app.logger.Info("starting gateway", zap.String("address", app.httpServer.Addr))
	safego.Go(app.logger, "http-server", func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Error("http server error", zap.Error(err))
		}
	})
	return nil
}

// Stop gracefully drains in-flight requests and stops the purger.
func (app *App) Stop(ctx context.Context) error {
	app.logger.Info("stopping gateway")
	if app.purgerStop != nil {
		app.purgerStop()
	}
	if app.configWatcher != nil {
		app.configWatcher.Close()
	}
	if app.tracerProvider != nil {
		_ = app.tracerProvider.Shutdown(ctx)
	}
	return app.httpServer.Shutdown(ctx)
}

// WatchConfig hot-reloads the ingress allow-list whenever configPath
// changes on disk. Other sections (scanners, concurrency limits) are not
// reloaded; per-model limits can be changed at runtime through
// AdminSurface's queue/update endpoint, and scanner pipelines stay as
// built at startup.
func (app *App) WatchConfig(configPath string) error {
	if configPath == "" {
		return nil
	}
	watcher, err := config.WatchFile(configPath, app.logger, func(cfg *config.Config) {
		filter, err := ingress.NewFilter(cfg.AllowList)
		if err != nil {
			app.logger.Warn("reloaded allow-list is invalid, keeping previous filter", zap.Error(err))
			return
		}
		app.router.Filter = filter
	})
	if err != nil {
		return err
	}
	app.configWatcher = watcher
	return nil
}
