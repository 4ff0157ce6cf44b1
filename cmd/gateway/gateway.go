package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"admission-gateway/internal/config"
	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// gateway junta as peças montadas a partir da configuração.
type gateway struct {
	handler http.Handler
	closers []func()

	aggregator *infra.MemoryAggregator
	metrics    *infra.Metrics
}

func (g *gateway) Handler() http.Handler { return g.handler }

// Close libera os recursos na ordem inversa da criação.
func (g *gateway) Close() {
	for i := len(g.closers) - 1; i >= 0; i-- {
		g.closers[i]()
	}
	g.closers = nil
}

func newGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *gateway, err error) {
	gw := &gateway{}
	defer func() {
		if err != nil {
			gw.Close()
		}
	}()

	target, err := url.Parse(cfg.Server.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server.upstream_url: %w", err)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.ErrorContext(r.Context(), "proxy error", "path", r.URL.Path, "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	routes, err := cfg.RouteTable()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gw.metrics = infra.NewMetrics(reg)

	throttle := infra.NewLogThrottle(logger)
	throttle.StartJanitor(ctx, time.Minute)

	var rdb *redis.Client
	if cfg.Store.Driver == "redis" || cfg.Monitoring.RedisEnabled {
		rdb, err = dialRedis(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		gw.closers = append(gw.closers, func() { _ = rdb.Close() })
	}

	var store domain.CounterStore
	switch cfg.Store.Driver {
	case "redis":
		store = infra.NewRedisCounterStore(rdb, infra.WithRedisTTLFactor(cfg.Store.TTLFactor))
	default:
		mem := infra.NewMemoryCounterStore(
			infra.WithTTLFactor(cfg.Store.TTLFactor),
			infra.WithCleanupEvery(cfg.Store.JanitorEvery),
		)
		mem.StartJanitor(ctx)
		gw.closers = append(gw.closers, mem.Stop)
		store = mem
	}

	gw.aggregator = infra.NewMemoryAggregator(
		infra.WithResolution(cfg.Monitoring.Resolution),
		infra.WithRetention(cfg.Monitoring.Retention),
		infra.WithMaxClasses(cfg.Monitoring.MaxClasses),
	)
	gw.aggregator.StartJanitor(ctx)
	gw.closers = append(gw.closers, gw.aggregator.Stop)

	sinks := []domain.EventSink{gw.aggregator, gw.metrics}
	var history admission.TotalsReader
	if cfg.Monitoring.RedisEnabled {
		stats := infra.NewRedisStatsStore(rdb,
			infra.WithStatsPrefix(cfg.Monitoring.RedisPrefix),
			infra.WithStatsTTL(cfg.Monitoring.RedisTTL),
			infra.WithStatsTrackClasses(cfg.Monitoring.TrackClasses),
		)
		async := infra.NewAsyncSink(stats, cfg.Monitoring.QueueSize,
			infra.WithSinkErrorHandler(func(err error) {
				throttle.Warn(ctx, "sink:redis-stats", "redis stats write failed", "error", err)
			}),
		)
		gw.closers = append(gw.closers, async.Close)
		sinks = append(sinks, async)
		history = stats
	}

	monitor := application.NewMonitor(sinks...)
	monitor.Logger = logger
	monitor.Warn = throttle
	monitor.OnError = func(err error) {
		if errors.Is(err, infra.ErrSinkQueueFull) {
			gw.metrics.SinkDrop()
		}
	}

	evaluator := application.Evaluator{
		Registry:  registry,
		Store:     store,
		Timeout:   cfg.Store.Timeout,
		KeyPrefix: cfg.Store.KeyPrefix,
		Logger:    logger,
		Warn:      throttle,
		Observer:  gw.metrics,
	}
	status := application.StatusService{
		Registry:  registry,
		Store:     store,
		Timeout:   cfg.Store.Timeout,
		KeyPrefix: cfg.Store.KeyPrefix,
		Observer:  gw.metrics,
	}
	keyFn := admission.DefaultKeyFunc(cfg.Identity.KeyHeader, cfg.Identity.TrustXFF)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	admission.Routes(r, status, keyFn, gw.aggregator, history)
	r.Handle("/*", admission.Middleware(admission.Options{
		Evaluator:  evaluator,
		Monitor:    monitor,
		CategoryFn: admission.PrefixCategoryFunc(routes),
		KeyFn:      keyFn,
		AddHeaders: true,
		Logger:     logger,
	})(proxy))

	gw.handler = r
	return gw, nil
}

func dialRedis(ctx context.Context, cfg config.StoreConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping error: %w", err)
	}
	return rdb, nil
}
