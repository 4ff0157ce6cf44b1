package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"
)

func main() {
	// Exemplo: injetando o middleware diretamente no seu webserver (sem proxy)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	registry, err := domain.NewRegistry(
		domain.Policy{Category: domain.CategoryAuthLogin, Window: time.Minute, MaxRequests: 5, FailureMode: domain.FailClosed},
		domain.Policy{Category: domain.CategoryPublicContent, Window: time.Minute, MaxRequests: 60, Burst: 20, FailureMode: domain.FailOpen},
	)
	if err != nil {
		logger.Error("invalid policies", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := infra.NewMemoryCounterStore(infra.WithTTLFactor(2))
	store.StartJanitor(ctx)
	defer store.Stop()

	aggregator := infra.NewMemoryAggregator()
	aggregator.StartJanitor(ctx)
	defer aggregator.Stop()

	evaluator := application.Evaluator{Registry: registry, Store: store, Logger: logger}
	guard := func(c domain.Category) func(http.Handler) http.Handler {
		return admission.Middleware(admission.Options{
			Evaluator:  evaluator,
			Monitor:    application.NewMonitor(aggregator),
			Category:   c,
			KeyHeader:  "X-User-Id", // ou vazio para usar IP
			AddHeaders: true,
			Logger:     logger,
		})
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux := http.NewServeMux()
	mux.Handle("/login", guard(domain.CategoryAuthLogin)(ok))
	mux.Handle("/", guard(domain.CategoryPublicContent)(ok))
	mux.Handle("/stats", admission.StatsHandler(aggregator, nil))

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
	}
}
