// Conveyor Refresher — фоновое обновление OAuth-токенов.
//
// Refresher:
//   - Раз в минуту выбирает учётки с токенами, истекающими в ближайшем окне
//   - Обновляет их через зарегистрированных провайдеров
//   - Останавливается через circuit breaker при систематических сбоях
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/provider"
	"github.com/shaiso/Conveyor/internal/refresh"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-refresher")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	connRepo := repo.NewConnectionRepo(pool)

	providers := provider.NewRegistryFromEnv()
	logger.Info("oauth providers configured", "providers", providers.Names())

	tokens := provider.NewTokenProvider(connRepo, providers, provider.TokenProviderConfig{
		Logger: logger,
	})

	refresher := refresh.New(refresh.Config{
		Lister:    connRepo,
		Refresher: tokens,
		Logger:    logger,
	})

	metrics := telemetry.NewMetrics(nil)

	// Экспортируем состояние breaker'а в метрики
	go func() {
		tk := time.NewTicker(5 * time.Second)
		defer tk.Stop()
		for {
			select {
			case <-tk.C:
				metrics.SetBreakerState(string(refresher.BreakerState()))
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		if err := refresher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("refresher stopped with error", "error", err)
			cancel()
		}
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8085"
	if v := os.Getenv("REFRESHER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("conveyor-refresher stopped")
}
