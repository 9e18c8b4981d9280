package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ProfileRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "profile_requests_total",
		Help: "Запросы профиля по источнику результата",
	}, []string{"source"})

	ProfileAggregationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "profile_aggregation_failures_total",
		Help: "Сбои агрегации, после которых профиль синтезирован",
	})

	ProfileBuildSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "profile_build_seconds",
		Help:    "Время построения профиля",
		Buckets: prometheus.DefBuckets,
	}, []string{"origin"})

	ProfileStaleWritesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "profile_stale_writes_skipped_total",
		Help: "Записи в кэш, пропущенные из-за сброса профиля во время построения",
	})

	WebAppAuthFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webapp_auth_failures_total",
		Help: "Отклонённые запросы WebApp",
	}, []string{"reason"})

	RecomputeJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "profile_recompute_jobs_total",
		Help: "Обработанные задачи пересчёта профиля",
	}, []string{"status"})

	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ProfileRequestsTotal,
		ProfileAggregationFailures,
		ProfileBuildSeconds,
		ProfileStaleWritesSkipped,
		WebAppAuthFailures,
		RecomputeJobsTotal,
		BotSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveProfile учитывает выдачу профиля: source принимает значения cache, aggregated, synthesized, fallback.
func ObserveProfile(source string, origin string, start time.Time) {
	ProfileRequestsTotal.WithLabelValues(source).Inc()
	if source == "cache" {
		return
	}
	ProfileBuildSeconds.WithLabelValues(origin).Observe(time.Since(start).Seconds())
}
