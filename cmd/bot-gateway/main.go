package main

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"tg-engagement/internal/adapters/bot"
	"tg-engagement/internal/app"
	"tg-engagement/internal/infra/config"
	httpinfra "tg-engagement/internal/infra/http"
	applog "tg-engagement/internal/infra/log"
	"tg-engagement/internal/infra/metrics"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось создать бота")
	}

	engagement, err := app.NewEngagement(ctx, cfg, botAPI, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось собрать сервис")
	}
	defer engagement.Close()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	h := bot.NewHandler(botAPI, engagement.Service, cfg.Telegram.WebAppURL, applog.Component(logger, "bot"))

	server := httpinfra.NewServer(applog.Component(logger, "http"), httpinfra.ServerOptions{
		RequestTimeout: cfg.Engagement.Timeout + 10*time.Second,
	})
	server.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Telegram.WebhookSecret != "" {
			got := r.Header.Get(secretTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.Telegram.WebhookSecret)) != 1 {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := h.HandleRawUpdate(r.Context(), body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("bot-gateway: HTTP сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка бота")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
