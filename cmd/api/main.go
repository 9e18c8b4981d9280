package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"tg-engagement/internal/adapters/api"
	"tg-engagement/internal/app"
	"tg-engagement/internal/domain"
	"tg-engagement/internal/infra/config"
	httpinfra "tg-engagement/internal/infra/http"
	applog "tg-engagement/internal/infra/log"
	"tg-engagement/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("api: не указан токен Telegram (TG_BOT_TOKEN), без него initData не проверить")
	}

	var bot *tgbotapi.BotAPI
	if b, err := tgbotapi.NewBotAPI(cfg.Telegram.Token); err != nil {
		logger.Warn().Err(err).Msg("api: Bot API недоступен, аватары не будут загружаться")
	} else {
		bot = b
	}

	engagement, err := app.NewEngagement(ctx, cfg, bot, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось собрать сервис")
	}
	defer engagement.Close()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	server := httpinfra.NewServer(applog.Component(logger, "http"), httpinfra.ServerOptions{
		AllowedOrigins: cfg.Auth.AllowedOrigins,
		RequestTimeout: cfg.Engagement.Timeout + 10*time.Second,
	})
	var photos domain.PhotoSource
	if engagement.Photos != nil {
		photos = engagement.Photos
	}
	api.NewHandler(engagement.Service, photos, httpinfra.AuthConfig{
		BotToken: cfg.Telegram.Token,
		MaxAge:   cfg.Auth.InitDataMaxAge,
	}, applog.Component(logger, "api")).Register(server.Router)

	go func() {
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
