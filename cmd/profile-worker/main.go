package main

import (
	"context"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"tg-engagement/internal/app"
	"tg-engagement/internal/infra/config"
	applog "tg-engagement/internal/infra/log"
	"tg-engagement/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var bot *tgbotapi.BotAPI
	if cfg.Telegram.Token != "" {
		b, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Warn().Err(err).Msg("profile-worker: Bot API недоступен, аватары не будут загружаться")
		} else {
			bot = b
		}
	}

	engagement, err := app.NewEngagement(ctx, cfg, bot, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("profile-worker: не удалось собрать сервис")
	}
	defer engagement.Close()

	if engagement.Queue == nil {
		logger.Fatal().Msg("profile-worker: очередь не настроена, задайте RABBITMQ_URL или REDIS_ADDR")
	}

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	w := &jobWorker{
		log:     applog.Component(logger, "worker"),
		queue:   engagement.Queue,
		service: engagement.Service,
	}
	if engagement.Repo != nil {
		w.statuses = engagement.Repo
	}

	logger.Info().Msg("profile-worker: запуск обработки очереди")
	w.Run(ctx)
	logger.Info().Msg("profile-worker: остановлен")
}
