// Package app собирает сервис профилей из конфигурации для всех бинарников.
package app

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tg-engagement/internal/adapters/api"
	"tg-engagement/internal/adapters/botapi"
	"tg-engagement/internal/adapters/mtproto"
	"tg-engagement/internal/adapters/repo"
	"tg-engagement/internal/domain"
	"tg-engagement/internal/infra/cache"
	"tg-engagement/internal/infra/config"
	"tg-engagement/internal/infra/db"
	applog "tg-engagement/internal/infra/log"
	"tg-engagement/internal/infra/queue"
	"tg-engagement/internal/usecase/aggregate"
	"tg-engagement/internal/usecase/engagement"
	"tg-engagement/internal/usecase/heuristic"
)

// Engagement содержит собранный сервис и его инфраструктуру.
type Engagement struct {
	Service *engagement.Service
	// Repo равен nil, если PG_DSN не задан.
	Repo *repo.Postgres
	// Queue равна nil, если не задан ни RABBITMQ_URL, ни REDIS_ADDR.
	Queue domain.RecomputeQueue
	// Photos равен nil, если бот не передан.
	Photos *botapi.PhotoLookup

	closers []func()
}

// Close освобождает подключения в обратном порядке.
func (e *Engagement) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// NewEngagement подключает хранилища и собирает сервис. bot может быть nil: тогда аватары не ищутся.
func NewEngagement(ctx context.Context, cfg config.AppConfig, bot *tgbotapi.BotAPI, logger zerolog.Logger) (*Engagement, error) {
	e := &Engagement{}
	deps := engagement.Deps{}

	if cfg.PGDSN != "" {
		pool, err := db.Connect(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("подключение к Postgres: %w", err)
		}
		e.closers = append(e.closers, pool.Close)
		e.Repo = repo.NewPostgres(pool)
		if err := e.Repo.EnsureSchema(ctx); err != nil {
			e.Close()
			return nil, fmt.Errorf("создание схемы: %w", err)
		}
		deps.Credentials = e.Repo
		deps.Cache = e.Repo
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			e.Close()
			return nil, fmt.Errorf("подключение к Redis: %w", err)
		}
		e.closers = append(e.closers, func() { _ = redisClient.Close() })
		deps.Cache = cache.NewRedisProfileCache(redisClient)
	}

	switch {
	case cfg.RabbitURL != "":
		q, err := queue.NewRabbitRecomputeQueue(cfg.RabbitURL, cfg.Queues.Recompute)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("подключение к RabbitMQ: %w", err)
		}
		e.closers = append(e.closers, func() { _ = q.Close() })
		e.Queue = q
	case redisClient != nil:
		e.Queue = queue.NewRedisRecomputeQueue(redisClient, cfg.Queues.Recompute)
	}
	deps.Queue = e.Queue

	if cfg.Telegram.APIID != 0 && cfg.Telegram.APIHash != "" {
		deps.Dialer = mtproto.NewDialer(cfg.Telegram.APIID, cfg.Telegram.APIHash, deps.Credentials, cfg.MTProto.GlobalRPS,
			applog.Component(logger, "mtproto"))
	} else {
		logger.Warn().Msg("app: TG_API_ID/TG_API_HASH не заданы, профили будут только синтезированными")
	}

	if bot != nil {
		e.Photos = botapi.NewPhotoLookup(bot, bot.Client, strings.TrimRight(cfg.PublicURL, "/")+api.PhotoPath)
		deps.Photos = e.Photos
	}

	deps.Synthesizer = heuristic.NewSynthesizer()
	deps.Aggregator = aggregate.NewAggregator(aggregate.Options{
		WindowDays:                 cfg.Engagement.WindowDays,
		MaxConversations:           cfg.Engagement.MaxConversations,
		MaxMessagesPerConversation: cfg.Engagement.MaxMessages,
		Concurrency:                cfg.Engagement.Concurrency,
		TopContacts:                cfg.Engagement.TopContacts,
		Location:                   cfg.Location(),
	}, applog.Component(logger, "aggregate"))

	e.Service = engagement.NewService(deps, engagement.Options{
		Timeout:          cfg.Engagement.Timeout,
		CacheSynthesized: cfg.Engagement.CacheSynthesized,
	}, applog.Component(logger, "engagement"))
	return e, nil
}
