package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"UTC"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	// PublicURL задаёт внешний адрес API для ссылок на аватары, пусто для относительных ссылок.
	PublicURL string `envconfig:"API_PUBLIC_URL"`

	Telegram struct {
		Token         string `envconfig:"TG_BOT_TOKEN"`
		WebhookSecret string `envconfig:"TG_WEBHOOK_SECRET"`
		WebAppURL     string `envconfig:"TG_WEBAPP_URL"`
		APIID         int    `envconfig:"TG_API_ID"`
		APIHash       string `envconfig:"TG_API_HASH"`
	} `envconfig:""`

	MTProto struct {
		GlobalRPS int `envconfig:"MTPROTO_GLOBAL_RPS" default:"20"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`
	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Auth struct {
		InitDataMaxAge time.Duration `envconfig:"AUTH_INITDATA_MAX_AGE" default:"24h"`
		AllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	} `envconfig:""`

	Engagement struct {
		WindowDays       int           `envconfig:"ENGAGEMENT_WINDOW_DAYS" default:"365"`
		MaxConversations int           `envconfig:"ENGAGEMENT_MAX_CONVERSATIONS" default:"15"`
		MaxMessages      int           `envconfig:"ENGAGEMENT_MAX_MESSAGES" default:"100"`
		Concurrency      int           `envconfig:"ENGAGEMENT_CONCURRENCY" default:"4"`
		TopContacts      int           `envconfig:"ENGAGEMENT_TOP_CONTACTS" default:"15"`
		Timeout          time.Duration `envconfig:"ENGAGEMENT_TIMEOUT" default:"20s"`
		CacheSynthesized bool          `envconfig:"ENGAGEMENT_CACHE_SYNTHESIZED" default:"true"`
	} `envconfig:""`

	Queues struct {
		Recompute string `envconfig:"RECOMPUTE_QUEUE_KEY" default:"profile_recompute"`
	} `envconfig:""`
}

// Location возвращает часовой пояс для подсчёта активных часов.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		log.Printf("некорректный TZ %q, используем UTC: %v", c.TZ, err)
		return time.UTC
	}
	return loc
}

// Load загружает конфиг из окружения. Файл .env необязателен.
func Load() AppConfig {
	if err := godotenv.Load(); err != nil {
		log.Println("config: .env не найден, используем переменные окружения")
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
