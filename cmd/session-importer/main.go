package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"tg-engagement/internal/app"
	"tg-engagement/internal/infra/config"
	applog "tg-engagement/internal/infra/log"
)

func main() {
	var (
		filePath  string
		accountID int64
	)
	flag.StringVar(&filePath, "file", "", "Path to MTProto session file (gotd JSON, Telethon string or SQLite rows JSON)")
	flag.Int64Var(&accountID, "account", 0, "Telegram account ID the session belongs to")
	flag.Parse()

	if filePath == "" {
		log.Fatal().Msg("session-importer: path to session file is required (-file)")
	}
	if accountID == 0 {
		log.Fatal().Msg("session-importer: account ID is required (-account)")
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("session-importer: failed to read session file")
	}

	cfg := config.Load()
	if cfg.PGDSN == "" {
		log.Fatal().Msg("session-importer: PG_DSN environment variable is required")
	}
	logger := applog.NewLogger(cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	engagement, err := app.NewEngagement(ctx, cfg, nil, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("session-importer: failed to set up storage")
	}
	defer engagement.Close()

	format, size, err := importSession(ctx, engagement.Repo, engagement.Service, accountID, raw)
	if err != nil && format == "" {
		log.Fatal().Err(err).Msg("session-importer: failed to import session")
	}
	if err != nil {
		logger.Warn().Err(err).Msg("session-importer: session stored, cached profile was not reset")
	}

	fmt.Printf("Stored %s session for account %d (%d bytes)\n", format, accountID, size)
}
