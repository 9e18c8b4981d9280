package main

import (
	"context"
	"fmt"
	"time"

	"tg-engagement/internal/adapters/mtproto"
	"tg-engagement/internal/domain"
)

type invalidator interface {
	Invalidate(ctx context.Context, accountID int64) error
}

// importSession сохраняет сессию и сбрасывает кэшированный профиль.
// Пересчёт не ставится в очередь: персона зависит от премиум-статуса,
// который известен только из запроса самого пользователя.
func importSession(ctx context.Context, store domain.CredentialStore, profiles invalidator, accountID int64, raw []byte) (mtproto.SessionFormat, int, error) {
	normalized, format, err := mtproto.NormalizeSession(raw)
	if err != nil {
		return "", 0, err
	}
	cred := domain.Credential{AccountID: accountID, Session: normalized, UpdatedAt: time.Now().UTC()}
	if err := store.StoreCredential(ctx, cred); err != nil {
		return "", 0, fmt.Errorf("store session: %w", err)
	}
	if err := profiles.Invalidate(ctx, accountID); err != nil {
		return format, len(normalized), fmt.Errorf("reset cached profile: %w", err)
	}
	return format, len(normalized), nil
}
