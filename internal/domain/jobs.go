package domain

import (
	"context"
	"time"
)

// RecomputeCause описывает источник запроса на пересчёт профиля.
type RecomputeCause string

const (
	// RecomputeCauseManual — пользователь сбросил профиль сам.
	RecomputeCauseManual RecomputeCause = "manual"
)

// RecomputeJob содержит информацию о задаче пересчёта профиля.
type RecomputeJob struct {
	ID          string         `json:"job_id,omitempty"`
	AccountID   int64          `json:"account_id"`
	IsPremium   bool           `json:"is_premium,omitempty"`
	Username    string         `json:"username,omitempty"`
	DisplayName string         `json:"display_name,omitempty"`
	RequestedAt time.Time      `json:"requested_at"`
	Cause       RecomputeCause `json:"cause"`
}

// Claim восстанавливает данные пользователя, известные на момент постановки задачи.
func (j RecomputeJob) Claim() IdentityClaim {
	return IdentityClaim{
		AccountID:   j.AccountID,
		DisplayName: j.DisplayName,
		IsPremium:   j.IsPremium,
		Username:    j.Username,
	}
}

// RecomputeQueue описывает очередь задач на пересчёт профилей.
type RecomputeQueue interface {
	Enqueue(ctx context.Context, job RecomputeJob) error
	Receive(ctx context.Context) (RecomputeJob, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type AckFunc func(success bool) error
