package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"tg-engagement/internal/domain"
	"tg-engagement/internal/infra/metrics"
)

const maxDeliveryAttempts = 5

type recomputer interface {
	Recompute(ctx context.Context, claim domain.IdentityClaim) (domain.ActivityProfile, error)
}

type jobStatuses interface {
	BeginRecomputeJob(ctx context.Context, jobID string) (done bool, attempts int, err error)
	FinishRecomputeJob(ctx context.Context, jobID string) error
}

type jobWorker struct {
	log     zerolog.Logger
	queue   domain.RecomputeQueue
	service recomputer
	// statuses может быть nil: тогда задача не повторяется.
	statuses jobStatuses
	// pause между ошибками инфраструктуры.
	pause time.Duration
}

func (w *jobWorker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("worker: ошибка чтения очереди")
			w.sleep(ctx)
			continue
		}
		w.handle(ctx, job, ack)
	}
}

func (w *jobWorker) handle(ctx context.Context, job domain.RecomputeJob, ack domain.AckFunc) {
	jobLog := w.log.With().
		Str("job_id", job.ID).
		Int64("account_id", job.AccountID).
		Str("cause", string(job.Cause)).
		Logger()

	if job.ID == "" || job.AccountID == 0 {
		jobLog.Error().Msg("worker: некорректная задача, подтверждаем и пропускаем")
		metrics.RecomputeJobsTotal.WithLabelValues("invalid").Inc()
		w.ack(jobLog, ack, true)
		return
	}

	attempt := maxDeliveryAttempts
	if w.statuses != nil {
		done, n, err := w.statuses.BeginRecomputeJob(ctx, job.ID)
		if err != nil {
			jobLog.Error().Err(err).Msg("worker: не удалось зарегистрировать задачу")
			w.ack(jobLog, ack, false)
			w.sleep(ctx)
			return
		}
		if done {
			jobLog.Info().Msg("worker: задача уже выполнена, подтверждаем")
			metrics.RecomputeJobsTotal.WithLabelValues("duplicate").Inc()
			w.ack(jobLog, ack, true)
			return
		}
		attempt = n
	}
	jobLog = jobLog.With().Int("attempt", attempt).Logger()

	profile, err := w.service.Recompute(ctx, job.Claim())
	if err != nil {
		if attempt < maxDeliveryAttempts {
			jobLog.Warn().Err(err).Msg("worker: пересчёт не удался, повторим позже")
			metrics.RecomputeJobsTotal.WithLabelValues("retry").Inc()
			w.ack(jobLog, ack, false)
			return
		}
		jobLog.Error().Err(err).Msg("worker: достигнут предел попыток, закрываем задачу")
		metrics.RecomputeJobsTotal.WithLabelValues("failed").Inc()
	} else {
		jobLog.Info().Str("origin", string(profile.Origin)).Msg("worker: профиль пересчитан")
		metrics.RecomputeJobsTotal.WithLabelValues("done").Inc()
	}

	if w.statuses != nil {
		if err := w.statuses.FinishRecomputeJob(ctx, job.ID); err != nil {
			jobLog.Error().Err(err).Msg("worker: не удалось пометить задачу выполненной")
			w.ack(jobLog, ack, false)
			return
		}
	}
	w.ack(jobLog, ack, true)
}

func (w *jobWorker) ack(log zerolog.Logger, ack domain.AckFunc, success bool) {
	if err := ack(success); err != nil {
		log.Error().Err(err).Bool("success", success).Msg("worker: не удалось подтвердить задачу")
	}
}

func (w *jobWorker) sleep(ctx context.Context) {
	pause := w.pause
	if pause <= 0 {
		pause = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(pause):
	}
}
