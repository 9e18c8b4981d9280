package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-engagement/internal/domain"
	"tg-engagement/internal/infra/metrics"
)

// Postgres реализует хранилища сессий, профилей и статусов задач на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.CredentialStore = (*Postgres)(nil)
	_ domain.ProfileCache    = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS mtproto_sessions (
    account_id BIGINT PRIMARY KEY,
    data       BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS profile_snapshots (
    account_id  BIGINT PRIMARY KEY,
    profile     JSONB NOT NULL,
    origin      TEXT NOT NULL,
    computed_at TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS profile_generations (
    account_id BIGINT PRIMARY KEY,
    generation BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS recompute_job_statuses (
    job_id     TEXT PRIMARY KEY,
    attempts   INT NOT NULL DEFAULT 0,
    done_at    TIMESTAMPTZ,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema создаёт таблицы, если их ещё нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, schema)
	metrics.ObserveNetworkRequest("postgres", "ensure_schema", "schema", start, err)
	return err
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// GetCredential загружает сохранённую MTProto-сессию аккаунта.
func (p *Postgres) GetCredential(ctx context.Context, accountID int64) (domain.Credential, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		data      []byte
		updatedAt time.Time
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT data, updated_at FROM mtproto_sessions WHERE account_id = $1`, accountID).Scan(&data, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "mtproto_sessions_load", "mtproto_sessions", start, nil)
		return domain.Credential{}, false, nil
	}
	metrics.ObserveNetworkRequest("postgres", "mtproto_sessions_load", "mtproto_sessions", start, err)
	if err != nil {
		return domain.Credential{}, false, err
	}
	if len(data) == 0 {
		return domain.Credential{}, false, nil
	}

	clone := make([]byte, len(data))
	copy(clone, data)
	return domain.Credential{AccountID: accountID, Session: clone, UpdatedAt: updatedAt}, true, nil
}

// StoreCredential сохраняет MTProto-сессию аккаунта.
func (p *Postgres) StoreCredential(ctx context.Context, cred domain.Credential) error {
	if cred.AccountID == 0 {
		return fmt.Errorf("account id is required")
	}
	if len(cred.Session) == 0 {
		return fmt.Errorf("session is empty")
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	tmp := make([]byte, len(cred.Session))
	copy(tmp, cred.Session)

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO mtproto_sessions (account_id, data, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (account_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
`, cred.AccountID, tmp)
	metrics.ObserveNetworkRequest("postgres", "mtproto_sessions_store", "mtproto_sessions", start, err)
	return err
}

// GetProfile возвращает сохранённый профиль.
func (p *Postgres) GetProfile(ctx context.Context, accountID int64) (domain.ActivityProfile, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var raw []byte
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT profile FROM profile_snapshots WHERE account_id = $1`, accountID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "profile_snapshots_get", "profile_snapshots", start, nil)
		return domain.ActivityProfile{}, false, nil
	}
	metrics.ObserveNetworkRequest("postgres", "profile_snapshots_get", "profile_snapshots", start, err)
	if err != nil {
		return domain.ActivityProfile{}, false, err
	}
	var profile domain.ActivityProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return domain.ActivityProfile{}, false, fmt.Errorf("decode profile: %w", err)
	}
	return profile, true, nil
}

// Generation возвращает поколение записи профиля.
func (p *Postgres) Generation(ctx context.Context, accountID int64) (int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	gen, err := queryGeneration(ctx, p.pool, accountID)
	metrics.ObserveNetworkRequest("postgres", "profile_generations_get", "profile_generations", start, err)
	return gen, err
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func queryGeneration(ctx context.Context, q rowQuerier, accountID int64) (int64, error) {
	var gen int64
	err := q.QueryRow(ctx, `SELECT generation FROM profile_generations WHERE account_id = $1`, accountID).Scan(&gen)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return gen, err
}

// PutProfile перезаписывает профиль, если поколение не изменилось.
// Запись и удаление одного аккаунта сериализуются advisory-блокировкой.
func (p *Postgres) PutProfile(ctx context.Context, accountID int64, generation int64, profile domain.ActivityProfile) (bool, error) {
	payload, err := json.Marshal(profile)
	if err != nil {
		return false, fmt.Errorf("encode profile: %w", err)
	}
	computedAt := profile.ComputedAt
	if computedAt.IsZero() {
		computedAt = time.Now().UTC()
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	stored := false
	start := time.Now()
	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, accountID); err != nil {
			return err
		}
		current, err := queryGeneration(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.Exec(ctx, `
INSERT INTO profile_snapshots (account_id, profile, origin, computed_at, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (account_id) DO UPDATE
SET profile = EXCLUDED.profile,
    origin = EXCLUDED.origin,
    computed_at = EXCLUDED.computed_at,
    updated_at = now()
`, accountID, payload, string(profile.Origin), computedAt)
		if err == nil {
			stored = true
		}
		return err
	})
	metrics.ObserveNetworkRequest("postgres", "profile_snapshots_put", "profile_snapshots", start, err)
	if err != nil {
		return false, err
	}
	return stored, nil
}

// DeleteProfile удаляет профиль и увеличивает поколение. Отсутствие строки не ошибка.
func (p *Postgres) DeleteProfile(ctx context.Context, accountID int64) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, accountID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM profile_snapshots WHERE account_id = $1`, accountID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
INSERT INTO profile_generations (account_id, generation)
VALUES ($1, 1)
ON CONFLICT (account_id) DO UPDATE SET generation = profile_generations.generation + 1
`, accountID)
		return err
	})
	metrics.ObserveNetworkRequest("postgres", "profile_snapshots_delete", "profile_snapshots", start, err)
	return err
}

// BeginRecomputeJob отмечает попытку обработки задачи.
// Возвращает true, если задача уже выполнена, и номер текущей попытки.
func (p *Postgres) BeginRecomputeJob(ctx context.Context, jobID string) (bool, int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		done     *time.Time
		attempts int
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO recompute_job_statuses (job_id, attempts, updated_at)
VALUES ($1, 1, now())
ON CONFLICT (job_id) DO UPDATE
    SET attempts = recompute_job_statuses.attempts + 1,
        updated_at = now()
RETURNING done_at, attempts
`, jobID).Scan(&done, &attempts)
	metrics.ObserveNetworkRequest("postgres", "recompute_job_statuses_upsert", "recompute_job_statuses", start, err)
	if err != nil {
		return false, 0, err
	}
	return done != nil, attempts, nil
}

// FinishRecomputeJob помечает задачу выполненной.
func (p *Postgres) FinishRecomputeJob(ctx context.Context, jobID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE recompute_job_statuses
SET done_at = COALESCE(done_at, now()),
    updated_at = now()
WHERE job_id = $1
`, jobID)
	metrics.ObserveNetworkRequest("postgres", "recompute_job_statuses_finish", "recompute_job_statuses", start, err)
	return err
}
