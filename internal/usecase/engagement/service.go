package engagement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"tg-engagement/internal/domain"
	"tg-engagement/internal/infra/metrics"
	"tg-engagement/internal/usecase/aggregate"
	"tg-engagement/internal/usecase/heuristic"
)

const (
	sourceCache       = "cache"
	sourceAggregated  = "aggregated"
	sourceSynthesized = "synthesized"
	sourceFallback    = "fallback"
)

// DefaultTimeout ограничивает путь агрегации, если в Options не задано иное.
const DefaultTimeout = 20 * time.Second

// Deps описывает внешние зависимости сервиса.
type Deps struct {
	Cache       domain.ProfileCache
	Credentials domain.CredentialStore
	Dialer      domain.MessageSourceDialer
	Aggregator  *aggregate.Aggregator
	Synthesizer *heuristic.Synthesizer
	Photos      domain.PhotoLookup
	// Queue необязательна: без неё RequestRecompute только сбрасывает кэш.
	Queue domain.RecomputeQueue
}

// Options настраивает политику сервиса.
type Options struct {
	Timeout time.Duration
	// CacheSynthesized разрешает кэшировать профили аккаунтов без сессии.
	// Профиль, синтезированный после сбоя агрегации, не кэшируется никогда.
	CacheSynthesized bool
}

// Service выдаёт профиль активности и никогда не отвечает ошибкой после проверки личности.
type Service struct {
	deps  Deps
	opts  Options
	log   zerolog.Logger
	now   func() time.Time
	group singleflight.Group
}

var _ domain.ProfileService = (*Service)(nil)

// NewService создаёт сервис.
func NewService(deps Deps, opts Options, log zerolog.Logger) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if deps.Synthesizer == nil {
		deps.Synthesizer = heuristic.NewSynthesizer()
	}
	if deps.Aggregator == nil {
		deps.Aggregator = aggregate.NewAggregator(aggregate.DefaultOptions(), log)
	}
	return &Service{deps: deps, opts: opts, log: log, now: time.Now}
}

// WithClock подменяет часы для отметки computedAt.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetProfile возвращает профиль из кэша или строит его.
// Одновременные промахи по одному аккаунту строят профиль один раз.
func (s *Service) GetProfile(ctx context.Context, claim domain.IdentityClaim) domain.ActivityProfile {
	start := time.Now()
	if profile, ok := s.cached(ctx, claim.AccountID); ok {
		metrics.ObserveProfile(sourceCache, string(profile.Origin), start)
		return profile
	}

	// Построение не зависит от отмены запроса, чтобы довести запись в кэш до конца.
	buildCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(strconv.FormatInt(claim.AccountID, 10), func() (any, error) {
		return s.build(buildCtx, claim), nil
	})

	select {
	case res := <-ch:
		built := res.Val.(builtProfile)
		metrics.ObserveProfile(built.source, string(built.profile.Origin), start)
		return built.profile
	case <-ctx.Done():
		s.log.Warn().Err(ctx.Err()).Int64("account_id", claim.AccountID).Msg("engagement: запрос отменён, отдаём синтезированный профиль")
		profile := s.synthesize(claim)
		metrics.ObserveProfile(sourceFallback, string(profile.Origin), start)
		return profile
	}
}

// Invalidate удаляет профиль из кэша.
func (s *Service) Invalidate(ctx context.Context, accountID int64) error {
	s.group.Forget(strconv.FormatInt(accountID, 10))
	if s.deps.Cache == nil {
		return nil
	}
	if err := s.deps.Cache.DeleteProfile(ctx, accountID); err != nil {
		return fmt.Errorf("удаление профиля из кэша: %w", err)
	}
	return nil
}

// Recompute сбрасывает кэш и строит профиль заново.
func (s *Service) Recompute(ctx context.Context, claim domain.IdentityClaim) (domain.ActivityProfile, error) {
	if err := s.Invalidate(ctx, claim.AccountID); err != nil {
		return domain.ActivityProfile{}, err
	}
	return s.GetProfile(ctx, claim), nil
}

// RequestRecompute сбрасывает кэш и ставит задачу пересчёта в очередь, если она настроена.
func (s *Service) RequestRecompute(ctx context.Context, claim domain.IdentityClaim, cause domain.RecomputeCause) error {
	if err := s.Invalidate(ctx, claim.AccountID); err != nil {
		return err
	}
	if s.deps.Queue == nil {
		return nil
	}
	job := domain.RecomputeJob{
		AccountID:   claim.AccountID,
		IsPremium:   claim.IsPremium,
		Username:    claim.Username,
		DisplayName: claim.DisplayName,
		RequestedAt: s.now().UTC(),
		Cause:       cause,
	}
	if err := s.deps.Queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("постановка задачи пересчёта: %w", err)
	}
	return nil
}

type builtProfile struct {
	profile domain.ActivityProfile
	source  string
}

func (s *Service) build(ctx context.Context, claim domain.IdentityClaim) builtProfile {
	logger := s.log.With().Int64("account_id", claim.AccountID).Logger()

	// Поколение читается до поиска сессии: удаление после этой точки отменяет запись.
	gen, cacheable := s.generation(ctx, claim.AccountID)

	cred, found := s.credential(ctx, claim.AccountID)
	if !found {
		profile := s.synthesize(claim)
		profile.PhotoURL = s.photoURL(ctx, claim.AccountID)
		if s.opts.CacheSynthesized && cacheable {
			s.store(ctx, claim.AccountID, gen, profile)
		}
		return builtProfile{profile: profile, source: sourceSynthesized}
	}

	profile, err := s.aggregate(ctx, cred, claim)
	if err != nil {
		metrics.ProfileAggregationFailures.Inc()
		logger.Warn().Err(err).Msg("engagement: агрегация не удалась, синтезируем профиль")
		profile = s.synthesize(claim)
		profile.PhotoURL = s.photoURL(ctx, claim.AccountID)
		return builtProfile{profile: profile, source: sourceFallback}
	}

	profile.PhotoURL = s.photoURL(ctx, claim.AccountID)
	if cacheable {
		s.store(ctx, claim.AccountID, gen, profile)
	}
	return builtProfile{profile: profile, source: sourceAggregated}
}

func (s *Service) aggregate(ctx context.Context, cred domain.Credential, claim domain.IdentityClaim) (domain.ActivityProfile, error) {
	if s.deps.Dialer == nil {
		return domain.ActivityProfile{}, errors.New("источник сообщений не настроен")
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	var profile domain.ActivityProfile
	err := s.deps.Dialer.WithSource(ctx, cred, func(ctx context.Context, src domain.MessageSource) error {
		p, err := s.deps.Aggregator.Aggregate(ctx, src, claim.IsPremium)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})
	if err != nil {
		return domain.ActivityProfile{}, err
	}

	tenure := s.deps.Synthesizer.Tenure(claim.AccountID)
	profile.DaysOnPlatform = tenure.DaysOnPlatform
	profile.GhostModeCount = tenure.GhostModeCount
	profile.ComputedAt = s.now().UTC()
	return profile, nil
}

func (s *Service) synthesize(claim domain.IdentityClaim) domain.ActivityProfile {
	profile := s.deps.Synthesizer.Synthesize(claim.AccountID, claim.IsPremium, claim.Username)
	profile.ComputedAt = s.now().UTC()
	return profile
}

func (s *Service) cached(ctx context.Context, accountID int64) (domain.ActivityProfile, bool) {
	if s.deps.Cache == nil {
		return domain.ActivityProfile{}, false
	}
	profile, ok, err := s.deps.Cache.GetProfile(ctx, accountID)
	if err != nil {
		s.log.Warn().Err(err).Int64("account_id", accountID).Msg("engagement: чтение кэша не удалось")
		return domain.ActivityProfile{}, false
	}
	return profile, ok
}

func (s *Service) credential(ctx context.Context, accountID int64) (domain.Credential, bool) {
	if s.deps.Credentials == nil {
		return domain.Credential{}, false
	}
	cred, ok, err := s.deps.Credentials.GetCredential(ctx, accountID)
	if err != nil {
		s.log.Warn().Err(err).Int64("account_id", accountID).Msg("engagement: хранилище сессий недоступно")
		return domain.Credential{}, false
	}
	if ok && cred.AccountID == 0 {
		cred.AccountID = accountID
	}
	return cred, ok
}

func (s *Service) generation(ctx context.Context, accountID int64) (int64, bool) {
	if s.deps.Cache == nil {
		return 0, false
	}
	gen, err := s.deps.Cache.Generation(ctx, accountID)
	if err != nil {
		s.log.Warn().Err(err).Int64("account_id", accountID).Msg("engagement: поколение кэша не прочитано, профиль не кэшируем")
		return 0, false
	}
	return gen, true
}

func (s *Service) store(ctx context.Context, accountID, generation int64, profile domain.ActivityProfile) {
	stored, err := s.deps.Cache.PutProfile(ctx, accountID, generation, profile)
	if err != nil {
		s.log.Warn().Err(err).Int64("account_id", accountID).Msg("engagement: запись в кэш не удалась")
		return
	}
	if !stored {
		metrics.ProfileStaleWritesSkipped.Inc()
		s.log.Info().Int64("account_id", accountID).Msg("engagement: профиль сброшен во время построения, запись пропущена")
	}
}

func (s *Service) photoURL(ctx context.Context, accountID int64) *string {
	if s.deps.Photos == nil {
		return nil
	}
	url, err := s.deps.Photos.ProfilePhotoURL(ctx, accountID)
	if err != nil {
		s.log.Debug().Err(err).Int64("account_id", accountID).Msg("engagement: аватар не получен")
		return nil
	}
	if url == "" {
		return nil
	}
	return &url
}
