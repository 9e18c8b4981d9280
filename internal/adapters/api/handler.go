package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tg-engagement/internal/domain"
	httpinfra "tg-engagement/internal/infra/http"
)

// ProfileProvider описывает, что нужно HTTP-слою от сервиса профилей.
type ProfileProvider interface {
	GetProfile(ctx context.Context, claim domain.IdentityClaim) domain.ActivityProfile
	RequestRecompute(ctx context.Context, claim domain.IdentityClaim, cause domain.RecomputeCause) error
}

// PhotoPath задаёт маршрут аватара, на который указывает photoUrl профиля.
const PhotoPath = "/api/v1/photo"

var (
	errNoIdentity   = errors.New("пользователь не определён")
	errNoPhoto      = errors.New("аватар не найден")
	errPhotoUpstream = errors.New("не удалось загрузить аватар")
)

// Handler обслуживает API для WebApp.
type Handler struct {
	profiles ProfileProvider
	photos   domain.PhotoSource
	auth     httpinfra.AuthConfig
	log      zerolog.Logger
}

// NewHandler создаёт обработчик. photos может быть nil: тогда маршрут аватара отвечает 404.
func NewHandler(profiles ProfileProvider, photos domain.PhotoSource, auth httpinfra.AuthConfig, log zerolog.Logger) *Handler {
	return &Handler{profiles: profiles, photos: photos, auth: auth, log: log}
}

// Register подключает маршруты /api/v1 к роутеру.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(httpinfra.WebAppAuthMiddleware(h.auth))
		api.Get("/stats", h.getStats)
		api.Delete("/stats", h.deleteStats)
		api.Get("/photo", h.getPhoto)
	})
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	claim, ok := httpinfra.IdentityFromContext(r.Context())
	if !ok {
		httpinfra.WriteError(w, http.StatusUnauthorized, errNoIdentity)
		return
	}
	profile := h.profiles.GetProfile(r.Context(), claim)
	httpinfra.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) deleteStats(w http.ResponseWriter, r *http.Request) {
	claim, ok := httpinfra.IdentityFromContext(r.Context())
	if !ok {
		httpinfra.WriteError(w, http.StatusUnauthorized, errNoIdentity)
		return
	}
	if err := h.profiles.RequestRecompute(r.Context(), claim, domain.RecomputeCauseManual); err != nil {
		h.log.Error().Err(err).
			Str("request_id", httpinfra.RequestID(r)).
			Int64("account_id", claim.AccountID).
			Msg("api: не удалось сбросить профиль")
		httpinfra.WriteError(w, http.StatusServiceUnavailable, errors.New("не удалось сбросить профиль, попробуйте позже"))
		return
	}
	httpinfra.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// getPhoto отдаёт аватар пользователя из initData. Чужие аватары недоступны.
func (h *Handler) getPhoto(w http.ResponseWriter, r *http.Request) {
	claim, ok := httpinfra.IdentityFromContext(r.Context())
	if !ok {
		httpinfra.WriteError(w, http.StatusUnauthorized, errNoIdentity)
		return
	}
	if h.photos == nil {
		httpinfra.WriteError(w, http.StatusNotFound, errNoPhoto)
		return
	}
	body, contentType, err := h.photos.OpenProfilePhoto(r.Context(), claim.AccountID)
	if errors.Is(err, domain.ErrNoPhoto) {
		httpinfra.WriteError(w, http.StatusNotFound, errNoPhoto)
		return
	}
	if err != nil {
		h.log.Warn().Err(err).
			Str("request_id", httpinfra.RequestID(r)).
			Int64("account_id", claim.AccountID).
			Msg("api: аватар не получен")
		httpinfra.WriteError(w, http.StatusBadGateway, errPhotoUpstream)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.log.Debug().Err(err).Int64("account_id", claim.AccountID).Msg("api: передача аватара прервана")
	}
}
