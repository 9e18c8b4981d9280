package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"tg-engagement/internal/domain"
	"tg-engagement/internal/infra/metrics"
)

// InitDataHeader задаёт заголовок, в котором WebApp передаёт initData.
const InitDataHeader = "X-Telegram-Init-Data"

var (
	ErrInitDataMissing = errors.New("init_data отсутствует")
	ErrInitDataInvalid = errors.New("подпись недействительна")
	ErrInitDataExpired = errors.New("init_data устарели")
	ErrUserMissing     = errors.New("в init_data нет пользователя")
)

// VerifyInitData проверяет, что initData подписаны ботом с токеном botToken.
// Никогда не паникует: любые некорректные данные дают false.
func VerifyInitData(initData, botToken string) bool {
	if initData == "" || botToken == "" {
		return false
	}
	values, err := url.ParseQuery(initData)
	if err != nil {
		return false
	}
	received := values.Get("hash")
	if received == "" {
		return false
	}
	values.Del("hash")

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secret := hmacSHA256([]byte("WebAppData"), []byte(botToken))
	expected := hex.EncodeToString(hmacSHA256(secret, []byte(strings.Join(lines, "\n"))))
	return hmac.Equal([]byte(expected), []byte(received))
}

// SignInitData подписывает набор полей так же, как это делает Telegram.
// Нужен для тестов и локальной отладки WebApp.
func SignInitData(values url.Values, botToken string) string {
	signed := url.Values{}
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
		signed.Set(k, values.Get(k))
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}
	secret := hmacSHA256([]byte("WebAppData"), []byte(botToken))
	signed.Set("hash", hex.EncodeToString(hmacSHA256(secret, []byte(strings.Join(lines, "\n")))))
	return signed.Encode()
}

func hmacSHA256(key, msg []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(msg)
	return h.Sum(nil)
}

type webAppUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code"`
	IsPremium    bool   `json:"is_premium"`
}

// ParseIdentity извлекает пользователя из поля user. Подпись не проверяет.
func ParseIdentity(initData string) (domain.IdentityClaim, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return domain.IdentityClaim{}, fmt.Errorf("разбор init_data: %w", err)
	}
	raw := values.Get("user")
	if raw == "" {
		return domain.IdentityClaim{}, ErrUserMissing
	}
	var u webAppUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return domain.IdentityClaim{}, fmt.Errorf("разбор user: %w", err)
	}
	if u.ID == 0 {
		return domain.IdentityClaim{}, ErrUserMissing
	}
	return domain.IdentityClaim{
		AccountID:    u.ID,
		DisplayName:  strings.TrimSpace(u.FirstName + " " + u.LastName),
		IsPremium:    u.IsPremium,
		Username:     u.Username,
		LanguageCode: u.LanguageCode,
	}, nil
}

func authDate(initData string) (time.Time, bool) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return time.Time{}, false
	}
	sec, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(sec, 0), true
}

// AuthConfig задаёт параметры проверки initData.
type AuthConfig struct {
	BotToken string
	// MaxAge ограничивает возраст auth_date, 0 отключает проверку.
	MaxAge time.Duration
	Now    func() time.Time
}

// Authenticate проверяет подпись, свежесть и возвращает пользователя.
func (c AuthConfig) Authenticate(initData string) (domain.IdentityClaim, error) {
	if initData == "" {
		return domain.IdentityClaim{}, ErrInitDataMissing
	}
	if !VerifyInitData(initData, c.BotToken) {
		return domain.IdentityClaim{}, ErrInitDataInvalid
	}
	if c.MaxAge > 0 {
		now := time.Now
		if c.Now != nil {
			now = c.Now
		}
		issued, ok := authDate(initData)
		if !ok || now().Sub(issued) > c.MaxAge {
			return domain.IdentityClaim{}, ErrInitDataExpired
		}
	}
	return ParseIdentity(initData)
}

type identityKey struct{}

// WithIdentity кладёт пользователя в контекст.
func WithIdentity(ctx context.Context, claim domain.IdentityClaim) context.Context {
	return context.WithValue(ctx, identityKey{}, claim)
}

// IdentityFromContext достаёт пользователя, положенный WebAppAuthMiddleware.
func IdentityFromContext(ctx context.Context) (domain.IdentityClaim, bool) {
	claim, ok := ctx.Value(identityKey{}).(domain.IdentityClaim)
	return claim, ok
}

// WebAppAuthMiddleware проверяет initData по токену бота.
func WebAppAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			initData := r.Header.Get(InitDataHeader)
			if initData == "" {
				initData = r.URL.Query().Get("init_data")
			}
			claim, err := cfg.Authenticate(initData)
			if err != nil {
				metrics.WebAppAuthFailures.WithLabelValues(authFailureReason(err)).Inc()
				WriteError(w, http.StatusUnauthorized, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claim)))
		})
	}
}

func authFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrInitDataMissing):
		return "missing"
	case errors.Is(err, ErrInitDataInvalid):
		return "signature"
	case errors.Is(err, ErrInitDataExpired):
		return "expired"
	default:
		return "identity"
	}
}

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, ErrorResponse{Error: err.Error()})
}

// WriteJSON отправляет ответ в JSON.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
