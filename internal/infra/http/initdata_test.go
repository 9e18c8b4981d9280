package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"
)

const testToken = "123456:TEST-token"

func signedInitData(t *testing.T, authDate time.Time) string {
	t.Helper()
	values := url.Values{}
	values.Set("query_id", "AAHdF6IQAAAAAN0XohDhrOrc")
	values.Set("user", `{"id":279058397,"first_name":"Vladislav","last_name":"K","username":"vdkfrost","language_code":"ru","is_premium":true}`)
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	return SignInitData(values, testToken)
}

func TestVerifyInitDataValid(t *testing.T) {
	initData := signedInitData(t, time.Now())
	if !VerifyInitData(initData, testToken) {
		t.Fatal("ожидали валидную подпись")
	}
}

func TestVerifyInitDataTampered(t *testing.T) {
	values, _ := url.ParseQuery(signedInitData(t, time.Now()))
	values.Set("auth_date", values.Get("auth_date")+"1")
	if VerifyInitData(values.Encode(), testToken) {
		t.Fatal("изменённые поля не должны проходить проверку")
	}

	values, _ = url.ParseQuery(signedInitData(t, time.Now()))
	hash := []byte(values.Get("hash"))
	if hash[0] == 'a' {
		hash[0] = 'b'
	} else {
		hash[0] = 'a'
	}
	values.Set("hash", string(hash))
	if VerifyInitData(values.Encode(), testToken) {
		t.Fatal("изменённый hash не должен проходить проверку")
	}
}

func TestVerifyInitDataWrongToken(t *testing.T) {
	if VerifyInitData(signedInitData(t, time.Now()), "654321:other") {
		t.Fatal("подпись другого бота не должна проходить проверку")
	}
}

func TestVerifyInitDataMalformed(t *testing.T) {
	cases := []string{
		"",
		"user=%7B%7D&auth_date=1",
		"%zz",
		"hash=",
	}
	for _, c := range cases {
		if VerifyInitData(c, testToken) {
			t.Fatalf("ожидали false для %q", c)
		}
	}
	if VerifyInitData(signedInitData(t, time.Now()), "") {
		t.Fatal("пустой токен не должен давать true")
	}
}

func TestParseIdentity(t *testing.T) {
	claim, err := ParseIdentity(signedInitData(t, time.Now()))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if claim.AccountID != 279058397 || claim.Username != "vdkfrost" || !claim.IsPremium {
		t.Fatalf("неожиданный пользователь: %+v", claim)
	}
	if claim.DisplayName != "Vladislav K" || claim.LanguageCode != "ru" {
		t.Fatalf("неожиданное имя: %+v", claim)
	}
	if _, err := ParseIdentity("auth_date=1"); err == nil {
		t.Fatal("ожидали ошибку без user")
	}
}

func TestAuthenticateExpired(t *testing.T) {
	now := time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)
	cfg := AuthConfig{BotToken: testToken, MaxAge: time.Hour, Now: func() time.Time { return now }}
	if _, err := cfg.Authenticate(signedInitData(t, now.Add(-2*time.Hour))); err != ErrInitDataExpired {
		t.Fatalf("ожидали ErrInitDataExpired, получили %v", err)
	}
	if _, err := cfg.Authenticate(signedInitData(t, now.Add(-time.Minute))); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
}

func TestWebAppAuthMiddleware(t *testing.T) {
	var seen int64
	handler := WebAppAuthMiddleware(AuthConfig{BotToken: testToken})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claim, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("пользователь не попал в контекст")
		}
		seen = claim.AccountID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set(InitDataHeader, signedInitData(t, time.Now()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seen != 279058397 {
		t.Fatalf("ожидали 200 и пользователя, получили %d / %d", rec.Code, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/stats?init_data="+url.QueryEscape(signedInitData(t, time.Now())), nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("init_data из query должны приниматься, получили %d", rec.Code)
	}
}

func TestWebAppAuthMiddlewareRejects(t *testing.T) {
	handler := WebAppAuthMiddleware(AuthConfig{BotToken: testToken})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("обработчик не должен вызываться")
	}))

	values, _ := url.ParseQuery(signedInitData(t, time.Now()))
	values.Del("hash")
	for _, initData := range []string{"", values.Encode()} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		if initData != "" {
			req.Header.Set(InitDataHeader, initData)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("ожидали 401, получили %d", rec.Code)
		}
		var body ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body.Error == "" {
			t.Fatalf("ожидали JSON с ошибкой: %v", err)
		}
	}
}
