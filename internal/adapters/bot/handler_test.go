package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-engagement/internal/domain"
)

type stubSender struct {
	sent     []tgbotapi.MessageConfig
	requests int
}

func (s *stubSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (s *stubSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	s.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type stubProfiles struct {
	claims       []domain.IdentityClaim
	recomputeErr error
	recomputes   int
}

func (s *stubProfiles) GetProfile(_ context.Context, claim domain.IdentityClaim) domain.ActivityProfile {
	s.claims = append(s.claims, claim)
	return domain.ActivityProfile{TotalMessages: 1500, Persona: domain.PersonaPaparazzi, Origin: domain.OriginAggregated}
}

func (s *stubProfiles) RequestRecompute(_ context.Context, claim domain.IdentityClaim, _ domain.RecomputeCause) error {
	s.claims = append(s.claims, claim)
	s.recomputes++
	return s.recomputeErr
}

func commandUpdate(text string) []byte {
	return []byte(`{"update_id":1,"message":{"message_id":1,"date":1700000000,` +
		`"chat":{"id":99,"type":"private"},` +
		`"from":{"id":99,"first_name":"Оля","username":"olya","is_premium":true},` +
		`"text":"` + text + `","entities":[{"type":"bot_command","offset":0,"length":` +
		itoa(len(text)) + `}]}}`)
}

func itoa(n int) string {
	const digits = "0123456789"
	if n < 10 {
		return string(digits[n])
	}
	return itoa(n/10) + string(digits[n%10])
}

func TestStartSendsWebAppButton(t *testing.T) {
	sender := &stubSender{}
	h := NewHandler(sender, &stubProfiles{}, "https://example.org/app", zerolog.Nop())
	if err := h.HandleRawUpdate(context.Background(), commandUpdate("/start")); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("ожидали 1 сообщение, получили %d", len(sender.sent))
	}
	keyboard, ok := sender.sent[0].ReplyMarkup.(*tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatal("ожидали inline-клавиатуру")
	}
	button := keyboard.InlineKeyboard[0][0]
	if button.URL == nil || *button.URL != "https://example.org/app" {
		t.Fatalf("первая кнопка должна вести в WebApp: %+v", button)
	}
	if !strings.Contains(sender.sent[0].Text, "Оля") {
		t.Fatalf("приветствие должно содержать имя: %q", sender.sent[0].Text)
	}
}

func TestStatsUsesPremiumFromRawUpdate(t *testing.T) {
	sender := &stubSender{}
	profiles := &stubProfiles{}
	h := NewHandler(sender, profiles, "", zerolog.Nop())
	if err := h.HandleRawUpdate(context.Background(), commandUpdate("/stats")); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(profiles.claims) != 1 {
		t.Fatalf("ожидали один запрос профиля, получили %d", len(profiles.claims))
	}
	claim := profiles.claims[0]
	if claim.AccountID != 99 || !claim.IsPremium || claim.Username != "olya" {
		t.Fatalf("неожиданный пользователь: %+v", claim)
	}
	if len(sender.sent) != 1 || sender.sent[0].ParseMode != tgbotapi.ModeHTML {
		t.Fatalf("ожидали HTML-отчёт, получили %+v", sender.sent)
	}
	if !strings.Contains(sender.sent[0].Text, "1 500") {
		t.Fatalf("в отчёте должно быть число сообщений: %q", sender.sent[0].Text)
	}
}

func TestRefresh(t *testing.T) {
	sender := &stubSender{}
	profiles := &stubProfiles{}
	h := NewHandler(sender, profiles, "", zerolog.Nop())
	_ = h.HandleRawUpdate(context.Background(), commandUpdate("/refresh"))
	if profiles.recomputes != 1 {
		t.Fatal("ожидали запрос пересчёта")
	}

	profiles.recomputeErr = errors.New("queue down")
	_ = h.HandleRawUpdate(context.Background(), commandUpdate("/refresh"))
	last := sender.sent[len(sender.sent)-1].Text
	if !strings.Contains(last, "попробуйте позже") {
		t.Fatalf("ожидали сообщение об ошибке, получили %q", last)
	}
}

func TestCallbackStats(t *testing.T) {
	sender := &stubSender{}
	profiles := &stubProfiles{}
	h := NewHandler(sender, profiles, "", zerolog.Nop())
	h.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: 5},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 5}},
		Data:    callbackStats,
	}})
	if sender.requests != 1 {
		t.Fatal("ожидали ответ на callback")
	}
	if len(profiles.claims) != 1 || profiles.claims[0].AccountID != 5 {
		t.Fatalf("неожиданные запросы: %+v", profiles.claims)
	}
}

func TestHandleRawUpdateRejectsGarbage(t *testing.T) {
	h := NewHandler(&stubSender{}, &stubProfiles{}, "", zerolog.Nop())
	if err := h.HandleRawUpdate(context.Background(), []byte("{")); err == nil {
		t.Fatal("ожидали ошибку разбора")
	}
}
