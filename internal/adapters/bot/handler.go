package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-engagement/internal/adapters/telegram"
	"tg-engagement/internal/domain"
	"tg-engagement/internal/infra/metrics"
	"tg-engagement/internal/usecase/report"
)

const (
	callbackStats   = "stats"
	callbackRefresh = "refresh"
)

// Sender отправляет сообщения в Bot API. *tgbotapi.BotAPI подходит.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// ProfileProvider описывает, что нужно боту от сервиса профилей.
type ProfileProvider interface {
	GetProfile(ctx context.Context, claim domain.IdentityClaim) domain.ActivityProfile
	RequestRecompute(ctx context.Context, claim domain.IdentityClaim, cause domain.RecomputeCause) error
}

// Handler обслуживает вебхук бота.
type Handler struct {
	bot       Sender
	profiles  ProfileProvider
	webAppURL string
	log       zerolog.Logger
}

// NewHandler создаёт обработчик.
func NewHandler(bot Sender, profiles ProfileProvider, webAppURL string, log zerolog.Logger) *Handler {
	return &Handler{bot: bot, profiles: profiles, webAppURL: webAppURL, log: log}
}

// rawPremium достаёт is_premium, которого нет в типах tgbotapi v5.
type rawPremium struct {
	Message *struct {
		From *struct {
			IsPremium bool `json:"is_premium"`
		} `json:"from"`
	} `json:"message"`
	CallbackQuery *struct {
		From *struct {
			IsPremium bool `json:"is_premium"`
		} `json:"from"`
	} `json:"callback_query"`
}

func (p rawPremium) premium() bool {
	if p.Message != nil && p.Message.From != nil {
		return p.Message.From.IsPremium
	}
	if p.CallbackQuery != nil && p.CallbackQuery.From != nil {
		return p.CallbackQuery.From.IsPremium
	}
	return false
}

// HandleRawUpdate разбирает тело вебхука и обрабатывает апдейт.
func (h *Handler) HandleRawUpdate(ctx context.Context, body []byte) error {
	var upd tgbotapi.Update
	if err := json.Unmarshal(body, &upd); err != nil {
		return fmt.Errorf("decode update: %w", err)
	}
	var raw rawPremium
	_ = json.Unmarshal(body, &raw)
	h.handleUpdate(ctx, upd, raw.premium())
	return nil
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	h.handleUpdate(ctx, upd, false)
}

func (h *Handler) handleUpdate(ctx context.Context, upd tgbotapi.Update, premium bool) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message, premium)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery, premium)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message, premium bool) {
	if msg.From == nil {
		h.reply(msg.Chat.ID, "Не удалось определить пользователя", nil)
		return
	}
	claim := claimFromUser(msg.From, premium)
	switch msg.Command() {
	case "start":
		h.reply(msg.Chat.ID, buildStartMessage(msg.From.FirstName), h.mainKeyboard())
	case "help":
		h.reply(msg.Chat.ID, buildHelpMessage(), h.mainKeyboard())
	case "stats":
		h.handleStats(ctx, msg.Chat.ID, claim)
	case "refresh":
		h.handleRefresh(ctx, msg.Chat.ID, claim)
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help", nil)
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, premium bool) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		h.log.Debug().Err(err).Msg("не удалось ответить на callback")
	}
	if cb.From == nil || cb.Message == nil {
		return
	}
	claim := claimFromUser(cb.From, premium)
	switch cb.Data {
	case callbackStats:
		h.handleStats(ctx, cb.Message.Chat.ID, claim)
	case callbackRefresh:
		h.handleRefresh(ctx, cb.Message.Chat.ID, claim)
	}
}

func (h *Handler) handleStats(ctx context.Context, chatID int64, claim domain.IdentityClaim) {
	profile := h.profiles.GetProfile(ctx, claim)
	h.replyHTML(chatID, report.FormatProfile(profile), h.mainKeyboard())
}

func (h *Handler) handleRefresh(ctx context.Context, chatID int64, claim domain.IdentityClaim) {
	if err := h.profiles.RequestRecompute(ctx, claim, domain.RecomputeCauseManual); err != nil {
		h.log.Error().Err(err).Int64("account_id", claim.AccountID).Msg("bot: не удалось сбросить профиль")
		h.reply(chatID, "Не получилось обновить статистику, попробуйте позже", nil)
		return
	}
	h.reply(chatID, "Статистика будет пересчитана. Загляните через минуту: /stats", nil)
}

func claimFromUser(u *tgbotapi.User, premium bool) domain.IdentityClaim {
	return domain.IdentityClaim{
		AccountID:    u.ID,
		DisplayName:  strings.TrimSpace(u.FirstName + " " + u.LastName),
		IsPremium:    premium,
		Username:     u.UserName,
		LanguageCode: u.LanguageCode,
	}
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	h.send(chatID, text, "", keyboard)
}

func (h *Handler) replyHTML(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	h.send(chatID, text, tgbotapi.ModeHTML, keyboard)
}

func (h *Handler) send(chatID int64, text, parseMode string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = parseMode
		if i == len(parts)-1 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

func (h *Handler) mainKeyboard() *tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Статистика", callbackStats),
			tgbotapi.NewInlineKeyboardButtonData("🔄 Обновить", callbackRefresh),
		),
	}
	if h.webAppURL != "" {
		rows = append([][]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("✨ Открыть итоги года", h.webAppURL)),
		}, rows...)
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &keyboard
}

func buildStartMessage(firstName string) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "привет"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("👋 %s!\n\n", name))
	b.WriteString("Я покажу, как прошёл твой год в Telegram: сколько сообщений ты отправил, ")
	b.WriteString("с кем переписывался чаще всего и какой у тебя типаж.\n\n")
	b.WriteString("Открой итоги кнопкой ниже или отправь /stats.")
	return b.String()
}

func buildHelpMessage() string {
	return strings.Join([]string{
		"/start — приветствие и ссылка на итоги",
		"/stats — статистика текстом",
		"/refresh — пересчитать статистику",
	}, "\n")
}
