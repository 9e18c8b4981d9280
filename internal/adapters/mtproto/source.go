package mtproto

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tg-engagement/internal/domain"
	"tg-engagement/internal/infra/metrics"
)

// Dialer открывает MTProto-клиент по сохранённой сессии аккаунта.
type Dialer struct {
	apiID   int
	apiHash string
	store   domain.CredentialStore
	limiter *rate.Limiter
	log     zerolog.Logger
}

var _ domain.MessageSourceDialer = (*Dialer)(nil)

// NewDialer создаёт Dialer. globalRPS ограничивает общее число RPC в секунду, 0 снимает ограничение.
func NewDialer(apiID int, apiHash string, store domain.CredentialStore, globalRPS int, log zerolog.Logger) *Dialer {
	limit := rate.Inf
	burst := 1
	if globalRPS > 0 {
		limit = rate.Limit(globalRPS)
		burst = globalRPS
	}
	return &Dialer{
		apiID:   apiID,
		apiHash: apiHash,
		store:   store,
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
	}
}

// WithSource подключается к Telegram и вызывает fn с источником сообщений.
// Соединение закрывается после возврата fn.
func (d *Dialer) WithSource(ctx context.Context, cred domain.Credential, fn func(ctx context.Context, src domain.MessageSource) error) error {
	if len(cred.Session) == 0 {
		return domain.ErrSourceUnauthorized
	}
	storage := &credentialStorage{cred: cred, store: d.store, log: d.log}
	client := telegram.NewClient(d.apiID, d.apiHash, telegram.Options{
		SessionStorage: storage,
		NoUpdates:      true,
	})

	start := time.Now()
	err := client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			return domain.ErrSourceUnauthorized
		}
		src := &Source{
			api:     client.API(),
			limiter: d.limiter,
			selfID:  cred.AccountID,
			peers:   make(map[int64]*tg.InputPeerUser),
		}
		return fn(ctx, src)
	})
	metrics.ObserveNetworkRequest("mtproto", "session", "telegram", start, err)
	return err
}

// credentialStorage отдаёт gotd сессию аккаунта и сохраняет её обновления.
type credentialStorage struct {
	mu    sync.Mutex
	cred  domain.Credential
	store domain.CredentialStore
	log   zerolog.Logger
}

var _ session.Storage = (*credentialStorage)(nil)

func (s *credentialStorage) LoadSession(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cred.Session) == 0 {
		return nil, session.ErrNotFound
	}
	return append([]byte(nil), s.cred.Session...), nil
}

func (s *credentialStorage) StoreSession(ctx context.Context, data []byte) error {
	s.mu.Lock()
	s.cred.Session = append([]byte(nil), data...)
	cred := s.cred
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	if err := s.store.StoreCredential(ctx, cred); err != nil {
		// gotd продолжит работу с сессией в памяти.
		s.log.Warn().Err(err).Int64("account_id", cred.AccountID).Msg("не удалось сохранить обновлённую сессию")
	}
	return nil
}

// Source читает диалоги и историю через API gotd.
type Source struct {
	api     *tg.Client
	limiter *rate.Limiter
	selfID  int64

	mu    sync.Mutex
	peers map[int64]*tg.InputPeerUser
}

var _ domain.MessageSource = (*Source)(nil)

// ListRecentConversations возвращает последние диалоги. Личными считаются чаты с людьми, не с ботами.
func (s *Source) ListRecentConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := s.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      limit,
	})
	metrics.ObserveNetworkRequest("mtproto", "get_dialogs", "telegram", start, err)
	if err != nil {
		return nil, fmt.Errorf("messages.getDialogs: %w", err)
	}
	modified, ok := res.AsModified()
	if !ok {
		return nil, errors.New("messages.getDialogs: unexpected not-modified response")
	}

	users := make(map[int64]*tg.User)
	for _, u := range modified.GetUsers() {
		if user, ok := u.(*tg.User); ok {
			users[user.ID] = user
		}
	}

	out := make([]domain.Conversation, 0, len(modified.GetDialogs()))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dc := range modified.GetDialogs() {
		dialog, ok := dc.(*tg.Dialog)
		if !ok {
			continue
		}
		switch peer := dialog.Peer.(type) {
		case *tg.PeerUser:
			user := users[peer.UserID]
			if user == nil {
				continue
			}
			s.peers[user.ID] = &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}
			out = append(out, domain.Conversation{
				ID:     user.ID,
				Title:  userTitle(user, s.selfID),
				Direct: !user.Bot && !user.Deleted,
			})
		case *tg.PeerChat:
			out = append(out, domain.Conversation{ID: -peer.ChatID, Direct: false})
		case *tg.PeerChannel:
			out = append(out, domain.Conversation{ID: -peer.ChannelID, Direct: false})
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ListRecentMessages возвращает последние сообщения личного диалога.
func (s *Source) ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	peer, ok := s.peers[conversationID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("диалог %d не найден среди загруженных", conversationID)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := s.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{Peer: peer, Limit: limit})
	metrics.ObserveNetworkRequest("mtproto", "get_history", "telegram", start, err)
	if err != nil {
		return nil, fmt.Errorf("messages.getHistory: %w", err)
	}
	modified, ok := res.AsModified()
	if !ok {
		return nil, errors.New("messages.getHistory: unexpected not-modified response")
	}

	out := make([]domain.Message, 0, len(modified.GetMessages()))
	for _, mc := range modified.GetMessages() {
		msg, ok := mc.(*tg.Message)
		if !ok {
			continue
		}
		out = append(out, convertMessage(msg))
	}
	return out, nil
}

func userTitle(u *tg.User, selfID int64) string {
	if u.Self || u.ID == selfID {
		return "Saved Messages"
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return fmt.Sprintf("id%d", u.ID)
}

func convertMessage(msg *tg.Message) domain.Message {
	out := domain.Message{
		Timestamp: time.Unix(int64(msg.Date), 0).UTC(),
		Text:      msg.Message,
	}
	switch media := msg.Media.(type) {
	case nil:
	case *tg.MessageMediaPhoto:
		out.MediaKind = domain.MediaPhoto
	case *tg.MessageMediaDocument:
		out.MediaKind = domain.MediaDocument
		out.MediaSubtype = documentSubtype(media)
	default:
		out.MediaKind = domain.MediaOther
	}
	return out
}

func documentSubtype(media *tg.MessageMediaDocument) domain.MediaSubtype {
	if media.Document == nil {
		return domain.SubtypeFile
	}
	doc, ok := media.Document.AsNotEmpty()
	if !ok {
		return domain.SubtypeFile
	}
	subtype := domain.SubtypeFile
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeSticker:
			return domain.SubtypeSticker
		case *tg.DocumentAttributeVideo:
			if a.RoundMessage {
				return domain.SubtypeVideoNote
			}
			subtype = domain.SubtypeVideo
		case *tg.DocumentAttributeAudio:
			if a.Voice {
				return domain.SubtypeVoice
			}
			if subtype == domain.SubtypeFile {
				subtype = domain.SubtypeAudio
			}
		}
	}
	return subtype
}
