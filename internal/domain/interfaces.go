package domain

import (
	"context"
	"errors"
	"io"
)

// ErrSourceUnauthorized возвращается, если сохранённая сессия больше не авторизована.
var ErrSourceUnauthorized = errors.New("сессия источника сообщений не авторизована")

// CredentialStore хранит MTProto-сессии аккаунтов.
type CredentialStore interface {
	// GetCredential возвращает сессию и false, если её нет.
	GetCredential(ctx context.Context, accountID int64) (Credential, bool, error)
	StoreCredential(ctx context.Context, cred Credential) error
}

// ProfileCache хранит посчитанные профили без TTL.
// Каждое удаление увеличивает поколение записи аккаунта.
type ProfileCache interface {
	// GetProfile возвращает профиль и false при промахе.
	GetProfile(ctx context.Context, accountID int64) (ActivityProfile, bool, error)
	// Generation возвращает текущее поколение записи, 0 если удалений не было.
	Generation(ctx context.Context, accountID int64) (int64, error)
	// PutProfile перезаписывает профиль, только если поколение всё ещё равно generation.
	// false без ошибки означает, что запись пропущена из-за удаления.
	PutProfile(ctx context.Context, accountID int64, generation int64, profile ActivityProfile) (bool, error)
	// DeleteProfile удаляет профиль и увеличивает поколение.
	DeleteProfile(ctx context.Context, accountID int64) error
}

// MessageSource отдаёт недавние диалоги и сообщения аккаунта.
type MessageSource interface {
	ListRecentConversations(ctx context.Context, limit int) ([]Conversation, error)
	ListRecentMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error)
}

// MessageSourceDialer открывает источник сообщений по сохранённой сессии.
// Источник действителен только внутри fn.
type MessageSourceDialer interface {
	WithSource(ctx context.Context, cred Credential, fn func(ctx context.Context, src MessageSource) error) error
}

// ErrNoPhoto возвращается, если у пользователя нет аватара.
var ErrNoPhoto = errors.New("аватар не найден")

// PhotoLookup возвращает ссылку на аватар. Пустая строка означает, что аватара нет.
// Ссылка не должна содержать секретов: она попадает в кэш и в ответы клиентам.
type PhotoLookup interface {
	ProfilePhotoURL(ctx context.Context, accountID int64) (string, error)
}

// PhotoSource отдаёт содержимое аватара. Вызывающий закрывает поток.
type PhotoSource interface {
	OpenProfilePhoto(ctx context.Context, accountID int64) (body io.ReadCloser, contentType string, err error)
}

// ProfileService используют HTTP, бот и воркер.
type ProfileService interface {
	GetProfile(ctx context.Context, claim IdentityClaim) ActivityProfile
	Invalidate(ctx context.Context, accountID int64) error
	Recompute(ctx context.Context, claim IdentityClaim) (ActivityProfile, error)
}
