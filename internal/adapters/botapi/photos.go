package botapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-engagement/internal/domain"
	"tg-engagement/internal/infra/metrics"
)

const defaultContentType = "image/jpeg"

var errDownloadFailed = errors.New("download photo: запрос к файловому API не удался")

// photoAPI покрывает часть BotAPI, нужную для поиска аватара.
type photoAPI interface {
	GetUserProfilePhotos(config tgbotapi.UserProfilePhotosConfig) (tgbotapi.UserProfilePhotos, error)
	GetFileDirectURL(fileID string) (string, error)
}

// PhotoLookup ищет текущий аватар пользователя через Bot API.
// Наружу отдаётся только publicURL: ссылка на файл Bot API содержит токен бота.
type PhotoLookup struct {
	api       photoAPI
	client    tgbotapi.HTTPClient
	publicURL string
}

var (
	_ domain.PhotoLookup = (*PhotoLookup)(nil)
	_ domain.PhotoSource = (*PhotoLookup)(nil)
)

// NewPhotoLookup создаёт адаптер поверх *tgbotapi.BotAPI.
// publicURL указывает на маршрут API, который отдаёт аватар аутентифицированному пользователю.
func NewPhotoLookup(api photoAPI, client tgbotapi.HTTPClient, publicURL string) *PhotoLookup {
	if client == nil {
		client = http.DefaultClient
	}
	return &PhotoLookup{api: api, client: client, publicURL: publicURL}
}

// ProfilePhotoURL возвращает publicURL, если у пользователя есть аватар.
// Пустая строка без ошибки означает, что аватара нет.
func (p *PhotoLookup) ProfilePhotoURL(ctx context.Context, accountID int64) (string, error) {
	if _, err := p.largestFileID(ctx, accountID); err != nil {
		if errors.Is(err, domain.ErrNoPhoto) {
			return "", nil
		}
		return "", err
	}
	return p.publicURL, nil
}

// OpenProfilePhoto скачивает самый крупный размер последнего аватара.
func (p *PhotoLookup) OpenProfilePhoto(ctx context.Context, accountID int64) (io.ReadCloser, string, error) {
	fileID, err := p.largestFileID(ctx, accountID)
	if err != nil {
		return nil, "", err
	}

	start := time.Now()
	fileURL, err := p.api.GetFileDirectURL(fileID)
	metrics.ObserveNetworkRequest("botapi", "get_file", "telegram", start, err)
	if err != nil {
		return nil, "", fmt.Errorf("getFile: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", errDownloadFailed
	}
	start = time.Now()
	resp, err := p.client.Do(req)
	metrics.ObserveNetworkRequest("botapi", "download_file", "telegram", start, err)
	if err != nil {
		// Ошибка net/http содержит URL с токеном.
		return nil, "", errDownloadFailed
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, "", fmt.Errorf("download photo: статус %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = defaultContentType
	}
	return resp.Body, contentType, nil
}

func (p *PhotoLookup) largestFileID(ctx context.Context, accountID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	start := time.Now()
	photos, err := p.api.GetUserProfilePhotos(tgbotapi.UserProfilePhotosConfig{UserID: accountID, Limit: 1})
	metrics.ObserveNetworkRequest("botapi", "get_user_profile_photos", "telegram", start, err)
	if err != nil {
		return "", fmt.Errorf("getUserProfilePhotos: %w", err)
	}
	if photos.TotalCount == 0 || len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		return "", domain.ErrNoPhoto
	}
	sizes := photos.Photos[0]
	return sizes[len(sizes)-1].FileID, nil
}
