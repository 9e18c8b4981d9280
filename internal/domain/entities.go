package domain

import "time"

// IdentityClaim описывает пользователя, подтверждённого подписью initData.
type IdentityClaim struct {
	AccountID    int64
	DisplayName  string
	IsPremium    bool
	Username     string
	LanguageCode string
}

// ContentType определяет категорию содержимого сообщения.
type ContentType string

const (
	ContentText    ContentType = "text"
	ContentPhoto   ContentType = "photo"
	ContentVoice   ContentType = "voice"
	ContentVideo   ContentType = "video"
	ContentSticker ContentType = "sticker"
)

// ContentSchemaVersion задаёт версию набора категорий ContentTypeDistribution.
// Кружки (video_note) учитываются в категории video.
const ContentSchemaVersion = 1

// ContentTypeDistribution хранит количество сообщений по категориям.
type ContentTypeDistribution struct {
	Text    int `json:"text"`
	Photo   int `json:"photo"`
	Voice   int `json:"voice"`
	Video   int `json:"video"`
	Sticker int `json:"sticker"`
}

// Add увеличивает счётчик категории. Неизвестные категории игнорируются.
func (d *ContentTypeDistribution) Add(ct ContentType, n int) {
	switch ct {
	case ContentText:
		d.Text += n
	case ContentPhoto:
		d.Photo += n
	case ContentVoice:
		d.Voice += n
	case ContentVideo:
		d.Video += n
	case ContentSticker:
		d.Sticker += n
	}
}

// Merge прибавляет значения другого распределения.
func (d *ContentTypeDistribution) Merge(other ContentTypeDistribution) {
	d.Text += other.Text
	d.Photo += other.Photo
	d.Voice += other.Voice
	d.Video += other.Video
	d.Sticker += other.Sticker
}

// ProfileOrigin показывает, как был получен профиль.
type ProfileOrigin string

const (
	OriginSynthesized ProfileOrigin = "synthesized"
	OriginAggregated  ProfileOrigin = "aggregated"
)

// ContactStat описывает собеседника и число сообщений в диалоге с ним.
type ContactStat struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ActivityProfile описывает итоговый профиль активности аккаунта.
type ActivityProfile struct {
	TotalMessages  int                     `json:"totalMessages"`
	WordsCount     int                     `json:"wordsCount"`
	DaysOnPlatform int                     `json:"daysOnPlatform"`
	VideoNoteCount int                     `json:"videoNoteCount"`
	DaysStreak     int                     `json:"daysStreak"`
	GhostModeCount int                     `json:"ghostModeCount"`
	ContentType    ContentTypeDistribution `json:"contentType"`
	ActiveHours    map[int]int             `json:"activeHours"`
	TopContacts    []ContactStat           `json:"topContacts"`
	Persona        Persona                 `json:"persona"`
	Origin         ProfileOrigin           `json:"origin"`
	PhotoURL       *string                 `json:"photoUrl"`
	SchemaVersion  int                     `json:"schemaVersion"`
	ComputedAt     time.Time               `json:"computedAt"`
}

// PeakHour возвращает час с наибольшим числом сообщений и false, если часов нет.
// При равенстве выбирается более ранний час.
func (p ActivityProfile) PeakHour() (int, bool) {
	best, bestCount, found := 0, -1, false
	for hour := 0; hour < 24; hour++ {
		count, ok := p.ActiveHours[hour]
		if !ok {
			continue
		}
		if count > bestCount {
			best, bestCount, found = hour, count, true
		}
	}
	return best, found
}

// Credential хранит MTProto-сессию аккаунта.
type Credential struct {
	AccountID int64
	Session   []byte
	UpdatedAt time.Time
}

// Conversation описывает диалог из источника сообщений.
type Conversation struct {
	ID     int64
	Title  string
	Direct bool
}

// MediaKind определяет тип вложения сообщения.
type MediaKind string

const (
	MediaNone     MediaKind = ""
	MediaPhoto    MediaKind = "photo"
	MediaDocument MediaKind = "document"
	MediaOther    MediaKind = "other"
)

// MediaSubtype уточняет тип документа.
type MediaSubtype string

const (
	SubtypeNone      MediaSubtype = ""
	SubtypeSticker   MediaSubtype = "sticker"
	SubtypeVideo     MediaSubtype = "video"
	SubtypeVideoNote MediaSubtype = "video_note"
	SubtypeVoice     MediaSubtype = "voice"
	SubtypeAudio     MediaSubtype = "audio"
	SubtypeFile      MediaSubtype = "file"
)

// Message содержит поля сообщения, нужные для подсчёта статистики.
type Message struct {
	Timestamp    time.Time
	Text         string
	MediaKind    MediaKind
	MediaSubtype MediaSubtype
}

// Classify возвращает категорию сообщения и признак того, что это кружок.
// Пустая строка означает, что сообщение не попадает ни в одну категорию.
func (m Message) Classify() (ContentType, bool) {
	switch m.MediaKind {
	case MediaPhoto:
		return ContentPhoto, false
	case MediaDocument:
		switch m.MediaSubtype {
		case SubtypeSticker:
			return ContentSticker, false
		case SubtypeVideo:
			return ContentVideo, false
		case SubtypeVideoNote:
			return ContentVideo, true
		case SubtypeVoice:
			return ContentVoice, false
		}
		return "", false
	case MediaNone:
		if m.Text != "" {
			return ContentText, false
		}
	}
	return "", false
}
