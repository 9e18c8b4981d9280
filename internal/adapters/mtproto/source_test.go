package mtproto

import (
	"testing"

	"github.com/gotd/td/tg"

	"tg-engagement/internal/domain"
)

func documentMedia(attrs ...tg.DocumentAttributeClass) *tg.MessageMediaDocument {
	return &tg.MessageMediaDocument{Document: &tg.Document{ID: 1, Attributes: attrs}}
}

func TestConvertMessage(t *testing.T) {
	cases := []struct {
		name    string
		media   tg.MessageMediaClass
		kind    domain.MediaKind
		subtype domain.MediaSubtype
	}{
		{"text", nil, domain.MediaNone, domain.SubtypeNone},
		{"photo", &tg.MessageMediaPhoto{}, domain.MediaPhoto, domain.SubtypeNone},
		{"sticker", documentMedia(&tg.DocumentAttributeSticker{}, &tg.DocumentAttributeImageSize{}), domain.MediaDocument, domain.SubtypeSticker},
		{"video", documentMedia(&tg.DocumentAttributeVideo{}), domain.MediaDocument, domain.SubtypeVideo},
		{"video note", documentMedia(&tg.DocumentAttributeVideo{RoundMessage: true}), domain.MediaDocument, domain.SubtypeVideoNote},
		{"voice", documentMedia(&tg.DocumentAttributeAudio{Voice: true}), domain.MediaDocument, domain.SubtypeVoice},
		{"music", documentMedia(&tg.DocumentAttributeAudio{}, &tg.DocumentAttributeFilename{FileName: "a.mp3"}), domain.MediaDocument, domain.SubtypeAudio},
		{"file", documentMedia(&tg.DocumentAttributeFilename{FileName: "a.pdf"}), domain.MediaDocument, domain.SubtypeFile},
		{"empty document", &tg.MessageMediaDocument{Document: &tg.DocumentEmpty{}}, domain.MediaDocument, domain.SubtypeFile},
		{"geo", &tg.MessageMediaGeo{}, domain.MediaOther, domain.SubtypeNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := convertMessage(&tg.Message{Date: 1700000000, Message: "привет", Media: tc.media})
			if msg.MediaKind != tc.kind || msg.MediaSubtype != tc.subtype {
				t.Fatalf("ожидали %q/%q, получили %q/%q", tc.kind, tc.subtype, msg.MediaKind, msg.MediaSubtype)
			}
			if msg.Timestamp.Unix() != 1700000000 || msg.Text != "привет" {
				t.Fatalf("неожиданные поля: %+v", msg)
			}
		})
	}
}

func TestUserTitle(t *testing.T) {
	if got := userTitle(&tg.User{ID: 7, Self: true}, 7); got != "Saved Messages" {
		t.Fatalf("ожидали Saved Messages, получили %q", got)
	}
	if got := userTitle(&tg.User{ID: 8, FirstName: "Анна", LastName: "К"}, 7); got != "Анна К" {
		t.Fatalf("неожиданное имя: %q", got)
	}
	if got := userTitle(&tg.User{ID: 9, Username: "durov"}, 7); got != "@durov" {
		t.Fatalf("неожиданное имя: %q", got)
	}
}
