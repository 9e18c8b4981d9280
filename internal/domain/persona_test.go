package domain

import "testing"

func TestClassifyPersona(t *testing.T) {
	tests := []struct {
		name    string
		dist    ContentTypeDistribution
		premium bool
		want    Persona
	}{
		{name: "empty", dist: ContentTypeDistribution{}, want: PersonaTexter},
		{name: "voice over text", dist: ContentTypeDistribution{Text: 10, Voice: 11}, want: PersonaPodcaster},
		{name: "voice at 60% of text", dist: ContentTypeDistribution{Text: 10, Voice: 6}, want: PersonaPodcaster},
		{name: "voice below 60% of text", dist: ContentTypeDistribution{Text: 10, Voice: 5}, want: PersonaTexter},
		{name: "voice only", dist: ContentTypeDistribution{Voice: 1}, want: PersonaPodcaster},
		{name: "voice leaning", dist: ContentTypeDistribution{Text: 50, Voice: 40, Photo: 5, Sticker: 5}, want: PersonaPodcaster},
		{name: "stickers", dist: ContentTypeDistribution{Text: 10, Sticker: 6}, want: PersonaStickerEnthusiast},
		{name: "photos", dist: ContentTypeDistribution{Text: 60, Photo: 20, Voice: 5, Sticker: 10, Video: 5}, want: PersonaPaparazzi},
		{name: "video", dist: ContentTypeDistribution{Text: 20, Video: 5}, want: PersonaStoryteller},
		{name: "video premium lower threshold", dist: ContentTypeDistribution{Text: 20, Video: 3}, premium: true, want: PersonaStoryteller},
		{name: "video below threshold", dist: ContentTypeDistribution{Text: 20, Video: 3}, want: PersonaTexter},
		{name: "balanced", dist: ContentTypeDistribution{Text: 85, Photo: 5, Voice: 3, Sticker: 5, Video: 2}, want: PersonaTexter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyPersona(tt.dist, tt.premium)
			if got != tt.want {
				t.Fatalf("ClassifyPersona(%+v, %v) = %v, want %v", tt.dist, tt.premium, got, tt.want)
			}
			if !got.Valid() {
				t.Fatalf("метка %q не из закрытого набора", got)
			}
		})
	}
}

func TestClassifyPersonaVoiceDominatesText(t *testing.T) {
	for text := 0; text < 50; text++ {
		for voice := text + 1; voice < text+20; voice++ {
			got := ClassifyPersona(ContentTypeDistribution{Text: text, Voice: voice}, false)
			if got != PersonaPodcaster {
				t.Fatalf("text=%d voice=%d: ожидали Podcaster, получили %s", text, voice, got)
			}
		}
	}
}

func TestMessageClassify(t *testing.T) {
	tests := []struct {
		msg       Message
		want      ContentType
		videoNote bool
	}{
		{msg: Message{Text: "привет"}, want: ContentText},
		{msg: Message{}, want: ""},
		{msg: Message{MediaKind: MediaPhoto, Text: "подпись"}, want: ContentPhoto},
		{msg: Message{MediaKind: MediaDocument, MediaSubtype: SubtypeSticker}, want: ContentSticker},
		{msg: Message{MediaKind: MediaDocument, MediaSubtype: SubtypeVideo}, want: ContentVideo},
		{msg: Message{MediaKind: MediaDocument, MediaSubtype: SubtypeVideoNote}, want: ContentVideo, videoNote: true},
		{msg: Message{MediaKind: MediaDocument, MediaSubtype: SubtypeVoice}, want: ContentVoice},
		{msg: Message{MediaKind: MediaDocument, MediaSubtype: SubtypeAudio}, want: ""},
		{msg: Message{MediaKind: MediaDocument, MediaSubtype: SubtypeFile}, want: ""},
		{msg: Message{MediaKind: MediaOther, Text: "гео"}, want: ""},
	}
	for _, tt := range tests {
		got, note := tt.msg.Classify()
		if got != tt.want || note != tt.videoNote {
			t.Fatalf("Classify(%+v) = %q,%v; ожидали %q,%v", tt.msg, got, note, tt.want, tt.videoNote)
		}
	}
}

func TestPeakHour(t *testing.T) {
	p := ActivityProfile{ActiveHours: map[int]int{9: 3, 14: 7, 20: 7}}
	hour, ok := p.PeakHour()
	if !ok || hour != 14 {
		t.Fatalf("ожидали 14, получили %d (%v)", hour, ok)
	}
	if _, ok := (ActivityProfile{}).PeakHour(); ok {
		t.Fatal("ожидали отсутствие пикового часа")
	}
}
