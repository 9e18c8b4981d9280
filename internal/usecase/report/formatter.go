package report

import (
	"fmt"
	"html"
	"strings"

	"tg-engagement/internal/domain"
)

const maxContactsInReport = 5

var personaTitles = map[domain.Persona]string{
	domain.PersonaPodcaster:         "🎙 Подкастер",
	domain.PersonaStickerEnthusiast: "🦄 Стикероман",
	domain.PersonaPaparazzi:         "📸 Папарацци",
	domain.PersonaStoryteller:       "🎬 Рассказчик",
	domain.PersonaTexter:            "⌨️ Текстовик",
}

// FormatProfile формирует текстовый отчёт о профиле для отправки в чат (HTML).
func FormatProfile(p domain.ActivityProfile) string {
	var sections []string

	header := "📊 <b>Твой год в Telegram</b>"
	if p.Origin == domain.OriginSynthesized {
		header += "\n<i>Оценка по данным аккаунта: переписка недоступна</i>"
	}
	sections = append(sections, header)

	sections = append(sections, strings.Join([]string{
		fmt.Sprintf("💬 Сообщений: <b>%s</b>", groupDigits(p.TotalMessages)),
		fmt.Sprintf("📝 Слов: <b>%s</b>", groupDigits(p.WordsCount)),
		fmt.Sprintf("📅 Дней в Telegram: <b>%s</b>", groupDigits(p.DaysOnPlatform)),
		fmt.Sprintf("🔥 Самая длинная серия: <b>%d дн.</b>", p.DaysStreak),
	}, "\n"))

	if mix := contentSection(p.ContentType, p.VideoNoteCount); mix != "" {
		sections = append(sections, mix)
	}

	if hour, ok := p.PeakHour(); ok {
		sections = append(sections, fmt.Sprintf("⏰ Пик активности: <b>%02d:00–%02d:00</b>", hour, (hour+1)%24))
	}

	if contacts := contactsSection(p.TopContacts); contacts != "" {
		sections = append(sections, contacts)
	}

	title, ok := personaTitles[p.Persona]
	if !ok {
		title = html.EscapeString(string(p.Persona))
	}
	sections = append(sections, "🏷 Твой типаж: <b>"+title+"</b>")

	return strings.TrimSpace(strings.Join(sections, "\n\n"))
}

func contentSection(d domain.ContentTypeDistribution, videoNotes int) string {
	rows := []struct {
		label string
		n     int
	}{
		{"Текст", d.Text},
		{"Фото", d.Photo},
		{"Голосовые", d.Voice},
		{"Видео", d.Video},
		{"Стикеры", d.Sticker},
	}
	var b strings.Builder
	for _, r := range rows {
		if r.n == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("\n• %s: %s", r.label, groupDigits(r.n)))
	}
	if videoNotes > 0 {
		b.WriteString(fmt.Sprintf("\n• из них кружков: %s", groupDigits(videoNotes)))
	}
	if b.Len() == 0 {
		return ""
	}
	return "🧩 <b>Что ты отправляешь</b>" + b.String()
}

func contactsSection(contacts []domain.ContactStat) string {
	if len(contacts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("👥 <b>С кем переписываешься</b>")
	for i, c := range contacts {
		if i == maxContactsInReport {
			break
		}
		b.WriteString(fmt.Sprintf("\n%d. %s — %s", i+1, html.EscapeString(c.Name), groupDigits(c.Count)))
	}
	return b.String()
}

// groupDigits разделяет разряды пробелом: 12345 → 12 345.
func groupDigits(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ' ')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
