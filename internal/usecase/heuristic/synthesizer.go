package heuristic

import (
	"math"
	"sort"
	"time"

	"tg-engagement/internal/domain"
)

// Ориентиры «ID аккаунта → дата регистрации» по публичным данным Telegram.
// Отсортированы по возрастанию порога.
var joinBenchmarks = []struct {
	threshold int64
	date      time.Time
}{
	{100_000, date(2013, time.October, 1)},
	{10_000_000, date(2014, time.May, 1)},
	{100_000_000, date(2015, time.February, 1)},
	{300_000_000, date(2016, time.December, 1)},
	{600_000_000, date(2018, time.June, 1)},
	{1_000_000_000, date(2019, time.December, 1)},
	{2_000_000_000, date(2021, time.September, 1)},
	{5_000_000_000, date(2022, time.March, 1)},
	{6_000_000_000, date(2023, time.May, 1)},
	{7_000_000_000, date(2024, time.January, 1)},
}

// Базовый объём сообщений: чем старше аккаунт, тем выше база и множитель.
var volumeBrackets = []struct {
	threshold  int64
	base       float64
	multiplier float64
}{
	{100_000_000, 12000, 3.0},
	{1_000_000_000, 9000, 2.2},
	{2_000_000_000, 7000, 1.6},
	{5_000_000_000, 5000, 1.2},
	{math.MaxInt64, 3000, 1.0},
}

type contentRatios struct {
	text, photo, voice, sticker, video float64
}

var (
	ratiosBalanced     = contentRatios{text: 0.85, photo: 0.05, voice: 0.03, sticker: 0.05, video: 0.02}
	ratiosMediaLeaning = contentRatios{text: 0.60, photo: 0.20, voice: 0.05, sticker: 0.10, video: 0.05}
	ratiosVoiceLeaning = contentRatios{text: 0.50, photo: 0.05, voice: 0.40, sticker: 0.05, video: 0.00}
)

const (
	premiumMultiplier       = 1.5
	shortUsernameMultiplier = 1.25
	shortUsernameLen        = 6
)

// Сиды для независимых величин.
const (
	seedVolume = iota + 1
	seedContentMix
	seedGhostMode
	seedStreak
	seedWords
	seedVideoNotes
	seedPeakHour
)

// Synthesizer строит правдоподобный профиль по одному ID аккаунта.
type Synthesizer struct {
	now func() time.Time
}

// NewSynthesizer создаёт синтезатор с системными часами.
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{now: time.Now}
}

// WithClock возвращает копию синтезатора с заданными часами.
func (s *Synthesizer) WithClock(now func() time.Time) *Synthesizer {
	return &Synthesizer{now: now}
}

// Tenure описывает оценку стажа аккаунта.
type Tenure struct {
	JoinDate       time.Time
	DaysOnPlatform int
	GhostModeCount int
}

// Tenure оценивает дату регистрации, стаж и число «тихих» заходов.
func (s *Synthesizer) Tenure(accountID int64) Tenure {
	join := EstimateJoinDate(accountID)
	days := int(math.Floor(s.now().Sub(join).Hours() / 24))
	if days < 1 {
		days = 1
	}
	ghost := int(math.Floor(float64(days) * (0.5 + rng(accountID, seedGhostMode))))
	return Tenure{JoinDate: join, DaysOnPlatform: days, GhostModeCount: ghost}
}

// Synthesize детерминированно генерирует профиль без чтения сообщений.
func (s *Synthesizer) Synthesize(accountID int64, premium bool, username string) domain.ActivityProfile {
	tenure := s.Tenure(accountID)

	base, multiplier := volumeBracket(accountID)
	volume := base * multiplier * (0.8 + rng(accountID, seedVolume)*0.4)
	if premium {
		volume *= premiumMultiplier
	}
	if username != "" && len([]rune(username)) < shortUsernameLen {
		volume *= shortUsernameMultiplier
	}
	total := int(math.Floor(volume))

	ratios := pickRatios(rng(accountID, seedContentMix))
	dist := domain.ContentTypeDistribution{
		Text:    share(total, ratios.text),
		Photo:   share(total, ratios.photo),
		Voice:   share(total, ratios.voice),
		Sticker: share(total, ratios.sticker),
		Video:   share(total, ratios.video),
	}

	avgWords := 4 + math.Floor(rng(accountID, seedWords)*7)
	words := int(math.Floor(float64(total) * ratios.text * avgWords))

	ghost := tenure.GhostModeCount
	if limit := total / 4; ghost > limit {
		ghost = limit
	}
	streak := int(math.Floor(5 + rng(accountID, seedStreak)*30))
	videoNotes := int(math.Floor(float64(dist.Video) * (0.2 + rng(accountID, seedVideoNotes)*0.5)))

	peak := int(math.Floor(10 + rng(accountID, seedPeakHour)*12))
	hours := make(map[int]int, 3)
	hours[peak] = share(total, 0.12)
	hours[(peak+23)%24] = share(total, 0.07)
	hours[(peak+1)%24] = share(total, 0.05)

	return domain.ActivityProfile{
		TotalMessages:  total,
		WordsCount:     words,
		DaysOnPlatform: tenure.DaysOnPlatform,
		VideoNoteCount: videoNotes,
		DaysStreak:     streak,
		GhostModeCount: ghost,
		ContentType:    dist,
		ActiveHours:    hours,
		TopContacts:    syntheticContacts(total, username),
		Persona:        domain.ClassifyPersona(dist, premium),
		Origin:         domain.OriginSynthesized,
		SchemaVersion:  domain.ContentSchemaVersion,
	}
}

// EstimateJoinDate возвращает дату первого ориентира, порог которого больше ID.
func EstimateJoinDate(accountID int64) time.Time {
	for _, b := range joinBenchmarks {
		if accountID < b.threshold {
			return b.date
		}
	}
	return joinBenchmarks[len(joinBenchmarks)-1].date
}

func volumeBracket(accountID int64) (float64, float64) {
	for _, b := range volumeBrackets {
		if accountID < b.threshold {
			return b.base, b.multiplier
		}
	}
	last := volumeBrackets[len(volumeBrackets)-1]
	return last.base, last.multiplier
}

func pickRatios(r float64) contentRatios {
	switch {
	case r > 0.8:
		return ratiosMediaLeaning
	case r < 0.2:
		return ratiosVoiceLeaning
	default:
		return ratiosBalanced
	}
}

func syntheticContacts(total int, username string) []domain.ContactStat {
	contacts := []domain.ContactStat{
		{Name: "Saved Messages", Count: share(total, 0.08)},
		{Name: "Telegram", Count: share(total, 0.01) + 1},
	}
	if username != "" {
		contacts = append(contacts, domain.ContactStat{Name: "@" + username, Count: share(total, 0.03)})
	}
	sort.SliceStable(contacts, func(i, j int) bool { return contacts[i].Count > contacts[j].Count })
	return contacts
}

// rng возвращает детерминированную псевдослучайную величину в [0, 1).
func rng(accountID int64, seed int) float64 {
	x := math.Sin(float64(accountID)+float64(seed)) * 10000
	return x - math.Floor(x)
}

func share(total int, ratio float64) int {
	return int(math.Floor(float64(total) * ratio))
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
