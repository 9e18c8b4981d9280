package heuristic

import (
	"encoding/json"
	"testing"
	"time"

	"tg-engagement/internal/domain"
)

var fixedNow = time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)

func newTestSynthesizer() *Synthesizer {
	return NewSynthesizer().WithClock(func() time.Time { return fixedNow })
}

func TestSynthesizeDeterministic(t *testing.T) {
	s := newTestSynthesizer()
	ids := []int64{1, 777, 50_000_000, 123_456_789, 987_654_321, 5_123_456_789, 7_500_000_000}
	for _, id := range ids {
		for _, premium := range []bool{false, true} {
			first, err := json.Marshal(s.Synthesize(id, premium, "durov"))
			if err != nil {
				t.Fatalf("не ожидали ошибку: %v", err)
			}
			second, err := json.Marshal(s.Synthesize(id, premium, "durov"))
			if err != nil {
				t.Fatalf("не ожидали ошибку: %v", err)
			}
			if string(first) != string(second) {
				t.Fatalf("id=%d: профили различаются\n%s\n%s", id, first, second)
			}
		}
	}
}

func TestSynthesizeScenarioA(t *testing.T) {
	s := newTestSynthesizer()
	p := s.Synthesize(50_000_000, false, "")
	if p.Origin != domain.OriginSynthesized {
		t.Fatalf("ожидали origin synthesized, получили %s", p.Origin)
	}
	if p.DaysOnPlatform <= 3000 {
		t.Fatalf("ожидали больше 3000 дней, получили %d", p.DaysOnPlatform)
	}
	if !p.Persona.Valid() {
		t.Fatalf("персона %q вне набора", p.Persona)
	}
	// самая старшая корзина объёма: 12000 * 3.0 * [0.8, 1.2)
	if p.TotalMessages < 28800 || p.TotalMessages >= 43200 {
		t.Fatalf("объём вне ожидаемой корзины: %d", p.TotalMessages)
	}
	if got := EstimateJoinDate(50_000_000); !got.Equal(date(2015, time.February, 1)) {
		t.Fatalf("неожиданная дата регистрации: %s", got)
	}
}

func TestSynthesizeScenarioBPremium(t *testing.T) {
	s := newTestSynthesizer()
	regular := s.Synthesize(50_000_000, false, "")
	premium := s.Synthesize(50_000_000, true, "")
	if premium.TotalMessages <= regular.TotalMessages {
		t.Fatalf("премиум должен давать больше сообщений: %d <= %d", premium.TotalMessages, regular.TotalMessages)
	}
	if premium.DaysOnPlatform != regular.DaysOnPlatform || premium.DaysStreak != regular.DaysStreak {
		t.Fatalf("премиум не должен менять стаж и серию")
	}
	if !premium.Persona.Valid() {
		t.Fatalf("персона %q вне набора", premium.Persona)
	}
}

func TestSynthesizeShortUsernameBoost(t *testing.T) {
	s := newTestSynthesizer()
	plain := s.Synthesize(900_000_000, false, "")
	short := s.Synthesize(900_000_000, false, "abc")
	long := s.Synthesize(900_000_000, false, "averylongname")
	if short.TotalMessages <= plain.TotalMessages {
		t.Fatalf("короткий ник должен увеличивать объём")
	}
	if long.TotalMessages != plain.TotalMessages {
		t.Fatalf("длинный ник не должен менять объём")
	}
}

func TestSynthesizeInvariants(t *testing.T) {
	s := newTestSynthesizer()
	for id := int64(1); id < 8_000_000_000; id += 97_345_121 {
		p := s.Synthesize(id, id%2 == 0, "")
		ct := p.ContentType
		if ct.Text < 0 || ct.Photo < 0 || ct.Voice < 0 || ct.Video < 0 || ct.Sticker < 0 {
			t.Fatalf("id=%d: отрицательные счётчики %+v", id, ct)
		}
		if sum := ct.Text + ct.Photo + ct.Voice + ct.Video + ct.Sticker; sum > p.TotalMessages {
			t.Fatalf("id=%d: сумма категорий %d больше total %d", id, sum, p.TotalMessages)
		}
		if p.GhostModeCount > p.TotalMessages/4 {
			t.Fatalf("id=%d: ghost mode %d слишком большой", id, p.GhostModeCount)
		}
		if p.DaysStreak < 5 || p.DaysStreak >= 35 {
			t.Fatalf("id=%d: серия %d вне диапазона", id, p.DaysStreak)
		}
		if p.VideoNoteCount > ct.Video {
			t.Fatalf("id=%d: кружков больше, чем видео", id)
		}
		peak, ok := p.PeakHour()
		if !ok || peak < 10 || peak > 21 {
			t.Fatalf("id=%d: пиковый час %d вне диапазона", id, peak)
		}
		for i := 1; i < len(p.TopContacts); i++ {
			if p.TopContacts[i].Count > p.TopContacts[i-1].Count {
				t.Fatalf("id=%d: контакты не отсортированы", id)
			}
		}
		if p.Persona != domain.ClassifyPersona(ct, id%2 == 0) {
			t.Fatalf("id=%d: персона не совпадает с классификатором", id)
		}
	}
}

func TestEstimateJoinDateFallsBackToLatest(t *testing.T) {
	got := EstimateJoinDate(9_000_000_000)
	if !got.Equal(date(2024, time.January, 1)) {
		t.Fatalf("ожидали последний ориентир, получили %s", got)
	}
}

func TestRngRange(t *testing.T) {
	for id := int64(-1000); id < 1000; id += 7 {
		for seed := 0; seed <= 10; seed++ {
			v := rng(id, seed)
			if v < 0 || v >= 1 {
				t.Fatalf("rng(%d, %d) = %f вне [0,1)", id, seed, v)
			}
		}
	}
}

func TestTenureMinimumOneDay(t *testing.T) {
	s := NewSynthesizer().WithClock(func() time.Time { return date(2020, time.January, 1) })
	tenure := s.Tenure(7_500_000_000)
	if tenure.DaysOnPlatform != 1 {
		t.Fatalf("ожидали минимум 1 день, получили %d", tenure.DaysOnPlatform)
	}
}
