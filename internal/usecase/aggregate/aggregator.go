package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tg-engagement/internal/domain"
	"tg-engagement/internal/infra/metrics"
)

// ErrNoConversations возвращается, если ни один диалог не удалось прочитать.
var ErrNoConversations = errors.New("не удалось прочитать ни одного диалога")

// Options задаёт границы выборки.
type Options struct {
	WindowDays                 int
	MaxConversations           int
	MaxMessagesPerConversation int
	Concurrency                int
	TopContacts                int
	Location                   *time.Location
}

// DefaultOptions возвращает значения по умолчанию.
func DefaultOptions() Options {
	return Options{
		WindowDays:                 365,
		MaxConversations:           15,
		MaxMessagesPerConversation: 100,
		Concurrency:                4,
		TopContacts:                15,
		Location:                   time.UTC,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.WindowDays <= 0 {
		o.WindowDays = def.WindowDays
	}
	if o.MaxConversations <= 0 {
		o.MaxConversations = def.MaxConversations
	}
	if o.MaxMessagesPerConversation <= 0 {
		o.MaxMessagesPerConversation = def.MaxMessagesPerConversation
	}
	if o.Concurrency <= 0 {
		o.Concurrency = def.Concurrency
	}
	if o.TopContacts <= 0 {
		o.TopContacts = def.TopContacts
	}
	if o.Location == nil {
		o.Location = def.Location
	}
	return o
}

// Aggregator считает профиль по реальной истории сообщений.
type Aggregator struct {
	opts Options
	now  func() time.Time
	log  zerolog.Logger
}

// NewAggregator создаёт агрегатор.
func NewAggregator(opts Options, log zerolog.Logger) *Aggregator {
	return &Aggregator{opts: opts.withDefaults(), now: time.Now, log: log}
}

// WithClock подменяет часы, используется в тестах.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	clone := *a
	clone.now = now
	return &clone
}

// partial хранит вклад одного диалога. Заполняется только своей горутиной.
type partial struct {
	ok         bool
	total      int
	words      int
	videoNotes int
	content    domain.ContentTypeDistribution
	hours      map[int]int
	days       map[time.Time]struct{}
}

// Aggregate обходит недавние личные диалоги и собирает статистику.
// Ошибка чтения отдельного диалога не прерывает обход.
func (a *Aggregator) Aggregate(ctx context.Context, src domain.MessageSource, premium bool) (domain.ActivityProfile, error) {
	start := time.Now()
	conversations, err := src.ListRecentConversations(ctx, a.opts.MaxConversations)
	metrics.ObserveNetworkRequest("message_source", "list_conversations", "dialogs", start, err)
	if err != nil {
		return domain.ActivityProfile{}, fmt.Errorf("получение диалогов: %w", err)
	}

	direct := make([]domain.Conversation, 0, len(conversations))
	for _, c := range conversations {
		if c.Direct {
			direct = append(direct, c)
		}
		if len(direct) == a.opts.MaxConversations {
			break
		}
	}

	cutoff := a.now().Add(-time.Duration(a.opts.WindowDays) * 24 * time.Hour)
	partials := make([]partial, len(direct))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	for i, conv := range direct {
		g.Go(func() error {
			start := time.Now()
			messages, err := src.ListRecentMessages(gctx, conv.ID, a.opts.MaxMessagesPerConversation)
			metrics.ObserveNetworkRequest("message_source", "list_messages", "history", start, err)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				a.log.Warn().Err(err).Int64("conversation", conv.ID).Msg("aggregate: пропускаем диалог")
				return nil
			}
			partials[i] = a.collect(messages, cutoff)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.ActivityProfile{}, fmt.Errorf("обход диалогов: %w", err)
	}

	profile := domain.ActivityProfile{
		ActiveHours:   make(map[int]int),
		Origin:        domain.OriginAggregated,
		SchemaVersion: domain.ContentSchemaVersion,
	}
	days := make(map[time.Time]struct{})
	contacts := make([]domain.ContactStat, 0, len(direct))
	succeeded := 0
	for i, p := range partials {
		if !p.ok {
			continue
		}
		succeeded++
		profile.TotalMessages += p.total
		profile.WordsCount += p.words
		profile.VideoNoteCount += p.videoNotes
		profile.ContentType.Merge(p.content)
		for hour, n := range p.hours {
			profile.ActiveHours[hour] += n
		}
		for day := range p.days {
			days[day] = struct{}{}
		}
		if p.total > 0 {
			contacts = append(contacts, domain.ContactStat{Name: direct[i].Title, Count: p.total})
		}
	}
	if len(direct) > 0 && succeeded == 0 {
		return domain.ActivityProfile{}, ErrNoConversations
	}

	// при равенстве сохраняется порядок диалогов из источника
	sort.SliceStable(contacts, func(i, j int) bool { return contacts[i].Count > contacts[j].Count })
	if len(contacts) > a.opts.TopContacts {
		contacts = contacts[:a.opts.TopContacts]
	}
	profile.TopContacts = contacts
	profile.DaysStreak = longestStreak(days)
	profile.Persona = domain.ClassifyPersona(profile.ContentType, premium)
	return profile, nil
}

func (a *Aggregator) collect(messages []domain.Message, cutoff time.Time) partial {
	p := partial{ok: true, hours: make(map[int]int), days: make(map[time.Time]struct{})}
	for _, m := range messages {
		if m.Timestamp.Before(cutoff) {
			continue
		}
		p.total++
		ct, videoNote := m.Classify()
		p.content.Add(ct, 1)
		if videoNote {
			p.videoNotes++
		}
		p.words += len(strings.Fields(m.Text))
		local := m.Timestamp.In(a.opts.Location)
		p.hours[local.Hour()]++
		y, mo, d := local.Date()
		p.days[time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)] = struct{}{}
	}
	return p
}

func longestStreak(days map[time.Time]struct{}) int {
	if len(days) == 0 {
		return 0
	}
	sorted := make([]time.Time, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	best, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Sub(sorted[i-1]) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}
