package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"circleburo/internal/models"

	"github.com/jinzhu/now"
)

// DateBucket фильтр по дате встречи относительно "сейчас".
type DateBucket string

const (
	BucketAll      DateBucket = "all"
	BucketToday    DateBucket = "today"
	BucketTomorrow DateBucket = "tomorrow"
	BucketWeek     DateBucket = "week"
	BucketPast     DateBucket = "past"
)

func ParseDateBucket(raw string) (DateBucket, error) {
	switch b := DateBucket(strings.ToLower(raw)); b {
	case "":
		return BucketAll, nil
	case BucketAll, BucketToday, BucketTomorrow, BucketWeek, BucketPast:
		return b, nil
	}
	return "", fmt.Errorf("unknown date filter %q", raw)
}

// LeadFilter фильтр таблицы заявок. Пустой Status значит "все".
type LeadFilter struct {
	Search string
	Status models.Status
	Date   DateBucket
}

// ParseLeadFilter разбирает параметры запроса; status "all" или пустой без фильтра.
func ParseLeadFilter(search, status, date string) (LeadFilter, error) {
	f := LeadFilter{Search: strings.TrimSpace(search)}
	if status != "" && status != "all" {
		s, err := models.ParseStatus(status)
		if err != nil {
			return f, err
		}
		f.Status = s
	}
	bucket, err := ParseDateBucket(date)
	if err != nil {
		return f, err
	}
	f.Date = bucket
	return f, nil
}

// dayBounds начало сегодняшнего дня в поясе агентства.
type dayBounds struct {
	today    time.Time
	tomorrow time.Time
	weekEnd  time.Time
}

func newDayBounds(at time.Time) dayBounds {
	start := now.With(at).BeginningOfDay()
	return dayBounds{
		today:    start,
		tomorrow: now.With(start.AddDate(0, 0, 1)).BeginningOfDay(),
		weekEnd:  now.With(start.AddDate(0, 0, 7)).BeginningOfDay(),
	}
}

func (b dayBounds) match(bucket DateBucket, meeting time.Time) bool {
	switch bucket {
	case BucketToday:
		return !meeting.Before(b.today) && meeting.Before(b.tomorrow)
	case BucketTomorrow:
		return !meeting.Before(b.tomorrow) && meeting.Before(b.tomorrow.AddDate(0, 0, 1))
	case BucketWeek:
		return !meeting.Before(b.today) && meeting.Before(b.weekEnd)
	case BucketPast:
		return meeting.Before(b.today)
	}
	return true
}

// Apply фильтрует заявки; at момент "сейчас" в поясе агентства.
func (f LeadFilter) Apply(leads []*models.Lead, at time.Time) []*models.Lead {
	search := strings.ToLower(f.Search)
	// телефон хранится цифрами, поиск по нему в любом написании: "+7 701", "701-12"
	phoneSearch := PhoneDigits(search)
	bounds := newDayBounds(at)
	loc := at.Location()

	out := make([]*models.Lead, 0, len(leads))
	for _, l := range leads {
		if search != "" &&
			!strings.Contains(strings.ToLower(l.Name), search) &&
			(phoneSearch == "" || !strings.Contains(l.Phone, phoneSearch)) {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.Date != "" && f.Date != BucketAll {
			meeting := time.Date(l.MeetingDate.Year(), l.MeetingDate.Month(), l.MeetingDate.Day(), 0, 0, 0, 0, loc)
			if !bounds.match(f.Date, meeting) {
				continue
			}
		}
		out = append(out, l)
	}
	return out
}

// SortKey колонка сортировки таблицы заявок.
type SortKey string

const (
	SortByName      SortKey = "name"
	SortByPhone     SortKey = "phone"
	SortByDate      SortKey = "date"
	SortByStatus    SortKey = "status"
	SortByCreatedAt SortKey = "created_at"
)

func ParseSortKey(raw string) (SortKey, error) {
	switch k := SortKey(raw); k {
	case SortByName, SortByPhone, SortByDate, SortByStatus, SortByCreatedAt:
		return k, nil
	}
	return "", fmt.Errorf("unknown sort key %q", raw)
}

// SortState одна активная колонка и направление.
type SortState struct {
	Key  SortKey `json:"key"`
	Desc bool    `json:"desc"`
}

// DefaultSort свежие заявки сверху.
func DefaultSort() SortState {
	return SortState{Key: SortByCreatedAt, Desc: true}
}

// Toggle клик по заголовку: та же колонка меняет направление, новая сортируется по возрастанию.
func (s SortState) Toggle(key SortKey) SortState {
	if key == s.Key {
		return SortState{Key: key, Desc: !s.Desc}
	}
	return SortState{Key: key}
}

// Apply сортирует копию списка, равные элементы сохраняют порядок.
func (s SortState) Apply(leads []*models.Lead) []*models.Lead {
	out := append([]*models.Lead(nil), leads...)
	less := s.less()
	sort.SliceStable(out, func(i, j int) bool {
		if s.Desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func (s SortState) less() func(a, b *models.Lead) bool {
	switch s.Key {
	case SortByName:
		return func(a, b *models.Lead) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case SortByPhone:
		return func(a, b *models.Lead) bool { return a.Phone < b.Phone }
	case SortByDate:
		return func(a, b *models.Lead) bool {
			if !a.MeetingDate.Equal(b.MeetingDate) {
				return a.MeetingDate.Before(b.MeetingDate)
			}
			return a.MeetingTime < b.MeetingTime
		}
	case SortByStatus:
		return func(a, b *models.Lead) bool { return a.Status < b.Status }
	}
	return func(a, b *models.Lead) bool { return a.CreatedAt.Before(b.CreatedAt) }
}
