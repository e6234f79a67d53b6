package service

import (
	"context"
	"time"

	"circleburo/internal/models"

	"github.com/rs/zerolog"
)

// SlotReader часть хранилища, нужная для проверки слотов.
type SlotReader interface {
	GetBookedSlots(ctx context.Context, date time.Time) ([]models.BookedSlot, error)
	CountActiveBookings(ctx context.Context, date time.Time, meetingTime string) (int, error)
}

// AvailabilityService решает, какие дни и слоты можно предложить посетителю.
// "Сегодня" и прошедшие слоты считаются в часовом поясе агентства.
type AvailabilityService struct {
	store          SlotReader
	loc            *time.Location
	windowWeekdays int
	now            func() time.Time
	logger         *zerolog.Logger
}

func NewAvailabilityService(store SlotReader, loc *time.Location, windowWeekdays int, logger *zerolog.Logger) *AvailabilityService {
	if loc == nil {
		loc = time.UTC
	}
	if windowWeekdays <= 0 {
		windowWeekdays = models.DefaultBookingWindowWeekdays
	}
	return &AvailabilityService{
		store:          store,
		loc:            loc,
		windowWeekdays: windowWeekdays,
		now:            time.Now,
		logger:         logger,
	}
}

// SetClock подменяет часы, для тестов.
func (s *AvailabilityService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *AvailabilityService) Location() *time.Location {
	return s.loc
}

// Now текущее время в поясе агентства.
func (s *AvailabilityService) Now() time.Time {
	return s.now().In(s.loc)
}

// Today сегодняшняя дата агентства как полночь UTC.
func (s *AvailabilityService) Today() time.Time {
	return models.DateOnly(s.Now())
}

// LoadBookedSlots активные записи на день. При ошибке возвращает пустой список
// вместе с ошибкой: вызывающий показывает баннер и считает день свободным.
func (s *AvailabilityService) LoadBookedSlots(ctx context.Context, date time.Time) ([]models.BookedSlot, error) {
	day := models.DateOnly(date)
	slots, err := s.store.GetBookedSlots(ctx, day)
	if err != nil {
		s.logger.Warn().Err(err).Str("date", day.Format(models.DateLayout)).Msg("load booked slots failed")
		return []models.BookedSlot{}, err
	}
	for i := range slots {
		slots[i].Time = models.TruncateSlotTime(slots[i].Time)
	}
	return slots, nil
}

// IsSlotAvailable чистая проверка по уже загруженному списку и часам.
func (s *AvailabilityService) IsSlotAvailable(slot string, booked []models.BookedSlot, date time.Time) bool {
	slot = models.TruncateSlotTime(slot)
	for _, b := range booked {
		if b.Status.IsActive() && models.TruncateSlotTime(b.Time) == slot {
			return false
		}
	}

	day := models.DateOnly(date)
	today := s.Today()
	switch {
	case day.Before(today):
		return false
	case day.Equal(today):
		minutes, ok := models.SlotMinutes(slot)
		if !ok {
			return false
		}
		now := s.Now()
		return minutes > now.Hour()*60+now.Minute()
	}
	return true
}

// CheckSlotAvailabilityFromServer свежий запрос по точной паре дата/время.
// Ошибка запроса означает "занято".
func (s *AvailabilityService) CheckSlotAvailabilityFromServer(ctx context.Context, slot string, date time.Time) bool {
	day := models.DateOnly(date)
	count, err := s.store.CountActiveBookings(ctx, day, slot)
	if err != nil {
		s.logger.Error().Err(err).
			Str("date", day.Format(models.DateLayout)).
			Str("time", slot).
			Msg("server slot check failed, treating slot as taken")
		return false
	}
	return count == 0
}

// AvailableDates рабочие дни окна записи начиная с сегодняшнего.
func (s *AvailabilityService) AvailableDates() []time.Time {
	dates := make([]time.Time, 0, s.windowWeekdays)
	for d := s.Today(); len(dates) < s.windowWeekdays; d = d.AddDate(0, 0, 1) {
		if isWeekday(d) {
			dates = append(dates, d)
		}
	}
	return dates
}

func (s *AvailabilityService) IsDateAvailable(date time.Time) bool {
	day := models.DateOnly(date)
	if day.Before(s.Today()) || !isWeekday(day) {
		return false
	}
	dates := s.AvailableDates()
	return !day.After(dates[len(dates)-1])
}

// AvailableTimes слоты сетки, которые можно выбрать на дату.
func (s *AvailabilityService) AvailableTimes(booked []models.BookedSlot, date time.Time) []string {
	times := make([]string, 0, len(models.TimeSlots))
	for _, slot := range models.TimeSlots {
		if s.IsSlotAvailable(slot, booked, date) {
			times = append(times, slot)
		}
	}
	return times
}

func isWeekday(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}
