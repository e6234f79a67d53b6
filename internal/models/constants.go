package models

import "time"

const (
	// DateLayout ключ даты встречи (meeting_date)
	DateLayout = "2006-01-02"

	// SlotLayout формат слота времени (meeting_time)
	SlotLayout = "15:04"

	// DisplayDateTimeLayout формат дат в экспорте и уведомлениях
	DisplayDateTimeLayout = "02.01.2006 15:04"
	DisplayDateLayout     = "02.01.2006"
)

// TimeSlots сетка слотов консультаций, только целые часы.
var TimeSlots = []string{
	"09:00", "10:00", "11:00", "12:00", "13:00",
	"14:00", "15:00", "16:00", "17:00", "18:00",
}

const (
	// DefaultBookingWindowWeekdays размер окна записи в рабочих днях
	DefaultBookingWindowWeekdays = 30

	// DefaultStatusPollInterval период опроса статуса после отправки формы
	DefaultStatusPollInterval = 30 * time.Second

	// DefaultAdminRefreshInterval период обновления списка заявок в админке
	DefaultAdminRefreshInterval = 30 * time.Second

	// DefaultSessionTTL время жизни сессии формы в хранилище
	DefaultSessionTTL = 24 * time.Hour

	// DefaultSubmitRateLimit попыток отправки формы за окно
	DefaultSubmitRateLimit  = 5
	DefaultSubmitRateWindow = time.Minute

	// DefaultTimezone часовой пояс агентства
	DefaultTimezone = "Asia/Almaty"
)

// IsGridSlot сообщает, входит ли время в сетку слотов.
func IsGridSlot(slot string) bool {
	for _, s := range TimeSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// TruncateSlotTime обрезает секунды: "10:00:00" -> "10:00".
func TruncateSlotTime(raw string) string {
	if len(raw) > 5 && raw[5] == ':' {
		return raw[:5]
	}
	return raw
}

// SlotMinutes возвращает минуты от начала суток для слота "HH:MM".
func SlotMinutes(slot string) (int, bool) {
	t, err := time.Parse(SlotLayout, TruncateSlotTime(slot))
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// DateOnly переводит календарный день t в полночь UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate разбирает ключ "YYYY-MM-DD" в полночь UTC.
func ParseDate(key string) (time.Time, error) {
	return time.Parse(DateLayout, key)
}
