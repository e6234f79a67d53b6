package models

import "time"

// FormStep шаг формы записи.
type FormStep string

const (
	// StepSelect выбор даты/времени и контакты, на экране вместе
	StepSelect FormStep = "select"
	// StepConfirmation итоговый экран с живым статусом
	StepConfirmation FormStep = "confirmation"
)

// Ключи ошибок полей формы.
const (
	FieldName  = "name"
	FieldPhone = "phone"
	FieldDate  = "date"
	FieldSlot  = "slot"
)

// FormState сериализуемое состояние формы одного посетителя.
type FormState struct {
	SessionID    string            `json:"session_id"`
	Step         FormStep          `json:"step"`
	SelectedDate string            `json:"selected_date,omitempty"`
	SelectedTime string            `json:"selected_time,omitempty"`
	Name         string            `json:"name,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	BookedSlots  []BookedSlot      `json:"booked_slots"`
	BookingID    int64             `json:"booking_id,omitempty"`
	Status       Status            `json:"status,omitempty"`
	FieldErrors  map[string]string `json:"field_errors,omitempty"`
	Error        string            `json:"error,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewFormState пустая форма на первом шаге.
func NewFormState(sessionID string) *FormState {
	return &FormState{
		SessionID:   sessionID,
		Step:        StepSelect,
		BookedSlots: []BookedSlot{},
	}
}

func (s *FormState) SetFieldError(field, msg string) {
	if s.FieldErrors == nil {
		s.FieldErrors = make(map[string]string)
	}
	s.FieldErrors[field] = msg
}

func (s *FormState) ClearErrors() {
	s.FieldErrors = nil
	s.Error = ""
}

// Date выбранная дата; ok=false, если дата не выбрана.
func (s *FormState) Date() (time.Time, bool) {
	if s.SelectedDate == "" {
		return time.Time{}, false
	}
	d, err := ParseDate(s.SelectedDate)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Clone глубокая копия: слайс слотов и карта ошибок не разделяются.
func (s *FormState) Clone() *FormState {
	c := *s
	c.BookedSlots = append([]BookedSlot(nil), s.BookedSlots...)
	if c.BookedSlots == nil {
		c.BookedSlots = []BookedSlot{}
	}
	if s.FieldErrors != nil {
		c.FieldErrors = make(map[string]string, len(s.FieldErrors))
		for k, v := range s.FieldErrors {
			c.FieldErrors[k] = v
		}
	}
	return &c
}
