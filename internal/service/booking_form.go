package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"circleburo/internal/domain"
	"circleburo/internal/events"
	"circleburo/internal/metrics"
	"circleburo/internal/models"

	"github.com/rs/zerolog"
)

// BookingService переходы формы записи. Состояние формы хранится снаружи
// (FormSessions), сервис только меняет переданный *models.FormState.
type BookingService struct {
	store        domain.LeadStore
	availability *AvailabilityService
	eventBus     domain.EventPublisher
	logger       *zerolog.Logger
}

func NewBookingService(
	store domain.LeadStore,
	availability *AvailabilityService,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *BookingService {
	return &BookingService{
		store:        store,
		availability: availability,
		eventBus:     eventBus,
		logger:       logger,
	}
}

func (s *BookingService) Availability() *AvailabilityService {
	return s.availability
}

func checkEditable(st *models.FormState) error {
	if st.Step == models.StepConfirmation {
		return ErrFormCompleted
	}
	return nil
}

// SelectDate выбирает день, сбрасывает время и подгружает занятые слоты.
// Ошибка загрузки не отменяет выбор: в форме остаётся баннер, день считается свободным.
func (s *BookingService) SelectDate(ctx context.Context, st *models.FormState, date time.Time) error {
	if err := checkEditable(st); err != nil {
		return err
	}

	st.ClearErrors()
	if !s.availability.IsDateAvailable(date) {
		st.SetFieldError(models.FieldDate, msgDateUnavailable)
		return ErrDateUnavailable
	}

	st.SelectedDate = models.DateOnly(date).Format(models.DateLayout)
	st.SelectedTime = ""

	slots, err := s.availability.LoadBookedSlots(ctx, date)
	st.BookedSlots = slots
	if err != nil {
		st.Error = msgSlotsLoadFailed
	}
	st.UpdatedAt = time.Now()
	return nil
}

// SelectTime запоминает время; проверяется только принадлежность сетке.
func (s *BookingService) SelectTime(st *models.FormState, slot string) error {
	if err := checkEditable(st); err != nil {
		return err
	}

	slot = models.TruncateSlotTime(strings.TrimSpace(slot))
	if !models.IsGridSlot(slot) {
		verr := &ValidationError{}
		verr.add(models.FieldSlot, msgSlotNotInGrid)
		st.SetFieldError(models.FieldSlot, msgSlotNotInGrid)
		return verr
	}

	delete(st.FieldErrors, models.FieldSlot)
	st.SelectedTime = slot
	st.UpdatedAt = time.Now()
	return nil
}

func (s *BookingService) SetName(st *models.FormState, raw string) error {
	if err := checkEditable(st); err != nil {
		return err
	}
	st.Name = CapitalizeName(raw)
	delete(st.FieldErrors, models.FieldName)
	st.UpdatedAt = time.Now()
	return nil
}

// SetPhone хранит номер в маске +7 XXX XXX XX XX.
func (s *BookingService) SetPhone(st *models.FormState, raw string) error {
	if err := checkEditable(st); err != nil {
		return err
	}
	st.Phone = FormatPhone(raw)
	delete(st.FieldErrors, models.FieldPhone)
	st.UpdatedAt = time.Now()
	return nil
}

func validateForm(st *models.FormState) *ValidationError {
	verr := &ValidationError{}
	if strings.TrimSpace(st.Name) == "" {
		verr.add(models.FieldName, msgNameRequired)
	}
	if !ValidPhone(st.Phone) {
		verr.add(models.FieldPhone, msgPhoneInvalid)
	}
	if _, ok := st.Date(); !ok || st.SelectedTime == "" {
		verr.add(models.FieldSlot, msgSlotRequired)
	}
	if verr.empty() {
		return nil
	}
	return verr
}

// Submit проверяет форму, дважды проверяет слот и создаёт заявку в статусе pending.
// Повторов нет: при занятом слоте посетитель выбирает другой.
func (s *BookingService) Submit(ctx context.Context, st *models.FormState) (*models.Lead, error) {
	if err := checkEditable(st); err != nil {
		return nil, err
	}

	st.ClearErrors()
	if verr := validateForm(st); verr != nil {
		for field, msg := range verr.Fields {
			st.SetFieldError(field, msg)
		}
		return nil, verr
	}
	date, _ := st.Date()

	// свежие слоты, не те что лежат в форме
	slots, err := s.store.GetBookedSlots(ctx, date)
	if err != nil {
		return nil, s.submissionFailed(st, "load slots", err)
	}
	for i := range slots {
		slots[i].Time = models.TruncateSlotTime(slots[i].Time)
	}
	st.BookedSlots = slots

	if !s.availability.IsSlotAvailable(st.SelectedTime, slots, date) {
		metrics.IncSlotConflict("local")
		st.Error = msgSlotUnavailable
		return nil, ErrSlotUnavailable
	}
	if !s.availability.CheckSlotAvailabilityFromServer(ctx, st.SelectedTime, date) {
		metrics.IncSlotConflict("server")
		st.Error = msgSlotUnavailable
		return nil, ErrSlotUnavailable
	}

	// Между проверкой и вставкой слот может занять другая сессия: уникального
	// ограничения в таблице нет.
	lead := &models.Lead{
		Name:        strings.TrimSpace(st.Name),
		Phone:       PhoneDigits(st.Phone),
		MeetingDate: date,
		MeetingTime: st.SelectedTime,
		Status:      models.StatusPending,
	}
	if err := s.store.CreateLead(ctx, lead); err != nil {
		return nil, s.submissionFailed(st, "create lead", err)
	}

	st.BookingID = lead.ID
	st.Status = lead.Status
	st.BookedSlots = append(st.BookedSlots, models.BookedSlot{
		Time:   lead.MeetingTime,
		Status: lead.Status,
		ID:     lead.ID,
		Name:   lead.Name,
	})
	if fresh, err := s.availability.LoadBookedSlots(ctx, date); err == nil {
		st.BookedSlots = fresh
	}
	st.Step = models.StepConfirmation
	st.UpdatedAt = time.Now()

	metrics.IncLeadCreated()
	s.logger.Info().
		Int64("lead_id", lead.ID).
		Str("date", lead.DateKey()).
		Str("time", lead.MeetingTime).
		Msg("booking submitted")

	if s.eventBus != nil {
		if err := s.eventBus.PublishJSON(events.EventLeadCreated, events.NewLeadEventPayload(lead, "visitor")); err != nil {
			s.logger.Error().Err(err).Int64("lead_id", lead.ID).Msg("publish event error")
		}
	}

	return lead, nil
}

func (s *BookingService) submissionFailed(st *models.FormState, op string, err error) error {
	s.logger.Error().Err(err).Str("op", op).Str("session_id", st.SessionID).Msg("booking submission failed")
	st.Error = msgSubmissionFailed
	return fmt.Errorf("%w: %s: %v", ErrSubmissionFailed, op, err)
}

// Reset возвращает форму к выбору даты, в том числе после подтверждения.
func (s *BookingService) Reset(st *models.FormState) {
	fresh := models.NewFormState(st.SessionID)
	fresh.UpdatedAt = time.Now()
	*st = *fresh
}

// RefreshStatus перечитывает статус отправленной заявки.
func (s *BookingService) RefreshStatus(ctx context.Context, st *models.FormState) (bool, error) {
	if st.Step != models.StepConfirmation || st.BookingID == 0 {
		return false, nil
	}

	status, err := s.store.GetLeadStatus(ctx, st.BookingID)
	if err != nil {
		return false, err
	}
	if status == st.Status {
		return false, nil
	}
	st.Status = status
	st.UpdatedAt = time.Now()
	return true, nil
}
