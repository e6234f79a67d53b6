package service

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrSlotUnavailable      = errors.New("slot unavailable")
	ErrSubmissionFailed     = errors.New("submission failed")
	ErrDateUnavailable      = errors.New("date unavailable")
	ErrFormCompleted        = errors.New("booking form already submitted")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrConfirmationRequired = errors.New("delete requires confirmation")
	ErrSessionNotFound      = errors.New("booking session not found")
	ErrRateLimited          = errors.New("too many submissions")
)

// ValidationError ошибки полей формы, ключи models.Field*.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

func (e *ValidationError) empty() bool {
	return len(e.Fields) == 0
}

// Тексты для посетителя.
const (
	msgNameRequired     = "Введите имя"
	msgPhoneInvalid     = "Введите номер в формате +7 XXX XXX XX XX"
	msgSlotRequired     = "Выберите дату и время встречи"
	msgSlotNotInGrid    = "Такого времени нет в расписании"
	msgDateUnavailable  = "На эту дату записаться нельзя"
	msgSlotsLoadFailed  = "Не удалось загрузить занятые слоты, попробуйте позже"
	msgSlotUnavailable  = "Это время уже занято, выберите другое"
	msgSubmissionFailed = "Не удалось отправить заявку, попробуйте ещё раз"
)
