package models

import (
	"fmt"
	"time"
)

// Status статус заявки. Переходы разрешены только по таблице transitions.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusPending: true, StatusCancelled: true},
	StatusCancelled: {StatusPending: true},
}

var statusLabels = map[Status]string{
	StatusPending:   "Ожидает",
	StatusConfirmed: "Подтверждено",
	StatusCancelled: "Отменено",
}

// AllStatuses в порядке отображения.
var AllStatuses = []Status{StatusPending, StatusConfirmed, StatusCancelled}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if _, ok := transitions[s]; !ok {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// IsActive: заявка занимает слот.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) CanTransitionTo(next Status) bool {
	return transitions[s][next]
}

// Label русская подпись статуса для экспорта и уведомлений.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Lead заявка с сайта, она же запись на консультацию.
type Lead struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	MeetingDate time.Time `json:"meeting_date"`
	MeetingTime string    `json:"meeting_time"`
	Status      Status    `json:"status"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DateKey ключ даты встречи "YYYY-MM-DD".
func (l *Lead) DateKey() string {
	return l.MeetingDate.Format(DateLayout)
}

// BookedSlot занятый слот выбранного дня.
type BookedSlot struct {
	Time   string `json:"time"`
	Status Status `json:"status"`
	ID     int64  `json:"id"`
	Name   string `json:"name"`
}
