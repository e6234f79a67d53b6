package domain

import (
	"context"
	"time"

	"circleburo/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// LeadStore таблица leads. Уникальности (meeting_date, meeting_time) на уровне
// хранилища нет: двойная запись на слот отсекается только проверками перед вставкой.
type LeadStore interface {
	CreateLead(ctx context.Context, lead *models.Lead) error
	GetLead(ctx context.Context, id int64) (*models.Lead, error)
	GetLeadStatus(ctx context.Context, id int64) (models.Status, error)
	ListLeads(ctx context.Context) ([]*models.Lead, error)
	GetBookedSlots(ctx context.Context, date time.Time) ([]models.BookedSlot, error)
	CountActiveBookings(ctx context.Context, date time.Time, meetingTime string) (int, error)
	// UpdateLeadStatus условная запись: database.ErrStatusChanged, если статус уже не from.
	UpdateLeadStatus(ctx context.Context, id int64, from, to models.Status, updatedAt time.Time) error
	UpdateLeadNotes(ctx context.Context, id int64, notes string, updatedAt time.Time) error
	DeleteLead(ctx context.Context, id int64) error
	PingContext(ctx context.Context) error
	Close() error
}

// StatusReader то немногое, что нужно поллеру статуса.
type StatusReader interface {
	GetLeadStatus(ctx context.Context, id int64) (models.Status, error)
}

// StateRepository хранит состояния форм записи по id сессии.
type StateRepository interface {
	GetState(ctx context.Context, sessionID string) (*models.FormState, error)
	SetState(ctx context.Context, state *models.FormState) error
	ClearState(ctx context.Context, sessionID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// SheetsWriter зеркалирует таблицу заявок во внешнюю таблицу.
type SheetsWriter interface {
	ReplaceLeads(ctx context.Context, leads []*models.Lead) error
}
