package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"circleburo/internal/domain"
	"circleburo/internal/events"
	"circleburo/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const deadLetterKey = "sheets:deadletter"

// LeadLister источник полного списка заявок.
type LeadLister interface {
	ListLeads(ctx context.Context) ([]*models.Lead, error)
}

// deadLetter запись о синхронизации, исчерпавшей попытки.
type deadLetter struct {
	Reason    string    `json:"reason"`
	Error     string    `json:"error"`
	Attempts  int       `json:"attempts"`
	FailedAt  time.Time `json:"failed_at"`
	LeadCount int       `json:"lead_count"`
}

// SheetsWorker зеркалирует таблицу заявок в Google Sheets после каждого изменения.
// События, пришедшие во время синхронизации, склеиваются в один следующий проход.
type SheetsWorker struct {
	store       LeadLister
	sheets      domain.SheetsWriter
	redis       *redis.Client
	retryPolicy RetryPolicy
	pending     chan string
	sleep       func(context.Context, time.Duration) error
	logger      *zerolog.Logger
}

func NewSheetsWorker(store LeadLister, sheets domain.SheetsWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SheetsWorker {
	return &SheetsWorker{
		store:       store,
		sheets:      sheets,
		redis:       redisClient,
		retryPolicy: retry.withDefaults(),
		pending:     make(chan string, 1),
		sleep:       sleepCtx,
		logger:      logger,
	}
}

// Attach подписывает воркер на все изменения заявок.
func (w *SheetsWorker) Attach(bus *events.EventBus) {
	bus.Subscribe(w.Trigger, events.AllLeadEvents...)
}

// Trigger помечает таблицу устаревшей, не блокируется.
func (w *SheetsWorker) Trigger(event *events.Event) error {
	select {
	case w.pending <- event.Type:
	default:
	}
	return nil
}

// Start первая синхронизация сразу, дальше по событиям до отмены ctx.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("sheets worker started")
	defer w.logger.Info().Msg("sheets worker stopped")

	_ = w.Sync(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-w.pending:
			_ = w.Sync(ctx, reason)
		}
	}
}

// Sync перечитывает заявки и перезаписывает лист, с повторами по политике.
func (w *SheetsWorker) Sync(ctx context.Context, reason string) error {
	var count int
	attempts, err := w.retryPolicy.Do(ctx, w.sleep, func(ctx context.Context) error {
		leads, err := w.store.ListLeads(ctx)
		if err != nil {
			return fmt.Errorf("list leads: %w", err)
		}
		count = len(leads)
		return w.sheets.ReplaceLeads(ctx, leads)
	})
	if err != nil {
		w.logger.Error().Err(err).Str("reason", reason).Int("attempts", attempts).Msg("sheets sync failed")
		w.pushDeadLetter(ctx, deadLetter{
			Reason:    reason,
			Error:     err.Error(),
			Attempts:  attempts,
			FailedAt:  time.Now(),
			LeadCount: count,
		})
		return err
	}

	w.logger.Debug().Str("reason", reason).Int("leads", count).Int("attempts", attempts).Msg("sheets synced")
	return nil
}

func (w *SheetsWorker) pushDeadLetter(ctx context.Context, record deadLetter) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(record)
	if err != nil {
		w.logger.Error().Err(err).Msg("encode sheets deadletter")
		return
	}
	// ctx может быть уже отменён
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.redis.LPush(pushCtx, deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Msg("sheets deadletter push failed")
	}
}
