package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"circleburo/internal/database"
	"circleburo/internal/domain"
	"circleburo/internal/events"
	"circleburo/internal/metrics"
	"circleburo/internal/models"

	"github.com/rs/zerolog"
)

const msgLeadsLoadFailed = "Не удалось обновить список заявок, показаны последние загруженные данные"

// LeadStats счётчики для шапки админки.
type LeadStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Cancelled int `json:"cancelled"`
}

// LeadManager таблица заявок для сотрудников: кэш списка, фильтры, изменения статуса,
// заметки и удаление. Для заметок последняя запись побеждает; статус пишется
// условно от прочитанного из хранилища значения.
type LeadManager struct {
	store    domain.LeadStore
	eventBus domain.EventPublisher
	loc      *time.Location
	now      func() time.Time
	logger   *zerolog.Logger

	// writes упорядочивает загрузку списка и изменения, чтобы Load не затёр свежую правку
	writes sync.Mutex

	mu          sync.RWMutex
	leads       []*models.Lead
	banner      string
	loadedAt    time.Time
	savingNotes map[int64]bool
}

func NewLeadManager(store domain.LeadStore, eventBus domain.EventPublisher, loc *time.Location, logger *zerolog.Logger) *LeadManager {
	if loc == nil {
		loc = time.UTC
	}
	return &LeadManager{
		store:       store,
		eventBus:    eventBus,
		loc:         loc,
		now:         time.Now,
		logger:      logger,
		leads:       []*models.Lead{},
		savingNotes: make(map[int64]bool),
	}
}

// SetClock подменяет часы, для тестов.
func (m *LeadManager) SetClock(now func() time.Time) {
	m.now = now
}

// Load перечитывает все заявки. При ошибке старый список остаётся, выставляется баннер.
func (m *LeadManager) Load(ctx context.Context) error {
	m.writes.Lock()
	defer m.writes.Unlock()

	leads, err := m.store.ListLeads(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.banner = msgLeadsLoadFailed
		m.logger.Error().Err(err).Msg("failed to load leads")
		return fmt.Errorf("load leads: %w", err)
	}
	m.leads = leads
	m.banner = ""
	m.loadedAt = m.now()
	return nil
}

// AutoRefresh перезагружает список с периодом interval до отмены ctx.
func (m *LeadManager) AutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = models.DefaultAdminRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = m.Load(ctx)
		}
	}
}

// Banner текст ошибки последней загрузки, пусто если всё хорошо.
func (m *LeadManager) Banner() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.banner
}

func (m *LeadManager) LoadedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadedAt
}

// Leads снимок кэша в порядке загрузки (created_at desc).
func (m *LeadManager) Leads() []*models.Lead {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*models.Lead(nil), m.leads...)
}

// View отфильтрованный и отсортированный список; "сейчас" берётся в момент вызова.
func (m *LeadManager) View(filter LeadFilter, sortState SortState) []*models.Lead {
	filtered := filter.Apply(m.Leads(), m.now().In(m.loc))
	return sortState.Apply(filtered)
}

func (m *LeadManager) Stats() LeadStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := LeadStats{Total: len(m.leads)}
	for _, l := range m.leads {
		switch l.Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusConfirmed:
			stats.Confirmed++
		case models.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// find ищет заявку в кэше, иначе в хранилище.
func (m *LeadManager) find(ctx context.Context, id int64) (*models.Lead, error) {
	m.mu.RLock()
	for _, l := range m.leads {
		if l.ID == id {
			m.mu.RUnlock()
			return l, nil
		}
	}
	m.mu.RUnlock()

	return m.store.GetLead(ctx, id)
}

// replace меняет строку кэша на новую копию; читатели держат старые указатели.
func (m *LeadManager) replace(updated *models.Lead) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.leads {
		if l.ID == updated.ID {
			m.leads[i] = updated
			return
		}
	}
}

// UpdateStatus переводит заявку по таблице переходов и уведомляет подписчиков.
// Переход проверяется по статусу из хранилища, кэш может отставать.
func (m *LeadManager) UpdateStatus(ctx context.Context, id int64, status models.Status, changedBy string) (*models.Lead, error) {
	m.writes.Lock()
	defer m.writes.Unlock()

	current, err := m.store.GetLead(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrLeadNotFound) {
			m.remove(id)
		}
		return nil, err
	}
	m.replace(current)
	if !current.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}

	at := m.now()
	if err := m.store.UpdateLeadStatus(ctx, id, current.Status, status, at); err != nil {
		if errors.Is(err, database.ErrStatusChanged) {
			return nil, fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, current.Status)
		}
		return nil, fmt.Errorf("update lead status: %w", err)
	}

	updated := *current
	updated.Status = status
	updated.UpdatedAt = at
	m.replace(&updated)

	metrics.IncStatusChange(string(current.Status), string(status))
	m.logger.Info().
		Int64("lead_id", id).
		Str("from", string(current.Status)).
		Str("to", string(status)).
		Str("by", changedBy).
		Msg("lead status changed")

	payload := events.NewLeadEventPayload(&updated, changedBy)
	payload.PreviousStatus = current.Status
	m.publish(events.EventLeadStatusChanged, payload)

	return &updated, nil
}

// SaveNotes пишет только заметки и updated_at, статус не трогает.
func (m *LeadManager) SaveNotes(ctx context.Context, id int64, notes, changedBy string) (*models.Lead, error) {
	m.writes.Lock()
	defer m.writes.Unlock()

	current, err := m.find(ctx, id)
	if err != nil {
		return nil, err
	}

	m.setSaving(id, true)
	defer m.setSaving(id, false)

	at := m.now()
	if err := m.store.UpdateLeadNotes(ctx, id, notes, at); err != nil {
		return nil, fmt.Errorf("update lead notes: %w", err)
	}

	updated := *current
	updated.Notes = notes
	updated.UpdatedAt = at
	m.replace(&updated)

	m.publish(events.EventLeadNotesUpdated, events.NewLeadEventPayload(&updated, changedBy))
	return &updated, nil
}

func (m *LeadManager) setSaving(id int64, saving bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if saving {
		m.savingNotes[id] = true
	} else {
		delete(m.savingNotes, id)
	}
}

// IsSavingNotes индикатор сохранения заметок строки.
func (m *LeadManager) IsSavingNotes(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.savingNotes[id]
}

// DeleteLead удаляет заявку навсегда; без confirmed=true ничего не делает.
func (m *LeadManager) DeleteLead(ctx context.Context, id int64, confirmed bool, changedBy string) error {
	if !confirmed {
		return ErrConfirmationRequired
	}

	m.writes.Lock()
	defer m.writes.Unlock()

	lead, err := m.find(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.DeleteLead(ctx, id); err != nil {
		if errors.Is(err, database.ErrLeadNotFound) {
			m.remove(id)
		}
		return fmt.Errorf("delete lead: %w", err)
	}
	m.remove(id)

	m.logger.Info().Int64("lead_id", id).Str("by", changedBy).Msg("lead deleted")
	m.publish(events.EventLeadDeleted, events.NewLeadEventPayload(lead, changedBy))
	return nil
}

func (m *LeadManager) remove(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.leads[:0:0]
	for _, l := range m.leads {
		if l.ID != id {
			out = append(out, l)
		}
	}
	m.leads = out
}

func (m *LeadManager) publish(eventType string, payload events.LeadEventPayload) {
	if m.eventBus == nil {
		return
	}
	if err := m.eventBus.PublishJSON(eventType, payload); err != nil {
		m.logger.Error().Err(err).Str("event_type", eventType).Int64("lead_id", payload.LeadID).Msg("publish event error")
	}
}
