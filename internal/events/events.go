package events

import (
	"encoding/json"
	"sync"
	"time"

	"circleburo/internal/models"
)

const (
	EventLeadCreated       = "lead_created"
	EventLeadStatusChanged = "lead_status_changed"
	EventLeadNotesUpdated  = "lead_notes_updated"
	EventLeadDeleted       = "lead_deleted"
)

// AllLeadEvents все изменения таблицы заявок.
var AllLeadEvents = []string{
	EventLeadCreated,
	EventLeadStatusChanged,
	EventLeadNotesUpdated,
	EventLeadDeleted,
}

// StaffNotifiedEvents о них сообщаем сотрудникам.
var StaffNotifiedEvents = []string{
	EventLeadCreated,
	EventLeadStatusChanged,
	EventLeadDeleted,
}

// LeadEventPayload снимок заявки для подписчиков.
type LeadEventPayload struct {
	LeadID         int64         `json:"lead_id"`
	Name           string        `json:"name"`
	Phone          string        `json:"phone"`
	MeetingDate    string        `json:"meeting_date"`
	MeetingTime    string        `json:"meeting_time"`
	Status         models.Status `json:"status"`
	PreviousStatus models.Status `json:"previous_status,omitempty"`
	Notes          string        `json:"notes,omitempty"`
	ChangedBy      string        `json:"changed_by,omitempty"`
}

// NewLeadEventPayload собирает payload из заявки.
func NewLeadEventPayload(lead *models.Lead, changedBy string) LeadEventPayload {
	return LeadEventPayload{
		LeadID:      lead.ID,
		Name:        lead.Name,
		Phone:       lead.Phone,
		MeetingDate: lead.DateKey(),
		MeetingTime: lead.MeetingTime,
		Status:      lead.Status,
		Notes:       lead.Notes,
		ChangedBy:   changedBy,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// DecodeLead разбирает payload события заявки.
func (e *Event) DecodeLead() (LeadEventPayload, error) {
	var p LeadEventPayload
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for the given event types.
func (b *EventBus) Subscribe(handler EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// Publish calls subscribers synchronously, so handlers must not block.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
