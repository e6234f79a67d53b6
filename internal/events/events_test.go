package events

import (
	"testing"
	"time"

	"circleburo/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	bus.Subscribe(func(event *Event) error {
		received = event
		callCount++
		return nil
	}, EventLeadCreated, EventLeadDeleted)

	lead := &models.Lead{
		ID:          7,
		Name:        "Анна",
		Phone:       "77011234567",
		MeetingDate: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		MeetingTime: "10:00",
		Status:      models.StatusPending,
	}
	require.NoError(t, bus.PublishJSON(EventLeadCreated, NewLeadEventPayload(lead, "visitor")))

	assert.Equal(t, 1, callCount)
	require.NotNil(t, received)
	assert.Equal(t, EventLeadCreated, received.Type)
	assert.False(t, received.CreatedAt.IsZero())

	payload, err := received.DecodeLead()
	require.NoError(t, err)
	assert.Equal(t, int64(7), payload.LeadID)
	assert.Equal(t, "2026-10-19", payload.MeetingDate)
	assert.Equal(t, models.StatusPending, payload.Status)
	assert.Equal(t, "visitor", payload.ChangedBy)

	require.NoError(t, bus.PublishJSON(EventLeadDeleted, NewLeadEventPayload(lead, "admin")))
	assert.Equal(t, 2, callCount)
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe(func(_ *Event) error { count1++; return nil }, "event")
	bus.Subscribe(func(_ *Event) error { count2++; return nil }, "event")

	bus.Publish(&Event{Type: "event"})

	assert.Equal(t, 1, count1)
	assert.Equal(t, 1, count2)
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	assert.NotPanics(t, func() { bus.Publish(&Event{Type: "unknown"}) })
	assert.NoError(t, bus.PublishJSON("unknown", nil))

	var nilBus *EventBus
	assert.NoError(t, nilBus.PublishJSON(EventLeadCreated, nil))
}
