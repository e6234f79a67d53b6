package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"circleburo/internal/database"
	"circleburo/internal/events"
	"circleburo/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	almaty = time.FixedZone("ALMT", 5*3600)
	// четверг, 15 октября 2026, 10:30 по Алматы
	testNow    = time.Date(2026, 10, 15, 10, 30, 0, 0, almaty)
	nextMonday = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
)

func fixedClock() func() time.Time {
	return func() time.Time { return testNow }
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func setupDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(":memory:", nopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// eventRecorder подписчик шины, запоминающий события.
type eventRecorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func newRecordingBus() (*events.EventBus, *eventRecorder) {
	bus := events.NewEventBus()
	rec := &eventRecorder{}
	bus.Subscribe(func(e *events.Event) error {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.events = append(rec.events, e)
		return nil
	}, events.AllLeadEvents...)
	return bus, rec
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *eventRecorder) payload(t *testing.T, i int) events.LeadEventPayload {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Greater(t, len(r.events), i)
	p, err := r.events[i].DecodeLead()
	require.NoError(t, err)
	return p
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateLead(ctx context.Context, lead *models.Lead) error {
	args := m.Called(ctx, lead)
	if fn, ok := args.Get(0).(func(*models.Lead) error); ok {
		return fn(lead)
	}
	return args.Error(0)
}

func (m *mockStore) GetLead(ctx context.Context, id int64) (*models.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Lead), args.Error(1)
}

func (m *mockStore) GetLeadStatus(ctx context.Context, id int64) (models.Status, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Status), args.Error(1)
}

func (m *mockStore) ListLeads(ctx context.Context) ([]*models.Lead, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Lead), args.Error(1)
}

func (m *mockStore) GetBookedSlots(ctx context.Context, date time.Time) ([]models.BookedSlot, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BookedSlot), args.Error(1)
}

func (m *mockStore) CountActiveBookings(ctx context.Context, date time.Time, meetingTime string) (int, error) {
	args := m.Called(ctx, date, meetingTime)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) UpdateLeadStatus(ctx context.Context, id int64, from, to models.Status, updatedAt time.Time) error {
	return m.Called(ctx, id, from, to, updatedAt).Error(0)
}

func (m *mockStore) UpdateLeadNotes(ctx context.Context, id int64, notes string, updatedAt time.Time) error {
	return m.Called(ctx, id, notes, updatedAt).Error(0)
}

func (m *mockStore) DeleteLead(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) PingContext(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return nil
}
