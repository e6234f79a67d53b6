package database

import (
	"context"
	"testing"
	"time"

	"circleburo/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var monday = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func newLead(name, slot string, date time.Time) *models.Lead {
	return &models.Lead{
		Name:        name,
		Phone:       "77011234567",
		MeetingDate: date,
		MeetingTime: slot,
		Status:      models.StatusPending,
	}
}

func TestCreateAndGetLead(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	lead := newLead("Анна Иванова", "10:00", monday)
	lead.Status = ""
	require.NoError(t, db.CreateLead(ctx, lead))
	assert.NotZero(t, lead.ID)
	assert.Equal(t, models.StatusPending, lead.Status)
	assert.False(t, lead.CreatedAt.IsZero())

	got, err := db.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "Анна Иванова", got.Name)
	assert.Equal(t, monday, got.MeetingDate)
	assert.Equal(t, "10:00", got.MeetingTime)
	assert.Equal(t, models.StatusPending, got.Status)

	status, err := db.GetLeadStatus(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, status)

	_, err = db.GetLead(ctx, 999)
	assert.ErrorIs(t, err, ErrLeadNotFound)
	_, err = db.GetLeadStatus(ctx, 999)
	assert.ErrorIs(t, err, ErrLeadNotFound)
}

func TestCreateLeadNormalizesDate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// 23:30 по Алматы всё ещё 19 октября
	loc := time.FixedZone("ALMT", 5*3600)
	lead := newLead("Борис", "11:00", time.Date(2026, 10, 19, 23, 30, 0, 0, loc))
	require.NoError(t, db.CreateLead(ctx, lead))

	slots, err := db.GetBookedSlots(ctx, monday)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "11:00", slots[0].Time)
}

func TestGetBookedSlots(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateLead(ctx, newLead("C", "15:00", monday)))
	require.NoError(t, db.CreateLead(ctx, newLead("A", "09:00", monday)))

	confirmed := newLead("B", "12:00:00", monday)
	confirmed.Status = models.StatusConfirmed
	require.NoError(t, db.CreateLead(ctx, confirmed))

	cancelled := newLead("D", "13:00", monday)
	cancelled.Status = models.StatusCancelled
	require.NoError(t, db.CreateLead(ctx, cancelled))

	require.NoError(t, db.CreateLead(ctx, newLead("E", "10:00", monday.AddDate(0, 0, 1))))

	slots, err := db.GetBookedSlots(ctx, monday)
	require.NoError(t, err)
	require.Len(t, slots, 3)

	assert.Equal(t, "09:00", slots[0].Time)
	assert.Equal(t, "A", slots[0].Name)
	assert.Equal(t, "12:00", slots[1].Time)
	assert.Equal(t, models.StatusConfirmed, slots[1].Status)
	assert.Equal(t, "15:00", slots[2].Time)

	empty, err := db.GetBookedSlots(ctx, monday.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestCountActiveBookings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	lead := newLead("A", "10:00", monday)
	require.NoError(t, db.CreateLead(ctx, lead))

	n, err := db.CountActiveBookings(ctx, monday, "10:00")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = db.CountActiveBookings(ctx, monday, "11:00")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, db.UpdateLeadStatus(ctx, lead.ID, models.StatusPending, models.StatusCancelled, time.Now()))
	n, err = db.CountActiveBookings(ctx, monday, "10:00")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDuplicateSlotIsNotRejectedByStore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateLead(ctx, newLead("A", "10:00", monday)))
	require.NoError(t, db.CreateLead(ctx, newLead("B", "10:00", monday)))

	n, err := db.CountActiveBookings(ctx, monday, "10:00")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestListLeadsOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := newLead("first", "09:00", monday)
	require.NoError(t, db.CreateLead(ctx, first))
	second := newLead("second", "10:00", monday)
	require.NoError(t, db.CreateLead(ctx, second))

	leads, err := db.ListLeads(ctx)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "second", leads[0].Name)
	assert.Equal(t, "first", leads[1].Name)
}

func TestUpdateLead(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	lead := newLead("A", "10:00", monday)
	require.NoError(t, db.CreateLead(ctx, lead))

	at := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, db.UpdateLeadStatus(ctx, lead.ID, models.StatusPending, models.StatusConfirmed, at))
	require.NoError(t, db.UpdateLeadNotes(ctx, lead.ID, `перезвонить "после 15"`, at))

	got, err := db.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.Equal(t, `перезвонить "после 15"`, got.Notes)
	assert.True(t, got.UpdatedAt.Equal(at))

	assert.ErrorIs(t, db.UpdateLeadStatus(ctx, 999, models.StatusPending, models.StatusConfirmed, at), ErrLeadNotFound)

	// статус уже не pending: условная запись не проходит
	err = db.UpdateLeadStatus(ctx, lead.ID, models.StatusPending, models.StatusCancelled, at)
	assert.ErrorIs(t, err, ErrStatusChanged)
	got, err = db.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.ErrorIs(t, db.UpdateLeadNotes(ctx, 999, "x", at), ErrLeadNotFound)
}

func TestDeleteLead(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	lead := newLead("A", "10:00", monday)
	require.NoError(t, db.CreateLead(ctx, lead))
	require.NoError(t, db.DeleteLead(ctx, lead.ID))

	_, err := db.GetLead(ctx, lead.ID)
	assert.ErrorIs(t, err, ErrLeadNotFound)
	assert.ErrorIs(t, db.DeleteLead(ctx, lead.ID), ErrLeadNotFound)
}

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	db.Close()

	ctx := context.Background()

	assert.Error(t, db.CreateLead(ctx, newLead("A", "10:00", monday)))
	_, err = db.ListLeads(ctx)
	assert.Error(t, err)
	_, err = db.GetBookedSlots(ctx, monday)
	assert.Error(t, err)
	_, err = db.CountActiveBookings(ctx, monday, "10:00")
	assert.Error(t, err)
	assert.Error(t, db.PingContext(ctx))
}
