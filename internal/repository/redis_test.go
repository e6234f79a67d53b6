package repository

import (
	"context"
	"testing"
	"time"

	"circleburo/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStateRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	defer client.Close()

	repo := NewRedisStateRepository(client, time.Hour)
	ctx := context.Background()

	t.Run("SetAndGetState", func(t *testing.T) {
		state := models.NewFormState("sess-1")
		state.SelectedDate = "2026-10-19"
		state.SelectedTime = "10:00"
		state.BookedSlots = []models.BookedSlot{{Time: "09:00", Status: models.StatusPending, ID: 1, Name: "A"}}
		state.SetFieldError(models.FieldPhone, "bad phone")

		require.NoError(t, repo.SetState(ctx, state))

		got, err := repo.GetState(ctx, "sess-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.StepSelect, got.Step)
		assert.Equal(t, "10:00", got.SelectedTime)
		assert.Equal(t, state.BookedSlots, got.BookedSlots)
		assert.Equal(t, "bad phone", got.FieldErrors[models.FieldPhone])

		assert.True(t, s.Exists("booking_form:sess-1"))
		assert.Equal(t, time.Hour, s.TTL("booking_form:sess-1"))
	})

	t.Run("GetNonExistentState", func(t *testing.T) {
		got, err := repo.GetState(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ExpiredState", func(t *testing.T) {
		require.NoError(t, repo.SetState(ctx, models.NewFormState("short")))
		s.FastForward(time.Hour + time.Second)
		got, err := repo.GetState(ctx, "short")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ClearState", func(t *testing.T) {
		require.NoError(t, repo.SetState(ctx, models.NewFormState("sess-2")))
		require.NoError(t, repo.ClearState(ctx, "sess-2"))

		got, _ := repo.GetState(ctx, "sess-2")
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		limit := 2
		window := time.Second

		allowed, err := repo.CheckRateLimit(ctx, "sess-3", limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, "sess-3", limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		// Third request (exceeds limit)
		allowed, err = repo.CheckRateLimit(ctx, "sess-3", limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(window + time.Millisecond)

		allowed, err = repo.CheckRateLimit(ctx, "sess-3", limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisStateRepository(nil, time.Hour)
		_, err := repo.GetState(ctx, "x")
		assert.ErrorContains(t, err, "redis client is nil")
		assert.Error(t, repo.SetState(ctx, models.NewFormState("x")))
		assert.Error(t, repo.ClearState(ctx, "x"))
		_, err = repo.CheckRateLimit(ctx, "x", 1, time.Second)
		assert.Error(t, err)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})
}

func TestRedisStateRepositoryServerDown(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	defer client.Close()
	repo := NewRedisStateRepository(client, time.Hour)

	s.Close()
	_, err = repo.GetState(context.Background(), "sess-1")
	assert.Error(t, err)
	assert.Error(t, Ping(context.Background(), client))
}

func TestNewRedisClient(t *testing.T) {
	s := miniredis.RunT(t)
	client := NewRedisClient(configFor(s.Addr()))
	defer Close(client)
	assert.NoError(t, Ping(context.Background(), client))
	assert.NoError(t, Close(nil))
}
