package repository

import (
	"context"
	"sync"
	"time"

	"circleburo/internal/domain"
	"circleburo/internal/models"

	"github.com/rs/zerolog"
)

// FailoverStateRepository пишет в primary (Redis), при ошибке переключается на fallback
// и раз в recoverAfter пробует вернуться.
type FailoverStateRepository struct {
	primary      domain.StateRepository
	fallback     domain.StateRepository
	logger       *zerolog.Logger
	recoverAfter time.Duration

	mu        sync.Mutex
	isDown    bool
	lastCheck time.Time
	now       func() time.Time
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:      primary,
		fallback:     fallback,
		logger:       logger,
		recoverAfter: time.Minute,
		now:          time.Now,
	}
}

// Degraded: работаем на запасном хранилище.
func (r *FailoverStateRepository) Degraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isDown
}

// usePrimary решает, идти ли в primary: он жив или пора проверить восстановление.
func (r *FailoverStateRepository) usePrimary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isDown {
		return true
	}
	if r.now().Sub(r.lastCheck) > r.recoverAfter {
		r.lastCheck = r.now()
		return true
	}
	return false
}

func (r *FailoverStateRepository) markResult(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		if r.isDown {
			r.logger.Info().Str("op", op).Msg("Primary state repository recovered")
		}
		r.isDown = false
		return
	}
	if !r.isDown {
		r.logger.Error().Err(err).Str("op", op).Msg("Primary state repository failed, falling back to memory")
	}
	r.isDown = true
	r.lastCheck = r.now()
}

func (r *FailoverStateRepository) GetState(ctx context.Context, sessionID string) (*models.FormState, error) {
	if r.usePrimary() {
		state, err := r.primary.GetState(ctx, sessionID)
		r.markResult("get", err)
		if err == nil {
			return state, nil
		}
	}
	return r.fallback.GetState(ctx, sessionID)
}

func (r *FailoverStateRepository) SetState(ctx context.Context, state *models.FormState) error {
	if r.usePrimary() {
		err := r.primary.SetState(ctx, state)
		r.markResult("set", err)
		if err == nil {
			return nil
		}
	}
	return r.fallback.SetState(ctx, state)
}

func (r *FailoverStateRepository) ClearState(ctx context.Context, sessionID string) error {
	if r.usePrimary() {
		err := r.primary.ClearState(ctx, sessionID)
		r.markResult("clear", err)
		if err == nil {
			return nil
		}
	}
	return r.fallback.ClearState(ctx, sessionID)
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		r.markResult("rate_limit", err)
		if err == nil {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
