package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"circleburo/internal/domain"
	"circleburo/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FormSessions хранит формы посетителей по id сессии и сериализует работу с одной сессией.
type FormSessions struct {
	stateRepo    domain.StateRepository
	submitLimit  int
	submitWindow time.Duration
	logger       *zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

func NewFormSessions(stateRepo domain.StateRepository, submitLimit int, submitWindow time.Duration, logger *zerolog.Logger) *FormSessions {
	if submitLimit <= 0 {
		submitLimit = models.DefaultSubmitRateLimit
	}
	if submitWindow <= 0 {
		submitWindow = models.DefaultSubmitRateWindow
	}
	return &FormSessions{
		stateRepo:    stateRepo,
		submitLimit:  submitLimit,
		submitWindow: submitWindow,
		logger:       logger,
		locks:        make(map[string]*sessionLock),
	}
}

// Create новая пустая форма с uuid.
func (s *FormSessions) Create(ctx context.Context) (*models.FormState, error) {
	state := models.NewFormState(uuid.NewString())
	state.UpdatedAt = time.Now()
	if err := s.stateRepo.SetState(ctx, state); err != nil {
		s.logger.Error().Err(err).Msg("failed to create booking session")
		return nil, fmt.Errorf("create session: %w", err)
	}
	return state, nil
}

func (s *FormSessions) Get(ctx context.Context, sessionID string) (*models.FormState, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, ErrSessionNotFound
	}
	state, err := s.stateRepo.GetState(ctx, sessionID)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to get booking session")
		return nil, err
	}
	if state == nil {
		return nil, ErrSessionNotFound
	}
	if state.BookedSlots == nil {
		state.BookedSlots = []models.BookedSlot{}
	}
	return state, nil
}

func (s *FormSessions) Save(ctx context.Context, state *models.FormState) error {
	return s.stateRepo.SetState(ctx, state)
}

func (s *FormSessions) Delete(ctx context.Context, sessionID string) error {
	return s.stateRepo.ClearState(ctx, sessionID)
}

// Lock блокирует сессию внутри процесса; вернуть unlock нужно обязательно.
func (s *FormSessions) Lock(sessionID string) func() {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, sessionID)
		}
		s.mu.Unlock()
	}
}

// CheckSubmitLimit не больше submitLimit отправок формы за окно.
func (s *FormSessions) CheckSubmitLimit(ctx context.Context, sessionID string) error {
	allowed, err := s.stateRepo.CheckRateLimit(ctx, sessionID, s.submitLimit, s.submitWindow)
	if err != nil {
		// лимит вспомогательный, отказ хранилища не блокирует запись
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("submit rate limit check failed")
		return nil
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}
