package repository

import (
	"context"
	"sync"
	"time"

	"circleburo/internal/models"
)

type memoryEntry struct {
	state     *models.FormState
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryStateRepository запасное хранилище форм в памяти процесса.
type MemoryStateRepository struct {
	mu         sync.Mutex
	states     map[string]memoryEntry
	rateLimits map[string]*rateLimitEntry
	ttl        time.Duration
	now        func() time.Time
}

func NewMemoryStateRepository(ttl time.Duration) *MemoryStateRepository {
	return &MemoryStateRepository{
		states:     make(map[string]memoryEntry),
		rateLimits: make(map[string]*rateLimitEntry),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (r *MemoryStateRepository) GetState(_ context.Context, sessionID string) (*models.FormState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.states[sessionID]
	if !ok {
		return nil, nil
	}
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		delete(r.states, sessionID)
		return nil, nil
	}
	// копия, чтобы вызывающий не менял сохранённое состояние
	return entry.state.Clone(), nil
}

func (r *MemoryStateRepository) SetState(_ context.Context, state *models.FormState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states[state.SessionID] = memoryEntry{state: state.Clone(), expiresAt: r.now().Add(r.ttl)}
	return nil
}

func (r *MemoryStateRepository) ClearState(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, sessionID)
	return nil
}

func (r *MemoryStateRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++

	return entry.count <= limit, nil
}

// Sweep удаляет истекшие записи.
func (r *MemoryStateRepository) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	if r.ttl > 0 {
		for id, e := range r.states {
			if now.After(e.expiresAt) {
				delete(r.states, id)
				removed++
			}
		}
	}
	for key, e := range r.rateLimits {
		if now.After(e.expiresAt) {
			delete(r.rateLimits, key)
		}
	}
	return removed
}
