package mock

import (
	"context"
	"sync"

	"github.com/tegelkonst/cotizador/internal/domain"
	"github.com/tegelkonst/cotizador/internal/session"
)

// Repository is an in-memory mock repository for testing.
type Repository struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	closed   bool
}

// New creates a new mock repository.
func New() *Repository {
	return &Repository{
		sessions: make(map[string]*session.Session),
	}
}

func (r *Repository) CreateSession(ctx context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return domain.ErrConflict
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *Repository) GetSession(ctx context.Context, id string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (r *Repository) ListSessions(ctx context.Context) ([]*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*session.Session
	for _, s := range r.sessions {
		result = append(result, s)
	}
	return result, nil
}

func (r *Repository) UpdateSession(ctx context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return domain.ErrNotFound
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
