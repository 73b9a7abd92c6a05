package repository

import (
	"context"

	"github.com/tegelkonst/cotizador/internal/session"
)

// Repository defines the interface for persistent session storage.
type Repository interface {
	CreateSession(ctx context.Context, s *session.Session) error
	GetSession(ctx context.Context, id string) (*session.Session, error)
	ListSessions(ctx context.Context) ([]*session.Session, error)
	UpdateSession(ctx context.Context, s *session.Session) error
	DeleteSession(ctx context.Context, id string) error

	// Lifecycle
	Close() error
}
