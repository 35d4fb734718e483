// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/fixmate-app/fixmate/internal/domain"
)

// Repository defines the interface for durable session storage.
//
// Persistence is best-effort by contract: callers log and continue when a
// save fails. Load happens once at startup.
type Repository interface {
	// LoadSessions returns all persisted sessions, newest-first.
	LoadSessions(ctx context.Context) ([]*domain.Session, error)

	// SaveSession writes a full session snapshot (row plus message log).
	SaveSession(ctx context.Context, s *domain.Session) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
