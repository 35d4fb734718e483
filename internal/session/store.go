// Package session holds the in-memory conversation session store.
//
// The store is the canonical owner of session and message lifetime. Durable
// persistence is delegated to a Persister and is strictly best-effort: a
// failed save is logged and never surfaced to the caller.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fixmate-app/fixmate/internal/domain"
	"github.com/google/uuid"
)

// Persister saves a session snapshot to durable storage.
type Persister interface {
	SaveSession(ctx context.Context, s *domain.Session) error
}

// Store keeps sessions ordered most-recently-created-first.
type Store struct {
	mu        sync.Mutex
	order     []string
	sessions  map[string]*domain.Session
	persister Persister
}

// NewStore creates a store seeded with previously persisted sessions.
// Seed sessions must already be ordered newest-first.
func NewStore(persister Persister, seed []*domain.Session) *Store {
	s := &Store{
		sessions:  make(map[string]*domain.Session),
		persister: persister,
	}
	for _, sess := range seed {
		if _, ok := s.sessions[sess.ID]; ok {
			continue
		}
		s.order = append(s.order, sess.ID)
		s.sessions[sess.ID] = sess
	}
	return s
}

// Create allocates a new session with an empty message log and inserts it
// at the head of the ordering.
func (s *Store) Create(ctx context.Context) domain.Session {
	sess := &domain.Session{
		ID:        uuid.NewString(),
		Title:     domain.DefaultSessionTitle,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.order = append([]string{sess.ID}, s.order...)
	s.sessions[sess.ID] = sess
	snapshot := cloneSession(sess)
	s.mu.Unlock()

	s.persist(ctx, &snapshot)
	return snapshot
}

// Append adds a message to a session. Unknown session IDs are a silent
// no-op. The first user message of a session rewrites the sentinel title
// exactly once.
func (s *Store) Append(ctx context.Context, sessionID string, role domain.Role, text string) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return
	}

	sess.Messages = append(sess.Messages, domain.Message{
		Role: role,
		Text: text,
		Time: time.Now(),
	})
	if role == domain.RoleUser && sess.Title == domain.DefaultSessionTitle {
		sess.Title = domain.DeriveTitle(text)
	}
	snapshot := cloneSession(sess)
	s.mu.Unlock()

	s.persist(ctx, &snapshot)
}

// Get returns a snapshot of a session, or false if it does not exist.
func (s *Store) Get(sessionID string) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, false
	}
	return cloneSession(sess), true
}

// List returns snapshots of all sessions, newest-first.
func (s *Store) List() []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneSession(s.sessions[id]))
	}
	return out
}

// RecentMessages returns up to limit messages from the tail of a session's
// log, oldest first. It returns nil for unknown sessions.
func (s *Store) RecentMessages(sessionID string, limit int) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || limit <= 0 {
		return nil
	}
	msgs := sess.Messages
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out
}

func (s *Store) persist(ctx context.Context, snapshot *domain.Session) {
	if s.persister == nil {
		return
	}
	if err := s.persister.SaveSession(ctx, snapshot); err != nil {
		slog.Warn("Failed to persist session", "session_id", snapshot.ID, "error", err)
	}
}

func cloneSession(sess *domain.Session) domain.Session {
	out := *sess
	out.Messages = make([]domain.Message, len(sess.Messages))
	copy(out.Messages, sess.Messages)
	return out
}
