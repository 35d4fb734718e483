package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fixmate-app/fixmate/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "fixmate.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Truncate(time.Millisecond)
	sess := &domain.Session{
		ID:        "sess-1",
		Title:     "my wifi is down",
		CreatedAt: base,
		Messages: []domain.Message{
			{Role: domain.RoleUser, Text: "my wifi is down", Time: base.Add(time.Second)},
			{Role: domain.RoleAssistant, Text: "let's fix it", Time: base.Add(2 * time.Second)},
		},
	}
	if err := repo.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	loaded, err := repo.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("got %d sessions, want 1", len(loaded))
	}
	got := loaded[0]
	if got.ID != sess.ID || got.Title != sess.Title {
		t.Errorf("loaded session = %q/%q, want %q/%q", got.ID, got.Title, sess.ID, sess.Title)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(got.Messages))
	}
	for i, msg := range got.Messages {
		if msg.Role != sess.Messages[i].Role || msg.Text != sess.Messages[i].Text {
			t.Errorf("message %d = %+v, want %+v", i, msg, sess.Messages[i])
		}
		if !msg.Time.Equal(sess.Messages[i].Time) {
			t.Errorf("message %d time = %v, want %v", i, msg.Time, sess.Messages[i].Time)
		}
	}
}

func TestSaveSessionIsIdempotentUpsert(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	sess := &domain.Session{ID: "sess-2", Title: domain.DefaultSessionTitle, CreatedAt: time.Now()}
	if err := repo.SaveSession(ctx, sess); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	sess.Title = "renamed by first user message"
	sess.Messages = append(sess.Messages, domain.Message{
		Role: domain.RoleUser, Text: "renamed by first user message", Time: time.Now(),
	})
	if err := repo.SaveSession(ctx, sess); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	loaded, err := repo.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("got %d sessions, want 1", len(loaded))
	}
	if loaded[0].Title != "renamed by first user message" {
		t.Errorf("title = %q, want updated title", loaded[0].Title)
	}
	if len(loaded[0].Messages) != 1 {
		t.Errorf("got %d messages, want 1", len(loaded[0].Messages))
	}
}

func TestLoadSessionsNewestFirst(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	old := &domain.Session{ID: "old", Title: "t", CreatedAt: time.Now().Add(-time.Hour)}
	fresh := &domain.Session{ID: "fresh", Title: "t", CreatedAt: time.Now()}
	if err := repo.SaveSession(ctx, old); err != nil {
		t.Fatalf("save old: %v", err)
	}
	if err := repo.SaveSession(ctx, fresh); err != nil {
		t.Fatalf("save fresh: %v", err)
	}

	loaded, err := repo.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions failed: %v", err)
	}
	if len(loaded) != 2 || loaded[0].ID != "fresh" || loaded[1].ID != "old" {
		t.Errorf("expected fresh before old, got %v", []string{loaded[0].ID, loaded[1].ID})
	}
}
