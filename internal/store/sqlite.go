package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fixmate-app/fixmate/internal/domain"
	"github.com/fixmate-app/fixmate/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);

	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		time INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadSessions returns all persisted sessions, newest-first, with their
// message logs in append order.
func (s *SQLiteStore) LoadSessions(ctx context.Context) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, title, created_at FROM sessions ORDER BY created_at DESC, session_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	byID := make(map[string]*domain.Session)
	for rows.Next() {
		var sess domain.Session
		var createdAt int64
		if err := rows.Scan(&sess.ID, &sess.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sess.CreatedAt = time.UnixMilli(createdAt)
		sessions = append(sessions, &sess)
		byID[sess.ID] = &sess
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}

	msgRows, err := s.db.QueryContext(ctx,
		`SELECT session_id, role, text, time FROM messages ORDER BY session_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var sessionID, role, text string
		var at int64
		if err := msgRows.Scan(&sessionID, &role, &text, &at); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		sess, ok := byID[sessionID]
		if !ok {
			continue
		}
		sess.Messages = append(sess.Messages, domain.Message{
			Role: domain.Role(role),
			Text: text,
			Time: time.UnixMilli(at),
		})
	}
	if err := msgRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}

	return sessions, nil
}

// SaveSession writes a full session snapshot. Message logs are append-only,
// so the snapshot always supersedes what is on disk. Retries once on SQLite
// concurrency conflicts.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *domain.Session) error {
	err := s.saveSessionOnce(ctx, sess)
	if shared.IsSQLiteConflictError(err) {
		err = s.saveSessionOnce(ctx, sess)
	}
	return err
}

func (s *SQLiteStore) saveSessionOnce(ctx context.Context, sess *domain.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	now := time.Now().UnixMilli()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at`,
		sess.ID, sess.Title, sess.CreatedAt.UnixMilli(), now,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	for i, msg := range sess.Messages {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, seq, role, text, time) VALUES (?, ?, ?, ?, ?)`,
			sess.ID, i, string(msg.Role), msg.Text, msg.Time.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save transaction: %w", err)
	}
	return nil
}
