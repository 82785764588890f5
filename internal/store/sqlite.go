package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
	"github.com/bdintelligence20/triggr4-hub/internal/shared"
	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	sessionMu sync.Mutex // Serializes session writes to prevent SQLITE_BUSY
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

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
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
	CREATE TABLE IF NOT EXISTS api_tokens (
		token TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		session_id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		title TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		messages_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_sessions_org ON chat_sessions(organization_id, updated_at);

	CREATE TABLE IF NOT EXISTS knowledge_items (
		item_id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_items_org ON knowledge_items(organization_id, category);
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
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetToken resolves a bearer token to its organization binding.
func (s *SQLiteStore) GetToken(ctx context.Context, token string) (*domain.APIToken, error) {
	query := `SELECT token, organization_id, role, created_at FROM api_tokens WHERE token = ?`

	var t domain.APIToken
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, token).Scan(&t.Token, &t.OrganizationID, &t.Role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan token row: %w", err)
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	return &t, nil
}

// UpsertToken creates or updates a bearer token binding.
func (s *SQLiteStore) UpsertToken(ctx context.Context, token *domain.APIToken) error {
	query := `
	INSERT INTO api_tokens (token, organization_id, role, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(token) DO UPDATE SET
		organization_id = excluded.organization_id,
		role = excluded.role`

	createdAt := token.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if _, err := s.db.ExecContext(ctx, query, token.Token, token.OrganizationID, token.Role, createdAt.Unix()); err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

// ListSessions returns an organization's sessions, most recently updated first.
func (s *SQLiteStore) ListSessions(ctx context.Context, organizationID string) ([]*domain.Session, error) {
	query := `
		SELECT session_id, organization_id, title, category, messages_json, created_at, updated_at
		FROM chat_sessions WHERE organization_id = ?
		ORDER BY updated_at DESC, session_id`

	rows, err := s.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// GetSession retrieves one session owned by the organization.
func (s *SQLiteStore) GetSession(ctx context.Context, organizationID, sessionID string) (*domain.Session, error) {
	query := `
		SELECT session_id, organization_id, title, category, messages_json, created_at, updated_at
		FROM chat_sessions WHERE session_id = ? AND organization_id = ?`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID, organizationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var messagesJSON string
	var createdAt, updatedAt int64

	err := row.Scan(
		&session.SessionID, &session.OrganizationID, &session.Title,
		&session.Category, &messagesJSON, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &session.Messages); err != nil {
		return nil, fmt.Errorf("decode messages for session %s: %w", session.SessionID, err)
	}
	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)
	return &session, nil
}

// UpsertSession creates or updates a session. The organization of an existing
// session never changes; an update from another organization fails.
func (s *SQLiteStore) UpsertSession(ctx context.Context, session *domain.Session) error {
	messagesJSON, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := session.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
		INSERT INTO chat_sessions (
			session_id, organization_id, title, category, messages_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			title = excluded.title,
			category = excluded.category,
			messages_json = excluded.messages_json,
			updated_at = excluded.updated_at
		WHERE chat_sessions.organization_id = excluded.organization_id`

	return s.withBusyRetry(ctx, "upsert session", func() error {
		s.sessionMu.Lock()
		defer s.sessionMu.Unlock()

		result, err := s.db.ExecContext(ctx, query,
			session.SessionID, session.OrganizationID, session.Title, session.Category,
			string(messagesJSON), createdAt.Unix(), updatedAt.Unix(),
		)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return backoff.Permanent(ErrNotFound)
		}
		return nil
	})
}

// AddKnowledgeItem stores a searchable item.
func (s *SQLiteStore) AddKnowledgeItem(ctx context.Context, item *domain.KnowledgeItem) error {
	query := `
		INSERT INTO knowledge_items (item_id, organization_id, category, title, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return s.withBusyRetry(ctx, "add knowledge item", func() error {
		_, err := s.db.ExecContext(ctx, query,
			item.ID, item.OrganizationID, item.Category, item.Title, item.Content, createdAt.Unix(),
		)
		return err
	})
}

// ListKnowledgeItems returns an organization's items, optionally filtered by category.
func (s *SQLiteStore) ListKnowledgeItems(ctx context.Context, organizationID, category string) ([]*domain.KnowledgeItem, error) {
	query := `
		SELECT item_id, organization_id, category, title, content, created_at
		FROM knowledge_items WHERE organization_id = ?`
	args := []any{organizationID}
	if category != "" {
		query += ` AND category = ? COLLATE NOCASE`
		args = append(args, category)
	}
	query += ` ORDER BY created_at, item_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query knowledge items: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close knowledge item rows", "error", closeErr)
		}
	}()

	var items []*domain.KnowledgeItem
	for rows.Next() {
		var item domain.KnowledgeItem
		var createdAt int64
		if err := rows.Scan(&item.ID, &item.OrganizationID, &item.Category, &item.Title, &item.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan knowledge item row: %w", err)
		}
		item.CreatedAt = time.Unix(createdAt, 0)
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge items: %w", err)
	}
	return items, nil
}

// withBusyRetry runs op with exponential backoff while SQLite reports
// SQLITE_BUSY or "database is locked". Other errors are returned at once.
func (s *SQLiteStore) withBusyRetry(ctx context.Context, what string, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = time.Second

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if shared.IsSQLiteConflictError(err) {
			slog.Debug("SQLite busy, retrying", "op", what, "attempt", attempt)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
