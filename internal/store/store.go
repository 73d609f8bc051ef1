// Package store persists session documents (step ledgers and
// enhancement results) as JSON bodies in a SQLite document table.
// Writes are idempotent: re-flushing an already-flushed state is a
// no-op observable-state-wise.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"screendoc/internal/logging"
	"screendoc/internal/types"
)

// Document kinds.
const (
	KindLedger      = "workflow"
	KindEnhancement = "workflow_enhanced"
)

// ErrNoDocument is returned when a session has no stored document of
// the requested kind.
var ErrNoDocument = errors.New("no document stored")

// Store is a SQLite-backed document store.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if needed) the document store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("document store opened at %s", path)
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			session_id TEXT NOT NULL,
			kind       TEXT NOT NULL,
			body       TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, kind)
		)`)
	if err != nil {
		return fmt.Errorf("failed to migrate store: %w", err)
	}
	return nil
}

// put writes one document body, replacing any previous version.
func (s *Store) put(ctx context.Context, sessionID, kind string, body interface{}) error {
	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize %s document: %w", kind, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (session_id, kind, body, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		sessionID, kind, string(data),
	)
	if err != nil {
		logging.StoreError("failed to write %s document for %s: %v", kind, sessionID, err)
		return fmt.Errorf("failed to write %s document: %w", kind, err)
	}
	logging.StoreDebug("wrote %s document for session %s (%d bytes)", kind, sessionID, len(data))
	return nil
}

// get reads one document body.
func (s *Store) get(ctx context.Context, sessionID, kind string, out interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE session_id = ? AND kind = ?`,
		sessionID, kind,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %s kind %s: %w", sessionID, kind, ErrNoDocument)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s document: %w", kind, err)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("failed to parse stored %s document: %w", kind, err)
	}
	return nil
}

// SaveLedger persists a session's step ledger document.
func (s *Store) SaveLedger(ctx context.Context, doc types.LedgerDocument) error {
	return s.put(ctx, doc.SessionID, KindLedger, doc)
}

// LoadLedger loads a session's step ledger document.
func (s *Store) LoadLedger(ctx context.Context, sessionID string) (types.LedgerDocument, error) {
	var doc types.LedgerDocument
	err := s.get(ctx, sessionID, KindLedger, &doc)
	return doc, err
}

// SaveEnhancement persists an enhancement document.
func (s *Store) SaveEnhancement(ctx context.Context, doc types.EnhancementDocument) error {
	return s.put(ctx, doc.SessionID, KindEnhancement, doc)
}

// LoadEnhancement loads an enhancement document.
func (s *Store) LoadEnhancement(ctx context.Context, sessionID string) (types.EnhancementDocument, error) {
	var doc types.EnhancementDocument
	err := s.get(ctx, sessionID, KindEnhancement, &doc)
	return doc, err
}

// ListSessions returns the ids of all sessions with a stored ledger,
// most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM documents WHERE kind = ? ORDER BY updated_at DESC`,
		KindLedger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
