// Package rag orchestrates document ingestion and grounded question
// answering over a project's corpus. It composes the ingest, search, cache,
// and provider packages behind two operations: ingest and query.
package rag

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// Status is a document's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// validTransitions encodes the monotonic document lifecycle. Completed and
// Failed are terminal; re-ingesting a document means registering a new one,
// never reviving a terminal record.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

func (s Status) canTransitionTo(to Status) bool {
	for _, next := range validTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Document is a registered ingestion unit and its lifecycle state.
type Document struct {
	ID        string
	ProjectID string
	Source    string
	Status    Status
	Error     string // failure reason, set only in the Failed state
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusStore persists document lifecycle records.
type StatusStore interface {
	Create(ctx context.Context, projectID, source string) (*Document, error)
	Transition(ctx context.Context, documentID string, to Status, failure string) error
	Get(ctx context.Context, documentID string) (*Document, error)
	ListByProject(ctx context.Context, projectID string) ([]*Document, error)
	Close() error
}

// SQLiteStatusStore stores document records in SQLite alongside the index
// data.
type SQLiteStatusStore struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// NewStatusStore opens (creating if needed) the document database at path.
func NewStatusStore(path string) (*SQLiteStatusStore, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStatusStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStatusStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		source     TEXT NOT NULL,
		status     TEXT NOT NULL,
		error      TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(project_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Create registers a new document in the Pending state.
func (s *SQLiteStatusStore) Create(ctx context.Context, projectID, source string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("status store is closed")
	}

	now := time.Now()
	doc := &Document{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Source:    source,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents(id, project_id, source, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, '', ?, ?)`,
		doc.ID, doc.ProjectID, doc.Source, string(doc.Status), now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}
	return doc, nil
}

// Transition moves a document to a new lifecycle state. The failure reason
// is recorded only when transitioning to Failed. A transition the lifecycle
// does not allow, including any move out of a terminal state, is an error.
func (s *SQLiteStatusStore) Transition(ctx context.Context, documentID string, to Status, failure string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("status store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM documents WHERE id = ?`, documentID).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("document %s not found", documentID)
	}
	if err != nil {
		return fmt.Errorf("failed to read document status: %w", err)
	}

	if !Status(current).canTransitionTo(to) {
		return fmt.Errorf("invalid status transition %s -> %s for document %s", current, to, documentID)
	}

	if to != StatusFailed {
		failure = ""
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(to), failure, time.Now().Unix(), documentID); err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return tx.Commit()
}

// Get returns one document record.
func (s *SQLiteStatusStore) Get(ctx context.Context, documentID string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("status store is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, source, status, error, created_at, updated_at
		FROM documents WHERE id = ?`, documentID)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s not found", documentID)
	}
	return doc, err
}

// ListByProject returns a project's documents, newest first.
func (s *SQLiteStatusStore) ListByProject(ctx context.Context, projectID string) ([]*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("status store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, source, status, error, created_at, updated_at
		FROM documents WHERE project_id = ? ORDER BY created_at DESC, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Close closes the database.
func (s *SQLiteStatusStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var status string
	var createdAt, updatedAt int64
	if err := row.Scan(&doc.ID, &doc.ProjectID, &doc.Source, &status, &doc.Error, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	doc.Status = Status(status)
	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)
	return &doc, nil
}
