package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// ChunkStore persists chunk text and metadata in SQLite. It is the source
// of truth for a project's chunk set; the vector and lexical indexes are
// derived from it.
type ChunkStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewChunkStore opens (creating if needed) the chunk database at path.
func NewChunkStore(path string) (*ChunkStore, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite may ignore DSN params, set pragmas explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &ChunkStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *ChunkStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		project_id  TEXT NOT NULL,
		content     TEXT NOT NULL,
		position    INTEGER NOT NULL,
		source      TEXT NOT NULL,
		created_at  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Add inserts chunks in a single transaction. Existing IDs are replaced.
func (s *ChunkStore) Add(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks(id, document_id, project_id, content, position, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.DocumentID, c.ProjectID, c.Content, c.Position, c.Source, createdAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// GetAll returns every chunk ordered by document and position.
func (s *ChunkStore) GetAll(ctx context.Context) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, project_id, content, position, source, created_at
		FROM chunks ORDER BY document_id, position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanChunks(rows)
}

// GetByIDs returns the chunks with the given IDs. Missing IDs are skipped.
func (s *ChunkStore) GetByIDs(ctx context.Context, ids []string) (map[string]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	result := make(map[string]*Chunk, len(ids))
	stmt, err := s.db.PrepareContext(ctx, `
		SELECT id, document_id, project_id, content, position, source, created_at
		FROM chunks WHERE id = ?`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range ids {
		var c Chunk
		var createdAt int64
		err := stmt.QueryRowContext(ctx, id).Scan(
			&c.ID, &c.DocumentID, &c.ProjectID, &c.Content, &c.Position, &c.Source, &createdAt)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query chunk %s: %w", id, err)
		}
		c.CreatedAt = time.Unix(createdAt, 0)
		result[c.ID] = &c
	}
	return result, nil
}

// IDsByDocument returns the chunk IDs belonging to a document.
func (s *ChunkStore) IDsByDocument(ctx context.Context, documentID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM chunks WHERE document_id = ? ORDER BY position`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteByDocument removes all chunks of a document in one transaction and
// returns the removed chunk IDs. Deleting an unknown document removes
// nothing and returns an empty slice.
func (s *ChunkStore) DeleteByDocument(ctx context.Context, documentID string) ([]string, error) {
	ids, err := s.IDsByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []string{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return nil, fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteByIDs removes the chunks with the given IDs in one transaction.
// Unknown IDs are ignored.
func (s *ChunkStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete chunk: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteAll removes every chunk.
func (s *ChunkStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks`)
	return err
}

// Count returns the number of stored chunks.
func (s *ChunkStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// Close closes the database.
func (s *ChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func scanChunks(rows *sql.Rows) ([]*Chunk, error) {
	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ProjectID, &c.Content, &c.Position, &c.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.CreatedAt = time.Unix(createdAt, 0)
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}
