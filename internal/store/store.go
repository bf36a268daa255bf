// Package store persists ingested page documents to SQLite or Postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spherical/lecture-ingest/internal/domain"
)

// ErrNotFound is returned when a source has no stored documents
var ErrNotFound = errors.New("record not found")

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	run_id     TEXT NOT NULL,
	source     TEXT NOT NULL,
	page       INTEGER NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (source, page)
)`

// StoredDocument is an output document with its persistence metadata
type StoredDocument struct {
	RunID     string
	Document  domain.OutputDocument
	CreatedAt time.Time
}

// DocumentStore writes and reads page documents keyed by source and page
type DocumentStore struct {
	db *sql.DB
}

// Open connects to the database for driver ("sqlite" or "postgres") and
// creates the documents table when missing.
func Open(ctx context.Context, driver, dsn string) (*DocumentStore, error) {
	var sqlDriver string
	switch driver {
	case "sqlite":
		sqlDriver = "sqlite3"
	case "postgres":
		sqlDriver = "postgres"
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unsupported store driver: %s", driver), nil)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, domain.IOError("open database", err)
	}

	// Set connection pool settings for SQLite
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, domain.IOError("connect to database", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, domain.IOError("create documents table", err)
	}

	return &DocumentStore{db: db}, nil
}

// Save replaces all stored documents for the documents' source in one
// transaction. An empty runID gets a fresh one, which is returned.
func (s *DocumentStore) Save(ctx context.Context, runID string, docs []domain.OutputDocument) (string, error) {
	if len(docs) == 0 {
		return "", domain.ValidationError("no documents to save", nil)
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", domain.IOError("begin transaction", err)
	}
	defer tx.Rollback()

	sources := make(map[string]bool)
	for _, doc := range docs {
		if sources[doc.Metadata.Source] {
			continue
		}
		sources[doc.Metadata.Source] = true
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE source = $1`, doc.Metadata.Source); err != nil {
			return "", domain.IOError("clear previous documents", err)
		}
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO documents (run_id, source, page, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, doc := range docs {
		if _, err := tx.ExecContext(ctx, query,
			runID, doc.Metadata.Source, doc.Metadata.Page, doc.Content, now,
		); err != nil {
			return "", domain.IOError(fmt.Sprintf("insert page %d", doc.Metadata.Page), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", domain.IOError("commit documents", err)
	}
	return runID, nil
}

// List returns the stored documents for source in page order
func (s *DocumentStore) List(ctx context.Context, source string) ([]StoredDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, source, page, content, created_at
		FROM documents
		WHERE source = $1
		ORDER BY page ASC
	`, source)
	if err != nil {
		return nil, domain.IOError("query documents", err)
	}
	defer rows.Close()

	var out []StoredDocument
	for rows.Next() {
		var sd StoredDocument
		if err := rows.Scan(
			&sd.RunID, &sd.Document.Metadata.Source, &sd.Document.Metadata.Page,
			&sd.Document.Content, &sd.CreatedAt,
		); err != nil {
			return nil, domain.IOError("scan document", err)
		}
		out = append(out, sd)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.IOError("iterate documents", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// Close closes the database connection
func (s *DocumentStore) Close() error {
	return s.db.Close()
}
