package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/dusk-indust/adqueue/internal/gameconfig"
	"github.com/dusk-indust/adqueue/internal/request"
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// schema is executed on every open.
const schema = `
CREATE TABLE IF NOT EXISTS builds (
    id         TEXT PRIMARY KEY,
    seq        INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    config     TEXT NOT NULL,
    result     TEXT NOT NULL,
    summary    TEXT NOT NULL DEFAULT '',
    changes    TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS build_requests (
    request_id TEXT PRIMARY KEY,
    build_id   TEXT NOT NULL REFERENCES builds(id),
    position   INTEGER NOT NULL,
    qa         TEXT NOT NULL DEFAULT '',
    data       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_build_requests_build ON build_requests(build_id, position);
`

// SQLiteStore implements Store on a local SQLite database in WAL mode.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and creates the
// schema if needed.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open database: %w", err)
	}

	// SQLite has a single writer; one connection keeps PRAGMAs in effect.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save implements Store. The record and its requests are written in one
// transaction.
func (s *SQLiteStore) Save(ctx context.Context, rec *BuildRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	config, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("archive: encode config: %w", err)
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("archive: encode result: %w", err)
	}
	changes, err := json.Marshal(rec.Changes)
	if err != nil {
		return fmt.Errorf("archive: encode changes: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM builds WHERE id = ?", rec.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("archive: check build %q: %w", rec.ID, err)
	}
	if exists > 0 {
		return fmt.Errorf("archive: build %q already exists", rec.ID)
	}

	const insertBuild = `
		INSERT INTO builds (id, seq, created_at, config, result, summary, changes)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM builds), ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertBuild, rec.ID, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		string(config), string(result), rec.Summary, string(changes)); err != nil {
		return fmt.Errorf("archive: insert build %q: %w", rec.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO build_requests (request_id, build_id, position, qa, data) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("archive: prepare request insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rec.Requests {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("archive: encode request %q: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, rec.ID, i, string(r.QA), string(data)); err != nil {
			return fmt.Errorf("archive: insert request %q: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit build %q: %w", rec.ID, err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*BuildRecord, error) {
	recs, err := s.queryBuilds(ctx, "WHERE id = ?", 0, id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, recordNotFound(id)
	}
	return recs[0], nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]*BuildRecord, error) {
	return s.queryBuilds(ctx, "", 0)
}

// Latest implements Store.
func (s *SQLiteStore) Latest(ctx context.Context) (*BuildRecord, error) {
	recs, err := s.queryBuilds(ctx, "", 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// queryBuilds loads builds newest first along with their requests. where
// is an optional WHERE clause; limit <= 0 means no limit.
func (s *SQLiteStore) queryBuilds(ctx context.Context, where string, limit int, args ...any) ([]*BuildRecord, error) {
	q := "SELECT id, created_at, config, result, summary, changes FROM builds " + where + " ORDER BY seq DESC"
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: query builds: %w", err)
	}
	defer rows.Close()

	var recs []*BuildRecord
	for rows.Next() {
		var (
			rec                             BuildRecord
			ts, config, result, changesJSON string
		)
		if err := rows.Scan(&rec.ID, &ts, &config, &result, &rec.Summary, &changesJSON); err != nil {
			return nil, fmt.Errorf("archive: scan build: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("archive: parse build timestamp: %w", err)
		}
		if rec.Config, err = decodeSnapshot(config); err != nil {
			return nil, fmt.Errorf("archive: decode config of %q: %w", rec.ID, err)
		}
		if rec.Result, err = decodeSnapshot(result); err != nil {
			return nil, fmt.Errorf("archive: decode result of %q: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(changesJSON), &rec.Changes); err != nil {
			return nil, fmt.Errorf("archive: decode changes of %q: %w", rec.ID, err)
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate builds: %w", err)
	}
	rows.Close()

	for _, rec := range recs {
		if rec.Requests, err = s.requestsFor(ctx, rec.ID); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (s *SQLiteStore) requestsFor(ctx context.Context, buildID string) ([]*request.ChangeRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT qa, data FROM build_requests WHERE build_id = ? ORDER BY position", buildID)
	if err != nil {
		return nil, fmt.Errorf("archive: query requests of %q: %w", buildID, err)
	}
	defer rows.Close()

	var out []*request.ChangeRequest
	for rows.Next() {
		var qa, data string
		if err := rows.Scan(&qa, &data); err != nil {
			return nil, fmt.Errorf("archive: scan request: %w", err)
		}
		r, err := decodeRequest(qa, data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate requests: %w", err)
	}
	return out, nil
}

// FindRequest implements Store.
func (s *SQLiteStore) FindRequest(ctx context.Context, requestID string) (*request.ChangeRequest, error) {
	var qa, data string
	err := s.db.QueryRowContext(ctx,
		"SELECT qa, data FROM build_requests WHERE request_id = ?", requestID).Scan(&qa, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, requestNotFound(requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: find request %q: %w", requestID, err)
	}
	return decodeRequest(qa, data)
}

// SetQA implements Store. The read and the write share one transaction.
func (s *SQLiteStore) SetQA(ctx context.Context, requestID string, fn func(request.QAStatus) request.QAStatus) (*request.ChangeRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("archive: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var qa, data string
	err = tx.QueryRowContext(ctx,
		"SELECT qa, data FROM build_requests WHERE request_id = ?", requestID).Scan(&qa, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, requestNotFound(requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: load request %q: %w", requestID, err)
	}
	r, err := decodeRequest(qa, data)
	if err != nil {
		return nil, err
	}
	r.QA = fn(r.QA)

	if _, err := tx.ExecContext(ctx,
		"UPDATE build_requests SET qa = ? WHERE request_id = ?", string(r.QA), requestID); err != nil {
		return nil, fmt.Errorf("archive: update qa of %q: %w", requestID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("archive: commit qa of %q: %w", requestID, err)
	}
	return r, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// decodeRequest restores a request; the qa column is authoritative.
func decodeRequest(qa, data string) (*request.ChangeRequest, error) {
	var r request.ChangeRequest
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("archive: decode request: %w", err)
	}
	r.QA = request.QAStatus(qa)
	return &r, nil
}

func decodeSnapshot(data string) (*gameconfig.Snapshot, error) {
	if data == "null" {
		return nil, nil
	}
	var s gameconfig.Snapshot
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, err
	}
	return &s, nil
}
