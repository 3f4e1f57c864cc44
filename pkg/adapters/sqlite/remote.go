// Package sqlite implements core.RemoteStore on a SQLite database. It is the
// durable single-file backend for local-first deployments where several
// processes on one machine share the authoritative store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aretw0/speaknote/pkg/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	version    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_owner ON notes(owner_id);
`

// Remote implements core.RemoteStore over SQLite.
type Remote struct {
	conn *sql.DB
	Path string
}

// Open opens (or creates) the database with WAL mode enabled and ensures the
// schema exists.
func Open(path string) (*Remote, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Remote{conn: conn, Path: path}, nil
}

// Close closes the database connection.
func (r *Remote) Close() error {
	return r.conn.Close()
}

func scanNote(scanner interface{ Scan(dest ...any) error }) (core.Note, error) {
	var n core.Note
	var created, updated int64
	err := scanner.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Content, &created, &updated, &n.Version)
	if err != nil {
		return core.Note{}, err
	}
	n.CreatedAt = time.UnixMilli(created)
	n.UpdatedAt = time.UnixMilli(updated)
	return n, nil
}

func (r *Remote) getNote(ctx context.Context, id string) (core.Note, error) {
	row := r.conn.QueryRowContext(ctx, `
		SELECT id, owner_id, title, content, created_at, updated_at, version
		FROM notes WHERE id = ?
	`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Note{}, &core.NotFoundError{ID: id}
	}
	return n, err
}

// Create persists a new note and assigns a durable ID.
func (r *Remote) Create(ctx context.Context, n core.Note) (core.CreateResult, error) {
	id := uuid.NewString()
	now := time.Now()

	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO notes (id, owner_id, title, content, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, 1)
	`, id, n.OwnerID, n.Title, n.Content, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return core.CreateResult{}, fmt.Errorf("inserting note: %w", err)
	}

	return core.CreateResult{ID: id, CreatedAt: now, Version: 1}, nil
}

// Update applies fields if baseVersion matches the stored version. The
// version check and the write happen in one statement, so two engines
// racing on the same row cannot both win.
func (r *Remote) Update(ctx context.Context, id string, baseVersion int64, fields core.Fields) (core.UpdateResult, error) {
	now := time.Now()

	res, err := r.conn.ExecContext(ctx, `
		UPDATE notes SET title = ?, content = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, fields.Title, fields.Content, now.UnixMilli(), id, baseVersion)
	if err != nil {
		return core.UpdateResult{}, fmt.Errorf("updating note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.UpdateResult{}, err
	}
	if affected == 0 {
		latest, gerr := r.getNote(ctx, id)
		if gerr != nil {
			return core.UpdateResult{}, gerr
		}
		return core.UpdateResult{}, &core.ConflictError{ID: id, Latest: &latest}
	}

	return core.UpdateResult{UpdatedAt: now, Version: baseVersion + 1}, nil
}

// Delete removes a note if baseVersion matches.
func (r *Remote) Delete(ctx context.Context, id string, baseVersion int64) error {
	res, err := r.conn.ExecContext(ctx, `
		DELETE FROM notes WHERE id = ? AND version = ?
	`, id, baseVersion)
	if err != nil {
		return fmt.Errorf("deleting note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		latest, gerr := r.getNote(ctx, id)
		if gerr != nil {
			return gerr
		}
		return &core.ConflictError{ID: id, Latest: &latest}
	}
	return nil
}

// QueryByOwner returns all notes owned by the given identity, newest first.
func (r *Remote) QueryByOwner(ctx context.Context, ownerID string) ([]core.Note, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, owner_id, title, content, created_at, updated_at, version
		FROM notes WHERE owner_id = ? ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []core.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

var _ core.RemoteStore = (*Remote)(nil)
