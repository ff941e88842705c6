/*
Package cache persists build state between runs so unchanged post pages can be
skipped on rebuild. It records a content checksum and output path per source
file, plus a single generation fingerprint covering the layouts and site
configuration; when the fingerprint changes the whole cache is invalid.
*/
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// SetupSchema initializes the cache tables in the provided database. It is
// idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {
	const (
		schemaPages = `
CREATE TABLE IF NOT EXISTS page_cache (
    source_path TEXT PRIMARY KEY,
    checksum TEXT NOT NULL,
    output_path TEXT NOT NULL
);
`
		schemaMeta = `
CREATE TABLE IF NOT EXISTS cache_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaPages); err != nil {
		return fmt.Errorf("could not create page cache schema: %w", err)
	}
	if _, err = tx.Exec(schemaMeta); err != nil {
		return fmt.Errorf("could not create cache meta schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store gives the builder access to the page cache. It holds the database
// connection and prepared statements for the few queries the build loop runs
// per file.
type Store struct {
	db             *sql.DB
	stmtGetEntry   *sql.Stmt
	stmtPutEntry   *sql.Stmt
	stmtDelEntry   *sql.Stmt
	stmtAllEntries *sql.Stmt
	stmtGetMeta    *sql.Stmt
	stmtPutMeta    *sql.Stmt
	logger         *slog.Logger
}

// Entry is one cached source file: its checksum at the last successful build
// and where its rendered page was written.
type Entry struct {
	SourcePath string
	Checksum   string
	OutputPath string
}

// NewStore creates a Store over an initialized database, pre-compiling all
// statements it needs. SetupSchema must have been run on the database first.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	stmtGetEntry, err := db.Prepare(`SELECT checksum, output_path FROM page_cache WHERE source_path = ?;`)
	if err != nil {
		return nil, err
	}

	stmtPutEntry, err := db.Prepare(`INSERT INTO page_cache (source_path, checksum, output_path) VALUES (?, ?, ?) ON CONFLICT (source_path) DO UPDATE SET checksum = excluded.checksum, output_path = excluded.output_path;`)
	if err != nil {
		return nil, err
	}

	stmtDelEntry, err := db.Prepare(`DELETE FROM page_cache WHERE source_path = ?;`)
	if err != nil {
		return nil, err
	}

	stmtAllEntries, err := db.Prepare(`SELECT source_path, checksum, output_path FROM page_cache;`)
	if err != nil {
		return nil, err
	}

	stmtGetMeta, err := db.Prepare(`SELECT value FROM cache_meta WHERE key = ?;`)
	if err != nil {
		return nil, err
	}

	stmtPutMeta, err := db.Prepare(`INSERT INTO cache_meta (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:             db,
		stmtGetEntry:   stmtGetEntry,
		stmtPutEntry:   stmtPutEntry,
		stmtDelEntry:   stmtDelEntry,
		stmtAllEntries: stmtAllEntries,
		stmtGetMeta:    stmtGetMeta,
		stmtPutMeta:    stmtPutMeta,
		logger:         logger,
	}, nil
}

// Get returns the cached entry for a source path, or ok=false when the file
// has never been built.
func (s *Store) Get(ctx context.Context, sourcePath string) (Entry, bool, error) {
	e := Entry{SourcePath: sourcePath}
	err := s.stmtGetEntry.QueryRowContext(ctx, sourcePath).Scan(&e.Checksum, &e.OutputPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return e, true, nil
}

// Put records or replaces the entry for a source path.
func (s *Store) Put(ctx context.Context, e Entry) error {
	_, err := s.stmtPutEntry.ExecContext(ctx, e.SourcePath, e.Checksum, e.OutputPath)
	return err
}

// Delete removes the entry for a source path. Deleting an absent entry is a
// no-op.
func (s *Store) Delete(ctx context.Context, sourcePath string) error {
	_, err := s.stmtDelEntry.ExecContext(ctx, sourcePath)
	return err
}

// All returns every cached entry keyed by source path. The builder uses it to
// find entries whose source files have disappeared.
func (s *Store) All(ctx context.Context) (map[string]Entry, error) {
	rows, err := s.stmtAllEntries.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	entries := make(map[string]Entry)
	for rows.Next() {
		var e Entry
		if err = rows.Scan(&e.SourcePath, &e.Checksum, &e.OutputPath); err != nil {
			return nil, err
		}
		entries[e.SourcePath] = e
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Generation returns the stored generation fingerprint, or "" when none has
// been recorded yet.
func (s *Store) Generation(ctx context.Context) (string, error) {
	var value string
	err := s.stmtGetMeta.QueryRowContext(ctx, "generation").Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// SetGeneration stores the generation fingerprint for the current layouts and
// configuration.
func (s *Store) SetGeneration(ctx context.Context, fingerprint string) error {
	_, err := s.stmtPutMeta.ExecContext(ctx, "generation", fingerprint)
	return err
}

// Reset drops every page entry. Called when the generation fingerprint no
// longer matches and all pages must re-render.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM page_cache;`)
	if err != nil {
		return fmt.Errorf("could not reset page cache: %w", err)
	}
	s.logger.Info("Build cache reset")
	return nil
}

// Close releases the prepared statements. It does not close the underlying
// database connection, which the Store does not own.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{
		s.stmtGetEntry, s.stmtPutEntry, s.stmtDelEntry,
		s.stmtAllEntries, s.stmtGetMeta, s.stmtPutMeta,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}
