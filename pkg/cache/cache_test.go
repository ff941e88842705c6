package cache

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// setupTestStore creates a file-backed SQLite database and a Store for
// testing. It uses t.Cleanup to release resources.
func setupTestStore(t *testing.T) (context.Context, *Store) {
	t.Helper()

	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbFile+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}
	// Idempotent.
	if err := SetupSchema(db); err != nil {
		t.Fatalf("second SetupSchema failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewStore(db, logger)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(s.Close)

	return context.Background(), s
}

func TestStoreEntries(t *testing.T) {
	ctx, s := setupTestStore(t)

	if _, ok, err := s.Get(ctx, "content/missing.md"); err != nil || ok {
		t.Fatalf("Get on empty store = ok:%v err:%v, want absent", ok, err)
	}

	e := Entry{SourcePath: "content/a.md", Checksum: "aaa", OutputPath: "a/index.html"}
	if err := s.Put(ctx, e); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok, err := s.Get(ctx, e.SourcePath)
	if err != nil || !ok {
		t.Fatalf("Get() = ok:%v err:%v", ok, err)
	}
	if got != e {
		t.Errorf("Get() = %+v, want %+v", got, e)
	}

	// Put replaces on conflict.
	e.Checksum = "bbb"
	if err = s.Put(ctx, e); err != nil {
		t.Fatalf("Put() update error = %v", err)
	}
	got, _, _ = s.Get(ctx, e.SourcePath)
	if got.Checksum != "bbb" {
		t.Errorf("updated checksum = %q, want bbb", got.Checksum)
	}

	if err = s.Put(ctx, Entry{SourcePath: "content/b.md", Checksum: "ccc", OutputPath: "b/index.html"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("All() returned %d entries, want 2", len(all))
	}

	if err = s.Delete(ctx, "content/a.md"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ = s.Get(ctx, "content/a.md"); ok {
		t.Error("entry still present after Delete")
	}
	// Deleting an absent entry is a no-op.
	if err = s.Delete(ctx, "content/a.md"); err != nil {
		t.Errorf("Delete of absent entry error = %v", err)
	}
}

func TestStoreGeneration(t *testing.T) {
	ctx, s := setupTestStore(t)

	gen, err := s.Generation(ctx)
	if err != nil {
		t.Fatalf("Generation() error = %v", err)
	}
	if gen != "" {
		t.Errorf("fresh store generation = %q, want empty", gen)
	}

	if err = s.SetGeneration(ctx, "fp-1"); err != nil {
		t.Fatalf("SetGeneration() error = %v", err)
	}
	if gen, _ = s.Generation(ctx); gen != "fp-1" {
		t.Errorf("generation = %q, want fp-1", gen)
	}

	// Overwrite.
	if err = s.SetGeneration(ctx, "fp-2"); err != nil {
		t.Fatalf("SetGeneration() overwrite error = %v", err)
	}
	if gen, _ = s.Generation(ctx); gen != "fp-2" {
		t.Errorf("generation = %q, want fp-2", gen)
	}
}

func TestStoreReset(t *testing.T) {
	ctx, s := setupTestStore(t)

	_ = s.Put(ctx, Entry{SourcePath: "a.md", Checksum: "x", OutputPath: "a/index.html"})
	_ = s.SetGeneration(ctx, "fp")

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 0 {
		t.Errorf("entries survived Reset: %v", all)
	}
	// Reset clears pages, not the generation fingerprint.
	if gen, _ := s.Generation(ctx); gen != "fp" {
		t.Errorf("generation lost by Reset: %q", gen)
	}
}
