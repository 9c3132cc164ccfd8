package migrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/tursodatabase/go-libsql"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("libsql", "file:"+filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLoadMigrations_Sorted(t *testing.T) {
	all, err := LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(all) < 3 {
		t.Fatalf("expected at least 3 migrations, got %d", len(all))
	}
	for i, m := range all {
		if m.Version != i+1 {
			t.Errorf("migration %d has version %d", i, m.Version)
		}
		if m.DownSQL == "" {
			t.Errorf("migration %d_%s has no down migration", m.Version, m.Name)
		}
	}
}

func TestMigrator_UpAndDown(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	m, err := New(db, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	applied, err := m.Up(ctx)
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if applied != m.HeadVersion() {
		t.Errorf("applied = %d, want %d", applied, m.HeadVersion())
	}

	version, dirty, err := m.Current(ctx)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if version != m.HeadVersion() || dirty {
		t.Errorf("Current() = %d, %v; want %d, false", version, dirty, m.HeadVersion())
	}

	var recorded int
	if err := db.QueryRowContext(ctx, `SELECT schema_version FROM version_info`).Scan(&recorded); err != nil {
		t.Fatalf("failed to read version_info: %v", err)
	}
	if recorded != m.HeadVersion() {
		t.Errorf("version_info.schema_version = %d, want %d", recorded, m.HeadVersion())
	}

	applied, err = m.Up(ctx)
	if err != nil || applied != 0 {
		t.Errorf("second Up() = %d, %v; want 0, nil", applied, err)
	}

	if err := m.To(ctx, 1); err != nil {
		t.Fatalf("To(1): %v", err)
	}
	version, _, _ = m.Current(ctx)
	if version != 1 {
		t.Errorf("version after downgrade = %d, want 1", version)
	}

	if err := m.To(ctx, m.HeadVersion()); err != nil {
		t.Fatalf("To(head): %v", err)
	}
	version, _, _ = m.Current(ctx)
	if version != m.HeadVersion() {
		t.Errorf("version after upgrade = %d, want %d", version, m.HeadVersion())
	}
}

func TestMigrator_ToUnknownRevision(t *testing.T) {
	db := openTestDB(t)
	m, err := New(db, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.To(context.Background(), 999); err == nil {
		t.Error("expected error for unknown revision")
	}
}

func TestMigrator_DirtyRefusesToRun(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m, err := New(db, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, err := m.Current(ctx); err != nil {
		t.Fatalf("Current: %v", err)
	}
	if err := SetVersion(ctx, db, 1, true); err != nil {
		t.Fatalf("SetVersion: %v", err)
	}
	if _, err := m.Up(ctx); err == nil {
		t.Error("expected Up to fail on a dirty schema")
	}
}

func TestSplitSQL(t *testing.T) {
	parts := SplitSQL("CREATE TABLE a (x INTEGER);\nCREATE TABLE b (y INTEGER)")
	if len(parts) != 2 {
		t.Errorf("SplitSQL returned %d parts, want 2", len(parts))
	}
}
