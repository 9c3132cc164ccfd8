package turso_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/emiliopalmerini/mtune/internal/adapters/turso"
	"github.com/emiliopalmerini/mtune/internal/domain"
	"github.com/emiliopalmerini/mtune/internal/migrate"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", "file:"+filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := migrate.RunAll(ctx, db); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createStudy(t *testing.T, db *sql.DB, name string, directions ...domain.StudyDirection) *domain.Study {
	t.Helper()
	if len(directions) == 0 {
		directions = []domain.StudyDirection{domain.DirectionMinimize}
	}
	study, err := turso.NewStudyRepository(db).Create(context.Background(), name, directions)
	if err != nil {
		t.Fatalf("Create study: %v", err)
	}
	return study
}

func floatDist(t *testing.T, low, high float64) *domain.FloatDistribution {
	t.Helper()
	d, err := domain.NewFloatDistribution(low, high, false, nil)
	if err != nil {
		t.Fatalf("NewFloatDistribution: %v", err)
	}
	return d
}
