package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/emiliopalmerini/mtune/internal/buildinfo"
	"github.com/emiliopalmerini/mtune/migrations"
)

// Migration represents a single database migration with up and down SQL.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Migrator applies the embedded migrations to a database.
type Migrator struct {
	db         *sql.DB
	logger     *zap.Logger
	migrations []Migration
}

// New loads the embedded migrations. A nil logger discards progress output.
func New(db *sql.DB, logger *zap.Logger) (*Migrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	all, err := LoadMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	return &Migrator{db: db, logger: logger, migrations: all}, nil
}

// Migrations returns the loaded migrations sorted by version.
func (m *Migrator) Migrations() []Migration {
	return m.migrations
}

// HeadVersion is the version of the newest embedded migration.
func (m *Migrator) HeadVersion() int {
	if len(m.migrations) == 0 {
		return 0
	}
	return m.migrations[len(m.migrations)-1].Version
}

// Versions lists every known schema version, including 0 for an empty schema.
func (m *Migrator) Versions() []int {
	versions := []int{0}
	for _, mig := range m.migrations {
		versions = append(versions, mig.Version)
	}
	return versions
}

// Known reports whether version is one of Versions.
func (m *Migrator) Known(version int) bool {
	for _, v := range m.Versions() {
		if v == version {
			return true
		}
	}
	return false
}

// Current ensures the migrations table and returns the version and dirty flag.
func (m *Migrator) Current(ctx context.Context) (int, bool, error) {
	if err := EnsureMigrationsTable(ctx, m.db); err != nil {
		return 0, false, fmt.Errorf("failed to create migrations table: %w", err)
	}
	version, dirty, err := GetCurrentVersion(ctx, m.db)
	if err != nil {
		return 0, false, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, dirty, nil
}

// Up applies every pending migration and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	current, dirty, err := m.Current(ctx)
	if err != nil {
		return 0, err
	}
	if dirty {
		return 0, fmt.Errorf("database is in dirty state at version %d", current)
	}

	count := 0
	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}
		if err := RunMigration(ctx, m.db, m.logger, mig, true); err != nil {
			return count, err
		}
		count++
	}

	if count > 0 {
		if err := m.recordLibraryVersion(ctx); err != nil {
			return count, err
		}
		m.logger.Info("migrated storage schema", zap.Int("version", m.HeadVersion()), zap.Int("applied", count))
	}
	return count, nil
}

// To migrates up or down until the schema is at target.
func (m *Migrator) To(ctx context.Context, target int) error {
	if !m.Known(target) {
		return fmt.Errorf("unknown schema revision %d (known: %v)", target, m.Versions())
	}
	current, dirty, err := m.Current(ctx)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", current)
	}

	switch {
	case target > current:
		err = MigrateUpTo(ctx, m.db, m.logger, m.migrations, current, target)
	case target < current:
		err = MigrateDownTo(ctx, m.db, m.logger, m.migrations, current, target)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	if target > 0 {
		return m.recordLibraryVersion(ctx)
	}
	return nil
}

func (m *Migrator) recordLibraryVersion(ctx context.Context) error {
	version, _, err := GetCurrentVersion(ctx, m.db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO version_info (version_info_id, schema_version, library_version) VALUES (1, ?, ?)
		ON CONFLICT(version_info_id) DO UPDATE SET schema_version = excluded.schema_version, library_version = excluded.library_version
	`, version, buildinfo.Resolve())
	if err != nil {
		return fmt.Errorf("failed to record version info: %w", err)
	}
	return nil
}

// EnsureMigrationsTable creates the schema_migrations table if it doesn't exist.
func EnsureMigrationsTable(ctx context.Context, db *sql.DB) error {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pragma_table_info('schema_migrations') WHERE name = 'dirty'
	`).Scan(&count)

	if err != nil || count == 0 {
		_, err = db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version INTEGER PRIMARY KEY,
				dirty INTEGER NOT NULL DEFAULT 0
			)
		`)
		return err
	}

	return nil
}

// GetCurrentVersion returns the current migration version and dirty state.
func GetCurrentVersion(ctx context.Context, db *sql.DB) (int, bool, error) {
	var version int
	var dirty int

	err := db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	return version, dirty == 1, nil
}

// SetVersion sets the migration version and dirty state.
func SetVersion(ctx context.Context, db *sql.DB, version int, dirty bool) error {
	dirtyInt := 0
	if dirty {
		dirtyInt = 1
	}

	_, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`)
	if err != nil {
		return err
	}

	if version > 0 {
		_, err = db.ExecContext(ctx, `INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)`, version, dirtyInt)
	}
	return err
}

// LoadMigrations reads all embedded migration files and returns them sorted by version.
func LoadMigrations() ([]Migration, error) {
	var result []Migration

	upPattern := regexp.MustCompile(`^(\d+)_(.+)\.up\.sql$`)

	err := fs.WalkDir(migrations.FS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		matches := upPattern.FindStringSubmatch(filepath.Base(path))
		if matches == nil {
			return nil
		}

		version, _ := strconv.Atoi(matches[1])
		name := matches[2]

		upSQL, err := fs.ReadFile(migrations.FS, path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		downPath := fmt.Sprintf("%03d_%s.down.sql", version, name)
		downSQL, err := fs.ReadFile(migrations.FS, downPath)
		if err != nil {
			downSQL = nil
		}

		result = append(result, Migration{
			Version: version,
			Name:    name,
			UpSQL:   string(upSQL),
			DownSQL: string(downSQL),
		})

		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Version < result[j].Version
	})

	return result, nil
}

// RunMigration executes a single migration (up or down).
func RunMigration(ctx context.Context, db *sql.DB, logger *zap.Logger, m Migration, up bool) error {
	direction := "up"
	sqlContent := m.UpSQL
	if !up {
		direction = "down"
		sqlContent = m.DownSQL
	}

	logger.Debug("running migration", zap.String("direction", direction), zap.Int("version", m.Version), zap.String("name", m.Name))

	targetVersion := m.Version
	if !up {
		targetVersion = m.Version - 1
	}
	if err := SetVersion(ctx, db, m.Version, true); err != nil {
		return fmt.Errorf("failed to set dirty flag: %w", err)
	}

	statements := SplitSQL(sqlContent)
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}

		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration %d %s: %w\nSQL: %s", m.Version, direction, err, stmt)
		}
	}

	if err := SetVersion(ctx, db, targetVersion, false); err != nil {
		return fmt.Errorf("failed to clear dirty flag: %w", err)
	}

	return nil
}

// SplitSQL splits a SQL string by semicolons.
func SplitSQL(sql string) []string {
	return strings.Split(sql, ";")
}

// MigrateUpTo runs up migrations to a specific version.
func MigrateUpTo(ctx context.Context, db *sql.DB, logger *zap.Logger, allMigrations []Migration, currentVersion, targetVersion int) error {
	for _, m := range allMigrations {
		if m.Version <= currentVersion {
			continue
		}
		if m.Version > targetVersion {
			break
		}

		if err := RunMigration(ctx, db, logger, m, true); err != nil {
			return err
		}
	}

	logger.Info("migrated storage schema", zap.Int("version", targetVersion))
	return nil
}

// MigrateDownTo runs down migrations to a specific version.
func MigrateDownTo(ctx context.Context, db *sql.DB, logger *zap.Logger, allMigrations []Migration, currentVersion, targetVersion int) error {
	for i := len(allMigrations) - 1; i >= 0; i-- {
		m := allMigrations[i]
		if m.Version > currentVersion {
			continue
		}
		if m.Version <= targetVersion {
			break
		}

		if m.DownSQL == "" {
			return fmt.Errorf("no down migration for version %d", m.Version)
		}

		if err := RunMigration(ctx, db, logger, m, false); err != nil {
			return err
		}
	}

	logger.Info("migrated storage schema", zap.Int("version", targetVersion))
	return nil
}

// RunAll runs all pending migrations on the provided database.
func RunAll(ctx context.Context, db *sql.DB) error {
	m, err := New(db, nil)
	if err != nil {
		return err
	}
	_, err = m.Up(ctx)
	return err
}
