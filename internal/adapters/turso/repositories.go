package turso

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/emiliopalmerini/mtune/internal/domain"
	"github.com/emiliopalmerini/mtune/internal/migrate"
	"github.com/emiliopalmerini/mtune/internal/ports"
)

// Storage holds the turso repository implementations as port interfaces.
type Storage struct {
	db      *sql.DB
	studies *StudyRepository
	trials  *TrialRepository
	schema  *SchemaManager
}

// NewStorage wraps an open database. The schema is not touched.
func NewStorage(db *sql.DB, logger *zap.Logger) (*Storage, error) {
	migrator, err := migrate.New(db, logger)
	if err != nil {
		return nil, err
	}
	return &Storage{
		db:      db,
		studies: NewStudyRepository(db),
		trials:  NewTrialRepository(db),
		schema:  &SchemaManager{migrator: migrator},
	}, nil
}

// Open wraps db and prepares its schema. An empty database is migrated to
// head. Otherwise the schema must already be current unless skipCheck is set.
func Open(ctx context.Context, db *sql.DB, logger *zap.Logger, skipCheck bool) (*Storage, error) {
	s, err := NewStorage(db, logger)
	if err != nil {
		return nil, err
	}

	current, err := s.schema.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	if current == 0 {
		if _, err := s.schema.Upgrade(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return s, nil
	}
	if skipCheck {
		return s, nil
	}
	if err := s.schema.Check(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) Studies() ports.StudyRepository { return s.studies }
func (s *Storage) Trials() ports.TrialRepository  { return s.trials }
func (s *Storage) Schema() ports.SchemaManager    { return s.schema }

func (s *Storage) Close() error {
	return s.db.Close()
}

// SchemaManager exposes the migrator through ports.SchemaManager.
type SchemaManager struct {
	migrator *migrate.Migrator
}

func (m *SchemaManager) CurrentVersion(ctx context.Context) (int, error) {
	version, _, err := m.migrator.Current(ctx)
	return version, err
}

func (m *SchemaManager) HeadVersion() int { return m.migrator.HeadVersion() }

func (m *SchemaManager) Versions() []int { return m.migrator.Versions() }

func (m *SchemaManager) Check(ctx context.Context) error {
	version, dirty, err := m.migrator.Current(ctx)
	if err != nil {
		return err
	}
	switch {
	case dirty:
		return fmt.Errorf("%w: version %d", domain.ErrSchemaDirty, version)
	case !m.migrator.Known(version):
		return fmt.Errorf("%w: version %d is newer than this mtune supports (head %d)",
			domain.ErrSchemaUnknown, version, m.HeadVersion())
	case version < m.HeadVersion():
		return fmt.Errorf("%w: version %d, head %d", domain.ErrSchemaOutdated, version, m.HeadVersion())
	}
	return nil
}

func (m *SchemaManager) Upgrade(ctx context.Context) (int, error) {
	return m.migrator.Up(ctx)
}

func (m *SchemaManager) MigrateTo(ctx context.Context, version int) error {
	return m.migrator.To(ctx, version)
}
