package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/emiliopalmerini/mtune/internal/domain"
	"github.com/emiliopalmerini/mtune/internal/ports"
)

const (
	// headVersion is the newest key layout this package writes.
	headVersion = 1

	maxTxRetries = 16
)

// Storage implements ports.Storage on top of a redis server. Every key lives
// under a common prefix so several storages can share a database.
type Storage struct {
	db      *redis.Client
	prefix  string
	logger  *zap.Logger
	studies *StudyRepository
	trials  *TrialRepository
	schema  *SchemaManager
}

// New connects to the redis server at url (redis:// or rediss://).
func New(ctx context.Context, url string, logger *zap.Logger) (*Storage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	db := redis.NewClient(opts)
	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewWithClient(db, "mtune:", logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(db *redis.Client, prefix string, logger *zap.Logger) *Storage {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Storage{db: db, prefix: prefix, logger: logger}
	s.studies = &StudyRepository{s: s}
	s.trials = &TrialRepository{s: s}
	s.schema = &SchemaManager{s: s}
	return s
}

// Open connects and prepares the key layout the same way the SQL storage
// prepares its schema.
func Open(ctx context.Context, url string, logger *zap.Logger, skipCheck bool) (*Storage, error) {
	s, err := New(ctx, url, logger)
	if err != nil {
		return nil, err
	}
	current, err := s.schema.CurrentVersion(ctx)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if current == 0 {
		if _, err := s.schema.Upgrade(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	}
	if !skipCheck {
		if err := s.schema.Check(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Storage) Studies() ports.StudyRepository { return s.studies }
func (s *Storage) Trials() ports.TrialRepository  { return s.trials }
func (s *Storage) Schema() ports.SchemaManager    { return s.schema }

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) key(parts ...any) string {
	k := s.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += fmt.Sprint(p)
	}
	return k
}

// watch runs fn in an optimistic transaction on keys, retrying when a
// watched key changes underneath it.
func (s *Storage) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.db.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		s.logger.Debug("redis transaction conflict, retrying", zap.Strings("keys", keys), zap.Int("attempt", attempt))
	}
	return fmt.Errorf("redis transaction on %v kept conflicting", keys)
}

// SchemaManager tracks the key layout version in a single key.
type SchemaManager struct {
	s *Storage
}

func (m *SchemaManager) CurrentVersion(ctx context.Context) (int, error) {
	v, err := m.s.db.Get(ctx, m.s.key("schema_version")).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	version, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse schema version %q: %w", v, err)
	}
	return version, nil
}

func (m *SchemaManager) HeadVersion() int { return headVersion }

func (m *SchemaManager) Versions() []int { return []int{0, headVersion} }

func (m *SchemaManager) Check(ctx context.Context) error {
	version, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	switch {
	case version > headVersion:
		return fmt.Errorf("%w: version %d is newer than this mtune supports (head %d)",
			domain.ErrSchemaUnknown, version, headVersion)
	case version < headVersion:
		return fmt.Errorf("%w: version %d, head %d", domain.ErrSchemaOutdated, version, headVersion)
	}
	return nil
}

func (m *SchemaManager) Upgrade(ctx context.Context) (int, error) {
	version, err := m.CurrentVersion(ctx)
	if err != nil {
		return 0, err
	}
	if version >= headVersion {
		return 0, nil
	}
	if err := m.MigrateTo(ctx, headVersion); err != nil {
		return 0, err
	}
	return headVersion - version, nil
}

func (m *SchemaManager) MigrateTo(ctx context.Context, version int) error {
	if version != 0 && version != headVersion {
		return fmt.Errorf("unknown schema revision %d (known: %v)", version, m.Versions())
	}
	if err := m.s.db.Set(ctx, m.s.key("schema_version"), version, 0).Err(); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	m.s.logger.Info("migrated storage schema", zap.Int("version", version))
	return nil
}
