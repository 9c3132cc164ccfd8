package ports

import "context"

// SchemaManager reports and changes the storage schema version.
type SchemaManager interface {
	CurrentVersion(ctx context.Context) (int, error)
	HeadVersion() int
	Versions() []int
	// Check returns domain.ErrSchemaOutdated, domain.ErrSchemaUnknown or
	// domain.ErrSchemaDirty when the storage cannot be used as is.
	Check(ctx context.Context) error
	// Upgrade applies pending migrations and returns how many ran.
	Upgrade(ctx context.Context) (int, error)
	MigrateTo(ctx context.Context, version int) error
}
