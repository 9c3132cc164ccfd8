package migrations

import "embed"

// FS holds the versioned schema migrations applied by internal/migrate.
//
//go:embed *.sql
var FS embed.FS
