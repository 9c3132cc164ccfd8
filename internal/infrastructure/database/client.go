package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"
)

// Client wraps a SQL database connection with Turso-specific retry logic.
type Client struct {
	*sql.DB
	Remote bool
}

// Options configures the database client behavior.
type Options struct {
	AuthToken string
	Ping      bool
}

// IsSQLURL reports whether url points at a libsql-compatible database.
func IsSQLURL(url string) bool {
	for _, prefix := range []string{"sqlite:", "file:", "libsql:", "http:", "https:", "ws:", "wss:"} {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

// DSN converts a storage URL into a libsql connection string. sqlite:///path
// style URLs map onto local files.
func DSN(url, authToken string) (dsn string, remote bool) {
	switch {
	case strings.HasPrefix(url, "sqlite:///"):
		return "file:" + strings.TrimPrefix(url, "sqlite:///"), false
	case strings.HasPrefix(url, "sqlite://"):
		return "file:" + strings.TrimPrefix(url, "sqlite://"), false
	case strings.HasPrefix(url, "sqlite:"):
		return "file:" + strings.TrimPrefix(url, "sqlite:"), false
	case strings.HasPrefix(url, "file:"):
		return url, false
	}
	if authToken == "" {
		return url, true
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "authToken=" + authToken, true
}

// New opens the database at url with an initial ping.
func New(url, authToken string) (*Client, error) {
	return NewWithOptions(url, Options{AuthToken: authToken, Ping: true})
}

// NewWithOptions creates a database client with custom options.
func NewWithOptions(url string, opts Options) (*Client, error) {
	dsn, remote := DSN(url, opts.AuthToken)
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if remote {
		// Turso closes idle Hrana streams aggressively, so stale
		// connections surface as "stream not found".
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(0)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(0)
	} else {
		// Local files serialize writers. One connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	if opts.Ping {
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
	}

	return &Client{DB: db, Remote: remote}, nil
}

// IsStreamError checks if an error is a Turso "stream not found" error.
func IsStreamError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "stream not found")
}

// WithRetry executes a function with retry logic for Turso stream errors.
// It retries up to maxRetries times when encountering "stream not found" errors.
func WithRetry[T any](ctx context.Context, maxRetries int, fn func() (T, error)) (T, error) {
	var result T
	var err error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}

		if !IsStreamError(err) || attempt == maxRetries {
			return result, err
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}

	return result, err
}
