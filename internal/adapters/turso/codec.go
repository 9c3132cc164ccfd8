package turso

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/emiliopalmerini/mtune/internal/infrastructure/database"
)

// streamRetries bounds how often an operation is repeated after a remote
// connection lost its stream.
const streamRetries = 3

// timeLayout keeps a fixed fraction width so text columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	valueFinite = "FINITE"
	valueInfPos = "INF_POS"
	valueInfNeg = "INF_NEG"
)

// encodeValue splits v into a nullable column value and its type tag, since
// SQLite has no representation for infinities.
func encodeValue(v float64) (sql.NullFloat64, string) {
	switch {
	case math.IsInf(v, 1):
		return sql.NullFloat64{}, valueInfPos
	case math.IsInf(v, -1):
		return sql.NullFloat64{}, valueInfNeg
	case math.IsNaN(v):
		return sql.NullFloat64{}, valueFinite
	}
	return sql.NullFloat64{Float64: v, Valid: true}, valueFinite
}

func decodeValue(v sql.NullFloat64, typ string) float64 {
	switch typ {
	case valueInfPos:
		return math.Inf(1)
	case valueInfNeg:
		return math.Inf(-1)
	}
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func formatTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func encodeAttr(value any) (string, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to encode attribute: %w", err)
	}
	return string(b), nil
}

func decodeAttr(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// loadAttrs reads key/value_json rows into owner id keyed maps.
func loadAttrs(ctx context.Context, q querier, query string, args ...any) (map[int64]map[string]any, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]map[string]any{}
	for rows.Next() {
		var id int64
		var key, value string
		if err := rows.Scan(&id, &key, &value); err != nil {
			return nil, err
		}
		if out[id] == nil {
			out[id] = map[string]any{}
		}
		out[id][key] = decodeAttr(value)
	}
	return out, rows.Err()
}

// withTx runs fn in a transaction, starting over when the remote stream was
// lost. fn must not keep state between attempts.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	_, err := database.WithRetry(ctx, streamRetries, func() (struct{}, error) {
		return struct{}{}, runTx(ctx, db, fn)
	})
	return err
}

func runTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
