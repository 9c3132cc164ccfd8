package turso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/emiliopalmerini/mtune/internal/domain"
	"github.com/emiliopalmerini/mtune/internal/infrastructure/database"
)

type StudyRepository struct {
	db *sql.DB
}

func NewStudyRepository(db *sql.DB) *StudyRepository {
	return &StudyRepository{db: db}
}

func (r *StudyRepository) Create(ctx context.Context, name string, directions []domain.StudyDirection) (*domain.Study, error) {
	var id int64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM studies WHERE study_name = ?`, name).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check study name: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("%w: %q", domain.ErrDuplicatedStudy, name)
		}

		res, err := tx.ExecContext(ctx, `INSERT INTO studies (study_name) VALUES (?)`, name)
		if err != nil {
			return fmt.Errorf("failed to create study: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get study id: %w", err)
		}

		for i, d := range directions {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO study_directions (direction, study_id, objective) VALUES (?, ?, ?)`,
				string(d), id, i,
			); err != nil {
				return fmt.Errorf("failed to create study direction: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &domain.Study{
		ID:          id,
		Name:        name,
		Directions:  append([]domain.StudyDirection(nil), directions...),
		UserAttrs:   map[string]any{},
		SystemAttrs: map[string]any{},
	}, nil
}

func (r *StudyRepository) GetByID(ctx context.Context, id int64) (*domain.Study, error) {
	return r.getOne(ctx, `SELECT study_id, study_name FROM studies WHERE study_id = ?`, id)
}

func (r *StudyRepository) GetByName(ctx context.Context, name string) (*domain.Study, error) {
	return r.getOne(ctx, `SELECT study_id, study_name FROM studies WHERE study_name = ?`, name)
}

func (r *StudyRepository) getOne(ctx context.Context, query string, arg any) (*domain.Study, error) {
	return database.WithRetry(ctx, streamRetries, func() (*domain.Study, error) {
		return r.queryOne(ctx, query, arg)
	})
}

func (r *StudyRepository) queryOne(ctx context.Context, query string, arg any) (*domain.Study, error) {
	study := &domain.Study{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&study.ID, &study.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get study: %w", err)
	}
	if err := r.fill(ctx, []*domain.Study{study}); err != nil {
		return nil, err
	}
	return study, nil
}

func (r *StudyRepository) List(ctx context.Context) ([]*domain.StudySummary, error) {
	return database.WithRetry(ctx, streamRetries, func() ([]*domain.StudySummary, error) {
		return r.list(ctx)
	})
}

func (r *StudyRepository) list(ctx context.Context) ([]*domain.StudySummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.study_id, s.study_name, COUNT(t.trial_id), MIN(t.datetime_start)
		FROM studies s
		LEFT JOIN trials t ON t.study_id = s.study_id
		GROUP BY s.study_id, s.study_name
		ORDER BY s.study_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list studies: %w", err)
	}
	defer rows.Close()

	var summaries []*domain.StudySummary
	var studies []*domain.Study
	for rows.Next() {
		study := &domain.Study{}
		var nTrials int
		var start sql.NullString
		if err := rows.Scan(&study.ID, &study.Name, &nTrials, &start); err != nil {
			return nil, fmt.Errorf("failed to scan study: %w", err)
		}
		studies = append(studies, study)
		summaries = append(summaries, &domain.StudySummary{
			Study:         study,
			NTrials:       nTrials,
			DatetimeStart: parseTime(start),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list studies: %w", err)
	}
	rows.Close()

	if err := r.fill(ctx, studies); err != nil {
		return nil, err
	}
	return summaries, nil
}

// fill loads directions and attributes for the given studies.
func (r *StudyRepository) fill(ctx context.Context, studies []*domain.Study) error {
	if len(studies) == 0 {
		return nil
	}
	byID := make(map[int64]*domain.Study, len(studies))
	ids := make([]any, len(studies))
	for i, s := range studies {
		byID[s.ID] = s
		ids[i] = s.ID
		s.Directions = nil
		s.UserAttrs = map[string]any{}
		s.SystemAttrs = map[string]any{}
	}
	in := placeholders(len(ids))

	rows, err := r.db.QueryContext(ctx,
		`SELECT study_id, direction FROM study_directions WHERE study_id IN (`+in+`) ORDER BY study_id, objective`, ids...)
	if err != nil {
		return fmt.Errorf("failed to get study directions: %w", err)
	}
	for rows.Next() {
		var id int64
		var d string
		if err := rows.Scan(&id, &d); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan study direction: %w", err)
		}
		byID[id].Directions = append(byID[id].Directions, domain.StudyDirection(d))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to get study directions: %w", err)
	}

	userAttrs, err := loadAttrs(ctx, r.db,
		`SELECT study_id, key, value_json FROM study_user_attributes WHERE study_id IN (`+in+`)`, ids...)
	if err != nil {
		return fmt.Errorf("failed to get study user attributes: %w", err)
	}
	systemAttrs, err := loadAttrs(ctx, r.db,
		`SELECT study_id, key, value_json FROM study_system_attributes WHERE study_id IN (`+in+`)`, ids...)
	if err != nil {
		return fmt.Errorf("failed to get study system attributes: %w", err)
	}
	for id, s := range byID {
		if attrs, ok := userAttrs[id]; ok {
			s.UserAttrs = attrs
		}
		if attrs, ok := systemAttrs[id]; ok {
			s.SystemAttrs = attrs
		}
	}
	return nil
}

func (r *StudyRepository) Delete(ctx context.Context, id int64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM studies WHERE study_id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete study: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrStudyNotFound
		}

		trialChildren := []string{
			"trial_params", "trial_values", "trial_intermediate_values",
			"trial_user_attributes", "trial_system_attributes",
		}
		for _, table := range trialChildren {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM `+table+` WHERE trial_id IN (SELECT trial_id FROM trials WHERE study_id = ?)`, id,
			); err != nil {
				return fmt.Errorf("failed to delete %s: %w", table, err)
			}
		}
		for _, table := range []string{"trials", "study_directions", "study_user_attributes", "study_system_attributes"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE study_id = ?`, id); err != nil {
				return fmt.Errorf("failed to delete %s: %w", table, err)
			}
		}
		return nil
	})
}

func (r *StudyRepository) SetUserAttr(ctx context.Context, id int64, key string, value any) error {
	encoded, err := encodeAttr(value)
	if err != nil {
		return err
	}
	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM studies WHERE study_id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to get study: %w", err)
	}
	if exists == 0 {
		return domain.ErrStudyNotFound
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO study_user_attributes (study_id, key, value_json) VALUES (?, ?, ?)
		ON CONFLICT(study_id, key) DO UPDATE SET value_json = excluded.value_json
	`, id, key, encoded)
	if err != nil {
		return fmt.Errorf("failed to set study attribute: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
