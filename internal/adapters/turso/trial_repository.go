package turso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/emiliopalmerini/mtune/internal/domain"
	"github.com/emiliopalmerini/mtune/internal/infrastructure/database"
)

const trialColumns = `trial_id, study_id, number, state, datetime_start, datetime_complete`

type TrialRepository struct {
	db *sql.DB
}

func NewTrialRepository(db *sql.DB) *TrialRepository {
	return &TrialRepository{db: db}
}

func (r *TrialRepository) Create(ctx context.Context, studyID int64, template *domain.Trial) (*domain.Trial, error) {
	if template == nil {
		now := time.Now()
		template = domain.NewTrial(domain.TrialRunning)
		template.DatetimeStart = &now
	}

	var id int64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM studies WHERE study_id = ?`, studyID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to get study: %w", err)
		}
		if exists == 0 {
			return domain.ErrStudyNotFound
		}

		var number int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM trials WHERE study_id = ?`, studyID).Scan(&number); err != nil {
			return fmt.Errorf("failed to count trials: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO trials (number, study_id, state, datetime_start, datetime_complete) VALUES (?, ?, ?, ?, ?)`,
			number, studyID, int(template.State), formatTime(template.DatetimeStart), formatTime(template.DatetimeComplete),
		)
		if err != nil {
			return fmt.Errorf("failed to create trial: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get trial id: %w", err)
		}

		for name, external := range template.Params {
			dist, ok := template.Distributions[name]
			if !ok {
				return fmt.Errorf("%w: no distribution for parameter %q", domain.ErrInvalidDistribution, name)
			}
			internal, err := dist.ToInternal(external)
			if err != nil {
				return fmt.Errorf("parameter %q: %w", name, err)
			}
			if err := upsertParam(ctx, tx, id, name, internal, dist); err != nil {
				return err
			}
		}
		for objective, v := range template.Values {
			if err := upsertValue(ctx, tx, id, objective, v); err != nil {
				return err
			}
		}
		for step, v := range template.IntermediateValues {
			if err := upsertIntermediateValue(ctx, tx, id, step, v); err != nil {
				return err
			}
		}
		for key, v := range template.UserAttrs {
			if err := upsertTrialAttr(ctx, tx, "trial_user_attributes", id, key, v); err != nil {
				return err
			}
		}
		for key, v := range template.SystemAttrs {
			if err := upsertTrialAttr(ctx, tx, "trial_system_attributes", id, key, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

func (r *TrialRepository) GetByID(ctx context.Context, id int64) (*domain.Trial, error) {
	return r.getOne(ctx, `SELECT `+trialColumns+` FROM trials WHERE trial_id = ?`, id)
}

func (r *TrialRepository) GetByNumber(ctx context.Context, studyID int64, number int) (*domain.Trial, error) {
	return r.getOne(ctx, `SELECT `+trialColumns+` FROM trials WHERE study_id = ? AND number = ?`, studyID, number)
}

func (r *TrialRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Trial, error) {
	return database.WithRetry(ctx, streamRetries, func() (*domain.Trial, error) {
		return r.queryOne(ctx, query, args...)
	})
}

func (r *TrialRepository) queryOne(ctx context.Context, query string, args ...any) (*domain.Trial, error) {
	trial, err := scanTrial(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get trial: %w", err)
	}
	if err := r.fill(ctx, []*domain.Trial{trial}, `trial_id = ?`, trial.ID); err != nil {
		return nil, err
	}
	return trial, nil
}

func (r *TrialRepository) List(ctx context.Context, studyID int64, states ...domain.TrialState) ([]*domain.Trial, error) {
	return database.WithRetry(ctx, streamRetries, func() ([]*domain.Trial, error) {
		return r.list(ctx, studyID, states...)
	})
}

func (r *TrialRepository) list(ctx context.Context, studyID int64, states ...domain.TrialState) ([]*domain.Trial, error) {
	query := `SELECT ` + trialColumns + ` FROM trials WHERE study_id = ?`
	args := []any{studyID}
	if len(states) > 0 {
		query += ` AND state IN (` + placeholders(len(states)) + `)`
		for _, s := range states {
			args = append(args, int(s))
		}
	}
	query += ` ORDER BY number`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trials: %w", err)
	}
	defer rows.Close()

	var trials []*domain.Trial
	for rows.Next() {
		trial, err := scanTrial(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trial: %w", err)
		}
		trials = append(trials, trial)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list trials: %w", err)
	}
	rows.Close()

	if err := r.fill(ctx, trials, `trial_id IN (SELECT trial_id FROM trials WHERE study_id = ?)`, studyID); err != nil {
		return nil, err
	}
	return trials, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrial(row rowScanner) (*domain.Trial, error) {
	var state int
	var start, complete sql.NullString
	trial := domain.NewTrial(domain.TrialRunning)
	if err := row.Scan(&trial.ID, &trial.StudyID, &trial.Number, &state, &start, &complete); err != nil {
		return nil, err
	}
	trial.State = domain.TrialState(state)
	trial.DatetimeStart = parseTime(start)
	trial.DatetimeComplete = parseTime(complete)
	return trial, nil
}

// fill loads params, values and attributes of trials selected by cond.
func (r *TrialRepository) fill(ctx context.Context, trials []*domain.Trial, cond string, args ...any) error {
	if len(trials) == 0 {
		return nil
	}
	byID := make(map[int64]*domain.Trial, len(trials))
	for _, t := range trials {
		byID[t.ID] = t
	}

	if err := r.fillParams(ctx, byID, cond, args); err != nil {
		return err
	}
	if err := r.fillValues(ctx, byID, cond, args); err != nil {
		return err
	}
	if err := r.fillIntermediateValues(ctx, byID, cond, args); err != nil {
		return err
	}

	userAttrs, err := loadAttrs(ctx, r.db, `SELECT trial_id, key, value_json FROM trial_user_attributes WHERE `+cond, args...)
	if err != nil {
		return fmt.Errorf("failed to get trial user attributes: %w", err)
	}
	systemAttrs, err := loadAttrs(ctx, r.db, `SELECT trial_id, key, value_json FROM trial_system_attributes WHERE `+cond, args...)
	if err != nil {
		return fmt.Errorf("failed to get trial system attributes: %w", err)
	}
	for id, t := range byID {
		if attrs, ok := userAttrs[id]; ok {
			t.UserAttrs = attrs
		}
		if attrs, ok := systemAttrs[id]; ok {
			t.SystemAttrs = attrs
		}
	}
	return nil
}

func (r *TrialRepository) fillParams(ctx context.Context, byID map[int64]*domain.Trial, cond string, args []any) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT trial_id, param_name, param_value, distribution_json FROM trial_params WHERE `+cond, args...)
	if err != nil {
		return fmt.Errorf("failed to get trial params: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name, distJSON string
		var value float64
		if err := rows.Scan(&id, &name, &value, &distJSON); err != nil {
			return fmt.Errorf("failed to scan trial param: %w", err)
		}
		t, ok := byID[id]
		if !ok {
			continue
		}
		dist, err := domain.DistributionFromJSON(distJSON)
		if err != nil {
			return fmt.Errorf("trial %d parameter %q: %w", t.Number, name, err)
		}
		t.Distributions[name] = dist
		t.Params[name] = dist.ToExternal(value)
	}
	return rows.Err()
}

func (r *TrialRepository) fillValues(ctx context.Context, byID map[int64]*domain.Trial, cond string, args []any) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT trial_id, objective, value, value_type FROM trial_values WHERE `+cond+` ORDER BY trial_id, objective`, args...)
	if err != nil {
		return fmt.Errorf("failed to get trial values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var objective int
		var value sql.NullFloat64
		var typ string
		if err := rows.Scan(&id, &objective, &value, &typ); err != nil {
			return fmt.Errorf("failed to scan trial value: %w", err)
		}
		t, ok := byID[id]
		if !ok {
			continue
		}
		for len(t.Values) <= objective {
			t.Values = append(t.Values, 0)
		}
		t.Values[objective] = decodeValue(value, typ)
	}
	return rows.Err()
}

func (r *TrialRepository) fillIntermediateValues(ctx context.Context, byID map[int64]*domain.Trial, cond string, args []any) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT trial_id, step, intermediate_value, intermediate_value_type FROM trial_intermediate_values WHERE `+cond, args...)
	if err != nil {
		return fmt.Errorf("failed to get trial intermediate values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var step int
		var value sql.NullFloat64
		var typ string
		if err := rows.Scan(&id, &step, &value, &typ); err != nil {
			return fmt.Errorf("failed to scan trial intermediate value: %w", err)
		}
		if t, ok := byID[id]; ok {
			t.IntermediateValues[step] = decodeValue(value, typ)
		}
	}
	return rows.Err()
}

func (r *TrialRepository) SetParam(ctx context.Context, trialID int64, name string, internal float64, dist domain.Distribution) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, studyID, err := updatableTrial(ctx, tx, trialID)
		if err != nil {
			return err
		}

		var previous string
		err = tx.QueryRowContext(ctx, `
			SELECT p.distribution_json FROM trial_params p
			JOIN trials t ON t.trial_id = p.trial_id
			WHERE t.study_id = ? AND p.param_name = ?
			LIMIT 1
		`, studyID, name).Scan(&previous)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to get parameter distribution: %w", err)
		default:
			prev, err := domain.DistributionFromJSON(previous)
			if err != nil {
				return err
			}
			if err := domain.CheckCompatible(prev, dist); err != nil {
				return err
			}
		}

		return upsertParam(ctx, tx, trialID, name, internal, dist)
	})
}

func (r *TrialRepository) SetStateValues(ctx context.Context, trialID int64, state domain.TrialState, values []float64) (bool, error) {
	updated := false
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		updated = false
		if _, _, err := updatableTrial(ctx, tx, trialID); err != nil {
			return err
		}

		now := time.Now()
		if state == domain.TrialRunning {
			res, err := tx.ExecContext(ctx,
				`UPDATE trials SET state = ?, datetime_start = ? WHERE trial_id = ? AND state = ?`,
				int(domain.TrialRunning), formatTime(&now), trialID, int(domain.TrialWaiting))
			if err != nil {
				return fmt.Errorf("failed to update trial state: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return nil
			}
		} else {
			var complete sql.NullString
			if state.IsFinished() {
				complete = formatTime(&now)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE trials SET state = ?, datetime_complete = ? WHERE trial_id = ?`,
				int(state), complete, trialID,
			); err != nil {
				return fmt.Errorf("failed to update trial state: %w", err)
			}
		}

		for objective, v := range values {
			if err := upsertValue(ctx, tx, trialID, objective, v); err != nil {
				return err
			}
		}
		updated = true
		return nil
	})
	return updated, err
}

func (r *TrialRepository) SetIntermediateValue(ctx context.Context, trialID int64, step int, value float64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, _, err := updatableTrial(ctx, tx, trialID); err != nil {
			return err
		}
		return upsertIntermediateValue(ctx, tx, trialID, step, value)
	})
}

func (r *TrialRepository) SetSystemAttr(ctx context.Context, trialID int64, key string, value any) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, _, err := updatableTrial(ctx, tx, trialID); err != nil {
			return err
		}
		return upsertTrialAttr(ctx, tx, "trial_system_attributes", trialID, key, value)
	})
}

// updatableTrial loads the trial state and fails unless the trial is unfinished.
func updatableTrial(ctx context.Context, tx *sql.Tx, trialID int64) (domain.TrialState, int64, error) {
	var state int
	var studyID int64
	var number int
	err := tx.QueryRowContext(ctx, `SELECT state, study_id, number FROM trials WHERE trial_id = ?`, trialID).Scan(&state, &studyID, &number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, domain.ErrTrialNotFound
		}
		return 0, 0, fmt.Errorf("failed to get trial: %w", err)
	}
	if domain.TrialState(state).IsFinished() {
		return 0, 0, fmt.Errorf("%w: trial #%d is %s", domain.ErrTrialNotUpdatable, number, domain.TrialState(state))
	}
	return domain.TrialState(state), studyID, nil
}

func upsertParam(ctx context.Context, tx *sql.Tx, trialID int64, name string, internal float64, dist domain.Distribution) error {
	distJSON, err := domain.DistributionToJSON(dist)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO trial_params (trial_id, param_name, param_value, distribution_json) VALUES (?, ?, ?, ?)
		ON CONFLICT(trial_id, param_name) DO UPDATE SET param_value = excluded.param_value, distribution_json = excluded.distribution_json
	`, trialID, name, internal, distJSON)
	if err != nil {
		return fmt.Errorf("failed to set trial param: %w", err)
	}
	return nil
}

func upsertValue(ctx context.Context, tx *sql.Tx, trialID int64, objective int, v float64) error {
	value, typ := encodeValue(v)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trial_values (trial_id, objective, value, value_type) VALUES (?, ?, ?, ?)
		ON CONFLICT(trial_id, objective) DO UPDATE SET value = excluded.value, value_type = excluded.value_type
	`, trialID, objective, value, typ)
	if err != nil {
		return fmt.Errorf("failed to set trial value: %w", err)
	}
	return nil
}

func upsertIntermediateValue(ctx context.Context, tx *sql.Tx, trialID int64, step int, v float64) error {
	value, typ := encodeValue(v)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trial_intermediate_values (trial_id, step, intermediate_value, intermediate_value_type) VALUES (?, ?, ?, ?)
		ON CONFLICT(trial_id, step) DO UPDATE SET intermediate_value = excluded.intermediate_value, intermediate_value_type = excluded.intermediate_value_type
	`, trialID, step, value, typ)
	if err != nil {
		return fmt.Errorf("failed to set trial intermediate value: %w", err)
	}
	return nil
}

func upsertTrialAttr(ctx context.Context, tx *sql.Tx, table string, trialID int64, key string, value any) error {
	encoded, err := encodeAttr(value)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO `+table+` (trial_id, key, value_json) VALUES (?, ?, ?)
		ON CONFLICT(trial_id, key) DO UPDATE SET value_json = excluded.value_json
	`, trialID, key, encoded)
	if err != nil {
		return fmt.Errorf("failed to set trial attribute: %w", err)
	}
	return nil
}
