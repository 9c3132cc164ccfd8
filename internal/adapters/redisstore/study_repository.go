package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/emiliopalmerini/mtune/internal/domain"
)

type StudyRepository struct {
	s *Storage
}

// Create reserves the name and writes the study in one transaction, so a
// failed write never leaves the name taken.
func (r *StudyRepository) Create(ctx context.Context, name string, directions []domain.StudyDirection) (*domain.Study, error) {
	db := r.s.db
	id, err := db.Incr(ctx, r.s.key("study", "next_id")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate study id: %w", err)
	}

	study := &domain.Study{
		ID:          id,
		Name:        name,
		Directions:  append([]domain.StudyDirection(nil), directions...),
		UserAttrs:   map[string]any{},
		SystemAttrs: map[string]any{},
	}
	b, err := newStudyRecord(study).ToRedis()
	if err != nil {
		return nil, fmt.Errorf("failed to encode study: %w", err)
	}

	nameKey := r.s.key("study", "name", name)
	err = r.s.watch(ctx, func(tx *redis.Tx) error {
		taken, err := tx.Exists(ctx, nameKey).Result()
		if err != nil {
			return fmt.Errorf("failed to look up study name: %w", err)
		}
		if taken > 0 {
			return fmt.Errorf("%w: %q", domain.ErrDuplicatedStudy, name)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, nameKey, id, 0)
			pipe.Set(ctx, r.s.key("study", id), b, 0)
			pipe.ZAdd(ctx, r.s.key("studies"), redis.Z{Score: float64(id), Member: id})
			return nil
		})
		return err
	}, nameKey)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicatedStudy) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create study: %w", err)
	}
	return study, nil
}

func (r *StudyRepository) GetByID(ctx context.Context, id int64) (*domain.Study, error) {
	b, err := r.s.db.Get(ctx, r.s.key("study", id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get study: %w", err)
	}
	var rec studyRecord
	if err := rec.FromRedis(b); err != nil {
		return nil, fmt.Errorf("failed to decode study: %w", err)
	}
	return rec.study(), nil
}

func (r *StudyRepository) GetByName(ctx context.Context, name string) (*domain.Study, error) {
	id, err := r.s.db.Get(ctx, r.s.key("study", "name", name)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get study by name: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *StudyRepository) List(ctx context.Context) ([]*domain.StudySummary, error) {
	ids, err := r.s.db.ZRange(ctx, r.s.key("studies"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list studies: %w", err)
	}

	var summaries []*domain.StudySummary
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad study id %q: %w", raw, err)
		}
		study, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if study == nil {
			continue
		}
		trials, err := r.s.trials.List(ctx, id)
		if err != nil {
			return nil, err
		}
		summary := &domain.StudySummary{Study: study, NTrials: len(trials)}
		for _, t := range trials {
			if t.DatetimeStart == nil {
				continue
			}
			if summary.DatetimeStart == nil || t.DatetimeStart.Before(*summary.DatetimeStart) {
				start := *t.DatetimeStart
				summary.DatetimeStart = &start
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (r *StudyRepository) Delete(ctx context.Context, id int64) error {
	study, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if study == nil {
		return domain.ErrStudyNotFound
	}

	trialIDs, err := r.s.db.ZRange(ctx, r.s.key("study", id, "trials"), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list study trials: %w", err)
	}

	_, err = r.s.db.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, tid := range trialIDs {
			pipe.Del(ctx, r.s.key("trial", tid))
		}
		pipe.Del(ctx,
			r.s.key("study", id),
			r.s.key("study", id, "trials"),
			r.s.key("study", id, "trial_count"),
			r.s.key("study", id, "param_dist"),
			r.s.key("study", "name", study.Name),
		)
		pipe.ZRem(ctx, r.s.key("studies"), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete study: %w", err)
	}
	return nil
}

func (r *StudyRepository) SetUserAttr(ctx context.Context, id int64, key string, value any) error {
	return r.update(ctx, id, func(rec *studyRecord) {
		if rec.UserAttrs == nil {
			rec.UserAttrs = map[string]any{}
		}
		rec.UserAttrs[key] = value
	})
}

func (r *StudyRepository) update(ctx context.Context, id int64, mutate func(*studyRecord)) error {
	key := r.s.key("study", id)
	return r.s.watch(ctx, func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrStudyNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get study: %w", err)
		}
		var rec studyRecord
		if err := rec.FromRedis(b); err != nil {
			return fmt.Errorf("failed to decode study: %w", err)
		}
		mutate(&rec)
		out, err := rec.ToRedis()
		if err != nil {
			return fmt.Errorf("failed to encode study: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}, key)
}
