package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emiliopalmerini/mtune/internal/domain"
)

type TrialRepository struct {
	s *Storage
}

func (r *TrialRepository) Create(ctx context.Context, studyID int64, template *domain.Trial) (*domain.Trial, error) {
	db := r.s.db
	exists, err := db.Exists(ctx, r.s.key("study", studyID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get study: %w", err)
	}
	if exists == 0 {
		return nil, domain.ErrStudyNotFound
	}

	if template == nil {
		now := time.Now().UTC()
		template = domain.NewTrial(domain.TrialRunning)
		template.DatetimeStart = &now
	}

	id, err := db.Incr(ctx, r.s.key("trial", "next_id")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate trial id: %w", err)
	}
	count, err := db.Incr(ctx, r.s.key("study", studyID, "trial_count")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate trial number: %w", err)
	}

	trial := *template
	trial.ID = id
	trial.StudyID = studyID
	trial.Number = int(count - 1)

	rec, err := newTrialRecord(&trial)
	if err != nil {
		return nil, err
	}
	for name, dist := range trial.Distributions {
		if _, ok := trial.Params[name]; ok {
			if err := r.registerDistribution(ctx, studyID, name, dist); err != nil {
				return nil, err
			}
		}
	}
	b, err := rec.ToRedis()
	if err != nil {
		return nil, fmt.Errorf("failed to encode trial: %w", err)
	}

	_, err = db.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.s.key("trial", id), b, 0)
		pipe.ZAdd(ctx, r.s.key("study", studyID, "trials"), redis.Z{Score: float64(trial.Number), Member: id})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create trial: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *TrialRepository) GetByID(ctx context.Context, id int64) (*domain.Trial, error) {
	rec, err := r.load(ctx, r.s.db, id)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.trial()
}

func (r *TrialRepository) GetByNumber(ctx context.Context, studyID int64, number int) (*domain.Trial, error) {
	score := strconv.Itoa(number)
	ids, err := r.s.db.ZRangeByScore(ctx, r.s.key("study", studyID, "trials"), &redis.ZRangeBy{Min: score, Max: score}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get trial by number: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	id, err := strconv.ParseInt(ids[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad trial id %q: %w", ids[0], err)
	}
	return r.GetByID(ctx, id)
}

func (r *TrialRepository) List(ctx context.Context, studyID int64, states ...domain.TrialState) ([]*domain.Trial, error) {
	ids, err := r.s.db.ZRange(ctx, r.s.key("study", studyID, "trials"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list trials: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.s.key("trial", id)
	}
	raw, err := r.s.db.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load trials: %w", err)
	}

	want := map[domain.TrialState]bool{}
	for _, s := range states {
		want[s] = true
	}

	var trials []*domain.Trial
	for _, v := range raw {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var rec trialRecord
		if err := rec.FromRedis([]byte(str)); err != nil {
			return nil, fmt.Errorf("failed to decode trial: %w", err)
		}
		if len(want) > 0 && !want[domain.TrialState(rec.State)] {
			continue
		}
		t, err := rec.trial()
		if err != nil {
			return nil, err
		}
		trials = append(trials, t)
	}
	return trials, nil
}

func (r *TrialRepository) SetParam(ctx context.Context, trialID int64, name string, internal float64, dist domain.Distribution) error {
	return r.update(ctx, trialID, func(rec *trialRecord) error {
		if err := r.registerDistribution(ctx, rec.StudyID, name, dist); err != nil {
			return err
		}
		return rec.setParam(name, internal, dist)
	})
}

// registerDistribution records the first distribution used for a parameter
// name in a study and checks later ones against it.
func (r *TrialRepository) registerDistribution(ctx context.Context, studyID int64, name string, dist domain.Distribution) error {
	distJSON, err := domain.DistributionToJSON(dist)
	if err != nil {
		return err
	}
	key := r.s.key("study", studyID, "param_dist")
	set, err := r.s.db.HSetNX(ctx, key, name, distJSON).Result()
	if err != nil {
		return fmt.Errorf("failed to set parameter distribution: %w", err)
	}
	if set {
		return nil
	}
	previous, err := r.s.db.HGet(ctx, key, name).Result()
	if err != nil {
		return fmt.Errorf("failed to get parameter distribution: %w", err)
	}
	prev, err := domain.DistributionFromJSON(previous)
	if err != nil {
		return err
	}
	return domain.CheckCompatible(prev, dist)
}

var errNotClaimed = errors.New("trial is not waiting")

func (r *TrialRepository) SetStateValues(ctx context.Context, trialID int64, state domain.TrialState, values []float64) (bool, error) {
	err := r.update(ctx, trialID, func(rec *trialRecord) error {
		now := time.Now().UTC()
		if state == domain.TrialRunning {
			if domain.TrialState(rec.State) != domain.TrialWaiting {
				return errNotClaimed
			}
			rec.DatetimeStart = &now
		}
		if state.IsFinished() {
			rec.DatetimeComplete = &now
		}
		rec.State = int(state)
		if values != nil {
			rec.Values = rec.Values[:0]
			for _, v := range values {
				rec.Values = append(rec.Values, formatFloat(v))
			}
		}
		return nil
	})
	if errors.Is(err, errNotClaimed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *TrialRepository) SetIntermediateValue(ctx context.Context, trialID int64, step int, value float64) error {
	return r.update(ctx, trialID, func(rec *trialRecord) error {
		if rec.IntermediateValues == nil {
			rec.IntermediateValues = map[string]string{}
		}
		rec.IntermediateValues[strconv.Itoa(step)] = formatFloat(value)
		return nil
	})
}

func (r *TrialRepository) SetSystemAttr(ctx context.Context, trialID int64, key string, value any) error {
	return r.update(ctx, trialID, func(rec *trialRecord) error {
		if rec.SystemAttrs == nil {
			rec.SystemAttrs = map[string]any{}
		}
		rec.SystemAttrs[key] = value
		return nil
	})
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *TrialRepository) load(ctx context.Context, c getter, id int64) (*trialRecord, error) {
	b, err := c.Get(ctx, r.s.key("trial", id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trial: %w", err)
	}
	var rec trialRecord
	if err := rec.FromRedis(b); err != nil {
		return nil, fmt.Errorf("failed to decode trial: %w", err)
	}
	return &rec, nil
}

// update applies mutate to an unfinished trial inside a watched transaction.
func (r *TrialRepository) update(ctx context.Context, trialID int64, mutate func(*trialRecord) error) error {
	key := r.s.key("trial", trialID)
	return r.s.watch(ctx, func(tx *redis.Tx) error {
		rec, err := r.load(ctx, tx, trialID)
		if err != nil {
			return err
		}
		if rec == nil {
			return domain.ErrTrialNotFound
		}
		if state := domain.TrialState(rec.State); state.IsFinished() {
			return fmt.Errorf("%w: trial #%d is %s", domain.ErrTrialNotUpdatable, rec.Number, state)
		}
		if err := mutate(rec); err != nil {
			return err
		}
		b, err := rec.ToRedis()
		if err != nil {
			return fmt.Errorf("failed to encode trial: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			return nil
		})
		return err
	}, key)
}
