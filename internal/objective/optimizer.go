package objective

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/emiliopalmerini/mtune/internal/domain"
	"github.com/emiliopalmerini/mtune/internal/ports"
	"github.com/emiliopalmerini/mtune/internal/sampler"
	"github.com/emiliopalmerini/mtune/internal/study"
)

// Options controls an optimization run. NTrials and Timeout zero mean no
// limit; with both unset the run lasts until ctx is cancelled. When Archive is
// set every objective output is kept there.
type Options struct {
	StudyName   string
	Directions  []domain.StudyDirection
	SearchSpace domain.SearchSpace
	Sampler     sampler.Sampler
	NTrials     int
	Timeout     time.Duration
	NJobs       int
	Archive     ports.OutputArchive
}

// Summary counts the trials finished by a run, per state.
type Summary struct {
	StudyName string
	States    map[domain.TrialState]int
}

// Total is the number of trials the run finished.
func (s *Summary) Total() int {
	n := 0
	for _, c := range s.States {
		n += c
	}
	return n
}

// Optimizer drives the ask, run, tell loop.
type Optimizer struct {
	service *study.Service
	runner  Runner
	logger  *zap.Logger
	now     func() time.Time
}

func NewOptimizer(service *study.Service, runner Runner, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{service: service, runner: runner, logger: logger, now: time.Now}
}

// Optimize runs trials until NTrials have been started, the timeout passes or
// ctx is cancelled. Trials still running when ctx is cancelled are failed.
func (o *Optimizer) Optimize(ctx context.Context, opts Options) (*Summary, error) {
	st, err := o.service.CreateStudy(ctx, opts.StudyName, opts.Directions, true)
	if err != nil {
		return nil, err
	}
	if len(opts.Directions) > 0 && !st.SameDirections(opts.Directions) {
		return nil, fmt.Errorf("cannot overwrite study direction from %v to %v", st.Directions, opts.Directions)
	}

	smp := opts.Sampler
	if smp == nil {
		smp = sampler.NewRandomSampler(nil)
	}
	nJobs := opts.NJobs
	if nJobs <= 0 {
		nJobs = 1
	}
	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = o.now().Add(opts.Timeout)
	}

	summary := &Summary{StudyName: st.Name, States: map[domain.TrialState]int{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(nJobs)

	for i := 0; opts.NTrials == 0 || i < opts.NTrials; i++ {
		if gctx.Err() != nil {
			break
		}
		if !deadline.IsZero() && !o.now().Before(deadline) {
			o.logger.Info("Optimization timeout reached", zap.Duration("timeout", opts.Timeout))
			break
		}
		g.Go(func() error {
			state, err := o.runTrial(gctx, st, smp, opts)
			if err != nil {
				return err
			}
			mu.Lock()
			summary.States[state]++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (o *Optimizer) runTrial(ctx context.Context, st *domain.Study, smp sampler.Sampler, opts Options) (domain.TrialState, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	// A trial half-created by a cancelled ask would stay RUNNING.
	_, trial, err := o.service.Ask(context.WithoutCancel(ctx), study.AskRequest{
		StudyName:   st.Name,
		Sampler:     smp,
		SearchSpace: opts.SearchSpace,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to ask trial: %w", err)
	}

	res := o.runner.Run(ctx, st.Name, trial)
	if opts.Archive != nil {
		path, err := opts.Archive.Store(context.WithoutCancel(ctx), st.Name, trial.Number, res.Output)
		if err != nil {
			o.logger.Warn("Failed to keep objective output", zap.Int("number", trial.Number), zap.Error(err))
		} else {
			o.logger.Debug("Kept objective output", zap.Int("number", trial.Number), zap.String("path", path))
		}
	}
	if res.State == domain.TrialComplete && len(res.Values) != len(st.Directions) {
		res.Err = fmt.Errorf("objective printed %d values, the study has %d objectives", len(res.Values), len(st.Directions))
		res.State = domain.TrialFail
		res.Values = nil
	}
	var reason string
	if res.Err != nil {
		o.logger.Warn("Trial failed", zap.Int("number", trial.Number), zap.Error(res.Err))
		reason = res.Err.Error()
	}

	tctx := context.WithoutCancel(ctx)
	for _, step := range slices.Sorted(maps.Keys(res.Intermediate)) {
		if err := o.service.Report(tctx, st.Name, trial.Number, step, res.Intermediate[step]); err != nil {
			o.logger.Warn("Failed to report intermediate value",
				zap.Int("number", trial.Number), zap.Int("step", step), zap.Error(err))
		}
	}

	state := res.State
	told, err := o.service.Tell(tctx, study.TellRequest{
		StudyName:   st.Name,
		TrialNumber: trial.Number,
		Values:      res.Values,
		State:       &state,
		FailReason:  reason,
	})
	if err != nil {
		if errors.Is(err, domain.ErrTrialNotUpdatable) {
			return state, nil
		}
		return 0, fmt.Errorf("failed to tell trial #%d: %w", trial.Number, err)
	}
	return told.State, nil
}
