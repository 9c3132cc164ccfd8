package study

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emiliopalmerini/mtune/internal/domain"
	"github.com/emiliopalmerini/mtune/internal/ports"
	"github.com/emiliopalmerini/mtune/internal/sampler"
)

// FixedParamsKey is the trial system attribute holding enqueued parameters.
const FixedParamsKey = "fixed_params"

// Service implements the study and trial operations on top of a storage.
type Service struct {
	storage ports.Storage
	metrics ports.MetricsExporter
	logger  *zap.Logger
}

// NewService creates a new study service. metrics and logger may be nil.
func NewService(storage ports.Storage, metrics ports.MetricsExporter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{storage: storage, metrics: metrics, logger: logger}
}

// Storage returns the underlying storage.
func (s *Service) Storage() ports.Storage {
	return s.storage
}

// CreateStudy creates a study. An empty name gets a generated one. With
// skipIfExists an existing study of the same name is returned instead of
// failing with domain.ErrDuplicatedStudy.
func (s *Service) CreateStudy(ctx context.Context, name string, directions []domain.StudyDirection, skipIfExists bool) (*domain.Study, error) {
	if name == "" {
		name = domain.DefaultStudyNamePrefix + uuid.NewString()
	}
	if len(directions) == 0 {
		directions = []domain.StudyDirection{domain.DirectionMinimize}
	}

	created, err := s.storage.Studies().Create(ctx, name, directions)
	if err == nil {
		s.logger.Info("A new study created", zap.String("name", name))
		return created, nil
	}
	if !errors.Is(err, domain.ErrDuplicatedStudy) || !skipIfExists {
		return nil, err
	}

	s.logger.Info("Using an existing study instead of creating a new one", zap.String("name", name))
	return s.LoadStudy(ctx, name)
}

// LoadStudy returns the study called name or domain.ErrStudyNotFound.
func (s *Service) LoadStudy(ctx context.Context, name string) (*domain.Study, error) {
	st, err := s.storage.Studies().GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load study: %w", err)
	}
	if st == nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrStudyNotFound, name)
	}
	return st, nil
}

func (s *Service) DeleteStudy(ctx context.Context, name string) error {
	st, err := s.LoadStudy(ctx, name)
	if err != nil {
		return err
	}
	if err := s.storage.Studies().Delete(ctx, st.ID); err != nil {
		return fmt.Errorf("failed to delete study: %w", err)
	}
	s.logger.Info("Deleted study", zap.String("name", name))
	return nil
}

func (s *Service) SetStudyUserAttr(ctx context.Context, name, key string, value any) error {
	st, err := s.LoadStudy(ctx, name)
	if err != nil {
		return err
	}
	if err := s.storage.Studies().SetUserAttr(ctx, st.ID, key, value); err != nil {
		return fmt.Errorf("failed to set user attribute: %w", err)
	}
	s.logger.Info("Attribute successfully written", zap.String("study", name), zap.String("key", key))
	return nil
}

// StudyNames returns all study names in creation order.
func (s *Service) StudyNames(ctx context.Context) ([]string, error) {
	summaries, err := s.Summaries(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(summaries))
	for i, sum := range summaries {
		names[i] = sum.Study.Name
	}
	return names, nil
}

func (s *Service) Summaries(ctx context.Context) ([]*domain.StudySummary, error) {
	summaries, err := s.storage.Studies().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list studies: %w", err)
	}
	return summaries, nil
}

// Trials returns the study and its trials ordered by number.
func (s *Service) Trials(ctx context.Context, name string, states ...domain.TrialState) (*domain.Study, []*domain.Trial, error) {
	st, err := s.LoadStudy(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	trials, err := s.storage.Trials().List(ctx, st.ID, states...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list trials: %w", err)
	}
	return st, trials, nil
}

// BestTrial returns the best complete trial of a single-objective study.
func (s *Service) BestTrial(ctx context.Context, name string) (*domain.Study, *domain.Trial, error) {
	st, trials, err := s.Trials(ctx, name, domain.TrialComplete)
	if err != nil {
		return nil, nil, err
	}
	direction, err := st.Direction()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: use best-trials instead", err)
	}
	best, err := domain.BestTrial(trials, direction)
	if err != nil {
		return nil, nil, err
	}
	return st, best, nil
}

// BestTrials returns the Pareto front of the study's complete trials.
func (s *Service) BestTrials(ctx context.Context, name string) (*domain.Study, []*domain.Trial, error) {
	st, trials, err := s.Trials(ctx, name, domain.TrialComplete)
	if err != nil {
		return nil, nil, err
	}
	return st, domain.ParetoFront(trials, st.Directions), nil
}

// EnqueueTrial adds a WAITING trial whose params are used by the next Ask
// instead of sampled values.
func (s *Service) EnqueueTrial(ctx context.Context, name string, params map[string]any, userAttrs map[string]any) (*domain.Trial, error) {
	st, err := s.LoadStudy(ctx, name)
	if err != nil {
		return nil, err
	}
	template := domain.NewTrial(domain.TrialWaiting)
	template.SystemAttrs[FixedParamsKey] = params
	for k, v := range userAttrs {
		template.UserAttrs[k] = v
	}
	trial, err := s.storage.Trials().Create(ctx, st.ID, template)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue trial: %w", err)
	}
	s.logger.Info("Enqueued trial", zap.String("study", name), zap.Int("number", trial.Number))
	return trial, nil
}

// AskRequest describes a call to Ask.
type AskRequest struct {
	StudyName string
	// Directions, when set, must match the directions of an existing study.
	Directions  []domain.StudyDirection
	Sampler     sampler.Sampler
	SearchSpace domain.SearchSpace
}

// Ask creates the study if needed, starts a trial and samples the search
// space. A WAITING trial is claimed before a new one is created.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*domain.Study, *domain.Trial, error) {
	st, err := s.CreateStudy(ctx, req.StudyName, req.Directions, true)
	if err != nil {
		return nil, nil, err
	}
	if len(req.Directions) > 0 && !st.SameDirections(req.Directions) {
		return nil, nil, fmt.Errorf("cannot overwrite study direction from %v to %v", st.Directions, req.Directions)
	}

	smp := req.Sampler
	if smp == nil {
		smp = sampler.NewRandomSampler(nil)
	}

	trial, err := s.startTrial(ctx, st)
	if err != nil {
		return nil, nil, err
	}

	fixed, _ := trial.SystemAttrs[FixedParamsKey].(map[string]any)
	for _, name := range req.SearchSpace.Names() {
		dist := req.SearchSpace[name]
		var internal float64
		if v, ok := fixed[name]; ok {
			internal, err = dist.ToInternal(v)
			if err != nil {
				return nil, nil, fmt.Errorf("fixed parameter %q: %w", name, err)
			}
			if !dist.Contains(internal) {
				s.logger.Warn("Fixed parameter is out of the range of its distribution",
					zap.String("param", name), zap.Any("value", v))
			}
		} else {
			internal = smp.Sample(name, dist)
		}
		if err := s.storage.Trials().SetParam(ctx, trial.ID, name, internal, dist); err != nil {
			return nil, nil, fmt.Errorf("failed to set parameter %q: %w", name, err)
		}
	}

	trial, err = s.storage.Trials().GetByID(ctx, trial.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reload trial: %w", err)
	}
	s.logger.Info("Asked trial", zap.String("study", st.Name), zap.Int("number", trial.Number), zap.Any("params", trial.Params))
	return st, trial, nil
}

func (s *Service) startTrial(ctx context.Context, st *domain.Study) (*domain.Trial, error) {
	waiting, err := s.storage.Trials().List(ctx, st.ID, domain.TrialWaiting)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting trials: %w", err)
	}
	sort.Slice(waiting, func(i, j int) bool { return waiting[i].Number < waiting[j].Number })
	for _, w := range waiting {
		claimed, err := s.storage.Trials().SetStateValues(ctx, w.ID, domain.TrialRunning, nil)
		if err != nil {
			if errors.Is(err, domain.ErrTrialNotUpdatable) {
				continue
			}
			return nil, fmt.Errorf("failed to claim waiting trial: %w", err)
		}
		if claimed {
			return s.storage.Trials().GetByID(ctx, w.ID)
		}
	}

	trial, err := s.storage.Trials().Create(ctx, st.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create trial: %w", err)
	}
	return trial, nil
}

// Report stores an intermediate objective value of a running trial.
func (s *Service) Report(ctx context.Context, name string, number, step int, value float64) error {
	st, err := s.LoadStudy(ctx, name)
	if err != nil {
		return err
	}
	trial, err := s.storage.Trials().GetByNumber(ctx, st.ID, number)
	if err != nil {
		return fmt.Errorf("failed to get trial: %w", err)
	}
	if trial == nil {
		return fmt.Errorf("%w: trial #%d in study %q", domain.ErrTrialNotFound, number, st.Name)
	}
	if err := s.storage.Trials().SetIntermediateValue(ctx, trial.ID, step, value); err != nil {
		return fmt.Errorf("failed to report intermediate value: %w", err)
	}
	s.logger.Debug("Reported intermediate value",
		zap.Int("number", number), zap.Int("step", step), zap.Float64("value", value))
	return nil
}

// TellRequest describes a call to Tell.
type TellRequest struct {
	StudyName   string
	TrialNumber int
	Values      []float64
	// State nil means COMPLETE when Values is set and FAIL otherwise.
	State          *domain.TrialState
	SkipIfFinished bool
	// FailReason is kept as the fail_reason system attribute when the trial
	// ends up FAIL.
	FailReason string
}

// FailReasonAttr is the system attribute explaining why a trial failed.
const FailReasonAttr = "fail_reason"

// Tell finishes a trial.
func (s *Service) Tell(ctx context.Context, req TellRequest) (*domain.Trial, error) {
	st, err := s.LoadStudy(ctx, req.StudyName)
	if err != nil {
		return nil, err
	}
	trial, err := s.storage.Trials().GetByNumber(ctx, st.ID, req.TrialNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get trial: %w", err)
	}
	if trial == nil {
		return nil, fmt.Errorf("%w: trial #%d in study %q", domain.ErrTrialNotFound, req.TrialNumber, st.Name)
	}
	if trial.State.IsFinished() {
		if req.SkipIfFinished {
			s.logger.Info("Skipped telling trial since it was already finished",
				zap.Int("number", trial.Number),
				zap.Float64s("values", trial.Values),
				zap.Stringer("state", trial.State))
			return trial, nil
		}
		return nil, fmt.Errorf("%w: trial #%d is %s", domain.ErrTrialNotUpdatable, trial.Number, trial.State)
	}

	state, values, err := domain.ResolveTellState(req.State, req.Values, trial, len(st.Directions))
	reason := req.FailReason
	if err != nil {
		if state != domain.TrialFail {
			return nil, err
		}
		s.logger.Warn("Trial failed", zap.Int("number", trial.Number), zap.Error(err))
		reason = err.Error()
	}
	if state == domain.TrialFail && reason != "" {
		if err := s.storage.Trials().SetSystemAttr(ctx, trial.ID, FailReasonAttr, reason); err != nil {
			return nil, fmt.Errorf("failed to set fail reason: %w", err)
		}
	}

	if _, err := s.storage.Trials().SetStateValues(ctx, trial.ID, state, values); err != nil {
		return nil, fmt.Errorf("failed to finish trial: %w", err)
	}

	trial, err = s.storage.Trials().GetByID(ctx, trial.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload trial: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordTrialFinished(ctx, st, trial)
	}
	s.logger.Info("Told trial",
		zap.Int("number", trial.Number),
		zap.Float64s("values", trial.Values),
		zap.Stringer("state", trial.State))
	return trial, nil
}
