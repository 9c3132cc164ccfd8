package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

type TrialState int

const (
	TrialRunning TrialState = iota
	TrialComplete
	TrialPruned
	TrialFail
	TrialWaiting
)

var trialStateNames = map[TrialState]string{
	TrialRunning:  "RUNNING",
	TrialComplete: "COMPLETE",
	TrialPruned:   "PRUNED",
	TrialFail:     "FAIL",
	TrialWaiting:  "WAITING",
}

func (s TrialState) String() string {
	if name, ok := trialStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TrialState(%d)", int(s))
}

// IsFinished reports whether the state is terminal.
func (s TrialState) IsFinished() bool {
	return s == TrialComplete || s == TrialPruned || s == TrialFail
}

// ParseTrialState accepts state names in any case.
func ParseTrialState(s string) (TrialState, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for state, name := range trialStateNames {
		if name == upper {
			return state, nil
		}
	}
	return 0, fmt.Errorf("invalid trial state %q", s)
}

type Trial struct {
	ID                 int64
	StudyID            int64
	Number             int
	State              TrialState
	Values             []float64
	DatetimeStart      *time.Time
	DatetimeComplete   *time.Time
	Params             map[string]any
	Distributions      map[string]Distribution
	UserAttrs          map[string]any
	SystemAttrs        map[string]any
	IntermediateValues map[int]float64
}

// NewTrial returns an empty trial with initialized maps.
func NewTrial(state TrialState) *Trial {
	return &Trial{
		State:              state,
		Params:             map[string]any{},
		Distributions:      map[string]Distribution{},
		UserAttrs:          map[string]any{},
		SystemAttrs:        map[string]any{},
		IntermediateValues: map[int]float64{},
	}
}

// Duration is nil until the trial has both start and completion times.
func (t *Trial) Duration() *time.Duration {
	if t.DatetimeStart == nil || t.DatetimeComplete == nil {
		return nil
	}
	d := t.DatetimeComplete.Sub(*t.DatetimeStart)
	return &d
}

// LastIntermediateValue returns the value reported at the highest step.
func (t *Trial) LastIntermediateValue() (float64, bool) {
	if len(t.IntermediateValues) == 0 {
		return 0, false
	}
	steps := make([]int, 0, len(t.IntermediateValues))
	for step := range t.IntermediateValues {
		steps = append(steps, step)
	}
	sort.Ints(steps)
	return t.IntermediateValues[steps[len(steps)-1]], true
}

// ParamNames returns parameter names in lexical order.
func (t *Trial) ParamNames() []string {
	names := make([]string, 0, len(t.Params))
	for name := range t.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateValues checks values reported for a COMPLETE trial.
func ValidateValues(values []float64, nObjectives int) error {
	if len(values) != nObjectives {
		return fmt.Errorf("%w: the number of values (%d) does not match the number of objectives (%d)",
			ErrInvalidValues, len(values), nObjectives)
	}
	for _, v := range values {
		if math.IsNaN(v) {
			return fmt.Errorf("%w: NaN is not acceptable", ErrInvalidValues)
		}
	}
	return nil
}

// ResolveTellState decides the final state and values of a told trial.
// A nil state means COMPLETE when values are present and FAIL otherwise.
func ResolveTellState(state *TrialState, values []float64, trial *Trial, nObjectives int) (TrialState, []float64, error) {
	final := TrialFail
	if state != nil {
		final = *state
	} else if len(values) > 0 {
		final = TrialComplete
	}

	switch final {
	case TrialComplete:
		if len(values) == 0 {
			return 0, nil, fmt.Errorf("%w: no values were told for a COMPLETE trial", ErrInvalidValues)
		}
		if err := ValidateValues(values, nObjectives); err != nil {
			return TrialFail, nil, err
		}
		return TrialComplete, values, nil
	case TrialPruned:
		if len(values) > 0 {
			if err := ValidateValues(values, nObjectives); err != nil {
				return TrialPruned, nil, nil
			}
			return TrialPruned, values, nil
		}
		if nObjectives == 1 {
			if last, ok := trial.LastIntermediateValue(); ok && !math.IsNaN(last) {
				return TrialPruned, []float64{last}, nil
			}
		}
		return TrialPruned, nil, nil
	case TrialFail:
		return TrialFail, nil, nil
	}
	return 0, nil, fmt.Errorf("trial state must be COMPLETE, PRUNED or FAIL, got %s", final)
}
