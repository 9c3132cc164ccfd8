package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseTrialState(t *testing.T) {
	tests := []struct {
		in      string
		want    TrialState
		wantErr bool
	}{
		{"complete", TrialComplete, false},
		{"PRUNED", TrialPruned, false},
		{" Fail ", TrialFail, false},
		{"waiting", TrialWaiting, false},
		{"running", TrialRunning, false},
		{"done", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTrialState(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTrialState(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseTrialState(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTrialState_IsFinished(t *testing.T) {
	finished := map[TrialState]bool{
		TrialRunning:  false,
		TrialWaiting:  false,
		TrialComplete: true,
		TrialPruned:   true,
		TrialFail:     true,
	}
	for state, want := range finished {
		if got := state.IsFinished(); got != want {
			t.Errorf("%s.IsFinished() = %v, want %v", state, got, want)
		}
	}
}

func TestTrial_Duration(t *testing.T) {
	trial := NewTrial(TrialRunning)
	if trial.Duration() != nil {
		t.Fatal("expected nil duration for unfinished trial")
	}

	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	trial.DatetimeStart = &start
	trial.DatetimeComplete = &end

	if got := trial.Duration(); got == nil || *got != 90*time.Second {
		t.Errorf("Duration() = %v, want 1m30s", got)
	}
}

func TestTrial_LastIntermediateValue(t *testing.T) {
	trial := NewTrial(TrialRunning)
	if _, ok := trial.LastIntermediateValue(); ok {
		t.Fatal("expected no intermediate value")
	}

	trial.IntermediateValues[3] = 0.3
	trial.IntermediateValues[10] = 0.1
	trial.IntermediateValues[7] = 0.2

	got, ok := trial.LastIntermediateValue()
	if !ok || got != 0.1 {
		t.Errorf("LastIntermediateValue() = %v, %v; want 0.1, true", got, ok)
	}
}

func TestResolveTellState(t *testing.T) {
	complete := TrialComplete
	pruned := TrialPruned
	fail := TrialFail
	waiting := TrialWaiting

	withIntermediate := NewTrial(TrialRunning)
	withIntermediate.IntermediateValues[1] = 0.5
	withIntermediate.IntermediateValues[2] = 0.25

	tests := []struct {
		name        string
		state       *TrialState
		values      []float64
		trial       *Trial
		nObjectives int
		wantState   TrialState
		wantValues  []float64
		wantErr     bool
	}{
		{"implicit complete", nil, []float64{1.5}, NewTrial(TrialRunning), 1, TrialComplete, []float64{1.5}, false},
		{"implicit fail", nil, nil, NewTrial(TrialRunning), 1, TrialFail, nil, false},
		{"complete without values", &complete, nil, NewTrial(TrialRunning), 1, TrialRunning, nil, true},
		{"complete with wrong count", &complete, []float64{1, 2}, NewTrial(TrialRunning), 1, TrialFail, nil, true},
		{"complete with nan", &complete, []float64{math.NaN()}, NewTrial(TrialRunning), 1, TrialFail, nil, true},
		{"complete with inf", &complete, []float64{math.Inf(1)}, NewTrial(TrialRunning), 1, TrialComplete, []float64{math.Inf(1)}, false},
		{"multi objective complete", &complete, []float64{1, 2}, NewTrial(TrialRunning), 2, TrialComplete, []float64{1, 2}, false},
		{"pruned uses last intermediate", &pruned, nil, withIntermediate, 1, TrialPruned, []float64{0.25}, false},
		{"pruned multi objective ignores intermediate", &pruned, nil, withIntermediate, 2, TrialPruned, nil, false},
		{"pruned with explicit value", &pruned, []float64{0.7}, withIntermediate, 1, TrialPruned, []float64{0.7}, false},
		{"fail drops values", &fail, []float64{1}, NewTrial(TrialRunning), 1, TrialFail, nil, false},
		{"waiting is rejected", &waiting, nil, NewTrial(TrialRunning), 1, TrialRunning, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, values, err := ResolveTellState(tt.state, tt.values, tt.trial, tt.nObjectives)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if state != tt.wantState {
				t.Errorf("state = %s, want %s", state, tt.wantState)
			}
			if len(values) != len(tt.wantValues) {
				t.Fatalf("values = %v, want %v", values, tt.wantValues)
			}
			for i := range values {
				if values[i] != tt.wantValues[i] {
					t.Errorf("values[%d] = %v, want %v", i, values[i], tt.wantValues[i])
				}
			}
		})
	}
}

func TestValidateValues_WrapsSentinel(t *testing.T) {
	err := ValidateValues([]float64{math.NaN()}, 1)
	if !errors.Is(err, ErrInvalidValues) {
		t.Errorf("expected ErrInvalidValues, got %v", err)
	}
}
