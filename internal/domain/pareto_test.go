package domain

import (
	"errors"
	"testing"
)

func completeTrial(number int, values ...float64) *Trial {
	t := NewTrial(TrialComplete)
	t.Number = number
	t.Values = values
	return t
}

func TestDominates(t *testing.T) {
	minMin := []StudyDirection{DirectionMinimize, DirectionMinimize}
	minMax := []StudyDirection{DirectionMinimize, DirectionMaximize}

	tests := []struct {
		name       string
		a, b       []float64
		directions []StudyDirection
		want       bool
	}{
		{"strictly better", []float64{1, 1}, []float64{2, 2}, minMin, true},
		{"better in one", []float64{1, 2}, []float64{2, 2}, minMin, true},
		{"equal", []float64{1, 1}, []float64{1, 1}, minMin, false},
		{"trade off", []float64{1, 3}, []float64{2, 2}, minMin, false},
		{"maximize flips", []float64{1, 5}, []float64{1, 3}, minMax, true},
		{"length mismatch", []float64{1}, []float64{1, 2}, minMin, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Dominates(tt.a, tt.b, tt.directions); got != tt.want {
				t.Errorf("Dominates(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestParetoFront(t *testing.T) {
	running := NewTrial(TrialRunning)
	running.Number = 4
	trials := []*Trial{
		completeTrial(0, 1, 4),
		completeTrial(1, 2, 2),
		completeTrial(2, 3, 3),
		completeTrial(3, 4, 1),
		running,
	}

	front := ParetoFront(trials, []StudyDirection{DirectionMinimize, DirectionMinimize})

	var numbers []int
	for _, tr := range front {
		numbers = append(numbers, tr.Number)
	}
	want := []int{0, 1, 3}
	if len(numbers) != len(want) {
		t.Fatalf("front = %v, want %v", numbers, want)
	}
	for i := range want {
		if numbers[i] != want[i] {
			t.Errorf("front = %v, want %v", numbers, want)
		}
	}
}

func TestBestTrial(t *testing.T) {
	failed := NewTrial(TrialFail)
	failed.Number = 0
	trials := []*Trial{
		failed,
		completeTrial(1, 0.5),
		completeTrial(2, 0.2),
		completeTrial(3, 0.2),
		completeTrial(4, 0.9),
	}

	best, err := BestTrial(trials, DirectionMinimize)
	if err != nil {
		t.Fatalf("BestTrial: %v", err)
	}
	if best.Number != 2 {
		t.Errorf("minimize best = %d, want 2", best.Number)
	}

	best, err = BestTrial(trials, DirectionMaximize)
	if err != nil {
		t.Fatalf("BestTrial: %v", err)
	}
	if best.Number != 4 {
		t.Errorf("maximize best = %d, want 4", best.Number)
	}

	if _, err := BestTrial([]*Trial{failed}, DirectionMinimize); !errors.Is(err, ErrNoCompletedTrials) {
		t.Errorf("expected ErrNoCompletedTrials, got %v", err)
	}
}
