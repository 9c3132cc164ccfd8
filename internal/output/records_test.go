package output

import (
	"testing"
	"time"

	"github.com/go-test/deep"

	"github.com/emiliopalmerini/mtune/internal/domain"
)

func TestStudyRecord_Directions(t *testing.T) {
	single := StudyRecord(&domain.StudySummary{
		Study: &domain.Study{Name: "s", Directions: []domain.StudyDirection{domain.DirectionMinimize}},
	})
	if diff := deep.Equal(single.Keys(), []string{"name", "direction", "n_trials", "datetime_start", "user_attrs"}); diff != nil {
		t.Error(diff)
	}
	if got, _ := single.Get("direction"); got != "MINIMIZE" {
		t.Errorf("direction = %v", got)
	}
	if got, _ := single.Get("user_attrs"); got == nil {
		t.Error("user_attrs is nil, want an empty map")
	}

	multi := StudyRecord(&domain.StudySummary{
		Study: &domain.Study{Name: "m", Directions: []domain.StudyDirection{domain.DirectionMinimize, domain.DirectionMaximize}},
	})
	got, _ := multi.Get("direction")
	if diff := deep.Equal(got, []string{"MINIMIZE", "MAXIMIZE"}); diff != nil {
		t.Error(diff)
	}
}

func TestTrialRecord(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	complete := start.Add(90 * time.Second)
	trial := domain.NewTrial(domain.TrialComplete)
	trial.Number = 2
	trial.Values = []float64{0.5}
	trial.DatetimeStart = &start
	trial.DatetimeComplete = &complete
	trial.Params["x"] = 1.0

	single := &domain.Study{Directions: []domain.StudyDirection{domain.DirectionMinimize}}
	r := TrialRecord(single, trial)
	want := []string{"number", "value", "datetime_start", "datetime_complete", "duration", "params", "user_attrs", "state"}
	if diff := deep.Equal(r.Keys(), want); diff != nil {
		t.Error(diff)
	}
	if v, _ := r.Get("value"); v != 0.5 {
		t.Errorf("value = %v", v)
	}
	if d, _ := r.Get("duration"); *d.(*time.Duration) != 90*time.Second {
		t.Errorf("duration = %v", d)
	}

	multi := &domain.Study{Directions: []domain.StudyDirection{domain.DirectionMinimize, domain.DirectionMaximize}}
	running := domain.NewTrial(domain.TrialRunning)
	r = TrialRecord(multi, running)
	if _, ok := r.Get("value"); ok {
		t.Error("multi-objective record has a value column")
	}
	if v, ok := r.Get("values"); !ok || v != nil {
		t.Errorf("values = %v, %v; want nil", v, ok)
	}
}

func TestTrialRecords(t *testing.T) {
	st := &domain.Study{Directions: []domain.StudyDirection{domain.DirectionMaximize}}
	trials := []*domain.Trial{domain.NewTrial(domain.TrialFail), domain.NewTrial(domain.TrialWaiting)}
	trials[1].Number = 1

	records := TrialRecords(st, trials)
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	if n, _ := records[1].Get("number"); n != 1 {
		t.Errorf("number = %v", n)
	}
	if s, _ := records[0].Get("state"); s != domain.TrialFail {
		t.Errorf("state = %v", s)
	}
}
