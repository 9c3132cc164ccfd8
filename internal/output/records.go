package output

import (
	"github.com/emiliopalmerini/mtune/internal/domain"
)

func directionLabels(ds []domain.StudyDirection) any {
	if len(ds) == 1 {
		return ds[0].Label()
	}
	labels := make([]string, len(ds))
	for i, d := range ds {
		labels[i] = d.Label()
	}
	return labels
}

// StudyRecord is a row of the studies listing.
func StudyRecord(s *domain.StudySummary) *Record {
	return NewRecord().
		Set("name", s.Study.Name).
		Set("direction", directionLabels(s.Study.Directions)).
		Set("n_trials", s.NTrials).
		Set("datetime_start", s.DatetimeStart).
		Set("user_attrs", nonNil(s.Study.UserAttrs))
}

// TrialRecord is a row of a trials listing. Single-objective studies get a
// value column, multi-objective ones a values column.
func TrialRecord(st *domain.Study, t *domain.Trial) *Record {
	r := NewRecord().Set("number", t.Number)
	if st.IsMultiObjective() {
		var values any
		if t.Values != nil {
			values = t.Values
		}
		r.Set("values", values)
	} else {
		var value any
		if len(t.Values) == 1 {
			value = t.Values[0]
		}
		r.Set("value", value)
	}
	return r.
		Set("datetime_start", t.DatetimeStart).
		Set("datetime_complete", t.DatetimeComplete).
		Set("duration", t.Duration()).
		Set("params", nonNil(t.Params)).
		Set("user_attrs", nonNil(t.UserAttrs)).
		Set("state", t.State)
}

func TrialRecords(st *domain.Study, trials []*domain.Trial) []*Record {
	records := make([]*Record, len(trials))
	for i, t := range trials {
		records[i] = TrialRecord(st, t)
	}
	return records
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
