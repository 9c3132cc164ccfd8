package redisstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/emiliopalmerini/mtune/internal/domain"
)

// studyRecord is the JSON document stored under study:<id>.
type studyRecord struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Directions  []string       `json:"directions"`
	UserAttrs   map[string]any `json:"user_attrs"`
	SystemAttrs map[string]any `json:"system_attrs"`
}

func newStudyRecord(s *domain.Study) *studyRecord {
	rec := &studyRecord{
		ID:          s.ID,
		Name:        s.Name,
		UserAttrs:   s.UserAttrs,
		SystemAttrs: s.SystemAttrs,
	}
	for _, d := range s.Directions {
		rec.Directions = append(rec.Directions, string(d))
	}
	return rec
}

func (r *studyRecord) ToRedis() ([]byte, error) {
	return json.Marshal(r)
}

func (r *studyRecord) FromRedis(b []byte) error {
	return json.Unmarshal(b, r)
}

func (r *studyRecord) study() *domain.Study {
	s := &domain.Study{
		ID:          r.ID,
		Name:        r.Name,
		UserAttrs:   r.UserAttrs,
		SystemAttrs: r.SystemAttrs,
	}
	for _, d := range r.Directions {
		s.Directions = append(s.Directions, domain.StudyDirection(d))
	}
	if s.UserAttrs == nil {
		s.UserAttrs = map[string]any{}
	}
	if s.SystemAttrs == nil {
		s.SystemAttrs = map[string]any{}
	}
	return s
}

type paramRecord struct {
	Internal     string          `json:"internal"`
	Distribution json.RawMessage `json:"distribution"`
}

// trialRecord is the JSON document stored under trial:<id>. Floats are kept
// as strings so infinities and NaN survive the round trip.
type trialRecord struct {
	ID                 int64                  `json:"id"`
	StudyID            int64                  `json:"study_id"`
	Number             int                    `json:"number"`
	State              int                    `json:"state"`
	Values             []string               `json:"values,omitempty"`
	DatetimeStart      *time.Time             `json:"datetime_start,omitempty"`
	DatetimeComplete   *time.Time             `json:"datetime_complete,omitempty"`
	Params             map[string]paramRecord `json:"params,omitempty"`
	IntermediateValues map[string]string      `json:"intermediate_values,omitempty"`
	UserAttrs          map[string]any         `json:"user_attrs,omitempty"`
	SystemAttrs        map[string]any         `json:"system_attrs,omitempty"`
}

func (r *trialRecord) ToRedis() ([]byte, error) {
	return json.Marshal(r)
}

func (r *trialRecord) FromRedis(b []byte) error {
	return json.Unmarshal(b, r)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func newTrialRecord(t *domain.Trial) (*trialRecord, error) {
	rec := &trialRecord{
		ID:                 t.ID,
		StudyID:            t.StudyID,
		Number:             t.Number,
		State:              int(t.State),
		DatetimeStart:      t.DatetimeStart,
		DatetimeComplete:   t.DatetimeComplete,
		Params:             map[string]paramRecord{},
		IntermediateValues: map[string]string{},
		UserAttrs:          t.UserAttrs,
		SystemAttrs:        t.SystemAttrs,
	}
	for _, v := range t.Values {
		rec.Values = append(rec.Values, formatFloat(v))
	}
	for name, external := range t.Params {
		dist, ok := t.Distributions[name]
		if !ok {
			return nil, fmt.Errorf("%w: no distribution for parameter %q", domain.ErrInvalidDistribution, name)
		}
		internal, err := dist.ToInternal(external)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		if err := rec.setParam(name, internal, dist); err != nil {
			return nil, err
		}
	}
	for step, v := range t.IntermediateValues {
		rec.IntermediateValues[strconv.Itoa(step)] = formatFloat(v)
	}
	return rec, nil
}

func (r *trialRecord) setParam(name string, internal float64, dist domain.Distribution) error {
	distJSON, err := domain.DistributionToJSON(dist)
	if err != nil {
		return err
	}
	if r.Params == nil {
		r.Params = map[string]paramRecord{}
	}
	r.Params[name] = paramRecord{Internal: formatFloat(internal), Distribution: json.RawMessage(distJSON)}
	return nil
}

func (r *trialRecord) trial() (*domain.Trial, error) {
	t := domain.NewTrial(domain.TrialState(r.State))
	t.ID = r.ID
	t.StudyID = r.StudyID
	t.Number = r.Number
	t.DatetimeStart = r.DatetimeStart
	t.DatetimeComplete = r.DatetimeComplete

	for _, s := range r.Values {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("trial %d: bad value %q: %w", r.Number, s, err)
		}
		t.Values = append(t.Values, v)
	}
	for name, p := range r.Params {
		dist, err := domain.DistributionFromJSON(string(p.Distribution))
		if err != nil {
			return nil, fmt.Errorf("trial %d parameter %q: %w", r.Number, name, err)
		}
		internal, err := strconv.ParseFloat(p.Internal, 64)
		if err != nil {
			return nil, fmt.Errorf("trial %d parameter %q: %w", r.Number, name, err)
		}
		t.Distributions[name] = dist
		t.Params[name] = dist.ToExternal(internal)
	}
	for step, s := range r.IntermediateValues {
		n, err := strconv.Atoi(step)
		if err != nil {
			return nil, fmt.Errorf("trial %d: bad step %q: %w", r.Number, step, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("trial %d: bad intermediate value %q: %w", r.Number, s, err)
		}
		t.IntermediateValues[n] = v
	}
	for k, v := range r.UserAttrs {
		t.UserAttrs[k] = v
	}
	for k, v := range r.SystemAttrs {
		t.SystemAttrs[k] = v
	}
	return t, nil
}
