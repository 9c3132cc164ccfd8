package templates

import (
	"time"
)

// StudyRow is a line of the studies page.
type StudyRow struct {
	Name          string
	Directions    []string
	NTrials       int
	DatetimeStart *time.Time
	UserAttrs     map[string]any
}

// TrialRow is a line of a study page.
type TrialRow struct {
	Number           int
	State            string
	Values           []float64
	Params           map[string]any
	DatetimeStart    *time.Time
	DatetimeComplete *time.Time
	Duration         *time.Duration
	Best             bool
}

// StudyDetail is the data of a study page.
type StudyDetail struct {
	Name       string
	Directions []string
	UserAttrs  map[string]any
	Trials     []TrialRow
	States     map[string]int
}
