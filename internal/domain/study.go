package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultStudyNamePrefix prefixes generated names of studies created without one.
const DefaultStudyNamePrefix = "no-name-"

type StudyDirection string

const (
	DirectionMinimize StudyDirection = "minimize"
	DirectionMaximize StudyDirection = "maximize"
)

// ParseStudyDirection accepts "minimize" or "maximize" in any case.
func ParseStudyDirection(s string) (StudyDirection, error) {
	switch StudyDirection(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionMinimize:
		return DirectionMinimize, nil
	case DirectionMaximize:
		return DirectionMaximize, nil
	}
	return "", fmt.Errorf("invalid direction %q: must be either 'minimize' or 'maximize'", s)
}

// ParseStudyDirections parses every entry of ds. An empty input yields a
// single minimize direction.
func ParseStudyDirections(ds []string) ([]StudyDirection, error) {
	if len(ds) == 0 {
		return []StudyDirection{DirectionMinimize}, nil
	}
	out := make([]StudyDirection, len(ds))
	for i, d := range ds {
		parsed, err := ParseStudyDirection(d)
		if err != nil {
			return nil, err
		}
		out[i] = parsed
	}
	return out, nil
}

// Label is the upper-case name used in listings.
func (d StudyDirection) Label() string {
	return strings.ToUpper(string(d))
}

type Study struct {
	ID          int64
	Name        string
	Directions  []StudyDirection
	UserAttrs   map[string]any
	SystemAttrs map[string]any
}

func (s *Study) IsMultiObjective() bool {
	return len(s.Directions) > 1
}

// Direction returns the direction of a single-objective study.
func (s *Study) Direction() (StudyDirection, error) {
	if s.IsMultiObjective() {
		return "", ErrMultiObjective
	}
	if len(s.Directions) == 0 {
		return DirectionMinimize, nil
	}
	return s.Directions[0], nil
}

// SameDirections reports whether ds matches the study's directions exactly.
func (s *Study) SameDirections(ds []StudyDirection) bool {
	if len(ds) != len(s.Directions) {
		return false
	}
	for i := range ds {
		if ds[i] != s.Directions[i] {
			return false
		}
	}
	return true
}

// StudySummary is a study together with aggregate trial information.
type StudySummary struct {
	Study         *Study
	NTrials       int
	DatetimeStart *time.Time
}
