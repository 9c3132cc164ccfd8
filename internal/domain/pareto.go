package domain

import (
	"math"
	"sort"
)

// Dominates reports whether a Pareto-dominates b: no worse in every objective
// and strictly better in at least one. Values are compared after flipping the
// sign of maximized objectives.
func Dominates(a, b []float64, directions []StudyDirection) bool {
	if len(a) != len(b) || len(a) != len(directions) {
		return false
	}
	better := false
	for i, d := range directions {
		va, vb := a[i], b[i]
		if d == DirectionMaximize {
			va, vb = -va, -vb
		}
		if math.IsNaN(va) || math.IsNaN(vb) {
			return false
		}
		if va > vb {
			return false
		}
		if va < vb {
			better = true
		}
	}
	return better
}

// ParetoFront returns the complete trials no other complete trial dominates,
// ordered by trial number.
func ParetoFront(trials []*Trial, directions []StudyDirection) []*Trial {
	complete := completeTrials(trials)
	var front []*Trial
	for _, t := range complete {
		dominated := false
		for _, other := range complete {
			if other != t && Dominates(other.Values, t.Values, directions) {
				dominated = true
				break
			}
		}
		if !dominated {
			front = append(front, t)
		}
	}
	return front
}

// BestTrial picks the complete trial with the best first objective value.
// Ties resolve to the lowest trial number.
func BestTrial(trials []*Trial, direction StudyDirection) (*Trial, error) {
	var best *Trial
	for _, t := range completeTrials(trials) {
		v := t.Values[0]
		if math.IsNaN(v) {
			continue
		}
		if best == nil {
			best = t
			continue
		}
		b := best.Values[0]
		if (direction == DirectionMaximize && v > b) || (direction != DirectionMaximize && v < b) {
			best = t
		}
	}
	if best == nil {
		return nil, ErrNoCompletedTrials
	}
	return best, nil
}

func completeTrials(trials []*Trial) []*Trial {
	out := make([]*Trial, 0, len(trials))
	for _, t := range trials {
		if t.State == TrialComplete && len(t.Values) > 0 {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}
