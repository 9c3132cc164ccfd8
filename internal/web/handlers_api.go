package web

import (
	"encoding/json"
	"net/http"

	"github.com/emiliopalmerini/mtune/internal/domain"
	"github.com/emiliopalmerini/mtune/internal/output"
)

func (s *Server) handleAPIStudies(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.service.Summaries(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	records := make([]*output.Record, len(summaries))
	for i, sum := range summaries {
		records[i] = output.StudyRecord(sum)
	}
	writeJSON(w, records)
}

func (s *Server) handleAPIStudy(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.LoadStudy(r.Context(), studyName(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, output.NewRecord().
		Set("name", st.Name).
		Set("directions", directionLabels(st.Directions)).
		Set("user_attrs", st.UserAttrs))
}

func (s *Server) handleAPITrials(w http.ResponseWriter, r *http.Request) {
	var states []domain.TrialState
	if q := r.URL.Query().Get("state"); q != "" {
		state, err := domain.ParseTrialState(q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		states = append(states, state)
	}

	st, trials, err := s.service.Trials(r.Context(), studyName(r), states...)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, output.TrialRecords(st, trials))
}

func (s *Server) handleAPIBestTrials(w http.ResponseWriter, r *http.Request) {
	st, trials, err := s.service.BestTrials(r.Context(), studyName(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, output.TrialRecords(st, trials))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
