package web

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/emiliopalmerini/mtune/internal/domain"
	"github.com/emiliopalmerini/mtune/internal/web/templates"
)

// studyName reads the {name} route parameter. chi matches on the escaped
// path when the request has one, so the parameter is unescaped then.
func studyName(r *http.Request) string {
	name := chi.URLParam(r, "name")
	if r.URL.RawPath == "" {
		return name
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}

func (s *Server) handleStudies(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.service.Summaries(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	rows := make([]templates.StudyRow, len(summaries))
	for i, sum := range summaries {
		rows[i] = templates.StudyRow{
			Name:          sum.Study.Name,
			Directions:    directionLabels(sum.Study.Directions),
			NTrials:       sum.NTrials,
			DatetimeStart: sum.DatetimeStart,
			UserAttrs:     sum.Study.UserAttrs,
		}
	}
	s.render(w, r, templates.StudiesPage(rows))
}

func (s *Server) handleStudy(w http.ResponseWriter, r *http.Request) {
	st, trials, err := s.service.Trials(r.Context(), studyName(r))
	if err != nil {
		s.fail(w, err)
		return
	}

	best := map[int]bool{}
	for _, t := range domain.ParetoFront(trials, st.Directions) {
		best[t.Number] = true
	}

	detail := templates.StudyDetail{
		Name:       st.Name,
		Directions: directionLabels(st.Directions),
		UserAttrs:  st.UserAttrs,
		States:     map[string]int{},
	}
	for _, t := range trials {
		detail.States[t.State.String()]++
		detail.Trials = append(detail.Trials, templates.TrialRow{
			Number:           t.Number,
			State:            t.State.String(),
			Values:           t.Values,
			Params:           t.Params,
			DatetimeStart:    t.DatetimeStart,
			DatetimeComplete: t.DatetimeComplete,
			Duration:         t.Duration(),
			Best:             best[t.Number],
		})
	}
	s.render(w, r, templates.StudyPage(detail))
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		s.logger.Warn("Failed to render page", zap.String("path", r.URL.Path), zap.Error(err))
	}
}

// fail maps domain errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrStudyNotFound), errors.Is(err, domain.ErrTrialNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrNoCompletedTrials), errors.Is(err, domain.ErrMultiObjective):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.logger.Error("Request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func directionLabels(ds []domain.StudyDirection) []string {
	labels := make([]string, len(ds))
	for i, d := range ds {
		labels[i] = d.Label()
	}
	return labels
}
