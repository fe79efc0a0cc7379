package web

import (
	"net/http"
	"strings"

	"github.com/emiliopalmerini/mexp/internal/domain"
)

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	if acceptsEventStream(r) {
		s.handleStreamExperiments(w, r)
		return
	}

	experiments, err := s.service.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if experiments == nil {
		experiments = []domain.Experiment{}
	}
	writeJSON(w, http.StatusOK, experiments)
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	experiment, err := s.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, experiment)
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var payload domain.Experiment
	if !s.decode(w, r, &payload) {
		return
	}

	created, err := s.service.Add(r.Context(), payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/experiments/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleReplaceExperiment(w http.ResponseWriter, r *http.Request) {
	var payload domain.Experiment
	if !s.decode(w, r, &payload) {
		return
	}

	updated, err := s.service.Replace(r.Context(), r.PathValue("id"), payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleAppendTimePoints(w http.ResponseWriter, r *http.Request) {
	var points []domain.TimePoint
	if !s.decode(w, r, &points) {
		return
	}

	updated, err := s.service.AppendTimePoints(r.Context(), r.PathValue("id"), points)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func acceptsEventStream(r *http.Request) bool {
	for _, v := range r.Header.Values("Accept") {
		if strings.Contains(v, contentTypeEventStream) {
			return true
		}
	}
	return false
}
