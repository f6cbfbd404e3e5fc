package httpapi

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleRecordPractice(w http.ResponseWriter, r *http.Request) {
	segmentID := chi.URLParam(r, "id")
	file, header, ok := s.formFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	p, err := s.practice.Record(r.Context(), segmentID, file, filepath.Ext(header.Filename))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListPractices(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListPractices(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"practices": list})
}

func (s *Server) handleGetPractice(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPractice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleEvaluatePractice(w http.ResponseWriter, r *http.Request) {
	out, err := s.practice.Evaluate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}
