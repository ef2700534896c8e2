package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sessionhub/sessionhub/internal/store"
)

func (s *Server) handleListProjects(
	w http.ResponseWriter, r *http.Request,
) {
	writeJSON(w, http.StatusOK, map[string]any{
		"projects": s.store.ListProjects(),
	})
}

func (s *Server) handleAddProject(
	w http.ResponseWriter, r *http.Request,
) {
	var req struct {
		Path        string `json:"path"`
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	project, err := s.store.AddProject(req.Path, req.DisplayName)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict,
				"project already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleRenameProject(
	w http.ResponseWriter, r *http.Request,
) {
	id := r.PathValue("id")

	var req struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.store.RenameProject(id, req.DisplayName); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteProject(
	w http.ResponseWriter, r *http.Request,
) {
	id := r.PathValue("id")

	if err := s.store.DeleteProject(id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "project not found")
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict,
				"project still has sessions")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
