package server

import (
	"errors"
	"net/http"

	"github.com/sessionhub/sessionhub/internal/parser"
	"github.com/sessionhub/sessionhub/internal/store"
)

func (s *Server) handleListSessions(
	w http.ResponseWriter, r *http.Request,
) {
	projectID := r.PathValue("id")

	limit, ok := parseIntParam(w, r, "limit")
	if !ok {
		return
	}
	limit = clampLimit(limit, DefaultSessionLimit, MaxSessionLimit)
	offset, ok := parseIntParam(w, r, "offset")
	if !ok {
		return
	}

	page, err := s.store.ListSessions(
		r.Context(), projectID, limit, offset,
	)
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetMessages(
	w http.ResponseWriter, r *http.Request,
) {
	sessionID := r.PathValue("id")
	provider, ok := requireProvider(w, r)
	if !ok {
		return
	}

	limit, ok := parseIntParam(w, r, "limit")
	if !ok {
		return
	}
	limit = clampLimit(limit, DefaultMessageLimit, MaxMessageLimit)
	offset, ok := parseIntParam(w, r, "offset")
	if !ok {
		return
	}

	page, err := s.store.GetMessages(
		r.Context(), sessionID, provider, limit, offset,
	)
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleDeleteSession(
	w http.ResponseWriter, r *http.Request,
) {
	sessionID := r.PathValue("id")
	provider, ok := requireProvider(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteSession(sessionID, provider); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireProvider parses the mandatory provider query parameter.
// Session IDs are only unique within one provider's namespace, so
// every session-scoped route needs it.
func requireProvider(
	w http.ResponseWriter, r *http.Request,
) (parser.Provider, bool) {
	name := r.URL.Query().Get("provider")
	if name == "" {
		writeError(w, http.StatusBadRequest,
			"provider query parameter is required")
		return "", false
	}
	def, ok := parser.ProviderByName(name)
	if !ok {
		writeError(w, http.StatusBadRequest,
			"unknown provider: "+name)
		return "", false
	}
	return def.Type, true
}
