package server

import (
	"net/http"
	"strconv"
)

// Session and message listing limits.
const (
	DefaultSessionLimit = 20
	MaxSessionLimit     = 200
	DefaultMessageLimit = 100
	MaxMessageLimit     = 1000
)

// parseIntParam parses a non-negative integer query parameter.
// A missing or empty parameter yields 0. On a malformed value it
// writes a 400 response and returns ok=false.
func parseIntParam(
	w http.ResponseWriter, r *http.Request, name string,
) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeError(w, http.StatusBadRequest,
			"invalid "+name+": must be a non-negative integer")
		return 0, false
	}
	return v, true
}

// clampLimit applies the default for an unset limit and the maximum
// for an oversized one.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
