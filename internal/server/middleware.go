package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// timeoutBody is the canned 503 payload http.TimeoutHandler writes
// when a handler overruns the configured write timeout.
var timeoutBody = func() string {
	b, _ := json.Marshal(jsonError{Error: "request timed out"})
	return string(b)
}()

// withTimeout bounds a handler with the configured write timeout.
// http.TimeoutHandler writes the timeout body itself, without a
// Content-Type, so the response is routed through a jsonStatusWriter
// that labels the 503 as JSON.
func (s *Server) withTimeout(h http.HandlerFunc) http.Handler {
	inner := http.Handler(h)
	if s.handlerDelay > 0 {
		delay := s.handlerDelay
		inner = http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(delay)
				h(w, r)
			},
		)
	}
	timed := http.TimeoutHandler(inner, s.cfg.WriteTimeout, timeoutBody)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timed.ServeHTTP(&jsonStatusWriter{
			ResponseWriter: w,
			status:         http.StatusServiceUnavailable,
		}, r)
	})
}

// jsonStatusWriter sets a JSON Content-Type when the response
// carries the given status and the handler set no Content-Type of
// its own. Other statuses pass through untouched.
type jsonStatusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *jsonStatusWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	if code == w.status && w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *jsonStatusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
