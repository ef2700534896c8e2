package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionhub/sessionhub/internal/config"
	"github.com/sessionhub/sessionhub/internal/store"
	"github.com/sessionhub/sessionhub/internal/testjsonl"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.ClaudeProjectsDir = t.TempDir()
	cfg.CodexSessionsDir = t.TempDir()
	cfg.CursorChatsDir = t.TempDir()
	cfg.DataDir = t.TempDir()
	cfg.ProjectsPath = filepath.Join(cfg.DataDir, "projects.json")
	cfg.WriteTimeout = 5 * time.Second

	st, err := store.New(cfg)
	require.NoError(t, err)
	return New(cfg, st)
}

func seedClaudeSession(
	t *testing.T, srv *Server, projectID, name string, lines ...string,
) {
	t.Helper()
	dir := filepath.Join(srv.cfg.ClaudeProjectsDir, projectID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, name),
		[]byte(testjsonl.JoinJSONL(lines...)), 0o644,
	))
}

func doRequest(
	t *testing.T, srv *Server, method, path string, body any,
) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestListProjectsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	seedClaudeSession(t, srv, "-tmp-proj", "s1.jsonl",
		testjsonl.ClaudeUserJSON(
			"hello", "2025-03-01T10:00:00Z", "/tmp/proj",
		),
	)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Projects []struct {
			ID   string `json:"id"`
			Path string `json:"path"`
		} `json:"projects"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Projects, 1)
	assert.Equal(t, "-tmp-proj", resp.Projects[0].ID)
	assert.Equal(t, "/tmp/proj", resp.Projects[0].Path)
}

func TestListSessionsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	seedClaudeSession(t, srv, "-tmp-proj", "s1.jsonl",
		testjsonl.ClaudeUserJSON(
			"first prompt", "2025-03-01T10:00:00Z", "/tmp/proj",
		),
	)

	rec := doRequest(t, srv, http.MethodGet,
		"/api/v1/projects/-tmp-proj/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sessions []struct {
			ID       string `json:"id"`
			Provider string `json:"provider"`
			Summary  string `json:"summary"`
		} `json:"sessions"`
		Total   int  `json:"total"`
		HasMore bool `json:"hasMore"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, "s1", resp.Sessions[0].ID)
	assert.Equal(t, "claude", resp.Sessions[0].Provider)
	assert.Equal(t, "first prompt", resp.Sessions[0].Summary)
	assert.Equal(t, 1, resp.Total)
	assert.False(t, resp.HasMore)
}

func TestListSessionsRejectsBadLimit(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet,
		"/api/v1/projects/-tmp-proj/sessions?limit=banana", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMessagesEndpoint(t *testing.T) {
	srv := newTestServer(t)
	seedClaudeSession(t, srv, "-tmp-proj", "sess-1.jsonl",
		testjsonl.ClaudeUserJSON("ask", "2025-03-01T10:00:00Z"),
		testjsonl.ClaudeAssistantJSON("answer", "2025-03-01T10:01:00Z"),
	)

	rec := doRequest(t, srv, http.MethodGet,
		"/api/v1/sessions/sess-1/messages?provider=claude", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "user", resp.Messages[0].Role)
	assert.Equal(t, "assistant", resp.Messages[1].Role)
	assert.Equal(t, 2, resp.Total)
}

func TestGetMessagesRequiresProvider(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet,
		"/api/v1/sessions/sess-1/messages", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodGet,
		"/api/v1/sessions/sess-1/messages?provider=clippy", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMessagesNotFound(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet,
		"/api/v1/sessions/ghost/messages?provider=claude", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddProjectEndpoint(t *testing.T) {
	srv := newTestServer(t)

	body := map[string]string{
		"path":        "/home/dev/fresh",
		"displayName": "Fresh",
	}
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/projects", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/projects", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/projects",
		map[string]string{"path": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRenameProjectEndpoint(t *testing.T) {
	srv := newTestServer(t)
	seedClaudeSession(t, srv, "-tmp-proj", "s1.jsonl",
		testjsonl.ClaudeUserJSON("hi", "2025-03-01T10:00:00Z"),
	)

	rec := doRequest(t, srv, http.MethodPut,
		"/api/v1/projects/-tmp-proj",
		map[string]string{"displayName": "Renamed"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPut,
		"/api/v1/projects/-no-such",
		map[string]string{"displayName": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteProjectEndpointRefusesNonEmpty(t *testing.T) {
	srv := newTestServer(t)
	seedClaudeSession(t, srv, "-tmp-proj", "s1.jsonl",
		testjsonl.ClaudeUserJSON("hi", "2025-03-01T10:00:00Z"),
	)

	rec := doRequest(t, srv, http.MethodDelete,
		"/api/v1/projects/-tmp-proj", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteSessionEndpoint(t *testing.T) {
	srv := newTestServer(t)
	seedClaudeSession(t, srv, "-tmp-proj", "sess-1.jsonl",
		testjsonl.ClaudeUserJSON("hi", "2025-03-01T10:00:00Z"),
	)

	rec := doRequest(t, srv, http.MethodDelete,
		"/api/v1/sessions/sess-1?provider=claude", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodDelete,
		"/api/v1/sessions/sess-1?provider=claude", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVersionEndpoint(t *testing.T) {
	srv := newTestServer(t)
	srv.version = VersionInfo{Version: "1.2.3"}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1.2.3")
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodOptions, "/api/v1/projects", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*",
		rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestFindAvailablePort(t *testing.T) {
	port := FindAvailablePort("127.0.0.1", 50555)
	assert.GreaterOrEqual(t, port, 50555)
	assert.Less(t, port, 50655)
}

func TestServerLifecycle(t *testing.T) {
	srv := newTestServer(t)
	port := FindAvailablePort("127.0.0.1", 40000)
	srv.SetPort(port)

	done := make(chan error, 1)
	go func() {
		done <- srv.ListenAndServe()
	}()

	// Wait for the listener to accept connections.
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	deadline := time.Now().Add(2 * time.Second)
	ready := false
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			ready = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, ready, "server never accepted connections")

	resp, err := http.Get("http://" + addr + "/api/v1/version")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(
		context.Background(), 5*time.Second,
	)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("server goroutine never exited")
	}
}
