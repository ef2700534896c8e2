package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionhub/sessionhub/internal/config"
	"github.com/sessionhub/sessionhub/internal/testjsonl"
)

func newResolverStore(t *testing.T) *Store {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.ClaudeProjectsDir = t.TempDir()
	cfg.CodexSessionsDir = t.TempDir()
	cfg.CursorChatsDir = t.TempDir()
	cfg.DataDir = t.TempDir()
	cfg.ProjectsPath = filepath.Join(cfg.DataDir, "projects.json")

	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func writeProjectLog(
	t *testing.T, s *Store, projectID, name string, lines ...string,
) {
	t.Helper()
	dir := filepath.Join(s.cfg.ClaudeProjectsDir, projectID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, name),
		[]byte(testjsonl.JoinJSONL(lines...)), 0o644,
	))
}

func TestResolvePathDominantCwdWins(t *testing.T) {
	s := newResolverStore(t)

	// Ten entries for A, then a single stray newer entry for B.
	// One stray is below the recency threshold, so A wins.
	var lines []string
	for i := range 10 {
		lines = append(lines, testjsonl.ClaudeUserJSON(
			"msg", ts(10, i), "/home/dev/appa",
		))
	}
	lines = append(lines, testjsonl.ClaudeUserJSON(
		"msg", ts(11, 0), "/home/dev/appb",
	))
	writeProjectLog(t, s, "-home-dev-appa", "s1.jsonl", lines...)

	assert.Equal(t, "/home/dev/appa", s.resolvePath("-home-dev-appa"))
}

func TestResolvePathRecentCwdWithSupportWins(t *testing.T) {
	s := newResolverStore(t)

	// Four recent entries for B against ten for A clear the 25%
	// threshold: the project moved to B.
	var lines []string
	for i := range 10 {
		lines = append(lines, testjsonl.ClaudeUserJSON(
			"msg", ts(10, i), "/home/dev/appa",
		))
	}
	for i := range 4 {
		lines = append(lines, testjsonl.ClaudeUserJSON(
			"msg", ts(11, i), "/home/dev/appb",
		))
	}
	writeProjectLog(t, s, "-home-dev-appa", "s1.jsonl", lines...)

	assert.Equal(t, "/home/dev/appb", s.resolvePath("-home-dev-appa"))
}

func TestResolvePathConfiguredPathWins(t *testing.T) {
	s := newResolverStore(t)
	s.projects["-home-dev-appa"] = ProjectMeta{
		ManuallyAdded: true,
		OriginalPath:  "/home/dev/app.a",
	}
	writeProjectLog(t, s, "-home-dev-appa", "s1.jsonl",
		testjsonl.ClaudeUserJSON("msg", ts(10, 0), "/somewhere/else"),
	)

	assert.Equal(t, "/home/dev/app.a", s.resolvePath("-home-dev-appa"))
}

func TestResolvePathDecodeFallback(t *testing.T) {
	s := newResolverStore(t)
	assert.Equal(t, "/tmp/ghost", s.resolvePath("-tmp-ghost"))
}

func TestResolveProjectPathIsCached(t *testing.T) {
	s := newResolverStore(t)
	writeProjectLog(t, s, "-tmp-proj", "s1.jsonl",
		testjsonl.ClaudeUserJSON("msg", ts(10, 0), "/tmp/proj"),
	)

	require.Equal(t, "/tmp/proj", s.ResolveProjectPath("-tmp-proj"))

	// A new log pointing elsewhere is ignored until invalidation.
	writeProjectLog(t, s, "-tmp-proj", "s2.jsonl",
		testjsonl.ClaudeUserJSON("msg", ts(12, 0), "/tmp/moved"),
		testjsonl.ClaudeUserJSON("msg", ts(12, 1), "/tmp/moved"),
		testjsonl.ClaudeUserJSON("msg", ts(12, 2), "/tmp/moved"),
		testjsonl.ClaudeUserJSON("msg", ts(12, 3), "/tmp/moved"),
	)
	assert.Equal(t, "/tmp/proj", s.ResolveProjectPath("-tmp-proj"))

	s.InvalidateProjectPathCache()
	assert.Equal(t, "/tmp/moved", s.ResolveProjectPath("-tmp-proj"))
}

// ts formats a deterministic RFC3339 timestamp at the given hour
// and minute.
func ts(hour, minute int) string {
	return fmt.Sprintf("2025-03-01T%02d:%02d:00Z", hour, minute)
}
