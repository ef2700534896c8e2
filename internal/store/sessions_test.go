package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionhub/sessionhub/internal/parser"
	"github.com/sessionhub/sessionhub/internal/testjsonl"
)

func parseT(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestListSessionsGroupsContinuations(t *testing.T) {
	s := newResolverStore(t)

	// Two session files replaying the same conversation root: a
	// resume. Only the newer member should surface.
	writeProjectLog(t, s, "-tmp-proj", "s1.jsonl",
		testjsonl.ClaudeUserEntryJSON(
			"first question", ts(10, 0), "s1", "root-u", nil,
		),
	)
	writeProjectLog(t, s, "-tmp-proj", "s2.jsonl",
		testjsonl.ClaudeUserEntryJSON(
			"first question", ts(11, 0), "s2", "root-u", nil,
		),
		testjsonl.ClaudeUserEntryJSON(
			"continued here", ts(11, 5), "s2", "child-u", "root-u",
		),
	)

	page, err := s.ListSessions(context.Background(), "-tmp-proj", 20, 0)
	require.NoError(t, err)
	require.Len(t, page.Sessions, 1)

	rep := page.Sessions[0]
	assert.Equal(t, "s2", rep.ID)
	assert.Equal(t, 2, rep.GroupSize)
	if diff := cmp.Diff([]string{"s2", "s1"}, rep.GroupIDs); diff != "" {
		t.Errorf("group IDs mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, page.Total)
	assert.False(t, page.HasMore)
}

func TestListSessionsPagination(t *testing.T) {
	s := newResolverStore(t)

	writeProjectLog(t, s, "-tmp-proj", "sa.jsonl",
		testjsonl.ClaudeUserJSON("oldest", ts(9, 0)),
	)
	writeProjectLog(t, s, "-tmp-proj", "sb.jsonl",
		testjsonl.ClaudeUserJSON("middle", ts(10, 0)),
	)
	writeProjectLog(t, s, "-tmp-proj", "sc.jsonl",
		testjsonl.ClaudeUserJSON("newest", ts(11, 0)),
	)

	page, err := s.ListSessions(context.Background(), "-tmp-proj", 2, 0)
	require.NoError(t, err)
	require.Len(t, page.Sessions, 2)
	assert.Equal(t, "sc", page.Sessions[0].ID)
	assert.Equal(t, "sb", page.Sessions[1].ID)
	assert.Equal(t, 3, page.Total)
	assert.True(t, page.HasMore)

	page, err = s.ListSessions(context.Background(), "-tmp-proj", 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Sessions, 1)
	assert.Equal(t, "sa", page.Sessions[0].ID)
	assert.False(t, page.HasMore)
}

func TestListSessionsDropsRawJSONSummaries(t *testing.T) {
	s := newResolverStore(t)

	writeProjectLog(t, s, "-tmp-proj", "pasted.jsonl",
		testjsonl.ClaudeUserJSON(`{"dump":"of settings"}`, ts(10, 0)),
	)
	writeProjectLog(t, s, "-tmp-proj", "real.jsonl",
		testjsonl.ClaudeUserJSON("real work", ts(11, 0)),
	)

	page, err := s.ListSessions(context.Background(), "-tmp-proj", 20, 0)
	require.NoError(t, err)
	require.Len(t, page.Sessions, 1)
	assert.Equal(t, "real work", page.Sessions[0].Summary)
}

func TestListSessionsIncludesCodexByWorkingDir(t *testing.T) {
	s := newResolverStore(t)

	writeProjectLog(t, s, "-tmp-proj", "c1.jsonl",
		testjsonl.ClaudeUserJSON("claude side", ts(10, 0), "/tmp/proj"),
	)

	day := filepath.Join(s.cfg.CodexSessionsDir, "2025", "03", "01")
	require.NoError(t, os.MkdirAll(day, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(day, "rollout-in.jsonl"),
		[]byte(testjsonl.JoinJSONL(
			testjsonl.CodexSessionMetaJSON(
				"cx-in", "/tmp/proj/subdir", ts(12, 0),
			),
			testjsonl.CodexUserEventJSON("codex side", ts(12, 1)),
		)), 0o644,
	))
	require.NoError(t, os.WriteFile(
		filepath.Join(day, "rollout-out.jsonl"),
		[]byte(testjsonl.JoinJSONL(
			testjsonl.CodexSessionMetaJSON(
				"cx-out", "/elsewhere", ts(12, 0),
			),
			testjsonl.CodexUserEventJSON("unrelated", ts(12, 1)),
		)), 0o644,
	))

	page, err := s.ListSessions(context.Background(), "-tmp-proj", 20, 0)
	require.NoError(t, err)
	require.Len(t, page.Sessions, 2)

	providers := map[parser.Provider]string{}
	for _, sess := range page.Sessions {
		providers[sess.Provider] = sess.ID
	}
	assert.Equal(t, "cx-in", providers[parser.ProviderCodex])
	assert.Equal(t, "c1", providers[parser.ProviderClaude])
}

func TestGetMessagesTailPagination(t *testing.T) {
	s := newResolverStore(t)

	lines := make([]string, 0, 5)
	for i, text := range []string{"m0", "m1", "m2", "m3", "m4"} {
		lines = append(lines,
			testjsonl.ClaudeUserJSON(text, ts(10, i)),
		)
	}
	writeProjectLog(t, s, "-tmp-proj", "sess-tail.jsonl", lines...)

	ctx := context.Background()

	// Offset 0 is the newest end of the transcript.
	page, err := s.GetMessages(
		ctx, "sess-tail", parser.ProviderClaude, 2, 0,
	)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "m3", page.Messages[0].Content)
	assert.Equal(t, "m4", page.Messages[1].Content)
	assert.Equal(t, 5, page.Total)
	assert.True(t, page.HasMore)

	page, err = s.GetMessages(
		ctx, "sess-tail", parser.ProviderClaude, 2, 2,
	)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "m1", page.Messages[0].Content)
	assert.Equal(t, "m2", page.Messages[1].Content)
	assert.True(t, page.HasMore)

	// Walking past the head clamps instead of erroring.
	page, err = s.GetMessages(
		ctx, "sess-tail", parser.ProviderClaude, 2, 4,
	)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "m0", page.Messages[0].Content)
	assert.False(t, page.HasMore)

	page, err = s.GetMessages(
		ctx, "sess-tail", parser.ProviderClaude, 2, 50,
	)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.False(t, page.HasMore)
}

func TestGetMessagesFromSharedFile(t *testing.T) {
	s := newResolverStore(t)

	// Two labeled sessions cohabiting one file. The one not named
	// in the filename must still resolve.
	writeProjectLog(t, s, "-tmp-proj", "s-a.jsonl",
		testjsonl.ClaudeUserEntryJSON(
			"from a", ts(10, 0), "s-a", "ua1", nil,
		),
		testjsonl.ClaudeUserEntryJSON(
			"from b", ts(10, 1), "s-b", "ub1", nil,
		),
	)

	ctx := context.Background()

	page, err := s.GetMessages(ctx, "s-b", parser.ProviderClaude, 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "from b", page.Messages[0].Content)

	page, err = s.GetMessages(ctx, "s-a", parser.ProviderClaude, 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "from a", page.Messages[0].Content)
}

func TestGetMessagesNotFound(t *testing.T) {
	s := newResolverStore(t)
	_, err := s.GetMessages(
		context.Background(), "ghost", parser.ProviderClaude, 10, 0,
	)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSessionRewritesSharedFile(t *testing.T) {
	s := newResolverStore(t)

	writeProjectLog(t, s, "-tmp-proj", "shared.jsonl",
		testjsonl.ClaudeUserEntryJSON(
			"from a", ts(10, 0), "s-a", "ua1", nil,
		),
		testjsonl.ClaudeUserEntryJSON(
			"from b", ts(10, 1), "s-b", "ub1", nil,
		),
		testjsonl.ClaudeUserEntryJSON(
			"also a", ts(10, 2), "s-a", "ua2", "ua1",
		),
	)

	require.NoError(t, s.DeleteSession("s-a", parser.ProviderClaude))

	data, err := os.ReadFile(filepath.Join(
		s.cfg.ClaudeProjectsDir, "-tmp-proj", "shared.jsonl",
	))
	require.NoError(t, err)

	content := string(data)
	assert.NotContains(t, content, "s-a")
	assert.Contains(t, content, "from b")
	assert.True(t, strings.HasSuffix(content, "\n"))
	assert.Equal(t, 1, strings.Count(content, "\n"))
}

func TestDeleteSessionRemovesExclusiveFile(t *testing.T) {
	s := newResolverStore(t)

	// Lines without a sessionId belong to the file named after the
	// session, so the whole file goes.
	writeProjectLog(t, s, "-tmp-proj", "s-solo.jsonl",
		testjsonl.ClaudeUserJSON("only me", ts(10, 0)),
	)

	require.NoError(t, s.DeleteSession("s-solo", parser.ProviderClaude))

	_, err := os.Stat(filepath.Join(
		s.cfg.ClaudeProjectsDir, "-tmp-proj", "s-solo.jsonl",
	))
	assert.True(t, os.IsNotExist(err))

	err = s.DeleteSession("s-solo", parser.ProviderClaude)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSessionKeepsOversizedLines(t *testing.T) {
	s := newResolverStore(t)

	// A kept session's line past the log reader's size cap must
	// survive a cohabitant's deletion untouched.
	big := strings.Repeat("x", 21<<20)
	writeProjectLog(t, s, "-tmp-proj", "shared.jsonl",
		testjsonl.ClaudeUserEntryJSON(
			"small", ts(10, 0), "s-a", "ua1", nil,
		),
		testjsonl.ClaudeUserEntryJSON(
			big, ts(10, 1), "s-b", "ub1", nil,
		),
	)

	require.NoError(t, s.DeleteSession("s-a", parser.ProviderClaude))

	data, err := os.ReadFile(filepath.Join(
		s.cfg.ClaudeProjectsDir, "-tmp-proj", "shared.jsonl",
	))
	require.NoError(t, err)
	assert.Greater(t, len(data), 21<<20)
	assert.NotContains(t, string(data), `"s-a"`)
	assert.Contains(t, string(data), `"s-b"`)
}

func TestDeleteSessionCodexRemovesFile(t *testing.T) {
	s := newResolverStore(t)

	day := filepath.Join(s.cfg.CodexSessionsDir, "2025", "03", "01")
	require.NoError(t, os.MkdirAll(day, 0o755))
	path := filepath.Join(day, "cx-1.jsonl")
	require.NoError(t, os.WriteFile(
		path,
		[]byte(testjsonl.CodexUserEventJSON("hi", ts(10, 0))+"\n"),
		0o644,
	))

	require.NoError(t, s.DeleteSession("cx-1", parser.ProviderCodex))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteSessionUnknownProvider(t *testing.T) {
	s := newResolverStore(t)
	err := s.DeleteSession("x", parser.Provider("gemini"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestMergeSessionsCombinesRotatedFiles(t *testing.T) {
	merged := mergeSessions([]parser.Session{
		{
			ID: "s1", Provider: parser.ProviderClaude,
			MessageCount: 3, Summary: "",
			LastActivity: parseT(t, ts(10, 0)),
		},
		{
			ID: "s1", Provider: parser.ProviderClaude,
			MessageCount: 2, Summary: "later title",
			LastActivity: parseT(t, ts(11, 0)),
			RootMarker:   "root-u",
		},
	})
	require.Len(t, merged, 1)
	assert.Equal(t, 5, merged[0].MessageCount)
	assert.Equal(t, "later title", merged[0].Summary)
	assert.Equal(t, "root-u", merged[0].RootMarker)
	assert.Equal(t, parseT(t, ts(11, 0)), merged[0].LastActivity)
}
