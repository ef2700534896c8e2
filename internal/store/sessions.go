package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sessionhub/sessionhub/internal/parser"
	"github.com/sessionhub/sessionhub/internal/pathutil"
)

// sessionScanSlack is how many sessions beyond the requested page
// the claude file scan keeps collecting before stopping early.
// Grouping can collapse several files into one row, so stopping
// exactly at offset+limit would under-fill pages.
const sessionScanSlack = 20

// SessionPage is one page of a project's session list.
type SessionPage struct {
	Sessions []parser.Session `json:"sessions"`
	Total    int              `json:"total"`
	HasMore  bool             `json:"hasMore"`
}

// MessagePage is one page of a session transcript. Paging is
// tail-relative: offset 0 is the newest messages.
type MessagePage struct {
	Messages []parser.Message `json:"messages"`
	Total    int              `json:"total"`
	HasMore  bool             `json:"hasMore"`
}

// ListSessions merges the project's sessions across all providers,
// collapses resumed continuations into their latest member, and
// returns them newest first.
func (s *Store) ListSessions(
	ctx context.Context, projectID string, limit, offset int,
) (SessionPage, error) {
	resolved := s.ResolveProjectPath(projectID)

	want := 0
	if limit > 0 {
		want = offset + limit + sessionScanSlack
	}

	var all []parser.Session
	claude, err := s.claudeSessions(ctx, projectID, want)
	if err != nil {
		return SessionPage{}, err
	}
	all = append(all, claude...)

	codex, err := s.codexSessions(ctx, resolved, want)
	if err != nil {
		return SessionPage{}, err
	}
	all = append(all, codex...)

	cursor, err := parser.ParseCursorSessions(
		s.cfg.CursorChatsDir, resolved, s.cfg.SummaryMaxLen,
	)
	if err != nil {
		log.Printf("cursor sessions for %s: %v", projectID, err)
	}
	all = append(all, cursor...)

	sessions := groupSessions(mergeSessions(all))

	// Raw JSON pasted as a first prompt makes a useless title.
	filtered := sessions[:0]
	for _, sess := range sessions {
		if strings.HasPrefix(strings.TrimSpace(sess.Summary), "{") {
			continue
		}
		filtered = append(filtered, sess)
	}
	sessions = filtered

	sort.SliceStable(sessions, func(i, j int) bool {
		if !sessions[i].LastActivity.Equal(sessions[j].LastActivity) {
			return sessions[i].LastActivity.After(
				sessions[j].LastActivity,
			)
		}
		return sessions[i].ID < sessions[j].ID
	})

	total := len(sessions)
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return SessionPage{
		Sessions: sessions[offset:end],
		Total:    total,
		HasMore:  end < total,
	}, nil
}

// claudeSessions parses the project's log files newest first,
// stopping once want sessions are collected (want 0 means all).
func (s *Store) claudeSessions(
	ctx context.Context, projectID string, want int,
) ([]parser.Session, error) {
	files, err := s.claudeScan.getOrScan(
		projectID, s.cfg.ScanCacheTTL,
		func() ([]parser.DiscoveredFile, error) {
			return parser.DiscoverClaudeSessionFiles(
				s.cfg.ClaudeProjectsDir, projectID,
			), nil
		},
	)
	if err != nil {
		return nil, err
	}

	var sessions []parser.Session
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parsed, err := parser.ParseClaudeSessions(
			f.Path, s.cfg.SummaryMaxLen,
		)
		if err != nil {
			log.Printf("parse %s: %v", f.Path, err)
			continue
		}
		sessions = append(sessions, parsed...)
		if want > 0 && len(sessions) >= want {
			break
		}
	}
	return sessions, nil
}

// codexSessions parses rollout files newest first, keeping those
// whose recorded working directory belongs to the project tree.
func (s *Store) codexSessions(
	ctx context.Context, projectPath string, want int,
) ([]parser.Session, error) {
	if projectPath == "" {
		return nil, nil
	}
	walk, err := s.codexScan.getOrScan(
		"codex", s.cfg.ScanCacheTTL,
		func() (parser.WalkResult, error) {
			return parser.DiscoverCodexFiles(
				s.cfg.CodexSessionsDir,
			), nil
		},
	)
	if err != nil {
		return nil, err
	}
	if walk.Truncated {
		log.Printf("codex scan truncated at %d nodes", len(walk.Files))
	}

	var sessions []parser.Session
	for _, f := range walk.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sess, err := parser.ParseCodexSession(
			f.Path, s.cfg.SummaryMaxLen,
		)
		if err != nil {
			log.Printf("parse %s: %v", f.Path, err)
			continue
		}
		if sess == nil ||
			!belongsToProject(sess.CWD, projectPath) {
			continue
		}
		sessions = append(sessions, *sess)
		if want > 0 && len(sessions) >= want {
			break
		}
	}
	return sessions, nil
}

// mergeSessions combines duplicate (provider, id) pairs produced by
// rotated log files into one session: counts add up, the freshest
// activity and any non-empty summary win.
func mergeSessions(sessions []parser.Session) []parser.Session {
	type key struct {
		provider parser.Provider
		id       string
	}
	index := make(map[key]int)
	var merged []parser.Session
	for _, sess := range sessions {
		k := key{sess.Provider, sess.ID}
		i, seen := index[k]
		if !seen {
			index[k] = len(merged)
			merged = append(merged, sess)
			continue
		}
		prev := &merged[i]
		prev.MessageCount += sess.MessageCount
		if sess.LastActivity.After(prev.LastActivity) {
			prev.LastActivity = sess.LastActivity
			prev.FilePath = sess.FilePath
			if sess.Summary != "" {
				prev.Summary = sess.Summary
			}
			if !sess.Usage.IsZero() {
				prev.Usage = sess.Usage
			}
		}
		if prev.Summary == "" {
			prev.Summary = sess.Summary
		}
		if prev.RootMarker == "" {
			prev.RootMarker = sess.RootMarker
		}
		if prev.CWD == "" {
			prev.CWD = sess.CWD
		}
	}
	return merged
}

// groupSessions collapses sessions sharing a root marker (resumes
// and forks replay the same first user entry) into their most
// recently active member, annotated with the group's membership.
func groupSessions(sessions []parser.Session) []parser.Session {
	groups := make(map[string][]parser.Session)
	var out []parser.Session
	for _, sess := range sessions {
		if sess.RootMarker == "" {
			out = append(out, sess)
			continue
		}
		groups[sess.RootMarker] = append(
			groups[sess.RootMarker], sess,
		)
	}

	for _, members := range groups {
		rep := members[0]
		for _, m := range members[1:] {
			if m.LastActivity.After(rep.LastActivity) {
				rep = m
			}
		}
		if len(members) > 1 {
			sort.Slice(members, func(i, j int) bool {
				return members[i].LastActivity.After(
					members[j].LastActivity,
				)
			})
			rep.GroupSize = len(members)
			rep.GroupIDs = make([]string, len(members))
			for i, m := range members {
				rep.GroupIDs[i] = m.ID
			}
		}
		out = append(out, rep)
	}
	return out
}

func belongsToProject(cwd, projectPath string) bool {
	return pathutil.BelongsToSameProject(cwd, projectPath)
}

// GetMessages returns one tail-relative page of a session's
// transcript: offset 0, limit N is the N newest messages.
func (s *Store) GetMessages(
	ctx context.Context,
	sessionID string,
	provider parser.Provider,
	limit, offset int,
) (MessagePage, error) {
	messages, found, err := s.sessionMessages(ctx, sessionID, provider)
	if err != nil {
		return MessagePage{}, err
	}
	if !found {
		return MessagePage{}, fmt.Errorf(
			"session %s: %w", sessionID, ErrNotFound,
		)
	}

	total := len(messages)
	if limit <= 0 || limit > total {
		limit = total
	}
	end := total - offset
	if end < 0 {
		end = 0
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	return MessagePage{
		Messages: messages[start:end],
		Total:    total,
		HasMore:  start > 0,
	}, nil
}

// sessionMessages collects the session's messages from every source
// file that carries it, in stable timestamp order.
func (s *Store) sessionMessages(
	ctx context.Context, sessionID string, provider parser.Provider,
) ([]parser.Message, bool, error) {
	switch provider {
	case parser.ProviderClaude:
		paths := parser.FindClaudeSourceFiles(
			s.cfg.ClaudeProjectsDir, sessionID,
		)
		if len(paths) == 0 {
			return nil, false, nil
		}
		var all []parser.Message
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				return nil, false, err
			}
			msgs, err := parser.ParseClaudeMessages(path, sessionID)
			if err != nil {
				return nil, false, err
			}
			all = append(all, msgs...)
		}
		if len(paths) > 1 {
			// Rotated files interleave; ordinals break ties within
			// one file, timestamps order across files.
			sort.SliceStable(all, func(i, j int) bool {
				return all[i].Timestamp.Before(all[j].Timestamp)
			})
			for i := range all {
				all[i].Ordinal = i
			}
		}
		return all, true, nil

	case parser.ProviderCodex:
		path := parser.FindCodexSourceFile(
			s.cfg.CodexSessionsDir, sessionID,
		)
		if path == "" {
			return nil, false, nil
		}
		msgs, err := parser.ParseCodexMessages(path)
		return msgs, err == nil, err

	case parser.ProviderCursor:
		if parser.FindCursorSessionDir(
			s.cfg.CursorChatsDir, sessionID,
		) == "" {
			return nil, false, nil
		}
		msgs, err := parser.ParseCursorMessages(
			s.cfg.CursorChatsDir, sessionID,
		)
		return msgs, err == nil, err
	}
	return nil, false, fmt.Errorf("unknown provider %q", provider)
}

// DeleteSession removes a session's records from its provider's
// storage. For file-per-session providers the whole file (or store
// directory) goes; for claude logs only the session's own lines are
// rewritten out, preserving any cohabiting session.
func (s *Store) DeleteSession(
	sessionID string, provider parser.Provider,
) error {
	var removed bool
	var err error
	switch provider {
	case parser.ProviderClaude:
		removed, err = s.deleteClaudeSession(sessionID)
	case parser.ProviderCodex:
		path := parser.FindCodexSourceFile(
			s.cfg.CodexSessionsDir, sessionID,
		)
		if path != "" {
			err = os.Remove(path)
			removed = err == nil
		}
	case parser.ProviderCursor:
		dir := parser.FindCursorSessionDir(
			s.cfg.CursorChatsDir, sessionID,
		)
		if dir != "" {
			err = os.RemoveAll(dir)
			removed = err == nil
		}
	default:
		return fmt.Errorf("unknown provider %q", provider)
	}
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	if !removed {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	s.InvalidateProjectPathCache()
	return nil
}

// deleteClaudeSession rewrites every log file carrying the session,
// dropping its lines. A file left with no lines is removed.
func (s *Store) deleteClaudeSession(sessionID string) (bool, error) {
	if !parser.IsValidSessionID(sessionID) {
		return false, nil
	}

	removed := false
	for _, projectDir := range parser.DiscoverClaudeProjectDirs(
		s.cfg.ClaudeProjectsDir,
	) {
		dir := filepath.Join(s.cfg.ClaudeProjectsDir, projectDir)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() ||
				!strings.HasSuffix(entry.Name(), ".jsonl") {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			stem := strings.TrimSuffix(entry.Name(), ".jsonl")
			changed, err := rewriteWithoutSession(
				path, sessionID, stem == sessionID,
			)
			if err != nil {
				return removed, err
			}
			removed = removed || changed
		}
	}
	return removed, nil
}

// rewriteWithoutSession drops the session's lines from one file.
// ownFile marks the file named after the session, whose unlabeled
// lines (summary records, entries missing sessionId) belong to it.
// The file is read raw rather than through the tolerant log reader:
// a rewrite must carry oversized lines of cohabiting sessions
// through byte for byte, not skip them.
func rewriteWithoutSession(
	path, sessionID string, ownFile bool,
) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	lines := strings.Split(
		strings.TrimSuffix(string(data), "\n"), "\n",
	)

	kept := lines[:0]
	for _, line := range lines {
		sid := gjson.Get(line, "sessionId").Str
		if sid == sessionID || (sid == "" && ownFile) {
			continue
		}
		kept = append(kept, line)
	}
	if len(kept) == len(lines) {
		return false, nil
	}

	if len(kept) == 0 {
		return true, os.Remove(path)
	}
	out := strings.Join(kept, "\n") + "\n"
	return true, os.WriteFile(path, []byte(out), 0o644)
}
