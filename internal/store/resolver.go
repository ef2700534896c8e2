package store

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sessionhub/sessionhub/internal/parser"
)

// ResolveProjectPath maps an encoded project directory name to the
// real working directory it represents. The encoding is lossy, so
// the path is inferred from evidence, in priority order: a path
// recorded when the project was added manually, then the working
// directories the project's own log entries claim, then a naive
// decode of the directory name. Results are cached per project and
// dropped when the watcher sees the log directory change.
func (s *Store) ResolveProjectPath(projectID string) string {
	path, err := s.pathCache.getOrScan(projectID, 0, func() (string, error) {
		return s.resolvePath(projectID), nil
	})
	if err != nil {
		return parser.DecodeProjectDir(projectID)
	}
	return path
}

func (s *Store) resolvePath(projectID string) string {
	if meta, ok := s.projectMeta(projectID); ok &&
		meta.OriginalPath != "" {
		return meta.OriginalPath
	}
	if path := s.tallyCwds(projectID); path != "" {
		return path
	}
	return parser.DecodeProjectDir(projectID)
}

// tallyCwds scans every log line of the project counting recorded
// working directories. The most frequent value wins unless a more
// recently used one has meaningful support: a recent path backed by
// at least RecentCwdThreshold of the leader's count beats the
// leader, so a project whose directory was renamed converges on the
// new name without a single stray entry hijacking it.
func (s *Store) tallyCwds(projectID string) string {
	dir := filepath.Join(s.cfg.ClaudeProjectsDir, projectID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("resolve %s: %v", projectID, err)
		}
		return ""
	}

	counts := make(map[string]int)
	var order []string
	var latest string
	var latestTs time.Time

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		lines, _, err := parser.ReadLogLines(
			filepath.Join(dir, entry.Name()),
		)
		if err != nil {
			log.Printf("resolve %s: %v", projectID, err)
			continue
		}
		for _, line := range lines {
			cwd := gjson.Get(line, "cwd").Str
			if cwd == "" {
				continue
			}
			if counts[cwd] == 0 {
				order = append(order, cwd)
			}
			counts[cwd]++
			ts := parser.ParseTimestamp(
				gjson.Get(line, "timestamp").Str,
			)
			if !ts.IsZero() && ts.After(latestTs) {
				latestTs = ts
				latest = cwd
			}
		}
	}

	if len(order) == 0 {
		return ""
	}

	max := 0
	for _, cwd := range order {
		if counts[cwd] > max {
			max = counts[cwd]
		}
	}
	if latest != "" &&
		float64(counts[latest]) >= s.cfg.RecentCwdThreshold*float64(max) {
		return latest
	}
	// First-seen order breaks ties between equally frequent paths.
	for _, cwd := range order {
		if counts[cwd] == max {
			return cwd
		}
	}
	return ""
}
