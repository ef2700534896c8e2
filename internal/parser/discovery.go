package parser

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// maxWalkNodes caps how many directory entries a nested walk will
// visit before giving up, so a pathological tree cannot stall a
// request. Hitting the cap surfaces as Truncated rather than a
// silent stop.
const maxWalkNodes = 50000

// uuidRe matches a standard UUID (8-4-4-4-12 hex) at the end of a
// rollout filename stem.
var uuidRe = regexp.MustCompile(
	`^rollout-.*-([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-` +
		`[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})$`,
)

// DiscoveredFile holds a discovered session log file.
type DiscoveredFile struct {
	Path  string
	Mtime int64
}

// WalkResult holds the outcome of a nested directory walk.
type WalkResult struct {
	Files     []DiscoveredFile
	Truncated bool
}

// EncodeProjectDir converts an absolute working-directory path to
// the encoded directory name used under the Claude projects root:
// every non-alphanumeric character becomes a hyphen.
func EncodeProjectDir(path string) string {
	var b strings.Builder
	b.Grow(len(path))
	for _, r := range path {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// DecodeProjectDir reverses EncodeProjectDir naively, turning
// every hyphen back into a path separator. The encoding is lossy
// (hyphens and dots in the original both became "-"), so this is
// only a last-resort guess when no log entry ever recorded the
// real working directory.
func DecodeProjectDir(dirName string) string {
	if dirName == "" {
		return ""
	}
	return strings.ReplaceAll(dirName, "-", "/")
}

// DiscoverClaudeProjectDirs lists the encoded project directory
// names under the Claude projects root.
func DiscoverClaudeProjectDirs(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, entry := range entries {
		if !isDirOrSymlink(entry, root) {
			continue
		}
		dirs = append(dirs, entry.Name())
	}
	sort.Strings(dirs)
	return dirs
}

// DiscoverClaudeSessionFiles lists the JSONL session files in one
// project's log directory, newest first, so a bounded session
// request can stop scanning early.
func DiscoverClaudeSessionFiles(
	root, projectDir string,
) []DiscoveredFile {
	dir := filepath.Join(root, projectDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var files []DiscoveredFile
	for _, entry := range entries {
		if entry.IsDir() ||
			!strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, DiscoveredFile{
			Path:  filepath.Join(dir, entry.Name()),
			Mtime: info.ModTime().UnixNano(),
		})
	}
	sortNewestFirst(files)
	return files
}

// FindClaudeSourceFiles returns the log files carrying the given
// session across all project directories. The sessionId field is
// authoritative and one file may hold several sessions, so a file
// matches when it is named after the session or when any of its
// lines is labeled with it.
func FindClaudeSourceFiles(root, sessionID string) []string {
	if !IsValidSessionID(sessionID) {
		return nil
	}
	target := sessionID + ".jsonl"

	var paths []string
	for _, projectDir := range DiscoverClaudeProjectDirs(root) {
		dir := filepath.Join(root, projectDir)
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
			if entry.Name() == target ||
				fileCarriesSession(path, sessionID) {
				paths = append(paths, path)
			}
		}
	}
	return paths
}

// fileCarriesSession reports whether any line in the log file is
// labeled with the session ID. The substring check keeps the common
// miss cheap.
func fileCarriesSession(path, sessionID string) bool {
	lines, _, err := ReadLogLines(path)
	if err != nil {
		return false
	}
	for _, line := range lines {
		if !strings.Contains(line, sessionID) {
			continue
		}
		if gjson.Get(line, "sessionId").Str == sessionID {
			return true
		}
	}
	return false
}

// DiscoverCodexFiles walks the nested Codex sessions tree
// (year/month/day directories) collecting JSONL files, newest
// first. The walk uses an explicit worklist with a node cap
// instead of recursion.
func DiscoverCodexFiles(root string) WalkResult {
	result := walkJSONL(root)
	sortNewestFirst(result.Files)
	return result
}

// walkJSONL traverses a directory tree with an explicit stack,
// collecting .jsonl files. Unreadable subdirectories are skipped;
// exceeding maxWalkNodes sets Truncated.
func walkJSONL(root string) WalkResult {
	var result WalkResult
	stack := []string{root}
	visited := 0

	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			visited++
			if visited > maxWalkNodes {
				result.Truncated = true
				return result
			}
			path := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				stack = append(stack, path)
				continue
			}
			if !strings.HasSuffix(entry.Name(), ".jsonl") {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			result.Files = append(result.Files, DiscoveredFile{
				Path:  path,
				Mtime: info.ModTime().UnixNano(),
			})
		}
	}
	return result
}

// FindCodexSourceFile finds a Codex rollout file by session ID,
// matching either the UUID embedded in the rollout filename or the
// bare filename stem.
func FindCodexSourceFile(root, sessionID string) string {
	if !IsValidSessionID(sessionID) {
		return ""
	}
	for _, f := range DiscoverCodexFiles(root).Files {
		stem := strings.TrimSuffix(filepath.Base(f.Path), ".jsonl")
		if stem == sessionID ||
			extractUUIDFromRollout(stem) == sessionID {
			return f.Path
		}
	}
	return ""
}

// extractUUIDFromRollout extracts the UUID from a rollout filename
// stem like rollout-{timestamp}-{uuid}.
func extractUUIDFromRollout(stem string) string {
	match := uuidRe.FindStringSubmatch(stem)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

// IsValidSessionID reports whether id contains only alphanumeric
// characters, dashes, and underscores. IDs come from URLs and are
// joined into filesystem paths, so anything else is rejected.
func IsValidSessionID(id string) bool {
	if id == "" {
		return false
	}
	for _, c := range id {
		if !isAlphanum(c) && c != '-' && c != '_' {
			return false
		}
	}
	return true
}

func isAlphanum(c rune) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// isDirOrSymlink reports whether the entry is a directory or a
// symlink that resolves to one.
func isDirOrSymlink(entry os.DirEntry, parentDir string) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	fi, err := os.Stat(filepath.Join(parentDir, entry.Name()))
	return err == nil && fi.IsDir()
}

func sortNewestFirst(files []DiscoveredFile) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].Mtime != files[j].Mtime {
			return files[i].Mtime > files[j].Mtime
		}
		return files[i].Path < files[j].Path
	})
}
