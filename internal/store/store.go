// Package store aggregates assistant sessions straight from their
// on-disk logs. There is no ingest step and no index: every request
// scans the relevant log files, with short-lived caches absorbing
// repeated scans. The logs stay the single source of truth.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sessionhub/sessionhub/internal/config"
	"github.com/sessionhub/sessionhub/internal/parser"
)

var (
	// ErrNotFound indicates the requested project or session does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the project is already tracked.
	ErrConflict = errors.New("already exists")
)

// ProjectMeta is the persisted per-project configuration, keyed by
// encoded directory name in projects.json.
type ProjectMeta struct {
	DisplayName   string `json:"displayName,omitempty"`
	ManuallyAdded bool   `json:"manuallyAdded,omitempty"`
	OriginalPath  string `json:"originalPath,omitempty"`
}

// Project is the API-facing view of a tracked project.
type Project struct {
	ID            string `json:"id"`
	Path          string `json:"path"`
	DisplayName   string `json:"displayName,omitempty"`
	ManuallyAdded bool   `json:"manuallyAdded,omitempty"`
}

// Store serves projects, sessions, and messages by scanning the
// provider log directories on demand.
type Store struct {
	cfg config.Config

	mu       sync.Mutex // guards projects and its file
	projects map[string]ProjectMeta

	pathCache  *scanCache[string]
	claudeScan *scanCache[[]parser.DiscoveredFile]
	codexScan  *scanCache[parser.WalkResult]

	now func() time.Time
}

// New loads persisted project metadata and returns a ready Store.
func New(cfg config.Config) (*Store, error) {
	s := &Store{
		cfg:        cfg,
		projects:   make(map[string]ProjectMeta),
		pathCache:  newScanCache[string](),
		claudeScan: newScanCache[[]parser.DiscoveredFile](),
		codexScan:  newScanCache[parser.WalkResult](),
		now:        time.Now,
	}
	if err := s.loadProjects(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadProjects() error {
	data, err := os.ReadFile(s.cfg.ProjectsPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading projects file: %w", err)
	}
	if err := json.Unmarshal(data, &s.projects); err != nil {
		return fmt.Errorf("parsing projects file: %w", err)
	}
	return nil
}

// saveProjectsLocked writes projects.json. Caller holds mu.
func (s *Store) saveProjectsLocked() error {
	data, err := json.MarshalIndent(s.projects, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(
		filepath.Dir(s.cfg.ProjectsPath), 0o755,
	); err != nil {
		return err
	}
	return os.WriteFile(s.cfg.ProjectsPath, data, 0o600)
}

func (s *Store) projectMeta(id string) (ProjectMeta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.projects[id]
	return meta, ok
}

// ListProjects returns the union of projects discovered under the
// Claude projects root and projects added manually, sorted by ID.
func (s *Store) ListProjects() []Project {
	ids := make(map[string]struct{})
	for _, dir := range parser.DiscoverClaudeProjectDirs(
		s.cfg.ClaudeProjectsDir,
	) {
		ids[dir] = struct{}{}
	}
	s.mu.Lock()
	for id := range s.projects {
		ids[id] = struct{}{}
	}
	s.mu.Unlock()

	projects := make([]Project, 0, len(ids))
	for id := range ids {
		meta, _ := s.projectMeta(id)
		projects = append(projects, Project{
			ID:            id,
			Path:          s.ResolveProjectPath(id),
			DisplayName:   meta.DisplayName,
			ManuallyAdded: meta.ManuallyAdded,
		})
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].ID < projects[j].ID
	})
	return projects
}

// AddProject registers a working directory as a tracked project
// without waiting for an assistant to log anything there. The
// original path is persisted so resolution never has to guess.
func (s *Store) AddProject(path, displayName string) (Project, error) {
	if path == "" {
		return Project{}, fmt.Errorf("project path is required")
	}
	id := parser.EncodeProjectDir(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[id]; exists {
		return Project{}, fmt.Errorf("project %s: %w", id, ErrConflict)
	}
	logDir := filepath.Join(s.cfg.ClaudeProjectsDir, id)
	if _, err := os.Stat(logDir); err == nil {
		return Project{}, fmt.Errorf("project %s: %w", id, ErrConflict)
	}

	s.projects[id] = ProjectMeta{
		DisplayName:   displayName,
		ManuallyAdded: true,
		OriginalPath:  path,
	}
	if err := s.saveProjectsLocked(); err != nil {
		delete(s.projects, id)
		return Project{}, fmt.Errorf("saving projects: %w", err)
	}
	s.pathCache.invalidate(id)
	return Project{
		ID:            id,
		Path:          path,
		DisplayName:   displayName,
		ManuallyAdded: true,
	}, nil
}

// RenameProject sets a project's display name. Discovered projects
// gain a metadata entry on first rename.
func (s *Store) RenameProject(id, displayName string) error {
	if !projectExists(s.cfg, id) && !s.hasMeta(id) {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := s.projects[id]
	meta.DisplayName = displayName
	s.projects[id] = meta
	return s.saveProjectsLocked()
}

// DeleteProject removes a project's metadata entry and, when its
// log directory is empty, the directory itself. A project that
// still has session logs is refused; delete the sessions first.
func (s *Store) DeleteProject(id string) error {
	logDir := filepath.Join(s.cfg.ClaudeProjectsDir, id)
	entries, dirErr := os.ReadDir(logDir)
	if dirErr == nil && len(entries) > 0 {
		return fmt.Errorf(
			"project %s still has sessions: %w", id, ErrConflict,
		)
	}

	s.mu.Lock()
	_, hadMeta := s.projects[id]
	if hadMeta {
		delete(s.projects, id)
		if err := s.saveProjectsLocked(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	removedDir := dirErr == nil && os.Remove(logDir) == nil

	if !hadMeta && !removedDir {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	s.pathCache.invalidate(id)
	s.claudeScan.invalidate(id)
	return nil
}

func (s *Store) hasMeta(id string) bool {
	_, ok := s.projectMeta(id)
	return ok
}

func projectExists(cfg config.Config, id string) bool {
	info, err := os.Stat(filepath.Join(cfg.ClaudeProjectsDir, id))
	return err == nil && info.IsDir()
}

// InvalidateProjectPathCache drops all cached path resolutions and
// directory scans. The watcher calls this when any log directory
// changes, so new sessions and renames show up on the next request.
func (s *Store) InvalidateProjectPathCache() {
	s.pathCache.clear()
	s.claudeScan.clear()
	s.codexScan.clear()
}
