package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Host              string `json:"host"`
	Port              int    `json:"port"`
	ClaudeProjectsDir string `json:"claude_projects_dir"`
	CodexSessionsDir  string `json:"codex_sessions_dir"`
	CursorChatsDir    string `json:"cursor_chats_dir"`
	DataDir           string `json:"data_dir"`
	ProjectsPath      string `json:"-"`

	// Heuristic knobs. These encode product judgment rather than
	// correctness, so they are configurable with the historical
	// defaults.
	SummaryMaxLen      int           `json:"summary_max_len"`
	RecentCwdThreshold float64       `json:"recent_cwd_threshold"`
	ScanCacheTTL       time.Duration `json:"-"`

	WriteTimeout time.Duration `json:"-"`
}

// Default returns a Config with default values.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf(
			"determining home directory: %w", err,
		)
	}
	dataDir := filepath.Join(home, ".sessionhub")
	return Config{
		Host:              "127.0.0.1",
		Port:              8090,
		ClaudeProjectsDir: filepath.Join(home, ".claude", "projects"),
		CodexSessionsDir:  filepath.Join(home, ".codex", "sessions"),
		CursorChatsDir:    filepath.Join(home, ".cursor", "chats"),
		DataDir:           dataDir,
		ProjectsPath:      filepath.Join(dataDir, "projects.json"),

		SummaryMaxLen:      50,
		RecentCwdThreshold: 0.25,
		ScanCacheTTL:       10 * time.Second,

		WriteTimeout: 30 * time.Second,
	}, nil
}

// Load builds a Config by layering: defaults < config file < env < flags.
// The provided FlagSet must already be parsed by the caller. Only flags
// that were explicitly set override the lower layers.
func Load(fs *flag.FlagSet) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}
	if err := cfg.loadFile(); err != nil {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	cfg.loadEnv()
	applyFlags(&cfg, fs)
	cfg.ProjectsPath = filepath.Join(cfg.DataDir, "projects.json")
	return cfg, nil
}

func (c *Config) configPath() string {
	return filepath.Join(c.DataDir, "config.json")
}

func (c *Config) loadFile() error {
	data, err := os.ReadFile(c.configPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var file struct {
		Host               string  `json:"host"`
		Port               int     `json:"port"`
		ClaudeProjectsDir  string  `json:"claude_projects_dir"`
		CodexSessionsDir   string  `json:"codex_sessions_dir"`
		CursorChatsDir     string  `json:"cursor_chats_dir"`
		SummaryMaxLen      int     `json:"summary_max_len"`
		RecentCwdThreshold float64 `json:"recent_cwd_threshold"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if file.Host != "" {
		c.Host = file.Host
	}
	if file.Port != 0 {
		c.Port = file.Port
	}
	if file.ClaudeProjectsDir != "" {
		c.ClaudeProjectsDir = file.ClaudeProjectsDir
	}
	if file.CodexSessionsDir != "" {
		c.CodexSessionsDir = file.CodexSessionsDir
	}
	if file.CursorChatsDir != "" {
		c.CursorChatsDir = file.CursorChatsDir
	}
	if file.SummaryMaxLen > 0 {
		c.SummaryMaxLen = file.SummaryMaxLen
	}
	if file.RecentCwdThreshold > 0 {
		c.RecentCwdThreshold = file.RecentCwdThreshold
	}
	return nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv("CLAUDE_PROJECTS_DIR"); v != "" {
		c.ClaudeProjectsDir = v
	}
	if v := os.Getenv("CODEX_SESSIONS_DIR"); v != "" {
		c.CodexSessionsDir = v
	}
	if v := os.Getenv("CURSOR_CHATS_DIR"); v != "" {
		c.CursorChatsDir = v
	}
	if v := os.Getenv("SESSIONHUB_DATA_DIR"); v != "" {
		c.DataDir = v
	}
}

// RegisterServeFlags registers serve-command flags on fs.
// The caller must call fs.Parse before passing fs to Load.
func RegisterServeFlags(fs *flag.FlagSet) {
	fs.String("host", "127.0.0.1", "Host to bind to")
	fs.Int("port", 8090, "Port to listen on")
}

// applyFlags copies explicitly-set flags from fs into cfg.
func applyFlags(cfg *Config, fs *flag.FlagSet) {
	if fs == nil {
		return
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = f.Value.String()
		case "port":
			// flag already validated the int; ignore parse error
			cfg.Port, _ = strconv.Atoi(f.Value.String())
		}
	})
}
