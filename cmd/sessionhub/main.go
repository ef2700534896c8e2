package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sessionhub/sessionhub/internal/config"
	"github.com/sessionhub/sessionhub/internal/server"
	"github.com/sessionhub/sessionhub/internal/store"
	"github.com/sessionhub/sessionhub/internal/watch"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

const (
	watcherDebounce = 500 * time.Millisecond
	shutdownGrace   = 5 * time.Second
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "version", "--version", "-v":
			fmt.Printf("sessionhub %s (commit %s, built %s)\n",
				version, commit, buildDate)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	runServe(os.Args[1:])
}

func printUsage() {
	fmt.Printf(`sessionhub %s - local API for AI assistant session history

Aggregates Claude Code, Codex, and Cursor conversation logs
straight from disk and serves them over a local REST API. The
logs are the single source of truth; nothing is copied or
indexed.

Usage:
  sessionhub [flags]          Start the server (default command)
  sessionhub serve [flags]    Start the server (explicit)
  sessionhub version          Show version information
  sessionhub help             Show this help

Server flags:
  -host string        Host to bind to (default "127.0.0.1")
  -port int           Port to listen on (default 8090)

Environment variables:
  CLAUDE_PROJECTS_DIR   Claude Code projects directory
  CODEX_SESSIONS_DIR    Codex sessions directory
  CURSOR_CHATS_DIR      Cursor chats directory
  SESSIONHUB_DATA_DIR   Data directory (projects.json, config)

Data is stored in ~/.sessionhub/ by default.
`, version)
}

func runServe(args []string) {
	cfg := mustLoadConfig(args)

	st, err := store.New(cfg)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}

	stopWatcher := startFileWatcher(cfg, st)
	defer stopWatcher()

	port := server.FindAvailablePort(cfg.Host, cfg.Port)
	if port != cfg.Port {
		fmt.Printf("Port %d in use, using %d\n", cfg.Port, port)
	}
	cfg.Port = port

	srv := server.New(cfg, st,
		server.WithVersion(server.VersionInfo{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
		}),
	)

	fmt.Printf("sessionhub %s listening at http://%s:%d\n",
		version, cfg.Host, cfg.Port)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case <-stop:
		fmt.Println("\nShutting down...")
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownGrace,
		)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}

func mustLoadConfig(args []string) config.Config {
	fs := flag.NewFlagSet("sessionhub", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			"Usage: sessionhub [serve] [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	config.RegisterServeFlags(fs)
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}
	return cfg
}

func startFileWatcher(cfg config.Config, st *store.Store) func() {
	onChange := func([]string) {
		st.InvalidateProjectPathCache()
	}
	watcher, err := watch.New(watcherDebounce, onChange)
	if err != nil {
		log.Printf("warning: file watcher unavailable: %v", err)
		return func() {}
	}

	for _, dir := range []string{
		cfg.ClaudeProjectsDir,
		cfg.CodexSessionsDir,
		cfg.CursorChatsDir,
	} {
		_, _, _ = watcher.WatchRecursive(dir)
	}
	watcher.Start()
	return watcher.Stop
}
