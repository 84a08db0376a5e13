package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/weave"
	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/config"
	"github.com/aretw0/weave/pkg/observability"
	"golang.org/x/term"
)

// Options are the flags shared by every command.
type Options struct {
	// ConfigPath overrides config discovery in Dir.
	ConfigPath string
	Dir        string
	Debug      bool
	JSONLogs   bool
	// Store overrides settings.store when non-empty.
	Store string
}

// LoadConfig reads the configuration named by opts.
func LoadConfig(opts Options) (*config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		dir := opts.Dir
		if dir == "" {
			dir = "."
		}
		found, err := config.Find(dir)
		if err != nil {
			return nil, err
		}
		path = found
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.Store != "" {
		cfg.Settings.Store = opts.Store
	}
	return cfg, nil
}

// createLogger configures the application logger.
// Logs go to stderr so stdout stays clean for reports and graphs.
func createLogger(opts Options, cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil {
		level = logging.ParseLevel(cfg.Settings.LogLevel)
	}
	if opts.Debug {
		level = slog.LevelDebug
	}
	return logging.NewWithWriter(w, level, opts.JSONLogs)
}

// createOrchestrator loads the configuration and wires an orchestrator.
// Debug mode adds audit hooks logging every lifecycle event.
func createOrchestrator(opts Options, stderr io.Writer) (*weave.Orchestrator, *config.Config, *slog.Logger, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := createLogger(opts, cfg, stderr)

	wopts := []weave.Option{weave.WithLogger(logger)}
	if opts.Debug {
		wopts = append(wopts, weave.WithHooks(observability.AuditHooks(logger)))
	}
	o, err := weave.New(cfg, wopts...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error initializing orchestrator: %w", err)
	}
	return o, cfg, logger, nil
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func relTo(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil {
		return rel
	}
	return path
}
