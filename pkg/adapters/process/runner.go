package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/ports"
)

// DefaultWaitDelay bounds how long Wait blocks on output pipes after the
// process was signalled.
const DefaultWaitDelay = 5 * time.Second

// Runner executes platform commands through a shell and keeps track of every
// running child so they can be terminated on shutdown.
type Runner struct {
	shell     string
	baseDir   string
	waitDelay time.Duration
	inherit   []string
	logger    *slog.Logger

	mu      sync.Mutex
	running map[*exec.Cmd]string
}

var _ ports.CommandRunner = (*Runner)(nil)

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithShell overrides the shell used to interpret commands (default "sh").
func WithShell(shell string) RunnerOption {
	return func(r *Runner) {
		r.shell = shell
	}
}

// WithBaseDir resolves relative command directories against dir.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithInheritedEnv limits the variables children inherit from the orchestrator
// to the named keys. By default the whole environment is inherited.
func WithInheritedEnv(keys ...string) RunnerOption {
	return func(r *Runner) {
		r.inherit = keys
	}
}

// WithWaitDelay sets the grace period after cancellation before pipes are closed.
func WithWaitDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.waitDelay = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a new process runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		shell:     "sh",
		waitDelay: DefaultWaitDelay,
		logger:    logging.NewNop(),
		running:   make(map[*exec.Cmd]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes cmd.Command with "<shell> -c" and captures its output.
// A non-zero exit code is reported in the result, not as an error.
func (r *Runner) Run(ctx context.Context, cmd ports.Command) (ports.CommandResult, error) {
	if cmd.Command == "" {
		return ports.CommandResult{}, errors.New("empty command")
	}

	c := exec.CommandContext(ctx, r.shell, "-c", cmd.Command)
	c.Dir = r.resolveDir(cmd.Dir)
	c.Env = append(r.baseEnv(), cmd.Env...)
	c.Cancel = func() error {
		return c.Process.Signal(syscall.SIGTERM)
	}
	c.WaitDelay = r.waitDelay

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Start(); err != nil {
		return ports.CommandResult{ExitCode: -1}, fmt.Errorf("failed to start %q: %w", cmd.Command, err)
	}
	r.track(c, cmd.Key)
	err := c.Wait()
	r.untrack(c)

	result := ports.CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if c.ProcessState != nil {
		result.ExitCode = c.ProcessState.ExitCode()
	}

	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if result.ExitCode < 0 {
				// killed by a signal outside our context
				result.ExitCode = 1
			}
			return result, nil
		}
		return result, fmt.Errorf("failed waiting for %q: %w", cmd.Command, err)
	}
	return result, nil
}

// Running lists the keys of processes currently executing, sorted.
func (r *Runner) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.running))
	for _, key := range r.running {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// TerminateAll sends SIGTERM to every running child and returns how many were signalled.
func (r *Runner) TerminateAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for c, key := range r.running {
		if c.Process == nil {
			continue
		}
		if err := c.Process.Signal(syscall.SIGTERM); err != nil {
			r.logger.Warn("failed to terminate process", "key", key, "pid", c.Process.Pid, "error", err)
			continue
		}
		r.logger.Info("terminated process", "key", key, "pid", c.Process.Pid)
		n++
	}
	return n
}

func (r *Runner) track(c *exec.Cmd, key string) {
	r.mu.Lock()
	r.running[c] = key
	r.mu.Unlock()
}

func (r *Runner) untrack(c *exec.Cmd) {
	r.mu.Lock()
	delete(r.running, c)
	r.mu.Unlock()
}

func (r *Runner) baseEnv() []string {
	if r.inherit == nil {
		return os.Environ()
	}
	env := make([]string, 0, len(r.inherit))
	for _, k := range r.inherit {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	return env
}

func (r *Runner) resolveDir(dir string) string {
	if dir == "" {
		return r.baseDir
	}
	if filepath.IsAbs(dir) || r.baseDir == "" {
		return dir
	}
	return filepath.Join(r.baseDir, dir)
}
