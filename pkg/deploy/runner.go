// Package deploy runs deployment pipelines with conditional rollback and
// decides which platforms need redeploying.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
	"github.com/aretw0/weave/pkg/registry"
	"github.com/google/uuid"
)

const (
	// DefaultStaleAfter is how long a platform may go without a successful deploy.
	DefaultStaleAfter = time.Hour
	// DefaultEnvironment is used when a platform declares no environments.
	DefaultEnvironment = "production"

	historySize = 50
)

// Builder builds one platform; see build.Coordinator.
type Builder interface {
	Build(ctx context.Context, id string, force bool) (bool, error)
}

// Runner executes pipelines. At most one pipeline runs per platform; pipelines
// for different platforms may run concurrently.
type Runner struct {
	registry *registry.Registry
	builder  Builder
	runner   ports.CommandRunner
	vault    *Vault
	signals  ports.SignalSource
	env      func(domain.Platform) []string
	hooks    domain.LifecycleHooks
	logger   *slog.Logger

	staleAfter time.Duration
	now        func() time.Time

	mu      sync.Mutex
	active  map[string]bool
	held    map[string]domain.Trigger
	history []domain.Pipeline

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the Runner.
type Option func(*Runner)

// WithVault enables artifact snapshots for rollback.
func WithVault(v *Vault) Option {
	return func(r *Runner) {
		r.vault = v
	}
}

// WithSignalSource wires the source of critical redeploy requests.
func WithSignalSource(s ports.SignalSource) Option {
	return func(r *Runner) {
		r.signals = s
	}
}

// WithEnv sets the function computing extra environment for pipeline commands.
func WithEnv(fn func(domain.Platform) []string) Option {
	return func(r *Runner) {
		r.env = fn
	}
}

func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Runner) {
		r.hooks = hooks
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithStaleAfter sets the age after which a platform is redeployed at low urgency.
func WithStaleAfter(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.staleAfter = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

func NewRunner(reg *registry.Registry, builder Builder, runner ports.CommandRunner, opts ...Option) *Runner {
	r := &Runner{
		registry:   reg,
		builder:    builder,
		runner:     runner,
		logger:     logging.NewNop(),
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		active:     make(map[string]bool),
		held:       make(map[string]domain.Trigger),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewPipeline assembles the standard pipeline for a platform.
// The health command doubles as pre-check and verify.
func NewPipeline(p domain.Platform, trigger domain.Trigger, environment string) *domain.Pipeline {
	if environment == "" {
		environment = DefaultEnvironment
		if len(p.Environments) > 0 {
			environment = p.Environments[0]
		}
	}
	return &domain.Pipeline{
		ID:          uuid.NewString(),
		PlatformID:  p.ID,
		Environment: environment,
		Urgency:     trigger.Urgency,
		Steps: []domain.PipelineStep{
			{Name: domain.StepPreCheck, Command: p.HealthCheckCmd},
			{Name: domain.StepBuild, Command: p.BuildCmd},
			{Name: domain.StepTest, Command: p.TestCmd},
			{Name: domain.StepDeploy, Command: p.DeployCmd},
			{Name: domain.StepVerify, Command: p.HealthCheckCmd},
		},
		RollbackOnFailure: trigger.RollbackOnFailure(),
		Status:            domain.PipelinePending,
	}
}

// Run executes the pipeline's steps in order.
//
// When a step fails and RollbackOnFailure is set the pipeline moves to
// rolling_back, restores the artifact snapshot and runs the rollback command
// once, ending in rolled_back. Otherwise it ends in failed and the platform is
// left as the failed step left it. Success records the sync time.
func (r *Runner) Run(ctx context.Context, p *domain.Pipeline) (*domain.Pipeline, error) {
	if !r.claim(p.PlatformID) {
		return p, fmt.Errorf("%w: %s", domain.ErrPipelineInFlight, p.PlatformID)
	}
	defer r.releaseClaim(p.PlatformID)

	platform, err := r.registry.Get(p.PlatformID)
	if err != nil {
		return p, err
	}
	if platform.Status == domain.StatusUnavailable {
		return p, fmt.Errorf("%w: %s", domain.ErrPlatformUnavailable, p.PlatformID)
	}
	r.settle(p.PlatformID, p.Urgency)

	logger := r.logger.With("pipeline_id", p.ID, "platform_id", p.PlatformID, "environment", p.Environment)
	p.StartedAt = r.now()
	r.transition(ctx, p, domain.PipelineRunning, "")
	logger.Info("pipeline started", "urgency", p.Urgency, "rollback_on_failure", p.RollbackOnFailure)

	var snap *Snapshot
	if r.vault != nil && len(platform.Artifacts) > 0 {
		snap, err = r.vault.Save(platform, p.ID)
		if err != nil {
			logger.Warn("artifact snapshot failed, rollback will only run the rollback command", "error", err)
		}
	}

	for _, step := range p.Steps {
		result := r.runStep(ctx, platform, p, step)
		p.Results = append(p.Results, result)
		if result.Skipped || result.ExitCode == 0 {
			continue
		}

		p.FailedStep = step.Name
		logger.Error("pipeline step failed", "step", step.Name, "exit_code", result.ExitCode, "output", result.Output)
		if p.RollbackOnFailure {
			r.rollback(ctx, platform, p, snap, logger)
		} else {
			r.transition(ctx, p, domain.PipelineFailed, step.Name)
			r.discard(snap, logger)
		}
		r.finish(p)
		return p, fmt.Errorf("%w: %s at %s", domain.ErrPipelineFailed, p.PlatformID, step.Name)
	}

	r.discard(snap, logger)
	if err := r.registry.MarkSynced(ctx, p.PlatformID, r.now()); err != nil {
		logger.Warn("failed to record sync time", "error", err)
	}
	r.transition(ctx, p, domain.PipelineSucceeded, "")
	r.finish(p)
	logger.Info("pipeline succeeded", "duration", p.FinishedAt.Sub(p.StartedAt))
	return p, nil
}

func (r *Runner) runStep(ctx context.Context, platform domain.Platform, p *domain.Pipeline, step domain.PipelineStep) domain.StepResult {
	result := domain.StepResult{Name: step.Name}
	if step.Command == "" {
		result.Skipped = true
		return result
	}
	r.emit(ctx, p, step.Name)

	start := time.Now()
	if err := ctx.Err(); err != nil {
		result.ExitCode = -1
		result.Output = err.Error()
		return result
	}

	if step.Name == domain.StepBuild && r.builder != nil {
		ok, err := r.builder.Build(ctx, platform.ID, true)
		switch {
		case err != nil:
			result.ExitCode = -1
			result.Output = err.Error()
		case !ok:
			result.ExitCode = 1
		}
		result.Duration = time.Since(start)
		return result
	}

	res, err := r.runner.Run(ctx, ports.Command{
		Key:     platform.ID,
		Dir:     platform.Dir,
		Command: step.Command,
		Env:     r.envFor(platform, p),
	})
	result.ExitCode = res.ExitCode
	result.Output = res.Stdout + res.Stderr
	if err != nil {
		result.ExitCode = -1
		result.Output = err.Error()
	}
	result.Duration = time.Since(start)
	return result
}

// rollback runs exactly once per failed pipeline.
func (r *Runner) rollback(ctx context.Context, platform domain.Platform, p *domain.Pipeline, snap *Snapshot, logger *slog.Logger) {
	r.transition(ctx, p, domain.PipelineRollingBack, p.FailedStep)
	logger.Warn("rolling back")

	// rollback must complete even if the trigger was cancelled
	rctx := context.WithoutCancel(ctx)
	ok := true
	if snap != nil {
		if err := r.vault.Restore(snap); err != nil {
			logger.Error("artifact restore failed", "error", err)
			ok = false
		}
		r.discard(snap, logger)
	}
	if platform.RollbackCmd != "" {
		res, err := r.runner.Run(rctx, ports.Command{
			Key:     platform.ID,
			Dir:     platform.Dir,
			Command: platform.RollbackCmd,
			Env:     r.envFor(platform, p),
		})
		if err != nil || !res.Success() {
			logger.Error("rollback command failed", "exit_code", res.ExitCode, "error", err)
			ok = false
		}
	}

	if !ok {
		r.transition(ctx, p, domain.PipelineFailed, p.FailedStep)
		return
	}
	r.transition(ctx, p, domain.PipelineRolledBack, p.FailedStep)
	logger.Info("rolled back")
}

func (r *Runner) envFor(platform domain.Platform, p *domain.Pipeline) []string {
	env := []string{"WEAVE_ENVIRONMENT=" + p.Environment, "WEAVE_PIPELINE_ID=" + p.ID}
	if r.env != nil {
		env = append(env, r.env(platform)...)
	}
	return env
}

func (r *Runner) discard(snap *Snapshot, logger *slog.Logger) {
	if snap == nil {
		return
	}
	if err := r.vault.Discard(snap); err != nil {
		logger.Warn("failed to discard snapshot", "error", err)
	}
}

func (r *Runner) transition(ctx context.Context, p *domain.Pipeline, status domain.PipelineStatus, step domain.StepKind) {
	p.Status = status
	if r.hooks.OnPipelineChange != nil {
		r.hooks.OnPipelineChange(ctx, &domain.PipelineEvent{
			PipelineID: p.ID,
			PlatformID: p.PlatformID,
			Status:     status,
			Step:       step,
		})
	}
}

func (r *Runner) emit(ctx context.Context, p *domain.Pipeline, step domain.StepKind) {
	if r.hooks.OnPipelineChange != nil {
		r.hooks.OnPipelineChange(ctx, &domain.PipelineEvent{
			PipelineID: p.ID,
			PlatformID: p.PlatformID,
			Status:     p.Status,
			Step:       step,
		})
	}
}

func (r *Runner) finish(p *domain.Pipeline) {
	at := r.now()
	p.FinishedAt = &at

	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, *p)
	if len(r.history) > historySize {
		r.history = r.history[len(r.history)-historySize:]
	}
}

func (r *Runner) claim(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[id] {
		return false
	}
	r.active[id] = true
	return true
}

func (r *Runner) releaseClaim(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, id)
}

// Running reports whether a pipeline is executing for the platform.
func (r *Runner) Running(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[id]
}

// History returns the most recent finished pipelines, oldest first.
func (r *Runner) History() []domain.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Pipeline(nil), r.history...)
}
