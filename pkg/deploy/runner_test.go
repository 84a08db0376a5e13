package deploy_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/weave/pkg/adapters/memory"
	"github.com/aretw0/weave/pkg/deploy"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
	"github.com/aretw0/weave/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptRunner fails the commands listed in fail and records every command.
type scriptRunner struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
	hook  func(cmd ports.Command)
}

func (r *scriptRunner) Run(_ context.Context, cmd ports.Command) (ports.CommandResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd.Command)
	hook := r.hook
	fail := r.fail[cmd.Command]
	r.mu.Unlock()
	if hook != nil {
		hook(cmd)
	}
	if fail {
		return ports.CommandResult{ExitCode: 1, Stderr: "boom"}, nil
	}
	return ports.CommandResult{}, nil
}

func (r *scriptRunner) count(command string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == command {
			n++
		}
	}
	return n
}

type okBuilder struct {
	fail bool
}

func (b okBuilder) Build(context.Context, string, bool) (bool, error) {
	return !b.fail, nil
}

func webPlatform(dir string) domain.Platform {
	return domain.Platform{
		ID:             "web",
		Technology:     domain.TechWeb,
		Dir:            dir,
		BuildCmd:       "npm run build",
		TestCmd:        "npm test",
		DeployCmd:      "npm run deploy",
		HealthCheckCmd: "curl -f localhost",
		RollbackCmd:    "npm run rollback",
		Artifacts:      []string{"dist"},
	}
}

func setup(t *testing.T, fail map[string]bool, opts ...deploy.Option) (*deploy.Runner, *scriptRunner, *registry.Registry, string) {
	t.Helper()
	dir := t.TempDir()
	reg, err := registry.New([]domain.Platform{webPlatform(dir)})
	require.NoError(t, err)
	runner := &scriptRunner{fail: fail}
	return deploy.NewRunner(reg, okBuilder{}, runner, opts...), runner, reg, dir
}

func TestRun_Success(t *testing.T) {
	at := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	var statuses []domain.PipelineStatus
	r, runner, reg, _ := setup(t, nil,
		deploy.WithClock(func() time.Time { return at }),
		deploy.WithHooks(domain.LifecycleHooks{OnPipelineChange: func(_ context.Context, ev *domain.PipelineEvent) {
			if ev.Step == "" {
				statuses = append(statuses, ev.Status)
			}
		}}),
	)
	platform, _ := reg.Get("web")

	p, err := r.Run(context.Background(), deploy.NewPipeline(platform, domain.Trigger{Urgency: domain.UrgencyLow}, ""))
	require.NoError(t, err)
	assert.Equal(t, domain.PipelineSucceeded, p.Status)
	assert.Equal(t, "production", p.Environment)
	assert.Len(t, p.Results, 5)
	assert.Equal(t, []domain.PipelineStatus{domain.PipelineRunning, domain.PipelineSucceeded}, statuses)
	assert.Equal(t, 2, runner.count("curl -f localhost"), "pre-check and verify")
	assert.Zero(t, runner.count("npm run build"), "build goes through the coordinator")

	synced, _ := reg.Get("web")
	require.NotNil(t, synced.LastSync)
	assert.True(t, at.Equal(*synced.LastSync))
	assert.Len(t, r.History(), 1)
}

func TestRun_LowUrgencyFailureDoesNotRollBack(t *testing.T) {
	r, runner, reg, _ := setup(t, map[string]bool{"npm run deploy": true})
	platform, _ := reg.Get("web")

	p, err := r.Run(context.Background(), deploy.NewPipeline(platform, domain.Trigger{Urgency: domain.UrgencyLow}, ""))
	assert.ErrorIs(t, err, domain.ErrPipelineFailed)
	assert.Equal(t, domain.PipelineFailed, p.Status)
	assert.Equal(t, domain.StepDeploy, p.FailedStep)
	assert.Zero(t, runner.count("npm run rollback"))
	assert.Len(t, p.Results, 4, "verify never runs")

	after, _ := reg.Get("web")
	assert.Nil(t, after.LastSync)
}

func TestRun_HighUrgencyFailureRollsBackOnce(t *testing.T) {
	vaultDir := t.TempDir()
	var statuses []domain.PipelineStatus
	r, runner, reg, dir := setup(t, map[string]bool{"curl -f localhost": false},
		deploy.WithVault(deploy.NewVault(vaultDir)),
		deploy.WithHooks(domain.LifecycleHooks{OnPipelineChange: func(_ context.Context, ev *domain.PipelineEvent) {
			if ev.Step == "" || ev.Status != domain.PipelineRunning {
				statuses = append(statuses, ev.Status)
			}
		}}),
	)

	// the deploy step overwrites the artifact, then verify fails
	dist := filepath.Join(dir, "dist")
	require.NoError(t, os.MkdirAll(dist, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dist, "app.js"), []byte("v1"), 0644))
	runner.hook = func(cmd ports.Command) {
		if cmd.Command == "npm run deploy" {
			_ = os.WriteFile(filepath.Join(dist, "app.js"), []byte("v2"), 0644)
			runner.mu.Lock()
			runner.fail["curl -f localhost"] = true
			runner.mu.Unlock()
		}
	}

	platform, _ := reg.Get("web")
	p, err := r.Run(context.Background(), deploy.NewPipeline(platform, domain.Trigger{Urgency: domain.UrgencyHigh}, "staging"))
	assert.ErrorIs(t, err, domain.ErrPipelineFailed)
	assert.True(t, p.RollbackOnFailure)
	assert.Equal(t, domain.StepVerify, p.FailedStep)
	assert.Equal(t, domain.PipelineRolledBack, p.Status)
	assert.Equal(t, 1, runner.count("npm run rollback"), "rollback runs exactly once")
	assert.Equal(t, []domain.PipelineStatus{domain.PipelineRunning, domain.PipelineRollingBack, domain.PipelineRolledBack}, statuses)

	data, err := os.ReadFile(filepath.Join(dist, "app.js"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data), "artifact restored from the vault")

	entries, _ := os.ReadDir(filepath.Join(vaultDir, "web"))
	assert.Empty(t, entries, "snapshot discarded")
}

func TestRun_RollbackCommandFails(t *testing.T) {
	r, _, reg, _ := setup(t, map[string]bool{"npm test": true, "npm run rollback": true})
	platform, _ := reg.Get("web")

	p, err := r.Run(context.Background(), deploy.NewPipeline(platform, domain.Trigger{Urgency: domain.UrgencyMedium}, ""))
	assert.ErrorIs(t, err, domain.ErrPipelineFailed)
	assert.Equal(t, domain.PipelineFailed, p.Status)
	assert.Equal(t, domain.StepTest, p.FailedStep)
}

func TestRun_BuildFailure(t *testing.T) {
	dir := t.TempDir()
	reg, err := registry.New([]domain.Platform{webPlatform(dir)})
	require.NoError(t, err)
	runner := &scriptRunner{}
	r := deploy.NewRunner(reg, okBuilder{fail: true}, runner)
	platform, _ := reg.Get("web")

	p, err := r.Run(context.Background(), deploy.NewPipeline(platform, domain.Trigger{Urgency: domain.UrgencyHigh}, ""))
	assert.Error(t, err)
	assert.Equal(t, domain.StepBuild, p.FailedStep)
	assert.Zero(t, runner.count("npm run deploy"))
}

func TestRun_InFlightCoalesced(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	r, runner, reg, _ := setup(t, nil)
	runner.hook = func(cmd ports.Command) {
		if cmd.Command == "npm run deploy" {
			started <- struct{}{}
			<-release
		}
	}
	platform, _ := reg.Get("web")
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(ctx, deploy.NewPipeline(platform, domain.Trigger{Urgency: domain.UrgencyLow}, ""))
		done <- err
	}()
	<-started
	assert.True(t, r.Running("web"))

	_, err := r.Run(ctx, deploy.NewPipeline(platform, domain.Trigger{Urgency: domain.UrgencyHigh}, ""))
	assert.ErrorIs(t, err, domain.ErrPipelineInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, r.Running("web"))
}

func TestRun_UnavailablePlatform(t *testing.T) {
	r, runner, reg, _ := setup(t, nil)
	ctx := context.Background()
	require.NoError(t, reg.SetHealth(ctx, "web", domain.StatusUnavailable, time.Now()))
	platform, _ := reg.Get("web")

	_, err := r.Run(ctx, deploy.NewPipeline(platform, domain.Trigger{Urgency: domain.UrgencyHigh}, ""))
	assert.ErrorIs(t, err, domain.ErrPlatformUnavailable)
	assert.Empty(t, runner.calls)
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-10 * time.Minute)
	stale := now.Add(-2 * time.Hour)

	reg, err := registry.New([]domain.Platform{
		{ID: "web", DeployCmd: "deploy"},
		{ID: "mobile", DeployCmd: "deploy"},
		{ID: "desktop", DeployCmd: "deploy"},
		{ID: "cloud", DeployCmd: "deploy"},
		{ID: "lib"},
	})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, reg.MarkSynced(ctx, "web", fresh))
	require.NoError(t, reg.MarkSynced(ctx, "mobile", stale))
	require.NoError(t, reg.MarkSynced(ctx, "cloud", stale))
	require.NoError(t, reg.SetHealth(ctx, "cloud", domain.StatusUnavailable, now))

	signals := memory.NewSignals()
	require.NoError(t, signals.Raise(ctx, domain.Trigger{PlatformID: "web", Urgency: domain.UrgencyHigh, Reason: "CVE patch"}))

	r := deploy.NewRunner(reg, okBuilder{}, &scriptRunner{}, deploy.WithSignalSource(signals))
	triggers, err := r.Evaluate(ctx, now)
	require.NoError(t, err)

	require.Len(t, triggers, 3)
	assert.Equal(t, "desktop", triggers[0].PlatformID)
	assert.Equal(t, domain.UrgencyLow, triggers[0].Urgency, "never synced")
	assert.Equal(t, "mobile", triggers[1].PlatformID)
	assert.Equal(t, domain.UrgencyLow, triggers[1].Urgency)
	assert.False(t, triggers[1].RollbackOnFailure())
	assert.Equal(t, "web", triggers[2].PlatformID)
	assert.Equal(t, domain.UrgencyHigh, triggers[2].Urgency)
	assert.True(t, triggers[2].RollbackOnFailure())

	again, err := r.Evaluate(ctx, now)
	require.NoError(t, err)
	assert.Len(t, again, 3, "signal is held until a pipeline starts")

	platform, _ := reg.Get("web")
	_, err = r.Run(ctx, deploy.NewPipeline(platform, triggers[2], ""))
	require.NoError(t, err)
	again, err = r.Evaluate(ctx, now)
	require.NoError(t, err)
	assert.Len(t, again, 2, "signal released by the high urgency pipeline")
}

func TestTick_SignalDuringRunningPipelineIsKept(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	signals := memory.NewSignals()
	r, runner, reg, _ := setup(t, nil, deploy.WithSignalSource(signals))

	var once sync.Once
	runner.hook = func(cmd ports.Command) {
		if cmd.Command == "npm run deploy" {
			once.Do(func() {
				started <- struct{}{}
				<-release
			})
		}
	}
	ctx := context.Background()
	platform, _ := reg.Get("web")

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(ctx, deploy.NewPipeline(platform, domain.Trigger{Urgency: domain.UrgencyLow}, ""))
		done <- err
	}()
	<-started

	require.NoError(t, signals.Raise(ctx, domain.Trigger{PlatformID: "web", Urgency: domain.UrgencyHigh}))
	pipelines, err := r.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, pipelines, "web is busy")

	close(release)
	require.NoError(t, <-done)

	pipelines, err = r.Tick(ctx)
	require.NoError(t, err)
	require.Len(t, pipelines, 1)
	assert.Equal(t, domain.UrgencyHigh, pipelines[0].Urgency)
	assert.True(t, pipelines[0].RollbackOnFailure)

	pipelines, err = r.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, pipelines, "signal delivered once")
}

func TestTick_SignalForUnhealthyPlatformIsKept(t *testing.T) {
	signals := memory.NewSignals()
	r, _, reg, _ := setup(t, nil, deploy.WithSignalSource(signals))
	ctx := context.Background()
	require.NoError(t, reg.MarkSynced(ctx, "web", time.Now()))
	require.NoError(t, reg.SetHealth(ctx, "web", domain.StatusUnavailable, time.Now()))

	require.NoError(t, signals.Raise(ctx, domain.Trigger{PlatformID: "web", Urgency: domain.UrgencyHigh}))
	pipelines, err := r.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, pipelines)

	require.NoError(t, reg.SetHealth(ctx, "web", domain.StatusAvailable, time.Now()))
	pipelines, err = r.Tick(ctx)
	require.NoError(t, err)
	require.Len(t, pipelines, 1)
	assert.Equal(t, domain.UrgencyHigh, pipelines[0].Urgency)
}

func TestTick(t *testing.T) {
	dir := t.TempDir()
	mobile := webPlatform(dir)
	mobile.ID = "mobile"
	reg, err := registry.New([]domain.Platform{webPlatform(dir), mobile})
	require.NoError(t, err)
	runner := &scriptRunner{fail: map[string]bool{}}
	r := deploy.NewRunner(reg, okBuilder{}, runner)

	pipelines, err := r.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, pipelines, 2)
	assert.Equal(t, "mobile", pipelines[0].PlatformID)
	assert.Equal(t, domain.PipelineSucceeded, pipelines[1].Status)

	pipelines, err = r.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pipelines, "both platforms are fresh now")
}
