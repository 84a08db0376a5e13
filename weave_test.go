package weave_test

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/weave"
	"github.com/aretw0/weave/pkg/adapters/memory"
	"github.com/aretw0/weave/pkg/config"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu   sync.Mutex
	cmds []string
	fail map[string]bool
}

func (r *recordingRunner) Run(_ context.Context, cmd ports.Command) (ports.CommandResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd.Command)
	if r.fail[cmd.Command] {
		return ports.CommandResult{ExitCode: 1, Stderr: "boom"}, nil
	}
	return ports.CommandResult{}, nil
}

func (r *recordingRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.cmds...)
}

const project = `
sharedLibrary: shared
platforms:
  - id: shared
    technology: library
    dir: shared
    buildCommand: build-shared
    dependents: [web, cloud]
  - id: web
    technology: web
    dir: web
    buildCommand: build-web
    deployCommand: deploy-web
  - id: cloud
    technology: cloud
    dir: cloud
    buildCommand: build-cloud
synchronizers:
  - id: shared-source
    watchPaths: ["shared/src/**/*.ts"]
    targets: [web, cloud]
    strategy: cascade
integrations:
  - id: auth-sync
    platforms: [web, cloud]
    protocol: websocket
    realtime: true
settings:
  debounce: 20ms
  store: memory
  http:
    addr: 127.0.0.1:0
`

func setup(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	for _, p := range []string{"shared/src", "web", "cloud"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, p), 0755))
	}
	cfg, err := config.Parse([]byte(project), ".yaml", dir)
	require.NoError(t, err)
	return cfg, dir
}

func TestOrchestrator_CascadeOnSharedChange(t *testing.T) {
	cfg, dir := setup(t)
	runner := &recordingRunner{}

	o, err := weave.New(cfg, weave.WithRunner(runner))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, o.Start(ctx))

	require.NoError(t, o.Submit(ctx, domain.ChangeEvent{
		Kind: domain.ChangeModify,
		Path: filepath.Join(dir, "shared", "src", "index.ts"),
	}))

	assert.Eventually(t, func() bool { return len(runner.ran()) == 3 }, 2*time.Second, 10*time.Millisecond)
	ran := runner.ran()
	assert.Equal(t, "build-shared", ran[0], "origin builds first")
	assert.ElementsMatch(t, []string{"build-web", "build-cloud"}, ran[1:])

	report, err := o.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Statistics.Total)
	assert.Equal(t, 3, report.Statistics.Available)
}

func TestOrchestrator_StopWritesReport(t *testing.T) {
	cfg, dir := setup(t)
	o, err := weave.New(cfg, weave.WithRunner(&recordingRunner{}))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, o.Start(ctx))
	_, err = o.Stop(ctx)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "weave-report.json"))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"platforms", "integrations", "synchronizers", "statistics"} {
		assert.Contains(t, raw, key)
	}

	var report domain.ShutdownReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, domain.TechWeb, report.Platforms["web"].Type)
	assert.Equal(t, domain.StatusAvailable, report.Platforms["web"].Status)
	assert.NotNil(t, report.Platforms["web"].LastCheck)
	assert.Equal(t, []string{"cloud", "web"}, report.Integrations["auth-sync"].Platforms)
	assert.Equal(t, domain.StrategyCascade, report.Synchronizers["shared-source"].Strategy)

	again, err := o.Stop(ctx)
	require.NoError(t, err, "stop is idempotent")
	assert.Equal(t, 3, again.Statistics.Total)
}

func TestOrchestrator_HTTP(t *testing.T) {
	cfg, _ := setup(t)
	queue := memory.NewQueue()
	o, err := weave.New(cfg, weave.WithRunner(&recordingRunner{}), weave.WithTriggerSource(queue))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, o.Start(ctx))
	defer o.Stop(ctx)

	base := "http://" + o.Addr()
	resp, err := http.Get(base + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	hook, err := http.Post(base+"/hooks/auth-sync", "application/json",
		strings.NewReader(`{"action":"login","data":{"user_id":"u1"}}`))
	require.NoError(t, err)
	hook.Body.Close()
	assert.Equal(t, http.StatusAccepted, hook.StatusCode)
	assert.Equal(t, 0, queue.Len(domain.ChannelAuth))

	metrics, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}

func TestOrchestrator_Deploy(t *testing.T) {
	cfg, _ := setup(t)
	runner := &recordingRunner{fail: map[string]bool{"deploy-web": true}}
	o, err := weave.New(cfg, weave.WithRunner(runner))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = o.Probe(ctx)
	require.NoError(t, err)

	p, err := o.Deploy(ctx, "web", domain.UrgencyLow, "")
	assert.ErrorIs(t, err, domain.ErrPipelineFailed)
	require.NotNil(t, p)
	assert.Equal(t, domain.PipelineFailed, p.Status)
	assert.Equal(t, domain.StepDeploy, p.FailedStep)

	runner.fail = nil
	p, err = o.Deploy(ctx, "web", "", "staging")
	require.NoError(t, err)
	assert.Equal(t, domain.PipelineSucceeded, p.Status)
	assert.Equal(t, "staging", p.Environment)

	_, err = o.Deploy(ctx, "ghost", "", "")
	assert.ErrorIs(t, err, domain.ErrPlatformNotFound)
}

func TestOrchestrator_StartTwice(t *testing.T) {
	cfg, _ := setup(t)
	cfg.Settings.HTTP.Addr = ""
	o, err := weave.New(cfg, weave.WithRunner(&recordingRunner{}))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, o.Start(ctx))
	assert.ErrorIs(t, o.Start(ctx), weave.ErrAlreadyStarted)
	assert.Empty(t, o.Addr())
	_, err = o.Stop(ctx)
	require.NoError(t, err)
}

// hangingRunner fails deploys and blocks rollbacks until TerminateAll.
type hangingRunner struct {
	rollbackStarted chan struct{}
	terminated      chan struct{}
	once            sync.Once
}

func (r *hangingRunner) Run(_ context.Context, cmd ports.Command) (ports.CommandResult, error) {
	switch cmd.Command {
	case "deploy-web":
		return ports.CommandResult{ExitCode: 1}, nil
	case "rollback-web":
		r.rollbackStarted <- struct{}{}
		<-r.terminated
		return ports.CommandResult{ExitCode: -1}, nil
	}
	return ports.CommandResult{}, nil
}

func (r *hangingRunner) TerminateAll() int {
	r.once.Do(func() { close(r.terminated) })
	return 1
}

func TestOrchestrator_StopBoundedByContext(t *testing.T) {
	cfg, dir := setup(t)
	cfg.Settings.DeployInterval = config.Duration(20 * time.Millisecond)
	cfg.Settings.ReportPath = filepath.Join(dir, "report.json")
	for i := range cfg.Platforms {
		if cfg.Platforms[i].ID == "web" {
			cfg.Platforms[i].RollbackCmd = "rollback-web"
		}
	}

	runner := &hangingRunner{rollbackStarted: make(chan struct{}, 1), terminated: make(chan struct{})}
	signals := memory.NewSignals()
	require.NoError(t, signals.Raise(context.Background(), domain.Trigger{PlatformID: "web", Urgency: domain.UrgencyHigh}))

	o, err := weave.New(cfg, weave.WithRunner(runner), weave.WithSignalSource(signals))
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))

	select {
	case <-runner.rollbackStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("rollback never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	begun := time.Now()
	_, err = o.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(begun), time.Second)

	select {
	case <-runner.terminated:
	default:
		t.Fatal("running processes were not terminated")
	}
	assert.FileExists(t, cfg.Settings.ReportPath)
}
