package weave

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/adapters/file"
	api "github.com/aretw0/weave/pkg/adapters/http"
	"github.com/aretw0/weave/pkg/adapters/memory"
	"github.com/aretw0/weave/pkg/adapters/process"
	"github.com/aretw0/weave/pkg/adapters/redis"
	"github.com/aretw0/weave/pkg/build"
	"github.com/aretw0/weave/pkg/cascade"
	"github.com/aretw0/weave/pkg/config"
	"github.com/aretw0/weave/pkg/deploy"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/graph"
	"github.com/aretw0/weave/pkg/health"
	"github.com/aretw0/weave/pkg/integration"
	"github.com/aretw0/weave/pkg/observability"
	"github.com/aretw0/weave/pkg/ports"
	"github.com/aretw0/weave/pkg/propagate"
	"github.com/aretw0/weave/pkg/registry"
	"github.com/aretw0/weave/pkg/watch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ErrAlreadyStarted is returned by Start on a running orchestrator.
var ErrAlreadyStarted = errors.New("orchestrator already started")

type terminator interface {
	TerminateAll() int
}

type running interface {
	Running() []string
}

// Orchestrator owns every component of a weave deployment.
type Orchestrator struct {
	cfg    *config.Config
	logger *slog.Logger

	runner     ports.CommandRunner
	store      ports.StateStore
	locker     ports.DistributedLocker
	source     ports.TriggerSource
	reporter   ports.StatusReporter
	signals    ports.SignalSource
	dedup      ports.Deduplicator
	hooks      domain.LifecycleHooks
	metricsReg *prometheus.Registry
	closers    []io.Closer

	registry *registry.Registry
	graph    *graph.Graph
	prober   *health.Prober
	builds   *build.Coordinator
	cascades *cascade.Scheduler
	watcher  *watch.Manager
	channels *integration.Manager
	deploys  *deploy.Runner

	compatMu sync.Mutex
	compat   map[string][]propagate.Incompatibility

	mu      sync.Mutex
	started bool
	stopped bool
	server  *http.Server
	addr    string
}

// New wires an orchestrator from a validated configuration.
// Nothing runs until Start.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:    cfg,
		logger: logging.NewNop(),
		compat: make(map[string][]propagate.Incompatibility),
	}
	for _, opt := range opts {
		opt(o)
	}
	s := cfg.Settings

	if err := o.defaultBackends(); err != nil {
		return nil, err
	}

	if o.metricsReg == nil {
		o.metricsReg = prometheus.NewRegistry()
		o.metricsReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	metrics, err := observability.NewMetrics(o.metricsReg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	hooks := observability.Chain(metrics.Hooks(), o.hooks)

	o.graph, err = graph.Build(cfg.Platforms)
	if err != nil {
		return nil, err
	}
	o.registry, err = registry.New(cfg.Platforms, registry.WithStore(o.store), registry.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	if o.reporter == nil {
		o.reporter = file.NewStatusReporter(o.registry)
	}

	o.prober = health.New(o.registry, o.runner, health.WithLogger(o.logger))

	buildOpts := []build.Option{
		build.WithHooks(hooks),
		build.WithLogger(o.logger),
		build.WithEnv(propagate.EnvFor),
	}
	if o.locker != nil {
		buildOpts = append(buildOpts, build.WithLocker(o.locker, s.Redis.LockTTL.Std()))
	}
	o.builds = build.NewCoordinator(o.registry, o.runner, buildOpts...)
	o.cascades = cascade.New(o.graph, o.builds,
		cascade.WithMode(cascade.Mode(s.CascadeMode)),
		cascade.WithLogger(o.logger),
	)

	o.watcher = watch.NewManager(
		watch.WithDebounce(s.Debounce.Std()),
		watch.WithQueueSize(s.QueueSize),
		watch.WithLogger(o.logger),
	)
	deps := propagate.Deps{
		SharedLibrary: cfg.SharedLibrary,
		Cascader:      o.cascades,
		Platforms:     o.registry,
		Logger:        o.logger,
		CompatReport:  o.recordCompat,
	}
	for _, syn := range cfg.Synchronizers {
		h, err := propagate.For(syn, deps)
		if err != nil {
			return nil, err
		}
		if err := o.watcher.Register(syn, h); err != nil {
			return nil, err
		}
	}

	o.channels = integration.NewManager(cfg.Channels,
		integration.WithTriggerSource(o.source),
		integration.WithStatusReporter(o.reporter),
		integration.WithDeduplicator(o.dedup),
		integration.WithHooks(hooks),
		integration.WithLogger(o.logger),
		integration.WithIntervals(s.RealtimeInterval.Std(), s.PollingInterval.Std()),
	)

	o.deploys = deploy.NewRunner(o.registry, o.builds, o.runner,
		deploy.WithVault(deploy.NewVault(s.VaultDir)),
		deploy.WithSignalSource(o.signals),
		deploy.WithEnv(propagate.EnvFor),
		deploy.WithHooks(hooks),
		deploy.WithLogger(o.logger),
		deploy.WithStaleAfter(s.StaleAfter.Std()),
	)
	return o, nil
}

// defaultBackends fills every port not set by an option from the store setting.
func (o *Orchestrator) defaultBackends() error {
	s := o.cfg.Settings
	if o.runner == nil {
		o.runner = process.NewRunner(
			process.WithBaseDir(o.cfg.BaseDir),
			process.WithInheritedEnv(propagate.SystemEnv...),
			process.WithLogger(o.logger),
		)
	}

	if s.Store == config.StoreRedis {
		client := redis.NewClient(s.Redis.Addr, s.Redis.Password, s.Redis.DB)
		o.closers = append(o.closers, client)
		prefix := redis.WithPrefix(s.Redis.Prefix)
		if o.store == nil {
			o.store = redis.NewStore(client, prefix)
		}
		if o.locker == nil {
			o.locker = redis.NewLocker(client, prefix)
		}
		if o.source == nil {
			o.source = redis.NewQueue(client, prefix)
		}
		if o.signals == nil {
			o.signals = redis.NewSignals(client, prefix)
		}
		if o.dedup == nil {
			o.dedup = redis.NewDeduplicator(client, s.Redis.DedupTTL.Std(), prefix)
		}
		return nil
	}

	if o.store == nil {
		switch s.Store {
		case config.StoreMemory:
			o.store = memory.NewStore()
		case config.StoreFile, "":
			o.store = file.New(s.StateDir)
		default:
			return fmt.Errorf("%w: unknown store %q", domain.ErrConfig, s.Store)
		}
	}
	if o.source == nil {
		o.source = memory.NewQueue()
	}
	if o.signals == nil {
		o.signals = memory.NewSignals()
	}
	if o.dedup == nil {
		o.dedup = memory.NewDeduplicator()
	}
	return nil
}

func (o *Orchestrator) recordCompat(target string, issues []propagate.Incompatibility) {
	o.compatMu.Lock()
	defer o.compatMu.Unlock()
	if len(issues) == 0 {
		delete(o.compat, target)
		return
	}
	o.compat[target] = issues
}

// Start restores persisted state, probes every platform and starts the
// watchers, the channel tickers, the deploy ticker and the HTTP API.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return ErrAlreadyStarted
	}

	if err := o.registry.Restore(ctx); err != nil {
		o.logger.Warn("failed to restore platform state", "error", err)
	}
	if _, err := o.Probe(ctx); err != nil {
		return err
	}

	if err := o.watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watchers: %w", err)
	}
	o.channels.Start(ctx)
	o.deploys.Start(ctx, o.cfg.Settings.DeployInterval.Std())

	if addr := o.cfg.Settings.HTTP.Addr; addr != "" {
		if err := o.serve(addr); err != nil {
			_ = o.watcher.Stop()
			o.channels.Stop()
			o.deploys.Stop()
			return err
		}
	}

	o.started = true
	o.logger.Info("weave started",
		"platforms", len(o.cfg.Platforms),
		"synchronizers", len(o.cfg.Synchronizers),
		"channels", len(o.cfg.Channels),
	)
	return nil
}

func (o *Orchestrator) serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	o.addr = ln.Addr().String()
	o.server = &http.Server{
		Handler:           o.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := o.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.logger.Error("http server stopped", "error", err)
		}
	}()
	o.logger.Info("http api listening", "addr", o.addr)
	return nil
}

// Addr returns the address the HTTP API listens on, or "" when disabled.
func (o *Orchestrator) Addr() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.addr
}

// Handler returns the HTTP API bound to this orchestrator.
func (o *Orchestrator) Handler() http.Handler {
	opts := []api.Option{
		api.WithChannels(o.channels),
		api.WithPlatforms(o.registry),
		api.WithStatus(o.Snapshot),
		api.WithGatherer(o.metricsReg),
		api.WithLogger(o.logger),
	}
	if pub, ok := o.source.(ports.EventPublisher); ok {
		opts = append(opts, api.WithEvents(pub))
	}
	if pub, ok := o.signals.(ports.SignalPublisher); ok {
		opts = append(opts, api.WithSignals(pub))
	}
	return api.NewHandler(opts...)
}

// Stop shuts the orchestrator down: the HTTP API, watchers and tickers stop,
// running child processes get SIGTERM and the shutdown report is written.
// Waiting for in-progress work (a rollback, a channel tick) is bounded by ctx.
// Calling Stop more than once returns the report without writing it again.
func (o *Orchestrator) Stop(ctx context.Context) (domain.ShutdownReport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return o.Report(), nil
	}
	o.stopped = true

	var errs []error
	if o.server != nil {
		if err := o.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if o.started {
		if err := o.watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("watcher stop: %w", err))
		}
		tickers := make(chan struct{})
		go func() {
			o.channels.Stop()
			o.deploys.Stop()
			close(tickers)
		}()
		select {
		case <-tickers:
		case <-ctx.Done():
			o.logger.Warn("shutdown deadline reached with work still running", "error", ctx.Err())
			errs = append(errs, fmt.Errorf("waiting for running work: %w", ctx.Err()))
		}
	}

	if t, ok := o.runner.(terminator); ok {
		if n := t.TerminateAll(); n > 0 {
			o.logger.Info("terminated child processes", "count", n)
		}
	}

	report := o.Report()
	if path := o.cfg.Settings.ReportPath; path != "" {
		if err := file.WriteReport(path, report); err != nil {
			errs = append(errs, err)
		} else {
			o.logger.Info("shutdown report written", "path", path)
		}
	}

	for _, c := range o.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return report, errors.Join(errs...)
}

// Probe runs the health check of every platform.
func (o *Orchestrator) Probe(ctx context.Context) (map[string]domain.Status, error) {
	statuses, err := o.prober.ProbeAll(ctx)
	if err != nil {
		return statuses, err
	}
	available := len(o.registry.Available())
	o.logger.Info("platforms probed", "available", available, "total", len(statuses))
	return statuses, nil
}

// Build builds one platform. See build.Coordinator.Build.
func (o *Orchestrator) Build(ctx context.Context, id string, force bool) (bool, error) {
	return o.builds.Build(ctx, id, force)
}

// Cascade builds origin then every platform downstream of it.
func (o *Orchestrator) Cascade(ctx context.Context, origin string) ([]string, error) {
	return o.cascades.Cascade(ctx, origin)
}

// Deploy runs a deployment pipeline for one platform.
func (o *Orchestrator) Deploy(ctx context.Context, id string, urgency domain.Urgency, environment string) (*domain.Pipeline, error) {
	platform, err := o.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if urgency == "" {
		urgency = domain.UrgencyMedium
	}
	p := deploy.NewPipeline(platform, domain.Trigger{PlatformID: id, Urgency: urgency, Reason: "manual"}, environment)
	return o.deploys.Run(ctx, p)
}

// Submit injects a change event as if a watcher had seen it.
func (o *Orchestrator) Submit(ctx context.Context, ev domain.ChangeEvent) error {
	return o.watcher.Submit(ctx, ev)
}

// Graph returns the dependency graph.
func (o *Orchestrator) Graph() *graph.Graph {
	return o.graph
}

// Registry returns the platform registry.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// Gatherer returns the metrics registry.
func (o *Orchestrator) Gatherer() prometheus.Gatherer {
	return o.metricsReg
}

// Snapshot is the live status served by the HTTP API.
func (o *Orchestrator) Snapshot() api.Status {
	status := api.Status{
		Report:    o.Report(),
		Channels:  o.channels.Status(),
		Pipelines: o.deploys.History(),
		Running:   []string{},
	}
	if r, ok := o.runner.(running); ok {
		status.Running = r.Running()
	}

	o.compatMu.Lock()
	defer o.compatMu.Unlock()
	if len(o.compat) > 0 {
		status.Compat = make(map[string][]propagate.Incompatibility, len(o.compat))
		for target, issues := range o.compat {
			status.Compat[target] = issues
		}
	}
	return status
}

// Report builds the shutdown report from the current state.
func (o *Orchestrator) Report() domain.ShutdownReport {
	report := domain.ShutdownReport{
		GeneratedAt:   time.Now().UTC(),
		Platforms:     make(map[string]domain.PlatformReport),
		Integrations:  make(map[string]domain.IntegrationReport),
		Synchronizers: make(map[string]domain.SynchronizerReport),
	}

	for _, p := range o.registry.All() {
		report.Platforms[p.ID] = domain.PlatformReport{
			Type:      p.Technology,
			Status:    p.Status,
			LastCheck: p.LastCheck,
			LastSync:  p.LastSync,
		}
		report.Statistics.Total++
		if p.Status == domain.StatusAvailable {
			report.Statistics.Available++
		}
	}
	for _, ch := range o.cfg.Channels {
		platforms := append([]string(nil), ch.Platforms...)
		sort.Strings(platforms)
		report.Integrations[string(ch.ID)] = domain.IntegrationReport{
			Type:      ch.ID,
			Platforms: platforms,
			Protocol:  ch.Protocol,
			Realtime:  ch.Realtime,
		}
	}
	for _, s := range o.cfg.Synchronizers {
		report.Synchronizers[s.ID] = domain.SynchronizerReport{
			Targets:    s.Targets,
			Strategy:   s.Strategy,
			WatchPaths: s.WatchPaths,
		}
	}
	return report
}
