package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aretw0/weave"
	"github.com/aretw0/weave/internal/presentation/graph"
	"github.com/aretw0/weave/internal/presentation/tui"
	"github.com/aretw0/weave/pkg/domain"
	depgraph "github.com/aretw0/weave/pkg/graph"
)

// ShutdownTimeout bounds how long Run waits for a graceful stop.
const ShutdownTimeout = 30 * time.Second

// Run starts the orchestrator and blocks until SIGINT or SIGTERM.
func Run(opts Options, stdout, stderr io.Writer) error {
	o, cfg, logger, err := createOrchestrator(opts, stderr)
	if err != nil {
		return err
	}
	if isTerminal(stdout) {
		tui.PrintBanner(stdout, weave.Version)
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	if err := o.Start(sigCtx); err != nil {
		return err
	}
	printSystemMessage(stdout, "Watching %d synchronizers for %d platforms.", len(cfg.Synchronizers), len(cfg.Platforms))
	if addr := o.Addr(); addr != "" {
		printSystemMessage(stdout, "HTTP API on http://%s", addr)
	}

	<-sigCtx.Done()
	if sig := sigCtx.Signal(); sig != nil {
		logger.Info("shutdown requested", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	report, err := o.Stop(ctx)
	printSystemMessage(stdout, "Stopped. %d/%d platforms available, report at %s.",
		report.Statistics.Available, report.Statistics.Total, relTo(cfg.BaseDir, cfg.Settings.ReportPath))
	return err
}

// prepare restores persisted state and probes every platform.
func prepare(ctx context.Context, o *weave.Orchestrator) error {
	if err := o.Registry().Restore(ctx); err != nil {
		return err
	}
	_, err := o.Probe(ctx)
	return err
}

// Build builds one platform.
func Build(opts Options, id string, force bool, stdout, stderr io.Writer) error {
	o, _, _, err := createOrchestrator(opts, stderr)
	if err != nil {
		return err
	}
	ctx := NewSignalContext(context.Background())
	defer ctx.Cancel()

	if err := prepare(ctx, o); err != nil {
		return err
	}
	ok, err := o.Build(ctx, id, force)
	if errors.Is(err, domain.ErrSkipped) {
		printSystemMessage(stdout, "Skipped '%s': %v.", id, err)
		return nil
	}
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrBuildFailed, id)
	}
	printSystemMessage(stdout, "Built '%s'.", id)
	return nil
}

// Cascade builds a platform and everything downstream of it.
func Cascade(opts Options, origin string, stdout, stderr io.Writer) error {
	o, cfg, _, err := createOrchestrator(opts, stderr)
	if err != nil {
		return err
	}
	if origin == "" {
		origin = cfg.SharedLibrary
	}
	if origin == "" {
		return fmt.Errorf("%w: no origin given and no sharedLibrary declared", domain.ErrConfig)
	}

	ctx := NewSignalContext(context.Background())
	defer ctx.Cancel()
	if err := prepare(ctx, o); err != nil {
		return err
	}

	built, err := o.Cascade(ctx, origin)
	printSystemMessage(stdout, "Built %d platform(s): %s", len(built), strings.Join(built, ", "))
	return err
}

// Deploy runs a deployment pipeline for one platform.
func Deploy(opts Options, id string, urgency domain.Urgency, environment string, stdout, stderr io.Writer) error {
	o, _, _, err := createOrchestrator(opts, stderr)
	if err != nil {
		return err
	}
	ctx := NewSignalContext(context.Background())
	defer ctx.Cancel()
	if err := prepare(ctx, o); err != nil {
		return err
	}

	p, err := o.Deploy(ctx, id, urgency, environment)
	if p != nil {
		for _, r := range p.Results {
			state := "ok"
			switch {
			case r.Skipped:
				state = "skipped"
			case r.ExitCode != 0:
				state = fmt.Sprintf("exit %d", r.ExitCode)
			}
			fmt.Fprintf(stdout, "  %-10s %-8s %s\n", r.Name, state, r.Duration.Round(time.Millisecond))
		}
		printSystemMessage(stdout, "Pipeline %s for '%s' (%s): %s.", p.ID, p.PlatformID, p.Environment, p.Status)
	}
	return err
}

// Status probes every platform and prints the orchestrator status.
func Status(opts Options, asJSON bool, stdout, stderr io.Writer) error {
	o, _, _, err := createOrchestrator(opts, stderr)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := prepare(ctx, o); err != nil {
		return err
	}

	status := o.Snapshot()
	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	out, err := tui.NewRenderer(isTerminal(stdout))(tui.StatusMarkdown(status))
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, out)
	return nil
}

// Graph prints the dependency graph as Mermaid. With from set, the platforms a
// change in from would rebuild are highlighted.
func Graph(opts Options, from string, stdout io.Writer) error {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return err
	}
	g, err := depgraph.Build(cfg.Platforms)
	if err != nil {
		return err
	}

	var overlay *graph.GraphOverlay
	if from != "" {
		reach, err := g.ReachableDependents(from)
		if err != nil {
			return err
		}
		overlay = &graph.GraphOverlay{Highlight: reach}
	}
	fmt.Fprint(stdout, graph.GenerateMermaid(cfg.Platforms, cfg.SharedLibrary, overlay))
	return nil
}

// Validate loads the configuration and checks the dependency graph.
func Validate(opts Options, stdout io.Writer) error {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return err
	}
	g, err := depgraph.Build(cfg.Platforms)
	if err != nil {
		return err
	}
	if cfg.SharedLibrary != "" {
		order, err := g.BuildOrder(cfg.SharedLibrary)
		if err != nil {
			return err
		}
		for i, wave := range order {
			fmt.Fprintf(stdout, "  wave %d: %s\n", i, strings.Join(wave, ", "))
		}
	}
	fmt.Fprintln(stdout, "Configuration is valid! ✅")
	return nil
}
