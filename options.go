package weave

import (
	"log/slog"

	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Orchestrator. Anything not set is derived from the
// configuration's settings.
type Option func(*Orchestrator)

// WithLogger sets the structured logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithRunner replaces the shell process runner.
func WithRunner(runner ports.CommandRunner) Option {
	return func(o *Orchestrator) {
		o.runner = runner
	}
}

// WithStore sets where platform state is persisted.
func WithStore(store ports.StateStore) Option {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// WithLocker serializes builds across orchestrator replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(o *Orchestrator) {
		o.locker = locker
	}
}

// WithTriggerSource sets the source realtime channels poll. When it also
// implements ports.EventPublisher, webhooks push into it.
func WithTriggerSource(source ports.TriggerSource) Option {
	return func(o *Orchestrator) {
		o.source = source
	}
}

// WithStatusReporter sets what polling channels ask.
func WithStatusReporter(reporter ports.StatusReporter) Option {
	return func(o *Orchestrator) {
		o.reporter = reporter
	}
}

// WithSignalSource sets where critical deploy signals come from. When it also
// implements ports.SignalPublisher, the HTTP API raises into it.
func WithSignalSource(signals ports.SignalSource) Option {
	return func(o *Orchestrator) {
		o.signals = signals
	}
}

// WithDeduplicator sets the event id memory of realtime channels.
func WithDeduplicator(dedup ports.Deduplicator) Option {
	return func(o *Orchestrator) {
		o.dedup = dedup
	}
}

// WithHooks registers lifecycle hooks, called after the built-in metrics hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(o *Orchestrator) {
		o.hooks = hooks
	}
}

// WithMetricsRegistry sets the Prometheus registry collectors register with.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(o *Orchestrator) {
		o.metricsReg = reg
	}
}
