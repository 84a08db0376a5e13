package observability

import (
	"context"

	"github.com/aretw0/weave/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the orchestrator collectors.
type Metrics struct {
	Builds         *prometheus.CounterVec
	BuildDuration  *prometheus.HistogramVec
	BuildsInFlight *prometheus.GaugeVec
	Pipelines      *prometheus.CounterVec
	Deliveries     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Builds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weave_builds_total",
				Help: "Builds finished, by platform and result (success, failure, skipped)",
			},
			[]string{"platform", "result"},
		),
		BuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "weave_build_duration_seconds",
				Help:    "Duration of build processes",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
			[]string{"platform"},
		),
		BuildsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "weave_builds_in_flight",
				Help: "Build processes currently running",
			},
			[]string{"platform"},
		),
		Pipelines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weave_pipelines_total",
				Help: "Pipelines reaching a terminal status",
			},
			[]string{"platform", "status"},
		),
		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weave_channel_deliveries_total",
				Help: "Integration events and polls handled, by channel and result",
			},
			[]string{"channel", "result"},
		),
	}

	for _, c := range []prometheus.Collector{m.Builds, m.BuildDuration, m.BuildsInFlight, m.Pipelines, m.Deliveries} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks recording into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnBuildStart: func(_ context.Context, ev *domain.BuildEvent) {
			m.BuildsInFlight.WithLabelValues(ev.PlatformID).Inc()
		},
		OnBuildFinish: func(_ context.Context, ev *domain.BuildEvent) {
			result := "failure"
			switch {
			case ev.Skipped:
				m.Builds.WithLabelValues(ev.PlatformID, "skipped").Inc()
				return
			case ev.Success:
				result = "success"
			}
			m.BuildsInFlight.WithLabelValues(ev.PlatformID).Dec()
			m.Builds.WithLabelValues(ev.PlatformID, result).Inc()
			m.BuildDuration.WithLabelValues(ev.PlatformID).Observe(ev.Duration.Seconds())
		},
		OnPipelineChange: func(_ context.Context, ev *domain.PipelineEvent) {
			switch ev.Status {
			case domain.PipelineSucceeded, domain.PipelineFailed, domain.PipelineRolledBack:
				m.Pipelines.WithLabelValues(ev.PlatformID, string(ev.Status)).Inc()
			}
		},
		OnChannelDelivery: func(_ context.Context, ev *domain.ChannelEvent) {
			result := "ok"
			if ev.IsError {
				result = "error"
			}
			m.Deliveries.WithLabelValues(string(ev.Channel), result).Inc()
		},
	}
}
