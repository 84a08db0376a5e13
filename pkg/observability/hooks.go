package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/weave/pkg/domain"
)

// AuditHooks logs every lifecycle event at info level.
func AuditHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnBuildStart: func(ctx context.Context, ev *domain.BuildEvent) {
			logger.InfoContext(ctx, "build_start", "platform_id", ev.PlatformID)
		},
		OnBuildFinish: func(ctx context.Context, ev *domain.BuildEvent) {
			logger.InfoContext(ctx, "build_finish",
				"platform_id", ev.PlatformID,
				"success", ev.Success,
				"skipped", ev.Skipped,
				"duration", ev.Duration,
			)
		},
		OnPipelineChange: func(ctx context.Context, ev *domain.PipelineEvent) {
			logger.InfoContext(ctx, "pipeline_change",
				"pipeline_id", ev.PipelineID,
				"platform_id", ev.PlatformID,
				"status", ev.Status,
				"step", ev.Step,
			)
		},
		OnChannelDelivery: func(ctx context.Context, ev *domain.ChannelEvent) {
			logger.InfoContext(ctx, "channel_delivery",
				"channel", ev.Channel,
				"action", ev.Action,
				"is_error", ev.IsError,
			)
		},
	}
}

// Chain combines hooks; each callback runs in the given order.
func Chain(all ...domain.LifecycleHooks) domain.LifecycleHooks {
	var (
		buildStart  []func(context.Context, *domain.BuildEvent)
		buildFinish []func(context.Context, *domain.BuildEvent)
		pipeline    []func(context.Context, *domain.PipelineEvent)
		channel     []func(context.Context, *domain.ChannelEvent)
	)
	for _, h := range all {
		if h.OnBuildStart != nil {
			buildStart = append(buildStart, h.OnBuildStart)
		}
		if h.OnBuildFinish != nil {
			buildFinish = append(buildFinish, h.OnBuildFinish)
		}
		if h.OnPipelineChange != nil {
			pipeline = append(pipeline, h.OnPipelineChange)
		}
		if h.OnChannelDelivery != nil {
			channel = append(channel, h.OnChannelDelivery)
		}
	}

	var out domain.LifecycleHooks
	if len(buildStart) > 0 {
		out.OnBuildStart = func(ctx context.Context, ev *domain.BuildEvent) {
			for _, fn := range buildStart {
				fn(ctx, ev)
			}
		}
	}
	if len(buildFinish) > 0 {
		out.OnBuildFinish = func(ctx context.Context, ev *domain.BuildEvent) {
			for _, fn := range buildFinish {
				fn(ctx, ev)
			}
		}
	}
	if len(pipeline) > 0 {
		out.OnPipelineChange = func(ctx context.Context, ev *domain.PipelineEvent) {
			for _, fn := range pipeline {
				fn(ctx, ev)
			}
		}
	}
	if len(channel) > 0 {
		out.OnChannelDelivery = func(ctx context.Context, ev *domain.ChannelEvent) {
			for _, fn := range channel {
				fn(ctx, ev)
			}
		}
	}
	return out
}
