package domain

import (
	"context"
	"time"
)

// BuildEvent describes a build subprocess.
type BuildEvent struct {
	PlatformID string        `json:"platform_id"`
	Success    bool          `json:"success"`
	Skipped    bool          `json:"skipped,omitempty"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// PipelineEvent describes a pipeline transition.
type PipelineEvent struct {
	PipelineID string         `json:"pipeline_id"`
	PlatformID string         `json:"platform_id"`
	Status     PipelineStatus `json:"status"`
	Step       StepKind       `json:"step,omitempty"`
}

// ChannelEvent describes one handled integration delivery or poll.
type ChannelEvent struct {
	Channel ChannelID `json:"channel"`
	Action  string    `json:"action"`
	IsError bool      `json:"is_error,omitempty"`
}

// LifecycleHooks defines callbacks for orchestrator observability.
// Nil hooks are skipped.
type LifecycleHooks struct {
	OnBuildStart      func(context.Context, *BuildEvent)
	OnBuildFinish     func(context.Context, *BuildEvent)
	OnPipelineChange  func(context.Context, *PipelineEvent)
	OnChannelDelivery func(context.Context, *ChannelEvent)
}
