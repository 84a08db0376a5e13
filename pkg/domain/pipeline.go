package domain

import "time"

// PipelineStatus tracks a deployment pipeline through its lifecycle.
type PipelineStatus string

const (
	PipelinePending     PipelineStatus = "pending"
	PipelineRunning     PipelineStatus = "running"
	PipelineSucceeded   PipelineStatus = "succeeded"
	PipelineFailed      PipelineStatus = "failed"
	PipelineRollingBack PipelineStatus = "rolling_back"
	PipelineRolledBack  PipelineStatus = "rolled_back"
)

// Urgency of a deployment trigger.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// StepKind identifies the role of a pipeline step.
type StepKind string

const (
	StepPreCheck StepKind = "pre-check"
	StepBuild    StepKind = "build"
	StepTest     StepKind = "test"
	StepDeploy   StepKind = "deploy"
	StepVerify   StepKind = "verify"
)

// PipelineStep is a single command of a pipeline.
type PipelineStep struct {
	Name    StepKind `json:"name"`
	Command string   `json:"command"`
}

// StepResult records the outcome of one executed step.
type StepResult struct {
	Name     StepKind      `json:"name"`
	ExitCode int           `json:"exit_code"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
	Skipped  bool          `json:"skipped,omitempty"`
}

// Pipeline is constructed per triggered deployment and discarded after execution.
type Pipeline struct {
	ID                string         `json:"id"`
	PlatformID        string         `json:"platform_id"`
	Environment       string         `json:"environment"`
	Urgency           Urgency        `json:"urgency"`
	Steps             []PipelineStep `json:"steps"`
	RollbackOnFailure bool           `json:"rollback_on_failure"`

	Status     PipelineStatus `json:"status"`
	FailedStep StepKind       `json:"failed_step,omitempty"`
	Results    []StepResult   `json:"results,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Trigger is a reason to deploy a platform.
type Trigger struct {
	PlatformID string  `json:"platform_id"`
	Urgency    Urgency `json:"urgency"`
	Reason     string  `json:"reason"`
}

// RollbackOnFailure reports whether a pipeline started by this trigger rolls back
// on a failed step. Low urgency deployments leave the platform as it is.
func (t Trigger) RollbackOnFailure() bool {
	return t.Urgency != UrgencyLow
}
