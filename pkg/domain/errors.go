package domain

import "errors"

// ErrConfig marks fatal configuration problems detected at startup.
var ErrConfig = errors.New("configuration error")

// ErrPlatformNotFound is returned when an id does not match a registered platform.
var ErrPlatformNotFound = errors.New("platform not found")

// ErrStateNotFound is returned by a StateStore when no state was saved for a platform.
var ErrStateNotFound = errors.New("platform state not found")

// ErrPipelineInFlight is returned when a pipeline is already running for the platform.
var ErrPipelineInFlight = errors.New("pipeline already running for platform")

// ErrNoEvent is returned by a TriggerSource when nothing is pending.
var ErrNoEvent = errors.New("no pending event")

// ErrBuildFailed is reported for a platform whose build command exited non-zero.
var ErrBuildFailed = errors.New("build failed")

// ErrPlatformUnavailable is returned when work is requested for a platform the
// health probe marked unavailable.
var ErrPlatformUnavailable = errors.New("platform unavailable")

// ErrPipelineFailed is returned by a pipeline that did not succeed.
var ErrPipelineFailed = errors.New("pipeline failed")

// ErrSkipped is returned by a build that was not attempted because the platform
// is unavailable or its directory is missing. Callers log it; it is not a failure.
var ErrSkipped = errors.New("build skipped")
