package domain

import (
	"fmt"
	"time"
)

// Technology is the closed set of platform kinds.
type Technology string

const (
	TechWeb       Technology = "web"
	TechMobile    Technology = "mobile"
	TechDesktop   Technology = "desktop"
	TechCloud     Technology = "cloud"
	TechExtension Technology = "extension"
	// TechLibrary is the shared library itself.
	TechLibrary Technology = "library"
)

// ParseTechnology validates a configured technology name.
func ParseTechnology(s string) (Technology, error) {
	switch t := Technology(s); t {
	case TechWeb, TechMobile, TechDesktop, TechCloud, TechExtension, TechLibrary:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown technology %q", ErrConfig, s)
}

// EnvPrefix returns the environment variable prefix a platform of this technology receives.
// The library has no prefix and only gets the common allow-list.
func (t Technology) EnvPrefix() string {
	switch t {
	case TechWeb:
		return "VITE_"
	case TechMobile:
		return "EXPO_"
	case TechDesktop:
		return "ELECTRON_"
	case TechCloud:
		return "CLOUD_"
	case TechExtension:
		return "EXT_"
	}
	return ""
}

// Status is the liveness of a platform as seen by the health probe.
type Status string

const (
	StatusUnknown     Status = "unknown"
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusError       Status = "error"
)

// Platform is one project in the set of cooperating repositories.
type Platform struct {
	ID         string     `json:"id" yaml:"id"`
	Technology Technology `json:"technology" yaml:"technology"`

	// Dir is the working directory for every command of this platform.
	Dir string `json:"dir" yaml:"dir"`

	BuildCmd       string `json:"buildCommand" yaml:"buildCommand"`
	TestCmd        string `json:"testCommand,omitempty" yaml:"testCommand,omitempty"`
	DeployCmd      string `json:"deployCommand,omitempty" yaml:"deployCommand,omitempty"`
	HealthCheckCmd string `json:"healthCheck,omitempty" yaml:"healthCheck,omitempty"`
	RollbackCmd    string `json:"rollbackCommand,omitempty" yaml:"rollbackCommand,omitempty"`

	Artifacts    []string `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	Environments []string `json:"environments,omitempty" yaml:"environments,omitempty"`

	// Dependents are the platforms that must rebuild when this one changes.
	Dependents []string `json:"dependents,omitempty" yaml:"dependents,omitempty"`

	Status    Status     `json:"status"`
	LastCheck *time.Time `json:"lastCheck,omitempty"`
	LastSync  *time.Time `json:"lastSync,omitempty"`
}

// PlatformState is the mutable part of a platform that survives restarts.
type PlatformState struct {
	Status    Status     `json:"status"`
	LastCheck *time.Time `json:"last_check,omitempty"`
	LastSync  *time.Time `json:"last_sync,omitempty"`
}

// State extracts the persisted part of the platform.
func (p Platform) State() PlatformState {
	return PlatformState{
		Status:    p.Status,
		LastCheck: p.LastCheck,
		LastSync:  p.LastSync,
	}
}
