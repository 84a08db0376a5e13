package domain

import "time"

// PlatformReport is the per-platform entry of the shutdown report.
type PlatformReport struct {
	Type      Technology `json:"type"`
	Status    Status     `json:"status"`
	LastCheck *time.Time `json:"lastCheck"`
	LastSync  *time.Time `json:"lastSync"`
}

// IntegrationReport is the per-channel entry of the shutdown report.
type IntegrationReport struct {
	Type      ChannelID `json:"type"`
	Platforms []string  `json:"platforms"`
	Protocol  string    `json:"protocol"`
	Realtime  bool      `json:"realtime"`
}

// SynchronizerReport is the per-synchronizer entry of the shutdown report.
type SynchronizerReport struct {
	Targets    []string `json:"targets"`
	Strategy   Strategy `json:"strategy"`
	WatchPaths []string `json:"watchPaths"`
}

// Statistics aggregates platform availability.
type Statistics struct {
	Available int `json:"available"`
	Total     int `json:"total"`
}

// ShutdownReport is written when the orchestrator stops gracefully.
type ShutdownReport struct {
	GeneratedAt   time.Time                     `json:"generatedAt"`
	Platforms     map[string]PlatformReport     `json:"platforms"`
	Integrations  map[string]IntegrationReport  `json:"integrations"`
	Synchronizers map[string]SynchronizerReport `json:"synchronizers"`
	Statistics    Statistics                    `json:"statistics"`
}
