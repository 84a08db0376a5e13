package domain

import "time"

// ChannelID names an integration channel.
type ChannelID string

const (
	ChannelData      ChannelID = "data-sync"
	ChannelAuth      ChannelID = "auth-sync"
	ChannelConfig    ChannelID = "config-sync"
	ChannelAsset     ChannelID = "asset-sync"
	ChannelAnalytics ChannelID = "analytics-sync"
)

// Valid reports whether c is one of the known channels.
func (c ChannelID) Valid() bool {
	switch c {
	case ChannelData, ChannelAuth, ChannelConfig, ChannelAsset, ChannelAnalytics:
		return true
	}
	return false
}

// Channel is a scheduled communication path between platforms.
type Channel struct {
	ID        ChannelID     `json:"id" yaml:"id"`
	Platforms []string      `json:"platforms" yaml:"platforms"`
	Protocol  string        `json:"protocol" yaml:"protocol"`
	Realtime  bool          `json:"realtime" yaml:"realtime"`
	Interval  time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
}

// IntegrationEvent is one delivery on a realtime channel.
// Deliveries may be duplicated, so handlers must be idempotent.
type IntegrationEvent struct {
	ID       string         `json:"id"`
	Channel  ChannelID      `json:"channel"`
	Action   string         `json:"action"`
	Data     map[string]any `json:"data,omitempty"`
	Received time.Time      `json:"received"`
}

// SyncStatus is what a platform reports for a polling channel.
type SyncStatus struct {
	LastSync       *time.Time `json:"last_sync,omitempty"`
	PendingActions int        `json:"pending_actions"`
	Errors         []string   `json:"errors,omitempty"`
}

// HandlerResult is returned by a channel handler.
type HandlerResult struct {
	Applied bool   `json:"applied"`
	Detail  string `json:"detail,omitempty"`
}
