// Package dto holds the typed payloads carried by integration events.
// Event data arrives as map[string]any and is decoded with mapstructure.
package dto

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DataPayload is a record change on data-sync.
type DataPayload struct {
	Entity  string         `json:"entity" mapstructure:"entity"`
	ID      string         `json:"id" mapstructure:"id"`
	Version int64          `json:"version" mapstructure:"version"`
	Fields  map[string]any `json:"fields" mapstructure:"fields"`
}

// AuthPayload is a session change on auth-sync.
type AuthPayload struct {
	UserID    string    `json:"user_id" mapstructure:"user_id"`
	SessionID string    `json:"session_id" mapstructure:"session_id"`
	ExpiresAt time.Time `json:"expires_at" mapstructure:"expires_at"`
}

// ConfigPayload is a shared setting change on config-sync.
type ConfigPayload struct {
	Key       string   `json:"key" mapstructure:"key"`
	Value     any      `json:"value" mapstructure:"value"`
	Platforms []string `json:"platforms" mapstructure:"platforms"`
}

// AssetPayload announces a new asset revision on asset-sync.
type AssetPayload struct {
	Path     string `json:"path" mapstructure:"path"`
	Checksum string `json:"checksum" mapstructure:"checksum"`
	URL      string `json:"url" mapstructure:"url"`
}

// AnalyticsPayload is a tracked event on analytics-sync.
type AnalyticsPayload struct {
	Event      string         `json:"event" mapstructure:"event"`
	Platform   string         `json:"platform" mapstructure:"platform"`
	Properties map[string]any `json:"properties" mapstructure:"properties"`
}

// Decode converts loosely typed event data into out (a pointer to a payload).
// Numbers given as strings and RFC 3339 timestamps are accepted.
func Decode(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(data); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
