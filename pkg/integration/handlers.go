package integration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/weave/internal/dto"
	"github.com/aretw0/weave/pkg/domain"
)

// Handler applies one delivery on a channel. Deliveries may repeat, so
// implementations must be idempotent.
type Handler interface {
	Handle(ctx context.Context, action string, data map[string]any) (domain.HandlerResult, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, action string, data map[string]any) (domain.HandlerResult, error)

func (f HandlerFunc) Handle(ctx context.Context, action string, data map[string]any) (domain.HandlerResult, error) {
	return f(ctx, action, data)
}

// ErrUnknownAction is returned for an action a channel does not understand.
var ErrUnknownAction = errors.New("unknown action")

// DefaultHandlers returns the built-in handler of every known channel.
func DefaultHandlers() map[domain.ChannelID]Handler {
	return map[domain.ChannelID]Handler{
		domain.ChannelData:      NewDataHandler(),
		domain.ChannelAuth:      NewAuthHandler(),
		domain.ChannelConfig:    NewConfigHandler(),
		domain.ChannelAsset:     NewAssetHandler(),
		domain.ChannelAnalytics: NewAnalyticsHandler(),
	}
}

// DataHandler keeps the newest version of every synced record.
type DataHandler struct {
	mu      sync.Mutex
	records map[string]dto.DataPayload
}

func NewDataHandler() *DataHandler {
	return &DataHandler{records: make(map[string]dto.DataPayload)}
}

func (h *DataHandler) Handle(_ context.Context, action string, data map[string]any) (domain.HandlerResult, error) {
	var p dto.DataPayload
	if err := dto.Decode(data, &p); err != nil {
		return domain.HandlerResult{}, err
	}
	if p.Entity == "" || p.ID == "" {
		return domain.HandlerResult{}, fmt.Errorf("data-sync payload needs entity and id")
	}
	key := p.Entity + "/" + p.ID

	h.mu.Lock()
	defer h.mu.Unlock()
	current, exists := h.records[key]

	switch action {
	case "create", "update":
		if exists && current.Version >= p.Version {
			return domain.HandlerResult{Detail: "stale version ignored"}, nil
		}
		h.records[key] = p
		return domain.HandlerResult{Applied: true, Detail: key}, nil
	case "delete":
		if !exists {
			return domain.HandlerResult{Detail: "already deleted"}, nil
		}
		delete(h.records, key)
		return domain.HandlerResult{Applied: true, Detail: key}, nil
	}
	return domain.HandlerResult{}, fmt.Errorf("%w %q on %s", ErrUnknownAction, action, domain.ChannelData)
}

// Record returns the stored record for entity/id.
func (h *DataHandler) Record(entity, id string) (dto.DataPayload, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.records[entity+"/"+id]
	return p, ok
}

// AuthHandler tracks active sessions per user.
type AuthHandler struct {
	mu       sync.Mutex
	sessions map[string]dto.AuthPayload
}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{sessions: make(map[string]dto.AuthPayload)}
}

func (h *AuthHandler) Handle(_ context.Context, action string, data map[string]any) (domain.HandlerResult, error) {
	var p dto.AuthPayload
	if err := dto.Decode(data, &p); err != nil {
		return domain.HandlerResult{}, err
	}
	if p.UserID == "" {
		return domain.HandlerResult{}, fmt.Errorf("auth-sync payload needs user_id")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch action {
	case "login", "refresh":
		h.sessions[p.UserID] = p
		return domain.HandlerResult{Applied: true, Detail: p.UserID}, nil
	case "logout":
		_, ok := h.sessions[p.UserID]
		delete(h.sessions, p.UserID)
		return domain.HandlerResult{Applied: ok, Detail: p.UserID}, nil
	}
	return domain.HandlerResult{}, fmt.Errorf("%w %q on %s", ErrUnknownAction, action, domain.ChannelAuth)
}

// Active reports whether the user has a session.
func (h *AuthHandler) Active(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sessions[userID]
	return ok
}

// ConfigHandler holds the latest shared settings.
type ConfigHandler struct {
	mu     sync.Mutex
	values map[string]dto.ConfigPayload
}

func NewConfigHandler() *ConfigHandler {
	return &ConfigHandler{values: make(map[string]dto.ConfigPayload)}
}

func (h *ConfigHandler) Handle(_ context.Context, action string, data map[string]any) (domain.HandlerResult, error) {
	var p dto.ConfigPayload
	if err := dto.Decode(data, &p); err != nil {
		return domain.HandlerResult{}, err
	}
	if p.Key == "" {
		return domain.HandlerResult{}, fmt.Errorf("config-sync payload needs key")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch action {
	case "set":
		h.values[p.Key] = p
		return domain.HandlerResult{Applied: true, Detail: p.Key}, nil
	case "unset":
		delete(h.values, p.Key)
		return domain.HandlerResult{Applied: true, Detail: p.Key}, nil
	}
	return domain.HandlerResult{}, fmt.Errorf("%w %q on %s", ErrUnknownAction, action, domain.ChannelConfig)
}

// Keys lists the configured keys, sorted.
func (h *ConfigHandler) Keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, 0, len(h.values))
	for k := range h.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AssetHandler records the current checksum of each published asset.
type AssetHandler struct {
	mu     sync.Mutex
	assets map[string]string
}

func NewAssetHandler() *AssetHandler {
	return &AssetHandler{assets: make(map[string]string)}
}

func (h *AssetHandler) Handle(_ context.Context, action string, data map[string]any) (domain.HandlerResult, error) {
	var p dto.AssetPayload
	if err := dto.Decode(data, &p); err != nil {
		return domain.HandlerResult{}, err
	}
	if p.Path == "" {
		return domain.HandlerResult{}, fmt.Errorf("asset-sync payload needs path")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch action {
	case "publish":
		if h.assets[p.Path] == p.Checksum && p.Checksum != "" {
			return domain.HandlerResult{Detail: "unchanged"}, nil
		}
		h.assets[p.Path] = p.Checksum
		return domain.HandlerResult{Applied: true, Detail: p.Path}, nil
	case "remove":
		delete(h.assets, p.Path)
		return domain.HandlerResult{Applied: true, Detail: p.Path}, nil
	}
	return domain.HandlerResult{}, fmt.Errorf("%w %q on %s", ErrUnknownAction, action, domain.ChannelAsset)
}

// AnalyticsHandler counts tracked events per name.
type AnalyticsHandler struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewAnalyticsHandler() *AnalyticsHandler {
	return &AnalyticsHandler{counts: make(map[string]int)}
}

func (h *AnalyticsHandler) Handle(_ context.Context, action string, data map[string]any) (domain.HandlerResult, error) {
	if action != "track" {
		return domain.HandlerResult{}, fmt.Errorf("%w %q on %s", ErrUnknownAction, action, domain.ChannelAnalytics)
	}
	var p dto.AnalyticsPayload
	if err := dto.Decode(data, &p); err != nil {
		return domain.HandlerResult{}, err
	}
	if p.Event == "" {
		return domain.HandlerResult{}, fmt.Errorf("analytics-sync payload needs event")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[p.Event]++
	return domain.HandlerResult{Applied: true, Detail: p.Event}, nil
}

// Count returns how many times event was tracked.
func (h *AnalyticsHandler) Count(event string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[event]
}
