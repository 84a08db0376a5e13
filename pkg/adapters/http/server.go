package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/integration"
	"github.com/aretw0/weave/pkg/ports"
	"github.com/aretw0/weave/pkg/propagate"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBody = 1 << 20

// Channels is the integration surface driven by webhooks.
type Channels interface {
	Channels() []domain.Channel
	Trigger(ctx context.Context, id domain.ChannelID) (bool, error)
}

// Platforms resolves platform ids.
type Platforms interface {
	Get(id string) (domain.Platform, error)
}

// Status is the body of GET /status.
type Status struct {
	Report    domain.ShutdownReport       `json:"report"`
	Channels  []integration.ChannelStatus `json:"channels"`
	Pipelines []domain.Pipeline           `json:"pipelines"`
	Running   []string                    `json:"running"`

	// Compat lists unresolved dependency incompatibilities per target platform.
	Compat map[string][]propagate.Incompatibility `json:"compat,omitempty"`
}

// HookRequest is the body of POST /hooks/{channel}.
type HookRequest struct {
	ID     string         `json:"id,omitempty"`
	Action string         `json:"action"`
	Data   map[string]any `json:"data,omitempty"`
}

// HookResponse acknowledges a queued event.
type HookResponse struct {
	ID        string `json:"id"`
	Delivered bool   `json:"delivered"`
}

// CriticalRequest is the optional body of POST /platforms/{id}/critical.
type CriticalRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Server exposes the orchestrator over HTTP.
type Server struct {
	events    ports.EventPublisher
	signals   ports.SignalPublisher
	channels  Channels
	platforms Platforms
	status    func() Status
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithEvents sets where webhook events are queued.
func WithEvents(p ports.EventPublisher) Option {
	return func(s *Server) { s.events = p }
}

// WithSignals sets where critical patch flags are raised.
func WithSignals(p ports.SignalPublisher) Option {
	return func(s *Server) { s.signals = p }
}

// WithChannels sets the integration manager triggered after a webhook.
func WithChannels(c Channels) Option {
	return func(s *Server) { s.channels = c }
}

// WithPlatforms sets the platform lookup for critical patch flags.
func WithPlatforms(p Platforms) Option {
	return func(s *Server) { s.platforms = p }
}

// WithStatus sets the snapshot served on GET /status.
func WithStatus(fn func() Status) Option {
	return func(s *Server) { s.status = fn }
}

// WithGatherer sets the metrics registry served on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewHandler builds the router. Routes whose dependency is not configured answer 501.
func NewHandler(opts ...Option) http.Handler {
	s := &Server{
		gatherer: prometheus.DefaultGatherer,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/status", s.GetStatus)
	r.Post("/hooks/{channel}", s.PostHook)
	r.Post("/platforms/{id}/critical", s.PostCritical)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return s.logRequests(r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

// GetStatus handles GET /status.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		http.Error(w, "status not configured", http.StatusNotImplemented)
		return
	}
	writeJSON(w, http.StatusOK, s.status(), s.logger)
}

// PostHook handles POST /hooks/{channel}: the event is queued, then the channel
// runs once. A busy channel leaves the event for its next tick.
func (s *Server) PostHook(w http.ResponseWriter, r *http.Request) {
	if s.events == nil || s.channels == nil {
		http.Error(w, "webhooks not configured", http.StatusNotImplemented)
		return
	}

	id := domain.ChannelID(chi.URLParam(r, "channel"))
	if !s.realtime(id) {
		http.Error(w, fmt.Sprintf("unknown realtime channel %q", id), http.StatusNotFound)
		return
	}

	var body HookRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		s.logger.Warn("hook: invalid request body", "channel", id, "error", err)
		return
	}
	if err := body.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		s.logger.Warn("hook: request rejected", "channel", id, "error", err)
		return
	}

	ev, err := s.events.Push(r.Context(), domain.IntegrationEvent{
		ID:      body.ID,
		Channel: id,
		Action:  body.Action,
		Data:    body.Data,
	})
	if err != nil {
		http.Error(w, "failed to queue event", http.StatusInternalServerError)
		s.logger.Error("hook: push failed", "channel", id, "error", err)
		return
	}

	ran, err := s.channels.Trigger(r.Context(), id)
	if err != nil {
		s.logger.Warn("hook: channel run failed", "channel", id, "event_id", ev.ID, "error", err)
	}
	writeJSON(w, http.StatusAccepted, HookResponse{ID: ev.ID, Delivered: ran && err == nil}, s.logger)
}

func (s *Server) realtime(id domain.ChannelID) bool {
	for _, ch := range s.channels.Channels() {
		if ch.ID == id {
			return ch.Realtime
		}
	}
	return false
}

// PostCritical handles POST /platforms/{id}/critical.
func (s *Server) PostCritical(w http.ResponseWriter, r *http.Request) {
	if s.signals == nil || s.platforms == nil {
		http.Error(w, "signals not configured", http.StatusNotImplemented)
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.platforms.Get(id); err != nil {
		if errors.Is(err, domain.ErrPlatformNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var body CriticalRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	if err := body.Normalize(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	trigger := domain.Trigger{PlatformID: id, Urgency: domain.UrgencyHigh, Reason: body.Reason}
	if err := s.signals.Raise(r.Context(), trigger); err != nil {
		http.Error(w, "failed to raise signal", http.StatusInternalServerError)
		s.logger.Error("critical: raise failed", "platform_id", id, "error", err)
		return
	}
	s.logger.Info("critical patch flagged", "platform_id", id, "reason", body.Reason)
	writeJSON(w, http.StatusAccepted, trigger, s.logger)
}

func writeJSON(w http.ResponseWriter, code int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "error", err)
	}
}
