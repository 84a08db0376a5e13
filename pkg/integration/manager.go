// Package integration runs the scheduled integration channels between platforms.
package integration

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
)

const (
	DefaultRealtimeInterval = 30 * time.Second
	DefaultPollingInterval  = 60 * time.Second
	// DefaultMaxPerTick bounds how many queued events one realtime tick drains.
	DefaultMaxPerTick = 32
)

// ErrUnknownChannel is returned when triggering a channel that is not configured.
var ErrUnknownChannel = errors.New("unknown integration channel")

// ChannelStatus summarizes the activity of one channel.
type ChannelStatus struct {
	Channel   domain.ChannelID `json:"channel"`
	Realtime  bool             `json:"realtime"`
	Interval  time.Duration    `json:"interval"`
	Runs      int              `json:"runs"`
	Skipped   int              `json:"skipped"`
	Delivered int              `json:"delivered"`
	Duplicate int              `json:"duplicate"`
	Errors    int              `json:"errors"`
	LastRun   *time.Time       `json:"last_run,omitempty"`
	LastError string           `json:"last_error,omitempty"`
}

type channelState struct {
	channel domain.Channel
	handler Handler
	busy    atomic.Bool
	status  ChannelStatus
}

// Manager drives every configured channel on its own ticker.
//
// Realtime channels drain the TriggerSource and hand events to the channel
// handler. Polling channels ask the StatusReporter for each bound platform and
// surface reported errors as warnings. A tick arriving while the previous run
// of the same channel is still going is dropped.
type Manager struct {
	source   ports.TriggerSource
	reporter ports.StatusReporter
	dedup    ports.Deduplicator
	hooks    domain.LifecycleHooks
	logger   *slog.Logger

	realtimeEvery time.Duration
	pollingEvery  time.Duration
	maxPerTick    int
	handlers      map[domain.ChannelID]Handler

	mu       sync.Mutex
	order    []domain.ChannelID
	channels map[domain.ChannelID]*channelState

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the Manager.
type Option func(*Manager)

func WithTriggerSource(source ports.TriggerSource) Option {
	return func(m *Manager) {
		m.source = source
	}
}

func WithStatusReporter(reporter ports.StatusReporter) Option {
	return func(m *Manager) {
		m.reporter = reporter
	}
}

func WithDeduplicator(dedup ports.Deduplicator) Option {
	return func(m *Manager) {
		m.dedup = dedup
	}
}

// WithHandler overrides the handler of one channel.
func WithHandler(id domain.ChannelID, h Handler) Option {
	return func(m *Manager) {
		m.handlers[id] = h
	}
}

func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = hooks
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithIntervals sets the default tick of realtime and polling channels.
// A channel's own Interval takes precedence.
func WithIntervals(realtime, polling time.Duration) Option {
	return func(m *Manager) {
		if realtime > 0 {
			m.realtimeEvery = realtime
		}
		if polling > 0 {
			m.pollingEvery = polling
		}
	}
}

func WithMaxPerTick(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxPerTick = n
		}
	}
}

func NewManager(channels []domain.Channel, opts ...Option) *Manager {
	m := &Manager{
		logger:        logging.NewNop(),
		realtimeEvery: DefaultRealtimeInterval,
		pollingEvery:  DefaultPollingInterval,
		maxPerTick:    DefaultMaxPerTick,
		handlers:      DefaultHandlers(),
		channels:      make(map[domain.ChannelID]*channelState),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, ch := range channels {
		if ch.Interval <= 0 {
			ch.Interval = m.pollingEvery
			if ch.Realtime {
				ch.Interval = m.realtimeEvery
			}
		}
		m.order = append(m.order, ch.ID)
		m.channels[ch.ID] = &channelState{
			channel: ch,
			handler: m.handlers[ch.ID],
			status:  ChannelStatus{Channel: ch.ID, Realtime: ch.Realtime, Interval: ch.Interval},
		}
	}
	return m
}

// Channels returns the configured channels in declaration order.
func (m *Manager) Channels() []domain.Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Channel, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.channels[id].channel)
	}
	return out
}

// Start launches one ticker goroutine per channel.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	for _, id := range m.order {
		state := m.channels[id]
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			ticker := time.NewTicker(state.channel.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					m.wg.Add(1)
					go func() {
						defer m.wg.Done()
						_, _ = m.Trigger(ctx, id)
					}()
				}
			}
		}()
	}
	m.logger.Info("integration channels started", "count", len(m.order))
}

// Stop cancels the tickers and waits for in-progress runs.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Trigger runs one tick of a channel now. It returns false when the channel
// was already running and this tick was dropped.
func (m *Manager) Trigger(ctx context.Context, id domain.ChannelID) (bool, error) {
	m.mu.Lock()
	state, ok := m.channels[id]
	m.mu.Unlock()
	if !ok {
		return false, ErrUnknownChannel
	}

	if !state.busy.CompareAndSwap(false, true) {
		m.logger.Debug("channel still running, tick dropped", "channel", id)
		m.record(state, func(s *ChannelStatus) { s.Skipped++ })
		return false, nil
	}
	defer state.busy.Store(false)

	now := time.Now()
	m.record(state, func(s *ChannelStatus) {
		s.Runs++
		s.LastRun = &now
	})

	if state.channel.Realtime {
		return true, m.runRealtime(ctx, state)
	}
	return true, m.runPolling(ctx, state)
}

func (m *Manager) runRealtime(ctx context.Context, state *channelState) error {
	if m.source == nil {
		return nil
	}
	id := state.channel.ID

	for i := 0; i < m.maxPerTick; i++ {
		ev, err := m.source.PollOnce(ctx, id)
		if errors.Is(err, domain.ErrNoEvent) {
			return nil
		}
		if err != nil {
			m.logger.Warn("trigger source failed", "channel", id, "error", err)
			m.fail(state, err)
			return err
		}

		claimed := false
		key := string(id) + ":" + ev.ID
		if m.dedup != nil && ev.ID != "" {
			first, err := m.dedup.FirstSeen(ctx, key)
			if err != nil {
				m.logger.Warn("deduplication unavailable, handling event anyway", "channel", id, "event_id", ev.ID, "error", err)
			} else if !first {
				m.logger.Debug("duplicate event skipped", "channel", id, "event_id", ev.ID)
				m.record(state, func(s *ChannelStatus) { s.Duplicate++ })
				continue
			}
			claimed = err == nil
		}

		if !m.deliver(ctx, state, ev) && claimed {
			if err := m.dedup.Forget(ctx, key); err != nil {
				m.logger.Warn("failed to release event id, redelivery will be skipped", "channel", id, "event_id", ev.ID, "error", err)
			}
		}
	}
	return nil
}

// deliver hands ev to the channel handler and reports whether it was handled.
func (m *Manager) deliver(ctx context.Context, state *channelState, ev domain.IntegrationEvent) bool {
	id := state.channel.ID
	delivery := &domain.ChannelEvent{Channel: id, Action: ev.Action}

	if state.handler == nil {
		m.logger.Error("no handler for channel", "channel", id, "action", ev.Action)
		delivery.IsError = true
		m.fail(state, ErrUnknownChannel)
		m.emit(ctx, delivery)
		return false
	}

	res, err := state.handler.Handle(ctx, ev.Action, ev.Data)
	if err != nil {
		m.logger.Error("integration handler failed", "channel", id, "action", ev.Action, "event_id", ev.ID, "error", err)
		delivery.IsError = true
		m.fail(state, err)
	} else {
		m.logger.Debug("integration event handled", "channel", id, "action", ev.Action, "applied", res.Applied, "detail", res.Detail)
		m.record(state, func(s *ChannelStatus) { s.Delivered++ })
	}
	m.emit(ctx, delivery)
	return err == nil
}

func (m *Manager) runPolling(ctx context.Context, state *channelState) error {
	if m.reporter == nil {
		return nil
	}
	id := state.channel.ID

	var errs []error
	for _, pid := range state.channel.Platforms {
		st, err := m.reporter.SyncStatus(ctx, pid, id)
		if err != nil {
			m.logger.Warn("sync status unavailable", "channel", id, "platform_id", pid, "error", err)
			errs = append(errs, err)
			continue
		}
		for _, reported := range st.Errors {
			m.logger.Warn("platform reported sync error", "channel", id, "platform_id", pid, "detail", reported)
		}
		if len(st.Errors) > 0 {
			m.fail(state, errors.New(st.Errors[len(st.Errors)-1]))
		}
		if st.PendingActions > 0 {
			m.logger.Info("platform has pending sync actions", "channel", id, "platform_id", pid, "pending", st.PendingActions)
		}
		m.emit(ctx, &domain.ChannelEvent{Channel: id, Action: "poll", IsError: len(st.Errors) > 0})
	}
	return errors.Join(errs...)
}

// Status returns a snapshot of every channel, in declaration order.
func (m *Manager) Status() []ChannelStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChannelStatus, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.channels[id].status)
	}
	return out
}

func (m *Manager) record(state *channelState, fn func(*ChannelStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&state.status)
}

func (m *Manager) fail(state *channelState, err error) {
	m.record(state, func(s *ChannelStatus) {
		s.Errors++
		s.LastError = err.Error()
	})
}

func (m *Manager) emit(ctx context.Context, ev *domain.ChannelEvent) {
	if m.hooks.OnChannelDelivery != nil {
		m.hooks.OnChannelDelivery(ctx, ev)
	}
}
