package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aretw0/weave/pkg/adapters/memory"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/integration"
	"github.com/aretw0/weave/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	handler http.Handler
	queue   *memory.Queue
	signals *memory.Signals
	auth    *integration.AuthHandler
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	queue := memory.NewQueue()
	signals := memory.NewSignals()
	auth := integration.NewAuthHandler()

	channels := []domain.Channel{
		{ID: domain.ChannelAuth, Platforms: []string{"web"}, Realtime: true},
		{ID: domain.ChannelAnalytics, Platforms: []string{"web"}},
	}
	manager := integration.NewManager(channels,
		integration.WithTriggerSource(queue),
		integration.WithHandler(domain.ChannelAuth, auth),
	)
	reg, err := registry.New([]domain.Platform{{ID: "web", Technology: domain.TechWeb}})
	require.NoError(t, err)

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "weave_test_total", Help: "test"})
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(counter)
	counter.Inc()

	handler := NewHandler(
		WithEvents(queue),
		WithSignals(signals),
		WithChannels(manager),
		WithPlatforms(reg),
		WithGatherer(promReg),
		WithStatus(func() Status {
			return Status{Channels: manager.Status(), Running: []string{}}
		}),
	)
	return fixture{handler: handler, queue: queue, signals: signals, auth: auth}
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestPostHook(t *testing.T) {
	f := newFixture(t)

	t.Run("delivers to the channel handler", func(t *testing.T) {
		w := do(f.handler, "POST", "/hooks/auth-sync", `{"id":"evt-1","action":"login","data":{"user_id":"u1"}}`)
		require.Equal(t, http.StatusAccepted, w.Code)

		var resp HookResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "evt-1", resp.ID)
		assert.True(t, resp.Delivered)
		assert.True(t, f.auth.Active("u1"))
		assert.Equal(t, 0, f.queue.Len(domain.ChannelAuth))
	})

	t.Run("unknown channel", func(t *testing.T) {
		w := do(f.handler, "POST", "/hooks/nope", `{"action":"x"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("polling channel does not take webhooks", func(t *testing.T) {
		w := do(f.handler, "POST", "/hooks/analytics-sync", `{"action":"track"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		w := do(f.handler, "POST", "/hooks/auth-sync", `{`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing action", func(t *testing.T) {
		w := do(f.handler, "POST", "/hooks/auth-sync", `{"data":{}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPostCritical(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w := do(f.handler, "POST", "/platforms/web/critical", `{"reason":"CVE-2026-1"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	triggers, err := f.signals.Consume(ctx)
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, domain.UrgencyHigh, triggers[0].Urgency)
	assert.Equal(t, "CVE-2026-1", triggers[0].Reason)

	w = do(f.handler, "POST", "/platforms/web/critical", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	triggers, err = f.signals.Consume(ctx)
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, "critical patch", triggers[0].Reason)

	w = do(f.handler, "POST", "/platforms/ghost/critical", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetStatusAndMetrics(t *testing.T) {
	f := newFixture(t)

	w := do(f.handler, "GET", "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Len(t, status.Channels, 2)

	w = do(f.handler, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "weave_test_total 1")

	w = do(f.handler, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnconfiguredRoutes(t *testing.T) {
	h := NewHandler()
	assert.Equal(t, http.StatusNotImplemented, do(h, "GET", "/status", "").Code)
	assert.Equal(t, http.StatusNotImplemented, do(h, "POST", "/hooks/auth-sync", `{"action":"login"}`).Code)
	assert.Equal(t, http.StatusNotImplemented, do(h, "POST", "/platforms/web/critical", "").Code)
}
