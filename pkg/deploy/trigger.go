package deploy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/weave/pkg/domain"
	"golang.org/x/sync/errgroup"
)

// Evaluate decides which platforms should be redeployed at now.
//
// A platform never synced, or last synced longer ago than the stale threshold,
// gets a low urgency trigger. Critical signals raise the urgency to high and are
// held across evaluations until a pipeline of that urgency starts, so a signal
// arriving while a pipeline runs or while the platform is unhealthy is not lost.
// Unavailable platforms and platforms without a deploy command are left out.
func (r *Runner) Evaluate(ctx context.Context, now time.Time) ([]domain.Trigger, error) {
	byID := make(map[string]domain.Trigger)

	for _, p := range r.registry.All() {
		if !deployable(p) {
			continue
		}
		switch {
		case p.LastSync == nil:
			byID[p.ID] = domain.Trigger{PlatformID: p.ID, Urgency: domain.UrgencyLow, Reason: "never deployed"}
		case now.Sub(*p.LastSync) > r.staleAfter:
			byID[p.ID] = domain.Trigger{
				PlatformID: p.ID,
				Urgency:    domain.UrgencyLow,
				Reason:     fmt.Sprintf("last deployed %s ago", now.Sub(*p.LastSync).Round(time.Second)),
			}
		}
	}

	var err error
	if r.signals != nil {
		var signals []domain.Trigger
		signals, err = r.signals.Consume(ctx)
		if err != nil {
			r.logger.Warn("failed to read critical signals", "error", err)
			err = fmt.Errorf("signals: %w", err)
		}
		for _, sig := range signals {
			r.hold(sig)
		}
	}

	for _, sig := range r.pending() {
		p, getErr := r.registry.Get(sig.PlatformID)
		if getErr != nil || p.DeployCmd == "" {
			r.logger.Warn("signal for undeployable platform dropped", "platform_id", sig.PlatformID)
			r.settle(sig.PlatformID, domain.UrgencyHigh)
			continue
		}
		if !deployable(p) {
			r.logger.Info("signal held until platform is healthy", "platform_id", sig.PlatformID, "status", p.Status)
			continue
		}
		byID[sig.PlatformID] = sig
	}

	triggers := make([]domain.Trigger, 0, len(byID))
	for _, t := range byID {
		triggers = append(triggers, t)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i].PlatformID < triggers[j].PlatformID })
	return triggers, err
}

// hold keeps a critical signal until a pipeline of at least its urgency starts
// for the platform. Signals for the same platform keep the highest urgency.
func (r *Runner) hold(sig domain.Trigger) {
	if sig.Urgency == "" {
		sig.Urgency = domain.UrgencyHigh
	}
	if sig.Reason == "" {
		sig.Reason = "critical signal"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.held[sig.PlatformID]; ok && rank(existing.Urgency) >= rank(sig.Urgency) {
		return
	}
	r.held[sig.PlatformID] = sig
}

// settle releases the held signal of a platform once a pipeline with urgency
// at least as high has started.
func (r *Runner) settle(id string, urgency domain.Urgency) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sig, ok := r.held[id]; ok && rank(urgency) >= rank(sig.Urgency) {
		delete(r.held, id)
	}
}

func (r *Runner) pending() []domain.Trigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Trigger, 0, len(r.held))
	for _, sig := range r.held {
		out = append(out, sig)
	}
	return out
}

func rank(u domain.Urgency) int {
	switch u {
	case domain.UrgencyHigh:
		return 2
	case domain.UrgencyMedium:
		return 1
	}
	return 0
}

func deployable(p domain.Platform) bool {
	return p.DeployCmd != "" && p.Status != domain.StatusUnavailable && p.Status != domain.StatusError
}

// Tick evaluates triggers and runs the resulting pipelines concurrently.
// Platforms whose pipeline is still running are skipped.
func (r *Runner) Tick(ctx context.Context) ([]*domain.Pipeline, error) {
	triggers, evalErr := r.Evaluate(ctx, r.now())
	if len(triggers) == 0 {
		return nil, evalErr
	}

	var (
		mu        sync.Mutex
		pipelines []*domain.Pipeline
		errs      = []error{evalErr}
	)
	var g errgroup.Group
	for _, t := range triggers {
		platform, err := r.registry.Get(t.PlatformID)
		if err != nil {
			continue
		}
		p := NewPipeline(platform, t, "")
		g.Go(func() error {
			r.logger.Info("deployment triggered", "platform_id", t.PlatformID, "urgency", t.Urgency, "reason", t.Reason)
			done, err := r.Run(ctx, p)

			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, domain.ErrPipelineInFlight) {
				r.logger.Info("pipeline already running, trigger deferred", "platform_id", t.PlatformID, "urgency", t.Urgency)
				return nil
			}
			pipelines = append(pipelines, done)
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(pipelines, func(i, j int) bool { return pipelines[i].PlatformID < pipelines[j].PlatformID })
	return pipelines, errors.Join(errs...)
}

// Start runs Tick every interval until Stop.
func (r *Runner) Start(ctx context.Context, every time.Duration) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.Tick(ctx); err != nil {
					r.logger.Warn("deployment tick finished with failures", "error", err)
				}
			}
		}
	}()
}

// Stop ends the ticker and waits for the current tick.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}
