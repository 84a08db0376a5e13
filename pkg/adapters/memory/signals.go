package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/weave/pkg/domain"
)

// Signals is an in-process SignalSource. Flags raised for the same platform collapse
// into one trigger keeping the highest urgency.
type Signals struct {
	mu      sync.Mutex
	flagged map[string]domain.Trigger
}

// NewSignals creates an empty signal board.
func NewSignals() *Signals {
	return &Signals{flagged: make(map[string]domain.Trigger)}
}

// Raise flags a platform for redeployment.
func (s *Signals) Raise(ctx context.Context, trigger domain.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.flagged[trigger.PlatformID]; ok && rank(existing.Urgency) >= rank(trigger.Urgency) {
		return nil
	}
	s.flagged[trigger.PlatformID] = trigger
	return nil
}

// Consume returns and clears every raised flag, sorted by platform id.
func (s *Signals) Consume(ctx context.Context) ([]domain.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Trigger, 0, len(s.flagged))
	for _, t := range s.flagged {
		out = append(out, t)
	}
	s.flagged = make(map[string]domain.Trigger)
	sort.Slice(out, func(i, j int) bool { return out[i].PlatformID < out[j].PlatformID })
	return out, nil
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
