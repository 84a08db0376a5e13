// Package propagate implements what each synchronizer strategy does with a
// batch of changes: cascade rebuilds, file copies, filtered config merges and
// dependency compatibility checks.
package propagate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/watch"
)

// Cascader rebuilds a platform and its dependents.
type Cascader interface {
	Cascade(ctx context.Context, origin string) ([]string, error)
}

// CascadeHandler rebuilds the shared library and everything downstream of it.
type CascadeHandler struct {
	origin   string
	cascader Cascader
	logger   *slog.Logger
}

func NewCascadeHandler(origin string, cascader Cascader, logger *slog.Logger) *CascadeHandler {
	return &CascadeHandler{origin: origin, cascader: cascader, logger: orNop(logger)}
}

func (h *CascadeHandler) Handle(ctx context.Context, batch domain.ChangeBatch) error {
	h.logger.Info("shared source changed", "path", batch.Path, "events", len(batch.Events), "origin", h.origin)
	_, err := h.cascader.Cascade(ctx, h.origin)
	return err
}

// Deps are the collaborators handlers need.
type Deps struct {
	SharedLibrary string
	Cascader      Cascader
	Platforms     Platforms
	Logger        *slog.Logger
	// CompatReport receives dependency check results.
	CompatReport func(target string, issues []Incompatibility)
}

// For returns the handler for a synchronizer's strategy.
func For(s domain.Synchronizer, deps Deps) (watch.Handler, error) {
	logger := orNop(deps.Logger).With("synchronizer", s.ID)
	switch s.Strategy {
	case domain.StrategyCascade:
		if deps.SharedLibrary == "" || deps.Cascader == nil {
			return nil, fmt.Errorf("%w: synchronizer %q needs a shared library to cascade from", domain.ErrConfig, s.ID)
		}
		return NewCascadeHandler(deps.SharedLibrary, deps.Cascader, logger), nil
	case domain.StrategyCopy:
		return NewCopyHandler(s, deps.Platforms, logger), nil
	case domain.StrategyMerge:
		return NewMergeHandler(s, deps.Platforms, logger), nil
	case domain.StrategyCompat:
		return NewCompatHandler(s, deps.Platforms, logger, deps.CompatReport), nil
	}
	return nil, fmt.Errorf("%w: unknown strategy %q", domain.ErrConfig, s.Strategy)
}

func orNop(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return logging.NewNop()
	}
	return logger
}
