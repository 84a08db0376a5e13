package propagate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/weave/pkg/adapters/file"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/bmatcuk/doublestar/v4"
)

// Platforms resolves target platforms.
type Platforms interface {
	Get(id string) (domain.Platform, error)
}

// relative returns path relative to the static base of the first glob of s
// that matches it.
func relative(s domain.Synchronizer, path string) (string, bool) {
	path = filepath.ToSlash(path)
	for _, glob := range s.WatchPaths {
		glob = filepath.ToSlash(glob)
		if ok, _ := doublestar.Match(glob, path); !ok {
			continue
		}
		base, _ := doublestar.SplitPattern(glob)
		rel, err := filepath.Rel(filepath.FromSlash(base), filepath.FromSlash(path))
		if err != nil || strings.HasPrefix(rel, "..") {
			return filepath.Base(path), true
		}
		return rel, true
	}
	return "", false
}

// FileHandler copies changed files into every target platform.
// With filtering on, .env files are rewritten per target technology.
type FileHandler struct {
	sync      domain.Synchronizer
	platforms Platforms
	filter    bool
	logger    *slog.Logger
}

// NewCopyHandler propagates files verbatim (assets).
func NewCopyHandler(s domain.Synchronizer, platforms Platforms, logger *slog.Logger) *FileHandler {
	return &FileHandler{sync: s, platforms: platforms, logger: orNop(logger)}
}

// NewMergeHandler propagates files and filters .env content per target (config).
func NewMergeHandler(s domain.Synchronizer, platforms Platforms, logger *slog.Logger) *FileHandler {
	return &FileHandler{sync: s, platforms: platforms, filter: true, logger: orNop(logger)}
}

func (h *FileHandler) Handle(ctx context.Context, batch domain.ChangeBatch) error {
	ev := batch.Last()
	rel, ok := relative(h.sync, ev.Path)
	if !ok {
		return fmt.Errorf("path %s does not match synchronizer %s", ev.Path, h.sync.ID)
	}

	var content []byte
	if ev.Kind != domain.ChangeDelete {
		data, err := os.ReadFile(filepath.FromSlash(ev.Path))
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to read %s: %w", ev.Path, err)
			}
			// gone before the timer fired
			ev.Kind = domain.ChangeDelete
		}
		content = data
	}

	var errs []error
	for _, target := range h.sync.Targets {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := h.apply(target, rel, ev.Kind, content); err != nil {
			h.logger.Warn("propagation failed", "synchronizer", h.sync.ID, "platform_id", target, "path", rel, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
			continue
		}
		h.logger.Info("propagated change", "synchronizer", h.sync.ID, "platform_id", target, "path", rel, "kind", ev.Kind)
	}
	return errors.Join(errs...)
}

func (h *FileHandler) apply(target, rel string, kind domain.ChangeKind, content []byte) error {
	platform, err := h.platforms.Get(target)
	if err != nil {
		return err
	}
	if info, err := os.Stat(platform.Dir); err != nil || !info.IsDir() {
		return fmt.Errorf("platform directory %s missing", platform.Dir)
	}
	dest := filepath.Join(platform.Dir, h.sync.Dest, rel)

	if kind == domain.ChangeDelete {
		if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}

	if h.filter && isDotenv(rel) {
		content = FilterDotenv(content, platform.Technology)
	}
	return file.WriteAtomic(dest, content)
}
