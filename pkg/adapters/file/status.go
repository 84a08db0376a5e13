package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/weave/pkg/domain"
)

// StatusDir is where a platform drops its per-channel sync status, relative to its directory.
const StatusDir = ".weave/sync"

// PlatformLookup resolves a platform id.
type PlatformLookup interface {
	Get(id string) (domain.Platform, error)
}

// StatusReporter reads <platform dir>/.weave/sync/<channel>.json written by the
// platform itself. A missing file means nothing to report.
type StatusReporter struct {
	Platforms PlatformLookup
}

func NewStatusReporter(platforms PlatformLookup) *StatusReporter {
	return &StatusReporter{Platforms: platforms}
}

func (r *StatusReporter) SyncStatus(ctx context.Context, platformID string, channel domain.ChannelID) (domain.SyncStatus, error) {
	var st domain.SyncStatus
	p, err := r.Platforms.Get(platformID)
	if err != nil {
		return st, err
	}

	path := filepath.Join(p.Dir, filepath.FromSlash(StatusDir), string(channel)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return st, fmt.Errorf("failed to read sync status: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("invalid sync status in %s: %w", path, err)
	}
	return st, nil
}
