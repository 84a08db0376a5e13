package propagate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/aretw0/weave/pkg/domain"
)

// ManifestFile is the dependency manifest read from the shared library and each target.
const ManifestFile = "package.json"

// Manifest is the subset of package.json the compatibility check reads.
type Manifest struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

// Range returns the version range declared for pkg in any dependency section.
func (m Manifest) Range(pkg string) (string, bool) {
	for _, deps := range []map[string]string{m.Dependencies, m.PeerDependencies, m.DevDependencies} {
		if r, ok := deps[pkg]; ok {
			return r, true
		}
	}
	return "", false
}

// ReadManifest loads a package.json file.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return m, nil
}

// Incompatibility is one dependency whose versions cannot be reconciled.
type Incompatibility struct {
	Package string `json:"package"`
	Shared  string `json:"shared"`
	Target  string `json:"target"`
	Reason  string `json:"reason"`
}

// CheckCompat compares a target manifest with the shared library's.
//
// The target's range for the shared package must admit the shared version, and
// for every third-party package both declare, the lowest version the target
// allows must satisfy the shared library's range. Non-semver ranges
// (workspace:, file:, tags) are ignored.
func CheckCompat(shared, target Manifest) []Incompatibility {
	var out []Incompatibility

	if shared.Name != "" && shared.Version != "" {
		if rng, ok := target.Range(shared.Name); ok {
			c, cErr := semver.NewConstraint(rng)
			v, vErr := semver.NewVersion(shared.Version)
			if cErr == nil && vErr == nil && !c.Check(v) {
				out = append(out, Incompatibility{
					Package: shared.Name,
					Shared:  shared.Version,
					Target:  rng,
					Reason:  fmt.Sprintf("shared library version %s is outside %s", shared.Version, rng),
				})
			}
		}
	}

	required := make(map[string]string)
	for _, deps := range []map[string]string{shared.Dependencies, shared.PeerDependencies} {
		for k, v := range deps {
			required[k] = v
		}
	}
	names := make([]string, 0, len(required))
	for k := range required {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, name := range names {
		targetRange, ok := target.Range(name)
		if !ok {
			continue
		}
		c, err := semver.NewConstraint(required[name])
		if err != nil {
			continue
		}
		lowest, ok := lowestVersion(targetRange)
		if !ok {
			continue
		}
		if !c.Check(lowest) {
			out = append(out, Incompatibility{
				Package: name,
				Shared:  required[name],
				Target:  targetRange,
				Reason:  fmt.Sprintf("target allows %s, shared library requires %s", lowest, required[name]),
			})
		}
	}
	return out
}

// lowestVersion extracts the lower bound of a simple npm range.
func lowestVersion(rng string) (*semver.Version, bool) {
	rng = strings.TrimSpace(rng)
	if i := strings.IndexAny(rng, " |,"); i >= 0 {
		rng = rng[:i]
	}
	rng = strings.TrimLeft(rng, "^~>=v")
	if rng == "" || strings.ContainsAny(rng, "*xX:") {
		return nil, false
	}
	v, err := semver.NewVersion(rng)
	if err != nil {
		return nil, false
	}
	return v, true
}

// CompatHandler checks every target's manifest against the shared one.
type CompatHandler struct {
	sync      domain.Synchronizer
	platforms Platforms
	logger    *slog.Logger
	report    func(target string, issues []Incompatibility)
}

// NewCompatHandler builds the dependencies handler. report, when non-nil,
// receives the issues found for each target.
func NewCompatHandler(s domain.Synchronizer, platforms Platforms, logger *slog.Logger, report func(string, []Incompatibility)) *CompatHandler {
	return &CompatHandler{sync: s, platforms: platforms, logger: orNop(logger), report: report}
}

func (h *CompatHandler) Handle(ctx context.Context, batch domain.ChangeBatch) error {
	ev := batch.Last()
	if ev.Kind == domain.ChangeDelete {
		h.logger.Warn("shared manifest removed, skipping compatibility check", "path", ev.Path)
		return nil
	}
	shared, err := ReadManifest(filepath.FromSlash(ev.Path))
	if err != nil {
		return fmt.Errorf("shared manifest: %w", err)
	}

	var errs []error
	for _, target := range h.sync.Targets {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		platform, err := h.platforms.Get(target)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		manifest, err := ReadManifest(filepath.Join(platform.Dir, ManifestFile))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				h.logger.Warn("target has no manifest", "platform_id", target)
				continue
			}
			h.logger.Warn("failed to read target manifest", "platform_id", target, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
			continue
		}

		issues := CheckCompat(shared, manifest)
		for _, issue := range issues {
			h.logger.Warn("incompatible dependency",
				"platform_id", target,
				"package", issue.Package,
				"shared", issue.Shared,
				"target", issue.Target,
			)
		}
		if len(issues) == 0 {
			h.logger.Info("dependencies compatible", "platform_id", target)
		}
		if h.report != nil {
			h.report(target, issues)
		}
	}
	return errors.Join(errs...)
}
