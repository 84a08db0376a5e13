package deploy

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aretw0/weave/pkg/domain"
)

// Vault keeps a copy of a platform's artifacts taken before a pipeline runs so a
// rollback can put them back.
type Vault struct {
	Dir string
}

// Snapshot is one saved set of artifacts.
type Snapshot struct {
	dir       string
	platform  domain.Platform
	preserved map[string]bool
}

func NewVault(dir string) *Vault {
	return &Vault{Dir: dir}
}

// Save copies every declared artifact of the platform. Artifacts that do not
// exist yet are remembered so a restore removes them.
func (v *Vault) Save(p domain.Platform, pipelineID string) (*Snapshot, error) {
	snap := &Snapshot{
		dir:       filepath.Join(v.Dir, p.ID, pipelineID),
		platform:  p,
		preserved: make(map[string]bool, len(p.Artifacts)),
	}
	for _, artifact := range p.Artifacts {
		src := filepath.Join(p.Dir, artifact)
		if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
			snap.preserved[artifact] = false
			continue
		}
		if err := copyPath(src, filepath.Join(snap.dir, artifact)); err != nil {
			_ = os.RemoveAll(snap.dir)
			return nil, fmt.Errorf("failed to snapshot %s: %w", artifact, err)
		}
		snap.preserved[artifact] = true
	}
	return snap, nil
}

// Restore replaces the current artifacts with the saved ones.
func (v *Vault) Restore(snap *Snapshot) error {
	var errs []error
	for artifact, existed := range snap.preserved {
		dest := filepath.Join(snap.platform.Dir, artifact)
		if err := os.RemoveAll(dest); err != nil {
			errs = append(errs, err)
			continue
		}
		if !existed {
			continue
		}
		if err := copyPath(filepath.Join(snap.dir, artifact), dest); err != nil {
			errs = append(errs, fmt.Errorf("failed to restore %s: %w", artifact, err))
		}
	}
	return errors.Join(errs...)
}

// Discard deletes a snapshot.
func (v *Vault) Discard(snap *Snapshot) error {
	return os.RemoveAll(snap.dir)
}

func copyPath(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dest, info.Mode())
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, fi.Mode())
	})
}

func copyFile(src, dest string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
