// Package rollback implements with_rollback (spec §4.J): snapshot the
// manifest and lockfile, run a closure, and restore the snapshot on error.
//
// The snapshot/restore protocol is txn_writer.go's SafeWriter inverted: where
// SafeWriter stages a new state in a temp dir and moves it into place only
// once every write has succeeded, this package stages the *old* state in
// memory up front and moves it back into place only if fn fails, since the
// spec's rollback target is "undo", not "commit".
package rollback

import (
	"context"
	"os"
	"path/filepath"

	"github.com/lurock/lurock/internal/lockfile"
	"github.com/lurock/lurock/internal/lurocklog"
	"github.com/lurock/lurock/internal/manifest"
)

// Snapshot is an in-memory copy of a project's manifest and lockfile, each
// either present (non-nil bytes) or absent (nil). Snapshots never persist
// across process exits.
type Snapshot struct {
	manifestPresent bool
	manifestData    []byte
	lockfilePresent bool
	lockfileData    []byte
}

func takeSnapshot(projectRoot string) (*Snapshot, error) {
	snap := &Snapshot{}

	mpath := filepath.Join(projectRoot, manifest.FileName)
	if data, err := os.ReadFile(mpath); err == nil {
		snap.manifestPresent = true
		snap.manifestData = data
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	lpath := filepath.Join(projectRoot, lockfile.FileName)
	if data, err := os.ReadFile(lpath); err == nil {
		snap.lockfilePresent = true
		snap.lockfileData = data
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	return snap, nil
}

// restore writes snap back to disk: an absent snapshot entry is translated
// into a removal if the current file exists.
func (snap *Snapshot) restore(projectRoot string, log *lurocklog.Logger) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	mpath := filepath.Join(projectRoot, manifest.FileName)
	if snap.manifestPresent {
		record(os.WriteFile(mpath, snap.manifestData, 0o644))
	} else if _, err := os.Stat(mpath); err == nil {
		record(os.Remove(mpath))
	}

	lpath := filepath.Join(projectRoot, lockfile.FileName)
	if snap.lockfilePresent {
		record(os.WriteFile(lpath, snap.lockfileData, 0o644))
	} else if _, err := os.Stat(lpath); err == nil {
		record(os.Remove(lpath))
	}

	if firstErr != nil {
		log.Warnf("rollback: failed to fully restore project state: %s", firstErr)
	}
	return firstErr
}

// WithRollback snapshots the manifest and lockfile, runs fn, and restores the
// snapshot if fn returns an error. A failure during restore is logged but
// never masks fn's original error.
func WithRollback(projectRoot string, log *lurocklog.Logger, fn func() error) error {
	snap, err := takeSnapshot(projectRoot)
	if err != nil {
		return err
	}

	err = fn()
	if err != nil {
		snap.restore(projectRoot, log)
		return err
	}
	return nil
}

// WithRollbackContext is the async counterpart to WithRollback: same
// snapshot/restore semantics, with fn additionally observing ctx so it can
// honor cancellation (spec §5 "a user-initiated cancel at the top level ...
// triggers rollback").
func WithRollbackContext(ctx context.Context, projectRoot string, log *lurocklog.Logger, fn func(context.Context) error) error {
	snap, err := takeSnapshot(projectRoot)
	if err != nil {
		return err
	}

	err = fn(ctx)
	if err != nil {
		snap.restore(projectRoot, log)
		return err
	}
	return nil
}
