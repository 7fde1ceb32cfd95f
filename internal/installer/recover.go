package installer

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/vmunix/cinedb/internal/events"
	"github.com/vmunix/cinedb/internal/integrity"
)

// Recovery summarizes the repairs made by Recover.
type Recovery struct {
	RestoredBackup   bool
	RemovedBackup    bool
	RemovedTemp      int
	CompletedPending bool
	ClearedPending   bool
	RemovedStaged    bool
}

// Changed reports whether Recover modified anything.
func (r Recovery) Changed() bool {
	return r.RestoredBackup || r.RemovedBackup || r.RemovedTemp > 0 || r.CompletedPending || r.ClearedPending ||
		r.RemovedStaged
}

// Recover repairs the files beside target after an interrupted run:
// a backup without an active artifact is restored, a redundant backup and
// leftover temporary files are removed, and a pending record whose staged
// file is gone is either completed (the active file already carries the
// pending checksum) or cleared. A staged file without a pending record is
// removed. It does not activate a staged artifact.
func (i *Installer) Recover(ctx context.Context, target string) (Recovery, error) {
	var rec Recovery

	unlock, err := i.locks.lock(ctx, target)
	if err != nil {
		return rec, err
	}
	defer unlock()

	backup := target + backupSuffix
	hasActive, err := afero.Exists(i.fs, target)
	if err != nil {
		return rec, fmt.Errorf("%w: stat active: %v", ErrIO, err)
	}
	hasBackup, err := afero.Exists(i.fs, backup)
	if err != nil {
		return rec, fmt.Errorf("%w: stat backup: %v", ErrIO, err)
	}

	switch {
	case hasBackup && !hasActive:
		if err := i.fs.Rename(backup, target); err != nil {
			return rec, fmt.Errorf("%w: restore backup: %v", ErrIO, err)
		}
		rec.RestoredBackup = true
		hasActive = true
		i.log.Warn("restored artifact from backup", "target", target)
		i.publish(ctx, &events.ArtifactRestored{
			BaseEvent: events.NewBaseEvent(events.EventArtifactRestored, events.SubjectArtifact),
			Path:      target,
		})
	case hasBackup:
		if err := i.fs.Remove(backup); err != nil {
			return rec, fmt.Errorf("%w: remove backup: %v", ErrIO, err)
		}
		rec.RemovedBackup = true
	}

	for _, kind := range []string{"download", "unpacked"} {
		matches, err := afero.Glob(i.fs, tempName(target, kind, "*"))
		if err != nil {
			return rec, fmt.Errorf("%w: glob temp files: %v", ErrIO, err)
		}
		for _, m := range matches {
			if err := i.fs.Remove(m); err == nil {
				rec.RemovedTemp++
			}
		}
	}

	st, err := i.states.Load(ctx)
	if err != nil {
		return rec, fmt.Errorf("%w: load state: %v", ErrIO, err)
	}
	hasStaged, err := afero.Exists(i.fs, target+stagedSuffix)
	if err != nil {
		return rec, fmt.Errorf("%w: stat staged: %v", ErrIO, err)
	}
	if !st.HasPending() {
		if hasStaged {
			if err := i.fs.Remove(target + stagedSuffix); err != nil {
				return rec, fmt.Errorf("%w: remove staged: %v", ErrIO, err)
			}
			rec.RemovedStaged = true
			i.log.Info("removed staged artifact without pending record", "target", target)
		}
		return rec, nil
	}
	if hasStaged {
		return rec, nil
	}

	if hasActive {
		sum, err := integrity.ChecksumFile(ctx, i.fs, target)
		if err != nil {
			return rec, fmt.Errorf("%w: checksum active: %v", ErrIO, err)
		}
		if integrity.Equal(sum, st.PendingChecksum) {
			if err := i.states.RecordInstalled(ctx, st.PendingVersion, st.PendingChecksum); err != nil {
				return rec, fmt.Errorf("%w: record installed: %v", ErrIO, err)
			}
			rec.CompletedPending = true
			i.log.Info("completed interrupted activation", "version", st.PendingVersion)
			return rec, nil
		}
	}
	if err := i.states.ClearPending(ctx); err != nil {
		return rec, fmt.Errorf("%w: clear pending: %v", ErrIO, err)
	}
	rec.ClearedPending = true
	i.log.Info("cleared pending record without staged artifact", "version", st.PendingVersion)
	return rec, nil
}

// StagedPath returns where Stage places the artifact for target.
func StagedPath(target string) string { return target + stagedSuffix }
