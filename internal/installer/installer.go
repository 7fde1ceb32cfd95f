// Package installer downloads, verifies and atomically activates catalog artifacts.
package installer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/vmunix/cinedb/internal/events"
	"github.com/vmunix/cinedb/internal/integrity"
	"github.com/vmunix/cinedb/internal/manifest"
	"github.com/vmunix/cinedb/internal/state"
)

// Default transfer timeouts.
const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultReadTimeout    = 60 * time.Second
)

// Suffixes of the sibling files kept next to the active artifact.
const (
	backupSuffix = ".bak"
	stagedSuffix = ".staged"
)

// StateRecorder persists which artifact is installed or pending.
type StateRecorder interface {
	Load(ctx context.Context) (state.UpdateState, error)
	RecordInstalled(ctx context.Context, version, checksum string) error
	RecordPending(ctx context.Context, version, checksum string) error
	ClearPending(ctx context.Context) error
}

// Result describes a completed install, stage or activation.
type Result struct {
	Version  string
	Checksum string
	Path     string
	Bytes    int64
	Duration time.Duration
}

// Installer moves verified artifacts into place. Runs for the same target
// path are serialized; runs for different paths proceed independently.
type Installer struct {
	fs          afero.Fs
	client      *http.Client
	states      StateRecorder
	bus         *events.Bus
	log         *slog.Logger
	userAgent   string
	readTimeout time.Duration
	strictSize  bool
	progress    ProgressFunc
	locks       *pathLocks

	// afterDownload runs on the transfer file before decompression.
	afterDownload func(fs afero.Fs, path string) error
}

// Option configures an Installer.
type Option func(*Installer)

// WithFs sets the filesystem. Defaults to the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(i *Installer) { i.fs = fs }
}

// WithHTTPClient sets the transfer client.
func WithHTTPClient(c *http.Client) Option {
	return func(i *Installer) { i.client = c }
}

// WithTimeouts builds a transfer client with the given connect and read timeouts.
func WithTimeouts(connect, read time.Duration) Option {
	return func(i *Installer) {
		i.client = manifest.NewHTTPClient(connect, read)
		i.readTimeout = read
	}
}

// WithStrictSize rejects transfers whose size differs from the manifest.
func WithStrictSize(strict bool) Option {
	return func(i *Installer) { i.strictSize = strict }
}

// WithProgress sets a transfer progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(i *Installer) { i.progress = fn }
}

// WithEventBus publishes lifecycle events to bus.
func WithEventBus(bus *events.Bus) Option {
	return func(i *Installer) { i.bus = bus }
}

// WithUserAgent sets the transfer User-Agent.
func WithUserAgent(ua string) Option {
	return func(i *Installer) { i.userAgent = ua }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(i *Installer) { i.log = log }
}

// New creates an installer that records outcomes in states.
func New(states StateRecorder, opts ...Option) *Installer {
	i := &Installer{
		fs:          afero.NewOsFs(),
		states:      states,
		userAgent:   manifest.DefaultUserAgent,
		readTimeout: DefaultReadTimeout,
		locks:       newPathLocks(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.client == nil {
		i.client = manifest.NewHTTPClient(DefaultConnectTimeout, i.readTimeout)
	}
	if i.log == nil {
		i.log = slog.Default()
	}
	i.log = i.log.With("component", "installer")
	return i
}

// Install downloads, verifies and activates m at target, then records it as
// installed. Any failure before activation leaves target untouched.
// ctx is honored until activation begins; activation always runs to completion.
func (i *Installer) Install(ctx context.Context, m *manifest.Manifest, target string) (*Result, error) {
	unlock, err := i.locks.lock(ctx, target)
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := time.Now()
	log := i.log.With("version", m.Version, "target", target)
	log.Info("installing artifact", "url", m.URL)

	ready, n, err := i.prepare(ctx, m, target)
	if err != nil {
		i.failed(ctx, m, err)
		return nil, err
	}

	if err := i.activate(ready, target); err != nil {
		removeQuietly(i.fs, ready)
		i.failed(ctx, m, err)
		return nil, err
	}

	actx := context.WithoutCancel(ctx)
	if err := i.states.RecordInstalled(actx, m.Version, m.Checksum); err != nil {
		return nil, fmt.Errorf("%w: record installed: %v", ErrIO, err)
	}
	// The pending record is gone, so a staged file would never be activated.
	removeQuietly(i.fs, target+stagedSuffix)

	res := &Result{Version: m.Version, Checksum: m.Checksum, Path: target, Bytes: n, Duration: time.Since(start)}
	log.Info("artifact activated", "bytes", n, "duration", res.Duration)
	i.publish(actx, &events.ArtifactActivated{
		BaseEvent: events.NewBaseEvent(events.EventArtifactActivated, events.SubjectArtifact),
		Version:   m.Version,
		Checksum:  m.Checksum,
		Path:      target,
		Bytes:     n,
	})
	return res, nil
}

// Stage downloads and verifies m, places it beside target without touching
// the active artifact, and records it as pending. ActivatePending moves it
// into place later.
func (i *Installer) Stage(ctx context.Context, m *manifest.Manifest, target string) (*Result, error) {
	unlock, err := i.locks.lock(ctx, target)
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := time.Now()
	ready, n, err := i.prepare(ctx, m, target)
	if err != nil {
		i.failed(ctx, m, err)
		return nil, err
	}

	staged := target + stagedSuffix
	removeQuietly(i.fs, staged)
	if err := i.fs.Rename(ready, staged); err != nil {
		removeQuietly(i.fs, ready)
		return nil, fmt.Errorf("%w: stage: %v", ErrIO, err)
	}
	if err := i.states.RecordPending(ctx, m.Version, m.Checksum); err != nil {
		removeQuietly(i.fs, staged)
		return nil, fmt.Errorf("%w: record pending: %v", ErrIO, err)
	}

	i.log.Info("artifact staged", "version", m.Version, "path", staged)
	i.publish(ctx, &events.ArtifactStaged{
		BaseEvent: events.NewBaseEvent(events.EventArtifactStaged, events.SubjectArtifact),
		Version:   m.Version,
		Checksum:  m.Checksum,
		Path:      staged,
	})
	return &Result{Version: m.Version, Checksum: m.Checksum, Path: staged, Bytes: n, Duration: time.Since(start)}, nil
}

// ActivatePending activates the artifact staged for target. The staged file is
// verified again first; a file that no longer matches is discarded and the
// pending state cleared. Returns ErrNoPending if nothing is staged.
func (i *Installer) ActivatePending(ctx context.Context, target string) (*Result, error) {
	unlock, err := i.locks.lock(ctx, target)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := i.states.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load state: %v", ErrIO, err)
	}
	staged := target + stagedSuffix
	ok, err := afero.Exists(i.fs, staged)
	if err != nil {
		return nil, fmt.Errorf("%w: stat staged: %v", ErrIO, err)
	}
	if !st.HasPending() || !ok {
		return nil, ErrNoPending
	}

	start := time.Now()
	sum, err := integrity.ChecksumFile(ctx, i.fs, staged)
	if err != nil {
		return nil, fmt.Errorf("%w: checksum staged: %v", ErrIO, err)
	}
	if !integrity.Equal(sum, st.PendingChecksum) {
		i.log.Warn("discarding staged artifact", "version", st.PendingVersion, "reason", "checksum")
		removeQuietly(i.fs, staged)
		_ = i.states.ClearPending(ctx)
		return nil, &ChecksumError{Expected: st.PendingChecksum, Actual: sum}
	}

	if err := i.activate(staged, target); err != nil {
		return nil, err
	}
	actx := context.WithoutCancel(ctx)
	if err := i.states.RecordInstalled(actx, st.PendingVersion, st.PendingChecksum); err != nil {
		return nil, fmt.Errorf("%w: record installed: %v", ErrIO, err)
	}

	var size int64
	if fi, err := i.fs.Stat(target); err == nil {
		size = fi.Size()
	}
	i.log.Info("pending artifact activated", "version", st.PendingVersion, "target", target)
	i.publish(actx, &events.ArtifactActivated{
		BaseEvent: events.NewBaseEvent(events.EventArtifactActivated, events.SubjectArtifact),
		Version:   st.PendingVersion,
		Checksum:  st.PendingChecksum,
		Path:      target,
		Bytes:     size,
	})
	return &Result{
		Version:  st.PendingVersion,
		Checksum: st.PendingChecksum,
		Path:     target,
		Bytes:    size,
		Duration: time.Since(start),
	}, nil
}

// prepare produces a verified, ready-to-activate file beside target and
// returns its path and size. All temporary files are removed on failure.
func (i *Installer) prepare(ctx context.Context, m *manifest.Manifest, target string) (path string, size int64, err error) {
	id := uuid.NewString()
	transfer := tempName(target, "download", id)
	unpacked := tempName(target, "unpacked", id)

	if err := i.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", 0, fmt.Errorf("%w: create dir: %v", ErrIO, err)
	}

	defer func() {
		if err != nil {
			removeQuietly(i.fs, transfer, unpacked)
		}
	}()

	n, err := i.download(ctx, m, transfer)
	if err != nil {
		return "", 0, err
	}
	if err := i.checkSize(m, n); err != nil {
		return "", 0, err
	}
	if i.afterDownload != nil {
		if err := i.afterDownload(i.fs, transfer); err != nil {
			return "", 0, err
		}
	}
	if err := canceled(ctx); err != nil {
		return "", 0, err
	}

	ready := transfer
	if m.Compressed {
		if n, err = i.decompress(ctx, transfer, unpacked); err != nil {
			return "", 0, err
		}
		removeQuietly(i.fs, transfer)
		ready = unpacked
	}

	sum, err := integrity.ChecksumFile(ctx, i.fs, ready)
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, fmt.Errorf("%w: checksum: %v", ErrCanceled, ctx.Err())
		}
		return "", 0, fmt.Errorf("%w: checksum: %v", ErrIO, err)
	}
	if !integrity.Equal(sum, m.Checksum) {
		i.log.Warn("artifact failed verification", "version", m.Version, "expected", m.Checksum, "actual", sum)
		return "", 0, &ChecksumError{Expected: m.Checksum, Actual: sum}
	}

	kind, err := sniff(i.fs, ready)
	if err != nil {
		return "", 0, err
	}
	if !is(kind, mimeSQLite) {
		return "", 0, fmt.Errorf("%w: payload has type %s", ErrInvalidArtifact, kind.String())
	}

	if err := canceled(ctx); err != nil {
		return "", 0, err
	}
	return ready, n, nil
}

// activate moves src to target. An existing target is first moved aside and
// restored if the move fails, so target always holds a complete artifact.
func (i *Installer) activate(src, target string) error {
	backup := target + backupSuffix

	hadActive, err := afero.Exists(i.fs, target)
	if err != nil {
		return fmt.Errorf("%w: stat active: %v", ErrIO, err)
	}
	if hadActive {
		removeQuietly(i.fs, backup)
		if err := i.fs.Rename(target, backup); err != nil {
			return fmt.Errorf("%w: move active aside: %v", ErrIO, err)
		}
	}

	if err := i.fs.Rename(src, target); err != nil {
		if hadActive {
			if rerr := i.fs.Rename(backup, target); rerr != nil {
				i.log.Error("restore backup failed", "backup", backup, "error", rerr)
				return fmt.Errorf("%w: activate: %v", ErrIO, errors.Join(err, rerr))
			}
			i.log.Warn("activation failed, previous artifact restored", "target", target, "error", err)
		}
		return fmt.Errorf("%w: activate: %v", ErrIO, err)
	}

	if ok, _ := afero.Exists(i.fs, backup); ok {
		if err := i.fs.Remove(backup); err != nil {
			i.log.Warn("remove backup", "path", backup, "error", err)
		}
	}
	return nil
}

func (i *Installer) failed(ctx context.Context, m *manifest.Manifest, err error) {
	i.log.Error("install failed", "version", m.Version, "error", err)
	i.publish(context.WithoutCancel(ctx), &events.InstallFailed{
		BaseEvent: events.NewBaseEvent(events.EventInstallFailed, events.SubjectArtifact),
		Version:   m.Version,
		Error:     err.Error(),
	})
}

func (i *Installer) publish(ctx context.Context, e events.Event) {
	if err := i.bus.Publish(ctx, e); err != nil {
		i.log.Warn("publish event", "type", e.EventType(), "error", err)
	}
}

func canceled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCanceled, err)
	}
	return nil
}
