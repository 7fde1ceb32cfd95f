package update

//go:generate mockgen -source=engine.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"

	"github.com/vmunix/cinedb/internal/catalog"
	"github.com/vmunix/cinedb/internal/events"
	"github.com/vmunix/cinedb/internal/installer"
	"github.com/vmunix/cinedb/internal/integrity"
	"github.com/vmunix/cinedb/internal/manifest"
	"github.com/vmunix/cinedb/internal/state"
)

// ErrDeclined indicates the user declined a mandatory download.
var ErrDeclined = errors.New("download declined")

// ManifestSource fetches the current manifest.
type ManifestSource interface {
	Fetch(ctx context.Context) (*manifest.Manifest, error)
}

// Installer places artifacts at the active path.
type Installer interface {
	Install(ctx context.Context, mf *manifest.Manifest, target string) (*installer.Result, error)
	Stage(ctx context.Context, mf *manifest.Manifest, target string) (*installer.Result, error)
	ActivatePending(ctx context.Context, target string) (*installer.Result, error)
	Recover(ctx context.Context, target string) (installer.Recovery, error)
}

// StateStore reads the persisted update state.
type StateStore interface {
	Load(ctx context.Context) (state.UpdateState, error)
	TouchLastCheck(ctx context.Context, at time.Time) error
}

// Confirmer asks a human whether a download may proceed.
type Confirmer interface {
	ConfirmDownload(ctx context.Context, offer Offer) (bool, error)
}

// Validator checks that the artifact at path is usable.
type Validator func(ctx context.Context, path string) error

// Offer is what a Confirmer is asked to approve.
type Offer struct {
	Version   string
	SizeBytes int64
	SizeText  string
	Reason    Reason
	Mandatory bool
}

// Check is the outcome of one manifest check.
type Check struct {
	Manifest *manifest.Manifest
	Local    state.UpdateState
	Decision Decision
}

// Result is reported to the caller after a check or install attempt.
type Result struct {
	Decision  Decision
	Version   string
	Installed bool
	Staged    bool
	Message   string
	// CanSkip is true when a usable artifact already exists, so the caller may
	// continue without this update.
	CanSkip bool
	Err     error
}

// Engine applies the update policy for one active artifact path.
type Engine struct {
	source    ManifestSource
	installer Installer
	states    StateStore
	target    string
	confirmer Confirmer
	validate  Validator
	bus       *events.Bus
	log       *slog.Logger

	confirmThreshold int64
	twoPhase         bool
	retryAttempts    uint
	retryDelay       time.Duration

	group singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfirmer gates downloads of at least threshold bytes behind c.
// Mandatory downloads are always confirmed.
func WithConfirmer(c Confirmer, threshold int64) Option {
	return func(e *Engine) {
		e.confirmer = c
		e.confirmThreshold = threshold
	}
}

// WithValidator sets the artifact validator. Defaults to catalog.ValidateFile.
func WithValidator(v Validator) Option {
	return func(e *Engine) { e.validate = v }
}

// WithTwoPhase stages updates offered by CheckAndOffer instead of activating
// them immediately.
func WithTwoPhase(enabled bool) Option {
	return func(e *Engine) { e.twoPhase = enabled }
}

// WithRetry sets the manifest fetch retry policy used by EnsureInstalled.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(e *Engine) {
		e.retryAttempts = attempts
		e.retryDelay = delay
	}
}

// WithEventBus publishes check outcomes to bus.
func WithEventBus(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine creates an engine that keeps target up to date.
func NewEngine(source ManifestSource, inst Installer, states StateStore, target string, opts ...Option) *Engine {
	e := &Engine{
		source:        source,
		installer:     inst,
		states:        states,
		target:        target,
		validate:      catalog.ValidateFile,
		retryAttempts: 3,
		retryDelay:    2 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	e.log = e.log.With("component", "update")
	return e
}

// Target returns the active artifact path.
func (e *Engine) Target() string { return e.target }

// Check fetches the manifest once and applies the decision table. Concurrent
// callers share one fetch; the shared fetch outlives any single caller, and
// each caller stops waiting when its own ctx is done.
func (e *Engine) Check(ctx context.Context) (*Check, error) {
	ch := e.group.DoChan("check", func() (any, error) {
		return e.check(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Check), nil
	}
}

func (e *Engine) check(ctx context.Context) (*Check, error) {
	m, err := e.source.Fetch(ctx)
	if err != nil {
		e.log.Warn("manifest check failed", "error", err)
		e.publish(ctx, &events.CheckFailed{
			BaseEvent: events.NewBaseEvent(events.EventCheckFailed, events.SubjectManifest),
			Error:     err.Error(),
		})
		return nil, err
	}

	local, err := e.states.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load update state: %w", err)
	}
	if err := e.states.TouchLastCheck(ctx, time.Now()); err != nil {
		e.log.Warn("record last check", "error", err)
	}

	d := Decide(local, m, e.artifactPresent())
	e.log.Info("manifest checked", "version", m.Version, "installed", local.InstalledVersion,
		"outcome", d.Outcome, "reason", d.Reason)
	e.publish(ctx, &events.ManifestChecked{
		BaseEvent: events.NewBaseEvent(events.EventManifestChecked, events.SubjectManifest),
		Version:   m.Version,
		Checksum:  m.Checksum,
		Outcome:   string(d.Outcome),
		Reason:    string(d.Reason),
	})
	return &Check{Manifest: m, Local: local, Decision: d}, nil
}

// EnsureInstalled blocks until a usable artifact is in place. It recovers
// interrupted runs, activates a staged artifact, and installs when no usable
// artifact exists or the active one is corrupt. When an artifact is already
// usable and merely outdated it reports the available update without
// installing. The returned error equals Result.Err.
func (e *Engine) EnsureInstalled(ctx context.Context) (*Result, error) {
	if _, err := e.Recover(ctx); err != nil {
		e.log.Warn("recovery incomplete", "error", err)
	}

	usable, verr := e.usable(ctx)

	var c *Check
	err := retry.Do(
		func() error {
			var err error
			c, err = e.Check(ctx)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(max(e.retryAttempts, 1)),
		retry.Delay(e.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, manifest.ErrNetwork) }),
		retry.OnRetry(func(n uint, err error) {
			e.log.Debug("retrying manifest fetch", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		if usable {
			return e.finish(&Result{
				Message: "Could not check for catalog updates; continuing with the installed catalog.",
				CanSkip: true,
				Err:     err,
			})
		}
		return e.finish(&Result{
			Message: "Could not download the catalog. Check your connection and retry.",
			Err:     err,
		})
	}

	d := c.Decision
	if !usable && verr != nil {
		e.log.Warn("active artifact unusable, reinstalling", "error", verr)
		d = corrupt()
	}

	switch {
	case !d.Available():
		return e.finish(&Result{Decision: d, Version: c.Manifest.Version, Message: "Catalog is up to date.", CanSkip: true})
	case usable && d.Reason != ReasonStateCorrupted:
		return e.finish(&Result{
			Decision: d,
			Version:  c.Manifest.Version,
			Message:  fmt.Sprintf("Catalog %s is available.", c.Manifest.Version),
			CanSkip:  true,
		})
	}
	return e.finish(e.apply(ctx, c.Manifest, d, usable, false))
}

// CheckAndOffer checks for an update in the background and delivers exactly
// one Result on the returned channel. It never blocks the caller. With force
// set an up-to-date artifact is reinstalled.
func (e *Engine) CheckAndOffer(ctx context.Context, force bool) <-chan *Result {
	out := make(chan *Result, 1)
	go func() {
		defer close(out)
		out <- e.checkAndOffer(ctx, force)
	}()
	return out
}

func (e *Engine) checkAndOffer(ctx context.Context, force bool) *Result {
	usable, _ := e.usable(ctx)

	c, err := e.Check(ctx)
	if err != nil {
		return &Result{
			Message: "Update check failed. Retry later.",
			CanSkip: usable,
			Err:     err,
		}
	}
	d := c.Decision
	if !d.Available() && !force {
		return &Result{Decision: d, Version: c.Manifest.Version, Message: "Catalog is up to date.", CanSkip: usable}
	}
	stage := e.twoPhase && usable
	if stage && !force && e.alreadyStaged(c) {
		return &Result{
			Decision: d,
			Version:  c.Manifest.Version,
			Staged:   true,
			CanSkip:  true,
			Message:  fmt.Sprintf("Catalog %s is staged; it will be used on next start.", c.Manifest.Version),
		}
	}
	return e.apply(ctx, c.Manifest, d, usable, stage)
}

// alreadyStaged reports whether the manifest's artifact is already staged and
// awaiting activation.
func (e *Engine) alreadyStaged(c *Check) bool {
	if !c.Local.HasPending() || c.Local.PendingVersion != c.Manifest.Version ||
		!integrity.Equal(c.Local.PendingChecksum, c.Manifest.Checksum) {
		return false
	}
	fi, err := os.Stat(installer.StagedPath(e.target))
	return err == nil && !fi.IsDir()
}

// apply confirms and performs an install or stage of m.
func (e *Engine) apply(ctx context.Context, m *manifest.Manifest, d Decision, usable, stage bool) *Result {
	res := &Result{Decision: d, Version: m.Version, CanSkip: usable}

	e.publish(ctx, &events.UpdateAvailable{
		BaseEvent: events.NewBaseEvent(events.EventUpdateAvailable, events.SubjectManifest),
		Version:   m.Version,
		SizeBytes: m.SizeBytes,
		Reason:    string(d.Reason),
		Mandatory: d.Mandatory,
	})

	ok, err := e.confirm(ctx, m, d)
	if err != nil {
		res.Err = err
		res.Message = "Could not confirm the download."
		return res
	}
	if !ok {
		e.publish(ctx, &events.UpdateDeclined{
			BaseEvent: events.NewBaseEvent(events.EventUpdateDeclined, events.SubjectManifest),
			Version:   m.Version,
		})
		if !usable {
			res.Err = ErrDeclined
			res.Message = "The catalog is required before continuing."
			return res
		}
		res.Message = fmt.Sprintf("Skipped catalog %s.", m.Version)
		return res
	}

	if stage {
		if _, err := e.installer.Stage(ctx, m, e.target); err != nil {
			res.Err = err
			res.Message = failureMessage(err)
			return res
		}
		res.Staged = true
		res.Message = fmt.Sprintf("Catalog %s downloaded; it will be used on next start.", m.Version)
		return res
	}

	if _, err := e.installer.Install(ctx, m, e.target); err != nil {
		res.Err = err
		res.Message = failureMessage(err)
		return res
	}
	res.Installed = true
	res.CanSkip = true
	res.Message = fmt.Sprintf("Catalog %s installed.", m.Version)
	return res
}

func (e *Engine) confirm(ctx context.Context, m *manifest.Manifest, d Decision) (bool, error) {
	if e.confirmer == nil {
		return true, nil
	}
	if !d.Mandatory && m.SizeBytes < e.confirmThreshold {
		return true, nil
	}
	offer := Offer{
		Version:   m.Version,
		SizeBytes: m.SizeBytes,
		SizeText:  sizeText(m.SizeBytes),
		Reason:    d.Reason,
		Mandatory: d.Mandatory,
	}
	return e.confirmer.ConfirmDownload(ctx, offer)
}

// Recover repairs leftovers of an interrupted run and activates a staged
// artifact if one is pending. It returns the activation result, or nil when
// nothing was activated.
func (e *Engine) Recover(ctx context.Context) (*installer.Result, error) {
	rec, err := e.installer.Recover(ctx, e.target)
	if err != nil {
		return nil, err
	}
	if rec.Changed() {
		e.log.Info("recovered artifact directory", "restored", rec.RestoredBackup,
			"temp_removed", rec.RemovedTemp, "staged_removed", rec.RemovedStaged,
			"pending_completed", rec.CompletedPending)
	}

	res, err := e.installer.ActivatePending(ctx, e.target)
	switch {
	case errors.Is(err, installer.ErrNoPending):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return res, nil
}

// usable reports whether the active artifact exists and validates.
func (e *Engine) usable(ctx context.Context) (bool, error) {
	if !e.artifactPresent() {
		return false, nil
	}
	if err := e.validate(ctx, e.target); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) artifactPresent() bool {
	fi, err := os.Stat(e.target)
	return err == nil && !fi.IsDir()
}

func (e *Engine) finish(r *Result) (*Result, error) {
	if r.Err != nil {
		e.log.Error("update failed", "message", r.Message, "error", r.Err)
	}
	return r, r.Err
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.bus.Publish(context.WithoutCancel(ctx), ev); err != nil {
		e.log.Warn("publish event", "type", ev.EventType(), "error", err)
	}
}

func sizeText(n int64) string {
	if n <= 0 {
		return "unknown size"
	}
	return humanize.Bytes(uint64(n))
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, installer.ErrChecksumMismatch):
		return "The downloaded catalog failed verification. Retry the update."
	case errors.Is(err, installer.ErrCanceled):
		return "The update was canceled."
	case errors.Is(err, installer.ErrDownload):
		return "The catalog download failed. Check your connection and retry."
	case errors.Is(err, installer.ErrIO):
		return "The catalog could not be written to disk."
	}
	return "The catalog update failed."
}
