// Package server runs the daemon components: event handlers, the periodic
// update check and the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vmunix/cinedb/internal/events"
	"github.com/vmunix/cinedb/internal/handlers"
	"github.com/vmunix/cinedb/internal/update"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	defaultEventRetention  = 30 * 24 * time.Hour
)

// Config for the daemon.
type Config struct {
	Addr string
	// Listener, if set, is served instead of listening on Addr.
	Listener        net.Listener
	CheckInterval   time.Duration
	AutoInstall     bool
	ShutdownTimeout time.Duration
	EventRetention  time.Duration
}

// Updater is the part of the update engine the check loop drives.
type Updater interface {
	Check(ctx context.Context) (*update.Check, error)
	CheckAndOffer(ctx context.Context, force bool) <-chan *update.Result
}

// Deps are the components the runner manages. Any of them may be nil to
// disable the matching component; reloading needs both Catalog and Bus.
type Deps struct {
	Catalog  handlers.Reloader
	Bus      *events.Bus
	Updater  Updater
	EventLog *events.EventLog
	Handler  http.Handler
}

// Runner manages the daemon components.
type Runner struct {
	config Config
	deps   Deps
	logger *slog.Logger
}

// NewRunner creates a new runner.
func NewRunner(cfg Config, deps Deps, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.EventRetention <= 0 {
		cfg.EventRetention = defaultEventRetention
	}
	return &Runner{
		config: cfg,
		deps:   deps,
		logger: logger,
	}
}

// Run starts all components.
// It blocks until the context is canceled or a component fails.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if r.deps.Catalog != nil && r.deps.Bus != nil {
		reload := handlers.NewReloadHandler(r.deps.Bus, r.deps.Catalog, r.logger.With("component", "reloader"))
		g.Go(func() error {
			return r.runHandler(ctx, reload)
		})
	}

	if r.deps.Updater != nil && r.config.CheckInterval > 0 {
		g.Go(func() error {
			r.checkLoop(ctx)
			return nil
		})
	}

	if r.deps.Handler != nil {
		srv := &http.Server{
			Addr:              r.config.Addr,
			Handler:           logRequests(r.deps.Handler, r.logger.With("component", "http")),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			return r.serve(srv)
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (r *Runner) runHandler(ctx context.Context, h handlers.Handler) error {
	r.logger.Debug("handler started", "handler", h.Name())
	if err := h.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("handler %s: %w", h.Name(), err)
	}
	return nil
}

func (r *Runner) serve(srv *http.Server) error {
	var err error
	if r.config.Listener != nil {
		r.logger.Info("http server listening", "addr", r.config.Listener.Addr().String())
		err = srv.Serve(r.config.Listener)
	} else {
		r.logger.Info("http server listening", "addr", srv.Addr)
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// checkLoop checks the manifest every CheckInterval. With AutoInstall the
// engine installs or stages updates; otherwise availability is only logged.
func (r *Runner) checkLoop(ctx context.Context) {
	log := r.logger.With("component", "checker")
	ticker := time.NewTicker(r.config.CheckInterval)
	defer ticker.Stop()

	log.Info("update checker started", "interval", r.config.CheckInterval, "auto_install", r.config.AutoInstall)

	for {
		select {
		case <-ctx.Done():
			log.Info("update checker stopped")
			return
		case <-ticker.C:
			r.checkOnce(ctx, log)
			r.pruneEvents(log)
		}
	}
}

func (r *Runner) checkOnce(ctx context.Context, log *slog.Logger) {
	if !r.config.AutoInstall {
		c, err := r.deps.Updater.Check(ctx)
		if err != nil {
			log.Warn("update check failed", "error", err)
			return
		}
		if c.Decision.Available() {
			log.Info("update available", "version", c.Manifest.Version, "reason", c.Decision.Reason)
		}
		return
	}

	var res *update.Result
	select {
	case res = <-r.deps.Updater.CheckAndOffer(ctx, false):
	case <-ctx.Done():
		return
	}
	switch {
	case res.Err != nil:
		log.Warn("update failed", "message", res.Message, "error", res.Err)
	case res.Installed, res.Staged:
		log.Info("update applied", "version", res.Version, "staged", res.Staged)
	default:
		log.Debug("no update applied", "version", res.Version, "message", res.Message)
	}
}

func (r *Runner) pruneEvents(log *slog.Logger) {
	if r.deps.EventLog == nil {
		return
	}
	n, err := r.deps.EventLog.Prune(r.config.EventRetention)
	if err != nil {
		log.Warn("prune events", "error", err)
		return
	}
	if n > 0 {
		log.Debug("pruned events", "count", n)
	}
}
