// Package app wires the configured components together for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vmunix/cinedb/internal/catalog"
	"github.com/vmunix/cinedb/internal/config"
	"github.com/vmunix/cinedb/internal/events"
	"github.com/vmunix/cinedb/internal/installer"
	"github.com/vmunix/cinedb/internal/manifest"
	"github.com/vmunix/cinedb/internal/state"
	"github.com/vmunix/cinedb/internal/update"
)

// App holds the long-lived components built from a Config.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	States    *state.Store
	EventLog  *events.EventLog
	Bus       *events.Bus
	Manifest  *manifest.Client
	Installer *installer.Installer
	Engine    *update.Engine
	Catalog   *catalog.Store
}

type options struct {
	confirmer update.Confirmer
	progress  installer.ProgressFunc
}

// Option configures New.
type Option func(*options)

// WithConfirmer asks c before large or mandatory downloads.
func WithConfirmer(c update.Confirmer) Option {
	return func(o *options) { o.confirmer = c }
}

// WithProgress reports download progress to fn.
func WithProgress(fn installer.ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// New opens the state database and builds the update pipeline and catalog
// store. The catalog is not opened; call OpenCatalog once an artifact exists.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	states, err := state.Open(ctx, cfg.StatePath())
	if err != nil {
		return nil, err
	}

	eventLog := events.NewEventLog(states.DB())
	bus := events.NewBus(eventLog, logger.With("component", "bus"))

	mc := manifest.NewClient(cfg.Manifest.URL,
		manifest.WithUserAgent(cfg.Manifest.UserAgent),
		manifest.WithTimeouts(cfg.Manifest.ConnectTimeout, cfg.Manifest.ReadTimeout),
		manifest.WithLogger(logger.With("component", "manifest")),
	)

	instOpts := []installer.Option{
		installer.WithTimeouts(cfg.Download.ConnectTimeout, cfg.Download.ReadTimeout),
		installer.WithUserAgent(cfg.Manifest.UserAgent),
		installer.WithStrictSize(cfg.Update.StrictSize),
		installer.WithEventBus(bus),
		installer.WithLogger(logger),
	}
	if o.progress != nil {
		instOpts = append(instOpts, installer.WithProgress(o.progress))
	}
	inst := installer.New(states, instOpts...)

	engineOpts := []update.Option{
		update.WithTwoPhase(cfg.Update.TwoPhase),
		update.WithRetry(uint(max(cfg.Update.RetryAttempts, 1)), cfg.Update.RetryDelay),
		update.WithEventBus(bus),
		update.WithLogger(logger),
	}
	if o.confirmer != nil {
		engineOpts = append(engineOpts, update.WithConfirmer(o.confirmer, cfg.ConfirmThresholdBytes()))
	}
	engine := update.NewEngine(mc, inst, states, cfg.ArtifactPath(), engineOpts...)

	return &App{
		Config:    cfg,
		Logger:    logger,
		States:    states,
		EventLog:  eventLog,
		Bus:       bus,
		Manifest:  mc,
		Installer: inst,
		Engine:    engine,
		Catalog:   catalog.New(cfg.ArtifactPath(), logger),
	}, nil
}

// OpenCatalog validates the active artifact and starts serving reads.
func (a *App) OpenCatalog(ctx context.Context) error {
	if err := a.Catalog.Open(ctx); err != nil {
		return fmt.Errorf("open catalog %s: %w", a.Catalog.Path(), err)
	}
	return nil
}

// Close releases the catalog, the bus and the state database.
func (a *App) Close() error {
	return errors.Join(
		a.Catalog.Close(),
		a.Bus.Close(),
		a.States.Close(),
	)
}

// NewLogger builds a text logger at level writing to w and, when cfg.File is
// set, to a rotated log file. The returned closer flushes the file.
func NewLogger(w io.Writer, level string, cfg config.LogConfig) (*slog.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		w = io.MultiWriter(w, lj)
		closer = lj
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLogLevel(level),
	}))
	return logger, closer
}

// ParseLogLevel maps a config level name to a slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
