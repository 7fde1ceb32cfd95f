package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	v1 "github.com/vmunix/cinedb/internal/api/v1"
	"github.com/vmunix/cinedb/internal/app"
	"github.com/vmunix/cinedb/internal/config"
	"github.com/vmunix/cinedb/internal/server"
)

func runServer(configPath string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if configPath == "" {
		p, err := config.Discover()
		if err != nil {
			return err
		}
		configPath = p
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, logCloser := app.NewLogger(os.Stdout, cfg.Server.LogLevel, cfg.Log)
	defer func() { _ = logCloser.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// Without a usable catalog there is nothing to serve.
	res, err := a.Engine.EnsureInstalled(ctx)
	if err != nil {
		if !res.CanSkip {
			return fmt.Errorf("%s: %w", res.Message, err)
		}
		logger.Warn("continuing with installed catalog", "message", res.Message, "error", err)
	} else {
		logger.Info("catalog check complete", "message", res.Message, "version", res.Version)
	}

	if err := a.OpenCatalog(ctx); err != nil {
		logger.Error("catalog not available", "error", err)
	}

	api, err := v1.New(v1.ServerDeps{
		Catalog:  a.Catalog,
		Updater:  a.Engine,
		States:   a.States,
		EventLog: a.EventLog,
	})
	if err != nil {
		return err
	}
	router := mux.NewRouter()
	api.RegisterRoutes(router)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	logger.Info("server starting",
		"addr", addr,
		"catalog", cfg.ArtifactPath(),
		"manifest", cfg.Manifest.URL,
		"check_interval", cfg.Update.CheckInterval,
		"auto_install", cfg.Update.AutoInstall,
		"two_phase", cfg.Update.TwoPhase,
		"log_level", cfg.Server.LogLevel,
	)

	runner := server.NewRunner(server.Config{
		Addr:          addr,
		CheckInterval: cfg.Update.CheckInterval,
		AutoInstall:   cfg.Update.AutoInstall,
	}, server.Deps{
		Catalog:  a.Catalog,
		Bus:      a.Bus,
		Updater:  a.Engine,
		EventLog: a.EventLog,
		Handler:  router,
	}, logger)

	if err := runner.Run(ctx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
