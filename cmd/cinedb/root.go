package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vmunix/cinedb/internal/app"
	"github.com/vmunix/cinedb/internal/catalog"
	"github.com/vmunix/cinedb/internal/config"
)

var version = "dev"

type rootOptions struct {
	configPath string
	jsonOutput bool
	verbose    bool
	yes        bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "cinedb",
		Short: "Install, update and browse the local catalog",
		Long: `cinedb - local catalog manager

Downloads the catalog published by the origin, keeps it up to date,
and queries it locally.

Run 'cinedbd' to keep the catalog updated in the background and
serve it over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadDotEnv()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: discovered)")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging")
	cmd.PersistentFlags().BoolVarP(&opts.yes, "yes", "y", false, "Accept download prompts")

	cmd.Version = version
	cmd.SetVersionTemplate("cinedb {{.Version}}\n")

	cmd.AddCommand(
		newInitCmd(),
		newCheckCmd(opts),
		newInstallCmd(opts),
		newActivateCmd(opts),
		newStatusCmd(opts),
		newListCmd(opts),
		newSearchCmd(opts),
		newFilterCmd(opts),
		newTopCmd(opts),
		newRecentCmd(opts),
		newDistinctCmd(opts),
		newShowCmd(opts),
		newCategoriesCmd(opts),
		newPackCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		p, err := config.Discover()
		if errors.Is(err, config.ErrNotFound) {
			return nil, fmt.Errorf("%w (run 'cinedb init' to create one)", err)
		}
		if err != nil {
			return nil, err
		}
		path = p
	}
	return config.Load(path)
}

func (o *rootOptions) logLevel() string {
	if o.verbose {
		return "debug"
	}
	return "warn"
}

// openApp builds the full update pipeline. The returned func releases it.
func (o *rootOptions) openApp(cmd *cobra.Command, extra ...app.Option) (*app.App, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, logCloser := app.NewLogger(cmd.ErrOrStderr(), o.logLevel(), cfg.Log)

	opts := append([]app.Option{
		app.WithConfirmer(newPromptConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr(), o.yes)),
	}, extra...)
	a, err := app.New(cmd.Context(), cfg, logger, opts...)
	if err != nil {
		_ = logCloser.Close()
		return nil, nil, err
	}
	return a, func() {
		_ = a.Close()
		_ = logCloser.Close()
	}, nil
}

// openCatalog opens the installed artifact for reading.
func (o *rootOptions) openCatalog(cmd *cobra.Command) (*catalog.Store, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, logCloser := app.NewLogger(cmd.ErrOrStderr(), o.logLevel(), cfg.Log)
	defer func() { _ = logCloser.Close() }()

	store := catalog.New(cfg.ArtifactPath(), logger)
	if err := store.Open(cmd.Context()); err != nil {
		if errors.Is(err, catalog.ErrMissing) {
			return nil, fmt.Errorf("no catalog installed at %s (run 'cinedb install')", cfg.ArtifactPath())
		}
		return nil, err
	}
	return store, nil
}
