package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vmunix/cinedb/internal/config"
)

func newInitCmd() *cobra.Command {
	var (
		force       bool
		manifestURL string
		dataDir     string
	)
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write an example config file",
		Long: `Write an example config file.

Without a path the file is written to ./config.toml. With --manifest-url a
complete config with every default spelled out is written instead of the
commented example.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.toml"
			if len(args) > 0 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}

			w := cmd.OutOrStdout()
			if manifestURL == "" {
				if err := config.WriteDefault(path); err != nil {
					return fmt.Errorf("write config: %w", err)
				}
				fmt.Fprintf(w, "Wrote %s\n", path)
				fmt.Fprintln(w, "Set manifest.url (or CINEDB_MANIFEST_URL), then run 'cinedb install'.")
				return nil
			}

			cfg := config.Default()
			cfg.Manifest.URL = manifestURL
			cfg.Storage.DataDir = dataDir
			if cfg.Storage.DataDir == "" {
				cfg.Storage.DataDir = config.DefaultDataDir()
			}
			if errs := cfg.Validate(); len(errs) > 0 {
				return &config.ConfigError{Path: path, Errors: errs}
			}
			if err := cfg.Write(path); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(w, "Wrote %s\n", path)
			fmt.Fprintln(w, "Run 'cinedb install' to download the catalog.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().StringVar(&manifestURL, "manifest-url", "", "Origin manifest URL to write into the config")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Catalog directory (default $XDG_DATA_HOME/cinedb)")
	return cmd
}
