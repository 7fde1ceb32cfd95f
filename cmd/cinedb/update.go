package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vmunix/cinedb/internal/app"
	"github.com/vmunix/cinedb/internal/installer"
	"github.com/vmunix/cinedb/internal/update"
)

type checkOutput struct {
	Available        bool   `json:"available"`
	Reason           string `json:"reason"`
	Mandatory        bool   `json:"mandatory"`
	Version          string `json:"version"`
	SizeBytes        int64  `json:"size_bytes"`
	InstalledVersion string `json:"installed_version,omitempty"`
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the origin for a newer catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, done, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer done()

			c, err := a.Engine.Check(cmd.Context())
			if err != nil {
				return fmt.Errorf("check failed: %w", err)
			}

			out := checkOutput{
				Available:        c.Decision.Available(),
				Reason:           string(c.Decision.Reason),
				Mandatory:        c.Decision.Mandatory,
				Version:          c.Manifest.Version,
				SizeBytes:        c.Manifest.SizeBytes,
				InstalledVersion: c.Local.InstalledVersion,
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			if !out.Available {
				fmt.Fprintf(w, "Catalog %s is up to date.\n", out.Version)
				return nil
			}
			installed := out.InstalledVersion
			if installed == "" {
				installed = "none"
			}
			fmt.Fprintf(w, "Update available: %s (installed: %s, %s, %s)\n",
				out.Version, installed, describeReason(c.Decision.Reason), sizeLabel(out.SizeBytes))
			fmt.Fprintln(w, "Run 'cinedb install' to download it.")
			return nil
		},
	}
}

type installOutput struct {
	Version   string `json:"version,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Installed bool   `json:"installed"`
	Staged    bool   `json:"staged"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

func newInstallCmd(opts *rootOptions) *cobra.Command {
	var force, resetState bool
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Download and activate the latest catalog",
		Long: `Download, verify and activate the catalog the origin currently publishes.

With update.two_phase set and a usable catalog already installed, the
download is staged and activated by 'cinedb activate' or the next start.

--reset-state discards the recorded install, so the current catalog is
verified against the origin and reinstalled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var extra []app.Option
			if !opts.jsonOutput {
				extra = append(extra, app.WithProgress(newProgressPrinter(cmd.ErrOrStderr())))
			}
			a, done, err := opts.openApp(cmd, extra...)
			if err != nil {
				return err
			}
			defer done()

			if resetState {
				if err := a.States.Reset(cmd.Context()); err != nil {
					return fmt.Errorf("reset update state: %w", err)
				}
				a.Logger.Info("update state reset")
			}
			if _, err := a.Engine.Recover(cmd.Context()); err != nil {
				a.Logger.Warn("recovery incomplete", "error", err)
			}

			res := <-a.Engine.CheckAndOffer(cmd.Context(), force)
			return reportResult(cmd, opts, res)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Reinstall even when up to date")
	cmd.Flags().BoolVar(&resetState, "reset-state", false,
		"Forget the recorded installed and pending versions before checking")
	return cmd
}

func newActivateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate",
		Short: "Activate a staged catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, done, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer done()

			res, err := a.Engine.Recover(cmd.Context())
			if err != nil {
				return fmt.Errorf("activate: %w", err)
			}
			out := installOutput{Message: "No staged catalog to activate."}
			if res != nil {
				out = installOutput{
					Version:   res.Version,
					Installed: true,
					Message:   fmt.Sprintf("Activated catalog %s.", res.Version),
				}
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Message)
			return nil
		},
	}
}

func reportResult(cmd *cobra.Command, opts *rootOptions, res *update.Result) error {
	out := installOutput{
		Version:   res.Version,
		Reason:    string(res.Decision.Reason),
		Installed: res.Installed,
		Staged:    res.Staged,
		Message:   res.Message,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	if opts.jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	}
	return res.Err
}

// newProgressPrinter renders download progress on one terminal line.
func newProgressPrinter(w io.Writer) installer.ProgressFunc {
	var (
		mu   sync.Mutex
		last = -1
	)
	return func(done, total int64) {
		mu.Lock()
		defer mu.Unlock()
		if total <= 0 {
			fmt.Fprintf(w, "\rDownloading: %s", humanize.Bytes(uint64(done)))
			return
		}
		pct := int(done * 100 / total)
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(w, "\rDownloading: %3d%% (%s / %s)", pct, humanize.Bytes(uint64(done)), humanize.Bytes(uint64(total)))
		if done >= total {
			fmt.Fprintln(w)
		}
	}
}

func sizeLabel(n int64) string {
	if n <= 0 {
		return "unknown size"
	}
	return humanize.Bytes(uint64(n))
}
