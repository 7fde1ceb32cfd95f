package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vmunix/cinedb/internal/catalog"
)

type statusOutput struct {
	Path             string    `json:"path"`
	State            string    `json:"state"`
	Error            string    `json:"error,omitempty"`
	Version          string    `json:"version,omitempty"`
	Entries          int       `json:"entries"`
	SizeBytes        int64     `json:"size_bytes"`
	LastUpdated      string    `json:"last_updated,omitempty"`
	InstalledVersion string    `json:"installed_version,omitempty"`
	InstalledAt      time.Time `json:"installed_at,omitzero"`
	LastCheck        time.Time `json:"last_check,omitzero"`
	PendingVersion   string    `json:"pending_version,omitempty"`
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the installed catalog and update state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, done, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer done()
			ctx := cmd.Context()

			st, err := a.States.Load(ctx)
			if err != nil {
				return err
			}
			out := statusOutput{
				Path:             a.Config.ArtifactPath(),
				InstalledVersion: st.InstalledVersion,
				InstalledAt:      st.InstalledAt,
				LastCheck:        st.LastCheck,
				PendingVersion:   st.PendingVersion,
			}

			if err := a.Catalog.Open(ctx); err != nil {
				out.Error = err.Error()
			}
			out.State = string(a.Catalog.State())
			if info, err := a.Catalog.Info(); err == nil {
				out.Version = info.Version
				out.Entries = info.RowCount
				out.SizeBytes = info.SizeBytes
			}
			if meta, err := a.Catalog.Metadata(ctx); err == nil {
				out.LastUpdated = meta.LastUpdated
			} else if !errors.Is(err, catalog.ErrNotFound) && out.Error == "" {
				out.Error = err.Error()
			}

			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), out)
			}
			printStatus(cmd, out)
			return nil
		},
	}
}

func printStatus(cmd *cobra.Command, s statusOutput) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Catalog:    %s (%s)\n", s.Path, s.State)
	if s.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", s.Error)
	}
	if s.State == string(catalog.StateReady) {
		fmt.Fprintf(w, "Version:    %s\n", orDash(s.Version))
		fmt.Fprintf(w, "Entries:    %d\n", s.Entries)
		fmt.Fprintf(w, "Size:       %s\n", humanize.Bytes(uint64(s.SizeBytes)))
		if s.LastUpdated != "" {
			fmt.Fprintf(w, "Published:  %s\n", s.LastUpdated)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Installed:  %s\n", orDash(s.InstalledVersion))
	if !s.InstalledAt.IsZero() {
		fmt.Fprintf(w, "            %s\n", humanize.Time(s.InstalledAt))
	}
	if !s.LastCheck.IsZero() {
		fmt.Fprintf(w, "Checked:    %s\n", humanize.Time(s.LastCheck))
	}
	if s.PendingVersion != "" {
		fmt.Fprintf(w, "Staged:     %s (run 'cinedb activate')\n", s.PendingVersion)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
