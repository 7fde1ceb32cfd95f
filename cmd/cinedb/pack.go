package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/vmunix/cinedb/internal/catalog"
	"github.com/vmunix/cinedb/internal/content"
	"github.com/vmunix/cinedb/internal/integrity"
)

// packManifest is the flat manifest dialect published next to an artifact.
type packManifest struct {
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	DBURL       string `json:"dbUrl"`
	SizeBytes   int64  `json:"sizeBytes"`
	SHA256      string `json:"sha256"`
	Zipped      bool   `json:"zipped"`
}

type packOptions struct {
	version   string
	sourceURL string
	baseURL   string
	gzip      bool
}

func newPackCmd() *cobra.Command {
	var po packOptions
	cmd := &cobra.Command{
		Use:   "pack <entries.json> <catalog.db>",
		Short: "Build a catalog artifact and its manifest from raw entries",
		Long: `Build a catalog artifact from a JSON array of entries and print the
manifest that publishes it.

Examples:
  cinedb pack entries.json out/catalog.db --version 2.0 --base-url https://cdn.example/
  cinedb pack entries.json out/catalog.db --version 2.0 --gzip`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := pack(cmd, args[0], args[1], po)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), m)
		},
	}
	cmd.Flags().StringVar(&po.version, "version", "", "Catalog version (required)")
	cmd.Flags().StringVar(&po.sourceURL, "source-url", "", "Source recorded in the metadata table")
	cmd.Flags().StringVar(&po.baseURL, "base-url", "", "URL prefix the artifact will be served from")
	cmd.Flags().BoolVar(&po.gzip, "gzip", false, "Also write a gzip transport next to the artifact")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

func pack(cmd *cobra.Command, src, dst string, po packOptions) (*packManifest, error) {
	ctx := cmd.Context()
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, err
	}
	entries, err := content.DecodeEntries(data)
	if err != nil {
		return nil, err
	}

	err = catalog.Build(ctx, dst, entries, catalog.BuildMeta{
		Version:     po.version,
		SourceURL:   po.sourceURL,
		LastUpdated: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", dst, err)
	}

	fs := afero.NewOsFs()
	sum, err := integrity.ChecksumFile(ctx, fs, dst)
	if err != nil {
		return nil, err
	}

	transport := dst
	if po.gzip {
		transport = dst + ".gz"
		if err := gzipFile(dst, transport); err != nil {
			return nil, fmt.Errorf("compress: %w", err)
		}
	}
	fi, err := fs.Stat(transport)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Packed %d entries into %s\n", len(entries), transport)
	return &packManifest{
		Version:   po.version,
		DBURL:     joinURL(po.baseURL, filepath.Base(transport)),
		SizeBytes: fi.Size(),
		SHA256:    sum,
		Zipped:    po.gzip,
	}, nil
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	zw, err := gzip.NewWriterLevel(out, gzip.BestCompression)
	if err != nil {
		_ = out.Close()
		return err
	}
	zw.Name = filepath.Base(src)
	if _, err := io.Copy(zw, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func joinURL(base, name string) string {
	if base == "" {
		return name
	}
	return strings.TrimSuffix(base, "/") + "/" + name
}
