// Package catalogtest builds catalog artifacts for tests.
package catalogtest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vmunix/cinedb/internal/catalog"
	"github.com/vmunix/cinedb/internal/content"
)

// Movies returns n movie entries titled "Movie 000".."Movie n-1".
func Movies(n int) []content.Entry {
	out := make([]content.Entry, n)
	for i := range out {
		out[i] = content.Entry{
			Title:        fmt.Sprintf("Movie %03d", i),
			MainCategory: content.CategoryMovie,
			SubCategory:  "Action",
			Country:      "US",
			Rating:       content.Number(float64(i%10) + 0.5),
			Year:         content.Number(float64(2000 + i%5)),
			PosterURL:    fmt.Sprintf("https://img.example/%d.jpg", i),
			Servers:      []content.Server{{Name: "main", URL: fmt.Sprintf("https://cdn.example/%d.m3u8", i)}},
		}
	}
	return out
}

// Build writes entries to a new artifact in a temp dir and returns its path.
func Build(t testing.TB, entries []content.Entry, version string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	BuildAt(t, path, entries, version)
	return path
}

// BuildAt writes entries to path.
func BuildAt(t testing.TB, path string, entries []content.Entry, version string) {
	t.Helper()
	err := catalog.Build(context.Background(), path, entries, catalog.BuildMeta{
		Version:     version,
		SourceURL:   "https://origin.example/catalog.json",
		LastUpdated: time.Date(2025, 8, 16, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

// Open builds an artifact from entries and returns a ready store over it.
func Open(t testing.TB, entries []content.Entry) *catalog.Store {
	t.Helper()
	s := catalog.New(Build(t, entries, "1.0"), nil)
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}
