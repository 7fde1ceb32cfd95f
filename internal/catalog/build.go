package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vmunix/cinedb/internal/content"
)

// BuildMeta is written to the metadata table of a built artifact.
type BuildMeta struct {
	Version     string
	SourceURL   string
	LastUpdated time.Time
}

// Build writes a new artifact at path containing entries, replacing any file
// already there. Entries are inserted in slice order, so the last element is
// the most recently added.
func Build(ctx context.Context, path string, entries []content.Entry, meta BuildMeta) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing artifact: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin build: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entries
		(title, description, main_category, sub_category, country, poster, thumbnail,
		 rating, duration, year, servers_json, seasons_json, related_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	subs := make(map[string]map[string]bool)
	for i := range entries {
		e := entries[i]
		e.Normalize()
		p, err := e.EncodePayloads()
		if err != nil {
			return fmt.Errorf("entry %q: %w", e.Title, err)
		}
		if _, err := stmt.ExecContext(ctx,
			e.Title, nullable(e.Description), nullable(e.MainCategory), nullable(e.SubCategory),
			nullable(e.Country), nullable(e.PosterURL), nullable(e.ThumbnailURL),
			e.Rating, nullable(e.Duration), e.Year,
			nullable(p.Servers), nullable(p.Seasons), nullable(p.Related),
		); err != nil {
			return fmt.Errorf("insert %q: %w", e.Title, err)
		}
		if e.MainCategory != "" {
			if subs[e.MainCategory] == nil {
				subs[e.MainCategory] = make(map[string]bool)
			}
			if e.SubCategory != "" {
				subs[e.MainCategory][e.SubCategory] = true
			}
		}
	}

	for name, set := range subs {
		list := make([]string, 0, len(set))
		for s := range set {
			list = append(list, s)
		}
		sort.Strings(list)
		raw, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("encode categories: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO categories (main_category, sub_categories) VALUES (?, ?)`, name, string(raw)); err != nil {
			return fmt.Errorf("insert category %q: %w", name, err)
		}
	}

	updated := meta.LastUpdated
	if updated.IsZero() {
		updated = time.Now()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO metadata (last_updated, source_url, total_entries, version) VALUES (?, ?, ?, ?)`,
		updated.UTC().Format(time.RFC3339), meta.SourceURL, len(entries), meta.Version); err != nil {
		return fmt.Errorf("insert metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit build: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
