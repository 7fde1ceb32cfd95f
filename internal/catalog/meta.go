package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/vmunix/cinedb/internal/content"
)

// DistinctValues returns the distinct non-placeholder values of field.
// NULL, empty, "null" and "0" are dropped (case-sensitively). Genres and
// countries sort ascending; years sort newest first.
func (s *Store) DistinctValues(ctx context.Context, field Field) ([]string, error) {
	col, ok := field.column()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	var out []string
	err := s.do(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT DISTINCT `+col+` FROM entries
			WHERE `+col+` IS NOT NULL AND `+col+` NOT IN ('', 'null', '0')`)
		if err != nil {
			return fmt.Errorf("distinct %s: %w", field, err)
		}
		defer func() { _ = rows.Close() }()

		seen := make(map[string]bool)
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return fmt.Errorf("distinct %s: %w", field, err)
			}
			if field == FieldYear {
				v = content.NormalizeYear(v)
			}
			if v == "" || v == "null" || v == "0" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	if field == FieldYear {
		sortYearsDesc(out)
	} else {
		sort.Strings(out)
	}
	return out, nil
}

func sortYearsDesc(years []string) {
	sort.SliceStable(years, func(i, j int) bool {
		a, aerr := strconv.ParseFloat(years[i], 64)
		b, berr := strconv.ParseFloat(years[j], 64)
		switch {
		case aerr == nil && berr == nil:
			return a > b
		case aerr == nil:
			return true
		case berr == nil:
			return false
		}
		return years[i] > years[j]
	})
}

// Category is one row of the categories table.
type Category struct {
	Name          string   `json:"mainCategory"`
	SubCategories []string `json:"subCategories"`
}

// Categories returns the category index. An artifact without a categories
// table yields an empty list.
func (s *Store) Categories(ctx context.Context) ([]Category, error) {
	if !s.hasTable(TableCategories) {
		if _, err := s.acquire(); err != nil {
			return nil, err
		}
		return []Category{}, nil
	}
	out := []Category{}
	err := s.do(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT main_category, sub_categories FROM categories ORDER BY main_category`)
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var (
				c   Category
				raw sql.NullString
			)
			if err := rows.Scan(&c.Name, &raw); err != nil {
				return fmt.Errorf("scan category: %w", err)
			}
			if raw.Valid && raw.String != "" && raw.String != "null" {
				if err := json.Unmarshal([]byte(raw.String), &c.SubCategories); err != nil {
					return fmt.Errorf("category %q: %w", c.Name, content.ErrPayload)
				}
			}
			if c.SubCategories == nil {
				c.SubCategories = []string{}
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Metadata is the single row of the metadata table.
type Metadata struct {
	LastUpdated  string `json:"lastUpdated,omitempty"`
	SourceURL    string `json:"sourceUrl,omitempty"`
	TotalEntries int    `json:"totalEntries"`
	Version      string `json:"version,omitempty"`
}

// Metadata returns the artifact metadata row, or ErrNotFound if the artifact
// has none.
func (s *Store) Metadata(ctx context.Context) (*Metadata, error) {
	if !s.hasTable(TableMetadata) {
		if _, err := s.acquire(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("metadata: %w", ErrNotFound)
	}
	var out *Metadata
	err := s.do(ctx, func(db *sql.DB) error {
		var (
			m              Metadata
			last, src, ver sql.NullString
			total          sql.NullInt64
		)
		err := db.QueryRowContext(ctx,
			`SELECT last_updated, source_url, total_entries, version FROM metadata LIMIT 1`,
		).Scan(&last, &src, &total, &ver)
		if err == sql.ErrNoRows {
			return fmt.Errorf("metadata: %w", ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("metadata: %w", err)
		}
		m.LastUpdated = last.String
		m.SourceURL = src.String
		m.TotalEntries = int(total.Int64)
		m.Version = ver.String
		out = &m
		return nil
	})
	return out, err
}
