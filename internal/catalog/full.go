package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/vmunix/cinedb/internal/content"
)

// FullEntry returns the entry with exactly this title, including its server,
// season and related payloads. When year is non-nil only rows with that year
// match. Among several matches the most recently inserted row wins.
// Returns ErrNotFound when nothing matches.
func (s *Store) FullEntry(ctx context.Context, title string, year *string) (*content.FullEntry, error) {
	var out *content.FullEntry
	err := s.do(ctx, func(db *sql.DB) error {
		id, err := resolveTitle(ctx, db, title, year)
		if err != nil {
			return err
		}
		e, err := loadFull(ctx, db, id)
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

// resolveTitle picks the row id for title/year using only light columns.
func resolveTitle(ctx context.Context, db *sql.DB, title string, year *string) (int64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, year FROM entries WHERE title = ? ORDER BY id DESC`, strings.TrimSpace(title))
	if err != nil {
		return 0, fmt.Errorf("resolve %q: %w", title, err)
	}
	defer func() { _ = rows.Close() }()

	var want string
	if year != nil {
		want = content.NormalizeYear(*year)
	}
	for rows.Next() {
		var (
			id int64
			y  content.FlexValue
		)
		if err := rows.Scan(&id, &y); err != nil {
			return 0, fmt.Errorf("resolve %q: %w", title, err)
		}
		if year == nil || content.NormalizeYear(y.String()) == want {
			return id, nil
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("resolve %q: %w", title, err)
	}
	return 0, fmt.Errorf("entry %q: %w", title, ErrNotFound)
}

func loadFull(ctx context.Context, db *sql.DB, id int64) (*content.FullEntry, error) {
	var (
		desc, servers, seasons, related sql.NullString
	)
	row := db.QueryRowContext(ctx, `SELECT `+fullColumns+` FROM entries WHERE id = ?`, id)
	light, err := scanLight(row, &desc, &servers, &seasons, &related)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("entry %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("load entry %d: %w", id, err)
	}

	e := &content.FullEntry{
		RowID: light.RowID,
		Entry: content.Entry{
			Title:        light.Title,
			SubCategory:  light.SubCategory,
			Country:      light.Country,
			Description:  desc.String,
			PosterURL:    light.PosterURL,
			ThumbnailURL: light.ThumbnailURL,
			Rating:       light.Rating,
			Duration:     light.Duration,
			Year:         light.Year,
			MainCategory: light.MainCategory,
		},
	}
	if err := e.ApplyPayloads(content.Payloads{
		Servers: servers.String,
		Seasons: seasons.String,
		Related: related.String,
	}); err != nil {
		return nil, fmt.Errorf("entry %d: %w", id, err)
	}
	return e, nil
}

// Suggestion is a near-miss title for a lookup that found nothing.
type Suggestion struct {
	Title string  `json:"title"`
	Year  string  `json:"year,omitempty"`
	Score float32 `json:"score"`
}

// suggestThreshold is the minimum Jaro-Winkler similarity for a suggestion.
const suggestThreshold = 0.75

// suggestCandidates bounds how many rows are scored per lookup.
const suggestCandidates = 2000

// Suggest returns up to n titles similar to title, best first.
func (s *Store) Suggest(ctx context.Context, title string, n int) ([]Suggestion, error) {
	title = strings.TrimSpace(title)
	if title == "" || n <= 0 {
		return nil, nil
	}
	var out []Suggestion
	err := s.do(ctx, func(db *sql.DB) error {
		// Narrow by the first word so scoring stays bounded on large artifacts.
		prefix := title
		if i := strings.IndexByte(prefix, ' '); i > 0 {
			prefix = prefix[:i]
		}
		rows, err := db.QueryContext(ctx,
			`SELECT DISTINCT title, year FROM entries WHERE title LIKE ? ESCAPE '\' LIMIT ?`,
			"%"+escapeLike(prefix)+"%", suggestCandidates)
		if err != nil {
			return fmt.Errorf("suggest: %w", err)
		}
		defer func() { _ = rows.Close() }()

		want := strings.ToLower(title)
		for rows.Next() {
			var (
				t string
				y content.FlexValue
			)
			if err := rows.Scan(&t, &y); err != nil {
				return fmt.Errorf("suggest: %w", err)
			}
			score, err := edlib.StringsSimilarity(want, strings.ToLower(t), edlib.JaroWinkler)
			if err != nil || score < suggestThreshold {
				continue
			}
			out = append(out, Suggestion{Title: t, Year: content.NormalizeYear(y.String()), Score: score})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}
