package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/vmunix/cinedb/internal/content"
)

const orderByTitle = ` ORDER BY title COLLATE NOCASE ASC, id ASC`

// List returns a page of all entries ordered by title. The total comes from
// the row count cached when the artifact was opened.
func (s *Store) List(ctx context.Context, page, size int) (*Page, error) {
	offset, limit, err := pageBounds(page, size)
	if err != nil {
		return nil, err
	}
	var out *Page
	err = s.do(ctx, func(db *sql.DB) error {
		s.mu.RLock()
		total := s.info.RowCount
		s.mu.RUnlock()

		entries, err := queryLight(ctx, db,
			`SELECT `+lightColumns+` FROM entries`+orderByTitle+` LIMIT ? OFFSET ?`, limit, offset)
		if err != nil {
			return fmt.Errorf("list entries: %w", err)
		}
		out = newPage(entries, page, limit, offset, total)
		return nil
	})
	return out, err
}

// ListByCategory returns a page of entries whose main category equals category.
func (s *Store) ListByCategory(ctx context.Context, category string, page, size int) (*Page, error) {
	return s.paged(ctx, "list by category", `main_category = ?`, []any{category}, page, size)
}

// Search returns entries whose title contains substr, case-insensitively.
func (s *Store) Search(ctx context.Context, substr string, page, size int) (*Page, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(substr)) + "%"
	return s.paged(ctx, "search", `title LIKE ? ESCAPE '\'`, []any{pattern}, page, size)
}

// Filter returns entries matching every non-nil field of f.
// Filter(ctx, Filter{}, p, n) returns the same rows and order as List(ctx, p, n).
func (s *Store) Filter(ctx context.Context, f Filter, page, size int) (*Page, error) {
	var year *string
	if f.Year != nil {
		y := content.NormalizeYear(*f.Year)
		year = &y
	}
	where := `(? IS NULL OR sub_category = ?)
		AND (? IS NULL OR country = ?)
		AND (? IS NULL OR ` + yearExpr + ` = ?)`
	args := []any{
		optional(f.Genre), optional(f.Genre),
		optional(f.Country), optional(f.Country),
		optional(year), optional(year),
	}
	return s.paged(ctx, "filter", where, args, page, size)
}

// paged runs the count and page queries in parallel.
func (s *Store) paged(ctx context.Context, op, where string, args []any, page, size int) (*Page, error) {
	offset, limit, err := pageBounds(page, size)
	if err != nil {
		return nil, err
	}
	var out *Page
	err = s.do(ctx, func(db *sql.DB) error {
		var (
			total   int
			entries []content.LightEntry
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return db.QueryRowContext(gctx, `SELECT COUNT(*) FROM entries WHERE `+where, args...).Scan(&total)
		})
		g.Go(func() error {
			pageArgs := append(append([]any{}, args...), limit, offset)
			var err error
			entries, err = queryLight(gctx, db,
				`SELECT `+lightColumns+` FROM entries WHERE `+where+orderByTitle+` LIMIT ? OFFSET ?`, pageArgs...)
			return err
		})
		if err := g.Wait(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		out = newPage(entries, page, limit, offset, total)
		return nil
	})
	return out, err
}

// TopRated returns up to n entries ordered by numeric rating, highest first.
// Non-numeric ratings sort as zero.
func (s *Store) TopRated(ctx context.Context, n int) ([]content.LightEntry, error) {
	return s.ranked(ctx, "top rated", ` ORDER BY CAST(rating AS REAL) DESC, id DESC`, n)
}

// RecentlyAdded returns up to n entries, most recently inserted first.
func (s *Store) RecentlyAdded(ctx context.Context, n int) ([]content.LightEntry, error) {
	return s.ranked(ctx, "recently added", ` ORDER BY id DESC`, n)
}

func (s *Store) ranked(ctx context.Context, op, order string, n int) ([]content.LightEntry, error) {
	if n <= 0 {
		return nil, ErrInvalidPage
	}
	if n > MaxPageSize {
		n = MaxPageSize
	}
	var out []content.LightEntry
	err := s.do(ctx, func(db *sql.DB) error {
		entries, err := queryLight(ctx, db, `SELECT `+lightColumns+` FROM entries`+order+` LIMIT ?`, n)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		out = entries
		return nil
	})
	return out, err
}

func queryLight(ctx context.Context, db *sql.DB, query string, args ...any) ([]content.LightEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []content.LightEntry
	for rows.Next() {
		e, err := scanLight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLight(row scanner, extra ...any) (content.LightEntry, error) {
	var (
		e                                       content.LightEntry
		sub, country, poster, thumb, dur, mainC sql.NullString
	)
	dest := []any{&e.RowID, &e.Title, &sub, &country, &poster, &thumb, &e.Rating, &dur, &e.Year, &mainC}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return e, err
	}
	e.SubCategory = sub.String
	e.Country = country.String
	e.PosterURL = poster.String
	e.ThumbnailURL = thumb.String
	e.Duration = dur.String
	e.MainCategory = mainC.String
	return e, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
