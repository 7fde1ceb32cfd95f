package catalog

import "github.com/vmunix/cinedb/internal/content"

// Filter narrows a listing. A nil field matches every value.
type Filter struct {
	Genre   *string // sub_category
	Country *string
	Year    *string
}

// Field names a column for DistinctValues.
type Field string

const (
	FieldGenre   Field = "genre"
	FieldCountry Field = "country"
	FieldYear    Field = "year"
)

// yearExpr renders the year column in the form content.NormalizeYear
// produces: whole numbers, stored as INTEGER, REAL or numeric text, lose their
// fraction ("2019.0" -> "2019"); anything else is trimmed text.
const yearExpr = `(CASE
	WHEN (typeof(year) IN ('integer', 'real')
		OR (TRIM(year) <> '' AND TRIM(year) NOT GLOB '*[^0-9.eE+-]*'))
		AND CAST(year AS REAL) = CAST(CAST(year AS REAL) AS INTEGER)
	THEN CAST(CAST(CAST(year AS REAL) AS INTEGER) AS TEXT)
	ELSE TRIM(CAST(year AS TEXT))
END)`

// column maps a field to the text expression it is compared and listed by.
func (f Field) column() (string, bool) {
	switch f {
	case FieldGenre:
		return "CAST(sub_category AS TEXT)", true
	case FieldCountry:
		return "CAST(country AS TEXT)", true
	case FieldYear:
		return yearExpr, true
	}
	return "", false
}

// ParseField returns the Field for name, or ErrInvalidField.
func ParseField(name string) (Field, error) {
	f := Field(name)
	if _, ok := f.column(); !ok {
		return "", ErrInvalidField
	}
	return f, nil
}

// Page is one page of light entries.
type Page struct {
	Entries    []content.LightEntry `json:"entries"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"pageSize"`
	TotalCount int                  `json:"totalCount"`
	HasMore    bool                 `json:"hasMore"`
}

// MaxPageSize caps a single page.
const MaxPageSize = 500

func pageBounds(page, size int) (offset, limit int, err error) {
	if page < 0 || size <= 0 {
		return 0, 0, ErrInvalidPage
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page * size, size, nil
}

func newPage(entries []content.LightEntry, page, size, offset, total int) *Page {
	if entries == nil {
		entries = []content.LightEntry{}
	}
	return &Page{
		Entries:    entries,
		Page:       page,
		PageSize:   size,
		TotalCount: total,
		HasMore:    offset+size < total,
	}
}

// optional turns a nil filter field into a NULL argument, which the
// `? IS NULL OR ...` clauses treat as a wildcard. A pointer to "" is not a
// wildcard; it matches empty values only.
func optional(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
