package content

import (
	"encoding/json"
	"fmt"
)

// LightEntry is the scalar display projection used by every listing query.
// It never carries server, season or related payloads.
type LightEntry struct {
	RowID        int64     `json:"-"`
	Title        string    `json:"title"`
	SubCategory  string    `json:"subCategory,omitempty"`
	Country      string    `json:"country,omitempty"`
	PosterURL    string    `json:"poster,omitempty"`
	ThumbnailURL string    `json:"thumbnail,omitempty"`
	Rating       FlexValue `json:"rating"`
	Duration     string    `json:"duration,omitempty"`
	Year         FlexValue `json:"year"`
	MainCategory string    `json:"mainCategory,omitempty"`
}

// Key returns the lookup key for the entry.
func (e *LightEntry) Key() Key { return NewKey(e.Title, e.Year.String()) }

// Image returns the display image, preferring the poster.
func (e *LightEntry) Image() string {
	if e.PosterURL != "" {
		return e.PosterURL
	}
	return e.ThumbnailURL
}

// FullEntry is a single entry including its heavy nested payloads.
type FullEntry struct {
	Entry
	RowID int64 `json:"-"`
}

// Payloads holds the raw embedded JSON columns of a catalog row.
type Payloads struct {
	Servers string
	Seasons string
	Related string
}

// ApplyPayloads decodes the embedded JSON columns into the entry.
// Blank and literal "null" payloads decode to empty lists.
func (e *Entry) ApplyPayloads(p Payloads) error {
	if err := decodePayload(p.Servers, &e.Servers); err != nil {
		return fmt.Errorf("servers: %w", err)
	}
	if e.IsSeries() {
		if err := decodePayload(p.Seasons, &e.Seasons); err != nil {
			return fmt.Errorf("seasons: %w", err)
		}
	}
	if err := decodePayload(p.Related, &e.Related); err != nil {
		return fmt.Errorf("related: %w", err)
	}
	return nil
}

// EncodePayloads renders the nested fields into their storage form.
func (e *Entry) EncodePayloads() (Payloads, error) {
	var p Payloads
	var err error
	if p.Servers, err = encodePayload(e.Servers); err != nil {
		return p, err
	}
	if e.IsSeries() {
		if p.Seasons, err = encodePayload(e.Seasons); err != nil {
			return p, err
		}
	}
	if p.Related, err = encodePayload(e.Related); err != nil {
		return p, err
	}
	return p, nil
}

func decodePayload[T any](raw string, dst *[]T) error {
	if raw == "" || raw == "null" {
		*dst = nil
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("%w: %v", ErrPayload, err)
	}
	return nil
}

func encodePayload[T any](v []T) (string, error) {
	if len(v) == 0 {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(b), nil
}
