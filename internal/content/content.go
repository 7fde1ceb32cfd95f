// Package content defines catalog records and their light/full projections.
package content

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Category buckets used by the origin for main_category.
const (
	CategoryMovie  = "Movies"
	CategorySeries = "TV Series"
	CategoryLive   = "Live TV"
)

// Entry is one media item as published in the catalog.
type Entry struct {
	Title        string    `json:"title"`
	SubCategory  string    `json:"subCategory,omitempty"`
	Country      string    `json:"country,omitempty"`
	Description  string    `json:"description,omitempty"`
	PosterURL    string    `json:"poster,omitempty"`
	ThumbnailURL string    `json:"thumbnail,omitempty"`
	Rating       FlexValue `json:"rating"`
	Duration     string    `json:"duration,omitempty"`
	Year         FlexValue `json:"year"`
	MainCategory string    `json:"mainCategory,omitempty"`
	Servers      []Server  `json:"servers,omitempty"`
	Seasons      []Season  `json:"seasons,omitempty"`
	Related      []Entry   `json:"related,omitempty"`
}

// Server is one playback source for an entry or episode.
type Server struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	License string `json:"license,omitempty"`
	DRM     *bool  `json:"drm,omitempty"`
}

// IsDRM reports whether the source is DRM protected.
// An explicit flag wins; otherwise a non-empty license implies DRM.
func (s Server) IsDRM() bool {
	if s.DRM != nil {
		return *s.DRM
	}
	return strings.TrimSpace(s.License) != ""
}

// Season groups the episodes of one season of a series.
type Season struct {
	Number   int       `json:"season"`
	Episodes []Episode `json:"episodes"`
}

// Episode is a single episode with its own server list.
type Episode struct {
	Number      FlexValue `json:"episode"`
	Title       string    `json:"title,omitempty"`
	Duration    string    `json:"duration,omitempty"`
	Description string    `json:"description,omitempty"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Servers     []Server  `json:"servers,omitempty"`
}

// IsSeries reports whether the main category denotes a series.
func IsSeries(mainCategory string) bool {
	c := strings.ToLower(mainCategory)
	return strings.Contains(c, "series") || strings.Contains(c, "tv show")
}

// IsSeries reports whether the entry is a series.
func (e *Entry) IsSeries() bool { return IsSeries(e.MainCategory) }

// Key returns the lookup key derived from title and year.
func (e *Entry) Key() Key { return NewKey(e.Title, e.Year.String()) }

// Image returns the display image, preferring the poster.
func (e *Entry) Image() string {
	if e.PosterURL != "" {
		return e.PosterURL
	}
	return e.ThumbnailURL
}

// Normalize drops seasons from non-series entries and trims the title.
func (e *Entry) Normalize() {
	e.Title = strings.TrimSpace(e.Title)
	if !e.IsSeries() {
		e.Seasons = nil
	}
	for i := range e.Related {
		e.Related[i].Normalize()
		e.Related[i].Related = nil
	}
}

// DecodeEntries parses a JSON array of raw entries.
// Rating and year accept either numbers or strings.
func DecodeEntries(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	for i := range entries {
		if entries[i].Title == "" {
			return nil, fmt.Errorf("decode entries: entry %d: %w", i, ErrMissingTitle)
		}
		entries[i].Normalize()
	}
	return entries, nil
}
