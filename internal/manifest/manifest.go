// Package manifest fetches and parses the descriptor of the latest catalog artifact.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Dialect identifies which manifest shape the origin published.
type Dialect string

const (
	// DialectFlat is {"version","dbUrl","sizeBytes","sha256","zipped"}.
	DialectFlat Dialect = "flat"
	// DialectNested is {"version","description","database":{"filename","url","sizeBytes","sizeMb","hash"}}.
	DialectNested Dialect = "nested"
)

// Manifest describes the current artifact on the origin.
// Checksum always refers to the decompressed artifact bytes.
type Manifest struct {
	Version     string  `json:"version"`
	URL         string  `json:"url"`
	SizeBytes   int64   `json:"size_bytes"`
	Checksum    string  `json:"checksum"`
	Compressed  bool    `json:"compressed"`
	Description string  `json:"description,omitempty"`
	Filename    string  `json:"filename,omitempty"`
	Dialect     Dialect `json:"dialect"`
}

// looseString accepts a JSON string or any scalar literal.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	if string(data) == "null" {
		*s = ""
		return nil
	}
	*s = looseString(data)
	return nil
}

// looseInt accepts a JSON number or numeric string.
type looseInt int64

func (n *looseInt) UnmarshalJSON(data []byte) error {
	var s looseString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	if s == "" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", string(s))
	}
	*n = looseInt(math.Round(f))
	return nil
}

type wireManifest struct {
	Version     looseString   `json:"version"`
	Description looseString   `json:"description"`
	DBURL       looseString   `json:"dbUrl"`
	SizeBytes   looseInt      `json:"sizeBytes"`
	SHA256      looseString   `json:"sha256"`
	Zipped      *bool         `json:"zipped"`
	Database    *wireDatabase `json:"database"`
}

type wireDatabase struct {
	Filename  looseString `json:"filename"`
	URL       looseString `json:"url"`
	SizeBytes looseInt    `json:"sizeBytes"`
	SizeMB    float64     `json:"sizeMb"`
	Hash      looseString `json:"hash"`
	SHA256    looseString `json:"sha256"`
	Zipped    *bool       `json:"zipped"`
}

// Parse decodes a manifest body in either dialect.
// An undecodable body or a missing artifact URL is ErrParse.
func Parse(data []byte) (*Manifest, error) {
	var w wireManifest
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	m := &Manifest{
		Version:     strings.TrimSpace(string(w.Version)),
		Description: string(w.Description),
	}

	if w.Database != nil {
		db := w.Database
		m.Dialect = DialectNested
		m.URL = strings.TrimSpace(string(db.URL))
		m.Filename = string(db.Filename)
		m.SizeBytes = int64(db.SizeBytes)
		if m.SizeBytes == 0 && db.SizeMB > 0 {
			m.SizeBytes = int64(math.Round(db.SizeMB * 1024 * 1024))
		}
		m.Checksum = string(db.Hash)
		if m.Checksum == "" {
			m.Checksum = string(db.SHA256)
		}
		switch {
		case db.Zipped != nil:
			m.Compressed = *db.Zipped
		case w.Zipped != nil:
			m.Compressed = *w.Zipped
		default:
			m.Compressed = looksCompressed(m.Filename, m.URL)
		}
	} else {
		m.Dialect = DialectFlat
		m.URL = strings.TrimSpace(string(w.DBURL))
		m.SizeBytes = int64(w.SizeBytes)
		m.Checksum = string(w.SHA256)
		if w.Zipped != nil {
			m.Compressed = *w.Zipped
		} else {
			m.Compressed = looksCompressed("", m.URL)
		}
	}
	m.Checksum = strings.ToLower(strings.TrimSpace(m.Checksum))

	if m.URL == "" {
		return nil, fmt.Errorf("%w: missing artifact url", ErrParse)
	}
	if _, err := url.ParseRequestURI(m.URL); err != nil {
		return nil, fmt.Errorf("%w: invalid artifact url %q", ErrParse, m.URL)
	}
	if m.SizeBytes < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrParse, m.SizeBytes)
	}
	return m, nil
}

func looksCompressed(filename, rawURL string) bool {
	name := filename
	if name == "" {
		if u, err := url.Parse(rawURL); err == nil {
			name = path.Base(u.Path)
		}
	}
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".zip") || strings.HasSuffix(name, ".gz")
}
