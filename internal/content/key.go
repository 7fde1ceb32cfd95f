package content

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Key is a lookup key derived from an entry's title and normalized year.
//
// It is reproducible from content alone but NOT unique: two entries with the
// same title and year share a key, and the truncated digest can in principle
// collide for distinct inputs. Use it to find entries, never to deduplicate them.
type Key string

// NewKey derives the key for a title and year string.
func NewKey(title, year string) Key {
	t := norm.NFC.String(strings.TrimSpace(title))
	y := NormalizeYear(year)
	sum := sha256.Sum256([]byte(t + "\x00" + y))
	return Key(hex.EncodeToString(sum[:8]))
}

// NormalizeYear returns the canonical string form of a year value,
// so "2020", " 2020 " and "2020.0" compare equal. Numeric zero in any
// spelling ("0.0") becomes the "0" placeholder.
func NormalizeYear(year string) string {
	return Text(year).normalizedYear()
}

func (v FlexValue) normalizedYear() string {
	if f, ok := v.number(); ok && f == float64(int64(f)) {
		return Number(f).String()
	}
	return v.String()
}

// YearString returns the entry year in canonical string form.
func (e *Entry) YearString() string { return e.Year.normalizedYear() }
