package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FlatDialect(t *testing.T) {
	body := `{
		"version": "2025.08.16",
		"dbUrl": "https://cdn.example.com/cinecraze.db.zip",
		"sizeBytes": 123456789,
		"sha256": "ABCDEF0123",
		"zipped": true
	}`

	m, err := Parse([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, DialectFlat, m.Dialect)
	assert.Equal(t, "2025.08.16", m.Version)
	assert.Equal(t, "https://cdn.example.com/cinecraze.db.zip", m.URL)
	assert.Equal(t, int64(123456789), m.SizeBytes)
	assert.Equal(t, "abcdef0123", m.Checksum)
	assert.True(t, m.Compressed)
}

func TestParse_NestedDialect(t *testing.T) {
	body := `{
		"version": "3.1",
		"description": "weekly refresh",
		"database": {
			"filename": "playlist.db",
			"url": "https://cdn.example.com/playlist.db",
			"sizeMb": 2.5,
			"hash": "deadbeef"
		}
	}`

	m, err := Parse([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, DialectNested, m.Dialect)
	assert.Equal(t, "3.1", m.Version)
	assert.Equal(t, "weekly refresh", m.Description)
	assert.Equal(t, "playlist.db", m.Filename)
	assert.Equal(t, int64(2621440), m.SizeBytes)
	assert.Equal(t, "deadbeef", m.Checksum)
	assert.False(t, m.Compressed)
}

func TestParse_NestedPrefersExplicitBytes(t *testing.T) {
	body := `{"version": 4, "database": {"url": "https://x/y.db.zip", "sizeBytes": "1000", "sizeMb": 9}}`

	m, err := Parse([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "4", m.Version)
	assert.Equal(t, int64(1000), m.SizeBytes)
	assert.True(t, m.Compressed, "compression inferred from .zip suffix")
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>oops</html>`},
		{"empty url", `{"version": "1", "dbUrl": ""}`},
		{"missing url", `{"version": "1", "sha256": "abc"}`},
		{"nested empty url", `{"version": "1", "database": {"hash": "abc"}}`},
		{"relative url", `{"version": "1", "dbUrl": "catalog.db"}`},
		{"bad size", `{"version": "1", "dbUrl": "https://x/a.db", "sizeBytes": "big"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}
