package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/cinedb/internal/update"
)

func TestPromptConfirmer(t *testing.T) {
	offer := update.Offer{
		Version:   "2.0",
		SizeBytes: 50_000_000,
		SizeText:  "50 MB",
		Reason:    update.ReasonNewVersion,
	}

	tests := []struct {
		name  string
		input string
		yes   bool
		want  bool
	}{
		{"enter accepts", "\n", false, true},
		{"yes", "yes\n", false, true},
		{"upper Y", "Y\n", false, true},
		{"no", "n\n", false, false},
		{"anything else declines", "later\n", false, false},
		{"eof declines", "", false, false},
		{"answer without newline", "y", false, true},
		{"assume yes skips prompt", "", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := newPromptConfirmer(strings.NewReader(tt.input), &out, tt.yes)
			got, err := c.ConfirmDownload(context.Background(), offer)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if !tt.yes {
				assert.Contains(t, out.String(), "Catalog update: version 2.0 (50 MB, new version)")
			} else {
				assert.Empty(t, out.String())
			}
		})
	}
}

func TestPromptConfirmer_Mandatory(t *testing.T) {
	var out bytes.Buffer
	c := newPromptConfirmer(strings.NewReader("\n"), &out, false)
	ok, err := c.ConfirmDownload(context.Background(), update.Offer{
		Version: "1.0", SizeText: "unknown size", Reason: update.ReasonFirstInstall, Mandatory: true,
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "Catalog required: version 1.0 (unknown size, first install)")
}
