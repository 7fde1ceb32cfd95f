package integrity

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum_KnownVector(t *testing.T) {
	sum, err := Checksum(context.Background(), bytes.NewReader([]byte("abc")))
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)
}

func TestChecksum_MultiChunk(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), ChunkSize) // spans many chunks
	want := sha256.Sum256(data)

	sum, err := Checksum(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:]), sum)
}

func TestChecksumFile_MatchesReader(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := []byte("catalog bytes")
	require.NoError(t, afero.WriteFile(fs, "/data/catalog.db", data, 0o644))

	fromFile, err := ChecksumFile(context.Background(), fs, "/data/catalog.db")
	require.NoError(t, err)
	fromReader, err := Checksum(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, fromReader, fromFile)
}

func TestChecksumFile_Missing(t *testing.T) {
	_, err := ChecksumFile(context.Background(), afero.NewMemMapFs(), "/nope")
	assert.Error(t, err)
}

func TestChecksum_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Checksum(ctx, bytes.NewReader([]byte("x")))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("ABC123", "abc123"))
	assert.True(t, Equal(" abc ", "abc"))
	assert.False(t, Equal("abc", "abd"))
}
