package events

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmunix/cinedb/internal/state"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	s, err := state.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s.DB()
}

func TestEventLog_AppendAndSince(t *testing.T) {
	db := setupTestDB(t)
	log := NewEventLog(db)

	before := time.Now().Add(-time.Second)
	e := &ArtifactActivated{
		BaseEvent: NewBaseEvent(EventArtifactActivated, SubjectArtifact),
		Version:   "2.0",
		Checksum:  "abc123",
		Path:      "/data/catalog.db",
	}
	id, err := log.Append(e)
	require.NoError(t, err)
	assert.Positive(t, id)

	events, err := log.Since(before)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventArtifactActivated, events[0].EventType)
	assert.Equal(t, SubjectArtifact, events[0].Subject)
	assert.Contains(t, events[0].Payload, `"version":"2.0"`)
}

func TestEventLog_RecentNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	log := NewEventLog(db)

	for _, v := range []string{"1", "2", "3"} {
		_, err := log.Append(&ManifestChecked{BaseEvent: NewBaseEvent(EventManifestChecked, SubjectManifest), Version: v})
		require.NoError(t, err)
	}

	events, err := log.Recent(2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Greater(t, events[0].ID, events[1].ID)
}

func TestEventLog_Prune(t *testing.T) {
	db := setupTestDB(t)
	log := NewEventLog(db)

	old := &CheckFailed{BaseEvent: NewBaseEvent(EventCheckFailed, SubjectManifest), Error: "timeout"}
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	_, err := log.Append(old)
	require.NoError(t, err)
	_, err = log.Append(&CheckFailed{BaseEvent: NewBaseEvent(EventCheckFailed, SubjectManifest)})
	require.NoError(t, err)

	n, err := log.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRegistry_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	log := NewEventLog(db)

	_, err := log.Append(&InstallFailed{
		BaseEvent: NewBaseEvent(EventInstallFailed, SubjectArtifact),
		Version:   "3.0",
		Error:     "checksum mismatch",
	})
	require.NoError(t, err)

	raws, err := log.Recent(1)
	require.NoError(t, err)
	require.Len(t, raws, 1)

	e, err := DefaultRegistry().Unmarshal(raws[0])
	require.NoError(t, err)
	failed, ok := e.(*InstallFailed)
	require.True(t, ok)
	assert.Equal(t, "3.0", failed.Version)
	assert.Equal(t, "checksum mismatch", failed.Error)
}

func TestRegistry_UnknownType(t *testing.T) {
	_, err := DefaultRegistry().Unmarshal(RawEvent{EventType: "nope", Payload: "{}"})
	assert.Error(t, err)
}
