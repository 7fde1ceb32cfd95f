package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/cinedb/internal/catalog"
	"github.com/vmunix/cinedb/internal/catalog/catalogtest"
	"github.com/vmunix/cinedb/internal/events"
)

func startHandler(t *testing.T, h *ReloadHandler) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Start(ctx) }()
	select {
	case <-h.Ready():
	case <-time.After(time.Second):
		t.Fatal("handler did not subscribe")
	}
	return func() error {
		cancel()
		return <-done
	}
}

func activated(version, path string) *events.ArtifactActivated {
	return &events.ArtifactActivated{
		BaseEvent: events.NewBaseEvent(events.EventArtifactActivated, events.SubjectArtifact),
		Version:   version,
		Path:      path,
	}
}

func TestReloadHandler_ReloadsOnActivation(t *testing.T) {
	path := catalogtest.Build(t, catalogtest.Movies(3), "1.0")
	store := catalog.New(path, nil)
	require.NoError(t, store.Open(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	bus := events.NewBus(nil, nil)
	defer bus.Close()
	reloaded := bus.Subscribe(events.EventCatalogReloaded, 4)

	h := NewReloadHandler(bus, store, nil)
	assert.Equal(t, "reload", h.Name())
	stop := startHandler(t, h)

	catalogtest.BuildAt(t, path, catalogtest.Movies(7), "2.0")
	require.NoError(t, bus.Publish(context.Background(), activated("2.0", path)))

	select {
	case e := <-reloaded:
		got, ok := e.(*events.CatalogReloaded)
		require.True(t, ok)
		assert.Equal(t, 7, got.RowCount)
		assert.Equal(t, path, got.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("no catalog.reloaded event")
	}

	info, err := store.Info()
	require.NoError(t, err)
	assert.Equal(t, "2.0", info.Version)

	assert.ErrorIs(t, stop(), context.Canceled)
}

type failingReloader struct{ calls int }

func (f *failingReloader) Reload(context.Context) error {
	f.calls++
	return errors.New("boom")
}

func (f *failingReloader) Info() (catalog.Info, error) { return catalog.Info{}, nil }

func TestReloadHandler_FailedReloadPublishesNothing(t *testing.T) {
	bus := events.NewBus(nil, nil)
	defer bus.Close()
	reloaded := bus.Subscribe(events.EventCatalogReloaded, 4)

	r := &failingReloader{}
	h := NewReloadHandler(bus, r, nil)
	h.handleActivated(context.Background(), activated("2.0", "/tmp/catalog.db"))

	assert.Equal(t, 1, r.calls)
	select {
	case e := <-reloaded:
		t.Fatalf("unexpected event %s", e.EventType())
	default:
	}
}

func TestReloadHandler_StopsWhenBusCloses(t *testing.T) {
	bus := events.NewBus(nil, nil)
	h := NewReloadHandler(bus, &failingReloader{}, nil)
	stop := make(chan error, 1)
	go func() { stop <- h.Start(context.Background()) }()
	<-h.Ready()

	require.NoError(t, bus.Close())
	select {
	case err := <-stop:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("handler did not stop")
	}
}
