package update_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vmunix/cinedb/internal/catalog"
	"github.com/vmunix/cinedb/internal/catalog/catalogtest"
	"github.com/vmunix/cinedb/internal/events"
	"github.com/vmunix/cinedb/internal/installer"
	"github.com/vmunix/cinedb/internal/integrity"
	"github.com/vmunix/cinedb/internal/manifest"
	"github.com/vmunix/cinedb/internal/state"
	"github.com/vmunix/cinedb/internal/update"
	"github.com/vmunix/cinedb/internal/update/mocks"
)

// testLogger returns a discard logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func alwaysValid(context.Context, string) error { return nil }

type fixture struct {
	source    *mocks.MockManifestSource
	installer *mocks.MockInstaller
	states    *mocks.MockStateStore
	confirmer *mocks.MockConfirmer
	target    string
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	return &fixture{
		source:    mocks.NewMockManifestSource(ctrl),
		installer: mocks.NewMockInstaller(ctrl),
		states:    mocks.NewMockStateStore(ctrl),
		confirmer: mocks.NewMockConfirmer(ctrl),
		target:    filepath.Join(t.TempDir(), "catalog.db"),
	}
}

func (f *fixture) engine(opts ...update.Option) *update.Engine {
	opts = append([]update.Option{
		update.WithLogger(testLogger()),
		update.WithRetry(2, time.Millisecond),
		update.WithValidator(alwaysValid),
	}, opts...)
	return update.NewEngine(f.source, f.installer, f.states, f.target, opts...)
}

// nothingToRecover expects a clean recovery pass with no staged artifact.
func (f *fixture) nothingToRecover() {
	f.installer.EXPECT().Recover(gomock.Any(), f.target).Return(installer.Recovery{}, nil)
	f.installer.EXPECT().ActivatePending(gomock.Any(), f.target).Return(nil, installer.ErrNoPending)
}

func (f *fixture) local(st state.UpdateState) {
	f.states.EXPECT().Load(gomock.Any()).Return(st, nil).AnyTimes()
	f.states.EXPECT().TouchLastCheck(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
}

func (f *fixture) writeArtifact(t *testing.T) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.target, []byte("artifact"), 0o644))
}

func v2() *manifest.Manifest {
	return &manifest.Manifest{Version: "2.0", URL: "https://origin.example/c.db.zip", SizeBytes: 50_000_000, Checksum: "abc123", Compressed: true}
}

func TestEngine_CheckReportsNewVersion(t *testing.T) {
	f := newFixture(t)
	f.writeArtifact(t)
	f.source.EXPECT().Fetch(gomock.Any()).Return(v2(), nil)
	f.local(state.UpdateState{InstalledVersion: "1.0", InstalledChecksum: "xyz789"})

	bus := events.NewBus(nil, testLogger())
	defer func() { _ = bus.Close() }()
	checked := bus.Subscribe(events.EventManifestChecked, 1)

	c, err := f.engine(update.WithEventBus(bus)).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, update.UpdateAvailable, c.Decision.Outcome)
	assert.Equal(t, update.ReasonNewVersion, c.Decision.Reason)
	assert.Equal(t, "2.0", c.Manifest.Version)

	select {
	case e := <-checked:
		assert.Equal(t, "update_available", e.(*events.ManifestChecked).Outcome)
	case <-time.After(time.Second):
		t.Fatal("no manifest.checked event")
	}
}

func TestEngine_CheckSharesConcurrentFetch(t *testing.T) {
	f := newFixture(t)
	f.local(state.UpdateState{})

	started := make(chan struct{})
	release := make(chan struct{})
	f.source.EXPECT().Fetch(gomock.Any()).DoAndReturn(func(context.Context) (*manifest.Manifest, error) {
		close(started)
		<-release
		return v2(), nil
	}).Times(1)

	e := f.engine()
	var wg sync.WaitGroup
	results := make([]*update.Check, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = e.Check(context.Background())
	}()
	<-started
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = e.Check(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NotNil(t, results[0])
	assert.Same(t, results[0], results[1])
}

func TestEngine_CheckCanceledCallerDoesNotFailOthers(t *testing.T) {
	f := newFixture(t)
	f.local(state.UpdateState{})

	started := make(chan struct{})
	release := make(chan struct{})
	fetchErr := make(chan error, 1)
	f.source.EXPECT().Fetch(gomock.Any()).DoAndReturn(func(ctx context.Context) (*manifest.Manifest, error) {
		close(started)
		<-release
		fetchErr <- ctx.Err()
		return v2(), nil
	}).Times(1)

	e := f.engine()
	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := e.Check(ctx)
		first <- err
	}()
	<-started

	var second *update.Check
	var secondErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		second, secondErr = e.Check(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-first, context.Canceled)

	close(release)
	<-done
	require.NoError(t, secondErr)
	require.NotNil(t, second)
	assert.Equal(t, "2.0", second.Manifest.Version)
	assert.NoError(t, <-fetchErr)
}

func TestEngine_EnsureInstalled_FirstInstall(t *testing.T) {
	f := newFixture(t)
	f.nothingToRecover()
	f.local(state.UpdateState{})
	m := v2()
	f.source.EXPECT().Fetch(gomock.Any()).Return(m, nil)
	f.confirmer.EXPECT().ConfirmDownload(gomock.Any(), update.Offer{
		Version:   "2.0",
		SizeBytes: 50_000_000,
		SizeText:  "50 MB",
		Reason:    update.ReasonFirstInstall,
		Mandatory: true,
	}).Return(true, nil)
	f.installer.EXPECT().Install(gomock.Any(), m, f.target).Return(&installer.Result{Version: "2.0"}, nil)

	res, err := f.engine(update.WithConfirmer(f.confirmer, 100_000_000)).EnsureInstalled(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Installed)
	assert.True(t, res.CanSkip)
	assert.Equal(t, update.ReasonFirstInstall, res.Decision.Reason)
}

func TestEngine_EnsureInstalled_FirstInstallDeclined(t *testing.T) {
	f := newFixture(t)
	f.nothingToRecover()
	f.local(state.UpdateState{})
	f.source.EXPECT().Fetch(gomock.Any()).Return(v2(), nil)
	f.confirmer.EXPECT().ConfirmDownload(gomock.Any(), gomock.Any()).Return(false, nil)

	res, err := f.engine(update.WithConfirmer(f.confirmer, 0)).EnsureInstalled(context.Background())
	require.ErrorIs(t, err, update.ErrDeclined)
	assert.False(t, res.CanSkip)
	assert.False(t, res.Installed)
}

func TestEngine_EnsureInstalled_NetworkFailureWithoutArtifact(t *testing.T) {
	f := newFixture(t)
	f.nothingToRecover()
	f.source.EXPECT().Fetch(gomock.Any()).
		Return(nil, fmt.Errorf("%w: connection refused", manifest.ErrNetwork)).Times(2)

	res, err := f.engine().EnsureInstalled(context.Background())
	require.ErrorIs(t, err, manifest.ErrNetwork)
	assert.False(t, res.CanSkip)
	assert.NotEmpty(t, res.Message)
}

func TestEngine_EnsureInstalled_ParseFailureNotRetried(t *testing.T) {
	f := newFixture(t)
	f.writeArtifact(t)
	f.nothingToRecover()
	f.source.EXPECT().Fetch(gomock.Any()).
		Return(nil, fmt.Errorf("%w: unexpected EOF", manifest.ErrParse)).Times(1)

	res, err := f.engine().EnsureInstalled(context.Background())
	require.ErrorIs(t, err, manifest.ErrParse)
	assert.True(t, res.CanSkip)
}

func TestEngine_EnsureInstalled_UsableButOutdated(t *testing.T) {
	f := newFixture(t)
	f.writeArtifact(t)
	f.nothingToRecover()
	f.local(state.UpdateState{InstalledVersion: "1.0", InstalledChecksum: "xyz789"})
	f.source.EXPECT().Fetch(gomock.Any()).Return(v2(), nil)

	res, err := f.engine().EnsureInstalled(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Decision.Available())
	assert.False(t, res.Installed)
	assert.True(t, res.CanSkip)
}

func TestEngine_EnsureInstalled_ReinstallsCorruptArtifact(t *testing.T) {
	f := newFixture(t)
	f.writeArtifact(t)
	f.nothingToRecover()
	f.local(state.UpdateState{InstalledVersion: "2.0", InstalledChecksum: "abc123"})
	m := v2()
	f.source.EXPECT().Fetch(gomock.Any()).Return(m, nil)
	f.installer.EXPECT().Install(gomock.Any(), m, f.target).Return(&installer.Result{Version: "2.0"}, nil)

	e := f.engine(update.WithValidator(func(context.Context, string) error {
		return fmt.Errorf("%w: missing entries table", catalog.ErrCorrupt)
	}))
	res, err := e.EnsureInstalled(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Installed)
	assert.Equal(t, update.ReasonArtifactCorrupt, res.Decision.Reason)
}

func TestEngine_EnsureInstalled_ActivatesStaged(t *testing.T) {
	f := newFixture(t)
	f.writeArtifact(t)
	f.installer.EXPECT().Recover(gomock.Any(), f.target).Return(installer.Recovery{}, nil)
	f.installer.EXPECT().ActivatePending(gomock.Any(), f.target).Return(&installer.Result{Version: "2.0"}, nil)
	f.local(state.UpdateState{InstalledVersion: "2.0", InstalledChecksum: "abc123"})
	f.source.EXPECT().Fetch(gomock.Any()).Return(v2(), nil)

	res, err := f.engine().EnsureInstalled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, update.NoUpdate, res.Decision.Outcome)
}

func TestEngine_CheckAndOffer(t *testing.T) {
	t.Run("up to date", func(t *testing.T) {
		f := newFixture(t)
		f.writeArtifact(t)
		f.local(state.UpdateState{InstalledVersion: "2.0", InstalledChecksum: "ABC123"})
		f.source.EXPECT().Fetch(gomock.Any()).Return(v2(), nil)

		res := <-f.engine().CheckAndOffer(context.Background(), false)
		require.NoError(t, res.Err)
		assert.Equal(t, update.NoUpdate, res.Decision.Outcome)
		assert.False(t, res.Installed)
	})

	t.Run("forced reinstall", func(t *testing.T) {
		f := newFixture(t)
		f.writeArtifact(t)
		f.local(state.UpdateState{InstalledVersion: "2.0", InstalledChecksum: "abc123"})
		m := v2()
		f.source.EXPECT().Fetch(gomock.Any()).Return(m, nil)
		f.installer.EXPECT().Install(gomock.Any(), m, f.target).Return(&installer.Result{}, nil)

		res := <-f.engine().CheckAndOffer(context.Background(), true)
		require.NoError(t, res.Err)
		assert.True(t, res.Installed)
	})

	t.Run("two phase stages", func(t *testing.T) {
		f := newFixture(t)
		f.writeArtifact(t)
		f.local(state.UpdateState{InstalledVersion: "1.0", InstalledChecksum: "xyz789"})
		m := v2()
		f.source.EXPECT().Fetch(gomock.Any()).Return(m, nil)
		f.installer.EXPECT().Stage(gomock.Any(), m, f.target).Return(&installer.Result{}, nil)

		res := <-f.engine(update.WithTwoPhase(true)).CheckAndOffer(context.Background(), false)
		require.NoError(t, res.Err)
		assert.True(t, res.Staged)
		assert.False(t, res.Installed)
	})

	t.Run("declined large download", func(t *testing.T) {
		f := newFixture(t)
		f.writeArtifact(t)
		f.local(state.UpdateState{InstalledVersion: "1.0", InstalledChecksum: "xyz789"})
		f.source.EXPECT().Fetch(gomock.Any()).Return(v2(), nil)
		f.confirmer.EXPECT().ConfirmDownload(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, o update.Offer) (bool, error) {
				assert.False(t, o.Mandatory)
				return false, nil
			})

		res := <-f.engine(update.WithConfirmer(f.confirmer, 10_000_000)).CheckAndOffer(context.Background(), false)
		require.NoError(t, res.Err)
		assert.True(t, res.CanSkip)
		assert.Contains(t, res.Message, "Skipped")
	})

	t.Run("small download skips confirmation", func(t *testing.T) {
		f := newFixture(t)
		f.writeArtifact(t)
		f.local(state.UpdateState{InstalledVersion: "1.0", InstalledChecksum: "xyz789"})
		m := v2()
		f.source.EXPECT().Fetch(gomock.Any()).Return(m, nil)
		f.installer.EXPECT().Install(gomock.Any(), m, f.target).Return(&installer.Result{}, nil)

		res := <-f.engine(update.WithConfirmer(f.confirmer, 100_000_000)).CheckAndOffer(context.Background(), false)
		require.NoError(t, res.Err)
		assert.True(t, res.Installed)
	})

	t.Run("install failure keeps existing", func(t *testing.T) {
		f := newFixture(t)
		f.writeArtifact(t)
		f.local(state.UpdateState{InstalledVersion: "1.0", InstalledChecksum: "xyz789"})
		f.source.EXPECT().Fetch(gomock.Any()).Return(v2(), nil)
		f.installer.EXPECT().Install(gomock.Any(), gomock.Any(), f.target).
			Return(nil, &installer.ChecksumError{Expected: "abc123", Actual: "000"})

		res := <-f.engine().CheckAndOffer(context.Background(), false)
		require.ErrorIs(t, res.Err, installer.ErrChecksumMismatch)
		assert.True(t, res.CanSkip)
		assert.Contains(t, res.Message, "verification")
	})

	t.Run("check failure", func(t *testing.T) {
		f := newFixture(t)
		f.writeArtifact(t)
		f.source.EXPECT().Fetch(gomock.Any()).Return(nil, &manifest.StatusError{Code: 503, Status: "503 Service Unavailable"})

		res := <-f.engine().CheckAndOffer(context.Background(), false)
		require.ErrorIs(t, res.Err, manifest.ErrNetwork)
		assert.True(t, res.CanSkip)
	})
}

func TestEngine_RecoverPropagatesErrors(t *testing.T) {
	f := newFixture(t)
	f.installer.EXPECT().Recover(gomock.Any(), f.target).Return(installer.Recovery{}, installer.ErrIO)

	_, err := f.engine().Recover(context.Background())
	assert.True(t, errors.Is(err, installer.ErrIO))
}

// TestEngine_InstallsNewVersionEndToEnd runs the policy against a real origin,
// installer and state store.
func TestEngine_InstallsNewVersionEndToEnd(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	target := filepath.Join(dir, "catalog.db")
	catalogtest.BuildAt(t, target, catalogtest.Movies(3), "1.0")

	next, err := os.ReadFile(catalogtest.Build(t, catalogtest.Movies(45), "2.0"))
	require.NoError(t, err)
	sum, err := integrity.Checksum(ctx, bytes.NewReader(next))
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"version":"2.0","dbUrl":"http://%s/catalog.db","sizeBytes":%d,"sha256":"%s","zipped":false}`,
			r.Host, len(next), sum)
	})
	mux.HandleFunc("/catalog.db", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(next) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	states, err := state.Open(ctx, filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	defer func() { _ = states.Close() }()
	require.NoError(t, states.RecordInstalled(ctx, "1.0", "xyz789"))

	e := update.NewEngine(
		manifest.NewClient(srv.URL+"/manifest.json"),
		installer.New(states, installer.WithLogger(testLogger())),
		states,
		target,
		update.WithLogger(testLogger()),
	)

	c, err := e.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, update.UpdateAvailable, c.Decision.Outcome)

	res := <-e.CheckAndOffer(ctx, false)
	require.NoError(t, res.Err)
	assert.True(t, res.Installed)

	st, err := states.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2.0", st.InstalledVersion)
	assert.Equal(t, sum, st.InstalledChecksum)
	assert.Empty(t, st.PendingVersion)
	assert.Empty(t, st.PendingChecksum)

	store := catalog.New(target, nil)
	require.NoError(t, store.Open(ctx))
	defer func() { _ = store.Close() }()
	page, err := store.ListByCategory(ctx, "Movies", 2, 20)
	require.NoError(t, err)
	assert.Len(t, page.Entries, 5)
	assert.False(t, page.HasMore)
}

// TestEngine_TwoPhaseStagesOnce checks that repeated checks against an
// unchanged manifest download the staged version only once.
func TestEngine_TwoPhaseStagesOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	target := filepath.Join(dir, "catalog.db")
	catalogtest.BuildAt(t, target, catalogtest.Movies(3), "1.0")

	next, err := os.ReadFile(catalogtest.Build(t, catalogtest.Movies(10), "2.0"))
	require.NoError(t, err)
	sum, err := integrity.Checksum(ctx, bytes.NewReader(next))
	require.NoError(t, err)

	var mu sync.Mutex
	downloads := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"version":"2.0","dbUrl":"http://%s/catalog.db","sizeBytes":%d,"sha256":"%s","zipped":false}`,
			r.Host, len(next), sum)
	})
	mux.HandleFunc("/catalog.db", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		downloads++
		mu.Unlock()
		_, _ = w.Write(next)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	states, err := state.Open(ctx, filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	defer func() { _ = states.Close() }()
	require.NoError(t, states.RecordInstalled(ctx, "1.0", "xyz789"))

	e := update.NewEngine(
		manifest.NewClient(srv.URL+"/manifest.json"),
		installer.New(states, installer.WithLogger(testLogger())),
		states,
		target,
		update.WithLogger(testLogger()),
		update.WithTwoPhase(true),
	)

	for range 3 {
		res := <-e.CheckAndOffer(ctx, false)
		require.NoError(t, res.Err)
		assert.True(t, res.Staged)
		assert.False(t, res.Installed)
	}

	mu.Lock()
	assert.Equal(t, 1, downloads)
	mu.Unlock()
	assert.FileExists(t, installer.StagedPath(target))

	st, err := states.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0", st.InstalledVersion)
	assert.Equal(t, "2.0", st.PendingVersion)

	// A missing staged file is downloaded again.
	require.NoError(t, os.Remove(installer.StagedPath(target)))
	res := <-e.CheckAndOffer(ctx, false)
	require.NoError(t, res.Err)
	assert.True(t, res.Staged)
	mu.Lock()
	assert.Equal(t, 2, downloads)
	mu.Unlock()
}
