package v1

import (
	"context"
	"errors"

	"github.com/vmunix/cinedb/internal/catalog"
	"github.com/vmunix/cinedb/internal/content"
	"github.com/vmunix/cinedb/internal/events"
	"github.com/vmunix/cinedb/internal/state"
	"github.com/vmunix/cinedb/internal/update"
)

// ErrMissingDependency is returned when a required dependency is nil.
var ErrMissingDependency = errors.New("missing required dependency")

// Catalog is the read contract served under /api/v1.
type Catalog interface {
	State() catalog.State
	Err() error
	Info() (catalog.Info, error)
	List(ctx context.Context, page, size int) (*catalog.Page, error)
	ListByCategory(ctx context.Context, category string, page, size int) (*catalog.Page, error)
	Search(ctx context.Context, substr string, page, size int) (*catalog.Page, error)
	Filter(ctx context.Context, f catalog.Filter, page, size int) (*catalog.Page, error)
	TopRated(ctx context.Context, n int) ([]content.LightEntry, error)
	RecentlyAdded(ctx context.Context, n int) ([]content.LightEntry, error)
	DistinctValues(ctx context.Context, field catalog.Field) ([]string, error)
	FullEntry(ctx context.Context, title string, year *string) (*content.FullEntry, error)
	Suggest(ctx context.Context, title string, n int) ([]catalog.Suggestion, error)
	Categories(ctx context.Context) ([]catalog.Category, error)
}

// Updater is the check/install entry point.
type Updater interface {
	Check(ctx context.Context) (*update.Check, error)
	CheckAndOffer(ctx context.Context, force bool) <-chan *update.Result
}

// StateLoader reads the persisted update state.
type StateLoader interface {
	Load(ctx context.Context) (state.UpdateState, error)
}

// ServerDeps contains all dependencies for the API server.
// Catalog is required; the rest may be nil.
type ServerDeps struct {
	Catalog Catalog

	Updater  Updater
	States   StateLoader
	EventLog *events.EventLog
}

// Validate checks that all required dependencies are provided.
func (d ServerDeps) Validate() error {
	if d.Catalog == nil {
		return errors.New("catalog store is required")
	}
	return nil
}
