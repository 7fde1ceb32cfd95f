package handlers

import (
	"context"
	"log/slog"

	"github.com/vmunix/cinedb/internal/catalog"
	"github.com/vmunix/cinedb/internal/events"
)

// Reloader re-opens the catalog on the artifact now at its path.
type Reloader interface {
	Reload(ctx context.Context) error
	Info() (catalog.Info, error)
}

// ReloadHandler swaps the catalog onto each newly activated artifact and
// announces the result with a CatalogReloaded event.
type ReloadHandler struct {
	*BaseHandler
	catalog Reloader
	ready   chan struct{}
}

// NewReloadHandler creates a new reload handler.
func NewReloadHandler(bus *events.Bus, cat Reloader, logger *slog.Logger) *ReloadHandler {
	return &ReloadHandler{
		BaseHandler: NewBaseHandler(bus, logger),
		catalog:     cat,
		ready:       make(chan struct{}),
	}
}

// Name returns the handler name.
func (h *ReloadHandler) Name() string {
	return "reload"
}

// Ready is closed once the handler is subscribed.
func (h *ReloadHandler) Ready() <-chan struct{} {
	return h.ready
}

// Start begins processing events.
func (h *ReloadHandler) Start(ctx context.Context) error {
	activated := h.Bus().Subscribe(events.EventArtifactActivated, 8)
	defer h.Bus().Unsubscribe(activated)
	close(h.ready)

	for {
		select {
		case e := <-activated:
			if e == nil {
				return nil // Channel closed
			}
			a, ok := e.(*events.ArtifactActivated)
			if !ok {
				continue
			}
			h.handleActivated(ctx, a)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *ReloadHandler) handleActivated(ctx context.Context, e *events.ArtifactActivated) {
	if err := h.catalog.Reload(ctx); err != nil {
		h.Logger().Error("catalog reload failed", "version", e.Version, "error", err)
		return
	}
	info, err := h.catalog.Info()
	if err != nil {
		h.Logger().Warn("catalog info after reload", "error", err)
		return
	}
	h.Logger().Info("catalog reloaded", "version", e.Version, "rows", info.RowCount)

	if err := h.Bus().Publish(ctx, &events.CatalogReloaded{
		BaseEvent: events.NewBaseEvent(events.EventCatalogReloaded, events.SubjectCatalog),
		Path:      info.Path,
		RowCount:  info.RowCount,
	}); err != nil {
		h.Logger().Warn("publish event", "type", events.EventCatalogReloaded, "error", err)
	}
}
