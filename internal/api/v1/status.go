package v1

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/vmunix/cinedb/internal/update"
)

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Catalog.State()
	resp := statusResponse{
		Status:  "ok",
		Catalog: catalogStatus{State: string(st)},
	}
	if !st.Serving() {
		resp.Status = "degraded"
	}
	if info, err := s.deps.Catalog.Info(); err == nil {
		resp.Catalog.Path = info.Path
		resp.Catalog.Version = info.Version
		resp.Catalog.RowCount = info.RowCount
		resp.Catalog.SizeBytes = info.SizeBytes
		resp.Catalog.ModifiedAt = timePtr(info.ModifiedAt)
		resp.Catalog.OpenedAt = timePtr(info.OpenedAt)
	}
	if err := s.deps.Catalog.Err(); err != nil {
		resp.Catalog.Error = err.Error()
	}

	if s.deps.States != nil {
		us, err := s.deps.States.Load(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "STATE_ERROR", err.Error())
			return
		}
		resp.Update = &updateStatus{
			InstalledVersion:  us.InstalledVersion,
			InstalledChecksum: us.InstalledChecksum,
			InstalledAt:       timePtr(us.InstalledAt),
			LastCheck:         timePtr(us.LastCheck),
			PendingVersion:    us.PendingVersion,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) checkUpdate(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Updater.Check(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "CHECK_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{
		Available:        c.Decision.Available(),
		Outcome:          string(c.Decision.Outcome),
		Reason:           string(c.Decision.Reason),
		Mandatory:        c.Decision.Mandatory,
		Version:          c.Manifest.Version,
		SizeBytes:        c.Manifest.SizeBytes,
		InstalledVersion: c.Local.InstalledVersion,
	})
}

func (s *Server) installUpdate(w http.ResponseWriter, r *http.Request) {
	var req installRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid JSON")
		return
	}

	// The install outlives a disconnecting client.
	done := s.deps.Updater.CheckAndOffer(context.WithoutCancel(r.Context()), req.Force)

	var res *update.Result
	select {
	case res = <-done:
	case <-r.Context().Done():
		return
	}

	resp := installResponse{
		Version:   res.Version,
		Reason:    string(res.Decision.Reason),
		Installed: res.Installed,
		Staged:    res.Staged,
		CanSkip:   res.CanSkip,
		Message:   res.Message,
	}
	code := http.StatusOK
	if res.Err != nil {
		resp.Error = res.Err.Error()
		code = http.StatusBadGateway
		if errors.Is(res.Err, update.ErrDeclined) {
			code = http.StatusConflict
		}
	}
	writeJSON(w, code, resp)
}
