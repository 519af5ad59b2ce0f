package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vectorglue/svgsync/internal/records"
)

// hookResponse is the allow-commit signal returned to the host. The hook is
// a side-channel observer: it never gates the primary write, so Allow is
// always true.
type hookResponse struct {
	Allow bool `json:"allow"`
}

// handleRecordHook receives a pre-commit record mutation, acknowledges it
// immediately, and runs the sync as a background task that owns its own
// error boundary. Failures here are logged for operators, never surfaced to
// the editing user.
func (s *Server) handleRecordHook(w http.ResponseWriter, r *http.Request) {
	if s.hookVerifier != nil {
		if err := s.hookVerifier(r); err != nil {
			s.logger.Warn("rejected hook request", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid hook credentials")
			return
		}
	}

	var ev records.MutationEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		// A payload this process cannot read is none of its business; the
		// commit must proceed regardless.
		s.logger.Warn("undecodable hook payload, allowing commit", "error", err)
		writeJSON(w, http.StatusOK, hookResponse{Allow: true})
		return
	}

	writeJSON(w, http.StatusOK, hookResponse{Allow: true})

	// Once started, the swap sequence runs to completion or failure; it is
	// never cancelled by the hook request ending.
	ctx := context.WithoutCancel(r.Context())
	modelID := s.reconciler.ManagedModelID()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in background sync", "panic", rec)
			}
		}()

		out := s.engine.SyncFromMutation(ctx, ev, modelID)
		s.logger.Debug("background sync finished",
			"record", ev.RecordID, "status", out.Status, "asset", out.AssetID)
	}()
}
