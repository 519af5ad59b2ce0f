package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vectorglue/svgsync/internal/bootstrap"
	"github.com/vectorglue/svgsync/internal/migration"
	"github.com/vectorglue/svgsync/internal/records"
	"github.com/vectorglue/svgsync/internal/svg"
	syncengine "github.com/vectorglue/svgsync/internal/sync"
)

// errorResponse is the JSON body for failed management calls.
type errorResponse struct {
	Error string `json:"error"`
}

// statusResponse describes the server's current state.
type statusResponse struct {
	State              bootstrap.State `json:"state"`
	ManagedModelID     string          `json:"managedModelId,omitempty"`
	ConfigVersion      string          `json:"configVersion,omitempty"`
	LegacyEntriesCount int             `json:"legacyEntriesCount"`
	UptimeSeconds      int64           `json:"uptimeSeconds"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		State:          s.reconciler.State(),
		ManagedModelID: s.reconciler.ManagedModelID(),
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
	}

	if cfg, version, err := s.cfgStore.Load(r.Context()); err != nil {
		s.logger.Error("failed to load configuration for status", "error", err)
	} else {
		resp.ConfigVersion = version
		resp.LegacyEntriesCount = len(cfg.LegacyEntries)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleBootstrap runs one reconciliation pass. With ?provision=true an
// absent schema is created through the external provisioner instead of
// leaving the state UNINITIALIZED.
func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	state, err := s.reconciler.Reconcile(r.Context())
	if errors.Is(err, bootstrap.ErrNotProvisioned) && r.URL.Query().Get("provision") == "true" {
		model, provErr := s.reconciler.Provision(r.Context())
		if provErr != nil {
			writeError(w, http.StatusBadGateway, provErr.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"state":          s.reconciler.State(),
			"managedModelId": model.ID,
			"provisioned":    true,
		})
		return
	}
	if err != nil && !errors.Is(err, bootstrap.ErrNotProvisioned) {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"state":          state,
		"managedModelId": s.reconciler.ManagedModelID(),
		"provisioned":    false,
	})
}

// handleManualSync runs a sync in the foreground and reports the outcome.
// Unlike the hook path, failures here surface to the caller.
func (s *Server) handleManualSync(w http.ResponseWriter, r *http.Request) {
	var ev records.MutationEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid sync request: "+err.Error())
		return
	}

	modelID := s.reconciler.ManagedModelID()
	if modelID == "" {
		writeError(w, http.StatusConflict, "managed schema is not provisioned")
		return
	}
	if ev.ModelID == "" {
		ev.ModelID = modelID
	}

	out := s.engine.SyncFromMutation(r.Context(), ev, modelID)

	status := http.StatusOK
	switch out.Status {
	case syncengine.StatusFailedFetch, syncengine.StatusFailedUpload:
		status = http.StatusBadGateway
	case syncengine.StatusSkippedInvalid:
		status = http.StatusUnprocessableEntity
	}

	body := map[string]any{"status": out.Status, "assetId": out.AssetID}
	if out.OrphanedTempID != "" {
		body["orphanedTempId"] = out.OrphanedTempID
	}
	if out.Err != nil {
		body["error"] = out.Err.Error()
	}
	writeJSON(w, status, body)
}

// createAssetRequest is the body for the explicit upload path.
type createAssetRequest struct {
	Source string `json:"source"`
	Name   string `json:"name"`
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var req createAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid asset request: "+err.Error())
		return
	}

	modelID := s.reconciler.ManagedModelID()
	if modelID == "" {
		writeError(w, http.StatusConflict, "managed schema is not provisioned")
		return
	}

	rec, err := s.engine.CreateManagedAsset(r.Context(), modelID, req.Source, req.Name)
	switch {
	case errors.Is(err, svg.ErrEmpty), errors.Is(err, svg.ErrNotWellFormed), errors.Is(err, svg.ErrNotSVG):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	result, err := s.migrator.Run(r.Context())
	if errors.Is(err, migration.ErrNotProvisioned) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
