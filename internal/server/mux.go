// Package server provides the ops HTTP surface for drivesync.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/qadhya/drivesync/internal/auth"
	apperrors "github.com/qadhya/drivesync/internal/errors"
	"github.com/qadhya/drivesync/internal/metrics"
	"github.com/qadhya/drivesync/internal/reconcile"
	"github.com/qadhya/drivesync/internal/runlog"
)

// maxBodyBytes bounds the optional sync request body.
const maxBodyBytes = 4096

// Runner executes one reconciliation run.
type Runner interface {
	Run(ctx context.Context, cfg reconcile.SyncConfig) (*runlog.Summary, error)
}

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Runner  Runner
	History runlog.History
	Keys    *auth.Keys
	Logger  *slog.Logger

	// Defaults is the per-run template; the tenant id and an optional
	// root folder override come from the request.
	Defaults reconcile.SyncConfig
}

// syncRequest is the optional body of POST /v1/tenants/{id}/sync.
type syncRequest struct {
	RootFolderID string `json:"root_folder_id,omitempty"`
}

// NewMux builds the HTTP mux with health, metrics and the sync API. The
// /v1 endpoints are protected by API key middleware.
func NewMux(cfg MuxConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", metrics.Middleware("/healthz", http.HandlerFunc(handleHealth)))
	mux.Handle("GET /metrics", metrics.Handler())

	authMiddleware := auth.Middleware(cfg.Keys, cfg.Logger)
	mux.Handle("POST /v1/tenants/{id}/sync",
		metrics.Middleware("/v1/tenants/{id}/sync", authMiddleware(handleSync(cfg))))
	mux.Handle("GET /v1/tenants/{id}/runs",
		metrics.Middleware("/v1/tenants/{id}/runs", authMiddleware(handleRuns(cfg))))

	return mux
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleSync(cfg MuxConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req syncRequest
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "invalid_request",
					"body exceeds "+strconv.Itoa(maxBodyBytes)+" bytes")
				return
			}
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "reading body failed")
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON object")
				return
			}
		}

		syncCfg := cfg.Defaults
		syncCfg.TenantID = r.PathValue("id")
		if req.RootFolderID != "" {
			syncCfg.RootFolderID = req.RootFolderID
		}

		cfg.Logger.Info("sync requested",
			slog.String("tenant_id", syncCfg.TenantID),
			slog.String("user_id", auth.RequestUserID(r.Context())),
		)

		summary, err := cfg.Runner.Run(r.Context(), syncCfg)
		if summary == nil {
			cfg.Logger.Error("sync run not recorded", slog.String("error", errString(err)))
			writeJSONError(w, http.StatusInternalServerError, "internal_error", "sync run could not be recorded")
			return
		}

		writeJSON(w, syncStatus(err), summary)
	}
}

// syncStatus maps a run error to the response status. The summary is
// returned in every case.
func syncStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, apperrors.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrTenantMissing),
		errors.Is(err, apperrors.ErrRootFolderMissing),
		errors.Is(err, apperrors.ErrCredentialMissing):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func handleRuns(cfg MuxConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				writeJSONError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
				return
			}
			limit = n
		}

		runs, err := cfg.History.ListSyncRuns(r.Context(), r.PathValue("id"), limit)
		if err != nil {
			cfg.Logger.Error("listing sync runs failed", slog.String("error", err.Error()))
			writeJSONError(w, http.StatusInternalServerError, "internal_error", "listing sync runs failed")
			return
		}

		out := make([]*runlog.Summary, 0, len(runs))
		for _, run := range runs {
			out = append(out, run.Summary(nil))
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": out})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, errCode, description string) {
	writeJSON(w, status, map[string]string{
		"error":             errCode,
		"error_description": description,
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
