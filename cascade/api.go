package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/animus-labs/cascade/internal/deletespec"
	"github.com/animus-labs/cascade/internal/platform/auth"
	"github.com/animus-labs/cascade/internal/platform/httpserver"
	"github.com/animus-labs/cascade/internal/platform/postgres"
	"github.com/animus-labs/cascade/internal/service/deletes"
)

type deleteService interface {
	Specs() []deletes.SpecInfo
	Plan(ctx context.Context, req deletes.Request) (deletes.PlanResult, error)
	Execute(ctx context.Context, req deletes.Request) (deletes.Result, error)
	Backup(ctx context.Context, spec string, rootID int64, runID string) (*deletespec.Snapshot, error)
}

type cascadeAPI struct {
	logger  *slog.Logger
	svc     deleteService
	maxBody int64
}

func newCascadeAPI(logger *slog.Logger, svc deleteService, maxBody int64) *cascadeAPI {
	return &cascadeAPI{logger: logger, svc: svc, maxBody: maxBody}
}

func (api *cascadeAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /specs", api.handleListSpecs)
	mux.HandleFunc("GET /specs/{name}/plan", api.handlePlan)
	mux.HandleFunc("POST /specs/{name}/deletes", api.handleDelete)
	mux.HandleFunc("GET /specs/{name}/backups/{root_id}/{run_id}", api.handleGetBackup)
}

type deleteRequest struct {
	RootID  *int64            `json:"root_id"`
	Options map[string]string `json:"options,omitempty"`
	Backup  *bool             `json:"backup,omitempty"`
}

func (api *cascadeAPI) handleListSpecs(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"specs": api.svc.Specs()})
}

func (api *cascadeAPI) handlePlan(w http.ResponseWriter, r *http.Request) {
	rootID, err := parseRootID(r.URL.Query().Get("root_id"))
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_root_id", err)
		return
	}
	plan, err := api.svc.Plan(r.Context(), deletes.Request{
		Spec:    r.PathValue("name"),
		RootID:  rootID,
		Options: queryOptions(r),
		Actor:   actorFromRequest(r),
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, plan)
}

func (api *cascadeAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decodeJSON(w, r, &req, api.maxBody); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.writeError(w, r, http.StatusRequestEntityTooLarge, "body_too_large", err)
			return
		}
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", err)
		return
	}
	if req.RootID == nil {
		api.writeError(w, r, http.StatusBadRequest, "root_id_required", nil)
		return
	}
	if *req.RootID <= 0 {
		api.writeError(w, r, http.StatusBadRequest, "invalid_root_id", errors.New("root_id must be positive"))
		return
	}

	res, err := api.svc.Execute(r.Context(), deletes.Request{
		Spec:    r.PathValue("name"),
		RootID:  *req.RootID,
		Options: req.Options,
		Backup:  req.Backup,
		Actor:   actorFromRequest(r),
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, res)
}

func (api *cascadeAPI) handleGetBackup(w http.ResponseWriter, r *http.Request) {
	rootID, err := parseRootID(r.PathValue("root_id"))
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_root_id", err)
		return
	}
	snap, err := api.svc.Backup(r.Context(), r.PathValue("name"), rootID, r.PathValue("run_id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, snap)
}

// errorStatus maps a service error to its HTTP status and error code.
// Detail is only exposed for errors the caller can act on.
func errorStatus(err error) (int, string, bool) {
	switch {
	case errors.Is(err, deletes.ErrUnknownSpec):
		return http.StatusNotFound, "unknown_spec", true
	case errors.Is(err, deletes.ErrInvalid):
		return http.StatusBadRequest, "invalid_request", true
	case deletespec.IsStructural(err):
		return http.StatusUnprocessableEntity, "invalid_specification", true
	case postgres.IsForeignKeyViolation(err):
		return http.StatusConflict, "foreign_key_violation", true
	case postgres.IsRetryable(err):
		return http.StatusConflict, "retryable_conflict", false
	case postgres.IsTimeout(err):
		return http.StatusGatewayTimeout, "timeout", false
	case errors.Is(err, deletes.ErrBackup):
		return http.StatusBadGateway, "backup_failed", false
	default:
		return http.StatusInternalServerError, "internal_error", false
	}
}

func (api *cascadeAPI) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, expose := errorStatus(err)
	if status >= 500 {
		requestID, _ := httpserver.RequestIDFromContext(r.Context())
		api.logger.Error("request failed", "request_id", requestID, "path", r.URL.Path, "error", err)
	}
	if status == http.StatusConflict && code == "retryable_conflict" {
		w.Header().Set("Retry-After", "1")
	}
	if !expose {
		err = nil
	}
	api.writeError(w, r, status, code, err)
}

func (api *cascadeAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	body := map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	}
	if err != nil {
		body["detail"] = err.Error()
	}
	httpserver.WriteJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, limit int64) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func parseRootID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("root_id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New("root_id must be an integer")
	}
	if id <= 0 {
		return 0, errors.New("root_id must be positive")
	}
	return id, nil
}

// queryOptions collects "option.<key>=<value>" query parameters.
func queryOptions(r *http.Request) map[string]string {
	var out map[string]string
	for key, values := range r.URL.Query() {
		name, ok := strings.CutPrefix(key, "option.")
		if !ok || name == "" || len(values) == 0 {
			continue
		}
		if out == nil {
			out = map[string]string{}
		}
		out[name] = values[len(values)-1]
	}
	return out
}

func actorFromRequest(r *http.Request) deletes.Actor {
	actor := deletes.Actor{
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
	actor.RequestID, _ = httpserver.RequestIDFromContext(r.Context())
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		actor.Subject = identity.Subject
	}
	return actor
}
