// Package http exposes the lifecycle engine, the audit trail, and the bulk
// ingestion pipeline over a JSON API.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"villageops/internal/audit"
	"villageops/internal/ingest"
	"villageops/internal/lifecycle"
	"villageops/pkg/domain"
	dErrors "villageops/pkg/domain-errors"
	"villageops/pkg/platform/sentinel"
)

// kindSlugs maps URL path segments onto entity kinds.
var kindSlugs = map[string]lifecycle.Kind{
	"communities":          lifecycle.KindCommunity,
	"vehicle-stickers":     lifecycle.KindVehicleSticker,
	"construction-permits": lifecycle.KindConstructionPermit,
	"association-fees":     lifecycle.KindAssociationFee,
	"admin-users":          lifecycle.KindAdminUser,
	"residences":           lifecycle.KindResidence,
}

// Handler serves the engine API.
type Handler struct {
	engine   *lifecycle.Engine
	pipeline *ingest.Pipeline
	audit    *audit.Service
	logger   *slog.Logger
}

// NewHandler wires the API handler.
func NewHandler(engine *lifecycle.Engine, pipeline *ingest.Pipeline, auditSvc *audit.Service, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, pipeline: pipeline, audit: auditSvc, logger: logger}
}

type entityResponse struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	CommunityID string         `json:"community_id,omitempty"`
	Key         string         `json:"key,omitempty"`
	Status      string         `json:"status"`
	Fields      map[string]any `json:"fields"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func toEntityResponse(e *lifecycle.Entity) entityResponse {
	resp := entityResponse{
		ID:        e.ID.String(),
		Kind:      string(e.Kind),
		Key:       e.Key,
		Status:    string(e.Status),
		Fields:    e.Fields,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if !e.CommunityID.IsNil() {
		resp.CommunityID = e.CommunityID.String()
	}
	return resp
}

func kindFromRequest(r *http.Request) (lifecycle.Kind, error) {
	slug := chi.URLParam(r, "kind")
	kind, ok := kindSlugs[slug]
	if !ok {
		return "", dErrors.New(dErrors.CodeNotFound, "unknown entity collection "+strconv.Quote(slug))
	}
	return kind, nil
}

type createRequest struct {
	CommunityID string         `json:"community_id"`
	Fields      map[string]any `json:"fields"`
}

// CreateEntity handles POST /{kind}.
func (h *Handler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	kind, err := kindFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	var communityID domain.CommunityID
	if req.CommunityID != "" {
		communityID, err = domain.ParseCommunityID(req.CommunityID)
		if err != nil {
			writeError(w, err)
			return
		}
	} else if kind != lifecycle.KindCommunity && kind != lifecycle.KindAdminUser {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "community_id is required"))
		return
	}

	entity, err := h.engine.Create(r.Context(), kind, communityID, req.Fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntityResponse(entity))
}

// GetEntity handles GET /{kind}/{id}.
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	kind, id, err := entityRef(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entity, err := h.engine.Get(r.Context(), kind, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntityResponse(entity))
}

type transitionRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

// Transition handles POST /{kind}/{id}/transitions.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	kind, id, err := entityRef(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Action == "" {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "action is required"))
		return
	}

	entity, err := h.engine.Transition(r.Context(), kind, id, lifecycle.Action(req.Action), req.Params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntityResponse(entity))
}

// EntityTrail handles GET /{kind}/{id}/audit.
func (h *Handler) EntityTrail(w http.ResponseWriter, r *http.Request) {
	kind, id, err := entityRef(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := h.audit.ListByEntity(r.Context(), string(kind), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditResponses(entries))
}

// RecentAudit handles GET /audit/recent?limit=N.
func (h *Handler) RecentAudit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be an integer"))
			return
		}
		limit = n
	}
	entries, err := h.audit.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditResponses(entries))
}

type importRejectedResponse struct {
	Error      errorBody           `json:"error"`
	Duplicates []string            `json:"duplicates"`
	Report     *ingest.BatchResult `json:"report,omitempty"`
}

// ImportResidences handles POST /communities/{id}/residences/import with a
// CSV request body.
func (h *Handler) ImportResidences(w http.ResponseWriter, r *http.Request) {
	kind, err := kindFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if kind != lifecycle.KindCommunity {
		writeError(w, dErrors.New(dErrors.CodeNotFound, "residence imports are scoped to a community"))
		return
	}
	communityID, err := domain.ParseCommunityID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.pipeline.ImportResidences(r.Context(), communityID, r.Body)
	if err != nil {
		var rejected *ingest.BatchRejectedError
		if errors.As(err, &rejected) {
			writeJSON(w, http.StatusUnprocessableEntity, importRejectedResponse{
				Error: errorBody{
					Code:    string(dErrors.CodeValidation),
					Message: "the batch contains duplicate unit numbers and was rejected",
				},
				Duplicates: rejected.Duplicates,
				Report:     result,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ImportReport handles GET /imports/{batchID}.
func (h *Handler) ImportReport(w http.ResponseWriter, r *http.Request) {
	batchID, err := domain.ParseBatchID(chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, err)
		return
	}
	report, err := h.pipeline.Report(r.Context(), batchID)
	if errors.Is(err, sentinel.ErrNotFound) {
		writeError(w, dErrors.New(dErrors.CodeNotFound, "import report not found or expired"))
		return
	}
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load import report"))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func entityRef(r *http.Request) (lifecycle.Kind, domain.EntityID, error) {
	kind, err := kindFromRequest(r)
	if err != nil {
		return "", domain.EntityID{}, err
	}
	id, err := domain.ParseEntityID(chi.URLParam(r, "id"))
	if err != nil {
		return "", domain.EntityID{}, err
	}
	return kind, id, nil
}

type auditEntryResponse struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Actor       string         `json:"actor"`
	ActorEmail  string         `json:"actor_email,omitempty"`
	Action      string         `json:"action"`
	EntityKind  string         `json:"entity_kind"`
	EntityID    string         `json:"entity_id"`
	CommunityID string         `json:"community_id,omitempty"`
	PriorStatus string         `json:"prior_status,omitempty"`
	NewStatus   string         `json:"new_status"`
	Changes     map[string]any `json:"changes,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
}

func toAuditResponses(entries []audit.Entry) []auditEntryResponse {
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp := auditEntryResponse{
			ID:          e.ID.String(),
			Timestamp:   e.Timestamp,
			Actor:       e.Actor,
			ActorEmail:  e.ActorEmail,
			Action:      e.Action,
			EntityKind:  e.EntityKind,
			EntityID:    e.EntityID.String(),
			PriorStatus: e.PriorStatus,
			NewStatus:   e.NewStatus,
			Changes:     e.Changes,
			RequestID:   e.RequestID,
		}
		if !e.CommunityID.IsNil() {
			resp.CommunityID = e.CommunityID.String()
		}
		out = append(out, resp)
	}
	return out
}
