package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"incidentpulse/config"
	"incidentpulse/core/apperr"
	"incidentpulse/core/auth"
	"incidentpulse/core/domain"
	"incidentpulse/core/incidents"
	"incidentpulse/core/logging"
	"incidentpulse/core/presence"
)

// IncidentsHandler is the REST surface of spec §6. It calls the same
// incidents.Service the streaming Command Dispatcher uses, so
// PATCH /incidents/{id}/status enforces the identical state machine
// as the websocket path (spec §9 Open Question #1) — neither path has
// its own copy of the transition table.
type IncidentsHandler struct {
	cfg      *config.AppConfig
	svc      *incidents.Service
	presence *presence.Registry
	logger   *logging.Logger
}

func NewIncidentsHandler(svc *incidents.Service, presenceReg *presence.Registry, cfg *config.AppConfig, logger *logging.Logger) *IncidentsHandler {
	return &IncidentsHandler{cfg: cfg, svc: svc, presence: presenceReg, logger: logger}
}

func (h *IncidentsHandler) writeErr(w http.ResponseWriter, err error) {
	apperr.WriteHTTP(w, err, h.cfg.IsDevelopment())
}

type createIncidentRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Severity    domain.Severity `json:"severity"`
	Commander   string          `json:"commander"`
}

func (h *IncidentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, apperr.AuthMissing("missing principal"))
		return
	}
	var req createIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, apperr.Validation("incident.malformed_body", "malformed request body"))
		return
	}
	inc, err := h.svc.Create(r.Context(), incidents.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Severity:    req.Severity,
		Commander:   req.Commander,
		CreatedBy:   principal.ID,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.Status(r.URL.Query().Get("status"))
	list, err := h.svc.List(r.Context(), status)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	inc, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *IncidentsHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	timeline, err := h.svc.Timeline(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timeline)
}

func (h *IncidentsHandler) Presence(w http.ResponseWriter, r *http.Request) {
	entries, err := h.presence.ListForIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type updateStatusRequest struct {
	Status domain.Status `json:"status"`
}

func (h *IncidentsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, apperr.AuthMissing("missing principal"))
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, apperr.Validation("status.malformed_body", "malformed request body"))
		return
	}
	inc, _, err := h.svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), principal.ID, req.Status)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type assignRequest struct {
	TargetUserID string `json:"targetUserId"`
}

func (h *IncidentsHandler) Assign(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, apperr.AuthMissing("missing principal"))
		return
	}
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, apperr.Validation("assign.malformed_body", "malformed request body"))
		return
	}
	inc, _, err := h.svc.AssignUser(r.Context(), chi.URLParam(r, "id"), principal.ID, req.TargetUserID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *IncidentsHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, apperr.AuthMissing("missing principal"))
		return
	}
	inc, _, err := h.svc.UnassignUser(r.Context(), chi.URLParam(r, "id"), principal.ID, chi.URLParam(r, "userId"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type noteRequest struct {
	Text string `json:"text"`
}

func (h *IncidentsHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, apperr.AuthMissing("missing principal"))
		return
	}
	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, apperr.Validation("note.malformed_body", "malformed request body"))
		return
	}
	_, upd, err := h.svc.AddNote(r.Context(), chi.URLParam(r, "id"), principal.ID, req.Text)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, upd)
}

type actionItemRequest struct {
	Text string `json:"text"`
}

func (h *IncidentsHandler) AddActionItem(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, apperr.AuthMissing("missing principal"))
		return
	}
	var req actionItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, apperr.Validation("action_item.malformed_body", "malformed request body"))
		return
	}
	_, upd, err := h.svc.AddActionItem(r.Context(), chi.URLParam(r, "id"), principal.ID, req.Text)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, upd)
}

type toggleActionItemRequest struct {
	Completed bool `json:"completed"`
}

func (h *IncidentsHandler) ToggleActionItem(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		h.writeErr(w, apperr.AuthMissing("missing principal"))
		return
	}
	var req toggleActionItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErr(w, apperr.Validation("action_item.malformed_body", "malformed request body"))
		return
	}
	_, upd, err := h.svc.ToggleActionItem(r.Context(), chi.URLParam(r, "id"), principal.ID, chi.URLParam(r, "updateId"), req.Completed)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, upd)
}
