package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"incidentpulse/config"
	"incidentpulse/core/apperr"
	"incidentpulse/core/domain"
	"incidentpulse/core/logging"
	"incidentpulse/core/store"
)

type UsersHandler struct {
	cfg        *config.AppConfig
	principals store.PrincipalsStore
	logger     *logging.Logger
}

func NewUsersHandler(cfg *config.AppConfig, principals store.PrincipalsStore, logger *logging.Logger) *UsersHandler {
	return &UsersHandler{cfg: cfg, principals: principals, logger: logger}
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	list, err := h.principals.List(r.Context(), role)
	if err != nil {
		apperr.WriteHTTP(w, err, h.cfg.IsDevelopment())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, err := h.principals.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apperr.WriteHTTP(w, err, h.cfg.IsDevelopment())
		return
	}
	writeJSON(w, http.StatusOK, principal)
}

type updateRoleRequest struct {
	Role domain.Role `json:"role"`
}

// UpdateRole is admin-gated via rbac.PermUserManage in the router; spec
// §4.2 keeps role assignment a pure table lookup with no self-service
// elevation path.
func (h *UsersHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Role.Valid() {
		apperr.WriteHTTP(w, apperr.Validation("user.role_invalid", "unknown role"), h.cfg.IsDevelopment())
		return
	}
	if err := h.principals.UpdateRole(r.Context(), id, req.Role); err != nil {
		apperr.WriteHTTP(w, err, h.cfg.IsDevelopment())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
