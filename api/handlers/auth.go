package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"incidentpulse/config"
	"incidentpulse/core/apperr"
	"incidentpulse/core/auth"
	"incidentpulse/core/domain"
	"incidentpulse/core/logging"
	"incidentpulse/core/store"
)

type AuthHandler struct {
	cfg        *config.AppConfig
	principals store.PrincipalsStore
	issuer     *auth.Issuer
	logger     *logging.Logger
}

func NewAuthHandler(cfg *config.AppConfig, principals store.PrincipalsStore, issuer *auth.Issuer, logger *logging.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, principals: principals, issuer: issuer, logger: logger}
}

type registerRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

type authResponse struct {
	Token     string          `json:"token"`
	Principal domain.Principal `json:"principal"`
}

// Register creates a new principal with the viewer role; promotion to
// responder/admin is an explicit admin action via UsersHandler.UpdateRole.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, apperr.Validation("auth.malformed_body", "malformed request body"), h.cfg.IsDevelopment())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Email == "" || req.DisplayName == "" || len(req.Password) < 8 {
		apperr.WriteHTTP(w, apperr.Validation("auth.invalid_registration", "displayName, email, and an 8+ char password are required"), h.cfg.IsDevelopment())
		return
	}
	hash, err := auth.HashPassword(req.Password, h.cfg.Pepper)
	if err != nil {
		apperr.WriteHTTP(w, apperr.Internal("hash password", err), h.cfg.IsDevelopment())
		return
	}
	principal := domain.Principal{DisplayName: req.DisplayName, Email: req.Email, Role: domain.RoleViewer}
	if err := h.principals.Create(r.Context(), principal, hash); err != nil {
		apperr.WriteHTTP(w, err, h.cfg.IsDevelopment())
		return
	}
	stored, _, err := h.principals.FindByEmail(r.Context(), req.Email)
	if err != nil {
		apperr.WriteHTTP(w, err, h.cfg.IsDevelopment())
		return
	}
	h.issueAndRespond(w, stored)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, apperr.Validation("auth.malformed_body", "malformed request body"), h.cfg.IsDevelopment())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	principal, hash, err := h.principals.FindByEmail(r.Context(), req.Email)
	if err != nil {
		apperr.WriteHTTP(w, apperr.AuthInvalid("invalid credentials"), h.cfg.IsDevelopment())
		return
	}
	if !auth.VerifyPassword(req.Password, h.cfg.Pepper, hash) {
		apperr.WriteHTTP(w, apperr.AuthInvalid("invalid credentials"), h.cfg.IsDevelopment())
		return
	}
	h.issueAndRespond(w, principal)
}

func (h *AuthHandler) issueAndRespond(w http.ResponseWriter, principal domain.Principal) {
	token, err := h.issuer.Issue(principal)
	if err != nil {
		apperr.WriteHTTP(w, apperr.Internal("issue token", err), h.cfg.IsDevelopment())
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, Principal: principal})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		apperr.WriteHTTP(w, apperr.AuthMissing("missing principal"), h.cfg.IsDevelopment())
		return
	}
	writeJSON(w, http.StatusOK, principal)
}
