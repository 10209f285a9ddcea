package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"incidentpulse/config"
	"incidentpulse/core/auth"
	"incidentpulse/core/domain"
	"incidentpulse/core/logging"
	"incidentpulse/core/rbac"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.AppConfig{AppEnv: "development", CORSOrigin: "*", SigningSecret: "test-secret"}
	policy, err := rbac.NewPolicy()
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	issuer := auth.NewIssuer(cfg.SigningSecret, time.Hour)
	return &Server{
		cfg:    cfg,
		logger: logging.NewLogger(),
		policy: policy,
		issuer: issuer,
	}
}

func TestWithAuthRejectsMissingToken(t *testing.T) {
	s := testServer(t)
	var called bool
	h := s.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if called {
		t.Fatal("handler must not run without a token")
	}
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWithAuthAcceptsValidBearerToken(t *testing.T) {
	s := testServer(t)
	token, err := s.issuer.Issue(domain.Principal{ID: "u1", Role: domain.RoleViewer})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	var gotPrincipal domain.Principal
	h := s.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrincipal, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotPrincipal.ID != "u1" {
		t.Fatalf("expected principal propagated via context, got %+v", gotPrincipal)
	}
}

func TestWithAuthRejectsMalformedAuthorizationHeader(t *testing.T) {
	s := testServer(t)
	h := s.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for a malformed header")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequirePermissionDeniesWrongRole(t *testing.T) {
	s := testServer(t)
	h := s.requirePermission(rbac.PermUserManage)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without permission")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := auth.WithPrincipal(req.Context(), domain.Principal{ID: "u1", Role: domain.RoleViewer})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req.WithContext(ctx))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRequirePermissionAllowsCorrectRole(t *testing.T) {
	s := testServer(t)
	h := s.requirePermission(rbac.PermUserManage)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := auth.WithPrincipal(req.Context(), domain.Principal{ID: "u1", Role: domain.RoleAdmin})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req.WithContext(ctx))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRateLimitMiddlewareBlocksAfterCapacity(t *testing.T) {
	s := testServer(t)
	h := s.rateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ip := "203.0.113.1:5555"
	var last int
	for i := 0; i < loginLimiterCapacity+1; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = ip
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected the request beyond capacity to be rate limited, got %d", last)
	}
}

func TestRecoverMiddlewareConvertsPanicToInternalError(t *testing.T) {
	s := testServer(t)
	h := s.recoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after recovered panic, got %d", rr.Code)
	}
}
