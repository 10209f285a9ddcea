package auth

import (
	"strings"
	"testing"
	"time"

	"incidentpulse/core/apperr"
	"incidentpulse/core/domain"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)
	p := domain.Principal{ID: "u1", DisplayName: "Alice", Email: "alice@example.com", Role: domain.RoleResponder}
	token, err := iss.Issue(p)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	got, err := iss.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.ID != p.ID || got.DisplayName != p.DisplayName || got.Role != p.Role {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)
	token, _ := iss.Issue(domain.Principal{ID: "u1", Role: domain.RoleViewer})
	parts := strings.SplitN(token, ".", 2)
	tampered := parts[0] + "." + strings.Repeat("a", len(parts[1]))
	_, err := iss.Verify(tampered)
	if !isKind(err, apperr.KindAuthInvalid) {
		t.Fatalf("expected auth_invalid, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	iss := NewIssuer("test-secret", -time.Minute)
	token, _ := iss.Issue(domain.Principal{ID: "u1", Role: domain.RoleViewer})
	_, err := iss.Verify(token)
	if !isKind(err, apperr.KindAuthExpired) {
		t.Fatalf("expected auth_expired, got %v", err)
	}
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour)
	_, err := iss.Verify("")
	if !isKind(err, apperr.KindAuthMissing) {
		t.Fatalf("expected auth_missing, got %v", err)
	}
}

func TestVerifyRejectsDifferentSecret(t *testing.T) {
	iss := NewIssuer("secret-a", time.Hour)
	other := NewIssuer("secret-b", time.Hour)
	token, _ := iss.Issue(domain.Principal{ID: "u1", Role: domain.RoleViewer})
	_, err := other.Verify(token)
	if !isKind(err, apperr.KindAuthInvalid) {
		t.Fatalf("expected auth_invalid across mismatched secrets, got %v", err)
	}
}

func isKind(err error, kind apperr.Kind) bool {
	e := apperr.As(err)
	return e != nil && e.Kind == kind
}
