package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"incidentpulse/core/apperr"
	"incidentpulse/core/domain"
)

// claims is the bearer-token payload: {sub, role, name, email, iat, exp}.
// The token itself is a two-part base64url(payload).base64url(hmac)
// string — the same scheme as the teacher's own
// parseOnlyOfficeLinkTokenClaims/hmacSHA256Bytes in api/middleware.go,
// generalized from a single doc-link claim to a full principal claim
// set. No session record is kept server-side (spec §4.1).
type claims struct {
	Sub   string `json:"sub"`
	Role  string `json:"role"`
	Name  string `json:"name"`
	Email string `json:"email"`
	IAT   int64  `json:"iat"`
	Exp   int64  `json:"exp"`
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// Issue produces a bearer token for p, valid for the issuer's TTL.
func (iss *Issuer) Issue(p domain.Principal) (string, error) {
	now := time.Now().UTC()
	c := claims{
		Sub:   p.ID,
		Role:  string(p.Role),
		Name:  p.DisplayName,
		Email: p.Email,
		IAT:   now.Unix(),
		Exp:   now.Add(iss.ttl).Unix(),
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	payloadPart := base64.RawURLEncoding.EncodeToString(payload)
	sig := hmacSHA256([]byte(iss.secret), []byte(payloadPart))
	sigPart := base64.RawURLEncoding.EncodeToString(sig)
	return payloadPart + "." + sigPart, nil
}

// Verify parses and validates token, returning the resolved principal.
// Errors are AuthMissing/AuthInvalid/AuthExpired, per spec §4.1.
func (iss *Issuer) Verify(token string) (domain.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Principal{}, apperr.AuthMissing("missing bearer token")
	}
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return domain.Principal{}, apperr.AuthInvalid("malformed token")
	}
	payloadPart, sigPart := parts[0], parts[1]
	gotSig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return domain.Principal{}, apperr.AuthInvalid("malformed signature")
	}
	wantSig := hmacSHA256(iss.secret, []byte(payloadPart))
	if subtle.ConstantTimeCompare(gotSig, wantSig) != 1 {
		return domain.Principal{}, apperr.AuthInvalid("bad signature")
	}
	raw, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return domain.Principal{}, apperr.AuthInvalid("malformed payload")
	}
	var c claims
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.Principal{}, apperr.AuthInvalid("malformed claims")
	}
	if c.Sub == "" || c.Exp == 0 {
		return domain.Principal{}, apperr.AuthInvalid("incomplete claims")
	}
	if time.Now().UTC().Unix() >= c.Exp {
		return domain.Principal{}, apperr.AuthExpired("token expired")
	}
	role := domain.Role(c.Role)
	if !role.Valid() {
		return domain.Principal{}, apperr.AuthInvalid(fmt.Sprintf("unknown role %q", c.Role))
	}
	return domain.Principal{
		ID:          c.Sub,
		DisplayName: c.Name,
		Email:       c.Email,
		Role:        role,
	}, nil
}

func hmacSHA256(secret, payload []byte) []byte {
	m := hmac.New(sha256.New, secret)
	_, _ = m.Write(payload)
	return m.Sum(nil)
}
