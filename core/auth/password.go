// Package auth implements spec §4.1: password hashing (bcrypt) and
// stateless bearer-token issuance/verification. Grounded on the
// teacher's core/auth/session.go manager shape and its HMAC
// link-token scheme in api/middleware.go.
package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor; spec §4.1 requires >= 10.
const PasswordCost = 12

// HashPassword salts (bcrypt does this internally) and hashes pw,
// optionally mixed with a server-wide pepper.
func HashPassword(pw, pepper string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw+pepper), PasswordCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether pw (plus pepper) matches hash.
func VerifyPassword(pw, pepper, hash string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw+pepper))
	return err == nil
}
