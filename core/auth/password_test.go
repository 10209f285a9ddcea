package auth

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple", "pepper")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword("correct horse battery staple", "pepper", hash) {
		t.Fatal("expected matching password to verify")
	}
	if VerifyPassword("wrong password", "pepper", hash) {
		t.Fatal("expected wrong password to fail verification")
	}
	if VerifyPassword("correct horse battery staple", "different-pepper", hash) {
		t.Fatal("expected mismatched pepper to fail verification")
	}
}

func TestVerifyPasswordRejectsEmptyHash(t *testing.T) {
	if VerifyPassword("anything", "pepper", "") {
		t.Fatal("empty stored hash must never verify")
	}
}
