package api

import (
	"errors"
	"testing"
)

func TestBearerTokenFromHeader(t *testing.T) {
	token, err := bearerTokenFromHeader("Bearer aaa.bbb.ccc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "aaa.bbb.ccc" {
		t.Fatalf("unexpected token %q", token)
	}
}

func TestBearerTokenFromHeaderMissing(t *testing.T) {
	if _, err := bearerTokenFromHeader(""); !errors.Is(err, errMissingAuthorization) {
		t.Fatalf("expected missing header error, got %v", err)
	}
	if _, err := bearerTokenFromHeader("   "); !errors.Is(err, errMissingAuthorization) {
		t.Fatalf("expected missing header error, got %v", err)
	}
}

func TestBearerTokenFromHeaderBad(t *testing.T) {
	bad := []string{
		"aaa.bbb.ccc",         // no scheme
		"Basic aaa.bbb.ccc",   // wrong scheme
		"Bearer",              // no token
		"Bearer aaa.bbb",      // too few segments
		"Bearer aaa.bbb.c.dd", // too many segments
	}
	for _, h := range bad {
		if _, err := bearerTokenFromHeader(h); !errors.Is(err, errBadAuthorization) {
			t.Errorf("header %q: expected bad header error, got %v", h, err)
		}
	}
}
