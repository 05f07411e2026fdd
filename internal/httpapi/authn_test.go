package httpapi

import (
	"context"
	"net/http"
	"testing"

	"passage.dev/internal/auth"
)

func TestExtractBearerToken(t *testing.T) {
	if _, err := extractBearerToken(""); err == nil {
		t.Fatal("expected error for empty header")
	}
	if _, err := extractBearerToken("Basic abc"); err == nil {
		t.Fatal("expected error for wrong scheme")
	}
	if _, err := extractBearerToken("Bearer   "); err == nil {
		t.Fatal("expected error for empty token")
	}
	token, err := extractBearerToken("bearer abc.def.ghi")
	if err != nil || token != "abc.def.ghi" {
		t.Fatalf("case-insensitive scheme failed: %q %v", token, err)
	}
}

func TestWithAuthRejectsMissingToken(t *testing.T) {
	api, _, _ := newTestAPI(t)

	rr := doJSON(t, api.Handler(), http.MethodGet, "/v1/users", "", nil, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWithAuthRejectsGarbageToken(t *testing.T) {
	api, _, _ := newTestAPI(t)

	rr := doJSON(t, api.Handler(), http.MethodGet, "/v1/users", "not-a-token", nil, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWithAuthAttachesPrincipal(t *testing.T) {
	api, svc, _ := newTestAPI(t)
	ctx := context.Background()

	account, pair, err := svc.Register(ctx, "Ada", "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	var got *auth.Account
	rr := doJSON(t, api.Handler(), http.MethodGet, "/v1/users/"+account.ID, pair.AccessToken, nil, &got)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.ID != account.ID {
		t.Fatalf("unexpected account: %s", got.ID)
	}
}

func TestPublicPathsSkipAuth(t *testing.T) {
	api, _, _ := newTestAPI(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info", "/metrics"} {
		rr := doJSON(t, api.Handler(), http.MethodGet, path, "", nil, nil)
		if rr.Code == http.StatusUnauthorized {
			t.Fatalf("%s demanded authentication", path)
		}
	}
}

func TestIsPublicPath(t *testing.T) {
	for _, path := range []string{"/v1/auth/login", "/v1/auth/register", "/v1/auth/google/callback", "/"} {
		if !isPublicPath(path) {
			t.Fatalf("%s should be public", path)
		}
	}
	for _, path := range []string{"/v1/users", "/v1/users/a1", "/v1/auth/change-password"} {
		if isPublicPath(path) {
			t.Fatalf("%s should require auth", path)
		}
	}
}
