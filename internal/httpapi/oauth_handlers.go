package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"passage.dev/internal/audit"
	"passage.dev/internal/auth"
	"passage.dev/internal/idp"
	"passage.dev/internal/obs"
)

// GoogleProvider is what the HTTP layer needs from the identity provider.
// *idp.Google satisfies it; tests substitute a fake.
type GoogleProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
	VerifyIDToken(ctx context.Context, rawIDToken string) (idp.Identity, error)
}

const (
	stateCookie     = "oauth_state"
	stateCookieTTL  = 600 // seconds
	exchangeTimeout = 10 * time.Second
)

type idTokenRequest struct {
	IDToken string `json:"id_token"`
}

func newState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (a *API) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.google == nil {
		writeError(w, r, http.StatusServiceUnavailable, "google sign-in is not configured")
		return
	}
	state, err := newState()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/v1/auth/google/",
		MaxAge:   stateCookieTTL,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, a.google.AuthCodeURL(state), http.StatusFound)
}

func (a *API) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.google == nil {
		writeError(w, r, http.StatusServiceUnavailable, "google sign-in is not configured")
		return
	}

	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookie)
	if err != nil || state == "" || cookie.Value != state {
		writeError(w, r, http.StatusBadRequest, "state mismatch")
		return
	}
	// one-shot state
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/v1/auth/google/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	code := r.URL.Query().Get("code")
	if strings.TrimSpace(code) == "" {
		writeError(w, r, http.StatusBadRequest, "code is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), exchangeTimeout)
	defer cancel()
	rawIDToken, err := a.google.Exchange(ctx, code)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "code exchange failed")
		return
	}
	a.finishGoogleSignIn(w, r, rawIDToken)
}

// handleGoogleMobile accepts an ID token obtained by a native client SDK and
// turns it into a local session.
func (a *API) handleGoogleMobile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.google == nil {
		writeError(w, r, http.StatusServiceUnavailable, "google sign-in is not configured")
		return
	}
	var req idTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		writeError(w, r, http.StatusBadRequest, "id_token is required")
		return
	}
	a.finishGoogleSignIn(w, r, req.IDToken)
}

func (a *API) finishGoogleSignIn(w http.ResponseWriter, r *http.Request, rawIDToken string) {
	ctx, cancel := context.WithTimeout(r.Context(), exchangeTimeout)
	defer cancel()

	identity, err := a.google.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid id token")
		return
	}

	account, err := a.auth.Reconcile(r.Context(), auth.Identity{
		SubjectID:     identity.SubjectID,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		Name:          identity.Name,
		Picture:       identity.Picture,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	tokens, err := a.auth.IssueSession(r.Context(), account)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	obs.SessionIssued("google")
	_ = audit.LogEvent(r.Context(), "auth.google.sign_in", map[string]any{
		"account_id": account.ID,
	})
	writeJSON(w, http.StatusOK, sessionResponse{Account: account, Tokens: tokens})
}
