// Package idp wraps the external identity provider behind a small contract:
// build an authorization URL, exchange a callback code for a raw ID token,
// verify an ID token into an Identity. The HTTP layer never talks to the
// provider libraries directly.
package idp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// GoogleIssuer is the OIDC discovery issuer for Google accounts.
const GoogleIssuer = "https://accounts.google.com"

// Identity is the provider's verified claim set about a user.
type Identity struct {
	SubjectID     string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// GoogleConfig configures the Google provider.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Issuer is overridable for tests pointing at a fake OIDC server.
	Issuer string
}

func (c GoogleConfig) validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return errors.New("idp: client id is required")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return errors.New("idp: client secret is required")
	}
	if strings.TrimSpace(c.RedirectURL) == "" {
		return errors.New("idp: redirect url is required")
	}
	return nil
}

// Google verifies Google identities via OIDC discovery.
type Google struct {
	verifier *oidc.IDTokenVerifier
	oauth2   *oauth2.Config
}

// NewGoogle discovers the provider configuration. The context bounds the
// discovery request.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = GoogleIssuer
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("idp: discover provider: %w", err)
	}
	return &Google{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

// AuthCodeURL builds the authorization redirect carrying the given state.
func (g *Google) AuthCodeURL(state string) string {
	return g.oauth2.AuthCodeURL(state)
}

// Exchange trades an authorization code for the raw ID token. The caller
// bounds the ctx; a timeout here is an authentication failure, never a
// fallback.
func (g *Google) Exchange(ctx context.Context, code string) (string, error) {
	token, err := g.oauth2.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("idp: code exchange: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", errors.New("idp: missing id_token in token response")
	}
	return rawIDToken, nil
}

// VerifyIDToken checks the provider signature and audience of a raw ID token
// and maps its claims onto an Identity.
func (g *Google) VerifyIDToken(ctx context.Context, rawIDToken string) (Identity, error) {
	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Identity{}, fmt.Errorf("idp: verify id token: %w", err)
	}
	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("idp: parse claims: %w", err)
	}
	identity := identityFromClaims(claims)
	if identity.SubjectID == "" {
		identity.SubjectID = idToken.Subject
	}
	if identity.SubjectID == "" || identity.Email == "" {
		return Identity{}, errors.New("idp: id token missing subject or email")
	}
	return identity, nil
}

type googleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func identityFromClaims(claims googleClaims) Identity {
	return Identity{
		SubjectID:     claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}
}
