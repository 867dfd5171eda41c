// Package google authenticates users through Google's OpenID Connect flow.
package google

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"

	"github.com/corvuslabs/notebase/internal/auth/flow"
	"github.com/corvuslabs/notebase/internal/auth/state"
	"github.com/corvuslabs/notebase/internal/config"
	"github.com/corvuslabs/notebase/internal/identity"
	"github.com/corvuslabs/notebase/internal/providers/catalog"
)

const issuer = "https://accounts.google.com"

// stateCookie holds the signed CSRF state between login and callback.
const stateCookie = "google_oauth_state"

// Handler owns the Google login and callback endpoints.
type Handler struct {
	creds       config.ProviderCredentials
	settings    catalog.Settings
	stateSecret string
	flow        *flow.Flow
	endpoint    oauth2.Endpoint
	verifier    *oidc.IDTokenVerifier
}

// New discovers the Google OIDC endpoints and builds the handler.
func New(ctx context.Context, creds config.ProviderCredentials, settings catalog.Settings, stateSecret string, f *flow.Flow) (*Handler, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("google: discover provider: %w", err)
	}
	return &Handler{
		creds:       creds,
		settings:    settings,
		stateSecret: stateSecret,
		flow:        f,
		endpoint:    googleOAuth.Endpoint,
		verifier:    provider.Verifier(&oidc.Config{ClientID: creds.ClientID}),
	}, nil
}

func (h *Handler) oauthConfig(r *http.Request) *oauth2.Config {
	redirect := h.settings.RedirectURL
	if redirect == "" {
		redirect = h.creds.RedirectURL
	}
	if redirect == "" {
		redirect = flow.CallbackURL(r, "google")
	}
	scopes := h.settings.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	return &oauth2.Config{
		ClientID:     h.creds.ClientID,
		ClientSecret: h.creds.ClientSecret,
		RedirectURL:  redirect,
		Scopes:       scopes,
		Endpoint:     h.endpoint,
	}
}

// Login redirects to Google's consent page.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	flow.CaptureReferer(w, r)

	s, err := state.New()
	if err != nil {
		http.Error(w, "failed to create state", http.StatusInternalServerError)
		return
	}
	state.SetCookie(w, stateCookie, state.Sign(s, h.stateSecret), 10*time.Minute)

	url := h.oauthConfig(r).AuthCodeURL(s, oauth2.AccessTypeOffline)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

type claims struct {
	Sub        string `json:"sub"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
	Email      string `json:"email"`
}

// profileFromClaims normalizes Google's ID token claims. Name falls back to
// the given or family name when the composite is absent.
func profileFromClaims(c claims) identity.Profile {
	name := c.Name
	if name == "" {
		name = c.GivenName
	}
	if name == "" {
		name = c.FamilyName
	}
	return identity.Profile{
		OpenID: c.Sub,
		Name:   name,
		Avatar: c.Picture,
		Email:  c.Email,
	}
}

// Callback exchanges the authorization code, verifies the ID token, and
// hands the normalized profile to the shared flow.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	got := r.URL.Query().Get("state")
	want, ok := state.Verify(state.Cookie(r, stateCookie), h.stateSecret)
	state.ClearCookie(w, stateCookie)
	if !ok || got == "" || got != want {
		http.Error(w, "Invalid state token", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Invalid code", http.StatusBadRequest)
		return
	}

	tok, err := h.oauthConfig(r).Exchange(r.Context(), code)
	if err != nil {
		http.Error(w, fmt.Sprintf("Token exchange failed: %v", err), http.StatusInternalServerError)
		return
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok {
		http.Error(w, "no id_token in token response", http.StatusInternalServerError)
		return
	}
	idToken, err := h.verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		http.Error(w, fmt.Sprintf("ID token verification failed: %v", err), http.StatusInternalServerError)
		return
	}

	var c claims
	if err := idToken.Claims(&c); err != nil {
		http.Error(w, fmt.Sprintf("Failed to decode claims: %v", err), http.StatusInternalServerError)
		return
	}

	h.flow.Finish(w, r, "google", profileFromClaims(c), identity.MatchByOpenID)
}
