// Package github authenticates users through GitHub's OAuth flow. GitHub has
// no OIDC ID token; the profile comes from the user API.
package github

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	githubOAuth "golang.org/x/oauth2/github"

	"github.com/corvuslabs/notebase/internal/auth/flow"
	"github.com/corvuslabs/notebase/internal/auth/state"
	"github.com/corvuslabs/notebase/internal/config"
	"github.com/corvuslabs/notebase/internal/identity"
	"github.com/corvuslabs/notebase/internal/providers/catalog"
)

const userEndpoint = "https://api.github.com/user"

const stateCookie = "github_oauth_state"

// Handler owns the GitHub login and callback endpoints.
type Handler struct {
	creds       config.ProviderCredentials
	settings    catalog.Settings
	stateSecret string
	flow        *flow.Flow
	endpoint    oauth2.Endpoint
	userURL     string
}

func New(creds config.ProviderCredentials, settings catalog.Settings, stateSecret string, f *flow.Flow) *Handler {
	return &Handler{
		creds:       creds,
		settings:    settings,
		stateSecret: stateSecret,
		flow:        f,
		endpoint:    githubOAuth.Endpoint,
		userURL:     userEndpoint,
	}
}

func (h *Handler) oauthConfig(r *http.Request) *oauth2.Config {
	redirect := h.settings.RedirectURL
	if redirect == "" {
		redirect = h.creds.RedirectURL
	}
	if redirect == "" {
		redirect = flow.CallbackURL(r, "github")
	}
	scopes := h.settings.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read:user"}
	}
	return &oauth2.Config{
		ClientID:     h.creds.ClientID,
		ClientSecret: h.creds.ClientSecret,
		RedirectURL:  redirect,
		Scopes:       scopes,
		Endpoint:     h.endpoint,
	}
}

// Login captures the caller's origin and redirects to GitHub.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Referer() == "" {
		http.Error(w, "Referer not found", http.StatusBadRequest)
		return
	}
	flow.CaptureReferer(w, r)

	s, err := state.New()
	if err != nil {
		http.Error(w, "failed to create state", http.StatusInternalServerError)
		return
	}
	state.SetCookie(w, stateCookie, state.Sign(s, h.stateSecret), 10*time.Minute)

	http.Redirect(w, r, h.oauthConfig(r).AuthCodeURL(s), http.StatusTemporaryRedirect)
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Email     string `json:"email"`
}

// profileFromUser normalizes the GitHub user payload. The numeric account id
// becomes the openid; the display name falls back to the login handle.
func profileFromUser(u githubUser) identity.Profile {
	name := u.Name
	if name == "" {
		name = u.Login
	}
	return identity.Profile{
		OpenID: strconv.FormatInt(u.ID, 10),
		Name:   name,
		Avatar: u.AvatarURL,
		Email:  u.Email,
	}
}

// Callback exchanges the code, fetches the user profile, and hands it to the
// shared flow.
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

	cfg := h.oauthConfig(r)
	tok, err := cfg.Exchange(r.Context(), code)
	if err != nil {
		http.Error(w, fmt.Sprintf("Token exchange failed: %v", err), http.StatusInternalServerError)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, h.userURL, nil)
	if err != nil {
		http.Error(w, "failed to build user request", http.StatusInternalServerError)
		return
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get user info: %v", err), http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	var u githubUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		http.Error(w, fmt.Sprintf("Failed to decode user info: %v", err), http.StatusInternalServerError)
		return
	}
	if u.ID == 0 {
		http.Error(w, "OpenID is required", http.StatusBadRequest)
		return
	}

	h.flow.Finish(w, r, "github", profileFromUser(u), identity.MatchByOpenID)
}
