// Package notionauth authenticates users through Notion's OAuth flow and
// records the granted workspace connection. Notion identities match by email:
// the same person may sign in with Google first and connect Notion later.
package notionauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/corvuslabs/notebase/internal/auth/flow"
	"github.com/corvuslabs/notebase/internal/auth/state"
	"github.com/corvuslabs/notebase/internal/auth/token"
	"github.com/corvuslabs/notebase/internal/billing"
	"github.com/corvuslabs/notebase/internal/config"
	"github.com/corvuslabs/notebase/internal/db/models"
	"github.com/corvuslabs/notebase/internal/identity"
	"github.com/corvuslabs/notebase/internal/notion"
	"github.com/corvuslabs/notebase/internal/providers/catalog"
)

const (
	authorizeEndpoint = "https://api.notion.com/v1/oauth/authorize"
	tokenEndpoint     = "https://api.notion.com/v1/oauth/token"
	usersEndpoint     = "https://api.notion.com/v1/users"

	apiVersion = "2022-06-28"

	stateCookie       = "notion_oauth_state"
	accessTokenCookie = "notion_access_token"
)

// Workspace caps per pay level.
const (
	freeWorkspaceLimit    = 1
	premiumWorkspaceLimit = 5
)

// PayLeveler reports a user's current pay level.
type PayLeveler interface {
	PayLevel(ctx context.Context, userID uint) (int, error)
}

// Handler owns the Notion login and callback endpoints.
type Handler struct {
	creds       config.ProviderCredentials
	settings    catalog.Settings
	stateSecret string
	flow        *flow.Flow
	connections *notion.Store
	payLevels   PayLeveler

	tokenURL string
	usersURL string
	client   *http.Client
}

func New(creds config.ProviderCredentials, settings catalog.Settings, stateSecret string, f *flow.Flow, connections *notion.Store, payLevels PayLeveler) *Handler {
	return &Handler{
		creds:       creds,
		settings:    settings,
		stateSecret: stateSecret,
		flow:        f,
		connections: connections,
		payLevels:   payLevels,
		tokenURL:    tokenEndpoint,
		usersURL:    usersEndpoint,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (h *Handler) redirectURL(r *http.Request) string {
	if h.settings.RedirectURL != "" {
		return h.settings.RedirectURL
	}
	if h.creds.RedirectURL != "" {
		return h.creds.RedirectURL
	}
	return flow.CallbackURL(r, "notion")
}

// Login hands back the Notion consent URL instead of redirecting: the
// frontend opens it in a popup. The caller passes its own location in
// current_url so the callback knows where to send the browser afterwards.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	origin := r.URL.Query().Get("current_url")
	if origin == "" {
		origin = strings.TrimSuffix(r.Referer(), "/")
	}
	if origin != "" {
		state.SetCookie(w, flow.RedirectCookie, origin, token.TTL)
	}

	s, err := state.New()
	if err != nil {
		http.Error(w, "failed to create state", http.StatusInternalServerError)
		return
	}
	state.SetCookie(w, stateCookie, state.Sign(s, h.stateSecret), token.TTL)

	q := url.Values{}
	q.Set("client_id", h.creds.ClientID)
	q.Set("response_type", "code")
	q.Set("owner", "user")
	q.Set("redirect_uri", h.redirectURL(r))
	q.Set("state", s)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(authorizeEndpoint + "?" + q.Encode()))
}

type tokenResponse struct {
	AccessToken   string `json:"access_token"`
	WorkspaceID   string `json:"workspace_id"`
	WorkspaceName string `json:"workspace_name"`
	WorkspaceIcon string `json:"workspace_icon"`
	Owner         struct {
		Type string     `json:"type"`
		User notionUser `json:"user"`
	} `json:"owner"`
}

type notionUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Person    struct {
		Email string `json:"email"`
	} `json:"person"`
}

func profileFromUser(u notionUser) identity.Profile {
	return identity.Profile{
		OpenID: u.ID,
		Name:   u.Name,
		Avatar: u.AvatarURL,
		Email:  u.Person.Email,
	}
}

// Callback finishes the grant: exchanges the code, resolves the account by
// email, enforces the workspace cap for the user's pay level, and stores the
// connection.
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

	grant, err := h.exchange(r.Context(), code, h.redirectURL(r))
	if err != nil {
		http.Error(w, fmt.Sprintf("Token exchange failed: %v", err), http.StatusInternalServerError)
		return
	}

	profile := profileFromUser(grant.Owner.User)
	if profile.Email == "" {
		// Bot-owned grants carry no person; fall back to the workspace's
		// member list.
		u, err := h.firstPersonUser(r.Context(), grant.AccessToken)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to get user info: %v", err), http.StatusInternalServerError)
			return
		}
		profile = profileFromUser(u)
	}

	user, _, err := h.flow.Resolve(w, r, "notion", profile, identity.MatchByEmail)
	if err != nil {
		return
	}

	if err := h.connect(r.Context(), user.ID, grant); err != nil {
		if limitErr, ok := err.(*workspaceLimitError); ok {
			http.Error(w, limitErr.Error(), http.StatusPaymentRequired)
			return
		}
		http.Error(w, "Failed to save connection", http.StatusInternalServerError)
		return
	}

	state.SetCookie(w, accessTokenCookie, grant.AccessToken, token.TTL)

	signed, err := h.flow.Issue(w, user.ID)
	if err != nil {
		return
	}
	flow.Redirect(w, r, signed)
}

type workspaceLimitError struct {
	msg string
}

func (e *workspaceLimitError) Error() string { return e.msg }

// connect stores the workspace connection, enforcing the cap for the user's
// pay level. Reconnecting an already-connected workspace is always allowed.
func (h *Handler) connect(ctx context.Context, userID uint, grant *tokenResponse) error {
	exists, err := h.connections.Exists(ctx, userID, grant.WorkspaceID)
	if err != nil {
		return err
	}
	if !exists {
		count, err := h.connections.CountForUser(ctx, userID)
		if err != nil {
			return err
		}
		level, err := h.payLevels.PayLevel(ctx, userID)
		if err != nil {
			return err
		}
		switch {
		case level <= billing.PayLevelFree && count >= freeWorkspaceLimit:
			return &workspaceLimitError{msg: "Upgrade to Premium"}
		case level == billing.PayLevelPremium && count >= premiumWorkspaceLimit:
			return &workspaceLimitError{msg: "Upgrade to Enterprise"}
		}
	}
	return h.connections.Save(ctx, &models.NotionConnection{
		UserID:        userID,
		WorkspaceID:   grant.WorkspaceID,
		AccessToken:   grant.AccessToken,
		WorkspaceName: grant.WorkspaceName,
		WorkspaceIcon: grant.WorkspaceIcon,
	})
}

// exchange trades the authorization code for an access grant. Notion wants
// the client credentials as basic auth, not form fields.
func (h *Handler) exchange(ctx context.Context, code, redirectURL string) (*tokenResponse, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": redirectURL,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.tokenURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(h.creds.ClientID, h.creds.ClientSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %s", resp.Status)
	}

	var grant tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return nil, err
	}
	if grant.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access token")
	}
	return &grant, nil
}

// firstPersonUser lists the workspace's users and returns the first person
// (non-bot) entry.
func (h *Handler) firstPersonUser(ctx context.Context, accessToken string) (notionUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.usersURL, nil)
	if err != nil {
		return notionUser{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Notion-Version", apiVersion)

	resp, err := h.client.Do(req)
	if err != nil {
		return notionUser{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return notionUser{}, fmt.Errorf("users endpoint returned %s", resp.Status)
	}

	var list struct {
		Results []struct {
			notionUser
			Type string `json:"type"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return notionUser{}, err
	}
	for _, entry := range list.Results {
		if entry.Type == "person" && entry.Person.Email != "" {
			return entry.notionUser, nil
		}
	}
	return notionUser{}, fmt.Errorf("workspace has no person user")
}
