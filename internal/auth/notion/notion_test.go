package notionauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

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

const testStateSecret = "state-secret"

type fixedPayLevel struct {
	level int
}

func (f fixedPayLevel) PayLevel(context.Context, uint) (int, error) {
	return f.level, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := gdb.AutoMigrate(&models.User{}, &models.NotionConnection{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

// newTestHandler wires a handler against fake Notion endpoints. The token
// endpoint answers with the given grant.
func newTestHandler(t *testing.T, gdb *gorm.DB, level int, grant map[string]any) *Handler {
	t.Helper()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/token":
			user, pass, ok := r.BasicAuth()
			if !ok || user != "client-id" || pass != "client-secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(grant)
		case r.Method == http.MethodGet && r.URL.Path == "/users":
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"type": "bot", "id": "bot-1", "name": "Integration"},
					{
						"type": "person", "id": "member-1", "name": "Member",
						"person": map[string]string{"email": "member@example.com"},
					},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(api.Close)

	store := identity.NewGormStore(gdb)
	bootstrap := identity.NewBootstrap()
	bootstrap.MarkPassed()
	resolver := identity.NewResolver(store, bootstrap, nil)
	f := flow.New(resolver, token.NewManager("jwt-secret"))

	h := New(
		config.ProviderCredentials{ClientID: "client-id", ClientSecret: "client-secret", RedirectURL: "http://app.test/auth/notion/callback"},
		catalog.Settings{ID: "notion", Enabled: true},
		testStateSecret,
		f,
		notion.NewStore(gdb),
		fixedPayLevel{level: level},
	)
	h.tokenURL = api.URL + "/token"
	h.usersURL = api.URL + "/users"
	return h
}

func callbackRequest(t *testing.T, stateValue string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/auth/notion/callback?code=grant-code&state="+stateValue, nil)
	r.AddCookie(&http.Cookie{Name: stateCookie, Value: state.Sign(stateValue, testStateSecret)})
	r.AddCookie(&http.Cookie{Name: flow.RedirectCookie, Value: "http://front.test"})
	return r
}

func grantFor(workspaceID string) map[string]any {
	return map[string]any{
		"access_token":   "notion-token",
		"workspace_id":   workspaceID,
		"workspace_name": "Acme",
		"workspace_icon": "🏠",
		"owner": map[string]any{
			"type": "user",
			"user": map[string]any{
				"id":         "person-1",
				"name":       "Alice",
				"avatar_url": "http://img.test/a.png",
				"person":     map[string]string{"email": "alice@example.com"},
			},
		},
	}
}

func TestLogin_ReturnsConsentURL(t *testing.T) {
	h := newTestHandler(t, newTestDB(t), billing.PayLevelFree, grantFor("ws-1"))

	w := httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodGet, "/auth/notion?current_url=http://front.test/settings", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	consentURL := w.Body.String()
	if !strings.HasPrefix(consentURL, authorizeEndpoint+"?") {
		t.Errorf("url = %q, want consent endpoint", consentURL)
	}
	if !strings.Contains(consentURL, "client_id=client-id") || !strings.Contains(consentURL, "owner=user") {
		t.Errorf("url missing oauth params: %q", consentURL)
	}

	var sawState, sawRedirect bool
	for _, c := range w.Result().Cookies() {
		switch c.Name {
		case stateCookie:
			sawState = true
		case flow.RedirectCookie:
			sawRedirect = true
			if c.Value != "http://front.test/settings" {
				t.Errorf("redirect cookie = %q", c.Value)
			}
		}
	}
	if !sawState || !sawRedirect {
		t.Errorf("cookies: state=%v redirect=%v, want both", sawState, sawRedirect)
	}
}

func TestCallback_ResolvesByEmailAndConnects(t *testing.T) {
	gdb := newTestDB(t)
	// Account created earlier through Google; Notion must land on it.
	existing := &models.User{OpenID: "google-1", Email: "alice@example.com", Name: "Alice", Permission: 1}
	if err := gdb.Create(existing).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	h := newTestHandler(t, gdb, billing.PayLevelFree, grantFor("ws-1"))

	s, _ := state.New()
	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest(t, s))

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, body %q", w.Code, w.Body.String())
	}
	loc := w.Result().Header.Get("Location")
	if !strings.HasPrefix(loc, "http://front.test/callback?token=") {
		t.Errorf("Location = %q", loc)
	}

	var total int64
	if err := gdb.Model(&models.User{}).Count(&total).Error; err != nil {
		t.Fatalf("count users: %v", err)
	}
	if total != 1 {
		t.Errorf("user count = %d, want merge into existing account", total)
	}

	conns, err := notion.NewStore(gdb).ListForUser(context.Background(), existing.ID)
	if err != nil {
		t.Fatalf("list connections: %v", err)
	}
	if len(conns) != 1 || conns[0].WorkspaceID != "ws-1" || conns[0].AccessToken != "notion-token" {
		t.Fatalf("connections = %+v, want ws-1 with token", conns)
	}
}

func TestCallback_FreePlanSecondWorkspaceRejected(t *testing.T) {
	gdb := newTestDB(t)
	user := &models.User{OpenID: "person-1", Email: "alice@example.com", Name: "Alice"}
	if err := gdb.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := notion.NewStore(gdb).Save(context.Background(), &models.NotionConnection{
		UserID: user.ID, WorkspaceID: "ws-existing", AccessToken: "t",
	}); err != nil {
		t.Fatalf("seed connection: %v", err)
	}
	h := newTestHandler(t, gdb, billing.PayLevelFree, grantFor("ws-new"))

	s, _ := state.New()
	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest(t, s))

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Upgrade to Premium") {
		t.Errorf("body = %q, want upgrade prompt", w.Body.String())
	}
}

func TestCallback_PremiumPlanLimits(t *testing.T) {
	gdb := newTestDB(t)
	user := &models.User{OpenID: "person-1", Email: "alice@example.com", Name: "Alice"}
	if err := gdb.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	store := notion.NewStore(gdb)
	for i := 0; i < premiumWorkspaceLimit; i++ {
		if err := store.Save(context.Background(), &models.NotionConnection{
			UserID: user.ID, WorkspaceID: fmt.Sprintf("ws-%d", i), AccessToken: "t",
		}); err != nil {
			t.Fatalf("seed connection %d: %v", i, err)
		}
	}
	h := newTestHandler(t, gdb, billing.PayLevelPremium, grantFor("ws-over"))

	s, _ := state.New()
	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest(t, s))

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Upgrade to Enterprise") {
		t.Errorf("body = %q, want upgrade prompt", w.Body.String())
	}
}

func TestCallback_ReconnectBypassesLimit(t *testing.T) {
	gdb := newTestDB(t)
	user := &models.User{OpenID: "person-1", Email: "alice@example.com", Name: "Alice"}
	if err := gdb.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := notion.NewStore(gdb).Save(context.Background(), &models.NotionConnection{
		UserID: user.ID, WorkspaceID: "ws-1", AccessToken: "stale",
	}); err != nil {
		t.Fatalf("seed connection: %v", err)
	}
	h := newTestHandler(t, gdb, billing.PayLevelFree, grantFor("ws-1"))

	s, _ := state.New()
	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest(t, s))

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, body %q", w.Code, w.Body.String())
	}
	conns, err := notion.NewStore(gdb).ListForUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("list connections: %v", err)
	}
	if len(conns) != 1 || conns[0].AccessToken != "notion-token" {
		t.Fatalf("connections = %+v, want refreshed token on ws-1", conns)
	}
}

func TestCallback_BadStateRejected(t *testing.T) {
	h := newTestHandler(t, newTestDB(t), billing.PayLevelFree, grantFor("ws-1"))

	r := httptest.NewRequest(http.MethodGet, "/auth/notion/callback?code=c&state=tampered", nil)
	r.AddCookie(&http.Cookie{Name: stateCookie, Value: state.Sign("original", testStateSecret)})
	w := httptest.NewRecorder()
	h.Callback(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCallback_BotOwnerFallsBackToMemberList(t *testing.T) {
	gdb := newTestDB(t)
	grant := grantFor("ws-1")
	grant["owner"] = map[string]any{"type": "workspace"}
	h := newTestHandler(t, gdb, billing.PayLevelFree, grant)

	s, _ := state.New()
	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest(t, s))

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, body %q", w.Code, w.Body.String())
	}
	var user models.User
	if err := gdb.Where("email = ?", "member@example.com").First(&user).Error; err != nil {
		t.Fatalf("member account not created: %v", err)
	}
	if user.OpenID != "member-1" {
		t.Errorf("OpenID = %q, want member-1", user.OpenID)
	}
}
