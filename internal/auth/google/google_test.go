package google

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/corvuslabs/notebase/internal/auth/flow"
	"github.com/corvuslabs/notebase/internal/auth/state"
	"github.com/corvuslabs/notebase/internal/auth/token"
	"github.com/corvuslabs/notebase/internal/config"
	"github.com/corvuslabs/notebase/internal/db/models"
	"github.com/corvuslabs/notebase/internal/identity"
	"github.com/corvuslabs/notebase/internal/providers/catalog"
)

const (
	testStateSecret = "state-secret"
	testIssuer      = "https://issuer.test"
	testClientID    = "cid"
)

func TestProfileFromClaims(t *testing.T) {
	cases := []struct {
		name string
		in   claims
		want string // expected profile name
	}{
		{"composite name", claims{Sub: "s1", Name: "Ada Lovelace", GivenName: "Ada"}, "Ada Lovelace"},
		{"given name fallback", claims{Sub: "s2", GivenName: "Ada"}, "Ada"},
		{"family name fallback", claims{Sub: "s3", FamilyName: "Lovelace"}, "Lovelace"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := profileFromClaims(tc.in)
			if p.Name != tc.want {
				t.Fatalf("name = %q, want %q", p.Name, tc.want)
			}
			if p.OpenID != tc.in.Sub {
				t.Fatalf("openid = %q, want %q", p.OpenID, tc.in.Sub)
			}
		})
	}
}

func TestProfileFromClaims_FullMapping(t *testing.T) {
	p := profileFromClaims(claims{
		Sub:     "sub-9",
		Name:    "Grace",
		Picture: "https://p/1.png",
		Email:   "grace@x.com",
	})
	if p.Avatar != "https://p/1.png" || p.Email != "grace@x.com" {
		t.Fatalf("unexpected mapping: %+v", p)
	}
}

func newSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

// signIDToken mints an RS256 ID token for the test issuer.
func signIDToken(t *testing.T, key *rsa.PrivateKey, extra map[string]any) string {
	t.Helper()
	mc := jwt.MapClaims{
		"iss": testIssuer,
		"aud": testClientID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		mc[k] = v
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, mc).SignedString(key)
	if err != nil {
		t.Fatalf("sign id token: %v", err)
	}
	return signed
}

// newTestHandler wires a handler whose token endpoint hands out idToken and
// whose verifier trusts key's public half.
func newTestHandler(t *testing.T, key *rsa.PrivateKey, idToken string) (*Handler, *gorm.DB) {
	t.Helper()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/token" {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{
				"access_token": "g-token",
				"token_type":   "Bearer",
				"id_token":     idToken,
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(api.Close)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := gdb.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	resolver := identity.NewResolver(identity.NewGormStore(gdb), identity.NewBootstrap(), nil)
	f := flow.New(resolver, token.NewManager("jwt-secret"))

	return &Handler{
		creds:       config.ProviderCredentials{ClientID: testClientID, ClientSecret: "csecret", RedirectURL: "http://app.test/auth/google/callback"},
		settings:    catalog.Settings{ID: "google", Enabled: true},
		stateSecret: testStateSecret,
		flow:        f,
		endpoint:    oauth2.Endpoint{AuthURL: api.URL + "/authorize", TokenURL: api.URL + "/token"},
		verifier: oidc.NewVerifier(testIssuer,
			&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}},
			&oidc.Config{ClientID: testClientID}),
	}, gdb
}

func TestCallback_RegistersFromIDToken(t *testing.T) {
	key := newSigningKey(t)
	idToken := signIDToken(t, key, map[string]any{
		"sub":     "google-sub-1",
		"name":    "Ada Lovelace",
		"picture": "https://p/ada.png",
		"email":   "ada@x.com",
	})
	h, gdb := newTestHandler(t, key, idToken)

	s, _ := state.New()
	r := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=grant&state="+s, nil)
	r.AddCookie(&http.Cookie{Name: stateCookie, Value: state.Sign(s, testStateSecret)})
	r.AddCookie(&http.Cookie{Name: flow.RedirectCookie, Value: "http://front.test"})
	w := httptest.NewRecorder()
	h.Callback(w, r)

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, body %q", w.Code, w.Body.String())
	}
	if loc := w.Result().Header.Get("Location"); !strings.HasPrefix(loc, "http://front.test/callback?token=") {
		t.Fatalf("Location = %q", loc)
	}

	var user models.User
	if err := gdb.Where("open_id = ?", "google-sub-1").First(&user).Error; err != nil {
		t.Fatalf("account not created: %v", err)
	}
	if user.Name != "Ada Lovelace" || user.Email != "ada@x.com" {
		t.Fatalf("stored account = %+v", user)
	}
}

func TestCallback_BadStateRejected(t *testing.T) {
	key := newSigningKey(t)
	h, _ := newTestHandler(t, key, signIDToken(t, key, map[string]any{"sub": "s"}))

	r := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=grant&state=forged", nil)
	r.AddCookie(&http.Cookie{Name: stateCookie, Value: state.Sign("original", testStateSecret)})
	w := httptest.NewRecorder()
	h.Callback(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCallback_ForgedIDTokenRejected(t *testing.T) {
	// ID token signed by a key the verifier does not trust.
	trusted := newSigningKey(t)
	forged := signIDToken(t, newSigningKey(t), map[string]any{"sub": "attacker"})
	h, _ := newTestHandler(t, trusted, forged)

	s, _ := state.New()
	r := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=grant&state="+s, nil)
	r.AddCookie(&http.Cookie{Name: stateCookie, Value: state.Sign(s, testStateSecret)})
	w := httptest.NewRecorder()
	h.Callback(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want verification failure", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ID token verification failed") {
		t.Fatalf("body = %q", w.Body.String())
	}
}
