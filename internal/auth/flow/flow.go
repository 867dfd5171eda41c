// Package flow completes provider callbacks: it resolves the normalized
// profile into an account, mints a session credential, and redirects the
// browser back to the frontend. The three provider adapters share this logic
// instead of each repeating it.
package flow

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/corvuslabs/notebase/internal/auth/state"
	"github.com/corvuslabs/notebase/internal/auth/token"
	"github.com/corvuslabs/notebase/internal/db/models"
	"github.com/corvuslabs/notebase/internal/identity"
	"github.com/corvuslabs/notebase/internal/metrics"
)

// Cookie names shared across the adapters.
const (
	TokenCookie    = "token"
	RedirectCookie = "redirect_to"
)

// Flow ties the resolver and session issuer together for the HTTP layer.
type Flow struct {
	resolver *identity.Resolver
	tokens   *token.Manager
}

func New(resolver *identity.Resolver, tokens *token.Manager) *Flow {
	return &Flow{resolver: resolver, tokens: tokens}
}

// Finish resolves the profile and redirects to
// <redirect_host>/callback?token=<credential>. The redirect host comes from
// the redirect_to cookie when set, otherwise from the request referrer.
func (f *Flow) Finish(w http.ResponseWriter, r *http.Request, provider string, p identity.Profile, key identity.MatchKey) {
	user, _, err := f.Resolve(w, r, provider, p, key)
	if err != nil {
		return // Resolve already wrote the response
	}

	signed, err := f.Issue(w, user.ID)
	if err != nil {
		return
	}
	Redirect(w, r, signed)
}

// Redirect sends the browser back to the frontend callback with the signed
// credential in the query string.
func Redirect(w http.ResponseWriter, r *http.Request, signed string) {
	http.Redirect(w, r, RedirectHost(r)+"/callback?token="+url.QueryEscape(signed), http.StatusTemporaryRedirect)
}

// Resolve runs the identity resolver and maps its errors onto HTTP statuses.
// On error the response has already been written.
func (f *Flow) Resolve(w http.ResponseWriter, r *http.Request, provider string, p identity.Profile, key identity.MatchKey) (*models.User, bool, error) {
	user, created, err := f.resolver.Resolve(r.Context(), p, key)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidProfile):
			http.Error(w, "OpenID is required", http.StatusBadRequest)
		case errors.Is(err, identity.ErrRegistrationFailed):
			http.Error(w, "Failed to register", http.StatusInternalServerError)
		default:
			log.Printf("auth: %s resolution failed: %v", provider, err)
			http.Error(w, "resolution failed", http.StatusInternalServerError)
		}
		return nil, false, err
	}
	if created {
		metrics.SignUps.WithLabelValues(provider).Inc()
	} else {
		metrics.SignIns.WithLabelValues(provider).Inc()
	}
	return user, created, nil
}

// Issue mints a session credential, sets the token cookie, and returns the
// signed value. Exposed separately for adapters that do extra work between
// resolution and redirect (the Notion workspace connect).
func (f *Flow) Issue(w http.ResponseWriter, userID uint) (string, error) {
	signed, _, err := f.tokens.Issue(userID)
	if err != nil {
		http.Error(w, "failed to issue credential", http.StatusInternalServerError)
		return "", err
	}
	state.SetCookie(w, TokenCookie, signed, token.TTL)
	return signed, nil
}

// RedirectHost picks the frontend origin to send the browser back to: the
// redirect_to cookie when present, else the referrer without its trailing
// slash, else "".
func RedirectHost(r *http.Request) string {
	if host := state.Cookie(r, RedirectCookie); host != "" {
		return host
	}
	return strings.TrimSuffix(r.Referer(), "/")
}

// CallbackURL builds the provider callback URL from the inbound request, for
// deployments that did not configure an explicit redirect URL.
func CallbackURL(r *http.Request, provider string) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/auth/" + provider + "/callback"
}

// CaptureReferer stores the login page's origin in the redirect_to cookie so
// the callback can route the browser back to the right frontend.
func CaptureReferer(w http.ResponseWriter, r *http.Request) {
	referer := r.Referer()
	if referer == "" {
		return
	}
	if u, err := url.Parse(referer); err == nil && u.Host != "" {
		state.SetCookie(w, RedirectCookie, u.Scheme+"://"+u.Host, token.TTL)
	}
}
