// Package httpapi holds the authenticated JSON surface: the session
// middleware, the profile endpoint, and per-client rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/corvuslabs/notebase/internal/auth/flow"
	"github.com/corvuslabs/notebase/internal/auth/token"
	"github.com/corvuslabs/notebase/internal/db/models"
)

type contextKey string

const userKey contextKey = "user"

// UserFrom returns the authenticated account stored by Authenticator, or nil.
func UserFrom(ctx context.Context) *models.User {
	user, _ := ctx.Value(userKey).(*models.User)
	return user
}

// Authenticator resolves the session credential on each request and attaches
// the account to the context. Requests without a valid credential pass
// through unauthenticated; handlers that need an account check UserFrom.
func Authenticator(tokens *token.Manager, db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := credentialFrom(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			userID, err := tokens.Verify(raw)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			var user models.User
			err = db.WithContext(r.Context()).First(&user, userID).Error
			if err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					http.Error(w, "failed to load account", http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, &user)))
		})
	}
}

// RequireUser rejects unauthenticated requests before they reach the handler.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFrom(r.Context()) == nil {
			http.Error(w, "Not login", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// credentialFrom accepts the credential as a bearer header or the token
// cookie set during the OAuth callback.
func credentialFrom(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if raw, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return raw
		}
		return ""
	}
	if c, err := r.Cookie(flow.TokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// clientIP strips the port, preferring the first proxy-forwarded address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
