// Package token mints and verifies the signed session credentials handed to
// clients after a successful provider callback.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TTL is the fixed credential lifetime.
const TTL = 7 * 24 * time.Hour

var ErrInvalidToken = errors.New("token: invalid or expired credential")

// Manager signs and verifies session tokens with a shared HMAC secret.
type Manager struct {
	secret []byte
}

func NewManager(secret string) *Manager {
	return &Manager{secret: []byte(secret)}
}

// Issue returns a signed credential for the account and its wall-clock expiry.
func (m *Manager) Issue(userID uint) (string, time.Time, error) {
	return m.issueAt(userID, time.Now())
}

func (m *Manager) issueAt(userID uint, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(TTL)
	claims := jwt.MapClaims{
		"id":  userID,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify extracts the account id embedded in a credential.
func (m *Manager) Verify(raw string) (uint, error) {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	id, ok := claims["id"].(float64)
	if !ok || id <= 0 {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}
