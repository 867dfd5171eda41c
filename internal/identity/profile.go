// Package identity resolves normalized OAuth profiles into persisted accounts.
// It owns the lookup-or-insert flow, the cross-provider merge-by-email path,
// and the first-account administrator bootstrap.
package identity

// Profile is the provider-agnostic shape every adapter reduces a callback to.
// OpenID is the provider-issued opaque identifier; the remaining fields are
// optional display attributes.
type Profile struct {
	OpenID string
	Name   string
	Avatar string
	Email  string
}

// MatchKey selects which profile field is authoritative when looking up an
// existing account. Adapters declare it explicitly; the resolver never falls
// back from one key to the other, so an email match and an openid match can
// never silently disagree.
type MatchKey int

const (
	// MatchByOpenID is the primary path (Google, GitHub).
	MatchByOpenID MatchKey = iota
	// MatchByEmail serves providers that only guarantee email uniqueness (Notion).
	MatchByEmail
)
