package identity

import "errors"

var (
	// ErrInvalidProfile marks a profile missing its required openid.
	ErrInvalidProfile = errors.New("identity: profile has no openid")

	// ErrRegistrationFailed marks an insert that produced no row or hit a
	// uniqueness constraint (two concurrent registrations for the same
	// identity). Not retried.
	ErrRegistrationFailed = errors.New("identity: registration failed")
)
