package identity

import (
	"context"

	"github.com/corvuslabs/notebase/internal/db/models"
)

// Event kinds forwarded to the notification sink.
const (
	EventSignIn = "Sign In"
	EventSignUp = "Sign Up"
)

// Notifier receives best-effort sign-in/sign-up events. Implementations must
// never block the resolver and never surface errors to it.
type Notifier interface {
	Notify(event, accountName string)
}

// Resolver decides whether a profile updates an existing account, merges into
// an account found by email, or creates a new one.
type Resolver struct {
	store     Store
	bootstrap *Bootstrap
	notifier  Notifier
}

func NewResolver(store Store, bootstrap *Bootstrap, notifier Notifier) *Resolver {
	return &Resolver{store: store, bootstrap: bootstrap, notifier: notifier}
}

// Resolve maps a profile onto an account and reports whether the account was
// created by this call.
//
// Existing accounts get their display attributes overwritten with the
// profile's non-empty values; permission is preserved. New accounts get their
// permission from the bootstrap flag: the very first account in an empty
// store becomes the sole administrator.
//
// A profile without an openid is rejected with ErrInvalidProfile, except when
// an email match finds the account it belongs to — the merge path does not
// need the openid. Storage errors propagate unchanged; there is no retry at
// this layer.
func (r *Resolver) Resolve(ctx context.Context, p Profile, key MatchKey) (*models.User, bool, error) {
	existing, err := r.lookup(ctx, p, key)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		applyProfile(existing, p, key)
		if err := r.store.Update(ctx, existing); err != nil {
			return nil, false, err
		}
		r.dispatch(EventSignIn, existing.Name)
		return existing, false, nil
	}

	if p.OpenID == "" {
		return nil, false, ErrInvalidProfile
	}

	permission, err := r.bootstrap.PermissionForNewAccount(ctx, r.store)
	if err != nil {
		return nil, false, err
	}

	user := &models.User{
		OpenID:     p.OpenID,
		Name:       p.Name,
		Avatar:     p.Avatar,
		Email:      p.Email,
		Permission: permission,
	}
	if err := r.store.Insert(ctx, user); err != nil {
		return nil, false, err
	}
	r.dispatch(EventSignUp, user.Name)
	return user, true, nil
}

func (r *Resolver) lookup(ctx context.Context, p Profile, key MatchKey) (*models.User, error) {
	switch key {
	case MatchByEmail:
		if p.Email == "" {
			return nil, nil
		}
		return r.store.FindByEmail(ctx, p.Email)
	default:
		if p.OpenID == "" {
			return nil, ErrInvalidProfile
		}
		return r.store.FindByOpenID(ctx, p.OpenID)
	}
}

// applyProfile overwrites display attributes with the latest provider values.
// OpenID is only written on the openid path: an email merge must not clobber
// the identifier another provider already claimed for the account.
func applyProfile(u *models.User, p Profile, key MatchKey) {
	if p.Name != "" {
		u.Name = p.Name
	}
	if p.Avatar != "" {
		u.Avatar = p.Avatar
	}
	if p.Email != "" {
		u.Email = p.Email
	}
	if key == MatchByOpenID {
		u.OpenID = p.OpenID
	}
}

// dispatch fires the notification sink without waiting for it. Failures are
// the sink's problem; resolution is done regardless.
func (r *Resolver) dispatch(event, name string) {
	if r.notifier == nil {
		return
	}
	go r.notifier.Notify(event, name)
}
