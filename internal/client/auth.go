// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package client

import (
	"context"

	"github.com/samber/oops"

	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/auth"
	authactions "github.com/deckhand/deckhand/internal/auth/actions"
	"github.com/deckhand/deckhand/internal/contract"
	"github.com/deckhand/deckhand/internal/gateway"
	"github.com/deckhand/deckhand/internal/identity"
)

// AuthState is who the gateway believes the client is. User is nil while
// anonymous; Error holds the failure of the last mutation.
type AuthState struct {
	User  *identity.Identity
	Error *gateway.ErrorBody
}

// AuthClient applies auth mutations against the gateway. The session lives
// in the cookie jar of the underlying Client.
type AuthClient struct {
	login    *Request[authactions.LoginParams, identity.Identity]
	logout   *Request[contract.Empty, authactions.Message]
	register *Request[authactions.RegisterParams, identity.Identity]
	me       *Request[contract.Empty, identity.Identity]
	obs      observable[AuthState]
}

// NewAuthClient creates an anonymous AuthClient on c.
func NewAuthClient(c *Client) (*AuthClient, error) {
	login, err := Login(c)
	if err != nil {
		return nil, err
	}
	logout, err := Logout(c)
	if err != nil {
		return nil, err
	}
	register, err := Register(c)
	if err != nil {
		return nil, err
	}
	me, err := Me(c)
	if err != nil {
		return nil, err
	}
	return &AuthClient{login: login, logout: logout, register: register, me: me}, nil
}

// Apply runs mutation. Login and register need cred; logout and
// resolve-current ignore it. MutationResolveCurrent asks the gateway who the
// current session belongs to.
func (a *AuthClient) Apply(ctx context.Context, mutation auth.Mutation, cred *identity.Credential) (AuthState, error) {
	defer a.obs.begin()()

	prev := a.obs.get()
	next := AuthState{User: prev.User}

	switch mutation {
	case auth.MutationLogin:
		if cred == nil {
			return prev, errNoCredential(mutation)
		}
		s, err := a.login.Exec(ctx, &authactions.LoginParams{Email: cred.Email, Password: cred.Password})
		if err == nil {
			next.User = s.Data
		}
		next.Error = s.Error
		return a.commit(next, err)

	case auth.MutationLogout:
		s, err := a.logout.Exec(ctx, &contract.Empty{})
		if err == nil {
			next.User = nil
		}
		next.Error = s.Error
		return a.commit(next, err)

	case auth.MutationRegister:
		if cred == nil {
			return prev, errNoCredential(mutation)
		}
		s, err := a.register.Exec(ctx, &authactions.RegisterParams{Email: cred.Email, Password: cred.Password})
		next.Error = s.Error
		return a.commit(next, err)

	case auth.MutationResolveCurrent:
		s, err := a.me.Exec(ctx, nil)
		next.Error = s.Error
		switch {
		case err == nil:
			next.User = s.Data
		case apierr.KindOf(err) != apierr.KindUnhandled:
			next.User = nil
		}
		return a.commit(next, err)

	default:
		return prev, oops.Code("CLIENT_UNKNOWN_MUTATION").
			With("mutation", mutation.String()).
			Errorf("unknown auth mutation")
	}
}

func (a *AuthClient) commit(s AuthState, err error) (AuthState, error) {
	a.obs.set(s)
	return s, err
}

func errNoCredential(mutation auth.Mutation) error {
	return oops.Code("CLIENT_CREDENTIALS_REQUIRED").
		With("mutation", mutation.String()).
		Errorf("%s requires credentials", mutation)
}

// State returns the current auth state.
func (a *AuthClient) State() AuthState { return a.obs.get() }

// Fetching reports whether a mutation is in flight.
func (a *AuthClient) Fetching() bool { return a.obs.fetching() }

// Observe calls fn after every mutation and returns a function that stops it.
func (a *AuthClient) Observe(fn func(AuthState)) func() {
	return a.obs.observe(fn)
}
