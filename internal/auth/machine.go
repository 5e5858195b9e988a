// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/identity"
)

// State is a position in the authentication lifecycle of one request.
type State int

// Authentication states.
const (
	StateAnonymous State = iota
	StateAuthenticating
	StateAuthenticated
	StateRegistering
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRegistering:
		return "registering"
	default:
		return "unknown"
	}
}

// Mutation selects the transition Apply performs.
type Mutation int

// Mutations.
const (
	MutationLogin Mutation = iota + 1
	MutationLogout
	MutationRegister
	MutationResolveCurrent
)

func (m Mutation) String() string {
	switch m {
	case MutationLogin:
		return "login"
	case MutationLogout:
		return "logout"
	case MutationRegister:
		return "register"
	case MutationResolveCurrent:
		return "resolveCurrent"
	default:
		return "unknown"
	}
}

// Machine tracks the authentication state of a single request. It is not
// safe for concurrent use and must not outlive the request.
type Machine struct {
	svc      *Service
	state    State
	token    string
	identity *identity.Identity
}

// NewMachine starts a machine in StateAnonymous holding the token the caller
// presented, which may be empty.
func (s *Service) NewMachine(token string) *Machine {
	return &Machine{svc: s, state: StateAnonymous, token: token}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Token returns the session token the caller should hold after the last
// transition. It is empty when no session is held.
func (m *Machine) Token() string { return m.token }

// Identity returns the resolved identity, or nil when anonymous.
func (m *Machine) Identity() *identity.Identity { return m.identity }

// Apply performs one transition. Login and register require cred.
//
//	login:          S -> Authenticating -> Authenticated | S
//	logout:         any -> Anonymous
//	register:       S -> Registering -> S
//	resolveCurrent: any -> Authenticated | Anonymous
//
// A successful login while holding a session replaces that session. A failed
// login leaves it in place.
func (m *Machine) Apply(ctx context.Context, mutation Mutation, cred *identity.Credential) (identity.Identity, error) {
	switch mutation {
	case MutationLogin:
		return m.login(ctx, cred)
	case MutationLogout:
		return identity.Identity{}, m.logout(ctx)
	case MutationRegister:
		return m.register(ctx, cred)
	case MutationResolveCurrent:
		return m.resolve(ctx)
	default:
		return identity.Identity{}, oops.Code("AUTH_UNKNOWN_MUTATION").
			With("mutation", int(mutation)).
			Errorf("unknown auth mutation")
	}
}

func (m *Machine) login(ctx context.Context, cred *identity.Credential) (identity.Identity, error) {
	if cred == nil {
		return identity.Identity{}, missingCredential()
	}

	prior := m.state
	m.state = StateAuthenticating
	session, token, err := m.svc.Login(ctx, *cred)
	if err != nil {
		m.state = prior
		return identity.Identity{}, err
	}

	if m.token != "" {
		if err := m.svc.Logout(ctx, m.token); err != nil {
			// The held session is still live; drop the new one instead.
			if revokeErr := m.svc.Logout(ctx, token); revokeErr != nil {
				err = errors.Join(err, revokeErr)
			}
			m.state = prior
			return identity.Identity{}, err
		}
	}

	m.state = StateAuthenticated
	m.token = token
	id := session.Identity
	m.identity = &id
	return id, nil
}

func (m *Machine) logout(ctx context.Context) error {
	token := m.token
	m.state = StateAnonymous
	m.token = ""
	m.identity = nil
	return m.svc.Logout(ctx, token)
}

func (m *Machine) register(ctx context.Context, cred *identity.Credential) (identity.Identity, error) {
	if cred == nil {
		return identity.Identity{}, missingCredential()
	}

	prior := m.state
	m.state = StateRegistering
	defer func() { m.state = prior }()

	return m.svc.Register(ctx, *cred)
}

func (m *Machine) resolve(ctx context.Context) (identity.Identity, error) {
	id, err := m.svc.ResolveCurrent(ctx, m.token)
	if err != nil {
		m.state = StateAnonymous
		m.identity = nil
		if apierr.KindOf(err) == apierr.KindUnauthorized {
			m.token = ""
		}
		return identity.Identity{}, err
	}
	m.state = StateAuthenticated
	m.identity = &id
	return id, nil
}

func missingCredential() error {
	return apierr.Validation([]apierr.Violation{{Field: "/", Keyword: "required", Message: "credential is required"}})
}
