// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package actions exposes authentication as the auth.* actions. Each call
// drives a fresh auth.Machine seeded with the caller's session token and
// reports session changes back through the invocation metadata.
package actions

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/deckhand/deckhand/internal/action"
	"github.com/deckhand/deckhand/internal/auth"
	"github.com/deckhand/deckhand/internal/contract"
	"github.com/deckhand/deckhand/internal/identity"
)

// Action names.
const (
	Login    = "auth.login"
	Logout   = "auth.logout"
	Register = "auth.register"
)

// Users actions the auth actions call through the directory.
const (
	usersFind   = "users.find"
	usersCreate = "users.create"
)

// LoginParams are the auth.login params. Any non-empty password is accepted
// here so that a short wrong password fails as bad credentials.
type LoginParams struct {
	Email    string `json:"email" jsonschema:"format=email"`
	Password string `json:"password" jsonschema:"minLength=1"`
}

// RegisterParams are the auth.register params.
type RegisterParams struct {
	Email    string `json:"email" jsonschema:"format=email"`
	Password string `json:"password" jsonschema:"minLength=8"`
}

// Message is a plain acknowledgement.
type Message struct {
	Message string `json:"message" jsonschema:"minLength=1"`
}

// RegisterActions adds the auth.* actions to registry.
func RegisterActions(registry *action.Registry, svc *auth.Service, logger *slog.Logger) error {
	if registry == nil {
		return action.ErrNilRegistry
	}
	if svc == nil {
		return oops.Code("AUTH_ACTIONS_NO_SERVICE").Errorf("auth service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := []contract.Option{contract.WithLogger(logger)}

	login, err := contract.Wrap(Login, loginHandler(svc), opts...)
	if err != nil {
		return err
	}
	logout, err := contract.Wrap(Logout, logoutHandler(svc), opts...)
	if err != nil {
		return err
	}
	register, err := contract.Wrap(Register, registerHandler(svc), opts...)
	if err != nil {
		return err
	}

	for _, entry := range []action.Entry{
		{Action: login, Dependencies: []string{usersFind}},
		{Action: logout},
		{Action: register, Dependencies: []string{usersCreate}},
	} {
		if err := registry.Register(entry); err != nil {
			return err
		}
	}
	return nil
}

func loginHandler(svc *auth.Service) contract.Handler[LoginParams, identity.Identity] {
	return func(ctx context.Context, req *contract.Request[LoginParams]) (identity.Identity, error) {
		m := svc.NewMachine(req.Meta.SessionToken)
		id, err := m.Apply(ctx, auth.MutationLogin, &identity.Credential{
			Email:    req.Params.Email,
			Password: req.Params.Password,
		})
		if err != nil {
			return identity.Identity{}, err
		}

		req.Meta.IssuedToken = m.Token()
		return id, nil
	}
}

func logoutHandler(svc *auth.Service) contract.Handler[contract.Empty, Message] {
	return func(ctx context.Context, req *contract.Request[contract.Empty]) (Message, error) {
		m := svc.NewMachine(req.Meta.SessionToken)
		req.Meta.SessionEnded = true
		if _, err := m.Apply(ctx, auth.MutationLogout, nil); err != nil {
			return Message{}, err
		}
		return Message{Message: "OK"}, nil
	}
}

func registerHandler(svc *auth.Service) contract.Handler[RegisterParams, identity.Identity] {
	return func(ctx context.Context, req *contract.Request[RegisterParams]) (identity.Identity, error) {
		m := svc.NewMachine(req.Meta.SessionToken)
		return m.Apply(ctx, auth.MutationRegister, &identity.Credential{
			Email:    req.Params.Email,
			Password: req.Params.Password,
		})
	}
}
