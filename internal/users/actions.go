// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package users

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/deckhand/deckhand/internal/action"
	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/contract"
	"github.com/deckhand/deckhand/internal/identity"
)

// Action names.
const (
	Find   = "users.find"
	Get    = "users.get"
	Create = "users.create"
	Me     = "users.me"
)

// Names lists every users.* action, e.g. for registering remote proxies.
var Names = []string{Find, Get, Create, Me}

// PasswordField is the response field the users after-hook strips.
const PasswordField = "password"

// View is the users.find, users.get and users.create response. Password
// carries the stored hash and is removed before the response leaves the
// service unless a trusted caller asked for it.
type View struct {
	ID       string `json:"id" jsonschema:"minLength=1"`
	Email    string `json:"email" jsonschema:"minLength=1"`
	Password string `json:"password,omitempty"`
}

func viewOf(u *User) View {
	return View{ID: u.ID, Email: u.Email, Password: u.PasswordHash}
}

// FindParams are the users.find params.
type FindParams struct {
	Email string `json:"email" jsonschema:"format=email"`
}

// GetParams are the users.get params.
type GetParams struct {
	ID string `json:"id" jsonschema:"minLength=1"`
}

// CreateParams are the users.create params. Password is already hashed.
type CreateParams struct {
	Email    string `json:"email" jsonschema:"format=email"`
	Password string `json:"password" jsonschema:"minLength=1"`
}

// RegisterActions adds the users.* actions to registry.
func RegisterActions(registry *action.Registry, repo Repository, logger *slog.Logger) error {
	if registry == nil {
		return action.ErrNilRegistry
	}
	if repo == nil {
		return oops.Code("USERS_NO_REPOSITORY").Errorf("user repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := []contract.Option{contract.WithLogger(logger)}

	find, err := contract.Wrap(Find, findHandler(repo), opts...)
	if err != nil {
		return err
	}
	get, err := contract.Wrap(Get, getHandler(repo), opts...)
	if err != nil {
		return err
	}
	create, err := contract.Wrap(Create, createHandler(repo), opts...)
	if err != nil {
		return err
	}
	me, err := contract.Wrap(Me, meHandler(repo), append(opts, contract.WithErrorMapper(goneAsUnauthorized))...)
	if err != nil {
		return err
	}

	for _, entry := range []action.Entry{
		{Action: find, Internal: true},
		{Action: get, Internal: true},
		{Action: create, Internal: true},
		{Action: me, Auth: true},
	} {
		if err := registry.Register(entry); err != nil {
			return err
		}
	}
	return nil
}

// StripPassword is the after-hook the dispatcher runs on users.* responses.
func StripPassword() action.Hook {
	return action.StripFields(PasswordField)
}

func findHandler(repo Repository) contract.Handler[FindParams, View] {
	return func(ctx context.Context, req *contract.Request[FindParams]) (View, error) {
		u, err := repo.FindByEmail(ctx, req.Params.Email)
		if err != nil {
			return View{}, err
		}
		return viewOf(u), nil
	}
}

func getHandler(repo Repository) contract.Handler[GetParams, View] {
	return func(ctx context.Context, req *contract.Request[GetParams]) (View, error) {
		u, err := repo.Get(ctx, req.Params.ID)
		if err != nil {
			return View{}, err
		}
		return viewOf(u), nil
	}
}

func createHandler(repo Repository) contract.Handler[CreateParams, View] {
	return func(ctx context.Context, req *contract.Request[CreateParams]) (View, error) {
		u, err := repo.Create(ctx, req.Params.Email, req.Params.Password)
		if err != nil {
			return View{}, err
		}
		return viewOf(u), nil
	}
}

func meHandler(repo Repository) contract.Handler[contract.Empty, identity.Identity] {
	return func(ctx context.Context, req *contract.Request[contract.Empty]) (identity.Identity, error) {
		if req.Identity == nil {
			return identity.Identity{}, apierr.Unauthorized()
		}
		u, err := repo.Get(ctx, req.Identity.ID)
		if err != nil {
			return identity.Identity{}, err
		}
		return u.Identity(), nil
	}
}

// goneAsUnauthorized treats a session whose user has been removed as no
// session at all.
func goneAsUnauthorized(err error) error {
	if errors.Is(err, apierr.ErrUserNotFound) {
		return apierr.Unauthorized()
	}
	return err
}
