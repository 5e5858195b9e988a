// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package postgres implements users.Repository on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/store"
	"github.com/deckhand/deckhand/internal/users"
)

// Repository stores users in the users table.
type Repository struct {
	db store.DB
}

// New creates a Repository over db.
func New(db store.DB) *Repository {
	return &Repository{db: db}
}

const selectUser = `SELECT id, email, password_hash, created_at FROM users`

// FindByEmail implements users.Repository.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, selectUser+` WHERE lower(email) = $1`, users.NormalizeEmail(email)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(apierr.UserNotFound())
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_FAILED").With("operation", "select user by email").Wrap(err)
	}
	return u, nil
}

// Get implements users.Repository.
func (r *Repository) Get(ctx context.Context, id string) (*users.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, selectUser+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(apierr.UserNotFound())
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("operation", "select user by id").With("id", id).Wrap(err)
	}
	return u, nil
}

// Create implements users.Repository. The unique index on lower(email)
// decides duplicates.
func (r *Repository) Create(ctx context.Context, email, passwordHash string) (*users.User, error) {
	u := &users.User{ID: users.NewID(), Email: email, PasswordHash: passwordHash}

	err := r.db.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, u.ID, u.Email, u.PasswordHash).Scan(&u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, oops.Code("USER_DUPLICATE_EMAIL").
				With("constraint", pgErr.ConstraintName).
				Wrap(apierr.DuplicateField("email"))
		}
		return nil, oops.Code("USER_CREATE_FAILED").With("operation", "insert user").Wrap(err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (*users.User, error) {
	var u users.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

var _ users.Repository = (*Repository)(nil)
