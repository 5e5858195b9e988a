// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package identity holds the value types that describe who is calling.
//
// An Identity is only ever produced by the auth package, either by verifying
// a Credential against stored user data or by resolving an existing session.
// Transports carry it between trusted processes; no code path builds one from
// request input.
package identity

import "log/slog"

// Identity is the sanitized, password-free projection of a user record.
type Identity struct {
	ID    string `json:"id" jsonschema:"minLength=1"`
	Email string `json:"email" jsonschema:"minLength=1"`
}

// IsZero reports whether the identity is empty.
func (i Identity) IsZero() bool {
	return i.ID == "" && i.Email == ""
}

// LogValue implements slog.LogValuer.
func (i Identity) LogValue() slog.Value {
	return slog.GroupValue(slog.String("id", i.ID), slog.String("email", i.Email))
}

// Credential is held only for the duration of a login or registration attempt.
type Credential struct {
	Email    string
	Password string
}

// String never includes the password.
func (c Credential) String() string {
	return "Credential{" + c.Email + " ********}"
}

// LogValue implements slog.LogValuer and redacts the password.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(slog.String("email", c.Email))
}

// GoString keeps the password out of %#v output.
func (c Credential) GoString() string {
	return c.String()
}
