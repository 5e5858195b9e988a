// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package auth

import "errors"

// Dependency errors returned by constructors.
var (
	ErrNilUserDirectory = errors.New("user directory cannot be nil")
	ErrNilSessionStore  = errors.New("session store cannot be nil")
	ErrNilHasher        = errors.New("password hasher cannot be nil")
)
