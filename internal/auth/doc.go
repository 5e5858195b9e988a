// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package auth implements login, logout, registration and session resolution.
//
// # Domain Types
//
// A Session binds the SHA-256 hash of an opaque token to an identity.Identity
// until its expiry. Sessions should be created with NewSession; direct struct
// initialization bypasses validation. The plaintext token is only ever handed
// back to the caller and is never stored.
//
// # Services
//
//   - Service - login, logout, register and session resolution
//   - Resolver - session resolution only, used by the action dispatcher
//   - Machine - the per-request authentication state machine
//   - Sweeper - background removal of expired sessions
//
// Storage is pluggable through SessionStore; see the memory, redis and
// postgres subpackages.
package auth
