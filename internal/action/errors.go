// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package action

import (
	"errors"

	"github.com/samber/oops"

	"github.com/deckhand/deckhand/internal/apierr"
)

// Error codes for registry and dispatch failures.
const (
	CodeInvalidName       = "ACTION_INVALID_NAME"
	CodeDuplicate         = "ACTION_DUPLICATE"
	CodeRegistrySealed    = "ACTION_REGISTRY_SEALED"
	CodeRegistryOpen      = "ACTION_REGISTRY_NOT_SEALED"
	CodeMissingDependency = "ACTION_MISSING_DEPENDENCY"
	CodeUnknownAction     = "ACTION_UNKNOWN"
	CodeNoResolver        = "ACTION_NO_IDENTITY_RESOLVER"
	CodeHookFailed        = "ACTION_HOOK_FAILED"
)

// ErrNilRegistry is returned when a dispatcher is built without a registry.
var ErrNilRegistry = errors.New("registry cannot be nil")

// ErrNilTransport is returned when remote actions are registered without a transport.
var ErrNilTransport = errors.New("transport cannot be nil")

func errInvalidName(name string) error {
	return oops.Code(CodeInvalidName).
		With("action", name).
		Errorf("action name %q must have the form service.action", name)
}

func errDuplicate(name string) error {
	return oops.Code(CodeDuplicate).
		With("action", name).
		Errorf("action %s is already registered", name)
}

func errSealed(name string) error {
	return oops.Code(CodeRegistrySealed).
		With("action", name).
		Errorf("registry is sealed")
}

func errMissingDependency(name, dep string) error {
	return oops.Code(CodeMissingDependency).
		With("action", name).
		With("dependency", dep).
		Errorf("action %s depends on unregistered action %s", name, dep)
}

// Dispatch-time programming errors are unhandled, never the caller's fault.

func errUnknownAction(name string) error {
	return apierr.New(apierr.KindUnhandled, oops.Code(CodeUnknownAction).
		With("action", name).
		Errorf("unknown action %s", name))
}

func errNotSealed(name string) error {
	return apierr.New(apierr.KindUnhandled, oops.Code(CodeRegistryOpen).
		With("action", name).
		Errorf("registry must be sealed before dispatch"))
}

func errNoResolver(name string) error {
	return apierr.New(apierr.KindUnhandled, oops.Code(CodeNoResolver).
		With("action", name).
		Errorf("action requires an identity but no resolver is configured"))
}
