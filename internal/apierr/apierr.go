// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package apierr defines the closed error taxonomy shared by every Deckhand
// component and the classification that maps arbitrary errors onto it.
//
// Every error that leaves an action boundary is a *Error carrying one Kind.
// Its wire shape is APIError: {code, type, retryable}.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Kind is one entry of the error taxonomy.
type Kind int

// Taxonomy kinds. KindUnhandled is the zero value so an unclassified error
// is never mistaken for a client error.
const (
	KindUnhandled Kind = iota
	KindInvalidCredentials
	KindUnauthorized
	KindUserNotFound
	KindDuplicateField
	KindValidation
)

// APIError is the single error representation crossing the system boundary.
type APIError struct {
	Code      int    `json:"code"`
	Type      string `json:"type"`
	Retryable bool   `json:"retryable"`
}

func (e APIError) String() string {
	return fmt.Sprintf("%s (%d)", e.Type, e.Code)
}

// Error type names.
const (
	TypeInvalidCredentials = "INVALID_CREDENTIALS"
	TypeUnauthorized       = "UNAUTHORIZED"
	TypeUserNotFound       = "USER_NOT_FOUND"
	TypeDuplicateField     = "DUPLICATE_FIELD"
	TypeValidation         = "VALIDATION_ERROR"
	TypeUnhandled          = "UNHANDLED"
)

var table = map[Kind]APIError{
	KindInvalidCredentials: {Code: 401, Type: TypeInvalidCredentials, Retryable: false},
	KindUnauthorized:       {Code: 401, Type: TypeUnauthorized, Retryable: false},
	KindUserNotFound:       {Code: 404, Type: TypeUserNotFound, Retryable: false},
	KindDuplicateField:     {Code: 422, Type: TypeDuplicateField, Retryable: false},
	KindValidation:         {Code: 422, Type: TypeValidation, Retryable: false},
	KindUnhandled:          {Code: 500, Type: TypeUnhandled, Retryable: true},
}

// API returns the wire representation of the kind.
func (k Kind) API() APIError {
	if e, ok := table[k]; ok {
		return e
	}
	return table[KindUnhandled]
}

func (k Kind) String() string {
	return k.API().Type
}

// Sentinels, one per client-facing kind. Errors built by the constructors
// below wrap these so errors.Is works across oops wrapping.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateField     = errors.New("duplicate field")
	ErrValidation         = errors.New("validation failed")
)

// Violation is a single field-level schema failure.
type Violation struct {
	Field   string `json:"field"`
	Keyword string `json:"keyword,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	field := v.Field
	if field == "" {
		field = "/"
	}
	return field + ": " + v.Message
}

// Error is a classified error. The cause is kept for logging and is never
// serialized to callers.
type Error struct {
	Kind       Kind
	Violations []Violation
	cause      error
}

// New creates a classified error of the given kind wrapping cause.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

func (e *Error) Error() string {
	msg := e.Kind.API().Type
	if len(e.Violations) > 0 {
		parts := make([]string, 0, len(e.Violations))
		for _, v := range e.Violations {
			parts = append(parts, v.String())
		}
		msg += ": " + strings.Join(parts, "; ")
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.cause }

// API returns the wire representation.
func (e *Error) API() APIError { return e.Kind.API() }

// Retryable reports whether the caller may re-issue the call.
func (e *Error) Retryable() bool { return e.Kind.API().Retryable }

// InvalidCredentials is returned when a login attempt fails, whatever the cause.
func InvalidCredentials() error {
	return oops.Code(TypeInvalidCredentials).Wrap(ErrInvalidCredentials)
}

// Unauthorized is returned when an action requires an identity and none resolved.
func Unauthorized() error {
	return oops.Code(TypeUnauthorized).Wrap(ErrUnauthorized)
}

// UserNotFound is returned when a lookup by id or email found nothing.
func UserNotFound() error {
	return oops.Code(TypeUserNotFound).Wrap(ErrUserNotFound)
}

// DuplicateField is returned when a uniqueness constraint is violated.
func DuplicateField(field string) error {
	return oops.Code(TypeDuplicateField).With("field", field).Wrap(ErrDuplicateField)
}

// Validation is returned when input failed schema validation.
func Validation(violations []Violation) error {
	return &Error{Kind: KindValidation, Violations: violations, cause: ErrValidation}
}

type rule struct {
	kind     Kind
	sentinel error
}

// rules is evaluated in order; the first match wins.
var rules = []rule{
	{KindInvalidCredentials, ErrInvalidCredentials},
	{KindUnauthorized, ErrUnauthorized},
	{KindUserNotFound, ErrUserNotFound},
	{KindDuplicateField, ErrDuplicateField},
	{KindValidation, ErrValidation},
}

// Classify maps err onto the taxonomy. Already classified errors are returned
// unchanged; anything unmatched becomes KindUnhandled.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return New(KindUnhandled, err)
	}

	var code any
	if oopsErr, ok := oops.AsOops(err); ok {
		code = oopsErr.Code()
	}

	for _, r := range rules {
		if errors.Is(err, r.sentinel) || code == any(r.kind.API().Type) {
			return New(r.kind, err)
		}
	}
	return New(KindUnhandled, err)
}

// FromAPI rebuilds a classified error from its wire form, e.g. after a remote
// call. Unknown types map to KindUnhandled.
func FromAPI(e APIError, violations []Violation) *Error {
	for kind, api := range table {
		if api.Type == e.Type {
			return &Error{Kind: kind, Violations: violations, cause: sentinelFor(kind)}
		}
	}
	return New(KindUnhandled, fmt.Errorf("remote error %s", e))
}

func sentinelFor(kind Kind) error {
	for _, r := range rules {
		if r.kind == kind {
			return r.sentinel
		}
	}
	return nil
}

// KindOf reports the taxonomy kind of err.
func KindOf(err error) Kind {
	if c := Classify(err); c != nil {
		return c.Kind
	}
	return KindUnhandled
}
