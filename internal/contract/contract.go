// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package contract wraps action handlers with a declared input and output
// schema. Every invocation is validated in both directions and every failure
// leaves as an apierr.Error.
package contract

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/samber/oops"

	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/identity"
	"github.com/deckhand/deckhand/pkg/errutil"
)

// Meta carries call metadata alongside the params. Some fields flow back to
// the caller after the action returns.
type Meta struct {
	// IncludePassword opts a trusted internal caller out of secret stripping.
	// Dispatchers clear it on external calls.
	IncludePassword bool `json:"includePassword,omitempty"`

	// SessionToken is the opaque token presented by the caller.
	SessionToken string `json:"sessionToken,omitempty"`

	// IssuedToken is set by an action that created a session.
	IssuedToken string `json:"issuedToken,omitempty"`

	// SessionEnded is set by an action that destroyed the caller's session.
	SessionEnded bool `json:"sessionEnded,omitempty"`
}

// Invocation is the per-call context handed through the dispatcher. A new
// value is created for every request; nothing in it is shared.
type Invocation struct {
	Action   string
	Identity *identity.Identity
	Params   json.RawMessage
	Meta     Meta
	Caller   Caller

	// Internal reports whether the call originated inside the trust boundary
	// (a nested call or a trusted peer). Only dispatchers set it.
	Internal bool
}

// Caller invokes another action by name.
type Caller interface {
	Call(ctx context.Context, name string, inv *Invocation) (json.RawMessage, error)
}

// Action is a named, schema-contracted unit of request handling.
type Action interface {
	Name() string
	Input() *Schema
	Output() *Schema
	Invoke(ctx context.Context, inv *Invocation) (json.RawMessage, error)
}

// Request is what a typed handler receives.
type Request[In any] struct {
	Params   In
	Identity *identity.Identity
	Meta     *Meta
	Caller   Caller
}

// Empty is the params or response type of an action that takes or returns
// nothing.
type Empty struct{}

// Handler is a typed action implementation.
type Handler[In, Out any] func(ctx context.Context, req *Request[In]) (Out, error)

// ErrorMapper rewrites a handler error before classification.
type ErrorMapper func(error) error

type options struct {
	mapErr ErrorMapper
	logger *slog.Logger
}

// Option configures Wrap.
type Option func(*options)

// WithErrorMapper sets the per-action error mapping applied to handler errors.
func WithErrorMapper(fn ErrorMapper) Option {
	return func(o *options) {
		o.mapErr = fn
	}
}

// WithLogger sets the logger used on error paths.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

type wrapped[In, Out any] struct {
	name    string
	input   *Schema
	output  *Schema
	handler Handler[In, Out]
	mapErr  ErrorMapper
	logger  *slog.Logger
}

// Wrap builds an Action from a typed handler. The input schema is reflected
// from In (undeclared properties ignored), the output schema from Out
// (undeclared properties rejected).
func Wrap[In, Out any](name string, handler Handler[In, Out], opts ...Option) (Action, error) {
	if name == "" {
		return nil, oops.Code("CONTRACT_INVALID_NAME").Errorf("action name cannot be empty")
	}
	if handler == nil {
		return nil, oops.Code("CONTRACT_NIL_HANDLER").With("action", name).Errorf("handler is required")
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	input, err := SchemaFor[In](name+".params", Lenient())
	if err != nil {
		return nil, oops.With("action", name).Wrap(err)
	}
	output, err := SchemaFor[Out](name+".response", Strict())
	if err != nil {
		return nil, oops.With("action", name).Wrap(err)
	}

	return &wrapped[In, Out]{
		name:    name,
		input:   input,
		output:  output,
		handler: handler,
		mapErr:  o.mapErr,
		logger:  o.logger,
	}, nil
}

func (w *wrapped[In, Out]) Name() string    { return w.name }
func (w *wrapped[In, Out]) Input() *Schema  { return w.input }
func (w *wrapped[In, Out]) Output() *Schema { return w.output }

// Invoke validates params, runs the handler and validates its response.
func (w *wrapped[In, Out]) Invoke(ctx context.Context, inv *Invocation) (json.RawMessage, error) {
	logger := w.logger.With("action", w.name)

	params := inv.Params
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage("{}")
	}

	var in In
	if violations := w.input.Bind(params, &in); len(violations) > 0 {
		logger.InfoContext(ctx, "action params rejected",
			"kind", apierr.KindValidation.String(),
			"violations", violations,
		)
		return nil, apierr.Validation(violations)
	}

	out, err := w.handler(ctx, &Request[In]{
		Params:   in,
		Identity: inv.Identity,
		Meta:     &inv.Meta,
		Caller:   inv.Caller,
	})
	if err != nil {
		if w.mapErr != nil {
			err = w.mapErr(err)
		}
		classified := apierr.Classify(err)
		if classified.Kind == apierr.KindUnhandled {
			errutil.LogErrorContext(ctx, logger, "action failed", err, "kind", classified.Kind.String())
		} else {
			logger.WarnContext(ctx, "action failed", "kind", classified.Kind.String(), "error", err)
		}
		return nil, classified
	}

	raw, err := json.Marshal(out)
	if err != nil {
		err = oops.Code("CONTRACT_RESPONSE_ENCODE_FAILED").With("action", w.name).Wrap(err)
		errutil.LogErrorContext(ctx, logger, "action response could not be encoded", err)
		return nil, apierr.New(apierr.KindUnhandled, err)
	}

	if violations := w.output.ValidateJSON(raw); len(violations) > 0 {
		err := oops.Code("CONTRACT_VIOLATION").
			With("action", w.name).
			With("violations", violations).
			Errorf("response does not match the declared output schema")
		errutil.LogErrorContext(ctx, logger, "action response violates its contract", err,
			"contract_violation", true,
			"violations", violations,
		)
		return nil, apierr.New(apierr.KindUnhandled, err)
	}

	return raw, nil
}

// Call invokes another action through caller and decodes the response.
func Call[Out any](ctx context.Context, caller Caller, name string, params any, meta Meta) (Out, error) {
	var out Out
	if caller == nil {
		return out, oops.Code("CONTRACT_NO_CALLER").With("action", name).Errorf("no caller available")
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return out, oops.Code("CONTRACT_PARAMS_ENCODE_FAILED").With("action", name).Wrap(err)
	}

	res, err := caller.Call(ctx, name, &Invocation{Action: name, Params: raw, Meta: meta})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(res, &out); err != nil {
		return out, oops.Code("CONTRACT_RESPONSE_DECODE_FAILED").With("action", name).Wrap(err)
	}
	return out, nil
}

// Decode unmarshals an action response into Out.
func Decode[Out any](raw json.RawMessage) (Out, error) {
	var out Out
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, oops.Code("CONTRACT_RESPONSE_DECODE_FAILED").Wrap(err)
	}
	return out, nil
}
