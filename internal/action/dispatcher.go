// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package action

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/contract"
	"github.com/deckhand/deckhand/internal/identity"
	"github.com/deckhand/deckhand/pkg/errutil"
)

var tracer = otel.Tracer("deckhand/action")

// IdentityResolver turns a session token into an identity. A missing, unknown
// or expired token must yield an Unauthorized error.
type IdentityResolver interface {
	ResolveCurrent(ctx context.Context, token string) (identity.Identity, error)
}

// Dispatcher routes calls to registered actions.
type Dispatcher struct {
	registry *Registry
	resolver IdentityResolver
	hooks    map[string][]Hook
	timeout  time.Duration
	logger   *slog.Logger
}

// DispatcherOption configures a Dispatcher during construction.
type DispatcherOption func(*Dispatcher)

// WithIdentityResolver sets the resolver used for actions registered with Auth.
func WithIdentityResolver(r IdentityResolver) DispatcherOption {
	return func(d *Dispatcher) {
		d.resolver = r
	}
}

// WithAfterHook appends a post-success hook for every action of service.
func WithAfterHook(service string, hook Hook) DispatcherOption {
	return func(d *Dispatcher) {
		d.hooks[service] = append(d.hooks[service], hook)
	}
}

// WithCallTimeout bounds every call. Zero disables the bound.
func WithCallTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher over registry. The registry may still be
// open; it must be sealed before the first call.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) (*Dispatcher, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}
	d := &Dispatcher{
		registry: registry,
		hooks:    make(map[string][]Hook),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch runs a call arriving from outside the trust boundary. Any identity
// or password opt-in on inv is discarded; identity comes only from the
// resolver.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, inv *contract.Invocation) (json.RawMessage, error) {
	if inv == nil {
		inv = &contract.Invocation{}
	}
	inv.Internal = false
	inv.Identity = nil
	inv.Meta.IncludePassword = false
	return d.call(ctx, name, inv)
}

// Internal returns a Caller for trusted code, e.g. a peer process forwarding
// calls over the internal transport.
func (d *Dispatcher) Internal() contract.Caller {
	return &caller{d: d}
}

// caller runs nested calls. Identity and session token are inherited from
// the parent invocation unless the nested call sets its own.
type caller struct {
	d      *Dispatcher
	parent *contract.Invocation
}

func (c *caller) Call(ctx context.Context, name string, inv *contract.Invocation) (json.RawMessage, error) {
	if inv == nil {
		inv = &contract.Invocation{}
	}
	if c.parent != nil {
		if inv.Identity == nil {
			inv.Identity = c.parent.Identity
		}
		if inv.Meta.SessionToken == "" {
			inv.Meta.SessionToken = c.parent.Meta.SessionToken
		}
	}
	inv.Internal = true
	return c.d.call(ctx, name, inv)
}

func (d *Dispatcher) call(ctx context.Context, name string, inv *contract.Invocation) (res json.RawMessage, err error) {
	rec := newRecorder("unknown")
	defer func() { rec.record(err) }()

	// The handler runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "action.dispatch",
		trace.WithAttributes(
			attribute.String("action.name", name),
			attribute.Bool("action.internal", inv.Internal),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, apierr.KindOf(err).String())
		}
		span.End()
	}()

	if !d.registry.Sealed() {
		return nil, errNotSealed(name)
	}

	entry, ok := d.registry.Lookup(name)
	if !ok {
		err = errUnknownAction(name)
		errutil.LogErrorContext(ctx, d.logger, "dispatch to unknown action", err, "action", name)
		return nil, err
	}
	rec.action = name
	rec.source = entry.Source
	span.SetAttributes(attribute.String("action.source", entry.Source))

	logger := d.logger.With("action", name)

	if entry.Internal && !inv.Internal {
		logger.WarnContext(ctx, "external call to internal action rejected")
		return nil, apierr.Classify(apierr.Unauthorized())
	}

	if entry.Auth && inv.Identity == nil {
		if d.resolver == nil {
			err = errNoResolver(name)
			errutil.LogErrorContext(ctx, logger, "identity resolution unavailable", err)
			return nil, err
		}
		id, rerr := d.resolver.ResolveCurrent(ctx, inv.Meta.SessionToken)
		if rerr != nil {
			classified := apierr.Classify(rerr)
			logger.InfoContext(ctx, "identity resolution failed", "kind", classified.Kind.String())
			return nil, classified
		}
		inv.Identity = &id
	}

	inv.Action = name
	inv.Caller = &caller{d: d, parent: inv}

	res, err = entry.Action.Invoke(ctx, inv)
	if err != nil {
		return nil, apierr.Classify(err)
	}

	for _, hook := range d.hooks[entry.Service()] {
		res, err = hook(ctx, inv, res)
		if err != nil {
			errutil.LogErrorContext(ctx, logger, "after hook failed", err)
			return nil, apierr.Classify(err)
		}
	}
	return res, nil
}
