// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package client

import (
	"context"
	"net/http"

	"github.com/samber/oops"

	"github.com/deckhand/deckhand/internal/apierr"
	authactions "github.com/deckhand/deckhand/internal/auth/actions"
	"github.com/deckhand/deckhand/internal/contract"
	"github.com/deckhand/deckhand/internal/gateway"
	"github.com/deckhand/deckhand/internal/identity"
)

// State is the outcome of the last Exec. At most one of Data and Error is
// set; both are nil before the first call.
type State[Resp any] struct {
	Data  *Resp
	Error *gateway.ErrorBody
}

// Request is a typed gateway endpoint. Responses are checked against the
// schema of Resp before they are exposed.
type Request[Req, Resp any] struct {
	c      *Client
	method string
	path   string
	schema *contract.Schema
	obs    observable[State[Resp]]
}

// NewRequest binds method and path on c.
func NewRequest[Req, Resp any](c *Client, method, path string) (*Request[Req, Resp], error) {
	if c == nil {
		return nil, oops.Code("CLIENT_REQUIRED").Errorf("client is required")
	}
	schema, err := contract.SchemaFor[Resp]("client"+path, contract.Lenient())
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return &Request[Req, Resp]{c: c, method: method, path: path, schema: schema}, nil
}

// Exec sends params and records the outcome. The returned error is the
// classified failure also recorded in the state, or nil on success. A nil
// params sends no body.
func (r *Request[Req, Resp]) Exec(ctx context.Context, params *Req) (State[Resp], error) {
	defer r.obs.begin()()

	var body any
	if params != nil && r.method != http.MethodGet {
		body = params
	}

	res, err := r.c.do(ctx, r.method, r.path, body)
	if err != nil {
		r.c.logger.WarnContext(ctx, "gateway request failed", "path", r.path, "error", err)
		return r.fail(transportFailure()), err
	}

	if res.status < 200 || res.status > 299 {
		failure, err := failureOf(res)
		return r.fail(failure), err
	}

	data, err := r.decode(res.body)
	if err != nil {
		r.c.logger.ErrorContext(ctx, "gateway response rejected", "path", r.path, "error", err)
		return r.fail(transportFailure()), err
	}

	s := State[Resp]{Data: data}
	r.obs.set(s)
	return s, nil
}

func (r *Request[Req, Resp]) decode(raw []byte) (*Resp, error) {
	var out Resp
	if violations := r.schema.Bind(raw, &out); len(violations) > 0 {
		return nil, apierr.New(apierr.KindUnhandled, oops.Code("CLIENT_RESPONSE_INVALID").
			With("path", r.path).
			With("violations", violations).
			Errorf("response does not match the expected schema"))
	}
	return &out, nil
}

func (r *Request[Req, Resp]) fail(failure *gateway.ErrorBody) State[Resp] {
	s := State[Resp]{Error: failure}
	r.obs.set(s)
	return s
}

// State returns the outcome of the last Exec.
func (r *Request[Req, Resp]) State() State[Resp] { return r.obs.get() }

// Fetching reports whether an Exec is in flight.
func (r *Request[Req, Resp]) Fetching() bool { return r.obs.fetching() }

// Observe calls fn after every Exec and returns a function that stops it.
func (r *Request[Req, Resp]) Observe(fn func(State[Resp])) func() {
	return r.obs.observe(fn)
}

// Login is POST /login.
func Login(c *Client) (*Request[authactions.LoginParams, identity.Identity], error) {
	return NewRequest[authactions.LoginParams, identity.Identity](c, http.MethodPost, gateway.RouteLogin)
}

// Logout is POST /logout.
func Logout(c *Client) (*Request[contract.Empty, authactions.Message], error) {
	return NewRequest[contract.Empty, authactions.Message](c, http.MethodPost, gateway.RouteLogout)
}

// Register is POST /register.
func Register(c *Client) (*Request[authactions.RegisterParams, identity.Identity], error) {
	return NewRequest[authactions.RegisterParams, identity.Identity](c, http.MethodPost, gateway.RouteRegister)
}

// Me is GET /users/me.
func Me(c *Client) (*Request[contract.Empty, identity.Identity], error) {
	return NewRequest[contract.Empty, identity.Identity](c, http.MethodGet, gateway.RouteMe)
}
