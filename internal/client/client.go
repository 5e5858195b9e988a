// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package client is a typed facade over the HTTP gateway. A Request tracks
// the state of one endpoint; an AuthClient drives the session lifecycle.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/samber/oops"

	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/gateway"
)

// Client holds the connection settings shared by every request: the base
// URL and a cookie jar carrying the session.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A client without a jar
// gets one.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the gateway at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, oops.Code("CLIENT_CONFIG_INVALID").With("base_url", baseURL).Wrap(err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, oops.Code("CLIENT_CONFIG_INVALID").With("base_url", baseURL).Errorf("base URL must be http or https")
	}

	c := &Client{base: u, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, oops.Code("CLIENT_CONFIG_INVALID").Wrap(err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

// HasSession reports whether the jar holds a session cookie for the gateway.
func (c *Client) HasSession() bool {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == gateway.CookieName && ck.Value != "" {
			return true
		}
	}
	return false
}

// response is a raw gateway reply.
type response struct {
	status int
	body   []byte
}

// do sends body as JSON. Transport failures are classified Unhandled so
// callers can retry them.
func (c *Client) do(ctx context.Context, method, path string, body any) (*response, error) {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, apierr.New(apierr.KindUnhandled, oops.Code("CLIENT_REQUEST_ENCODE_FAILED").With("path", path).Wrap(err))
		}
		r = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, r)
	if err != nil {
		return nil, apierr.New(apierr.KindUnhandled, oops.Code("CLIENT_REQUEST_INVALID").With("path", path).Wrap(err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierr.New(apierr.KindUnhandled, oops.Code("CLIENT_REQUEST_FAILED").
			With("method", method).
			With("path", path).
			Wrap(err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, gateway.MaxBodyBytes))
	if err != nil {
		return nil, apierr.New(apierr.KindUnhandled, oops.Code("CLIENT_RESPONSE_READ_FAILED").With("path", path).Wrap(err))
	}
	return &response{status: resp.StatusCode, body: raw}, nil
}

// failureOf decodes a gateway error body. A body that is not one is reported
// as an unhandled failure carrying the HTTP status.
func failureOf(res *response) (*gateway.ErrorBody, error) {
	var body gateway.ErrorBody
	if err := json.Unmarshal(res.body, &body); err != nil || body.Type == "" {
		cause := oops.Code("CLIENT_RESPONSE_INVALID").
			With("status", res.status).
			Errorf("gateway replied %d without an error body", res.status)
		fallback := gateway.ErrorBody{APIError: apierr.KindUnhandled.API()}
		return &fallback, apierr.New(apierr.KindUnhandled, cause)
	}
	return &body, apierr.FromAPI(body.APIError, body.Violations)
}

// transportFailure is the state recorded when no reply arrived.
func transportFailure() *gateway.ErrorBody {
	return &gateway.ErrorBody{APIError: apierr.KindUnhandled.API()}
}
