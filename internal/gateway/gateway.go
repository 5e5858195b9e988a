// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package gateway exposes the broker's public actions over HTTP. It owns the
// session cookie and turns classified errors into JSON responses.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/auth"
	authactions "github.com/deckhand/deckhand/internal/auth/actions"
	"github.com/deckhand/deckhand/internal/contract"
	"github.com/deckhand/deckhand/internal/observability"
	"github.com/deckhand/deckhand/internal/users"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// Routes.
const (
	RouteLogin    = "/login"
	RouteLogout   = "/logout"
	RouteRegister = "/register"
	RouteMe       = "/users/me"
)

// Dispatcher runs calls arriving from outside the trust boundary.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, inv *contract.Invocation) (json.RawMessage, error)
}

// Config configures the gateway handler.
type Config struct {
	Dispatcher Dispatcher

	// Secret signs session cookies. At least MinSecretLength bytes.
	Secret []byte

	// SessionTTL is the cookie Max-Age. Defaults to auth.DefaultSessionTTL.
	SessionTTL time.Duration

	// AllowedOrigins may make credentialed cross-origin requests.
	AllowedOrigins []string

	// SecureCookies marks the session cookie Secure.
	SecureCookies bool

	// Metrics, when set, records per-route request metrics.
	Metrics *observability.HTTPMetrics

	Logger *slog.Logger
}

type gateway struct {
	dispatcher Dispatcher
	signer     *Signer
	ttl        time.Duration
	secure     bool
	logger     *slog.Logger
}

// NewHandler builds the gateway router.
func NewHandler(cfg Config) (http.Handler, error) {
	if cfg.Dispatcher == nil {
		return nil, oops.Code("GATEWAY_CONFIG_INVALID").Errorf("dispatcher is required")
	}
	signer, err := NewSigner(cfg.Secret)
	if err != nil {
		return nil, err
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = auth.DefaultSessionTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &gateway{
		dispatcher: cfg.Dispatcher,
		signer:     signer,
		ttl:        ttl,
		secure:     cfg.SecureCookies,
		logger:     logger.With("component", "gateway"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(cors(cfg.AllowedOrigins))

	r.Post(RouteLogin, g.action(authactions.Login))
	r.Post(RouteLogout, g.action(authactions.Logout))
	r.Post(RouteRegister, g.action(authactions.Register))
	r.Get(RouteMe, g.action(users.Me))

	return otelhttp.NewHandler(r, "deckhand.gateway"), nil
}

// action forwards the request body as the params of name.
func (g *gateway) action(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := g.logger.With("action", name, "method", r.Method, "path", r.URL.Path)

		params, err := readParams(w, r)
		if err != nil {
			g.writeError(ctx, w, logger, err)
			return
		}

		inv := &contract.Invocation{
			Params: params,
			Meta:   contract.Meta{SessionToken: g.sessionToken(r)},
		}
		res, err := g.dispatcher.Dispatch(ctx, name, inv)

		// Meta applies on failure too; a failed logout still clears the cookie.
		g.applyMeta(w, inv.Meta)
		if err != nil {
			g.writeError(ctx, w, logger, err)
			return
		}

		logger.DebugContext(ctx, "gateway request served")
		writeJSON(w, http.StatusOK, res)
	}
}

// sessionToken returns the token carried by a validly signed cookie. A
// missing or forged cookie is an anonymous request.
func (g *gateway) sessionToken(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	token, ok := g.signer.Verify(c.Value)
	if !ok {
		g.logger.WarnContext(r.Context(), "session cookie signature rejected")
		return ""
	}
	return token
}

func (g *gateway) applyMeta(w http.ResponseWriter, meta contract.Meta) {
	switch {
	case meta.IssuedToken != "":
		http.SetCookie(w, sessionCookie(g.signer.Sign(meta.IssuedToken), g.ttl, g.secure))
	case meta.SessionEnded:
		http.SetCookie(w, clearedCookie(g.secure))
	}
}

// readParams returns the JSON params of r. Form bodies are converted to a
// JSON object of strings. GET requests carry no params.
func readParams(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	if r.Method == http.MethodGet || r.Body == nil {
		return nil, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")) //nolint:errcheck // unknown types are read as JSON
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, bodyError(err)
			}
			return nil, apierr.Validation([]apierr.Violation{{
				Field:   "/",
				Keyword: "form",
				Message: "malformed form body",
			}})
		}
		fields := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			fields[k] = r.PostForm.Get(k)
		}
		raw, err := json.Marshal(fields)
		if err != nil {
			return nil, oops.Code("GATEWAY_FORM_ENCODE_FAILED").Wrap(err)
		}
		return raw, nil
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, bodyError(err)
	}
	return raw, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierr.Validation([]apierr.Violation{{
			Field:   "/",
			Keyword: "maxBytes",
			Message: "request body exceeds 1 MB",
		}})
	}
	return oops.Code("GATEWAY_BODY_READ_FAILED").Wrap(err)
}
