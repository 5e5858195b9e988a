// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/auth"
	authmemory "github.com/deckhand/deckhand/internal/auth/memory"
	"github.com/deckhand/deckhand/internal/broker"
	"github.com/deckhand/deckhand/internal/contract"
	"github.com/deckhand/deckhand/internal/gateway"
	"github.com/deckhand/deckhand/internal/observability"
	"github.com/deckhand/deckhand/internal/users/memory"
)

const testSecret = "0123456789abcdef-gateway"

var cheapParams = auth.Argon2Params{Time: 1, Memory: 64, Threads: 1, SaltLen: 8, KeyLen: 16}

type fixture struct {
	server   *httptest.Server
	client   *http.Client
	sessions *authmemory.Store
	metrics  *observability.HTTPMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sessions := authmemory.NewStore()
	b, err := broker.New(broker.Config{
		Users:    memory.New(),
		Sessions: sessions,
		Hasher:   auth.NewArgon2idHasherWithParams(cheapParams),
	})
	require.NoError(t, err)

	metrics := observability.NewHTTPMetrics(prometheus.NewRegistry())
	h, err := gateway.NewHandler(gateway.Config{
		Dispatcher:     b.Dispatcher,
		Secret:         []byte(testSecret),
		SessionTTL:     time.Hour,
		AllowedOrigins: []string{"http://localhost:3000"},
		Metrics:        metrics,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &fixture{
		server:   srv,
		client:   &http.Client{Jar: jar},
		sessions: sessions,
		metrics:  metrics,
	}
}

type result struct {
	status  int
	body    map[string]any
	cookies []*http.Cookie
}

func (f *fixture) do(t *testing.T, method, path, body string) result {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.server.URL+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return f.send(t, req)
}

func (f *fixture) send(t *testing.T, req *http.Request) result {
	t.Helper()
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := result{status: resp.StatusCode, cookies: resp.Cookies()}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.body), string(raw))
	}
	return out
}

func (f *fixture) sessionCookie(t *testing.T) *http.Cookie {
	t.Helper()
	u, err := url.Parse(f.server.URL)
	require.NoError(t, err)
	for _, c := range f.client.Jar.Cookies(u) {
		if c.Name == gateway.CookieName {
			return c
		}
	}
	return nil
}

func cookieNamed(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestGateway_SessionLifecycle(t *testing.T) {
	f := newFixture(t)

	reg := f.do(t, http.MethodPost, gateway.RouteRegister, `{"email":"ann@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, reg.status, reg.body)
	assert.Equal(t, "ann@example.com", reg.body["email"])
	assert.NotEmpty(t, reg.body["id"])
	assert.NotContains(t, reg.body, "password")
	assert.Nil(t, cookieNamed(reg.cookies, gateway.CookieName), "register does not log in")

	login := f.do(t, http.MethodPost, gateway.RouteLogin, `{"email":"ann@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, login.status, login.body)
	assert.Equal(t, reg.body, login.body)

	c := cookieNamed(login.cookies, gateway.CookieName)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, int(time.Hour/time.Second), c.MaxAge)
	assert.Equal(t, 1, f.sessions.Len())

	me := f.do(t, http.MethodGet, gateway.RouteMe, "")
	require.Equal(t, http.StatusOK, me.status, me.body)
	assert.Equal(t, reg.body, me.body)

	logout := f.do(t, http.MethodPost, gateway.RouteLogout, `{}`)
	require.Equal(t, http.StatusOK, logout.status)
	assert.Equal(t, map[string]any{"message": "OK"}, logout.body)
	assert.Equal(t, 0, f.sessions.Len())
	assert.Nil(t, f.sessionCookie(t), "logout clears the cookie")

	after := f.do(t, http.MethodGet, gateway.RouteMe, "")
	assert.Equal(t, http.StatusUnauthorized, after.status)
	assert.Equal(t, apierr.TypeUnauthorized, after.body["type"])
}

func TestGateway_LogoutWithoutSession(t *testing.T) {
	f := newFixture(t)

	res := f.do(t, http.MethodPost, gateway.RouteLogout, "")
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "OK", res.body["message"])
}

func TestGateway_InvalidCredentialsBody(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, gateway.RouteRegister, `{"email":"ann@example.com","password":"correct-horse"}`)

	wrong := f.do(t, http.MethodPost, gateway.RouteLogin, `{"email":"ann@example.com","password":"nope"}`)
	unknown := f.do(t, http.MethodPost, gateway.RouteLogin, `{"email":"bob@example.com","password":"correct-horse"}`)

	want := map[string]any{"code": float64(401), "type": apierr.TypeInvalidCredentials, "retryable": false}
	assert.Equal(t, http.StatusUnauthorized, wrong.status)
	assert.Equal(t, want, wrong.body)
	assert.Equal(t, wrong.status, unknown.status)
	assert.Equal(t, wrong.body, unknown.body)
	assert.Nil(t, cookieNamed(wrong.cookies, gateway.CookieName))
}

func TestGateway_ValidationBody(t *testing.T) {
	f := newFixture(t)

	res := f.do(t, http.MethodPost, gateway.RouteRegister, `{"email":"not-an-email","password":"short"}`)
	require.Equal(t, http.StatusUnprocessableEntity, res.status)
	assert.Equal(t, apierr.TypeValidation, res.body["type"])

	violations, ok := res.body["violations"].([]any)
	require.True(t, ok, res.body)
	fields := make([]string, 0, len(violations))
	for _, v := range violations {
		fields = append(fields, v.(map[string]any)["field"].(string))
	}
	assert.ElementsMatch(t, []string{"/email", "/password"}, fields)
}

func TestGateway_MalformedJSON(t *testing.T) {
	f := newFixture(t)

	res := f.do(t, http.MethodPost, gateway.RouteLogin, `{"email":`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.status)
	assert.Equal(t, apierr.TypeValidation, res.body["type"])
}

func TestGateway_DuplicateRegistration(t *testing.T) {
	f := newFixture(t)

	first := f.do(t, http.MethodPost, gateway.RouteRegister, `{"email":"ann@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, first.status)

	dup := f.do(t, http.MethodPost, gateway.RouteRegister, `{"email":"ANN@example.com","password":"another-horse"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, dup.status)
	assert.Equal(t, apierr.TypeDuplicateField, dup.body["type"])
	assert.NotContains(t, dup.body, "violations")
}

func TestGateway_ForgedCookieIsAnonymous(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, gateway.RouteRegister, `{"email":"ann@example.com","password":"correct-horse"}`)
	login := f.do(t, http.MethodPost, gateway.RouteLogin, `{"email":"ann@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, login.status)

	c := f.sessionCookie(t)
	require.NotNil(t, c)
	token, _, _ := strings.Cut(c.Value, ".")

	req, err := http.NewRequest(http.MethodGet, f.server.URL+gateway.RouteMe, nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: gateway.CookieName, Value: token + ".forged"})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGateway_BodyLimit(t *testing.T) {
	f := newFixture(t)

	big := `{"email":"ann@example.com","password":"` + strings.Repeat("x", gateway.MaxBodyBytes) + `"}`
	res := f.do(t, http.MethodPost, gateway.RouteRegister, big)
	require.Equal(t, http.StatusUnprocessableEntity, res.status)
	violations := res.body["violations"].([]any)
	require.Len(t, violations, 1)
	assert.Equal(t, "maxBytes", violations[0].(map[string]any)["keyword"])
}

func TestGateway_FormBody(t *testing.T) {
	f := newFixture(t)

	form := url.Values{"email": {"ann@example.com"}, "password": {"correct-horse"}}
	req, err := http.NewRequest(http.MethodPost, f.server.URL+gateway.RouteRegister, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res := f.send(t, req)
	require.Equal(t, http.StatusOK, res.status, res.body)
	assert.Equal(t, "ann@example.com", res.body["email"])
}

func TestGateway_CORS(t *testing.T) {
	f := newFixture(t)

	preflight := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, f.server.URL+gateway.RouteLogin, nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp
	}

	allowed := preflight("http://localhost:3000")
	assert.Equal(t, http.StatusNoContent, allowed.StatusCode)
	assert.Equal(t, "http://localhost:3000", allowed.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", allowed.Header.Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, allowed.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)

	denied := preflight("http://evil.example")
	assert.Empty(t, denied.Header.Get("Access-Control-Allow-Origin"))
}

func TestGateway_RecordsRouteMetrics(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodGet, gateway.RouteMe, "")
	f.do(t, http.MethodGet, gateway.RouteMe, "")

	assert.InDelta(t, 2, testutil.ToFloat64(f.metrics.RequestsTotal.WithLabelValues(gateway.RouteMe, http.MethodGet, "401")), 0)
}

type failingDispatcher struct{ err error }

func (d failingDispatcher) Dispatch(context.Context, string, *contract.Invocation) (json.RawMessage, error) {
	return nil, d.err
}

func TestGateway_UnhandledErrorsDoNotLeak(t *testing.T) {
	h, err := gateway.NewHandler(gateway.Config{
		Dispatcher: failingDispatcher{err: errors.New("pq: password authentication failed for user admin")},
		Secret:     []byte(testSecret),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, gateway.RouteMe, nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"code":500,"type":"UNHANDLED","retryable":true}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "admin")
}

func TestNewHandler_Validation(t *testing.T) {
	_, err := gateway.NewHandler(gateway.Config{Secret: []byte(testSecret)})
	require.Error(t, err)

	_, err = gateway.NewHandler(gateway.Config{
		Dispatcher: failingDispatcher{},
		Secret:     []byte("too-short"),
	})
	assert.ErrorIs(t, err, gateway.ErrWeakSecret)
}
