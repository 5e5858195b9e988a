// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package gateway_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/auth"
	authmemory "github.com/deckhand/deckhand/internal/auth/memory"
	"github.com/deckhand/deckhand/internal/broker"
	"github.com/deckhand/deckhand/internal/gateway"
	"github.com/deckhand/deckhand/internal/users/memory"
)

// browser is a cookie-carrying HTTP client pointed at one gateway.
type browser struct {
	base   string
	client *http.Client
}

func newBrowser(base string) *browser {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &browser{base: base, client: &http.Client{Jar: jar}}
}

func (b *browser) call(method, path, body string) (int, map[string]any) {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, b.base+path, r)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return resp.StatusCode, out
}

var _ = Describe("Authentication over the gateway", func() {
	var (
		server   *httptest.Server
		sessions *authmemory.Store
		alice    *browser
	)

	const credentials = `{"email":"alice@example.com","password":"wonderland"}`

	BeforeEach(func() {
		sessions = authmemory.NewStore()
		b, err := broker.New(broker.Config{
			Users:    memory.New(),
			Sessions: sessions,
			Hasher:   auth.NewArgon2idHasherWithParams(cheapParams),
		})
		Expect(err).NotTo(HaveOccurred())

		h, err := gateway.NewHandler(gateway.Config{
			Dispatcher: b.Dispatcher,
			Secret:     []byte(testSecret),
			SessionTTL: time.Hour,
		})
		Expect(err).NotTo(HaveOccurred())

		server = httptest.NewServer(h)
		DeferCleanup(server.Close)
		alice = newBrowser(server.URL)
	})

	Context("as an anonymous visitor", func() {
		It("is not recognised by users/me", func() {
			status, body := alice.call(http.MethodGet, gateway.RouteMe, "")
			Expect(status).To(Equal(http.StatusUnauthorized))
			Expect(body).To(HaveKeyWithValue("type", apierr.TypeUnauthorized))
		})

		It("cannot log in before registering", func() {
			status, body := alice.call(http.MethodPost, gateway.RouteLogin, credentials)
			Expect(status).To(Equal(http.StatusUnauthorized))
			Expect(body).To(HaveKeyWithValue("type", apierr.TypeInvalidCredentials))
		})
	})

	Context("after registering", func() {
		var registered map[string]any

		BeforeEach(func() {
			var status int
			status, registered = alice.call(http.MethodPost, gateway.RouteRegister, credentials)
			Expect(status).To(Equal(http.StatusOK))
		})

		It("is still anonymous", func() {
			status, _ := alice.call(http.MethodGet, gateway.RouteMe, "")
			Expect(status).To(Equal(http.StatusUnauthorized))
			Expect(sessions.Len()).To(BeZero())
		})

		It("cannot register the same email twice", func() {
			status, body := alice.call(http.MethodPost, gateway.RouteRegister, credentials)
			Expect(status).To(Equal(http.StatusUnprocessableEntity))
			Expect(body).To(HaveKeyWithValue("type", apierr.TypeDuplicateField))
		})

		It("rejects a wrong password exactly like an unknown email", func() {
			wrongStatus, wrong := alice.call(http.MethodPost, gateway.RouteLogin, `{"email":"alice@example.com","password":"looking-glass"}`)
			unknownStatus, unknown := alice.call(http.MethodPost, gateway.RouteLogin, `{"email":"hatter@example.com","password":"wonderland"}`)
			Expect(wrongStatus).To(Equal(unknownStatus))
			Expect(wrong).To(Equal(unknown))
		})

		Context("and logging in", func() {
			BeforeEach(func() {
				status, body := alice.call(http.MethodPost, gateway.RouteLogin, credentials)
				Expect(status).To(Equal(http.StatusOK))
				Expect(body).To(Equal(registered))
			})

			It("is recognised by users/me", func() {
				status, body := alice.call(http.MethodGet, gateway.RouteMe, "")
				Expect(status).To(Equal(http.StatusOK))
				Expect(body).To(Equal(registered))
			})

			It("rotates the session on a second login", func() {
				Expect(sessions.Len()).To(Equal(1))
				status, _ := alice.call(http.MethodPost, gateway.RouteLogin, credentials)
				Expect(status).To(Equal(http.StatusOK))
				Expect(sessions.Len()).To(Equal(1))
			})

			It("keeps sessions of different browsers apart", func() {
				bob := newBrowser(server.URL)
				status, _ := bob.call(http.MethodGet, gateway.RouteMe, "")
				Expect(status).To(Equal(http.StatusUnauthorized))
			})

			It("loses the session after logging out", func() {
				status, body := alice.call(http.MethodPost, gateway.RouteLogout, `{}`)
				Expect(status).To(Equal(http.StatusOK))
				Expect(body).To(HaveKeyWithValue("message", "OK"))
				Expect(sessions.Len()).To(BeZero())

				status, _ = alice.call(http.MethodGet, gateway.RouteMe, "")
				Expect(status).To(Equal(http.StatusUnauthorized))
			})

			It("keeps the held session when a later login fails", func() {
				status, _ := alice.call(http.MethodPost, gateway.RouteLogin, `{"email":"alice@example.com","password":"looking-glass"}`)
				Expect(status).To(Equal(http.StatusUnauthorized))
				Expect(sessions.Len()).To(Equal(1))

				status, body := alice.call(http.MethodGet, gateway.RouteMe, "")
				Expect(status).To(Equal(http.StatusOK))
				Expect(body).To(Equal(registered))
			})
		})
	})
})
