// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
)

// CookieName is the session cookie.
const CookieName = "deckhand.sid"

// MinSecretLength is the shortest cookie secret the gateway accepts.
const MinSecretLength = 16

// ErrWeakSecret is returned when the cookie secret is shorter than MinSecretLength.
var ErrWeakSecret = oops.Code("GATEWAY_SECRET_WEAK").
	With("min_length", MinSecretLength).
	Errorf("session secret must be at least %d characters", MinSecretLength)

// Signer authenticates session tokens carried in cookies. A value is
// token "." base64url(HMAC-SHA256(secret, token)).
type Signer struct {
	secret []byte
}

// NewSigner returns a signer for secret.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Signer{secret: key}, nil
}

// Sign returns the cookie value for token.
func (s *Signer) Sign(token string) string {
	return token + "." + base64.RawURLEncoding.EncodeToString(s.mac(token))
}

// Verify returns the token inside value when its signature holds.
func (s *Signer) Verify(value string) (string, bool) {
	i := strings.LastIndexByte(value, '.')
	if i <= 0 || i == len(value)-1 {
		return "", false
	}
	token, sig := value[:i], value[i+1:]
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", false
	}
	if !hmac.Equal(got, s.mac(token)) {
		return "", false
	}
	return token, true
}

func (s *Signer) mac(token string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(token))
	return h.Sum(nil)
}

func sessionCookie(value string, ttl time.Duration, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func clearedCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
