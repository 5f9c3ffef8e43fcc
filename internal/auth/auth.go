// Package auth provides minimal authentication helpers.
//
// It intentionally avoids policy decisions and storage concerns.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/hostbridge/bridgectl/internal/protocol/httpwire"
)

var (
	ErrUnauthorized  = errors.New("auth: unauthorized")
	ErrMisconfigured = errors.New("auth: server token not configured")
)

// Validator validates an authentication token.
type Validator interface {
	Validate(token string) error
}

// StaticToken validates a single shared secret in constant time.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if strings.TrimSpace(s.Token) == "" {
		return ErrMisconfigured
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// ExtractToken pulls the bearer token from a parsed request, preferring the
// dedicated header over the standard Authorization scheme.
func ExtractToken(req httpwire.Request) string {
	if tok := strings.TrimSpace(req.Header[httpwire.HeaderAuthToken]); tok != "" {
		return tok
	}
	raw := strings.TrimSpace(req.Header[httpwire.HeaderAuthorization])
	if raw == "" {
		return ""
	}
	scheme, rest, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(rest)
}
