// package auth validates caller credentials before any costful operation runs.
//
// Tokens are configured server-side; the gate never trusts client-declared
// identity headers. Validation is pure and in-memory.
package auth

import (
	"fmt"
	"strings"

	"github.com/desertthunder/motifd/internal/shared"
)

// AnonymousOwner is the identity resolved when auth is disabled and no
// credential is presented. Development only.
const AnonymousOwner = "ANON"

// Gate checks bearer credentials against the configured token set.
type Gate struct {
	required bool
	tokens   map[string]struct{}
	exempt   map[string]struct{}
}

// NewGate builds a Gate from the auth configuration.
func NewGate(cfg shared.AuthConfig) *Gate {
	tokens := make(map[string]struct{}, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		if t = strings.TrimSpace(t); t != "" {
			tokens[t] = struct{}{}
		}
	}
	exempt := make(map[string]struct{}, len(cfg.ExemptOwners))
	for _, o := range cfg.ExemptOwners {
		if o = strings.TrimSpace(o); o != "" {
			exempt[o] = struct{}{}
		}
	}
	return &Gate{required: cfg.Required, tokens: tokens, exempt: exempt}
}

// ParseBearer extracts the token from an Authorization header value,
// accepting both "Bearer <token>" and a bare token.
func ParseBearer(header string) string {
	stripped := strings.TrimSpace(header)
	if stripped == "" {
		return ""
	}
	if len(stripped) > 7 && strings.EqualFold(stripped[:7], "bearer ") {
		return strings.TrimSpace(stripped[7:])
	}
	return stripped
}

// Authenticate resolves the owner identity for an Authorization header value.
//
// A known token resolves to itself. An unknown token is rejected even when
// auth is disabled, since presenting a bad credential is never valid. A
// missing token is rejected unless the gate is configured as not required,
// in which case the anonymous owner is returned.
func (g *Gate) Authenticate(header string) (string, error) {
	token := ParseBearer(header)
	if token != "" {
		if _, ok := g.tokens[token]; ok {
			return token, nil
		}
		return "", fmt.Errorf("%w: unknown credential", shared.ErrUnauthorized)
	}
	if g.required {
		return "", fmt.Errorf("%w: missing credential", shared.ErrUnauthorized)
	}
	return AnonymousOwner, nil
}

// Exempt reports whether owner is on the quota exemption allow-list.
func (g *Gate) Exempt(owner string) bool {
	_, ok := g.exempt[owner]
	return ok
}
