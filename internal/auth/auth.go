// Package auth guards the operator endpoints: usage summaries, record
// listings, and metrics. Publisher-side only; landing-page traffic is
// authenticated by the marketplace token itself.
package auth

import (
	"context"
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// Principal identifies the authenticated operator on admin requests.
type Principal struct {
	Name string
}

type contextKey int

const principalContextKey contextKey = iota

// ContextWithPrincipal returns a new context carrying the given principal.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext extracts the principal from the context, or nil if
// not present.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey).(*Principal)
	return p
}

// VerifyAdminKey compares a presented key against the configured admin key.
// A configured value starting with "$2" is treated as a bcrypt hash;
// anything else is compared as plaintext in constant time. An empty
// configured key rejects everything.
func VerifyAdminKey(configured, presented string) bool {
	if configured == "" || presented == "" {
		return false
	}
	if len(configured) > 3 && configured[:2] == "$2" {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}
