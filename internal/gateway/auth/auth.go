// Package auth provides credential verification for privileged gateway
// operations. The Verifier interface keeps the core independent of how
// tokens are issued, so a static shared secret can later be replaced by
// rotating or per-tenant tokens without touching callers.
package auth

import (
	"crypto/subtle"
)

// Verifier checks the token presented with a privileged operation.
type Verifier interface {
	// Verify reports whether the presented token is valid.
	Verify(token string) bool
}

// StaticVerifier verifies against a single process-wide shared secret.
type StaticVerifier struct {
	secret string
}

// NewStaticVerifier creates a Verifier backed by the given shared secret.
func NewStaticVerifier(secret string) *StaticVerifier {
	return &StaticVerifier{secret: secret}
}

// Verify compares the token with the shared secret in constant time.
func (v *StaticVerifier) Verify(token string) bool {
	if v.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(v.secret)) == 1
}
