// Package credcache holds the token -> credentials cache used by the
// credential exchange path. The cache is an explicit, injected dependency
// rather than a module-level map so concurrent access is visible and
// testable. Eviction is time based only; token revocation does not
// invalidate entries before they expire.
package credcache

import (
	"context"
	"time"
)

// Credentials are the short-lived, policy-scoped keys produced by a
// federated credential exchange. Field names follow the wire shape every
// downstream data-plane call consumes.
type Credentials struct {
	AccessKeyID  string    `json:"AccessKeyId"`
	SecretKey    string    `json:"SecretKey"`
	SessionToken string    `json:"SessionToken"`
	Expiration   time.Time `json:"Expiration"`
}

// Expired reports whether the credentials are past their validity window.
func (c Credentials) Expired(now time.Time) bool {
	return !c.Expiration.IsZero() && !now.Before(c.Expiration)
}

// Cache stores credentials keyed by the raw bearer token value. Writes
// for the same token are idempotent (the same token always resolves to
// the same exchange), so last-writer-wins is acceptable.
type Cache interface {
	Get(ctx context.Context, token string) (Credentials, bool)
	Put(ctx context.Context, token string, creds Credentials, ttl time.Duration)
}
