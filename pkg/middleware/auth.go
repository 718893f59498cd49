package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"idbroker/internal/federation"
	"idbroker/pkg/credcache"
)

// CredentialExchanger turns a caller's bearer token into short-lived
// tenant-scoped credentials.
type CredentialExchanger interface {
	ResolveCredentials(ctx context.Context, bearer string) (credcache.Credentials, error)
}

const ctxKeyCredentials ctxKey = "creds"

// ScopedCredentials exchanges the Authorization bearer token for
// tenant-scoped credentials and stores them in the request context.
// Downstream handlers act against the provider with those credentials,
// so a caller can never reach further than its mapped role allows.
func ScopedCredentials(ex CredentialExchanger, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				http.Error(w, "missing bearer", http.StatusUnauthorized)
				return
			}
			raw := strings.TrimSpace(authz[len("Bearer "):])
			creds, err := ex.ResolveCredentials(r.Context(), raw)
			if err != nil {
				switch {
				case errors.Is(err, federation.ErrNoToken), errors.Is(err, federation.ErrBadToken):
					http.Error(w, "invalid token", http.StatusUnauthorized)
				case errors.Is(err, federation.ErrUnknownUser):
					http.Error(w, "unknown user", http.StatusUnauthorized)
				default:
					log.Errorw("credential exchange failed", "err", err)
					http.Error(w, "credential exchange failed", http.StatusInternalServerError)
				}
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyCredentials, creds)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CredentialsFrom returns the exchanged credentials stored by
// ScopedCredentials.
func CredentialsFrom(ctx context.Context) (credcache.Credentials, bool) {
	c, ok := ctx.Value(ctxKeyCredentials).(credcache.Credentials)
	return c, ok
}
