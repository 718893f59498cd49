package provision

import (
	"context"
	"net/http"
	"strings"

	"idbroker/internal/directory"
	"idbroker/internal/federation"
	"idbroker/internal/userindex"
	"idbroker/pkg/logger"
	"idbroker/pkg/middleware"
)

// Provisioner is the orchestrator surface the HTTP layer depends on.
type Provisioner interface {
	ProvisionTenantAdmin(ctx context.Context, req Request) (Result, error)
	ProvisionSystemAdmin(ctx context.Context, req Request) (Result, error)
}

// RecordIndex is the user-index surface the HTTP layer depends on.
type RecordIndex interface {
	LookupSystem(ctx context.Context, userID string) (userindex.Record, error)
	Lookup(ctx context.Context, tenantID, userID string) (userindex.Record, error)
	Put(ctx context.Context, r userindex.Record) error
	Delete(ctx context.Context, tenantID, userID string) error
}

// App bundles the service dependencies for the HTTP surface.
type App struct {
	Log  logger.Sugared
	Svc  Provisioner
	Idx  RecordIndex
	Dirs *directory.Client
}

func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("Bearer "):])
}

// callerRecord resolves the index record of the authenticated caller,
// which carries the tenant context (directory and pool ids) every
// user-administration call operates in.
func (a *App) callerRecord(r *http.Request) (userindex.Record, error) {
	name, err := federation.UserNameFromToken(bearerToken(r))
	if err != nil {
		return userindex.Record{}, err
	}
	return a.Idx.LookupSystem(r.Context(), name)
}

// scopedDirs returns the directory client signed with the caller's
// exchanged credentials when present.
func (a *App) scopedDirs(ctx context.Context) *directory.Client {
	if creds, ok := middleware.CredentialsFrom(ctx); ok {
		return a.Dirs.WithCredentials(creds)
	}
	return a.Dirs
}
