package provision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"idbroker/internal/directory"
	"idbroker/internal/federation"
	"idbroker/internal/userindex"
	"idbroker/pkg/awserr"
	"idbroker/pkg/problems"
)

// NewRouter wires the identity service surface. The registration and
// lookup endpoints are open (they run before any tenant user exists);
// everything under the authn group acts with the caller's exchanged
// tenant-scoped credentials.
func NewRouter(app *App, authn func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/user/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"service": "identity", "ok": true}, http.StatusOK)
	})

	r.Post("/user/reg", app.handleRegister)
	r.Post("/user/system", app.handleRegisterSystem)
	r.Get("/user/pool/{id}", app.handlePoolLookup)

	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Get("/users", app.handleListUsers)
		r.Post("/user", app.handleCreateUser)
		r.Put("/user", app.handleUpdateUser)
		r.Put("/user/enable", app.handleSetEnabled(true))
		r.Put("/user/disable", app.handleSetEnabled(false))
		r.Get("/user/{id}", app.handleGetUser)
		r.Delete("/user/{id}", app.handleDeleteUser)
	})

	return r
}

func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	a.provisionHandler(w, r, a.Svc.ProvisionTenantAdmin)
}

func (a *App) handleRegisterSystem(w http.ResponseWriter, r *http.Request) {
	a.provisionHandler(w, r, a.Svc.ProvisionSystemAdmin)
}

func (a *App) provisionHandler(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, req Request) (Result, error)) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problems.Write(w, http.StatusBadRequest, "bad-request", "Invalid body", err.Error())
		return
	}
	res, err := run(r.Context(), req)
	if err != nil {
		a.writeProvisionError(w, req, err)
		return
	}
	writeJSON(w, res, http.StatusOK)
}

func (a *App) writeProvisionError(w http.ResponseWriter, req Request, err error) {
	var cfgErr *ConfigurationError
	var provErr *ProviderError
	switch {
	case errors.Is(err, ErrAlreadyExists):
		problems.Write(w, http.StatusConflict, "user-exists", "User already exists", "a user with that name is already registered")
	case errors.As(err, &cfgErr):
		problems.Write(w, http.StatusBadRequest, "bad-request", "Invalid registration", cfgErr.Reason)
	case errors.As(err, &provErr):
		a.Log.Errorw("registration failed", "tenant_id", req.TenantID, "state", provErr.State, "error", err)
		problems.Write(w, http.StatusBadRequest, "provider-error", "Provisioning failed", string(provErr.State)+" did not complete")
	default:
		a.Log.Errorw("registration failed", "tenant_id", req.TenantID, "error", err)
		problems.Write(w, http.StatusInternalServerError, "internal", "Provisioning failed", "")
	}
}

func (a *App) handlePoolLookup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := a.Idx.LookupSystem(r.Context(), id)
	if err != nil {
		if errors.Is(err, userindex.ErrNotFound) {
			problems.Write(w, http.StatusNotFound, "not-found", "Unknown user", "")
			return
		}
		a.Log.Errorw("pool lookup failed", "user_id", id, "error", err)
		problems.Write(w, http.StatusInternalServerError, "internal", "Lookup failed", "")
		return
	}
	writeJSON(w, map[string]string{
		"userPoolId":     rec.UserPoolID,
		"identityPoolId": rec.IdentityPoolID,
		"clientId":       rec.ClientID,
	}, http.StatusOK)
}

func (a *App) handleGetUser(w http.ResponseWriter, r *http.Request) {
	caller, err := a.callerRecord(r)
	if err != nil {
		a.writeCallerError(w, err)
		return
	}
	entry, err := a.scopedDirs(r.Context()).GetEntry(r.Context(), caller.UserPoolID, chi.URLParam(r, "id"))
	if err != nil {
		a.writeDirectoryError(w, err)
		return
	}
	writeJSON(w, entry, http.StatusOK)
}

func (a *App) handleListUsers(w http.ResponseWriter, r *http.Request) {
	caller, err := a.callerRecord(r)
	if err != nil {
		a.writeCallerError(w, err)
		return
	}
	entries, err := a.scopedDirs(r.Context()).ListEntries(r.Context(), caller.UserPoolID)
	if err != nil {
		a.writeDirectoryError(w, err)
		return
	}
	writeJSON(w, entries, http.StatusOK)
}

type userRequest struct {
	UserName  string `json:"userName"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Tier      string `json:"tier"`
}

// handleCreateUser adds a further user inside the caller's tenant. The
// new user shares the tenant's directory and pools; only the provisioning
// endpoints ever create those.
func (a *App) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	caller, err := a.callerRecord(r)
	if err != nil {
		a.writeCallerError(w, err)
		return
	}
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problems.Write(w, http.StatusBadRequest, "bad-request", "Invalid body", err.Error())
		return
	}
	if req.UserName == "" || req.Role == "" {
		problems.Write(w, http.StatusBadRequest, "bad-request", "Invalid body", "userName and role are required")
		return
	}
	dirs := a.scopedDirs(r.Context())
	sub, err := dirs.CreateEntry(r.Context(), caller.UserPoolID, directory.NewEntry{
		UserName:  req.UserName,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
		Tier:      req.Tier,
		TenantID:  caller.TenantID,
	})
	if err != nil {
		a.writeDirectoryError(w, err)
		return
	}
	if err := a.Idx.Put(r.Context(), userindex.Record{
		TenantID:       caller.TenantID,
		UserID:         req.UserName,
		UserPoolID:     caller.UserPoolID,
		IdentityPoolID: caller.IdentityPoolID,
		ClientID:       caller.ClientID,
		Email:          req.Email,
		Role:           req.Role,
		Tier:           req.Tier,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Sub:            sub,
	}); err != nil {
		a.Log.Errorw("user index write failed", "tenant_id", caller.TenantID, "user_id", req.UserName, "error", err)
		problems.Write(w, http.StatusInternalServerError, "internal", "User creation incomplete", "")
		return
	}
	writeJSON(w, map[string]string{"userName": req.UserName, "sub": sub}, http.StatusCreated)
}

func (a *App) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	caller, err := a.callerRecord(r)
	if err != nil {
		a.writeCallerError(w, err)
		return
	}
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problems.Write(w, http.StatusBadRequest, "bad-request", "Invalid body", err.Error())
		return
	}
	if req.UserName == "" {
		problems.Write(w, http.StatusBadRequest, "bad-request", "Invalid body", "userName is required")
		return
	}
	if err := a.scopedDirs(r.Context()).UpdateEntry(r.Context(), caller.UserPoolID, req.UserName, req.Role, req.FirstName, req.LastName); err != nil {
		a.writeDirectoryError(w, err)
		return
	}
	writeJSON(w, map[string]string{"userName": req.UserName, "status": "updated"}, http.StatusOK)
}

func (a *App) handleSetEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.callerRecord(r)
		if err != nil {
			a.writeCallerError(w, err)
			return
		}
		var req userRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			problems.Write(w, http.StatusBadRequest, "bad-request", "Invalid body", err.Error())
			return
		}
		if err := a.scopedDirs(r.Context()).SetEntryEnabled(r.Context(), caller.UserPoolID, req.UserName, enabled); err != nil {
			a.writeDirectoryError(w, err)
			return
		}
		status := "disabled"
		if enabled {
			status = "enabled"
		}
		writeJSON(w, map[string]string{"userName": req.UserName, "status": status}, http.StatusOK)
	}
}

func (a *App) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	caller, err := a.callerRecord(r)
	if err != nil {
		a.writeCallerError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.scopedDirs(r.Context()).DeleteEntry(r.Context(), caller.UserPoolID, id); err != nil {
		a.writeDirectoryError(w, err)
		return
	}
	if err := a.Idx.Delete(r.Context(), caller.TenantID, id); err != nil {
		a.Log.Errorw("user index delete failed", "tenant_id", caller.TenantID, "user_id", id, "error", err)
		problems.Write(w, http.StatusInternalServerError, "internal", "User deletion incomplete", "")
		return
	}
	writeJSON(w, map[string]string{"userName": id, "status": "deleted"}, http.StatusOK)
}

func (a *App) writeCallerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, federation.ErrNoToken), errors.Is(err, federation.ErrBadToken):
		problems.Write(w, http.StatusUnauthorized, "unauthorized", "Invalid token", "")
	case errors.Is(err, userindex.ErrNotFound):
		problems.Write(w, http.StatusUnauthorized, "unauthorized", "Unknown caller", "")
	default:
		a.Log.Errorw("caller resolution failed", "error", err)
		problems.Write(w, http.StatusInternalServerError, "internal", "Lookup failed", "")
	}
}

func (a *App) writeDirectoryError(w http.ResponseWriter, err error) {
	switch {
	case awserr.IsNotFound(err):
		problems.Write(w, http.StatusNotFound, "not-found", "Unknown user", "")
	case awserr.IsConflict(err):
		problems.Write(w, http.StatusConflict, "user-exists", "User already exists", "")
	default:
		a.Log.Errorw("directory call failed", "error", err)
		problems.Write(w, http.StatusBadRequest, "provider-error", "Directory call failed", "")
	}
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
