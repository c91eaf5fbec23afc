package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tessera.id/internal/auth"
	"tessera.id/internal/directory"
	"tessera.id/internal/ids"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type adminTokenResponse struct {
	UserID      ids.ID    `json:"user_id"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (a *API) adminRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	user, err := a.identities.RegisterAdmin(r.Context(), req.Username, req.Password)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.record(r.Context(), "admin.registered",
		slog.String("user_id", user.ID.String()),
		slog.String("username", user.Username),
	)
	a.writeAdminToken(w, r, http.StatusCreated, user)
}

func (a *API) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	user, err := a.identities.AuthenticateAdmin(r.Context(), req.Username, req.Password)
	if err != nil {
		a.record(r.Context(), "admin.login_failed", slog.String("username", req.Username))
		a.respondError(w, r, err)
		return
	}
	a.record(r.Context(), "admin.login", slog.String("user_id", user.ID.String()))
	a.writeAdminToken(w, r, http.StatusOK, user)
}

func (a *API) writeAdminToken(w http.ResponseWriter, r *http.Request, code int, user directory.AdminUser) {
	tok, err := a.tokens.Issue(user.ID.String(), auth.KindAdmin)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, code, adminTokenResponse{
		UserID:      user.ID,
		AccessToken: tok.Value,
		TokenType:   "Bearer",
		ExpiresAt:   tok.ExpiresAt,
	})
}

type organizationRequest struct {
	Name string `json:"name"`
}

func (a *API) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req organizationRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	org, err := a.tenants.CreateOrganization(r.Context(), req.Name)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.record(r.Context(), "tenant.organization_created", slog.String("org_id", org.ID.String()))
	writeJSON(w, http.StatusCreated, org)
}

type projectRequest struct {
	OrgID                 ids.ID `json:"org_id"`
	Name                  string `json:"name"`
	SharedIdentityContext bool   `json:"shared_identity_context"`
}

func (a *API) createProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	project, err := a.tenants.CreateProject(r.Context(), directory.NewProject{
		OrgID:                 req.OrgID,
		Name:                  req.Name,
		SharedIdentityContext: req.SharedIdentityContext,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.record(r.Context(), "tenant.project_created",
		slog.String("project_id", project.ID.String()),
		slog.String("org_id", project.OrgID.String()),
	)
	writeJSON(w, http.StatusCreated, project)
}

type applicationRequest struct {
	ProjectID    ids.ID   `json:"project_id"`
	RedirectURIs []string `json:"redirect_uris"`
}

func (a *API) createApplication(w http.ResponseWriter, r *http.Request) {
	var req applicationRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	creds, err := a.tenants.CreateApplication(r.Context(), directory.NewApplication{
		ProjectID:    req.ProjectID,
		RedirectURIs: req.RedirectURIs,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.record(r.Context(), "tenant.application_created",
		slog.String("application_id", creds.ID.String()),
		slog.String("client_id", creds.ClientID.String()),
	)
	writeJSON(w, http.StatusCreated, creds)
}

type scopesRequest struct {
	ApplicationScopes []directory.ScopeInput `json:"application_scopes"`
}

type scopesResponse struct {
	Scopes []directory.Scope `json:"scopes"`
}

func (a *API) upsertScopes(w http.ResponseWriter, r *http.Request) {
	appID, err := ids.Parse(chi.URLParam(r, "app_id"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	var req scopesRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	scopes, err := a.tenants.UpsertScopes(r.Context(), appID, req.ApplicationScopes)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.record(r.Context(), "tenant.scopes_upserted",
		slog.String("application_id", appID.String()),
		slog.Int("count", len(scopes)),
	)
	writeJSON(w, http.StatusOK, scopesResponse{Scopes: scopes})
}
