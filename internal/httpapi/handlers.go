package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"tessera.id/internal/audit"
	"tessera.id/internal/auth"
	"tessera.id/internal/directory"
	"tessera.id/internal/ids"
	"tessera.id/internal/obs"
)

const serviceName = "tessera-api"

// Pinger is satisfied by the PostgreSQL store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe reports readiness by pinging the database.
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Tenants provisions organizations, projects, applications and scopes.
type Tenants interface {
	CreateOrganization(ctx context.Context, name string) (directory.Organization, error)
	CreateProject(ctx context.Context, in directory.NewProject) (directory.Project, error)
	CreateApplication(ctx context.Context, in directory.NewApplication) (directory.ApplicationCredentials, error)
	UpsertScopes(ctx context.Context, appID ids.ID, in []directory.ScopeInput) ([]directory.Scope, error)
}

// Identities registers and authenticates administrators and end users.
type Identities interface {
	RegisterAdmin(ctx context.Context, username, password string) (directory.AdminUser, error)
	AuthenticateAdmin(ctx context.Context, username, password string) (directory.AdminUser, error)
	RegisterUser(ctx context.Context, in directory.UserRegistration) (directory.Registration, error)
	AuthenticateUser(ctx context.Context, in directory.UserLogin) (directory.UserAccount, error)
	Me(ctx context.Context, identityID ids.ID) (directory.Me, error)
}

// Tokens issues and verifies access tokens.
type Tokens interface {
	Issue(subject string, kind auth.Kind) (auth.IssuedToken, error)
	auth.Verifier
}

// Deps is everything the HTTP layer needs. Tenants, Identities and Tokens
// are required.
type Deps struct {
	Tenants    Tenants
	Identities Identities
	Tokens     Tokens
	Ready      readinessChecker
	Metrics    *obs.Metrics
	Audit      *audit.Logger
	Logger     *slog.Logger
	Version    string

	CORSOrigins  []string
	MaxBodyBytes int64
	RateLimit    bool
}

// API is the HTTP layer.
type API struct {
	router     chi.Router
	tenants    Tenants
	identities Identities
	tokens     Tokens
	ready      readinessChecker
	metrics    *obs.Metrics
	audit      *audit.Logger
	log        *slog.Logger
	version    string

	adminGuard *auth.Guard
	userGuard  *auth.Guard
	limiter    *RateLimiter
}

func New(d Deps) (*API, error) {
	if d.Tenants == nil || d.Identities == nil || d.Tokens == nil {
		return nil, errors.New("httpapi: tenants, identities and tokens are required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = obs.NewMetrics()
	}
	if d.Audit == nil {
		d.Audit = audit.New(d.Logger)
	}
	if d.Ready == nil {
		d.Ready = ReadyProbe{}
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = 1 << 20
	}

	a := &API{
		tenants:    d.Tenants,
		identities: d.Identities,
		tokens:     d.Tokens,
		ready:      d.Ready,
		metrics:    d.Metrics,
		audit:      d.Audit,
		log:        d.Logger,
		version:    d.Version,
		adminGuard: auth.NewAdminGuard(d.Tokens),
		userGuard:  auth.NewUserGuard(d.Tokens),
	}
	if d.RateLimit {
		a.limiter = NewRateLimiter()
	}
	a.router = a.routes(d)
	return a, nil
}

// Handler returns the root handler for the HTTP server.
func (a *API) Handler() http.Handler { return a.router }

func (a *API) routes(d Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logging(a.log))
	r.Use(chimiddleware.Recoverer)
	r.Use(a.metrics.Instrument)
	r.Use(SecurityHeaders)
	r.Use(CORS(d.CORSOrigins))
	r.Use(MaxBodyBytes(d.MaxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "The resource does not exist")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.With(a.limit(RuleDefault)).Get("/v1/info", a.Info)

	r.Route("/admin", func(r chi.Router) {
		r.With(a.limit(RuleAuth)).Post("/register", a.adminRegister)
		r.With(a.limit(RuleAuth)).Post("/login", a.adminLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.RequireAdmin)
			r.With(a.limit(RuleDefault)).Get("/metrics", a.metrics.Handler().ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(a.limit(RuleAdminWrite))
				r.Post("/organizations", a.createOrganization)
				r.Post("/projects", a.createProject)
				r.Post("/applications", a.createApplication)
				r.Put("/applications/{app_id}/scopes", a.upsertScopes)
			})
		})
	})

	r.Route("/auth", func(r chi.Router) {
		r.With(a.limit(RuleAuth)).Post("/register", a.userRegister)
		r.With(a.limit(RuleAuth)).Post("/login", a.userLogin)
		r.With(a.limit(RuleMe), a.RequireUser).Get("/me", a.me)
	})
	return r
}

func (a *API) limit(rule RateRule) func(http.Handler) http.Handler {
	if a.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return a.limiter.Limit(rule)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		a.log.WarnContext(r.Context(), "readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) record(ctx context.Context, event string, attrs ...slog.Attr) {
	if err := a.audit.Record(ctx, event, attrs...); err != nil {
		a.log.WarnContext(ctx, "audit record failed", "event", event, "error", err)
	}
}
