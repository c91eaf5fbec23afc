package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"tessera.id/internal/auth"
)

// Guard outcomes as recorded in admin_guard_decisions_total.
const (
	outcomeAllowed   = "allowed"
	outcomeMissing   = "missing_authorization"
	outcomeInvalid   = "invalid_token"
	outcomeForbidden = "forbidden"
	outcomeClock     = "clock_unavailable"
)

// RequireAdmin admits only requests bearing a valid admin token.
func (a *API) RequireAdmin(next http.Handler) http.Handler {
	return a.require(a.adminGuard, next)
}

// RequireUser admits only requests bearing a valid user token.
func (a *API) RequireUser(next http.Handler) http.Handler {
	return a.require(a.userGuard, next)
}

func (a *API) require(g *auth.Guard, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authed, err := g.Check(r)
		if err != nil {
			outcome := guardOutcome(err)
			if g.Kind() == auth.KindAdmin {
				a.metrics.GuardDecision(outcome)
			}
			a.record(r.Context(), "guard.rejected",
				slog.String("guard", g.Kind().String()),
				slog.String("outcome", outcome),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			a.respondError(w, r, err)
			return
		}
		if g.Kind() == auth.KindAdmin {
			a.metrics.GuardDecision(outcomeAllowed)
		}
		next.ServeHTTP(w, authed)
	})
}

func guardOutcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrHeaderMissing):
		return outcomeMissing
	case errors.Is(err, auth.ErrForbidden):
		return outcomeForbidden
	case errors.Is(err, auth.ErrClock):
		return outcomeClock
	default:
		return outcomeInvalid
	}
}
