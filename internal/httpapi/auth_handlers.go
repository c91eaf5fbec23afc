package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"tessera.id/internal/auth"
	"tessera.id/internal/directory"
	"tessera.id/internal/ids"
)

type userRegisterRequest struct {
	ClientID   ids.ID          `json:"client_id"`
	MethodType string          `json:"method_type"`
	Identifier string          `json:"identifier"`
	Password   string          `json:"password"`
	Profile    json.RawMessage `json:"profile"`
}

type userLoginRequest struct {
	ClientID   ids.ID `json:"client_id"`
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type userTokenResponse struct {
	IdentityID  ids.ID    `json:"identity_id"`
	AccountID   ids.ID    `json:"account_id"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (a *API) userRegister(w http.ResponseWriter, r *http.Request) {
	var req userRegisterRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	reg, err := a.identities.RegisterUser(r.Context(), directory.UserRegistration{
		ClientID:   req.ClientID,
		MethodType: req.MethodType,
		Identifier: req.Identifier,
		Password:   req.Password,
		Profile:    req.Profile,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.record(r.Context(), "user.registered",
		slog.String("identity_id", reg.Identity.ID.String()),
		slog.String("account_id", reg.Account.ID.String()),
		slog.String("client_id", req.ClientID.String()),
	)
	a.writeUserToken(w, r, http.StatusCreated, reg.Account)
}

func (a *API) userLogin(w http.ResponseWriter, r *http.Request) {
	var req userLoginRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	account, err := a.identities.AuthenticateUser(r.Context(), directory.UserLogin{
		ClientID:   req.ClientID,
		Identifier: req.Identifier,
		Password:   req.Password,
	})
	if err != nil {
		a.record(r.Context(), "user.login_failed", slog.String("client_id", req.ClientID.String()))
		a.respondError(w, r, err)
		return
	}
	a.record(r.Context(), "user.login",
		slog.String("identity_id", account.IdentityID.String()),
		slog.String("account_id", account.ID.String()),
	)
	a.writeUserToken(w, r, http.StatusOK, account)
}

func (a *API) writeUserToken(w http.ResponseWriter, r *http.Request, code int, account directory.UserAccount) {
	tok, err := a.tokens.Issue(account.IdentityID.String(), auth.KindUser)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, code, userTokenResponse{
		IdentityID:  account.IdentityID,
		AccountID:   account.ID,
		AccessToken: tok.Value,
		TokenType:   "Bearer",
		ExpiresAt:   tok.ExpiresAt,
	})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		a.respondError(w, r, auth.ErrInvalidToken)
		return
	}
	identityID, err := ids.Parse(principal.Subject)
	if err != nil {
		// A correctly signed token whose subject is not an identity.
		a.respondError(w, r, auth.ErrInvalidToken)
		return
	}
	me, err := a.identities.Me(r.Context(), identityID)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}
