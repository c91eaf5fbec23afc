package directory

import (
	"encoding/json"
	"time"

	"tessera.id/internal/ids"
)

// MethodPassword is the login method type backed by a password hash.
const MethodPassword = "password"

type Organization struct {
	ID        ids.ID    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Project struct {
	ID                    ids.ID    `json:"id"`
	OrgID                 ids.ID    `json:"org_id"`
	Name                  string    `json:"name"`
	SharedIdentityContext bool      `json:"shared_identity_context"`
	CreatedAt             time.Time `json:"created_at"`
}

// Application is an OAuth-style client. The secret is stored only as a hash.
type Application struct {
	ID               ids.ID    `json:"application_id"`
	ProjectID        ids.ID    `json:"project_id"`
	ClientID         ids.ID    `json:"client_id"`
	ClientSecretHash string    `json:"-"`
	RedirectURIs     []string  `json:"redirect_uris"`
	CreatedAt        time.Time `json:"created_at"`
}

// ApplicationCredentials carries the raw client secret. It is produced once,
// at creation, and never again.
type ApplicationCredentials struct {
	Application
	ClientSecret string `json:"client_secret"`
}

type Scope struct {
	ID            ids.ID    `json:"id"`
	ApplicationID ids.ID    `json:"application_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

type ScopeInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type AdminUser struct {
	ID           ids.ID    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Identity struct {
	ID        ids.ID    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginMethod struct {
	ID           ids.ID    `json:"id"`
	IdentityID   ids.ID    `json:"identity_id"`
	MethodType   string    `json:"method_type"`
	Identifier   string    `json:"identifier"`
	PasswordHash string    `json:"-"`
	Verified     bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserAccount is an identity's membership of one project.
type UserAccount struct {
	ID         ids.ID          `json:"id"`
	IdentityID ids.ID          `json:"identity_id"`
	ProjectID  ids.ID          `json:"project_id"`
	Profile    json.RawMessage `json:"profile"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewRegistration is everything persisted atomically when an end user signs up.
type NewRegistration struct {
	ClientID ids.ID
	Identity Identity
	Method   LoginMethod
	Account  UserAccount
}

// Registration is the stored result of a sign-up.
type Registration struct {
	Identity Identity
	Method   LoginMethod
	Account  UserAccount
}

// Me is the self-view of an authenticated end user.
type Me struct {
	IdentityID  ids.ID        `json:"identity_id"`
	Identifiers []string      `json:"identifiers"`
	Accounts    []UserAccount `json:"accounts"`
}
