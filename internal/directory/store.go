package directory

import (
	"context"

	"tessera.id/internal/ids"
)

// TenantStore persists the organization → project → application hierarchy.
type TenantStore interface {
	CreateOrganization(ctx context.Context, org Organization) (Organization, error)
	CreateProject(ctx context.Context, p Project) (Project, error)
	CreateApplication(ctx context.Context, app Application) (Application, error)
	// UpsertScopes inserts scopes, updating the description of any whose
	// (application, name) already exists, and returns the stored rows.
	UpsertScopes(ctx context.Context, appID ids.ID, scopes []Scope) ([]Scope, error)
}

// IdentityStore persists administrators and end-user identities.
type IdentityStore interface {
	CreateAdminUser(ctx context.Context, u AdminUser) (AdminUser, error)
	AdminUserByUsername(ctx context.Context, username string) (AdminUser, error)

	// RegisterIdentity stores the identity, its login method and its account
	// in the project owning reg.ClientID, all or nothing.
	RegisterIdentity(ctx context.Context, reg NewRegistration) (Registration, error)
	PasswordLoginMethod(ctx context.Context, identifier string) (LoginMethod, error)
	AccountForClient(ctx context.Context, identityID, clientID ids.ID) (UserAccount, error)
	VerifiedIdentifiers(ctx context.Context, identityID ids.ID) ([]string, error)
	Accounts(ctx context.Context, identityID ids.ID) ([]UserAccount, error)
}

// PasswordHasher hashes and verifies secrets.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}
