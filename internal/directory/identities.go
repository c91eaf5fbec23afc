package directory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"tessera.id/internal/ids"
)

const (
	minCredentialLen = 6
	maxCredentialLen = 50
	maxIdentifierLen = 255

	// decoyPassword seeds the hash verified for unknown usernames and
	// identifiers so they cost as much as a wrong password.
	decoyPassword = "tessera-decoy-credential"
)

// UserRegistration is the input for RegisterUser.
type UserRegistration struct {
	ClientID   ids.ID
	MethodType string
	Identifier string
	Password   string
	Profile    json.RawMessage
}

// UserLogin is the input for AuthenticateUser.
type UserLogin struct {
	ClientID   ids.ID
	Identifier string
	Password   string
}

// IdentityOption configures an IdentityService.
type IdentityOption func(*IdentityService)

// WithAdminRegistration enables self-service creation of administrators.
func WithAdminRegistration(enabled bool) IdentityOption {
	return func(s *IdentityService) { s.allowAdminRegistration = enabled }
}

// IdentityService manages administrators and end-user identities.
type IdentityService struct {
	store                  IdentityStore
	hasher                 PasswordHasher
	allowAdminRegistration bool
	now                    func() time.Time

	decoyOnce sync.Once
	decoyHash string
}

func NewIdentityService(store IdentityStore, hasher PasswordHasher, opts ...IdentityOption) (*IdentityService, error) {
	if store == nil {
		return nil, errors.New("identity store is required")
	}
	if hasher == nil {
		return nil, errors.New("password hasher is required")
	}
	s := &IdentityService{
		store:  store,
		hasher: hasher,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *IdentityService) RegisterAdmin(ctx context.Context, username, password string) (AdminUser, error) {
	if !s.allowAdminRegistration {
		return AdminUser{}, ErrRegistrationDisabled
	}
	var v ValidationError
	username = strings.TrimSpace(username)
	checkLength(&v, "username", username, minCredentialLen, maxCredentialLen)
	checkLength(&v, "password", password, minCredentialLen, maxCredentialLen)
	if err := v.Err(); err != nil {
		return AdminUser{}, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return AdminUser{}, err
	}
	return s.store.CreateAdminUser(ctx, AdminUser{
		ID:           ids.New(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	})
}

// AuthenticateAdmin checks an administrator's password. Unknown usernames and
// wrong passwords both yield ErrInvalidCredentials.
func (s *IdentityService) AuthenticateAdmin(ctx context.Context, username, password string) (AdminUser, error) {
	var v ValidationError
	username = strings.TrimSpace(username)
	if username == "" {
		v.Add("username", "is required")
	}
	if password == "" {
		v.Add("password", "is required")
	}
	if err := v.Err(); err != nil {
		return AdminUser{}, err
	}
	u, err := s.store.AdminUserByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		s.verifyDecoy(password)
		return AdminUser{}, ErrInvalidCredentials
	}
	if err != nil {
		return AdminUser{}, err
	}
	if err := s.hasher.Verify(u.PasswordHash, password); err != nil {
		return AdminUser{}, ErrInvalidCredentials
	}
	return u, nil
}

// verifyDecoy runs the hasher against a fixed hash so a missing account takes
// as long to reject as a wrong password.
func (s *IdentityService) verifyDecoy(password string) {
	s.decoyOnce.Do(func() {
		s.decoyHash, _ = s.hasher.Hash(decoyPassword)
	})
	if s.decoyHash != "" {
		_ = s.hasher.Verify(s.decoyHash, password)
	}
}

// RegisterUser creates an identity with a password login method and an
// account in the project that owns in.ClientID.
func (s *IdentityService) RegisterUser(ctx context.Context, in UserRegistration) (Registration, error) {
	var v ValidationError
	if err := checkRef(&v, "client_id", in.ClientID); err != nil {
		return Registration{}, err
	}
	method := strings.ToLower(strings.TrimSpace(in.MethodType))
	if method == "" {
		method = MethodPassword
	}
	if method != MethodPassword {
		v.Add("method_type", "unsupported login method")
	}
	identifier := strings.TrimSpace(in.Identifier)
	checkLength(&v, "identifier", identifier, 1, maxIdentifierLen)
	checkLength(&v, "password", in.Password, minCredentialLen, maxCredentialLen)
	profile, ok := normalizeProfile(in.Profile)
	if !ok {
		v.Add("profile", "must be a JSON object")
	}
	if err := v.Err(); err != nil {
		return Registration{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Registration{}, err
	}
	now := s.now()
	identityID := ids.New()
	return s.store.RegisterIdentity(ctx, NewRegistration{
		ClientID: in.ClientID,
		Identity: Identity{ID: identityID, CreatedAt: now},
		Method: LoginMethod{
			ID:           ids.New(),
			IdentityID:   identityID,
			MethodType:   method,
			Identifier:   identifier,
			PasswordHash: hash,
			CreatedAt:    now,
		},
		Account: UserAccount{
			ID:         ids.New(),
			IdentityID: identityID,
			Profile:    profile,
			CreatedAt:  now,
		},
	})
}

// AuthenticateUser checks a password login and resolves the identity's
// account in the client's project.
func (s *IdentityService) AuthenticateUser(ctx context.Context, in UserLogin) (UserAccount, error) {
	var v ValidationError
	if err := checkRef(&v, "client_id", in.ClientID); err != nil {
		return UserAccount{}, err
	}
	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" {
		v.Add("identifier", "is required")
	}
	if in.Password == "" {
		v.Add("password", "is required")
	}
	if err := v.Err(); err != nil {
		return UserAccount{}, err
	}

	method, err := s.store.PasswordLoginMethod(ctx, identifier)
	if errors.Is(err, ErrNotFound) {
		s.verifyDecoy(in.Password)
		return UserAccount{}, ErrInvalidCredentials
	}
	if err != nil {
		return UserAccount{}, err
	}
	if err := s.hasher.Verify(method.PasswordHash, in.Password); err != nil {
		return UserAccount{}, ErrInvalidCredentials
	}
	account, err := s.store.AccountForClient(ctx, method.IdentityID, in.ClientID)
	if errors.Is(err, ErrNotFound) {
		return UserAccount{}, ErrInvalidCredentials
	}
	return account, err
}

// Me returns the verified identifiers and accounts of an identity. An
// identity with no verified login method is reported as ErrNotFound.
func (s *IdentityService) Me(ctx context.Context, identityID ids.ID) (Me, error) {
	var v ValidationError
	if err := checkRef(&v, "identity_id", identityID); err != nil {
		return Me{}, err
	}
	if err := v.Err(); err != nil {
		return Me{}, err
	}
	identifiers, err := s.store.VerifiedIdentifiers(ctx, identityID)
	if err != nil {
		return Me{}, err
	}
	if len(identifiers) == 0 {
		return Me{}, ErrNotFound
	}
	accounts, err := s.store.Accounts(ctx, identityID)
	if err != nil {
		return Me{}, err
	}
	return Me{IdentityID: identityID, Identifiers: identifiers, Accounts: accounts}, nil
}

func normalizeProfile(raw json.RawMessage) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage(`{}`), true
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, false
	}
	return json.RawMessage(trimmed), true
}
