package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tessera.id/internal/auth"
	"tessera.id/internal/ids"
)

const maxNameLen = 255

// NewProject is the input for CreateProject.
type NewProject struct {
	OrgID                 ids.ID
	Name                  string
	SharedIdentityContext bool
}

// NewApplication is the input for CreateApplication.
type NewApplication struct {
	ProjectID    ids.ID
	RedirectURIs []string
}

// TenantService validates and provisions tenant records.
type TenantService struct {
	store   TenantStore
	hasher  PasswordHasher
	secrets func() (string, error)
	now     func() time.Time
}

func NewTenantService(store TenantStore, hasher PasswordHasher) (*TenantService, error) {
	if store == nil {
		return nil, errors.New("tenant store is required")
	}
	if hasher == nil {
		return nil, errors.New("password hasher is required")
	}
	return &TenantService{
		store:   store,
		hasher:  hasher,
		secrets: auth.GenerateClientSecret,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *TenantService) CreateOrganization(ctx context.Context, name string) (Organization, error) {
	var v ValidationError
	name = strings.TrimSpace(name)
	checkLength(&v, "name", name, 1, maxNameLen)
	if err := v.Err(); err != nil {
		return Organization{}, err
	}
	return s.store.CreateOrganization(ctx, Organization{ID: ids.New(), Name: name, CreatedAt: s.now()})
}

func (s *TenantService) CreateProject(ctx context.Context, in NewProject) (Project, error) {
	var v ValidationError
	if err := checkRef(&v, "org_id", in.OrgID); err != nil {
		return Project{}, err
	}
	name := strings.TrimSpace(in.Name)
	checkLength(&v, "name", name, 1, maxNameLen)
	if err := v.Err(); err != nil {
		return Project{}, err
	}
	return s.store.CreateProject(ctx, Project{
		ID:                    ids.New(),
		OrgID:                 in.OrgID,
		Name:                  name,
		SharedIdentityContext: in.SharedIdentityContext,
		CreatedAt:             s.now(),
	})
}

// CreateApplication registers a client under a project and returns its
// credentials. The raw secret is not retrievable afterwards.
func (s *TenantService) CreateApplication(ctx context.Context, in NewApplication) (ApplicationCredentials, error) {
	var v ValidationError
	if err := checkRef(&v, "project_id", in.ProjectID); err != nil {
		return ApplicationCredentials{}, err
	}
	uris := trimAll(in.RedirectURIs)
	if len(uris) == 0 {
		v.Add("redirect_uris", "must contain at least one URI")
	}
	seen := make(map[string]struct{}, len(uris))
	for i, uri := range uris {
		field := fmt.Sprintf("redirect_uris[%d]", i)
		if uri == "" {
			v.Add(field, "is required")
			continue
		}
		if err := checkRedirectURI(uri); err != nil {
			v.Add(field, err.Error())
			continue
		}
		if _, dup := seen[uri]; dup {
			v.Add(field, "is duplicated")
		}
		seen[uri] = struct{}{}
	}
	if err := v.Err(); err != nil {
		return ApplicationCredentials{}, err
	}

	secret, err := s.secrets()
	if err != nil {
		return ApplicationCredentials{}, err
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return ApplicationCredentials{}, fmt.Errorf("hash client secret: %w", err)
	}
	app, err := s.store.CreateApplication(ctx, Application{
		ID:               ids.New(),
		ProjectID:        in.ProjectID,
		ClientID:         ids.New(),
		ClientSecretHash: hash,
		RedirectURIs:     uris,
		CreatedAt:        s.now(),
	})
	if err != nil {
		return ApplicationCredentials{}, err
	}
	return ApplicationCredentials{Application: app, ClientSecret: secret}, nil
}

// UpsertScopes defines or updates named scopes on an application. A name
// repeated within one call keeps its last description.
func (s *TenantService) UpsertScopes(ctx context.Context, appID ids.ID, in []ScopeInput) ([]Scope, error) {
	var v ValidationError
	if err := checkRef(&v, "app_id", appID); err != nil {
		return nil, err
	}
	if len(in) == 0 {
		v.Add("application_scopes", "must contain at least one scope")
	}
	index := make(map[string]int, len(in))
	scopes := make([]Scope, 0, len(in))
	for i, sc := range in {
		name := strings.TrimSpace(sc.Name)
		desc := strings.TrimSpace(sc.Description)
		if name == "" {
			v.Add(fmt.Sprintf("application_scopes[%d].name", i), "is required")
		}
		if desc == "" {
			v.Add(fmt.Sprintf("application_scopes[%d].description", i), "is required")
		}
		if name == "" || desc == "" {
			continue
		}
		if j, ok := index[name]; ok {
			scopes[j].Description = desc
			continue
		}
		index[name] = len(scopes)
		scopes = append(scopes, Scope{
			ID:            ids.New(),
			ApplicationID: appID,
			Name:          name,
			Description:   desc,
		})
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	return s.store.UpsertScopes(ctx, appID, scopes)
}
