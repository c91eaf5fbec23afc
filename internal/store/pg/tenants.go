package pg

import (
	"context"

	"tessera.id/internal/directory"
	"tessera.id/internal/ids"
)

func (s *Store) CreateOrganization(ctx context.Context, org directory.Organization) (directory.Organization, error) {
	if s.db == nil {
		return directory.Organization{}, errNoDB
	}
	var out directory.Organization
	err := s.db.QueryRowContext(ctx, `
		insert into organizations (id, name, created_at)
		values ($1, $2, $3)
		returning id, name, created_at
	`, org.ID, org.Name, org.CreatedAt).Scan(&out.ID, &out.Name, &out.CreatedAt)
	if err != nil {
		return directory.Organization{}, mapError(err, "organization")
	}
	return out, nil
}

func (s *Store) CreateProject(ctx context.Context, p directory.Project) (directory.Project, error) {
	if s.db == nil {
		return directory.Project{}, errNoDB
	}
	var out directory.Project
	err := s.db.QueryRowContext(ctx, `
		insert into projects (id, org_id, name, shared_identity_context, created_at)
		values ($1, $2, $3, $4, $5)
		returning id, org_id, name, shared_identity_context, created_at
	`, p.ID, p.OrgID, p.Name, p.SharedIdentityContext, p.CreatedAt).
		Scan(&out.ID, &out.OrgID, &out.Name, &out.SharedIdentityContext, &out.CreatedAt)
	if err != nil {
		return directory.Project{}, mapError(err, "project")
	}
	return out, nil
}

func (s *Store) CreateApplication(ctx context.Context, app directory.Application) (directory.Application, error) {
	if s.db == nil {
		return directory.Application{}, errNoDB
	}
	out := directory.Application{ClientSecretHash: app.ClientSecretHash}
	err := s.db.QueryRowContext(ctx, `
		insert into applications (id, project_id, client_id, client_secret_hash, redirect_uris, created_at)
		values ($1, $2, $3, $4, $5, $6)
		returning id, project_id, client_id, redirect_uris, created_at
	`, app.ID, app.ProjectID, app.ClientID, app.ClientSecretHash, app.RedirectURIs, app.CreatedAt).
		Scan(&out.ID, &out.ProjectID, &out.ClientID, textArray(&out.RedirectURIs), &out.CreatedAt)
	if err != nil {
		return directory.Application{}, mapError(err, "application")
	}
	return out, nil
}

// UpsertScopes writes all scopes in one statement. Existing (app_id, name)
// rows keep their id and take the new description.
func (s *Store) UpsertScopes(ctx context.Context, appID ids.ID, scopes []directory.Scope) ([]directory.Scope, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	idList := make([]string, len(scopes))
	names := make([]string, len(scopes))
	descs := make([]string, len(scopes))
	for i, sc := range scopes {
		idList[i] = sc.ID.String()
		names[i] = sc.Name
		descs[i] = sc.Description
	}
	rows, err := s.db.QueryContext(ctx, `
		insert into permissions (id, app_id, name, description)
		select u.id, $2::uuid, u.name, u.description
		from unnest($1::uuid[], $3::text[], $4::text[]) as u(id, name, description)
		on conflict (app_id, name) do update
		set description = excluded.description
		returning id, app_id, name, description, created_at
	`, idList, appID, names, descs)
	if err != nil {
		return nil, mapError(err, "scopes")
	}
	defer rows.Close()

	out := make([]directory.Scope, 0, len(scopes))
	for rows.Next() {
		var sc directory.Scope
		if err := rows.Scan(&sc.ID, &sc.ApplicationID, &sc.Name, &sc.Description, &sc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "scopes")
	}
	return out, nil
}
