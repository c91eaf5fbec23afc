package pg

import (
	"context"
	"database/sql"

	"tessera.id/internal/directory"
	"tessera.id/internal/ids"
)

func (s *Store) CreateAdminUser(ctx context.Context, u directory.AdminUser) (directory.AdminUser, error) {
	if s.db == nil {
		return directory.AdminUser{}, errNoDB
	}
	out := directory.AdminUser{PasswordHash: u.PasswordHash}
	err := s.db.QueryRowContext(ctx, `
		insert into admin_users (id, username, password_hash, created_at)
		values ($1, $2, $3, $4)
		returning id, username, created_at
	`, u.ID, u.Username, u.PasswordHash, u.CreatedAt).Scan(&out.ID, &out.Username, &out.CreatedAt)
	if err != nil {
		return directory.AdminUser{}, mapError(err, "admin user")
	}
	return out, nil
}

func (s *Store) AdminUserByUsername(ctx context.Context, username string) (directory.AdminUser, error) {
	if s.db == nil {
		return directory.AdminUser{}, errNoDB
	}
	var out directory.AdminUser
	err := s.db.QueryRowContext(ctx, `
		select id, username, password_hash, created_at
		from admin_users
		where username = $1
	`, username).Scan(&out.ID, &out.Username, &out.PasswordHash, &out.CreatedAt)
	if err != nil {
		return directory.AdminUser{}, mapError(err, "admin user")
	}
	return out, nil
}

func (s *Store) RegisterIdentity(ctx context.Context, reg directory.NewRegistration) (directory.Registration, error) {
	if s.db == nil {
		return directory.Registration{}, errNoDB
	}
	out := directory.Registration{Identity: reg.Identity, Method: reg.Method, Account: reg.Account}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var projectID ids.ID
		if err := tx.QueryRowContext(ctx, `select project_id from applications where client_id = $1`, reg.ClientID).
			Scan(&projectID); err != nil {
			return mapError(err, "application")
		}
		if _, err := tx.ExecContext(ctx, `insert into identities (id, created_at) values ($1, $2)`,
			reg.Identity.ID, reg.Identity.CreatedAt); err != nil {
			return mapError(err, "identity")
		}
		m := reg.Method
		if _, err := tx.ExecContext(ctx, `
			insert into login_methods (id, identity_id, method_type, identifier, password_hash, is_verified, created_at)
			values ($1, $2, $3, $4, $5, $6, $7)
		`, m.ID, m.IdentityID, m.MethodType, m.Identifier, m.PasswordHash, m.Verified, m.CreatedAt); err != nil {
			return mapError(err, "login method")
		}
		a := reg.Account
		if _, err := tx.ExecContext(ctx, `
			insert into user_accounts (id, identity_id, project_id, local_profile_data, created_at)
			values ($1, $2, $3, $4, $5)
		`, a.ID, a.IdentityID, projectID, []byte(a.Profile), a.CreatedAt); err != nil {
			return mapError(err, "user account")
		}
		out.Account.ProjectID = projectID
		return nil
	})
	if err != nil {
		return directory.Registration{}, err
	}
	return out, nil
}

func (s *Store) PasswordLoginMethod(ctx context.Context, identifier string) (directory.LoginMethod, error) {
	if s.db == nil {
		return directory.LoginMethod{}, errNoDB
	}
	var (
		out  directory.LoginMethod
		hash sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, identity_id, method_type, identifier, password_hash, is_verified, created_at
		from login_methods
		where method_type = $1 and identifier = $2
	`, directory.MethodPassword, identifier).
		Scan(&out.ID, &out.IdentityID, &out.MethodType, &out.Identifier, &hash, &out.Verified, &out.CreatedAt)
	if err != nil {
		return directory.LoginMethod{}, mapError(err, "login method")
	}
	if !hash.Valid {
		return directory.LoginMethod{}, mapError(sql.ErrNoRows, "login method")
	}
	out.PasswordHash = hash.String
	return out, nil
}

func (s *Store) AccountForClient(ctx context.Context, identityID, clientID ids.ID) (directory.UserAccount, error) {
	if s.db == nil {
		return directory.UserAccount{}, errNoDB
	}
	var (
		out     directory.UserAccount
		profile []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select ua.id, ua.identity_id, ua.project_id, ua.local_profile_data, ua.created_at
		from user_accounts ua
		join applications a on a.project_id = ua.project_id
		where ua.identity_id = $1 and a.client_id = $2
	`, identityID, clientID).Scan(&out.ID, &out.IdentityID, &out.ProjectID, &profile, &out.CreatedAt)
	if err != nil {
		return directory.UserAccount{}, mapError(err, "user account")
	}
	out.Profile = profile
	return out, nil
}

func (s *Store) VerifiedIdentifiers(ctx context.Context, identityID ids.ID) ([]string, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select identifier
		from login_methods
		where identity_id = $1 and is_verified
		order by id
	`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var identifier string
		if err := rows.Scan(&identifier); err != nil {
			return nil, err
		}
		out = append(out, identifier)
	}
	return out, rows.Err()
}

func (s *Store) Accounts(ctx context.Context, identityID ids.ID) ([]directory.UserAccount, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, identity_id, project_id, local_profile_data, created_at
		from user_accounts
		where identity_id = $1
		order by id
	`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []directory.UserAccount
	for rows.Next() {
		var (
			acc     directory.UserAccount
			profile []byte
		)
		if err := rows.Scan(&acc.ID, &acc.IdentityID, &acc.ProjectID, &profile, &acc.CreatedAt); err != nil {
			return nil, err
		}
		acc.Profile = profile
		out = append(out, acc)
	}
	return out, rows.Err()
}
