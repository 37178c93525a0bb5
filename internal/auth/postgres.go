package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"financas.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore                 { return &userStore{db: s.db} }
func (s *PGStore) Roles(context.Context) RoleStore                 { return &roleStore{db: s.db} }
func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore { return &refreshTokenStore{db: s.db} }
func (s *PGStore) Audit(context.Context) AuditStore                { return &auditStore{db: s.db} }

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

const userColumns = `id, name, email, password_hash, active, email_verified,
	login_attempts, locked_until, last_login, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Active, &u.EmailVerified,
		&u.LoginAttempts, &u.LockedUntil, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func (s *userStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *userStore) CreateWithRole(ctx context.Context, u *User, roleName string) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`insert into users(id, name, email, password_hash, active, email_verified)
		 values($1,$2,$3,$4,$5,$6)
		 on conflict (email) do nothing`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Active, u.EmailVerified,
	)
	if err != nil {
		return err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		return ErrDuplicateEmail
	}
	res, err = tx.ExecContext(ctx,
		`insert into user_roles(user_id, role_id)
		 select $1, id from roles where name=$2`,
		u.ID, roleName,
	)
	if err != nil {
		return err
	}
	assigned, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if assigned == 0 {
		return errors.New("auth: default role " + roleName + " is missing")
	}
	return tx.Commit()
}

// RecordFailedLogin advances the counter and sets the lock in one atomic
// statement, so N concurrent failures always advance the counter by N.
func (s *userStore) RecordFailedLogin(ctx context.Context, userID string, threshold int, lockFor time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`update users
		 set login_attempts = login_attempts + 1,
		     locked_until = case when login_attempts + 1 >= $2
		                         then now() + make_interval(secs => $3)
		                         else locked_until end,
		     updated_at = now()
		 where id = $1`,
		userID, threshold, lockFor.Seconds(),
	)
	return err
}

func (s *userStore) ResetLoginAttempts(ctx context.Context, userID string, lastLogin time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update users
		 set login_attempts = 0, locked_until = null, last_login = $2, updated_at = now()
		 where id = $1`,
		userID, lastLogin,
	)
	return err
}

// Role store ---------------------------------------------------------------

type roleStore struct{ db *sql.DB }

func (s *roleStore) FindByName(ctx context.Context, name string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, active, created_at, updated_at from roles where name=$1`, name)
	var r Role
	if err := row.Scan(&r.ID, &r.Name, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *roleStore) AuthoritiesOf(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select r.name
		 from roles r
		 join user_roles ur on ur.role_id = r.id
		 where ur.user_id = $1 and r.active
		 union
		 select p.name
		 from permissions p
		 join role_permissions rp on rp.permission_id = p.id
		 join roles r on r.id = rp.role_id
		 join user_roles ur on ur.role_id = r.id
		 where ur.user_id = $1 and r.active`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNames(rows)
}

func (s *roleStore) RoleNamesOf(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select r.name
		 from roles r
		 join user_roles ur on ur.role_id = r.id
		 where ur.user_id = $1 and r.active
		 order by r.name`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNames(rows)
}

func (s *roleStore) AssignToUser(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into user_roles(user_id, role_id) values($1,$2) on conflict do nothing`,
		userID, roleID,
	)
	return err
}

// SetPermissions rewrites the role's permission edges in one transaction,
// keeping both sides of the association consistent.
func (s *roleStore) SetPermissions(ctx context.Context, roleID string, permissionNames []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id=$1`, roleID); err != nil {
		return err
	}
	for _, name := range permissionNames {
		_, err := tx.ExecContext(ctx,
			`insert into role_permissions(role_id, permission_id)
			 select $1, id from permissions where name=$2`, roleID, name,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func collectNames(rows *sql.Rows) ([]string, error) {
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Refresh token ledger ------------------------------------------------------

type refreshTokenStore struct{ db *sql.DB }

func (s *refreshTokenStore) Create(ctx context.Context, rec *RefreshTokenRecord) error {
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token, expires_at, device_info, ip_address)
		 values($1,$2,$3,$4,$5,$6)`,
		rec.ID, rec.UserID, rec.Token, rec.ExpiresAt, rec.DeviceInfo, rec.IPAddress,
	)
	return err
}

func (s *refreshTokenStore) FindByToken(ctx context.Context, token string) (*RefreshTokenRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, token, expires_at, revoked, revoked_at, device_info, ip_address, created_at
		 from refresh_tokens where token=$1`, token)
	var rec RefreshTokenRecord
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Token, &rec.ExpiresAt, &rec.Revoked,
		&rec.RevokedAt, &rec.DeviceInfo, &rec.IPAddress, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *refreshTokenStore) Revoke(ctx context.Context, token string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true, revoked_at=$2
		 where token=$1 and not revoked`,
		token, at,
	)
	return err
}

func (s *refreshTokenStore) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true, revoked_at=$2
		 where user_id=$1 and not revoked`,
		userID, at,
	)
	return err
}

func (s *refreshTokenStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from refresh_tokens
		 where expires_at < $1 or (revoked and revoked_at < $1)`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Audit store ---------------------------------------------------------------

type auditStore struct{ db *sql.DB }

func (s *auditStore) Append(ctx context.Context, ev *AuditEvent) error {
	if ev.ID == "" {
		ev.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into audit_logs(id, user_id, action, entity_type, entity_id,
		                        old_value, new_value, ip_address, user_agent)
		 values($1, nullif($2,''), $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.UserID, ev.Action, ev.EntityType, ev.EntityID,
		ev.OldValue, ev.NewValue, ev.IPAddress, ev.UserAgent,
	)
	return err
}

func (s *auditStore) ListRecent(ctx context.Context, limit int) ([]*AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, coalesce(user_id,''), action, entity_type, entity_id,
		        old_value, new_value, ip_address, user_agent, created_at
		 from audit_logs order by created_at desc limit $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*AuditEvent
	for rows.Next() {
		var ev AuditEvent
		err := rows.Scan(&ev.ID, &ev.UserID, &ev.Action, &ev.EntityType, &ev.EntityID,
			&ev.OldValue, &ev.NewValue, &ev.IPAddress, &ev.UserAgent, &ev.CreatedAt)
		if err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (s *auditStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from audit_logs where created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
