package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// Store handles RBAC data persistence
type Store struct {
	db *sql.DB
	q  querier
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// DB returns the underlying database handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn against a store bound to a single transaction
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation recognizes unique constraint failures from the supported drivers
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

const permissionColumns = `id, slug, name, description, module, sort_order, is_active, created_at, updated_at`

func scanPermission(row scanner) (*Permission, error) {
	var p Permission
	err := row.Scan(
		&p.ID,
		&p.Slug,
		&p.Name,
		&p.Description,
		&p.Module,
		&p.SortOrder,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePermission inserts a permission
func (s *Store) CreatePermission(ctx context.Context, p *Permission) error {
	query := `
		INSERT INTO permissions (id, slug, name, description, module, sort_order, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.q.ExecContext(ctx, query,
		p.ID,
		p.Slug,
		p.Name,
		p.Description,
		p.Module,
		p.SortOrder,
		p.IsActive,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return Conflictf("permission slug %q already exists", p.Slug)
	}
	if err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

// GetPermission retrieves a permission by ID
func (s *Store) GetPermission(ctx context.Context, id string) (*Permission, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id)
	p, err := scanPermission(row)
	if err == sql.ErrNoRows {
		return nil, NotFoundf("permission not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return p, nil
}

// GetPermissionBySlug retrieves a permission by slug
func (s *Store) GetPermissionBySlug(ctx context.Context, slug string) (*Permission, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE slug = $1`, slug)
	p, err := scanPermission(row)
	if err == sql.ErrNoRows {
		return nil, NotFoundf("permission not found: %s", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return p, nil
}

// ListPermissions lists every permission, active or not, by sort order then slug
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY sort_order ASC, slug ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	permissions := []Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	return permissions, nil
}

// UpdatePermission writes the mutable fields of a permission
func (s *Store) UpdatePermission(ctx context.Context, p *Permission) error {
	query := `
		UPDATE permissions
		SET name = $1, description = $2, module = $3, sort_order = $4, is_active = $5, updated_at = $6
		WHERE id = $7
	`
	res, err := s.q.ExecContext(ctx, query,
		p.Name,
		p.Description,
		p.Module,
		p.SortOrder,
		p.IsActive,
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update permission: %w", err)
	}
	return expectOneRow(res, "permission", p.ID)
}

// DeletePermission removes a permission row
// LockPermission takes a row lock on the permission for the rest of the transaction.
// A no-op update is used because SQLite has no SELECT ... FOR UPDATE; on PostgreSQL
// it blocks a concurrent delete or grant of the same permission until commit.
func (s *Store) LockPermission(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `UPDATE permissions SET id = id WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to lock permission: %w", err)
	}
	return expectOneRow(res, "permission", id)
}

// DeletePermission removes a permission row
func (s *Store) DeletePermission(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	return expectOneRow(res, "permission", id)
}

const roleColumns = `id, name, slug, description, is_system, is_active, grants, created_at, updated_at`

func scanRole(row scanner) (*Role, error) {
	var role Role
	var grantsJSON string
	err := row.Scan(
		&role.ID,
		&role.Name,
		&role.Slug,
		&role.Description,
		&role.IsSystem,
		&role.IsActive,
		&grantsJSON,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(grantsJSON), &role.Grants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grants: %w", err)
	}
	if role.Grants == nil {
		role.Grants = []RoleGrant{}
	}
	return &role, nil
}

func marshalGrants(grants []RoleGrant) (string, error) {
	if grants == nil {
		grants = []RoleGrant{}
	}
	data, err := json.Marshal(grants)
	if err != nil {
		return "", fmt.Errorf("failed to marshal grants: %w", err)
	}
	return string(data), nil
}

// CreateRole inserts a role together with its grants
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	grantsJSON, err := marshalGrants(role.Grants)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO roles (id, name, slug, description, is_system, is_active, grants, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.q.ExecContext(ctx, query,
		role.ID,
		role.Name,
		role.Slug,
		role.Description,
		role.IsSystem,
		role.IsActive,
		grantsJSON,
		role.CreatedAt,
		role.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return Conflictf("role slug %q already exists", role.Slug)
	}
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// GetRole retrieves a role by ID
func (s *Store) GetRole(ctx context.Context, id string) (*Role, error) {
	role, err := scanRole(s.q.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, NotFoundf("role not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// GetRoleBySlug retrieves a role by slug
func (s *Store) GetRoleBySlug(ctx context.Context, slug string) (*Role, error) {
	role, err := scanRole(s.q.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE slug = $1`, slug))
	if err == sql.ErrNoRows {
		return nil, NotFoundf("role not found: %s", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// ListRoles lists all roles, system roles first
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY is_system DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := []Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

// UpdateRole rewrites a role row, grants included, in a single statement
func (s *Store) UpdateRole(ctx context.Context, role *Role) error {
	grantsJSON, err := marshalGrants(role.Grants)
	if err != nil {
		return err
	}

	query := `
		UPDATE roles
		SET name = $1, slug = $2, description = $3, is_active = $4, grants = $5, updated_at = $6
		WHERE id = $7
	`
	res, err := s.q.ExecContext(ctx, query,
		role.Name,
		role.Slug,
		role.Description,
		role.IsActive,
		grantsJSON,
		role.UpdatedAt,
		role.ID,
	)
	if isUniqueViolation(err) {
		return Conflictf("role slug %q already exists", role.Slug)
	}
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return expectOneRow(res, "role", role.ID)
}

// DeleteRole removes a role row
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return expectOneRow(res, "role", id)
}

// RolesReferencingPermission returns the slugs of roles holding a grant on the permission
func (s *Store) RolesReferencingPermission(ctx context.Context, permissionID string) ([]string, error) {
	roles, err := s.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	var slugs []string
	for i := range roles {
		if _, ok := roles[i].Grant(permissionID); ok {
			slugs = append(slugs, roles[i].Slug)
		}
	}
	return slugs, nil
}

// GetSidebarOrder returns the persisted order, or an empty order when none was saved
func (s *Store) GetSidebarOrder(ctx context.Context) (*SidebarOrder, error) {
	var idsJSON string
	var order SidebarOrder
	err := s.q.QueryRowContext(ctx, `SELECT permission_ids, updated_at FROM sidebar_order WHERE id = 1`).
		Scan(&idsJSON, &order.UpdatedAt)
	if err == sql.ErrNoRows {
		return &SidebarOrder{PermissionIDs: []string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sidebar order: %w", err)
	}
	if err := json.Unmarshal([]byte(idsJSON), &order.PermissionIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sidebar order: %w", err)
	}
	return &order, nil
}

// SaveSidebarOrder replaces the persisted order with a single upsert
func (s *Store) SaveSidebarOrder(ctx context.Context, order *SidebarOrder) error {
	data, err := json.Marshal(order.PermissionIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal sidebar order: %w", err)
	}
	query := `
		INSERT INTO sidebar_order (id, permission_ids, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET permission_ids = excluded.permission_ids, updated_at = excluded.updated_at
	`
	if _, err := s.q.ExecContext(ctx, query, string(data), order.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save sidebar order: %w", err)
	}
	return nil
}

const userColumns = `user_id, email, role_id, is_active, created_at, updated_at`

func scanUser(row scanner) (*AdminUser, error) {
	var u AdminUser
	var roleID sql.NullString
	if err := row.Scan(&u.UserID, &u.Email, &roleID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if roleID.Valid {
		u.RoleID = roleID.String
	}
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// UpsertUser creates or replaces an admin user record
func (s *Store) UpsertUser(ctx context.Context, u *AdminUser) error {
	query := `
		INSERT INTO admin_users (user_id, email, role_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			email = excluded.email,
			role_id = excluded.role_id,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`
	_, err := s.q.ExecContext(ctx, query,
		u.UserID,
		u.Email,
		nullString(u.RoleID),
		u.IsActive,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert admin user: %w", err)
	}
	return nil
}

// GetUser retrieves an admin user by identity-provider id
func (s *Store) GetUser(ctx context.Context, userID string) (*AdminUser, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM admin_users WHERE user_id = $1`, userID))
	if err == sql.ErrNoRows {
		return nil, NotFoundf("admin user not found: %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin user: %w", err)
	}
	return u, nil
}

// ListUsers lists admin users ordered by id
func (s *Store) ListUsers(ctx context.Context) ([]AdminUser, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+userColumns+` FROM admin_users ORDER BY user_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list admin users: %w", err)
	}
	defer rows.Close()

	users := []AdminUser{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan admin user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list admin users: %w", err)
	}
	return users, nil
}

// CountActiveUsersWithRole counts active admin users holding the role
func (s *Store) CountActiveUsersWithRole(ctx context.Context, roleID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM admin_users WHERE role_id = $1 AND is_active = $2`, roleID, true,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count role holders: %w", err)
	}
	return n, nil
}

// DetachRole clears the role reference from every user still holding it
func (s *Store) DetachRole(ctx context.Context, roleID string, now time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE admin_users SET role_id = NULL, updated_at = $1 WHERE role_id = $2`, now, roleID,
	)
	if err != nil {
		return fmt.Errorf("failed to detach role from users: %w", err)
	}
	return nil
}

func expectOneRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return NotFoundf("%s not found: %s", kind, id)
	}
	return nil
}
