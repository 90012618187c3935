package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/department-admin/internal/database"
	"github.com/iliyamo/department-admin/internal/model"
	"github.com/iliyamo/department-admin/internal/rbac"
)

// RoleRepo owns the roles, permissions and role_permissions tables.  It
// is the rbac.GrantStore used by the authorizer.
type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

var _ rbac.GrantStore = (*RoleRepo)(nil)

// RolePermissions returns the whole grant matrix in one query.
func (r *RoleRepo) RolePermissions(ctx context.Context) (map[model.RoleID][]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT rp.role_id, p.name
		   FROM role_permissions rp
		   JOIN permissions p ON p.id = rp.permission_id
		  ORDER BY rp.role_id, p.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.RoleID][]string)
	for rows.Next() {
		var (
			role model.RoleID
			name string
		)
		if err := rows.Scan(&role, &name); err != nil {
			return nil, err
		}
		out[role] = append(out[role], name)
	}
	return out, rows.Err()
}

// Grant links role to permission.  Granting an existing pair is a no-op.
func (r *RoleRepo) Grant(ctx context.Context, role model.RoleID, permission string) error {
	// INSERT IGNORE downgrades foreign key failures to warnings.
	if !role.Valid() {
		return rbac.ErrUnknownRole
	}
	id, err := r.permissionID(ctx, permission)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO role_permissions (role_id, permission_id) VALUES (?,?)", role, id)
	if isMissingReference(err) {
		return rbac.ErrUnknownRole
	}
	return err
}

// Revoke removes the pair.  Revoking a missing pair is a no-op.
func (r *RoleRepo) Revoke(ctx context.Context, role model.RoleID, permission string) error {
	id, err := r.permissionID(ctx, permission)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		"DELETE FROM role_permissions WHERE role_id=? AND permission_id=?", role, id)
	return err
}

func (r *RoleRepo) permissionID(ctx context.Context, name string) (uint64, error) {
	var id uint64
	err := r.DB.QueryRowContext(ctx, "SELECT id FROM permissions WHERE name=? LIMIT 1", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, rbac.ErrUnknownPermission
	}
	return id, err
}

// Permissions lists the permission catalogue.
func (r *RoleRepo) Permissions(ctx context.Context) ([]model.Permission, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT id, name, category FROM permissions ORDER BY category, name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Permission
	for rows.Next() {
		var p model.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Category); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Seed idempotently writes the fixed roles and the permission catalogue.
// Default grants are written only for permissions this call inserts, so
// a grant an administrator revoked is not brought back by a later seed.
func (r *RoleRepo) Seed(ctx context.Context) error {
	return database.InTx(ctx, r.DB, func(tx *sql.Tx) error {
		for _, id := range model.AllRoles() {
			if _, err := tx.ExecContext(ctx,
				"INSERT IGNORE INTO roles (id, name) VALUES (?,?)", id, id.String()); err != nil {
				return err
			}
		}
		for _, p := range model.PermissionCatalogue {
			res, err := tx.ExecContext(ctx,
				"INSERT IGNORE INTO permissions (name, category) VALUES (?,?)", p.Name, p.Category)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				continue
			}
			id, err := lastID(res)
			if err != nil {
				return err
			}
			for _, role := range model.DefaultGrants[p.Name] {
				if _, err := tx.ExecContext(ctx,
					"INSERT IGNORE INTO role_permissions (role_id, permission_id) VALUES (?,?)", role, id); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
