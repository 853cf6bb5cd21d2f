package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shopcore/authcore/internal/apperrors"
	"github.com/shopcore/authcore/internal/models"
)

type RbacRepo struct {
	DB DBTX
}

const getUserRoles = `-- name: GetUserRoles
SELECT r.name
FROM roles r
JOIN user_roles ur ON ur.role_id = r.id
WHERE ur.user_id = $1
ORDER BY r.name
`

func (r *RbacRepo) GetUserRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, _ := r.DB.Query(ctx, getUserRoles, userID)
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return names, nil
}

const getPermissionsForRoles = `-- name: GetPermissionsForRoles
SELECT DISTINCT p.code
FROM permissions p
JOIN role_permissions rp ON rp.permission_id = p.id
JOIN roles r ON r.id = rp.role_id
WHERE r.name = ANY($1)
ORDER BY p.code
`

func (r *RbacRepo) GetPermissionsForRoles(ctx context.Context, roleNames []string) ([]string, error) {
	if len(roleNames) == 0 {
		return nil, nil
	}

	rows, _ := r.DB.Query(ctx, getPermissionsForRoles, roleNames)
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return codes, nil
}

const createRole = `-- name: CreateRole
INSERT INTO roles (id, name)
VALUES ($1, $2)
RETURNING id, name
`

func (r *RbacRepo) CreateRole(ctx context.Context, name string) (models.Role, error) {
	rows, _ := r.DB.Query(ctx, createRole, uuid.New(), name)
	role, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.Role, error) {
		var ro models.Role
		err := row.Scan(&ro.ID, &ro.Name)
		return ro, err
	})
	if err != nil {
		return role, fmt.Errorf("db error: %w", err)
	}

	return role, nil
}

const createPermission = `-- name: CreatePermission
INSERT INTO permissions (id, code)
VALUES ($1, $2)
RETURNING id, code
`

func (r *RbacRepo) CreatePermission(ctx context.Context, code string) (models.Permission, error) {
	rows, _ := r.DB.Query(ctx, createPermission, uuid.New(), code)
	perm, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.Permission, error) {
		var p models.Permission
		err := row.Scan(&p.ID, &p.Code)
		return p, err
	})
	if err != nil {
		return perm, fmt.Errorf("db error: %w", err)
	}

	return perm, nil
}

const grantPermission = `-- name: GrantPermission
INSERT INTO role_permissions (role_id, permission_id)
SELECT r.id, p.id
FROM roles r, permissions p
WHERE r.name = $1 AND p.code = $2
ON CONFLICT DO NOTHING
`

func (r *RbacRepo) GrantPermission(ctx context.Context, roleName string, permissionCode string) error {
	tag, err := r.DB.Exec(ctx, grantPermission, roleName, permissionCode)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	// Zero rows means either the pair exists already or the role or
	// permission does not. Existence is checked explicitly to keep the
	// call idempotent without hiding typos.
	if tag.RowsAffected() == 0 {
		var exists bool
		err := r.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1)`, roleName).Scan(&exists)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if !exists {
			return apperrors.ErrRoleNotFound
		}
	}

	return nil
}

const assignRole = `-- name: AssignRole
INSERT INTO user_roles (user_id, role_id)
SELECT $1, r.id
FROM roles r
WHERE r.name = $2
ON CONFLICT DO NOTHING
`

func (r *RbacRepo) AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	tag, err := r.DB.Exec(ctx, assignRole, userID, roleName)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return apperrors.ErrUserNotFound
		}

		return fmt.Errorf("db error: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		err := r.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1)`, roleName).Scan(&exists)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if !exists {
			return apperrors.ErrRoleNotFound
		}
	}

	return nil
}

const removeRole = `-- name: RemoveRole
DELETE FROM user_roles ur
USING roles r
WHERE ur.user_id = $1 AND ur.role_id = r.id AND r.name = $2
`

func (r *RbacRepo) RemoveRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	_, err := r.DB.Exec(ctx, removeRole, userID, roleName)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}
