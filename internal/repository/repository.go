package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shopcore/authcore/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If user with same email exists has to return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, user models.User) (models.User, error)

	// Get user by id or normalized email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	EmailExists(ctx context.Context, email string) (bool, error)

	// Persist password hash, flags, token version and updated_at of an
	// existing user
	UpdateUser(ctx context.Context, user models.User) (models.User, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Lookup by digest, the only read path for refresh tokens
	// If not found must return apperrors.ErrRefreshTokenNotFound
	GetByTokenHash(ctx context.Context, tokenHash string) (models.RefreshToken, error)

	// MarkReplaced sets replaced_by_token_id, but only while it is still
	// unset. If another transaction already replaced the row it must
	// return apperrors.ErrRefreshTokenReuseDetected so exactly one of
	// two racing refreshes wins the ACTIVE to REPLACED transition.
	MarkReplaced(ctx context.Context, tokenID uuid.UUID, replacedBy uuid.UUID) error

	// Revocations set revoked_at on rows where it is still null.
	// All three are idempotent.
	RevokeByTokenHash(ctx context.Context, tokenHash string, revokedAt time.Time) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, revokedAt time.Time) error
	RevokeFamily(ctx context.Context, familyID uuid.UUID, revokedAt time.Time) error

	// Cleanup of long-expired rows, returns how many were removed
	DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error)
}

// Role and permission graph. The session core only reads the aggregate
// permissions-for-role-names query, the mutations exist for admin tooling.
type RbacRepo interface {
	GetUserRoles(ctx context.Context, userID uuid.UUID) ([]string, error)
	GetPermissionsForRoles(ctx context.Context, roleNames []string) ([]string, error)

	CreateRole(ctx context.Context, name string) (models.Role, error)
	CreatePermission(ctx context.Context, code string) (models.Permission, error)
	GrantPermission(ctx context.Context, roleName string, permissionCode string) error

	// AssignRole must return apperrors.ErrRoleNotFound for unknown roles
	// and be idempotent for roles the user already has
	AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error
	RemoveRole(ctx context.Context, userID uuid.UUID, roleName string) error
}

// Storage bundles the repositories and the transactional scope.
// InTx runs fn against repositories bound to one transaction: commit on
// nil return, rollback on error. Writes inside fn become visible
// together or not at all.
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
	Rbac() RbacRepo

	InTx(ctx context.Context, fn func(Storage) error) error
}
