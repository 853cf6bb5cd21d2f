package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shopcore/authcore/internal/apperrors"
	"github.com/shopcore/authcore/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const tokenColumns = `id, user_id, token_hash, family_id, issued_at, expires_at, revoked_at, replaced_by_token_id, ip, user_agent`

const saveToken = `-- name: SaveRefreshToken
INSERT INTO refresh_tokens (` + tokenColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + tokenColumns

func (r *RefreshTokenRepo) Save(ctx context.Context, t models.RefreshToken) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, saveToken,
		t.ID, t.UserID, t.TokenHash, t.FamilyID, t.IssuedAt, t.ExpiresAt,
		t.RevokedAt, t.ReplacedByTokenID, t.IP, t.UserAgent,
	)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)
	if err != nil {
		return token, fmt.Errorf("db error: %w", err)
	}

	return token, nil
}

const getByTokenHash = `-- name: GetByTokenHash
SELECT ` + tokenColumns + `
FROM refresh_tokens
WHERE token_hash = $1
`

// Lookup by digest
// Returns the row even if it is expired, revoked or replaced: the state
// machine in the auth service decides what to do with it
func (r *RefreshTokenRepo) GetByTokenHash(ctx context.Context, tokenHash string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getByTokenHash, tokenHash)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrRefreshTokenNotFound
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const markReplaced = `-- name: MarkReplaced
UPDATE refresh_tokens
SET replaced_by_token_id = $2
WHERE id = $1 AND replaced_by_token_id IS NULL
`

// MarkReplaced performs the ACTIVE to REPLACED transition as a
// compare-and-set: the update touches the row only while
// replaced_by_token_id is still unset. The losing side of a concurrent
// double refresh gets ErrRefreshTokenReuseDetected.
func (r *RefreshTokenRepo) MarkReplaced(ctx context.Context, tokenID uuid.UUID, replacedBy uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, markReplaced, tokenID, replacedBy)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrRefreshTokenReuseDetected
	}

	return nil
}

const revokeByTokenHash = `-- name: RevokeByTokenHash
UPDATE refresh_tokens
SET revoked_at = $2
WHERE token_hash = $1 AND revoked_at IS NULL
`

// Revoke single token, keeps the earlier revoked_at if already revoked
func (r *RefreshTokenRepo) RevokeByTokenHash(ctx context.Context, tokenHash string, revokedAt time.Time) error {
	_, err := r.DB.Exec(ctx, revokeByTokenHash, tokenHash, revokedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const revokeAllForUser = `-- name: RevokeAllForUser
UPDATE refresh_tokens
SET revoked_at = $2
WHERE user_id = $1 AND revoked_at IS NULL
`

func (r *RefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID, revokedAt time.Time) error {
	_, err := r.DB.Exec(ctx, revokeAllForUser, userID, revokedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const revokeFamily = `-- name: RevokeFamily
UPDATE refresh_tokens
SET revoked_at = $2
WHERE family_id = $1 AND revoked_at IS NULL
`

// Revoke every non-revoked token descended from one login
func (r *RefreshTokenRepo) RevokeFamily(ctx context.Context, familyID uuid.UUID, revokedAt time.Time) error {
	_, err := r.DB.Exec(ctx, revokeFamily, familyID, revokedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const deleteExpiredBefore = `-- name: DeleteExpiredBefore
DELETE FROM refresh_tokens
WHERE expires_at < $1
`

func (r *RefreshTokenRepo) DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpiredBefore, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected(), nil
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.FamilyID, &t.IssuedAt, &t.ExpiresAt,
		&t.RevokedAt, &t.ReplacedByTokenID, &t.IP, &t.UserAgent,
	)
	return t, err
}
