package postgres

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopcore/authcore/internal/apperrors"
	"github.com/shopcore/authcore/internal/testutil"
)

func TestRbacRepo(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	defer pg.Terminate()

	t.Run("roles and permissions graph", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RbacRepo{DB: tx}

			staff, err := repo.CreateRole(t.Context(), "staff")
			require.NoError(t, err)
			assert.Equal(t, "staff", staff.Name)

			_, err = repo.CreateRole(t.Context(), "admin")
			require.NoError(t, err)

			for _, code := range []string{"orders.read", "orders.write", "users.manage"} {
				_, err := repo.CreatePermission(t.Context(), code)
				require.NoError(t, err)
			}

			require.NoError(t, repo.GrantPermission(t.Context(), "staff", "orders.read"))
			require.NoError(t, repo.GrantPermission(t.Context(), "admin", "orders.read"))
			require.NoError(t, repo.GrantPermission(t.Context(), "admin", "orders.write"))
			require.NoError(t, repo.GrantPermission(t.Context(), "admin", "users.manage"))

			codes, err := repo.GetPermissionsForRoles(t.Context(), []string{"staff"})
			require.NoError(t, err)
			assert.Equal(t, []string{"orders.read"}, codes)

			// Union over both roles, orders.read not duplicated
			codes, err = repo.GetPermissionsForRoles(t.Context(), []string{"staff", "admin"})
			require.NoError(t, err)
			assert.Equal(t, []string{"orders.read", "orders.write", "users.manage"}, codes)

			codes, err = repo.GetPermissionsForRoles(t.Context(), nil)
			require.NoError(t, err)
			assert.Empty(t, codes)
		})
	})

	t.Run("grant permission edge cases", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RbacRepo{DB: tx}

			_, err := repo.CreateRole(t.Context(), "staff")
			require.NoError(t, err)
			_, err = repo.CreatePermission(t.Context(), "orders.read")
			require.NoError(t, err)

			require.NoError(t, repo.GrantPermission(t.Context(), "staff", "orders.read"))
			// Granting twice is fine
			require.NoError(t, repo.GrantPermission(t.Context(), "staff", "orders.read"))

			err = repo.GrantPermission(t.Context(), "no-such-role", "orders.read")
			assert.ErrorIs(t, err, apperrors.ErrRoleNotFound)
		})
	})

	t.Run("assign and remove user roles", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RbacRepo{DB: tx}
			user := createUserFixture(t, tx)

			_, err := repo.CreateRole(t.Context(), "staff")
			require.NoError(t, err)
			_, err = repo.CreateRole(t.Context(), "admin")
			require.NoError(t, err)

			roles, err := repo.GetUserRoles(t.Context(), user.ID)
			require.NoError(t, err)
			assert.Empty(t, roles)

			require.NoError(t, repo.AssignRole(t.Context(), user.ID, "staff"))
			require.NoError(t, repo.AssignRole(t.Context(), user.ID, "admin"))
			require.NoError(t, repo.AssignRole(t.Context(), user.ID, "staff"), "re-assign must be a no-op")

			roles, err = repo.GetUserRoles(t.Context(), user.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{"admin", "staff"}, roles, "role names come back sorted")

			require.NoError(t, repo.RemoveRole(t.Context(), user.ID, "admin"))
			require.NoError(t, repo.RemoveRole(t.Context(), user.ID, "admin"), "re-remove must be a no-op")

			roles, err = repo.GetUserRoles(t.Context(), user.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{"staff"}, roles)
		})
	})

	t.Run("assign role failure modes", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RbacRepo{DB: tx}
			user := createUserFixture(t, tx)

			err := repo.AssignRole(t.Context(), user.ID, "no-such-role")
			assert.ErrorIs(t, err, apperrors.ErrRoleNotFound)

			_, err = repo.CreateRole(t.Context(), "staff")
			require.NoError(t, err)

			err = repo.AssignRole(t.Context(), uuid.New(), "staff")
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})
}
