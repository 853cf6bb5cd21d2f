package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopcore/authcore/internal/apperrors"
	"github.com/shopcore/authcore/internal/audit"
	"github.com/shopcore/authcore/internal/clock"
	"github.com/shopcore/authcore/internal/models"
	"github.com/shopcore/authcore/internal/repository/postgres"
	"github.com/shopcore/authcore/internal/testutil"
)

const (
	testEmail    = "user@example.com"
	testPassword = "password1"
	testIP       = "203.0.113.7"
	testUA       = "test-agent/1.0"
)

type serviceFixture struct {
	svc      *SessionService
	recorder *audit.Recorder
	clock    *clock.Fixed
}

func newServiceFixture(t *testing.T, tx pgx.Tx) serviceFixture {
	t.Helper()

	clk := clock.NewFixed(time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC))
	recorder := &audit.Recorder{}

	issuer := newTestIssuer(t, clk)

	svc, err := NewService(Config{
		TokenSecret: "test-secret",
		Hasher:      testHasher,
		Jwt:         issuer,
		RefreshTTL:  14 * 24 * time.Hour,
		Clock:       clk,
		AuditLog:    recorder,
	}, postgres.NewStorage(tx))
	require.NoError(t, err)

	return serviceFixture{svc: svc, recorder: recorder, clock: clk}
}

func (f serviceFixture) registerAndLogin(t *testing.T) (models.User, models.Session) {
	t.Helper()

	user, err := f.svc.Register(t.Context(), testEmail, testPassword, testIP)
	require.NoError(t, err)

	session, err := f.svc.Login(t.Context(), testEmail, testPassword, testIP, testUA)
	require.NoError(t, err)

	return user, session
}

func TestSessionService(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	defer pg.Terminate()

	t.Run("register creates user with version zero", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newServiceFixture(t, tx)

			user, err := f.svc.Register(t.Context(), "  User@Example.COM ", testPassword, testIP)
			require.NoError(t, err)

			assert.Equal(t, testEmail, user.Email, "email must be normalized")
			assert.Equal(t, 0, user.TokenVersion)
			assert.True(t, user.IsActive)
			assert.False(t, user.IsVerified)
			assert.NotEqual(t, testPassword, user.PasswordHash)

			_, ok := f.recorder.Last(audit.EventUserRegistered)
			assert.True(t, ok)
		})
	})

	t.Run("register rejects duplicate email", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newServiceFixture(t, tx)

			_, err := f.svc.Register(t.Context(), testEmail, testPassword, testIP)
			require.NoError(t, err)

			_, err = f.svc.Register(t.Context(), "USER@example.com", testPassword, testIP)
			assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
		})
	})

	t.Run("register enforces password policy and email format", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newServiceFixture(t, tx)

			_, err := f.svc.Register(t.Context(), testEmail, "short1", testIP)
			assert.ErrorIs(t, err, apperrors.ErrValidation)

			_, err = f.svc.Register(t.Context(), "not-an-email", testPassword, testIP)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	})

	t.Run("login issues a working session", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newServiceFixture(t, tx)
			user, session := f.registerAndLogin(t)

			assert.NotEmpty(t, session.AccessToken)
			assert.NotEmpty(t, session.RefreshToken)
			assert.NotEmpty(t, session.CSRFToken)
			assert.Equal(t, f.clock.Now().Add(14*24*time.Hour), session.RefreshExpiresAt)

			principal, err := f.svc.Authenticate(t.Context(), session.AccessToken)
			require.NoError(t, err)
			assert.Equal(t, user.ID, principal.UserID)
			assert.Equal(t, testEmail, principal.Email)
			assert.Equal(t, 0, principal.TokenVersion)

			_, ok := f.recorder.Last(audit.EventLoginSuccess)
			assert.True(t, ok)
		})
	})

	t.Run("login failures are indistinguishable", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newServiceFixture(t, tx)
			f.registerAndLogin(t)

			_, err := f.svc.Login(t.Context(), testEmail, "wrong password 1", testIP, testUA)
			assert.ErrorIs(t, err, apperrors.ErrAuthenticationFailed)

			_, err = f.svc.Login(t.Context(), "nobody@example.com", testPassword, testIP, testUA)
			assert.ErrorIs(t, err, apperrors.ErrAuthenticationFailed)

			event, ok := f.recorder.Last(audit.EventLoginFailed)
			require.True(t, ok, "failed login with known email must be audited")
			assert.Equal(t, testIP, event.IP)
		})
	})

	t.Run("login rejects deactivated user", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newServiceFixture(t, tx)
			user, _ := f.registerAndLogin(t)

			storage := postgres.NewStorage(tx)
			user.IsActive = false
			_, err := storage.User().UpdateUser(t.Context(), user)
			require.NoError(t, err)

			_, err = f.svc.Login(t.Context(), testEmail, testPassword, testIP, testUA)
			assert.ErrorIs(t, err, apperrors.ErrUserNotActive)
		})
	})

	t.Run("refresh rotates the token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newServiceFixture(t, tx)
			user, session := f.registerAndLogin(t)

			next, err := f.svc.Refresh(t.Context(), session.RefreshToken, testIP, testUA)
			require.NoError(t, err)

			assert.NotEqual(t, session.RefreshToken, next.RefreshToken)

			principal, err := f.svc.Authenticate(t.Context(), next.AccessToken)
			require.NoError(t, err)
			assert.Equal(t, user.ID, principal.UserID)

			_, ok := f.recorder.Last(audit.EventTokenRefreshed)
			assert.True(t, ok)
		})
	})

	t.Run("refresh of unknown token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newServiceFixture(t, tx)
			f.registerAndLogin(t)

			_, err := f.svc.Refresh(t.Context(), "made-up-token", testIP, testUA)
			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})
	})

	t.Run("refresh of expired token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newServiceFixture(t, tx)
			_, session := f.registerAndLogin(t)

			f.clock.Advance(14*24*time.Hour + time.Minute)

			_, err := f.svc.Refresh(t.Context(), session.RefreshToken, testIP, testUA)
			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenExpired)
		})
	})

	t.Run("reuse of replaced token revokes the family", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newServiceFixture(t, tx)
			user, first := f.registerAndLogin(t)

			second, err := f.svc.Refresh(t.Context(), first.RefreshToken, testIP, testUA)
			require.NoError(t, err)

			// Presenting the already replaced token again is theft
			_, err = f.svc.Refresh(t.Context(), first.RefreshToken, testIP, testUA)
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenReuseDetected)

			// The remediation survived the failed call: the successor
			// token is dead and the version bump killed access tokens
			_, err = f.svc.Refresh(t.Context(), second.RefreshToken, testIP, testUA)
			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)

			_, err = f.svc.Authenticate(t.Context(), second.AccessToken)
			assert.ErrorIs(t, err, apperrors.ErrTokenVersionMismatch)

			storage := postgres.NewStorage(tx)
			bumped, err := storage.User().GetUserByID(t.Context(), user.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, bumped.TokenVersion)

			event, ok := f.recorder.Last(audit.EventTokenReuseDetected)
			require.True(t, ok)
			assert.Equal(t, user.ID, event.UserID)
		})
	})

	t.Run("reuse does not touch other families", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newServiceFixture(t, tx)
			_, first := f.registerAndLogin(t)

			other, err := f.svc.Login(t.Context(), testEmail, testPassword, testIP, testUA)
			require.NoError(t, err)

			_, err = f.svc.Refresh(t.Context(), first.RefreshToken, testIP, testUA)
			require.NoError(t, err)
			_, err = f.svc.Refresh(t.Context(), first.RefreshToken, testIP, testUA)
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenReuseDetected)

			// The other device's family still refreshes, though its
			// access tokens died with the version bump
			_, err = f.svc.Refresh(t.Context(), other.RefreshToken, testIP, testUA)
			assert.NoError(t, err)
		})
	})

	t.Run("logout revokes the session and is idempotent", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newServiceFixture(t, tx)
			_, session := f.registerAndLogin(t)

			require.NoError(t, f.svc.Logout(t.Context(), session.RefreshToken))

			_, err := f.svc.Refresh(t.Context(), session.RefreshToken, testIP, testUA)
			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)

			// Second logout and logout of garbage both succeed
			assert.NoError(t, f.svc.Logout(t.Context(), session.RefreshToken))
			assert.NoError(t, f.svc.Logout(t.Context(), "never-issued"))
		})
	})

	t.Run("logout all kills every session", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newServiceFixture(t, tx)
			user, first := f.registerAndLogin(t)

			second, err := f.svc.Login(t.Context(), testEmail, testPassword, testIP, testUA)
			require.NoError(t, err)

			require.NoError(t, f.svc.LogoutAll(t.Context(), user.ID))

			_, err = f.svc.Refresh(t.Context(), first.RefreshToken, testIP, testUA)
			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)
			_, err = f.svc.Refresh(t.Context(), second.RefreshToken, testIP, testUA)
			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)

			_, err = f.svc.Authenticate(t.Context(), first.AccessToken)
			assert.ErrorIs(t, err, apperrors.ErrTokenVersionMismatch)
		})
	})

	t.Run("change password rotates credentials and sessions", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newServiceFixture(t, tx)
			user, session := f.registerAndLogin(t)

			err := f.svc.ChangePassword(t.Context(), user.ID, "wrong old 1", "new password 2")
			assert.ErrorIs(t, err, apperrors.ErrAuthenticationFailed)

			err = f.svc.ChangePassword(t.Context(), user.ID, testPassword, "weak")
			assert.ErrorIs(t, err, apperrors.ErrValidation)

			require.NoError(t, f.svc.ChangePassword(t.Context(), user.ID, testPassword, "new password 2"))

			_, err = f.svc.Login(t.Context(), testEmail, testPassword, testIP, testUA)
			assert.ErrorIs(t, err, apperrors.ErrAuthenticationFailed)

			_, err = f.svc.Login(t.Context(), testEmail, "new password 2", testIP, testUA)
			assert.NoError(t, err)

			_, err = f.svc.Refresh(t.Context(), session.RefreshToken, testIP, testUA)
			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)

			_, err = f.svc.Authenticate(t.Context(), session.AccessToken)
			assert.ErrorIs(t, err, apperrors.ErrTokenVersionMismatch)
		})
	})

	t.Run("authenticate rejects stale and bogus tokens", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newServiceFixture(t, tx)
			user, session := f.registerAndLogin(t)

			_, err := f.svc.Authenticate(t.Context(), "garbage")
			assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)

			f.clock.Advance(defaultAccessTokenTTL + time.Second)
			_, err = f.svc.Authenticate(t.Context(), session.AccessToken)
			assert.ErrorIs(t, err, apperrors.ErrTokenExpired)

			f.clock.Advance(-(defaultAccessTokenTTL + time.Second))

			storage := postgres.NewStorage(tx)
			user.IsActive = false
			_, err = storage.User().UpdateUser(t.Context(), user)
			require.NoError(t, err)

			_, err = f.svc.Authenticate(t.Context(), session.AccessToken)
			assert.ErrorIs(t, err, apperrors.ErrUserNotActive)
		})
	})

	t.Run("authenticate carries roles from the token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newServiceFixture(t, tx)

			user, err := f.svc.Register(t.Context(), testEmail, testPassword, testIP)
			require.NoError(t, err)

			storage := postgres.NewStorage(tx)
			_, err = storage.Rbac().CreateRole(t.Context(), "staff")
			require.NoError(t, err)
			require.NoError(t, storage.Rbac().AssignRole(t.Context(), user.ID, "staff"))

			session, err := f.svc.Login(t.Context(), testEmail, testPassword, testIP, testUA)
			require.NoError(t, err)

			principal, err := f.svc.Authenticate(t.Context(), session.AccessToken)
			require.NoError(t, err)
			assert.Equal(t, []string{"staff"}, principal.Roles)
		})
	})

	t.Run("logout all of unknown user", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			f := newServiceFixture(t, tx)

			err := f.svc.LogoutAll(t.Context(), uuid.New())
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})
}
