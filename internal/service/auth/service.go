package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shopcore/authcore/internal/apperrors"
	"github.com/shopcore/authcore/internal/audit"
	"github.com/shopcore/authcore/internal/clock"
	"github.com/shopcore/authcore/internal/models"
	"github.com/shopcore/authcore/internal/repository"
)

const defaultRefreshTokenTTL = 14 * 24 * time.Hour

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type Config struct {
	// Secret key for refresh token digests
	// Required to be set
	TokenSecret string

	// Hasher to use during registration or login
	// If not set than default argon2id is used
	Hasher PasswordHasher

	// Issuer for access tokens
	// Required to be set
	Jwt *JwtIssuer

	// Refresh token lifetime
	// If not set than default is used
	RefreshTTL time.Duration

	// Time source, system clock if not set
	Clock clock.Clock

	// Best-effort audit sink, discards events if not set
	AuditLog audit.Log
}

// SessionService orchestrates registration, login, refresh rotation,
// logout and password change. Every use case runs inside one
// transactional scope of the storage.
type SessionService struct {
	storage    repository.Storage
	hasher     PasswordHasher
	tokens     TokenHasher
	jwt        *JwtIssuer
	refreshTTL time.Duration
	clock      clock.Clock
	audit      audit.Log
}

func NewService(cfg Config, storage repository.Storage) (*SessionService, error) {
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}
	if cfg.TokenSecret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	if cfg.Jwt == nil {
		return nil, errors.New("jwt issuer must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = DefaultHasher
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = defaultRefreshTokenTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.AuditLog == nil {
		cfg.AuditLog = audit.NopLog{}
	}

	return &SessionService{
		storage:    storage,
		hasher:     hasher,
		tokens:     NewTokenHasher(cfg.TokenSecret),
		jwt:        cfg.Jwt,
		refreshTTL: cfg.RefreshTTL,
		clock:      cfg.Clock,
		audit:      cfg.AuditLog,
	}, nil
}

// NormalizeEmail trims surrounding whitespace and lowercases
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new user with token_version = 0.
// Email is normalized first, the password has to satisfy the policy.
func (s *SessionService) Register(ctx context.Context, email string, password string, ip string) (models.User, error) {
	if err := ValidatePassword(password); err != nil {
		return models.User{}, err
	}

	email = NormalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return models.User{}, fmt.Errorf("%w: invalid email format", apperrors.ErrValidation)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	var user models.User
	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		exists, err := st.User().EmailExists(ctx, email)
		if err != nil {
			return err
		}
		if exists {
			return apperrors.ErrUserAlreadyExists
		}

		now := s.clock.Now()
		user, err = st.User().CreateUser(ctx, models.User{
			ID:           uuid.New(),
			Email:        email,
			PasswordHash: hash,
			IsActive:     true,
			IsVerified:   false,
			TokenVersion: 0,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		return err
	})
	if err != nil {
		return models.User{}, err
	}

	s.audit.Record(ctx, audit.Event{
		Type:    audit.EventUserRegistered,
		UserID:  user.ID,
		IP:      ip,
		Details: map[string]any{"email": user.Email},
	})

	return user, nil
}

// Login verifies credentials and opens a brand-new refresh token family.
// Unknown email and wrong password fail with the same generic error.
func (s *SessionService) Login(ctx context.Context, email string, password string, ip string, userAgent string) (models.Session, error) {
	email = NormalizeEmail(email)

	var session models.Session
	var user models.User

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		var err error
		user, err = st.User().GetUserByEmail(ctx, email)
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			return apperrors.ErrAuthenticationFailed
		case err != nil:
			return err
		}

		if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
			return apperrors.ErrAuthenticationFailed
		}

		if !user.IsActive {
			return apperrors.ErrUserNotActive
		}

		roles, err := st.Rbac().GetUserRoles(ctx, user.ID)
		if err != nil {
			return err
		}

		session, _, err = s.issueSession(ctx, st, user, roles, uuid.New(), ip, userAgent)
		return err
	})

	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrAuthenticationFailed), errors.Is(err, apperrors.ErrUserNotActive):
		if user.ID != uuid.Nil {
			s.audit.Record(ctx, audit.Event{
				Type:    audit.EventLoginFailed,
				UserID:  user.ID,
				IP:      ip,
				Details: map[string]any{"email": email},
			})
		}
		return models.Session{}, err
	default:
		return models.Session{}, err
	}

	s.audit.Record(ctx, audit.Event{
		Type:    audit.EventLoginSuccess,
		UserID:  user.ID,
		IP:      ip,
		Details: map[string]any{"email": user.Email},
	})

	return session, nil
}

// Refresh rotates a refresh token: the presented token moves to REPLACED
// and a new one is minted in the same family. Presenting an already
// replaced token is treated as theft and revokes the whole family.
func (s *SessionService) Refresh(ctx context.Context, rawToken string, ip string, userAgent string) (models.Session, error) {
	digest := s.tokens.Digest(rawToken)

	var session models.Session
	var userID uuid.UUID
	var familyID uuid.UUID
	var reused *models.RefreshToken

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		old, err := st.Refresh().GetByTokenHash(ctx, digest)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		switch {
		case old.IsExpired(now):
			return apperrors.ErrRefreshTokenExpired
		case old.IsRevoked():
			return apperrors.ErrRefreshTokenRevoked
		case old.IsReplaced():
			reused = &old
			return apperrors.ErrRefreshTokenReuseDetected
		}

		user, err := st.User().GetUserByID(ctx, old.UserID)
		if err != nil {
			return err
		}
		if !user.IsActive {
			return apperrors.ErrUserNotActive
		}

		roles, err := st.Rbac().GetUserRoles(ctx, user.ID)
		if err != nil {
			return err
		}

		newSession, newToken, err := s.issueSession(ctx, st, user, roles, old.FamilyID, ip, userAgent)
		if err != nil {
			return err
		}

		// Only one of two racing refreshes may win this transition.
		// The loser rolls back its fresh token and takes the reuse path.
		err = st.Refresh().MarkReplaced(ctx, old.ID, newToken.ID)
		if errors.Is(err, apperrors.ErrRefreshTokenReuseDetected) {
			reused = &old
			return err
		}
		if err != nil {
			return err
		}

		session = newSession
		userID = user.ID
		familyID = old.FamilyID
		return nil
	})

	if reused != nil {
		return models.Session{}, s.remediateReuse(ctx, *reused, ip)
	}
	if err != nil {
		return models.Session{}, err
	}

	s.audit.Record(ctx, audit.Event{
		Type:    audit.EventTokenRefreshed,
		UserID:  userID,
		IP:      ip,
		Details: map[string]any{"family_id": familyID.String()},
	})

	return session, nil
}

// remediateReuse is the security action for a detected reuse. It runs
// in its own transaction and commits even though the refresh call as a
// whole reports failure: first the commit, then the typed error.
func (s *SessionService) remediateReuse(ctx context.Context, old models.RefreshToken, ip string) error {
	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		now := s.clock.Now()

		if err := st.Refresh().RevokeFamily(ctx, old.FamilyID, now); err != nil {
			return err
		}

		user, err := st.User().GetUserByID(ctx, old.UserID)
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			// Nothing left to bump, family revocation is still committed
			return nil
		case err != nil:
			return err
		}

		user.TokenVersion++
		user.UpdatedAt = now
		_, err = st.User().UpdateUser(ctx, user)
		return err
	})
	if err != nil {
		return fmt.Errorf("reuse remediation failed. Err: %w", err)
	}

	s.audit.Record(ctx, audit.Event{
		Type:   audit.EventTokenReuseDetected,
		UserID: old.UserID,
		IP:     ip,
		Details: map[string]any{
			"family_id": old.FamilyID.String(),
			"action":    "revoked_family_and_bumped_token_version",
		},
	})

	return apperrors.ErrRefreshTokenReuseDetected
}

// Logout revokes the presented refresh token.
// Unknown token is a success: the session is gone either way.
func (s *SessionService) Logout(ctx context.Context, rawToken string) error {
	digest := s.tokens.Digest(rawToken)

	var token models.RefreshToken
	found := false

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		var err error
		token, err = st.Refresh().GetByTokenHash(ctx, digest)
		switch {
		case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
			return nil
		case err != nil:
			return err
		}

		found = true
		return st.Refresh().RevokeByTokenHash(ctx, digest, s.clock.Now())
	})
	if err != nil {
		return err
	}

	if found {
		s.audit.Record(ctx, audit.Event{
			Type:    audit.EventLogout,
			UserID:  token.UserID,
			Details: map[string]any{"token_id": token.ID.String()},
		})
	}

	return nil
}

// LogoutAll revokes every refresh token of the user and bumps
// token_version so already issued access tokens die with them
func (s *SessionService) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	var newVersion int

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		user, err := st.User().GetUserByID(ctx, userID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if err := st.Refresh().RevokeAllForUser(ctx, userID, now); err != nil {
			return err
		}

		user.TokenVersion++
		user.UpdatedAt = now
		user, err = st.User().UpdateUser(ctx, user)
		newVersion = user.TokenVersion
		return err
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Event{
		Type:    audit.EventLogoutAll,
		UserID:  userID,
		Details: map[string]any{"new_token_version": newVersion},
	})

	return nil
}

// ChangePassword verifies the old password, stores the new hash and
// kills every session: all refresh tokens revoked, token_version bumped
func (s *SessionService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword string, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	var newVersion int

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		user, err := st.User().GetUserByID(ctx, userID)
		if err != nil {
			return err
		}

		if err := s.hasher.Compare(user.PasswordHash, oldPassword); err != nil {
			return apperrors.ErrAuthenticationFailed
		}

		hash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return fmt.Errorf("can't use this as password, error=%w", err)
		}

		now := s.clock.Now()
		user.PasswordHash = hash
		user.TokenVersion++
		user.UpdatedAt = now

		user, err = st.User().UpdateUser(ctx, user)
		if err != nil {
			return err
		}
		newVersion = user.TokenVersion

		return st.Refresh().RevokeAllForUser(ctx, userID, now)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Event{
		Type:   audit.EventPasswordChanged,
		UserID: userID,
		Details: map[string]any{
			"new_token_version": newVersion,
			"sessions_revoked":  true,
		},
	})

	return nil
}

// Authenticate is the per-request gate: verify the access token, load
// the user and compare the version claim against the current one. Any
// mismatch means the token was issued before a revocation event.
func (s *SessionService) Authenticate(ctx context.Context, accessToken string) (models.Principal, error) {
	claims, err := s.jwt.Verify(accessToken)
	if err != nil {
		return models.Principal{}, err
	}

	userID, err := claims.UserID()
	if err != nil {
		return models.Principal{}, err
	}

	user, err := s.storage.User().GetUserByID(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return models.Principal{}, apperrors.ErrAuthenticationFailed
	case err != nil:
		return models.Principal{}, err
	}

	if !user.IsActive {
		return models.Principal{}, apperrors.ErrUserNotActive
	}

	if user.TokenVersion != claims.TokenVersion {
		return models.Principal{}, apperrors.ErrTokenVersionMismatch
	}

	return models.Principal{
		UserID:       user.ID,
		Email:        user.Email,
		Roles:        claims.Roles,
		TokenVersion: user.TokenVersion,
		IsActive:     user.IsActive,
	}, nil
}

// issueSession mints the access token, the refresh token row and the
// CSRF token. The caller decides which family the refresh token joins.
func (s *SessionService) issueSession(
	ctx context.Context,
	st repository.Storage,
	user models.User,
	roles []string,
	familyID uuid.UUID,
	ip string,
	userAgent string,
) (models.Session, models.RefreshToken, error) {
	access, accessExpiresAt, err := s.jwt.Issue(user.ID, roles, user.TokenVersion)
	if err != nil {
		return models.Session{}, models.RefreshToken{}, err
	}

	raw, err := s.tokens.Generate()
	if err != nil {
		return models.Session{}, models.RefreshToken{}, err
	}

	now := s.clock.Now()
	token, err := st.Refresh().Save(ctx, models.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: s.tokens.Digest(raw),
		FamilyID:  familyID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
		IP:        ip,
		UserAgent: userAgent,
	})
	if err != nil {
		return models.Session{}, models.RefreshToken{}, err
	}

	// CSRF token is independent and never persisted, the double-submit
	// check happens at the transport layer
	csrf, err := s.tokens.Generate()
	if err != nil {
		return models.Session{}, models.RefreshToken{}, err
	}

	return models.Session{
		AccessToken:      access,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     raw,
		RefreshExpiresAt: token.ExpiresAt,
		CSRFToken:        csrf,
	}, token, nil
}
