package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shopcore/authcore/internal/apperrors"
	"github.com/shopcore/authcore/internal/audit"
	"github.com/shopcore/authcore/internal/cache"
	"github.com/shopcore/authcore/internal/logger"
	"github.com/shopcore/authcore/internal/models"
	"github.com/shopcore/authcore/internal/repository"
)

const (
	permissionsKeyPrefix = "permissions:"

	// Permission sets tolerate this much staleness after a grant or
	// role change. No active invalidation beyond the TTL.
	defaultPermissionsTTL = 5 * time.Minute
)

type Config struct {
	// Cached permission set lifetime, default is used when zero
	PermissionsTTL time.Duration

	// Best-effort audit sink, discards events if not set
	AuditLog audit.Log

	Logger logger.Logger
}

// Checker resolves role names to permission codes and answers
// permission checks. Resolved sets are cached per role combination.
type Checker struct {
	storage repository.Storage
	cache   cache.Cache
	ttl     time.Duration
	audit   audit.Log
	log     logger.Logger
}

func NewChecker(cfg Config, storage repository.Storage, permCache cache.Cache) (*Checker, error) {
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}
	if permCache == nil {
		return nil, errors.New("cache must not be nil")
	}

	if cfg.PermissionsTTL == 0 {
		cfg.PermissionsTTL = defaultPermissionsTTL
	}
	if cfg.AuditLog == nil {
		cfg.AuditLog = audit.NopLog{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	return &Checker{
		storage: storage,
		cache:   permCache,
		ttl:     cfg.PermissionsTTL,
		audit:   cfg.AuditLog,
		log:     cfg.Logger.With("component", "rbac"),
	}, nil
}

// permissionsKey is stable under role ordering: the same set of roles
// always maps to the same cache entry
func permissionsKey(roles []string) string {
	sorted := slices.Clone(roles)
	slices.Sort(sorted)
	return permissionsKeyPrefix + strings.Join(sorted, ":")
}

// PermissionsFor resolves the union of permission codes granted to the
// roles, consulting the cache first. A principal with no roles has no
// permissions and skips both cache and database.
func (c *Checker) PermissionsFor(ctx context.Context, roles []string) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	key := permissionsKey(roles)

	cached, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var codes []string
		if err := json.Unmarshal([]byte(cached), &codes); err == nil {
			return codes, nil
		}
		// Unreadable entry, fall through and recompute
	case !errors.Is(err, cache.ErrMiss):
		// Cache outage must not take permission checks down
		c.log.Warn("permissions cache read failed", "error", err)
	}

	codes, err := c.storage.Rbac().GetPermissionsForRoles(ctx, roles)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(codes)
	if err != nil {
		return nil, fmt.Errorf("error while encoding permission set. Err: %w", err)
	}
	if err := c.cache.Set(ctx, key, string(encoded), c.ttl); err != nil {
		c.log.Warn("permissions cache write failed", "error", err)
	}

	return codes, nil
}

// Check verifies the principal holds the permission and fails with
// apperrors.ErrInsufficientPermissions otherwise. Denials are audited.
func (c *Checker) Check(ctx context.Context, principal models.Principal, permission string) error {
	ok, err := c.Has(ctx, principal, permission)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	c.audit.Record(ctx, audit.Event{
		Type:   audit.EventPermissionDenied,
		UserID: principal.UserID,
		Details: map[string]any{
			"permission": permission,
			"roles":      principal.Roles,
		},
	})

	return fmt.Errorf("%w: %s", apperrors.ErrInsufficientPermissions, permission)
}

// Has reports whether the principal holds the permission
func (c *Checker) Has(ctx context.Context, principal models.Principal, permission string) (bool, error) {
	codes, err := c.PermissionsFor(ctx, principal.Roles)
	if err != nil {
		return false, err
	}

	return slices.Contains(codes, permission), nil
}

// AssignRole grants a role to the user. Cached permission sets are
// dropped so the next check recomputes against the current graph.
func (c *Checker) AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	err := c.storage.InTx(ctx, func(st repository.Storage) error {
		return st.Rbac().AssignRole(ctx, userID, roleName)
	})
	if err != nil {
		return err
	}

	c.invalidate(ctx)
	c.audit.Record(ctx, audit.Event{
		Type:    audit.EventRoleAssigned,
		UserID:  userID,
		Details: map[string]any{"role": roleName},
	})

	return nil
}

// RemoveRole revokes a role from the user. Removing a role the user
// does not hold is a success.
func (c *Checker) RemoveRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	err := c.storage.InTx(ctx, func(st repository.Storage) error {
		return st.Rbac().RemoveRole(ctx, userID, roleName)
	})
	if err != nil {
		return err
	}

	c.invalidate(ctx)
	c.audit.Record(ctx, audit.Event{
		Type:    audit.EventRoleRemoved,
		UserID:  userID,
		Details: map[string]any{"role": roleName},
	})

	return nil
}

func (c *Checker) invalidate(ctx context.Context) {
	if _, err := c.cache.DeleteByPattern(ctx, permissionsKeyPrefix+"*"); err != nil {
		c.log.Warn("permissions cache invalidation failed", "error", err)
	}
}
