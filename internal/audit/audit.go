package audit

import (
	"context"

	"github.com/google/uuid"

	"github.com/shopcore/authcore/internal/logger"
)

// Event types recorded by the session-security core
const (
	EventUserRegistered     = "user.registered"
	EventLoginSuccess       = "user.login_success"
	EventLoginFailed        = "user.login_failed"
	EventLogout             = "user.logout"
	EventLogoutAll          = "user.logout_all"
	EventPasswordChanged    = "user.password_changed"
	EventTokenRefreshed     = "user.token_refreshed"
	EventTokenReuseDetected = "security.token_reuse_detected"
	EventPermissionDenied   = "security.permission_denied"
	EventRoleAssigned       = "rbac.role_assigned"
	EventRoleRemoved        = "rbac.role_removed"
)

type Event struct {
	Type    string
	UserID  uuid.UUID
	IP      string
	Details map[string]any
}

// Log is a best-effort structured event sink. Record never returns an
// error: audit failures must not roll back the transaction that
// produced the event.
type Log interface {
	Record(ctx context.Context, e Event)
}

// LoggerAuditLog writes audit events through the service logger
type LoggerAuditLog struct {
	logger logger.Logger
}

func NewLog(l logger.Logger) *LoggerAuditLog {
	return &LoggerAuditLog{logger: l.With("component", "audit")}
}

func (a *LoggerAuditLog) Record(ctx context.Context, e Event) {
	args := make([]any, 0, 6+2*len(e.Details))
	args = append(args, "event_type", e.Type)

	if e.UserID != uuid.Nil {
		args = append(args, "user_id", e.UserID.String())
	}
	if e.IP != "" {
		args = append(args, "ip", e.IP)
	}
	for k, v := range e.Details {
		args = append(args, k, v)
	}

	a.logger.Info("audit event", args...)
}

// NopLog discards events, useful in tests
type NopLog struct{}

func (NopLog) Record(ctx context.Context, e Event) {}

// Recorder keeps events in memory so tests can assert on them
type Recorder struct {
	Events []Event
}

func (r *Recorder) Record(ctx context.Context, e Event) {
	r.Events = append(r.Events, e)
}

// Last returns the most recent event of the given type, if any
func (r *Recorder) Last(eventType string) (Event, bool) {
	for i := len(r.Events) - 1; i >= 0; i-- {
		if r.Events[i].Type == eventType {
			return r.Events[i], true
		}
	}
	return Event{}, false
}
