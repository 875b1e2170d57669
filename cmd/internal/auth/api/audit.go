package authapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEvent is one security-relevant action recorded by the gateway.
type AuditEvent struct {
	Action    string
	UserID    *string
	SessionID *string
	IP        net.IP
	UserAgent string
	Meta      map[string]any
}

// AuditLog records audit events. Failures are logged by the implementation,
// never surfaced to the request.
type AuditLog interface {
	Record(ctx context.Context, ev AuditEvent)
}

// PostgresAuditLog writes events to codeplat.audit_log.
type PostgresAuditLog struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresAuditLog constructs a PostgresAuditLog.
func NewPostgresAuditLog(pool *pgxpool.Pool, log *slog.Logger) *PostgresAuditLog {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresAuditLog{pool: pool, log: log}
}

func (a *PostgresAuditLog) Record(ctx context.Context, ev AuditEvent) {
	if a == nil || a.pool == nil {
		return
	}
	action := strings.TrimSpace(ev.Action)
	if action == "" {
		return
	}

	var ipVal any
	if ev.IP != nil {
		ipVal = ev.IP.String()
	}

	var metaVal *string
	if len(ev.Meta) > 0 {
		if b, err := json.Marshal(ev.Meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO codeplat.audit_log (
			user_id, session_id, action, created_at, ip, user_agent, meta
		) VALUES ($1, $2, $3, now(), $4::inet, $5, $6::jsonb)
	`, ev.UserID, ev.SessionID, action, ipVal, trimOrNil(ev.UserAgent), metaVal)
	if err != nil {
		a.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

// SlogAuditLog writes events as structured log lines. Used when no database
// backs the audit trail (tests, local runs).
type SlogAuditLog struct {
	Log *slog.Logger
}

func (a SlogAuditLog) Record(ctx context.Context, ev AuditEvent) {
	if a.Log == nil {
		return
	}
	attrs := []any{"action", ev.Action}
	if ev.UserID != nil {
		attrs = append(attrs, "user_id", *ev.UserID)
	}
	if ev.SessionID != nil {
		attrs = append(attrs, "session_id", *ev.SessionID)
	}
	if ev.IP != nil {
		attrs = append(attrs, "ip", ev.IP.String())
	}
	if len(ev.Meta) > 0 {
		attrs = append(attrs, "meta", ev.Meta)
	}
	a.Log.InfoContext(ctx, "auth.audit", attrs...)
}

func (h *Handler) auditRegister(ctx context.Context, userID string, ip net.IP, ua string) {
	h.audit.Record(ctx, AuditEvent{Action: "auth.register", UserID: &userID, IP: ip, UserAgent: ua})
}

func (h *Handler) auditLoginFailed(ctx context.Context, userID *string, ip net.IP, ua string, identifier string, reason string) {
	h.audit.Record(ctx, AuditEvent{
		Action:    "auth.login.failed",
		UserID:    userID,
		IP:        ip,
		UserAgent: ua,
		Meta: map[string]any{
			"identifier": identifier,
			"reason":     reason,
		},
	})
}

func (h *Handler) auditLoginSuccess(ctx context.Context, userID string, sessionID string, ip net.IP, ua string, identifier string) {
	h.audit.Record(ctx, AuditEvent{
		Action:    "auth.login.success",
		UserID:    &userID,
		SessionID: &sessionID,
		IP:        ip,
		UserAgent: ua,
		Meta:      map[string]any{"identifier": identifier},
	})
}

func (h *Handler) auditLogout(ctx context.Context, res validatedCaller, ip net.IP, ua string) {
	h.audit.Record(ctx, AuditEvent{Action: "auth.logout", UserID: &res.UserID, SessionID: &res.SessionID, IP: ip, UserAgent: ua})
}

func (h *Handler) auditLogoutAll(ctx context.Context, userID string, revoked int64, ip net.IP, ua string) {
	h.audit.Record(ctx, AuditEvent{
		Action:    "auth.logout_all",
		UserID:    &userID,
		IP:        ip,
		UserAgent: ua,
		Meta:      map[string]any{"revoked": revoked},
	})
}

func (h *Handler) auditPasswordReset(ctx context.Context, userID string, revoked int64, ip net.IP, ua string) {
	h.audit.Record(ctx, AuditEvent{
		Action:    "auth.password.reset",
		UserID:    &userID,
		IP:        ip,
		UserAgent: ua,
		Meta:      map[string]any{"revoked": revoked},
	})
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
