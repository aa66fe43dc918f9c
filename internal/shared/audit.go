package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEntry captures a mutation for the audit trail. Before and After carry
// explicit snapshots supplied by the mutating operation.
type AuditEntry struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Before   map[string]any
	After    map[string]any
	At       time.Time
}

// AuditSink receives audit entries. Implementations must never block or fail
// a financial mutation: Record errors are for the caller to log, not surface.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// AuditLogger writes audit entries into the audit_logs table.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the entry.
func (l *AuditLogger) Record(ctx context.Context, entry AuditEntry) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return errors.New("audit entry requires action/entity/entity_id")
	}
	beforeJSON, err := json.Marshal(entry.Before)
	if err != nil {
		return err
	}
	afterJSON, err := json.Marshal(entry.After)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, before_state, after_state, occurred_at) VALUES ($1, $2, $3, $4, $5, $6, COALESCE(NULLIF($7, '0001-01-01T00:00:00Z'::timestamptz), NOW()))`,
		entry.ActorID, entry.Action, entry.Entity, entry.EntityID, beforeJSON, afterJSON, entry.At)
	return err
}

// Audit records an entry through the sink, logging failures instead of
// returning them. Financial mutations must not fail because the trail is down.
func Audit(ctx context.Context, sink AuditSink, logger *slog.Logger, entry AuditEntry) {
	if sink == nil {
		return
	}
	if err := sink.Record(ctx, entry); err != nil && logger != nil {
		logger.Warn("audit record failed",
			slog.String("action", entry.Action),
			slog.String("entity", entry.Entity),
			slog.String("entity_id", entry.EntityID),
			slog.Any("error", err))
	}
}
