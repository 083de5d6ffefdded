package postgres

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/phimfa/internal/mfa/domain"
	"github.com/jackc/pgx/v5"
)

type auditEventsRepo struct {
	q querier
}

func (r *auditEventsRepo) AppendAuditEvent(ctx context.Context, ev domain.AuditEvent) error {
	query := `
		INSERT INTO audit_events (id, identity, operation, outcome, reason, method, session_ref, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.q.Exec(ctx, query,
		ev.ID, ev.Identity, string(ev.Operation), string(ev.Outcome),
		string(ev.Reason), string(ev.Method), ev.SessionRef, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

func (r *auditEventsRepo) ListAuditEvents(ctx context.Context, identity string, limit int) ([]domain.AuditEvent, error) {
	query := `
		SELECT id, identity, operation, outcome, reason, method, session_ref, occurred_at
		FROM audit_events
		WHERE identity = $1
		ORDER BY id DESC
		LIMIT $2`

	rows, err := r.q.Query(ctx, query, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AuditEvent, error) {
		var ev domain.AuditEvent
		var op, outcome, reason, method string
		err := row.Scan(&ev.ID, &ev.Identity, &op, &outcome, &reason, &method, &ev.SessionRef, &ev.OccurredAt)
		ev.Operation = domain.Operation(op)
		ev.Outcome = domain.Outcome(outcome)
		ev.Reason = domain.Reason(reason)
		ev.Method = domain.Method(method)
		return ev, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit events: %w", err)
	}
	return events, nil
}
