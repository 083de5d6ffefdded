package sqlite

import (
	"context"

	"github.com/aussiebroadwan/phimfa/internal/mfa/domain"
)

type auditEventsRepo struct {
	q *queries
}

func (r *auditEventsRepo) AppendAuditEvent(ctx context.Context, ev domain.AuditEvent) error {
	return r.q.appendAuditEvent(ctx, auditEventRow{
		ID:         ev.ID,
		Identity:   ev.Identity,
		Operation:  string(ev.Operation),
		Outcome:    string(ev.Outcome),
		Reason:     string(ev.Reason),
		Method:     string(ev.Method),
		SessionRef: ev.SessionRef,
		OccurredAt: toNanos(ev.OccurredAt),
	})
}

func (r *auditEventsRepo) ListAuditEvents(ctx context.Context, identity string, limit int) ([]domain.AuditEvent, error) {
	rows, err := r.q.listAuditEvents(ctx, identity, limit)
	if err != nil {
		return nil, err
	}

	out := make([]domain.AuditEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.AuditEvent{
			ID:         row.ID,
			Identity:   row.Identity,
			Operation:  domain.Operation(row.Operation),
			Outcome:    domain.Outcome(row.Outcome),
			Reason:     domain.Reason(row.Reason),
			Method:     domain.Method(row.Method),
			SessionRef: row.SessionRef,
			OccurredAt: fromNanos(row.OccurredAt),
		})
	}
	return out, nil
}
