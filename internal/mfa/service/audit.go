package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/phimfa/internal/mfa/domain"
	"github.com/aussiebroadwan/phimfa/internal/mfa/store"
	"github.com/aussiebroadwan/phimfa/pkg/idx"
)

// DefaultAuditEscalationThreshold is the number of consecutive sink
// failures after which the recorder reports a configuration problem.
const DefaultAuditEscalationThreshold = 3

// AuditSink receives audit events.
type AuditSink interface {
	Record(ctx context.Context, ev domain.AuditEvent) error
}

// LogAuditSink writes events as structured log lines.
type LogAuditSink struct {
	Logger *slog.Logger
}

func (s LogAuditSink) Record(ctx context.Context, ev domain.AuditEvent) error {
	s.Logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("audit_id", ev.ID),
		slog.String("identity", ev.Identity),
		slog.String("operation", string(ev.Operation)),
		slog.String("outcome", string(ev.Outcome)),
		slog.String("reason", string(ev.Reason)),
		slog.String("method", string(ev.Method)),
		slog.String("session_ref", ev.SessionRef),
		slog.Time("occurred_at", ev.OccurredAt),
	)
	return nil
}

// StoreAuditSink persists events to the audit_events table.
type StoreAuditSink struct {
	Store store.Store
}

func (s StoreAuditSink) Record(ctx context.Context, ev domain.AuditEvent) error {
	return s.Store.AuditEvents().AppendAuditEvent(ctx, ev)
}

// MultiAuditSink fans out to every sink and joins their errors.
type MultiAuditSink []AuditSink

func (m MultiAuditSink) Record(ctx context.Context, ev domain.AuditEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AuditRecorder stamps events and hands them to a sink without ever
// failing the operation being audited. Sink failures go to the fallback
// logger, and a run of Threshold consecutive failures is escalated as a
// configuration_invalid event for operation audit_sink.
type AuditRecorder struct {
	sink      AuditSink
	fallback  *slog.Logger
	ids       *idx.Generator
	threshold int

	mu          sync.Mutex
	consecutive int
}

// NewAuditRecorder wraps sink. A non-positive threshold uses the default.
func NewAuditRecorder(sink AuditSink, fallback *slog.Logger, ids *idx.Generator, threshold int) *AuditRecorder {
	if threshold <= 0 {
		threshold = DefaultAuditEscalationThreshold
	}
	if ids == nil {
		ids = idx.NewGenerator(nil)
	}
	return &AuditRecorder{sink: sink, fallback: fallback, ids: ids, threshold: threshold}
}

// Record delivers ev. It never returns an error.
func (r *AuditRecorder) Record(ctx context.Context, ev domain.AuditEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if ev.ID == "" {
		if id, err := r.ids.NewAt(ev.OccurredAt); err == nil {
			ev.ID = id.String()
		}
	}

	err := r.sink.Record(ctx, ev)

	r.mu.Lock()
	if err == nil {
		r.consecutive = 0
		r.mu.Unlock()
		return
	}
	r.consecutive++
	failures := r.consecutive
	r.mu.Unlock()

	r.fallback.WarnContext(ctx, "audit sink failed",
		"error", err,
		"audit_id", ev.ID,
		"identity", ev.Identity,
		"operation", string(ev.Operation),
		"outcome", string(ev.Outcome),
		"reason", string(ev.Reason),
		"consecutive_failures", failures,
	)

	if failures == r.threshold {
		r.fallback.ErrorContext(ctx, "audit",
			"identity", ev.Identity,
			"operation", string(domain.OpAuditSink),
			"outcome", string(domain.OutcomeFailure),
			"reason", string(domain.ReasonConfigurationInvalid),
			"consecutive_failures", failures,
		)
	}
}

// ConsecutiveFailures returns the current failure streak.
func (r *AuditRecorder) ConsecutiveFailures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consecutive
}

// Healthy reports whether the failure streak is below the escalation
// threshold.
func (r *AuditRecorder) Healthy() bool {
	return r.ConsecutiveFailures() < r.threshold
}
