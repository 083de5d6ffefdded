package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/phimfa/internal/mfa/domain"
	"github.com/aussiebroadwan/phimfa/internal/mfa/store"
)

type enrollmentsRepo struct {
	q *queries
}

func (r *enrollmentsRepo) GetEnrollment(ctx context.Context, identity string) (domain.EnrollmentRecord, error) {
	row, err := r.q.getEnrollment(ctx, identity)
	if err != nil {
		return domain.EnrollmentRecord{}, mapNotFound(err)
	}

	rec := mapEnrollment(row)
	if err := rec.Validate(); err != nil {
		return domain.EnrollmentRecord{}, fmt.Errorf("%w: %v", store.ErrCorrupt, err)
	}
	return rec, nil
}

func (r *enrollmentsRepo) SaveEnrollment(ctx context.Context, rec domain.EnrollmentRecord) error {
	return r.q.upsertEnrollment(ctx, enrollmentRow{
		Identity:         rec.Identity,
		Label:            rec.Label,
		SecretCiphertext: rec.SecretCiphertext,
		CreatedAt:        toNanos(rec.CreatedAt),
		UpdatedAt:        toNanos(rec.UpdatedAt),
		VerifiedAt:       mapOptionalNanos(rec.VerifiedAt),
		DisabledAt:       mapOptionalNanos(rec.DisabledAt),
	})
}

func (r *enrollmentsRepo) MarkVerified(ctx context.Context, identity string, secretCiphertext []byte, verifiedAt time.Time) (bool, error) {
	n, err := r.q.markEnrollmentVerified(ctx, identity, secretCiphertext, toNanos(verifiedAt))
	return n == 1, err
}

func (r *enrollmentsRepo) SetDisabledAt(ctx context.Context, identity string, disabledAt *time.Time, updatedAt time.Time) (bool, error) {
	n, err := r.q.setEnrollmentDisabledAt(ctx, identity, mapOptionalNanos(disabledAt), toNanos(updatedAt))
	return n == 1, err
}

func (r *enrollmentsRepo) DeleteEnrollment(ctx context.Context, identity string) error {
	return r.q.deleteEnrollment(ctx, identity)
}

func mapEnrollment(row enrollmentRow) domain.EnrollmentRecord {
	return domain.EnrollmentRecord{
		Identity:         row.Identity,
		Label:            row.Label,
		SecretCiphertext: row.SecretCiphertext,
		CreatedAt:        fromNanos(row.CreatedAt),
		UpdatedAt:        fromNanos(row.UpdatedAt),
		VerifiedAt:       mapNullNanosPtr(row.VerifiedAt),
		DisabledAt:       mapNullNanosPtr(row.DisabledAt),
	}
}
