package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/phimfa/internal/mfa/domain"
	"github.com/aussiebroadwan/phimfa/internal/mfa/store"
)

type enrollmentsRepo struct {
	q querier
}

func (r *enrollmentsRepo) GetEnrollment(ctx context.Context, identity string) (domain.EnrollmentRecord, error) {
	query := `
		SELECT identity, label, secret_ciphertext, created_at, updated_at, verified_at, disabled_at
		FROM enrollments
		WHERE identity = $1`

	var rec domain.EnrollmentRecord
	err := r.q.QueryRow(ctx, query, identity).Scan(
		&rec.Identity, &rec.Label, &rec.SecretCiphertext,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.VerifiedAt, &rec.DisabledAt,
	)
	if err != nil {
		return domain.EnrollmentRecord{}, mapNotFound(err)
	}

	if err := rec.Validate(); err != nil {
		return domain.EnrollmentRecord{}, fmt.Errorf("%w: %v", store.ErrCorrupt, err)
	}
	return rec, nil
}

func (r *enrollmentsRepo) SaveEnrollment(ctx context.Context, rec domain.EnrollmentRecord) error {
	query := `
		INSERT INTO enrollments (identity, label, secret_ciphertext, created_at, updated_at, verified_at, disabled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (identity) DO UPDATE SET
			label             = EXCLUDED.label,
			secret_ciphertext = EXCLUDED.secret_ciphertext,
			created_at        = EXCLUDED.created_at,
			updated_at        = EXCLUDED.updated_at,
			verified_at       = EXCLUDED.verified_at,
			disabled_at       = EXCLUDED.disabled_at`

	_, err := r.q.Exec(ctx, query,
		rec.Identity, rec.Label, rec.SecretCiphertext,
		rec.CreatedAt, rec.UpdatedAt, rec.VerifiedAt, rec.DisabledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save enrollment: %w", err)
	}
	return nil
}

func (r *enrollmentsRepo) MarkVerified(ctx context.Context, identity string, secretCiphertext []byte, verifiedAt time.Time) (bool, error) {
	query := `
		UPDATE enrollments
		SET verified_at = $1, updated_at = $1
		WHERE identity = $2 AND secret_ciphertext = $3 AND verified_at IS NULL`

	tag, err := r.q.Exec(ctx, query, verifiedAt, identity, secretCiphertext)
	if err != nil {
		return false, fmt.Errorf("failed to mark enrollment verified: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *enrollmentsRepo) SetDisabledAt(ctx context.Context, identity string, disabledAt *time.Time, updatedAt time.Time) (bool, error) {
	query := `UPDATE enrollments SET disabled_at = $1, updated_at = $2 WHERE identity = $3`

	tag, err := r.q.Exec(ctx, query, disabledAt, updatedAt, identity)
	if err != nil {
		return false, fmt.Errorf("failed to update enrollment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *enrollmentsRepo) DeleteEnrollment(ctx context.Context, identity string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM enrollments WHERE identity = $1`, identity); err != nil {
		return fmt.Errorf("failed to delete enrollment: %w", err)
	}
	return nil
}
