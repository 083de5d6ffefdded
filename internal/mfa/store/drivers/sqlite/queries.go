package sqlite

import (
	"context"
	"database/sql"
)

// queries holds the hand-written SQL for this driver. Every method runs
// against db, which is either the pool or an open transaction.
type queries struct {
	db dbtx
}

type enrollmentRow struct {
	Identity         string
	Label            string
	SecretCiphertext []byte
	CreatedAt        int64
	UpdatedAt        int64
	VerifiedAt       sql.NullInt64
	DisabledAt       sql.NullInt64
}

const getEnrollment = `
SELECT identity, label, secret_ciphertext, created_at, updated_at, verified_at, disabled_at
FROM enrollments
WHERE identity = ?`

func (q *queries) getEnrollment(ctx context.Context, identity string) (enrollmentRow, error) {
	var r enrollmentRow
	err := q.db.QueryRowContext(ctx, getEnrollment, identity).Scan(
		&r.Identity,
		&r.Label,
		&r.SecretCiphertext,
		&r.CreatedAt,
		&r.UpdatedAt,
		&r.VerifiedAt,
		&r.DisabledAt,
	)
	return r, err
}

const upsertEnrollment = `
INSERT INTO enrollments (identity, label, secret_ciphertext, created_at, updated_at, verified_at, disabled_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (identity) DO UPDATE SET
    label             = excluded.label,
    secret_ciphertext = excluded.secret_ciphertext,
    created_at        = excluded.created_at,
    updated_at        = excluded.updated_at,
    verified_at       = excluded.verified_at,
    disabled_at       = excluded.disabled_at`

func (q *queries) upsertEnrollment(ctx context.Context, r enrollmentRow) error {
	_, err := q.db.ExecContext(ctx, upsertEnrollment,
		r.Identity,
		r.Label,
		r.SecretCiphertext,
		r.CreatedAt,
		r.UpdatedAt,
		r.VerifiedAt,
		r.DisabledAt,
	)
	return err
}

const markEnrollmentVerified = `
UPDATE enrollments
SET verified_at = ?, updated_at = ?
WHERE identity = ? AND secret_ciphertext = ? AND verified_at IS NULL`

func (q *queries) markEnrollmentVerified(ctx context.Context, identity string, secretCiphertext []byte, verifiedAt int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markEnrollmentVerified, verifiedAt, verifiedAt, identity, secretCiphertext)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const setEnrollmentDisabledAt = `
UPDATE enrollments
SET disabled_at = ?, updated_at = ?
WHERE identity = ?`

func (q *queries) setEnrollmentDisabledAt(ctx context.Context, identity string, disabledAt sql.NullInt64, updatedAt int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, setEnrollmentDisabledAt, disabledAt, updatedAt, identity)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteEnrollment = `DELETE FROM enrollments WHERE identity = ?`

func (q *queries) deleteEnrollment(ctx context.Context, identity string) error {
	_, err := q.db.ExecContext(ctx, deleteEnrollment, identity)
	return err
}

const createBackupCode = `
INSERT INTO backup_codes (identity, code_hash, created_at)
VALUES (?, ?, ?)`

func (q *queries) createBackupCode(ctx context.Context, identity, codeHash string, createdAt int64) error {
	_, err := q.db.ExecContext(ctx, createBackupCode, identity, codeHash, createdAt)
	return err
}

const consumeBackupCode = `DELETE FROM backup_codes WHERE identity = ? AND code_hash = ?`

func (q *queries) consumeBackupCode(ctx context.Context, identity, codeHash string) (int64, error) {
	res, err := q.db.ExecContext(ctx, consumeBackupCode, identity, codeHash)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteAllBackupCodes = `DELETE FROM backup_codes WHERE identity = ?`

func (q *queries) deleteAllBackupCodes(ctx context.Context, identity string) error {
	_, err := q.db.ExecContext(ctx, deleteAllBackupCodes, identity)
	return err
}

const countBackupCodes = `SELECT COUNT(*) FROM backup_codes WHERE identity = ?`

func (q *queries) countBackupCodes(ctx context.Context, identity string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countBackupCodes, identity).Scan(&n)
	return n, err
}

type auditEventRow struct {
	ID         string
	Identity   string
	Operation  string
	Outcome    string
	Reason     string
	Method     string
	SessionRef string
	OccurredAt int64
}

const appendAuditEvent = `
INSERT INTO audit_events (id, identity, operation, outcome, reason, method, session_ref, occurred_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *queries) appendAuditEvent(ctx context.Context, r auditEventRow) error {
	_, err := q.db.ExecContext(ctx, appendAuditEvent,
		r.ID,
		r.Identity,
		r.Operation,
		r.Outcome,
		r.Reason,
		r.Method,
		r.SessionRef,
		r.OccurredAt,
	)
	return err
}

const listAuditEvents = `
SELECT id, identity, operation, outcome, reason, method, session_ref, occurred_at
FROM audit_events
WHERE identity = ?
ORDER BY id DESC
LIMIT ?`

func (q *queries) listAuditEvents(ctx context.Context, identity string, limit int) ([]auditEventRow, error) {
	rows, err := q.db.QueryContext(ctx, listAuditEvents, identity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auditEventRow
	for rows.Next() {
		var r auditEventRow
		if err := rows.Scan(
			&r.ID,
			&r.Identity,
			&r.Operation,
			&r.Outcome,
			&r.Reason,
			&r.Method,
			&r.SessionRef,
			&r.OccurredAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
