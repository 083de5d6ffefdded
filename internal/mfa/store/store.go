package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/phimfa/internal/mfa/domain"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrCorrupt is returned when a stored row cannot be decoded into a
	// valid record.
	ErrCorrupt = errors.New("store: corrupt record")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. Sub-repositories are methods so a Tx-scoped store can hand
// out the same repos bound to the transaction.
type Store interface {
	Enrollments() Enrollments
	BackupCodes() BackupCodes
	AuditEvents() AuditEvents

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing when fn returns
	// nil and rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Enrollments interface {
	// GetEnrollment returns ErrNotFound when the identity has no record and
	// ErrCorrupt when the stored row fails validation.
	GetEnrollment(ctx context.Context, identity string) (domain.EnrollmentRecord, error)

	// SaveEnrollment inserts or fully replaces the record for rec.Identity.
	SaveEnrollment(ctx context.Context, rec domain.EnrollmentRecord) error

	// MarkVerified stamps verifiedAt on the record only while it still holds
	// secretCiphertext, so a concurrent setup is never overwritten. It
	// reports whether a row was updated.
	MarkVerified(ctx context.Context, identity string, secretCiphertext []byte, verifiedAt time.Time) (bool, error)

	// SetDisabledAt sets or clears disabled_at without touching the secret.
	// It reports whether the record exists.
	SetDisabledAt(ctx context.Context, identity string, disabledAt *time.Time, updatedAt time.Time) (bool, error)

	// DeleteEnrollment removes the record; deleting a missing record is not an error.
	DeleteEnrollment(ctx context.Context, identity string) error
}

type BackupCodes interface {
	// CreateBackupCode stores one backup code fingerprint.
	CreateBackupCode(ctx context.Context, identity, codeHash string, createdAt time.Time) error

	// ConsumeBackupCode deletes the matching fingerprint in a single
	// statement and reports whether a row was removed. Two concurrent
	// callers with the same code can never both see true.
	ConsumeBackupCode(ctx context.Context, identity, codeHash string) (bool, error)

	// DeleteAllBackupCodes removes every code for identity.
	DeleteAllBackupCodes(ctx context.Context, identity string) error

	// CountBackupCodes returns the number of unused codes for identity.
	CountBackupCodes(ctx context.Context, identity string) (int, error)
}

type AuditEvents interface {
	AppendAuditEvent(ctx context.Context, ev domain.AuditEvent) error

	// ListAuditEvents returns the newest events for identity first, at most limit.
	ListAuditEvents(ctx context.Context, identity string, limit int) ([]domain.AuditEvent, error)
}
