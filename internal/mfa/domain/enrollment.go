package domain

import (
	"errors"
	"time"
)

// ErrMalformedRecord reports an enrollment record that cannot be used as stored.
var ErrMalformedRecord = errors.New("domain: malformed enrollment record")

// Status is the per-identity MFA lifecycle state.
type Status string

const (
	StatusNotEnrolled        Status = "not_enrolled"
	StatusEnrolledUnverified Status = "enrolled_unverified"
	StatusActive             Status = "active"
	StatusDisabled           Status = "disabled"
)

// EnrollmentRecord is the durable MFA state of one identity. The secret is
// only ever held encrypted; backup codes live in their own table.
type EnrollmentRecord struct {
	Identity         string
	Label            string // account name shown by authenticator apps
	SecretCiphertext []byte
	CreatedAt        time.Time
	UpdatedAt        time.Time
	VerifiedAt       *time.Time // first successful code verification
	DisabledAt       *time.Time // set while temporarily disabled
}

func (r EnrollmentRecord) Verified() bool { return r.VerifiedAt != nil }
func (r EnrollmentRecord) Disabled() bool { return r.DisabledAt != nil }

// Status derives the lifecycle state from the record's flags.
func (r EnrollmentRecord) Status() Status {
	switch {
	case r.Disabled():
		return StatusDisabled
	case r.Verified():
		return StatusActive
	default:
		return StatusEnrolledUnverified
	}
}

// Validate rejects records whose shape cannot have been written by this
// service.
func (r EnrollmentRecord) Validate() error {
	switch {
	case r.Identity == "":
		return errors.Join(ErrMalformedRecord, errors.New("missing identity"))
	case len(r.SecretCiphertext) == 0:
		return errors.Join(ErrMalformedRecord, errors.New("missing secret"))
	case r.CreatedAt.IsZero():
		return errors.Join(ErrMalformedRecord, errors.New("missing created_at"))
	case r.VerifiedAt != nil && r.VerifiedAt.Before(r.CreatedAt):
		return errors.Join(ErrMalformedRecord, errors.New("verified before created"))
	}
	return nil
}

// StatusInfo summarises an identity's enrollment for callers.
type StatusInfo struct {
	Identity             string     `json:"identity"`
	Status               Status     `json:"status"`
	EnrolledAt           *time.Time `json:"enrolled_at,omitempty"`
	VerifiedAt           *time.Time `json:"verified_at,omitempty"`
	DisabledAt           *time.Time `json:"disabled_at,omitempty"`
	RemainingBackupCodes int        `json:"remaining_backup_codes"`
}

// SetupResult is returned once from setup; none of it is retrievable later.
type SetupResult struct {
	Secret        string   `json:"secret"`
	BackupCodes   []string `json:"backup_codes"`
	EnrollmentURI string   `json:"enrollment_uri"`
	QRCodePNG     []byte   `json:"qr_code_png,omitempty"`
}
