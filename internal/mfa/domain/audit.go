package domain

import "time"

// Operation names the audited action.
type Operation string

const (
	OpSetup                 Operation = "setup"
	OpVerify                Operation = "verify"
	OpVerifyElevated        Operation = "verify_elevated_access"
	OpSessionInvalidate     Operation = "session_invalidate"
	OpDisable               Operation = "disable"
	OpEnable                Operation = "enable"
	OpRemove                Operation = "remove"
	OpRegenerateBackupCodes Operation = "regenerate_backup_codes"
	OpAuditSink             Operation = "audit_sink"
)

// Outcome is success or failure.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// AuditEvent never carries secrets, submitted codes or backup codes.
// SessionRef is a fingerprint of the session token, not the token itself.
type AuditEvent struct {
	ID         string    `json:"id"`
	Identity   string    `json:"identity"`
	Operation  Operation `json:"operation"`
	Outcome    Outcome   `json:"outcome"`
	Reason     Reason    `json:"reason"`
	Method     Method    `json:"method,omitempty"`
	SessionRef string    `json:"session_ref,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
