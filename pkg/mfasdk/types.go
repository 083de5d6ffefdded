package mfasdk

import "time"

// SessionHeader carries an MFA session token on session-scoped routes.
const SessionHeader = "X-MFA-Session"

// ============================================================================
// Enrollment Types
// ============================================================================

// SetupRequest starts (or restarts) enrollment for the caller.
type SetupRequest struct {
	// Label is the account name shown in authenticator apps. Defaults to the identity.
	Label string `json:"label,omitempty"`
}

// SetupResponse is returned exactly once; none of it can be fetched again.
type SetupResponse struct {
	Secret        string   `json:"secret"`
	BackupCodes   []string `json:"backup_codes"`
	EnrollmentURI string   `json:"enrollment_uri"`

	// QRCodePNG is the enrollment URI rendered as a PNG, when enabled server side.
	QRCodePNG []byte `json:"qr_code_png,omitempty"`
}

// StatusResponse summarises the caller's enrollment.
type StatusResponse struct {
	Identity             string     `json:"identity"`
	Status               string     `json:"status"`
	EnrolledAt           *time.Time `json:"enrolled_at,omitempty"`
	VerifiedAt           *time.Time `json:"verified_at,omitempty"`
	DisabledAt           *time.Time `json:"disabled_at,omitempty"`
	RemainingBackupCodes int        `json:"remaining_backup_codes"`
}

// EnableResponse reports whether an enrollment existed to be enabled.
type EnableResponse struct {
	Enabled bool `json:"enabled"`
}

// ============================================================================
// Verification Types
// ============================================================================

// VerifyRequest submits a TOTP or backup code.
type VerifyRequest struct {
	Code     string `json:"code"`
	Elevated bool   `json:"elevated,omitempty"`
}

// VerifyResponse is the body of a successful verification. Failures are
// returned as *APIError.
type VerifyResponse struct {
	Success           bool         `json:"success"`
	Method            string       `json:"method"`
	RemainingAttempts int          `json:"remaining_attempts"`
	Session           *SessionInfo `json:"session"`
}

// SessionInfo describes an MFA session.
type SessionInfo struct {
	Token            string    `json:"token"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	PHIAccessEnabled bool      `json:"phi_access_enabled"`
}

// ElevatedAccessResponse reports whether a session grants PHI access.
type ElevatedAccessResponse struct {
	Granted bool `json:"granted"`
}

// ============================================================================
// Backup Code Types
// ============================================================================

// BackupCodesRemainingResponse is returned by GET /v1/mfa/backup-codes.
type BackupCodesRemainingResponse struct {
	Remaining int `json:"remaining"`
}

// ConfirmCodeRequest carries the TOTP or backup code that authorises a
// disable or removal.
type ConfirmCodeRequest struct {
	Code string `json:"code"`
}

// RegenerateBackupCodesRequest requires a current TOTP code.
type RegenerateBackupCodesRequest struct {
	Code string `json:"code"`
}

// BackupCodesResponse carries freshly generated backup codes.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// ============================================================================
// Audit Types
// ============================================================================

// AuditEvent is one entry of the caller's audit trail.
type AuditEvent struct {
	ID         string    `json:"id"`
	Identity   string    `json:"identity"`
	Operation  string    `json:"operation"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason"`
	Method     string    `json:"method,omitempty"`
	SessionRef string    `json:"session_ref,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AuditEventsResponse lists audit events, newest first.
type AuditEventsResponse struct {
	Events []AuditEvent `json:"events"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse is returned by /livez and /readyz (readyz adds Checks).
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks is the status of each critical dependency.
type HealthChecks struct {
	Database string `json:"database"`
	Audit    string `json:"audit"`
}
