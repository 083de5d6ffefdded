package domain

import "time"

// Session is an authenticated MFA state. Callers only ever hold the token.
type Session struct {
	Token            string    `json:"token"`
	Identity         string    `json:"identity"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	PHIAccessEnabled bool      `json:"phi_access_enabled"`
}

// Expired reports whether now is past the expiry. A session is still valid
// at the exact expiry instant.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Reason is a coarse outcome code safe to surface and audit.
type Reason string

const (
	ReasonOK                     Reason = "ok"
	ReasonNotEnrolled            Reason = "not_enrolled"
	ReasonTemporarilyDisabled    Reason = "temporarily_disabled"
	ReasonRateLimited            Reason = "rate_limited"
	ReasonInvalidCode            Reason = "invalid_code"
	ReasonConfigurationInvalid   Reason = "configuration_invalid"
	ReasonPersistenceUnavailable Reason = "persistence_unavailable"
	ReasonAlreadyEnrolled        Reason = "already_enrolled"
	ReasonSessionNotFound        Reason = "session_not_found"
)

// Method records which credential satisfied a verification.
type Method string

const (
	MethodNone       Method = ""
	MethodTOTP       Method = "totp"
	MethodBackupCode Method = "backup_code"
)

// VerifyResult is the outcome of a verification attempt. Verification never
// fails with an error value; Err carries the taxonomy sentinel for callers
// that want errors.Is.
type VerifyResult struct {
	Success           bool
	Session           *Session
	Method            Method
	RemainingAttempts int
	RetryAfter        time.Duration
	Reason            Reason
	Err               error
}
