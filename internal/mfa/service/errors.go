package service

import "errors"

var (
	// ErrConfiguration covers malformed secrets, corrupted enrollment records
	// and encryption failures. The caller must re-run setup.
	ErrConfiguration = errors.New("MFA configuration invalid, re-setup required")

	ErrNotEnrolled         = errors.New("MFA not enrolled")
	ErrTemporarilyDisabled = errors.New("MFA temporarily disabled")
	ErrRateLimited         = errors.New("too many failed attempts")
	ErrVerificationFailed  = errors.New("invalid code")
	ErrAlreadyEnrolled     = errors.New("MFA already enrolled")
	ErrInvalidIdentity     = errors.New("identity is required")
	ErrInvalidLabel        = errors.New("invalid account label")

	// ErrPersistenceUnavailable is retryable by the caller. It is never
	// reported as ErrNotEnrolled.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)
