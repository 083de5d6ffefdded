package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aussiebroadwan/phimfa/internal/mfa/domain"
	"github.com/aussiebroadwan/phimfa/internal/mfa/store"
	"github.com/aussiebroadwan/phimfa/pkg/cryptox"
	"github.com/aussiebroadwan/phimfa/pkg/otpx"
	"github.com/aussiebroadwan/phimfa/pkg/slogx"
)

// CodeEngine generates secrets and validates time-stepped codes.
// *otpx.Engine satisfies it.
type CodeEngine interface {
	NewSecret(label string) (string, error)
	Validate(secret, code string, at time.Time) (bool, error)
	EnrollmentURI(secret, label string) (string, error)
}

// SecretCipher seals enrollment secrets at rest. *cryptox.Cipher satisfies it.
type SecretCipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Observer receives one observation per audited operation.
type Observer interface {
	ObserveOperation(op domain.Operation, outcome domain.Outcome, reason domain.Reason)
	SetActiveSessions(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(domain.Operation, domain.Outcome, domain.Reason) {}
func (nopObserver) SetActiveSessions(int)                                            {}

// MFAService is the per-identity MFA state machine:
//
//	NotEnrolled -> EnrolledUnverified -> Active <-> Disabled
//	Active -> NotEnrolled (Remove)
type MFAService struct {
	Store       store.Store
	Engine      CodeEngine
	Cipher      SecretCipher
	BackupCodes *BackupCodeStore
	Limiter     *RateLimiter
	Sessions    *SessionManager
	Audit       *AuditRecorder
	Observer    Observer

	// Now is the clock. nil means time.Now.
	Now func() time.Time
	// Rand feeds backup code generation. nil means crypto/rand.
	Rand io.Reader

	BackupCodeCount int
	// QRCodeSize is the PNG edge in pixels; 0 omits the image from setup.
	QRCodeSize int
	// AllowBackupBeforeVerified lets a backup code open a session before the
	// enrollment has been confirmed with a TOTP code.
	AllowBackupBeforeVerified bool
}

// Setup creates or replaces a pending enrollment for identity and returns
// the secret and backup codes. Nothing returned here can be read back later.
func (s *MFAService) Setup(ctx context.Context, identity, label string) (domain.SetupResult, error) {
	if identity == "" {
		return domain.SetupResult{}, ErrInvalidIdentity
	}
	if label == "" {
		label = identity
	}
	if err := otpx.CheckLabel(label); err != nil {
		return domain.SetupResult{}, fmt.Errorf("%w: %v", ErrInvalidLabel, err)
	}
	now := s.now()

	existing, err := s.Store.Enrollments().GetEnrollment(ctx, identity)
	switch {
	case err == nil:
		if existing.Verified() {
			s.audit(ctx, identity, domain.OpSetup, domain.ReasonAlreadyEnrolled)
			return domain.SetupResult{}, ErrAlreadyEnrolled
		}
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrCorrupt):
		// a corrupt pending record is simply overwritten
	default:
		s.audit(ctx, identity, domain.OpSetup, domain.ReasonPersistenceUnavailable)
		return domain.SetupResult{}, persistenceError(err)
	}

	secret, err := s.Engine.NewSecret(label)
	if err != nil {
		s.audit(ctx, identity, domain.OpSetup, domain.ReasonConfigurationInvalid)
		return domain.SetupResult{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	uri, err := s.Engine.EnrollmentURI(secret, label)
	if err != nil {
		s.audit(ctx, identity, domain.OpSetup, domain.ReasonConfigurationInvalid)
		return domain.SetupResult{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	ciphertext, err := s.Cipher.Encrypt([]byte(secret))
	if err != nil {
		s.audit(ctx, identity, domain.OpSetup, domain.ReasonConfigurationInvalid)
		return domain.SetupResult{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	codes, err := GenerateBackupCodes(s.Rand, s.backupCodeCount())
	if err != nil {
		s.audit(ctx, identity, domain.OpSetup, domain.ReasonConfigurationInvalid)
		return domain.SetupResult{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	var png []byte
	if s.QRCodeSize > 0 {
		if png, err = otpx.QRCodePNG(uri, s.QRCodeSize); err != nil {
			s.audit(ctx, identity, domain.OpSetup, domain.ReasonConfigurationInvalid)
			return domain.SetupResult{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
	}

	rec := domain.EnrollmentRecord{
		Identity:         identity,
		Label:            label,
		SecretCiphertext: ciphertext,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Enrollments().SaveEnrollment(ctx, rec); err != nil {
			return err
		}
		return s.BackupCodes.Replace(ctx, tx, identity, codes, now)
	})
	if err != nil {
		s.audit(ctx, identity, domain.OpSetup, domain.ReasonPersistenceUnavailable)
		return domain.SetupResult{}, persistenceError(err)
	}

	slogx.FromContext(ctx).InfoContext(ctx, "mfa enrollment created", "identity", identity)
	s.audit(ctx, identity, domain.OpSetup, domain.ReasonOK)

	return domain.SetupResult{
		Secret:        secret,
		BackupCodes:   codes,
		EnrollmentURI: uri,
		QRCodePNG:     png,
	}, nil
}

// Verify checks code for identity and issues a session on success. It
// never returns an error; failures are described by the result.
//
// The rate limiter is consulted first and nothing else runs while blocked.
// TOTP is tried before backup codes, and the limiter is updated exactly once
// per call whichever path decides the outcome.
func (s *MFAService) Verify(ctx context.Context, identity, code string, elevated bool) domain.VerifyResult {
	now := s.now()

	decision := s.Limiter.CheckAllowed(identity, now)
	if !decision.Allowed {
		return s.verifyFailure(ctx, identity, domain.VerifyResult{
			RetryAfter: decision.RetryAfter,
			Reason:     domain.ReasonRateLimited,
			Err:        ErrRateLimited,
		})
	}

	rec, err := s.Store.Enrollments().GetEnrollment(ctx, identity)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return s.verifyFailure(ctx, identity, domain.VerifyResult{
			RemainingAttempts: decision.Remaining,
			Reason:            domain.ReasonNotEnrolled,
			Err:               ErrNotEnrolled,
		})
	case errors.Is(err, store.ErrCorrupt):
		return s.verifyConfigFailure(ctx, identity, decision.Remaining, err)
	default:
		return s.verifyFailure(ctx, identity, domain.VerifyResult{
			RemainingAttempts: decision.Remaining,
			Reason:            domain.ReasonPersistenceUnavailable,
			Err:               persistenceError(err),
		})
	}

	if rec.Disabled() {
		return s.verifyFailure(ctx, identity, domain.VerifyResult{
			RemainingAttempts: decision.Remaining,
			Reason:            domain.ReasonTemporarilyDisabled,
			Err:               ErrTemporarilyDisabled,
		})
	}

	secret, err := s.Cipher.Decrypt(rec.SecretCiphertext)
	if err != nil {
		return s.verifyConfigFailure(ctx, identity, decision.Remaining, err)
	}

	ok, err := s.Engine.Validate(string(secret), code, now)
	if err != nil {
		return s.verifyConfigFailure(ctx, identity, decision.Remaining, err)
	}
	if ok {
		if !rec.Verified() {
			current, err := s.Store.Enrollments().MarkVerified(ctx, identity, rec.SecretCiphertext, now)
			if err != nil {
				return s.verifyFailure(ctx, identity, domain.VerifyResult{
					RemainingAttempts: decision.Remaining,
					Reason:            domain.ReasonPersistenceUnavailable,
					Err:               persistenceError(err),
				})
			}
			if !current {
				// a concurrent setup replaced the secret this code matched
				return s.verifyFailure(ctx, identity, domain.VerifyResult{
					RemainingAttempts: s.Limiter.RecordFailure(identity, now),
					Reason:            domain.ReasonInvalidCode,
					Err:               ErrVerificationFailed,
				})
			}
		}
		return s.verifySuccess(ctx, identity, elevated, domain.MethodTOTP, now)
	}

	if rec.Verified() || s.AllowBackupBeforeVerified {
		consumed, err := s.BackupCodes.Consume(ctx, identity, code)
		if err != nil {
			return s.verifyFailure(ctx, identity, domain.VerifyResult{
				RemainingAttempts: decision.Remaining,
				Reason:            domain.ReasonPersistenceUnavailable,
				Err:               persistenceError(err),
			})
		}
		if consumed {
			return s.verifySuccess(ctx, identity, elevated, domain.MethodBackupCode, now)
		}
	}

	remaining := s.Limiter.RecordFailure(identity, now)
	return s.verifyFailure(ctx, identity, domain.VerifyResult{
		RemainingAttempts: remaining,
		Reason:            domain.ReasonInvalidCode,
		Err:               ErrVerificationFailed,
	})
}

func (s *MFAService) verifySuccess(ctx context.Context, identity string, elevated bool, method domain.Method, now time.Time) domain.VerifyResult {
	s.Limiter.RecordSuccess(identity)

	session, err := s.Sessions.Issue(identity, elevated, now)
	if err != nil {
		slogx.FromContext(ctx).ErrorContext(ctx, "failed to issue session", "identity", identity, "error", err)
		return s.verifyFailure(ctx, identity, domain.VerifyResult{
			RemainingAttempts: s.Limiter.MaxAttempts(),
			Method:            method,
			Reason:            domain.ReasonConfigurationInvalid,
			Err:               fmt.Errorf("%w: %v", ErrConfiguration, err),
		})
	}

	s.record(ctx, domain.AuditEvent{
		Identity:   identity,
		Operation:  domain.OpVerify,
		Outcome:    domain.OutcomeSuccess,
		Reason:     domain.ReasonOK,
		Method:     method,
		SessionRef: cryptox.FingerprintToken(session.Token),
	})
	s.observer().SetActiveSessions(s.Sessions.Count())

	return domain.VerifyResult{
		Success:           true,
		Session:           &session,
		Method:            method,
		RemainingAttempts: s.Limiter.MaxAttempts(),
		Reason:            domain.ReasonOK,
	}
}

func (s *MFAService) verifyFailure(ctx context.Context, identity string, res domain.VerifyResult) domain.VerifyResult {
	res.Success = false
	res.Session = nil
	s.record(ctx, domain.AuditEvent{
		Identity:  identity,
		Operation: domain.OpVerify,
		Outcome:   domain.OutcomeFailure,
		Reason:    res.Reason,
		Method:    res.Method,
	})
	return res
}

// verifyConfigFailure clears an enrollment whose secret can no longer be
// used, leaving the identity NotEnrolled so it can run setup again.
func (s *MFAService) verifyConfigFailure(ctx context.Context, identity string, remaining int, cause error) domain.VerifyResult {
	log := slogx.FromContext(ctx)
	log.WarnContext(ctx, "clearing unusable mfa enrollment", "identity", identity, "error", cause)

	if err := s.deleteEnrollment(ctx, identity); err != nil {
		log.ErrorContext(ctx, "failed to clear mfa enrollment", "identity", identity, "error", err)
	}
	s.Sessions.InvalidateAll(identity)

	return s.verifyFailure(ctx, identity, domain.VerifyResult{
		RemainingAttempts: remaining,
		Reason:            domain.ReasonConfigurationInvalid,
		Err:               fmt.Errorf("%w: %v", ErrConfiguration, cause),
	})
}

// VerifyElevatedAccess reports whether token names a live PHI-access session.
func (s *MFAService) VerifyElevatedAccess(ctx context.Context, token string) bool {
	session, ok := s.Sessions.Get(token, s.now())
	granted := ok && session.PHIAccessEnabled

	ev := domain.AuditEvent{
		Identity:   session.Identity,
		Operation:  domain.OpVerifyElevated,
		Outcome:    domain.OutcomeSuccess,
		Reason:     domain.ReasonOK,
		SessionRef: cryptox.FingerprintToken(token),
	}
	if !granted {
		ev.Outcome = domain.OutcomeFailure
		ev.Reason = domain.ReasonSessionNotFound
	}
	s.record(ctx, ev)
	return granted
}

// CurrentSession returns the newest live session for identity.
func (s *MFAService) CurrentSession(identity string) (domain.Session, bool) {
	return s.Sessions.MostRecentValid(identity, s.now())
}

// ForeignSession reports whether token names a live session held by an
// identity other than caller. When it does, the attempt is audited as a
// failed op against caller and the session is left untouched.
func (s *MFAService) ForeignSession(ctx context.Context, caller, token string, op domain.Operation) bool {
	session, ok := s.Sessions.Get(token, s.now())
	if !ok || session.Identity == caller {
		return false
	}
	s.record(ctx, domain.AuditEvent{
		Identity:   caller,
		Operation:  op,
		Outcome:    domain.OutcomeFailure,
		Reason:     domain.ReasonSessionNotFound,
		SessionRef: cryptox.FingerprintToken(token),
	})
	return true
}

// InvalidateSession ends the session named by token.
func (s *MFAService) InvalidateSession(ctx context.Context, token string) bool {
	session, found := s.Sessions.Get(token, s.now())
	removed := s.Sessions.Invalidate(token)

	ev := domain.AuditEvent{
		Identity:   session.Identity,
		Operation:  domain.OpSessionInvalidate,
		Outcome:    domain.OutcomeSuccess,
		Reason:     domain.ReasonOK,
		SessionRef: cryptox.FingerprintToken(token),
	}
	if !found || !removed {
		ev.Outcome = domain.OutcomeFailure
		ev.Reason = domain.ReasonSessionNotFound
	}
	s.record(ctx, ev)
	s.observer().SetActiveSessions(s.Sessions.Count())
	return found && removed
}

// Disable suspends MFA for identity while keeping its secret and backup
// codes. code must be a current TOTP or unused backup code; a wrong code
// counts against the rate limiter. All of the identity's sessions end.
func (s *MFAService) Disable(ctx context.Context, identity, code string) error {
	op := domain.OpDisable
	now := s.now()

	if d := s.Limiter.CheckAllowed(identity, now); !d.Allowed {
		s.audit(ctx, identity, op, domain.ReasonRateLimited)
		return ErrRateLimited
	}
	rec, err := s.loadForUpdate(ctx, identity, op)
	if err != nil {
		return err
	}
	if err := s.confirmCode(ctx, rec, op, code, now); err != nil {
		return err
	}

	if !rec.Disabled() {
		found, err := s.Store.Enrollments().SetDisabledAt(ctx, identity, &now, now)
		if err != nil {
			s.audit(ctx, identity, op, domain.ReasonPersistenceUnavailable)
			return persistenceError(err)
		}
		if !found {
			s.audit(ctx, identity, op, domain.ReasonNotEnrolled)
			return ErrNotEnrolled
		}
	}

	n := s.Sessions.InvalidateAll(identity)
	slogx.FromContext(ctx).InfoContext(ctx, "mfa disabled", "identity", identity, "sessions_invalidated", n)
	s.audit(ctx, identity, op, domain.ReasonOK)
	s.observer().SetActiveSessions(s.Sessions.Count())
	return nil
}

// Enable lifts a Disable. It reports false when identity has never enrolled.
func (s *MFAService) Enable(ctx context.Context, identity string) (bool, error) {
	rec, err := s.loadForUpdate(ctx, identity, domain.OpEnable)
	if errors.Is(err, ErrNotEnrolled) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if rec.Disabled() {
		found, err := s.Store.Enrollments().SetDisabledAt(ctx, identity, nil, s.now())
		if err != nil {
			s.audit(ctx, identity, domain.OpEnable, domain.ReasonPersistenceUnavailable)
			return false, persistenceError(err)
		}
		if !found {
			s.audit(ctx, identity, domain.OpEnable, domain.ReasonNotEnrolled)
			return false, nil
		}
	}

	s.audit(ctx, identity, domain.OpEnable, domain.ReasonOK)
	return true, nil
}

// Remove deletes identity's enrollment and backup codes and ends its
// sessions. code is checked the same way as for Disable. An enrollment
// whose secret cannot be recovered holds no usable factor and is removed
// without one.
func (s *MFAService) Remove(ctx context.Context, identity, code string) error {
	op := domain.OpRemove
	now := s.now()

	if d := s.Limiter.CheckAllowed(identity, now); !d.Allowed {
		s.audit(ctx, identity, op, domain.ReasonRateLimited)
		return ErrRateLimited
	}

	rec, err := s.Store.Enrollments().GetEnrollment(ctx, identity)
	switch {
	case err == nil:
		// an undecryptable secret is as unusable as a corrupt row
		if _, derr := s.Cipher.Decrypt(rec.SecretCiphertext); derr == nil {
			if err := s.confirmCode(ctx, rec, op, code, now); err != nil {
				return err
			}
		}
	case errors.Is(err, store.ErrCorrupt):
	case errors.Is(err, store.ErrNotFound):
		s.audit(ctx, identity, op, domain.ReasonNotEnrolled)
		return ErrNotEnrolled
	default:
		s.audit(ctx, identity, op, domain.ReasonPersistenceUnavailable)
		return persistenceError(err)
	}

	if err := s.deleteEnrollment(ctx, identity); err != nil {
		s.audit(ctx, identity, op, domain.ReasonPersistenceUnavailable)
		return persistenceError(err)
	}

	s.Sessions.InvalidateAll(identity)
	slogx.FromContext(ctx).InfoContext(ctx, "mfa enrollment removed", "identity", identity)
	s.audit(ctx, identity, op, domain.ReasonOK)
	s.observer().SetActiveSessions(s.Sessions.Count())
	return nil
}

// confirmCode proves possession of rec's second factor before a lifecycle
// change. TOTP is tried first, then backup codes under the same rules as
// Verify. The limiter is updated once; failures are audited under op.
func (s *MFAService) confirmCode(ctx context.Context, rec domain.EnrollmentRecord, op domain.Operation, code string, now time.Time) error {
	identity := rec.Identity

	secret, err := s.Cipher.Decrypt(rec.SecretCiphertext)
	if err != nil {
		s.audit(ctx, identity, op, domain.ReasonConfigurationInvalid)
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	ok, err := s.Engine.Validate(string(secret), code, now)
	if err != nil {
		s.audit(ctx, identity, op, domain.ReasonConfigurationInvalid)
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if !ok && code != "" && (rec.Verified() || s.AllowBackupBeforeVerified) {
		if ok, err = s.BackupCodes.Consume(ctx, identity, code); err != nil {
			s.audit(ctx, identity, op, domain.ReasonPersistenceUnavailable)
			return persistenceError(err)
		}
	}
	if !ok {
		s.Limiter.RecordFailure(identity, now)
		s.audit(ctx, identity, op, domain.ReasonInvalidCode)
		return ErrVerificationFailed
	}

	s.Limiter.RecordSuccess(identity)
	return nil
}

// Status summarises identity's enrollment.
func (s *MFAService) Status(ctx context.Context, identity string) (domain.StatusInfo, error) {
	info := domain.StatusInfo{Identity: identity, Status: domain.StatusNotEnrolled}

	rec, err := s.Store.Enrollments().GetEnrollment(ctx, identity)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return info, nil
	case errors.Is(err, store.ErrCorrupt):
		return info, fmt.Errorf("%w: %v", ErrConfiguration, err)
	default:
		return info, persistenceError(err)
	}

	remaining, err := s.BackupCodes.Remaining(ctx, identity)
	if err != nil {
		return info, persistenceError(err)
	}

	info.Status = rec.Status()
	info.EnrolledAt = &rec.CreatedAt
	info.VerifiedAt = rec.VerifiedAt
	info.DisabledAt = rec.DisabledAt
	info.RemainingBackupCodes = remaining
	return info, nil
}

// RemainingBackupCodes returns how many unused backup codes identity holds.
func (s *MFAService) RemainingBackupCodes(ctx context.Context, identity string) (int, error) {
	n, err := s.BackupCodes.Remaining(ctx, identity)
	if err != nil {
		return 0, persistenceError(err)
	}
	return n, nil
}

// RegenerateBackupCodes replaces identity's backup codes after checking a
// TOTP code. Only active enrollments qualify and the attempt counts against
// the rate limiter like any verification.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, identity, code string) ([]string, error) {
	op := domain.OpRegenerateBackupCodes
	now := s.now()

	if d := s.Limiter.CheckAllowed(identity, now); !d.Allowed {
		s.audit(ctx, identity, op, domain.ReasonRateLimited)
		return nil, ErrRateLimited
	}

	rec, err := s.loadForUpdate(ctx, identity, op)
	if err != nil {
		return nil, err
	}
	switch rec.Status() {
	case domain.StatusDisabled:
		s.audit(ctx, identity, op, domain.ReasonTemporarilyDisabled)
		return nil, ErrTemporarilyDisabled
	case domain.StatusEnrolledUnverified:
		s.audit(ctx, identity, op, domain.ReasonNotEnrolled)
		return nil, ErrNotEnrolled
	}

	secret, err := s.Cipher.Decrypt(rec.SecretCiphertext)
	if err != nil {
		s.audit(ctx, identity, op, domain.ReasonConfigurationInvalid)
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	ok, err := s.Engine.Validate(string(secret), code, now)
	if err != nil {
		s.audit(ctx, identity, op, domain.ReasonConfigurationInvalid)
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if !ok {
		s.Limiter.RecordFailure(identity, now)
		s.audit(ctx, identity, op, domain.ReasonInvalidCode)
		return nil, ErrVerificationFailed
	}
	s.Limiter.RecordSuccess(identity)

	codes, err := GenerateBackupCodes(s.Rand, s.backupCodeCount())
	if err != nil {
		s.audit(ctx, identity, op, domain.ReasonConfigurationInvalid)
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return s.BackupCodes.Replace(ctx, tx, identity, codes, now)
	})
	if err != nil {
		s.audit(ctx, identity, op, domain.ReasonPersistenceUnavailable)
		return nil, persistenceError(err)
	}

	s.audit(ctx, identity, op, domain.ReasonOK)
	return codes, nil
}

// AuditTrail returns up to limit of identity's most recent audit events.
func (s *MFAService) AuditTrail(ctx context.Context, identity string, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	events, err := s.Store.AuditEvents().ListAuditEvents(ctx, identity, limit)
	if err != nil {
		return nil, persistenceError(err)
	}
	return events, nil
}

// loadForUpdate fetches identity's record for a lifecycle operation, auditing
// and mapping any failure to the service error taxonomy.
func (s *MFAService) loadForUpdate(ctx context.Context, identity string, op domain.Operation) (domain.EnrollmentRecord, error) {
	rec, err := s.Store.Enrollments().GetEnrollment(ctx, identity)
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, store.ErrNotFound):
		s.audit(ctx, identity, op, domain.ReasonNotEnrolled)
		return rec, ErrNotEnrolled
	case errors.Is(err, store.ErrCorrupt):
		s.audit(ctx, identity, op, domain.ReasonConfigurationInvalid)
		return rec, fmt.Errorf("%w: %v", ErrConfiguration, err)
	default:
		s.audit(ctx, identity, op, domain.ReasonPersistenceUnavailable)
		return rec, persistenceError(err)
	}
}

func (s *MFAService) deleteEnrollment(ctx context.Context, identity string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, identity); err != nil {
			return err
		}
		return tx.Enrollments().DeleteEnrollment(ctx, identity)
	})
}

// audit records a non-verify operation; ReasonOK means success.
func (s *MFAService) audit(ctx context.Context, identity string, op domain.Operation, reason domain.Reason) {
	outcome := domain.OutcomeFailure
	if reason == domain.ReasonOK {
		outcome = domain.OutcomeSuccess
	}
	s.record(ctx, domain.AuditEvent{
		Identity:  identity,
		Operation: op,
		Outcome:   outcome,
		Reason:    reason,
	})
}

func (s *MFAService) record(ctx context.Context, ev domain.AuditEvent) {
	ev.OccurredAt = s.now()
	if s.Audit != nil {
		s.Audit.Record(ctx, ev)
	}
	s.observer().ObserveOperation(ev.Operation, ev.Outcome, ev.Reason)
}

func (s *MFAService) observer() Observer {
	if s.Observer == nil {
		return nopObserver{}
	}
	return s.Observer
}

func (s *MFAService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *MFAService) backupCodeCount() int {
	if s.BackupCodeCount > 0 {
		return s.BackupCodeCount
	}
	return DefaultBackupCodeCount
}

func persistenceError(err error) error {
	return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
}
