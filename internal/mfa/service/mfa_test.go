package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/phimfa/internal/mfa/domain"
	"github.com/aussiebroadwan/phimfa/internal/mfa/store"
	"github.com/aussiebroadwan/phimfa/internal/mfa/store/drivers/sqlite"
	"github.com/aussiebroadwan/phimfa/pkg/cryptox"
	"github.com/aussiebroadwan/phimfa/pkg/otpx"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingEngine records how often codes are validated.
type countingEngine struct {
	*otpx.Engine
	validations atomic.Int32
}

func (e *countingEngine) Validate(secret, code string, at time.Time) (bool, error) {
	e.validations.Add(1)
	return e.Engine.Validate(secret, code, at)
}

// failingStore breaks enrollment reads while leaving everything else intact.
type failingStore struct {
	store.Store
	err error
}

func (f failingStore) Enrollments() store.Enrollments { return failingEnrollments{f.err} }

type failingEnrollments struct{ err error }

func (f failingEnrollments) GetEnrollment(context.Context, string) (domain.EnrollmentRecord, error) {
	return domain.EnrollmentRecord{}, f.err
}
func (f failingEnrollments) SaveEnrollment(context.Context, domain.EnrollmentRecord) error {
	return f.err
}
func (f failingEnrollments) MarkVerified(context.Context, string, []byte, time.Time) (bool, error) {
	return false, f.err
}
func (f failingEnrollments) SetDisabledAt(context.Context, string, *time.Time, time.Time) (bool, error) {
	return false, f.err
}
func (f failingEnrollments) DeleteEnrollment(context.Context, string) error { return f.err }

type fixture struct {
	svc    *MFAService
	store  *sqlite.Store
	clock  *fakeClock
	engine *countingEngine
	logs   *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	cipher, err := cryptox.NewCipher([]byte("test-master-key-0123456789abcdef"))
	require.NoError(t, err)
	hasher, err := cryptox.NewBackupCodeHasher([]byte("test-pepper"))
	require.NoError(t, err)
	limiter, err := NewRateLimiter(DefaultMaxAttempts, DefaultCoolDown)
	require.NoError(t, err)
	sessions, err := NewSessionManager(DefaultStandardSessionDuration, DefaultElevatedSessionDuration, nil)
	require.NoError(t, err)

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	clock := &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	engine := &countingEngine{Engine: otpx.New("PHI CRM")}

	svc := &MFAService{
		Store:                     st,
		Engine:                    engine,
		Cipher:                    cipher,
		BackupCodes:               NewBackupCodeStore(st, hasher),
		Limiter:                   limiter,
		Sessions:                  sessions,
		Audit:                     NewAuditRecorder(MultiAuditSink{LogAuditSink{Logger: logger}, StoreAuditSink{Store: st}}, logger, nil, 0),
		Now:                       clock.Now,
		AllowBackupBeforeVerified: true,
	}
	return &fixture{svc: svc, store: st, clock: clock, engine: engine, logs: logs}
}

func (f *fixture) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := f.engine.Generate(secret, f.clock.Now())
	require.NoError(t, err)
	return code
}

// wrongCode returns a six digit code that matches no step in the window.
func (f *fixture) wrongCode(t *testing.T, secret string) string {
	t.Helper()
	valid := map[string]bool{}
	for k := -2; k <= 2; k++ {
		c, err := f.engine.Generate(secret, f.clock.Now().Add(time.Duration(k)*30*time.Second))
		require.NoError(t, err)
		valid[c] = true
	}
	for _, c := range []string{"000000", "111111", "222222", "333333", "444444", "555555"} {
		if !valid[c] {
			return c
		}
	}
	t.Fatal("no wrong code available")
	return ""
}

func (f *fixture) enroll(t *testing.T, identity string) domain.SetupResult {
	t.Helper()
	res, err := f.svc.Setup(context.Background(), identity, identity+"@clinic.example")
	require.NoError(t, err)
	return res
}

func (f *fixture) activate(t *testing.T, identity string) domain.SetupResult {
	t.Helper()
	res := f.enroll(t, identity)
	v := f.svc.Verify(context.Background(), identity, f.code(t, res.Secret), false)
	require.True(t, v.Success)
	return res
}

func TestSetupThenVerifyIssuesStandardSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.enroll(t, "u1")
	require.NotEmpty(t, res.Secret)
	require.Len(t, res.BackupCodes, 10)
	require.True(t, strings.HasPrefix(res.EnrollmentURI, "otpauth://totp/PHI%20CRM:u1@clinic.example?"), res.EnrollmentURI)

	info, err := f.svc.Status(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusEnrolledUnverified, info.Status)
	require.Equal(t, 10, info.RemainingBackupCodes)

	v := f.svc.Verify(ctx, "u1", f.code(t, res.Secret), false)
	require.True(t, v.Success)
	require.Equal(t, domain.ReasonOK, v.Reason)
	require.Equal(t, domain.MethodTOTP, v.Method)
	require.NoError(t, v.Err)
	require.NotNil(t, v.Session)
	require.False(t, v.Session.PHIAccessEnabled)
	require.Equal(t, 15*time.Minute, v.Session.ExpiresAt.Sub(f.clock.Now()))

	info, err = f.svc.Status(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, info.Status)
	require.NotNil(t, info.VerifiedAt)

	current, ok := f.svc.CurrentSession("u1")
	require.True(t, ok)
	require.Equal(t, v.Session.Token, current.Token)
}

func TestVerifyElevatedSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.activate(t, "u1")

	v := f.svc.Verify(ctx, "u1", f.code(t, res.Secret), true)
	require.True(t, v.Success)
	require.True(t, v.Session.PHIAccessEnabled)
	require.Equal(t, 5*time.Minute, v.Session.ExpiresAt.Sub(f.clock.Now()))

	require.True(t, f.svc.VerifyElevatedAccess(ctx, v.Session.Token))

	std, ok := f.svc.CurrentSession("u1")
	require.True(t, ok)
	require.Equal(t, v.Session.Token, std.Token, "newest session is current")

	require.False(t, f.svc.VerifyElevatedAccess(ctx, "not-a-token"))

	f.clock.Advance(5*time.Minute + time.Second)
	require.False(t, f.svc.VerifyElevatedAccess(ctx, v.Session.Token))
}

func TestVerifyStandardSessionIsNotElevated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.enroll(t, "u1")

	v := f.svc.Verify(ctx, "u1", f.code(t, res.Secret), false)
	require.True(t, v.Success)
	require.False(t, f.svc.VerifyElevatedAccess(ctx, v.Session.Token))
}

func TestVerifyRateLimiting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.activate(t, "u1")
	wrong := f.wrongCode(t, res.Secret)

	for _, want := range []int{2, 1, 0} {
		v := f.svc.Verify(ctx, "u1", wrong, false)
		require.False(t, v.Success)
		require.Equal(t, domain.ReasonInvalidCode, v.Reason)
		require.ErrorIs(t, v.Err, ErrVerificationFailed)
		require.Equal(t, want, v.RemainingAttempts)
	}

	before := f.engine.validations.Load()
	v := f.svc.Verify(ctx, "u1", f.code(t, res.Secret), false)
	require.False(t, v.Success, "blocked even with a valid code")
	require.Equal(t, domain.ReasonRateLimited, v.Reason)
	require.ErrorIs(t, v.Err, ErrRateLimited)
	require.Zero(t, v.RemainingAttempts)
	require.Equal(t, DefaultCoolDown, v.RetryAfter)
	require.Equal(t, before, f.engine.validations.Load(), "no OTP computation while blocked")

	f.clock.Advance(DefaultCoolDown + time.Second)
	wrong = f.wrongCode(t, res.Secret)
	v = f.svc.Verify(ctx, "u1", wrong, false)
	require.Equal(t, domain.ReasonInvalidCode, v.Reason)
	require.Equal(t, 2, v.RemainingAttempts, "full budget after cool-down")

	v = f.svc.Verify(ctx, "u1", f.code(t, res.Secret), false)
	require.True(t, v.Success)
	require.Equal(t, DefaultMaxAttempts, v.RemainingAttempts)
}

func TestVerifyDisabledDoesNotTouchLimiter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.activate(t, "u1")
	_, ok := f.svc.CurrentSession("u1")
	require.True(t, ok)

	require.NoError(t, f.svc.Disable(ctx, "u1", f.code(t, res.Secret)))
	_, ok = f.svc.CurrentSession("u1")
	require.False(t, ok, "disable ends every session")

	info, err := f.svc.Status(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusDisabled, info.Status)
	require.Equal(t, 10, info.RemainingBackupCodes, "backup codes are retained")

	v := f.svc.Verify(ctx, "u1", f.code(t, res.Secret), false)
	require.False(t, v.Success)
	require.Equal(t, domain.ReasonTemporarilyDisabled, v.Reason)
	require.ErrorIs(t, v.Err, ErrTemporarilyDisabled)
	require.Zero(t, f.svc.Limiter.Len())

	enabled, err := f.svc.Enable(ctx, "u1")
	require.NoError(t, err)
	require.True(t, enabled)

	v = f.svc.Verify(ctx, "u1", f.code(t, res.Secret), false)
	require.True(t, v.Success)
}

func TestEnableUnknownIdentity(t *testing.T) {
	f := newFixture(t)

	enabled, err := f.svc.Enable(context.Background(), "ghost")
	require.NoError(t, err)
	require.False(t, enabled)

	require.ErrorIs(t, f.svc.Disable(context.Background(), "ghost", "123456"), ErrNotEnrolled)
	require.Zero(t, f.svc.Limiter.Len())
}

func TestVerifyNotEnrolled(t *testing.T) {
	f := newFixture(t)

	v := f.svc.Verify(context.Background(), "ghost", "123456", false)
	require.False(t, v.Success)
	require.Equal(t, domain.ReasonNotEnrolled, v.Reason)
	require.ErrorIs(t, v.Err, ErrNotEnrolled)
	require.Zero(t, f.svc.Limiter.Len())
}

func TestVerifyWithBackupCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.activate(t, "u1")
	backup := res.BackupCodes[3]

	v := f.svc.Verify(ctx, "u1", strings.ToLower(backup), false)
	require.True(t, v.Success)
	require.Equal(t, domain.MethodBackupCode, v.Method)
	require.NotNil(t, v.Session)

	n, err := f.svc.RemainingBackupCodes(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 9, n)

	v = f.svc.Verify(ctx, "u1", backup, false)
	require.False(t, v.Success)
	require.Equal(t, domain.ReasonInvalidCode, v.Reason)
	require.Equal(t, 2, v.RemainingAttempts)
}

func TestVerifyBackupCodeBeforeTOTPConfirmation(t *testing.T) {
	ctx := context.Background()

	t.Run("allowed", func(t *testing.T) {
		f := newFixture(t)
		res := f.enroll(t, "u1")

		v := f.svc.Verify(ctx, "u1", res.BackupCodes[0], false)
		require.True(t, v.Success)

		info, err := f.svc.Status(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, domain.StatusEnrolledUnverified, info.Status)
	})

	t.Run("refused", func(t *testing.T) {
		f := newFixture(t)
		f.svc.AllowBackupBeforeVerified = false
		res := f.enroll(t, "u1")

		v := f.svc.Verify(ctx, "u1", res.BackupCodes[0], false)
		require.False(t, v.Success)
		require.Equal(t, domain.ReasonInvalidCode, v.Reason)

		n, err := f.svc.RemainingBackupCodes(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, 10, n, "nothing consumed")
	})
}

func TestVerifyCorruptSecretClearsEnrollment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enroll(t, "u1")

	rec, err := f.store.Enrollments().GetEnrollment(ctx, "u1")
	require.NoError(t, err)
	rec.SecretCiphertext = []byte("definitely-not-a-valid-gcm-ciphertext")
	require.NoError(t, f.store.Enrollments().SaveEnrollment(ctx, rec))

	v := f.svc.Verify(ctx, "u1", "123456", false)
	require.False(t, v.Success)
	require.Equal(t, domain.ReasonConfigurationInvalid, v.Reason)
	require.ErrorIs(t, v.Err, ErrConfiguration)
	require.Zero(t, f.svc.Limiter.Len())

	info, err := f.svc.Status(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusNotEnrolled, info.Status)

	n, err := f.svc.RemainingBackupCodes(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, n)

	f.enroll(t, "u1")
}

func TestVerifyPersistenceUnavailable(t *testing.T) {
	f := newFixture(t)
	f.svc.Store = failingStore{Store: f.store, err: errors.New("connection reset")}

	v := f.svc.Verify(context.Background(), "u1", "123456", false)
	require.False(t, v.Success)
	require.Equal(t, domain.ReasonPersistenceUnavailable, v.Reason)
	require.ErrorIs(t, v.Err, ErrPersistenceUnavailable)
	require.NotErrorIs(t, v.Err, ErrNotEnrolled)

	_, err := f.svc.Status(context.Background(), "u1")
	require.ErrorIs(t, err, ErrPersistenceUnavailable)
}

func TestSetupLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.enroll(t, "u1")
	second := f.enroll(t, "u1")
	require.NotEqual(t, first.Secret, second.Secret, "re-setup before verification replaces the secret")

	v := f.svc.Verify(ctx, "u1", first.BackupCodes[0], false)
	require.False(t, v.Success, "old backup codes are gone")

	v = f.svc.Verify(ctx, "u1", f.code(t, second.Secret), false)
	require.True(t, v.Success)

	_, err := f.svc.Setup(ctx, "u1", "")
	require.ErrorIs(t, err, ErrAlreadyEnrolled)

	require.NoError(t, f.svc.Remove(ctx, "u1", f.code(t, second.Secret)))
	_, ok := f.svc.CurrentSession("u1")
	require.False(t, ok)

	info, err := f.svc.Status(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusNotEnrolled, info.Status)
	require.ErrorIs(t, f.svc.Remove(ctx, "u1", f.code(t, second.Secret)), ErrNotEnrolled)

	f.enroll(t, "u1")

	_, err = f.svc.Setup(ctx, "", "")
	require.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestSetupRejectsUnparseableLabel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Setup(ctx, "u1", "Other Issuer:u1")
	require.ErrorIs(t, err, ErrInvalidLabel)
	_, err = f.svc.Setup(ctx, "u1", strings.Repeat("a", otpx.MaxLabelLength+1))
	require.ErrorIs(t, err, ErrInvalidLabel)

	_, err = f.store.Enrollments().GetEnrollment(ctx, "u1")
	require.ErrorIs(t, err, store.ErrNotFound)

	res := f.enroll(t, "u1")
	require.NotEmpty(t, res.EnrollmentURI)
}

func TestRemoveRequiresSecondFactor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.activate(t, "u1")
	wrong := f.wrongCode(t, res.Secret)

	require.ErrorIs(t, f.svc.Remove(ctx, "u1", ""), ErrVerificationFailed)
	require.ErrorIs(t, f.svc.Remove(ctx, "u1", wrong), ErrVerificationFailed)
	require.Equal(t, 1, f.svc.Limiter.CheckAllowed("u1", f.clock.Now()).Remaining, "failed removals count")

	require.ErrorIs(t, f.svc.Remove(ctx, "u1", wrong), ErrVerificationFailed)
	require.ErrorIs(t, f.svc.Remove(ctx, "u1", f.code(t, res.Secret)), ErrRateLimited, "a lockout is not lifted by removal")

	info, err := f.svc.Status(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, info.Status)

	_, err = f.svc.Setup(ctx, "u1", "")
	require.ErrorIs(t, err, ErrAlreadyEnrolled)

	events, err := f.svc.AuditTrail(ctx, "u1", 2)
	require.NoError(t, err)
	require.Equal(t, domain.OpRemove, events[1].Operation)
	require.Equal(t, domain.ReasonRateLimited, events[1].Reason)

	f.clock.Advance(DefaultCoolDown + time.Second)
	require.NoError(t, f.svc.Remove(ctx, "u1", res.BackupCodes[0]), "a backup code also proves possession")

	info, err = f.svc.Status(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusNotEnrolled, info.Status)
}

func TestDisableRequiresSecondFactor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.activate(t, "u1")

	require.ErrorIs(t, f.svc.Disable(ctx, "u1", f.wrongCode(t, res.Secret)), ErrVerificationFailed)
	require.Equal(t, 2, f.svc.Limiter.CheckAllowed("u1", f.clock.Now()).Remaining)

	_, ok := f.svc.CurrentSession("u1")
	require.True(t, ok, "sessions survive a refused disable")

	info, err := f.svc.Status(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, info.Status)

	require.NoError(t, f.svc.Disable(ctx, "u1", f.code(t, res.Secret)))
	require.Zero(t, f.svc.Limiter.Len())
}

func TestRemoveUnrecoverableSecretNeedsNoCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enroll(t, "u1")

	rec, err := f.store.Enrollments().GetEnrollment(ctx, "u1")
	require.NoError(t, err)
	rec.SecretCiphertext = []byte("definitely-not-a-valid-gcm-ciphertext")
	require.NoError(t, f.store.Enrollments().SaveEnrollment(ctx, rec))

	require.NoError(t, f.svc.Remove(ctx, "u1", ""))
	require.Zero(t, f.svc.Limiter.Len())
}

// staleStore serves a fixed enrollment snapshot, as a read taken just
// before a concurrent setup would.
type staleStore struct {
	store.Store
	rec domain.EnrollmentRecord
}

func (s staleStore) Enrollments() store.Enrollments {
	return staleEnrollments{Enrollments: s.Store.Enrollments(), rec: s.rec}
}

type staleEnrollments struct {
	store.Enrollments
	rec domain.EnrollmentRecord
}

func (s staleEnrollments) GetEnrollment(context.Context, string) (domain.EnrollmentRecord, error) {
	return s.rec, nil
}

func TestVerifyNeverConfirmsReplacedSecret(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.enroll(t, "u1")
	stale, err := f.store.Enrollments().GetEnrollment(ctx, "u1")
	require.NoError(t, err)
	second := f.enroll(t, "u1")

	f.svc.Store = staleStore{Store: f.store, rec: stale}
	v := f.svc.Verify(ctx, "u1", f.code(t, first.Secret), false)
	require.False(t, v.Success)
	require.Equal(t, domain.ReasonInvalidCode, v.Reason)

	f.svc.Store = f.store
	current, err := f.store.Enrollments().GetEnrollment(ctx, "u1")
	require.NoError(t, err)
	require.False(t, current.Verified())
	require.NotEqual(t, stale.SecretCiphertext, current.SecretCiphertext)

	v = f.svc.Verify(ctx, "u1", f.code(t, second.Secret), false)
	require.True(t, v.Success)
}

func TestSetupWithQRCode(t *testing.T) {
	f := newFixture(t)
	f.svc.QRCodeSize = 128

	res := f.enroll(t, "u1")
	require.True(t, bytes.HasPrefix(res.QRCodePNG, []byte("\x89PNG")))
}

func TestRegenerateBackupCodes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	pending := f.enroll(t, "u1")
	_, err := f.svc.RegenerateBackupCodes(ctx, "u1", f.code(t, pending.Secret))
	require.ErrorIs(t, err, ErrNotEnrolled, "only active enrollments qualify")

	res := f.activate(t, "u2")

	_, err = f.svc.RegenerateBackupCodes(ctx, "u2", f.wrongCode(t, res.Secret))
	require.ErrorIs(t, err, ErrVerificationFailed)
	require.Equal(t, 2, f.svc.Limiter.CheckAllowed("u2", f.clock.Now()).Remaining)

	codes, err := f.svc.RegenerateBackupCodes(ctx, "u2", f.code(t, res.Secret))
	require.NoError(t, err)
	require.Len(t, codes, 10)

	v := f.svc.Verify(ctx, "u2", res.BackupCodes[0], false)
	require.False(t, v.Success)
	v = f.svc.Verify(ctx, "u2", codes[0], false)
	require.True(t, v.Success)
}

func TestInvalidateSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.enroll(t, "u1")

	v := f.svc.Verify(ctx, "u1", f.code(t, res.Secret), true)
	require.True(t, v.Success)

	require.True(t, f.svc.InvalidateSession(ctx, v.Session.Token))
	require.False(t, f.svc.InvalidateSession(ctx, v.Session.Token))
	require.False(t, f.svc.VerifyElevatedAccess(ctx, v.Session.Token))
}

func TestForeignSessionIsAuditedAgainstCaller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.enroll(t, "u1")

	v := f.svc.Verify(ctx, "u1", f.code(t, res.Secret), true)
	require.True(t, v.Success)

	require.False(t, f.svc.ForeignSession(ctx, "u1", v.Session.Token, domain.OpVerifyElevated))
	require.False(t, f.svc.ForeignSession(ctx, "u2", "not-a-token", domain.OpVerifyElevated))
	require.True(t, f.svc.ForeignSession(ctx, "u2", v.Session.Token, domain.OpSessionInvalidate))

	events, err := f.svc.AuditTrail(ctx, "u2", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.OpSessionInvalidate, events[0].Operation)
	require.Equal(t, domain.OutcomeFailure, events[0].Outcome)
	require.Equal(t, domain.ReasonSessionNotFound, events[0].Reason)
	require.Equal(t, cryptox.FingerprintToken(v.Session.Token), events[0].SessionRef)

	require.True(t, f.svc.VerifyElevatedAccess(ctx, v.Session.Token), "owner's session survives")
}

func TestAuditTrailNeverCarriesSecrets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.enroll(t, "u1")
	code := f.code(t, res.Secret)
	v := f.svc.Verify(ctx, "u1", code, false)
	require.True(t, v.Success)
	f.svc.Verify(ctx, "u1", res.BackupCodes[0], false)
	require.NoError(t, f.svc.Disable(ctx, "u1", f.code(t, res.Secret)))

	events, err := f.svc.AuditTrail(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 4)
	require.Equal(t, domain.OpDisable, events[0].Operation)
	require.Equal(t, domain.OpSetup, events[3].Operation)
	require.Equal(t, domain.MethodTOTP, events[2].Method)
	require.Equal(t, cryptox.FingerprintToken(v.Session.Token), events[2].SessionRef)

	logs := f.logs.String()
	require.NotContains(t, logs, res.Secret)
	require.NotContains(t, logs, v.Session.Token)
	for _, bc := range res.BackupCodes {
		require.NotContains(t, logs, bc)
	}
	require.Contains(t, logs, `"operation":"setup"`)
}

func TestAuditFailureNeverFailsOperation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var fallback bytes.Buffer
	f.svc.Audit = NewAuditRecorder(failingSink{}, slog.New(slog.NewJSONHandler(&fallback, nil)), nil, 3)

	res := f.enroll(t, "u1")
	v := f.svc.Verify(ctx, "u1", f.code(t, res.Secret), false)
	require.True(t, v.Success)
	require.NoError(t, f.svc.Disable(ctx, "u1", f.code(t, res.Secret)))

	require.Equal(t, 3, f.svc.Audit.ConsecutiveFailures())
	require.Equal(t, 3, strings.Count(fallback.String(), "audit sink failed"))
	require.Equal(t, 1, strings.Count(fallback.String(), `"operation":"audit_sink"`))
	require.Contains(t, fallback.String(), `"reason":"configuration_invalid"`)
}

type failingSink struct{}

func (failingSink) Record(context.Context, domain.AuditEvent) error {
	return errors.New("sink offline")
}

func TestAuditRecorderResetsAfterSuccess(t *testing.T) {
	var fallback bytes.Buffer
	sink := &flakySink{}
	r := NewAuditRecorder(sink, slog.New(slog.NewJSONHandler(&fallback, nil)), nil, 2)
	ev := domain.AuditEvent{Identity: "u1", Operation: domain.OpSetup, Outcome: domain.OutcomeSuccess, Reason: domain.ReasonOK}

	sink.fail = true
	r.Record(context.Background(), ev)
	require.Equal(t, 1, r.ConsecutiveFailures())

	sink.fail = false
	r.Record(context.Background(), ev)
	require.Zero(t, r.ConsecutiveFailures())
	require.NotEmpty(t, sink.last.ID, "recorder stamps an id")

	sink.fail = true
	r.Record(context.Background(), ev)
	require.NotContains(t, fallback.String(), `"operation":"audit_sink"`)
}

type flakySink struct {
	fail bool
	last domain.AuditEvent
}

func (s *flakySink) Record(_ context.Context, ev domain.AuditEvent) error {
	s.last = ev
	if s.fail {
		return errors.New("flaky")
	}
	return nil
}

type countingObserver struct {
	mu       sync.Mutex
	ops      map[domain.Operation]int
	sessions int
}

func (o *countingObserver) ObserveOperation(op domain.Operation, _ domain.Outcome, _ domain.Reason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ops == nil {
		o.ops = map[domain.Operation]int{}
	}
	o.ops[op]++
}

func (o *countingObserver) SetActiveSessions(n int) {
	o.mu.Lock()
	o.sessions = n
	o.mu.Unlock()
}

func TestObserverSeesEveryOperation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	obs := &countingObserver{}
	f.svc.Observer = obs

	res := f.enroll(t, "u1")
	f.svc.Verify(ctx, "u1", f.code(t, res.Secret), false)
	require.NoError(t, f.svc.Disable(ctx, "u1", f.code(t, res.Secret)))

	require.Equal(t, 1, obs.ops[domain.OpSetup])
	require.Equal(t, 1, obs.ops[domain.OpVerify])
	require.Equal(t, 1, obs.ops[domain.OpDisable])
	require.Zero(t, obs.sessions)
}
