package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mfahttp "github.com/aussiebroadwan/phimfa/internal/mfa/http"
	"github.com/aussiebroadwan/phimfa/internal/mfa/metrics"
	"github.com/aussiebroadwan/phimfa/internal/mfa/service"
	"github.com/aussiebroadwan/phimfa/internal/mfa/store/drivers/sqlite"
	"github.com/aussiebroadwan/phimfa/pkg/cryptox"
	"github.com/aussiebroadwan/phimfa/pkg/jwtx"
	"github.com/aussiebroadwan/phimfa/pkg/mfasdk"
	"github.com/aussiebroadwan/phimfa/pkg/otpx"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer = "https://idp.clinic.example"
	testSecret = "caller-token-secret-0123456789abcdef"
)

type testServer struct {
	srv     *httptest.Server
	client  *mfasdk.Client
	signer  *jwtx.HS256Signer
	engine  *otpx.Engine
	store   *sqlite.Store
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	cipher, err := cryptox.NewCipher([]byte("test-master-key-0123456789abcdef"))
	require.NoError(t, err)
	hasher, err := cryptox.NewBackupCodeHasher([]byte("test-pepper"))
	require.NoError(t, err)
	limiter, err := service.NewRateLimiter(service.DefaultMaxAttempts, service.DefaultCoolDown)
	require.NoError(t, err)
	sessions, err := service.NewSessionManager(service.DefaultStandardSessionDuration, service.DefaultElevatedSessionDuration, nil)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := otpx.New("PHI CRM")
	m := metrics.New()

	svc := &service.MFAService{
		Store:                     st,
		Engine:                    engine,
		Cipher:                    cipher,
		BackupCodes:               service.NewBackupCodeStore(st, hasher),
		Limiter:                   limiter,
		Sessions:                  sessions,
		Audit:                     service.NewAuditRecorder(service.StoreAuditSink{Store: st}, logger, nil, 0),
		Observer:                  m,
		AllowBackupBeforeVerified: true,
	}

	verifier, err := jwtx.NewVerifierHS256([]byte(testSecret), jwtx.VerifyOptions{Issuer: testIssuer})
	require.NoError(t, err)
	signer, err := jwtx.NewSignerHS256([]byte(testSecret))
	require.NoError(t, err)

	router := mfahttp.NewRouter(verifier, "test", st, svc, m, logger)
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{
		srv:     srv,
		client:  mfasdk.NewClient(srv.URL),
		signer:  signer,
		engine:  engine,
		store:   st,
		metrics: m,
	}
}

func (ts *testServer) as(t *testing.T, identity string, scopes ...string) *mfasdk.Caller {
	t.Helper()
	if scopes == nil {
		scopes = []string{mfahttp.ScopeMFA}
	}
	claims := jwtx.NewClaims(identity, testIssuer, nil, scopes, time.Hour, time.Now())
	token, err := ts.signer.Sign(claims)
	require.NoError(t, err)
	return ts.client.WithToken(token)
}

func (ts *testServer) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := ts.engine.Generate(secret, time.Now())
	require.NoError(t, err)
	return code
}

func requireAPIError(t *testing.T, err error, status int, code string) *mfasdk.APIError {
	t.Helper()
	var apiErr *mfasdk.APIError
	require.True(t, errors.As(err, &apiErr), "expected *APIError, got %v", err)
	require.Equal(t, status, apiErr.StatusCode)
	require.Equal(t, code, apiErr.Code)
	return apiErr
}

func TestSetupVerifyAndElevatedAccess(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	alice := ts.as(t, "alice")

	setup, err := alice.Setup(ctx, "alice@clinic.example")
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)
	require.Len(t, setup.BackupCodes, service.DefaultBackupCodeCount)
	require.Contains(t, setup.EnrollmentURI, "otpauth://totp/")

	status, err := alice.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, "enrolled_unverified", status.Status)

	res, err := alice.Verify(ctx, ts.code(t, setup.Secret), true)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "totp", res.Method)
	require.Equal(t, service.DefaultMaxAttempts, res.RemainingAttempts)
	require.True(t, res.Session.PHIAccessEnabled)

	granted, err := alice.CheckElevatedAccess(ctx, res.Session.Token)
	require.NoError(t, err)
	require.True(t, granted)

	current, err := alice.CurrentSession(ctx)
	require.NoError(t, err)
	require.Equal(t, res.Session.Token, current.Token)

	status, err = alice.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, "active", status.Status)

	_, err = alice.Setup(ctx, "")
	requireAPIError(t, err, http.StatusConflict, mfasdk.ErrorCodeAlreadyEnrolled)

	_, err = ts.as(t, "judy").Setup(ctx, "Other Issuer:judy")
	requireAPIError(t, err, http.StatusBadRequest, mfasdk.ErrorCodeInvalidRequest)
}

func TestVerifyFailuresCarryAttempts(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	bob := ts.as(t, "bob")

	_, err := bob.Verify(ctx, "123456", false)
	requireAPIError(t, err, http.StatusNotFound, mfasdk.ErrorCodeNotEnrolled)

	_, err = bob.Setup(ctx, "")
	require.NoError(t, err)

	for want := service.DefaultMaxAttempts - 1; want >= 0; want-- {
		_, err = bob.Verify(ctx, "not-a-code", false)
		apiErr := requireAPIError(t, err, http.StatusUnauthorized, mfasdk.ErrorCodeInvalidCode)
		require.NotNil(t, apiErr.RemainingAttempts)
		require.Equal(t, want, *apiErr.RemainingAttempts)
	}

	_, err = bob.Verify(ctx, "not-a-code", false)
	apiErr := requireAPIError(t, err, http.StatusTooManyRequests, mfasdk.ErrorCodeRateLimited)
	require.Positive(t, apiErr.RetryAfterSeconds)
	require.LessOrEqual(t, apiErr.RetryAfter(), service.DefaultCoolDown)
}

func TestDisableEnableRemove(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	carol := ts.as(t, "carol")

	enabled, err := carol.Enable(ctx)
	require.NoError(t, err)
	require.False(t, enabled)

	setup, err := carol.Setup(ctx, "")
	require.NoError(t, err)
	res, err := carol.Verify(ctx, ts.code(t, setup.Secret), false)
	require.NoError(t, err)

	require.NoError(t, carol.Disable(ctx, ts.code(t, setup.Secret)))

	_, err = carol.CurrentSession(ctx)
	requireAPIError(t, err, http.StatusNotFound, mfasdk.ErrorCodeSessionNotFound)

	granted, err := carol.CheckElevatedAccess(ctx, res.Session.Token)
	require.NoError(t, err)
	require.False(t, granted)

	_, err = carol.Verify(ctx, ts.code(t, setup.Secret), false)
	requireAPIError(t, err, http.StatusForbidden, mfasdk.ErrorCodeTemporarilyDisabled)

	enabled, err = carol.Enable(ctx)
	require.NoError(t, err)
	require.True(t, enabled)

	require.NoError(t, carol.Remove(ctx, ts.code(t, setup.Secret)))
	err = carol.Remove(ctx, ts.code(t, setup.Secret))
	requireAPIError(t, err, http.StatusNotFound, mfasdk.ErrorCodeNotEnrolled)

	status, err := carol.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, "not_enrolled", status.Status)
}

func TestLifecycleChangesNeedACode(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	olive := ts.as(t, "olive")

	setup, err := olive.Setup(ctx, "")
	require.NoError(t, err)
	_, err = olive.Verify(ctx, ts.code(t, setup.Secret), false)
	require.NoError(t, err)

	err = olive.Remove(ctx, "")
	requireAPIError(t, err, http.StatusUnauthorized, mfasdk.ErrorCodeInvalidCode)
	err = olive.Disable(ctx, "not-a-code")
	requireAPIError(t, err, http.StatusUnauthorized, mfasdk.ErrorCodeInvalidCode)

	// the two refusals above share the verify attempt budget
	_, err = olive.Verify(ctx, "not-a-code", false)
	apiErr := requireAPIError(t, err, http.StatusUnauthorized, mfasdk.ErrorCodeInvalidCode)
	require.NotNil(t, apiErr.RemainingAttempts)
	require.Zero(t, *apiErr.RemainingAttempts)

	err = olive.Remove(ctx, ts.code(t, setup.Secret))
	requireAPIError(t, err, http.StatusTooManyRequests, mfasdk.ErrorCodeRateLimited)

	status, err := olive.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, "active", status.Status)

	// malformed bodies are rejected before the service sees them
	req, err := http.NewRequest(http.MethodDelete, ts.srv.URL+"/v1/mfa", strings.NewReader("{"))
	require.NoError(t, err)
	claims := jwtx.NewClaims("olive", testIssuer, nil, []string{mfahttp.ScopeMFA}, time.Hour, time.Now())
	token, err := ts.signer.Sign(claims)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBackupCodes(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	dave := ts.as(t, "dave")

	setup, err := dave.Setup(ctx, "")
	require.NoError(t, err)

	res, err := dave.Verify(ctx, setup.BackupCodes[0], false)
	require.NoError(t, err)
	require.Equal(t, "backup_code", res.Method)

	n, err := dave.RemainingBackupCodes(ctx)
	require.NoError(t, err)
	require.Equal(t, service.DefaultBackupCodeCount-1, n)

	// unverified enrollments cannot regenerate
	_, err = dave.RegenerateBackupCodes(ctx, ts.code(t, setup.Secret))
	requireAPIError(t, err, http.StatusNotFound, mfasdk.ErrorCodeNotEnrolled)

	_, err = dave.Verify(ctx, ts.code(t, setup.Secret), false)
	require.NoError(t, err)

	codes, err := dave.RegenerateBackupCodes(ctx, ts.code(t, setup.Secret))
	require.NoError(t, err)
	require.Len(t, codes, service.DefaultBackupCodeCount)

	n, err = dave.RemainingBackupCodes(ctx)
	require.NoError(t, err)
	require.Equal(t, service.DefaultBackupCodeCount, n)
}

func TestSessionsAreScopedToTheirOwner(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	erin := ts.as(t, "erin")
	mallory := ts.as(t, "mallory")

	setup, err := erin.Setup(ctx, "")
	require.NoError(t, err)
	res, err := erin.Verify(ctx, ts.code(t, setup.Secret), true)
	require.NoError(t, err)
	token := res.Session.Token

	granted, err := mallory.CheckElevatedAccess(ctx, token)
	require.NoError(t, err)
	require.False(t, granted)

	err = mallory.EndSession(ctx, token)
	requireAPIError(t, err, http.StatusNotFound, mfasdk.ErrorCodeSessionNotFound)

	events, err := mallory.AuditEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "session_invalidate", events[0].Operation)
	require.Equal(t, "verify_elevated_access", events[1].Operation)
	for _, ev := range events {
		require.Equal(t, "mallory", ev.Identity)
		require.Equal(t, "failure", ev.Outcome)
		require.Equal(t, "session_not_found", ev.Reason)
		require.NotEmpty(t, ev.SessionRef)
		require.NotContains(t, ev.SessionRef, token)
	}

	granted, err = erin.CheckElevatedAccess(ctx, token)
	require.NoError(t, err)
	require.True(t, granted)

	require.NoError(t, erin.EndSession(ctx, token))
	err = erin.EndSession(ctx, token)
	requireAPIError(t, err, http.StatusNotFound, mfasdk.ErrorCodeSessionNotFound)
}

func TestAuditTrail(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	frank := ts.as(t, "frank")

	setup, err := frank.Setup(ctx, "")
	require.NoError(t, err)
	_, err = frank.Verify(ctx, ts.code(t, setup.Secret), false)
	require.NoError(t, err)

	events, err := frank.AuditEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "verify", events[0].Operation)
	require.Equal(t, "setup", events[1].Operation)
	for _, ev := range events {
		require.Equal(t, "frank", ev.Identity)
	}

	_, err = frank.AuditEvents(ctx, 10000)
	requireAPIError(t, err, http.StatusBadRequest, mfasdk.ErrorCodeInvalidRequest)
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	_, err := ts.client.WithToken("garbage").Status(ctx)
	requireAPIError(t, err, http.StatusUnauthorized, mfasdk.ErrorCodeInvalidToken)

	_, err = ts.as(t, "grace", "profile:read").Status(ctx)
	requireAPIError(t, err, http.StatusForbidden, mfasdk.ErrorCodeInsufficientScope)
}

func TestMissingSessionHeader(t *testing.T) {
	ts := newTestServer(t)

	claims := jwtx.NewClaims("heidi", testIssuer, nil, []string{mfahttp.ScopeMFA}, time.Hour, time.Now())
	token, err := ts.signer.Sign(claims)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/v1/mfa/session/elevated", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	live, err := ts.client.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := ts.client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.Equal(t, "ok", ready.Checks.Database)

	_, err = ts.as(t, "ivan").Status(ctx)
	require.NoError(t, err)

	resp, err := http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Contains(t, string(body), `route="GET /v1/mfa/status"`)
	require.Contains(t, string(body), "mfa_active_sessions")
}

func TestSwaggerDocument(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/swagger/doc.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
		Paths map[string]map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.Equal(t, "PHI MFA Service API", doc.Info.Title)
	require.Contains(t, doc.Paths, "/v1/mfa/verify")
	require.Contains(t, doc.Paths["/v1/mfa"], "delete")
	require.Contains(t, doc.Paths["/v1/mfa/session"], "get")
}

func TestReadyzDegradesWhenDatabaseCloses(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.Close())

	_, err := ts.client.GetReadiness(context.Background())
	var apiErr *mfasdk.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}
