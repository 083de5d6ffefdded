package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/phimfa/internal/mfa/domain"
	"github.com/aussiebroadwan/phimfa/internal/mfa/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveOperation(t *testing.T) {
	m := metrics.New()

	m.ObserveOperation(domain.OpVerify, domain.OutcomeFailure, domain.ReasonInvalidCode)
	m.ObserveOperation(domain.OpVerify, domain.OutcomeFailure, domain.ReasonInvalidCode)
	m.ObserveOperation(domain.OpVerify, domain.OutcomeSuccess, domain.ReasonOK)
	m.SetActiveSessions(4)

	expected := `
# HELP mfa_operations_total Total number of MFA operations by outcome and reason
# TYPE mfa_operations_total counter
mfa_operations_total{operation="verify",outcome="failure",reason="invalid_code"} 2
mfa_operations_total{operation="verify",outcome="success",reason="ok"} 1
# HELP mfa_active_sessions Number of sessions currently held in memory
# TYPE mfa_active_sessions gauge
mfa_active_sessions 4
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"mfa_operations_total", "mfa_active_sessions"))
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := metrics.New()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := m.Middleware(mux)

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/things/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	require.Contains(t, string(body), `mfa_http_requests_total{method="GET",route="GET /v1/things/{id}",status="418"} 3`)
	require.Contains(t, string(body), "go_goroutines")
}
