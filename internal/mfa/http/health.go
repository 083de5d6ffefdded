package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/phimfa/internal/mfa/service"
	"github.com/aussiebroadwan/phimfa/internal/mfa/store"
	"github.com/aussiebroadwan/phimfa/pkg/httpx"
	"github.com/aussiebroadwan/phimfa/pkg/mfasdk"
)

// LivezHandler always answers 200 while the process is running.
//
//	@Summary		Liveness check
//	@Description	Answers 200 while the process is running.
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	mfasdk.HealthResponse	"Service is alive"
//	@Failure		429	{object}	mfasdk.ErrorResponse	"Too many requests"
//	@Router			/livez [get]
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, mfasdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler reports database connectivity and whether audit delivery
// has escalated. Either failing answers 503.
//
//	@Summary		Readiness check
//	@Description	Checks database connectivity and audit delivery.
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	mfasdk.HealthResponse	"Service is ready"
//	@Failure		503	{object}	mfasdk.HealthResponse	"A dependency is failing"
//	@Router			/readyz [get]
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	audit *service.AuditRecorder,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &mfasdk.HealthChecks{
			Database: "ok",
			Audit:    "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if audit != nil && !audit.Healthy() {
			checks.Audit = "error: audit sink failing"
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, statusCode, mfasdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
