package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/phimfa/internal/mfa/domain"
	"github.com/aussiebroadwan/phimfa/internal/mfa/service"
	"github.com/aussiebroadwan/phimfa/pkg/mfasdk"
	"github.com/aussiebroadwan/phimfa/pkg/slogx"
)

// apiError maps a service sentinel onto its wire error.
func apiError(err error) *mfasdk.APIError {
	switch {
	case errors.Is(err, service.ErrNotEnrolled):
		return mfasdk.ErrNotEnrolled
	case errors.Is(err, service.ErrTemporarilyDisabled):
		return mfasdk.ErrTemporarilyDisabled
	case errors.Is(err, service.ErrRateLimited):
		return mfasdk.ErrRateLimited
	case errors.Is(err, service.ErrVerificationFailed):
		return mfasdk.ErrInvalidCode
	case errors.Is(err, service.ErrConfiguration):
		return mfasdk.ErrConfigurationInvalid
	case errors.Is(err, service.ErrPersistenceUnavailable):
		return mfasdk.ErrPersistenceUnavailable
	case errors.Is(err, service.ErrAlreadyEnrolled):
		return mfasdk.ErrAlreadyEnrolled
	case errors.Is(err, service.ErrInvalidIdentity), errors.Is(err, service.ErrInvalidLabel):
		return mfasdk.ErrInvalidRequest.WithDescription(err.Error())
	default:
		return mfasdk.ErrServerError
	}
}

// verifyError maps a failed VerifyResult onto its wire error, carrying the
// attempt counters.
func verifyError(res domain.VerifyResult) *mfasdk.APIError {
	var base *mfasdk.APIError
	switch res.Reason {
	case domain.ReasonRateLimited:
		base = mfasdk.ErrRateLimited
	case domain.ReasonInvalidCode:
		base = mfasdk.ErrInvalidCode
	case domain.ReasonNotEnrolled:
		base = mfasdk.ErrNotEnrolled
	case domain.ReasonTemporarilyDisabled:
		base = mfasdk.ErrTemporarilyDisabled
	case domain.ReasonConfigurationInvalid:
		base = mfasdk.ErrConfigurationInvalid
	case domain.ReasonPersistenceUnavailable:
		base = mfasdk.ErrPersistenceUnavailable
	default:
		base = apiError(res.Err)
	}
	return base.WithAttempts(res.RemainingAttempts, res.RetryAfter)
}

// writeServiceError logs err at a level matching its class and writes the
// mapped response.
func writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	log := slogx.FromContext(r.Context())
	apiErr := apiError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		log.Error(msg, "err", err)
	} else {
		log.Warn(msg, "err", err)
	}
	apiErr.WriteError(w)
}
