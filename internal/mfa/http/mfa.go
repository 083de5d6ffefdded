package http

import (
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/phimfa/internal/mfa/domain"
	"github.com/aussiebroadwan/phimfa/internal/mfa/service"
	"github.com/aussiebroadwan/phimfa/pkg/httpx"
	"github.com/aussiebroadwan/phimfa/pkg/mfasdk"
	"github.com/aussiebroadwan/phimfa/pkg/slogx"
)

// maxAuditLimit caps GET /v1/mfa/audit?limit=.
const maxAuditLimit = 500

// MFAHandler handles enrollment, verification and backup code endpoints.
type MFAHandler struct {
	MFAService *service.MFAService
}

// caller extracts the authenticated identity (injected by AuthnMiddleware)
// and tags the request logger with it.
func caller(w http.ResponseWriter, r *http.Request) (string, *http.Request, bool) {
	identity, ok := httpx.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, mfasdk.ErrorCodeInvalidToken, "token has no subject")
		return "", r, false
	}
	return identity, r.WithContext(slogx.WithIdentity(r.Context(), identity)), true
}

// HandleSetup handles POST /v1/mfa/setup.
//
//	@Summary		Enroll in TOTP MFA
//	@Description	Creates or replaces a pending enrollment and returns the secret and backup codes once.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mfasdk.SetupRequest		false	"Optional account label"
//	@Success		201		{object}	mfasdk.SetupResponse	"Secret, backup codes and enrollment URI"
//	@Failure		400		{object}	mfasdk.ErrorResponse	"Invalid label"
//	@Failure		409		{object}	mfasdk.ErrorResponse	"Already enrolled"
//	@Router			/v1/mfa/setup [post]
func (h *MFAHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	identity, r, ok := caller(w, r)
	if !ok {
		return
	}

	var req mfasdk.SetupRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		mfasdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}

	res, err := h.MFAService.Setup(r.Context(), identity, req.Label)
	if err != nil {
		writeServiceError(w, r, "mfa setup failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, mfasdk.SetupResponse{
		Secret:        res.Secret,
		BackupCodes:   res.BackupCodes,
		EnrollmentURI: res.EnrollmentURI,
		QRCodePNG:     res.QRCodePNG,
	})
}

// HandleVerify handles POST /v1/mfa/verify.
//
//	@Summary		Verify a code
//	@Description	Checks a TOTP or backup code and issues a session. Elevated sessions grant PHI access for a shorter time.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mfasdk.VerifyRequest	true	"Code and session kind"
//	@Success		200		{object}	mfasdk.VerifyResponse	"Session issued"
//	@Failure		401		{object}	mfasdk.ErrorResponse	"Invalid code"
//	@Failure		403		{object}	mfasdk.ErrorResponse	"MFA temporarily disabled"
//	@Failure		404		{object}	mfasdk.ErrorResponse	"Not enrolled"
//	@Failure		429		{object}	mfasdk.ErrorResponse	"Rate limited"
//	@Router			/v1/mfa/verify [post]
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	identity, r, ok := caller(w, r)
	if !ok {
		return
	}

	var req mfasdk.VerifyRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		mfasdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}
	if req.Code == "" {
		mfasdk.ErrInvalidRequest.WithDescription("code is required").WriteError(w)
		return
	}

	res := h.MFAService.Verify(r.Context(), identity, req.Code, req.Elevated)
	if !res.Success {
		slogx.FromContext(r.Context()).Warn("mfa verification failed",
			"reason", res.Reason,
			"remaining_attempts", res.RemainingAttempts,
		)
		verifyError(res).WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, mfasdk.VerifyResponse{
		Success:           true,
		Method:            string(res.Method),
		RemainingAttempts: res.RemainingAttempts,
		Session:           sessionInfo(*res.Session),
	})
}

// HandleStatus handles GET /v1/mfa/status.
//
//	@Summary	Enrollment status
//	@Tags		MFA
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	mfasdk.StatusResponse	"Enrollment status"
//	@Failure	401	{object}	mfasdk.ErrorResponse	"Invalid or missing access token"
//	@Router		/v1/mfa/status [get]
func (h *MFAHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	identity, r, ok := caller(w, r)
	if !ok {
		return
	}

	info, err := h.MFAService.Status(r.Context(), identity)
	if err != nil {
		writeServiceError(w, r, "mfa status failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, mfasdk.StatusResponse{
		Identity:             info.Identity,
		Status:               string(info.Status),
		EnrolledAt:           info.EnrolledAt,
		VerifiedAt:           info.VerifiedAt,
		DisabledAt:           info.DisabledAt,
		RemainingBackupCodes: info.RemainingBackupCodes,
	})
}

// HandleDisable handles POST /v1/mfa/disable.
//
//	@Summary		Disable MFA
//	@Description	Suspends MFA while keeping the secret and backup codes. Ends every session. Requires a current TOTP code or an unused backup code.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	mfasdk.ConfirmCodeRequest	true	"Confirmation code"
//	@Success		204		"MFA disabled"
//	@Failure		401		{object}	mfasdk.ErrorResponse	"Invalid code or access token"
//	@Failure		404		{object}	mfasdk.ErrorResponse	"Not enrolled"
//	@Failure		429		{object}	mfasdk.ErrorResponse	"Rate limited"
//	@Router			/v1/mfa/disable [post]
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	identity, r, ok := caller(w, r)
	if !ok {
		return
	}

	var req mfasdk.ConfirmCodeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		mfasdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}

	if err := h.MFAService.Disable(r.Context(), identity, req.Code); err != nil {
		writeServiceError(w, r, "mfa disable failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEnable handles POST /v1/mfa/enable.
//
//	@Summary	Re-enable MFA
//	@Tags		MFA
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	mfasdk.EnableResponse	"Whether an enrollment exists"
//	@Failure	401	{object}	mfasdk.ErrorResponse	"Invalid or missing access token"
//	@Router		/v1/mfa/enable [post]
func (h *MFAHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	identity, r, ok := caller(w, r)
	if !ok {
		return
	}

	enabled, err := h.MFAService.Enable(r.Context(), identity)
	if err != nil {
		writeServiceError(w, r, "mfa enable failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mfasdk.EnableResponse{Enabled: enabled})
}

// HandleRemove handles DELETE /v1/mfa.
//
//	@Summary		Remove MFA enrollment
//	@Description	Deletes the caller's enrollment and backup codes and ends every session. Requires a current TOTP code or an unused backup code.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	mfasdk.ConfirmCodeRequest	true	"Confirmation code"
//	@Success		204		"Enrollment removed"
//	@Failure		401		{object}	mfasdk.ErrorResponse	"Invalid code or access token"
//	@Failure		404		{object}	mfasdk.ErrorResponse	"Not enrolled"
//	@Failure		429		{object}	mfasdk.ErrorResponse	"Rate limited"
//	@Failure		503		{object}	mfasdk.ErrorResponse	"Persistence unavailable"
//	@Router			/v1/mfa [delete]
func (h *MFAHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	identity, r, ok := caller(w, r)
	if !ok {
		return
	}

	var req mfasdk.ConfirmCodeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		mfasdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}

	if err := h.MFAService.Remove(r.Context(), identity, req.Code); err != nil {
		writeServiceError(w, r, "mfa remove failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRemainingBackupCodes handles GET /v1/mfa/backup-codes.
//
//	@Summary	Count unused backup codes
//	@Tags		MFA
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	mfasdk.BackupCodesRemainingResponse	"Remaining backup codes"
//	@Failure	401	{object}	mfasdk.ErrorResponse				"Invalid or missing access token"
//	@Router		/v1/mfa/backup-codes [get]
func (h *MFAHandler) HandleRemainingBackupCodes(w http.ResponseWriter, r *http.Request) {
	identity, r, ok := caller(w, r)
	if !ok {
		return
	}

	n, err := h.MFAService.RemainingBackupCodes(r.Context(), identity)
	if err != nil {
		writeServiceError(w, r, "backup code count failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mfasdk.BackupCodesRemainingResponse{Remaining: n})
}

// HandleRegenerateBackupCodes handles POST /v1/mfa/backup-codes.
//
//	@Summary		Regenerate backup codes
//	@Description	Replaces every backup code after checking a current TOTP code. Only active enrollments qualify.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		mfasdk.RegenerateBackupCodesRequest	true	"Current TOTP code"
//	@Success		200		{object}	mfasdk.BackupCodesResponse			"New backup codes"
//	@Failure		400		{object}	mfasdk.ErrorResponse				"Missing code"
//	@Failure		401		{object}	mfasdk.ErrorResponse				"Invalid code"
//	@Failure		403		{object}	mfasdk.ErrorResponse				"MFA temporarily disabled"
//	@Failure		404		{object}	mfasdk.ErrorResponse				"Not enrolled"
//	@Failure		429		{object}	mfasdk.ErrorResponse				"Rate limited"
//	@Router			/v1/mfa/backup-codes [post]
func (h *MFAHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	identity, r, ok := caller(w, r)
	if !ok {
		return
	}

	var req mfasdk.RegenerateBackupCodesRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		mfasdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}
	if req.Code == "" {
		mfasdk.ErrInvalidRequest.WithDescription("code is required").WriteError(w)
		return
	}

	codes, err := h.MFAService.RegenerateBackupCodes(r.Context(), identity, req.Code)
	if err != nil {
		writeServiceError(w, r, "backup code regeneration failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mfasdk.BackupCodesResponse{BackupCodes: codes})
}

// HandleAuditTrail handles GET /v1/mfa/audit.
//
//	@Summary		List audit events
//	@Description	Returns the caller's newest audit events first.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Param			limit	query		int							false	"Maximum events (1-500, default 50)"
//	@Success		200		{object}	mfasdk.AuditEventsResponse	"Audit events"
//	@Failure		400		{object}	mfasdk.ErrorResponse		"Invalid limit"
//	@Failure		401		{object}	mfasdk.ErrorResponse		"Invalid or missing access token"
//	@Router			/v1/mfa/audit [get]
func (h *MFAHandler) HandleAuditTrail(w http.ResponseWriter, r *http.Request) {
	identity, r, ok := caller(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxAuditLimit {
			mfasdk.ErrInvalidRequest.WithDescription("limit must be between 1 and 500").WriteError(w)
			return
		}
		limit = n
	}

	events, err := h.MFAService.AuditTrail(r.Context(), identity, limit)
	if err != nil {
		writeServiceError(w, r, "audit trail failed", err)
		return
	}

	out := mfasdk.AuditEventsResponse{Events: make([]mfasdk.AuditEvent, 0, len(events))}
	for _, ev := range events {
		out.Events = append(out.Events, auditEvent(ev))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func sessionInfo(s domain.Session) *mfasdk.SessionInfo {
	return &mfasdk.SessionInfo{
		Token:            s.Token,
		CreatedAt:        s.CreatedAt,
		ExpiresAt:        s.ExpiresAt,
		PHIAccessEnabled: s.PHIAccessEnabled,
	}
}

func auditEvent(ev domain.AuditEvent) mfasdk.AuditEvent {
	return mfasdk.AuditEvent{
		ID:         ev.ID,
		Identity:   ev.Identity,
		Operation:  string(ev.Operation),
		Outcome:    string(ev.Outcome),
		Reason:     string(ev.Reason),
		Method:     string(ev.Method),
		SessionRef: ev.SessionRef,
		OccurredAt: ev.OccurredAt,
	}
}
