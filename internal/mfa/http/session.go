package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/phimfa/internal/mfa/domain"
	"github.com/aussiebroadwan/phimfa/internal/mfa/service"
	"github.com/aussiebroadwan/phimfa/pkg/httpx"
	"github.com/aussiebroadwan/phimfa/pkg/mfasdk"
	"github.com/aussiebroadwan/phimfa/pkg/slogx"
)

// SessionHandler handles MFA session endpoints. Session tokens travel in
// the X-MFA-Session header and must belong to the authenticated caller.
type SessionHandler struct {
	MFAService *service.MFAService
}

// HandleCurrent handles GET /v1/mfa/session.
//
//	@Summary	Current session
//	@Tags		Sessions
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	mfasdk.SessionInfo		"Newest live session"
//	@Failure	404	{object}	mfasdk.ErrorResponse	"No live session"
//	@Router		/v1/mfa/session [get]
func (h *SessionHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	identity, r, ok := caller(w, r)
	if !ok {
		return
	}

	s, found := h.MFAService.CurrentSession(identity)
	if !found {
		mfasdk.ErrSessionNotFound.WriteError(w)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionInfo(s))
}

// HandleElevated handles POST /v1/mfa/session/elevated. It answers 200 with
// granted=false rather than an error so callers gate PHI access on one field.
//
//	@Summary		Check elevated access
//	@Description	Reports whether the session grants PHI access. Unknown or foreign tokens answer granted=false.
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Produce		json
//	@Param			X-MFA-Session	header		string							true	"Session token"
//	@Success		200				{object}	mfasdk.ElevatedAccessResponse	"Access decision"
//	@Failure		400				{object}	mfasdk.ErrorResponse			"Missing session header"
//	@Router			/v1/mfa/session/elevated [post]
func (h *SessionHandler) HandleElevated(w http.ResponseWriter, r *http.Request) {
	identity, r, ok := caller(w, r)
	if !ok {
		return
	}
	token, ok := h.ownedToken(w, r, identity, domain.OpVerifyElevated)
	if !ok {
		return
	}

	granted := false
	if token != "" {
		granted = h.MFAService.VerifyElevatedAccess(r.Context(), token)
	}
	httpx.WriteJSON(w, http.StatusOK, mfasdk.ElevatedAccessResponse{Granted: granted})
}

// HandleEnd handles DELETE /v1/mfa/session.
//
//	@Summary	End a session
//	@Tags		Sessions
//	@Security	BearerAuth
//	@Param		X-MFA-Session	header	string	true	"Session token"
//	@Success	204				"Session ended"
//	@Failure	400				{object}	mfasdk.ErrorResponse	"Missing session header"
//	@Failure	404				{object}	mfasdk.ErrorResponse	"Unknown session"
//	@Router		/v1/mfa/session [delete]
func (h *SessionHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	identity, r, ok := caller(w, r)
	if !ok {
		return
	}
	token, ok := h.ownedToken(w, r, identity, domain.OpSessionInvalidate)
	if !ok {
		return
	}

	if token == "" || !h.MFAService.InvalidateSession(r.Context(), token) {
		mfasdk.ErrSessionNotFound.WriteError(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedToken reads the session header. It returns "" for a token that is
// unknown, expired or held by another identity, and false only when the
// header is missing.
func (h *SessionHandler) ownedToken(w http.ResponseWriter, r *http.Request, identity string, op domain.Operation) (string, bool) {
	token := strings.TrimSpace(r.Header.Get(mfasdk.SessionHeader))
	if token == "" {
		mfasdk.ErrInvalidRequest.WithDescription(mfasdk.SessionHeader + " header is required").WriteError(w)
		return "", false
	}

	if h.MFAService.ForeignSession(r.Context(), identity, token, op) {
		slogx.FromContext(r.Context()).Warn("session token presented by another identity", "op", op)
		return "", true
	}
	return token, true
}
