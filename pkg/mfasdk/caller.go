package mfasdk

import (
	"context"
	"fmt"
	"net/http"
)

// Caller performs MFA operations for the identity named by its bearer token.
type Caller struct {
	client      *Client
	accessToken string
}

// Setup enrolls the caller and returns the secret and backup codes.
func (s *Caller) Setup(ctx context.Context, label string) (*SetupResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/mfa/setup", SetupRequest{Label: label}, nil)
	if err != nil {
		return nil, err
	}

	var out SetupResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify submits a TOTP or backup code. A failed verification is returned
// as an *APIError with RemainingAttempts set.
func (s *Caller) Verify(ctx context.Context, code string, elevated bool) (*VerifyResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/mfa/verify", VerifyRequest{Code: code, Elevated: elevated}, nil)
	if err != nil {
		return nil, err
	}

	var out VerifyResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns the caller's enrollment summary.
func (s *Caller) Status(ctx context.Context) (*StatusResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/mfa/status", nil, nil)
	if err != nil {
		return nil, err
	}

	var out StatusResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Disable temporarily suspends MFA and ends all of the caller's sessions.
// code is a current TOTP code or an unused backup code.
func (s *Caller) Disable(ctx context.Context, code string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/mfa/disable", ConfirmCodeRequest{Code: code}, nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// Enable lifts a Disable. It reports false if the caller never enrolled.
func (s *Caller) Enable(ctx context.Context) (bool, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/mfa/enable", nil, nil)
	if err != nil {
		return false, err
	}

	var out EnableResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return false, err
	}
	return out.Enabled, nil
}

// Remove deletes the caller's enrollment and backup codes. code is checked
// as for Disable.
func (s *Caller) Remove(ctx context.Context, code string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, "/v1/mfa", ConfirmCodeRequest{Code: code}, nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// RemainingBackupCodes returns how many unused backup codes the caller holds.
func (s *Caller) RemainingBackupCodes(ctx context.Context) (int, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/mfa/backup-codes", nil, nil)
	if err != nil {
		return 0, err
	}

	var out BackupCodesRemainingResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return 0, err
	}
	return out.Remaining, nil
}

// RegenerateBackupCodes replaces the caller's backup codes. code must be a
// current TOTP code.
func (s *Caller) RegenerateBackupCodes(ctx context.Context, code string) ([]string, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/mfa/backup-codes", RegenerateBackupCodesRequest{Code: code}, nil)
	if err != nil {
		return nil, err
	}

	var out BackupCodesResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.BackupCodes, nil
}

// CurrentSession returns the caller's newest live session.
func (s *Caller) CurrentSession(ctx context.Context) (*SessionInfo, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/mfa/session", nil, nil)
	if err != nil {
		return nil, err
	}

	var out SessionInfo
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckElevatedAccess reports whether sessionToken grants PHI access.
func (s *Caller) CheckElevatedAccess(ctx context.Context, sessionToken string) (bool, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/mfa/session/elevated", nil,
		map[string]string{SessionHeader: sessionToken})
	if err != nil {
		return false, err
	}

	var out ElevatedAccessResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return false, err
	}
	return out.Granted, nil
}

// EndSession invalidates sessionToken.
func (s *Caller) EndSession(ctx context.Context, sessionToken string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, "/v1/mfa/session", nil,
		map[string]string{SessionHeader: sessionToken})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// AuditEvents returns up to limit of the caller's newest audit events. A
// limit of zero uses the server default.
func (s *Caller) AuditEvents(ctx context.Context, limit int) ([]AuditEvent, error) {
	path := "/v1/mfa/audit"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	resp, err := s.doAuthRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var out AuditEventsResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Events, nil
}
