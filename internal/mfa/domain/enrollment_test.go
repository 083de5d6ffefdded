package domain_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/phimfa/internal/mfa/domain"
	"github.com/stretchr/testify/require"
)

func TestEnrollmentStatus(t *testing.T) {
	now := time.Now()
	rec := domain.EnrollmentRecord{Identity: "u1", SecretCiphertext: []byte{1}, CreatedAt: now}
	require.Equal(t, domain.StatusEnrolledUnverified, rec.Status())

	rec.VerifiedAt = &now
	require.Equal(t, domain.StatusActive, rec.Status())

	rec.DisabledAt = &now
	require.Equal(t, domain.StatusDisabled, rec.Status())
}

func TestEnrollmentValidate(t *testing.T) {
	now := time.Now()
	before := now.Add(-time.Hour)

	good := domain.EnrollmentRecord{Identity: "u1", SecretCiphertext: []byte{1}, CreatedAt: now}
	require.NoError(t, good.Validate())

	tests := []struct {
		name   string
		mutate func(*domain.EnrollmentRecord)
	}{
		{"no identity", func(r *domain.EnrollmentRecord) { r.Identity = "" }},
		{"no secret", func(r *domain.EnrollmentRecord) { r.SecretCiphertext = nil }},
		{"no created_at", func(r *domain.EnrollmentRecord) { r.CreatedAt = time.Time{} }},
		{"verified before created", func(r *domain.EnrollmentRecord) { r.VerifiedAt = &before }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := good
			tt.mutate(&rec)
			require.ErrorIs(t, rec.Validate(), domain.ErrMalformedRecord)
		})
	}
}

func TestSessionExpiryBoundary(t *testing.T) {
	now := time.Now()
	s := domain.Session{CreatedAt: now, ExpiresAt: now.Add(time.Minute)}

	require.False(t, s.Expired(now))
	require.False(t, s.Expired(s.ExpiresAt), "valid at the exact expiry instant")
	require.True(t, s.Expired(s.ExpiresAt.Add(time.Nanosecond)))
}
