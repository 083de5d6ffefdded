package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterBlocksAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	l, err := NewRateLimiter(3, 15*time.Minute)
	require.NoError(t, err)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	d := l.CheckAllowed("u1", now)
	require.True(t, d.Allowed)
	require.Equal(t, 3, d.Remaining)

	require.Equal(t, 2, l.RecordFailure("u1", now))
	require.Equal(t, 1, l.RecordFailure("u1", now))
	require.Equal(t, 0, l.RecordFailure("u1", now))

	d = l.CheckAllowed("u1", now.Add(time.Minute))
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)
	require.Equal(t, 14*time.Minute, d.RetryAfter)

	// saturated: further failures neither count nor extend the block
	require.Equal(t, 0, l.RecordFailure("u1", now.Add(time.Minute)))
	require.True(t, l.CheckAllowed("u1", now.Add(15*time.Minute+time.Second)).Allowed)

	require.True(t, l.CheckAllowed("u2", now).Allowed, "identities are independent")
}

func TestRateLimiterSlidingCoolDown(t *testing.T) {
	t.Parallel()

	l, err := NewRateLimiter(3, 15*time.Minute)
	require.NoError(t, err)
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	l.RecordFailure("u1", start)
	l.RecordFailure("u1", start.Add(10*time.Minute))

	// 15 minutes after the first failure but only 5 after the last
	d := l.CheckAllowed("u1", start.Add(15*time.Minute))
	require.True(t, d.Allowed)
	require.Equal(t, 1, d.Remaining)

	// exactly one cool-down after the last failure is still inside the window
	d = l.CheckAllowed("u1", start.Add(25*time.Minute))
	require.Equal(t, 1, d.Remaining)

	d = l.CheckAllowed("u1", start.Add(25*time.Minute+time.Nanosecond))
	require.Equal(t, 3, d.Remaining, "full budget after a quiet cool-down")
}

func TestRateLimiterRecordSuccessResets(t *testing.T) {
	t.Parallel()

	l, err := NewRateLimiter(3, time.Minute)
	require.NoError(t, err)
	now := time.Now()

	for range 3 {
		l.RecordFailure("u1", now)
	}
	require.False(t, l.CheckAllowed("u1", now).Allowed)

	l.RecordSuccess("u1")
	d := l.CheckAllowed("u1", now)
	require.True(t, d.Allowed)
	require.Equal(t, 3, d.Remaining)
}

func TestRateLimiterPrune(t *testing.T) {
	t.Parallel()

	l, err := NewRateLimiter(3, time.Minute)
	require.NoError(t, err)
	now := time.Now()

	l.RecordFailure("old", now.Add(-2*time.Minute))
	l.RecordFailure("fresh", now)
	require.Equal(t, 2, l.Len())

	require.Equal(t, 1, l.Prune(now))
	require.Equal(t, 1, l.Len())
}

func TestNewRateLimiterRejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := NewRateLimiter(0, time.Minute)
	require.Error(t, err)
	_, err = NewRateLimiter(3, 0)
	require.Error(t, err)
}
