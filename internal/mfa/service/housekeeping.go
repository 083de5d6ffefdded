package service

import (
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often expired sessions are swept.
const DefaultSweepInterval = 60 * time.Second

// Pruner is anything holding per-key state that can drop stale entries.
type Pruner interface {
	Prune() int
}

// HousekeepingService periodically sweeps expired sessions and stale rate
// limit state so neither grows without bound. It runs independently of
// request handling.
type HousekeepingService struct {
	Sessions *SessionManager
	Limiter  *RateLimiter
	Observer Observer
	Logger   *slog.Logger
	Interval time.Duration
	Now      func() time.Time

	// Pruners are swept alongside the core state, e.g. HTTP request limiters.
	Pruners []Pruner

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service with the given interval.
// If interval is 0 or negative, defaults to DefaultSweepInterval.
func NewHousekeepingService(sessions *SessionManager, limiter *RateLimiter, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &HousekeepingService{
		Sessions: sessions,
		Limiter:  limiter,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress sweep has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}

// Sweep runs one housekeeping pass.
func (s *HousekeepingService) Sweep() {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	sessions := s.Sessions.SweepExpired(now)
	counters := 0
	if s.Limiter != nil {
		counters = s.Limiter.Prune(now)
	}
	keys := 0
	for _, p := range s.Pruners {
		keys += p.Prune()
	}

	if s.Observer != nil {
		s.Observer.SetActiveSessions(s.Sessions.Count())
	}

	s.Logger.Debug("housekeeping sweep completed",
		"expired_sessions", sessions,
		"cleared_rate_limits", counters,
		"pruned_request_limiters", keys,
	)
}
