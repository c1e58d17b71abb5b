package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gate/internal/gate/store"
	"github.com/aussiebroadwan/gate/pkg/limiter"
)

// HousekeepingService periodically deletes expired API tokens, clears
// expired reset tokens and sweeps stale in-memory attempt counters.
type HousekeepingService struct {
	Store    store.Store
	Limiter  limiter.Limiter
	Logger   *slog.Logger
	Interval time.Duration
	Now      func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 10 minutes.
func NewHousekeepingService(st store.Store, lim limiter.Limiter, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	return &HousekeepingService{
		Store:    st,
		Limiter:  lim,
		Logger:   logger,
		Interval: interval,
		Now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup runs one pass. Each step is independent; a failure in one does not
// stop the others.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	now := s.Now()

	tokens, err := s.Store.APITokens().DeleteExpiredAPITokens(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired api tokens", "error", err)
	}

	resets, err := s.Store.Users().ClearExpiredResetTokens(ctx, now)
	if err != nil {
		s.Logger.Error("failed to clear expired reset tokens", "error", err)
	}

	var swept int
	if sw, ok := s.Limiter.(limiter.Sweeper); ok {
		swept = sw.Sweep(ctx)
	}

	s.Logger.Info("housekeeping cleanup completed",
		"api_tokens_deleted", tokens,
		"reset_tokens_cleared", resets,
		"attempt_counters_swept", swept,
	)
}
