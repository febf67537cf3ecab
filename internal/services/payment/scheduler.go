package payment

import (
	"context"
	"sync"
	"time"

	"restaurant-pos/internal/logger"
)

// Scheduler drives the offline payment retry queue on a fixed
// interval. Sweeps are single-flight: a tick that fires while the
// previous sweep is still running is skipped, not queued.
type Scheduler struct {
	service  *Service
	interval time.Duration
	logger   *logger.Logger
	mu       sync.Mutex
}

// NewScheduler creates a scheduler for the retry queue
func NewScheduler(service *Service, interval time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		service:  service,
		interval: interval,
		logger:   log,
	}
}

// Run sweeps the queue every interval until the context is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler_started", "Offline payment retry scheduler started", "startup", map[string]interface{}{
		"interval": s.interval.String(),
	})

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler_stopped", "Offline payment retry scheduler stopped", "shutdown", nil)
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over the due queue entries. Returns false when a
// concurrent sweep was still in flight and this one was skipped.
func (s *Scheduler) Sweep(ctx context.Context) bool {
	if !s.mu.TryLock() {
		s.logger.Debug("sweep_skipped", "Previous sweep still running", "", nil)
		return false
	}
	defer s.mu.Unlock()

	requestID := logger.GenerateRequestID()
	captured, err := s.service.ProcessOfflineQueue(ctx, requestID)
	if err != nil {
		s.logger.Error("sweep_failed", "Offline queue sweep failed", requestID, err, nil)
		return true
	}
	if captured > 0 {
		s.logger.Info("sweep_completed", "Offline queue sweep captured payments", requestID, map[string]interface{}{
			"captured": captured,
		})
	}
	return true
}
