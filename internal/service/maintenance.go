package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/doxalabs/doxa/internal/domain"
)

// MaintenanceService sweeps the relationship graph in the background,
// removing inactive edges past the retention window. One sweep runs per
// tick; Stop waits for an in-flight sweep to finish.
type MaintenanceService struct {
	graph         domain.GraphStore
	interval      time.Duration
	retentionDays int
	logger        *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func NewMaintenanceService(gs domain.GraphStore, interval time.Duration, retentionDays int, logger *zap.Logger) *MaintenanceService {
	return &MaintenanceService{
		graph:         gs,
		interval:      interval,
		retentionDays: retentionDays,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the sweep loop. Safe to call once.
func (s *MaintenanceService) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("maintenance started",
		zap.Duration("interval", s.interval),
		zap.Int("retention_days", s.retentionDays))
}

// Stop signals the loop and blocks until it exits.
func (s *MaintenanceService) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *MaintenanceService) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep removes inactive relationships across all agents. Errors are logged
// and absorbed; the next tick retries.
func (s *MaintenanceService) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	removed, err := s.graph.RemoveInactiveOlderThan(ctx, "", cutoff)
	if err != nil {
		s.logger.Error("maintenance sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("maintenance sweep removed inactive relationships",
			zap.Int("count", removed))
	}
}
