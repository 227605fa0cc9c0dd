package scheduler

import (
	"context"
	"time"

	"github.com/fadedpez/spinz/internal/logging"
	"github.com/fadedpez/spinz/pkg/services/settlement"
)

// Reconciler is implemented by the settlement engine
type Reconciler interface {
	Reconcile(ctx context.Context, compensate bool) (*settlement.ReconcileReport, error)
}

// ReconcileScheduler periodically reports failed bets and, when enabled, refunds them
type ReconcileScheduler struct {
	scheduler      *Scheduler
	reconciler     Reconciler
	interval       time.Duration
	autoCompensate bool
	logger         *logging.Logger
}

// NewReconcileScheduler creates a reconciliation scheduler. A non-positive interval defaults to five minutes.
func NewReconcileScheduler(reconciler Reconciler, interval time.Duration, autoCompensate bool, logger *logging.Logger) *ReconcileScheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default
	}
	return &ReconcileScheduler{
		scheduler:      NewScheduler(logger),
		reconciler:     reconciler,
		interval:       interval,
		autoCompensate: autoCompensate,
		logger:         logger.With("component", "reconcile"),
	}
}

// Start starts the reconciliation task
func (s *ReconcileScheduler) Start(ctx context.Context) {
	s.scheduler.AddTask("reconcile_failed_bets", s.interval, s.reconcileFailedBets)
	s.scheduler.Start(ctx)
}

// Stop stops the reconciliation task
func (s *ReconcileScheduler) Stop() {
	s.scheduler.Stop()
}

func (s *ReconcileScheduler) reconcileFailedBets(ctx context.Context) error {
	report, err := s.reconciler.Reconcile(ctx, s.autoCompensate)
	if err != nil {
		return err
	}
	for _, result := range report.Failed {
		if !s.autoCompensate {
			s.logger.Warn("Bet %s for account %s failed and awaits compensation: %s",
				result.ID, result.AccountID, result.FailureReason)
		}
	}
	for _, msg := range report.Errors {
		s.logger.Error("Reconciliation error: %s", msg)
	}
	return nil
}
