package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/fadedpez/spinz/pkg/repositories/ledger"
)

const interruptedReason = "settlement interrupted before a result was recorded"

// ReconcileReport summarizes one reconciliation pass
type ReconcileReport struct {
	OrphansRecovered int                     `json:"orphans_recovered"`
	Failed           []*entities.GameResult  `json:"failed"`
	Compensated      []*entities.Transaction `json:"compensated"`
	Errors           []string                `json:"errors,omitempty"`
	StartedAt        time.Time               `json:"started_at"`
}

// Reconcile turns debits that never got a result into Failed results and lists
// every Failed result. With compensate set each Failed result is refunded.
func (e *Engine) Reconcile(ctx context.Context, compensate bool) (*ReconcileReport, error) {
	report := &ReconcileReport{StartedAt: e.now()}

	orphans, err := e.wallets.GetOrphanedDebits(ctx, report.StartedAt.Add(-e.cfg.OrphanDebitAge), e.cfg.ReconcileBatchSize)
	if err != nil {
		return nil, fmt.Errorf("error listing orphaned debits: %w", err)
	}
	for _, debit := range orphans {
		if err := e.recoverOrphan(ctx, debit); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("debit %s: %v", debit.ID, err))
			continue
		}
		report.OrphansRecovered++
	}

	failed, err := e.wallets.GetFailedResults(ctx, e.cfg.ReconcileBatchSize)
	if err != nil {
		return nil, fmt.Errorf("error listing failed results: %w", err)
	}
	report.Failed = failed

	if compensate {
		for _, result := range failed {
			refund, err := e.wallets.Compensate(ctx, result.ID, result.FailureReason)
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("result %s: %v", result.ID, err))
				continue
			}
			report.Compensated = append(report.Compensated, refund)
		}
	}

	if len(report.Failed) > 0 || len(report.Errors) > 0 {
		e.logger.Warn("reconciliation found %d failed results, recovered %d orphans, compensated %d, %d errors",
			len(report.Failed), report.OrphansRecovered, len(report.Compensated), len(report.Errors))
	}
	return report, nil
}

// recoverOrphan records the Failed result a crashed settlement never wrote
func (e *Engine) recoverOrphan(ctx context.Context, debit *entities.Transaction) error {
	w, err := e.wallets.GetWallet(ctx, debit.WalletID)
	if err != nil {
		return err
	}

	var gameID string
	if details, ok := debit.Details.(*entities.BetDetails); ok {
		gameID = details.GameID
	}

	result := &entities.GameResult{
		ID:             debit.ResultID,
		AccountID:      debit.AccountID,
		WalletID:       debit.WalletID,
		GameID:         gameID,
		Currency:       w.Currency,
		Bet:            -debit.Amount,
		FailureReason:  interruptedReason,
		IdempotencyKey: debit.IdempotencyKey,
		RequestHash:    debit.RequestHash,
	}
	err = e.wallets.RecordFailedResult(ctx, result)
	if errors.Is(err, ledger.ErrResultExists) {
		return nil
	}
	if err == nil {
		e.logger.Warn("recovered orphaned debit %s as failed result %s", debit.ID, result.ID)
	}
	return err
}
