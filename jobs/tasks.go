package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/halcyongames/starhold/internal/corp"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRentBilling runs the hangar rent batch.
	TaskRentBilling = "corp:rent_billing"
	// TaskSuccessionSweep resolves expired CEO candidacies.
	TaskSuccessionSweep = "corp:ceo_succession"
	// TaskIncomeSweep runs the long-period auxiliary income job.
	TaskIncomeSweep = "corp:income_sweep"
)

// RentBiller runs one full rent-billing pass.
type RentBiller interface {
	Run(ctx context.Context) error
}

// SuccessionSweeper resolves expired candidacies.
type SuccessionSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// LedgerReconciler recomputes treasury balances from the transaction log.
type LedgerReconciler interface {
	ListLedgerDrift(ctx context.Context) ([]corp.LedgerDrift, error)
}

// HandleRentBilling wraps the rent batch as an Asynq handler.
func HandleRentBilling(biller RentBiller) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		return biller.Run(ctx)
	}
}

// HandleSuccessionSweep wraps the succession sweep as an Asynq handler.
func HandleSuccessionSweep(sweeper SuccessionSweeper, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		n, err := sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("successions completed", slog.Int("count", n))
		}
		return nil
	}
}

// HandleIncomeSweep processes TaskIncomeSweep tasks. Auxiliary income
// (docking fees, market tax settlement) writes its legs to the transaction
// log at the point of sale; the sweep recomputes per-corporation totals and
// flags treasuries the log no longer accounts for.
func HandleIncomeSweep(reconciler LedgerReconciler, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		drifts, err := reconciler.ListLedgerDrift(ctx)
		if err != nil {
			return err
		}
		for _, d := range drifts {
			logger.Warn("treasury ledger drift",
				slog.Int64("corporation", d.CorporationID),
				slog.Int64("wallet", d.Wallet),
				slog.Int64("ledger", d.LedgerTotal))
		}
		logger.Info("income sweep executed", slog.Int("drifting", len(drifts)))
		return nil
	}
}
