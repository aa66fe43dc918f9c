package billing

import (
	"context"
	"log/slog"
	"time"
)

// chargeFromAllocation materializes the charge for an allocation with the
// balance initialized to the full amount.
func chargeFromAllocation(a Allocation, dueDate time.Time) Charge {
	return Charge{
		ExpenseID:    a.ExpenseID,
		ApartmentID:  a.ApartmentID,
		AmountUSD:    a.AmountUSD,
		AmountLocal:  a.AmountLocal,
		BalanceUSD:   a.AmountUSD,
		BalanceLocal: a.AmountLocal,
		DueDate:      dueDate,
		Status:       ChargePending,
	}
}

// StatusFor recomputes a charge's status from its balance and due date. The
// derivation is total, deterministic and idempotent: Paid when the balance is
// zero, Partial when anything has been applied, Overdue past the due date,
// Pending otherwise.
func StatusFor(c Charge, today time.Time) ChargeStatus {
	switch {
	case c.BalanceUSD.IsZero():
		return ChargePaid
	case c.BalanceUSD.LessThan(c.AmountUSD):
		return ChargePartial
	case c.DueDate.Before(truncateToDay(today)):
		return ChargeOverdue
	default:
		return ChargePending
	}
}

// SweepOverdue advances every non-terminal charge past its due date to the
// status derived by StatusFor, and closes allocated expenses whose charges
// are all paid. Re-running the sweep is a no-op; each charge is handled in
// its own short transaction so interactive payments are not blocked.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	today := s.now()

	ids, err := s.repo.ListOverdueCandidates(ctx, truncateToDay(today))
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, id := range ids {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			charge, err := tx.LockCharge(ctx, id)
			if err != nil {
				return err
			}
			next := StatusFor(charge, today)
			if next == charge.Status {
				return nil
			}
			if err := tx.UpdateChargeBalance(ctx, id, charge.BalanceUSD, charge.BalanceLocal, next); err != nil {
				return err
			}
			swept++
			return nil
		})
		if err != nil {
			if s.logger != nil {
				s.logger.Error("overdue sweep charge failed", slog.Int64("charge_id", id), slog.Any("error", err))
			}
			return swept, err
		}
	}

	if err := s.closeSettledExpenses(ctx); err != nil {
		// Closing is bookkeeping only; the sweep result stands.
		if s.logger != nil {
			s.logger.Warn("close settled expenses", slog.Any("error", err))
		}
	}
	return swept, nil
}

// closeSettledExpenses moves allocated expenses whose charges are all paid to
// Closed. Correctness never depends on this transition.
func (s *Service) closeSettledExpenses(ctx context.Context) error {
	ids, err := s.repo.ListFullyPaidExpenses(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.UpdateExpenseStatus(ctx, id, ExpenseClosed)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
