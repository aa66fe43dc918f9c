package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mirador-hq/mirador/internal/fxrate"
	"github.com/mirador-hq/mirador/internal/money"
	"github.com/mirador-hq/mirador/internal/registry"
	"github.com/mirador-hq/mirador/internal/shared"
)

// RateResolver is the slice of the fx resolver the billing engine consumes.
type RateResolver interface {
	CurrentRate(ctx context.Context, asOf time.Time) (fxrate.Rate, error)
}

// Repository defines read access and transaction entry for billing data.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error

	GetExpense(ctx context.Context, id int64) (Expense, error)
	CountAllocations(ctx context.Context, expenseID int64) (int, error)
	ListAllocations(ctx context.Context, expenseID int64) ([]Allocation, error)
	GetCharge(ctx context.Context, id int64) (Charge, error)
	ListChargesByExpense(ctx context.Context, expenseID int64) ([]Charge, error)
	GetPayment(ctx context.Context, id int64) (Payment, error)
	ListPaymentsByCharge(ctx context.Context, chargeID int64) ([]Payment, error)
	CountValidatedPayments(ctx context.Context, expenseID int64) (int, error)
	ListOverdueCandidates(ctx context.Context, today time.Time) ([]int64, error)
	ListFullyPaidExpenses(ctx context.Context) ([]int64, error)
}

// TxRepository defines mutations executed inside a transaction. Lock methods
// take a row lock so concurrent balance updates serialize.
type TxRepository interface {
	CreateExpense(ctx context.Context, e Expense) (int64, error)
	UpdateExpenseStatus(ctx context.Context, id int64, status ExpenseStatus) error
	DeleteExpenseCascade(ctx context.Context, id int64) error
	CreateAllocation(ctx context.Context, a Allocation) (int64, error)
	ChargeExists(ctx context.Context, expenseID, apartmentID int64) (bool, error)
	CreateCharge(ctx context.Context, c Charge) (int64, error)
	LockCharge(ctx context.Context, id int64) (Charge, error)
	UpdateChargeBalance(ctx context.Context, id int64, balanceUSD, balanceLocal decimal.Decimal, status ChargeStatus) error
	CreatePayment(ctx context.Context, p Payment) (int64, error)
	LockPayment(ctx context.Context, id int64) (Payment, error)
	UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) error
}

// Service orchestrates the billing engine.
type Service struct {
	repo       Repository
	apartments registry.Apartments
	residents  registry.Residents
	rates      RateResolver
	audit      shared.AuditSink
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, apartments registry.Apartments, residents registry.Residents, rates RateResolver, audit shared.AuditSink, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		apartments: apartments,
		residents:  residents,
		rates:      rates,
		audit:      audit,
		logger:     logger,
		now:        time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateExpense records a new expense. The local total and the rate are
// resolved once, here, and never recomputed.
func (s *Service) CreateExpense(ctx context.Context, in CreateExpenseInput) (Expense, error) {
	if err := in.Validate(); err != nil {
		return Expense{}, err
	}

	rate, err := s.rates.CurrentRate(ctx, in.IncurredDate)
	if err != nil {
		return Expense{}, err
	}

	totalUSD := money.Round2(in.TotalUSD)
	expense := Expense{
		Description:  in.Description,
		Category:     in.Category,
		TotalUSD:     totalUSD,
		TotalLocal:   money.Round2(totalUSD.Mul(rate.Value)),
		RateUsed:     rate.Value,
		IncurredDate: in.IncurredDate,
		Selection:    in.Selection,
		EqualSplit:   in.EqualSplit,
		Status:       ExpensePending,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateExpense(ctx, expense)
		if err != nil {
			return err
		}
		expense.ID = id
		return nil
	})
	if err != nil {
		return Expense{}, err
	}

	shared.Audit(ctx, s.audit, s.logger, shared.AuditEntry{
		ActorID:  in.ActorID,
		Action:   "expense.create",
		Entity:   "expense",
		EntityID: strconv.FormatInt(expense.ID, 10),
		After:    expenseSnapshot(expense),
		At:       s.now(),
	})
	return expense, nil
}

// Distribute allocates a pending expense across its selected apartments and
// materializes one charge per allocation. An expense is distributed exactly
// once; corrections go through ReplaceExpense.
func (s *Service) Distribute(ctx context.Context, expenseID int64) ([]Allocation, error) {
	expense, err := s.repo.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if expense.Status != ExpensePending {
		return nil, ErrAlreadyDistributed
	}
	if n, err := s.repo.CountAllocations(ctx, expenseID); err != nil {
		return nil, err
	} else if n > 0 {
		return nil, ErrAlreadyDistributed
	}

	ids, err := s.apartments.SelectApartments(ctx, expense.Selection)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrEmptySelection
	}

	shares := make([]apartmentShare, 0, len(ids))
	for _, id := range ids {
		pct, err := s.apartments.PercentageOf(ctx, id)
		if err != nil {
			return nil, err
		}
		shares = append(shares, apartmentShare{ApartmentID: id, Percentage: pct})
	}

	allocs := computeAllocations(expenseID, expense.TotalUSD, expense.RateUsed, shares, expense.EqualSplit)
	dueDate := expense.IncurredDate.AddDate(0, 0, GracePeriodDays)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for i := range allocs {
			id, err := tx.CreateAllocation(ctx, allocs[i])
			if err != nil {
				return err
			}
			allocs[i].ID = id

			exists, err := tx.ChargeExists(ctx, expenseID, allocs[i].ApartmentID)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if _, err := tx.CreateCharge(ctx, chargeFromAllocation(allocs[i], dueDate)); err != nil {
				return err
			}
		}
		return tx.UpdateExpenseStatus(ctx, expenseID, ExpenseAllocated)
	})
	if err != nil {
		return nil, err
	}

	shared.Audit(ctx, s.audit, s.logger, shared.AuditEntry{
		Action:   "expense.distribute",
		Entity:   "expense",
		EntityID: strconv.FormatInt(expenseID, 10),
		Before:   map[string]any{"status": string(ExpensePending)},
		After:    map[string]any{"status": string(ExpenseAllocated), "allocations": len(allocs)},
		At:       s.now(),
	})
	return allocs, nil
}

// GetExpense loads an expense with its allocations.
func (s *Service) GetExpense(ctx context.Context, id int64) (Expense, []Allocation, error) {
	expense, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return Expense{}, nil, err
	}
	allocs, err := s.repo.ListAllocations(ctx, id)
	if err != nil {
		return Expense{}, nil, err
	}
	return expense, allocs, nil
}

// GetCharge loads a charge with its payments.
func (s *Service) GetCharge(ctx context.Context, id int64) (Charge, []Payment, error) {
	charge, err := s.repo.GetCharge(ctx, id)
	if err != nil {
		return Charge{}, nil, err
	}
	payments, err := s.repo.ListPaymentsByCharge(ctx, id)
	if err != nil {
		return Charge{}, nil, err
	}
	return charge, payments, nil
}

// ReplaceExpense is the only supported correction path: it deletes the
// expense with its allocations and charges and rebuilds the distributed
// replacement, all in one transaction. Everything that can fail — the rate,
// the selection, the percentages — is resolved before anything is deleted, so
// a failed correction leaves the original ledger untouched. Fails if any
// charge carries a validated payment.
func (s *Service) ReplaceExpense(ctx context.Context, expenseID int64, corrected CreateExpenseInput) (Expense, error) {
	if err := corrected.Validate(); err != nil {
		return Expense{}, err
	}
	old, err := s.repo.GetExpense(ctx, expenseID)
	if err != nil {
		return Expense{}, err
	}
	if n, err := s.repo.CountValidatedPayments(ctx, expenseID); err != nil {
		return Expense{}, err
	} else if n > 0 {
		return Expense{}, ErrValidatedPayments
	}

	rate, err := s.rates.CurrentRate(ctx, corrected.IncurredDate)
	if err != nil {
		return Expense{}, err
	}

	ids, err := s.apartments.SelectApartments(ctx, corrected.Selection)
	if err != nil {
		return Expense{}, err
	}
	if len(ids) == 0 {
		return Expense{}, ErrEmptySelection
	}
	shares := make([]apartmentShare, 0, len(ids))
	for _, id := range ids {
		pct, err := s.apartments.PercentageOf(ctx, id)
		if err != nil {
			return Expense{}, err
		}
		shares = append(shares, apartmentShare{ApartmentID: id, Percentage: pct})
	}

	totalUSD := money.Round2(corrected.TotalUSD)
	replacement := Expense{
		Description:  corrected.Description,
		Category:     corrected.Category,
		TotalUSD:     totalUSD,
		TotalLocal:   money.Round2(totalUSD.Mul(rate.Value)),
		RateUsed:     rate.Value,
		IncurredDate: corrected.IncurredDate,
		Selection:    corrected.Selection,
		EqualSplit:   corrected.EqualSplit,
		Status:       ExpensePending,
	}
	dueDate := corrected.IncurredDate.AddDate(0, 0, GracePeriodDays)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteExpenseCascade(ctx, expenseID); err != nil {
			return err
		}
		id, err := tx.CreateExpense(ctx, replacement)
		if err != nil {
			return err
		}
		replacement.ID = id

		allocs := computeAllocations(id, totalUSD, rate.Value, shares, corrected.EqualSplit)
		for i := range allocs {
			if _, err := tx.CreateAllocation(ctx, allocs[i]); err != nil {
				return err
			}
			if _, err := tx.CreateCharge(ctx, chargeFromAllocation(allocs[i], dueDate)); err != nil {
				return err
			}
		}
		return tx.UpdateExpenseStatus(ctx, id, ExpenseAllocated)
	})
	if err != nil {
		return Expense{}, fmt.Errorf("billing: replace expense: %w", err)
	}
	replacement.Status = ExpenseAllocated

	shared.Audit(ctx, s.audit, s.logger, shared.AuditEntry{
		ActorID:  corrected.ActorID,
		Action:   "expense.replace",
		Entity:   "expense",
		EntityID: strconv.FormatInt(expenseID, 10),
		Before:   expenseSnapshot(old),
		After:    expenseSnapshot(replacement),
		At:       s.now(),
	})
	return replacement, nil
}

func expenseSnapshot(e Expense) map[string]any {
	return map[string]any{
		"description":   e.Description,
		"category":      e.Category,
		"total_usd":     e.TotalUSD.String(),
		"total_local":   e.TotalLocal.String(),
		"rate_used":     e.RateUsed.String(),
		"incurred_date": e.IncurredDate.Format("2006-01-02"),
		"status":        string(e.Status),
	}
}
