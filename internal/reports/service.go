package reports

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mirador-hq/mirador/internal/money"
	"github.com/mirador-hq/mirador/internal/shared"
)

// Service computes period reports and statements of account.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Generate recomputes and upserts the report for a period. Fails with a
// conflict when the report is already closed; a frozen report never changes.
func (s *Service) Generate(ctx context.Context, period shared.Period) (PeriodReport, error) {
	from, to, err := period.Bounds()
	if err != nil {
		return PeriodReport{}, err
	}

	existing, err := s.repo.GetReport(ctx, period)
	switch {
	case err == nil:
		if existing.Status == ReportClosed {
			return PeriodReport{}, ErrReportClosed
		}
	case errors.Is(err, ErrReportNotFound):
	default:
		return PeriodReport{}, err
	}

	expense, rates, err := s.repo.ExpenseTotals(ctx, from, to)
	if err != nil {
		return PeriodReport{}, err
	}
	income, err := s.repo.IncomeTotals(ctx, from, to)
	if err != nil {
		return PeriodReport{}, err
	}

	report := PeriodReport{
		Period:            period,
		TotalIncomeUSD:    income.USD,
		TotalIncomeLocal:  income.Local,
		TotalExpenseUSD:   expense.USD,
		TotalExpenseLocal: expense.Local,
		ClosingUSD:        income.USD.Sub(expense.USD),
		ClosingLocal:      income.Local.Sub(expense.Local),
		AverageRate:       averageRate(rates),
		Status:            ReportOpen,
		GeneratedAt:       s.now(),
	}
	if err := s.repo.UpsertReport(ctx, report); err != nil {
		return PeriodReport{}, err
	}
	return report, nil
}

// Close freezes the report for a period. A report must exist and be Open.
func (s *Service) Close(ctx context.Context, period shared.Period, actorID int64) error {
	report, err := s.repo.GetReport(ctx, period)
	if err != nil {
		return err
	}
	if report.Status == ReportClosed {
		return ErrReportClosed
	}
	return s.repo.MarkClosed(ctx, period, actorID, s.now())
}

// Get returns the stored report for a period.
func (s *Service) Get(ctx context.Context, period shared.Period) (PeriodReport, error) {
	return s.repo.GetReport(ctx, period)
}

// Statement builds an apartment's statement of account for a period. The
// prior balance accumulates everything strictly before the period start; the
// apartment is current when the new balance is zero or negative.
func (s *Service) Statement(ctx context.Context, apartmentID int64, period shared.Period) (Statement, error) {
	from, to, err := period.Bounds()
	if err != nil {
		return Statement{}, err
	}

	var origin time.Time
	priorCharges, err := s.repo.ApartmentCharges(ctx, apartmentID, origin, from)
	if err != nil {
		return Statement{}, err
	}
	priorPayments, err := s.repo.ApartmentPayments(ctx, apartmentID, origin, from)
	if err != nil {
		return Statement{}, err
	}
	charges, err := s.repo.ApartmentCharges(ctx, apartmentID, from, to)
	if err != nil {
		return Statement{}, err
	}
	payments, err := s.repo.ApartmentPayments(ctx, apartmentID, from, to)
	if err != nil {
		return Statement{}, err
	}

	stmt := Statement{
		ApartmentID:   apartmentID,
		Period:        period,
		PriorUSD:      priorCharges.USD.Sub(priorPayments.USD),
		PriorLocal:    priorCharges.Local.Sub(priorPayments.Local),
		ChargesUSD:    charges.USD,
		ChargesLocal:  charges.Local,
		PaymentsUSD:   payments.USD,
		PaymentsLocal: payments.Local,
	}
	stmt.NewBalanceUSD = stmt.PriorUSD.Add(stmt.ChargesUSD).Sub(stmt.PaymentsUSD)
	stmt.NewBalanceLocal = stmt.PriorLocal.Add(stmt.ChargesLocal).Sub(stmt.PaymentsLocal)
	stmt.Current = !stmt.NewBalanceUSD.IsPositive()
	return stmt, nil
}

// averageRate is the mean of the distinct rates used by the period's
// expenses, 4-decimal rounded. Zero when the period has no expenses.
func averageRate(rates []decimal.Decimal) decimal.Decimal {
	if len(rates) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, r := range rates {
		sum = sum.Add(r)
	}
	return money.Round4(sum.Div(decimal.NewFromInt(int64(len(rates)))))
}
