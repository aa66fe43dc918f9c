package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mirador-hq/mirador/internal/shared"
)

// PgRepository reads ledger aggregates and stores period reports in PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs a repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// ExpenseTotals sums expenses incurred in [from, to).
func (r *PgRepository) ExpenseTotals(ctx context.Context, from, to time.Time) (PeriodTotals, []decimal.Decimal, error) {
	var totals PeriodTotals
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_usd), 0), COALESCE(SUM(total_local), 0)
		FROM expenses
		WHERE incurred_date >= $1 AND incurred_date < $2`, from, to).
		Scan(&totals.USD, &totals.Local)
	if err != nil {
		return PeriodTotals{}, nil, fmt.Errorf("reports: expense totals: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT rate_used
		FROM expenses
		WHERE incurred_date >= $1 AND incurred_date < $2`, from, to)
	if err != nil {
		return PeriodTotals{}, nil, fmt.Errorf("reports: distinct rates: %w", err)
	}
	defer rows.Close()

	var rates []decimal.Decimal
	for rows.Next() {
		var rate decimal.Decimal
		if err := rows.Scan(&rate); err != nil {
			return PeriodTotals{}, nil, fmt.Errorf("reports: scan rate: %w", err)
		}
		rates = append(rates, rate)
	}
	return totals, rates, rows.Err()
}

// IncomeTotals sums non-rejected payments attributed to the period of their
// charge's expense.
func (r *PgRepository) IncomeTotals(ctx context.Context, from, to time.Time) (PeriodTotals, error) {
	var totals PeriodTotals
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(p.amount_usd), 0), COALESCE(SUM(p.amount_local), 0)
		FROM payments p
		JOIN charges c ON c.id = p.charge_id
		JOIN expenses e ON e.id = c.expense_id
		WHERE p.status <> 'REJECTED'
		  AND e.incurred_date >= $1 AND e.incurred_date < $2`, from, to).
		Scan(&totals.USD, &totals.Local)
	if err != nil {
		return PeriodTotals{}, fmt.Errorf("reports: income totals: %w", err)
	}
	return totals, nil
}

// GetReport loads the stored report for a period.
func (r *PgRepository) GetReport(ctx context.Context, period shared.Period) (PeriodReport, error) {
	var report PeriodReport
	err := r.pool.QueryRow(ctx, `
		SELECT period, total_income_usd, total_income_local, total_expense_usd,
		       total_expense_local, closing_usd, closing_local, average_rate,
		       status, generated_at, closed_at, closed_by
		FROM period_reports WHERE period = $1`, period.String()).
		Scan(&report.Period, &report.TotalIncomeUSD, &report.TotalIncomeLocal,
			&report.TotalExpenseUSD, &report.TotalExpenseLocal, &report.ClosingUSD,
			&report.ClosingLocal, &report.AverageRate, &report.Status,
			&report.GeneratedAt, &report.ClosedAt, &report.ClosedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return PeriodReport{}, ErrReportNotFound
	}
	if err != nil {
		return PeriodReport{}, fmt.Errorf("reports: get report: %w", err)
	}
	return report, nil
}

// UpsertReport writes the report while it is open. A concurrent close wins:
// the WHERE clause refuses to overwrite a closed row.
func (r *PgRepository) UpsertReport(ctx context.Context, report PeriodReport) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO period_reports (
			period, total_income_usd, total_income_local, total_expense_usd,
			total_expense_local, closing_usd, closing_local, average_rate,
			status, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (period) DO UPDATE
		SET total_income_usd = EXCLUDED.total_income_usd,
		    total_income_local = EXCLUDED.total_income_local,
		    total_expense_usd = EXCLUDED.total_expense_usd,
		    total_expense_local = EXCLUDED.total_expense_local,
		    closing_usd = EXCLUDED.closing_usd,
		    closing_local = EXCLUDED.closing_local,
		    average_rate = EXCLUDED.average_rate,
		    generated_at = EXCLUDED.generated_at
		WHERE period_reports.status = 'OPEN'`,
		report.Period.String(), report.TotalIncomeUSD, report.TotalIncomeLocal,
		report.TotalExpenseUSD, report.TotalExpenseLocal, report.ClosingUSD,
		report.ClosingLocal, report.AverageRate, report.Status, report.GeneratedAt)
	if err != nil {
		return fmt.Errorf("reports: upsert report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReportClosed
	}
	return nil
}

// MarkClosed freezes the report.
func (r *PgRepository) MarkClosed(ctx context.Context, period shared.Period, actorID int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE period_reports
		SET status = 'CLOSED', closed_at = $2, closed_by = $3
		WHERE period = $1 AND status = 'OPEN'`, period.String(), at, actorID)
	if err != nil {
		return fmt.Errorf("reports: close report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReportClosed
	}
	return nil
}

// ApartmentCharges sums charge amounts for expenses incurred in [from, to).
func (r *PgRepository) ApartmentCharges(ctx context.Context, apartmentID int64, from, to time.Time) (PeriodTotals, error) {
	var totals PeriodTotals
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(c.amount_usd), 0), COALESCE(SUM(c.amount_local), 0)
		FROM charges c
		JOIN expenses e ON e.id = c.expense_id
		WHERE c.apartment_id = $1
		  AND e.incurred_date >= $2 AND e.incurred_date < $3`, apartmentID, from, to).
		Scan(&totals.USD, &totals.Local)
	if err != nil {
		return PeriodTotals{}, fmt.Errorf("reports: apartment charges: %w", err)
	}
	return totals, nil
}

// ApartmentPayments sums non-rejected payments created in [from, to).
func (r *PgRepository) ApartmentPayments(ctx context.Context, apartmentID int64, from, to time.Time) (PeriodTotals, error) {
	var totals PeriodTotals
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_usd), 0), COALESCE(SUM(amount_local), 0)
		FROM payments
		WHERE apartment_id = $1 AND status <> 'REJECTED'
		  AND created_at >= $2 AND created_at < $3`, apartmentID, from, to).
		Scan(&totals.USD, &totals.Local)
	if err != nil {
		return PeriodTotals{}, fmt.Errorf("reports: apartment payments: %w", err)
	}
	return totals, nil
}

var _ Repository = (*PgRepository)(nil)
