// Package reports reconciles charges and payments into per-period financial
// reports and per-apartment statements of account.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mirador-hq/mirador/internal/shared"
)

// ReportStatus enumerates report lifecycle stages.
type ReportStatus string

const (
	ReportOpen   ReportStatus = "OPEN"
	ReportClosed ReportStatus = "CLOSED"
)

// PeriodReport is the materialized reconciliation of a calendar month. It is
// recomputable while Open and frozen once Closed.
type PeriodReport struct {
	Period            shared.Period
	TotalIncomeUSD    decimal.Decimal
	TotalIncomeLocal  decimal.Decimal
	TotalExpenseUSD   decimal.Decimal
	TotalExpenseLocal decimal.Decimal
	ClosingUSD        decimal.Decimal
	ClosingLocal      decimal.Decimal
	AverageRate       decimal.Decimal
	Status            ReportStatus
	GeneratedAt       time.Time
	ClosedAt          *time.Time
	ClosedBy          *int64
}

// Statement is an apartment's account movement over one period:
// prior balance + period charges − period payments = new balance.
type Statement struct {
	ApartmentID     int64
	Period          shared.Period
	PriorUSD        decimal.Decimal
	PriorLocal      decimal.Decimal
	ChargesUSD      decimal.Decimal
	ChargesLocal    decimal.Decimal
	PaymentsUSD     decimal.Decimal
	PaymentsLocal   decimal.Decimal
	NewBalanceUSD   decimal.Decimal
	NewBalanceLocal decimal.Decimal
	Current         bool
}

// PeriodTotals aggregates one side of the ledger over a date window.
type PeriodTotals struct {
	USD   decimal.Decimal
	Local decimal.Decimal
}

// Repository reads ledger aggregates and persists period reports.
type Repository interface {
	// ExpenseTotals sums expenses incurred in [from, to) and returns the
	// distinct rates those expenses used.
	ExpenseTotals(ctx context.Context, from, to time.Time) (PeriodTotals, []decimal.Decimal, error)
	// IncomeTotals sums non-rejected payments whose charge's expense was
	// incurred in [from, to).
	IncomeTotals(ctx context.Context, from, to time.Time) (PeriodTotals, error)

	GetReport(ctx context.Context, period shared.Period) (PeriodReport, error)
	UpsertReport(ctx context.Context, report PeriodReport) error
	MarkClosed(ctx context.Context, period shared.Period, actorID int64, at time.Time) error

	// ApartmentCharges sums an apartment's charge amounts for expenses
	// incurred in [from, to).
	ApartmentCharges(ctx context.Context, apartmentID int64, from, to time.Time) (PeriodTotals, error)
	// ApartmentPayments sums an apartment's non-rejected payments created
	// in [from, to).
	ApartmentPayments(ctx context.Context, apartmentID int64, from, to time.Time) (PeriodTotals, error)
}

var (
	// ErrReportNotFound indicates no report exists for the period.
	ErrReportNotFound = fmt.Errorf("reports: report %w", shared.ErrNotFound)
	// ErrReportClosed indicates the report is frozen.
	ErrReportClosed = fmt.Errorf("reports: report already closed: %w", shared.ErrConflict)
)
