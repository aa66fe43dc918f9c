// Package billing implements the expense allocation and billing engine:
// expense distribution over apartments, per-apartment charge lifecycles and
// payment application with rejection reversal.
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mirador-hq/mirador/internal/money"
	"github.com/mirador-hq/mirador/internal/registry"
	"github.com/mirador-hq/mirador/internal/shared"
)

// GracePeriodDays is the fixed window between an expense being incurred and
// its charges falling due.
const GracePeriodDays = 30

// ExpenseStatus enumerates expense lifecycle stages.
type ExpenseStatus string

const (
	ExpensePending   ExpenseStatus = "PENDING"
	ExpenseAllocated ExpenseStatus = "ALLOCATED"
	ExpenseClosed    ExpenseStatus = "CLOSED"
)

// ChargeStatus enumerates charge lifecycle stages. Paid is terminal.
type ChargeStatus string

const (
	ChargePending ChargeStatus = "PENDING"
	ChargePartial ChargeStatus = "PARTIAL"
	ChargePaid    ChargeStatus = "PAID"
	ChargeOverdue ChargeStatus = "OVERDUE"
)

// PaymentStatus enumerates payment lifecycle stages.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentValidated PaymentStatus = "VALIDATED"
	PaymentRejected  PaymentStatus = "REJECTED"
)

// ValidationOutcome is the administrative verdict on a pending payment.
type ValidationOutcome string

const (
	OutcomeAccepted          ValidationOutcome = "ACCEPTED"
	OutcomePartiallyAccepted ValidationOutcome = "PARTIALLY_ACCEPTED"
	OutcomeRejected          ValidationOutcome = "REJECTED"
)

// Expense is a condominium cost shared across selected apartments. The local
// total and the rate are fixed at creation from the rate resolver.
type Expense struct {
	ID           int64
	Description  string
	Category     string
	TotalUSD     decimal.Decimal
	TotalLocal   decimal.Decimal
	RateUsed     decimal.Decimal
	IncurredDate time.Time
	Selection    registry.Selection
	EqualSplit   bool
	Status       ExpenseStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Allocation is one apartment's share of an expense. Amounts are rounded
// independently per row; the USD amounts of an expense's allocations sum to
// the expense total exactly.
//
// PercentageApplied is informational: amounts are authoritative. In equal-split
// mode it holds Round4(1/N), so the recorded percentages may sum to slightly
// under 1 (0.9999 for N=3) even though the amounts conserve the total.
type Allocation struct {
	ID                int64
	ExpenseID         int64
	ApartmentID       int64
	AmountUSD         decimal.Decimal
	AmountLocal       decimal.Decimal
	PercentageApplied decimal.Decimal
}

// Charge is the billable materialization of an allocation. Balance starts at
// the full amount and is mutated only by payment application and rejection.
type Charge struct {
	ID           int64
	ExpenseID    int64
	ApartmentID  int64
	AmountUSD    decimal.Decimal
	AmountLocal  decimal.Decimal
	BalanceUSD   decimal.Decimal
	BalanceLocal decimal.Decimal
	DueDate      time.Time
	Status       ChargeStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Payment is a resident's claim of money paid against a charge. The USD and
// local amounts are computed once at registration and never recomputed.
type Payment struct {
	ID            int64
	ReceiptNumber string
	ChargeID      int64
	ApartmentID   int64
	ResidentID    int64
	AmountPaid    decimal.Decimal
	Currency      money.Currency
	RateApplied   decimal.Decimal
	AmountUSD     decimal.Decimal
	AmountLocal   decimal.Decimal
	Status        PaymentStatus
	CreatedAt     time.Time
}

// CreateExpenseInput carries a new expense.
type CreateExpenseInput struct {
	Description  string
	Category     string
	TotalUSD     decimal.Decimal
	IncurredDate time.Time
	Selection    registry.Selection
	EqualSplit   bool
	ActorID      int64
}

// Validate checks the input before any mutation.
func (in CreateExpenseInput) Validate() error {
	if in.Description == "" {
		return fmt.Errorf("%w: description required", shared.ErrValidation)
	}
	if !in.TotalUSD.IsPositive() {
		return fmt.Errorf("%w: total must be positive", shared.ErrValidation)
	}
	if in.IncurredDate.IsZero() {
		return fmt.Errorf("%w: incurred date required", shared.ErrValidation)
	}
	return in.Selection.Validate()
}

// RegisterPaymentInput carries a payment registration.
type RegisterPaymentInput struct {
	ChargeID   int64
	ResidentID int64
	Amount     decimal.Decimal
	Currency   money.Currency
	ActorID    int64
}

// Sentinel errors. Each wraps the shared taxonomy so callers can classify
// with errors.Is at either granularity.
var (
	ErrExpenseNotFound    = fmt.Errorf("billing: expense %w", shared.ErrNotFound)
	ErrChargeNotFound     = fmt.Errorf("billing: charge %w", shared.ErrNotFound)
	ErrPaymentNotFound    = fmt.Errorf("billing: payment %w", shared.ErrNotFound)
	ErrAlreadyDistributed = fmt.Errorf("billing: expense already distributed: %w", shared.ErrConflict)
	ErrEmptySelection     = fmt.Errorf("billing: selection matches no apartments: %w", shared.ErrValidation)
	ErrOverpayment        = fmt.Errorf("billing: payment exceeds charge balance: %w", shared.ErrConflict)
	ErrResidentMismatch   = fmt.Errorf("billing: resident does not belong to charge apartment: %w", shared.ErrValidation)
	ErrPaymentNotPending  = fmt.Errorf("billing: payment already validated or rejected: %w", shared.ErrConflict)
	ErrValidatedPayments  = fmt.Errorf("billing: expense has validated payments: %w", shared.ErrConflict)
)
