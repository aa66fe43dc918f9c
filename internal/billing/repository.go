package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mirador-hq/mirador/internal/platform/db"
	"github.com/mirador-hq/mirador/internal/shared"
)

// PgRepository provides PostgreSQL backed persistence for billing.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs a repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const uniqueViolation = "23505"

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("billing: duplicate row: %w", shared.ErrConflict)
	}
	return err
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithTx runs fn inside a RepeatableRead transaction.
func (r *PgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{q: tx})
	})
}

const expenseColumns = `
	id, description, category, total_usd, total_local, rate_used, incurred_date,
	selection_kind, selection_tower, selection_floor, selection_ids, equal_split,
	status, created_at, updated_at`

func scanExpense(row pgx.Row) (Expense, error) {
	var e Expense
	var tower *string
	var floor *int
	var ids []int64
	err := row.Scan(&e.ID, &e.Description, &e.Category, &e.TotalUSD, &e.TotalLocal,
		&e.RateUsed, &e.IncurredDate, &e.Selection.Kind, &tower, &floor, &ids,
		&e.EqualSplit, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Expense{}, ErrExpenseNotFound
	}
	if err != nil {
		return Expense{}, fmt.Errorf("billing: scan expense: %w", err)
	}
	if tower != nil {
		e.Selection.Tower = *tower
	}
	if floor != nil {
		e.Selection.Floor = *floor
	}
	e.Selection.ApartmentIDs = ids
	return e, nil
}

// GetExpense loads one expense.
func (r *PgRepository) GetExpense(ctx context.Context, id int64) (Expense, error) {
	return scanExpense(r.pool.QueryRow(ctx, `SELECT`+expenseColumns+` FROM expenses WHERE id = $1`, id))
}

// CountAllocations counts allocations for an expense.
func (r *PgRepository) CountAllocations(ctx context.Context, expenseID int64) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM allocations WHERE expense_id = $1`, expenseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("billing: count allocations: %w", err)
	}
	return n, nil
}

// ListAllocations returns the allocations of an expense ordered by apartment.
func (r *PgRepository) ListAllocations(ctx context.Context, expenseID int64) ([]Allocation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, expense_id, apartment_id, amount_usd, amount_local, percentage_applied
		FROM allocations WHERE expense_id = $1 ORDER BY apartment_id`, expenseID)
	if err != nil {
		return nil, fmt.Errorf("billing: list allocations: %w", err)
	}
	defer rows.Close()

	var out []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.ExpenseID, &a.ApartmentID, &a.AmountUSD, &a.AmountLocal, &a.PercentageApplied); err != nil {
			return nil, fmt.Errorf("billing: scan allocation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const chargeColumns = `
	id, expense_id, apartment_id, amount_usd, amount_local, balance_usd,
	balance_local, due_date, status, created_at, updated_at`

func scanCharge(row pgx.Row) (Charge, error) {
	var c Charge
	err := row.Scan(&c.ID, &c.ExpenseID, &c.ApartmentID, &c.AmountUSD, &c.AmountLocal,
		&c.BalanceUSD, &c.BalanceLocal, &c.DueDate, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Charge{}, ErrChargeNotFound
	}
	if err != nil {
		return Charge{}, fmt.Errorf("billing: scan charge: %w", err)
	}
	return c, nil
}

// GetCharge loads one charge.
func (r *PgRepository) GetCharge(ctx context.Context, id int64) (Charge, error) {
	return scanCharge(r.pool.QueryRow(ctx, `SELECT`+chargeColumns+` FROM charges WHERE id = $1`, id))
}

// ListChargesByExpense returns the charges of an expense ordered by apartment.
func (r *PgRepository) ListChargesByExpense(ctx context.Context, expenseID int64) ([]Charge, error) {
	rows, err := r.pool.Query(ctx, `SELECT`+chargeColumns+` FROM charges WHERE expense_id = $1 ORDER BY apartment_id`, expenseID)
	if err != nil {
		return nil, fmt.Errorf("billing: list charges: %w", err)
	}
	defer rows.Close()
	return collectCharges(rows)
}

func collectCharges(rows pgx.Rows) ([]Charge, error) {
	var out []Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const paymentColumns = `
	id, receipt_number, charge_id, apartment_id, resident_id, amount_paid,
	currency, rate_applied, amount_usd, amount_local, status, created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.ReceiptNumber, &p.ChargeID, &p.ApartmentID, &p.ResidentID,
		&p.AmountPaid, &p.Currency, &p.RateApplied, &p.AmountUSD, &p.AmountLocal,
		&p.Status, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	if err != nil {
		return Payment{}, fmt.Errorf("billing: scan payment: %w", err)
	}
	return p, nil
}

// GetPayment loads one payment.
func (r *PgRepository) GetPayment(ctx context.Context, id int64) (Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT`+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// ListPaymentsByCharge returns a charge's payments, oldest first.
func (r *PgRepository) ListPaymentsByCharge(ctx context.Context, chargeID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT`+paymentColumns+` FROM payments WHERE charge_id = $1 ORDER BY created_at, id`, chargeID)
	if err != nil {
		return nil, fmt.Errorf("billing: list payments: %w", err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountValidatedPayments counts validated payments across an expense's charges.
func (r *PgRepository) CountValidatedPayments(ctx context.Context, expenseID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM payments p
		JOIN charges c ON c.id = p.charge_id
		WHERE c.expense_id = $1 AND p.status = $2`, expenseID, PaymentValidated).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("billing: count validated payments: %w", err)
	}
	return n, nil
}

// ListOverdueCandidates returns ids of non-terminal charges past their due date.
func (r *PgRepository) ListOverdueCandidates(ctx context.Context, today time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM charges
		WHERE status IN ($1, $2) AND due_date < $3
		ORDER BY id`, ChargePending, ChargePartial, today)
	if err != nil {
		return nil, fmt.Errorf("billing: list overdue candidates: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

// ListFullyPaidExpenses returns allocated expenses whose charges are all paid.
func (r *PgRepository) ListFullyPaidExpenses(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.id
		FROM expenses e
		WHERE e.status = $1
		  AND EXISTS (SELECT 1 FROM charges c WHERE c.expense_id = e.id)
		  AND NOT EXISTS (SELECT 1 FROM charges c WHERE c.expense_id = e.id AND c.status <> $2)
		ORDER BY e.id`, ExpenseAllocated, ChargePaid)
	if err != nil {
		return nil, fmt.Errorf("billing: list settled expenses: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func collectIDs(rows pgx.Rows) ([]int64, error) {
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// pgTx implements TxRepository over an open transaction.
type pgTx struct {
	q querier
}

func (t *pgTx) CreateExpense(ctx context.Context, e Expense) (int64, error) {
	var tower *string
	if e.Selection.Tower != "" {
		tower = &e.Selection.Tower
	}
	var floor *int
	if e.Selection.Floor > 0 {
		floor = &e.Selection.Floor
	}

	var id int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO expenses (
			description, category, total_usd, total_local, rate_used, incurred_date,
			selection_kind, selection_tower, selection_floor, selection_ids,
			equal_split, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING id`,
		e.Description, e.Category, e.TotalUSD, e.TotalLocal, e.RateUsed, e.IncurredDate,
		e.Selection.Kind, tower, floor, e.Selection.ApartmentIDs, e.EqualSplit, e.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("billing: create expense: %w", mapPgError(err))
	}
	return id, nil
}

func (t *pgTx) UpdateExpenseStatus(ctx context.Context, id int64, status ExpenseStatus) error {
	tag, err := t.q.Exec(ctx, `UPDATE expenses SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("billing: update expense status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

// DeleteExpenseCascade relies on ON DELETE CASCADE from allocations, charges
// and payments back to the expense.
func (t *pgTx) DeleteExpenseCascade(ctx context.Context, id int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("billing: delete expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

func (t *pgTx) CreateAllocation(ctx context.Context, a Allocation) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO allocations (expense_id, apartment_id, amount_usd, amount_local, percentage_applied)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		a.ExpenseID, a.ApartmentID, a.AmountUSD, a.AmountLocal, a.PercentageApplied,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("billing: create allocation: %w", mapPgError(err))
	}
	return id, nil
}

func (t *pgTx) ChargeExists(ctx context.Context, expenseID, apartmentID int64) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM charges WHERE expense_id = $1 AND apartment_id = $2)`,
		expenseID, apartmentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("billing: charge exists: %w", err)
	}
	return exists, nil
}

func (t *pgTx) CreateCharge(ctx context.Context, c Charge) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO charges (
			expense_id, apartment_id, amount_usd, amount_local,
			balance_usd, balance_local, due_date, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id`,
		c.ExpenseID, c.ApartmentID, c.AmountUSD, c.AmountLocal,
		c.BalanceUSD, c.BalanceLocal, c.DueDate, c.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("billing: create charge: %w", mapPgError(err))
	}
	return id, nil
}

// LockCharge loads a charge under FOR UPDATE so balance mutations serialize.
func (t *pgTx) LockCharge(ctx context.Context, id int64) (Charge, error) {
	return scanCharge(t.q.QueryRow(ctx, `SELECT`+chargeColumns+` FROM charges WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) UpdateChargeBalance(ctx context.Context, id int64, balanceUSD, balanceLocal decimal.Decimal, status ChargeStatus) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE charges SET balance_usd = $2, balance_local = $3, status = $4, updated_at = NOW()
		WHERE id = $1`, id, balanceUSD, balanceLocal, status)
	if err != nil {
		return fmt.Errorf("billing: update charge balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChargeNotFound
	}
	return nil
}

func (t *pgTx) CreatePayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO payments (
			receipt_number, charge_id, apartment_id, resident_id, amount_paid,
			currency, rate_applied, amount_usd, amount_local, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING id`,
		p.ReceiptNumber, p.ChargeID, p.ApartmentID, p.ResidentID, p.AmountPaid,
		p.Currency, p.RateApplied, p.AmountUSD, p.AmountLocal, p.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("billing: create payment: %w", mapPgError(err))
	}
	return id, nil
}

// LockPayment loads a payment under FOR UPDATE so validation races serialize.
func (t *pgTx) LockPayment(ctx context.Context, id int64) (Payment, error) {
	return scanPayment(t.q.QueryRow(ctx, `SELECT`+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) error {
	tag, err := t.q.Exec(ctx, `UPDATE payments SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("billing: update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

var _ Repository = (*PgRepository)(nil)
var _ TxRepository = (*pgTx)(nil)
