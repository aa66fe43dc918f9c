package billing

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mirador-hq/mirador/internal/fxrate"
	"github.com/mirador-hq/mirador/internal/money"
	"github.com/mirador-hq/mirador/internal/registry"
	"github.com/mirador-hq/mirador/internal/shared"
)

type memoryRepo struct {
	expenses    map[int64]Expense
	allocations map[int64][]Allocation
	charges     map[int64]Charge
	payments    map[int64]Payment
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		expenses:    make(map[int64]Expense),
		allocations: make(map[int64][]Allocation),
		charges:     make(map[int64]Charge),
		payments:    make(map[int64]Payment),
	}
}

func (r *memoryRepo) id() int64 { r.nextID++; return r.nextID }

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetExpense(ctx context.Context, id int64) (Expense, error) {
	e, ok := r.expenses[id]
	if !ok {
		return Expense{}, ErrExpenseNotFound
	}
	return e, nil
}

func (r *memoryRepo) CountAllocations(ctx context.Context, expenseID int64) (int, error) {
	return len(r.allocations[expenseID]), nil
}

func (r *memoryRepo) ListAllocations(ctx context.Context, expenseID int64) ([]Allocation, error) {
	return append([]Allocation(nil), r.allocations[expenseID]...), nil
}

func (r *memoryRepo) GetCharge(ctx context.Context, id int64) (Charge, error) {
	c, ok := r.charges[id]
	if !ok {
		return Charge{}, ErrChargeNotFound
	}
	return c, nil
}

func (r *memoryRepo) ListChargesByExpense(ctx context.Context, expenseID int64) ([]Charge, error) {
	var out []Charge
	for _, c := range r.charges {
		if c.ExpenseID == expenseID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ApartmentID < out[j].ApartmentID })
	return out, nil
}

func (r *memoryRepo) GetPayment(ctx context.Context, id int64) (Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

func (r *memoryRepo) ListPaymentsByCharge(ctx context.Context, chargeID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range r.payments {
		if p.ChargeID == chargeID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) CountValidatedPayments(ctx context.Context, expenseID int64) (int, error) {
	n := 0
	for _, p := range r.payments {
		if p.Status != PaymentValidated {
			continue
		}
		if c, ok := r.charges[p.ChargeID]; ok && c.ExpenseID == expenseID {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) ListOverdueCandidates(ctx context.Context, today time.Time) ([]int64, error) {
	var out []int64
	for id, c := range r.charges {
		if (c.Status == ChargePending || c.Status == ChargePartial) && c.DueDate.Before(today) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *memoryRepo) ListFullyPaidExpenses(ctx context.Context) ([]int64, error) {
	var out []int64
	for id, e := range r.expenses {
		if e.Status != ExpenseAllocated {
			continue
		}
		total, paid := 0, 0
		for _, c := range r.charges {
			if c.ExpenseID == id {
				total++
				if c.Status == ChargePaid {
					paid++
				}
			}
		}
		if total > 0 && total == paid {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) CreateExpense(ctx context.Context, e Expense) (int64, error) {
	e.ID = t.repo.id()
	t.repo.expenses[e.ID] = e
	return e.ID, nil
}

func (t *memoryTx) UpdateExpenseStatus(ctx context.Context, id int64, status ExpenseStatus) error {
	e, ok := t.repo.expenses[id]
	if !ok {
		return ErrExpenseNotFound
	}
	e.Status = status
	t.repo.expenses[id] = e
	return nil
}

func (t *memoryTx) DeleteExpenseCascade(ctx context.Context, id int64) error {
	if _, ok := t.repo.expenses[id]; !ok {
		return ErrExpenseNotFound
	}
	delete(t.repo.expenses, id)
	delete(t.repo.allocations, id)
	for cid, c := range t.repo.charges {
		if c.ExpenseID != id {
			continue
		}
		delete(t.repo.charges, cid)
		for pid, p := range t.repo.payments {
			if p.ChargeID == cid {
				delete(t.repo.payments, pid)
			}
		}
	}
	return nil
}

func (t *memoryTx) CreateAllocation(ctx context.Context, a Allocation) (int64, error) {
	a.ID = t.repo.id()
	t.repo.allocations[a.ExpenseID] = append(t.repo.allocations[a.ExpenseID], a)
	return a.ID, nil
}

func (t *memoryTx) ChargeExists(ctx context.Context, expenseID, apartmentID int64) (bool, error) {
	for _, c := range t.repo.charges {
		if c.ExpenseID == expenseID && c.ApartmentID == apartmentID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) CreateCharge(ctx context.Context, c Charge) (int64, error) {
	c.ID = t.repo.id()
	t.repo.charges[c.ID] = c
	return c.ID, nil
}

func (t *memoryTx) LockCharge(ctx context.Context, id int64) (Charge, error) {
	return t.repo.GetCharge(ctx, id)
}

func (t *memoryTx) UpdateChargeBalance(ctx context.Context, id int64, balanceUSD, balanceLocal decimal.Decimal, status ChargeStatus) error {
	c, ok := t.repo.charges[id]
	if !ok {
		return ErrChargeNotFound
	}
	c.BalanceUSD = balanceUSD
	c.BalanceLocal = balanceLocal
	c.Status = status
	t.repo.charges[id] = c
	return nil
}

func (t *memoryTx) CreatePayment(ctx context.Context, p Payment) (int64, error) {
	p.ID = t.repo.id()
	t.repo.payments[p.ID] = p
	return p.ID, nil
}

func (t *memoryTx) LockPayment(ctx context.Context, id int64) (Payment, error) {
	return t.repo.GetPayment(ctx, id)
}

func (t *memoryTx) UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) error {
	p, ok := t.repo.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.Status = status
	t.repo.payments[id] = p
	return nil
}

type fakeRegistry struct {
	pcts      map[int64]decimal.Decimal
	residents map[int64]int64
}

func (f *fakeRegistry) PercentageOf(ctx context.Context, apartmentID int64) (decimal.Decimal, error) {
	pct, ok := f.pcts[apartmentID]
	if !ok {
		return decimal.Zero, registry.ErrApartmentNotFound
	}
	return pct, nil
}

func (f *fakeRegistry) SelectApartments(ctx context.Context, sel registry.Selection) ([]int64, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if sel.Kind == registry.SelectExplicit {
		return append([]int64(nil), sel.ApartmentIDs...), nil
	}
	var ids []int64
	for id := range f.pcts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeRegistry) ResidentBelongsTo(ctx context.Context, residentID, apartmentID int64) (bool, error) {
	home, ok := f.residents[residentID]
	if !ok {
		return false, registry.ErrResidentNotFound
	}
	return home == apartmentID, nil
}

type fakeRates struct {
	value decimal.Decimal
	err   error
}

func (f *fakeRates) CurrentRate(ctx context.Context, asOf time.Time) (fxrate.Rate, error) {
	if f.err != nil {
		return fxrate.Rate{}, f.err
	}
	return fxrate.Rate{Date: asOf, Value: f.value, Source: "test", FetchedAt: asOf}, nil
}

var testDay = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memoryRepo, *fakeRegistry) {
	t.Helper()
	repo := newMemoryRepo()
	reg := &fakeRegistry{
		pcts: map[int64]decimal.Decimal{
			1: dec("0.27"),
			2: dec("0.40"),
			3: dec("0.33"),
		},
		residents: map[int64]int64{101: 1, 102: 2, 103: 3},
	}
	svc := NewService(repo, reg, reg, &fakeRates{value: dec("40.00")}, nil, nil)
	svc.WithNow(func() time.Time { return testDay })
	return svc, repo, reg
}

func createDistributedExpense(t *testing.T, svc *Service, total string, equalSplit bool) (Expense, []Allocation) {
	t.Helper()
	expense, err := svc.CreateExpense(context.Background(), CreateExpenseInput{
		Description:  "elevator maintenance",
		Category:     "maintenance",
		TotalUSD:     dec(total),
		IncurredDate: testDay,
		Selection:    registry.Selection{Kind: registry.SelectAll},
		EqualSplit:   equalSplit,
	})
	require.NoError(t, err)
	allocs, err := svc.Distribute(context.Background(), expense.ID)
	require.NoError(t, err)
	return expense, allocs
}

func chargeForApartment(t *testing.T, repo *memoryRepo, expenseID, apartmentID int64) Charge {
	t.Helper()
	charges, err := repo.ListChargesByExpense(context.Background(), expenseID)
	require.NoError(t, err)
	for _, c := range charges {
		if c.ApartmentID == apartmentID {
			return c
		}
	}
	t.Fatalf("no charge for apartment %d", apartmentID)
	return Charge{}
}

func TestCreateExpenseFixesRateAndLocalTotal(t *testing.T) {
	svc, repo, _ := newTestService(t)
	expense, err := svc.CreateExpense(context.Background(), CreateExpenseInput{
		Description:  "water pump",
		TotalUSD:     dec("500.00"),
		IncurredDate: testDay,
		Selection:    registry.Selection{Kind: registry.SelectAll},
	})
	require.NoError(t, err)
	require.Equal(t, ExpensePending, expense.Status)
	require.Equal(t, "40", expense.RateUsed.String())
	require.Equal(t, "20000.00", expense.TotalLocal.StringFixed(2))
	require.Len(t, repo.expenses, 1)
}

func TestCreateExpenseFailsWhenRateUnavailable(t *testing.T) {
	repo := newMemoryRepo()
	reg := &fakeRegistry{pcts: map[int64]decimal.Decimal{1: dec("1")}}
	svc := NewService(repo, reg, reg, &fakeRates{err: fxrate.ErrSourceUnavailable}, nil, nil)

	_, err := svc.CreateExpense(context.Background(), CreateExpenseInput{
		Description:  "no rate",
		TotalUSD:     dec("10.00"),
		IncurredDate: testDay,
		Selection:    registry.Selection{Kind: registry.SelectAll},
	})
	require.ErrorIs(t, err, shared.ErrDependency)
	require.Empty(t, repo.expenses)
}

func TestDistributeCreatesAllocationsAndCharges(t *testing.T) {
	svc, repo, _ := newTestService(t)
	expense, allocs := createDistributedExpense(t, svc, "500.00", false)

	require.Len(t, allocs, 3)
	require.Equal(t, "135.00", allocs[0].AmountUSD.StringFixed(2))
	require.Equal(t, "200.00", allocs[1].AmountUSD.StringFixed(2))
	require.Equal(t, "165.00", allocs[2].AmountUSD.StringFixed(2))
	require.True(t, sumUSD(allocs).Equal(dec("500.00")))

	stored, err := repo.GetExpense(context.Background(), expense.ID)
	require.NoError(t, err)
	require.Equal(t, ExpenseAllocated, stored.Status)

	charges, err := repo.ListChargesByExpense(context.Background(), expense.ID)
	require.NoError(t, err)
	require.Len(t, charges, 3)
	for i, c := range charges {
		require.True(t, c.BalanceUSD.Equal(allocs[i].AmountUSD))
		require.True(t, c.BalanceLocal.Equal(allocs[i].AmountLocal))
		require.Equal(t, ChargePending, c.Status)
		require.Equal(t, testDay.AddDate(0, 0, GracePeriodDays), c.DueDate)
	}
}

func TestDistributeTwiceRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	expense, _ := createDistributedExpense(t, svc, "500.00", false)

	_, err := svc.Distribute(context.Background(), expense.ID)
	require.ErrorIs(t, err, ErrAlreadyDistributed)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestDistributeUnknownExpense(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Distribute(context.Background(), 999)
	require.ErrorIs(t, err, ErrExpenseNotFound)
}

func TestDistributeUnknownApartmentFails(t *testing.T) {
	svc, repo, _ := newTestService(t)
	expense, err := svc.CreateExpense(context.Background(), CreateExpenseInput{
		Description:  "gate repair",
		TotalUSD:     dec("100.00"),
		IncurredDate: testDay,
		Selection:    registry.Selection{Kind: registry.SelectExplicit, ApartmentIDs: []int64{1, 99}},
	})
	require.NoError(t, err)

	_, err = svc.Distribute(context.Background(), expense.ID)
	require.ErrorIs(t, err, registry.ErrApartmentNotFound)
	require.Empty(t, repo.allocations[expense.ID])
}

func TestRegisterPartialPaymentThenReject(t *testing.T) {
	svc, repo, _ := newTestService(t)
	expense, _ := createDistributedExpense(t, svc, "500.00", false)
	charge := chargeForApartment(t, repo, expense.ID, 1)
	require.Equal(t, "135.00", charge.AmountUSD.StringFixed(2))

	payment, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{
		ChargeID:   charge.ID,
		ResidentID: 101,
		Amount:     dec("100.00"),
		Currency:   money.USD,
	})
	require.NoError(t, err)
	require.Equal(t, PaymentPending, payment.Status)
	require.Equal(t, "100.00", payment.AmountUSD.StringFixed(2))
	require.Equal(t, "4000.00", payment.AmountLocal.StringFixed(2))
	require.NotEmpty(t, payment.ReceiptNumber)

	after, err := repo.GetCharge(context.Background(), charge.ID)
	require.NoError(t, err)
	require.Equal(t, "35.00", after.BalanceUSD.StringFixed(2))
	require.Equal(t, ChargePartial, after.Status)

	rejected, err := svc.ValidatePayment(context.Background(), payment.ID, OutcomeRejected, 1)
	require.NoError(t, err)
	require.Equal(t, PaymentRejected, rejected.Status)

	reverted, err := repo.GetCharge(context.Background(), charge.ID)
	require.NoError(t, err)
	require.Equal(t, "135.00", reverted.BalanceUSD.StringFixed(2))
	require.Equal(t, ChargePending, reverted.Status)
}

func TestRegisterPaymentInLocalCurrency(t *testing.T) {
	svc, repo, _ := newTestService(t)
	expense, _ := createDistributedExpense(t, svc, "500.00", false)
	charge := chargeForApartment(t, repo, expense.ID, 1)

	payment, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{
		ChargeID:   charge.ID,
		ResidentID: 101,
		Amount:     dec("5400.00"),
		Currency:   money.Local,
	})
	require.NoError(t, err)
	require.Equal(t, "135.00", payment.AmountUSD.StringFixed(2))

	after, err := repo.GetCharge(context.Background(), charge.ID)
	require.NoError(t, err)
	require.True(t, after.BalanceUSD.IsZero())
	require.Equal(t, ChargePaid, after.Status)
}

func TestRegisterPaymentOverpaymentRejected(t *testing.T) {
	svc, repo, _ := newTestService(t)
	expense, _ := createDistributedExpense(t, svc, "500.00", false)
	charge := chargeForApartment(t, repo, expense.ID, 1)

	_, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{
		ChargeID:   charge.ID,
		ResidentID: 101,
		Amount:     dec("135.01"),
		Currency:   money.USD,
	})
	require.ErrorIs(t, err, ErrOverpayment)

	after, err := repo.GetCharge(context.Background(), charge.ID)
	require.NoError(t, err)
	require.True(t, after.BalanceUSD.Equal(charge.AmountUSD))
	require.Empty(t, repo.payments)
}

func TestRegisterPaymentResidentMismatch(t *testing.T) {
	svc, repo, _ := newTestService(t)
	expense, _ := createDistributedExpense(t, svc, "500.00", false)
	charge := chargeForApartment(t, repo, expense.ID, 1)

	_, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{
		ChargeID:   charge.ID,
		ResidentID: 102,
		Amount:     dec("10.00"),
		Currency:   money.USD,
	})
	require.ErrorIs(t, err, ErrResidentMismatch)
}

func TestRegisterPaymentRejectsNonPositiveAmount(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{
		ChargeID:   1,
		ResidentID: 101,
		Amount:     decimal.Zero,
		Currency:   money.USD,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRejectThenReapplyMatchesSinglePayment(t *testing.T) {
	svc, repo, _ := newTestService(t)
	expense, _ := createDistributedExpense(t, svc, "500.00", false)
	charge := chargeForApartment(t, repo, expense.ID, 1)

	pay := func() Payment {
		p, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{
			ChargeID:   charge.ID,
			ResidentID: 101,
			Amount:     dec("60.00"),
			Currency:   money.USD,
		})
		require.NoError(t, err)
		return p
	}

	first := pay()
	_, err := svc.ValidatePayment(context.Background(), first.ID, OutcomeRejected, 1)
	require.NoError(t, err)
	second := pay()
	_, err = svc.ValidatePayment(context.Background(), second.ID, OutcomeAccepted, 1)
	require.NoError(t, err)

	after, err := repo.GetCharge(context.Background(), charge.ID)
	require.NoError(t, err)
	require.Equal(t, "75.00", after.BalanceUSD.StringFixed(2))
	require.Equal(t, ChargePartial, after.Status)
}

func TestBalanceBoundsUnderRegistrationsAndRejections(t *testing.T) {
	svc, repo, _ := newTestService(t)
	expense, _ := createDistributedExpense(t, svc, "500.00", false)
	charge := chargeForApartment(t, repo, expense.ID, 2)

	assertBounds := func() {
		c, err := repo.GetCharge(context.Background(), charge.ID)
		require.NoError(t, err)
		require.False(t, c.BalanceUSD.IsNegative())
		require.True(t, c.BalanceUSD.LessThanOrEqual(c.AmountUSD))
	}

	var ids []int64
	for _, amt := range []string{"50.00", "75.00", "25.00"} {
		p, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{
			ChargeID:   charge.ID,
			ResidentID: 102,
			Amount:     dec(amt),
			Currency:   money.USD,
		})
		require.NoError(t, err)
		ids = append(ids, p.ID)
		assertBounds()
	}
	for _, id := range ids {
		_, err := svc.ValidatePayment(context.Background(), id, OutcomeRejected, 1)
		require.NoError(t, err)
		assertBounds()
	}

	final, err := repo.GetCharge(context.Background(), charge.ID)
	require.NoError(t, err)
	require.True(t, final.BalanceUSD.Equal(final.AmountUSD))
}

func TestValidateAcceptedLeavesBalanceAlone(t *testing.T) {
	svc, repo, _ := newTestService(t)
	expense, _ := createDistributedExpense(t, svc, "500.00", false)
	charge := chargeForApartment(t, repo, expense.ID, 1)

	payment, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{
		ChargeID:   charge.ID,
		ResidentID: 101,
		Amount:     dec("35.00"),
		Currency:   money.USD,
	})
	require.NoError(t, err)

	beforeVal, err := repo.GetCharge(context.Background(), charge.ID)
	require.NoError(t, err)

	validated, err := svc.ValidatePayment(context.Background(), payment.ID, OutcomeAccepted, 1)
	require.NoError(t, err)
	require.Equal(t, PaymentValidated, validated.Status)

	afterVal, err := repo.GetCharge(context.Background(), charge.ID)
	require.NoError(t, err)
	require.True(t, beforeVal.BalanceUSD.Equal(afterVal.BalanceUSD))

	_, err = svc.ValidatePayment(context.Background(), payment.ID, OutcomeAccepted, 1)
	require.ErrorIs(t, err, ErrPaymentNotPending)
}

func TestValidateUnknownOutcome(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.ValidatePayment(context.Background(), 1, ValidationOutcome("MAYBE"), 1)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReplaceExpenseBlockedByValidatedPayment(t *testing.T) {
	svc, repo, _ := newTestService(t)
	expense, _ := createDistributedExpense(t, svc, "500.00", false)
	charge := chargeForApartment(t, repo, expense.ID, 1)

	payment, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{
		ChargeID:   charge.ID,
		ResidentID: 101,
		Amount:     dec("10.00"),
		Currency:   money.USD,
	})
	require.NoError(t, err)
	_, err = svc.ValidatePayment(context.Background(), payment.ID, OutcomeAccepted, 1)
	require.NoError(t, err)

	_, err = svc.ReplaceExpense(context.Background(), expense.ID, CreateExpenseInput{
		Description:  "corrected",
		TotalUSD:     dec("450.00"),
		IncurredDate: testDay,
		Selection:    registry.Selection{Kind: registry.SelectAll},
	})
	require.ErrorIs(t, err, ErrValidatedPayments)

	_, err = repo.GetExpense(context.Background(), expense.ID)
	require.NoError(t, err)
}

func TestReplaceExpenseRedistributes(t *testing.T) {
	svc, repo, _ := newTestService(t)
	expense, _ := createDistributedExpense(t, svc, "500.00", false)

	replacement, err := svc.ReplaceExpense(context.Background(), expense.ID, CreateExpenseInput{
		Description:  "corrected amount",
		TotalUSD:     dec("450.00"),
		IncurredDate: testDay,
		Selection:    registry.Selection{Kind: registry.SelectAll},
	})
	require.NoError(t, err)
	require.Equal(t, ExpenseAllocated, replacement.Status)
	require.Equal(t, "450.00", replacement.TotalUSD.StringFixed(2))

	_, err = repo.GetExpense(context.Background(), expense.ID)
	require.ErrorIs(t, err, ErrExpenseNotFound)

	allocs, err := repo.ListAllocations(context.Background(), replacement.ID)
	require.NoError(t, err)
	require.Len(t, allocs, 3)
	require.True(t, sumUSD(allocs).Equal(dec("450.00")))

	charges, err := repo.ListChargesByExpense(context.Background(), replacement.ID)
	require.NoError(t, err)
	require.Len(t, charges, 3)
}

func TestReplaceExpenseKeepsOriginalWhenRateUnavailable(t *testing.T) {
	svc, repo, _ := newTestService(t)
	expense, _ := createDistributedExpense(t, svc, "500.00", false)

	svc.rates = &fakeRates{err: fxrate.ErrSourceUnavailable}
	_, err := svc.ReplaceExpense(context.Background(), expense.ID, CreateExpenseInput{
		Description:  "corrected",
		TotalUSD:     dec("450.00"),
		IncurredDate: testDay,
		Selection:    registry.Selection{Kind: registry.SelectAll},
	})
	require.ErrorIs(t, err, shared.ErrDependency)

	kept, err := repo.GetExpense(context.Background(), expense.ID)
	require.NoError(t, err)
	require.Equal(t, ExpenseAllocated, kept.Status)
	require.Equal(t, "500.00", kept.TotalUSD.StringFixed(2))

	allocs, err := repo.ListAllocations(context.Background(), expense.ID)
	require.NoError(t, err)
	require.Len(t, allocs, 3)
	charges, err := repo.ListChargesByExpense(context.Background(), expense.ID)
	require.NoError(t, err)
	require.Len(t, charges, 3)
}

func TestReplaceExpenseKeepsOriginalOnBadSelection(t *testing.T) {
	svc, repo, _ := newTestService(t)
	expense, _ := createDistributedExpense(t, svc, "500.00", false)

	_, err := svc.ReplaceExpense(context.Background(), expense.ID, CreateExpenseInput{
		Description:  "corrected",
		TotalUSD:     dec("450.00"),
		IncurredDate: testDay,
		Selection:    registry.Selection{Kind: registry.SelectExplicit, ApartmentIDs: []int64{1, 99}},
	})
	require.ErrorIs(t, err, registry.ErrApartmentNotFound)

	_, err = repo.GetExpense(context.Background(), expense.ID)
	require.NoError(t, err)
	charges, err := repo.ListChargesByExpense(context.Background(), expense.ID)
	require.NoError(t, err)
	require.Len(t, charges, 3)
}
