package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mirador-hq/mirador/internal/money"
)

func TestStatusForDerivation(t *testing.T) {
	due := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	base := Charge{AmountUSD: dec("135.00"), DueDate: due}

	cases := []struct {
		name    string
		balance string
		today   time.Time
		want    ChargeStatus
	}{
		{"untouched before due", "135.00", due.AddDate(0, 0, -5), ChargePending},
		{"untouched on due date", "135.00", due, ChargePending},
		{"untouched past due", "135.00", due.AddDate(0, 0, 1), ChargeOverdue},
		{"partial before due", "35.00", due.AddDate(0, 0, -5), ChargePartial},
		{"partial past due stays partial", "35.00", due.AddDate(0, 0, 10), ChargePartial},
		{"settled", "0", due.AddDate(0, 0, -5), ChargePaid},
		{"settled past due stays paid", "0", due.AddDate(0, 0, 10), ChargePaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			c.BalanceUSD = dec(tc.balance)
			require.Equal(t, tc.want, StatusFor(c, tc.today))
		})
	}
}

func TestStatusForIsIdempotent(t *testing.T) {
	due := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	today := due.AddDate(0, 0, 3)
	c := Charge{AmountUSD: dec("100.00"), BalanceUSD: dec("100.00"), DueDate: due}

	first := StatusFor(c, today)
	c.Status = first
	require.Equal(t, first, StatusFor(c, today))
}

func TestSweepOverdueAdvancesPastDueCharges(t *testing.T) {
	svc, repo, _ := newTestService(t)
	expense, _ := createDistributedExpense(t, svc, "500.00", false)

	// Pay off apartment 1 entirely so the sweep must leave it alone.
	charge := chargeForApartment(t, repo, expense.ID, 1)
	_, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{
		ChargeID:   charge.ID,
		ResidentID: 101,
		Amount:     dec("135.00"),
		Currency:   money.USD,
	})
	require.NoError(t, err)

	// Jump past the due date and sweep.
	svc.WithNow(func() time.Time { return testDay.AddDate(0, 0, GracePeriodDays+1) })
	swept, err := svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, swept)

	require.Equal(t, ChargePaid, chargeForApartment(t, repo, expense.ID, 1).Status)
	require.Equal(t, ChargeOverdue, chargeForApartment(t, repo, expense.ID, 2).Status)
	require.Equal(t, ChargeOverdue, chargeForApartment(t, repo, expense.ID, 3).Status)

	// Re-running finds nothing to advance.
	swept, err = svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	require.Zero(t, swept)
}

func TestSweepClosesFullySettledExpense(t *testing.T) {
	svc, repo, _ := newTestService(t)
	expense, allocs := createDistributedExpense(t, svc, "500.00", false)

	residentFor := map[int64]int64{1: 101, 2: 102, 3: 103}
	for _, a := range allocs {
		c := chargeForApartment(t, repo, expense.ID, a.ApartmentID)
		_, err := svc.RegisterPayment(context.Background(), RegisterPaymentInput{
			ChargeID:   c.ID,
			ResidentID: residentFor[a.ApartmentID],
			Amount:     a.AmountUSD,
			Currency:   money.USD,
		})
		require.NoError(t, err)
	}

	_, err := svc.SweepOverdue(context.Background())
	require.NoError(t, err)

	closed, err := repo.GetExpense(context.Background(), expense.ID)
	require.NoError(t, err)
	require.Equal(t, ExpenseClosed, closed.Status)
}

func TestOverduePaymentStillAccepted(t *testing.T) {
	svc, repo, _ := newTestService(t)
	expense, _ := createDistributedExpense(t, svc, "500.00", false)
	charge := chargeForApartment(t, repo, expense.ID, 1)

	svc.WithNow(func() time.Time { return testDay.AddDate(0, 0, GracePeriodDays+10) })
	_, err := svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	require.Equal(t, ChargeOverdue, chargeForApartment(t, repo, expense.ID, 1).Status)

	_, err = svc.RegisterPayment(context.Background(), RegisterPaymentInput{
		ChargeID:   charge.ID,
		ResidentID: 101,
		Amount:     dec("135.00"),
		Currency:   money.USD,
	})
	require.NoError(t, err)
	require.Equal(t, ChargePaid, chargeForApartment(t, repo, expense.ID, 1).Status)
}
