package billing

import (
	"github.com/shopspring/decimal"

	"github.com/mirador-hq/mirador/internal/money"
)

// apartmentShare pairs an apartment with its global contribution percentage,
// ordered by ascending apartment id.
type apartmentShare struct {
	ApartmentID int64
	Percentage  decimal.Decimal
}

var one = decimal.NewFromInt(1)

// computeAllocations derives the per-apartment split of an expense total.
//
// Proportional mode applies each apartment's stored global percentage without
// renormalizing over the selected subset: percentages are defined to sum to
// one over the entire building, so a subset intentionally carries only its
// share of the total. When the selected percentages do sum to one, the cent
// residual left by independent rounding is assigned to the largest-percentage
// apartment (first on ties) so the allocations conserve the total exactly.
//
// Equal-split mode gives every apartment Round2(total/N) and assigns the
// residual cents to the first apartment in the selection. The recorded
// percentage is Round4(1/N), informational only; for N not dividing 1 evenly
// the percentages sum to just under 1 while the amounts conserve exactly.
//
// Local amounts are derived per row from each row's rounded USD amount. The
// aggregate may drift from Round2(total × rate) by up to one cent per row;
// that bound is asserted in tests rather than reconciled away.
func computeAllocations(expenseID int64, totalUSD, rate decimal.Decimal, shares []apartmentShare, equalSplit bool) []Allocation {
	if len(shares) == 0 {
		return nil
	}

	allocs := make([]Allocation, len(shares))
	if equalSplit {
		n := decimal.NewFromInt(int64(len(shares)))
		cut := money.Round2(totalUSD.Div(n))
		pct := money.Round4(one.Div(n))
		for i, s := range shares {
			allocs[i] = Allocation{
				ExpenseID:         expenseID,
				ApartmentID:       s.ApartmentID,
				AmountUSD:         cut,
				PercentageApplied: pct,
			}
		}
		residual := totalUSD.Sub(cut.Mul(n))
		allocs[0].AmountUSD = allocs[0].AmountUSD.Add(residual)
	} else {
		pctSum := decimal.Zero
		largest := 0
		for i, s := range shares {
			allocs[i] = Allocation{
				ExpenseID:         expenseID,
				ApartmentID:       s.ApartmentID,
				AmountUSD:         money.Round2(totalUSD.Mul(s.Percentage)),
				PercentageApplied: s.Percentage,
			}
			pctSum = pctSum.Add(s.Percentage)
			if s.Percentage.GreaterThan(shares[largest].Percentage) {
				largest = i
			}
		}
		if pctSum.Equal(one) {
			assigned := decimal.Zero
			for _, a := range allocs {
				assigned = assigned.Add(a.AmountUSD)
			}
			allocs[largest].AmountUSD = allocs[largest].AmountUSD.Add(totalUSD.Sub(assigned))
		}
	}

	for i := range allocs {
		allocs[i].AmountLocal = money.Round2(allocs[i].AmountUSD.Mul(rate))
	}
	return allocs
}
