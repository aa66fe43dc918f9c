package billing

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mirador-hq/mirador/internal/money"
	"github.com/mirador-hq/mirador/internal/shared"
)

// RegisterPayment applies a resident payment against a charge. The balance is
// decremented at registration; administrative validation later confirms or
// reverses it. Registration and balance update commit atomically under a row
// lock on the charge.
func (s *Service) RegisterPayment(ctx context.Context, in RegisterPaymentInput) (Payment, error) {
	if err := money.RequirePositive(in.Amount); err != nil {
		return Payment{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	currency, err := money.ParseCurrency(string(in.Currency))
	if err != nil {
		return Payment{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	charge, err := s.repo.GetCharge(ctx, in.ChargeID)
	if err != nil {
		return Payment{}, err
	}

	belongs, err := s.residents.ResidentBelongsTo(ctx, in.ResidentID, charge.ApartmentID)
	if err != nil {
		return Payment{}, err
	}
	if !belongs {
		return Payment{}, ErrResidentMismatch
	}

	rate, err := s.rates.CurrentRate(ctx, s.now())
	if err != nil {
		return Payment{}, err
	}

	amountPaid := money.Round2(in.Amount)
	var amountUSD, amountLocal decimal.Decimal
	if currency == money.USD {
		amountUSD = amountPaid
		amountLocal, err = money.Convert(amountPaid, rate.Value, money.Local)
	} else {
		amountLocal = amountPaid
		amountUSD, err = money.Convert(amountPaid, rate.Value, money.USD)
	}
	if err != nil {
		return Payment{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	payment := Payment{
		ReceiptNumber: uuid.NewString(),
		ChargeID:      in.ChargeID,
		ApartmentID:   charge.ApartmentID,
		ResidentID:    in.ResidentID,
		AmountPaid:    amountPaid,
		Currency:      currency,
		RateApplied:   rate.Value,
		AmountUSD:     amountUSD,
		AmountLocal:   amountLocal,
		Status:        PaymentPending,
	}

	var before, after Charge
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockCharge(ctx, in.ChargeID)
		if err != nil {
			return err
		}
		before = locked

		if amountUSD.GreaterThan(locked.BalanceUSD) {
			return ErrOverpayment
		}

		balanceUSD := locked.BalanceUSD.Sub(amountUSD)
		balanceLocal := floorZero(locked.BalanceLocal.Sub(amountLocal))

		locked.BalanceUSD = balanceUSD
		locked.BalanceLocal = balanceLocal
		locked.Status = StatusFor(locked, s.now())
		after = locked

		if err := tx.UpdateChargeBalance(ctx, locked.ID, balanceUSD, balanceLocal, locked.Status); err != nil {
			return err
		}
		id, err := tx.CreatePayment(ctx, payment)
		if err != nil {
			return err
		}
		payment.ID = id
		return nil
	})
	if err != nil {
		return Payment{}, err
	}

	shared.Audit(ctx, s.audit, s.logger, shared.AuditEntry{
		ActorID:  in.ActorID,
		Action:   "payment.register",
		Entity:   "payment",
		EntityID: strconv.FormatInt(payment.ID, 10),
		Before:   chargeSnapshot(before),
		After:    chargeSnapshot(after),
		At:       s.now(),
	})
	return payment, nil
}

// ValidatePayment records the administrative verdict on a pending payment.
// Accepted and partially accepted payments become Validated with no balance
// effect; a rejected payment reverses its decrement, capped at the charge
// amount, and recomputes the charge status.
func (s *Service) ValidatePayment(ctx context.Context, paymentID int64, outcome ValidationOutcome, actorID int64) (Payment, error) {
	switch outcome {
	case OutcomeAccepted, OutcomePartiallyAccepted, OutcomeRejected:
	default:
		return Payment{}, fmt.Errorf("%w: unknown outcome %q", shared.ErrValidation, outcome)
	}

	var payment Payment
	var before, after Charge
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if locked.Status != PaymentPending {
			return ErrPaymentNotPending
		}
		payment = locked

		if outcome != OutcomeRejected {
			payment.Status = PaymentValidated
			return tx.UpdatePaymentStatus(ctx, paymentID, PaymentValidated)
		}

		charge, err := tx.LockCharge(ctx, locked.ChargeID)
		if err != nil {
			return err
		}
		before = charge

		charge.BalanceUSD = capAt(charge.BalanceUSD.Add(locked.AmountUSD), charge.AmountUSD)
		charge.BalanceLocal = capAt(charge.BalanceLocal.Add(locked.AmountLocal), charge.AmountLocal)
		charge.Status = StatusFor(charge, s.now())
		after = charge

		if err := tx.UpdateChargeBalance(ctx, charge.ID, charge.BalanceUSD, charge.BalanceLocal, charge.Status); err != nil {
			return err
		}
		payment.Status = PaymentRejected
		return tx.UpdatePaymentStatus(ctx, paymentID, PaymentRejected)
	})
	if err != nil {
		return Payment{}, err
	}

	entry := shared.AuditEntry{
		ActorID:  actorID,
		Action:   "payment.validate",
		Entity:   "payment",
		EntityID: strconv.FormatInt(paymentID, 10),
		After:    map[string]any{"status": string(payment.Status), "outcome": string(outcome)},
		At:       s.now(),
	}
	if outcome == OutcomeRejected {
		entry.Before = chargeSnapshot(before)
		entry.After["charge"] = chargeSnapshot(after)
	}
	shared.Audit(ctx, s.audit, s.logger, entry)
	return payment, nil
}

func chargeSnapshot(c Charge) map[string]any {
	return map[string]any{
		"charge_id":     c.ID,
		"balance_usd":   c.BalanceUSD.String(),
		"balance_local": c.BalanceLocal.String(),
		"status":        string(c.Status),
	}
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func capAt(d, limit decimal.Decimal) decimal.Decimal {
	if d.GreaterThan(limit) {
		return limit
	}
	return d
}
