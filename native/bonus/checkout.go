package bonus

import (
	"context"

	ledgererrors "partnerledger/core/errors"
	"partnerledger/native/rates"
)

// MaxApplicable returns how much bonus may pay for an order:
// min(available, floor(orderTotal*MaxBonusPercentCheckout/100)).
func (l *Ledger) MaxApplicable(ctx context.Context, userID string, orderTotal int64) (int64, error) {
	var applicable int64
	err := l.withSession(ctx, userID, func(s *session) error {
		var err error
		applicable, err = l.maxApplicable(s, orderTotal)
		return err
	})
	return applicable, err
}

// Clamp bounds a requested redemption to what MaxApplicable allows.
func (l *Ledger) Clamp(ctx context.Context, userID string, orderTotal, requested int64) (int64, error) {
	applicable, err := l.MaxApplicable(ctx, userID, orderTotal)
	if err != nil {
		return 0, err
	}
	if requested < 0 {
		return 0, nil
	}
	if requested > applicable {
		return applicable, nil
	}
	return requested, nil
}

// Redeem spends bonus against an order after re-checking the checkout cap
// and the available balance under the user lock.
func (l *Ledger) Redeem(ctx context.Context, userID string, orderTotal, amount int64, orderID string) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	var out *Transaction
	err := l.withSession(ctx, userID, func(s *session) error {
		capAmount := l.checkoutCap(orderTotal)
		if amount > capAmount {
			return ErrCheckoutCapExceeded
		}
		available, err := l.available(s)
		if err != nil {
			return err
		}
		if amount > available {
			return &ledgererrors.InsufficientBalanceError{UserID: s.userID, Requested: amount, Available: available}
		}
		out, err = l.debitIn(s, EntrySpent, amount, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) checkoutCap(orderTotal int64) int64 {
	return rates.ApplyPercent(orderTotal, l.tables.Bonus().MaxBonusPercentCheckout)
}

func (l *Ledger) maxApplicable(s *session, orderTotal int64) (int64, error) {
	capAmount := l.checkoutCap(orderTotal)
	if capAmount == 0 {
		return 0, nil
	}
	available, err := l.available(s)
	if err != nil {
		return 0, err
	}
	if available < capAmount {
		return available, nil
	}
	return capAmount, nil
}
