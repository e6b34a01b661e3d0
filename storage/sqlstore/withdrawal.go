package sqlstore

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"partnerledger/native/rates"
	"partnerledger/native/withdrawal"
)

type withdrawalStore struct{ s *Store }

func (w withdrawalStore) WithUser(ctx context.Context, userID string, fn func(withdrawal.Scope) error) error {
	return w.s.withUser(ctx, userID, func(u *userTx) error { return fn(u) })
}

func (w withdrawalStore) Withdrawal(ctx context.Context, id string) (*withdrawal.Request, error) {
	return findWithdrawal(w.s.db.WithContext(ctx), id)
}

func (w withdrawalStore) ListWithdrawals(ctx context.Context, filter withdrawal.Filter) ([]*withdrawal.Request, error) {
	query := w.s.db.WithContext(ctx).Model(&Withdrawal{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		query = query.Where("status IN ?", statuses)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []Withdrawal
	if err := query.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*withdrawal.Request, 0, len(rows))
	for _, row := range rows {
		req, err := withdrawalFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

func (u *userTx) Withdrawal(id string) (*withdrawal.Request, error) {
	req, err := findWithdrawal(u.tx, id)
	if err != nil {
		return nil, err
	}
	if err := u.check(req.UserID); err != nil {
		return nil, err
	}
	return req, nil
}

func (u *userTx) PutWithdrawal(req *withdrawal.Request) error {
	if err := u.check(req.UserID); err != nil {
		return err
	}
	row, err := withdrawalToRow(req)
	if err != nil {
		return err
	}
	return u.tx.Save(&row).Error
}

func findWithdrawal(db *gorm.DB, id string) (*withdrawal.Request, error) {
	var row Withdrawal
	err := db.First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, withdrawal.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return withdrawalFromRow(row)
}

func withdrawalToRow(req *withdrawal.Request) (Withdrawal, error) {
	kind, payload, err := withdrawal.EncodePaymentDetails(req.Payment)
	if err != nil {
		return Withdrawal{}, err
	}
	return Withdrawal{
		ID:              req.ID,
		UserID:          req.UserID,
		Amount:          req.Amount,
		TaxStatus:       string(req.TaxStatus),
		TaxRateBps:      req.TaxRateBps,
		TaxAmount:       req.TaxAmount,
		NetAmount:       req.NetAmount,
		PaymentKind:     string(kind),
		PaymentPayload:  string(payload),
		Status:          string(req.Status),
		ReviewedBy:      req.ReviewedBy,
		RejectionReason: req.RejectionReason,
		PayoutRef:       req.PayoutRef,
		LedgerEntryID:   req.LedgerEntryID,
		ApprovedAt:      utcPtr(req.ApprovedAt),
		ProcessingAt:    utcPtr(req.ProcessingAt),
		CompletedAt:     utcPtr(req.CompletedAt),
		RejectedAt:      utcPtr(req.RejectedAt),
		CreatedAt:       req.CreatedAt.UTC(),
		UpdatedAt:       req.UpdatedAt.UTC(),
	}, nil
}

func withdrawalFromRow(row Withdrawal) (*withdrawal.Request, error) {
	payment, err := withdrawal.DecodePaymentDetails(withdrawal.PaymentKind(row.PaymentKind), []byte(row.PaymentPayload))
	if err != nil {
		return nil, err
	}
	return &withdrawal.Request{
		ID:              row.ID,
		UserID:          row.UserID,
		Amount:          row.Amount,
		TaxStatus:       rates.TaxStatus(row.TaxStatus),
		TaxRateBps:      row.TaxRateBps,
		TaxAmount:       row.TaxAmount,
		NetAmount:       row.NetAmount,
		Payment:         payment,
		Status:          withdrawal.Status(row.Status),
		ReviewedBy:      row.ReviewedBy,
		RejectionReason: row.RejectionReason,
		PayoutRef:       row.PayoutRef,
		LedgerEntryID:   row.LedgerEntryID,
		ApprovedAt:      utcPtr(row.ApprovedAt),
		ProcessingAt:    utcPtr(row.ProcessingAt),
		CompletedAt:     utcPtr(row.CompletedAt),
		RejectedAt:      utcPtr(row.RejectedAt),
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}, nil
}
