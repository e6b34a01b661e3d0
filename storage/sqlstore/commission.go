package sqlstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"partnerledger/native/commission"
)

func (s *Store) SourceTransaction(ctx context.Context, id string) (*commission.SourceTransaction, bool, error) {
	var row SourceTransaction
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &commission.SourceTransaction{
		ID:         row.ID,
		PayerID:    row.PayerID,
		Amount:     row.Amount,
		OccurredAt: row.OccurredAt.UTC(),
	}, true, nil
}

func (s *Store) CommissionsForSource(ctx context.Context, sourceTransactionID string) ([]*commission.Commission, error) {
	var rows []Commission
	err := s.db.WithContext(ctx).
		Where("source_transaction_id = ?", sourceTransactionID).
		Order("level ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return commissionsFromRows(rows), nil
}

func (s *Store) RecordSource(ctx context.Context, tx commission.SourceTransaction, commissions []*commission.Commission) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		source := SourceTransaction{
			ID:         tx.ID,
			PayerID:    tx.PayerID,
			Amount:     tx.Amount,
			OccurredAt: tx.OccurredAt.UTC(),
		}
		if err := db.Create(&source).Error; err != nil {
			return err
		}
		if len(commissions) == 0 {
			return nil
		}
		rows := make([]Commission, 0, len(commissions))
		for _, c := range commissions {
			rows = append(rows, commissionToRow(c))
		}
		return db.Create(&rows).Error
	})
}

func (s *Store) Commission(ctx context.Context, id string) (*commission.Commission, error) {
	var row Commission
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, commission.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return commissionFromRow(row), nil
}

func (s *Store) UpdateCommission(ctx context.Context, c *commission.Commission, expected commission.Status) error {
	row := commissionToRow(c)
	res := s.db.WithContext(ctx).Model(&Commission{}).
		Where("id = ? AND status = ?", c.ID, string(expected)).
		Select("status", "approved_by", "payout_ref", "cancel_reason", "ledger_entry_id", "approved_at", "paid_at", "cancelled_at", "updated_at").
		Updates(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.Commission(ctx, c.ID); err != nil {
			return err
		}
		return commission.ErrStaleStatus
	}
	return nil
}

func (s *Store) ListCommissions(ctx context.Context, filter commission.Filter) ([]*commission.Commission, error) {
	query := s.db.WithContext(ctx).Model(&Commission{})
	if filter.PartnerID != "" {
		query = query.Where("partner_id = ?", filter.PartnerID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		query = query.Where("status IN ?", statuses)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", filter.CreatedBefore.UTC())
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", filter.CreatedAfter.UTC())
	}
	if filter.Uncredited {
		query = query.Where("payout_ref LIKE ? AND ledger_entry_id = ?", commission.BonusPayoutPrefix+"%", "")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []Commission
	if err := query.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return commissionsFromRows(rows), nil
}

func commissionToRow(c *commission.Commission) Commission {
	return Commission{
		ID:                  c.ID,
		PartnerID:           c.PartnerID,
		SourceUserID:        c.SourceUserID,
		SourceTransactionID: c.SourceTransactionID,
		Level:               c.Level,
		Amount:              c.Amount,
		Status:              string(c.Status),
		ApprovedBy:          c.ApprovedBy,
		PayoutRef:           c.PayoutRef,
		CancelReason:        c.CancelReason,
		LedgerEntryID:       c.LedgerEntryID,
		ApprovedAt:          utcPtr(c.ApprovedAt),
		PaidAt:              utcPtr(c.PaidAt),
		CancelledAt:         utcPtr(c.CancelledAt),
		CreatedAt:           c.CreatedAt.UTC(),
		UpdatedAt:           c.UpdatedAt.UTC(),
	}
}

func commissionFromRow(row Commission) *commission.Commission {
	return &commission.Commission{
		ID:                  row.ID,
		PartnerID:           row.PartnerID,
		SourceUserID:        row.SourceUserID,
		SourceTransactionID: row.SourceTransactionID,
		Level:               row.Level,
		Amount:              row.Amount,
		Status:              commission.Status(row.Status),
		ApprovedBy:          row.ApprovedBy,
		PayoutRef:           row.PayoutRef,
		CancelReason:        row.CancelReason,
		LedgerEntryID:       row.LedgerEntryID,
		ApprovedAt:          utcPtr(row.ApprovedAt),
		PaidAt:              utcPtr(row.PaidAt),
		CancelledAt:         utcPtr(row.CancelledAt),
		CreatedAt:           row.CreatedAt.UTC(),
		UpdatedAt:           row.UpdatedAt.UTC(),
	}
}

func commissionsFromRows(rows []Commission) []*commission.Commission {
	out := make([]*commission.Commission, 0, len(rows))
	for _, row := range rows {
		out = append(out, commissionFromRow(row))
	}
	return out
}

// CommissionTotals returns the PAID sum and the PENDING+APPROVED sum for a
// partner.
func (s *Store) CommissionTotals(ctx context.Context, partnerID string) (int64, int64, error) {
	var paid, pending int64
	err := s.db.WithContext(ctx).Model(&Commission{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("partner_id = ? AND status = ?", partnerID, string(commission.StatusPaid)).
		Scan(&paid).Error
	if err != nil {
		return 0, 0, err
	}
	err = s.db.WithContext(ctx).Model(&Commission{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("partner_id = ? AND status IN ?", partnerID, []string{string(commission.StatusPending), string(commission.StatusApproved)}).
		Scan(&pending).Error
	if err != nil {
		return 0, 0, err
	}
	return paid, pending, nil
}

// CommissionsBetween lists commissions created within [from, to).
func (s *Store) CommissionsBetween(ctx context.Context, from, to time.Time) ([]*commission.Commission, error) {
	after := from.UTC()
	before := to.UTC()
	return s.ListCommissions(ctx, commission.Filter{CreatedAfter: &after, CreatedBefore: &before})
}
