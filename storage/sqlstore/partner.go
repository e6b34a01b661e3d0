package sqlstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"partnerledger/native/partner"
)

func (s *Store) ReferrerOf(ctx context.Context, userID string) (string, bool, error) {
	var row Referral
	err := s.db.WithContext(ctx).First(&row, "referral_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.PartnerID, true, nil
}

func (s *Store) DirectReferrals(ctx context.Context, partnerID string) ([]partner.Referral, error) {
	var rows []Referral
	err := s.db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Order("created_at ASC, referral_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]partner.Referral, 0, len(rows))
	for _, row := range rows {
		out = append(out, partner.Referral{PartnerID: row.PartnerID, ReferralID: row.ReferralID, CreatedAt: row.CreatedAt.UTC()})
	}
	return out, nil
}

func (s *Store) PutReferral(ctx context.Context, referral partner.Referral) error {
	row := Referral{
		ReferralID: referral.ReferralID,
		PartnerID:  referral.PartnerID,
		CreatedAt:  referral.CreatedAt.UTC(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) PurchaseVolume(ctx context.Context, userIDs []string) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	var total int64
	err := s.db.WithContext(ctx).Model(&SourceTransaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("payer_id IN ?", userIDs).
		Scan(&total).Error
	return total, err
}

func (s *Store) ActivePurchasers(ctx context.Context, userIDs []string, since time.Time) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&SourceTransaction{}).
		Where("payer_id IN ? AND occurred_at >= ?", userIDs, since.UTC()).
		Distinct("payer_id").
		Count(&count).Error
	return count, err
}
