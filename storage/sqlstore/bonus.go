package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"partnerledger/native/bonus"
	"partnerledger/native/rates"
	"partnerledger/native/withdrawal"
)

var errCrossUser = errors.New("sqlstore: scope bound to a different user")

// userTx is the transactional scope of a single user. It serves both the
// bonus ledger and the withdrawal engine.
type userTx struct {
	tx      *gorm.DB
	userID  string
	account *BonusAccount
}

func (u *userTx) check(userID string) error {
	if userID != u.userID {
		return fmt.Errorf("%w: %s", errCrossUser, userID)
	}
	return nil
}

func (u *userTx) Entries(userID string) ([]bonus.Transaction, error) {
	if err := u.check(userID); err != nil {
		return nil, err
	}
	var rows []BonusEntry
	if err := u.tx.Where("user_id = ?", userID).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]bonus.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, entryFromRow(row))
	}
	return out, nil
}

func (u *userTx) Append(entry *bonus.Transaction, balanceAfter int64) error {
	if err := u.check(entry.UserID); err != nil {
		return err
	}
	entry.Seq = u.account.LastSeq + 1
	row := entryToRow(*entry)
	if err := u.tx.Create(&row).Error; err != nil {
		return err
	}
	updates := map[string]interface{}{"balance": balanceAfter, "last_seq": entry.Seq, "updated_at": time.Now().UTC()}
	if err := u.tx.Model(&BonusAccount{}).Where("user_id = ?", u.userID).Updates(updates).Error; err != nil {
		return err
	}
	u.account.LastSeq = entry.Seq
	u.account.Balance = balanceAfter
	return nil
}

// SetLotRemaining keeps the open remainder of a lot on its entry row.
func (u *userTx) SetLotRemaining(entryID string, remaining int64) error {
	return u.tx.Model(&BonusEntry{}).
		Where("id = ? AND user_id = ?", entryID, u.userID).
		Update("remaining", remaining).Error
}

func (u *userTx) Holds(userID string) (int64, error) {
	var total int64
	err := u.tx.Model(&Withdrawal{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND status IN ?", userID, openStatuses()).
		Scan(&total).Error
	return total, err
}

func (u *userTx) ActivityGranted(userID string, activity rates.ActivityType) (bool, error) {
	var count int64
	err := u.tx.Model(&UserActivityBonus{}).
		Where("user_id = ? AND activity = ?", userID, string(activity)).
		Count(&count).Error
	return count > 0, err
}

func (u *userTx) RecordActivity(grant bonus.ActivityGrant) error {
	row := UserActivityBonus{
		UserID:        grant.UserID,
		Activity:      string(grant.Activity),
		TransactionID: grant.TransactionID,
		GrantedAt:     grant.GrantedAt,
	}
	return u.tx.Create(&row).Error
}

func (u *userTx) Projection(userID string) (int64, error) {
	if err := u.check(userID); err != nil {
		return 0, err
	}
	return u.account.Balance, nil
}

func (u *userTx) SetProjection(userID string, balance int64) error {
	if err := u.check(userID); err != nil {
		return err
	}
	if err := u.tx.Model(&BonusAccount{}).Where("user_id = ?", userID).Update("balance", balance).Error; err != nil {
		return err
	}
	u.account.Balance = balance
	return nil
}

func openStatuses() []string {
	out := make([]string, 0, len(withdrawal.OpenStatuses))
	for _, s := range withdrawal.OpenStatuses {
		out = append(out, string(s))
	}
	return out
}

type bonusStore struct{ s *Store }

func (b bonusStore) WithUser(ctx context.Context, userID string, fn func(bonus.Scope) error) error {
	return b.s.withUser(ctx, userID, func(u *userTx) error { return fn(u) })
}

func (b bonusStore) UsersWithOpenLots(ctx context.Context, from, to time.Time) ([]string, error) {
	query := b.s.db.WithContext(ctx).Model(&BonusEntry{}).
		Where("type = ? AND remaining > 0 AND expires_at IS NOT NULL AND expires_at <= ?", string(bonus.EntryEarned), to.UTC())
	if !from.IsZero() {
		query = query.Where("expires_at >= ?", from.UTC())
	}
	var users []string
	err := query.
		Distinct("user_id").
		Order("user_id").
		Pluck("user_id", &users).Error
	return users, err
}

func (b bonusStore) History(ctx context.Context, userID string, limit int) ([]bonus.Transaction, error) {
	var rows []BonusEntry
	err := b.s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("seq DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]bonus.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, entryFromRow(row))
	}
	return out, nil
}

// Entries lists ledger entries created within [from, to) across users,
// ordered by user and sequence. Used by statement exports.
func (s *Store) Entries(ctx context.Context, from, to time.Time) ([]bonus.Transaction, error) {
	var rows []BonusEntry
	err := s.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Order("user_id ASC, seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]bonus.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, entryFromRow(row))
	}
	return out, nil
}

// Accounts returns every balance projection, for audits.
func (s *Store) Accounts(ctx context.Context) ([]BonusAccount, error) {
	var rows []BonusAccount
	err := s.db.WithContext(ctx).Order("user_id").Find(&rows).Error
	return rows, err
}

func entryToRow(t bonus.Transaction) BonusEntry {
	return BonusEntry{
		ID:           t.ID,
		UserID:       t.UserID,
		Seq:          t.Seq,
		Type:         string(t.Type),
		Amount:       t.Amount,
		Direction:    t.Direction,
		Source:       string(t.Source),
		ReferenceID:  t.ReferenceID,
		ActivityType: string(t.ActivityType),
		ExpiresAt:    utcPtr(t.ExpiresAt),
		Memo:         t.Memo,
		Actor:        t.Actor,
		CreatedAt:    t.CreatedAt.UTC(),
	}
}

func entryFromRow(row BonusEntry) bonus.Transaction {
	return bonus.Transaction{
		ID:           row.ID,
		UserID:       row.UserID,
		Seq:          row.Seq,
		Type:         bonus.EntryType(row.Type),
		Amount:       row.Amount,
		Direction:    row.Direction,
		Source:       bonus.Source(row.Source),
		ReferenceID:  row.ReferenceID,
		ActivityType: rates.ActivityType(row.ActivityType),
		ExpiresAt:    utcPtr(row.ExpiresAt),
		Memo:         row.Memo,
		Actor:        row.Actor,
		CreatedAt:    row.CreatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
