package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"partnerledger/native/bonus"
	"partnerledger/native/withdrawal"
)

// Open connects to Postgres for postgres:// style DSNs and to SQLite
// otherwise. SQLite connections are capped at one so user scopes serialise
// the way row locks do on Postgres.
func Open(dsn string, quiet bool) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("sqlstore: dsn required")
	}
	cfg := &gorm.Config{}
	if quiet {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	if isPostgres(dsn) {
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
		}
		return db, nil
	}
	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func isPostgres(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") ||
		strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=")
}

// Store implements the engine state contracts on top of gorm.
type Store struct {
	db *gorm.DB
}

// New wraps an opened and migrated database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for collaborators such as the HTTP
// idempotency middleware.
func (s *Store) DB() *gorm.DB { return s.db }

// Bonus returns the bonus ledger view of the store.
func (s *Store) Bonus() bonus.Store { return bonusStore{s} }

// Withdrawals returns the withdrawal view of the store.
func (s *Store) Withdrawals() withdrawal.Store { return withdrawalStore{s} }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// withUser opens a transaction holding the user's account row lock.
func (s *Store) withUser(ctx context.Context, userID string, fn func(*userTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := BonusAccount{UserID: userID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}
		var account BonusAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&account, "user_id = ?", userID).Error; err != nil {
			return err
		}
		return fn(&userTx{tx: tx, userID: userID, account: &account})
	})
}
