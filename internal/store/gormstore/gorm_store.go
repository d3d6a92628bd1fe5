package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"signalrelay/internal/store"
	"signalrelay/internal/store/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// pendingSellIndex keeps at most one pending exit per trade.
const pendingSellIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_sell_requests_pending_trade
ON sell_requests(trade_id) WHERE status = 'pending'`

// GormStore implements store.Store using Gorm + SQLite.
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

// NewGormStore opens (or creates) the database at path and migrates the schema.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	// _txlock=immediate: transactions take the write lock at BEGIN.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&model.ChannelModel{},
		&model.ChannelCursorModel{},
		&model.QueuedMessageModel{},
		&model.AuthorEntryModel{},
		&model.TradingConfigModel{},
		&model.TradeModel{},
		&model.TradeGuardModel{},
		&model.SellRequestModel{},
		&model.EventRecordModel{},
		&model.ConnectionStatusModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, fmt.Errorf("gorm store: migrate: %w", err)
	}
	if err := db.Exec(pendingSellIndex).Error; err != nil {
		return nil, fmt.Errorf("gorm store: pending sell index: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB for health checks.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	return s.db.DB()
}

func (s *GormStore) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) Messages() store.MessageRepository { return messageRepo{db: s.db} }
func (s *GormStore) Roster() store.RosterRepository    { return rosterRepo{db: s.db} }
func (s *GormStore) Trades() store.TradeRepository     { return tradeRepo{db: s.db} }
func (s *GormStore) Sells() store.SellRepository       { return sellRepo{db: s.db} }
func (s *GormStore) Events() store.EventRepository     { return eventRepo{db: s.db} }
func (s *GormStore) Status() store.StatusRepository    { return statusRepo{db: s.db} }

// --------------------------- Helpers ------------------------------

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

// missingOrConflict resolves a conditional update that matched no rows.
func missingOrConflict(db *gorm.DB, row interface{}, id string) error {
	var count int64
	if err := db.Model(row).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return store.ErrNotFound
	}
	return store.ErrInvalidTransition
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
