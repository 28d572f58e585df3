package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"autodecide/internal/store"
	"autodecide/internal/store/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultRecentLimit = 20

type SqliteStore struct {
	db *gorm.DB
}

var _ store.BacktestRepository = (*SqliteStore)(nil)

func NewSqliteStore(path string) (*SqliteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return NewSqliteStoreFromDB(db)
}

func NewSqliteStoreFromDB(db *gorm.DB) (*SqliteStore, error) {
	if db == nil {
		return nil, errors.New("gorm db cannot be nil")
	}
	if err := db.AutoMigrate(&model.BacktestRunModel{}); err != nil {
		return nil, fmt.Errorf("migrate backtest_runs: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) SaveRun(ctx context.Context, run *model.BacktestRunModel) error {
	if run == nil {
		return errors.New("backtest run is nil")
	}
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("backtest run id is required")
	}
	if run.CreatedAtUnix == 0 {
		run.CreatedAtUnix = time.Now().UnixMilli()
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("save backtest run %s: %w", run.ID, err)
	}
	return nil
}

// RecentRuns returns the newest runs first.
func (s *SqliteStore) RecentRuns(ctx context.Context, limit int) ([]model.BacktestRunModel, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	var rows []model.BacktestRunModel
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].CreatedAt = time.UnixMilli(rows[i].CreatedAtUnix)
	}
	return rows, nil
}

func (s *SqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
