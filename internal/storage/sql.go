package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// =============================================================================
// 🗄️ SQL 存储（GORM）
// =============================================================================

// kvItem 键值表的一行
type kvItem struct {
	Key       string `gorm:"column:item_key;primaryKey;size:191"`
	Value     []byte `gorm:"column:item_value;not null"`
	UpdatedAt time.Time
}

func (kvItem) TableName() string { return "imagegen_kv" }

// SQLStore 基于 GORM 的存储，支持 postgres / mysql / sqlite。
// UpdateData 在事务中执行，非 sqlite 方言使用 SELECT ... FOR UPDATE 行锁。
type SQLStore struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config PoolConfig
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// PoolConfig 连接池配置
type PoolConfig struct {
	// 最大空闲连接数
	MaxIdleConns int `yaml:"max_idle_conns" json:"max_idle_conns"`

	// 最大打开连接数
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns"`

	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`

	// 事务冲突（死锁、序列化失败、sqlite 锁）最大重试次数
	MaxTxRetries int `yaml:"max_tx_retries" json:"max_tx_retries"`
}

// DefaultPoolConfig 返回默认连接池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:    5,
		MaxOpenConns:    25,
		ConnMaxLifetime: 5 * time.Minute,
		MaxTxRetries:    3,
	}
}

// NewSQLStore 配置连接池并迁移键值表
func NewSQLStore(db *gorm.DB, config PoolConfig, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.MaxTxRetries <= 0 {
		config.MaxTxRetries = 1
	}

	if err := db.AutoMigrate(&kvItem{}); err != nil {
		return nil, fmt.Errorf("failed to migrate kv table: %w", err)
	}

	s := &SQLStore{
		db:     db,
		sqlDB:  sqlDB,
		config: config,
		logger: logger.With(zap.String("component", "sql_store")),
	}

	logger.Info("sql store initialized",
		zap.String("dialect", db.Dialector.Name()),
		zap.Int("max_open_conns", config.MaxOpenConns),
	)

	return s, nil
}

func (s *SQLStore) conn(ctx context.Context) (*gorm.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.db.WithContext(ctx), nil
}

// GetItem 读取 key
func (s *SQLStore) GetItem(ctx context.Context, key string) ([]byte, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var item kvItem
	err = db.Where("item_key = ?", key).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sql get failed: %w", err)
	}
	return item.Value, nil
}

// SetItem upsert key
func (s *SQLStore) SetItem(ctx context.Context, key string, value []byte) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return upsert(db, key, value)
}

func upsert(db *gorm.DB, key string, value []byte) error {
	item := kvItem{Key: key, Value: value}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"item_value", "updated_at"}),
	}).Create(&item).Error
	if err != nil {
		return fmt.Errorf("sql upsert failed: %w", err)
	}
	return nil
}

// UpdateData 在事务中完成读-改-写，冲突类错误按 MaxTxRetries 退避重试
func (s *SQLStore) UpdateData(ctx context.Context, key string, fn UpdateFunc) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < s.config.MaxTxRetries; attempt++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			return s.updateInTx(tx, key, fn)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return err
		}

		s.logger.Warn("transaction failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", s.config.MaxTxRetries),
			zap.Error(err),
		)

		backoff := time.Duration(1<<uint(attempt)) * 50 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("transaction failed after %d retries: %w", s.config.MaxTxRetries, lastErr)
}

func (s *SQLStore) updateInTx(tx *gorm.DB, key string, fn UpdateFunc) error {
	q := tx
	if tx.Dialector.Name() != "sqlite" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var item kvItem
	exists := true
	err := q.Where("item_key = ?", key).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		exists = false
	} else if err != nil {
		return err
	}

	next, write, err := applyUpdate(fn, item.Value, exists)
	if err != nil || !write {
		return err
	}
	return upsert(tx, key, next)
}

// Ping 检查数据库连接
func (s *SQLStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return s.sqlDB.PingContext(ctx)
}

// Close 关闭连接池
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.logger.Info("closing sql store")

	return s.sqlDB.Close()
}

// isRetryableError 判断事务错误是否可重试
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())

	// 死锁
	if strings.Contains(errMsg, "deadlock") {
		return true
	}

	// 序列化失败（PostgreSQL SQLSTATE 40001）
	if strings.Contains(errMsg, "serialization failure") || strings.Contains(errMsg, "40001") {
		return true
	}

	// sqlite 写锁
	if strings.Contains(errMsg, "database is locked") || strings.Contains(errMsg, "sqlite_busy") {
		return true
	}

	// 锁超时
	if strings.Contains(errMsg, "lock timeout") || strings.Contains(errMsg, "lock wait timeout") {
		return true
	}

	return strings.Contains(errMsg, "bad connection")
}
