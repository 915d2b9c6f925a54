package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 🧱 Redis 存储
// =============================================================================

// RedisStore 基于 Redis 的存储，UpdateData 使用 WATCH/MULTI 乐观锁
type RedisStore struct {
	redis  *redis.Client
	config RedisConfig
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
	stopCh chan struct{}
}

// RedisConfig Redis 存储配置
type RedisConfig struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// key 前缀，多个实例共用一个 Redis 时区分命名空间
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// WATCH 冲突时的最大重试次数
	MaxTxRetries int `yaml:"max_tx_retries" json:"max_tx_retries"`

	// 健康检查间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultRedisConfig 返回默认 Redis 存储配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:                "localhost:6379",
		DB:                  0,
		KeyPrefix:           "imagegen:",
		PoolSize:            10,
		MinIdleConns:        2,
		MaxTxRetries:        10,
		HealthCheckInterval: 30 * time.Second,
	}
}

// NewRedisStore 创建 Redis 存储并检查连通性
func NewRedisStore(config RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if config.MaxTxRetries <= 0 {
		config.MaxTxRetries = 10
	}
	s := &RedisStore{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "redis_store")),
		stopCh: make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go s.healthCheckLoop()
	}

	logger.Info("redis store initialized",
		zap.String("addr", config.Addr),
		zap.Int("pool_size", config.PoolSize),
	)

	return s, nil
}

func (s *RedisStore) key(k string) string { return s.config.KeyPrefix + k }

// GetItem 读取 key
func (s *RedisStore) GetItem(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	val, err := s.redis.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logger.Error("redis get failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return val, nil
}

// SetItem 写入 key（不过期）
func (s *RedisStore) SetItem(ctx context.Context, key string, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	if err := s.redis.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		s.logger.Error("redis set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// UpdateData WATCH key 后读取，在 MULTI 中写回；被其他写者抢先时重试
func (s *RedisStore) UpdateData(ctx context.Context, key string, fn UpdateFunc) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	full := s.key(key)
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, full).Bytes()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
			current = nil
		} else if err != nil {
			return err
		}

		next, write, err := applyUpdate(fn, current, exists)
		if err != nil || !write {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, full, next, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.config.MaxTxRetries; attempt++ {
		err := s.redis.Watch(ctx, txf, full)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		s.logger.Debug("redis update conflicted, retrying",
			zap.String("key", key),
			zap.Int("attempt", attempt+1),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return fmt.Errorf("redis update of %q failed after %d attempts: %w", key, s.config.MaxTxRetries, redis.TxFailedErr)
}

// Ping 检查 Redis 连接
func (s *RedisStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return s.redis.Ping(ctx).Err()
}

// Close 关闭存储
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	close(s.stopCh)
	s.logger.Info("closing redis store")

	return s.redis.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (s *RedisStore) healthCheckLoop() {
	ticker := time.NewTicker(s.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.Ping(ctx); err != nil && !errors.Is(err, ErrClosed) {
			s.logger.Error("redis health check failed", zap.Error(err))
		} else {
			s.logger.Debug("redis health check passed")
		}
		cancel()
	}
}
