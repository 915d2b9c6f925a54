package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// =============================================================================
// 🧪 Store 契约测试（memory / redis / sqlite）
// =============================================================================

func setupMemory(t *testing.T) Store {
	s := NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func setupRedis(t *testing.T) Store {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0
	s, err := NewRedisStore(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func setupSQLite(t *testing.T) Store {
	path := filepath.Join(t.TempDir(), "store.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	cfg := DefaultPoolConfig()
	cfg.MaxOpenConns = 1
	s, err := NewSQLStore(db, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var backends = map[string]func(t *testing.T) Store{
	"memory": setupMemory,
	"redis":  setupRedis,
	"sqlite": setupSQLite,
}

func TestStore_GetSet(t *testing.T) {
	for name, setup := range backends {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			ctx := context.Background()

			_, err := s.GetItem(ctx, "missing")
			assert.True(t, IsNotFound(err))

			require.NoError(t, s.SetItem(ctx, "k", []byte(`{"a":1}`)))
			got, err := s.GetItem(ctx, "k")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":1}`, string(got))

			require.NoError(t, s.SetItem(ctx, "k", []byte(`{"a":2}`)))
			got, err = s.GetItem(ctx, "k")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":2}`, string(got))
		})
	}
}

func TestStore_UpdateData(t *testing.T) {
	for name, setup := range backends {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			ctx := context.Background()

			// 不存在时 exists=false
			err := s.UpdateData(ctx, "counter", func(current []byte, exists bool) ([]byte, error) {
				assert.False(t, exists)
				assert.Empty(t, current)
				return []byte("1"), nil
			})
			require.NoError(t, err)

			err = s.UpdateData(ctx, "counter", func(current []byte, exists bool) ([]byte, error) {
				assert.True(t, exists)
				assert.Equal(t, "1", string(current))
				return []byte("2"), nil
			})
			require.NoError(t, err)

			got, err := s.GetItem(ctx, "counter")
			require.NoError(t, err)
			assert.Equal(t, "2", string(got))
		})
	}
}

func TestStore_UpdateData_SkipAndError(t *testing.T) {
	for name, setup := range backends {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			ctx := context.Background()
			require.NoError(t, s.SetItem(ctx, "k", []byte("v1")))

			err := s.UpdateData(ctx, "k", func([]byte, bool) ([]byte, error) {
				return nil, ErrSkipWrite
			})
			require.NoError(t, err)

			boom := errors.New("boom")
			err = s.UpdateData(ctx, "k", func([]byte, bool) ([]byte, error) {
				return []byte("v2"), boom
			})
			assert.ErrorIs(t, err, boom)

			got, err := s.GetItem(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v1", string(got))
		})
	}
}

func TestStore_UpdateData_Concurrent(t *testing.T) {
	for name, setup := range backends {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			ctx := context.Background()
			require.NoError(t, s.SetItem(ctx, "n", []byte("0")))

			const workers = 8
			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- s.UpdateData(ctx, "n", func(current []byte, _ bool) ([]byte, error) {
						n, err := strconv.Atoi(string(current))
						if err != nil {
							return nil, err
						}
						return []byte(strconv.Itoa(n + 1)), nil
					})
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			got, err := s.GetItem(ctx, "n")
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(workers), string(got))
		})
	}
}

func TestStore_Closed(t *testing.T) {
	for name, setup := range backends {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			require.NoError(t, s.Close())

			_, err := s.GetItem(context.Background(), "k")
			assert.ErrorIs(t, err, ErrClosed)
			assert.ErrorIs(t, s.SetItem(context.Background(), "k", nil), ErrClosed)
		})
	}
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	cfg.KeyPrefix = "tenant-a:"
	cfg.HealthCheckInterval = 0
	s, err := NewRedisStore(cfg, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SetItem(context.Background(), "image-model-configs", []byte("{}")))
	raw, err := mr.Get("tenant-a:image-model-configs")
	require.NoError(t, err)
	assert.Equal(t, "{}", raw)
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "127.0.0.1:1"
	_, err := NewRedisStore(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestNewStores_NilLogger(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0
	rs, err := NewRedisStore(cfg, nil)
	require.NoError(t, err)
	defer rs.Close()
	require.NoError(t, rs.SetItem(context.Background(), "k", []byte("v")))

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "nil-logger.db")),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	pool := DefaultPoolConfig()
	pool.MaxOpenConns = 1
	ss, err := NewSQLStore(db, pool, nil)
	require.NoError(t, err)
	defer ss.Close()
	require.NoError(t, ss.SetItem(context.Background(), "k", []byte("v")))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(errors.New("Deadlock found when trying to get lock")))
	assert.True(t, isRetryableError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, isRetryableError(errors.New("ERROR: could not serialize access (SQLSTATE 40001)")))
	assert.False(t, isRetryableError(errors.New("syntax error")))
	assert.False(t, isRetryableError(nil))
}
