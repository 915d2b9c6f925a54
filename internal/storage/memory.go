package storage

import (
	"context"
	"sync"
)

// MemoryStore 进程内存储，用于测试与单机 CLI
type MemoryStore struct {
	mu     sync.Mutex
	items  map[string][]byte
	closed bool
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (s *MemoryStore) GetItem(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	v, ok := s.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) SetItem(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.items[key] = append([]byte(nil), value...)
	return nil
}

// UpdateData 整个回调在锁内执行
func (s *MemoryStore) UpdateData(ctx context.Context, key string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	current, exists := s.items[key]
	next, write, err := applyUpdate(fn, append([]byte(nil), current...), exists)
	if err != nil || !write {
		return err
	}
	s.items[key] = append([]byte(nil), next...)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
