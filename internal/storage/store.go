// Package storage provides key-value persistence for the model config set.
// This package is internal and should not be imported by external projects.
package storage

import (
	"context"
	"errors"
)

// =============================================================================
// 💾 存储契约
// =============================================================================

// Store 以 key 为单位存取 JSON 文档。
//
// UpdateData 必须是原子的读-改-写：同一 key 上并发的 UpdateData
// 不会互相覆盖对方读到的旧值。
type Store interface {
	// GetItem 读取 key，不存在时返回 ErrNotFound。
	GetItem(ctx context.Context, key string) ([]byte, error)

	// SetItem 无条件写入 key。
	SetItem(ctx context.Context, key string, value []byte) error

	// UpdateData 原子地读取当前值（exists 表示是否存在）并写回 fn 的返回值。
	// fn 返回 ErrSkipWrite 时放弃写入，UpdateData 返回 nil。
	UpdateData(ctx context.Context, key string, fn UpdateFunc) error

	// Close 释放底层连接。
	Close() error
}

// UpdateFunc 读-改-写回调
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

var (
	// ErrNotFound key 不存在
	ErrNotFound = errors.New("storage: item not found")

	// ErrSkipWrite 由 UpdateFunc 返回，表示无需写入
	ErrSkipWrite = errors.New("storage: skip write")

	// ErrClosed 存储已关闭
	ErrClosed = errors.New("storage: store is closed")
)

// IsNotFound 判断是否为 key 不存在
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// applyUpdate 执行回调并统一处理 ErrSkipWrite；返回 write=false 表示无需写入
func applyUpdate(fn UpdateFunc, current []byte, exists bool) (next []byte, write bool, err error) {
	next, err = fn(current, exists)
	if errors.Is(err, ErrSkipWrite) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return next, true, nil
}
