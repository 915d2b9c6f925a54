// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	store := testutil.NewCountingStore(storage.NewMemoryStore())
//	testutil.AssertErrorCode(t, err, types.ErrValidation)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/imagegen/internal/storage"
	"github.com/BaSui01/imagegen/types"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertJSONEqual 断言两个值的 JSON 表示相等
func AssertJSONEqual(t *testing.T, expected, actual any) {
	t.Helper()

	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("failed to marshal expected: %v", err)
	}
	actualJSON, err := json.Marshal(actual)
	if err != nil {
		t.Fatalf("failed to marshal actual: %v", err)
	}
	if string(expectedJSON) != string(actualJSON) {
		t.Errorf("JSON mismatch:\nexpected: %s\nactual:   %s", expectedJSON, actualJSON)
	}
}

// AssertErrorCode 断言错误链上带有指定的 types.ErrorCode
func AssertErrorCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if got := types.GetErrorCode(err); got != code {
		t.Errorf("error code mismatch: expected %s, got %q (%v)", code, got, err)
	}
}

// AssertErrorContains 断言错误消息包含子串
func AssertErrorContains(t *testing.T, err error, substr string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected error containing %q, got nil", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Errorf("expected error %q to contain %q", err.Error(), substr)
	}
}

// =============================================================================
// 💾 存储辅助
// =============================================================================

// CountingStore 统计实际发生的写入次数，跳过写入不计数
type CountingStore struct {
	storage.Store
	writes atomic.Int64
}

// NewCountingStore 包装一个 Store
func NewCountingStore(inner storage.Store) *CountingStore {
	return &CountingStore{Store: inner}
}

// SetItem 写入并计数
func (s *CountingStore) SetItem(ctx context.Context, key string, value []byte) error {
	if err := s.Store.SetItem(ctx, key, value); err != nil {
		return err
	}
	s.writes.Add(1)
	return nil
}

// UpdateData 仅在回调产生新值时计数
func (s *CountingStore) UpdateData(ctx context.Context, key string, fn storage.UpdateFunc) error {
	var wrote bool
	err := s.Store.UpdateData(ctx, key, func(current []byte, exists bool) ([]byte, error) {
		next, err := fn(current, exists)
		wrote = err == nil
		return next, err
	})
	if err == nil && wrote {
		s.writes.Add(1)
	}
	return err
}

// Writes 返回写入次数
func (s *CountingStore) Writes() int64 { return s.writes.Load() }

// =============================================================================
// 🔧 数据辅助
// =============================================================================

// MustJSON 将值转换为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// MustParseJSON 解析 JSON 字符串，失败时 panic
func MustParseJSON[T any](s string) T {
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}
